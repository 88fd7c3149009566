package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	LogLevel    string

	AudioRoot  string
	PinMapPath string
	WatchPins  bool

	Backend         string
	PlayerCommand   string
	FramesPerBuffer int
	SampleRate      int

	Pull         string
	Bounce       time.Duration
	PollInterval time.Duration
	StopTimeout  time.Duration

	MetricsBind string
}

// Load reads an optional env file and then the GPIOBELL_* environment.
// A missing env file is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	cfg := &Config{
		Environment:     getEnv("GPIOBELL_ENV", "production"),
		LogLevel:        getEnv("GPIOBELL_LOG_LEVEL", ""),
		AudioRoot:       getEnv("GPIOBELL_AUDIO_ROOT", "/home/pi/gpiobell/wav"),
		PinMapPath:      getEnv("GPIOBELL_PIN_MAP", "pins.yaml"),
		WatchPins:       getEnvBool("GPIOBELL_WATCH", true),
		Backend:         getEnv("GPIOBELL_BACKEND", "portaudio"),
		PlayerCommand:   getEnv("GPIOBELL_PLAYER_COMMAND", "aplay -q"),
		FramesPerBuffer: getEnvInt("GPIOBELL_FRAMES_PER_BUFFER", 1024),
		SampleRate:      getEnvInt("GPIOBELL_SAMPLE_RATE", 44100),
		Pull:            getEnv("GPIOBELL_PULL", "off"),
		MetricsBind:     getEnv("GPIOBELL_METRICS_BIND", ""),
	}

	var err error
	if cfg.Bounce, err = getEnvDuration("GPIOBELL_BOUNCE", 200*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = getEnvDuration("GPIOBELL_POLL", 10*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.StopTimeout, err = getEnvDuration("GPIOBELL_STOP_TIMEOUT", 2*time.Second); err != nil {
		return nil, err
	}

	if cfg.AudioRoot == "" {
		return nil, fmt.Errorf("GPIOBELL_AUDIO_ROOT must not be empty")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("GPIOBELL_POLL must be positive, got %s", cfg.PollInterval)
	}
	if cfg.Bounce < 0 || cfg.StopTimeout < 0 {
		return nil, fmt.Errorf("GPIOBELL_BOUNCE and GPIOBELL_STOP_TIMEOUT must not be negative")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "true" || v == "1" || v == "yes" {
			return true
		}
		if v == "false" || v == "0" || v == "no" {
			return false
		}
	}
	return def
}

// getEnvDuration accepts Go durations ("250ms") or bare milliseconds ("200").
func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
