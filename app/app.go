package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/d1nch8g/gpiobell/config"
	"github.com/d1nch8g/gpiobell/engine"
	"github.com/d1nch8g/gpiobell/gpio"
	"github.com/d1nch8g/gpiobell/playlist"
	"github.com/d1nch8g/gpiobell/sound"
	"github.com/d1nch8g/gpiobell/telemetry"
)

// Options replaces hardware dependencies. Zero values select the real
// GPIO chip, the configured sound backend and the OS filesystem.
type Options struct {
	Chip   gpio.Chip
	Device sound.Device
	Fs     afero.Fs
}

// App wires the GPIO watcher to the playback engine.
type App struct {
	cfg     *config.Config
	logger  zerolog.Logger
	metrics *telemetry.Metrics

	registry *playlist.Registry[int]
	device   sound.Device
	engine   *engine.Engine[int]
	watcher  *gpio.Watcher

	mu   sync.Mutex
	pins config.PinMap

	closeOnce sync.Once
	closeErr  error
}

// New initializes the audio device, arms every mapped line and registers
// its playlist. On error everything acquired so far is released.
func New(cfg *config.Config, pins config.PinMap, opts Options, logger zerolog.Logger) (*App, error) {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Chip == nil {
		opts.Chip = gpio.NewRPIOChip()
	}

	pull, err := gpio.ParsePull(cfg.Pull)
	if err != nil {
		return nil, err
	}

	device := opts.Device
	if device == nil {
		device, err = sound.New(sound.Config{
			Backend:         cfg.Backend,
			FramesPerBuffer: cfg.FramesPerBuffer,
			SampleRate:      cfg.SampleRate,
			Command:         cfg.PlayerCommand,
		}, opts.Fs, logger)
		if err != nil {
			return nil, err
		}
	}
	if err := device.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize audio backend: %w", err)
	}

	metrics := telemetry.New()
	registry := playlist.NewRegistry[int]()
	eng := engine.NewEngine(engine.EngineConfig{
		AudioRoot:   cfg.AudioRoot,
		StopTimeout: cfg.StopTimeout,
	}, registry, device, metrics, logger)

	watcher, err := gpio.NewWatcher(opts.Chip, gpio.WatcherConfig{
		Pull:         pull,
		Bounce:       cfg.Bounce,
		PollInterval: cfg.PollInterval,
	}, logger)
	if err != nil {
		device.Terminate()
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		logger:   logger.With().Str("component", "app").Logger(),
		metrics:  metrics,
		registry: registry,
		device:   device,
		engine:   eng,
		watcher:  watcher,
		pins:     config.PinMap{},
	}
	if err := a.ApplyPinMap(pins); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) Engine() *engine.Engine[int] { return a.engine }

// ApplyPinMap brings registered playlists and armed lines in line with m.
// Lines whose playlist is unchanged keep their cursor. If a step fails,
// the lines handled so far stay applied and are recorded as current.
func (a *App) ApplyPinMap(m config.PinMap) error {
	if err := m.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	applied := make(config.PinMap, len(a.pins))
	for pin, clips := range a.pins {
		applied[pin] = clips
	}
	defer func() { a.pins = applied }()

	for _, pin := range a.pins.Pins() {
		if _, ok := m[pin]; ok {
			continue
		}
		a.registry.Unregister(pin)
		delete(applied, pin)
		if _, err := a.watcher.Remove(pin); err != nil {
			a.logger.Warn().Err(err).Int("pin", pin).Msg("failed to release line")
		}
		a.logger.Info().Int("pin", pin).Msg("line removed")
	}

	for _, pin := range m.Pins() {
		clips := m[pin]
		if old, ok := a.pins[pin]; !ok || !slices.Equal(old, clips) {
			if err := a.engine.Register(pin, clips...); err != nil {
				return err
			}
		}
		if err := a.watcher.Add(pin); err != nil {
			// Registered but not armed: drop it so the record matches.
			a.registry.Unregister(pin)
			delete(applied, pin)
			return err
		}
		applied[pin] = clips
	}
	return nil
}

// Pins returns the pin map currently in effect.
func (a *App) Pins() config.PinMap {
	a.mu.Lock()
	defer a.mu.Unlock()

	pins := make(config.PinMap, len(a.pins))
	for pin, clips := range a.pins {
		pins[pin] = clips
	}
	return pins
}

// handle runs on the watcher goroutine for every accepted edge.
func (a *App) handle(pin int) {
	err := a.engine.Trigger(pin)
	switch {
	case err == nil:
	case errors.Is(err, playlist.ErrUnknownID):
		a.logger.Warn().Int("pin", pin).Msg("edge on unmapped line ignored")
	case errors.Is(err, engine.ErrClosed):
		a.logger.Debug().Int("pin", pin).Msg("edge after shutdown ignored")
	default:
		a.logger.Error().Err(err).Int("pin", pin).Msg("trigger failed")
	}
}

// Run watches the lines until ctx is done, then tears everything down.
// Cancellation is a clean exit even when teardown reports an error.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	defer wg.Wait()

	if a.cfg.MetricsBind != "" {
		srv := &http.Server{
			Addr:              a.cfg.MetricsBind,
			Handler:           a.metricsMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.logger.Info().Str("bind", a.cfg.MetricsBind).Msg("metrics server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if a.cfg.WatchPins && a.cfg.PinMapPath != "" {
		if _, err := os.Stat(a.cfg.PinMapPath); err == nil {
			pw := config.NewPinMapWatcher(a.cfg.PinMapPath, a.Pins(), a.ApplyPinMap, a.logger)
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := pw.Watch(ctx); err != nil {
					a.logger.Warn().Err(err).Msg("pin map watch stopped")
				}
			}()
		}
	}

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.logger.Debug().Err(err).Msg("sd_notify ready failed")
	}
	a.logger.Info().Ints("pins", a.watcher.Pins()).Msg("waiting for button presses")

	err := a.watcher.Watch(ctx, a.handle)

	if _, nerr := daemon.SdNotify(false, daemon.SdNotifyStopping); nerr != nil {
		a.logger.Debug().Err(nerr).Msg("sd_notify stopping failed")
	}
	cancel()
	closeErr := a.Close()

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(err, closeErr)
	}
	// Shutdown was requested; teardown problems are reported, not returned.
	if closeErr != nil {
		a.logger.Error().Err(closeErr).Msg("teardown incomplete")
	}
	return nil
}

func (a *App) metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	return mux
}

// Close stops playback, then releases the lines, then the audio device.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		var errs []error
		if err := a.engine.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := a.watcher.Close(); err != nil {
			errs = append(errs, err)
		}
		a.device.Terminate()
		a.closeErr = errors.Join(errs...)
		a.logger.Info().Msg("shut down")
	})
	return a.closeErr
}
