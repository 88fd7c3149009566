package sound

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/d1nch8g/gpiobell/audio"
)

const (
	BackendPortaudio = "portaudio"
	BackendBeep      = "beep"
	BackendCommand   = "command"
)

// Config selects and tunes a playback backend
type Config struct {
	Backend         string
	FramesPerBuffer int
	SampleRate      int
	BufferDuration  time.Duration
	Command         string
}

// New builds the backend named by cfg.Backend. Decoding backends read
// clips through fs. The returned device is not initialized yet.
func New(cfg Config, fs afero.Fs, logger zerolog.Logger) (Device, error) {
	decoder := audio.NewDecoder(fs)

	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendPortaudio, "":
		return NewPortaudioPlayer(PortaudioConfig{FramesPerBuffer: cfg.FramesPerBuffer}, decoder, logger), nil
	case BackendBeep:
		return NewBeepPlayer(BeepConfig{SampleRate: cfg.SampleRate, BufferDuration: cfg.BufferDuration}, decoder, logger), nil
	case BackendCommand:
		return NewCommandPlayer(cfg.Command, logger)
	default:
		return nil, fmt.Errorf("unknown playback backend %q", cfg.Backend)
	}
}
