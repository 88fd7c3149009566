package sound

import (
	"context"
	"fmt"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/d1nch8g/gpiobell/audio"
)

type PortaudioConfig struct {
	FramesPerBuffer int
}

// PortaudioPlayer decodes a clip and writes it to the default output device.
type PortaudioPlayer struct {
	config  PortaudioConfig
	decoder *audio.Decoder
	logger  zerolog.Logger
}

func NewPortaudioPlayer(config PortaudioConfig, decoder *audio.Decoder, logger zerolog.Logger) *PortaudioPlayer {
	if config.FramesPerBuffer <= 0 {
		config.FramesPerBuffer = GetDefaultConfig().FramesPerBuffer
	}
	return &PortaudioPlayer{
		config:  config,
		decoder: decoder,
		logger:  logger.With().Str("component", "portaudio").Logger(),
	}
}

func GetDefaultConfig() PortaudioConfig {
	return PortaudioConfig{
		FramesPerBuffer: 1024,
	}
}

func (p *PortaudioPlayer) Initialize() error {
	return portaudio.Initialize()
}

func (p *PortaudioPlayer) Terminate() {
	portaudio.Terminate()
}

// Play opens a stream matching the clip format and writes it buffer by
// buffer. Cancellation aborts the stream without draining queued buffers.
func (p *PortaudioPlayer) Play(ctx context.Context, clipPath string) error {
	clip, err := p.decoder.DecodeContext(ctx, clipPath)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	buffer := make([]int16, p.config.FramesPerBuffer*clip.Channels)
	stream, err := portaudio.OpenDefaultStream(
		0,
		clip.Channels,
		float64(clip.SampleRate),
		p.config.FramesPerBuffer,
		buffer,
	)
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start output stream: %w", err)
	}

	for offset := 0; offset < len(clip.Samples); offset += len(buffer) {
		select {
		case <-ctx.Done():
			_ = stream.Abort()
			return ctx.Err()
		default:
		}

		n := copy(buffer, clip.Samples[offset:])
		// Zero-fill remaining buffer
		for i := n; i < len(buffer); i++ {
			buffer[i] = 0
		}

		if err := stream.Write(); err != nil {
			if err == portaudio.OutputUnderflowed {
				p.logger.Debug().Str("clip", clipPath).Msg("output underflow")
				continue
			}
			_ = stream.Abort()
			return fmt.Errorf("failed to write audio: %w", err)
		}
	}

	return stream.Stop()
}
