package sound

import (
	"context"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/rs/zerolog"

	"github.com/d1nch8g/gpiobell/audio"
)

type BeepConfig struct {
	SampleRate     int
	BufferDuration time.Duration
}

// BeepPlayer plays clips through the beep speaker, resampling to the
// speaker rate when needed.
type BeepPlayer struct {
	config  BeepConfig
	decoder *audio.Decoder
	logger  zerolog.Logger
}

func NewBeepPlayer(config BeepConfig, decoder *audio.Decoder, logger zerolog.Logger) *BeepPlayer {
	if config.SampleRate <= 0 {
		config.SampleRate = 44100
	}
	if config.BufferDuration <= 0 {
		config.BufferDuration = 100 * time.Millisecond
	}
	return &BeepPlayer{
		config:  config,
		decoder: decoder,
		logger:  logger.With().Str("component", "beep").Logger(),
	}
}

func (p *BeepPlayer) Initialize() error {
	sr := beep.SampleRate(p.config.SampleRate)
	return speaker.Init(sr, sr.N(p.config.BufferDuration))
}

// Terminate drops everything still queued on the speaker.
func (p *BeepPlayer) Terminate() {
	speaker.Clear()
}

// Play queues the clip on the shared speaker mixer. Cancellation detaches
// only this clip's streamer; other queued streamers keep playing.
func (p *BeepPlayer) Play(ctx context.Context, clipPath string) error {
	clip, err := p.decoder.DecodeContext(ctx, clipPath)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var streamer beep.Streamer = &pcmStreamer{frames: clip.Stereo()}
	if clip.SampleRate != p.config.SampleRate {
		streamer = beep.Resample(4, beep.SampleRate(clip.SampleRate), beep.SampleRate(p.config.SampleRate), streamer)
	}
	ctrl := &beep.Ctrl{Streamer: streamer}

	done := make(chan struct{})
	speaker.Play(beep.Seq(ctrl, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Lock()
		ctrl.Streamer = nil
		speaker.Unlock()
		p.logger.Debug().Str("clip", clipPath).Msg("clip detached from speaker")
		return ctx.Err()
	}
}

// pcmStreamer streams decoded frames to the speaker.
type pcmStreamer struct {
	frames [][2]float64
	pos    int
}

func (s *pcmStreamer) Stream(samples [][2]float64) (int, bool) {
	if s.pos >= len(s.frames) {
		return 0, false
	}
	n := copy(samples, s.frames[s.pos:])
	s.pos += n
	return n, true
}

func (s *pcmStreamer) Err() error { return nil }
