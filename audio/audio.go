package audio

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

var (
	// ErrUnsupportedFormat is returned for clips that are neither WAV nor MP3.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrInvalidWAV is returned when a .wav file has no valid RIFF/WAVE header.
	ErrInvalidWAV = errors.New("invalid wav file")
)

// Clip is decoded PCM audio, interleaved 16-bit samples
type Clip struct {
	SampleRate int
	Channels   int
	Samples    []int16
}

// Frames returns the number of sample frames (one sample per channel).
func (c *Clip) Frames() int {
	if c.Channels <= 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

func (c *Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.Frames()) * time.Second / time.Duration(c.SampleRate)
}

// Stereo converts the clip to float frames in [-1, 1). Mono is duplicated
// to both channels, extra channels are dropped.
func (c *Clip) Stereo() [][2]float64 {
	frames := make([][2]float64, c.Frames())
	for i := range frames {
		base := i * c.Channels
		left := float64(c.Samples[base]) / 32768.0
		right := left
		if c.Channels > 1 {
			right = float64(c.Samples[base+1]) / 32768.0
		}
		frames[i] = [2]float64{left, right}
	}
	return frames
}

// Decoder reads clips from a filesystem
type Decoder struct {
	fs afero.Fs
}

// NewDecoder creates a decoder reading through fs. A nil fs means the OS filesystem.
func NewDecoder(fs afero.Fs) *Decoder {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Decoder{fs: fs}
}

// Decode reads and decodes the whole clip at path.
func (d *Decoder) Decode(path string) (*Clip, error) {
	return d.DecodeContext(context.Background(), path)
}

// DecodeContext is Decode that gives up with ctx.Err() once ctx is done,
// checking between chunks of samples.
func (d *Decoder) DecodeContext(ctx context.Context, path string) (*Clip, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".wav" && ext != ".mp3" {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}

	f, err := d.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open clip: %w", err)
	}
	defer f.Close()

	var clip *Clip
	switch ext {
	case ".wav":
		clip, err = decodeWAV(ctx, f)
	case ".mp3":
		clip, err = decodeMP3(ctx, f)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return clip, nil
}

// Duration decodes the clip at path and returns its duration.
func (d *Decoder) Duration(path string) (time.Duration, error) {
	clip, err := d.Decode(path)
	if err != nil {
		return 0, err
	}
	return clip.Duration(), nil
}
