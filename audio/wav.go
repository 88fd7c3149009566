package audio

import (
	"context"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavChunk is the number of samples decoded between cancellation checks.
const wavChunk = 16384

func decodeWAV(ctx context.Context, r io.ReadSeeker) (*Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrInvalidWAV
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, err
	}
	format := dec.Format()
	if format == nil || format.NumChannels <= 0 {
		return nil, ErrInvalidWAV
	}
	depth := int(dec.SampleBitDepth())

	buf := &goaudio.IntBuffer{Format: format, Data: make([]int, wavChunk)}
	var samples []int16
	if n := dec.PCMLen(); n > 0 && depth >= 8 {
		samples = make([]int16, 0, n/int64((depth+7)/8))
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := dec.PCMBuffer(buf)
		if err != nil {
			return nil, err
		}
		if n <= 0 {
			break
		}
		for _, v := range buf.Data[:n] {
			s, err := toInt16(v, depth)
			if err != nil {
				return nil, err
			}
			samples = append(samples, s)
		}
	}

	return &Clip{
		SampleRate: format.SampleRate,
		Channels:   format.NumChannels,
		Samples:    samples,
	}, nil
}

// toInt16 scales a sample of the given bit depth to 16 bits.
// 8-bit WAV samples are unsigned.
func toInt16(v, depth int) (int16, error) {
	switch depth {
	case 8:
		return int16((v - 128) << 8), nil
	case 16:
		return int16(v), nil
	case 24:
		return int16(v >> 8), nil
	case 32:
		return int16(v >> 16), nil
	default:
		return 0, fmt.Errorf("unsupported bit depth %d", depth)
	}
}
