package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// go-mp3 always yields 16-bit little-endian stereo.
const mp3Channels = 2

// mp3Chunk is the number of PCM bytes decoded between cancellation checks.
const mp3Chunk = 64 * 1024

func decodeMP3(ctx context.Context, r io.Reader) (*Clip, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}

	var pcm bytes.Buffer
	if n := dec.Length(); n > 0 {
		pcm.Grow(int(n))
	}
	chunk := make([]byte, mp3Chunk)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := dec.Read(chunk)
		pcm.Write(chunk[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	return &Clip{
		SampleRate: dec.SampleRate(),
		Channels:   mp3Channels,
		Samples:    convertBytesToSamples(pcm.Bytes()),
	}, nil
}

func convertBytesToSamples(audioBytes []byte) []int16 {
	samples := make([]int16, len(audioBytes)/2)
	for i := 0; i < len(samples); i++ {
		// Convert little-endian bytes to int16
		samples[i] = int16(binary.LittleEndian.Uint16(audioBytes[i*2 : i*2+2]))
	}
	return samples
}
