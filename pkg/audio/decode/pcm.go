// ABOUTME: PCM audio decoder
// ABOUTME: Decodes 8, 16, 24 and 32-bit little endian PCM to int32 samples
package decode

import (
	"encoding/binary"
	"fmt"

	"github.com/Resonate-Protocol/audioout/pkg/audio"
)

// PCMDecoder decodes PCM audio
type PCMDecoder struct {
	bitDepth int
}

// NewPCM creates a new PCM decoder
func NewPCM(format audio.Format) (Decoder, error) {
	if format.Codec != audio.CodecPCM && format.Codec != "" {
		return nil, fmt.Errorf("invalid codec for PCM decoder: %s", format.Codec)
	}

	switch format.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 8, 16, 24, 32)", format.BitDepth)
	}

	return &PCMDecoder{
		bitDepth: format.BitDepth,
	}, nil
}

// Decode converts PCM bytes to int32 samples; a trailing partial sample is ignored
func (d *PCMDecoder) Decode(data []byte) ([]int32, error) {
	size := d.bitDepth / 8
	samples := make([]int32, len(data)/size)

	switch d.bitDepth {
	case 8:
		for i := range samples {
			samples[i] = (int32(data[i]) - 128) << 16
		}
	case 16:
		for i := range samples {
			samples[i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(data[i*2:])))
		}
	case 24:
		for i := range samples {
			samples[i] = audio.SampleFrom24Bit([3]byte{data[i*3], data[i*3+1], data[i*3+2]})
		}
	case 32:
		for i := range samples {
			samples[i] = int32(binary.LittleEndian.Uint32(data[i*4:])) >> 8
		}
	}
	return samples, nil
}

// Close releases resources
func (d *PCMDecoder) Close() error {
	return nil
}
