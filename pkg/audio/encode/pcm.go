// ABOUTME: PCM audio encoder
// ABOUTME: Encodes int32 samples to 8, 16, 24 or 32-bit little endian PCM bytes
package encode

import (
	"encoding/binary"
	"fmt"

	"github.com/Resonate-Protocol/audioout/pkg/audio"
)

// PCMEncoder encodes PCM audio
type PCMEncoder struct {
	bitDepth int
}

// NewPCM creates a new PCM encoder
func NewPCM(format audio.Format) (Encoder, error) {
	if format.Codec != audio.CodecPCM && format.Codec != "" {
		return nil, fmt.Errorf("invalid codec for PCM encoder: %s", format.Codec)
	}

	switch format.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 8, 16, 24, 32)", format.BitDepth)
	}

	return &PCMEncoder{
		bitDepth: format.BitDepth,
	}, nil
}

// Encode converts int32 samples to PCM bytes
func (e *PCMEncoder) Encode(samples []int32) ([]byte, error) {
	output := make([]byte, len(samples)*e.bitDepth/8)
	e.encodeInto(output, samples)
	return output, nil
}

func (e *PCMEncoder) encodeInto(output []byte, samples []int32) {
	switch e.bitDepth {
	case 8:
		// 8-bit PCM is unsigned with a 128 midpoint
		for i, sample := range samples {
			output[i] = byte(int(clamp24(sample)>>16) + 128)
		}
	case 16:
		for i, sample := range samples {
			binary.LittleEndian.PutUint16(output[i*2:], uint16(audio.SampleToInt16(clamp24(sample))))
		}
	case 24:
		for i, sample := range samples {
			b := audio.SampleTo24Bit(clamp24(sample))
			copy(output[i*3:], b[:])
		}
	case 32:
		// Left-justify the 24-bit value
		for i, sample := range samples {
			binary.LittleEndian.PutUint32(output[i*4:], uint32(clamp24(sample)<<8))
		}
	}
}

// Close releases resources
func (e *PCMEncoder) Close() error {
	return nil
}

func clamp24(sample int32) int32 {
	if sample > audio.Max24Bit {
		return audio.Max24Bit
	}
	if sample < audio.Min24Bit {
		return audio.Min24Bit
	}
	return sample
}
