// ABOUTME: Decoder and Source interface definitions
// ABOUTME: Packet decoders and streaming file sources share the int32 sample representation
package decode

import (
	"fmt"

	"github.com/Resonate-Protocol/audioout/pkg/audio"
)

// Decoder decodes audio packets to PCM int32 samples
type Decoder interface {
	// Decode converts encoded audio data to PCM samples
	Decode(data []byte) ([]int32, error)

	// Close releases decoder resources
	Close() error
}

// Source streams decoded samples from a file or stream
type Source interface {
	// Format describes the decoded stream; BitDepth is the source precision
	Format() audio.Format

	// ReadSamples fills dst with interleaved samples and returns io.EOF at the end
	ReadSamples(dst []int32) (int, error)

	// Close releases the source and its underlying file
	Close() error
}

// NewDecoder creates a packet decoder for the wire codec in format
func NewDecoder(format audio.Format) (Decoder, error) {
	switch format.Codec {
	case audio.CodecPCM, "":
		return NewPCM(format)
	case CodecOpus:
		return NewOpus(format)
	default:
		return nil, fmt.Errorf("unsupported codec: %s", format.Codec)
	}
}

// scaleTo24 shifts a sample of the given precision into 24-bit range
func scaleTo24(sample int32, bits int) int32 {
	switch {
	case bits == 24:
		return sample
	case bits < 24:
		return sample << uint(24-bits)
	default:
		return sample >> uint(bits-24)
	}
}
