// ABOUTME: Sample-to-byte stream adapter
// ABOUTME: Turns any int32 sample source into an io.Reader of encoded PCM
package encode

import (
	"errors"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/audioout/pkg/audio"
)

// SampleReader produces interleaved int32 samples in 24-bit range
type SampleReader interface {
	ReadSamples(dst []int32) (int, error)
}

// PCMStream reads samples from a SampleReader and serves them as PCM bytes
type PCMStream struct {
	src     SampleReader
	enc     *PCMEncoder
	format  audio.Format
	samples []int32
	pending []byte
	err     error
}

// NewPCMStream returns a reader producing src's samples in format.
// The sample rate and channel count of src must already match format.
func NewPCMStream(src SampleReader, format audio.Format) (*PCMStream, error) {
	enc, err := NewPCM(format)
	if err != nil {
		return nil, err
	}
	if format.Channels <= 0 {
		return nil, fmt.Errorf("invalid channel count: %d", format.Channels)
	}

	// 4096 frames per refill
	return &PCMStream{
		src:     src,
		enc:     enc.(*PCMEncoder),
		format:  format,
		samples: make([]int32, 4096*format.Channels),
	}, nil
}

// Format returns the byte format produced by the stream
func (s *PCMStream) Format() audio.Format {
	return s.format
}

func (s *PCMStream) Read(p []byte) (int, error) {
	for len(s.pending) == 0 {
		if s.err != nil {
			return 0, s.err
		}

		n, err := s.src.ReadSamples(s.samples)
		if n > 0 {
			buf := make([]byte, n*s.format.BytesPerSample())
			s.enc.encodeInto(buf, s.samples[:n])
			s.pending = buf
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				err = fmt.Errorf("sample source: %w", err)
			}
			s.err = err
		}
		if n == 0 && err == nil {
			return 0, nil
		}
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}
