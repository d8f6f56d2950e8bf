// ABOUTME: Raw PCM file source
// ABOUTME: Reads headerless little endian PCM in a caller supplied format
package decode

import (
	"errors"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/audioout/pkg/audio"
)

// RawSource reads headerless PCM
type RawSource struct {
	rc      io.ReadCloser
	decoder Decoder
	format  audio.Format
	buf     []byte
	eof     bool
}

// NewRawSource reads PCM in format from rc; Close closes rc
func NewRawSource(rc io.ReadCloser, format audio.Format) (*RawSource, error) {
	if !format.IsValid() {
		return nil, fmt.Errorf("invalid raw format: %s", format)
	}
	decoder, err := NewPCM(format)
	if err != nil {
		return nil, err
	}
	return &RawSource{
		rc:      rc,
		decoder: decoder,
		format:  format,
	}, nil
}

// Format returns the raw format
func (s *RawSource) Format() audio.Format {
	return s.format
}

// ReadSamples reads whole samples; a trailing partial sample is dropped
func (s *RawSource) ReadSamples(dst []int32) (int, error) {
	if s.eof {
		return 0, io.EOF
	}

	need := len(dst) * s.format.BytesPerSample()
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}

	n, err := io.ReadFull(s.rc, s.buf[:need])
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		s.eof = true
	case err != nil:
		return 0, fmt.Errorf("raw read error: %w", err)
	}

	samples, _ := s.decoder.Decode(s.buf[:n])
	copy(dst, samples)
	if len(samples) == 0 && s.eof {
		return 0, io.EOF
	}
	return len(samples), nil
}

// Close releases the underlying reader
func (s *RawSource) Close() error {
	return s.rc.Close()
}
