// ABOUTME: FLAC file source
// ABOUTME: Decodes FLAC frames to interleaved int32 samples with mewkiz/flac
package decode

import (
	"errors"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/audioout/pkg/audio"
	"github.com/mewkiz/flac"
)

// FLACSource decodes a FLAC stream frame by frame
type FLACSource struct {
	rc      io.ReadCloser
	stream  *flac.Stream
	format  audio.Format
	pending []int32
	eof     bool
}

// NewFLACSource decodes FLAC from rc; Close closes rc
func NewFLACSource(rc io.ReadCloser) (*FLACSource, error) {
	stream, err := flac.New(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse flac stream: %w", err)
	}

	return &FLACSource{
		rc:     rc,
		stream: stream,
		format: audio.Format{
			Codec:      audio.CodecPCM,
			SampleRate: int(stream.Info.SampleRate),
			Channels:   int(stream.Info.NChannels),
			BitDepth:   int(stream.Info.BitsPerSample),
		},
	}, nil
}

// Format returns the decoded format
func (s *FLACSource) Format() audio.Format {
	return s.format
}

// ReadSamples interleaves the subframes of each decoded frame
func (s *FLACSource) ReadSamples(dst []int32) (int, error) {
	for len(s.pending) == 0 {
		if s.eof {
			return 0, io.EOF
		}
		if err := s.next(); err != nil {
			return 0, err
		}
	}

	n := copy(dst, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *FLACSource) next() error {
	frame, err := s.stream.ParseNext()
	if errors.Is(err, io.EOF) {
		s.eof = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("flac decode error: %w", err)
	}

	channels := len(frame.Subframes)
	if channels == 0 {
		return nil
	}
	frames := len(frame.Subframes[0].Samples)
	bits := s.format.BitDepth

	out := make([]int32, frames*channels)
	for ch, sub := range frame.Subframes {
		for i := 0; i < frames && i < len(sub.Samples); i++ {
			out[i*channels+ch] = scaleTo24(sub.Samples[i], bits)
		}
	}
	s.pending = out
	return nil
}

// Close releases the underlying reader
func (s *FLACSource) Close() error {
	return s.rc.Close()
}
