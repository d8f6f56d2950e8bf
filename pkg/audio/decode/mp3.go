// ABOUTME: MP3 file source
// ABOUTME: Decodes MP3 to int32 samples with go-mp3 (always 16-bit stereo)
package decode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/audioout/pkg/audio"
	"github.com/hajimehoshi/go-mp3"
)

// MP3Source decodes an MP3 stream
type MP3Source struct {
	rc      io.ReadCloser
	decoder *mp3.Decoder
	format  audio.Format
	buf     []byte
	eof     bool
}

// NewMP3Source decodes MP3 from rc; Close closes rc
func NewMP3Source(rc io.ReadCloser) (*MP3Source, error) {
	decoder, err := mp3.NewDecoder(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to create mp3 decoder: %w", err)
	}

	return &MP3Source{
		rc:      rc,
		decoder: decoder,
		format: audio.Format{
			Codec:      audio.CodecPCM,
			SampleRate: decoder.SampleRate(),
			Channels:   2,
			BitDepth:   16,
		},
	}, nil
}

// Format returns the decoded format
func (s *MP3Source) Format() audio.Format {
	return s.format
}

// ReadSamples converts decoded int16 bytes to int32 samples
func (s *MP3Source) ReadSamples(dst []int32) (int, error) {
	if s.eof {
		return 0, io.EOF
	}

	need := len(dst) * 2
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	buf := s.buf[:need]

	n, err := io.ReadFull(s.decoder, buf)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		s.eof = true
	case err != nil:
		return 0, fmt.Errorf("mp3 decode error: %w", err)
	}

	numSamples := n / 2
	for i := 0; i < numSamples; i++ {
		dst[i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(buf[i*2:])))
	}
	if numSamples == 0 && s.eof {
		return 0, io.EOF
	}
	return numSamples, nil
}

// Close releases the underlying reader
func (s *MP3Source) Close() error {
	return s.rc.Close()
}
