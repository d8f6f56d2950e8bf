// ABOUTME: WAV and Ogg Vorbis file sources
// ABOUTME: Adapts beep streamers (float64 stereo frames) to int32 samples
package decode

import (
	"fmt"
	"io"

	"github.com/Resonate-Protocol/audioout/pkg/audio"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// BeepSource reads any beep streamer
type BeepSource struct {
	streamer beep.StreamSeekCloser
	format   audio.Format
	frames   [][2]float64
	eof      bool
}

// NewWAVSource decodes WAV from rc; Close closes rc
func NewWAVSource(rc io.ReadCloser) (*BeepSource, error) {
	streamer, format, err := wav.Decode(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode wav: %w", err)
	}
	return newBeepSource(streamer, format), nil
}

// NewVorbisSource decodes Ogg Vorbis from rc; Close closes rc
func NewVorbisSource(rc io.ReadCloser) (*BeepSource, error) {
	streamer, format, err := vorbis.Decode(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode vorbis: %w", err)
	}
	return newBeepSource(streamer, format), nil
}

func newBeepSource(streamer beep.StreamSeekCloser, format beep.Format) *BeepSource {
	channels := format.NumChannels
	if channels < 1 || channels > 2 {
		// beep mixes everything down to stereo frames
		channels = 2
	}
	bits := format.Precision * 8
	if bits == 0 {
		bits = 16
	}

	return &BeepSource{
		streamer: streamer,
		format: audio.Format{
			Codec:      audio.CodecPCM,
			SampleRate: int(format.SampleRate),
			Channels:   channels,
			BitDepth:   bits,
		},
	}
}

// Format returns the decoded format
func (s *BeepSource) Format() audio.Format {
	return s.format
}

// ReadSamples converts float frames in [-1, 1] to 24-bit samples
func (s *BeepSource) ReadSamples(dst []int32) (int, error) {
	if s.eof {
		return 0, io.EOF
	}

	channels := s.format.Channels
	want := len(dst) / channels
	if want == 0 {
		return 0, nil
	}
	if cap(s.frames) < want {
		s.frames = make([][2]float64, want)
	}
	frames := s.frames[:want]

	n, ok := s.streamer.Stream(frames)
	if !ok {
		if err := s.streamer.Err(); err != nil {
			return 0, fmt.Errorf("stream decode error: %w", err)
		}
		s.eof = true
	}

	for i := 0; i < n; i++ {
		for ch := 0; ch < channels; ch++ {
			dst[i*channels+ch] = floatTo24(frames[i][ch])
		}
	}
	if n == 0 && s.eof {
		return 0, io.EOF
	}
	return n * channels, nil
}

// Close releases the streamer and the underlying reader
func (s *BeepSource) Close() error {
	return s.streamer.Close()
}

func floatTo24(v float64) int32 {
	if v > 1 {
		v = 1
	}
	if v < -1 {
		v = -1
	}
	return int32(v * audio.Max24Bit)
}
