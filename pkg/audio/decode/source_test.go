// ABOUTME: Tests for file sources
// ABOUTME: Covers raw and WAV round trips, extension dispatch and bad input
package decode

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/Resonate-Protocol/audioout/pkg/audio"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, src Source) []int32 {
	t.Helper()
	var out []int32
	buf := make([]int32, 1000)
	for {
		n, err := src.ReadSamples(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
	}
}

func TestOpen_Raw(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.pcm")
	data := make([]byte, 4*100+1) // trailing partial sample
	for i := 0; i < 200; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(int16(i*10)))
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))

	src, err := Open(path)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, audio.DefaultFormat(), src.Format())
	samples := readAll(t, src)
	require.Len(t, samples, 200)
	assert.Equal(t, audio.SampleFromInt16(10), samples[1])
}

func TestOpen_WAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	const frames = 4410
	pos := 0
	tone := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if pos >= frames {
			return 0, false
		}
		n := 0
		for n < len(samples) && pos < frames {
			v := 0.5 * math.Sin(2*math.Pi*440*float64(pos)/44100)
			samples[n] = [2]float64{v, v}
			n++
			pos++
		}
		return n, true
	})
	require.NoError(t, wav.Encode(f, tone, beep.Format{SampleRate: 44100, NumChannels: 2, Precision: 2}))
	require.NoError(t, f.Close())

	src, err := Open(path)
	require.NoError(t, err)
	defer src.Close()

	format := src.Format()
	assert.Equal(t, 44100, format.SampleRate)
	assert.Equal(t, 2, format.Channels)
	assert.Equal(t, 16, format.BitDepth)

	samples := readAll(t, src)
	assert.Len(t, samples, frames*2)

	var peak int32
	for _, s := range samples {
		if s > peak {
			peak = s
		}
	}
	// half scale sine
	assert.InDelta(t, float64(audio.Max24Bit)/2, float64(peak), float64(audio.Max24Bit)/100)
}

func TestOpen_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	_, err := Open(path)
	assert.ErrorIs(t, err, ErrUnsupportedFile)
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.mp3"))
	assert.Error(t, err)
}

func TestSources_RejectGarbage(t *testing.T) {
	garbage := func() io.ReadCloser {
		return io.NopCloser(bytes.NewReader(bytes.Repeat([]byte{0x42}, 64)))
	}

	_, err := NewFLACSource(garbage())
	assert.Error(t, err, "flac")

	_, err = NewWAVSource(garbage())
	assert.Error(t, err, "wav")

	_, err = NewVorbisSource(garbage())
	assert.Error(t, err, "vorbis")
}

func TestNewRawSource_InvalidFormat(t *testing.T) {
	_, err := NewRawSource(io.NopCloser(bytes.NewReader(nil)), audio.Format{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 12})
	assert.Error(t, err)
}

func TestScaleTo24(t *testing.T) {
	assert.Equal(t, int32(0x7F00), scaleTo24(0x7F, 16))
	assert.Equal(t, int32(0x123456), scaleTo24(0x123456, 24))
	assert.Equal(t, int32(0x123456), scaleTo24(0x12345600, 32))
}
