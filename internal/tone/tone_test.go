// ABOUTME: Tests for the tone generator
// ABOUTME: Covers validation, waveform shape, channel duplication and finite durations
package tone

import (
	"io"
	"testing"
	"time"

	"github.com/Resonate-Protocol/audioout/pkg/audio"
	"github.com/Resonate-Protocol/audioout/pkg/audio/encode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stereo48k = audio.Format{Codec: audio.CodecPCM, SampleRate: 48000, Channels: 2, BitDepth: 16}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name      string
		format    audio.Format
		frequency float64
		amplitude float64
	}{
		{"zero rate", audio.Format{Channels: 2}, 440, 0.5},
		{"zero channels", audio.Format{SampleRate: 48000}, 440, 0.5},
		{"zero frequency", stereo48k, 0, 0.5},
		{"above nyquist", stereo48k, 24000, 0.5},
		{"negative amplitude", stereo48k, 440, -0.1},
		{"amplitude above one", stereo48k, 440, 1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.format, tt.frequency, tt.amplitude, 0)
			assert.Error(t, err)
		})
	}
}

func TestReadSamples_Waveform(t *testing.T) {
	// 12kHz at 48kHz: one cycle every four frames
	g, err := New(stereo48k, 12000, 1, 0)
	require.NoError(t, err)

	buf := make([]int32, 8*2)
	n, err := g.ReadSamples(buf)
	require.NoError(t, err)
	assert.Equal(t, 16, n)

	want := []int32{0, audio.Max24Bit, 0, -audio.Max24Bit}
	for frame := 0; frame < 8; frame++ {
		assert.InDelta(t, want[frame%4], buf[frame*2], 2, "frame %d", frame)
		assert.Equal(t, buf[frame*2], buf[frame*2+1], "channels differ at frame %d", frame)
	}
}

func TestReadSamples_Amplitude(t *testing.T) {
	g, err := New(stereo48k, 12000, 0.5, 0)
	require.NoError(t, err)

	buf := make([]int32, 4)
	_, err = g.ReadSamples(buf)
	require.NoError(t, err)
	assert.InDelta(t, audio.Max24Bit/2, buf[2], 2)
}

func TestReadSamples_FiniteDuration(t *testing.T) {
	g, err := New(stereo48k, DefaultFrequency, 0.5, 10*time.Millisecond)
	require.NoError(t, err)

	buf := make([]int32, 300*2)
	n, err := g.ReadSamples(buf)
	require.NoError(t, err)
	assert.Equal(t, 600, n)

	n, err = g.ReadSamples(buf)
	require.NoError(t, err)
	assert.Equal(t, 360, n, "480 frames total")
	assert.Equal(t, 10*time.Millisecond, g.Elapsed())

	n, err = g.ReadSamples(buf)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadSamples_PartialFrameBuffer(t *testing.T) {
	g, err := New(stereo48k, DefaultFrequency, 0.5, 0)
	require.NoError(t, err)

	n, err := g.ReadSamples(make([]int32, 5))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestGenerator_AsPCMStream(t *testing.T) {
	g, err := New(stereo48k, DefaultFrequency, 0.5, 20*time.Millisecond)
	require.NoError(t, err)

	stream, err := encode.NewPCMStream(g, stereo48k)
	require.NoError(t, err)

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Len(t, data, stereo48k.BytesForDuration(20*time.Millisecond))
}
