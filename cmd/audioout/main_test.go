// ABOUTME: Tests for the audioout command line
// ABOUTME: Runs commands end to end against the null backend with an isolated config
package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Resonate-Protocol/audioout/pkg/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AUDIOOUT_CONFIG_HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", dir)
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	a := &app{stdout: &stdout, stderr: &stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	err := root.Execute()
	a.close()
	if err != nil {
		t.Logf("stderr: %s", stderr.String())
	}
	return stdout.String(), err
}

func TestVersionCommand(t *testing.T) {
	isolateConfig(t)
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "audioout")
	assert.Contains(t, out, "null")
}

func TestToneOnNullBackend(t *testing.T) {
	isolateConfig(t)
	start := time.Now()
	_, err := run(t, "tone", "-b", "null", "--duration", "100ms", "--buffer", "40", "--notify", "20")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond, "null device plays in real time")
}

func TestToneRejectsBadFrequency(t *testing.T) {
	isolateConfig(t)
	_, err := run(t, "tone", "-b", "null", "--frequency", "30000", "--duration", "10ms")
	assert.Error(t, err)
}

func TestPlayRawFile(t *testing.T) {
	isolateConfig(t)
	format := audio.DefaultFormat()
	path := filepath.Join(t.TempDir(), "clip.raw")
	require.NoError(t, os.WriteFile(path, make([]byte, format.BytesForDuration(100*time.Millisecond)), 0o600))

	_, err := run(t, "play", path, "-b", "null", "--buffer", "40")
	require.NoError(t, err)
}

func TestPlayRawFileResampled(t *testing.T) {
	isolateConfig(t)
	t.Setenv("AUDIOOUT_SAMPLE_RATE", "44100")
	format := audio.DefaultFormat()
	format.SampleRate = 44100
	path := filepath.Join(t.TempDir(), "clip.pcm")
	require.NoError(t, os.WriteFile(path, make([]byte, format.BytesForDuration(50*time.Millisecond)), 0o600))

	_, err := run(t, "play", path, "-b", "null", "--resample", "48000")
	require.NoError(t, err)
}

type fakeBuffer struct{ free, size int }

func (f fakeBuffer) BytesFree() int  { return f.free }
func (f fakeBuffer) BufferSize() int { return f.size }

func TestRingEmpty(t *testing.T) {
	tests := []struct {
		name string
		buf  fakeBuffer
		want bool
	}{
		{"drained", fakeBuffer{free: 19200, size: 19200}, true},
		{"tail still queued", fakeBuffer{free: 15360, size: 19200}, false},
		{"full", fakeBuffer{free: 0, size: 19200}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ringEmpty(tt.buf))
		})
	}
}

func TestPlayRawFilePlaysTail(t *testing.T) {
	isolateConfig(t)
	// 300ms, longer than the default 200ms buffer
	path := filepath.Join(t.TempDir(), "tail.raw")
	require.NoError(t, os.WriteFile(path, make([]byte, audio.DefaultFormat().BytesForDuration(300*time.Millisecond)), 0o600))

	start := time.Now()
	_, err := run(t, "play", "-b", "null", path)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 250*time.Millisecond)
}

func TestPlayMissingFile(t *testing.T) {
	isolateConfig(t)
	_, err := run(t, "play", filepath.Join(t.TempDir(), "missing.mp3"), "-b", "null")
	assert.Error(t, err)
}

func TestPlayUnsupportedFile(t *testing.T) {
	isolateConfig(t)
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))
	_, err := run(t, "play", path, "-b", "null")
	assert.ErrorContains(t, err, "unsupported audio file")
}

func TestPlayUnknownBackend(t *testing.T) {
	isolateConfig(t)
	_, err := run(t, "tone", "-b", "nope", "--duration", "10ms")
	assert.ErrorContains(t, err, "failed to start output")
}

func TestConfigShowLayersEnvironment(t *testing.T) {
	isolateConfig(t)
	t.Setenv("AUDIOOUT_VOLUME", "0.3")
	out, err := run(t, "config", "show", "-b", "oto")
	require.NoError(t, err)
	assert.Contains(t, out, "volume: 0.3")
	assert.Contains(t, out, "backend: oto")
}

func TestConfigInitAndLoad(t *testing.T) {
	dir := isolateConfig(t)
	out, err := run(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(dir, "audioout.yml"))

	_, err = run(t, "config", "init")
	assert.Error(t, err, "existing file is kept")

	out, err = run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "# loaded from "+filepath.Join(dir, "audioout.yml"))
}

func TestConfigPath(t *testing.T) {
	dir := isolateConfig(t)
	out, err := run(t, "config", "path")
	require.NoError(t, err)
	assert.Contains(t, out, dir)
}

func TestInvalidConfigFails(t *testing.T) {
	isolateConfig(t)
	t.Setenv("AUDIOOUT_BIT_DEPTH", "12")
	_, err := run(t, "version")
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestDevicesJSON(t *testing.T) {
	isolateConfig(t)
	out, err := run(t, "devices", "-b", "null", "-o", "json")
	require.NoError(t, err)

	var devices []deviceView
	require.NoError(t, json.Unmarshal([]byte(out), &devices))
	require.NotEmpty(t, devices)
	for _, d := range devices {
		assert.Equal(t, "null", d.Backend)
	}
}

func TestWriteDevicesFormats(t *testing.T) {
	devices := []deviceView{{Backend: "null", ID: "null", Name: "Null output", Default: true, Properties: map[string]string{"b": "2", "a": "1"}}}

	var buf bytes.Buffer
	require.NoError(t, writeDevices(&buf, "table", devices, []string{"malgo", "null"}))
	assert.Contains(t, buf.String(), "Null output")
	assert.Contains(t, buf.String(), "a=1 b=2")
	assert.Contains(t, buf.String(), "Backends: malgo, null")

	buf.Reset()
	require.NoError(t, writeDevices(&buf, "yaml", devices, nil))
	assert.Contains(t, buf.String(), "backend: null")

	assert.Error(t, writeDevices(&buf, "xml", devices, nil))
}

func TestManPage(t *testing.T) {
	isolateConfig(t)
	out, err := run(t, "man")
	require.NoError(t, err)
	assert.Contains(t, out, ".SH")
	assert.Contains(t, out, "AUDIOOUT_")
}
