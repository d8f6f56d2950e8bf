// ABOUTME: Tests for configuration loading
// ABOUTME: Covers defaults, file and environment layering, flags, validation and reload
package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Resonate-Protocol/audioout/pkg/audio"
	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

// isolate points every config search path at an empty temp dir
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(HomeEnv, dir)
	t.Setenv("XDG_CONFIG_HOME", dir)
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, audio.DefaultFormat(), c.Format())
	assert.Equal(t, audio.DeviceInfo{}, c.DeviceInfo())
	assert.Equal(t, 200, c.BufferMs)
	assert.Equal(t, 1.0, c.Volume)
	assert.NotEmpty(t, c.Sink.Name)
}

func TestLoad_NoFile(t *testing.T) {
	isolate(t)

	l, err := NewLoader("", quietLogger())
	require.NoError(t, err)
	assert.Empty(t, l.FileUsed())

	c, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoad_FileFromSearchDir(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "audioout.yml"), "backend: null\nvolume: 0.5\nsink:\n  addr: \":9000\"\n")

	l, err := NewLoader("", quietLogger())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "audioout.yml"), l.FileUsed())

	c, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "null", c.Backend)
	assert.Equal(t, 0.5, c.Volume)
	assert.Equal(t, ":9000", c.Sink.Addr)
	assert.Equal(t, 200, c.BufferMs, "unset keys keep defaults")
	assert.Equal(t, audio.DeviceInfo{Backend: "null"}, c.DeviceInfo())
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	isolate(t)

	l, err := NewLoader(filepath.Join(t.TempDir(), "missing.yml"), quietLogger())
	require.NoError(t, err)
	c, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoad_MalformedFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "bad.yml")
	writeFile(t, path, "volume: [unterminated\n")

	_, err := NewLoader(path, quietLogger())
	assert.Error(t, err)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "audioout.yml")
	writeFile(t, path, "volume: 0.5\nbuffer_ms: 100\n")
	t.Setenv("AUDIOOUT_VOLUME", "0.25")
	t.Setenv("AUDIOOUT_SINK_NAME", "Garage")

	l, err := NewLoader(path, quietLogger())
	require.NoError(t, err)
	c, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, 0.25, c.Volume)
	assert.Equal(t, 100, c.BufferMs)
	assert.Equal(t, "Garage", c.Sink.Name)
}

func TestLoad_FlagOverridesWhenSet(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "audioout.yml")
	writeFile(t, path, "buffer_ms: 100\nbackend: oto\n")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("buffer", 0, "")
	flags.String("backend", "", "")
	require.NoError(t, flags.Parse([]string{"--buffer", "50"}))

	l, err := NewLoader(path, quietLogger())
	require.NoError(t, err)
	require.NoError(t, l.BindFlag("buffer_ms", flags.Lookup("buffer")))
	require.NoError(t, l.BindFlag("backend", flags.Lookup("backend")))
	assert.Error(t, l.BindFlag("device", flags.Lookup("nope")))

	c, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, 50, c.BufferMs)
	assert.Equal(t, "oto", c.Backend, "unchanged flag leaves the file value")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"bit depth", func(c *Config) { c.BitDepth = 12 }},
		{"sample rate", func(c *Config) { c.SampleRate = 0 }},
		{"negative buffer", func(c *Config) { c.BufferMs = -1 }},
		{"volume high", func(c *Config) { c.Volume = 1.5 }},
		{"volume low", func(c *Config) { c.Volume = -0.1 }},
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
		{"sink rate", func(c *Config) { c.Sink.SampleRate = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.modify(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLevel(t *testing.T) {
	c := Default()
	c.LogLevel = "debug"
	level, err := c.Level()
	require.NoError(t, err)
	assert.Equal(t, log.DebugLevel, level)
}

func TestSearchDirs_Order(t *testing.T) {
	home := t.TempDir()
	xdg := t.TempDir()
	t.Setenv(HomeEnv, home)
	t.Setenv("XDG_CONFIG_HOME", xdg)

	dirs, err := SearchDirs()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(dirs), 2)
	assert.Equal(t, home, dirs[0])
	assert.Equal(t, filepath.Join(xdg, "audioout"), dirs[1])
}

func TestWriteDefault(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "nested", "audioout.yml")

	require.NoError(t, WriteDefault(path))
	assert.Error(t, WriteDefault(path), "existing file is kept")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "AUDIOOUT_VOLUME")

	l, err := NewLoader(path, quietLogger())
	require.NoError(t, err)
	c, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestDefaultPath(t *testing.T) {
	dir := isolate(t)
	path, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "audioout.yml"), path)
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "audioout.yml")
	writeFile(t, path, "volume: 0.5\n")

	l, err := NewLoader(path, quietLogger())
	require.NoError(t, err)

	changes := make(chan Config, 8)
	l.Watch(func(c Config) { changes <- c })
	l.Watch(func(Config) { t.Error("second watch must be ignored") })

	// invalid edits are skipped, valid ones delivered
	writeFile(t, path, "volume: 7\n")
	writeFile(t, path, "volume: 0.75\n")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changes:
			if c.Volume == 0.75 {
				return
			}
		case <-deadline:
			t.Fatal("config change not delivered")
		}
	}
}

func TestWatch_NoFileIsNoop(t *testing.T) {
	isolate(t)
	l, err := NewLoader("", quietLogger())
	require.NoError(t, err)
	l.Watch(func(Config) { t.Error("unexpected reload") })
}
