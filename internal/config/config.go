// ABOUTME: Configuration for the audioout CLI and sink
// ABOUTME: Layers defaults, a YAML file, AUDIOOUT_ environment variables and flags with viper
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/Resonate-Protocol/audioout/internal/version"
	"github.com/Resonate-Protocol/audioout/pkg/audio"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// FileName is the config file name without extension
	FileName = "audioout"
	// EnvPrefix prefixes environment overrides, e.g. AUDIOOUT_VOLUME
	EnvPrefix = "audioout"
	// HomeEnv points at a directory searched before the defaults
	HomeEnv = "AUDIOOUT_CONFIG_HOME"
)

// Config is the resolved configuration
type Config struct {
	Backend    string  `mapstructure:"backend" yaml:"backend"`
	Device     string  `mapstructure:"device" yaml:"device"`
	SampleRate int     `mapstructure:"sample_rate" yaml:"sample_rate"`
	Channels   int     `mapstructure:"channels" yaml:"channels"`
	BitDepth   int     `mapstructure:"bit_depth" yaml:"bit_depth"`
	BufferMs   int     `mapstructure:"buffer_ms" yaml:"buffer_ms"`
	NotifyMs   int     `mapstructure:"notify_ms" yaml:"notify_ms"`
	Volume     float64 `mapstructure:"volume" yaml:"volume"`
	LogLevel   string  `mapstructure:"log_level" yaml:"log_level"`
	Sink       Sink    `mapstructure:"sink" yaml:"sink"`
}

// Sink configures the network sink command
type Sink struct {
	Name       string `mapstructure:"name" yaml:"name"`
	Addr       string `mapstructure:"addr" yaml:"addr"`
	MDNS       bool   `mapstructure:"mdns" yaml:"mdns"`
	SampleRate int    `mapstructure:"sample_rate" yaml:"sample_rate"`
	BufferMs   int    `mapstructure:"buffer_ms" yaml:"buffer_ms"`
	StateMs    int    `mapstructure:"state_ms" yaml:"state_ms"`
}

// Default returns the built-in configuration
func Default() Config {
	f := audio.DefaultFormat()
	return Config{
		SampleRate: f.SampleRate,
		Channels:   f.Channels,
		BitDepth:   f.BitDepth,
		BufferMs:   200,
		NotifyMs:   1000,
		Volume:     1,
		LogLevel:   "info",
		Sink: Sink{
			Name:     defaultSinkName(),
			Addr:     ":8928",
			MDNS:     true,
			BufferMs: 200,
			StateMs:  1000,
		},
	}
}

func defaultSinkName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return version.Product + " sink"
	}
	return host
}

// Format returns the configured output format
func (c Config) Format() audio.Format {
	return audio.Format{
		Codec:      audio.CodecPCM,
		SampleRate: c.SampleRate,
		Channels:   c.Channels,
		BitDepth:   c.BitDepth,
	}
}

// DeviceInfo returns the configured device, or the zero value for the system default
func (c Config) DeviceInfo() audio.DeviceInfo {
	if c.Backend == "" && c.Device == "" {
		return audio.DeviceInfo{}
	}
	return audio.DeviceInfo{Backend: c.Backend, ID: c.Device}
}

// Level parses LogLevel
func (c Config) Level() (log.Level, error) {
	return log.ParseLevel(c.LogLevel)
}

// Validate reports the first invalid setting
func (c Config) Validate() error {
	if !c.Format().IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format())
	}
	if c.BufferMs < 0 {
		return fmt.Errorf("buffer_ms must not be negative: %d", c.BufferMs)
	}
	if c.Volume < 0 || c.Volume > 1 {
		return fmt.Errorf("volume must be within [0, 1]: %v", c.Volume)
	}
	if _, err := c.Level(); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	if c.Sink.SampleRate < 0 {
		return fmt.Errorf("sink.sample_rate must not be negative: %d", c.Sink.SampleRate)
	}
	return nil
}

// SearchDirs lists the directories searched for the config file, most specific first
func SearchDirs() ([]string, error) {
	scope := gap.NewScope(gap.User, version.Product)
	dirs, err := scope.ConfigDirs()
	if err != nil {
		return nil, fmt.Errorf("failed to find config directories: %w", err)
	}
	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, version.Product)}, dirs...)
	}
	if c := os.Getenv(HomeEnv); c != "" {
		dirs = append([]string{c}, dirs...)
	}
	return slices.Compact(dirs), nil
}

// Loader reads configuration and keeps watching it
type Loader struct {
	v      *viper.Viper
	logger *log.Logger

	mu      sync.Mutex
	watched bool
}

// NewLoader reads file, or searches the default directories when file is empty.
// A missing file is not an error.
func NewLoader(file string, logger *log.Logger) (*Loader, error) {
	if logger == nil {
		logger = log.Default()
	}
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		path, err := homedir.Expand(file)
		if err != nil {
			return nil, fmt.Errorf("invalid config path %s: %w", file, err)
		}
		v.SetConfigFile(path)
	} else {
		dirs, err := SearchDirs()
		if err != nil {
			return nil, err
		}
		for _, dir := range dirs {
			v.AddConfigPath(dir)
		}
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
	}

	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		logger.Debug("Using configuration file", "path", v.ConfigFileUsed())
	case errors.As(err, &notFound), file != "" && errors.Is(err, os.ErrNotExist):
		logger.Debug("No configuration file, using defaults")
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return &Loader{v: v, logger: logger}, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("backend", d.Backend)
	v.SetDefault("device", d.Device)
	v.SetDefault("sample_rate", d.SampleRate)
	v.SetDefault("channels", d.Channels)
	v.SetDefault("bit_depth", d.BitDepth)
	v.SetDefault("buffer_ms", d.BufferMs)
	v.SetDefault("notify_ms", d.NotifyMs)
	v.SetDefault("volume", d.Volume)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("sink.name", d.Sink.Name)
	v.SetDefault("sink.addr", d.Sink.Addr)
	v.SetDefault("sink.mdns", d.Sink.MDNS)
	v.SetDefault("sink.sample_rate", d.Sink.SampleRate)
	v.SetDefault("sink.buffer_ms", d.Sink.BufferMs)
	v.SetDefault("sink.state_ms", d.Sink.StateMs)
}

// BindFlag lets a command line flag override key when the flag is set
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("no flag for %s", key)
	}
	return l.v.BindPFlag(key, flag)
}

// FileUsed returns the config file that was read, if any
func (l *Loader) FileUsed() string {
	return l.v.ConfigFileUsed()
}

// Load resolves and validates the current configuration
func (l *Loader) Load() (Config, error) {
	var c Config
	if err := l.v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Watch calls fn with the new configuration whenever the config file changes.
// Invalid edits are logged and skipped. Watching without a config file is a no-op.
func (l *Loader) Watch(fn func(Config)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.watched {
		return
	}
	l.watched = true

	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		c, err := l.Load()
		if err != nil {
			l.logger.Warn("Ignoring invalid config change", "path", e.Name, "error", err)
			return
		}
		l.logger.Debug("Config reloaded", "path", e.Name)
		fn(c)
	})
	l.v.WatchConfig()
}

// WriteDefault writes the built-in configuration to path unless a file already exists
func WriteDefault(path string) error {
	path, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("invalid config path: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := Marshal(Default())
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Marshal renders c as YAML with a short header
func Marshal(c Config) ([]byte, error) {
	body, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	header := "# " + version.Product + " configuration\n" +
		"# Environment variables override these values, e.g. AUDIOOUT_VOLUME=0.5 or AUDIOOUT_SINK_ADDR=:9000\n"
	return append([]byte(header), body...), nil
}

// DefaultPath is where WriteDefault puts a new file when no path is given
func DefaultPath() (string, error) {
	dirs, err := SearchDirs()
	if err != nil {
		return "", err
	}
	if len(dirs) == 0 {
		return "", errors.New("no config directory available")
	}
	return filepath.Join(dirs[0], FileName+".yml"), nil
}
