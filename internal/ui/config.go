// ABOUTME: Environment settings for the status view
// ABOUTME: Parsed with caarlos0/env so they need no flags
package ui

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config contains TUI-specific configuration.
type Config struct {
	// Refresh is how often counters are sampled
	Refresh time.Duration `env:"AUDIOOUT_TUI_REFRESH" envDefault:"250ms"`
	// VolumeStep is the change per key press, in percent
	VolumeStep int `env:"AUDIOOUT_TUI_VOLUME_STEP" envDefault:"5"`
	// AltScreen uses the terminal's alternate screen
	AltScreen bool `env:"AUDIOOUT_TUI_ALT_SCREEN" envDefault:"true"`
	// Title is shown in the header
	Title string `env:"AUDIOOUT_TUI_TITLE" envDefault:"audioout"`
}

// LoadConfig reads the environment
func LoadConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, err
	}
	if cfg.Refresh <= 0 {
		cfg.Refresh = 250 * time.Millisecond
	}
	if cfg.VolumeStep <= 0 || cfg.VolumeStep > 100 {
		cfg.VolumeStep = 5
	}
	return cfg, nil
}
