// ABOUTME: Entry point for the audioout command line tool
// ABOUTME: Builds the cobra command tree, loads configuration and sets up logging
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Resonate-Protocol/audioout/internal/config"
	"github.com/Resonate-Protocol/audioout/internal/version"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// app carries state shared by every command
type app struct {
	opts struct {
		configFile string
		logFile    string
		debug      bool
		backend    string
		device     string
	}

	loader  *config.Loader
	cfg     config.Config
	logger  *log.Logger
	logFile *os.File
	logOut  io.Writer
	stdout  io.Writer
	stderr  io.Writer
}

func main() {
	a := &app{stdout: os.Stdout, stderr: os.Stderr}
	err := a.rootCmd().Execute()
	a.close()
	if err != nil {
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   version.Product,
		Short: "Play PCM audio through local and network outputs",
		Long: `audioout plays audio through one output device at a time.

Devices come from the malgo, oto or portaudio backends, a remote audioout sink
on the network, or a null device that discards audio in real time.`,
		Version:           version.String(),
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&a.opts.configFile, "config", "", "config file (default is the first audioout.yml in the config directories)")
	flags.StringVar(&a.opts.logFile, "log-file", "", "write logs to this file")
	flags.BoolVar(&a.opts.debug, "debug", false, "enable debug logging")
	flags.StringVarP(&a.opts.backend, "backend", "b", "", "output backend (malgo, oto, portaudio, remote, null)")
	flags.StringVarP(&a.opts.device, "device", "d", "", "device ID within the backend; for remote, host:port of the sink")

	root.AddCommand(
		a.devicesCmd(),
		a.playCmd(),
		a.toneCmd(),
		a.sinkCmd(),
		a.configCmd(),
		a.versionCmd(),
		a.manCmd(root),
	)
	return root
}

// setup loads configuration and configures logging before any command runs
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	a.logOut = a.stderr
	a.logger = log.NewWithOptions(a.stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Prefix:          version.Product,
	})

	loader, err := config.NewLoader(a.opts.configFile, a.logger)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	for key, name := range map[string]string{"backend": "backend", "device": "device"} {
		if err := loader.BindFlag(key, flags.Lookup(name)); err != nil {
			return err
		}
	}
	for key, name := range commandFlagKeys {
		if f := flags.Lookup(name); f != nil {
			if err := loader.BindFlag(key, f); err != nil {
				return err
			}
		}
	}

	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.loader = loader
	a.cfg = cfg

	level, _ := cfg.Level()
	if a.opts.debug {
		level = log.DebugLevel
	}
	a.logger.SetLevel(level)

	if a.opts.logFile != "" {
		f, err := os.OpenFile(a.opts.logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("error opening log file: %w", err)
		}
		a.logFile = f
		a.logOut = io.MultiWriter(a.stderr, f)
		a.logger.SetOutput(a.logOut)
	}
	log.SetDefault(a.logger)

	a.logger.Debug("Configuration loaded", "file", loader.FileUsed(), "backend", cfg.Backend, "format", cfg.Format().String())
	return nil
}

// commandFlagKeys maps config keys to the per-command flags that override them
var commandFlagKeys = map[string]string{
	"buffer_ms":        "buffer",
	"notify_ms":        "notify",
	"volume":           "volume",
	"sample_rate":      "rate",
	"bit_depth":        "bits",
	"sink.name":        "name",
	"sink.addr":        "addr",
	"sink.mdns":        "mdns",
	"sink.sample_rate": "device-rate",
	"sink.buffer_ms":   "client-buffer",
	"sink.state_ms":    "state-interval",
}

// quiet sends logs only to the log file, used while a full-screen view is up
func (a *app) quiet() {
	if a.logFile != nil {
		a.logger.SetOutput(a.logFile)
		return
	}
	a.logger.SetOutput(io.Discard)
}

func (a *app) close() {
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}
