// ABOUTME: sink command serving a network audio sink
// ABOUTME: Plays streams from remote audioout clients through a local output
package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/audioout/internal/config"
	"github.com/Resonate-Protocol/audioout/pkg/audio"
	"github.com/Resonate-Protocol/audioout/pkg/sink"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func (a *app) sinkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sink",
		Short: "Run a network audio sink",
		Long: `Run a network sink that plays one remote stream at a time.

Clients reach the sink with the remote backend, e.g.
  audioout play track.flac -b remote -d host:8928
The sink advertises itself over mDNS unless --mdns=false is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sc := a.cfg.Sink
			srv := sink.New(sink.Config{
				Name:            sc.Name,
				Addr:            sc.Addr,
				Device:          a.cfg.DeviceInfo(),
				Format:          audio.Format{SampleRate: sc.SampleRate},
				BufferMs:        sc.BufferMs,
				StateIntervalMs: sc.StateMs,
				EnableMDNS:      sc.MDNS,
				Logger:          a.logger,
			})
			srv.OnSession = func(info sink.SessionInfo, active bool) {
				if active {
					return
				}
				a.logger.Info("Session summary",
					"client", info.ClientName,
					"remote", info.RemoteAddr,
					"played", (time.Duration(info.Processed) * time.Microsecond).Round(time.Millisecond),
					"started", humanize.Time(info.Started))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a.logger.Info("Starting sink", "name", sc.Name, "addr", sc.Addr, "device", a.cfg.DeviceInfo().String())
			return srv.Run(ctx)
		},
	}

	d := config.Default().Sink
	flags := cmd.Flags()
	flags.String("name", d.Name, "name shown to clients")
	flags.String("addr", d.Addr, "listen address")
	flags.Bool("mdns", d.MDNS, "advertise the sink over mDNS")
	flags.Int("device-rate", 0, "resample streams to this rate in Hz (0 follows each stream)")
	flags.Int("client-buffer", d.BufferMs, "buffer in milliseconds when a client does not ask for one")
	flags.Int("state-interval", d.StateMs, "sink state report interval in milliseconds")
	return cmd
}
