// ABOUTME: play and tone commands pushing decoded audio into one output
// ABOUTME: Runs until the source drains, the output stops or the user interrupts
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/audioout/internal/config"
	"github.com/Resonate-Protocol/audioout/internal/tone"
	"github.com/Resonate-Protocol/audioout/internal/ui"
	"github.com/Resonate-Protocol/audioout/pkg/audio"
	"github.com/Resonate-Protocol/audioout/pkg/audio/decode"
	"github.com/Resonate-Protocol/audioout/pkg/audio/encode"
	"github.com/Resonate-Protocol/audioout/pkg/audio/resample"
	"github.com/Resonate-Protocol/audioout/pkg/audioout"
	"github.com/dustin/go-humanize"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
)

type playOptions struct {
	tui bool
}

// addOutputFlags registers the flags shared by commands that open an output.
// Values are read back through the config loader.
func addOutputFlags(cmd *cobra.Command, opts *playOptions) {
	d := config.Default()
	flags := cmd.Flags()
	flags.Int("buffer", d.BufferMs, "output buffer in milliseconds")
	flags.Int("notify", d.NotifyMs, "progress notification interval in milliseconds (0 disables)")
	flags.Float64("volume", d.Volume, "initial volume between 0 and 1")
	flags.Int("bits", d.BitDepth, "output bit depth (8, 16, 24 or 32)")
	flags.BoolVar(&opts.tui, "tui", false, "show the interactive status view")
}

func (a *app) playCmd() *cobra.Command {
	var (
		opts       playOptions
		resampleTo int
	)
	cmd := &cobra.Command{
		Use:   "play FILE",
		Short: "Play an audio file",
		Long: `Play an MP3, FLAC, WAV, Ogg Vorbis or raw PCM file.

The output runs at the file's sample rate unless --resample is given. Raw PCM
files are read with the configured sample rate, channels and bit depth.`,
		Example: "audioout play ~/music/track.flac --tui\naudioout play take.wav -b remote -d kitchen.local:8928",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := homedir.Expand(args[0])
			if err != nil {
				return err
			}
			src, err := decode.OpenAs(path, a.cfg.Format())
			if err != nil {
				return err
			}
			defer src.Close()

			in := src.Format()
			format := audio.Format{
				Codec:      audio.CodecPCM,
				SampleRate: in.SampleRate,
				Channels:   in.Channels,
				BitDepth:   a.cfg.BitDepth,
			}

			var samples encode.SampleReader = src
			if resampleTo > 0 && resampleTo != in.SampleRate {
				samples = resample.NewReader(src, in.SampleRate, resampleTo, in.Channels)
				format.SampleRate = resampleTo
			}

			a.logger.Info("Playing", "file", filepath.Base(path), "source", in.String(), "output", format.String())
			return a.play(cmd.Context(), samples, format, filepath.Base(path), opts)
		},
	}
	addOutputFlags(cmd, &opts)
	cmd.Flags().IntVar(&resampleTo, "resample", 0, "resample to this rate in Hz")
	return cmd
}

func (a *app) toneCmd() *cobra.Command {
	var (
		opts      playOptions
		frequency float64
		amplitude float64
		duration  time.Duration
	)
	cmd := &cobra.Command{
		Use:     "tone",
		Short:   "Play a sine test tone",
		Example: "audioout tone --duration 3s\naudioout tone -b null --frequency 1000",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format := a.cfg.Format()
			gen, err := tone.New(format, frequency, amplitude, duration)
			if err != nil {
				return err
			}
			title := fmt.Sprintf("%.0f Hz tone", frequency)
			a.logger.Info("Playing tone", "frequency", frequency, "duration", duration, "output", format.String())
			return a.play(cmd.Context(), gen, format, title, opts)
		},
	}
	addOutputFlags(cmd, &opts)
	cmd.Flags().Int("rate", config.Default().SampleRate, "sample rate in Hz")
	cmd.Flags().Float64Var(&frequency, "frequency", tone.DefaultFrequency, "tone frequency in Hz")
	cmd.Flags().Float64Var(&amplitude, "amplitude", 0.5, "tone amplitude between 0 and 1")
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 plays until interrupted)")
	return cmd
}

// eofReader records when the underlying reader is exhausted
type eofReader struct {
	r       io.Reader
	eof     atomic.Bool
	total   int64
	onEmpty func()
}

func (e *eofReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	e.total += int64(n)
	if errors.Is(err, io.EOF) && !e.eof.Swap(true) && e.total == 0 && e.onEmpty != nil {
		// nothing was played, so no underrun will ever end the stream
		e.onEmpty()
	}
	return n, err
}

type bufferReporter interface {
	BytesFree() int
	BufferSize() int
}

// ringEmpty reports whether everything queued has been played.
// An Idle from an earlier underrun can arrive after the source ended while audio is still queued.
func ringEmpty(o bufferReporter) bool {
	return o.BytesFree() >= o.BufferSize()
}

// play pushes samples through a new output until they drain
func (a *app) play(ctx context.Context, samples encode.SampleReader, format audio.Format, title string, opts playOptions) error {
	stream, err := encode.NewPCMStream(samples, format)
	if err != nil {
		return err
	}
	src := &eofReader{r: stream}

	out := audioout.NewForDevice(a.cfg.DeviceInfo(), format, audioout.WithLogger(a.logger))
	defer out.Close()

	out.SetBufferSize(format.BytesForDuration(time.Duration(a.cfg.BufferMs) * time.Millisecond))
	out.SetNotifyInterval(a.cfg.NotifyMs)
	out.SetVolume(a.cfg.Volume)
	out.SetCategory("music")

	done := make(chan error, 1)
	finish := func(err error) {
		select {
		case done <- err:
		default:
		}
	}
	src.onEmpty = func() { finish(nil) }

	// state changes arrive in order on one goroutine
	var wasActive bool
	out.OnStateChanged(func(state audio.State) {
		switch {
		case state == audio.StateActive:
			wasActive = true
		case state == audio.StateStopped:
			if e := out.Error(); e != audio.NoError {
				finish(fmt.Errorf("output stopped: %s", e))
				return
			}
			finish(nil)
		case state == audio.StateIdle && wasActive && src.eof.Load() && ringEmpty(out):
			finish(nil)
		}
	})
	out.OnNotify(func() {
		a.logger.Debug("Progress", "played", time.Duration(out.ProcessedUSecs())*time.Microsecond, "free", out.BytesFree())
	})

	a.loader.Watch(func(c config.Config) {
		out.SetVolume(c.Volume)
		out.SetNotifyInterval(c.NotifyMs)
		a.logger.Info("Applied configuration change", "volume", c.Volume, "notify_ms", c.NotifyMs)
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	out.Start(src)
	if out.State() == audio.StateStopped {
		return fmt.Errorf("failed to start output %s: %s", a.cfg.DeviceInfo(), out.Error())
	}

	var playErr error
	if opts.tui {
		playErr = a.runTUI(ctx, out, title, done)
	} else {
		select {
		case playErr = <-done:
		case <-ctx.Done():
			a.logger.Info("Interrupted")
		}
	}
	out.Stop()

	played := out.ProcessedUSecs()
	a.logger.Info("Playback finished",
		"played", (time.Duration(played) * time.Microsecond).Round(time.Millisecond),
		"bytes", humanize.Bytes(uint64(format.BytesForDuration(time.Duration(played)*time.Microsecond))))
	return playErr
}

// runTUI shows the status view until playback ends or the user quits
func (a *app) runTUI(ctx context.Context, out *audioout.Output, title string, done <-chan error) error {
	cfg, err := ui.LoadConfig()
	if err != nil {
		return fmt.Errorf("error parsing TUI config: %w", err)
	}

	a.quiet()
	defer a.logger.SetOutput(a.logOut)

	p := ui.NewProgram(cfg, out, ui.Info{Title: title, Device: a.cfg.DeviceInfo().String()})
	unsubscribe := ui.Observe(p, out)
	defer unsubscribe()

	var playErr error
	quit := make(chan struct{})
	watched := make(chan struct{})
	go func() {
		defer close(watched)
		select {
		case playErr = <-done:
			p.Send(ui.DoneMsg{Err: playErr})
		case <-ctx.Done():
			p.Quit()
		case <-quit:
		}
	}()

	_, runErr := p.Run()
	close(quit)
	<-watched
	if runErr != nil {
		return fmt.Errorf("unable to run tui program: %w", runErr)
	}
	return playErr
}
