// ABOUTME: Oto-based output driver
// ABOUTME: Streams rendered PCM into an oto player; oto allows one context per process
package output

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Resonate-Protocol/audioout/pkg/audio"
	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// OtoBackend is the name of the oto backend
const OtoBackend = "oto"

func init() {
	register(backendEntry{
		name:        OtoBackend,
		priority:    80,
		defaultable: true,
		available:   func() bool { return true },
		newDriver:   func(audio.DeviceInfo) driver { return &otoDriver{} },
		devices: func(context.Context) ([]audio.DeviceInfo, error) {
			// oto always plays on the system default output
			return []audio.DeviceInfo{{
				Backend:   OtoBackend,
				Name:      "default",
				IsDefault: true,
			}}, nil
		},
		minNotify: 10 * time.Millisecond,
	})
}

// otoShared holds the process wide oto context
var otoShared struct {
	sync.Mutex
	ctx    *oto.Context
	format audio.Format
}

// otoContext returns the process wide context, creating it for format on first use
func otoContext(format audio.Format, buffer time.Duration) (*oto.Context, error) {
	otoShared.Lock()
	defer otoShared.Unlock()

	if otoShared.ctx != nil {
		// oto cannot be reinitialized with another format
		if otoShared.format != format {
			return nil, fmt.Errorf("oto context already running at %s, cannot open %s", otoShared.format, format)
		}
		return otoShared.ctx, nil
	}

	var sampleFormat oto.Format
	switch format.BitDepth {
	case 8:
		sampleFormat = oto.FormatUnsignedInt8
	case 16:
		sampleFormat = oto.FormatSignedInt16LE
	default:
		return nil, fmt.Errorf("%w: oto supports 8 and 16-bit output, got %d-bit", ErrUnsupportedFormat, format.BitDepth)
	}

	op := &oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       sampleFormat,
		BufferSize:   buffer,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	otoShared.ctx = ctx
	otoShared.format = format

	log.Debug("Oto context initialized", "format", format.String(), "buffer", buffer)
	return ctx, nil
}

// otoDriver feeds an oto player from the stream
type otoDriver struct {
	player *oto.Player
}

// otoSource adapts the renderer to the io.Reader oto pulls from
type otoSource struct {
	r renderer
}

func (s *otoSource) Read(p []byte) (int, error) {
	s.r.render(p)
	return len(p), nil
}

func (o *otoDriver) open(cfg driverConfig, r renderer) (driverParams, error) {
	if !isDefaultDevice(cfg.Device) {
		return driverParams{}, fmt.Errorf("%w: oto only plays on the default output, not %s", ErrDeviceNotFound, cfg.Device)
	}

	ctx, err := otoContext(cfg.Format, cfg.Format.DurationForBytes(int64(cfg.BufferSize)))
	if err != nil {
		return driverParams{}, err
	}
	if err := ctx.Err(); err != nil {
		return driverParams{}, fmt.Errorf("oto context error: %w", err)
	}

	// A resumed context may have been suspended by a previous close
	if err := ctx.Resume(); err != nil {
		return driverParams{}, fmt.Errorf("failed to resume oto context: %w", err)
	}

	player := ctx.NewPlayer(&otoSource{r: r})
	player.SetBufferSize(cfg.BufferSize)
	player.Play()
	o.player = player

	return driverParams{
		BufferSize: cfg.BufferSize,
		PeriodSize: periodFor(cfg.Format, cfg.BufferSize),
	}, nil
}

func (o *otoDriver) pause() error {
	if o.player != nil {
		o.player.Pause()
	}
	return nil
}

func (o *otoDriver) resume() error {
	if o.player != nil {
		o.player.Play()
	}
	return nil
}

func (o *otoDriver) close() error {
	if o.player == nil {
		return nil
	}
	o.player.Pause()
	err := o.player.Close()
	o.player = nil
	if err != nil {
		return fmt.Errorf("failed to close oto player: %w", err)
	}
	return nil
}
