// ABOUTME: Null output driver that discards audio in real time
// ABOUTME: Always available; used for headless runs and tests
package output

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/audioout/pkg/audio"
)

// NullBackend is the name of the discard backend
const NullBackend = "null"

func init() {
	register(backendEntry{
		name:      NullBackend,
		priority:  0,
		available: func() bool { return true },
		newDriver: func(audio.DeviceInfo) driver { return &nullDriver{} },
		devices: func(context.Context) ([]audio.DeviceInfo, error) {
			return []audio.DeviceInfo{{
				Backend:   NullBackend,
				ID:        "null",
				Name:      "Null output",
				IsDefault: true,
			}}, nil
		},
		minNotify: 10 * time.Millisecond,
	})
}

// nullDriver consumes one period per period duration
type nullDriver struct {
	cancel context.CancelFunc
	paused atomic.Bool
	wg     sync.WaitGroup
}

func (n *nullDriver) open(cfg driverConfig, r renderer) (driverParams, error) {
	period := periodFor(cfg.Format, cfg.BufferSize)
	interval := cfg.Format.DurationForBytes(int64(period))
	if interval <= 0 {
		interval = time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	n.paused.Store(false)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		buf := make([]byte, period)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n.paused.Load() {
					continue
				}
				r.render(buf)
			}
		}
	}()

	return driverParams{BufferSize: cfg.BufferSize, PeriodSize: period}, nil
}

func (n *nullDriver) pause() error {
	n.paused.Store(true)
	return nil
}

func (n *nullDriver) resume() error {
	n.paused.Store(false)
	return nil
}

func (n *nullDriver) close() error {
	if n.cancel != nil {
		n.cancel()
		n.cancel = nil
	}
	n.wg.Wait()
	return nil
}
