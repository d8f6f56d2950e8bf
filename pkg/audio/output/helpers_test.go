// ABOUTME: Test doubles for the output package
// ABOUTME: A manually pumped fake driver and a recording listener
package output

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/Resonate-Protocol/audioout/pkg/audio"
	"github.com/charmbracelet/log"
)

// fakeDriver lets tests drive the render callback by hand
type fakeDriver struct {
	mu        sync.Mutex
	r         renderer
	cfg       driverConfig
	openErr   error
	pauseErr  error
	resumeErr error
	params    driverParams
	open_     bool
	paused    bool
	opens     int
	closes    int
}

func (f *fakeDriver) open(cfg driverConfig, r renderer) (driverParams, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.openErr != nil {
		return driverParams{}, f.openErr
	}
	f.r = r
	f.cfg = cfg
	f.open_ = true
	f.paused = false
	f.opens++
	if f.params.BufferSize > 0 {
		return f.params, nil
	}
	return driverParams{BufferSize: cfg.BufferSize, PeriodSize: periodFor(cfg.Format, cfg.BufferSize)}, nil
}

func (f *fakeDriver) pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pauseErr != nil {
		return f.pauseErr
	}
	f.paused = true
	return nil
}

func (f *fakeDriver) resume() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resumeErr != nil {
		return f.resumeErr
	}
	f.paused = false
	return nil
}

func (f *fakeDriver) close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.open_ {
		f.closes++
	}
	f.open_ = false
	return nil
}

// pull asks the stream for n bytes the way a hardware callback would
func (f *fakeDriver) pull(n int) []byte {
	f.mu.Lock()
	r := f.r
	f.mu.Unlock()

	buf := make([]byte, n)
	if r != nil {
		r.render(buf)
	}
	return buf
}

// crash reports a driver failure from the callback context
func (f *fakeDriver) crash(err error) {
	f.mu.Lock()
	r := f.r
	f.mu.Unlock()
	r.fail(err)
}

func (f *fakeDriver) counts() (opens, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens, f.closes
}

// recorder is a Listener that keeps every event
type recorder struct {
	mu      sync.Mutex
	states  []audio.State
	notifys int
}

func (r *recorder) Notify() {
	r.mu.Lock()
	r.notifys++
	r.mu.Unlock()
}

func (r *recorder) StateChanged(state audio.State) {
	r.mu.Lock()
	r.states = append(r.states, state)
	r.mu.Unlock()
}

func (r *recorder) States() []audio.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audio.State(nil), r.states...)
}

func (r *recorder) Notifies() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notifys
}

func (r *recorder) last() (audio.State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return 0, false
	}
	return r.states[len(r.states)-1], true
}

var testFormat = audio.Format{Codec: audio.CodecPCM, SampleRate: 48000, Channels: 2, BitDepth: 16}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

// newTestStream returns a stream over a fake driver with a recording listener
func newTestStream(t *testing.T) (*stream, *fakeDriver, *recorder) {
	t.Helper()
	drv := &fakeDriver{}
	s := newStream("fake", audio.DeviceInfo{}, testFormat, drv, 10*time.Millisecond, quietLogger())
	rec := &recorder{}
	s.SetListener(rec)
	t.Cleanup(func() { _ = s.Close() })
	return s, drv, rec
}

const eventually = time.Second
const tick = 2 * time.Millisecond
