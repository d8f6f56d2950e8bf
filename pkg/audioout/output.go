// ABOUTME: Audio output facade owning a single backend device
// ABOUTME: Delegates every operation and fans backend notifications out to observers
package audioout

import (
	"io"
	"math"
	"sync"

	"github.com/Resonate-Protocol/audioout/pkg/audio"
	"github.com/Resonate-Protocol/audioout/pkg/audio/output"
	"github.com/charmbracelet/log"
)

// DeviceFactory creates backend devices. *output.Factory implements it.
type DeviceFactory interface {
	CreateDefaultOutputDevice(format audio.Format) output.Device
	CreateOutputDevice(info audio.DeviceInfo, format audio.Format) output.Device
}

// Observer receives backend notifications.
// Calls arrive on the backend's notification goroutine in emission order.
type Observer interface {
	Notify()
	StateChanged(state audio.State)
}

// Option configures an Output
type Option func(*options)

type options struct {
	factory DeviceFactory
	logger  *log.Logger
}

// WithFactory selects the factory used to create the backend
func WithFactory(f DeviceFactory) Option {
	return func(o *options) {
		o.factory = f
	}
}

// WithLogger sets the logger
func WithLogger(logger *log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Output plays PCM audio through one backend device
type Output struct {
	device output.Device
	logger *log.Logger

	mu        sync.Mutex
	observers []observerEntry
	nextID    int
	closed    bool
}

type observerEntry struct {
	id int
	o  Observer
}

// New creates an Output on the system default device.
// It never fails for a missing device; that surfaces as audio.OpenError on start.
func New(format audio.Format, opts ...Option) *Output {
	o := buildOptions(opts)
	return newOutput(o.factory.CreateDefaultOutputDevice(format), o.logger)
}

// NewForDevice creates an Output on the device described by info
func NewForDevice(info audio.DeviceInfo, format audio.Format, opts ...Option) *Output {
	o := buildOptions(opts)
	return newOutput(o.factory.CreateOutputDevice(info, format), o.logger)
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	switch {
	case o.factory != nil:
	case o.logger != nil:
		o.factory = output.NewFactory(output.WithLogger(o.logger))
	default:
		o.factory = output.DefaultFactory()
	}
	if o.logger == nil {
		o.logger = log.Default()
	}
	return o
}

func newOutput(device output.Device, logger *log.Logger) *Output {
	if device == nil {
		panic("audioout: device factory returned nil")
	}
	out := &Output{
		device: device,
		logger: logger,
	}
	device.SetListener(out)
	return out
}

// Close stops playback and releases the backend. It is safe to call more than once.
func (o *Output) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.mu.Unlock()

	return o.device.Close()
}

// Subscribe registers an observer and returns a function that removes it
func (o *Output) Subscribe(obs Observer) func() {
	o.mu.Lock()
	o.nextID++
	id := o.nextID
	o.observers = append(o.observers, observerEntry{id: id, o: obs})
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			for i, e := range o.observers {
				if e.id == id {
					o.observers = append(o.observers[:i:i], o.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// OnNotify registers fn for periodic notifications
func (o *Output) OnNotify(fn func()) func() {
	return o.Subscribe(funcObserver{notify: fn})
}

// OnStateChanged registers fn for state changes
func (o *Output) OnStateChanged(fn func(audio.State)) func() {
	return o.Subscribe(funcObserver{stateChanged: fn})
}

// Notify implements output.Listener
func (o *Output) Notify() {
	for _, obs := range o.snapshot() {
		obs.Notify()
	}
}

// StateChanged implements output.Listener
func (o *Output) StateChanged(state audio.State) {
	o.logger.Debug("Output state changed", "state", state, "error", o.device.Error())
	for _, obs := range o.snapshot() {
		obs.StateChanged(state)
	}
}

func (o *Output) snapshot() []Observer {
	o.mu.Lock()
	defer o.mu.Unlock()

	list := make([]Observer, len(o.observers))
	for i, e := range o.observers {
		list[i] = e.o
	}
	return list
}

// Format returns the stream format
func (o *Output) Format() audio.Format { return o.device.Format() }

// Start plays audio read from src
func (o *Output) Start(src io.Reader) { o.device.Start(src) }

// StartWriter opens the device for writing. It returns nil when the device could not be opened.
func (o *Output) StartWriter() io.Writer { return o.device.StartWriter() }

// Stop releases the system device
func (o *Output) Stop() { o.device.Stop() }

// Reset drops buffered audio
func (o *Output) Reset() { o.device.Reset() }

// Suspend pauses processing and keeps buffered audio
func (o *Output) Suspend() { o.device.Suspend() }

// Resume continues after Suspend. The state change has been delivered when it returns,
// so observers must not call Resume from their callbacks.
func (o *Output) Resume() { o.device.Resume() }

// BytesFree returns free buffer space; 0 unless Active or Idle
func (o *Output) BytesFree() int { return o.device.BytesFree() }

// PeriodSize returns the recommended write size in bytes
func (o *Output) PeriodSize() int { return o.device.PeriodSize() }

// SetBufferSize requests a buffer size in bytes for the next start; ignored while running
func (o *Output) SetBufferSize(n int) { o.device.SetBufferSize(n) }

// BufferSize returns the size in use while running, else the requested or platform default size
func (o *Output) BufferSize() int { return o.device.BufferSize() }

// SetNotifyInterval sets the notification cadence in milliseconds of processed audio
func (o *Output) SetNotifyInterval(ms int) { o.device.SetNotifyInterval(ms) }

// NotifyInterval returns the effective cadence
func (o *Output) NotifyInterval() int { return o.device.NotifyInterval() }

// ProcessedUSecs returns microseconds of audio handed to the device since start.
// Audio still waiting in the hardware buffer is not counted.
func (o *Output) ProcessedUSecs() int64 { return o.device.ProcessedUSecs() }

// ElapsedUSecs returns wall clock microseconds since start, including Idle and Suspended time
func (o *Output) ElapsedUSecs() int64 { return o.device.ElapsedUSecs() }

// Error returns the last error of the device
func (o *Output) Error() audio.Error { return o.device.Error() }

// State returns the device state
func (o *Output) State() audio.State { return o.device.State() }

// SetVolume sets the software volume, clamped to [0, 1]
func (o *Output) SetVolume(v float64) {
	o.device.SetVolume(clampVolume(v))
}

// Volume returns the software volume in [0, 1]
func (o *Output) Volume() float64 { return o.device.Volume() }

// Category returns the stream category
func (o *Output) Category() string { return o.device.Category() }

// SetCategory names the kind of audio, e.g. "music"
func (o *Output) SetCategory(category string) { o.device.SetCategory(category) }

func clampVolume(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// funcObserver adapts callbacks to Observer
type funcObserver struct {
	notify       func()
	stateChanged func(audio.State)
}

func (f funcObserver) Notify() {
	if f.notify != nil {
		f.notify()
	}
}

func (f funcObserver) StateChanged(state audio.State) {
	if f.stateChanged != nil {
		f.stateChanged(state)
	}
}
