// ABOUTME: Stream engine implementing Device on top of a platform driver
// ABOUTME: Owns the state machine, ring buffer, timing counters and notifications
package output

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/Resonate-Protocol/audioout/pkg/audio"
	"github.com/charmbracelet/log"
)

const (
	defaultBufferDuration = 200 * time.Millisecond
	defaultNotifyInterval = 1000 // ms
	// longest interval that still fits a time.Duration
	maxNotifyMs = int64(math.MaxInt64 / time.Millisecond)
)

// stream implements Device for every backend.
//
// Lock order: ctl before mu. ctl serializes driver calls and is never taken by the
// driver's render context; mu guards everything render touches and is never held
// across a driver call, because drivers block in pause/close until render returns.
type stream struct {
	backend   string
	info      audio.DeviceInfo
	format    audio.Format
	drv       driver
	minNotify int // ms
	logger    *log.Logger
	events    *dispatcher

	ctl        sync.Mutex
	driverOpen bool

	mu        sync.Mutex
	state     audio.State
	lastErr   audio.Error
	gen       uint64 // bumped on every open and teardown; stale callbacks compare against it
	push      bool
	fed       bool
	sourceEOF bool
	done      chan struct{}
	wake      chan struct{}
	ring      *RingBuffer
	params    driverParams
	bufferReq int
	bufferSet bool
	notifyMs  int
	volume    float64
	category  string
	processed int64 // bytes
	sinceTick int64 // bytes
	started   time.Time
	closed    bool
}

func newStream(backend string, info audio.DeviceInfo, format audio.Format, drv driver, minNotify time.Duration, logger *log.Logger) *stream {
	if logger == nil {
		logger = log.Default()
	}
	if format.Codec == "" {
		format.Codec = audio.CodecPCM
	}
	return &stream{
		backend:   backend,
		info:      info,
		format:    format,
		drv:       drv,
		minNotify: int(minNotify / time.Millisecond),
		logger:    logger.With("backend", backend, "device", info.String()),
		events:    newDispatcher(),
		notifyMs:  defaultNotifyInterval,
		volume:    1.0,
	}
}

// Format returns the stream format
func (s *stream) Format() audio.Format {
	return s.format
}

// Start opens the device in push mode
func (s *stream) Start(src io.Reader) {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	s.teardown()

	if src == nil {
		s.openFailed(errors.New("nil audio source"))
		return
	}

	gen, ok := s.open(true)
	if !ok {
		return
	}

	s.mu.Lock()
	done, wake, chunk := s.done, s.wake, s.params.PeriodSize
	s.mu.Unlock()

	go s.feed(gen, src, chunk, done, wake)
}

// StartWriter opens the device in pull mode
func (s *stream) StartWriter() io.Writer {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	s.teardown()

	gen, ok := s.open(false)
	if !ok {
		return nil
	}
	return &streamWriter{s: s, gen: gen}
}

// open acquires the driver (must hold s.ctl)
func (s *stream) open(push bool) (uint64, bool) {
	s.mu.Lock()
	closed := s.closed
	bufferSize := s.requestedBufferLocked()
	s.mu.Unlock()

	if closed {
		s.openFailed(ErrDeviceClosed)
		return 0, false
	}
	if !s.format.IsValid() {
		s.openFailed(fmt.Errorf("%w: %s", ErrUnsupportedFormat, s.format))
		return 0, false
	}

	// The ring must exist before the driver can render
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.ring = NewRingBuffer(bufferSize)
	s.push = push
	s.fed = false
	s.sourceEOF = false
	s.processed = 0
	s.sinceTick = 0
	s.done = make(chan struct{})
	s.wake = make(chan struct{}, 1)
	s.mu.Unlock()

	params, err := s.drv.open(driverConfig{
		Format:     s.format,
		BufferSize: bufferSize,
		Device:     s.info,
	}, &streamRenderer{s: s, gen: gen})
	if err != nil {
		s.mu.Lock()
		s.gen++
		close(s.done)
		s.done = nil
		s.mu.Unlock()
		s.openFailed(err)
		return 0, false
	}
	s.driverOpen = true

	s.mu.Lock()
	if params.BufferSize <= 0 {
		params.BufferSize = bufferSize
	}
	if params.PeriodSize <= 0 || params.PeriodSize > params.BufferSize {
		params.PeriodSize = periodFor(s.format, params.BufferSize)
	}
	if params.BufferSize != s.ring.Size() {
		s.ring = NewRingBuffer(params.BufferSize)
	}
	s.params = params
	s.started = time.Now()
	s.lastErr = audio.NoError
	if push {
		s.state = audio.StateActive
	} else {
		s.state = audio.StateIdle
	}
	s.events.stateChanged(s.state)
	state := s.state
	s.mu.Unlock()

	s.logger.Debug("Output started",
		"state", state,
		"format", s.format.String(),
		"buffer", params.BufferSize,
		"period", params.PeriodSize)

	return gen, true
}

func (s *stream) openFailed(err error) {
	s.mu.Lock()
	s.lastErr = audio.OpenError
	s.state = audio.StateStopped
	s.events.stateChanged(audio.StateStopped)
	s.mu.Unlock()

	s.logger.Warn("Failed to open output device", "error", err)
}

// teardown stops the feeder and closes the driver without emitting (must hold s.ctl)
func (s *stream) teardown() {
	s.mu.Lock()
	s.gen++
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	if s.ring != nil {
		s.ring.Reset()
	}
	s.mu.Unlock()

	if s.driverOpen {
		if err := s.drv.close(); err != nil {
			s.logger.Warn("Driver close error", "error", err)
		}
		s.driverOpen = false
	}
}

// Stop closes the device
func (s *stream) Stop() {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	s.mu.Lock()
	prev := s.state
	s.mu.Unlock()

	s.teardown()

	// A stream that stopped on its own keeps its error
	if prev == audio.StateStopped {
		return
	}

	s.mu.Lock()
	s.lastErr = audio.NoError
	s.state = audio.StateStopped
	s.events.stateChanged(audio.StateStopped)
	s.mu.Unlock()

	s.logger.Debug("Output stopped")
}

// Reset drops buffered audio
func (s *stream) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ring != nil {
		s.ring.Reset()
	}
	s.wakeFeederLocked()
}

// Suspend pauses processing
func (s *stream) Suspend() {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state != audio.StateActive && state != audio.StateIdle {
		return
	}

	if err := s.drv.pause(); err != nil {
		s.failDriver(fmt.Errorf("pause failed: %w", err))
		return
	}

	s.mu.Lock()
	s.lastErr = audio.NoError
	s.state = audio.StateSuspended
	s.events.stateChanged(audio.StateSuspended)
	s.mu.Unlock()
}

// Resume continues after Suspend and waits until the state change was delivered
func (s *stream) Resume() {
	s.ctl.Lock()

	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state != audio.StateSuspended {
		s.ctl.Unlock()
		return
	}

	if err := s.drv.resume(); err != nil {
		s.failDriver(fmt.Errorf("resume failed: %w", err))
		s.ctl.Unlock()
		return
	}

	s.mu.Lock()
	s.lastErr = audio.NoError
	if s.push {
		s.state = audio.StateActive
	} else {
		s.state = audio.StateIdle
	}
	delivered := s.events.stateChangedWait(s.state)
	s.wakeFeederLocked()
	s.mu.Unlock()

	// Unlock before waiting so listeners may issue further commands
	s.ctl.Unlock()
	<-delivered
}

// failDriver stops the stream with FatalError (must hold s.ctl)
func (s *stream) failDriver(err error) {
	s.teardown()

	s.mu.Lock()
	s.lastErr = audio.FatalError
	s.state = audio.StateStopped
	s.events.stateChanged(audio.StateStopped)
	s.mu.Unlock()

	s.logger.Error("Output device failed", "error", err)
}

// fail stops the stream from a driver or feeder goroutine
func (s *stream) fail(gen uint64, kind audio.Error, err error) {
	s.mu.Lock()
	if gen != s.gen || s.state == audio.StateStopped {
		s.mu.Unlock()
		return
	}
	s.gen++
	stale := s.gen
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	s.lastErr = kind
	s.state = audio.StateStopped
	s.events.stateChanged(audio.StateStopped)
	s.mu.Unlock()

	s.logger.Error("Output stream stopped", "reason", kind, "error", err)

	// The caller may be the driver's own goroutine, so release it elsewhere
	go s.release(stale)
}

// release closes the driver unless a newer session took it over
func (s *stream) release(gen uint64) {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	s.mu.Lock()
	current := s.gen
	s.mu.Unlock()

	if current != gen || !s.driverOpen {
		return
	}
	if err := s.drv.close(); err != nil {
		s.logger.Warn("Driver close error", "error", err)
	}
	s.driverOpen = false
}

// render is called from the driver context
func (s *stream) render(gen uint64, p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || s.ring == nil || (s.state != audio.StateActive && s.state != audio.StateIdle) {
		clear(p)
		return
	}

	n := s.ring.Read(p)
	if n > 0 {
		applyVolume(p[:n], s.format.BitDepth, s.volume)
		s.processed += int64(n)
		s.tickLocked(n)
		if s.state == audio.StateIdle {
			s.setStateLocked(audio.StateActive, audio.NoError)
		}
	}

	if n < len(p) && s.state == audio.StateActive && (!s.push || s.fed || s.sourceEOF) {
		s.setStateLocked(audio.StateIdle, audio.UnderrunError)
	}

	s.wakeFeederLocked()
}

func (s *stream) setStateLocked(state audio.State, err audio.Error) {
	s.lastErr = err
	if s.state == state {
		return
	}
	s.state = state
	s.events.stateChanged(state)
}

// tickLocked emits one Notify per interval of processed audio
func (s *stream) tickLocked(n int) {
	interval := s.notifyBytesLocked()
	if interval <= 0 {
		return
	}
	s.sinceTick += int64(n)
	for s.sinceTick >= interval {
		s.sinceTick -= interval
		s.events.notify()
	}
}

// notifyBytesLocked is the amount of processed audio between two ticks
func (s *stream) notifyBytesLocked() int64 {
	if s.notifyMs <= 0 {
		return 0
	}
	return int64(s.format.BytesForDuration(time.Duration(s.notifyMs) * time.Millisecond))
}

func (s *stream) wakeFeederLocked() {
	if s.wake == nil {
		return
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// feed copies the push-mode source into the ring as space frees up
func (s *stream) feed(gen uint64, src io.Reader, chunk int, done, wake <-chan struct{}) {
	if chunk <= 0 {
		chunk = s.format.BytesPerFrame()
	}
	buf := make([]byte, chunk)
	var pending []byte
	eof := false

	wait := func() bool {
		select {
		case <-done:
			return false
		case <-wake:
			return true
		}
	}

	for {
		select {
		case <-done:
			return
		default:
		}

		if len(pending) == 0 && !eof {
			s.mu.Lock()
			free := s.ring.Free()
			s.mu.Unlock()

			if free == 0 {
				if !wait() {
					return
				}
				continue
			}

			n, err := src.Read(buf[:min(free, len(buf))])
			pending = buf[:n]
			switch {
			case errors.Is(err, io.EOF):
				eof = true
			case err != nil:
				s.fail(gen, audio.IOError, fmt.Errorf("source read failed: %w", err))
				return
			case n == 0:
				if !wait() {
					return
				}
				continue
			}
		}

		if len(pending) > 0 {
			s.mu.Lock()
			if gen != s.gen {
				s.mu.Unlock()
				return
			}
			w := s.ring.Write(pending)
			pending = pending[w:]
			if w > 0 {
				s.fed = true
				if s.state == audio.StateIdle {
					s.setStateLocked(audio.StateActive, audio.NoError)
				}
			}
			s.mu.Unlock()
		}

		if eof && len(pending) == 0 {
			s.mu.Lock()
			if gen == s.gen {
				s.sourceEOF = true
				if s.state == audio.StateActive && s.ring.Available() == 0 {
					s.setStateLocked(audio.StateIdle, audio.UnderrunError)
				}
			}
			s.mu.Unlock()
			s.logger.Debug("Output source drained")
			return
		}

		if len(pending) > 0 {
			if !wait() {
				return
			}
		}
	}
}

// write queues pull-mode data
func (s *stream) write(gen uint64, p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || !s.state.Running() {
		return 0, ErrStreamStopped
	}

	n := s.ring.Write(p)
	if n > 0 {
		s.fed = true
		if s.state == audio.StateIdle {
			s.setStateLocked(audio.StateActive, audio.NoError)
		}
	}
	if n < len(p) {
		return n, ErrBufferFull
	}
	return n, nil
}

// BytesFree returns free buffer space while Active or Idle
func (s *stream) BytesFree() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ring == nil || (s.state != audio.StateActive && s.state != audio.StateIdle) {
		return 0
	}
	return s.ring.Free()
}

// PeriodSize returns the recommended write size
func (s *stream) PeriodSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Running() {
		return s.params.PeriodSize
	}
	return periodFor(s.format, s.requestedBufferLocked())
}

// SetBufferSize stores the requested size; ignored while running
func (s *stream) SetBufferSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Running() {
		s.logger.Debug("Ignoring buffer size change while running", "requested", n)
		return
	}
	s.bufferReq = n
	s.bufferSet = true
}

// BufferSize returns the size in use, the requested size, or the platform default
func (s *stream) BufferSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Running() {
		return s.params.BufferSize
	}
	if s.bufferSet {
		return s.bufferReq
	}
	return s.defaultBufferLocked()
}

func (s *stream) defaultBufferLocked() int {
	return roundToFrame(s.format, s.format.BytesForDuration(defaultBufferDuration))
}

// requestedBufferLocked is the size passed to the driver on open
func (s *stream) requestedBufferLocked() int {
	if s.bufferSet && s.bufferReq > 0 {
		return roundToFrame(s.format, s.bufferReq)
	}
	return s.defaultBufferLocked()
}

// SetNotifyInterval sets the Notify cadence; 0 or less disables it
func (s *stream) SetNotifyInterval(ms int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case ms <= 0:
		s.notifyMs = 0
	case ms < s.minNotify:
		s.notifyMs = s.minNotify
	default:
		s.notifyMs = int(min(int64(ms), maxNotifyMs))
	}
}

// NotifyInterval returns the effective cadence
func (s *stream) NotifyInterval() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notifyMs
}

// ProcessedUSecs returns microseconds of audio rendered since start
func (s *stream) ProcessedUSecs() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format.MicrosForBytes(s.processed)
}

// ElapsedUSecs returns wall clock time since start
func (s *stream) ElapsedUSecs() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.Running() {
		return 0
	}
	return time.Since(s.started).Microseconds()
}

func (s *stream) Error() audio.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *stream) State() audio.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *stream) SetVolume(v float64) {
	s.mu.Lock()
	s.volume = v
	s.mu.Unlock()
}

func (s *stream) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func (s *stream) SetCategory(category string) {
	s.mu.Lock()
	s.category = category
	s.mu.Unlock()
}

func (s *stream) Category() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.category
}

func (s *stream) SetListener(l Listener) {
	s.events.setListener(l)
}

// Close stops the device and shuts down notification delivery
func (s *stream) Close() error {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.teardown()

	s.mu.Lock()
	if s.state != audio.StateStopped {
		s.lastErr = audio.NoError
		s.state = audio.StateStopped
		s.events.stateChanged(audio.StateStopped)
	}
	s.mu.Unlock()

	s.events.close()
	return nil
}

// streamRenderer binds driver callbacks to one open session
type streamRenderer struct {
	s   *stream
	gen uint64
}

func (r *streamRenderer) render(p []byte) {
	r.s.render(r.gen, p)
}

func (r *streamRenderer) fail(err error) {
	r.s.fail(r.gen, audio.FatalError, err)
}

// streamWriter is the pull-mode handle returned by StartWriter
type streamWriter struct {
	s   *stream
	gen uint64
}

// Write queues as much of p as fits; a short write returns ErrBufferFull
func (w *streamWriter) Write(p []byte) (int, error) {
	return w.s.write(w.gen, p)
}
