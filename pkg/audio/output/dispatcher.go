// ABOUTME: Ordered notification delivery for output devices
// ABOUTME: Queues Notify and StateChanged events and delivers them on one goroutine
package output

import (
	"sync"

	"github.com/Resonate-Protocol/audioout/pkg/audio"
)

type eventKind int

const (
	eventNotify eventKind = iota
	eventState
)

type event struct {
	kind  eventKind
	state audio.State
	done  chan struct{} // closed after delivery, nil for fire-and-forget
}

// dispatcher delivers events in FIFO order on its own goroutine.
// Posting never blocks, so it is safe from audio callbacks and while holding stream locks.
type dispatcher struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []event
	listener Listener
	closed   bool
	exited   chan struct{}
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		exited: make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

func (d *dispatcher) setListener(l Listener) {
	d.mu.Lock()
	d.listener = l
	d.mu.Unlock()
}

func (d *dispatcher) notify() {
	d.post(event{kind: eventNotify})
}

func (d *dispatcher) stateChanged(state audio.State) {
	d.post(event{kind: eventState, state: state})
}

// stateChangedWait queues a state event and returns a channel closed once it was delivered
func (d *dispatcher) stateChangedWait(state audio.State) <-chan struct{} {
	done := make(chan struct{})
	d.post(event{kind: eventState, state: state, done: done})
	return done
}

func (d *dispatcher) post(e event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		if e.done != nil {
			close(e.done)
		}
		return
	}
	d.queue = append(d.queue, e)
	d.cond.Signal()
}

func (d *dispatcher) run() {
	defer close(d.exited)

	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		e := d.queue[0]
		d.queue[0] = event{}
		d.queue = d.queue[1:]
		l := d.listener
		d.mu.Unlock()

		if l != nil {
			switch e.kind {
			case eventNotify:
				l.Notify()
			case eventState:
				l.StateChanged(e.state)
			}
		}
		if e.done != nil {
			close(e.done)
		}
	}
}

// close stops accepting events; queued events are still delivered
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
}
