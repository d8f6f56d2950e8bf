// ABOUTME: Audio output device interface definition
// ABOUTME: Common interface implemented by every platform backend
package output

import (
	"errors"
	"io"

	"github.com/Resonate-Protocol/audioout/pkg/audio"
)

var (
	// ErrBufferFull is returned by a pull-mode writer that could not queue every byte
	ErrBufferFull = errors.New("output buffer full")
	// ErrStreamStopped is returned by a pull-mode writer whose stream is no longer running
	ErrStreamStopped = errors.New("output stream stopped")
	// ErrUnsupportedFormat is reported when a backend cannot play the requested format
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrUnknownBackend is reported when a device names a backend that is not registered
	ErrUnknownBackend = errors.New("unknown output backend")
	// ErrDeviceNotFound is reported when a named device does not exist
	ErrDeviceNotFound = errors.New("audio device not found")
	// ErrDeviceClosed is reported when starting a device after Close
	ErrDeviceClosed = errors.New("audio device closed")
)

// Listener receives device notifications.
// Calls are made from the device's notification goroutine, one at a time, in emission order.
type Listener interface {
	// Notify is called every NotifyInterval milliseconds of processed audio
	Notify()
	// StateChanged is called after every state transition
	StateChanged(state audio.State)
}

// Device represents an audio output device
type Device interface {
	// Format returns the stream format the device was created for
	Format() audio.Format

	// Start opens the device in push mode; the device reads audio from src as it needs it
	Start(src io.Reader)

	// StartWriter opens the device in pull mode and returns a writer for audio data.
	// It returns nil when the device could not be opened.
	StartWriter() io.Writer

	// Stop closes the device and releases the system resource
	Stop()

	// Reset drops all buffered audio
	Reset()

	// Suspend pauses processing, keeping buffered audio
	Suspend()

	// Resume continues processing after Suspend.
	// The state change is delivered to the listener before Resume returns.
	Resume()

	// BytesFree returns free buffer space in bytes while Active or Idle, otherwise 0
	BytesFree() int

	// PeriodSize returns the recommended write size in bytes
	PeriodSize() int

	// SetBufferSize requests a buffer size in bytes; ignored while the stream runs
	SetBufferSize(n int)

	// BufferSize returns the buffer size in bytes
	BufferSize() int

	// SetNotifyInterval sets the Notify cadence in milliseconds of processed audio
	SetNotifyInterval(ms int)

	// NotifyInterval returns the effective Notify cadence in milliseconds
	NotifyInterval() int

	// ProcessedUSecs returns microseconds of audio handed to the hardware since start
	ProcessedUSecs() int64

	// ElapsedUSecs returns wall clock microseconds since start
	ElapsedUSecs() int64

	// Error returns the last error
	Error() audio.Error

	// State returns the processing state
	State() audio.State

	// SetVolume sets the software volume (0.0-1.0)
	SetVolume(v float64)

	// Volume returns the software volume
	Volume() float64

	// SetCategory sets the stream category (e.g. "music", "alarm")
	SetCategory(category string)

	// Category returns the stream category
	Category() string

	// SetListener sets the notification receiver; nil detaches it
	SetListener(l Listener)

	// Close stops the device and releases all resources
	Close() error
}
