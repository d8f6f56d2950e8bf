// ABOUTME: Stream state machine and error taxonomy
// ABOUTME: Values reported by output devices through State() and Error()
package audio

// State is the processing state of an output stream
type State int

const (
	// StateStopped means the device is closed; it is the initial state
	StateStopped State = iota
	// StateActive means audio is being played
	StateActive
	// StateSuspended means processing is paused with buffered data retained
	StateSuspended
	// StateIdle means the stream is open but has no data to play
	StateIdle
)

// String returns the lower case state name
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateActive:
		return "active"
	case StateSuspended:
		return "suspended"
	case StateIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// Running reports whether the stream holds the system device
func (s State) Running() bool {
	return s == StateActive || s == StateIdle || s == StateSuspended
}

// Error is the last error reported by an output stream.
// It is a status value, not a Go error.
type Error int

const (
	// NoError means no problem has occurred
	NoError Error = iota
	// OpenError means the device could not be acquired
	OpenError
	// IOError means reading from or writing to the stream failed
	IOError
	// UnderrunError means the device ran out of audio data
	UnderrunError
	// FatalError means the backend failed and cannot recover
	FatalError
)

// String returns a short description
func (e Error) String() string {
	switch e {
	case NoError:
		return "no error"
	case OpenError:
		return "open error"
	case IOError:
		return "io error"
	case UnderrunError:
		return "underrun"
	case FatalError:
		return "fatal error"
	default:
		return "unknown error"
	}
}
