//go:build !portaudio

// ABOUTME: PortAudio stub when library not available
// ABOUTME: Registers the backend as unavailable so opening it reports OpenError
package output

import (
	"errors"

	"github.com/Resonate-Protocol/audioout/pkg/audio"
)

var errPortAudioDisabled = errors.New("PortAudio support not enabled (build with -tags portaudio)")

func init() {
	register(backendEntry{
		name:      PortAudioBackend,
		priority:  60,
		available: func() bool { return false },
		newDriver: func(audio.DeviceInfo) driver {
			return unavailableDriver{err: errPortAudioDisabled}
		},
	})
}
