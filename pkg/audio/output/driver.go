// ABOUTME: Platform driver contract used by the stream engine
// ABOUTME: Drivers only move bytes; state, buffering and timing live in the stream
package output

import (
	"github.com/Resonate-Protocol/audioout/pkg/audio"
)

const periodsPerBuffer = 4

// driverConfig is what a driver needs to open the hardware
type driverConfig struct {
	Format     audio.Format
	BufferSize int // bytes, whole frames
	Device     audio.DeviceInfo
}

// driverParams reports what the hardware actually granted
type driverParams struct {
	BufferSize int
	PeriodSize int
}

// renderer is implemented by the stream for the driver's callback context
type renderer interface {
	// render fills p completely, zero padding on underrun
	render(p []byte)
	// fail reports an unrecoverable driver error
	fail(err error)
}

// driver is one platform backend variant.
// open, pause, resume and close are serialized by the stream.
// close must not return while the driver can still call render.
type driver interface {
	open(cfg driverConfig, r renderer) (driverParams, error)
	pause() error
	resume() error
	close() error
}

// unavailableDriver fails every open with a fixed error
type unavailableDriver struct {
	err error
}

func (d unavailableDriver) open(driverConfig, renderer) (driverParams, error) {
	return driverParams{}, d.err
}

func (d unavailableDriver) pause() error  { return nil }
func (d unavailableDriver) resume() error { return nil }
func (d unavailableDriver) close() error  { return nil }

// periodFor splits a buffer into periods of whole frames
func periodFor(format audio.Format, bufferSize int) int {
	frame := format.BytesPerFrame()
	if frame <= 0 {
		return 0
	}
	period := (bufferSize / periodsPerBuffer / frame) * frame
	if period < frame {
		period = frame
	}
	return period
}

// roundToFrame rounds n down to whole frames, keeping at least one frame
func roundToFrame(format audio.Format, n int) int {
	frame := format.BytesPerFrame()
	if frame <= 0 {
		return n
	}
	n = (n / frame) * frame
	if n < frame {
		n = frame
	}
	return n
}

// PortAudioBackend is the name of the PortAudio backend
const PortAudioBackend = "portaudio"
