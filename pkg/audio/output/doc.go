// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides the Device backend interface, its factory and platform drivers
// Package output provides platform audio output devices.
//
// Every backend (malgo, oto, PortAudio, remote sinks, a null device) is exposed through
// the same Device interface. Devices are created by a Factory and do not touch the
// hardware until Start or StartWriter is called, so creating a device for a missing
// output never fails; the failure is reported as audio.OpenError instead.
//
// Example:
//
//	dev := output.DefaultFactory().CreateDefaultOutputDevice(audio.DefaultFormat())
//	defer dev.Close()
//	w := dev.StartWriter()
//	if w == nil {
//	    log.Fatal("open failed", "error", dev.Error())
//	}
//	_, err := w.Write(pcm)
package output
