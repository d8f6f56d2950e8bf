// ABOUTME: High-level audio output API
// ABOUTME: Wraps one backend device and relays its notifications
// Package audioout provides the main entry point for playing PCM audio.
//
// An Output owns exactly one backend device, chosen by a device factory when the
// Output is created, and forwards every operation to it. Backends live in the
// output package: malgo, oto, portaudio, a remote network sink and a null device.
//
// Example pull model:
//
//	out := audioout.New(audio.DefaultFormat())
//	defer out.Close()
//
//	w := out.StartWriter()
//	if w == nil {
//	    return fmt.Errorf("output failed: %s", out.Error())
//	}
//	err := audioout.WriteAll(ctx, out, w, pcm)
//
// Example push model:
//
//	out := audioout.NewForDevice(info, format)
//	out.OnStateChanged(func(s audio.State) { log.Info("state", "state", s) })
//	out.Start(reader)
package audioout
