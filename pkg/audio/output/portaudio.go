//go:build portaudio

// ABOUTME: PortAudio output driver
// ABOUTME: Cross-platform callback playback using PortAudio (build with -tags portaudio)
package output

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/Resonate-Protocol/audioout/pkg/audio"
	"github.com/gordonklaus/portaudio"
)

func init() {
	register(backendEntry{
		name:        PortAudioBackend,
		priority:    60,
		defaultable: true,
		available:   func() bool { return true },
		newDriver:   func(info audio.DeviceInfo) driver { return &portAudioDriver{info: info} },
		devices:     portAudioDevices,
		minNotify:   10 * time.Millisecond,
	})
}

// portAudioDriver plays through a PortAudio callback stream
type portAudioDriver struct {
	info   audio.DeviceInfo
	stream *portaudio.Stream
}

func (p *portAudioDriver) open(cfg driverConfig, r renderer) (driverParams, error) {
	if cfg.Format.BitDepth != 16 && cfg.Format.BitDepth != 32 {
		return driverParams{}, fmt.Errorf("%w: portaudio supports 16 and 32-bit output, got %d-bit", ErrUnsupportedFormat, cfg.Format.BitDepth)
	}

	if err := portaudio.Initialize(); err != nil {
		return driverParams{}, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	dev, err := portAudioDevice(p.info)
	if err != nil {
		portaudio.Terminate()
		return driverParams{}, err
	}

	period := periodFor(cfg.Format, cfg.BufferSize)
	params := portaudio.LowLatencyParameters(nil, dev)
	params.Output.Channels = cfg.Format.Channels
	params.SampleRate = float64(cfg.Format.SampleRate)
	params.FramesPerBuffer = period / cfg.Format.BytesPerFrame()

	var scratch []byte
	fill := func(n int) []byte {
		if cap(scratch) < n {
			scratch = make([]byte, n)
		}
		scratch = scratch[:n]
		r.render(scratch)
		return scratch
	}

	var callback interface{}
	switch cfg.Format.BitDepth {
	case 16:
		callback = func(out []int16) {
			buf := fill(len(out) * 2)
			for i := range out {
				out[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
			}
		}
	case 32:
		callback = func(out []int32) {
			buf := fill(len(out) * 4)
			for i := range out {
				out[i] = int32(binary.LittleEndian.Uint32(buf[i*4:]))
			}
		}
	}

	stream, err := portaudio.OpenStream(params, callback)
	if err != nil {
		portaudio.Terminate()
		return driverParams{}, fmt.Errorf("failed to open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return driverParams{}, fmt.Errorf("failed to start stream: %w", err)
	}

	p.stream = stream
	return driverParams{
		BufferSize: period * periodsPerBuffer,
		PeriodSize: period,
	}, nil
}

func (p *portAudioDriver) pause() error {
	if p.stream == nil {
		return nil
	}
	return p.stream.Stop()
}

func (p *portAudioDriver) resume() error {
	if p.stream == nil {
		return nil
	}
	return p.stream.Start()
}

func (p *portAudioDriver) close() error {
	if p.stream == nil {
		return nil
	}
	_ = p.stream.Stop()
	err := p.stream.Close()
	p.stream = nil
	if termErr := portaudio.Terminate(); err == nil {
		err = termErr
	}
	return err
}

// portAudioDevice resolves info to a PortAudio output device
func portAudioDevice(info audio.DeviceInfo) (*portaudio.DeviceInfo, error) {
	if isDefaultDevice(info) {
		dev, err := portaudio.DefaultOutputDevice()
		if err != nil {
			return nil, fmt.Errorf("no default output device: %w", err)
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	for _, d := range devices {
		if d.MaxOutputChannels > 0 && (d.Name == info.Name || d.Name == info.ID) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, info)
}

// portAudioDevices lists PortAudio output devices
func portAudioDevices(context.Context) ([]audio.DeviceInfo, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	var defaultName string
	if dev, err := portaudio.DefaultOutputDevice(); err == nil {
		defaultName = dev.Name
	}

	var out []audio.DeviceInfo
	for _, d := range devices {
		if d.MaxOutputChannels == 0 {
			continue
		}
		props := map[string]string{
			"max_channels": fmt.Sprint(d.MaxOutputChannels),
		}
		if d.HostApi != nil {
			props["host_api"] = d.HostApi.Name
		}
		out = append(out, audio.DeviceInfo{
			Backend:    PortAudioBackend,
			ID:         d.Name,
			Name:       d.Name,
			IsDefault:  d.Name == defaultName,
			Properties: props,
		})
	}
	return out, nil
}
