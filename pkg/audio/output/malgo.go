// ABOUTME: Malgo-based output driver with 8/16/24/32-bit support
// ABOUTME: Uses miniaudio via malgo for callback driven playback and device enumeration
package output

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/audioout/pkg/audio"
	"github.com/charmbracelet/log"
	"github.com/gen2brain/malgo"
)

// MalgoBackend is the name of the miniaudio backend
const MalgoBackend = "malgo"

func init() {
	register(backendEntry{
		name:        MalgoBackend,
		priority:    100,
		defaultable: true,
		available:   func() bool { return true },
		newDriver:   func(info audio.DeviceInfo) driver { return &malgoDriver{info: info} },
		devices:     malgoDevices,
		minNotify:   5 * time.Millisecond,
	})
}

// malgoDriver plays through a miniaudio playback device
type malgoDriver struct {
	info     audio.DeviceInfo
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	stopping atomic.Bool
}

func (m *malgoDriver) open(cfg driverConfig, r renderer) (driverParams, error) {
	format, err := malgoFormat(cfg.Format.BitDepth)
	if err != nil {
		return driverParams{}, err
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Debug("miniaudio", "message", strings.TrimSpace(message))
	})
	if err != nil {
		return driverParams{}, fmt.Errorf("failed to initialize malgo context: %w", err)
	}

	frameSize := cfg.Format.BytesPerFrame()
	bufferFrames := cfg.BufferSize / frameSize
	periodFrames := bufferFrames / periodsPerBuffer
	if periodFrames < 1 {
		periodFrames = 1
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = format
	deviceConfig.Playback.Channels = uint32(cfg.Format.Channels)
	deviceConfig.SampleRate = uint32(cfg.Format.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(periodFrames)
	deviceConfig.Periods = periodsPerBuffer
	deviceConfig.Alsa.NoMMap = 1

	// Keep the enumerated list alive until InitDevice copied the ID
	var devices []malgo.DeviceInfo
	if !isDefaultDevice(m.info) {
		devices, err = ctx.Devices(malgo.Playback)
		if err != nil {
			m.freeContext(ctx)
			return driverParams{}, fmt.Errorf("failed to list playback devices: %w", err)
		}
		idx := findMalgoDevice(devices, m.info)
		if idx < 0 {
			m.freeContext(ctx)
			return driverParams{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, m.info)
		}
		deviceConfig.Playback.DeviceID = devices[idx].ID.Pointer()
	}

	m.stopping.Store(false)
	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutputSample, pInputSamples []byte, frameCount uint32) {
			n := int(frameCount) * frameSize
			if n > len(pOutputSample) {
				n = len(pOutputSample)
			}
			r.render(pOutputSample[:n])
		},
		Stop: func() {
			if !m.stopping.Load() {
				r.fail(fmt.Errorf("playback device stopped unexpectedly"))
			}
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		m.freeContext(ctx)
		return driverParams{}, fmt.Errorf("failed to initialize playback device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		m.freeContext(ctx)
		return driverParams{}, fmt.Errorf("failed to start device: %w", err)
	}

	m.malgoCtx = ctx
	m.device = device

	log.Debug("Malgo device started",
		"format", formatName(format),
		"rate", cfg.Format.SampleRate,
		"channels", cfg.Format.Channels,
		"period_frames", periodFrames)

	return driverParams{
		BufferSize: periodFrames * periodsPerBuffer * frameSize,
		PeriodSize: periodFrames * frameSize,
	}, nil
}

func (m *malgoDriver) pause() error {
	if m.device == nil {
		return nil
	}
	m.stopping.Store(true)
	return m.device.Stop()
}

func (m *malgoDriver) resume() error {
	if m.device == nil {
		return nil
	}
	m.stopping.Store(false)
	return m.device.Start()
}

func (m *malgoDriver) close() error {
	m.stopping.Store(true)
	if m.device != nil {
		if err := m.device.Stop(); err != nil {
			log.Warn("Device stop error", "error", err)
		}
		m.device.Uninit()
		m.device = nil
	}
	if m.malgoCtx != nil {
		m.freeContext(m.malgoCtx)
		m.malgoCtx = nil
	}
	return nil
}

func (m *malgoDriver) freeContext(ctx *malgo.AllocatedContext) {
	if err := ctx.Uninit(); err != nil {
		log.Warn("Malgo context uninit error", "error", err)
	}
	ctx.Free()
}

// malgoDevices enumerates miniaudio playback devices
func malgoDevices(context.Context) ([]audio.DeviceInfo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	list, err := ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("failed to list playback devices: %w", err)
	}

	devices := make([]audio.DeviceInfo, 0, len(list))
	for _, d := range list {
		devices = append(devices, audio.DeviceInfo{
			Backend:   MalgoBackend,
			ID:        d.ID.String(),
			Name:      d.Name(),
			IsDefault: d.IsDefault != 0,
		})
	}
	return devices, nil
}

func findMalgoDevice(devices []malgo.DeviceInfo, info audio.DeviceInfo) int {
	for i, d := range devices {
		if info.ID != "" && d.ID.String() == info.ID {
			return i
		}
	}
	for i, d := range devices {
		if info.Name != "" && d.Name() == info.Name {
			return i
		}
	}
	return -1
}

// isDefaultDevice reports whether info asks for the backend's default output
func isDefaultDevice(info audio.DeviceInfo) bool {
	return info.ID == "" && (info.Name == "" || info.Name == "default")
}

// malgoFormat maps bit depth to the miniaudio sample format
func malgoFormat(bitDepth int) (malgo.FormatType, error) {
	switch bitDepth {
	case 8:
		return malgo.FormatU8, nil
	case 16:
		return malgo.FormatS16, nil
	case 24:
		return malgo.FormatS24, nil
	case 32:
		return malgo.FormatS32, nil
	default:
		return malgo.FormatUnknown, fmt.Errorf("%w: %d-bit (supported: 8, 16, 24, 32)", ErrUnsupportedFormat, bitDepth)
	}
}

// formatName returns human-readable format name
func formatName(format malgo.FormatType) string {
	switch format {
	case malgo.FormatU8:
		return "U8"
	case malgo.FormatS16:
		return "S16"
	case malgo.FormatS24:
		return "S24"
	case malgo.FormatS32:
		return "S32"
	default:
		return fmt.Sprintf("Unknown(%d)", format)
	}
}
