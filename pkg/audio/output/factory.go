// ABOUTME: Output device factory and backend registry
// ABOUTME: Selects a platform backend for the default or a named device
package output

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Resonate-Protocol/audioout/pkg/audio"
	"github.com/charmbracelet/log"
)

// backendEntry describes one registered backend variant
type backendEntry struct {
	name     string
	priority int
	// defaultable backends may serve the system default device
	defaultable bool
	available   func() bool
	newDriver   func(info audio.DeviceInfo) driver
	devices     func(ctx context.Context) ([]audio.DeviceInfo, error)
	minNotify   time.Duration
}

var registry = struct {
	sync.RWMutex
	backends map[string]backendEntry
}{
	backends: make(map[string]backendEntry),
}

// register adds a backend; called from init in each driver file
func register(b backendEntry) {
	registry.Lock()
	defer registry.Unlock()
	if b.name == NullBackend {
		b.defaultable = true
	}
	registry.backends[b.name] = b
}

func lookupBackend(name string) (backendEntry, bool) {
	registry.RLock()
	defer registry.RUnlock()
	b, ok := registry.backends[name]
	return b, ok
}

// sortedBackends returns available backends, highest priority first
func sortedBackends() []backendEntry {
	registry.RLock()
	defer registry.RUnlock()

	list := make([]backendEntry, 0, len(registry.backends))
	for _, b := range registry.backends {
		if b.available == nil || b.available() {
			list = append(list, b)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].priority != list[j].priority {
			return list[i].priority > list[j].priority
		}
		return list[i].name < list[j].name
	})
	return list
}

// Factory creates output devices
type Factory struct {
	preferred string
	logger    *log.Logger
}

// FactoryOption configures a Factory
type FactoryOption func(*Factory)

// WithBackend makes name the backend for the default device
func WithBackend(name string) FactoryOption {
	return func(f *Factory) {
		f.preferred = name
	}
}

// WithLogger sets the logger handed to created devices
func WithLogger(logger *log.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// NewFactory creates a factory
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

var (
	defaultFactory     *Factory
	defaultFactoryOnce sync.Once
)

// DefaultFactory returns a shared factory using the highest priority backend
func DefaultFactory() *Factory {
	defaultFactoryOnce.Do(func() {
		defaultFactory = NewFactory()
	})
	return defaultFactory
}

// Backends returns the names of available backends, highest priority first
func (f *Factory) Backends() []string {
	list := sortedBackends()
	names := make([]string, 0, len(list))
	for _, b := range list {
		names = append(names, b.name)
	}
	return names
}

// DefaultOutputDevice returns the descriptor used for the system default output
func (f *Factory) DefaultOutputDevice() audio.DeviceInfo {
	if f.preferred != "" {
		return audio.DeviceInfo{Backend: f.preferred, Name: "default", IsDefault: true}
	}
	for _, b := range sortedBackends() {
		if b.defaultable {
			return audio.DeviceInfo{Backend: b.name, Name: "default", IsDefault: true}
		}
	}
	return audio.DeviceInfo{Backend: NullBackend, Name: "default", IsDefault: true}
}

// CreateDefaultOutputDevice creates a device for the default output
func (f *Factory) CreateDefaultOutputDevice(format audio.Format) Device {
	return f.CreateOutputDevice(f.DefaultOutputDevice(), format)
}

// CreateOutputDevice creates a device for info.
// It never fails; problems surface as audio.OpenError once the device starts.
func (f *Factory) CreateOutputDevice(info audio.DeviceInfo, format audio.Format) Device {
	if info.IsNull() {
		info = f.DefaultOutputDevice()
	}
	if info.Backend == "" {
		info.Backend = f.DefaultOutputDevice().Backend
	}

	b, ok := lookupBackend(info.Backend)
	if !ok {
		err := fmt.Errorf("%w: %q", ErrUnknownBackend, info.Backend)
		return newStream(info.Backend, info, format, unavailableDriver{err: err}, 0, f.logger)
	}
	if b.available != nil && !b.available() {
		err := fmt.Errorf("backend %s is not available on this system", b.name)
		return newStream(b.name, info, format, unavailableDriver{err: err}, b.minNotify, f.logger)
	}

	return newStream(b.name, info, format, b.newDriver(info), b.minNotify, f.logger)
}

// OutputDevices lists devices of every available backend.
// Backends that fail to enumerate are logged and skipped.
func (f *Factory) OutputDevices(ctx context.Context) ([]audio.DeviceInfo, error) {
	var devices []audio.DeviceInfo
	for _, b := range sortedBackends() {
		if b.devices == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return devices, err
		}
		list, err := b.devices(ctx)
		if err != nil {
			f.logger.Warn("Failed to list output devices", "backend", b.name, "error", err)
			continue
		}
		devices = append(devices, list...)
	}
	return devices, nil
}
