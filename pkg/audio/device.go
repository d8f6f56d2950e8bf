// ABOUTME: Output device descriptor
// ABOUTME: Identifies a physical or remote output device by backend and ID
package audio

import "fmt"

// DeviceInfo identifies an output device.
// The zero value selects the system default output.
type DeviceInfo struct {
	// Backend is the registered backend name ("malgo", "oto", "remote", ...)
	Backend string
	// ID is the backend specific device identifier
	ID string
	// Name is the human readable device name
	Name string
	// IsDefault marks the backend's default output device
	IsDefault bool
	// Properties holds extra backend specific attributes
	Properties map[string]string
}

// IsNull reports whether d is the zero descriptor
func (d DeviceInfo) IsNull() bool {
	return d.Backend == "" && d.ID == "" && d.Name == ""
}

// Property returns a property value or def when it is not set
func (d DeviceInfo) Property(key, def string) string {
	if v, ok := d.Properties[key]; ok && v != "" {
		return v
	}
	return def
}

func (d DeviceInfo) String() string {
	if d.IsNull() {
		return "default"
	}
	name := d.Name
	if name == "" {
		name = d.ID
	}
	if d.Backend == "" {
		return name
	}
	return fmt.Sprintf("%s:%s", d.Backend, name)
}
