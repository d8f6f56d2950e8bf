// ABOUTME: mDNS service discovery package
// ABOUTME: Discover and advertise audioout sinks on the local network
// Package discovery provides mDNS service discovery for audioout sinks.
//
// Sinks advertise themselves as _audioout._tcp with TXT records describing
// the protocol path and accepted codecs. The remote output backend browses
// for them to list devices.
//
// Example:
//
//	sinks, err := discovery.Discover(ctx, 2*time.Second)
//	for _, s := range sinks {
//	    fmt.Printf("Found: %s at %s\n", s.Name, s.URL())
//	}
package discovery
