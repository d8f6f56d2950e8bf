// ABOUTME: mDNS service discovery for audioout sinks
// ABOUTME: Handles both advertisement (sink side) and one-shot browsing (client side)
package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Resonate-Protocol/audioout/pkg/protocol"
	"github.com/charmbracelet/log"
	"github.com/hashicorp/mdns"
)

// ServiceType is the DNS-SD service sinks advertise
const ServiceType = "_audioout._tcp"

const domain = "local"

// Config holds advertisement configuration
type Config struct {
	// Instance is the human readable sink name
	Instance string
	Port     int
	// Text is published as key=value TXT records
	Text map[string]string
}

// SinkInfo describes a discovered sink
type SinkInfo struct {
	Name string
	Host string
	Port int
	Text map[string]string
}

// URL returns the sink's WebSocket URL
func (s SinkInfo) URL() string {
	u := protocol.URL(s.Host, s.Port)
	if path := s.Text["path"]; path != "" && path != protocol.DefaultPath {
		u = strings.TrimSuffix(u, protocol.DefaultPath) + path
	}
	return u
}

// Manager advertises a sink via mDNS
type Manager struct {
	config Config
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	server *mdns.Server
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config: config,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Advertise publishes the sink until Stop is called
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.Instance,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		textRecords(m.config.Text),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.mu.Lock()
	m.server = server
	m.mu.Unlock()

	log.Info("Advertising mDNS service", "name", m.config.Instance, "port", m.config.Port, "type", ServiceType)

	go func() {
		<-m.ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.server != nil {
			_ = m.server.Shutdown()
			m.server = nil
		}
	}()

	return nil
}

// Stop stops advertising
func (m *Manager) Stop() {
	m.cancel()
}

// Discover browses for sinks for up to timeout, or until ctx is done
func Discover(ctx context.Context, timeout time.Duration) ([]SinkInfo, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	found := make(map[string]SinkInfo)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for entry := range entries {
			sink, ok := sinkFromEntry(entry)
			if !ok {
				continue
			}
			log.Debug("Discovered sink", "name", sink.Name, "host", sink.Host, "port", sink.Port)
			found[sink.Name] = sink
		}
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Domain = domain
	params.Timeout = timeout
	params.Entries = entries
	params.DisableIPv6 = true

	err := mdns.QueryContext(ctx, params)
	close(entries)
	<-done

	if err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("mdns query failed: %w", err)
	}

	sinks := make([]SinkInfo, 0, len(found))
	for _, s := range found {
		sinks = append(sinks, s)
	}
	sort.Slice(sinks, func(i, j int) bool { return sinks[i].Name < sinks[j].Name })
	return sinks, nil
}

// sinkFromEntry converts a resolved service entry
func sinkFromEntry(entry *mdns.ServiceEntry) (SinkInfo, bool) {
	if entry == nil || entry.Port == 0 {
		return SinkInfo{}, false
	}

	var host string
	switch {
	case entry.AddrV4 != nil:
		host = entry.AddrV4.String()
	case entry.AddrV6 != nil:
		host = entry.AddrV6.String()
	default:
		host = strings.TrimSuffix(entry.Host, ".")
	}
	if host == "" {
		return SinkInfo{}, false
	}

	return SinkInfo{
		Name: instanceName(entry.Name),
		Host: host,
		Port: entry.Port,
		Text: parseText(entry.InfoFields),
	}, true
}

// instanceName strips the service suffix from "Kitchen._audioout._tcp.local."
func instanceName(full string) string {
	if i := strings.Index(full, "."+ServiceType); i > 0 {
		full = full[:i]
	}
	return strings.ReplaceAll(full, `\ `, " ")
}

func textRecords(text map[string]string) []string {
	keys := make([]string, 0, len(text))
	for k := range text {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	records := make([]string, 0, len(keys))
	for _, k := range keys {
		records = append(records, k+"="+text[k])
	}
	return records
}

func parseText(fields []string) map[string]string {
	text := make(map[string]string, len(fields))
	for _, f := range fields {
		k, v, _ := strings.Cut(f, "=")
		if k != "" {
			text[k] = v
		}
	}
	return text
}

// getLocalIPs returns local IP addresses
func getLocalIPs() ([]net.IP, error) {
	ips := []net.IP{}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
