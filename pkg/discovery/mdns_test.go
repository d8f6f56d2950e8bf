// ABOUTME: Tests for mDNS service discovery
// ABOUTME: Validates Manager lifecycle, TXT handling and entry conversion
package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/hashicorp/mdns"
)

func TestNewManager(t *testing.T) {
	config := Config{
		Instance: "test-sink",
		Port:     8928,
		Text:     map[string]string{"path": "/audioout"},
	}

	manager := NewManager(config)
	if manager == nil {
		t.Fatal("NewManager returned nil")
	}

	if manager.config.Instance != "test-sink" {
		t.Errorf("Expected Instance 'test-sink', got '%s'", manager.config.Instance)
	}
	if manager.config.Port != 8928 {
		t.Errorf("Expected Port 8928, got %d", manager.config.Port)
	}
	if manager.ctx == nil || manager.cancel == nil {
		t.Error("context should be initialized")
	}

	manager.Stop()
}

func TestManagerStop(t *testing.T) {
	manager := NewManager(Config{Instance: "test", Port: 8080})

	manager.Stop()

	select {
	case <-manager.ctx.Done():
	case <-time.After(100 * time.Millisecond):
		t.Error("Context should be cancelled after Stop()")
	}
}

func TestGetLocalIPs(t *testing.T) {
	ips, err := getLocalIPs()
	if err != nil {
		t.Fatalf("getLocalIPs failed: %v", err)
	}

	// Environment dependent; just verify the filter
	if ips == nil {
		t.Error("getLocalIPs returned nil slice")
	}
	for _, ip := range ips {
		if ip.To4() == nil {
			t.Errorf("getLocalIPs returned non-IPv4 address: %v", ip)
		}
		if ip.IsLoopback() {
			t.Errorf("getLocalIPs returned loopback address: %v", ip)
		}
	}
}

func TestTextRecords(t *testing.T) {
	records := textRecords(map[string]string{"path": "/audioout", "codecs": "pcm,opus"})
	if len(records) != 2 || records[0] != "codecs=pcm,opus" || records[1] != "path=/audioout" {
		t.Errorf("unexpected records: %v", records)
	}

	text := parseText(append(records, "flag", "=novalue"))
	if text["codecs"] != "pcm,opus" || text["path"] != "/audioout" {
		t.Errorf("unexpected parsed text: %v", text)
	}
	if _, ok := text["flag"]; !ok {
		t.Error("bare key should be kept")
	}
	if len(text) != 3 {
		t.Errorf("expected 3 keys, got %d", len(text))
	}
}

func TestSinkFromEntry(t *testing.T) {
	entry := &mdns.ServiceEntry{
		Name:       `Living\ Room._audioout._tcp.local.`,
		Host:       "living.local.",
		AddrV4:     net.ParseIP("192.168.1.20"),
		Port:       8928,
		InfoFields: []string{"path=/custom", "codecs=pcm"},
	}

	sink, ok := sinkFromEntry(entry)
	if !ok {
		t.Fatal("expected entry to convert")
	}
	if sink.Name != "Living Room" {
		t.Errorf("Expected name 'Living Room', got %q", sink.Name)
	}
	if sink.URL() != "ws://192.168.1.20:8928/custom" {
		t.Errorf("unexpected URL %q", sink.URL())
	}

	entry.InfoFields = nil
	sink, _ = sinkFromEntry(entry)
	if sink.URL() != "ws://192.168.1.20:8928/audioout" {
		t.Errorf("unexpected default URL %q", sink.URL())
	}

	if _, ok := sinkFromEntry(&mdns.ServiceEntry{Name: "x"}); ok {
		t.Error("entry without port should be rejected")
	}
}

func TestDiscoverCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sinks, err := Discover(ctx, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("cancelled discovery should not fail: %v", err)
	}
	if len(sinks) != 0 {
		t.Errorf("expected no sinks, got %d", len(sinks))
	}
}
