package system

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shirou/gopsutil/v3/net"
)

func TestCatalogUnique(t *testing.T) {
	names := make(map[string]bool)
	paths := make(map[string]bool)
	for _, c := range Catalog() {
		if names[c.Name] || paths[c.Path] {
			t.Errorf("duplicate category %s (%s)", c.Name, c.Path)
		}
		names[c.Name] = true
		paths[c.Path] = true
		if c.MinInterval < 1 {
			t.Errorf("%s: min interval %d < 1", c.Name, c.MinInterval)
		}
		if c.Collect == nil {
			t.Errorf("%s: no collector", c.Name)
		}
		if !strings.HasPrefix(c.Path, "/") {
			t.Errorf("%s: path %q is not absolute", c.Name, c.Path)
		}
	}
}

func TestLookup(t *testing.T) {
	tests := []struct {
		name        string
		wantOK      bool
		minInterval int
	}{
		{"system-disk", true, 30},
		{"system-temperature", true, 5},
		{"netstat", true, 10},
		{"system-unix-time-seconds", true, 1},
		{"serial-ports", true, 10},
		{"udev", true, 10},
		{"platform", false, 0},
	}
	for _, tt := range tests {
		c, ok := Lookup(tt.name)
		if ok != tt.wantOK {
			t.Errorf("Lookup(%q) ok = %v, want %v", tt.name, ok, tt.wantOK)
			continue
		}
		if ok && c.MinInterval != tt.minInterval {
			t.Errorf("%s: min interval %d, want %d", tt.name, c.MinInterval, tt.minInterval)
		}
	}
}

func TestUnixTimeSeconds(t *testing.T) {
	v, err := UnixTimeSeconds(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if secs, ok := v.(int64); !ok || secs <= 0 {
		t.Errorf("got %v", v)
	}
}

func TestBuildNetstat(t *testing.T) {
	tcp := []net.ConnectionStat{{
		Laddr:  net.Addr{IP: "127.0.0.1", Port: 6030},
		Raddr:  net.Addr{IP: "0.0.0.0", Port: 0},
		Status: "LISTEN",
		Pid:    42,
	}}
	udp := []net.ConnectionStat{{
		Laddr: net.Addr{IP: "0.0.0.0", Port: 68},
	}}

	want := NetstatStat{
		TCP: []TCPSocket{{
			Local:  Endpoint{Address: "127.0.0.1", Port: 6030},
			Remote: Endpoint{Address: "0.0.0.0"},
			PIDs:   []int32{42},
			State:  "LISTEN",
		}},
		UDP: []UDPSocket{{
			Local: Endpoint{Address: "0.0.0.0", Port: 68},
			PIDs:  []int32{},
		}},
	}
	if diff := cmp.Diff(want, buildNetstat(tcp, udp)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
