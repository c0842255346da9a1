// Package system collects host telemetry through gopsutil and lists the
// serial ports and devices attached to the host.
package system

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Category is one telemetry snapshot exposed over HTTP and to the recorder.
type Category struct {
	Name        string        // recorder key, e.g. "system-cpu"
	Path        string        // HTTP route
	TTL         time.Duration // response cache lifetime, 0 disables caching
	MinInterval int           // minimum recorder interval in seconds
	Text        bool          // served as text/plain
	Collect     func(ctx context.Context) (any, error)
}

var catalog = []Category{
	{Name: "netstat", Path: "/netstat", TTL: 10 * time.Second, MinInterval: 10, Collect: Netstat},
	{Name: "serial-ports", Path: "/serial", TTL: 5 * time.Second, MinInterval: 10, Collect: SerialPorts},
	{Name: "system-cpu", Path: "/system/cpu", TTL: time.Second, MinInterval: 10, Collect: CPU},
	{Name: "system-disk", Path: "/system/disk", TTL: time.Second, MinInterval: 30, Collect: Disk},
	{Name: "system-info", Path: "/system/info", TTL: time.Second, MinInterval: 1, Collect: Info},
	{Name: "system-memory", Path: "/system/memory", TTL: 5 * time.Second, MinInterval: 10, Collect: Memory},
	{Name: "system-network", Path: "/system/network", TTL: 5 * time.Second, MinInterval: 10, Collect: Network},
	{Name: "system-process", Path: "/system/process", TTL: 5 * time.Second, MinInterval: 10, Collect: Process},
	{Name: "system-temperature", Path: "/system/temperature", TTL: 5 * time.Second, MinInterval: 5, Collect: Temperature},
	{Name: "system-unix-time-seconds", Path: "/system/unix_time_seconds", MinInterval: 1, Text: true, Collect: UnixTimeSeconds},
	{Name: "udev", Path: "/udev", TTL: 10 * time.Second, MinInterval: 10, Collect: Udev},
}

// Catalog returns every telemetry category, sorted by name.
func Catalog() []Category {
	out := make([]Category, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup returns the category with the given recorder key.
func Lookup(name string) (Category, bool) {
	for _, c := range catalog {
		if c.Name == name {
			return c, true
		}
	}
	return Category{}, false
}

// Names returns the recorder keys of all categories.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for _, c := range catalog {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names
}

// Everything collects all /system categories into one object keyed by
// their short name ("cpu", "disk", ...). Unix time is not included.
func Everything(ctx context.Context) (any, error) {
	parts := []struct {
		key     string
		collect func(context.Context) (any, error)
	}{
		{"cpu", CPU},
		{"disk", Disk},
		{"info", Info},
		{"memory", Memory},
		{"network", Network},
		{"process", Process},
		{"temperature", Temperature},
	}
	out := make(map[string]any, len(parts))
	for _, p := range parts {
		v, err := p.collect(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.key, err)
		}
		out[p.key] = v
	}
	return out, nil
}
