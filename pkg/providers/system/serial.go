package system

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"go.bug.st/serial/enumerator"
)

var (
	listPorts    = enumerator.GetDetailedPortsList
	serialByPath = "/dev/serial/by-path"
)

type USBPortInfo struct {
	VID          uint16  `json:"vid"`
	PID          uint16  `json:"pid"`
	SerialNumber *string `json:"serial_number"`
	Manufacturer *string `json:"manufacturer"`
	Product      *string `json:"product"`
}

// PortType encodes as {"UsbPort": {...}} for USB ports and "Unknown"
// otherwise.
type PortType struct {
	USB *USBPortInfo
}

func (p PortType) MarshalJSON() ([]byte, error) {
	if p.USB == nil {
		return json.Marshal("Unknown")
	}
	return json.Marshal(map[string]*USBPortInfo{"UsbPort": p.USB})
}

type PortInfo struct {
	PortName   string   `json:"port_name"`
	PortByPath *string  `json:"port_by_path"`
	PortType   PortType `json:"port_type"`
}

type SerialPortsStat struct {
	Ports []PortInfo `json:"ports"`
}

// SerialPorts lists the serial ports of the host.
func SerialPorts(ctx context.Context) (any, error) {
	ports, err := listPorts()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}
	links, err := byPathLinks(serialByPath)
	if err != nil {
		return nil, err
	}
	return buildSerial(ports, links), nil
}

// byPathLinks maps device nodes to their stable by-path names. A missing
// directory means no port has one.
func byPathLinks(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	links := make(map[string]string, len(entries))
	for _, e := range entries {
		link := filepath.Join(dir, e.Name())
		node, err := filepath.EvalSymlinks(link)
		if err != nil {
			continue
		}
		links[node] = link
	}
	return links, nil
}

func buildSerial(ports []*enumerator.PortDetails, links map[string]string) SerialPortsStat {
	out := SerialPortsStat{Ports: make([]PortInfo, 0, len(ports))}
	for _, p := range ports {
		if p == nil || p.Name == "" {
			continue
		}
		info := PortInfo{PortName: p.Name}
		if link, ok := links[p.Name]; ok {
			info.PortByPath = &link
		}
		if p.IsUSB {
			info.PortType.USB = &USBPortInfo{
				VID:          hexID(p.VID),
				PID:          hexID(p.PID),
				SerialNumber: optional(p.SerialNumber),
				Product:      optional(p.Product),
			}
		}
		out.Ports = append(out.Ports, info)
	}
	sort.Slice(out.Ports, func(i, j int) bool {
		return out.Ports[i].PortName < out.Ports[j].PortName
	})
	return out
}

func hexID(s string) uint16 {
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0
	}
	return uint16(v)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
