package system

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

type CPUStat struct {
	Name      string  `json:"name"`
	Usage     float64 `json:"usage"`
	Frequency float64 `json:"frequency"`
	VendorID  string  `json:"vendor_id"`
	Brand     string  `json:"brand"`
}

// CPU reports per-CPU usage since the previous call.
func CPU(ctx context.Context) (any, error) {
	usage, err := cpu.PercentWithContext(ctx, 0, true)
	if err != nil {
		return nil, fmt.Errorf("cpu percent: %w", err)
	}
	infos, err := cpu.InfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("cpu info: %w", err)
	}

	out := make([]CPUStat, len(usage))
	for i, u := range usage {
		out[i] = CPUStat{Name: fmt.Sprintf("cpu%d", i), Usage: u}
		if i < len(infos) {
			out[i].Frequency = infos[i].Mhz
			out[i].VendorID = infos[i].VendorID
			out[i].Brand = infos[i].ModelName
		}
	}
	return out, nil
}

type DiskStat struct {
	Name           string `json:"name"`
	FilesystemType string `json:"filesystem_type"`
	MountPoint     string `json:"mount_point"`
	AvailableBytes uint64 `json:"available_space_B"`
	TotalBytes     uint64 `json:"total_space_B"`
}

// Disk reports physical mounted filesystems and their space.
func Disk(ctx context.Context) (any, error) {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("disk partitions: %w", err)
	}
	out := make([]DiskStat, 0, len(parts))
	for _, p := range parts {
		u, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil {
			continue
		}
		out = append(out, DiskStat{
			Name:           p.Device,
			FilesystemType: p.Fstype,
			MountPoint:     p.Mountpoint,
			AvailableBytes: u.Free,
			TotalBytes:     u.Total,
		})
	}
	return out, nil
}

type InfoStat struct {
	SystemName    string `json:"system_name"`
	KernelVersion string `json:"kernel_version"`
	OSVersion     string `json:"os_version"`
	HostName      string `json:"host_name"`
	Arch          string `json:"arch"`
	CPUModel      string `json:"cpu_model"`
	UptimeSec     uint64 `json:"uptime_sec"`
}

// Info reports OS, kernel and host identification.
func Info(ctx context.Context) (any, error) {
	h, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("host info: %w", err)
	}
	out := InfoStat{
		SystemName:    h.Platform,
		KernelVersion: h.KernelVersion,
		OSVersion:     h.PlatformVersion,
		HostName:      h.Hostname,
		Arch:          h.KernelArch,
		UptimeSec:     h.Uptime,
	}
	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		out.CPUModel = infos[0].ModelName
	}
	return out, nil
}

type UsageKB struct {
	UsedKB  uint64 `json:"used_kB"`
	TotalKB uint64 `json:"total_kB"`
}

type MemoryStat struct {
	RAM  UsageKB `json:"ram"`
	Swap UsageKB `json:"swap"`
}

// Memory reports RAM and swap usage in kilobytes.
func Memory(ctx context.Context) (any, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("virtual memory: %w", err)
	}
	sw, err := mem.SwapMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("swap memory: %w", err)
	}
	return MemoryStat{
		RAM:  UsageKB{UsedKB: vm.Used / 1024, TotalKB: vm.Total / 1024},
		Swap: UsageKB{UsedKB: sw.Used / 1024, TotalKB: sw.Total / 1024},
	}, nil
}

type NetworkStat struct {
	Name               string   `json:"name"`
	MAC                string   `json:"mac"`
	IPs                []string `json:"ips"`
	IsUp               bool     `json:"is_up"`
	IsLoopback         bool     `json:"is_loopback"`
	TotalReceived      uint64   `json:"total_received_B"`
	TotalTransmitted   uint64   `json:"total_transmitted_B"`
	PacketsReceived    uint64   `json:"total_packets_received"`
	PacketsTransmitted uint64   `json:"total_packets_transmitted"`
	ErrorsReceived     uint64   `json:"total_errors_on_received"`
	ErrorsTransmitted  uint64   `json:"total_errors_on_transmitted"`
}

// Network reports per-interface addresses and counters.
func Network(ctx context.Context) (any, error) {
	ifaces, err := net.InterfacesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("interfaces: %w", err)
	}
	counters, err := net.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("io counters: %w", err)
	}
	byName := make(map[string]net.IOCountersStat, len(counters))
	for _, c := range counters {
		byName[c.Name] = c
	}

	out := make([]NetworkStat, 0, len(ifaces))
	for _, iface := range ifaces {
		s := NetworkStat{
			Name: iface.Name,
			MAC:  iface.HardwareAddr,
			IPs:  make([]string, 0, len(iface.Addrs)),
		}
		for _, a := range iface.Addrs {
			s.IPs = append(s.IPs, a.Addr)
		}
		for _, f := range iface.Flags {
			switch f {
			case "up":
				s.IsUp = true
			case "loopback":
				s.IsLoopback = true
			}
		}
		if c, ok := byName[iface.Name]; ok {
			s.TotalReceived = c.BytesRecv
			s.TotalTransmitted = c.BytesSent
			s.PacketsReceived = c.PacketsRecv
			s.PacketsTransmitted = c.PacketsSent
			s.ErrorsReceived = c.Errin
			s.ErrorsTransmitted = c.Errout
		}
		out = append(out, s)
	}
	return out, nil
}

type ProcessStat struct {
	Name           string   `json:"name"`
	PID            int32    `json:"pid"`
	Status         string   `json:"status"`
	Command        []string `json:"command"`
	ExecutablePath string   `json:"executable_path"`
	WorkingDir     string   `json:"working_directory"`
	UsedMemoryKB   uint64   `json:"used_memory_kB"`
	VirtualMemKB   uint64   `json:"virtual_memory_kB"`
	ParentPID      int32    `json:"parent_process"`
	StartTimeMs    int64    `json:"start_time_ms"`
	CPUUsage       float64  `json:"cpu_usage"`
}

// Process reports the process table. Fields a process does not let us
// read are left empty.
func Process(ctx context.Context) (any, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("processes: %w", err)
	}
	out := make([]ProcessStat, 0, len(procs))
	for _, p := range procs {
		s := ProcessStat{PID: p.Pid}
		s.Name, _ = p.NameWithContext(ctx)
		if st, err := p.StatusWithContext(ctx); err == nil && len(st) > 0 {
			s.Status = st[0]
		}
		s.Command, _ = p.CmdlineSliceWithContext(ctx)
		s.ExecutablePath, _ = p.ExeWithContext(ctx)
		s.WorkingDir, _ = p.CwdWithContext(ctx)
		if mi, err := p.MemoryInfoWithContext(ctx); err == nil {
			s.UsedMemoryKB = mi.RSS / 1024
			s.VirtualMemKB = mi.VMS / 1024
		}
		s.ParentPID, _ = p.PpidWithContext(ctx)
		s.StartTimeMs, _ = p.CreateTimeWithContext(ctx)
		s.CPUUsage, _ = p.CPUPercentWithContext(ctx)
		out = append(out, s)
	}
	return out, nil
}

type TemperatureStat struct {
	Name     string  `json:"name"`
	Current  float64 `json:"temperature"`
	Maximum  float64 `json:"maximum_temperature"`
	Critical float64 `json:"critical_temperature"`
}

// Temperature reports hardware sensor readings. Partial readings are
// returned when some sensors fail.
func Temperature(ctx context.Context) (any, error) {
	temps, err := host.SensorsTemperaturesWithContext(ctx)
	if err != nil && len(temps) == 0 {
		return nil, fmt.Errorf("sensors: %w", err)
	}
	out := make([]TemperatureStat, 0, len(temps))
	for _, t := range temps {
		out = append(out, TemperatureStat{
			Name:     t.SensorKey,
			Current:  t.Temperature,
			Maximum:  t.High,
			Critical: t.Critical,
		})
	}
	return out, nil
}

// UnixTimeSeconds reports the current wall clock in seconds.
func UnixTimeSeconds(ctx context.Context) (any, error) {
	return time.Now().Unix(), nil
}
