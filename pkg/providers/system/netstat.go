package system

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/net"
)

type Endpoint struct {
	Address string `json:"address"`
	Port    uint32 `json:"port"`
}

type TCPSocket struct {
	Local  Endpoint `json:"local"`
	Remote Endpoint `json:"remote"`
	PIDs   []int32  `json:"pids"`
	State  string   `json:"state"`
}

type UDPSocket struct {
	Local Endpoint `json:"local"`
	PIDs  []int32  `json:"pids"`
}

type NetstatStat struct {
	TCP []TCPSocket `json:"tcp"`
	UDP []UDPSocket `json:"udp"`
}

// Netstat lists IPv4 TCP and UDP sockets.
func Netstat(ctx context.Context) (any, error) {
	tcp, err := net.ConnectionsWithContext(ctx, "tcp4")
	if err != nil {
		return nil, fmt.Errorf("tcp4 connections: %w", err)
	}
	udp, err := net.ConnectionsWithContext(ctx, "udp4")
	if err != nil {
		return nil, fmt.Errorf("udp4 connections: %w", err)
	}
	return buildNetstat(tcp, udp), nil
}

func buildNetstat(tcp, udp []net.ConnectionStat) NetstatStat {
	out := NetstatStat{
		TCP: make([]TCPSocket, 0, len(tcp)),
		UDP: make([]UDPSocket, 0, len(udp)),
	}
	for _, c := range tcp {
		out.TCP = append(out.TCP, TCPSocket{
			Local:  Endpoint{Address: c.Laddr.IP, Port: c.Laddr.Port},
			Remote: Endpoint{Address: c.Raddr.IP, Port: c.Raddr.Port},
			PIDs:   pids(c.Pid),
			State:  c.Status,
		})
	}
	for _, c := range udp {
		out.UDP = append(out.UDP, UDPSocket{
			Local: Endpoint{Address: c.Laddr.IP, Port: c.Laddr.Port},
			PIDs:  pids(c.Pid),
		})
	}
	return out
}

func pids(pid int32) []int32 {
	if pid <= 0 {
		return []int32{}
	}
	return []int32{pid}
}
