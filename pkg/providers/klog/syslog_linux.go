//go:build linux

package klog

import "golang.org/x/sys/unix"

// syslog(2) actions
const (
	actionReadAll    = 3
	actionSizeBuffer = 10
)

func readAll() ([]byte, error) {
	size, err := unix.Klogctl(actionSizeBuffer, nil)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = 1 << 17
	}
	buf := make([]byte, size)
	n, err := unix.Klogctl(actionReadAll, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}
