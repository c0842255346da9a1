//go:build !linux

package klog

import "errors"

func readAll() ([]byte, error) {
	return nil, errors.New("syslog(2) is only available on linux")
}
