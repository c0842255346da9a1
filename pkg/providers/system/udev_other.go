//go:build !linux

package system

import (
	"context"
	"errors"
)

// Udev is only available on linux.
func Udev(context.Context) (any, error) {
	return nil, errors.New("udev device listing is only available on linux")
}
