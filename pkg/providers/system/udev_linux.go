package system

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pilebones/go-udev/crawler"
	"golang.org/x/sys/unix"
)

const sysRoot = "/sys"

var crawlDevices = crawler.ExistingDevices

type UdevDevice struct {
	DeviceMajorMinorNumber *uint64           `json:"device_major_minor_number"`
	SystemPath             string            `json:"system_path"`
	DevicePath             string            `json:"device_path"`
	DeviceNode             *string           `json:"device_node"`
	SubsystemName          *string           `json:"subsystem_name"`
	SystemName             string            `json:"system_name"`
	InstanceNumber         *string           `json:"instance_number"`
	DeviceType             *string           `json:"device_type"`
	Driver                 *string           `json:"driver"`
	Properties             map[string]string `json:"properties"`
}

// Udev lists every device under /sys/devices with its uevent properties.
func Udev(ctx context.Context) (any, error) {
	queue := make(chan crawler.Device)
	errs := make(chan error, 1)
	quit := crawlDevices(queue, errs, nil)

	var devices []crawler.Device
	var firstErr error
	for {
		select {
		case <-ctx.Done():
			close(quit)
			go drain(queue, errs)
			return nil, ctx.Err()
		case err := <-errs:
			if firstErr == nil {
				firstErr = err
			}
		case dev, ok := <-queue:
			if !ok {
				if firstErr != nil {
					return nil, fmt.Errorf("crawl %s: %w", sysRoot, firstErr)
				}
				return buildUdev(devices, linkBase), nil
			}
			devices = append(devices, dev)
		}
	}
}

func drain(queue <-chan crawler.Device, errs <-chan error) {
	for {
		select {
		case _, ok := <-queue:
			if !ok {
				return
			}
		case <-errs:
		}
	}
}

// linkBase returns the last element of the symlink kobj/name, or "" when
// the link does not exist.
func linkBase(kobj, name string) string {
	target, err := filepath.EvalSymlinks(filepath.Join(kobj, name))
	if err != nil {
		return ""
	}
	return filepath.Base(target)
}

func buildUdev(devices []crawler.Device, link func(kobj, name string) string) []UdevDevice {
	out := make([]UdevDevice, 0, len(devices))
	for _, d := range devices {
		env := d.Env
		if env == nil {
			env = map[string]string{}
		}
		name := filepath.Base(d.KObj)
		dev := UdevDevice{
			DeviceMajorMinorNumber: devnum(env),
			SystemPath:             d.KObj,
			DevicePath:             strings.TrimPrefix(d.KObj, sysRoot),
			SystemName:             name,
			InstanceNumber:         optional(sysnum(name)),
			DeviceType:             optional(env["DEVTYPE"]),
			Properties:             env,
		}
		if node := env["DEVNAME"]; node != "" {
			if !filepath.IsAbs(node) {
				node = filepath.Join("/dev", node)
			}
			dev.DeviceNode = &node
		}
		subsystem := env["SUBSYSTEM"]
		if subsystem == "" {
			subsystem = link(d.KObj, "subsystem")
		}
		dev.SubsystemName = optional(subsystem)
		driver := env["DRIVER"]
		if driver == "" {
			driver = link(d.KObj, "driver")
		}
		dev.Driver = optional(driver)
		out = append(out, dev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SystemPath < out[j].SystemPath })
	return out
}

func devnum(env map[string]string) *uint64 {
	major, err := strconv.ParseUint(env["MAJOR"], 10, 32)
	if err != nil {
		return nil
	}
	minor, err := strconv.ParseUint(env["MINOR"], 10, 32)
	if err != nil {
		return nil
	}
	n := unix.Mkdev(uint32(major), uint32(minor))
	return &n
}

// sysnum returns the trailing decimal digits of a device name.
func sysnum(name string) string {
	i := len(name)
	for i > 0 && name[i-1] >= '0' && name[i-1] <= '9' {
		i--
	}
	return name[i:]
}
