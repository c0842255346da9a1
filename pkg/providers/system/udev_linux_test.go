package system

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pilebones/go-udev/crawler"
	"github.com/pilebones/go-udev/netlink"
)

func ptr[T any](v T) *T { return &v }

func TestBuildUdev(t *testing.T) {
	devices := []crawler.Device{
		{
			KObj: "/sys/devices/pci0000:00/0000:00:14.0/usb1/1-2/1-2:1.0/tty/ttyACM0",
			Env:  map[string]string{"MAJOR": "166", "MINOR": "0", "DEVNAME": "ttyACM0"},
		},
		{
			KObj: "/sys/devices/pci0000:00/0000:00:14.0/usb1/1-2",
			Env: map[string]string{
				"MAJOR": "189", "MINOR": "1", "DEVNAME": "bus/usb/001/002",
				"DEVTYPE": "usb_device", "DRIVER": "usb", "SUBSYSTEM": "usb",
			},
		},
		{KObj: "/sys/devices/platform/serial8250"},
	}
	links := map[string]string{
		"/sys/devices/pci0000:00/0000:00:14.0/usb1/1-2/1-2:1.0/tty/ttyACM0/subsystem": "tty",
		"/sys/devices/platform/serial8250/subsystem":                                  "platform",
		"/sys/devices/platform/serial8250/driver":                                     "serial8250",
		"/sys/devices/pci0000:00/0000:00:14.0/usb1/1-2/driver":                        "ignored",
	}
	link := func(kobj, name string) string { return links[kobj+"/"+name] }

	want := []UdevDevice{
		{
			DeviceMajorMinorNumber: ptr(uint64(189<<8 | 1)),
			SystemPath:             "/sys/devices/pci0000:00/0000:00:14.0/usb1/1-2",
			DevicePath:             "/devices/pci0000:00/0000:00:14.0/usb1/1-2",
			DeviceNode:             ptr("/dev/bus/usb/001/002"),
			SubsystemName:          ptr("usb"),
			SystemName:             "1-2",
			InstanceNumber:         ptr("2"),
			DeviceType:             ptr("usb_device"),
			Driver:                 ptr("usb"),
			Properties: map[string]string{
				"MAJOR": "189", "MINOR": "1", "DEVNAME": "bus/usb/001/002",
				"DEVTYPE": "usb_device", "DRIVER": "usb", "SUBSYSTEM": "usb",
			},
		},
		{
			DeviceMajorMinorNumber: ptr(uint64(166 << 8)),
			SystemPath:             "/sys/devices/pci0000:00/0000:00:14.0/usb1/1-2/1-2:1.0/tty/ttyACM0",
			DevicePath:             "/devices/pci0000:00/0000:00:14.0/usb1/1-2/1-2:1.0/tty/ttyACM0",
			DeviceNode:             ptr("/dev/ttyACM0"),
			SubsystemName:          ptr("tty"),
			SystemName:             "ttyACM0",
			InstanceNumber:         ptr("0"),
			Properties:             map[string]string{"MAJOR": "166", "MINOR": "0", "DEVNAME": "ttyACM0"},
		},
		{
			SystemPath:     "/sys/devices/platform/serial8250",
			DevicePath:     "/devices/platform/serial8250",
			SubsystemName:  ptr("platform"),
			SystemName:     "serial8250",
			InstanceNumber: ptr("8250"),
			Driver:         ptr("serial8250"),
			Properties:     map[string]string{},
		},
	}
	if diff := cmp.Diff(want, buildUdev(devices, link)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestSysnum(t *testing.T) {
	tests := map[string]string{"ttyS12": "12", "card0": "0", "input": "", "1-2": "2", "": ""}
	for in, want := range tests {
		if got := sysnum(in); got != want {
			t.Errorf("sysnum(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUdevCollectsCrawl(t *testing.T) {
	orig := crawlDevices
	t.Cleanup(func() { crawlDevices = orig })
	crawlDevices = func(queue chan crawler.Device, _ chan error, _ netlink.Matcher) chan struct{} {
		go func() {
			queue <- crawler.Device{KObj: "/sys/devices/virtual/tty/ttyS1", Env: map[string]string{"DEVNAME": "ttyS1"}}
			queue <- crawler.Device{KObj: "/sys/devices/virtual/tty/ttyS0", Env: map[string]string{"DEVNAME": "ttyS0"}}
			close(queue)
		}()
		return make(chan struct{})
	}

	v, err := Udev(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	devices := v.([]UdevDevice)
	var names []string
	for _, d := range devices {
		names = append(names, *d.DeviceNode)
	}
	if diff := cmp.Diff([]string{"/dev/ttyS0", "/dev/ttyS1"}, names); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestUdevCancelled(t *testing.T) {
	orig := crawlDevices
	t.Cleanup(func() { crawlDevices = orig })
	stopped := make(chan struct{})
	crawlDevices = func(queue chan crawler.Device, _ chan error, _ netlink.Matcher) chan struct{} {
		quit := make(chan struct{})
		go func() {
			defer close(stopped)
			defer close(queue)
			for {
				select {
				case <-quit:
					return
				case queue <- crawler.Device{KObj: "/sys/devices/virtual/misc/loop"}:
				}
			}
		}()
		return quit
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Udev(ctx); err == nil {
		t.Error("expected a context error")
	}
	<-stopped
}
