package disk

import (
	"path/filepath"
	"strings"

	"github.com/pilebones/go-udev/crawler"

	"github.com/diskwarden/diskwarden/pkg/udev"
)

// udevLister walks the kernel device tree the same way udevadm
// trigger does, keeping only whole-disk block nodes.
type udevLister struct{}

// NewUdevLister returns the host-backed Lister.
func NewUdevLister() Lister {
	return udevLister{}
}

func (udevLister) List() ([]BlockDevice, error) {
	queue := make(chan crawler.Device)
	errs := make(chan error)
	crawler.ExistingDevices(queue, errs, udev.GenRuleForBlock())

	var devices []BlockDevice
	for {
		select {
		case device, ok := <-queue:
			if !ok {
				return devices, nil
			}
			// Partition nodes are reported through their parent disk.
			if device.Env["DEVTYPE"] != "disk" {
				continue
			}
			devices = append(devices, newBlockDevice(device))

		case err := <-errs:
			return nil, err
		}
	}
}

func newBlockDevice(device crawler.Device) BlockDevice {
	name := filepath.Base(device.KObj)
	devName := device.Env["DEVNAME"]
	switch {
	case devName == "":
		devName = "/dev/" + name
	case !strings.HasPrefix(devName, "/"):
		// uevent files carry the bare node name
		devName = "/dev/" + devName
	}
	return BlockDevice{
		Name:    name,
		DevName: devName,
		SysPath: addSysPrefix(device.KObj),
		Env:     device.Env,
	}
}

func addSysPrefix(path string) string {
	if strings.HasPrefix(path, "/sys/") {
		return path
	}
	return "/sys" + path
}
