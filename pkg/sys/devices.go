// Package sys answers questions about block devices from their sysfs
// entries.
package sys

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/diskwarden/diskwarden/pkg/utils"
)

// sectorSize is the sector size as understood by the unix systems.
// All entries in /sys/class/block/<dev>/size are in 512 byte blocks
// regardless of the hardware sector size.
const sectorSize int64 = 512

var sysFSDirectoryPath = "/sys/"

// Device represents a blockdevice using its sysfs path.
type Device struct {
	// deviceName is the name of the device node sda, sdb, dm-0 etc
	deviceName string

	// path of the blockdevice. eg: /dev/sda, /dev/dm-0
	path string

	// sysPath of the blockdevice. eg: /sys/devices/pci0000:00/.../block/sda/
	sysPath string
}

// NewDevice builds a Device from parts the caller already resolved.
func NewDevice(sysPath string, path string, devName string) *Device {
	if !strings.HasSuffix(sysPath, "/") {
		sysPath = sysPath + "/"
	}
	return &Device{sysPath: sysPath, path: path, deviceName: devName}
}

// NewDeviceFromDevPath resolves /dev/<name> into its sysfs entry by
// evaluating the /sys/class/block symlink.
func NewDeviceFromDevPath(devPath string) (*Device, error) {
	devName := strings.Replace(devPath, "/dev/", "", 1)
	if len(devName) == 0 {
		return nil, fmt.Errorf("no device name in %q", devPath)
	}

	sysPath, err := filepath.EvalSymlinks(sysFSDirectoryPath + "class/block/" + devName)
	if err != nil {
		return nil, fmt.Errorf("resolve sysfs entry of %s: %v", devPath, err)
	}

	return NewDevice(sysPath, devPath, devName), nil
}

// Name returns the device node name, sda, dm-0 etc.
func (s Device) Name() string { return s.deviceName }

// SysPath returns the resolved sysfs directory with a trailing slash.
func (s Device) SysPath() string { return s.sysPath }

// GetRotational reports whether the device queue declares rotating media.
func (s Device) GetRotational() (bool, error) {
	rotational, err := utils.ReadSysFSFileAsInt64(s.sysPath + "queue/rotational")
	if err != nil {
		return false, err
	}
	switch rotational {
	case 1:
		return true, nil
	case 0:
		return false, nil
	}
	return false, fmt.Errorf("undefined rotational value %d", rotational)
}

// GetCapacityInBytes gets the capacity of the device in bytes.
func (s Device) GetCapacityInBytes() (int64, error) {
	// The size entry returns the number of 512 byte blocks no matter
	// what the hardware sector size is.
	numberOfBlocks, err := utils.ReadSysFSFileAsInt64(s.sysPath + "size")
	if err != nil {
		return 0, err
	} else if numberOfBlocks == 0 {
		return 0, fmt.Errorf("block count reported as zero")
	}
	return numberOfBlocks * sectorSize, nil
}
