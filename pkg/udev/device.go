// Package udev reads block device properties from the udev database.
package udev

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/diskwarden/diskwarden/pkg/utils"
)

type Device struct {
	// DevPath represents the device path under sysfs.
	// The general format is like /devices/pci0000:00/0000:00:07.0/virtio4/block/vdb
	DevPath string `json:"devPath,omitempty"`

	// DevName the general format is /dev/sda
	DevName string `json:"devName,omitempty"`

	// DevType such as disk, partition
	DevType string `json:"devType,omitempty"`

	// Major represents drive used by the device
	Major string `json:"major,omitempty"`

	// Minor is used to distinguish different devices
	Minor string `json:"minor,omitempty"`

	// SubSystem identifies the device's system type, such as block
	SubSystem string `json:"subSystem,omitempty"`

	// Bus represents the bus type of the device, such as USB, SATA
	Bus string `json:"id_bus,omitempty"`

	// FSType represents the filesystem type such as ext4, xfs
	FSType string `json:"id_fs_type,omitempty"`

	// Model represents the specific model of the storage device
	Model string `json:"id_model,omitempty"`

	// WWN represents the World Wide Name(WWN) of the device.
	// The general format is like 5001b444a89e5acd.
	WWN string `json:"id_wwn,omitempty"`

	// PartTableType represents the partition table type, such as gpt or dos
	PartTableType string `json:"id_part_table_type,omitempty"`

	// Serial represents the Serial Number(SN) of the device.
	// The general format is like 162061400553
	Serial string `json:"id_serial,omitempty"`

	// Vendor represents the manufacturer of the device
	Vendor string `json:"id_vendor,omitempty"`

	// IDType specifies the detailed type of the device according to udev
	// rules, usually the values of IDType and DevType are the same
	IDType string `json:"id_type"`

	// Name is the name of the device node sda, sdb, dm-0 etc
	Name string `json:"name"`

	// DevLinks contains all symbolic links pointing at the device
	DevLinks []string `json:"devLinks"`
}

func NewDevice(devPath string) *Device {
	return &Device{DevPath: devPath}
}

func NewDeviceWithName(devPath, devName string) *Device {
	return &Device{DevName: devName, DevPath: devPath}
}

func (d *Device) ParseDeviceInfo() error {
	info, err := d.Info()
	if err != nil {
		return err
	}
	return d.ParseDiskAttribute(info)
}

// Info gets detailed information about the device using udevadm
func (d *Device) Info() (map[string]interface{}, error) {
	var out string
	var err error
	if d.DevPath != "" {
		out, err = utils.Bash(fmt.Sprintf("udevadm info -p %s --query=all", d.DevPath))
	} else {
		out, err = utils.Bash(fmt.Sprintf("udevadm info -n %s --query=all", d.DevName))
	}

	if err != nil {
		return nil, err
	}
	return parseUdevInfo(out), nil
}

func (d *Device) ParseDiskAttribute(info map[string]interface{}) error {
	// The map is converted through JSON instead of assigned key by key
	// so the struct can use readable field names while still matching
	// the raw udev keys case-insensitively.
	jsonStr, err := json.Marshal(info)
	if err != nil {
		return err
	}

	return json.Unmarshal(jsonStr, d)
}

func parseUdevInfo(udevInfo string) map[string]interface{} {
	udevItems := make(map[string]interface{})
	for _, info := range utils.ConvertShellOutputs(udevInfo) {
		if info == "" {
			continue
		}

		switch info[0] {
		// ENV
		case 'E':
			items := strings.Split(strings.Replace(info, "E: ", "", 1), "=")
			if len(items) != 2 {
				continue
			}
			if items[0] == "DEVLINKS" {
				udevItems[items[0]] = strings.Split(items[1], " ")
				continue
			}
			udevItems[items[0]] = items[1]

		case 'N':
			info = strings.Replace(info, "N: ", "", 1)
			udevItems["NAME"] = info

		default:
			continue
		}
	}

	return udevItems
}
