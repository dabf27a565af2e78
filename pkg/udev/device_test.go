package udev

import (
	"reflect"
	"testing"
)

func TestDevice_ParseDeviceInfo(t *testing.T) {
	testCases := []struct {
		Description  string
		UdevInfo     string
		ExpectDevice *Device
	}{
		{
			Description: "It is a whole-disk udevadm info result",
			UdevInfo:    "P: /devices/pci0000:00/0000:00:07.1/ata1/host1/target1:0:0/1:0:0:0/block/sdb\nN: sdb\nS: disk/by-id/ata-VMware_Virtual_IDE_Hard_Drive_00000000000000000001\nS: disk/by-id/wwn-0x5000c298825951d9\nS: disk/by-path/pci-0000:00:07.1-ata-1.0\nE: DEVLINKS=/dev/disk/by-id/ata-VMware_Virtual_IDE_Hard_Drive_00000000000000000001 /dev/disk/by-id/wwn-0x5000c298825951d9 /dev/disk/by-path/pci-0000:00:07.1-ata-1.0\nE: DEVNAME=/dev/sdb\nE: DEVPATH=/devices/pci0000:00/0000:00:07.1/ata1/host1/target1:0:0/1:0:0:0/block/sdb\nE: DEVTYPE=disk\nE: ID_ATA=1\nE: ID_BUS=ata\nE: ID_MODEL=VMware_Virtual_IDE_Hard_Drive\nE: ID_PART_TABLE_TYPE=gpt\nE: ID_PATH=pci-0000:00:07.1-ata-1.0\nE: ID_REVISION=00000001\nE: ID_SERIAL=VMware_Virtual_IDE_Hard_Drive_00000000000000000001\nE: ID_SERIAL_SHORT=00000000000000000001\nE: ID_TYPE=disk\nE: ID_WWN=0x5000c298825951d9\nE: MAJOR=8\nE: MINOR=16\nE: SUBSYSTEM=block\nE: TAGS=:systemd:\nE: USEC_INITIALIZED=645583\n",
			ExpectDevice: &Device{
				DevPath:       "/devices/pci0000:00/0000:00:07.1/ata1/host1/target1:0:0/1:0:0:0/block/sdb",
				DevName:       "/dev/sdb",
				DevType:       "disk",
				Major:         "8",
				Minor:         "16",
				SubSystem:     "block",
				Bus:           "ata",
				FSType:        "",
				Model:         "VMware_Virtual_IDE_Hard_Drive",
				WWN:           "0x5000c298825951d9",
				PartTableType: "gpt",
				Serial:        "VMware_Virtual_IDE_Hard_Drive_00000000000000000001",
				Vendor:        "",
				IDType:        "disk",
				Name:          "sdb",
				DevLinks: []string{
					"/dev/disk/by-id/ata-VMware_Virtual_IDE_Hard_Drive_00000000000000000001",
					"/dev/disk/by-id/wwn-0x5000c298825951d9",
					"/dev/disk/by-path/pci-0000:00:07.1-ata-1.0",
				},
			},
		},
		{
			Description: "It is a partition udevadm info result",
			UdevInfo:    "P: /devices/pci0000:00/0000:00:07.1/ata1/host1/target1:0:0/1:0:0:0/block/sdb/sdb1\nN: sdb1\nE: DEVNAME=/dev/sdb1\nE: DEVPATH=/devices/pci0000:00/0000:00:07.1/ata1/host1/target1:0:0/1:0:0:0/block/sdb/sdb1\nE: DEVTYPE=partition\nE: ID_BUS=ata\nE: ID_FS_TYPE=LVM2_member\nE: ID_SERIAL=VMware_Virtual_IDE_Hard_Drive_00000000000000000001\nE: ID_TYPE=disk\nE: MAJOR=8\nE: MINOR=17\nE: SUBSYSTEM=block\n",
			ExpectDevice: &Device{
				DevPath:   "/devices/pci0000:00/0000:00:07.1/ata1/host1/target1:0:0/1:0:0:0/block/sdb/sdb1",
				DevName:   "/dev/sdb1",
				DevType:   "partition",
				Major:     "8",
				Minor:     "17",
				SubSystem: "block",
				Bus:       "ata",
				FSType:    "LVM2_member",
				Serial:    "VMware_Virtual_IDE_Hard_Drive_00000000000000000001",
				IDType:    "disk",
				Name:      "sdb1",
			},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.Description, func(t *testing.T) {
			info := parseUdevInfo(testCase.UdevInfo)
			d := &Device{}
			if err := d.ParseDiskAttribute(info); err != nil {
				t.Fatalf("ParseDiskAttribute failed: %v", err)
			}
			if !reflect.DeepEqual(d, testCase.ExpectDevice) {
				t.Fatalf("Device mismatch:\n got %+v\nwant %+v", d, testCase.ExpectDevice)
			}
		})
	}
}
