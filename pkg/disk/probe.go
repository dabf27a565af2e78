package disk

import (
	log "github.com/sirupsen/logrus"

	"github.com/diskwarden/diskwarden/pkg/api"
	"github.com/diskwarden/diskwarden/pkg/gpt"
	"github.com/diskwarden/diskwarden/pkg/sys"
	"github.com/diskwarden/diskwarden/pkg/udev"
)

// hostProbe answers per-device questions from the live host: udevadm
// for identity, sysfs for queue attributes and the raw device for the
// partition table.
type hostProbe struct{}

func (hostProbe) Serial(b BlockDevice) string {
	dev := udev.NewDeviceWithName(b.SysPath, b.DevName)
	if err := dev.ParseDeviceInfo(); err != nil {
		log.WithError(err).WithField("device", b.DevName).Debug("udevadm probe failed")
		return b.Env["ID_SERIAL"]
	}
	return dev.Serial
}

func (hostProbe) Rotational(b BlockDevice) (bool, error) {
	return sys.NewDevice(b.SysPath, b.DevName, b.Name).GetRotational()
}

func (hostProbe) Partitions(devPath string) ([]api.Partition, error) {
	return gpt.Extract(devPath)
}
