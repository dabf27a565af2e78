package disk

import (
	"strings"

	"github.com/diskwarden/diskwarden/pkg/api"
)

// classify resolves the media class of a device. Node name prefixes
// settle the special families first; whatever remains is judged by the
// sysfs rotational flag.
func classify(b BlockDevice, probe HostProbe) api.DiskType {
	switch {
	case strings.HasPrefix(b.Name, "loop"):
		return api.DiskTypeLoopback
	case strings.HasPrefix(b.Name, "dm-"):
		return api.DiskTypeLVM
	case strings.HasPrefix(b.Name, "md"):
		return api.DiskTypeMDRaid
	case strings.HasPrefix(b.Name, "nvme"):
		return api.DiskTypeNVMe
	case strings.HasPrefix(b.Name, "ram"):
		return api.DiskTypeRAM
	}

	if strings.Contains(b.SysPath, "/devices/virtual/") {
		return api.DiskTypeVirtual
	}

	rotational, err := probe.Rotational(b)
	if err != nil {
		return api.DiskTypeUnknown
	}
	if rotational {
		return api.DiskTypeRotational
	}
	return api.DiskTypeSolidState
}
