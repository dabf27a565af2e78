// Package disk enumerates the block devices of the host and resolves
// what the wire protocol reports about them: media class, serial
// number and partition table.
package disk

import (
	"context"
	"fmt"

	"github.com/gobwas/glob"
	log "github.com/sirupsen/logrus"

	"github.com/diskwarden/diskwarden/pkg/api"
)

// BlockDevice is what the host crawl knows about one block node
// before any per-device probing.
type BlockDevice struct {
	// Name is the node name, sda, dm-0 etc
	Name string

	// DevName is the device path, /dev/sda
	DevName string

	// SysPath is the sysfs directory of the device
	SysPath string

	// Env carries the uevent properties of the crawl
	Env map[string]string
}

// Lister enumerates the block devices of the host.
type Lister interface {
	List() ([]BlockDevice, error)
}

// HostProbe answers the per-device questions the crawl itself cannot.
type HostProbe interface {
	// Serial resolves the device serial number, "" when unknown.
	Serial(b BlockDevice) string

	// Rotational reports whether the device queue declares rotating
	// media.
	Rotational(b BlockDevice) (bool, error)

	// Partitions reads the partition table of the device.
	Partitions(devPath string) ([]api.Partition, error)
}

// Options configures a Discoverer. Zero fields get host-backed
// defaults.
type Options struct {
	// IgnorePatterns drops matching device names from every listing,
	// e.g. "sr*" or "/dev/zd*".
	IgnorePatterns []string

	Lister Lister
	Probe  HostProbe
}

// Discoverer lists the disks of the host in wire form.
type Discoverer struct {
	ignore []glob.Glob
	lister Lister
	probe  HostProbe
}

// New builds a Discoverer, compiling the ignore patterns up front so
// a bad pattern fails at startup instead of per request.
func New(opts Options) (*Discoverer, error) {
	d := &Discoverer{
		lister: opts.Lister,
		probe:  opts.Probe,
	}
	if d.lister == nil {
		d.lister = NewUdevLister()
	}
	if d.probe == nil {
		d.probe = hostProbe{}
	}
	for _, pattern := range opts.IgnorePatterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad ignore pattern %q: %v", pattern, err)
		}
		d.ignore = append(d.ignore, g)
	}
	return d, nil
}

// Enumerate lists the host disks in the order the crawl reports them.
// A disk whose partition table cannot be read is still listed, with an
// empty partition list.
func (d *Discoverer) Enumerate(ctx context.Context) ([]api.Disk, error) {
	devices, err := d.lister.List()
	if err != nil {
		return nil, fmt.Errorf("list block devices: %v", err)
	}

	disks := make([]api.Disk, 0, len(devices))
	for _, b := range devices {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if d.ignored(b) {
			log.WithField("device", b.DevName).Debug("Device matches an ignore pattern")
			continue
		}

		disk := api.Disk{
			Type:    classify(b, d.probe),
			DevPath: b.DevName,
		}
		if serial := d.probe.Serial(b); serial != "" {
			disk.SerialNumber = api.String(serial)
		}

		parts, err := d.probe.Partitions(b.DevName)
		if err != nil {
			log.WithError(err).WithField("device", b.DevName).Debug("No readable partition table")
			parts = []api.Partition{}
		}
		disk.Partitions = parts

		disks = append(disks, disk)
	}
	return disks, nil
}

func (d *Discoverer) ignored(b BlockDevice) bool {
	for _, g := range d.ignore {
		if g.Match(b.Name) || g.Match(b.DevName) {
			return true
		}
	}
	return false
}
