// Package api defines the messages exchanged between the disk-manager
// daemon and its clients, together with the binary codec and the frame
// format used on the wire. The message layout follows service.proto in
// this directory.
package api

// Op identifies the operation a client wants the daemon to perform.
type Op int32

const (
	OpAdd          Op = 1
	OpAddPartition Op = 2
	OpList         Op = 3
	OpRemove       Op = 4
	OpSafeToRemove Op = 5
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add_disk"
	case OpAddPartition:
		return "add_partition"
	case OpList:
		return "list_disks"
	case OpRemove:
		return "remove_disk"
	case OpSafeToRemove:
		return "safe_to_remove"
	default:
		return "unknown"
	}
}

// Valid reports whether o is one of the defined operations.
func (o Op) Valid() bool {
	return o >= OpAdd && o <= OpSafeToRemove
}

// ResultType is the status carried by every reply.
type ResultType int32

const (
	ResultOK  ResultType = 0
	ResultErr ResultType = 1
)

func (r ResultType) String() string {
	if r == ResultOK {
		return "OK"
	}
	return "ERR"
}

// Valid reports whether r is a defined result status.
func (r ResultType) Valid() bool {
	return r == ResultOK || r == ResultErr
}

// DiskType is the media class of a block device as reported by disk
// discovery.
type DiskType int32

const (
	DiskTypeLoopback   DiskType = 0
	DiskTypeLVM        DiskType = 1
	DiskTypeMDRaid     DiskType = 2
	DiskTypeNVMe       DiskType = 3
	DiskTypeRAM        DiskType = 4
	DiskTypeRotational DiskType = 5
	DiskTypeSolidState DiskType = 6
	DiskTypeUnknown    DiskType = 7
	DiskTypeVirtual    DiskType = 8
)

// Valid reports whether t is a defined media class.
func (t DiskType) Valid() bool {
	return t >= DiskTypeLoopback && t <= DiskTypeVirtual
}

func (t DiskType) String() string {
	switch t {
	case DiskTypeLoopback:
		return "loopback"
	case DiskTypeLVM:
		return "lvm"
	case DiskTypeMDRaid:
		return "mdraid"
	case DiskTypeNVMe:
		return "nvme"
	case DiskTypeRAM:
		return "ram"
	case DiskTypeRotational:
		return "rotational"
	case DiskTypeSolidState:
		return "solid-state"
	case DiskTypeVirtual:
		return "virtual"
	default:
		return "unknown"
	}
}

// Operation is a client request. Token must always be present; the
// remaining optional fields depend on the operation kind.
type Operation struct {
	OpType Op
	// Disk is the device path the operation targets. Not set for List.
	Disk  *string
	Token string
	// Ceph specific fields.
	OsdID               *uint64
	OsdJournal          *string
	OsdJournalPartition *uint32
}

// GetDisk returns the target device path or "" when unset.
func (m *Operation) GetDisk() string {
	if m.Disk == nil {
		return ""
	}
	return *m.Disk
}

// GetOsdJournal returns the journal device path or "" when unset.
func (m *Operation) GetOsdJournal() string {
	if m.OsdJournal == nil {
		return ""
	}
	return *m.OsdJournal
}

// OpResult is the reply to Add and Remove.
type OpResult struct {
	Result   ResultType
	ErrorMsg *string
}

// GetErrorMsg returns the failure message or "" when unset.
func (m *OpResult) GetErrorMsg() string {
	if m.ErrorMsg == nil {
		return ""
	}
	return *m.ErrorMsg
}

// OpBoolResult is the reply to SafeToRemove. Value is only meaningful
// when Result is OK.
type OpBoolResult struct {
	Result   ResultType
	Value    *bool
	ErrorMsg *string
}

// GetValue returns the boolean verdict, defaulting to false when unset.
func (m *OpBoolResult) GetValue() bool {
	if m.Value == nil {
		return false
	}
	return *m.Value
}

// GetErrorMsg returns the failure message or "" when unset.
func (m *OpBoolResult) GetErrorMsg() string {
	if m.ErrorMsg == nil {
		return ""
	}
	return *m.ErrorMsg
}

// Partition describes one entry of a device partition table.
type Partition struct {
	UUID     string
	FirstLBA uint64
	LastLBA  uint64
	Flags    uint64
	Name     string
}

// Disk describes one block device of the host.
type Disk struct {
	Type       DiskType
	DevPath    string
	Partitions []Partition
	// SerialNumber is unset when the device does not expose one.
	SerialNumber *string
}

// GetSerialNumber returns the device serial or "" when unset.
func (m *Disk) GetSerialNumber() string {
	if m.SerialNumber == nil {
		return ""
	}
	return *m.SerialNumber
}

// Disks is the reply to List.
type Disks struct {
	Disk []Disk
}

// String returns pointer helpers for optional fields.
func String(s string) *string { return &s }

// Uint64 returns a pointer to v for optional fields.
func Uint64(v uint64) *uint64 { return &v }

// Uint32 returns a pointer to v for optional fields.
func Uint32(v uint32) *uint32 { return &v }

// Bool returns a pointer to v for optional fields.
func Bool(v bool) *bool { return &v }
