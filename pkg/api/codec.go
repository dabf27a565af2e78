package api

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrDecode is wrapped by every error returned from the Unmarshal
// functions, so callers can classify decode failures with errors.Is.
var ErrDecode = errors.New("malformed message")

func decodeErrf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrDecode, fmt.Sprintf(format, args...))
}

// Field numbers, from service.proto.
const (
	opFieldType             = 1
	opFieldDisk             = 2
	opFieldToken            = 3
	opFieldOsdID            = 4
	opFieldOsdJournal       = 5
	opFieldJournalPartition = 6

	resultFieldResult = 1
	resultFieldMsg    = 2

	boolResultFieldResult = 1
	boolResultFieldValue  = 2
	boolResultFieldMsg    = 3

	partFieldUUID     = 1
	partFieldFirstLBA = 2
	partFieldLastLBA  = 3
	partFieldFlags    = 4
	partFieldName     = 5

	partInfoFieldPartition = 1

	diskFieldType       = 1
	diskFieldDevPath    = 2
	diskFieldPartitions = 3
	diskFieldSerial     = 4

	disksFieldDisk = 1
)

// Marshal encodes the operation for the wire.
func (m *Operation) Marshal() []byte {
	b := protowire.AppendTag(nil, opFieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.OpType))
	if m.Disk != nil {
		b = protowire.AppendTag(b, opFieldDisk, protowire.BytesType)
		b = protowire.AppendString(b, *m.Disk)
	}
	b = protowire.AppendTag(b, opFieldToken, protowire.BytesType)
	b = protowire.AppendString(b, m.Token)
	if m.OsdID != nil {
		b = protowire.AppendTag(b, opFieldOsdID, protowire.VarintType)
		b = protowire.AppendVarint(b, *m.OsdID)
	}
	if m.OsdJournal != nil {
		b = protowire.AppendTag(b, opFieldOsdJournal, protowire.BytesType)
		b = protowire.AppendString(b, *m.OsdJournal)
	}
	if m.OsdJournalPartition != nil {
		b = protowire.AppendTag(b, opFieldJournalPartition, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(*m.OsdJournalPartition))
	}
	return b
}

// UnmarshalOperation decodes an Operation, enforcing the required
// fields of the schema.
func UnmarshalOperation(b []byte) (*Operation, error) {
	var (
		m        Operation
		sawType  bool
		sawToken bool
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, decodeErrf("operation: bad tag: %v", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == opFieldType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, decodeErrf("operation: op type: %v", protowire.ParseError(n))
			}
			m.OpType, sawType = Op(v), true
			b = b[n:]
		case num == opFieldDisk && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, decodeErrf("operation: disk: %v", protowire.ParseError(n))
			}
			m.Disk = String(v)
			b = b[n:]
		case num == opFieldToken && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, decodeErrf("operation: token: %v", protowire.ParseError(n))
			}
			m.Token, sawToken = v, true
			b = b[n:]
		case num == opFieldOsdID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, decodeErrf("operation: osd id: %v", protowire.ParseError(n))
			}
			m.OsdID = Uint64(v)
			b = b[n:]
		case num == opFieldOsdJournal && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, decodeErrf("operation: osd journal: %v", protowire.ParseError(n))
			}
			m.OsdJournal = String(v)
			b = b[n:]
		case num == opFieldJournalPartition && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, decodeErrf("operation: journal partition: %v", protowire.ParseError(n))
			}
			m.OsdJournalPartition = Uint32(uint32(v))
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, decodeErrf("operation: field %d: %v", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if !sawType {
		return nil, decodeErrf("operation: missing required field Op_type")
	}
	if !sawToken {
		return nil, decodeErrf("operation: missing required field token")
	}
	if !m.OpType.Valid() {
		return nil, decodeErrf("operation: unknown op type %d", m.OpType)
	}
	return &m, nil
}

// Marshal encodes the result for the wire.
func (m *OpResult) Marshal() []byte {
	b := protowire.AppendTag(nil, resultFieldResult, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Result))
	if m.ErrorMsg != nil {
		b = protowire.AppendTag(b, resultFieldMsg, protowire.BytesType)
		b = protowire.AppendString(b, *m.ErrorMsg)
	}
	return b
}

// UnmarshalOpResult decodes an OpResult.
func UnmarshalOpResult(b []byte) (*OpResult, error) {
	var (
		m         OpResult
		sawResult bool
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, decodeErrf("result: bad tag: %v", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == resultFieldResult && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, decodeErrf("result: status: %v", protowire.ParseError(n))
			}
			m.Result, sawResult = ResultType(v), true
			b = b[n:]
		case num == resultFieldMsg && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, decodeErrf("result: error msg: %v", protowire.ParseError(n))
			}
			m.ErrorMsg = String(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, decodeErrf("result: field %d: %v", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if !sawResult {
		return nil, decodeErrf("result: missing required field result")
	}
	if !m.Result.Valid() {
		return nil, decodeErrf("result: unknown status %d", m.Result)
	}
	return &m, nil
}

// Marshal encodes the bool result for the wire.
func (m *OpBoolResult) Marshal() []byte {
	b := protowire.AppendTag(nil, boolResultFieldResult, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Result))
	if m.Value != nil {
		b = protowire.AppendTag(b, boolResultFieldValue, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(*m.Value))
	}
	if m.ErrorMsg != nil {
		b = protowire.AppendTag(b, boolResultFieldMsg, protowire.BytesType)
		b = protowire.AppendString(b, *m.ErrorMsg)
	}
	return b
}

// UnmarshalOpBoolResult decodes an OpBoolResult.
func UnmarshalOpBoolResult(b []byte) (*OpBoolResult, error) {
	var (
		m         OpBoolResult
		sawResult bool
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, decodeErrf("bool result: bad tag: %v", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == boolResultFieldResult && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, decodeErrf("bool result: status: %v", protowire.ParseError(n))
			}
			m.Result, sawResult = ResultType(v), true
			b = b[n:]
		case num == boolResultFieldValue && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, decodeErrf("bool result: value: %v", protowire.ParseError(n))
			}
			m.Value = Bool(protowire.DecodeBool(v))
			b = b[n:]
		case num == boolResultFieldMsg && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, decodeErrf("bool result: error msg: %v", protowire.ParseError(n))
			}
			m.ErrorMsg = String(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, decodeErrf("bool result: field %d: %v", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if !sawResult {
		return nil, decodeErrf("bool result: missing required field result")
	}
	if !m.Result.Valid() {
		return nil, decodeErrf("bool result: unknown status %d", m.Result)
	}
	return &m, nil
}

func (p *Partition) marshal() []byte {
	b := protowire.AppendTag(nil, partFieldUUID, protowire.BytesType)
	b = protowire.AppendString(b, p.UUID)
	b = protowire.AppendTag(b, partFieldFirstLBA, protowire.VarintType)
	b = protowire.AppendVarint(b, p.FirstLBA)
	b = protowire.AppendTag(b, partFieldLastLBA, protowire.VarintType)
	b = protowire.AppendVarint(b, p.LastLBA)
	b = protowire.AppendTag(b, partFieldFlags, protowire.VarintType)
	b = protowire.AppendVarint(b, p.Flags)
	b = protowire.AppendTag(b, partFieldName, protowire.BytesType)
	b = protowire.AppendString(b, p.Name)
	return b
}

func unmarshalPartition(b []byte) (Partition, error) {
	var p Partition
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return p, decodeErrf("partition: bad tag: %v", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == partFieldUUID && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return p, decodeErrf("partition: uuid: %v", protowire.ParseError(n))
			}
			p.UUID = v
			b = b[n:]
		case num == partFieldFirstLBA && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return p, decodeErrf("partition: first lba: %v", protowire.ParseError(n))
			}
			p.FirstLBA = v
			b = b[n:]
		case num == partFieldLastLBA && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return p, decodeErrf("partition: last lba: %v", protowire.ParseError(n))
			}
			p.LastLBA = v
			b = b[n:]
		case num == partFieldFlags && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return p, decodeErrf("partition: flags: %v", protowire.ParseError(n))
			}
			p.Flags = v
			b = b[n:]
		case num == partFieldName && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return p, decodeErrf("partition: name: %v", protowire.ParseError(n))
			}
			p.Name = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return p, decodeErrf("partition: field %d: %v", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return p, nil
}

func marshalPartitionInfo(parts []Partition) []byte {
	var b []byte
	for i := range parts {
		b = protowire.AppendTag(b, partInfoFieldPartition, protowire.BytesType)
		b = protowire.AppendBytes(b, parts[i].marshal())
	}
	return b
}

func unmarshalPartitionInfo(b []byte) ([]Partition, error) {
	var parts []Partition
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, decodeErrf("partition info: bad tag: %v", protowire.ParseError(n))
		}
		b = b[n:]
		if num == partInfoFieldPartition && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, decodeErrf("partition info: entry: %v", protowire.ParseError(n))
			}
			p, err := unmarshalPartition(v)
			if err != nil {
				return nil, err
			}
			parts = append(parts, p)
			b = b[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return nil, decodeErrf("partition info: field %d: %v", num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return parts, nil
}

// Marshal encodes the disk for the wire.
func (m *Disk) Marshal() []byte {
	b := protowire.AppendTag(nil, diskFieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Type))
	b = protowire.AppendTag(b, diskFieldDevPath, protowire.BytesType)
	b = protowire.AppendString(b, m.DevPath)
	if m.Partitions != nil {
		b = protowire.AppendTag(b, diskFieldPartitions, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalPartitionInfo(m.Partitions))
	}
	if m.SerialNumber != nil {
		b = protowire.AppendTag(b, diskFieldSerial, protowire.BytesType)
		b = protowire.AppendString(b, *m.SerialNumber)
	}
	return b
}

// UnmarshalDisk decodes a Disk.
func UnmarshalDisk(b []byte) (*Disk, error) {
	var (
		m       Disk
		sawType bool
		sawPath bool
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, decodeErrf("disk: bad tag: %v", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == diskFieldType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, decodeErrf("disk: type: %v", protowire.ParseError(n))
			}
			m.Type, sawType = DiskType(v), true
			b = b[n:]
		case num == diskFieldDevPath && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, decodeErrf("disk: dev path: %v", protowire.ParseError(n))
			}
			m.DevPath, sawPath = v, true
			b = b[n:]
		case num == diskFieldPartitions && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, decodeErrf("disk: partitions: %v", protowire.ParseError(n))
			}
			parts, err := unmarshalPartitionInfo(v)
			if err != nil {
				return nil, err
			}
			if parts == nil {
				parts = []Partition{}
			}
			m.Partitions = parts
			b = b[n:]
		case num == diskFieldSerial && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, decodeErrf("disk: serial: %v", protowire.ParseError(n))
			}
			m.SerialNumber = String(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, decodeErrf("disk: field %d: %v", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if !sawType || !sawPath {
		return nil, decodeErrf("disk: missing required fields")
	}
	if !m.Type.Valid() {
		return nil, decodeErrf("disk: unknown type %d", m.Type)
	}
	return &m, nil
}

// Marshal encodes the disk list for the wire.
func (m *Disks) Marshal() []byte {
	var b []byte
	for i := range m.Disk {
		b = protowire.AppendTag(b, disksFieldDisk, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Disk[i].Marshal())
	}
	return b
}

// UnmarshalDisks decodes a Disks list. An empty payload is a valid
// empty list.
func UnmarshalDisks(b []byte) (*Disks, error) {
	var m Disks
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, decodeErrf("disks: bad tag: %v", protowire.ParseError(n))
		}
		b = b[n:]
		if num == disksFieldDisk && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, decodeErrf("disks: entry: %v", protowire.ParseError(n))
			}
			d, err := UnmarshalDisk(v)
			if err != nil {
				return nil, err
			}
			m.Disk = append(m.Disk, *d)
			b = b[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return nil, decodeErrf("disks: field %d: %v", num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return &m, nil
}
