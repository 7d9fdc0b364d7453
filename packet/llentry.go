package packet

import (
	"encoding/binary"
	"fmt"
)

// Link list entry as consumed by the controller's command list processor:
// | flags u16 | header count u16 | data count u16 | data ptr u32 |
// | next ptr u32 | reserved u16 | packet (48 bytes) |

const (
	LLEntryHeaderLen = 16
	LLEntryLen       = 64

	// LLEntryDataOffset is where the register data word of an embedded
	// register access packet lives within an entry.
	LLEntryDataOffset = LLEntryHeaderLen + RegisterAccessHeaderLen
)

// Link list flags.
const (
	LLFlagLast          uint16 = 0x0001
	LLFlagWaitReverse   uint16 = 0x0010
	LLFlagsRegisterRead        = LLFlagLast | LLFlagWaitReverse
)

type LLEntry struct {
	Flags       uint16
	HeaderCount uint16
	DataCount   uint16
	Data        uint32
	Next        uint32
	Reserved    uint16
	Reg         RegisterAccess
}

// Encode writes the entry into b, which must hold LLEntryLen bytes
func (e *LLEntry) Encode(b []byte) []byte {
	b = b[:LLEntryLen]
	clear(b)
	binary.LittleEndian.PutUint16(b[0:2], e.Flags)
	binary.LittleEndian.PutUint16(b[2:4], e.HeaderCount)
	binary.LittleEndian.PutUint16(b[4:6], e.DataCount)
	binary.LittleEndian.PutUint32(b[6:10], e.Data)
	binary.LittleEndian.PutUint32(b[10:14], e.Next)
	binary.LittleEndian.PutUint16(b[14:16], e.Reserved)
	e.Reg.Encode(b[LLEntryHeaderLen:], e.DataCount > 0)
	return b
}

// Parse decodes an entry
func (e *LLEntry) Parse(b []byte) error {
	if len(b) < LLEntryHeaderLen+RegisterAccessHeaderLen {
		return ErrPacketTooShort
	}
	e.Flags = binary.LittleEndian.Uint16(b[0:2])
	e.HeaderCount = binary.LittleEndian.Uint16(b[2:4])
	e.DataCount = binary.LittleEndian.Uint16(b[4:6])
	e.Data = binary.LittleEndian.Uint32(b[6:10])
	e.Next = binary.LittleEndian.Uint32(b[10:14])
	e.Reserved = binary.LittleEndian.Uint16(b[14:16])
	end := LLEntryHeaderLen + int(e.HeaderCount) + int(e.DataCount)
	if end > len(b) {
		return ErrPacketTooShort
	}
	return e.Reg.Parse(b[LLEntryHeaderLen:end])
}

func (e *LLEntry) String() string {
	return fmt.Sprintf("flags=%#x hdr=%d data=%d ptr=%#x next=%#x [%s]", e.Flags, e.HeaderCount, e.DataCount, e.Data, e.Next, e.Reg.String())
}

// NewRegisterWrite fills a write entry located at bus address addr.
func NewRegisterWrite(addr, reg, value uint32) LLEntry {
	return LLEntry{
		Flags:       LLFlagLast,
		HeaderCount: RegisterAccessHeaderLen,
		DataCount:   4,
		Data:        addr + LLEntryDataOffset,
		Reg: RegisterAccess{
			RevHeader: RevHeader{
				Length: RegisterAccessLen,
				Type:   TypeRegisterAccess,
			},
			ReadWriteInfo:   RWWrite | 1,
			RegisterAddress: reg,
			RegisterData:    value,
		},
	}
}

// NewRegisterRead fills a read request entry.
func NewRegisterRead(reg uint32) LLEntry {
	return LLEntry{
		Flags:       LLFlagsRegisterRead,
		HeaderCount: RegisterAccessHeaderLen,
		Reg: RegisterAccess{
			RevHeader: RevHeader{
				Length: RegisterAccessHeaderLen,
				Type:   TypeRegisterAccess,
			},
			ReadWriteInfo:   RWRead | 1,
			RegisterAddress: reg,
		},
	}
}
