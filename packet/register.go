package packet

import (
	"encoding/binary"
	"fmt"
)

// Register access packet:
// | length u16 | type u16 | client id u16 | read/write info u16 |
// | register address u32 | crc16 u16 | register data u32 ... |

const (
	// RegisterAccessHeaderLen covers everything up to the data list.
	RegisterAccessHeaderLen = 14

	// RegisterAccessLen is a register access packet carrying one data word.
	RegisterAccessLen = RegisterAccessHeaderLen + 4
)

// Read/write info values. The low 14 bits carry the number of data words.
const (
	RWWrite        uint16 = 0 << 14
	RWRead         uint16 = 2 << 14
	RWReadResponse uint16 = 3 << 14

	RWCountMask uint16 = 0x3fff
	RWOpMask    uint16 = 0xc000
)

type RegisterAccess struct {
	RevHeader
	ReadWriteInfo   uint16
	RegisterAddress uint32
	CRC16           uint16
	RegisterData    uint32
}

// Parse decodes a register access packet. A packet without a data word is
// accepted and leaves RegisterData zero, check HasData before trusting it.
func (r *RegisterAccess) Parse(b []byte) error {
	if len(b) < RegisterAccessHeaderLen {
		return ErrPacketTooShort
	}
	if err := r.RevHeader.Parse(b); err != nil {
		return err
	}
	r.ReadWriteInfo = binary.LittleEndian.Uint16(b[6:8])
	r.RegisterAddress = binary.LittleEndian.Uint32(b[8:12])
	r.CRC16 = binary.LittleEndian.Uint16(b[12:14])
	r.RegisterData = 0
	if len(b) >= RegisterAccessLen {
		r.RegisterData = binary.LittleEndian.Uint32(b[14:18])
	}
	return nil
}

// HasData reports whether the parsed frame carried a data word.
func (r *RegisterAccess) HasData() bool {
	return FrameLen(r.Length) >= RegisterAccessLen
}

// Encode writes the packet into b and returns the written slice. withData
// controls whether the data word is part of the frame.
func (r *RegisterAccess) Encode(b []byte, withData bool) []byte {
	n := RegisterAccessHeaderLen
	if withData {
		n = RegisterAccessLen
	}
	b = b[:n]
	r.RevHeader.Encode(b)
	binary.LittleEndian.PutUint16(b[6:8], r.ReadWriteInfo)
	binary.LittleEndian.PutUint32(b[8:12], r.RegisterAddress)
	binary.LittleEndian.PutUint16(b[12:14], r.CRC16)
	if withData {
		binary.LittleEndian.PutUint32(b[14:18], r.RegisterData)
	}
	return b
}

func (r *RegisterAccess) IsRead() bool {
	return r.ReadWriteInfo&RWOpMask == RWRead
}

func (r *RegisterAccess) String() string {
	return fmt.Sprintf("%s rw=%#04x reg=%#x data=%#x", r.RevHeader.String(), r.ReadWriteInfo, r.RegisterAddress, r.RegisterData)
}

// NewRegisterReply builds the reverse packet a client sends in answer to a
// register read.
func NewRegisterReply(reg, value uint32) []byte {
	r := RegisterAccess{
		RevHeader: RevHeader{
			Length: RegisterAccessLen - 2,
			Type:   TypeRegisterAccess,
		},
		ReadWriteInfo:   RWReadResponse | 1,
		RegisterAddress: reg,
		RegisterData:    value,
	}
	return r.Encode(make([]byte, RegisterAccessLen), true)
}
