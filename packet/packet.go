package packet

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

// Reverse packet header:
// 0                                      15
// |--------------------------------------|
// |        Length (uint16, LE)           |  excludes the length field itself
// |--------------------------------------|
// |         Type (uint16, LE)            |
// |--------------------------------------|
// |       Client ID (uint16, LE)         |
// |--------------------------------------|
// |             payload...               |

type m = map[string]any

const (
	// RevHeaderLen is the smallest reverse packet, length field included.
	RevHeaderLen = 6

	// MinLength is the smallest value a valid length field can hold.
	MinLength = RevHeaderLen - 2
)

type Type uint16

const (
	TypeVideoStream    Type = 16
	TypeClientCaps     Type = 66
	TypeClientStatus   Type = 70
	TypeRegisterAccess Type = 146
)

var typeMap = map[Type]string{
	TypeVideoStream:    "videoStream",
	TypeClientCaps:     "clientCaps",
	TypeClientStatus:   "clientStatus",
	TypeRegisterAccess: "registerAccess",
}

var ErrPacketTooShort = errors.New("packet is too short")

// TypeName will transform a packet type into a human string
func TypeName(t Type) string {
	if n, ok := typeMap[t]; ok {
		return n
	}

	return "unknown"
}

type RevHeader struct {
	Length   uint16
	Type     Type
	ClientID uint16
}

// Parse reads a reverse packet header from the start of b
func (h *RevHeader) Parse(b []byte) error {
	if len(b) < RevHeaderLen {
		return ErrPacketTooShort
	}
	h.Length = binary.LittleEndian.Uint16(b[0:2])
	h.Type = Type(binary.LittleEndian.Uint16(b[2:4]))
	h.ClientID = binary.LittleEndian.Uint16(b[4:6])
	return nil
}

// Encode writes the header into b, which must hold at least RevHeaderLen bytes
func (h *RevHeader) Encode(b []byte) []byte {
	b = b[:RevHeaderLen]
	binary.LittleEndian.PutUint16(b[0:2], h.Length)
	binary.LittleEndian.PutUint16(b[2:4], uint16(h.Type))
	binary.LittleEndian.PutUint16(b[4:6], h.ClientID)
	return b
}

func (h *RevHeader) String() string {
	if h == nil {
		return "<nil>"
	}
	return fmt.Sprintf("len=%d type=%s client=%#x", h.Length, TypeName(h.Type), h.ClientID)
}

func (h *RevHeader) MarshalJSON() ([]byte, error) {
	return json.Marshal(m{
		"length":   h.Length,
		"type":     TypeName(h.Type),
		"clientId": h.ClientID,
	})
}

// FrameLen is the full size of a packet whose length field holds l.
func FrameLen(l uint16) int {
	return int(l) + 2
}
