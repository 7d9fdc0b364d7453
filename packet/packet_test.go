package packet

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRevHeader_Parse(t *testing.T) {
	b := []byte{0x10, 0x00, 0x92, 0x00, 0x34, 0x12, 0xff}
	h := RevHeader{}
	require.NoError(t, h.Parse(b))
	assert.Equal(t, RevHeader{Length: 16, Type: TypeRegisterAccess, ClientID: 0x1234}, h)

	assert.ErrorIs(t, h.Parse(b[:5]), ErrPacketTooShort)
}

func TestRevHeader_Encode(t *testing.T) {
	h := RevHeader{Length: 0x4a, Type: TypeClientCaps, ClientID: 1}
	assert.Equal(t, []byte{0x4a, 0x00, 0x42, 0x00, 0x01, 0x00}, h.Encode(make([]byte, 8)))
}

func TestTypeName(t *testing.T) {
	assert.Equal(t, "clientCaps", TypeName(TypeClientCaps))
	assert.Equal(t, "registerAccess", TypeName(TypeRegisterAccess))
	assert.Equal(t, "unknown", TypeName(99))

	h := &RevHeader{Length: 4, Type: 99}
	assert.Equal(t, "len=4 type=unknown client=0x0", h.String())

	var nh *RevHeader
	assert.Equal(t, "<nil>", nh.String())
}

func TestRevHeader_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(&RevHeader{Length: 12, Type: TypeClientStatus, ClientID: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"length":12,"type":"clientStatus","clientId":2}`, string(b))
}

func TestRegisterAccess(t *testing.T) {
	b := NewRegisterReply(0x10, 0xdeadbeef)
	assert.Len(t, b, RegisterAccessLen)
	assert.Equal(t, uint16(RegisterAccessLen-2), uint16(b[0])|uint16(b[1])<<8)

	var r RegisterAccess
	require.NoError(t, r.Parse(b))
	assert.Equal(t, TypeRegisterAccess, r.Type)
	assert.Equal(t, RWReadResponse|1, r.ReadWriteInfo)
	assert.Equal(t, uint32(0x10), r.RegisterAddress)
	assert.Equal(t, uint32(0xdeadbeef), r.RegisterData)
	assert.True(t, r.HasData())
	assert.False(t, r.IsRead())

	// No data word
	require.NoError(t, r.Parse(b[:RegisterAccessHeaderLen]))
	assert.Equal(t, uint32(0), r.RegisterData)

	assert.ErrorIs(t, r.Parse(b[:RegisterAccessHeaderLen-1]), ErrPacketTooShort)
}

func TestClientCaps(t *testing.T) {
	in := ClientCaps{
		ProtocolVersion: 1,
		BitmapWidth:     320,
		BitmapHeight:    480,
		ColorMapSize:    0x01020304,
		MfrName:         0xd263,
		ProductCode:     0x8722,
		SerialNumber:    0xcafe,
		CRC16:           0xbeef,
	}
	b := in.Encode()
	require.Len(t, b, ClientCapsLen)
	assert.Equal(t, uint16(ClientCapsLen-2), in.Length)

	var out ClientCaps
	require.NoError(t, out.Parse(b))
	assert.Equal(t, in, out)
	assert.Equal(t, "mddi_c_d263_8722", out.ClientName())

	// The trailing crc lands on the last two bytes
	assert.Equal(t, []byte{0xef, 0xbe}, b[ClientCapsLen-2:])

	assert.ErrorIs(t, out.Parse(b[:ClientCapsLen-1]), ErrPacketTooShort)
}

func TestClientStatus(t *testing.T) {
	in := ClientStatus{ReverseLinkRequest: 7, CRCErrorCount: 2, CapabilityChange: 1, GraphicsBusyFlags: 0x3}
	b := in.Encode()
	require.Len(t, b, ClientStatusLen)

	var out ClientStatus
	require.NoError(t, out.Parse(b))
	assert.Equal(t, in, out)

	assert.ErrorIs(t, out.Parse(b[:4]), ErrPacketTooShort)
}

func TestLLEntry_Write(t *testing.T) {
	e := NewRegisterWrite(0x1000, 0x20, 0x11223344)
	b := e.Encode(make([]byte, LLEntryLen))

	assert.Equal(t, uint32(0x1000+LLEntryDataOffset), e.Data)
	assert.Equal(t, []byte{0x44, 0x33, 0x22, 0x11}, b[LLEntryDataOffset:LLEntryDataOffset+4])

	var p LLEntry
	require.NoError(t, p.Parse(b))
	assert.Equal(t, e, p)
	assert.False(t, p.Reg.IsRead())
}

func TestLLEntry_Read(t *testing.T) {
	e := NewRegisterRead(0x30)
	b := e.Encode(make([]byte, LLEntryLen))

	var p LLEntry
	require.NoError(t, p.Parse(b))
	assert.True(t, p.Reg.IsRead())
	assert.Equal(t, LLFlagsRegisterRead, p.Flags)
	assert.Equal(t, uint32(0x30), p.Reg.RegisterAddress)
	assert.Zero(t, p.DataCount)

	// Encoding over a dirty buffer clears the stale bytes
	dirty := make([]byte, LLEntryLen)
	for i := range dirty {
		dirty[i] = 0xff
	}
	assert.Equal(t, b, e.Encode(dirty))

	assert.ErrorIs(t, p.Parse(b[:20]), ErrPacketTooShort)
}
