package packet

import (
	"encoding/binary"
	"fmt"
)

const (
	ClientCapsLen   = 76
	ClientStatusLen = 14
)

// ClientCaps is the client capability packet a peer sends in answer to a
// get-capabilities command.
type ClientCaps struct {
	RevHeader
	ProtocolVersion          uint16
	MinimumProtocolVersion   uint16
	DataRateCapability       uint16
	InterfaceTypeCapability  uint8
	NumberOfAltDisplays      uint8
	PostCalDataRate          uint16
	BitmapWidth              uint16
	BitmapHeight             uint16
	DisplayWindowWidth       uint16
	DisplayWindowHeight      uint16
	ColorMapSize             uint32
	ColorMapRGBWidth         uint16
	RGBCapability            uint16
	MonoCapability           uint8
	Reserved1                uint8
	YCbCrCapability          uint16
	BayerCapability          uint16
	AlphaCursorImagePlanes   uint16
	ClientFeatureIndicators  uint32
	MaxVideoFrameRate        uint8
	MinVideoFrameRate        uint8
	MinSubframeRate          uint16
	AudioBufferDepth         uint16
	AudioChannelCapability   uint16
	AudioSampleRate          uint16
	AudioSampleResolution    uint8
	MicAudioSampleResolution uint8
	MicSampleRate            uint16
	KeyboardDataFormat       uint8
	PointingDeviceDataFormat uint8
	ContentProtectionType    uint16
	MfrName                  uint16
	ProductCode              uint16
	Reserved3                uint16
	SerialNumber             uint32
	WeekOfManufacture        uint8
	YearOfManufacture        uint8
	CRC16                    uint16
}

// fieldWalker steps through a little endian packed record.
type fieldWalker struct {
	b   []byte
	off int
}

func (w *fieldWalker) u8(v *uint8) {
	*v = w.b[w.off]
	w.off++
}

func (w *fieldWalker) u16(v *uint16) {
	*v = binary.LittleEndian.Uint16(w.b[w.off:])
	w.off += 2
}

func (w *fieldWalker) u32(v *uint32) {
	*v = binary.LittleEndian.Uint32(w.b[w.off:])
	w.off += 4
}

type fieldWriter struct {
	b   []byte
	off int
}

func (w *fieldWriter) u8(v uint8) {
	w.b[w.off] = v
	w.off++
}

func (w *fieldWriter) u16(v uint16) {
	binary.LittleEndian.PutUint16(w.b[w.off:], v)
	w.off += 2
}

func (w *fieldWriter) u32(v uint32) {
	binary.LittleEndian.PutUint32(w.b[w.off:], v)
	w.off += 4
}

// Parse decodes a capability packet, header included
func (c *ClientCaps) Parse(b []byte) error {
	if len(b) < ClientCapsLen {
		return ErrPacketTooShort
	}
	if err := c.RevHeader.Parse(b); err != nil {
		return err
	}

	w := fieldWalker{b: b, off: RevHeaderLen}
	w.u16(&c.ProtocolVersion)
	w.u16(&c.MinimumProtocolVersion)
	w.u16(&c.DataRateCapability)
	w.u8(&c.InterfaceTypeCapability)
	w.u8(&c.NumberOfAltDisplays)
	w.u16(&c.PostCalDataRate)
	w.u16(&c.BitmapWidth)
	w.u16(&c.BitmapHeight)
	w.u16(&c.DisplayWindowWidth)
	w.u16(&c.DisplayWindowHeight)
	w.u32(&c.ColorMapSize)
	w.u16(&c.ColorMapRGBWidth)
	w.u16(&c.RGBCapability)
	w.u8(&c.MonoCapability)
	w.u8(&c.Reserved1)
	w.u16(&c.YCbCrCapability)
	w.u16(&c.BayerCapability)
	w.u16(&c.AlphaCursorImagePlanes)
	w.u32(&c.ClientFeatureIndicators)
	w.u8(&c.MaxVideoFrameRate)
	w.u8(&c.MinVideoFrameRate)
	w.u16(&c.MinSubframeRate)
	w.u16(&c.AudioBufferDepth)
	w.u16(&c.AudioChannelCapability)
	w.u16(&c.AudioSampleRate)
	w.u8(&c.AudioSampleResolution)
	w.u8(&c.MicAudioSampleResolution)
	w.u16(&c.MicSampleRate)
	w.u8(&c.KeyboardDataFormat)
	w.u8(&c.PointingDeviceDataFormat)
	w.u16(&c.ContentProtectionType)
	w.u16(&c.MfrName)
	w.u16(&c.ProductCode)
	w.u16(&c.Reserved3)
	w.u32(&c.SerialNumber)
	w.u8(&c.WeekOfManufacture)
	w.u8(&c.YearOfManufacture)
	w.u16(&c.CRC16)
	return nil
}

// Encode returns the wire form of the packet. Length and Type are filled in.
func (c *ClientCaps) Encode() []byte {
	b := make([]byte, ClientCapsLen)
	c.Length = ClientCapsLen - 2
	c.Type = TypeClientCaps
	c.RevHeader.Encode(b)

	w := fieldWriter{b: b, off: RevHeaderLen}
	w.u16(c.ProtocolVersion)
	w.u16(c.MinimumProtocolVersion)
	w.u16(c.DataRateCapability)
	w.u8(c.InterfaceTypeCapability)
	w.u8(c.NumberOfAltDisplays)
	w.u16(c.PostCalDataRate)
	w.u16(c.BitmapWidth)
	w.u16(c.BitmapHeight)
	w.u16(c.DisplayWindowWidth)
	w.u16(c.DisplayWindowHeight)
	w.u32(c.ColorMapSize)
	w.u16(c.ColorMapRGBWidth)
	w.u16(c.RGBCapability)
	w.u8(c.MonoCapability)
	w.u8(c.Reserved1)
	w.u16(c.YCbCrCapability)
	w.u16(c.BayerCapability)
	w.u16(c.AlphaCursorImagePlanes)
	w.u32(c.ClientFeatureIndicators)
	w.u8(c.MaxVideoFrameRate)
	w.u8(c.MinVideoFrameRate)
	w.u16(c.MinSubframeRate)
	w.u16(c.AudioBufferDepth)
	w.u16(c.AudioChannelCapability)
	w.u16(c.AudioSampleRate)
	w.u8(c.AudioSampleResolution)
	w.u8(c.MicAudioSampleResolution)
	w.u16(c.MicSampleRate)
	w.u8(c.KeyboardDataFormat)
	w.u8(c.PointingDeviceDataFormat)
	w.u16(c.ContentProtectionType)
	w.u16(c.MfrName)
	w.u16(c.ProductCode)
	w.u16(c.Reserved3)
	w.u32(c.SerialNumber)
	w.u8(c.WeekOfManufacture)
	w.u8(c.YearOfManufacture)
	w.u16(c.CRC16)
	return b
}

// ClientName is the name a client is published under, derived from the
// manufacturer and product codes.
func (c *ClientCaps) ClientName() string {
	return fmt.Sprintf("mddi_c_%04x_%04x", c.MfrName, c.ProductCode)
}

// ClientStatus is the client request and status packet.
type ClientStatus struct {
	RevHeader
	ReverseLinkRequest uint16
	CRCErrorCount      uint8
	CapabilityChange   uint8
	GraphicsBusyFlags  uint16
	CRC16              uint16
}

func (s *ClientStatus) Parse(b []byte) error {
	if len(b) < ClientStatusLen {
		return ErrPacketTooShort
	}
	if err := s.RevHeader.Parse(b); err != nil {
		return err
	}

	w := fieldWalker{b: b, off: RevHeaderLen}
	w.u16(&s.ReverseLinkRequest)
	w.u8(&s.CRCErrorCount)
	w.u8(&s.CapabilityChange)
	w.u16(&s.GraphicsBusyFlags)
	w.u16(&s.CRC16)
	return nil
}

func (s *ClientStatus) Encode() []byte {
	b := make([]byte, ClientStatusLen)
	s.Length = ClientStatusLen - 2
	s.Type = TypeClientStatus
	s.RevHeader.Encode(b)

	w := fieldWriter{b: b, off: RevHeaderLen}
	w.u16(s.ReverseLinkRequest)
	w.u8(s.CRCErrorCount)
	w.u8(s.CapabilityChange)
	w.u16(s.GraphicsBusyFlags)
	w.u16(s.CRC16)
	return b
}
