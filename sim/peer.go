package sim

import (
	"github.com/mddilink/mddi/packet"
)

// Peer is the simulated client device on the far end of the link. All fields
// are guarded by the owning Controller; change them through Controller.Update.
type Peer struct {
	// Absent makes the peer ignore everything, as if no display was attached.
	Absent bool

	Caps   packet.ClientCaps
	Status packet.ClientStatus

	// Registers is the client register file. Writes land here and reads are
	// answered from it.
	Registers map[uint32]uint32

	// RtdFailures fails the next n round trip delay measurements.
	RtdFailures int

	// DropReplies swallows the next n register read replies.
	DropReplies int

	// CRCErrors answers the next n register reads with a reverse CRC error.
	CRCErrors int

	// WrongRegister answers the next n register reads for a different
	// register than the one requested.
	WrongRegister int

	// SilentStatus makes the peer ignore get-status commands.
	SilentStatus bool

	pendingRead *uint32
	rtdCount    int
	readCount   int
}

// NewPeer returns a peer that reports a small panel and answers every request.
func NewPeer() *Peer {
	return &Peer{
		Caps: packet.ClientCaps{
			ProtocolVersion:        1,
			MinimumProtocolVersion: 1,
			BitmapWidth:            320,
			BitmapHeight:           480,
			DisplayWindowWidth:     320,
			DisplayWindowHeight:    480,
			MfrName:                0xd263,
			ProductCode:            0x8722,
		},
		Registers: map[uint32]uint32{},
	}
}

// RtdCount is the number of round trip delay measurements seen so far.
func (p *Peer) RtdCount() int {
	return p.rtdCount
}

// ReadCount is the number of register read requests seen so far.
func (p *Peer) ReadCount() int {
	return p.readCount
}
