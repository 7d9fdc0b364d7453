package hw

import "fmt"

// Register offsets within a host controller's register window.
const (
	RegCmd            = 0x0000
	RegVersion        = 0x0004
	RegPriPtr         = 0x0008
	RegSecPtr         = 0x000c
	RegBps            = 0x0010
	RegSpm            = 0x0014
	RegInt            = 0x0018
	RegIntEn          = 0x001c
	RegRevPtr         = 0x0020
	RegRevSize        = 0x0024
	RegStat           = 0x0028
	RegRevRateDiv     = 0x002c
	RegRevCrcErr      = 0x0030
	RegTA1Len         = 0x0034
	RegTA2Len         = 0x0038
	RegTestBus        = 0x003c
	RegTest           = 0x0040
	RegRevPktCnt      = 0x0044
	RegDriveHi        = 0x0048
	RegDriveLo        = 0x004c
	RegDispWake       = 0x0050
	RegRevEncapSz     = 0x0054
	RegRtdVal         = 0x0058
	RegPadCtl         = 0x0068
	RegDriverStartCnt = 0x006c
	RegNextPriPtr     = 0x0070
	RegNextSecPtr     = 0x0074
	RegMisrCtl        = 0x0078
	RegMisrData       = 0x007c
	RegSfCnt          = 0x0080
	RegMfCnt          = 0x0084
	RegCurrRevPtr     = 0x0088
	RegCoreVer        = 0x008c

	// RegWindowSize covers every register above.
	RegWindowSize = 0x1000
)

// IntFlag is a bit in the INT, INTEN and delivered-signal masks.
type IntFlag uint32

const (
	IntPriPtrRead      IntFlag = 0x0001
	IntSecPtrRead      IntFlag = 0x0002
	IntRevDataAvail    IntFlag = 0x0004
	IntDispReq         IntFlag = 0x0008
	IntPriUnderflow    IntFlag = 0x0010
	IntSecUnderflow    IntFlag = 0x0020
	IntRevOverflow     IntFlag = 0x0040
	IntCrcError        IntFlag = 0x0080
	IntMddiIn          IntFlag = 0x0100
	IntPriOverwrite    IntFlag = 0x0200
	IntSecOverwrite    IntFlag = 0x0400
	IntRevOverwrite    IntFlag = 0x0800
	IntDmaFailure      IntFlag = 0x1000
	IntLinkActive      IntFlag = 0x2000
	IntInHibernation   IntFlag = 0x4000
	IntPriLinkListDone IntFlag = 0x8000
	IntSecLinkListDone IntFlag = 0x10000
	IntNoCmdPktsPend   IntFlag = 0x20000
	IntRtdFailure      IntFlag = 0x40000
	IntRevPktReceived  IntFlag = 0x80000
	IntRevPktsAvail    IntFlag = 0x100000

	// IntNeedClear are level signals that stay enabled after they fire.
	// Everything else is one-shot and must be re-armed by a waiter.
	IntNeedClear = IntRevDataAvail | IntPriUnderflow | IntSecUnderflow |
		IntRevOverflow | IntCrcError | IntRevPktReceived
)

func (f IntFlag) String() string {
	return fmt.Sprintf("%#x", uint32(f))
}

// StatFlag is a bit of the STAT register.
type StatFlag uint32

func (f StatFlag) String() string {
	return fmt.Sprintf("%#x", uint32(f))
}

const (
	StatLinkActive            StatFlag = 0x0001
	StatNewRevPtr             StatFlag = 0x0002
	StatNewPriPtr             StatFlag = 0x0004
	StatNewSecPtr             StatFlag = 0x0008
	StatInHibernation         StatFlag = 0x0010
	StatPriLinkListDone       StatFlag = 0x0020
	StatSecLinkListDone       StatFlag = 0x0040
	StatSendTimingPkt         StatFlag = 0x0080
	StatSendRevEncapWithFlags StatFlag = 0x0100
	StatSendPowerDown         StatFlag = 0x0200
	StatDoHandshake           StatFlag = 0x0400
	StatRtdMeasFail           StatFlag = 0x0800
	StatClientWakeupReq       StatFlag = 0x1000
	StatDmaAbort              StatFlag = 0x2000
	StatRevOverflowReset      StatFlag = 0x4000
	StatForcedWakeupReq       StatFlag = 0x8000
	StatRevDataRxReq          StatFlag = 0x10000
)

// Command values written to CMD. Some commands take their argument in the low
// bits, e.g. CmdHibernate|1 or CmdPeriodicRevEncap|1.
const (
	CmdPowerdown        uint32 = 0x0100
	CmdPowerup          uint32 = 0x0200
	CmdHibernate        uint32 = 0x0300
	CmdReset            uint32 = 0x0400
	CmdDispListen       uint32 = 0x0500
	CmdDispIgnore       uint32 = 0x0501
	CmdSendRevEncap     uint32 = 0x0600
	CmdGetClientCap     uint32 = 0x0601
	CmdGetClientStatus  uint32 = 0x0602
	CmdSendRtd          uint32 = 0x0700
	CmdLinkActive       uint32 = 0x0900
	CmdPeriodicRevEncap uint32 = 0x0a00
	CmdForceNewRevPtr   uint32 = 0x0c00

	// CmdMask selects the opcode part of a CMD value.
	CmdMask uint32 = 0xff00
)

// Host timing defaults programmed at power-up.
const (
	HostBytesPerSubframe = 0x3c00
	HostTA2Len           = 0x000c
	HostRevRateDiv       = 0x0002

	// MinCoreVersion is the oldest core revision the engine supports.
	MinCoreVersion = 0x20
)
