package mddi

import "errors"

var (
	ErrTimeout            = errors.New("timed out waiting for the controller")
	ErrReadTimeout        = errors.New("register read timed out")
	ErrLinkFault          = errors.New("reverse link fault")
	ErrUnsupportedVersion = errors.New("unsupported controller core version")
	ErrPanelRegistered    = errors.New("a panel is already registered")
	ErrUnknownController  = errors.New("unknown controller")
	ErrNoClient           = errors.New("no client attached")
	ErrNoPanelOps         = errors.New("panel operations are required")
	ErrScriptFailed       = errors.New("script command failed")
)

// ReadFailed is the value returned by ReadRegister when no reply was obtained.
const ReadFailed uint32 = 0xffffffff
