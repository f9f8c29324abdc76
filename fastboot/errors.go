package fastboot

import (
	"fmt"

	"github.com/efficientgo/core/errors"
)

var (
	ErrEndpointsNotFound    = errors.New("bootloader interface has no bulk IN/OUT endpoint pair")
	ErrMultipleInEndpoints  = errors.New("bootloader interface has more than one bulk IN endpoint")
	ErrMultipleOutEndpoints = errors.New("bootloader interface has more than one bulk OUT endpoint")
	ErrDisconnected         = errors.New("device disconnected")
)

// ProtocolError reports a response the device terminated with a FAIL or
// unrecognized status.
type ProtocolError struct {
	Status  string
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("device returned %s: %s", e.Status, e.Message)
}

// CommandLengthError reports a command rejected before any transfer was
// attempted.
type CommandLengthError struct {
	Length int
}

func (e *CommandLengthError) Error() string {
	return fmt.Sprintf("command is %d bytes, maximum is %d", e.Length, MaxCommandLength)
}

// DataSizeMismatchError reports a download negotiation where the device
// announced a different length than the client requested.
type DataSizeMismatchError struct {
	Requested string
	Announced string
}

func (e *DataSizeMismatchError) Error() string {
	return fmt.Sprintf("device announced download size %q, requested %q", e.Announced, e.Requested)
}
