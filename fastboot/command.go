package fastboot

import (
	"context"

	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log/level"
)

// RunCommand transmits a single command packet and reads the device's
// response.
//
// The command must be at most MaxCommandLength ASCII bytes; a longer
// command fails with a *CommandLengthError before any transfer is
// attempted. The command is sent as raw bytes with no terminator, in
// one bulk-OUT transfer, without retries.
func (c *Client) RunCommand(ctx context.Context, command string) (*Response, error) {
	if c.invalidated() {
		return nil, ErrDisconnected
	}
	if len(command) > MaxCommandLength {
		return nil, &CommandLengthError{Length: len(command)}
	}

	_ = level.Debug(c.logger).Log("msg", "sending command", "command", command)
	if _, err := c.transport.TransferOut(ctx, c.epOut, []byte(command)); err != nil {
		return nil, errors.Wrapf(err, "failed to send command %q", command)
	}

	return c.ReadResponse(ctx)
}
