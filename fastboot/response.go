package fastboot

import (
	"context"
	"strings"

	"github.com/efficientgo/core/errors"
)

const statusLength = 4

// Response status codes.
const (
	StatusOkay = "OKAY"
	StatusInfo = "INFO"
	StatusData = "DATA"
	StatusFail = "FAIL"
)

// Response is the assembled outcome of one command. Text concatenates
// the message lines in order; DataSize, if non-empty, is the verbatim
// 8-hex-digit byte length announced by a DATA status.
type Response struct {
	Text     string
	DataSize string
}

// ReadResponse drives the receive loop until a terminal status arrives.
//
// INFO packets accumulate; OKAY and DATA terminate the loop and return
// the assembled response; FAIL or any unrecognized status fails with a
// *ProtocolError and no partial response. Every call starts from a
// clean accumulation state.
func (c *Client) ReadResponse(ctx context.Context) (*Response, error) {
	if c.invalidated() {
		return nil, ErrDisconnected
	}

	var text strings.Builder
	for {
		packet, err := c.transport.TransferIn(ctx, c.epIn, PacketSize)
		if err != nil {
			return nil, errors.Wrap(err, "bulk read failed")
		}
		if len(packet) < statusLength {
			return nil, &ProtocolError{Status: string(packet)}
		}

		status := string(packet[:statusLength])
		message := string(packet[statusLength:])

		switch status {
		case StatusInfo:
			text.WriteString(message)
			text.WriteByte('\n')
		case StatusOkay:
			text.WriteString(message)
			return &Response{Text: text.String()}, nil
		case StatusData:
			return &Response{Text: text.String(), DataSize: message}, nil
		default:
			return nil, &ProtocolError{Status: status, Message: message}
		}
	}
}
