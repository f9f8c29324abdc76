package fastboot

import (
	"context"

	"github.com/efficientgo/core/errors"
)

// ProgressFunc observes payload transmission. Values are fractions in
// [0, 1], non-decreasing within one send, ending at exactly 1.0.
type ProgressFunc func(fraction float64)

// SendRawPayload streams the buffer to the device in consecutive chunks
// of at most the configured chunk size, strictly in order.
//
// onProgress (optional) is invoked with sent/total before each chunk
// and with 1.0 after the last one, including for an empty buffer. A
// transfer failure mid-stream propagates without sending further chunks
// and without the final callback. The buffer is never mutated.
func (c *Client) SendRawPayload(ctx context.Context, payload []byte, onProgress ProgressFunc) error {
	if c.invalidated() {
		return ErrDisconnected
	}

	total := len(payload)
	for sent := 0; sent < total; {
		end := sent + c.chunkSize
		if end > total {
			end = total
		}
		if onProgress != nil {
			onProgress(float64(sent) / float64(total))
		}
		if _, err := c.transport.TransferOut(ctx, c.epOut, payload[sent:end]); err != nil {
			return errors.Wrapf(err, "failed to send payload chunk at offset %d", sent)
		}
		sent = end
	}

	if onProgress != nil {
		onProgress(1.0)
	}
	return nil
}
