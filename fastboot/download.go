package fastboot

import (
	"context"
	"fmt"

	"github.com/go-kit/log/level"
)

// Download negotiates and streams a payload to the device's staging
// buffer.
//
// The client announces the payload length as a zero-padded 8-hex-digit
// value; the device's DATA response must echo the identical length,
// otherwise the transfer is aborted with a *DataSizeMismatchError
// before any payload byte is sent. After streaming, the device's
// closing response is read and returned.
func (c *Client) Download(ctx context.Context, payload []byte, onProgress ProgressFunc) (*Response, error) {
	requested := fmt.Sprintf("%08x", len(payload))

	resp, err := c.RunCommand(ctx, "download:"+requested)
	if err != nil {
		return nil, err
	}
	if resp.DataSize != requested {
		return nil, &DataSizeMismatchError{Requested: requested, Announced: resp.DataSize}
	}

	if err := c.SendRawPayload(ctx, payload, onProgress); err != nil {
		return nil, err
	}
	return c.ReadResponse(ctx)
}

// GetVar queries a bootloader variable and returns the response text.
func (c *Client) GetVar(ctx context.Context, name string) (string, error) {
	resp, err := c.RunCommand(ctx, "getvar:"+name)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Flash downloads the payload and writes it to the named partition.
func (c *Client) Flash(ctx context.Context, partition string, payload []byte, onProgress ProgressFunc) (*Response, error) {
	if _, err := c.Download(ctx, payload, onProgress); err != nil {
		return nil, err
	}
	_ = level.Info(c.logger).Log("msg", "payload staged, flashing", "partition", partition, "bytes", len(payload))
	return c.RunCommand(ctx, "flash:"+partition)
}

// Reboot asks the device to leave bootloader mode.
func (c *Client) Reboot(ctx context.Context) error {
	_, err := c.RunCommand(ctx, "reboot")
	return err
}
