package fastboot

import (
	"context"

	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"github.com/usbtools/fastboot-flasher/transport"
)

const (
	// MaxCommandLength is the byte limit on a single command packet.
	MaxCommandLength = 64
	// PacketSize is the fixed size of a single response read.
	PacketSize = 64
	// DefaultChunkSize bounds a single bulk-OUT payload transfer.
	DefaultChunkSize = 16384

	configurationValue = 1
	interfaceNumber    = 0
)

// Client is a session bound to one device in bootloader mode. It owns
// the resolved endpoint pair for the lifetime of the binding; a new
// physical device requires a new Connect.
type Client struct {
	transport transport.Transport
	epIn      int
	epOut     int

	id          uuid.UUID
	chunkSize   int
	logger      log.Logger
	disconnects <-chan struct{}
}

type Option func(*Client)

func WithLogger(logger log.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithChunkSize overrides the payload chunk bound. Sizes below 1 are
// ignored.
func WithChunkSize(size int) Option {
	return func(c *Client) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// Connect validates the endpoint layout of the transport's claimed
// interface and binds a Client to it.
//
// The interface must expose exactly one bulk IN and one bulk OUT
// endpoint. Open, configuration select and interface claim failures are
// always surfaced; the only suppressed failure is the best-effort
// device reset.
func Connect(ctx context.Context, t transport.Transport, opts ...Option) (*Client, error) {
	c := &Client{
		transport:   t,
		id:          uuid.New(),
		chunkSize:   DefaultChunkSize,
		logger:      log.NewNopLogger(),
		disconnects: t.Disconnected(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = log.With(c.logger, "session", c.id)

	epIn, epOut, err := resolveEndpoints(t.Endpoints())
	if err != nil {
		return nil, err
	}
	c.epIn = epIn
	c.epOut = epOut

	if err := t.Open(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to open device")
	}
	if err := t.Reset(); err != nil {
		// not every device supports a reset
		_ = level.Debug(c.logger).Log("msg", "device reset failed; continuing", "err", err)
	}
	if err := t.SelectConfiguration(configurationValue); err != nil {
		return nil, errors.Wrapf(err, "failed to select configuration %d", configurationValue)
	}
	if err := t.ClaimInterface(interfaceNumber); err != nil {
		return nil, errors.Wrapf(err, "failed to claim interface %d", interfaceNumber)
	}

	_ = level.Info(c.logger).Log("msg", "connected to bootloader", "epIn", epIn, "epOut", epOut)
	return c, nil
}

// resolveEndpoints classifies the bulk endpoints of the interface and
// rejects any layout other than exactly one per direction.
func resolveEndpoints(endpoints []transport.EndpointDesc) (epIn int, epOut int, err error) {
	var haveIn, haveOut bool
	for _, ep := range endpoints {
		if ep.TransferType != transport.TransferTypeBulk {
			continue
		}
		switch ep.Direction {
		case transport.DirectionIn:
			if haveIn {
				return 0, 0, ErrMultipleInEndpoints
			}
			haveIn = true
			epIn = ep.Number
		case transport.DirectionOut:
			if haveOut {
				return 0, 0, ErrMultipleOutEndpoints
			}
			haveOut = true
			epOut = ep.Number
		}
	}
	if !haveIn || !haveOut {
		return 0, 0, ErrEndpointsNotFound
	}
	return epIn, epOut, nil
}

// ID identifies the session in logs.
func (c *Client) ID() uuid.UUID {
	return c.id
}

// invalidated reports whether the disconnect notification has fired.
func (c *Client) invalidated() bool {
	select {
	case <-c.disconnects:
		return true
	default:
		return false
	}
}
