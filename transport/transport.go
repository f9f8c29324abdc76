// SPDX-License-Identifier: GPL-2.0-only

package transport

import "context"

// Interface triple advertised by devices in fastboot mode.
const (
	BootloaderInterfaceClass    = 0xff
	BootloaderInterfaceSubClass = 0x42
	BootloaderInterfaceProtocol = 0x03
)

type Direction uint8

const (
	DirectionOut Direction = iota
	DirectionIn
)

// TransferType values follow the USB endpoint attribute encoding.
type TransferType uint8

const (
	TransferTypeControl TransferType = iota
	TransferTypeIsochronous
	TransferTypeBulk
	TransferTypeInterrupt
)

// EndpointDesc describes one endpoint of the claimed interface's first
// alternate setting.
type EndpointDesc struct {
	// Number is the endpoint number without the direction bit.
	Number        int
	Direction     Direction
	TransferType  TransferType
	MaxPacketSize int
}

// Transport is the boundary to a single USB device. Implementations own
// the device handle; all protocol logic above this interface is
// hardware-agnostic.
//
// Only one in-flight read or write per endpoint is valid at a time; the
// bus serializes transfers per endpoint and so must the caller.
type Transport interface {
	// Endpoints lists the endpoints of the first alternate setting of the
	// first interface of the first configuration.
	Endpoints() []EndpointDesc

	Open(ctx context.Context) error

	// Reset requests a device reset. Callers treat failures as
	// best-effort; not every device supports it.
	Reset() error

	SelectConfiguration(num int) error
	ClaimInterface(num int) error

	// TransferIn reads at most length bytes from the given IN endpoint
	// and returns the bytes actually received.
	TransferIn(ctx context.Context, endpoint int, length int) ([]byte, error)

	// TransferOut writes data to the given OUT endpoint and returns the
	// number of bytes transferred.
	TransferOut(ctx context.Context, endpoint int, data []byte) (int, error)

	// Disconnected is closed once the device is gone. Operations already
	// in flight fail through their own error paths.
	Disconnected() <-chan struct{}

	Close() error
}
