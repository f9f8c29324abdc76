// SPDX-License-Identifier: GPL-2.0-only

package flasher

import (
	"github.com/google/gousb"

	"github.com/usbtools/fastboot-flasher/transport"
)

// Selector picks a device by vendor/product ID. A zero field acts as a
// wildcard; the bootloader interface triple is checked by the transport
// regardless.
type Selector struct {
	// Vendor is the USB Vendor ID of the device.
	Vendor uint16 `json:"vendor"`
	// Product is the USB Product ID of the device.
	Product uint16 `json:"product"`
}

func (s Selector) Matches(vendor, product uint16) bool {
	return (s.Vendor == 0 || s.Vendor == vendor) &&
		(s.Product == 0 || s.Product == product)
}

// Filter converts the selector into the transport's device filter.
func (s Selector) Filter() transport.Filter {
	return transport.Filter{
		Vendor:  gousb.ID(s.Vendor),
		Product: gousb.ID(s.Product),
	}
}

// ImageSpec is an image assignment as configured: a partition name and
// the path of the file to flash to it.
type ImageSpec struct {
	Partition string `json:"partition"`
	Path      string `json:"path"`
}
