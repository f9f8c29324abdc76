// SPDX-License-Identifier: GPL-2.0-only

package transport

import (
	"context"
	"sort"
	"sync"

	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log"
	"github.com/google/gousb"
)

var ErrDeviceNotFound = errors.New("no device in bootloader mode found")

// Filter restricts device matching to a vendor/product pair. A zero
// field matches anything; the bootloader interface triple is always
// required on top of this.
type Filter struct {
	Vendor  gousb.ID
	Product gousb.ID
}

func (f Filter) matches(desc *gousb.DeviceDesc) bool {
	return (f.Vendor == 0 || f.Vendor == desc.Vendor) &&
		(f.Product == 0 || f.Product == desc.Product)
}

// usbTransport implements Transport on top of gousb/libusb.
type usbTransport struct {
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface

	epIn  map[int]*gousb.InEndpoint
	epOut map[int]*gousb.OutEndpoint

	endpoints []EndpointDesc

	gone     chan struct{}
	goneOnce sync.Once

	logger log.Logger
}

// OpenDevice opens the first device that matches the filter and carries
// a bootloader interface. Remaining matches are closed again.
func OpenDevice(usbCtx *gousb.Context, filter Filter, logger log.Logger) (Transport, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	devs, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if !filter.matches(desc) {
			return false
		}
		_, err := interfaceEndpoints(desc)
		return err == nil
	})
	if len(devs) == 0 {
		if err != nil {
			return nil, errors.Wrap(err, "failed to enumerate USB devices")
		}
		return nil, ErrDeviceNotFound
	}
	for _, extra := range devs[1:] {
		_ = extra.Close()
	}

	dev := devs[0]
	endpoints, err := interfaceEndpoints(dev.Desc)
	if err != nil {
		_ = dev.Close()
		return nil, err
	}

	_ = logger.Log("msg", "opened USB device", "vendor", dev.Desc.Vendor, "product", dev.Desc.Product)

	return &usbTransport{
		dev:       dev,
		epIn:      map[int]*gousb.InEndpoint{},
		epOut:     map[int]*gousb.OutEndpoint{},
		endpoints: endpoints,
		gone:      make(chan struct{}),
		logger:    logger,
	}, nil
}

// interfaceEndpoints extracts the endpoint descriptors of the first
// alternate setting of the first interface of the first configuration,
// provided that setting carries the bootloader interface triple.
func interfaceEndpoints(desc *gousb.DeviceDesc) ([]EndpointDesc, error) {
	cfgNums := make([]int, 0, len(desc.Configs))
	for num := range desc.Configs {
		cfgNums = append(cfgNums, num)
	}
	if len(cfgNums) == 0 {
		return nil, errors.New("device has no configurations")
	}
	sort.Ints(cfgNums)
	cfg := desc.Configs[cfgNums[0]]

	if len(cfg.Interfaces) == 0 || len(cfg.Interfaces[0].AltSettings) == 0 {
		return nil, errors.New("device has no interface settings")
	}
	alt := cfg.Interfaces[0].AltSettings[0]

	if uint8(alt.Class) != BootloaderInterfaceClass ||
		uint8(alt.SubClass) != BootloaderInterfaceSubClass ||
		uint8(alt.Protocol) != BootloaderInterfaceProtocol {
		return nil, errors.Newf(
			"interface class %02x/%02x/%02x is not a bootloader interface",
			uint8(alt.Class), uint8(alt.SubClass), uint8(alt.Protocol),
		)
	}

	endpoints := make([]EndpointDesc, 0, len(alt.Endpoints))
	addrs := make([]int, 0, len(alt.Endpoints))
	for addr := range alt.Endpoints {
		addrs = append(addrs, int(addr))
	}
	// map iteration order is not stable; keep descriptor order deterministic
	sort.Ints(addrs)
	for _, addr := range addrs {
		ep := alt.Endpoints[gousb.EndpointAddress(addr)]
		converted := EndpointDesc{
			Number:        ep.Number,
			Direction:     DirectionOut,
			TransferType:  TransferTypeControl,
			MaxPacketSize: ep.MaxPacketSize,
		}
		if ep.Direction == gousb.EndpointDirectionIn {
			converted.Direction = DirectionIn
		}
		switch ep.TransferType {
		case gousb.TransferTypeBulk:
			converted.TransferType = TransferTypeBulk
		case gousb.TransferTypeInterrupt:
			converted.TransferType = TransferTypeInterrupt
		case gousb.TransferTypeIsochronous:
			converted.TransferType = TransferTypeIsochronous
		}
		endpoints = append(endpoints, converted)
	}
	return endpoints, nil
}

func (t *usbTransport) Endpoints() []EndpointDesc {
	return t.endpoints
}

func (t *usbTransport) Open(_ context.Context) error {
	// The handle itself was opened during enumeration; what remains is
	// making sure no kernel driver holds the interface.
	if err := t.dev.SetAutoDetach(true); err != nil {
		return errors.Wrap(err, "failed to enable kernel driver auto-detach")
	}
	return nil
}

func (t *usbTransport) Reset() error {
	return t.dev.Reset()
}

func (t *usbTransport) SelectConfiguration(num int) error {
	cfg, err := t.dev.Config(num)
	if err != nil {
		return errors.Wrapf(err, "failed to select configuration %d", num)
	}
	t.cfg = cfg
	return nil
}

func (t *usbTransport) ClaimInterface(num int) error {
	if t.cfg == nil {
		return errors.New("no configuration selected")
	}
	intf, err := t.cfg.Interface(num, 0)
	if err != nil {
		return errors.Wrapf(err, "failed to claim interface %d", num)
	}
	t.intf = intf

	for _, ep := range t.endpoints {
		if ep.TransferType != TransferTypeBulk {
			continue
		}
		switch ep.Direction {
		case DirectionIn:
			in, err := intf.InEndpoint(ep.Number)
			if err != nil {
				return errors.Wrapf(err, "failed to open IN endpoint %d", ep.Number)
			}
			t.epIn[ep.Number] = in
		case DirectionOut:
			out, err := intf.OutEndpoint(ep.Number)
			if err != nil {
				return errors.Wrapf(err, "failed to open OUT endpoint %d", ep.Number)
			}
			t.epOut[ep.Number] = out
		}
	}
	return nil
}

func (t *usbTransport) TransferIn(ctx context.Context, endpoint int, length int) ([]byte, error) {
	ep, ok := t.epIn[endpoint]
	if !ok {
		return nil, errors.Newf("IN endpoint %d not claimed", endpoint)
	}
	buf := make([]byte, length)
	n, err := ep.ReadContext(ctx, buf)
	if err != nil {
		t.noteTransferError(err)
		return nil, err
	}
	return buf[:n], nil
}

func (t *usbTransport) TransferOut(ctx context.Context, endpoint int, data []byte) (int, error) {
	ep, ok := t.epOut[endpoint]
	if !ok {
		return 0, errors.Newf("OUT endpoint %d not claimed", endpoint)
	}
	n, err := ep.WriteContext(ctx, data)
	if err != nil {
		t.noteTransferError(err)
	}
	return n, err
}

// noteTransferError promotes a vanished-device error into the
// disconnect notification.
func (t *usbTransport) noteTransferError(err error) {
	if errors.Is(err, gousb.ErrorNoDevice) {
		t.goneOnce.Do(func() {
			_ = t.logger.Log("msg", "device disconnected")
			close(t.gone)
		})
	}
}

func (t *usbTransport) Disconnected() <-chan struct{} {
	return t.gone
}

func (t *usbTransport) Close() error {
	if t.intf != nil {
		t.intf.Close()
	}
	if t.cfg != nil {
		_ = t.cfg.Close()
	}
	return t.dev.Close()
}
