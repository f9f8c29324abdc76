package fastboot

import (
	"context"
	"testing"

	"github.com/efficientgo/core/errors"

	"github.com/usbtools/fastboot-flasher/transport"
)

func bulkIn(num int) transport.EndpointDesc {
	return transport.EndpointDesc{Number: num, Direction: transport.DirectionIn, TransferType: transport.TransferTypeBulk}
}

func bulkOut(num int) transport.EndpointDesc {
	return transport.EndpointDesc{Number: num, Direction: transport.DirectionOut, TransferType: transport.TransferTypeBulk}
}

func interruptIn(num int) transport.EndpointDesc {
	return transport.EndpointDesc{Number: num, Direction: transport.DirectionIn, TransferType: transport.TransferTypeInterrupt}
}

func TestEndpointDiscovery(t *testing.T) {
	for _, tc := range []struct {
		name      string
		endpoints []transport.EndpointDesc
		err       error
		epIn      int
		epOut     int
	}{
		{
			name:      "in and out",
			endpoints: []transport.EndpointDesc{bulkIn(1), bulkOut(2)},
			epIn:      1,
			epOut:     2,
		},
		{
			name:      "non-bulk endpoints ignored",
			endpoints: []transport.EndpointDesc{interruptIn(3), bulkIn(1), bulkOut(2)},
			epIn:      1,
			epOut:     2,
		},
		{
			name:      "no endpoints",
			endpoints: nil,
			err:       ErrEndpointsNotFound,
		},
		{
			name:      "missing bulk in",
			endpoints: []transport.EndpointDesc{interruptIn(3), bulkOut(2)},
			err:       ErrEndpointsNotFound,
		},
		{
			name:      "missing bulk out",
			endpoints: []transport.EndpointDesc{bulkIn(1)},
			err:       ErrEndpointsNotFound,
		},
		{
			name:      "duplicate bulk in",
			endpoints: []transport.EndpointDesc{bulkIn(1), bulkIn(3), bulkOut(2)},
			err:       ErrMultipleInEndpoints,
		},
		{
			name:      "duplicate bulk out",
			endpoints: []transport.EndpointDesc{bulkIn(1), bulkOut(2), bulkOut(3)},
			err:       ErrMultipleOutEndpoints,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ft := newFakeTransport()
			ft.endpoints = tc.endpoints

			c, err := Connect(context.Background(), ft)
			if !errors.Is(err, tc.err) {
				t.Fatalf("got error %v; want %v", err, tc.err)
			}
			if err != nil {
				return
			}
			if c.epIn != tc.epIn || c.epOut != tc.epOut {
				t.Errorf("resolved endpoints %d/%d; want %d/%d", c.epIn, c.epOut, tc.epIn, tc.epOut)
			}
		})
	}
}

func TestConnectSelectsConfigAndInterface(t *testing.T) {
	ft := newFakeTransport()
	mustConnect(t, ft)

	if ft.selectedConfig != 1 {
		t.Errorf("selected configuration %d; want 1", ft.selectedConfig)
	}
	if ft.claimedInterface != 0 {
		t.Errorf("claimed interface %d; want 0", ft.claimedInterface)
	}
}

func TestConnectSwallowsResetFailure(t *testing.T) {
	ft := newFakeTransport()
	ft.resetErr = errors.New("reset not supported")

	mustConnect(t, ft)
	if !ft.resetCalled {
		t.Error("reset was never attempted")
	}
}

// Open, configuration select and interface claim failures are always
// surfaced, also when reconnecting to an already-bound device; the
// best-effort reset is the only suppressed failure.
func TestConnectSurfacesSetupFailures(t *testing.T) {
	for _, tc := range []struct {
		name  string
		wreck func(*fakeTransport)
	}{
		{name: "open fails", wreck: func(ft *fakeTransport) { ft.openErr = errors.New("open denied") }},
		{name: "select fails", wreck: func(ft *fakeTransport) { ft.selectErr = errors.New("config unavailable") }},
		{name: "claim fails", wreck: func(ft *fakeTransport) { ft.claimErr = errors.New("interface busy") }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ft := newFakeTransport()
			tc.wreck(ft)

			if _, err := Connect(context.Background(), ft); err == nil {
				t.Error("expected connect to fail")
			}
		})
	}
}

func TestDisconnectInvalidatesSession(t *testing.T) {
	ft := newFakeTransport("OKAY")
	c := mustConnect(t, ft)

	close(ft.gone)

	if _, err := c.RunCommand(context.Background(), "getvar:version"); !errors.Is(err, ErrDisconnected) {
		t.Errorf("RunCommand: got %v; want ErrDisconnected", err)
	}
	if _, err := c.ReadResponse(context.Background()); !errors.Is(err, ErrDisconnected) {
		t.Errorf("ReadResponse: got %v; want ErrDisconnected", err)
	}
	if err := c.SendRawPayload(context.Background(), []byte{1}, nil); !errors.Is(err, ErrDisconnected) {
		t.Errorf("SendRawPayload: got %v; want ErrDisconnected", err)
	}
	if len(ft.writes) != 0 {
		t.Errorf("expected no transfers after disconnect, got %d", len(ft.writes))
	}
}
