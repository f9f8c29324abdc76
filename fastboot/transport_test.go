package fastboot

import (
	"context"
	"testing"

	"github.com/efficientgo/core/errors"

	"github.com/usbtools/fastboot-flasher/transport"
)

// fakeTransport replays scripted IN packets and records OUT transfers.
type fakeTransport struct {
	endpoints []transport.EndpointDesc
	reads     [][]byte
	writes    [][]byte

	openErr   error
	resetErr  error
	selectErr error
	claimErr  error

	// writeErrAt fails the write with that index; -1 disables it.
	writeErrAt int
	writeErr   error

	resetCalled      bool
	selectedConfig   int
	claimedInterface int

	gone chan struct{}
}

func bulkEndpointPair() []transport.EndpointDesc {
	return []transport.EndpointDesc{
		{Number: 1, Direction: transport.DirectionIn, TransferType: transport.TransferTypeBulk, MaxPacketSize: 512},
		{Number: 1, Direction: transport.DirectionOut, TransferType: transport.TransferTypeBulk, MaxPacketSize: 512},
	}
}

func newFakeTransport(packets ...string) *fakeTransport {
	reads := make([][]byte, len(packets))
	for i, p := range packets {
		reads[i] = []byte(p)
	}
	return &fakeTransport{
		endpoints:  bulkEndpointPair(),
		reads:      reads,
		writeErrAt: -1,
		gone:       make(chan struct{}),
	}
}

func (f *fakeTransport) Endpoints() []transport.EndpointDesc {
	return f.endpoints
}

func (f *fakeTransport) Open(_ context.Context) error {
	return f.openErr
}

func (f *fakeTransport) Reset() error {
	f.resetCalled = true
	return f.resetErr
}

func (f *fakeTransport) SelectConfiguration(num int) error {
	if f.selectErr != nil {
		return f.selectErr
	}
	f.selectedConfig = num
	return nil
}

func (f *fakeTransport) ClaimInterface(num int) error {
	if f.claimErr != nil {
		return f.claimErr
	}
	f.claimedInterface = num
	return nil
}

func (f *fakeTransport) TransferIn(_ context.Context, _ int, length int) ([]byte, error) {
	if len(f.reads) == 0 {
		return nil, errors.New("no packets scripted")
	}
	packet := f.reads[0]
	f.reads = f.reads[1:]
	if len(packet) > length {
		packet = packet[:length]
	}
	return packet, nil
}

func (f *fakeTransport) TransferOut(_ context.Context, _ int, data []byte) (int, error) {
	if f.writeErrAt == len(f.writes) && f.writeErr != nil {
		return 0, f.writeErr
	}
	f.writes = append(f.writes, append([]byte(nil), data...))
	return len(data), nil
}

func (f *fakeTransport) Disconnected() <-chan struct{} {
	return f.gone
}

func (f *fakeTransport) Close() error {
	return nil
}

func mustConnect(t *testing.T, ft *fakeTransport, opts ...Option) *Client {
	t.Helper()
	c, err := Connect(context.Background(), ft, opts...)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	return c
}
