package transport

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avdecc-go/avdecc/pkg/avdecc/executor"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
)

func TestVirtualTransportBroadcastsToOtherEndpoints(t *testing.T) {
	bus := NewVirtualBus()
	exec := executor.New("test.transport")
	defer exec.Shutdown()

	a := NewVirtualTransport(bus, protocol.MacAddress{0x01}, exec)
	b := NewVirtualTransport(bus, protocol.MacAddress{0x02}, exec)
	defer a.Close()
	defer b.Close()

	var mu sync.Mutex
	var received []byte
	var wg sync.WaitGroup
	wg.Add(1)
	b.Observe(func(frame []byte) {
		mu.Lock()
		received = frame
		mu.Unlock()
		wg.Done()
	})

	require.NoError(t, a.SendFrame([]byte{0xAA, 0xBB, 0xCC}))

	waitOrTimeout(t, &wg)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []byte{0xAA, 0xBB, 0xCC}, received)
}

func TestVirtualTransportDoesNotLoopBackToSender(t *testing.T) {
	bus := NewVirtualBus()
	exec := executor.New("test.transport.loopback")
	defer exec.Shutdown()

	a := NewVirtualTransport(bus, protocol.MacAddress{0x01}, exec)
	defer a.Close()

	var got bool
	a.Observe(func(frame []byte) { got = true })
	require.NoError(t, a.SendFrame([]byte{0x01}))

	time.Sleep(20 * time.Millisecond)
	require.False(t, got)
}

func TestVirtualTransportCloseRemovesFromBus(t *testing.T) {
	bus := NewVirtualBus()
	exec := executor.New("test.transport.close")
	defer exec.Shutdown()

	a := NewVirtualTransport(bus, protocol.MacAddress{0x01}, exec)
	b := NewVirtualTransport(bus, protocol.MacAddress{0x02}, exec)
	defer b.Close()

	require.NoError(t, a.Close())

	var got bool
	b.Observe(func(frame []byte) { got = true })
	require.NoError(t, a.SendFrame([]byte{0x01}))

	time.Sleep(20 * time.Millisecond)
	require.False(t, got)
}

func TestVirtualTransportMacAddress(t *testing.T) {
	bus := NewVirtualBus()
	exec := executor.New("test.transport.mac")
	defer exec.Shutdown()

	mac := protocol.MacAddress{0x00, 0x1b, 0x92, 0xaa, 0xbb, 0xcc}
	a := NewVirtualTransport(bus, mac, exec)
	defer a.Close()
	require.Equal(t, mac, a.MacAddress())
}

func TestUnregisterObserverStopsDelivery(t *testing.T) {
	bus := NewVirtualBus()
	exec := executor.New("test.transport.unregister")
	defer exec.Shutdown()

	a := NewVirtualTransport(bus, protocol.MacAddress{0x01}, exec)
	b := NewVirtualTransport(bus, protocol.MacAddress{0x02}, exec)
	defer a.Close()
	defer b.Close()

	var got bool
	unregister := b.Observe(func(frame []byte) { got = true })
	unregister()

	require.NoError(t, a.SendFrame([]byte{0x01}))
	time.Sleep(20 * time.Millisecond)
	require.False(t, got)
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame delivery")
	}
}
