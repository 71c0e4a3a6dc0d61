package acmp

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avdecc-go/avdecc/pkg/avdecc/executor"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocolif"
	"github.com/avdecc-go/avdecc/pkg/avdecc/transport"
)

func fastTiming() protocolif.Timing {
	return protocolif.Timing{
		AEMCommandTimeout:    30 * time.Millisecond,
		AddressAccessTimeout: 30 * time.Millisecond,
		VendorUniqueTimeout:  30 * time.Millisecond,
		AcmpCommandTimeout:   30 * time.Millisecond,
		Retries:              1,
	}
}

func newPairOnBus(t *testing.T, bus *transport.VirtualBus, name string, mac byte) (*protocolif.Interface, func()) {
	t.Helper()
	exec := executor.New(name)
	tr := transport.NewVirtualTransport(bus, protocol.MacAddress{mac}, exec)
	pi := protocolif.New(name, tr, fastTiming())
	return pi, func() {
		pi.Close()
		tr.Close()
		exec.Shutdown()
	}
}

func waitOrFail(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
}

// echoListener answers every ConnectRx/DisconnectRx/GetRxState command it
// observes with a Success response carrying the same sequence ID.
func echoListener(pi *protocolif.Interface) {
	pi.ObserveACMP(func(frame []byte) {
		cmd, err := protocol.ParseACMPDU(frame)
		if err != nil || cmd.MessageType.IsResponse() {
			return
		}
		var respType protocol.AcmpMessageType
		switch cmd.MessageType {
		case protocol.AcmpConnectRxCommand:
			respType = protocol.AcmpConnectRxResponse
		case protocol.AcmpDisconnectRxCommand:
			respType = protocol.AcmpDisconnectRxResponse
		case protocol.AcmpGetRxStateCommand:
			respType = protocol.AcmpGetRxStateResponse
		default:
			return
		}
		resp := *cmd
		resp.MessageType = respType
		resp.Status = protocol.AcmpStatusSuccess
		resp.Ethernet = protocol.EthernetHeader{DstMAC: cmd.Ethernet.SrcMAC, SrcMAC: cmd.Ethernet.DstMAC}
		_ = pi.SendACMPMessage(resp.Serialize())
	})
}

func TestConnectStreamResolvesOnListenerResponse(t *testing.T) {
	bus := transport.NewVirtualBus()
	controllerPI, stopController := newPairOnBus(t, bus, "test.acmp.controller", 0x01)
	defer stopController()
	listenerPI, stopListener := newPairOnBus(t, bus, "test.acmp.listener", 0x02)
	defer stopListener()
	echoListener(listenerPI)

	client := NewClient(controllerPI, protocol.EntityID(0xC0FFEE))

	var wg sync.WaitGroup
	wg.Add(1)
	var gotErr error
	var gotResp *protocol.ACMPDU
	require.NoError(t, client.ConnectStream(protocol.EntityID(0xBEEF), protocol.EntityID(0xD00D), 0, 0, 0,
		func(resp *protocol.ACMPDU, err error) {
			gotResp, gotErr = resp, err
			wg.Done()
		}))

	waitOrFail(t, &wg)
	require.NoError(t, gotErr)
	require.Equal(t, protocol.AcmpStatusSuccess, gotResp.Status)
	require.Equal(t, protocol.AcmpConnectRxResponse, gotResp.MessageType)
}

func TestGetTxStateTimesOutWithNoTalker(t *testing.T) {
	bus := transport.NewVirtualBus()
	controllerPI, stopController := newPairOnBus(t, bus, "test.acmp.txstate.controller", 0x01)
	defer stopController()

	client := NewClient(controllerPI, protocol.EntityID(0xC0FFEE))
	var wg sync.WaitGroup
	wg.Add(1)
	var gotErr error
	require.NoError(t, client.GetTxState(protocol.EntityID(0xABCD), 0, func(resp *protocol.ACMPDU, err error) {
		gotErr = err
		wg.Done()
	}))
	waitOrFail(t, &wg)
	require.Error(t, gotErr)
}

type recordingSniffer struct {
	mu         sync.Mutex
	connects   int
	disconnect int
	getRx      int
	wg         *sync.WaitGroup
}

func (r *recordingSniffer) OnConnectResponseSniffed(*protocol.ACMPDU) {
	r.mu.Lock()
	r.connects++
	wg := r.wg
	r.mu.Unlock()
	if wg != nil {
		wg.Done()
	}
}
func (r *recordingSniffer) OnDisconnectResponseSniffed(*protocol.ACMPDU) {
	r.mu.Lock()
	r.disconnect++
	r.mu.Unlock()
}
func (r *recordingSniffer) OnGetListenerStreamStateResponseSniffed(*protocol.ACMPDU) {
	r.mu.Lock()
	r.getRx++
	r.mu.Unlock()
}

// TestSniffingObservesThirdPartyConnections verifies a controller sees a
// ConnectRx exchange between two other entities purely by observing the
// multicast bus (spec §4.F "sniffed connections").
func TestSniffingObservesThirdPartyConnections(t *testing.T) {
	bus := transport.NewVirtualBus()
	bystanderPI, stopBystander := newPairOnBus(t, bus, "test.acmp.sniff.bystander", 0x01)
	defer stopBystander()
	otherControllerPI, stopOther := newPairOnBus(t, bus, "test.acmp.sniff.other", 0x02)
	defer stopOther()
	listenerPI, stopListener := newPairOnBus(t, bus, "test.acmp.sniff.listener", 0x03)
	defer stopListener()
	echoListener(listenerPI)

	bystanderClient := NewClient(bystanderPI, protocol.EntityID(0xAAAA))
	var wg sync.WaitGroup
	wg.Add(1)
	sniffer := &recordingSniffer{wg: &wg}
	unregister := bystanderClient.ObserveSniffedResponses(sniffer)
	defer unregister()

	otherClient := NewClient(otherControllerPI, protocol.EntityID(0xBBBB))
	require.NoError(t, otherClient.ConnectStream(protocol.EntityID(0x1111), protocol.EntityID(0x2222), 0, 0, 0, func(*protocol.ACMPDU, error) {}))

	waitOrFail(t, &wg)
	sniffer.mu.Lock()
	defer sniffer.mu.Unlock()
	require.Equal(t, 1, sniffer.connects)
}
