package transport

import (
	"fmt"
	"net"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	avdeccerrors "github.com/avdecc-go/avdecc/internal/errors"
	"github.com/avdecc-go/avdecc/internal/logger"
	"github.com/avdecc-go/avdecc/pkg/avdecc/executor"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
)

// CaptureBackend abstracts the packet-capture library so RealTransport reads
// and writes through an interface rather than a *pcap.Handle (its receive
// loop still compares read errors with pcap.NextErrorTimeoutExpired); this
// is the seam a native macOS AVB
// backend (out of scope per spec §1) would implement instead.
type CaptureBackend interface {
	WritePacketData(data []byte) error
	ReadPacketData() (data []byte, err error)
	Close()
}

// pcapBackend adapts *pcap.Handle to CaptureBackend.
type pcapBackend struct{ handle *pcap.Handle }

func (p *pcapBackend) WritePacketData(data []byte) error { return p.handle.WritePacketData(data) }
func (p *pcapBackend) ReadPacketData() ([]byte, error)   { return p.handle.ReadPacketData() }
func (p *pcapBackend) Close()                            { p.handle.Close() }

// OpenLive opens ifaceName via libpcap in promiscuous mode, filtered to the
// AVDECC EtherType, and returns a CaptureBackend suitable for NewRealTransport.
func OpenLive(ifaceName string) (CaptureBackend, error) {
	handle, err := pcap.OpenLive(ifaceName, 1600, true, pcap.BlockForever)
	if err != nil {
		return nil, avdeccerrors.NewTransportError("transport.openlive", err)
	}
	filter := fmt.Sprintf("ether proto 0x%04x", protocol.EtherTypeAVTP)
	if err := handle.SetBPFFilter(filter); err != nil {
		handle.Close()
		return nil, avdeccerrors.NewTransportError("transport.setfilter", err)
	}
	return &pcapBackend{handle: handle}, nil
}

// InterfaceMacAddress resolves ifaceName's hardware address via the
// standard net package. pcap's device listing does not reliably expose the
// link-layer address across platforms, so callers get it from net instead
// and pass it into NewRealTransport explicitly.
func InterfaceMacAddress(ifaceName string) (protocol.MacAddress, error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return protocol.MacAddress{}, avdeccerrors.NewTransportError("transport.interfacemac", err)
	}
	if len(iface.HardwareAddr) != 6 {
		return protocol.MacAddress{}, avdeccerrors.NewTransportError("transport.interfacemac", fmt.Errorf("interface %s has no 6-byte hardware address", ifaceName))
	}
	var mac protocol.MacAddress
	copy(mac[:], iface.HardwareAddr)
	return mac, nil
}

// RealTransport sends and receives AVDECC frames over a real network
// interface via a CaptureBackend (spec §4.B "raw Ethernet via capture
// driver").
type RealTransport struct {
	baseTransport
	backend CaptureBackend
	mac     protocol.MacAddress

	stopOnce sync.Once
	stopped  chan struct{}
}

// NewRealTransport starts a RealTransport reading from backend, dispatching
// received frames on exec. mac is the interface's own hardware address
// (used to answer ADP Discover addressed to this entity and populate
// outbound Ethernet headers' source field at higher layers).
func NewRealTransport(backend CaptureBackend, mac protocol.MacAddress, exec *executor.Executor) *RealTransport {
	t := &RealTransport{
		baseTransport: newBaseTransport(exec),
		backend:       backend,
		mac:           mac,
		stopped:       make(chan struct{}),
	}
	go t.receiveLoop()
	return t
}

func (t *RealTransport) receiveLoop() {
	log := logger.Logger()
	for {
		select {
		case <-t.stopped:
			return
		default:
		}
		data, err := t.backend.ReadPacketData()
		if err != nil {
			if err == pcap.NextErrorTimeoutExpired {
				continue
			}
			select {
			case <-t.stopped:
				return
			default:
			}
			log.Warn("transport: read error", "error", err)
			continue
		}
		if !isAVTPFrame(data) {
			continue
		}
		t.dispatch(data)
	}
}

func isAVTPFrame(data []byte) bool {
	pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.NoCopy)
	ethLayer, ok := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	return ok && ethLayer.EthernetType == protocol.EtherTypeAVTP
}

// SendFrame transmits frame via the capture backend.
func (t *RealTransport) SendFrame(frame []byte) error {
	return ensureTransportError("transport.send", t.backend.WritePacketData(frame))
}

// MacAddress returns the bound interface's hardware address.
func (t *RealTransport) MacAddress() protocol.MacAddress { return t.mac }

// Close stops the receive loop and releases the capture backend.
func (t *RealTransport) Close() error {
	t.stopOnce.Do(func() {
		close(t.stopped)
		t.backend.Close()
	})
	return nil
}
