package protocolif

import (
	"encoding/binary"

	avdeccerrors "github.com/avdecc-go/avdecc/internal/errors"
	"github.com/avdecc-go/avdecc/internal/logger"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
)

// handleACMPFrame correlates an incoming ACMPDU against the pending-command
// table by sequence ID when it is a response; commands (including those
// this entity must answer as a talker/listener) and unmatched responses
// are still forwarded to ACMP observers (spec §4.F sniffing every ACMPDU
// on the multicast segment, not only ones addressed to this entity).
//
// Unlike AECP, ACMP's wire status codes (protocol.AcmpStatus) carry no
// InProgress value (spec §7 only defines InProgress for AemStatus); every
// ACMP response is therefore final on arrival, and the per-hop timeout
// extension spec §4.F describes comes from the existing retry/timeout
// timer alone, not an explicit status check here.
func (pi *Interface) handleACMPFrame(frame []byte) {
	body := frame[protocol.EthernetHeaderLen:]
	if len(body) < protocol.ACMPDULen {
		return
	}
	messageType := protocol.AcmpMessageType(body[1])
	seq := binary.BigEndian.Uint16(body[50:52])
	if messageType.IsResponse() {
		pi.acmpPending.resolve(seq, frame)
	}
	pi.acmpObservers.fire(frame)
}

// handleAECPFrame correlates an incoming AECPDU response against the
// pending-command table, routes Vendor-Unique frames to their registered
// delegate, and forwards AEM frames (commands this entity must answer,
// and unsolicited notifications) to AEM observers.
func (pi *Interface) handleAECPFrame(frame []byte) {
	body := frame[protocol.EthernetHeaderLen:]
	if len(body) < protocol.AecpHeaderLen {
		return
	}
	messageType := protocol.AecpMessageType(body[1])
	seq := binary.BigEndian.Uint16(body[21:23])

	switch messageType {
	case protocol.AecpVendorUniqueCommand, protocol.AecpVendorUniqueResponse:
		pi.dispatchVendorUnique(frame, messageType, seq)
	default:
		if messageType.IsResponse() {
			status := avdeccerrors.AemStatus(body[2])
			if status.IsInProgress() {
				pi.aecpPending.keepAlive(seq)
			} else {
				pi.aecpPending.resolve(seq, frame)
			}
		}
		pi.aemObservers.fire(frame)
	}
}

func (pi *Interface) dispatchVendorUnique(frame []byte, messageType protocol.AecpMessageType, seq uint16) {
	vu, err := protocol.ParseVendorUniquePDU(frame)
	if err != nil {
		logger.Debug("protocolif: dropped malformed vendor-unique frame", "error", err)
		return
	}
	if messageType.IsResponse() {
		status := avdeccerrors.AemStatus(vu.Status)
		if status.IsInProgress() {
			pi.aecpPending.keepAlive(seq)
		} else {
			pi.aecpPending.resolve(seq, frame)
		}
	}
	pi.vuMu.RLock()
	delegate, ok := pi.vendorUniq[vu.ProtocolID]
	pi.vuMu.RUnlock()
	if !ok {
		logger.Debug("protocolif: no delegate for vendor-unique protocol", "protocolID", vu.ProtocolID)
		return
	}
	delegate.HandleFrame(frame)
}

// RegisterVendorUniqueDelegate binds delegate to protocolID (the 48-bit
// value carried in a VendorUniquePDU's ProtocolID field), so every
// Vendor-Unique command and response frame for that protocol is routed to
// it (spec §4.C "registerVendorUniqueDelegate"). A second registration for
// the same protocolID replaces the first.
func (pi *Interface) RegisterVendorUniqueDelegate(protocolID uint64, delegate VendorUniqueDelegate) {
	pi.vuMu.Lock()
	pi.vendorUniq[protocolID] = delegate
	pi.vuMu.Unlock()
}

// UnregisterVendorUniqueDelegate removes any delegate bound to protocolID.
func (pi *Interface) UnregisterVendorUniqueDelegate(protocolID uint64) {
	pi.vuMu.Lock()
	delete(pi.vendorUniq, protocolID)
	pi.vuMu.Unlock()
}
