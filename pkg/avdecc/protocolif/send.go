package protocolif

import (
	"encoding/binary"
	"time"

	avdeccerrors "github.com/avdecc-go/avdecc/internal/errors"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
)

// aecpSequenceOffset/acmpSequenceOffset locate the 2-byte sequenceID field
// within a fully serialized frame, so the Protocol Interface can assign and,
// on retry, re-patch it without the caller reconstructing the PDU.
const (
	aecpSequenceOffset = protocol.EthernetHeaderLen + 21
	acmpSequenceOffset = protocol.EthernetHeaderLen + 50
)

func patchSequenceID(frame []byte, offset int, seq uint16) {
	binary.BigEndian.PutUint16(frame[offset:offset+2], seq)
}

// SendADP transmits a fully serialized ADPDU frame. ADP has no
// command/response correlation: advertisements and discovers are both
// fire-and-forget multicast (spec §4.C "sendAdpMessage").
func (pi *Interface) SendADP(frame []byte) error {
	return ensureSendError("protocolif.sendadp", pi.transport.SendFrame(frame))
}

// SendACMPMessage transmits a fully serialized ACMPDU frame without
// tracking a response — used for responses the interface itself sends
// back to a command it received (spec §4.C "sendAcmpMessage").
func (pi *Interface) SendACMPMessage(frame []byte) error {
	return ensureSendError("protocolif.sendacmp", pi.transport.SendFrame(frame))
}

// SendAECPMessage transmits a fully serialized AECPDU frame without
// tracking a response (spec §4.C "sendAecpMessage").
func (pi *Interface) SendAECPMessage(frame []byte) error {
	return ensureSendError("protocolif.sendaecp", pi.transport.SendFrame(frame))
}

// SendACMPCommand assigns the next sequence ID, patches it into frame,
// transmits it, and tracks the pending response: onResponse runs on
// Executor() exactly once, with the matched response frame, a
// TimeoutError once the retry budget (spec §4.F) is exhausted, or a
// TransportError/AbortedError.
func (pi *Interface) SendACMPCommand(frame []byte, onResponse ResponseCallback) error {
	seq := pi.nextSequenceID()
	patchSequenceID(frame, acmpSequenceOffset, seq)
	if err := pi.transport.SendFrame(frame); err != nil {
		return ensureSendError("protocolif.sendacmpcommand", err)
	}
	pi.acmpPending.register(pi.exec, "protocolif.acmpcommand", seq, pi.timing.AcmpCommandTimeout, pi.timing.Retries,
		func() error { return pi.transport.SendFrame(frame) }, onResponse)
	return nil
}

// SendAECPCommand assigns the next sequence ID, patches it into frame,
// transmits it, and tracks the pending response (spec §4.C
// "sendAecpCommand", spec §4.E retry policy). timeout selects which of the
// Timing durations applies (AEM, Address-Access, or Vendor-Unique commands
// each have their own per spec §4.E).
func (pi *Interface) SendAECPCommand(frame []byte, timeout TimeoutKind, onResponse ResponseCallback) error {
	seq := pi.nextSequenceID()
	patchSequenceID(frame, aecpSequenceOffset, seq)
	if err := pi.transport.SendFrame(frame); err != nil {
		return ensureSendError("protocolif.sendaecpcommand", err)
	}
	pi.aecpPending.register(pi.exec, "protocolif.aecpcommand", seq, pi.timingFor(timeout), pi.timing.Retries,
		func() error { return pi.transport.SendFrame(frame) }, onResponse)
	return nil
}

// TimeoutKind selects which of the three AECP command families' timeout
// applies to a SendAECPCommand call (spec §4.E distinguishes AEM,
// Address-Access, and Vendor-Unique timeouts).
type TimeoutKind int

const (
	TimeoutAEM TimeoutKind = iota
	TimeoutAddressAccess
	TimeoutVendorUnique
)

func (pi *Interface) timingFor(k TimeoutKind) time.Duration {
	switch k {
	case TimeoutAddressAccess:
		return pi.timing.AddressAccessTimeout
	case TimeoutVendorUnique:
		return pi.timing.VendorUniqueTimeout
	default:
		return pi.timing.AEMCommandTimeout
	}
}

func ensureSendError(op string, err error) error {
	if err == nil {
		return nil
	}
	return avdeccerrors.NewTransportError(op, err)
}
