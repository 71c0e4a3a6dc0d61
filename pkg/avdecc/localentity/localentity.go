// Package localentity presents the typed command facade over AECP/ACMP
// that spec §4.G describes: one call per operation, each decoding its
// response into a Go type instead of leaving callers to parse
// CommandSpecificData themselves.
package localentity

import (
	"encoding/binary"

	avdeccerrors "github.com/avdecc-go/avdecc/internal/errors"
	"github.com/avdecc-go/avdecc/pkg/avdecc/aecp"
	"github.com/avdecc-go/avdecc/pkg/avdecc/acmp"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocolif"
)

// LocalEntity is the controller-facing typed facade for one local AVDECC
// entity: it owns the AECP and ACMP clients for that entity's Protocol
// Interface and exposes one method per spec §4.G operation.
type LocalEntity struct {
	AECP *aecp.Client
	ACMP *acmp.Client

	pi           *protocolif.Interface
	controllerID protocol.EntityID
}

// New creates a LocalEntity whose outbound commands carry controllerID as
// the local entity's own ID.
func New(pi *protocolif.Interface, controllerID protocol.EntityID) *LocalEntity {
	return &LocalEntity{
		AECP:         aecp.NewClient(pi, controllerID),
		ACMP:         acmp.NewClient(pi, controllerID),
		pi:           pi,
		controllerID: controllerID,
	}
}

// AcquireResult is the decoded response to AcquireEntity/ReleaseEntity:
// both share the same payload shape (flags, owning controller, target
// descriptor).
type AcquireResult struct {
	Flags          uint32
	OwnerID        protocol.EntityID
	DescriptorType protocol.DescriptorType
	DescriptorIndex protocol.DescriptorIndex
}

func encodeAcquireOrLock(flags uint32, descriptorType protocol.DescriptorType, descriptorIndex protocol.DescriptorIndex) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint32(buf[0:4], flags)
	binary.BigEndian.PutUint16(buf[12:14], uint16(descriptorType))
	binary.BigEndian.PutUint16(buf[14:16], uint16(descriptorIndex))
	return buf
}

func decodeAcquireOrLock(data []byte) (AcquireResult, error) {
	if len(data) < 16 {
		return AcquireResult{}, avdeccerrors.NewCodecError("localentity.acquire", avdeccerrors.DeserializationPayloadTooShort, nil)
	}
	return AcquireResult{
		Flags:           binary.BigEndian.Uint32(data[0:4]),
		OwnerID:         protocol.EntityID(binary.BigEndian.Uint64(data[4:12])),
		DescriptorType:  protocol.DescriptorType(binary.BigEndian.Uint16(data[12:14])),
		DescriptorIndex: protocol.DescriptorIndex(binary.BigEndian.Uint16(data[14:16])),
	}, nil
}

// AcquireResultCallback delivers a decoded AcquireEntity/ReleaseEntity
// response.
type AcquireResultCallback func(result AcquireResult, err error)

// decodeOwnershipResponse applies the shared AcquireEntity/LockEntity
// response handling: a non-Success AemStatus (most commonly
// EntityAcquired/EntityLocked, spec §7) is surfaced as the callback's
// error rather than silently decoded as if it had succeeded.
func decodeOwnershipResponse(op string, resp *protocol.AEMPDU, err error, cb AcquireResultCallback) {
	if err != nil {
		cb(AcquireResult{}, err)
		return
	}
	if status := avdeccerrors.AemStatus(resp.Status); !status.IsSuccess() {
		cb(AcquireResult{}, avdeccerrors.NewAemStatusError(op, status))
		return
	}
	result, derr := decodeAcquireOrLock(resp.CommandSpecificData)
	cb(result, derr)
}

// AcquireEntity claims exclusive (or persistent) ownership of target's
// entire entity descriptor.
func (e *LocalEntity) AcquireEntity(target protocol.EntityID, dstMAC protocol.MacAddress, flags uint32, cb AcquireResultCallback) error {
	return e.AECP.SendCommand(target, dstMAC, protocol.AemAcquireEntity, encodeAcquireOrLock(flags, protocol.DescriptorEntity, 0), protocolif.TimeoutAEM,
		func(resp *protocol.AEMPDU, err error) {
			decodeOwnershipResponse("localentity.acquireEntity", resp, err, cb)
		})
}

// ReleaseEntity releases a previously acquired entity.
func (e *LocalEntity) ReleaseEntity(target protocol.EntityID, dstMAC protocol.MacAddress, cb AcquireResultCallback) error {
	return e.AECP.SendCommand(target, dstMAC, protocol.AemAcquireEntity, encodeAcquireOrLock(0x1 /* release flag */, protocol.DescriptorEntity, 0), protocolif.TimeoutAEM,
		func(resp *protocol.AEMPDU, err error) {
			decodeOwnershipResponse("localentity.releaseEntity", resp, err, cb)
		})
}

// LockEntity prevents other controllers from changing target's state
// without taking full ownership of it (spec §7 "LockEntity").
func (e *LocalEntity) LockEntity(target protocol.EntityID, dstMAC protocol.MacAddress, cb AcquireResultCallback) error {
	return e.AECP.SendCommand(target, dstMAC, protocol.AemLockEntity, encodeAcquireOrLock(0, protocol.DescriptorEntity, 0), protocolif.TimeoutAEM,
		func(resp *protocol.AEMPDU, err error) {
			decodeOwnershipResponse("localentity.lockEntity", resp, err, cb)
		})
}

// UnlockEntity releases a previously acquired lock.
func (e *LocalEntity) UnlockEntity(target protocol.EntityID, dstMAC protocol.MacAddress, cb AcquireResultCallback) error {
	return e.AECP.SendCommand(target, dstMAC, protocol.AemLockEntity, encodeAcquireOrLock(0x1 /* unlock flag */, protocol.DescriptorEntity, 0), protocolif.TimeoutAEM,
		func(resp *protocol.AEMPDU, err error) {
			decodeOwnershipResponse("localentity.unlockEntity", resp, err, cb)
		})
}

// DescriptorCallback delivers a ReadDescriptor response: the caller
// decodes rawDescriptor with entitymodel's per-type parser since the wire
// shape depends on descriptorType.
type DescriptorCallback func(configurationIndex uint16, descriptorType protocol.DescriptorType, descriptorIndex protocol.DescriptorIndex, rawDescriptor []byte, err error)

// ReadDescriptor retrieves one descriptor's raw bytes from target's entity
// model (spec §4.G "readDescriptor(type,index)").
func (e *LocalEntity) ReadDescriptor(target protocol.EntityID, dstMAC protocol.MacAddress, configurationIndex uint16, descriptorType protocol.DescriptorType, descriptorIndex protocol.DescriptorIndex, cb DescriptorCallback) error {
	req := make([]byte, 8)
	binary.BigEndian.PutUint16(req[0:2], configurationIndex)
	binary.BigEndian.PutUint16(req[4:6], uint16(descriptorType))
	binary.BigEndian.PutUint16(req[6:8], uint16(descriptorIndex))
	return e.AECP.SendCommand(target, dstMAC, protocol.AemReadDescriptor, req, protocolif.TimeoutAEM,
		func(resp *protocol.AEMPDU, err error) {
			if err != nil {
				cb(0, 0, 0, nil, err)
				return
			}
			if len(resp.CommandSpecificData) < 8 {
				cb(0, 0, 0, nil, avdeccerrors.NewCodecError("localentity.readdescriptor", avdeccerrors.DeserializationPayloadTooShort, nil))
				return
			}
			data := resp.CommandSpecificData
			cb(binary.BigEndian.Uint16(data[0:2]), protocol.DescriptorType(binary.BigEndian.Uint16(data[4:6])), protocol.DescriptorIndex(binary.BigEndian.Uint16(data[6:8])), data[8:], nil)
		})
}
