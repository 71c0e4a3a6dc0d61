// Package persistence implements the JSON (and optional binary) dump
// format for a controller.ControlledEntity (spec §6.5). The format is
// treated as an opaque, documented-flags round trip rather than a wire
// protocol the rest of the library depends on: nothing outside this
// package parses the document shape.
package persistence

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"encoding/json"
	"fmt"

	"github.com/boguslaw-wojcik/crc32a"

	avdeccerrors "github.com/avdecc-go/avdecc/internal/errors"
	"github.com/avdecc-go/avdecc/pkg/avdecc/controller"
	"github.com/avdecc-go/avdecc/pkg/avdecc/entitymodel"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
)

// binaryTrailerLen is the size of the CRC-32/ADCCP footer Serialize
// appends to the BinaryFormat wire form so a truncated or corrupted dump
// file is caught before gob even attempts to decode it.
const binaryTrailerLen = 4

// schemaVersion is written into every document and checked on import;
// Deserialize rejects anything higher than this package understands.
const schemaVersion = 1

// Flags selects which sections of a ControlledEntity a Serialize call
// includes, and which wire form (JSON text or gob binary) is used
// (spec §6.5).
type Flags uint32

const (
	ProcessADP Flags = 1 << iota
	ProcessCompatibility
	ProcessDynamicModel
	ProcessMilan
	ProcessState
	ProcessStaticModel
	ProcessStatistics
	ProcessDiagnostics
	BinaryFormat
	IgnoreAEMSanityChecks
)

// Has reports whether flag is set.
func (f Flags) Has(flag Flags) bool { return f&flag != 0 }

// ADPSection mirrors the advertised-presence fields a controller learns
// from ADP, independent of enumeration.
type ADPSection struct {
	Online bool `json:"online"`
}

// CompatibilitySection names the resolved compatibility bitset.
type CompatibilitySection struct {
	IEEE17221        bool `json:"ieee17221"`
	IEEE17221Warning bool `json:"ieee17221Warning"`
	Milan            bool `json:"milan"`
	MilanWarning     bool `json:"milanWarning"`
	Misbehaving      bool `json:"misbehaving"`
}

func newCompatibilitySection(f controller.CompatibilityFlags) CompatibilitySection {
	return CompatibilitySection{
		IEEE17221:        f&controller.CompatibilityIEEE17221 != 0,
		IEEE17221Warning: f&controller.CompatibilityIEEE17221Warning != 0,
		Milan:            f&controller.CompatibilityMilan != 0,
		MilanWarning:     f&controller.CompatibilityMilanWarning != 0,
		Misbehaving:      f&controller.CompatibilityMisbehaving != 0,
	}
}

// StreamConnectionRecord is one listener StreamInput's dynamic
// connection state.
type StreamConnectionRecord struct {
	StreamIndex    protocol.DescriptorIndex `json:"streamIndex"`
	Connected      bool                     `json:"connected"`
	TalkerEntityID protocol.EntityID        `json:"talkerEntityId,omitempty"`
	TalkerStream   protocol.DescriptorIndex `json:"talkerStream,omitempty"`
}

// DynamicModelSection carries the live connection state ProcessDynamicModel
// gates.
type DynamicModelSection struct {
	StreamConnections []StreamConnectionRecord `json:"streamConnections"`
}

// StateSection carries resolver-derived identify state ProcessState gates.
type StateSection struct {
	IdentifyControlIndex protocol.DescriptorIndex `json:"identifyControlIndex"`
}

// StatisticsSection is a placeholder for the counters ProcessStatistics
// gates; this library does not yet accumulate per-command statistics, so
// every field is a conservative zero value rather than invented data.
type StatisticsSection struct {
	AECPRetryCount uint32 `json:"aecpRetryCount"`
}

// Diagnostics carries device-health flags ProcessDiagnostics gates. It
// accepts the legacy "hasTalkerFailed" key as an alias for
// "hasSrpRegistrationFailed" on import (spec §6.5).
type Diagnostics struct {
	HasSrpRegistrationFailed bool `json:"hasSrpRegistrationFailed"`
}

func (d *Diagnostics) UnmarshalJSON(data []byte) error {
	type alias Diagnostics
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*d = Diagnostics(a)

	var legacy struct {
		HasTalkerFailed *bool `json:"hasTalkerFailed"`
	}
	if err := json.Unmarshal(data, &legacy); err == nil && legacy.HasTalkerFailed != nil {
		d.HasSrpRegistrationFailed = *legacy.HasTalkerFailed
	}
	return nil
}

// Document is the full persisted form of one ControlledEntity. Every
// section beyond EntityID/SchemaVersion is omitted unless the
// corresponding Flags bit was set at Serialize time.
type Document struct {
	SchemaVersion int               `json:"schemaVersion"`
	Comment       string            `json:"comment,omitempty"`
	EntityID      protocol.EntityID `json:"entityId"`

	ADP           *ADPSection             `json:"adp,omitempty"`
	Compatibility *CompatibilitySection   `json:"compatibility,omitempty"`
	StaticModel   *entitymodel.EntityNode `json:"staticModel,omitempty"`
	DynamicModel  *DynamicModelSection    `json:"dynamicModel,omitempty"`
	State         *StateSection           `json:"state,omitempty"`
	Statistics    *StatisticsSection      `json:"statistics,omitempty"`
	Diagnostics   *Diagnostics            `json:"diagnostics,omitempty"`
}

// BuildDocument snapshots entity into a Document containing only the
// sections flags selects.
func BuildDocument(entity *controller.ControlledEntity, flags Flags, comment string) *Document {
	doc := &Document{
		SchemaVersion: schemaVersion,
		Comment:       comment,
		EntityID:      entity.EntityID(),
	}
	if flags.Has(ProcessADP) {
		doc.ADP = &ADPSection{Online: entity.Online()}
	}
	if flags.Has(ProcessCompatibility) {
		section := newCompatibilitySection(entity.Compatibility())
		doc.Compatibility = &section
	}
	if flags.Has(ProcessStaticModel) {
		doc.StaticModel = entity.Tree()
	}
	if flags.Has(ProcessDynamicModel) {
		conns := entity.StreamConnections()
		records := make([]StreamConnectionRecord, 0, len(conns))
		for idx, info := range conns {
			records = append(records, StreamConnectionRecord{
				StreamIndex:    idx,
				Connected:      info.Connected,
				TalkerEntityID: info.TalkerEntityID,
				TalkerStream:   info.TalkerStream,
			})
		}
		doc.DynamicModel = &DynamicModelSection{StreamConnections: records}
	}
	if flags.Has(ProcessState) {
		doc.State = &StateSection{IdentifyControlIndex: entity.IdentifyControlIndex()}
	}
	if flags.Has(ProcessStatistics) {
		doc.Statistics = &StatisticsSection{}
	}
	if flags.Has(ProcessDiagnostics) {
		doc.Diagnostics = &Diagnostics{}
	}
	// ProcessMilan and IgnoreAEMSanityChecks name no section of their
	// own, and neither BuildDocument nor Deserialize reads them.
	return doc
}

// Serialize snapshots entity and encodes it per flags, producing JSON
// text unless BinaryFormat is set, in which case it produces a gob
// encoding of the identical Document value.
func Serialize(entity *controller.ControlledEntity, flags Flags, comment string) ([]byte, error) {
	doc := BuildDocument(entity, flags, comment)
	if flags.Has(BinaryFormat) {
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(doc); err != nil {
			return nil, avdeccerrors.NewCodecError("persistence.Serialize", avdeccerrors.DeserializationInvalidValue, err)
		}
		payload := buf.Bytes()
		out := make([]byte, len(payload)+binaryTrailerLen)
		copy(out, payload)
		binary.BigEndian.PutUint32(out[len(payload):], crc32a.Checksum(payload))
		return out, nil
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, avdeccerrors.NewCodecError("persistence.Serialize", avdeccerrors.DeserializationInvalidValue, err)
	}
	return out, nil
}

// RestoreEntity installs doc into reg as a virtual ControlledEntity,
// reconstructed from a loaded entity model document rather than live
// discovery. Sections doc does not carry are left at their zero value.
func RestoreEntity(reg *controller.Registry, doc *Document) *controller.ControlledEntity {
	var compat controller.CompatibilityFlags
	if doc.Compatibility != nil {
		compat = newCompatibilityFlags(*doc.Compatibility)
	}
	identifyIndex := protocol.InvalidDescriptorIndex
	if doc.State != nil {
		identifyIndex = doc.State.IdentifyControlIndex
	}
	online := doc.ADP != nil && doc.ADP.Online

	conns := make(map[protocol.DescriptorIndex]controller.StreamInputConnectionInfo)
	if doc.DynamicModel != nil {
		for _, rec := range doc.DynamicModel.StreamConnections {
			conns[rec.StreamIndex] = controller.StreamInputConnectionInfo{
				Connected:      rec.Connected,
				TalkerEntityID: rec.TalkerEntityID,
				TalkerStream:   rec.TalkerStream,
			}
		}
	}

	return reg.Restore(doc.EntityID, doc.StaticModel, compat, identifyIndex, online, conns)
}

func newCompatibilityFlags(s CompatibilitySection) controller.CompatibilityFlags {
	var f controller.CompatibilityFlags
	if s.IEEE17221 {
		f |= controller.CompatibilityIEEE17221
	}
	if s.IEEE17221Warning {
		f |= controller.CompatibilityIEEE17221Warning
	}
	if s.Milan {
		f |= controller.CompatibilityMilan
	}
	if s.MilanWarning {
		f |= controller.CompatibilityMilanWarning
	}
	if s.Misbehaving {
		f |= controller.CompatibilityMisbehaving
	}
	return f
}

// Deserialize decodes data into a Document, rejecting anything the
// schemaVersion check or flags-implied wire form doesn't accept. Legacy
// diagnostics key aliasing (spec §6.5) is applied transparently for the
// JSON form.
func Deserialize(data []byte, flags Flags) (*Document, error) {
	doc := &Document{}
	if flags.Has(BinaryFormat) {
		if len(data) <= binaryTrailerLen {
			return nil, avdeccerrors.NewCodecError("persistence.Deserialize", avdeccerrors.DeserializationPayloadTooShort, nil)
		}
		payload, trailer := data[:len(data)-binaryTrailerLen], data[len(data)-binaryTrailerLen:]
		want := binary.BigEndian.Uint32(trailer)
		if got := crc32a.Checksum(payload); got != want {
			return nil, avdeccerrors.NewCodecError("persistence.Deserialize", avdeccerrors.DeserializationInvalidValue,
				fmt.Errorf("binary document checksum mismatch: want %08x got %08x", want, got))
		}
		if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(doc); err != nil {
			return nil, avdeccerrors.NewCodecError("persistence.Deserialize", avdeccerrors.DeserializationInvalidValue, err)
		}
	} else {
		if len(bytes.TrimSpace(data)) == 0 {
			return nil, avdeccerrors.NewCodecError("persistence.Deserialize", avdeccerrors.DeserializationMissingInformation, nil)
		}
		if err := json.Unmarshal(data, doc); err != nil {
			return nil, avdeccerrors.NewCodecError("persistence.Deserialize", avdeccerrors.DeserializationInvalidSchema, err)
		}
	}
	if doc.SchemaVersion > schemaVersion {
		return nil, avdeccerrors.NewCodecError("persistence.Deserialize", avdeccerrors.DeserializationVersionTooHigh,
			fmt.Errorf("document schema version %d exceeds supported version %d", doc.SchemaVersion, schemaVersion))
	}
	return doc, nil
}
