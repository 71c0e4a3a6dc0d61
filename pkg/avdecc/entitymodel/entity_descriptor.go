package entitymodel

import (
	"encoding/binary"

	avdeccerrors "github.com/avdecc-go/avdecc/internal/errors"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
)

// EntitySummary is the subset of the ENTITY descriptor the enumeration
// scheduler needs before it can decide whether to trust a cached static
// tree or walk the device fresh (spec §4.I step 1 "readEntityDescriptor").
type EntitySummary struct {
	EntityID             protocol.EntityID
	EntityModelID        uint64
	EntityName           string
	ConfigurationsCount  uint16
	CurrentConfiguration uint16
}

// DecodeEntitySummary parses the fields of a raw ENTITY descriptor body
// relevant to enumeration scheduling. Fields the scheduler does not
// consume (capabilities bitmaps, association ID, vendor/model string
// references, firmware/serial strings) are intentionally not modeled.
func DecodeEntitySummary(data []byte) (EntitySummary, error) {
	const headerLen = 8 + 8 + 2 + 2 + aemNameLen
	if len(data) < headerLen {
		return EntitySummary{}, avdeccerrors.NewCodecError("entitymodel.decodeEntitySummary", avdeccerrors.DeserializationPayloadTooShort, nil)
	}
	entityID := protocol.EntityID(binary.BigEndian.Uint64(data[0:8]))
	entityModelID := binary.BigEndian.Uint64(data[8:16])
	configurationsCount := binary.BigEndian.Uint16(data[16:18])
	currentConfiguration := binary.BigEndian.Uint16(data[18:20])
	name := decodeFixedName(data[20 : 20+aemNameLen])
	return EntitySummary{
		EntityID:             entityID,
		EntityModelID:        entityModelID,
		EntityName:           name,
		ConfigurationsCount:  configurationsCount,
		CurrentConfiguration: currentConfiguration,
	}, nil
}

// DescriptorCount pairs a descriptor type with how many instances of it
// live in one configuration (spec §4.I step 2 "all descriptor counts").
type DescriptorCount struct {
	Type  protocol.DescriptorType
	Count uint16
}

// ConfigurationSummary is the subset of the CONFIGURATION descriptor the
// scheduler needs to know how many child descriptors of each type to
// enumerate.
type ConfigurationSummary struct {
	Name   string
	Counts []DescriptorCount
}

// DecodeConfigurationSummary parses a raw CONFIGURATION descriptor body:
// a fixed name field followed by a count of (type, count) pairs.
func DecodeConfigurationSummary(data []byte) (ConfigurationSummary, error) {
	const headerLen = aemNameLen + 2
	if len(data) < headerLen {
		return ConfigurationSummary{}, avdeccerrors.NewCodecError("entitymodel.decodeConfigurationSummary", avdeccerrors.DeserializationPayloadTooShort, nil)
	}
	name := decodeFixedName(data[0:aemNameLen])
	off := aemNameLen
	n := binary.BigEndian.Uint16(data[off : off+2])
	off += 2
	counts := make([]DescriptorCount, 0, n)
	for i := 0; i < int(n) && off+4 <= len(data); i++ {
		counts = append(counts, DescriptorCount{
			Type:  protocol.DescriptorType(binary.BigEndian.Uint16(data[off : off+2])),
			Count: binary.BigEndian.Uint16(data[off+2 : off+4]),
		})
		off += 4
	}
	return ConfigurationSummary{Name: name, Counts: counts}, nil
}

// CountOf returns how many descriptors of t this configuration declares.
func (c ConfigurationSummary) CountOf(t protocol.DescriptorType) uint16 {
	for _, dc := range c.Counts {
		if dc.Type == t {
			return dc.Count
		}
	}
	return 0
}
