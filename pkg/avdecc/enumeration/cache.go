package enumeration

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/avdecc-go/avdecc/pkg/avdecc/entitymodel"
)

// ChecksumAlgorithmVersion selects the canonical byte ordering a static
// tree is hashed with (spec §4.I "SHA-256 over a canonical byte ordering,
// with algorithm versioning 1..5"). Only version 1 is implemented; later
// versions are reserved for schema changes this implementation has not
// needed yet, and Checksum rejects them rather than silently using the
// wrong layout.
type ChecksumAlgorithmVersion int

const (
	ChecksumV1 ChecksumAlgorithmVersion = 1
	latestChecksumVersion                = ChecksumV1
)

// Checksum computes a stable fingerprint of tree's static content so two
// entities advertising the same entityModelID can be confirmed to
// actually share a model, rather than trusted on the ID alone.
func Checksum(tree *entitymodel.EntityNode, version ChecksumAlgorithmVersion) ([32]byte, error) {
	if version != ChecksumV1 {
		return [32]byte{}, fmt.Errorf("enumeration: unsupported checksum algorithm version %d", version)
	}
	h := sha256.New()
	cw := &canonicalWriter{h: h}
	cw.writeUint16(uint16(len(tree.Configurations)))
	for ci := range tree.Configurations {
		config := &tree.Configurations[ci]
		cw.writeString(config.Name)
		cw.writeUint16(uint16(len(config.AudioUnits)))
		for ui := range config.AudioUnits {
			u := &config.AudioUnits[ui]
			cw.writeString(u.Name)
			cw.writeUint16(uint16(len(u.StreamPortInputs)))
			cw.writeUint16(uint16(len(u.StreamPortOutputs)))
		}
		names := make([]string, 0, len(config.StreamInputs)+len(config.StreamOutputs))
		for si := range config.StreamInputs {
			names = append(names, "in:"+config.StreamInputs[si].Name)
		}
		for si := range config.StreamOutputs {
			names = append(names, "out:"+config.StreamOutputs[si].Name)
		}
		sort.Strings(names)
		cw.writeUint16(uint16(len(names)))
		for _, n := range names {
			cw.writeString(n)
		}
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

// canonicalWriter feeds a deterministic byte sequence into a hash.Hash;
// every field is length-prefixed so no ambiguity exists between e.g. an
// empty string and a following zero count.
type canonicalWriter struct {
	h interface{ Write([]byte) (int, error) }
}

func (w *canonicalWriter) writeUint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.h.Write(b[:])
}

func (w *canonicalWriter) writeString(s string) {
	w.writeUint16(uint16(len(s)))
	w.h.Write([]byte(s))
}

// CacheEntry is one cached static tree, keyed on the entityModelID that
// produced it.
type CacheEntry struct {
	Tree     *entitymodel.EntityNode
	Checksum [32]byte
}

// Cache stores static entity-model trees keyed by entityModelID so a
// second device advertising the same model skips the full descriptor
// walk (spec §4.I "entity-model cache").
type Cache interface {
	Lookup(entityModelID uint64) (CacheEntry, bool)
	Store(entityModelID uint64, entry CacheEntry)
}

// MemoryCache is an in-process Cache; a persistent-backed Cache (spec
// §6.5) can be layered over the same interface without the scheduler
// needing to change.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[uint64]CacheEntry
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[uint64]CacheEntry)}
}

func (c *MemoryCache) Lookup(entityModelID uint64) (CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[entityModelID]
	return e, ok
}

func (c *MemoryCache) Store(entityModelID uint64, entry CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entityModelID] = entry
}
