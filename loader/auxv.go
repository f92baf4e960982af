package loader

import (
	"debug/elf"
	"fmt"
	"maps"
	"slices"

	"github.com/sirupsen/logrus"
)

// Auxiliary vector tags. The values are fixed by the ABI.
const (
	AT_NULL   = 0
	AT_PHDR   = 3
	AT_PHENT  = 4
	AT_PHNUM  = 5
	AT_PAGESZ = 6
	AT_BASE   = 7
	AT_ENTRY  = 9
	AT_RANDOM = 25
)

// AuxEntry is one tag/value pair.
type AuxEntry struct {
	Tag   uint64
	Value uint64
}

// AuxVector maps auxiliary vector tags to values. It is immutable; With
// returns a modified copy.
type AuxVector struct {
	entries map[uint64]uint64
}

// NewAuxVector builds a vector from entries. Later entries win on duplicate
// tags.
func NewAuxVector(entries ...AuxEntry) AuxVector {
	m := make(map[uint64]uint64, len(entries))
	for _, e := range entries {
		m[e.Tag] = e.Value
	}
	return AuxVector{entries: m}
}

// Get returns the value stored for tag.
func (v AuxVector) Get(tag uint64) (uint64, bool) {
	value, ok := v.entries[tag]
	return value, ok
}

// Len is the number of tags, not counting the AT_NULL terminator.
func (v AuxVector) Len() int {
	return len(v.entries)
}

// Entries returns the pairs in ascending tag order.
func (v AuxVector) Entries() []AuxEntry {
	out := make([]AuxEntry, 0, len(v.entries))
	for _, tag := range slices.Sorted(maps.Keys(v.entries)) {
		out = append(out, AuxEntry{Tag: tag, Value: v.entries[tag]})
	}
	return out
}

// With returns a copy of v with tag set to value.
func (v AuxVector) With(tag, value uint64) AuxVector {
	m := maps.Clone(v.entries)
	if m == nil {
		m = make(map[uint64]uint64, 1)
	}
	m[tag] = value
	return AuxVector{entries: m}
}

// AuxVector builds the vector the startup code of an image loaded at base
// expects. AT_RANDOM is left at 0; BuildStack fills it in when given an
// entropy source.
func (b *Binary) AuxVector(base uint64) AuxVector {
	phdr := b.programHeaderAddr(base)
	v := NewAuxVector(
		AuxEntry{AT_PHDR, phdr},
		AuxEntry{AT_PHENT, uint64(b.Phentsize)},
		AuxEntry{AT_PHNUM, uint64(b.Phnum)},
		AuxEntry{AT_PAGESZ, PageSize},
		AuxEntry{AT_RANDOM, 0},
	)

	b.logger().WithFields(logrus.Fields{
		"phdr":  fmt.Sprintf("%#x", phdr),
		"phnum": b.Phnum,
	}).Debug("built auxiliary vector")
	return v
}

// programHeaderAddr is where the program header table appears in memory.
func (b *Binary) programHeaderAddr(base uint64) uint64 {
	if phdr := b.findProg(elf.PT_PHDR); phdr != nil {
		return base + phdr.Vaddr
	}
	lowest := b.lowestLoad()
	if lowest == nil {
		return 0
	}
	return base + lowest.Vaddr - lowest.Off + b.Phoff
}
