// Package memmod maps a prepared image into a private region of the host
// process so that the loader's output can be inspected as memory.
//
// The region is a shadow of the guest address space: guest address a lives
// at offset a-Low of the region. Nothing in it is ever executed.
package memmod

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/sliverarmory/elfloader/loader"
	"github.com/sliverarmory/elfloader/loader/reloc"
)

var (
	ErrNoSegments = errors.New("memmod: no segments to map")
	ErrOutOfRange = errors.New("memmod: address outside the mapping")
	ErrFreed      = errors.New("memmod: mapping already freed")
)

// Mapping is a mapped image. Free releases it.
type Mapping struct {
	mu     sync.RWMutex
	mem    []byte
	low    uint64
	closed bool
}

// Map reserves a region spanning every segment, copies the file-backed bytes,
// zero-fills the rest, applies the relocation pairs in order and finally drops
// write permission from segments that are not writable.
func Map(segments []loader.Segment, pairs []reloc.Pair, order binary.ByteOrder) (*Mapping, error) {
	if len(segments) == 0 {
		return nil, ErrNoSegments
	}
	low, high := uint64(math.MaxUint64), uint64(0)
	for _, s := range segments {
		if s.End() < s.Vaddr {
			return nil, fmt.Errorf("memmod: segment at %#x wraps the address space", s.Vaddr)
		}
		low = min(low, s.Vaddr)
		high = max(high, s.End())
	}
	span := alignUp(high-low, uint64(loader.PageSize))
	if span == 0 || span > math.MaxInt {
		return nil, fmt.Errorf("memmod: cannot map %#x bytes", high-low)
	}

	mem, err := reserve(int(span))
	if err != nil {
		return nil, fmt.Errorf("memmod: reserve %#x bytes: %w", span, err)
	}
	mapping := &Mapping{mem: mem, low: low}

	for _, s := range segments {
		region := mem[s.Vaddr-low : s.End()-low]
		n := copy(region, s.Data)
		clear(region[n:])
	}
	for _, p := range pairs {
		dst, err := mapping.slice(p.Dst, p.Count)
		if err != nil {
			mapping.Free()
			return nil, fmt.Errorf("memmod: relocation at %#x: %w", p.Dst, err)
		}
		copy(dst, p.Encode(order))
	}
	for _, s := range segments {
		if s.Flags&loader.FlagWrite != 0 || s.Size == 0 {
			continue
		}
		start := s.Vaddr - low
		end := alignUp(s.End()-low, uint64(loader.PageSize))
		if err := protectReadOnly(mem[start:end]); err != nil {
			mapping.Free()
			return nil, fmt.Errorf("memmod: protect %#x: %w", s.Vaddr, err)
		}
	}
	return mapping, nil
}

// Low is the guest address of the first byte of the mapping.
func (m *Mapping) Low() uint64 {
	return m.low
}

// Len is the size of the mapping in bytes.
func (m *Mapping) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.mem)
}

// Read copies n bytes starting at guest address addr.
func (m *Mapping) Read(addr uint64, n int) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrFreed
	}
	src, err := m.slice(addr, n)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), src...), nil
}

// Word reads a relocation-sized value of n bytes at addr.
func (m *Mapping) Word(addr uint64, n int, order binary.ByteOrder) (uint64, error) {
	b, err := m.Read(addr, n)
	if err != nil {
		return 0, err
	}
	switch n {
	case 4:
		return uint64(order.Uint32(b)), nil
	case 8:
		return order.Uint64(b), nil
	}
	return 0, fmt.Errorf("memmod: unsupported word size %d", n)
}

// Free unmaps the image. It is safe to call more than once.
func (m *Mapping) Free() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	_ = release(m.mem)
	m.mem = nil
}

func (m *Mapping) slice(addr uint64, n int) ([]byte, error) {
	if n < 0 || addr < m.low {
		return nil, ErrOutOfRange
	}
	off := addr - m.low
	if off > uint64(len(m.mem)) || uint64(n) > uint64(len(m.mem))-off {
		return nil, ErrOutOfRange
	}
	return m.mem[off : off+uint64(n)], nil
}

func alignUp(v, a uint64) uint64 {
	return (v + a - 1) &^ (a - 1)
}
