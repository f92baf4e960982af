package loader

import (
	"bytes"
	"debug/elf"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Flags are the page permissions of a segment.
type Flags uint8

const (
	FlagRead Flags = 1 << iota
	FlagWrite
	FlagExecute
	FlagUser
)

func (f Flags) String() string {
	var sb strings.Builder
	for _, bit := range []struct {
		flag Flags
		c    byte
	}{{FlagRead, 'r'}, {FlagWrite, 'w'}, {FlagExecute, 'x'}, {FlagUser, 'u'}} {
		if f&bit.flag != 0 {
			sb.WriteByte(bit.c)
		} else {
			sb.WriteByte('-')
		}
	}
	return sb.String()
}

// Segment is one page-aligned region to map.
//
// Data holds the file-backed prefix of the region. The mapper copies it to
// Vaddr and zero-fills the rest of the region up to Size.
type Segment struct {
	Vaddr uint64
	Size  uint64
	Flags Flags
	Data  []byte
}

// End is the first address past the segment.
func (s Segment) End() uint64 {
	return s.Vaddr + s.Size
}

// Contains reports whether [addr, addr+n) lies inside the segment.
func (s Segment) Contains(addr, n uint64) bool {
	end := addr + n
	return end >= addr && addr >= s.Vaddr && end <= s.End()
}

// Segments extracts every LOAD header, in file order, as a segment loaded at
// base.
func (b *Binary) Segments(base uint64) ([]Segment, error) {
	log := b.logger()

	var segments []Segment
	for _, prog := range b.loads() {
		if prog.Filesz > prog.Memsz {
			return nil, fmt.Errorf("%w: vaddr %#x filesz %#x memsz %#x", ErrInvalidSegment, prog.Vaddr, prog.Filesz, prog.Memsz)
		}

		startVA := prog.Vaddr + base
		endVA := startVA + prog.Memsz
		startOff := prog.Off
		endOff := startOff + prog.Filesz

		if startVA%PageSize != startOff%PageSize {
			return nil, fmt.Errorf("%w: vaddr %#x offset %#x", ErrMisalignedSegment, startVA, startOff)
		}
		pad := startVA % PageSize
		startVA -= pad
		startOff -= pad

		if endOff < startOff || endOff > uint64(len(b.Raw)) {
			return nil, fmt.Errorf("%w: offset range [%#x, %#x) in %#x bytes", ErrTruncatedImage, startOff, endOff, len(b.Raw))
		}

		segment := Segment{
			Vaddr: startVA,
			Size:  endVA - startVA,
			Flags: segmentFlags(prog.Flags),
		}
		if endOff > startOff {
			segment.Data = bytes.Clone(b.Raw[startOff:endOff])
		}

		log.WithFields(logrus.Fields{
			"vaddr": fmt.Sprintf("%#x", segment.Vaddr),
			"size":  fmt.Sprintf("%#x", segment.Size),
			"flags": segment.Flags,
		}).Debug("extracted LOAD segment")
		segments = append(segments, segment)
	}
	if len(segments) == 0 {
		return nil, ErrMissingLoadSegment
	}
	return segments, nil
}

func segmentFlags(pf elf.ProgFlag) Flags {
	flags := FlagUser
	if pf&elf.PF_R != 0 {
		flags |= FlagRead
	}
	if pf&elf.PF_W != 0 {
		flags |= FlagWrite
	}
	if pf&elf.PF_X != 0 {
		flags |= FlagExecute
	}
	return flags
}
