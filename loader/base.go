package loader

import (
	"debug/elf"
	"fmt"
)

// Candidate is a load address proposed by the kernel. The zero value means
// no address was proposed.
type Candidate struct {
	Addr  uint64
	Valid bool
}

// At proposes addr as the load base.
func At(addr uint64) Candidate {
	return Candidate{Addr: addr, Valid: true}
}

// BaseAddress decides where the image is loaded.
//
// A static executable whose lowest LOAD segment is above 0 carries absolute
// addresses and always loads at 0. One whose lowest LOAD segment is at vaddr
// 0 maps its ELF header at the base, so a candidate is required. A
// position-independent image loads wherever the candidate says.
func (b *Binary) BaseAddress(candidate Candidate) (uint64, error) {
	lowest := b.lowestLoad()
	if lowest == nil {
		return 0, ErrMissingLoadSegment
	}

	var base uint64
	switch b.File.Type {
	case elf.ET_EXEC:
		if lowest.Vaddr != 0 {
			break
		}
		if !candidate.Valid {
			return 0, ErrAmbiguousZeroBase
		}
		base = candidate.Addr
	case elf.ET_DYN:
		if !candidate.Valid {
			return 0, fmt.Errorf("%w: position-independent image", ErrAmbiguousZeroBase)
		}
		base = candidate.Addr
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedType, b.File.Type)
	}

	b.logger().WithField("base", fmt.Sprintf("%#x", base)).Debug("resolved ELF base address")
	return base, nil
}
