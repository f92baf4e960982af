// Package reloc computes the memory writes that relocate a dynamic ELF image
// to its load base.
package reloc

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

var (
	ErrUnsupportedClass   = errors.New("relocation tables of this ELF class are not supported")
	ErrUnsupportedMachine = errors.New("no relocation resolver for machine")
	ErrMalformedTable     = errors.New("malformed relocation table")
	ErrSymbolIndex        = errors.New("symbol index outside the dynamic symbol table")
	ErrOutsideSegment     = errors.New("relocation target outside every LOAD segment")
)

// UnresolvedSymbolError reports a relocation against a symbol the image does
// not define. Name is empty for the null symbol.
type UnresolvedSymbolError struct {
	Name string
}

func (e *UnresolvedSymbolError) Error() string {
	if e.Name == "" {
		return "relocation against the null symbol"
	}
	return fmt.Sprintf("symbol %q not found", e.Name)
}

// UnsupportedRelocationError reports a relocation type code the resolver for
// Machine does not handle.
type UnsupportedRelocationError struct {
	Machine elf.Machine
	Code    uint32
}

func (e *UnsupportedRelocationError) Error() string {
	return fmt.Sprintf("unsupported %s relocation type %d", e.Machine, e.Code)
}

// Pair is one write instruction for the relocation applier: store the
// number Src, encoded as Count bytes in the image's byte order, at virtual
// address Dst.
//
// Src is a value, not a location. A Pair{Src: 0x401000, Dst: 0x2000, Count: 8}
// writes the eight bytes of 0x401000 to 0x2000; it never reads memory at
// 0x401000. Pairs are applied after every segment is mapped writable, in the
// order they are returned.
type Pair struct {
	Src   uint64
	Dst   uint64
	Count int
}

// Encode returns the Count bytes to store at Dst.
func (p Pair) Encode(order binary.ByteOrder) []byte {
	b := make([]byte, p.Count)
	switch p.Count {
	case 4:
		order.PutUint32(b, uint32(p.Src))
	case 8:
		order.PutUint64(b, p.Src)
	}
	return b
}

// Entry is one relocation table record.
type Entry struct {
	Offset uint64
	Type   uint32
	Symbol uint32
	Addend int64
}

// Symbol is one dynamic symbol table record.
type Symbol struct {
	Name    string
	Value   uint64
	Section elf.SectionIndex
}

// Bound reports whether the image itself defines the symbol.
func (s Symbol) Bound() bool {
	return s.Section != elf.SHN_UNDEF
}

// Tables holds the relocation input of one image. Symbols is indexed the way
// relocation entries reference it: index 0 is the null symbol.
type Tables struct {
	Dyn     []Entry
	PLT     []Entry
	Symbols []Symbol
}

// Len is the number of relocation entries in both tables.
func (t *Tables) Len() int {
	return len(t.Dyn) + len(t.PLT)
}

// Resolver turns relocation tables into write instructions for one
// architecture. The general table and the PLT table are resolved
// independently and the result lists the general table first, each in table
// order.
type Resolver interface {
	Machine() elf.Machine
	Resolve(t *Tables, base uint64, log logrus.FieldLogger) ([]Pair, error)
}

// ForMachine returns the resolver for images built for m.
func ForMachine(m elf.Machine) (Resolver, error) {
	switch m {
	case elf.EM_AARCH64:
		return AArch64, nil
	case elf.EM_X86_64:
		return X86_64, nil
	case elf.EM_RISCV:
		return RISCV64, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMachine, m)
	}
}
