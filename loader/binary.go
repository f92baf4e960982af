// Package loader turns a parsed ELF binary into the pieces a kernel needs to
// start a process from it: the load base, page-aligned segments, the
// auxiliary vector and the initial stack image.
//
// Nothing here maps memory. Every function is a pure transformation over the
// caller's bytes and returns freshly allocated results.
package loader

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"
)

// PageSize is the page granularity segments are aligned to.
const PageSize = 0x1000

// Binary is the structural view of one ELF image.
type Binary struct {
	File *elf.File
	// Raw is the complete image. It is only read.
	Raw []byte

	// Program header table location, which debug/elf does not expose.
	Phoff     uint64
	Phentsize uint16
	Phnum     uint16

	log logrus.FieldLogger
}

// Open checks the ELF magic and parses data.
func Open(data []byte, opts ...Option) (*Binary, error) {
	if len(data) < len(elf.ELFMAG) || string(data[:len(elf.ELFMAG)]) != elf.ELFMAG {
		return nil, ErrInvalidMagic
	}
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse ELF image: %w", err)
	}
	return FromFile(f, data, opts...)
}

// FromFile wraps an already parsed file. raw must be the bytes f was parsed
// from.
func FromFile(f *elf.File, raw []byte, opts ...Option) (*Binary, error) {
	if f.Type != elf.ET_EXEC && f.Type != elf.ET_DYN {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, f.Type)
	}
	b := &Binary{
		File: f,
		Raw:  raw,
		log:  newSettings(opts).log,
	}
	if err := b.readProgramTableInfo(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Binary) readProgramTableInfo() error {
	r := bytes.NewReader(b.Raw)
	switch b.File.Class {
	case elf.ELFCLASS64:
		var hdr elf.Header64
		if err := binary.Read(r, b.File.ByteOrder, &hdr); err != nil {
			return fmt.Errorf("read ELF header: %w", err)
		}
		b.Phoff, b.Phentsize, b.Phnum = hdr.Phoff, hdr.Phentsize, hdr.Phnum
	case elf.ELFCLASS32:
		var hdr elf.Header32
		if err := binary.Read(r, b.File.ByteOrder, &hdr); err != nil {
			return fmt.Errorf("read ELF header: %w", err)
		}
		b.Phoff, b.Phentsize, b.Phnum = uint64(hdr.Phoff), hdr.Phentsize, hdr.Phnum
	default:
		return fmt.Errorf("unknown ELF class: %s", b.File.Class)
	}
	return nil
}

// WordSize is the native pointer width of the image in bytes.
func (b *Binary) WordSize() int {
	if b.File.Class == elf.ELFCLASS32 {
		return 4
	}
	return 8
}

// ByteOrder returns the image's byte order, little endian if unset.
func (b *Binary) ByteOrder() binary.ByteOrder {
	if b.File.ByteOrder == nil {
		return binary.LittleEndian
	}
	return b.File.ByteOrder
}

// Entry is the entry point once the image is loaded at base.
func (b *Binary) Entry(base uint64) uint64 {
	return b.File.Entry + base
}

func (b *Binary) logger() logrus.FieldLogger {
	if b.log == nil {
		return DiscardLogger()
	}
	return b.log
}

// loads returns the LOAD program headers in file order.
func (b *Binary) loads() []*elf.Prog {
	var progs []*elf.Prog
	for _, prog := range b.File.Progs {
		if prog.Type == elf.PT_LOAD {
			progs = append(progs, prog)
		}
	}
	return progs
}

func (b *Binary) lowestLoad() *elf.Prog {
	var lowest *elf.Prog
	for _, prog := range b.loads() {
		if lowest == nil || prog.Vaddr < lowest.Vaddr {
			lowest = prog
		}
	}
	return lowest
}

func (b *Binary) findProg(typ elf.ProgType) *elf.Prog {
	for _, prog := range b.File.Progs {
		if prog.Type == typ {
			return prog
		}
	}
	return nil
}

func alignDown(v, a uint64) uint64 {
	if a == 0 {
		return v
	}
	return v - v%a
}
