package reloc

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	rela64Size = 24
	// maxTableSize bounds what a header may make us allocate.
	maxTableSize = 1 << 30
)

// ReadTables reads the general and PLT relocation tables and the dynamic
// symbols of f.
//
// The tables are located through the .dynamic entries DT_RELA and DT_JMPREL,
// read from the LOAD segments that back them. Images without those entries
// fall back to the section table: .rela.plt is the PLT table and every other
// allocated RELA section, such as .rela.dyn or the .rela of the Go linker,
// is general. Images with neither yield empty tables.
func ReadTables(f *elf.File) (*Tables, error) {
	if f.Class != elf.ELFCLASS64 {
		if f.SectionByType(elf.SHT_RELA) != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedClass, f.Class)
		}
		return &Tables{}, nil
	}

	t := &Tables{}
	found, err := readDynamicTables(f, t)
	if err != nil {
		return nil, err
	}
	if !found {
		if err := readSectionTables(f, t); err != nil {
			return nil, err
		}
	}
	if t.Len() == 0 {
		return t, nil
	}

	syms, err := f.DynamicSymbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, fmt.Errorf("read .dynsym: %w", err)
	}
	// debug/elf drops the null symbol; put it back so indices line up.
	t.Symbols = make([]Symbol, 0, len(syms)+1)
	t.Symbols = append(t.Symbols, Symbol{})
	for _, sym := range syms {
		t.Symbols = append(t.Symbols, Symbol{
			Name:    sym.Name,
			Value:   sym.Value,
			Section: sym.Section,
		})
	}
	return t, nil
}

func readDynamicTables(f *elf.File, t *Tables) (bool, error) {
	rela, hasRela, err := dynTag(f, elf.DT_RELA)
	if err != nil {
		return false, err
	}
	jmprel, hasPLT, err := dynTag(f, elf.DT_JMPREL)
	if err != nil {
		return false, err
	}
	if !hasRela && !hasPLT {
		return false, nil
	}

	if hasRela {
		if ent, ok, err := dynTag(f, elf.DT_RELAENT); err != nil {
			return false, err
		} else if ok && ent != rela64Size {
			return false, fmt.Errorf("%w: DT_RELAENT %d", ErrMalformedTable, ent)
		}
		size, _, err := dynTag(f, elf.DT_RELASZ)
		if err != nil {
			return false, err
		}
		// Some linkers count the PLT table in DT_RELASZ.
		if hasPLT && jmprel >= rela && jmprel < rela+size {
			size = jmprel - rela
		}
		if t.Dyn, err = readRelaAt(f, "DT_RELA", rela, size); err != nil {
			return false, err
		}
	}
	if hasPLT {
		if kind, ok, err := dynTag(f, elf.DT_PLTREL); err != nil {
			return false, err
		} else if ok && kind != uint64(elf.DT_RELA) {
			return false, fmt.Errorf("%w: DT_PLTREL %s", ErrMalformedTable, elf.DynTag(kind))
		}
		size, _, err := dynTag(f, elf.DT_PLTRELSZ)
		if err != nil {
			return false, err
		}
		if t.PLT, err = readRelaAt(f, "DT_JMPREL", jmprel, size); err != nil {
			return false, err
		}
	}
	return true, nil
}

func dynTag(f *elf.File, tag elf.DynTag) (uint64, bool, error) {
	vals, err := f.DynValue(tag)
	if err != nil {
		return 0, false, fmt.Errorf("read %s: %w", tag, err)
	}
	if len(vals) == 0 {
		return 0, false, nil
	}
	return vals[0], true, nil
}

// readRelaAt reads size bytes of RELA records at virtual address addr.
func readRelaAt(f *elf.File, what string, addr, size uint64) ([]Entry, error) {
	if size == 0 {
		return nil, nil
	}
	if size%rela64Size != 0 || size > maxTableSize {
		return nil, fmt.Errorf("%w: %s size %d", ErrMalformedTable, what, size)
	}
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD || addr < prog.Vaddr {
			continue
		}
		off := addr - prog.Vaddr
		if off > prog.Filesz || size > prog.Filesz-off {
			continue
		}
		data := make([]byte, size)
		if _, err := prog.ReadAt(data, int64(off)); err != nil {
			return nil, fmt.Errorf("read %s: %w", what, err)
		}
		return decodeRela64(f.ByteOrder, data), nil
	}
	return nil, fmt.Errorf("%w: %s at %#x is not backed by a LOAD segment", ErrMalformedTable, what, addr)
}

func readSectionTables(f *elf.File, t *Tables) error {
	for _, sec := range f.Sections {
		if sec.Type != elf.SHT_RELA {
			continue
		}
		plt := sec.Name == ".rela.plt"
		if !plt && sec.Name != ".rela.dyn" && sec.Flags&elf.SHF_ALLOC == 0 {
			continue
		}
		entries, err := readRelaSection(f, sec)
		if err != nil {
			return err
		}
		if plt {
			t.PLT = append(t.PLT, entries...)
		} else {
			t.Dyn = append(t.Dyn, entries...)
		}
	}
	return nil
}

func readRelaSection(f *elf.File, sec *elf.Section) ([]Entry, error) {
	data, err := sec.Data()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", sec.Name, err)
	}
	if len(data)%rela64Size != 0 {
		return nil, fmt.Errorf("%w: %s size %d is not a multiple of %d", ErrMalformedTable, sec.Name, len(data), rela64Size)
	}
	return decodeRela64(f.ByteOrder, data), nil
}

func decodeRela64(order binary.ByteOrder, data []byte) []Entry {
	entries := make([]Entry, 0, len(data)/rela64Size)
	for off := 0; off+rela64Size <= len(data); off += rela64Size {
		info := order.Uint64(data[off+8:])
		entries = append(entries, Entry{
			Offset: order.Uint64(data[off:]),
			Type:   elf.R_TYPE64(info),
			Symbol: elf.R_SYM64(info),
			Addend: int64(order.Uint64(data[off+16:])),
		})
	}
	return entries
}
