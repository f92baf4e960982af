// Package elftest builds small but well formed little-endian ELF64 images for
// tests.
package elftest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"slices"
)

const (
	ehdrSize = 64
	phdrSize = 56
	shdrSize = 64
	symSize  = 24
	relaSize = 24
	dynSize  = 16
	pageSize = 0x1000
)

// Symbol is a dynamic symbol. Section SHN_UNDEF marks it unbound.
type Symbol struct {
	Name    string
	Value   uint64
	Section elf.SectionIndex
}

// Rela is a relocation entry; Symbol indexes File.Symbols plus one, since
// index 0 is the null symbol.
type Rela struct {
	Offset uint64
	Type   uint32
	Symbol uint32
	Addend int64
}

// File describes an image. File contents outside headers and sections are
// filled with Pattern(offset).
type File struct {
	Type    elf.Type
	Machine elf.Machine
	Entry   uint64
	Progs   []elf.ProgHeader
	Symbols []Symbol
	RelaDyn []Rela
	RelaPLT []Rela
	// RelaName names the section holding RelaDyn; ".rela.dyn" when empty.
	RelaName string
	// DynamicAt, when set, places the section data in one RW LOAD segment at
	// that page-aligned address and adds a .dynamic section and PT_DYNAMIC
	// header describing the relocation tables.
	DynamicAt uint64
	// CombinedRelaSize makes DT_RELASZ cover .rela.plt as well, which
	// directly follows the general table.
	CombinedRelaSize bool
}

// Pattern is the filler byte at file offset off.
func Pattern(off uint64) byte {
	return byte(off*7 + 1)
}

type section struct {
	name    string
	typ     elf.SectionType
	flags   elf.SectionFlag
	link    uint32
	entsize uint64
	data    []byte
}

// Bytes encodes the image.
func (f File) Bytes() []byte {
	sections := f.sections()
	names, nameOff := stringTable(sectionNames(sections))
	sections[len(sections)-1].data = names

	progs := slices.Clone(f.Progs)
	if f.DynamicAt != 0 {
		// Filled in once the section offsets are known.
		progs = append(progs, elf.ProgHeader{}, elf.ProgHeader{})
	}

	var end uint64 = ehdrSize + phdrSize*uint64(len(progs))
	for _, p := range f.Progs {
		end = max(end, p.Off+p.Filesz)
	}
	if f.DynamicAt != 0 {
		end = alignUp(end, pageSize)
	}
	region := end

	offsets := make([]uint64, len(sections))
	index := make(map[string]int, len(sections))
	for i, s := range sections {
		if i == 0 {
			continue
		}
		end = alignUp(end, 8)
		offsets[i] = end
		index[s.name] = i
		end += uint64(len(s.data))
	}
	shoff := alignUp(end, 8)
	size := shoff + shdrSize*uint64(len(sections))

	addr := func(i int) uint64 {
		if f.DynamicAt == 0 || i == 0 {
			return 0
		}
		return f.DynamicAt + offsets[i] - region
	}
	if f.DynamicAt != 0 {
		dyn := index[".dynamic"]
		sections[dyn].data = f.dynamicEntries(func(name string) uint64 { return addr(index[name]) })
		progs[len(progs)-2] = elf.ProgHeader{
			Type: elf.PT_LOAD, Flags: elf.PF_R | elf.PF_W,
			Off: region, Vaddr: f.DynamicAt, Paddr: f.DynamicAt,
			Filesz: end - region, Memsz: end - region, Align: pageSize,
		}
		progs[len(progs)-1] = elf.ProgHeader{
			Type: elf.PT_DYNAMIC, Flags: elf.PF_R | elf.PF_W,
			Off: offsets[dyn], Vaddr: addr(dyn), Paddr: addr(dyn),
			Filesz: uint64(len(sections[dyn].data)), Memsz: uint64(len(sections[dyn].data)), Align: 8,
		}
	}

	out := make([]byte, size)
	for i := range out {
		out[i] = Pattern(uint64(i))
	}

	hdr := elf.Header64{
		Type:      uint16(f.Type),
		Machine:   uint16(f.Machine),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     f.Entry,
		Phoff:     ehdrSize,
		Shoff:     shoff,
		Ehsize:    ehdrSize,
		Phentsize: phdrSize,
		Phnum:     uint16(len(progs)),
		Shentsize: shdrSize,
		Shnum:     uint16(len(sections)),
		Shstrndx:  uint16(len(sections) - 1),
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	put(out, 0, hdr)

	for i, p := range progs {
		put(out, ehdrSize+phdrSize*uint64(i), elf.Prog64{
			Type:   uint32(p.Type),
			Flags:  uint32(p.Flags),
			Off:    p.Off,
			Vaddr:  p.Vaddr,
			Paddr:  p.Paddr,
			Filesz: p.Filesz,
			Memsz:  p.Memsz,
			Align:  p.Align,
		})
	}

	for i, s := range sections {
		if i == 0 {
			put(out, shoff, elf.Section64{})
			continue
		}
		copy(out[offsets[i]:], s.data)
		put(out, shoff+shdrSize*uint64(i), elf.Section64{
			Name:      nameOff[s.name],
			Type:      uint32(s.typ),
			Flags:     uint64(s.flags),
			Addr:      addr(i),
			Off:       offsets[i],
			Size:      uint64(len(s.data)),
			Link:      s.link,
			Addralign: 8,
			Entsize:   s.entsize,
		})
	}
	return out
}

// sections lists the section table. The name table is last and Bytes fills
// in its data, and the .dynamic entries once addresses are known.
func (f File) sections() []section {
	sections := []section{{}}
	if len(f.Symbols) > 0 || len(f.RelaDyn) > 0 || len(f.RelaPLT) > 0 {
		names := make([]string, 0, len(f.Symbols))
		for _, s := range f.Symbols {
			names = append(names, s.Name)
		}
		dynstr, offs := stringTable(names)
		strIndex := uint32(len(sections))
		sections = append(sections, section{name: ".dynstr", typ: elf.SHT_STRTAB, flags: elf.SHF_ALLOC, data: dynstr})

		var syms bytes.Buffer
		_ = binary.Write(&syms, binary.LittleEndian, elf.Sym64{})
		for _, s := range f.Symbols {
			_ = binary.Write(&syms, binary.LittleEndian, elf.Sym64{
				Name:  offs[s.Name],
				Info:  elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC),
				Shndx: uint16(s.Section),
				Value: s.Value,
			})
		}
		sections = append(sections, section{name: ".dynsym", typ: elf.SHT_DYNSYM, flags: elf.SHF_ALLOC, link: strIndex, entsize: symSize, data: syms.Bytes()})
	}
	if len(f.RelaDyn) > 0 {
		sections = append(sections, section{name: f.relaName(), typ: elf.SHT_RELA, flags: elf.SHF_ALLOC, entsize: relaSize, data: encodeRela(f.RelaDyn)})
	}
	if len(f.RelaPLT) > 0 {
		sections = append(sections, section{name: ".rela.plt", typ: elf.SHT_RELA, flags: elf.SHF_ALLOC, entsize: relaSize, data: encodeRela(f.RelaPLT)})
	}
	if f.DynamicAt != 0 {
		placeholder := f.dynamicEntries(func(string) uint64 { return 0 })
		sections = append(sections, section{name: ".dynamic", typ: elf.SHT_DYNAMIC, flags: elf.SHF_ALLOC | elf.SHF_WRITE, entsize: dynSize, data: placeholder})
	}
	return append(sections, section{name: ".shstrtab", typ: elf.SHT_STRTAB})
}

func (f File) relaName() string {
	if f.RelaName == "" {
		return ".rela.dyn"
	}
	return f.RelaName
}

// dynamicEntries encodes the .dynamic tags describing the relocation tables.
// addr maps a section name to its load address.
func (f File) dynamicEntries(addr func(name string) uint64) []byte {
	type dyn struct {
		tag elf.DynTag
		val uint64
	}
	var entries []dyn
	n := len(f.RelaDyn)
	if f.CombinedRelaSize {
		n += len(f.RelaPLT)
	}
	if len(f.RelaDyn) > 0 {
		entries = append(entries,
			dyn{elf.DT_RELA, addr(f.relaName())},
			dyn{elf.DT_RELASZ, uint64(n * relaSize)},
			dyn{elf.DT_RELAENT, relaSize},
		)
	}
	if len(f.RelaPLT) > 0 {
		entries = append(entries,
			dyn{elf.DT_JMPREL, addr(".rela.plt")},
			dyn{elf.DT_PLTRELSZ, uint64(len(f.RelaPLT) * relaSize)},
			dyn{elf.DT_PLTREL, uint64(elf.DT_RELA)},
		)
	}
	if len(f.Symbols) > 0 {
		entries = append(entries, dyn{elf.DT_SYMTAB, addr(".dynsym")}, dyn{elf.DT_STRTAB, addr(".dynstr")})
	}
	entries = append(entries, dyn{elf.DT_NULL, 0})

	var buf bytes.Buffer
	for _, e := range entries {
		_ = binary.Write(&buf, binary.LittleEndian, elf.Dyn64{Tag: int64(e.tag), Val: e.val})
	}
	return buf.Bytes()
}

func encodeRela(entries []Rela) []byte {
	var buf bytes.Buffer
	for _, r := range entries {
		_ = binary.Write(&buf, binary.LittleEndian, elf.Rela64{
			Off:    r.Offset,
			Info:   elf.R_INFO(r.Symbol, r.Type),
			Addend: r.Addend,
		})
	}
	return buf.Bytes()
}

func sectionNames(sections []section) []string {
	names := make([]string, 0, len(sections))
	for _, s := range sections[1:] {
		names = append(names, s.name)
	}
	return names
}

// stringTable encodes names as a NUL separated table that starts with an
// empty string.
func stringTable(names []string) ([]byte, map[string]uint32) {
	buf := []byte{0}
	offs := make(map[string]uint32, len(names))
	for _, name := range names {
		if _, ok := offs[name]; ok {
			continue
		}
		offs[name] = uint32(len(buf))
		buf = append(buf, name...)
		buf = append(buf, 0)
	}
	return buf, offs
}

func put(out []byte, off uint64, v any) {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, v)
	copy(out[off:], buf.Bytes())
}

func alignUp(v, a uint64) uint64 {
	return (v + a - 1) &^ (a - 1)
}
