package elftest

import "debug/elf"

// Static is a statically linked x86-64 executable with four LOAD segments
// starting at 0x400000, the last one carrying .bss.
func Static() File {
	return File{
		Type:    elf.ET_EXEC,
		Machine: elf.EM_X86_64,
		Entry:   0x401000,
		Progs: []elf.ProgHeader{
			{Type: elf.PT_LOAD, Flags: elf.PF_R, Off: 0, Vaddr: 0x400000, Paddr: 0x400000, Filesz: 0x300, Memsz: 0x300, Align: 0x1000},
			{Type: elf.PT_LOAD, Flags: elf.PF_R | elf.PF_X, Off: 0x1000, Vaddr: 0x401000, Paddr: 0x401000, Filesz: 0x800, Memsz: 0x800, Align: 0x1000},
			{Type: elf.PT_LOAD, Flags: elf.PF_R, Off: 0x2000, Vaddr: 0x402000, Paddr: 0x402000, Filesz: 0x200, Memsz: 0x200, Align: 0x1000},
			{Type: elf.PT_LOAD, Flags: elf.PF_R | elf.PF_W, Off: 0x2e10, Vaddr: 0x403e10, Paddr: 0x403e10, Filesz: 0x230, Memsz: 0x4a8, Align: 0x1000},
			{Type: elf.PT_GNU_STACK, Flags: elf.PF_R | elf.PF_W, Align: 0x10},
		},
	}
}

// Dynamic symbol indices used by Dynamic's relocations.
const (
	SymGlobal  = 1
	SymLegacy  = 2
	SymRun     = 3
	SymMissing = 4
)

// Dynamic is a position-independent AArch64 executable linked at 0 with
// relocations of every kind the AArch64 resolver understands.
func Dynamic() File {
	return File{
		Type:    elf.ET_DYN,
		Machine: elf.EM_AARCH64,
		Entry:   0x640,
		Progs: []elf.ProgHeader{
			{Type: elf.PT_PHDR, Flags: elf.PF_R, Off: 0x40, Vaddr: 0x40, Paddr: 0x40, Filesz: 6 * phdrSize, Memsz: 6 * phdrSize, Align: 8},
			{Type: elf.PT_LOAD, Flags: elf.PF_R | elf.PF_X, Off: 0, Vaddr: 0, Paddr: 0, Filesz: 0x900, Memsz: 0x900, Align: 0x10000},
			{Type: elf.PT_LOAD, Flags: elf.PF_R, Off: 0x1000, Vaddr: 0x10000, Paddr: 0x10000, Filesz: 0x200, Memsz: 0x200, Align: 0x10000},
			{Type: elf.PT_LOAD, Flags: elf.PF_R | elf.PF_W, Off: 0x1dc8, Vaddr: 0x1fdc8, Paddr: 0x1fdc8, Filesz: 0x238, Memsz: 0x238, Align: 0x10000},
			{Type: elf.PT_LOAD, Flags: elf.PF_R | elf.PF_W, Off: 0x2000, Vaddr: 0x20000, Paddr: 0x20000, Filesz: 0x20, Memsz: 0x40, Align: 0x10000},
			{Type: elf.PT_GNU_STACK, Flags: elf.PF_R | elf.PF_W, Align: 0x10},
		},
		Symbols: []Symbol{
			{Name: "data_global", Value: 0x20010, Section: 21},
			{Name: "legacy_counter", Value: 0x20020, Section: 21},
			{Name: "run", Value: 0x7a0, Section: 12},
			{Name: "puts", Section: elf.SHN_UNDEF},
		},
		RelaDyn: []Rela{
			{Offset: 0x1fdc8, Type: uint32(elf.R_AARCH64_RELATIVE), Addend: 0x754},
			{Offset: 0x1fdd0, Type: uint32(elf.R_AARCH64_RELATIVE), Addend: 0x700},
			{Offset: 0x1ffd8, Type: uint32(elf.R_AARCH64_GLOB_DAT), Symbol: SymGlobal},
			{Offset: 0x1ffe0, Type: uint32(elf.R_AARCH64_ABS64), Symbol: SymGlobal, Addend: 8},
			{Offset: 0x20000, Type: uint32(elf.R_AARCH64_P32_GLOB_DAT), Symbol: SymLegacy},
		},
		RelaPLT: []Rela{
			{Offset: 0x1ffe8, Type: uint32(elf.R_AARCH64_JUMP_SLOT), Symbol: SymRun},
		},
	}
}

// DynamicGoRela is Dynamic with the general table named .rela, the way the Go
// linker names it, and no .dynamic section.
func DynamicGoRela() File {
	f := Dynamic()
	f.RelaName = ".rela"
	return f
}

// DynamicTagged is Dynamic with its tables loaded at 0x30000 and described
// by .dynamic. The general table is named .rela.
func DynamicTagged() File {
	f := DynamicGoRela()
	f.DynamicAt = 0x30000
	return f
}
