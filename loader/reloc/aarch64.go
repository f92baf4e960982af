package reloc

import "debug/elf"

// AArch64 follows "ELF for the Arm 64-bit Architecture" (aaelf64). There
// GLOB_DAT and JUMP_SLOT are S + A, unlike x86-64 where they are plain S.
var AArch64 Resolver = &arch{
	machine:  elf.EM_AARCH64,
	jumpSlot: uint32(elf.R_AARCH64_JUMP_SLOT),
	howtos: map[uint32]howto{
		uint32(elf.R_AARCH64_P32_GLOB_DAT): {formulaSymbolAddend, 4, false},
		uint32(elf.R_AARCH64_ABS64):        {formulaSymbolAddend, 8, true},
		uint32(elf.R_AARCH64_ABS32):        {formulaSymbolAddend, 4, true},
		uint32(elf.R_AARCH64_GLOB_DAT):     {formulaSymbolAddend, 8, false},
		uint32(elf.R_AARCH64_JUMP_SLOT):    {formulaSymbolAddend, 8, false},
		uint32(elf.R_AARCH64_RELATIVE):     {formulaRelative, 8, false},
	},
}
