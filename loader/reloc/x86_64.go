package reloc

import "debug/elf"

// X86_64 follows the System V AMD64 psABI.
var X86_64 Resolver = &arch{
	machine:  elf.EM_X86_64,
	jumpSlot: uint32(elf.R_X86_64_JMP_SLOT),
	howtos: map[uint32]howto{
		uint32(elf.R_X86_64_64):       {formulaSymbolAddend, 8, true},
		uint32(elf.R_X86_64_32):       {formulaSymbolAddend, 4, true},
		uint32(elf.R_X86_64_GLOB_DAT): {formulaSymbol, 8, false},
		uint32(elf.R_X86_64_JMP_SLOT): {formulaSymbol, 8, false},
		uint32(elf.R_X86_64_RELATIVE): {formulaRelative, 8, false},
	},
}
