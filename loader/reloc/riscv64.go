package reloc

import "debug/elf"

// RISCV64 follows the RISC-V ELF psABI for the LP64 ABIs.
var RISCV64 Resolver = &arch{
	machine:  elf.EM_RISCV,
	jumpSlot: uint32(elf.R_RISCV_JUMP_SLOT),
	howtos: map[uint32]howto{
		uint32(elf.R_RISCV_32):        {formulaSymbolAddend, 4, true},
		uint32(elf.R_RISCV_64):        {formulaSymbolAddend, 8, true},
		uint32(elf.R_RISCV_RELATIVE):  {formulaRelative, 8, false},
		uint32(elf.R_RISCV_JUMP_SLOT): {formulaSymbol, 8, false},
	},
}
