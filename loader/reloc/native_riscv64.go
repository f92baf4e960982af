//go:build riscv64

package reloc

// Native is the resolver for the architecture this binary was built for.
var Native = RISCV64
