//go:build !arm64 && !amd64 && !riscv64

package reloc

// Native is nil on architectures without a resolver.
var Native Resolver
