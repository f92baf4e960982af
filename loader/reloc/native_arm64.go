//go:build arm64

package reloc

// Native is the resolver for the architecture this binary was built for.
var Native = AArch64
