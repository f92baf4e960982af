//go:build amd64

package reloc

// Native is the resolver for the architecture this binary was built for.
var Native = X86_64
