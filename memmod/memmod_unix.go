//go:build unix

package memmod

import (
	"github.com/sliverarmory/elfloader/loader"
	"golang.org/x/sys/unix"
)

func reserve(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
}

func release(mem []byte) error {
	return unix.Munmap(mem)
}

// Protection is applied per guest page, so it only works when host pages are
// no larger than guest pages.
func protectReadOnly(mem []byte) error {
	if unix.Getpagesize() != loader.PageSize {
		return nil
	}
	return unix.Mprotect(mem, unix.PROT_READ)
}
