package loader

import "errors"

// Every error returned by this package is fatal for the process image being
// prepared and nothing else. Callers abort the one request and keep running.
var (
	ErrInvalidMagic       = errors.New("invalid ELF magic")
	ErrUnsupportedType    = errors.New("unsupported ELF file type")
	ErrMissingLoadSegment = errors.New("no LOAD segment found")
	ErrAmbiguousZeroBase  = errors.New("image maps at vaddr 0 but no base address was supplied")
	ErrMisalignedSegment  = errors.New("segment vaddr and file offset disagree modulo page size")
	ErrTruncatedImage     = errors.New("segment extends past the end of the image")
	ErrStackOverflow      = errors.New("initial stack contents exceed the stack region")
	ErrInvalidStackRegion = errors.New("stack region does not fit the address space")
	ErrInvalidString      = errors.New("string contains NUL")
	ErrInvalidSegment     = errors.New("segment file size exceeds its memory size")
)
