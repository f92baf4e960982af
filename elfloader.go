// Package elfloader prepares ELF binaries for execution by a kernel: it
// resolves the load base, extracts the segments to map, computes relocation
// writes and builds the initial process stack.
package elfloader

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/sliverarmory/elfloader/loader"
	"github.com/sliverarmory/elfloader/loader/reloc"
	"github.com/sliverarmory/elfloader/memmod"
)

const (
	DefaultStackSize = 0x20000
	DefaultStackTop  = 0x4000_0000 - DefaultStackSize
)

var ErrEmptyImage = errors.New("elfloader: empty ELF image")

// Options configures Load. The zero value loads static executables; a
// position-independent image needs Base.
type Options struct {
	Base loader.Candidate
	Args []string
	Env  []string

	// StackTop is the lowest address of the stack region. Zero selects
	// DefaultStackTop, so the stack cannot start at address 0.
	StackTop uint64
	// StackSize is the size of the stack region; zero selects
	// DefaultStackSize.
	StackSize uint64

	// Resolver overrides the relocation resolver picked from the ELF
	// machine.
	Resolver reloc.Resolver
	Logger   logrus.FieldLogger
	// Random is the AT_RANDOM source; crypto/rand when nil.
	Random io.Reader
	// NoRandom keeps AT_RANDOM at 0 and puts no random bytes on the stack.
	NoRandom bool
}

// Image is everything the kernel needs to start a process.
type Image struct {
	Base        uint64
	Entry       uint64
	Segments    []loader.Segment
	Relocations []reloc.Pair
	Auxv        loader.AuxVector
	Stack       *loader.StackImage
	ByteOrder   binary.ByteOrder
}

// Map lays the segments out in host memory and applies the relocations, the
// way the kernel would before switching to the new process.
func (image *Image) Map() (*memmod.Mapping, error) {
	return memmod.Map(image.Segments, image.Relocations, image.ByteOrder)
}

// Load prepares the image in data.
func Load(data []byte, opts Options) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	log := opts.Logger
	if log == nil {
		log = loader.DiscardLogger()
	}

	bin, err := loader.Open(data, loader.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("elfloader: open: %w", err)
	}
	base, err := bin.BaseAddress(opts.Base)
	if err != nil {
		return nil, fmt.Errorf("elfloader: base address: %w", err)
	}
	segments, err := bin.Segments(base)
	if err != nil {
		return nil, fmt.Errorf("elfloader: segments: %w", err)
	}
	pairs, err := relocate(bin, base, opts.Resolver, log)
	if err != nil {
		return nil, fmt.Errorf("elfloader: relocate: %w", err)
	}
	if err := reloc.CheckTargets(pairs, segments); err != nil {
		return nil, fmt.Errorf("elfloader: relocate: %w", err)
	}

	top, size := opts.StackTop, opts.StackSize
	if size == 0 {
		size = DefaultStackSize
	}
	if top == 0 {
		top = DefaultStackTop
	}
	var stackOpts []loader.Option
	if !opts.NoRandom {
		random := opts.Random
		if random == nil {
			random = rand.Reader
		}
		stackOpts = append(stackOpts, loader.WithRandom(random))
	}
	stack, err := bin.Stack(opts.Args, opts.Env, bin.AuxVector(base), top, size, stackOpts...)
	if err != nil {
		return nil, fmt.Errorf("elfloader: stack: %w", err)
	}

	return &Image{
		Base:        base,
		Entry:       bin.Entry(base),
		Segments:    segments,
		Relocations: pairs,
		Auxv:        stack.Auxv,
		Stack:       stack,
		ByteOrder:   bin.ByteOrder(),
	}, nil
}

// LoadFile reads the ELF binary at path and prepares it.
func LoadFile(path string, opts Options) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("elfloader: read ELF file: %w", err)
	}
	return Load(data, opts)
}

func relocate(bin *loader.Binary, base uint64, resolver reloc.Resolver, log logrus.FieldLogger) ([]reloc.Pair, error) {
	tables, err := reloc.ReadTables(bin.File)
	if err != nil {
		return nil, err
	}
	if tables.Len() == 0 {
		return nil, nil
	}
	if resolver == nil {
		if resolver, err = reloc.ForMachine(bin.File.Machine); err != nil {
			return nil, err
		}
	}
	return resolver.Resolve(tables, base, log)
}
