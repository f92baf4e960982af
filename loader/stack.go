package loader

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	// stackAlign is the stack pointer alignment required at process entry.
	stackAlign = 16
	randomSize = 16
)

// StackImage is the initial content of a process stack region.
type StackImage struct {
	// Data covers the whole region; Data[0] is at Top. The free part at the
	// low end is zero.
	Data []byte
	Top  uint64
	// SP is the initial stack pointer. It points at argc.
	SP uint64
	// Auxv is the vector as written to the stack.
	Auxv AuxVector
}

// Initialized returns the part of Data starting at the stack pointer.
func (s *StackImage) Initialized() []byte {
	return s.Data[s.SP-s.Top:]
}

// Stack is BuildStack with the word size, byte order and logger of b.
func (b *Binary) Stack(args, envs []string, auxv AuxVector, top, size uint64, opts ...Option) (*StackImage, error) {
	opts = append([]Option{
		WithWordSize(b.WordSize()),
		WithByteOrder(b.ByteOrder()),
		WithLogger(b.logger()),
	}, opts...)
	return BuildStack(args, envs, auxv, top, size, opts...)
}

// BuildStack lays out argv, envp and auxv for a stack region of size bytes
// starting at top. Reading upward from the returned stack pointer:
//
//	argc
//	argv[0..argc-1], NULL
//	envp[0..n-1], NULL
//	auxv pairs in ascending tag order, AT_NULL pair
//	padding
//	argument strings, environment strings (NUL terminated)
//	16 AT_RANDOM bytes, when an entropy source is configured
//
// It fails with ErrStackOverflow rather than truncate.
func BuildStack(args, envs []string, auxv AuxVector, top, size uint64, opts ...Option) (*StackImage, error) {
	s := newSettings(opts)
	if size > math.MaxInt || top+size < top {
		return nil, fmt.Errorf("%w: region of %#x bytes at %#x", ErrInvalidStackRegion, size, top)
	}
	for _, list := range [][]string{args, envs} {
		for _, str := range list {
			if strings.IndexByte(str, 0) >= 0 {
				return nil, fmt.Errorf("%w: %q", ErrInvalidString, str)
			}
		}
	}

	c := &stackCursor{top: top, pos: size}

	var (
		random    []byte
		randomPos uint64
	)
	if s.random != nil {
		random = make([]byte, randomSize)
		if _, err := io.ReadFull(s.random, random); err != nil {
			return nil, fmt.Errorf("read AT_RANDOM bytes: %w", err)
		}
		pos, err := c.reserve(randomSize)
		if err != nil {
			return nil, err
		}
		randomPos = pos
		auxv = auxv.With(AT_RANDOM, top+pos)
	}

	envPos, err := c.reserveStrings(envs)
	if err != nil {
		return nil, err
	}
	argPos, err := c.reserveStrings(args)
	if err != nil {
		return nil, err
	}

	word := uint64(s.wordSize)
	if err := c.align(word); err != nil {
		return nil, err
	}
	entries := auxv.Entries()
	words := 1 + uint64(len(args)+1) + uint64(len(envs)+1) + 2*uint64(len(entries)+1)
	if _, err := c.reserve(words * word); err != nil {
		return nil, err
	}
	if err := c.align(stackAlign); err != nil {
		return nil, err
	}

	data := make([]byte, size)
	copy(data[randomPos:], random)
	for i, str := range envs {
		copy(data[envPos[i]:], str)
	}
	for i, str := range args {
		copy(data[argPos[i]:], str)
	}

	w := &wordWriter{data: data, pos: c.pos, settings: s}
	w.put(uint64(len(args)))
	for _, pos := range argPos {
		w.put(top + pos)
	}
	w.put(0)
	for _, pos := range envPos {
		w.put(top + pos)
	}
	w.put(0)
	for _, e := range entries {
		w.put(e.Tag)
		w.put(e.Value)
	}
	w.put(AT_NULL)
	w.put(0)

	image := &StackImage{
		Data: data,
		Top:  top,
		SP:   top + c.pos,
		Auxv: auxv,
	}
	s.log.WithFields(logrus.Fields{
		"argc": len(args),
		"envc": len(envs),
		"sp":   fmt.Sprintf("%#x", image.SP),
		"used": size - c.pos,
	}).Debug("built initial stack")
	return image, nil
}

// stackCursor walks down a region of pos bytes starting at address top.
// Positions are offsets from top.
type stackCursor struct {
	top uint64
	pos uint64
}

func (c *stackCursor) reserve(n uint64) (uint64, error) {
	if n > c.pos {
		return 0, fmt.Errorf("%w: %#x more bytes needed with %#x left", ErrStackOverflow, n, c.pos)
	}
	c.pos -= n
	return c.pos, nil
}

func (c *stackCursor) align(a uint64) error {
	addr := c.top + c.pos
	_, err := c.reserve(addr - alignDown(addr, a))
	return err
}

// reserveStrings places strs so that the first one ends up lowest.
func (c *stackCursor) reserveStrings(strs []string) ([]uint64, error) {
	pos := make([]uint64, len(strs))
	for i := len(strs) - 1; i >= 0; i-- {
		p, err := c.reserve(uint64(len(strs[i])) + 1)
		if err != nil {
			return nil, err
		}
		pos[i] = p
	}
	return pos, nil
}

type wordWriter struct {
	data []byte
	pos  uint64
	*settings
}

func (w *wordWriter) put(v uint64) {
	switch w.wordSize {
	case 4:
		w.order.PutUint32(w.data[w.pos:], uint32(v))
	default:
		w.order.PutUint64(w.data[w.pos:], v)
	}
	w.pos += uint64(w.wordSize)
}
