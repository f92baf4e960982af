package reloc

import (
	"debug/elf"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sliverarmory/elfloader/loader"
)

// formula is how a relocation type computes the value it stores.
type formula uint8

const (
	// B + A
	formulaRelative formula = iota
	// S
	formulaSymbol
	// S + A
	formulaSymbolAddend
)

type howto struct {
	formula formula
	width   int
	// absolute types may name the null symbol and then use S = 0.
	absolute bool
}

// arch is a table driven Resolver. S is the run-time address of the
// referenced symbol, base plus its st_value; A is the addend; B is base.
type arch struct {
	machine elf.Machine
	// jumpSlot is the only type allowed in the PLT table.
	jumpSlot uint32
	howtos   map[uint32]howto
}

func (a *arch) Machine() elf.Machine {
	return a.machine
}

func (a *arch) Resolve(t *Tables, base uint64, log logrus.FieldLogger) ([]Pair, error) {
	if log == nil {
		log = loader.DiscardLogger()
	}
	log = log.WithFields(logrus.Fields{
		"machine": a.machine,
		"base":    fmt.Sprintf("%#x", base),
	})

	pairs := make([]Pair, 0, t.Len())
	var err error

	log.WithField("entries", len(t.Dyn)).Debug("relocating .rela.dyn")
	if pairs, err = a.resolveTable(pairs, t.Dyn, t.Symbols, base, false); err != nil {
		return nil, fmt.Errorf(".rela.dyn: %w", err)
	}
	log.WithField("entries", len(t.PLT)).Debug("relocating .rela.plt")
	if pairs, err = a.resolveTable(pairs, t.PLT, t.Symbols, base, true); err != nil {
		return nil, fmt.Errorf(".rela.plt: %w", err)
	}
	log.WithField("pairs", len(pairs)).Debug("relocation done")
	return pairs, nil
}

func (a *arch) resolveTable(pairs []Pair, entries []Entry, syms []Symbol, base uint64, plt bool) ([]Pair, error) {
	for _, entry := range entries {
		h, ok := a.howtos[entry.Type]
		if !ok || (plt && entry.Type != a.jumpSlot) {
			return nil, &UnsupportedRelocationError{Machine: a.machine, Code: entry.Type}
		}

		pair := Pair{Dst: base + entry.Offset, Count: h.width}
		switch h.formula {
		case formulaRelative:
			pair.Src = base + uint64(entry.Addend)
		case formulaSymbol, formulaSymbolAddend:
			s, err := symbolAddress(syms, entry.Symbol, base, h.absolute)
			if err != nil {
				return nil, err
			}
			pair.Src = s
			if h.formula == formulaSymbolAddend {
				pair.Src += uint64(entry.Addend)
			}
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

func symbolAddress(syms []Symbol, index uint32, base uint64, absolute bool) (uint64, error) {
	if index == 0 {
		if !absolute {
			return 0, &UnresolvedSymbolError{}
		}
		return 0, nil
	}
	if int(index) >= len(syms) {
		return 0, fmt.Errorf("%w: %d of %d", ErrSymbolIndex, index, len(syms))
	}
	sym := syms[index]
	switch {
	case !sym.Bound():
		return 0, &UnresolvedSymbolError{Name: sym.Name}
	case sym.Section == elf.SHN_ABS:
		return sym.Value, nil
	default:
		return base + sym.Value, nil
	}
}
