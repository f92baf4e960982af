package elfloader_test

import (
	"debug/elf"
	"errors"
	"fmt"
	"testing"

	"github.com/sliverarmory/elfloader"
	"github.com/sliverarmory/elfloader/loader"
	"github.com/sliverarmory/elfloader/loader/reloc"
)

type binaryTarget struct {
	goarch    string
	buildmode string
	machine   elf.Machine
	typ       elf.Type
}

var binaryTargets = []binaryTarget{
	{goarch: "amd64", buildmode: "exe", machine: elf.EM_X86_64, typ: elf.ET_EXEC},
	{goarch: "amd64", buildmode: "pie", machine: elf.EM_X86_64, typ: elf.ET_DYN},
	{goarch: "arm64", buildmode: "exe", machine: elf.EM_AARCH64, typ: elf.ET_EXEC},
	{goarch: "arm64", buildmode: "pie", machine: elf.EM_AARCH64, typ: elf.ET_DYN},
	{goarch: "riscv64", buildmode: "exe", machine: elf.EM_RISCV, typ: elf.ET_EXEC},
}

func TestLoadGoBinaryMatrix(t *testing.T) {
	requireCommand(t, "go")

	outDir := t.TempDir()

	for _, target := range binaryTargets {
		target := target
		t.Run(fmt.Sprintf("linux-%s-%s", target.goarch, target.buildmode), func(t *testing.T) {
			path := buildOneGoBinary(t, outDir, target.goarch, target.buildmode)

			f, err := elf.Open(path)
			if err != nil {
				t.Fatalf("open %s: %v", path, err)
			}
			machine, typ := f.Machine, f.Type
			_ = f.Close()
			if machine != target.machine || typ != target.typ {
				t.Fatalf("unexpected binary %s: got %s/%s, want %s/%s", path, machine, typ, target.machine, target.typ)
			}

			image, err := elfloader.LoadFile(path, elfloader.Options{
				Base:     loader.At(0x5555_5555_4000),
				Args:     []string{"basic", "arg1", "arg2"},
				Env:      []string{"LOG=file"},
				NoRandom: true,
			})
			var (
				unresolved  *reloc.UnresolvedSymbolError
				unsupported *reloc.UnsupportedRelocationError
			)
			if errors.As(err, &unresolved) {
				t.Skipf("%s imports %q from a shared object", path, unresolved.Name)
			}
			// Thread-local relocations need a TLS layout the loader does not own.
			if errors.As(err, &unsupported) {
				t.Skipf("%s: %v", path, unsupported)
			}
			if err != nil {
				t.Fatalf("LoadFile(%s): %v", path, err)
			}

			switch target.typ {
			case elf.ET_EXEC:
				if image.Base != 0 {
					t.Fatalf("static base: got %#x, want 0", image.Base)
				}
				if len(image.Relocations) != 0 {
					t.Fatalf("static binary produced %d relocations", len(image.Relocations))
				}
			case elf.ET_DYN:
				if image.Base != 0x5555_5555_4000 {
					t.Fatalf("pie base: got %#x, want 0x555555554000", image.Base)
				}
				if len(image.Relocations) == 0 {
					t.Fatalf("pie binary produced no relocations")
				}
			}
			if phent, _ := image.Auxv.Get(loader.AT_PHENT); phent != 56 {
				t.Fatalf("AT_PHENT: got %d, want 56", phent)
			}
			checkImage(t, image, 3)

			mapping, err := image.Map()
			if err != nil {
				t.Fatalf("Map: %v", err)
			}
			defer mapping.Free()
			for _, r := range image.Relocations {
				got, err := mapping.Word(r.Dst, r.Count, image.ByteOrder)
				if err != nil {
					t.Fatalf("Word(%#x): %v", r.Dst, err)
				}
				if r.Count == 8 && got != r.Src {
					t.Fatalf("relocation at %#x: got %#x, want %#x", r.Dst, got, r.Src)
				}
			}
		})
	}
}
