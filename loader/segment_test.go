package loader

import (
	"bytes"
	"debug/elf"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sliverarmory/elfloader/internal/elftest"
)

func TestSegmentsStatic(t *testing.T) {
	bin := mustOpen(t, elftest.Static())
	base, err := bin.BaseAddress(At(0x1000))
	if err != nil {
		t.Fatalf("BaseAddress: %v", err)
	}
	if base != 0 {
		t.Fatalf("BaseAddress: got %#x, want 0", base)
	}

	segments, err := bin.Segments(base)
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	if len(segments) != 4 {
		t.Fatalf("Segments: got %d, want 4", len(segments))
	}

	var last uint64
	for i, s := range segments {
		if i > 0 && s.Vaddr <= last {
			t.Fatalf("segment %d: vaddr %#x not above %#x", i, s.Vaddr, last)
		}
		last = s.Vaddr
		if s.Vaddr%PageSize != 0 {
			t.Fatalf("segment %d: vaddr %#x not page aligned", i, s.Vaddr)
		}
		if uint64(len(s.Data)) > s.Size {
			t.Fatalf("segment %d: %d data bytes exceed size %#x", i, len(s.Data), s.Size)
		}
	}

	want := []struct {
		vaddr, size uint64
		dataLen     int
		flags       string
	}{
		{0x400000, 0x300, 0x300, "r--u"},
		{0x401000, 0x800, 0x800, "r-xu"},
		{0x402000, 0x200, 0x200, "r--u"},
		{0x403000, 0x12b8, 0x1040, "rw-u"},
	}
	for i, w := range want {
		s := segments[i]
		if s.Vaddr != w.vaddr || s.Size != w.size || len(s.Data) != w.dataLen || s.Flags.String() != w.flags {
			t.Fatalf("segment %d: got vaddr=%#x size=%#x data=%#x flags=%s, want vaddr=%#x size=%#x data=%#x flags=%s",
				i, s.Vaddr, s.Size, len(s.Data), s.Flags, w.vaddr, w.size, w.dataLen, w.flags)
		}
	}

	// The bss segment starts one page below its file offset's page.
	if !bytes.Equal(segments[3].Data, bin.Raw[0x2000:0x3040]) {
		t.Fatalf("segment 3 data does not match file bytes [0x2000, 0x3040)")
	}
}

func TestSegmentsDynamic(t *testing.T) {
	bin := mustOpen(t, elftest.Dynamic())
	base, err := bin.BaseAddress(At(0x1000))
	if err != nil {
		t.Fatalf("BaseAddress: %v", err)
	}
	if base != 0x1000 {
		t.Fatalf("BaseAddress: got %#x, want 0x1000", base)
	}

	segments, err := bin.Segments(base)
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	if len(segments) != 4 {
		t.Fatalf("Segments: got %d, want 4", len(segments))
	}
	if segments[0].Vaddr != 0x1000 {
		t.Fatalf("segment 0: got vaddr %#x, want 0x1000", segments[0].Vaddr)
	}
	got := segments[2]
	if got.Vaddr != 0x20000 || got.Size != 0x1000 || len(got.Data) != 0x1000 {
		t.Fatalf("segment 2: got vaddr=%#x size=%#x data=%#x, want 0x20000/0x1000/0x1000", got.Vaddr, got.Size, len(got.Data))
	}
	last := segments[3]
	if last.Size != 0x40 || len(last.Data) != 0x20 {
		t.Fatalf("segment 3: got size=%#x data=%#x, want 0x40/0x20", last.Size, len(last.Data))
	}
}

func TestSegmentsDeterministic(t *testing.T) {
	bin := mustOpen(t, elftest.Dynamic())

	first, err := bin.Segments(0x7000)
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	second, err := bin.Segments(0x7000)
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("Segments differ between runs (-first +second):\n%s", diff)
	}

	first[0].Data[0] ^= 0xff
	if bin.Raw[0] != elftest.Dynamic().Bytes()[0] {
		t.Fatalf("segment data aliases the raw image")
	}
}

func TestSegmentsErrors(t *testing.T) {
	raw := make([]byte, 0x1000)
	tests := []struct {
		name    string
		prog    elf.ProgHeader
		base    uint64
		wantErr error
	}{
		{
			name:    "offset and vaddr disagree",
			prog:    elf.ProgHeader{Type: elf.PT_LOAD, Off: 0x100, Vaddr: 0x400000, Filesz: 0x10, Memsz: 0x10},
			wantErr: ErrMisalignedSegment,
		},
		{
			name:    "base not page aligned",
			prog:    elf.ProgHeader{Type: elf.PT_LOAD, Off: 0, Vaddr: 0, Filesz: 0x10, Memsz: 0x10},
			base:    0x1800,
			wantErr: ErrMisalignedSegment,
		},
		{
			name:    "past end of image",
			prog:    elf.ProgHeader{Type: elf.PT_LOAD, Off: 0, Vaddr: 0x400000, Filesz: 0x2000, Memsz: 0x2000},
			wantErr: ErrTruncatedImage,
		},
		{
			name:    "file size above memory size",
			prog:    elf.ProgHeader{Type: elf.PT_LOAD, Off: 0, Vaddr: 0x400000, Filesz: 0x20, Memsz: 0x10},
			wantErr: ErrInvalidSegment,
		},
		{
			name:    "no load segment",
			prog:    elf.ProgHeader{Type: elf.PT_DYNAMIC},
			wantErr: ErrMissingLoadSegment,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bin := progsFile(elf.ET_EXEC, tt.prog)
			bin.Raw = raw
			if _, err := bin.Segments(tt.base); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Segments: got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSegmentZeroFileSize(t *testing.T) {
	bin := progsFile(elf.ET_EXEC, elf.ProgHeader{Type: elf.PT_LOAD, Flags: elf.PF_R | elf.PF_W, Off: 0x1000, Vaddr: 0x600000, Memsz: 0x3000})
	bin.Raw = make([]byte, 0x1000)

	segments, err := bin.Segments(0)
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	if segments[0].Data != nil || segments[0].Size != 0x3000 {
		t.Fatalf("bss-only segment: got data=%d size=%#x, want nil/0x3000", len(segments[0].Data), segments[0].Size)
	}
}

func TestSegmentContains(t *testing.T) {
	s := Segment{Vaddr: 0x1000, Size: 0x1000}

	for _, tt := range []struct {
		addr, n uint64
		want    bool
	}{
		{0x1000, 8, true},
		{0x1ff8, 8, true},
		{0x1ffc, 8, false},
		{0xff8, 8, false},
		{0x2000, 4, false},
		{^uint64(0) - 2, 8, false},
	} {
		if got := s.Contains(tt.addr, tt.n); got != tt.want {
			t.Fatalf("Contains(%#x, %d): got %v, want %v", tt.addr, tt.n, got, tt.want)
		}
	}
}

func TestFlagsString(t *testing.T) {
	if got := (FlagRead | FlagExecute | FlagUser).String(); got != "r-xu" {
		t.Fatalf("String: got %q, want %q", got, "r-xu")
	}
	if got := segmentFlags(elf.PF_R | elf.PF_W | elf.PF_X); got != FlagRead|FlagWrite|FlagExecute|FlagUser {
		t.Fatalf("segmentFlags: got %s", got)
	}
}
