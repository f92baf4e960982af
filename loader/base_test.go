package loader

import (
	"debug/elf"
	"errors"
	"testing"
)

func progsFile(typ elf.Type, progs ...elf.ProgHeader) *Binary {
	f := &elf.File{FileHeader: elf.FileHeader{Class: elf.ELFCLASS64, Type: typ}}
	for _, p := range progs {
		f.Progs = append(f.Progs, &elf.Prog{ProgHeader: p})
	}
	return &Binary{File: f}
}

func TestBaseAddress(t *testing.T) {
	load := func(vaddr uint64) elf.ProgHeader {
		return elf.ProgHeader{Type: elf.PT_LOAD, Flags: elf.PF_R, Off: vaddr % PageSize, Vaddr: vaddr, Filesz: 0x100, Memsz: 0x100}
	}

	tests := []struct {
		name      string
		bin       *Binary
		candidate Candidate
		want      uint64
		wantErr   error
	}{
		{
			name:      "static above zero ignores candidate",
			bin:       progsFile(elf.ET_EXEC, load(0x400000), load(0x401000)),
			candidate: At(0x1000),
			want:      0,
		},
		{
			name: "static above zero without candidate",
			bin:  progsFile(elf.ET_EXEC, load(0x400000)),
			want: 0,
		},
		{
			name:      "static at zero takes candidate",
			bin:       progsFile(elf.ET_EXEC, load(0), load(0x1000)),
			candidate: At(0x10000),
			want:      0x10000,
		},
		{
			name:    "static at zero without candidate",
			bin:     progsFile(elf.ET_EXEC, load(0), load(0x1000)),
			wantErr: ErrAmbiguousZeroBase,
		},
		{
			name:    "lowest segment found out of order",
			bin:     progsFile(elf.ET_EXEC, load(0x600000), load(0)),
			wantErr: ErrAmbiguousZeroBase,
		},
		{
			name:      "position independent",
			bin:       progsFile(elf.ET_DYN, load(0), load(0x10000)),
			candidate: At(0x1000),
			want:      0x1000,
		},
		{
			name:    "position independent without candidate",
			bin:     progsFile(elf.ET_DYN, load(0)),
			wantErr: ErrAmbiguousZeroBase,
		},
		{
			name:      "no load segment",
			bin:       progsFile(elf.ET_EXEC, elf.ProgHeader{Type: elf.PT_NOTE}),
			candidate: At(0x1000),
			wantErr:   ErrMissingLoadSegment,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.bin.BaseAddress(tt.candidate)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("BaseAddress: got err %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("BaseAddress: %v", err)
			}
			if got != tt.want {
				t.Fatalf("BaseAddress: got %#x, want %#x", got, tt.want)
			}
		})
	}
}
