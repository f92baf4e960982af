package reloc

import (
	"fmt"

	"github.com/sliverarmory/elfloader/loader"
)

// CheckTargets makes sure every pair writes inside a single segment.
func CheckTargets(pairs []Pair, segments []loader.Segment) error {
	for _, pair := range pairs {
		if !covered(pair, segments) {
			return fmt.Errorf("%w: %d bytes at %#x", ErrOutsideSegment, pair.Count, pair.Dst)
		}
	}
	return nil
}

func covered(pair Pair, segments []loader.Segment) bool {
	for _, segment := range segments {
		if segment.Contains(pair.Dst, uint64(pair.Count)) {
			return true
		}
	}
	return false
}
