// Package gsdsim is a minimal in-memory GSD consumer used for tests and
// end-to-end bring-up (spec.md §8 boundary scenario 4) where no real GSD
// file is available on disk. It is not a GSD file tokenizer: it answers
// Parse with whatever Descriptor was registered for that path.
package gsdsim

import (
	"fmt"

	"github.com/mbuesch/godp/internal/gsd"
)

// Sim is an in-memory gsd.Consumer: register descriptors by path, then
// hand it to anything expecting a gsd.Consumer.
type Sim struct {
	byPath map[string]*gsd.Descriptor
}

// New returns an empty Sim.
func New() *Sim { return &Sim{byPath: make(map[string]*gsd.Descriptor)} }

// Register associates path with a descriptor that Parse(path) will
// return.
func (s *Sim) Register(path string, d *gsd.Descriptor) {
	s.byPath[path] = d
}

func (s *Sim) Parse(path string) (*gsd.Descriptor, error) {
	d, ok := s.byPath[path]
	if !ok {
		return nil, fmt.Errorf("gsdsim: no descriptor registered for %q", path)
	}
	return d, nil
}

var _ gsd.Consumer = (*Sim)(nil)

// LoopbackTestSlave returns a descriptor matching the looped test slave
// at addr 8 referenced by spec.md §8 boundary scenario 4: a trivial
// 1-byte-in/1-byte-out slave with no watchdog and no sync/freeze.
func LoopbackTestSlave() *gsd.Descriptor {
	return &gsd.Descriptor{
		IdentNumber:        0xBEEF,
		SupportedBauds:     []int{9600, 19200, 93750, 187500, 500000},
		TsdrByBaud:         map[int]int{9600: 11, 500000: 11},
		MaxUserPrmDataLen:  0,
		DefaultUserPrmData: nil,
		Modules: Module1ByteInOut,
		Attrs:   gsd.StationAttrs{},
	}
}

// Module1ByteInOut is a single 1-byte-in/1-byte-out module cfg entry,
// used directly by LoopbackTestSlave and available for tests that need a
// minimal module list.
var Module1ByteInOut = []gsd.Module{
	{CfgByte: 0x10, InputSize: 1, OutputSize: 1, Name: "1 byte in/out"},
}
