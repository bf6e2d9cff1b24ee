// Package gsd defines the output contract this module consumes from the
// external GSD (device description) parser: identNumber, per-baud
// Tsdr hints, supported baud rates, UserPrmData defaults, module cfg
// signatures, and station attributes. The tokenizer/interpreter that
// reads a vendor .gsd file is external per spec.md §1; this package only
// specifies what it must hand back, plus a cache in front of it and a
// minimal in-memory stand-in (gsdsim) for tests.
package gsd

import "fmt"

// Module describes one entry in a GSD module list: the cfg-byte
// signature a ChkCfg_Req carries for that module, and the IO sizes it
// contributes.
type Module struct {
	CfgByte    byte
	InputSize  int
	OutputSize int
	Name       string
}

// StationAttrs carries the slave capability flags SetPrm/Global_Control
// need.
type StationAttrs struct {
	SyncCapable      bool
	FreezeCapable    bool
	WatchdogRequired bool
}

// Descriptor is everything the DP layer needs out of a GSD file, per
// spec.md §6 "GSD consumer interface".
type Descriptor struct {
	IdentNumber      uint16
	SupportedBauds   []int
	TsdrByBaud       map[int]int // max Tsdr in bit times, keyed by baud
	MaxUserPrmDataLen int
	DefaultUserPrmData []byte
	Modules          []Module
	Attrs            StationAttrs
}

// Consumer is the contract this module requires of the external GSD
// parser. A real implementation tokenizes a vendor .gsd file; Cache (see
// cache.go) wraps one with an on-disk cbor cache, and gsdsim provides an
// in-memory stand-in for tests and bring-up without a real GSD file.
type Consumer interface {
	Parse(path string) (*Descriptor, error)
}

// Validate checks a Descriptor against the subset of GSD content this
// module accepts, per spec.md §9's resolved Open Question: reject with a
// clear error rather than silently coercing vendor quirks.
func Validate(d *Descriptor) error {
	if d.IdentNumber == 0 {
		return fmt.Errorf("gsd: missing identNumber")
	}
	if d.MaxUserPrmDataLen > 237 {
		return fmt.Errorf("gsd: maxUserPrmDataLen %d exceeds 237-byte limit", d.MaxUserPrmDataLen)
	}
	if len(d.DefaultUserPrmData) > d.MaxUserPrmDataLen {
		return fmt.Errorf("gsd: default UserPrmData longer than declared max")
	}
	if len(d.SupportedBauds) == 0 {
		return fmt.Errorf("gsd: no supported baud rates declared")
	}
	for _, m := range d.Modules {
		if m.InputSize < 0 || m.OutputSize < 0 {
			return fmt.Errorf("gsd: module %q has negative IO size", m.Name)
		}
	}
	return nil
}
