package dp

import (
	"encoding/binary"
	"math"
)

// SignalKind tags the closed variant of process-data signal types
// spec.md §9 calls for in place of the source's name-indexed dynamic
// field access.
type SignalKind int

const (
	SignalBit SignalKind = iota
	SignalU8
	SignalU16
	SignalS16
	SignalU31
	SignalS32
	SignalF32
)

// Signal describes one process-data value packed into a slave's output
// or input buffer at a fixed byte offset (and, for SignalBit, bit
// position). The active signal set for a slave is a flat ordered
// sequence owned by SlaveDesc/GSD-derived configuration, not a dynamic
// name-indexed map.
type Signal struct {
	Kind   SignalKind
	Offset int
	Bit    int // only meaningful for SignalBit, 0..7
	Name   string
}

// Pack writes the signal's value (as a float64 for uniformity; callers
// truncate/round per Kind) into dst at the signal's offset.
func (s Signal) Pack(dst []byte, value float64) {
	switch s.Kind {
	case SignalBit:
		if value != 0 {
			dst[s.Offset] |= 1 << uint(s.Bit)
		} else {
			dst[s.Offset] &^= 1 << uint(s.Bit)
		}
	case SignalU8:
		dst[s.Offset] = byte(uint8(value))
	case SignalU16:
		binary.BigEndian.PutUint16(dst[s.Offset:], uint16(value))
	case SignalS16:
		binary.BigEndian.PutUint16(dst[s.Offset:], uint16(int16(value)))
	case SignalU31:
		v := uint32(value) & 0x7FFFFFFF
		binary.BigEndian.PutUint32(dst[s.Offset:], v)
	case SignalS32:
		binary.BigEndian.PutUint32(dst[s.Offset:], uint32(int32(value)))
	case SignalF32:
		binary.BigEndian.PutUint32(dst[s.Offset:], math.Float32bits(float32(value)))
	}
}

// Unpack reads the signal's value out of src at the signal's offset.
func (s Signal) Unpack(src []byte) float64 {
	switch s.Kind {
	case SignalBit:
		if src[s.Offset]&(1<<uint(s.Bit)) != 0 {
			return 1
		}
		return 0
	case SignalU8:
		return float64(src[s.Offset])
	case SignalU16:
		return float64(binary.BigEndian.Uint16(src[s.Offset:]))
	case SignalS16:
		return float64(int16(binary.BigEndian.Uint16(src[s.Offset:])))
	case SignalU31:
		return float64(binary.BigEndian.Uint32(src[s.Offset:]) & 0x7FFFFFFF)
	case SignalS32:
		return float64(int32(binary.BigEndian.Uint32(src[s.Offset:])))
	case SignalF32:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(src[s.Offset:])))
	}
	return 0
}
