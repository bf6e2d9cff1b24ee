package dp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func Test_signalBitRoundTrip(t *testing.T) {
	s := Signal{Kind: SignalBit, Offset: 0, Bit: 3}
	buf := make([]byte, 1)
	s.Pack(buf, 1)
	assert.Equal(t, byte(0x08), buf[0])
	assert.Equal(t, float64(1), s.Unpack(buf))
	s.Pack(buf, 0)
	assert.Equal(t, byte(0x00), buf[0])
	assert.Equal(t, float64(0), s.Unpack(buf))
}

func Test_signalU16BigEndian(t *testing.T) {
	s := Signal{Kind: SignalU16, Offset: 0}
	buf := make([]byte, 2)
	s.Pack(buf, 0x1234)
	assert.Equal(t, []byte{0x12, 0x34}, buf)
	assert.Equal(t, float64(0x1234), s.Unpack(buf))
}

func Test_signalS16Negative(t *testing.T) {
	s := Signal{Kind: SignalS16, Offset: 0}
	buf := make([]byte, 2)
	s.Pack(buf, -1)
	assert.Equal(t, []byte{0xFF, 0xFF}, buf)
	assert.Equal(t, float64(-1), s.Unpack(buf))
}

func Test_signalF32RoundTrip(t *testing.T) {
	s := Signal{Kind: SignalF32, Offset: 0}
	buf := make([]byte, 4)
	s.Pack(buf, 3.5)
	assert.InDelta(t, 3.5, s.Unpack(buf), 1e-9)
}

func Test_signalRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		kind := SignalKind(rapid.IntRange(0, 6).Draw(t, "kind"))
		buf := make([]byte, 8)
		offset := rapid.IntRange(0, 4).Draw(t, "offset")
		s := Signal{Kind: kind, Offset: offset, Bit: rapid.IntRange(0, 7).Draw(t, "bit")}

		var value float64
		switch kind {
		case SignalBit:
			value = float64(rapid.IntRange(0, 1).Draw(t, "v"))
		case SignalU8:
			value = float64(rapid.IntRange(0, 255).Draw(t, "v"))
		case SignalU16:
			value = float64(rapid.IntRange(0, 65535).Draw(t, "v"))
		case SignalS16:
			value = float64(rapid.IntRange(-32768, 32767).Draw(t, "v"))
		case SignalU31:
			value = float64(rapid.IntRange(0, 0x7FFFFFFF).Draw(t, "v"))
		case SignalS32:
			value = float64(rapid.IntRange(-2147483648, 2147483647).Draw(t, "v"))
		case SignalF32:
			value = float64(rapid.IntRange(-1000, 1000).Draw(t, "v"))
		}

		s.Pack(buf, value)
		got := s.Unpack(buf)
		if got != value {
			t.Fatalf("round-trip mismatch for kind %d: packed %v, got %v", kind, value, got)
		}
	})
}
