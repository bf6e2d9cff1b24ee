// Package phy implements the PROFIBUS physical transceiver: an 11-bit
// UART frame (1 start, 8 data, even parity, 1 stop) over an asynchronous
// serial line, with Tsyn idle enforcement before transmit and half-duplex
// TX/RX exclusion.
package phy

import (
	"context"
	"errors"
	"time"
)

// Error is the PHYError taxonomy member: I/O, parity, or framing faults.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "phy: " + e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// ErrBusy reports that Tsyn idle has not yet elapsed. The drivers in this
// package never return it: their Send blocks until Tsyn has elapsed.
var ErrBusy = errors.New("phy: busy, Tsyn not yet elapsed")

// Transceiver is the driver-independent PHY contract used by the FDL
// layer. Implementations: serial (real RS-485/RS-232 line), dummy
// (loopback for tests), fpga (stub, out of scope).
type Transceiver interface {
	// Open configures the line: baud rate, even parity, 1 stop bit, 8
	// data bits are implied by the PROFIBUS wire format and are not
	// independently selectable.
	Open(ctx context.Context, baud int) error
	Close() error

	// Send blocks until the line has been idle for at least Tsyn bit
	// times, then transmits data. If ctx is done before Tsyn has elapsed,
	// it returns ctx.Err() without transmitting.
	Send(ctx context.Context, data []byte) error

	// Poll returns bytes received since the last Poll call, or nil if
	// none are available; it never blocks.
	Poll() []byte

	// FlushRx discards any buffered but unread received bytes.
	FlushRx()

	// SetTxEnable drives RS-485 direction control, if the underlying
	// transport needs explicit DE/RE toggling. A no-op on transports with
	// automatic direction (USB-RS485 adapters, true RS-232).
	SetTxEnable(enable bool) error

	// IdleSince returns how long the line has been idle (no RX activity)
	// as observed by the PHY. Tsyn is enforced inside Send, not by the
	// FDL station.
	IdleSince() time.Duration

	// LastTxTime returns the timestamp of the most recent completed Send.
	// The FDL station does not read it; its slot timer starts from its
	// own clock after Send returns.
	LastTxTime() time.Time

	// Stats exposes framing-error counters (parity/stop faults).
	Stats() Stats
}

// Stats counts low-level line faults.
type Stats struct {
	FramingErrors uint64 // parity/stop errors, reported as dropped bytes
	BytesRx       uint64
	BytesTx       uint64
}

// BitTime returns the duration of one bit at the given baud rate.
func BitTime(baud int) time.Duration {
	if baud <= 0 {
		return 0
	}
	return time.Second / time.Duration(baud)
}

// Tsyn is the mandatory idle period before any new transmission: 33 bit
// times at the configured baud rate.
func Tsyn(baud int) time.Duration {
	return 33 * BitTime(baud)
}
