//go:build linux

// The real serial PHY depends on Linux-only termios2/goserial arbitrary
// baud support (serial_linux.go) and periph.io GPIO for manual RS-485
// direction control; a class-1 master talks to real PROFIBUS hardware
// only on Linux, so the whole driver is gated to that platform rather
// than carrying an unused cross-platform fallback.
package phy

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	goserial "github.com/daedaluz/goserial"
	"github.com/pkg/term"
	"golang.org/x/sys/unix"
)

// namedBauds are the rates pkg/term's SetSpeed understands directly; any
// PROFIBUS rate outside this table (93750, 187500, 500000, 1500000,
// 3000000, 6000000, 12000000) is set through goserial's Linux termios2
// ioctl path instead, grounded on Daedaluz-goserial's arbitrary-baud
// support.
var namedBauds = map[int]bool{
	1200: true, 2400: true, 4800: true, 9600: true,
	19200: true, 38400: true, 57600: true, 115200: true,
}

// GPIOLine is the minimal subset of periph.io/x/conn/v3/gpio.PinIO this
// package needs for manual RS-485 DE/RE toggling.
type GPIOLine interface {
	Out(level bool) error
}

// Serial is the real RS-485/RS-232 PHY driver: 11-bit UART framing (1
// start, 8 data, even parity, 1 stop) over a named device path.
type Serial struct {
	dev string

	mu       sync.Mutex
	t        *term.Term
	gs       *goserial.Port // non-nil only when opened via goserial (arbitrary baud / native RS485)
	txEnable GPIOLine        // optional manual DE/RE line, nil if unused

	baud     int
	lastTx   time.Time
	idleRef  time.Time
	rxBuf    []byte
	stats    Stats

	pollDone chan struct{}
}

// NewSerial returns a Serial PHY bound to dev (e.g. "/dev/ttyUSB0"). If
// txEnable is non-nil it is driven low/high around each Send to control
// RS-485 direction manually; leave nil when the adapter or goserial's
// native RS485 mode already handles direction automatically.
func NewSerial(dev string, txEnable GPIOLine) *Serial {
	return &Serial{dev: dev, txEnable: txEnable}
}

func (s *Serial) Open(ctx context.Context, baud int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baud = baud
	s.idleRef = time.Now()

	if runtime.GOOS == "linux" && !namedBauds[baud] {
		opts := goserial.NewOptions()
		p, err := goserial.Open(s.dev, opts)
		if err != nil {
			return &Error{Op: "open " + s.dev, Err: err}
		}
		if err := p.MakeRaw(); err != nil {
			return &Error{Op: "raw mode " + s.dev, Err: err}
		}
		if err := setArbitraryBaudEvenParity(p, baud); err != nil {
			return &Error{Op: "configure " + s.dev, Err: err}
		}
		s.gs = p
		return nil
	}

	fd, err := term.Open(s.dev, term.RawMode)
	if err != nil {
		return &Error{Op: "open " + s.dev, Err: err}
	}
	if err := fd.SetSpeed(baud); err != nil {
		_ = fd.Close()
		return &Error{Op: "set speed", Err: err}
	}
	if err := setEvenParity8N1(fd); err != nil {
		_ = fd.Close()
		return &Error{Op: "set parity", Err: err}
	}
	s.t = fd
	return nil
}

// setEvenParity8N1 applies 8 data bits, even parity, 1 stop bit on top of
// pkg/term's raw mode, via golang.org/x/sys/unix — pkg/term's convenience
// API has no parity knob, so the raw termios bits are set directly,
// grounded on the teacher's own direct golang.org/x/sys dependency.
func setEvenParity8N1(fd *term.Term) error {
	termios, err := unix.IoctlGetTermios(int(fd.Fd()), ioctlGetTermios)
	if err != nil {
		return err
	}
	termios.Cflag &^= unix.CSIZE | unix.CSTOPB | unix.PARODD
	termios.Cflag |= unix.CS8 | unix.PARENB
	termios.Cflag &^= unix.CSTOPB // 1 stop bit
	termios.Iflag |= unix.INPCK
	return unix.IoctlSetTermios(int(fd.Fd()), ioctlSetTermios, termios)
}

func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gs != nil {
		err := s.gs.Close()
		s.gs = nil
		return err
	}
	if s.t != nil {
		err := s.t.Close()
		s.t = nil
		return err
	}
	return nil
}

func (s *Serial) Send(ctx context.Context, data []byte) error {
	s.mu.Lock()
	idle := time.Since(s.idleRef)
	need := Tsyn(s.baud)
	s.mu.Unlock()
	if idle < need {
		select {
		case <-time.After(need - idle):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if s.txEnable != nil {
		if err := s.txEnable.Out(true); err != nil {
			return &Error{Op: "tx enable", Err: err}
		}
		defer s.txEnable.Out(false)
	}

	var n int
	var err error
	s.mu.Lock()
	switch {
	case s.gs != nil:
		n, err = s.gs.Write(data)
	case s.t != nil:
		n, err = s.t.Write(data)
	default:
		err = fmt.Errorf("serial: not open")
	}
	s.mu.Unlock()
	if err != nil || n != len(data) {
		return &Error{Op: "write", Err: err}
	}

	s.mu.Lock()
	s.lastTx = time.Now()
	s.stats.BytesTx += uint64(len(data))
	s.mu.Unlock()
	return nil
}

// Poll drains the bytes ReadPump has buffered since the last Poll and
// never blocks. Bytes only arrive while ReadPump runs in its own
// goroutine (cmd/dpmasterd starts it after Open); without it Poll always
// returns nil.
func (s *Serial) Poll() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.rxBuf) == 0 {
		return nil
	}
	out := s.rxBuf
	s.rxBuf = nil
	return out
}

// ReadPump blocks reading single bytes and feeds them into the internal
// RX buffer until ctx is canceled or the port is closed; run it in its
// own goroutine after Open.
func (s *Serial) ReadPump(ctx context.Context) {
	buf := make([]byte, 1)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		var n int
		var err error
		s.mu.Lock()
		gs, t := s.gs, s.t
		s.mu.Unlock()
		switch {
		case gs != nil:
			n, err = gs.Read(buf)
		case t != nil:
			n, err = t.Read(buf)
		default:
			return
		}
		if err != nil {
			s.mu.Lock()
			s.stats.FramingErrors++
			s.mu.Unlock()
			continue
		}
		if n == 1 {
			s.mu.Lock()
			s.rxBuf = append(s.rxBuf, buf[0])
			s.stats.BytesRx++
			s.idleRef = time.Now()
			s.mu.Unlock()
		}
	}
}

func (s *Serial) FlushRx() {
	s.mu.Lock()
	s.rxBuf = nil
	s.mu.Unlock()
}

func (s *Serial) SetTxEnable(enable bool) error {
	if s.txEnable == nil {
		return nil
	}
	return s.txEnable.Out(enable)
}

func (s *Serial) IdleSince() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.idleRef)
}

func (s *Serial) LastTxTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTx
}

func (s *Serial) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
