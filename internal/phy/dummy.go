package phy

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/creack/pty"
)

// Dummy is a loopback PHY for tests: it allocates a pseudo-terminal pair
// with github.com/creack/pty (the teacher's own local-test-rig dependency).
// Bytes written by Send appear on the "line" (the slave end); a background
// echoer reads them and, after echoDelay, writes them back onto the line
// so the master end sees them as RX, simulating a responding slave.
type Dummy struct {
	master *os.File
	slave  *os.File

	mu        sync.Mutex
	baud      int
	echoDelay time.Duration
	lastTx    time.Time
	idleRef   time.Time
	rxBuf     []byte
	stats     Stats

	closeOnce sync.Once
	closed    chan struct{}
}

// NewDummy returns a Dummy PHY that loops TX back to RX after echoDelay.
func NewDummy(echoDelay time.Duration) (*Dummy, error) {
	m, s, err := pty.Open()
	if err != nil {
		return nil, &Error{Op: "open dummy pty", Err: err}
	}
	d := &Dummy{
		master:    m,
		slave:     s,
		echoDelay: echoDelay,
		closed:    make(chan struct{}),
		idleRef:   time.Now(),
	}
	go d.echoLoop()
	go d.rxLoop()
	return d, nil
}

func (d *Dummy) echoLoop() {
	buf := make([]byte, 256)
	for {
		n, err := d.slave.Read(buf)
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}
		chunk := append([]byte(nil), buf[:n]...)
		if d.echoDelay > 0 {
			select {
			case <-time.After(d.echoDelay):
			case <-d.closed:
				return
			}
		}
		if _, err := d.slave.Write(chunk); err != nil {
			return
		}
	}
}

func (d *Dummy) rxLoop() {
	buf := make([]byte, 256)
	for {
		n, err := d.master.Read(buf)
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}
		d.mu.Lock()
		d.rxBuf = append(d.rxBuf, buf[:n]...)
		d.stats.BytesRx += uint64(n)
		d.idleRef = time.Now()
		d.mu.Unlock()
	}
}

func (d *Dummy) Open(ctx context.Context, baud int) error {
	d.mu.Lock()
	d.baud = baud
	d.mu.Unlock()
	return nil
}

func (d *Dummy) Close() error {
	d.closeOnce.Do(func() { close(d.closed) })
	_ = d.master.Close()
	_ = d.slave.Close()
	return nil
}

func (d *Dummy) Send(ctx context.Context, data []byte) error {
	d.mu.Lock()
	idle := time.Since(d.idleRef)
	need := Tsyn(d.baud)
	d.mu.Unlock()
	if idle < need {
		select {
		case <-time.After(need - idle):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if _, err := d.master.Write(data); err != nil {
		return &Error{Op: "dummy send", Err: err}
	}
	d.mu.Lock()
	d.lastTx = time.Now()
	d.stats.BytesTx += uint64(len(data))
	d.mu.Unlock()
	return nil
}

func (d *Dummy) Poll() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.rxBuf) == 0 {
		return nil
	}
	out := d.rxBuf
	d.rxBuf = nil
	return out
}

func (d *Dummy) FlushRx() {
	d.mu.Lock()
	d.rxBuf = nil
	d.mu.Unlock()
}

func (d *Dummy) SetTxEnable(enable bool) error { return nil }

func (d *Dummy) IdleSince() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return time.Since(d.idleRef)
}

func (d *Dummy) LastTxTime() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastTx
}

func (d *Dummy) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}
