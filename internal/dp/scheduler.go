package dp

import (
	"context"
	"sync"

	"github.com/mbuesch/godp/internal/fdl"
	"github.com/mbuesch/godp/internal/phy"
)

// Master owns the slave arena, the FDL station, and the round-robin
// scheduler cursor. Slaves are stored in an arena indexed by integer id
// (spec.md §9 "Cyclic references"); each SlaveRuntime holds no back-
// pointer to the Master.
type Master struct {
	Addr    byte
	station *fdl.Station
	t       phy.Transceiver

	mu      sync.Mutex
	slaves  []*SlaveRuntime
	cursor  int

	groupControl map[byte]*groupControlState

	terminated bool
}

// NewMaster creates a master bound to an already-open transceiver.
func NewMaster(addr byte, t phy.Transceiver, profile fdl.Profile) *Master {
	return &Master{
		Addr:    addr,
		station: fdl.NewStation(t, addr, profile),
		t:       t,
	}
}

// AddSlave registers a slave descriptor and returns its runtime, in
// address order position. Must be called before the first Tick.
func (m *Master) AddSlave(desc *SlaveDesc) *SlaveRuntime {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt := NewSlaveRuntime(desc)
	i := len(m.slaves)
	for i > 0 && m.slaves[i-1].Desc.Addr > desc.Addr {
		i--
	}
	m.slaves = append(m.slaves, nil)
	copy(m.slaves[i+1:], m.slaves[i:])
	m.slaves[i] = rt
	return rt
}

// Slaves returns the registered slave runtimes in address order.
func (m *Master) Slaves() []*SlaveRuntime {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*SlaveRuntime, len(m.slaves))
	copy(out, m.slaves)
	return out
}

// Tick advances exactly one slave's state machine by one Step, in round-
// robin order, and returns that slave's runtime (nil if there are no
// slaves or the master has been shut down). The caller may invoke Tick as
// fast as it likes; overall throughput is bounded by line time
// (spec.md §4.5).
func (m *Master) Tick(ctx context.Context) *SlaveRuntime {
	m.mu.Lock()
	if m.terminated || len(m.slaves) == 0 {
		m.mu.Unlock()
		return nil
	}
	idx := m.cursor
	m.cursor = (m.cursor + 1) % len(m.slaves)
	rt := m.slaves[idx]
	m.mu.Unlock()

	mach := NewMachine(m.station, rt, m.Addr)
	mach.Step(ctx)
	return rt
}

// Shutdown marks the loop terminated and sets every registered slave to
// OFFLINE. A Tick already inside Step finishes its request; every later
// Tick returns nil without doing work. Closing the PHY is left to the
// caller (spec.md §5 Cancellation).
func (m *Master) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminated = true
	for _, rt := range m.slaves {
		rt.State = Offline
	}
}

// IsConnecting reports whether any registered slave is mid-bring-up.
func (m *Master) IsConnecting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rt := range m.slaves {
		if rt.State.IsConnecting() {
			return true
		}
	}
	return false
}

// IsConnected reports whether every registered slave has reached
// DATA_EX/DIAG_EX.
func (m *Master) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.slaves) == 0 {
		return false
	}
	for _, rt := range m.slaves {
		if !rt.State.IsConnected() {
			return false
		}
	}
	return true
}
