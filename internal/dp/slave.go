// Package dp implements the PROFIBUS-DP master-side per-slave state
// machine and round-robin scheduler: SlaveDesc/SlaveRuntime, the
// OFFLINE..DATA_EX/DIAG_EX/FAULT lifecycle, watchdog and diagnosis
// bookkeeping, and Global_Control broadcast support.
package dp

import "time"

// State is one of the per-slave lifecycle states of spec.md §4.4.
type State int

const (
	Offline State = iota
	Init
	WaitDiag
	WaitPrm
	WaitCfg
	WaitDiag2
	DataEx
	DiagEx
	Fault
)

func (s State) String() string {
	switch s {
	case Offline:
		return "OFFLINE"
	case Init:
		return "INIT"
	case WaitDiag:
		return "WAIT_DIAG"
	case WaitPrm:
		return "WAIT_PRM"
	case WaitCfg:
		return "WAIT_CFG"
	case WaitDiag2:
		return "WAIT_DIAG2"
	case DataEx:
		return "DATA_EX"
	case DiagEx:
		return "DIAG_EX"
	case Fault:
		return "FAULT"
	default:
		return "UNKNOWN"
	}
}

// IsConnecting reports whether s is one of INIT..WAIT_DIAG2.
func (s State) IsConnecting() bool {
	return s >= Init && s <= WaitDiag2
}

// IsConnected reports whether s is DATA_EX or DIAG_EX.
func (s State) IsConnected() bool {
	return s == DataEx || s == DiagEx
}

// SlaveDesc is immutable per-slave configuration, owned by the master for
// the slave's whole lifetime; derived from GSD data at configuration time
// (see internal/gsd).
type SlaveDesc struct {
	Addr         byte
	IdentNumber  uint16
	UserPrmData  []byte // <= 237 bytes
	CfgData      []byte // <= 244 bytes
	InputSize    int
	OutputSize   int
	WatchdogMs   int // 0 disables
	GroupMask    byte
	SyncCapable  bool
	FreezeCapable bool
	DiagPeriod   int // n successful Data_Exchange rounds between periodic diag; 0 = on-demand only
	Name         string
}

// SlaveRuntime is the mutable per-slave state: lifecycle state, last
// diagnosis, IO buffers, retry bookkeeping. Created on registration,
// discarded on master teardown.
type SlaveRuntime struct {
	Desc *SlaveDesc

	State State

	LastDiag   []byte
	outputs    []byte // master -> slave, written by the application
	inputs     []byte // slave -> master, latched on RX

	FrameCountBit bool
	RetryCount    int
	FaultStreak   int

	DiagTelegramCount int
	SinceDiagRounds   int

	FaultSince time.Time

	HighPriorityPending bool
}

// NewSlaveRuntime creates a fresh runtime for desc, starting OFFLINE.
func NewSlaveRuntime(desc *SlaveDesc) *SlaveRuntime {
	return &SlaveRuntime{
		Desc:    desc,
		State:   Offline,
		outputs: make([]byte, desc.OutputSize),
		inputs:  make([]byte, desc.InputSize),
	}
}

// SetOutputs copies new output bytes for the next Data_Exchange TX. Safe
// to call from the application thread while the scheduler is between
// ticks (spec.md §5: output buffers are copied at TX build time).
func (r *SlaveRuntime) SetOutputs(data []byte) {
	buf := make([]byte, len(r.outputs))
	copy(buf, data)
	r.outputs = buf
}

// snapshotOutputs returns the bytes to transmit on the next Data_Exchange.
func (r *SlaveRuntime) snapshotOutputs() []byte {
	out := make([]byte, len(r.outputs))
	copy(out, r.outputs)
	return out
}

// Inputs returns the latest latched slave->master input bytes. Readers
// see either the previous or the new frame, never a mix (single-writer,
// single-reader atomic swap per spec.md §4.4/§5).
func (r *SlaveRuntime) Inputs() []byte {
	out := make([]byte, len(r.inputs))
	copy(out, r.inputs)
	return out
}

// latchInputs atomically replaces the input buffer with freshly received
// data.
func (r *SlaveRuntime) latchInputs(data []byte) {
	buf := make([]byte, len(r.inputs))
	copy(buf, data)
	r.inputs = buf
}
