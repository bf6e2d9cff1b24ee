package dp

import (
	"context"
	"time"

	"github.com/mbuesch/godp/internal/dplog"
	"github.com/mbuesch/godp/internal/fdl"
)

var log = dplog.For("dp")

// Error is the DPError taxonomy member: slave rejected SetPrm/ChkCfg,
// diagnosis indicates Cfg_Fault/Prm_Fault, watchdog expired, unexpected
// FC response.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "dp: " + e.Reason }

// FaultCooldown is the default FAULT -> INIT delay (spec.md §4.4).
const FaultCooldown = 1 * time.Second

// Retries is the default FDL retry budget per request.
const Retries = 3

// ssapDefault is the SSAP value the master uses for all requests (it has
// no SAP of its own that the slave needs to address back).
const ssapDefault = 0

// Machine drives one slave's lifecycle. It issues at most one FDL request
// per Step call, exactly mirroring the DP master scheduler's one-request-
// per-tick contract (spec.md §4.5).
type Machine struct {
	station *fdl.Station
	rt      *SlaveRuntime
	masterAddr byte
}

// NewMachine binds a state machine to a slave runtime and the station it
// issues FDL requests through.
func NewMachine(station *fdl.Station, rt *SlaveRuntime, masterAddr byte) *Machine {
	return &Machine{station: station, rt: rt, masterAddr: masterAddr}
}

// Step issues the one FDL service appropriate to the runtime's current
// state and applies the resulting transition. It returns true if the
// state changed.
func (m *Machine) Step(ctx context.Context) bool {
	before := m.rt.State
	switch before {
	case Offline:
		m.rt.State = Init
	case Init:
		m.stepInit(ctx)
	case WaitDiag:
		m.stepWaitDiag(ctx)
	case WaitPrm:
		m.stepWaitPrm(ctx)
	case WaitCfg:
		m.stepWaitCfg(ctx)
	case WaitDiag2:
		m.stepWaitDiag2(ctx)
	case DataEx:
		m.stepDataEx(ctx)
	case DiagEx:
		m.stepDiagEx(ctx)
	case Fault:
		m.stepFault()
	}
	return m.rt.State != before
}

func (m *Machine) toFault(reason string) {
	log.Warn("slave fault", "addr", m.rt.Desc.Addr, "reason", reason, "from", m.rt.State)
	m.rt.State = Fault
	m.rt.FaultSince = time.Now()
	m.rt.FaultStreak++
	m.rt.RetryCount = 0
}

func (m *Machine) onTimeoutOrError(resp fdl.Response, reason string) bool {
	switch resp.Outcome {
	case fdl.OutcomeTimeout:
		m.rt.RetryCount++
		if m.rt.RetryCount > Retries {
			m.toFault("retries exhausted: " + reason)
			return true
		}
		return true
	case fdl.OutcomeFDLError:
		m.toFault("fdl error: " + reason)
		return true
	}
	return false
}

func (m *Machine) stepInit(ctx context.Context) {
	req := fdl.NewShort(fdl.StationAddr(m.rt.Desc.Addr, false), fdl.StationAddr(m.masterAddr, false), fdl.FcReqFDLStatus)
	resp := m.station.SubmitRequest(ctx, req, true, Retries)
	if m.onTimeoutOrError(resp, "FDL_STATUS") {
		return
	}
	if resp.Outcome == fdl.OutcomeOK {
		m.rt.RetryCount = 0
		m.rt.State = WaitDiag
	}
}

func (m *Machine) slaveDiagRequest() *fdl.Telegram {
	dsap, ssap := byte(fdl.DsapSlaveDiag), byte(ssapDefault)
	return fdl.NewVariable(
		fdl.StationAddr(m.rt.Desc.Addr, true), fdl.StationAddr(m.masterAddr, true),
		fdl.FcReqSRDLow, &dsap, &ssap, nil)
}

func (m *Machine) stepWaitDiag(ctx context.Context) {
	resp := m.station.SubmitRequest(ctx, m.slaveDiagRequest(), true, Retries)
	if m.onTimeoutOrError(resp, "SlaveDiag_Req") {
		return
	}
	m.rt.RetryCount = 0
	diag := ParseDiag(resp.Telegram.DU)
	m.rt.LastDiag = diag.Raw
	if !diag.StationNonExistent {
		m.rt.State = WaitPrm
	}
}

func (m *Machine) setPrmRequest() *fdl.Telegram {
	du := make([]byte, 0, 7+len(m.rt.Desc.UserPrmData))
	wd := m.rt.Desc.WatchdogMs
	wdFact1, wdFact2 := watchdogFactors(wd)
	var stationStatus byte
	if wd > 0 {
		stationStatus |= 0x08 // WD_On
	}
	if m.rt.Desc.SyncCapable {
		// no station-status bit; sync/freeze enablement is carried via
		// Global_Control, not SetPrm, per spec.md DESIGN note resolution.
	}
	du = append(du, stationStatus, wdFact1, wdFact2, 0 /*min TSDR*/)
	identHi, identLo := byte(m.rt.Desc.IdentNumber>>8), byte(m.rt.Desc.IdentNumber)
	du = append(du, identHi, identLo, m.rt.Desc.GroupMask)
	du = append(du, m.rt.Desc.UserPrmData...)

	dsap, ssap := byte(fdl.DsapSetPrm), byte(ssapDefault)
	return fdl.NewVariable(
		fdl.StationAddr(m.rt.Desc.Addr, true), fdl.StationAddr(m.masterAddr, true),
		fdl.FcReqSRDLow, &dsap, &ssap, du)
}

// watchdogFactors splits a watchdog period in ms into the standard
// PROFIBUS two-byte (base*10ms, factor) encoding.
func watchdogFactors(ms int) (fact1, fact2 byte) {
	if ms <= 0 {
		return 1, 1
	}
	tenMs := ms / 10
	if tenMs < 1 {
		tenMs = 1
	}
	f2 := tenMs
	f1 := 1
	for f2 > 255 {
		f2 /= 10
		f1 *= 10
	}
	if f1 > 255 {
		f1 = 255
	}
	if f2 > 255 {
		f2 = 255
	}
	return byte(f1), byte(f2)
}

func (m *Machine) stepWaitPrm(ctx context.Context) {
	resp := m.station.SubmitRequest(ctx, m.setPrmRequest(), true, Retries)
	if m.onTimeoutOrError(resp, "SetPrm_Req") {
		return
	}
	m.rt.RetryCount = 0
	if resp.Telegram.FC&0x0F == fdl.FcRspAckOK {
		m.rt.State = WaitCfg
	} else {
		m.toFault("SetPrm rejected")
	}
}

func (m *Machine) chkCfgRequest() *fdl.Telegram {
	dsap, ssap := byte(fdl.DsapChkCfg), byte(ssapDefault)
	return fdl.NewVariable(
		fdl.StationAddr(m.rt.Desc.Addr, true), fdl.StationAddr(m.masterAddr, true),
		fdl.FcReqSRDLow, &dsap, &ssap, m.rt.Desc.CfgData)
}

func (m *Machine) stepWaitCfg(ctx context.Context) {
	resp := m.station.SubmitRequest(ctx, m.chkCfgRequest(), true, Retries)
	if m.onTimeoutOrError(resp, "ChkCfg_Req") {
		return
	}
	m.rt.RetryCount = 0
	if resp.Telegram.FC&0x0F == fdl.FcRspAckOK {
		m.rt.State = WaitDiag2
	} else {
		m.toFault("ChkCfg rejected")
	}
}

func (m *Machine) stepWaitDiag2(ctx context.Context) {
	resp := m.station.SubmitRequest(ctx, m.slaveDiagRequest(), true, Retries)
	if m.onTimeoutOrError(resp, "SlaveDiag_Req(2)") {
		return
	}
	m.rt.RetryCount = 0
	diag := ParseDiag(resp.Telegram.DU)
	m.rt.LastDiag = diag.Raw
	if diag.CfgFault {
		m.toFault("Cfg_Fault in post-cfg diagnosis")
		return
	}
	if diag.Ready() {
		m.rt.State = DataEx
		m.rt.SinceDiagRounds = 0
	}
}

func (m *Machine) dataExchangeRequest() *fdl.Telegram {
	return fdl.NewVariable(
		fdl.StationAddr(m.rt.Desc.Addr, false), fdl.StationAddr(m.masterAddr, false),
		fdl.FcReqSRDLow, nil, nil, m.rt.snapshotOutputs())
}

func (m *Machine) stepDataEx(ctx context.Context) {
	resp := m.station.SubmitRequest(ctx, m.dataExchangeRequest(), true, Retries)
	switch resp.Outcome {
	case fdl.OutcomeTimeout:
		m.rt.RetryCount++
		if m.rt.RetryCount > Retries {
			m.rt.State = WaitDiag
			m.rt.RetryCount = 0
		}
		return
	case fdl.OutcomeFDLError:
		m.rt.State = WaitDiag
		return
	}
	m.rt.RetryCount = 0
	fc := resp.Telegram.FC & 0x0F
	if fc == fdl.FcRspNoResource {
		// Watchdog expired on the slave side; reparameterize.
		m.rt.State = WaitDiag
		return
	}
	m.rt.latchInputs(resp.Telegram.DU)

	highPriority := resp.Telegram.FC&0x20 != 0 // high-priority / diag-pending bit within response FC
	m.rt.SinceDiagRounds++

	needsDiag := highPriority
	if m.rt.Desc.DiagPeriod > 0 && m.rt.SinceDiagRounds >= m.rt.Desc.DiagPeriod {
		needsDiag = true
	}
	if needsDiag {
		m.rt.HighPriorityPending = highPriority
		m.rt.State = DiagEx
	}
}

func (m *Machine) stepDiagEx(ctx context.Context) {
	resp := m.station.SubmitRequest(ctx, m.slaveDiagRequest(), true, Retries)
	if m.onTimeoutOrError(resp, "SlaveDiag_Req(cyclic)") {
		return
	}
	m.rt.RetryCount = 0
	diag := ParseDiag(resp.Telegram.DU)
	m.rt.LastDiag = diag.Raw
	m.rt.DiagTelegramCount++
	m.rt.SinceDiagRounds = 0
	m.rt.HighPriorityPending = false
	if diag.CfgFault || diag.PrmFault {
		m.toFault("fault flagged in cyclic diagnosis")
		return
	}
	m.rt.State = DataEx
}

func (m *Machine) stepFault() {
	if time.Since(m.rt.FaultSince) >= FaultCooldown {
		m.rt.State = Init
	}
}
