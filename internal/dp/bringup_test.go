package dp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbuesch/godp/internal/fdl"
	"github.com/mbuesch/godp/internal/phy"
)

// virtualSlave is a test-only phy.Transceiver that plays the part of a
// single compliant PROFIBUS slave: it decodes whatever the station
// writes, crafts the appropriate positive response, and hands it back on
// the next Poll. It exists so the DP state machine can be exercised
// end-to-end (spec.md §8 boundary scenarios 4-6) without a real line.
type virtualSlave struct {
	mu      sync.Mutex
	baud    int
	idleRef time.Time
	lastTx  time.Time
	rxQueue []byte
	dec     *fdl.Decoder

	masterAddr byte
	slaveAddr  byte

	// behavior knobs for the scenarios
	diagReady       bool
	noResourceOnce  bool
	highPriorityOnce bool
}

func newVirtualSlave(masterAddr, slaveAddr byte) *virtualSlave {
	return &virtualSlave{
		dec:        fdl.NewDecoder(),
		masterAddr: masterAddr,
		slaveAddr:  slaveAddr,
		idleRef:    time.Now(),
	}
}

func (v *virtualSlave) Open(ctx context.Context, baud int) error { v.baud = baud; return nil }
func (v *virtualSlave) Close() error                              { return nil }
func (v *virtualSlave) FlushRx()                                  {}
func (v *virtualSlave) SetTxEnable(bool) error                    { return nil }
func (v *virtualSlave) IdleSince() time.Duration                  { return time.Since(v.idleRef) }
func (v *virtualSlave) LastTxTime() time.Time                     { return v.lastTx }
func (v *virtualSlave) Stats() phy.Stats                          { return phy.Stats{} }

func (v *virtualSlave) Send(ctx context.Context, data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastTx = time.Now()
	now := time.Now()
	for _, b := range data {
		ev := v.dec.Feed(b, now)
		if ev.Kind == fdl.EventTelegram {
			v.handle(ev.Telegram)
		}
	}
	return nil
}

func (v *virtualSlave) Poll() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.rxQueue) == 0 {
		return nil
	}
	out := v.rxQueue
	v.rxQueue = nil
	v.idleRef = time.Now()
	return out
}

func (v *virtualSlave) reply(t *fdl.Telegram) {
	b, err := fdl.Encode(t)
	if err != nil {
		return
	}
	v.rxQueue = append(v.rxQueue, b...)
}

func (v *virtualSlave) handle(req *fdl.Telegram) {
	da, _ := fdl.SplitStationAddr(req.DA)
	sa, _ := fdl.SplitStationAddr(req.SA)
	if da != v.slaveAddr || sa != v.masterAddr {
		return
	}

	switch {
	case req.FC&0x0F == fdl.FcReqFDLStatus&0x0F && !req.HasSAP:
		resp := fdl.NewShort(fdl.StationAddr(v.masterAddr, false), fdl.StationAddr(v.slaveAddr, false), fdl.FcRspAckOK)
		v.reply(resp)

	case req.HasSAP && req.DSAP == fdl.DsapSlaveDiag:
		var du []byte
		if v.diagReady {
			du = []byte{0x00, 0x00}
		} else {
			du = []byte{0x00, 0x80} // Prm_Req set
		}
		dsap, ssap := req.SSAP, req.DSAP
		resp := fdl.NewVariable(fdl.StationAddr(v.masterAddr, true), fdl.StationAddr(v.slaveAddr, true), fdl.FcRspDataLow, &dsap, &ssap, du)
		v.reply(resp)

	case req.HasSAP && req.DSAP == fdl.DsapSetPrm:
		v.diagReady = true
		resp := fdl.NewShort(fdl.StationAddr(v.masterAddr, false), fdl.StationAddr(v.slaveAddr, false), fdl.FcRspAckOK)
		v.reply(resp)

	case req.HasSAP && req.DSAP == fdl.DsapChkCfg:
		resp := fdl.NewShort(fdl.StationAddr(v.masterAddr, false), fdl.StationAddr(v.slaveAddr, false), fdl.FcRspAckOK)
		v.reply(resp)

	case !req.HasSAP:
		// Data_Exchange.
		if v.noResourceOnce {
			v.noResourceOnce = false
			resp := fdl.NewShort(fdl.StationAddr(v.masterAddr, false), fdl.StationAddr(v.slaveAddr, false), fdl.FcRspNoResource)
			v.reply(resp)
			return
		}
		fc := byte(fdl.FcRspDataLow)
		if v.highPriorityOnce {
			v.highPriorityOnce = false
			fc |= 0x20
		}
		resp := fdl.NewVariable(fdl.StationAddr(v.masterAddr, false), fdl.StationAddr(v.slaveAddr, false), fc, nil, nil, []byte{0xAA})
		v.reply(resp)
	}
}

func newTestMaster(vs *virtualSlave) *Master {
	profile := fdl.Profile{Baud: 187500, Tslot: 5 * time.Millisecond, Tqui: 0, Tsyn: 0, TsdrMax: 5 * time.Millisecond}
	return NewMaster(1, vs, profile)
}

func Test_bringUpReachesDataExWithinBoundedTicks(t *testing.T) {
	vs := newVirtualSlave(1, 8)
	m := newTestMaster(vs)
	rt := m.AddSlave(&SlaveDesc{Addr: 8, IdentNumber: 0xBEEF, InputSize: 1, OutputSize: 1})

	ctx := context.Background()
	reached := false
	for i := 0; i < 20; i++ {
		m.Tick(ctx)
		if rt.State == DataEx {
			reached = true
			break
		}
	}
	require.True(t, reached, "expected DATA_EX within 20 ticks, got state %s", rt.State)
	assert.True(t, m.IsConnected())
}

func Test_noResourceReturnsToWaitDiagThenRecovers(t *testing.T) {
	vs := newVirtualSlave(1, 8)
	m := newTestMaster(vs)
	rt := m.AddSlave(&SlaveDesc{Addr: 8, IdentNumber: 0xBEEF, InputSize: 1, OutputSize: 1})

	ctx := context.Background()
	for i := 0; i < 20 && rt.State != DataEx; i++ {
		m.Tick(ctx)
	}
	require.Equal(t, DataEx, rt.State)

	vs.noResourceOnce = true
	m.Tick(ctx) // consumes the NO_RESOURCE response, should fall back to WAIT_DIAG
	assert.Equal(t, WaitDiag, rt.State)

	reconnected := false
	for i := 0; i < 10; i++ {
		m.Tick(ctx)
		if rt.State == DataEx {
			reconnected = true
			break
		}
	}
	assert.True(t, reconnected, "expected to reach DATA_EX again within 10 ticks")
}

func Test_highPriorityTriggersDiagBeforeNextDataExchange(t *testing.T) {
	vs := newVirtualSlave(1, 8)
	m := newTestMaster(vs)
	rt := m.AddSlave(&SlaveDesc{Addr: 8, IdentNumber: 0xBEEF, InputSize: 1, OutputSize: 1})

	ctx := context.Background()
	for i := 0; i < 20 && rt.State != DataEx; i++ {
		m.Tick(ctx)
	}
	require.Equal(t, DataEx, rt.State)

	vs.highPriorityOnce = true
	m.Tick(ctx) // consumes the high-priority Data_Exchange response
	assert.Equal(t, DiagEx, rt.State)

	m.Tick(ctx) // services the diagnosis read
	assert.Equal(t, DataEx, rt.State)
}
