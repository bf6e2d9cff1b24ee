package dp

import (
	"context"

	"github.com/mbuesch/godp/internal/fdl"
)

// groupControlState tracks the last Sync/Unsync and Freeze/Unfreeze
// commanded to one groupMask, since a Global_Control telegram's command
// byte always carries both and the two are otherwise independent.
type groupControlState struct {
	sync   bool
	freeze bool
}

// Global_Control command bits (DSAP 57), per spec.md §6 SAP map and the
// Open Question in §9 resolved toward a full implementation rather than
// refusing sync_mode/freeze_mode.
const (
	gcClearData = 1 << 0
	gcUnfreeze  = 1 << 3
	gcFreeze    = 1 << 4
	gcUnsync    = 1 << 5
	gcSync      = 1 << 6
)

// GlobalControl broadcasts a Global_Control telegram addressed to the
// slaves matching groupMask. It is an SDN (send-no-reply) service: no
// slave acknowledges it individually.
//
// sync and freeze each carry three states via *bool: nil leaves that
// mode's last commanded state untouched (the control byte repeats
// whatever Sync/Unsync or Freeze/Unfreeze was last issued to this
// groupMask), since the two modes are independent but share one
// telegram's command byte.
func (m *Master) GlobalControl(ctx context.Context, groupMask byte, sync, freeze *bool, clearData bool) error {
	m.mu.Lock()
	state := m.groupState(groupMask)
	if sync != nil {
		state.sync = *sync
	}
	if freeze != nil {
		state.freeze = *freeze
	}
	m.mu.Unlock()

	var cmd byte
	if clearData {
		cmd |= gcClearData
	}
	if state.sync {
		cmd |= gcSync
	} else {
		cmd |= gcUnsync
	}
	if state.freeze {
		cmd |= gcFreeze
	} else {
		cmd |= gcUnfreeze
	}

	da := fdl.StationAddr(127, true) // broadcast address, EXT set for the SAP pair
	dsap, ssap := byte(fdl.DsapGlobalCtrl), byte(0)
	du := []byte{groupMask, cmd}
	req := fdl.NewVariable(da, fdl.StationAddr(m.Addr, true), fdl.FcReqSDNLow, &dsap, &ssap, du)

	resp := m.station.SubmitRequest(ctx, req, false, 0)
	if resp.Outcome == fdl.OutcomeFDLError {
		return resp.Err
	}
	return nil
}

func (m *Master) groupState(groupMask byte) *groupControlState {
	if m.groupControl == nil {
		m.groupControl = make(map[byte]*groupControlState)
	}
	s, ok := m.groupControl[groupMask]
	if !ok {
		s = &groupControlState{}
		m.groupControl[groupMask] = s
	}
	return s
}

func boolPtr(b bool) *bool { return &b }

// Sync issues Global_Control SYNC to the slaves matching groupMask,
// preserving that group's last commanded freeze state. Only slaves whose
// SlaveDesc.SyncCapable is true should be included in that group by
// configuration.
func (m *Master) Sync(ctx context.Context, groupMask byte) error {
	return m.GlobalControl(ctx, groupMask, boolPtr(true), nil, false)
}

// Unsync issues Global_Control UNSYNC, preserving the last commanded
// freeze state.
func (m *Master) Unsync(ctx context.Context, groupMask byte) error {
	return m.GlobalControl(ctx, groupMask, boolPtr(false), nil, false)
}

// Freeze issues Global_Control FREEZE, preserving the last commanded sync
// state. Only slaves whose SlaveDesc.FreezeCapable is true should be
// included in that group by configuration.
func (m *Master) Freeze(ctx context.Context, groupMask byte) error {
	return m.GlobalControl(ctx, groupMask, nil, boolPtr(true), false)
}

// Unfreeze issues Global_Control UNFREEZE, preserving the last commanded
// sync state.
func (m *Master) Unfreeze(ctx context.Context, groupMask byte) error {
	return m.GlobalControl(ctx, groupMask, nil, boolPtr(false), false)
}
