package dp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbuesch/godp/internal/fdl"
	"github.com/mbuesch/godp/internal/phy"
)

// capturingTransceiver records every payload handed to Send so the test
// can decode and inspect the Global_Control command byte.
type capturingTransceiver struct {
	sent [][]byte
}

func (c *capturingTransceiver) Open(ctx context.Context, baud int) error { return nil }
func (c *capturingTransceiver) Close() error                             { return nil }
func (c *capturingTransceiver) FlushRx()                                 {}
func (c *capturingTransceiver) SetTxEnable(bool) error                   { return nil }
func (c *capturingTransceiver) IdleSince() time.Duration                 { return time.Second }
func (c *capturingTransceiver) LastTxTime() time.Time                    { return time.Time{} }
func (c *capturingTransceiver) Stats() phy.Stats                         { return phy.Stats{} }
func (c *capturingTransceiver) Poll() []byte                             { return nil }
func (c *capturingTransceiver) Send(ctx context.Context, data []byte) error {
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *capturingTransceiver) lastCommandByte(t *testing.T) byte {
	t.Helper()
	require.NotEmpty(t, c.sent)
	raw := c.sent[len(c.sent)-1]
	d := fdl.NewDecoder()
	var got *fdl.Telegram
	now := time.Now()
	for _, b := range raw {
		ev := d.Feed(b, now)
		if ev.Kind == fdl.EventTelegram {
			got = ev.Telegram
		}
	}
	require.NotNil(t, got, "expected a decodable telegram")
	require.True(t, got.HasSAP)
	require.Len(t, got.DU, 2)
	return got.DU[1]
}

func Test_syncThenFreezePreservesSyncState(t *testing.T) {
	tr := &capturingTransceiver{}
	m := NewMaster(1, tr, fdl.Profile{Tslot: time.Millisecond})

	require.NoError(t, m.Sync(context.Background(), 0x01))
	cmd := tr.lastCommandByte(t)
	assert.NotZero(t, cmd&gcSync)
	assert.NotZero(t, cmd&gcUnfreeze, "freeze state defaults to unfrozen")

	require.NoError(t, m.Freeze(context.Background(), 0x01))
	cmd = tr.lastCommandByte(t)
	assert.NotZero(t, cmd&gcFreeze)
	assert.NotZero(t, cmd&gcSync, "a later Freeze must not clear the earlier Sync")
}

func Test_unsyncDoesNotDisturbFreezeState(t *testing.T) {
	tr := &capturingTransceiver{}
	m := NewMaster(1, tr, fdl.Profile{Tslot: time.Millisecond})

	require.NoError(t, m.Freeze(context.Background(), 0x02))
	require.NoError(t, m.Unsync(context.Background(), 0x02))
	cmd := tr.lastCommandByte(t)
	assert.NotZero(t, cmd&gcUnsync)
	assert.NotZero(t, cmd&gcFreeze, "Unsync must not clear an earlier Freeze")
}

func Test_groupControlStatesAreIndependentPerGroupMask(t *testing.T) {
	tr := &capturingTransceiver{}
	m := NewMaster(1, tr, fdl.Profile{Tslot: time.Millisecond})

	require.NoError(t, m.Sync(context.Background(), 0x01))
	require.NoError(t, m.Unsync(context.Background(), 0x02))
	cmd := tr.lastCommandByte(t)
	assert.NotZero(t, cmd&gcUnsync, "group 0x02 was never synced")
}
