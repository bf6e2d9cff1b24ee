package fdl

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbuesch/godp/internal/phy"
)

// silentTransceiver never produces a reply; every SubmitRequest against it
// must time out after exhausting retries.
type silentTransceiver struct {
	mu   sync.Mutex
	sent int
}

func (s *silentTransceiver) Open(ctx context.Context, baud int) error { return nil }
func (s *silentTransceiver) Close() error                             { return nil }
func (s *silentTransceiver) FlushRx()                                 {}
func (s *silentTransceiver) SetTxEnable(bool) error                   { return nil }
func (s *silentTransceiver) IdleSince() time.Duration                 { return time.Second }
func (s *silentTransceiver) LastTxTime() time.Time                    { return time.Time{} }
func (s *silentTransceiver) Stats() phy.Stats                         { return phy.Stats{} }
func (s *silentTransceiver) Poll() []byte                             { return nil }
func (s *silentTransceiver) Send(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent++
	return nil
}
func (s *silentTransceiver) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

// echoTransceiver hands back a fixed reply telegram on every Send,
// regardless of what was sent, to exercise the success and NO_SERVICE
// paths without a full virtual-slave decode loop.
type echoTransceiver struct {
	mu      sync.Mutex
	reply   []byte
	rxQueue []byte
}

func (e *echoTransceiver) Open(ctx context.Context, baud int) error { return nil }
func (e *echoTransceiver) Close() error                             { return nil }
func (e *echoTransceiver) FlushRx()                                 {}
func (e *echoTransceiver) SetTxEnable(bool) error                   { return nil }
func (e *echoTransceiver) IdleSince() time.Duration                 { return time.Second }
func (e *echoTransceiver) LastTxTime() time.Time                    { return time.Time{} }
func (e *echoTransceiver) Stats() phy.Stats                         { return phy.Stats{} }
func (e *echoTransceiver) Send(ctx context.Context, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rxQueue = append(e.rxQueue, e.reply...)
	return nil
}
func (e *echoTransceiver) Poll() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.rxQueue
	e.rxQueue = nil
	return out
}

func Test_submitRequestTimesOutAfterRetriesExhausted(t *testing.T) {
	tr := &silentTransceiver{}
	s := NewStation(tr, 1, Profile{Tslot: 2 * time.Millisecond})

	resp := s.SubmitRequest(context.Background(), NewShort(StationAddr(8, false), StationAddr(1, false), FcReqFDLStatus), true, 3)
	assert.Equal(t, OutcomeTimeout, resp.Outcome)
	assert.Equal(t, 4, tr.sentCount(), "expected the initial attempt plus 3 retries")
}

func Test_submitRequestNoReplyExpectedReturnsImmediately(t *testing.T) {
	tr := &silentTransceiver{}
	s := NewStation(tr, 1, Profile{Tslot: 2 * time.Millisecond})

	resp := s.SubmitRequest(context.Background(), NewShort(StationAddr(8, false), StationAddr(1, false), FcReqFDLStatus), false, 3)
	assert.Equal(t, OutcomeNoReply, resp.Outcome)
	assert.Equal(t, 1, tr.sentCount())
}

func Test_submitRequestSucceedsOnMatchingReply(t *testing.T) {
	replyTg := NewShort(StationAddr(1, false), StationAddr(8, false), FcRspAckOK)
	b, err := Encode(replyTg)
	require.NoError(t, err)
	tr := &echoTransceiver{reply: b}
	s := NewStation(tr, 1, Profile{Tslot: 20 * time.Millisecond})

	resp := s.SubmitRequest(context.Background(), NewShort(StationAddr(8, false), StationAddr(1, false), FcReqFDLStatus), true, 3)
	require.Equal(t, OutcomeOK, resp.Outcome)
	assert.Equal(t, byte(FcRspAckOK), resp.Telegram.FC)
}

func Test_submitRequestSurfacesNoResourceWithoutRetry(t *testing.T) {
	replyTg := NewShort(StationAddr(1, false), StationAddr(8, false), FcRspNoResource)
	b, err := Encode(replyTg)
	require.NoError(t, err)
	tr := &echoTransceiver{reply: b}
	s := NewStation(tr, 1, Profile{Tslot: 20 * time.Millisecond})

	resp := s.SubmitRequest(context.Background(), NewVariable(StationAddr(8, false), StationAddr(1, false), FcReqSRDLow, nil, nil, []byte{0xAA}), true, 3)
	require.Equal(t, OutcomeOK, resp.Outcome, "NO_RESOURCE is a valid Data_Exchange-layer outcome, not a retry trigger")
	assert.Equal(t, byte(FcRspNoResource), resp.Telegram.FC&0x0F)
}

func Test_submitRequestSurfacesNoServiceAsFDLError(t *testing.T) {
	replyTg := NewShort(StationAddr(1, false), StationAddr(8, false), FcRspNoService)
	b, err := Encode(replyTg)
	require.NoError(t, err)
	tr := &echoTransceiver{reply: b}
	s := NewStation(tr, 1, Profile{Tslot: 20 * time.Millisecond})

	resp := s.SubmitRequest(context.Background(), NewShort(StationAddr(8, false), StationAddr(1, false), FcReqFDLStatus), true, 3)
	assert.Equal(t, OutcomeFDLError, resp.Outcome)
	assert.ErrorIs(t, resp.Err, ErrNoService)
}

func Test_toggleFrameCountBitAltersBetweenExchanges(t *testing.T) {
	tr := &silentTransceiver{}
	s := NewStation(tr, 1, Profile{Tslot: time.Millisecond})

	require.False(t, s.frameCountBit(8))
	s.toggleFrameCountBit(8)
	assert.True(t, s.frameCountBit(8))
	s.toggleFrameCountBit(8)
	assert.False(t, s.frameCountBit(8))
}
