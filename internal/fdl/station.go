package fdl

import (
	"context"
	"errors"
	"time"

	"github.com/mbuesch/godp/internal/dplog"
	"github.com/mbuesch/godp/internal/phy"
)

var log = dplog.For("fdl")

// Error is the FDLError taxonomy member: bad FCS/LE/ED, unexpected SA/DA,
// slot timeout, retries exhausted.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "fdl: " + e.Reason }

// ErrTimeout is returned when a request's retries are exhausted without a
// matching response.
var ErrTimeout = errors.New("fdl: slot timeout, retries exhausted")

// ErrNoService is returned on a response whose FC function nibble is
// FcRspNoService; it is not retried. Other negative responses are handed
// to the caller as ordinary telegrams.
var ErrNoService = &Error{Reason: "NO_SERVICE or unsupported negative response"}

// Outcome is the result of a completed request.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeNoReply // expectResponse was false; request is SDN-class
	OutcomeTimeout
	OutcomeFDLError
)

// Response carries the result of SubmitRequest.
type Response struct {
	Outcome  Outcome
	Telegram *Telegram // nil unless Outcome == OutcomeOK
	Err      error
}

// Profile holds the timing parameters derived once per baud-rate change,
// per spec.md §9 "Timing precision".
type Profile struct {
	Baud      int
	Tslot     time.Duration
	TsdrMin   time.Duration
	TsdrMax   time.Duration
	Tqui      time.Duration
	Tsyn      time.Duration
}

// NewProfile derives a timing profile from a baud rate using the default
// PROFIBUS slot-time table (100 bit times at <=187.5 kBd, scaled up at
// higher rates per spec.md §4.3).
func NewProfile(baud int) Profile {
	bt := phy.BitTime(baud)
	slotBits := 100
	if baud > 187500 {
		slotBits = 400
	}
	return Profile{
		Baud:    baud,
		Tslot:   time.Duration(slotBits) * bt,
		TsdrMin: 11 * bt,
		TsdrMax: time.Duration(slotBits) * bt,
		Tqui:    0,
		Tsyn:    33 * bt,
	}
}

// fcbKey identifies the (sa,da) peer pair the frame-count bit is tracked
// per, per spec.md §4.3 "Frame-count bit".
type fcbKey struct{ sa, da byte }

// Station owns one master's FDL send/receive loop: it transmits at most
// one outstanding request at a time, matches the reply against the
// outstanding request, and drives retries.
type Station struct {
	t       phy.Transceiver
	dec     *Decoder
	ownAddr byte
	profile Profile

	fcb map[fcbKey]bool
}

// NewStation binds a Station to a transceiver already Open'd by the
// caller, for master address ownAddr.
func NewStation(t phy.Transceiver, ownAddr byte, profile Profile) *Station {
	return &Station{
		t:       t,
		dec:     NewDecoder(),
		ownAddr: ownAddr,
		profile: profile,
		fcb:     make(map[fcbKey]bool),
	}
}

// SetProfile updates the timing profile, e.g. after a baud-rate change.
func (s *Station) SetProfile(p Profile) { s.profile = p }

// frameCountBit returns the bit currently expected for requests to da.
func (s *Station) frameCountBit(da byte) bool {
	return s.fcb[fcbKey{sa: s.ownAddr, da: da}]
}

func (s *Station) toggleFrameCountBit(da byte) {
	k := fcbKey{sa: s.ownAddr, da: da}
	s.fcb[k] = !s.fcb[k]
}

// SubmitRequest sends telegram (stamping in the tracked frame-count bit)
// and, if expectResponse, waits up to slotTime for a matching reply,
// retrying up to retries times on timeout with the frame-count bit held
// unchanged (the standard PROFIBUS request-repeat rule).
func (s *Station) SubmitRequest(ctx context.Context, telegram *Telegram, expectResponse bool, retries int) Response {
	da, _ := SplitStationAddr(telegram.DA)
	req := telegram.WithFCB(s.frameCountBit(da))

	attempt := 0
	for {
		if err := s.send(ctx, req); err != nil {
			return Response{Outcome: OutcomeFDLError, Err: err}
		}
		if !expectResponse {
			return Response{Outcome: OutcomeNoReply}
		}

		resp, err := s.awaitResponse(ctx, req, da)
		switch {
		case err == nil:
			s.toggleFrameCountBit(da)
			return Response{Outcome: OutcomeOK, Telegram: resp}
		case errors.Is(err, ErrNoService):
			return Response{Outcome: OutcomeFDLError, Err: err}
		default:
			attempt++
			if attempt > retries {
				return Response{Outcome: OutcomeTimeout, Err: ErrTimeout}
			}
			log.Debug("slot timeout, retrying", "da", da, "attempt", attempt)
			continue
		}
	}
}

func (s *Station) send(ctx context.Context, t *Telegram) error {
	bytes, err := Encode(t)
	if err != nil {
		return &Error{Reason: err.Error()}
	}
	if err := s.t.Send(ctx, bytes); err != nil {
		return &Error{Reason: err.Error()}
	}
	return nil
}

// awaitResponse feeds RX bytes to the decoder until a telegram addressed
// to us from the peer arrives, Tslot elapses, or a NO_SERVICE response is
// seen. The response's FC frame-count bit is not compared with the
// request's.
func (s *Station) awaitResponse(ctx context.Context, req *Telegram, peerDA byte) (*Telegram, error) {
	deadline := time.Now().Add(s.profile.Tslot)
	for {
		now := time.Now()
		if now.After(deadline) {
			return nil, ErrTimeout
		}

		for _, b := range s.t.Poll() {
			ev := s.dec.Feed(b, now)
			if ev.Kind != EventTelegram {
				continue
			}
			t := ev.Telegram
			if !s.matches(t, req, peerDA) {
				continue
			}
			// NO_RESOURCE is a valid Data_Exchange-layer outcome (the
			// slave is telling us it isn't ready, e.g. after a
			// watchdog trip) and is handed to the caller like any
			// other telegram; only NO_SERVICE aborts the exchange
			// outright, since it means the requested SAP doesn't
			// exist on the peer at all.
			if (t.SD == SD1 || t.SD == SD2) && t.FC&0x0F == FcRspNoService {
				return nil, ErrNoService
			}
			return t, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

// matches implements the DA==ownAddr / SA==peerAddr check from
// spec.md §4.3 step 4. It applies the same check to every request kind;
// FDL_STATUS requests get no broadcast exception.
func (s *Station) matches(resp, req *Telegram, peerDA byte) bool {
	respDA, _ := SplitStationAddr(resp.DA)
	respSA, _ := SplitStationAddr(resp.SA)
	if respDA != s.ownAddr {
		return false
	}
	if respSA != peerDA {
		return false
	}
	return true
}
