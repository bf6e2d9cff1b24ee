package fdl

import "time"

// EventKind tags what Decoder.Feed returned.
type EventKind int

const (
	NeedMore EventKind = iota
	EventTelegram
	EventError
)

// ErrorKind classifies a decode fault. Every fault returns the decoder to
// Idle; Feed or Tick reports it as an EventError and Decoder.Stats counts
// it.
type ErrorKind int

const (
	ErrBadFCS ErrorKind = iota
	ErrBadED
	ErrBadLE      // SD2 length out of range or LE != LEr
	ErrBadMagic   // SD2 repeated magic byte mismatch
	ErrTimeout    // mid-frame silence budget elapsed (reported by Tick)
)

func (k ErrorKind) String() string {
	switch k {
	case ErrBadFCS:
		return "bad FCS"
	case ErrBadED:
		return "bad ED"
	case ErrBadLE:
		return "bad LE"
	case ErrBadMagic:
		return "bad SD2 magic"
	case ErrTimeout:
		return "mid-frame timeout"
	default:
		return "unknown"
	}
}

// Event is the result of one Decoder.Feed call.
type Event struct {
	Kind     EventKind
	Telegram *Telegram
	Err      ErrorKind
}

type decodeState int

const (
	stIdle decodeState = iota
	stShortFixed
	stSD2Len
	stSD2Magic
	stSD2Body
)

// Stats counts framing faults observed since the decoder was created;
// useful for surfacing "dropped bytes" per spec.md §4.1.
type Stats struct {
	FramingFaults uint64
	MidFrameTimeouts uint64
}

// Decoder is the streaming, byte-at-a-time FDL telegram reassembler
// described in spec.md §4.2. It never consumes more than one byte per
// Feed call and never blocks.
type Decoder struct {
	state   decodeState
	started time.Time // timestamp of first byte of current in-progress frame

	// short-fixed accumulation
	sd      byte
	fixed   []byte
	fixedLen int

	// SD2 accumulation
	le, ler       byte
	body          []byte
	awaitingMagic bool

	Stats Stats
}

// NewDecoder returns an idle decoder.
func NewDecoder() *Decoder {
	return &Decoder{state: stIdle}
}

// defaultMidFrameTimeout is the fixed budget Tick allows, measured from
// the first byte of an in-progress frame, before it drops that frame. It
// does not depend on the baud rate or on the station's timing profile,
// and there is no setter for it. Feed itself does not check it, and
// Station does not call Tick.
var defaultMidFrameTimeout = 50 * time.Millisecond

// midFrameTimeout returns the mid-frame budget, always
// defaultMidFrameTimeout.
func (d *Decoder) midFrameTimeout() time.Duration {
	return defaultMidFrameTimeout
}

func (d *Decoder) reset() {
	d.state = stIdle
	d.fixed = d.fixed[:0]
	d.fixedLen = 0
	d.body = d.body[:0]
	d.awaitingMagic = false
}

func (d *Decoder) fault(kind ErrorKind) Event {
	d.Stats.FramingFaults++
	d.reset()
	return Event{Kind: EventError, Err: kind}
}

// Tick lets the station report elapsed time without a new byte, so a
// mid-frame timeout can be detected even when the line has gone silent.
func (d *Decoder) Tick(now time.Time) Event {
	if d.state == stIdle {
		return Event{Kind: NeedMore}
	}
	if now.Sub(d.started) > d.midFrameTimeout() {
		d.Stats.MidFrameTimeouts++
		d.reset()
		return Event{Kind: EventError, Err: ErrTimeout}
	}
	return Event{Kind: NeedMore}
}

// Feed presents one received byte to the reassembler.
func (d *Decoder) Feed(b byte, now time.Time) Event {
	switch d.state {
	case stIdle:
		return d.feedIdle(b, now)
	case stShortFixed:
		return d.feedShortFixed(b)
	case stSD2Len:
		return d.feedSD2Len(b)
	case stSD2Magic:
		return d.feedSD2Magic(b)
	case stSD2Body:
		return d.feedSD2Body(b)
	default:
		d.reset()
		return Event{Kind: NeedMore}
	}
}

func (d *Decoder) feedIdle(b byte, now time.Time) Event {
	switch b {
	case SC:
		return Event{Kind: EventTelegram, Telegram: NewShortAck()}
	case SD1:
		d.sd = SD1
		d.fixedLen = 5 // DA SA FC FCS ED
		d.fixed = d.fixed[:0]
		d.started = now
		d.state = stShortFixed
	case SD3:
		d.sd = SD3
		d.fixedLen = 13 // DA SA FC DU[8] FCS ED
		d.fixed = d.fixed[:0]
		d.started = now
		d.state = stShortFixed
	case SD4:
		d.sd = SD4
		d.fixedLen = 2 // DA SA
		d.fixed = d.fixed[:0]
		d.started = now
		d.state = stShortFixed
	case SD2:
		d.started = now
		d.state = stSD2Len
	default:
		return Event{Kind: NeedMore}
	}
	return Event{Kind: NeedMore}
}

func (d *Decoder) feedShortFixed(b byte) Event {
	d.fixed = append(d.fixed, b)
	if len(d.fixed) < d.fixedLen {
		return Event{Kind: NeedMore}
	}
	defer d.reset()

	switch d.sd {
	case SD4:
		t := &Telegram{SD: SD4, DA: d.fixed[0], SA: d.fixed[1]}
		return Event{Kind: EventTelegram, Telegram: t}

	case SD1:
		da, sa, fc, f, ed := d.fixed[0], d.fixed[1], d.fixed[2], d.fixed[3], d.fixed[4]
		if ed != ED {
			return d.faultNoReset(ErrBadED)
		}
		if f != fcs(da, sa, fc, nil) {
			return d.faultNoReset(ErrBadFCS)
		}
		t := &Telegram{SD: SD1, DA: da, SA: sa, FC: fc}
		return Event{Kind: EventTelegram, Telegram: t}

	case SD3:
		da, sa, fc := d.fixed[0], d.fixed[1], d.fixed[2]
		du := append([]byte(nil), d.fixed[3:11]...)
		f, ed := d.fixed[11], d.fixed[12]
		if ed != ED {
			return d.faultNoReset(ErrBadED)
		}
		if f != fcs(da, sa, fc, du) {
			return d.faultNoReset(ErrBadFCS)
		}
		t := &Telegram{SD: SD3, DA: da, SA: sa, FC: fc, DU: du}
		return Event{Kind: EventTelegram, Telegram: t}
	}
	return Event{Kind: NeedMore}
}

// faultNoReset mirrors fault() but is called from within a function that
// already deferred reset(); kept separate so Stats still increments.
func (d *Decoder) faultNoReset(kind ErrorKind) Event {
	d.Stats.FramingFaults++
	return Event{Kind: EventError, Err: kind}
}

func (d *Decoder) feedSD2Len(b byte) Event {
	d.le = b
	d.state = stSD2Magic
	return Event{Kind: NeedMore}
}

func (d *Decoder) feedSD2Magic(b byte) Event {
	// Second length byte LEr; PROFIBUS actually sends LE, LEr, then SD2
	// again. We read LEr here and validate against LE.
	d.ler = b
	if d.le != d.ler {
		return d.fault(ErrBadLE)
	}
	if int(d.le) < SD2MinLE || int(d.le) > SD2MaxLE {
		return d.fault(ErrBadLE)
	}
	d.state = stSD2Body
	d.body = d.body[:0]
	// Next byte must be the repeated SD2 magic; feedSD2Body checks it
	// first while awaitingMagic is set.
	d.awaitingMagic = true
	return Event{Kind: NeedMore}
}

func (d *Decoder) feedSD2Body(b byte) Event {
	if d.awaitingMagic {
		d.awaitingMagic = false
		if b != SD2 {
			return d.fault(ErrBadMagic)
		}
		return Event{Kind: NeedMore}
	}
	d.body = append(d.body, b)
	// body collects: DA SA FC DU... FCS ED, total d.le+2 bytes (LE counts
	// DA+SA+FC+DU, then 2 more for FCS+ED).
	want := int(d.le) + 2
	if len(d.body) < want {
		return Event{Kind: NeedMore}
	}
	defer d.reset()

	da, sa, fc := d.body[0], d.body[1], d.body[2]
	du := append([]byte(nil), d.body[3:int(d.le)]...)
	f, ed := d.body[want-2], d.body[want-1]
	if ed != ED {
		return d.faultNoReset(ErrBadED)
	}
	if f != fcs(da, sa, fc, du) {
		return d.faultNoReset(ErrBadFCS)
	}
	t := &Telegram{SD: SD2, DA: da, SA: sa, FC: fc, DU: du}
	if da&addrExt != 0 && sa&addrExt != 0 && len(du) >= 2 {
		t.HasSAP = true
		t.DSAP, t.SSAP = du[0], du[1]
		t.DU = append([]byte(nil), du[2:]...)
	}
	return Event{Kind: EventTelegram, Telegram: t}
}
