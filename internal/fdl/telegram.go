// Package fdl implements the PROFIBUS Fieldbus Data Link layer: telegram
// framing (SD1/SD2/SD3/SD4/SC), FCS checksumming, a streaming byte-at-a-time
// reassembler, and the per-master request/response station that drives
// Tsyn/Tslot/Tqui timing and retries on top of a phy.Transceiver.
//
// Wire format and invariants are as specified for the DP master core:
// SD1 is a fixed 6-byte frame, SD2 is variable length with a doubled
// length prefix, SD3 is a fixed 14-byte frame, SD4 is the 3-byte token,
// and SC is the single-byte short acknowledgment.
package fdl

import "fmt"

// Start delimiters.
const (
	SD1 = 0x10 // fixed length, no data
	SD2 = 0x68 // variable length
	SD3 = 0xA2 // fixed length, 8 data bytes
	SD4 = 0xDC // token
	SC  = 0xE5 // short acknowledgment
)

// ED is the trailing end delimiter on every frame except SC.
const ED = 0x16

// SD2 payload length bounds (LE = LEr, counts DA+SA+FC+DU).
const (
	SD2MinLE = 4
	SD2MaxLE = 249
)

// Function codes (FC byte). Only the subset the master side needs.
const (
	FcRequestBit = 0x40 // set on requests, clear on responses

	// Request classes (low nibble selects the service; the Station
	// stamps the frame-count bit fcFCB itself).
	FcReqSDNLow   = 0x40 // send data, no reply, FCB and FCV clear
	FcReqSDNHigh  = 0x50 // send data, no reply, FCV set
	FcReqSRDLow   = 0x4D // send and request data, FCB and FCV clear
	FcReqSRDHigh  = 0x5D // send and request data, FCV set
	FcReqFDLStatus = 0x49 // request FDL status

	// Response classes.
	FcRspAckOK       = 0x00
	FcRspAckNeg      = 0x01
	FcRspDataLow     = 0x08
	FcRspDataLowFCV  = 0x0C // 0x08 with bit 0x04 set; the fcFCV bit (0x10) is not set
	FcRspDataHigh    = 0x0A
	FcRspNoResource  = 0x09
	FcRspNoService   = 0x0E
	FcRspNotReady    = 0x02
)

// frame-count bit and frame-count-valid bit positions within FC.
const (
	fcFCB = 0x20
	fcFCV = 0x10
)

// Service access points relevant to the DP master.
const (
	DsapMasterDiag  = 54
	DsapGlobalCtrl  = 57
	DsapSetSlvAddr  = 58
	DsapRdInp       = 59
	DsapSlaveDiag   = 60
	DsapSetPrm      = 61
	DsapChkCfg      = 62
	DsapDefault     = -1 // no DSAP/SSAP extension present
)

// Telegram is a decoded or to-be-encoded FDL PDU. Zero value is not a valid
// telegram; construct with NewShort/NewVariable/NewToken/NewShortAck or
// obtain one from Decoder.Feed.
type Telegram struct {
	SD byte

	DA, SA byte // station addresses (7 bits + EXT indicator in bit 7)
	FC     byte

	HasSAP     bool
	DSAP, SSAP byte

	DU []byte // data unit; excludes DSAP/SSAP bytes if HasSAP
}

// addrExt is the bit-7 "extended addressing" flag carried on DA/SA.
const addrExt = 0x80

// StationAddr packs a 7-bit address with the EXT indicator.
func StationAddr(addr byte, ext bool) byte {
	a := addr & 0x7F
	if ext {
		a |= addrExt
	}
	return a
}

// SplitStationAddr unpacks an address byte into (addr, ext).
func SplitStationAddr(b byte) (addr byte, ext bool) {
	return b & 0x7F, b&addrExt != 0
}

// fcs computes the FCS over DA, SA, FC and DU: sum of all bytes mod 256.
func fcs(da, sa, fc byte, du []byte) byte {
	sum := uint32(da) + uint32(sa) + uint32(fc)
	for _, b := range du {
		sum += uint32(b)
	}
	return byte(sum & 0xFF)
}

// payload returns the bytes that the FCS and the DU length are computed
// over: DSAP/SSAP (if present) prepended to DU.
func (t *Telegram) payload() []byte {
	if !t.HasSAP {
		return t.DU
	}
	out := make([]byte, 0, len(t.DU)+2)
	out = append(out, t.DSAP, t.SSAP)
	out = append(out, t.DU...)
	return out
}

// NewShortAck returns the one-byte SC telegram.
func NewShortAck() *Telegram {
	return &Telegram{SD: SC}
}

// NewToken returns an SD4 token telegram addressed to da from sa.
func NewToken(da, sa byte) *Telegram {
	return &Telegram{SD: SD4, DA: da, SA: sa}
}

// NewShort returns an SD1 telegram (fixed 6 bytes, no data unit).
func NewShort(da, sa, fc byte) *Telegram {
	return &Telegram{SD: SD1, DA: da, SA: sa, FC: fc}
}

// NewFixed8 returns an SD3 telegram; du must be exactly 8 bytes.
func NewFixed8(da, sa, fc byte, du [8]byte) *Telegram {
	cp := make([]byte, 8)
	copy(cp, du[:])
	return &Telegram{SD: SD3, DA: da, SA: sa, FC: fc, DU: cp}
}

// NewVariable returns an SD2 telegram. du (plus the two SAP bytes, if any)
// must total between SD2MinLE-3 and SD2MaxLE-3 bytes after the FC byte;
// outside that range Encode returns an error.
func NewVariable(da, sa, fc byte, dsap, ssap *byte, du []byte) *Telegram {
	t := &Telegram{SD: SD2, DA: da, SA: sa, FC: fc, DU: du}
	if dsap != nil && ssap != nil {
		t.HasSAP = true
		t.DSAP, t.SSAP = *dsap, *ssap
		t.DA |= addrExt
		t.SA |= addrExt
	}
	return t
}

// WithFCB returns a copy of t with the frame-count bit set or cleared.
func (t *Telegram) WithFCB(set bool) *Telegram {
	cp := *t
	if set {
		cp.FC |= fcFCB
	} else {
		cp.FC &^= fcFCB
	}
	return &cp
}

// FCB reports the frame-count bit of the telegram's FC byte.
func (t *Telegram) FCB() bool { return t.FC&fcFCB != 0 }

// IsRequest reports whether FC's direction bit marks this a request.
func (t *Telegram) IsRequest() bool { return t.FC&FcRequestBit != 0 }

// Encode serializes t to wire bytes.
func Encode(t *Telegram) ([]byte, error) {
	switch t.SD {
	case SC:
		return []byte{SC}, nil

	case SD4:
		return []byte{SD4, t.DA, t.SA}, nil

	case SD1:
		f := fcs(t.DA, t.SA, t.FC, nil)
		return []byte{SD1, t.DA, t.SA, t.FC, f, ED}, nil

	case SD3:
		if len(t.DU) != 8 {
			return nil, fmt.Errorf("fdl: SD3 data unit must be 8 bytes, got %d", len(t.DU))
		}
		f := fcs(t.DA, t.SA, t.FC, t.DU)
		out := make([]byte, 0, 14)
		out = append(out, SD3, t.DA, t.SA, t.FC)
		out = append(out, t.DU...)
		out = append(out, f, ED)
		return out, nil

	case SD2:
		pl := t.payload()
		le := len(pl) + 3 // DA + SA + FC + payload
		if le < SD2MinLE || le > SD2MaxLE {
			return nil, fmt.Errorf("fdl: SD2 LE=%d out of range [%d,%d]", le, SD2MinLE, SD2MaxLE)
		}
		f := fcs(t.DA, t.SA, t.FC, pl)
		out := make([]byte, 0, le+6)
		out = append(out, SD2, byte(le), byte(le), SD2, t.DA, t.SA, t.FC)
		out = append(out, pl...)
		out = append(out, f, ED)
		return out, nil

	default:
		return nil, fmt.Errorf("fdl: unknown start delimiter 0x%02x", t.SD)
	}
}
