package dp

// Diagnosis flag bits the master state machine inspects. ParseDiag reads
// the Station_Non_Existent..Ext_Diag bits from the first diagnosis byte
// and diagPrmFault/diagPrmReq from the second byte.
const (
	diagStationNonExistent = 1 << 0
	diagStationNotReady    = 1 << 1
	diagCfgFault           = 1 << 2
	diagExtDiag            = 1 << 3
	diagNotSupported       = 1 << 4
	diagInvalidSlaveResp   = 1 << 5
	diagPrmFault           = 1 << 6
	diagPrmReq             = 1 << 7
)

// Diag is a parsed SlaveDiag_Req response.
type Diag struct {
	StationNonExistent bool
	StationNotReady    bool
	CfgFault           bool
	ExtDiag            bool
	PrmFault           bool
	PrmReq             bool
	Raw                []byte
}

// ParseDiag interprets the first two diagnosis bytes (see the flag
// constants above); the complete response, including any ext diag bytes,
// is kept as-is in Raw for the application to inspect.
func ParseDiag(data []byte) Diag {
	d := Diag{Raw: append([]byte(nil), data...)}
	if len(data) == 0 {
		return d
	}
	b := data[0]
	d.StationNonExistent = b&diagStationNonExistent != 0
	d.StationNotReady = b&diagStationNotReady != 0
	d.CfgFault = b&diagCfgFault != 0
	d.ExtDiag = b&diagExtDiag != 0
	if len(data) > 1 {
		b1 := data[1]
		d.PrmFault = b1&diagPrmFault != 0
		d.PrmReq = b1&diagPrmReq != 0
	}
	return d
}

// Ready reports whether the diagnosis indicates the slave is fully
// parameterized and configured with no outstanding fault (the condition
// WAIT_DIAG2 -> DATA_EX requires).
func (d Diag) Ready() bool {
	return !d.StationNonExistent && !d.StationNotReady && !d.CfgFault && !d.PrmFault && !d.PrmReq
}
