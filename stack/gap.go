package stack

// GAPEvent tags a GAP callback delivery. Values a pipeline build does not
// recognize are logged and dropped by the dispatcher, so vendors may extend
// the set freely.
type GAPEvent uint8

const (
	// GAPScanResult carries one advertisement or the end-of-scan marker in
	// GAPParam.ScanResult.
	GAPScanResult GAPEvent = iota

	// Scan-complete family, GAPParam.ScanComplete.
	GAPScanParamSetComplete
	GAPScanStartComplete
	GAPScanStopComplete

	// Advertising-complete family, GAPParam.AdvComplete.
	GAPAdvDataSetComplete
	GAPScanRspDataSetComplete
	GAPAdvStartComplete
	GAPAdvStopComplete

	// RSSI family, GAPParam.RSSIComplete.
	GAPReadRSSIComplete

	// Security family, GAPParam.Security.
	GAPAuthComplete
	GAPSecurityRequest
)

// SearchEvent distinguishes scan-result sub-kinds.
type SearchEvent uint8

const (
	SearchInquiryResult SearchEvent = iota
	SearchInquiryComplete
)

// AuthMode describes the bonding requirement carried by security events.
type AuthMode uint8

const (
	AuthNoBond AuthMode = iota
	AuthBond
)

// MaxAdvDataLen bounds the raw advertisement bytes carried by a scan
// result: advertising data plus scan response, 31 bytes each.
const MaxAdvDataLen = 62

// Advertising data record types used when composing or parsing raw
// advertisement payloads.
const (
	ADTypeFlags             = 0x01
	ADTypeCompleteLocalName = 0x09
)

// ScanResult is the payload of GAPScanResult. It is a fixed-size value;
// the vendor's buffers are copied in, never aliased.
type ScanResult struct {
	SearchEvent SearchEvent
	Addr        BDAddr
	AddrType    AddrType
	RSSI        int8
	AdvDataLen  uint8
	ScanRspLen  uint8
	AdvData     [MaxAdvDataLen]byte
}

// Payload returns the valid advertisement bytes: advertising data followed
// by the scan response. The slice aliases the ScanResult and follows its
// lifetime.
func (r *ScanResult) Payload() []byte {
	n := int(r.AdvDataLen) + int(r.ScanRspLen)
	if n > len(r.AdvData) {
		n = len(r.AdvData)
	}
	return r.AdvData[:n]
}

// LocalName walks the advertisement records and returns the complete
// local name, or "" when the payload carries none. Malformed trailing
// records are ignored.
func (r *ScanResult) LocalName() string {
	data := r.Payload()
	for len(data) >= 2 {
		n := int(data[0])
		if n == 0 || n+1 > len(data) {
			break
		}
		if data[1] == ADTypeCompleteLocalName {
			return string(data[2 : n+1])
		}
		data = data[n+1:]
	}
	return ""
}

// ScanComplete is the shared payload of the scan-complete family.
type ScanComplete struct {
	Status Status
}

// AdvComplete is the shared payload of the advertising-complete family.
type AdvComplete struct {
	Status Status
}

// RSSIComplete is the payload of GAPReadRSSIComplete.
type RSSIComplete struct {
	Status Status
	Addr   BDAddr
	RSSI   int8
}

// Security is the shared payload of the security family.
type Security struct {
	Status   Status
	Addr     BDAddr
	AuthMode AuthMode
}

// GAPParam is the GAP payload union: exactly one field is meaningful per
// event, selected by the GAPEvent tag. Producers assign a whole GAPParam
// value so stale fields from a previous event never survive.
type GAPParam struct {
	ScanResult   ScanResult
	ScanComplete ScanComplete
	AdvComplete  AdvComplete
	RSSIComplete RSSIComplete
	Security     Security
}

// completionParam is implemented by every family payload whose first field
// is a Status. CompletionStatus relies on this shape; the assertion below
// is the single place the assumption is checked.
type completionParam interface{ completionStatus() Status }

func (p ScanComplete) completionStatus() Status { return p.Status }
func (p AdvComplete) completionStatus() Status  { return p.Status }
func (p RSSIComplete) completionStatus() Status { return p.Status }
func (p Security) completionStatus() Status     { return p.Status }

var _ = [...]completionParam{ScanComplete{}, AdvComplete{}, RSSIComplete{}, Security{}}

// CompletionStatus extracts the vendor status for the grouped
// status-carrying GAP families. The second return is false for events that
// carry no status (scan results, unknown events).
func (p *GAPParam) CompletionStatus(event GAPEvent) (Status, bool) {
	switch event {
	case GAPScanParamSetComplete, GAPScanStartComplete, GAPScanStopComplete:
		return p.ScanComplete.completionStatus(), true
	case GAPAdvDataSetComplete, GAPScanRspDataSetComplete, GAPAdvStartComplete, GAPAdvStopComplete:
		return p.AdvComplete.completionStatus(), true
	case GAPReadRSSIComplete:
		return p.RSSIComplete.completionStatus(), true
	case GAPAuthComplete, GAPSecurityRequest:
		return p.Security.completionStatus(), true
	default:
		return StatusFail, false
	}
}
