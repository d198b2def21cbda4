package stack

// GATTIf identifies a registered GATT application interface on the vendor
// stack. GATTIfNone means "no interface" and fans an event out to every
// application.
type GATTIf uint8

// GATTIfNone is the broadcast interface id.
const GATTIfNone GATTIf = 0xFF

// ConnID identifies one connection on an interface.
type ConnID uint16

// AttrHandle identifies an attribute in a GATT table.
type AttrHandle uint16

// MaxAttrLen is the largest attribute value carried by an event, the ATT
// maximum attribute length.
const MaxAttrLen = 512

// AttrValue is a fixed-capacity attribute value. Events copy vendor bytes
// into it so records never alias producer memory.
type AttrValue struct {
	Len  uint16
	Data [MaxAttrLen]byte
}

// Bytes returns the valid portion of the value. The slice aliases the
// AttrValue and follows its lifetime.
func (v *AttrValue) Bytes() []byte {
	n := int(v.Len)
	if n > len(v.Data) {
		n = len(v.Data)
	}
	return v.Data[:n]
}

// Set copies b into the value, truncating at MaxAttrLen, and returns the
// number of bytes stored.
func (v *AttrValue) Set(b []byte) int {
	n := copy(v.Data[:], b)
	v.Len = uint16(n)
	return n
}

// GATTServerEvent tags a GATT server callback delivery.
type GATTServerEvent uint8

const (
	GATTSRegister GATTServerEvent = iota
	GATTSRead
	GATTSWrite
	GATTSExecWrite
	GATTSMTU
	GATTSConnect
	GATTSDisconnect
	GATTSStart
	GATTSStop
)

// GATTServerParam is the GATT server payload union, one field per event.
// Producers assign whole values, never individual fields of a reused param.
type GATTServerParam struct {
	Register   GATTSRegisterParam
	Read       GATTSReadParam
	Write      GATTSWriteParam
	ExecWrite  GATTSExecWriteParam
	MTU        GATTSMTUParam
	Connect    GATTSConnectParam
	Disconnect GATTSDisconnectParam
	Start      GATTSStartParam
	Stop       GATTSStopParam
}

type GATTSRegisterParam struct {
	Status Status
	AppID  uint16
}

type GATTSReadParam struct {
	ConnID  ConnID
	TransID uint32
	Addr    BDAddr
	Handle  AttrHandle
	Offset  uint16
	IsLong  bool
	NeedRsp bool
}

type GATTSWriteParam struct {
	ConnID  ConnID
	TransID uint32
	Addr    BDAddr
	Handle  AttrHandle
	Offset  uint16
	NeedRsp bool
	IsPrep  bool
	Value   AttrValue
}

type GATTSExecWriteParam struct {
	ConnID  ConnID
	TransID uint32
	Addr    BDAddr
	Cancel  bool
}

type GATTSMTUParam struct {
	ConnID ConnID
	MTU    uint16
}

type GATTSConnectParam struct {
	ConnID   ConnID
	LinkRole uint8
	Addr     BDAddr
}

type GATTSDisconnectParam struct {
	ConnID ConnID
	Addr   BDAddr
	Reason uint8
}

type GATTSStartParam struct {
	Status        Status
	ServiceHandle AttrHandle
}

type GATTSStopParam struct {
	Status        Status
	ServiceHandle AttrHandle
}

// GATTClientEvent tags a GATT client callback delivery.
type GATTClientEvent uint8

const (
	GATTCRegister GATTClientEvent = iota
	GATTCOpen
	GATTCClose
	GATTCCfgMTU
	GATTCSearchResult
	GATTCSearchComplete
	GATTCNotify
	GATTCReadChar
	GATTCWriteChar
)

// GATTClientParam is the GATT client payload union, one field per event.
type GATTClientParam struct {
	Register       GATTCRegisterParam
	Open           GATTCOpenParam
	Close          GATTCCloseParam
	CfgMTU         GATTCCfgMTUParam
	SearchResult   GATTCSearchResultParam
	SearchComplete GATTCSearchCompleteParam
	Notify         GATTCNotifyParam
	ReadChar       GATTCReadCharParam
	WriteChar      GATTCWriteCharParam
}

type GATTCRegisterParam struct {
	Status Status
	AppID  uint16
}

type GATTCOpenParam struct {
	Status Status
	ConnID ConnID
	Addr   BDAddr
	MTU    uint16
}

type GATTCCloseParam struct {
	Status Status
	ConnID ConnID
	Addr   BDAddr
	Reason uint8
}

type GATTCCfgMTUParam struct {
	Status Status
	ConnID ConnID
	MTU    uint16
}

type GATTCSearchResultParam struct {
	ConnID      ConnID
	StartHandle AttrHandle
	EndHandle   AttrHandle
	UUID16      uint16
}

type GATTCSearchCompleteParam struct {
	Status Status
	ConnID ConnID
}

type GATTCNotifyParam struct {
	ConnID   ConnID
	Addr     BDAddr
	Handle   AttrHandle
	IsNotify bool
	Value    AttrValue
}

type GATTCReadCharParam struct {
	Status Status
	ConnID ConnID
	Handle AttrHandle
	Value  AttrValue
}

type GATTCWriteCharParam struct {
	Status Status
	ConnID ConnID
	Handle AttrHandle
}
