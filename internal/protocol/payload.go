package protocol

import "time"

// Reply and order payload constructors. Each outbound payload has its own
// struct so the JSON shape is fixed at compile time; field names match what
// the device firmware expects, including the camelCase keys.

// Firmware literals sent with every set order. The device rejects orders
// without them.
const (
	OrderUserName = "iloveorvibo@orvibo.com"
	OrderVersion  = "3.0.0"
)

// HelloAckParams carries the fields of a hello reply
type HelloAckParams struct {
	Serial Serial
	Key    string // new session key, delivered in plaintext under the PSK
}

// HelloAck is the reply to a device hello (cmd 0)
type HelloAck struct {
	Cmd    int    `json:"cmd"`
	Status int    `json:"status"`
	Serial Serial `json:"serial"`
	Key    string `json:"key"`
}

// NewHelloAck builds a hello reply
func NewHelloAck(p HelloAckParams) *HelloAck {
	return &HelloAck{
		Cmd:    CmdHello.Code,
		Status: 0,
		Serial: p.Serial,
		Key:    p.Key,
	}
}

// HandshakeAckParams carries the fields of a handshake reply
type HandshakeAckParams struct {
	Serial Serial
}

// HandshakeAck is the reply to a device handshake (cmd 6)
type HandshakeAck struct {
	Cmd    int    `json:"cmd"`
	Status int    `json:"status"`
	Serial Serial `json:"serial"`
}

// NewHandshakeAck builds a handshake reply
func NewHandshakeAck(p HandshakeAckParams) *HandshakeAck {
	return &HandshakeAck{
		Cmd:    CmdHandshake.Code,
		Status: 0,
		Serial: p.Serial,
	}
}

// HeartbeatAckParams carries the fields of a heartbeat reply
type HeartbeatAckParams struct {
	Serial Serial
	UID    string
	Now    time.Time
}

// HeartbeatAck is the reply to a device heartbeat (cmd 32).
// UTC is the server clock in Unix milliseconds.
type HeartbeatAck struct {
	Cmd    int    `json:"cmd"`
	Status int    `json:"status"`
	Serial Serial `json:"serial"`
	UID    string `json:"uid"`
	UTC    int64  `json:"utc"`
}

// NewHeartbeatAck builds a heartbeat reply
func NewHeartbeatAck(p HeartbeatAckParams) *HeartbeatAck {
	return &HeartbeatAck{
		Cmd:    CmdHeartbeat.Code,
		Status: 0,
		Serial: p.Serial,
		UID:    p.UID,
		UTC:    p.Now.UnixMilli(),
	}
}

// StateConfirmParams carries the fields of a state report confirmation
type StateConfirmParams struct {
	Serial Serial
	UID    string
	State  int
	Now    time.Time
}

// StateConfirm answers a device state report. It reuses cmd 42 and echoes
// the reported position in value1; the other slots are unused and zero.
type StateConfirm struct {
	UID           string `json:"uid"`
	Cmd           int    `json:"cmd"`
	StatusType    int    `json:"statusType"`
	Value1        int    `json:"value1"`
	Value2        int    `json:"value2"`
	Value3        int    `json:"value3"`
	Value4        int    `json:"value4"`
	AlarmType     int    `json:"alarmType"`
	Serial        Serial `json:"serial"`
	DeviceID      int    `json:"deviceId"`
	UpdateTimeSec int64  `json:"updateTimeSec"`
	Status        int    `json:"status"`
}

// NewStateConfirm builds a state report confirmation
func NewStateConfirm(p StateConfirmParams) *StateConfirm {
	return &StateConfirm{
		UID:           p.UID,
		Cmd:           CmdStateConfirm.Code,
		Value1:        p.State,
		AlarmType:     1,
		Serial:        p.Serial,
		UpdateTimeSec: p.Now.UnixMilli(),
	}
}

// GenericAckParams carries the fields of a reply to an unrecognized command
type GenericAckParams struct {
	Cmd    int
	Serial Serial
	UID    string
}

// GenericAck acknowledges a command the bridge does not implement by
// echoing its code back
type GenericAck struct {
	UID    string `json:"uid"`
	Cmd    int    `json:"cmd"`
	Serial Serial `json:"serial"`
	Status int    `json:"status"`
}

// NewGenericAck builds a generic acknowledgment
func NewGenericAck(p GenericAckParams) *GenericAck {
	return &GenericAck{
		UID:    p.UID,
		Cmd:    p.Cmd,
		Serial: p.Serial,
		Status: 0,
	}
}

// OrderValues are the four numeric arguments of a set order. Their meaning
// depends on the order name; unused slots stay zero.
type OrderValues struct {
	Value1 int `json:"value1"`
	Value2 int `json:"value2"`
	Value3 int `json:"value3"`
	Value4 int `json:"value4"`
}

// OrderParams carries the fields of a server initiated set order
type OrderParams struct {
	UID             string
	Order           string // e.g. "open", "close", "stop"
	Serial          Serial
	ClientSessionID string
	DeviceID        string
	Values          OrderValues
}

// Order is an unsolicited set order (cmd 15) sent to a device
type Order struct {
	UID             string `json:"uid"`
	DelayTime       int    `json:"delayTime"`
	Cmd             int    `json:"cmd"`
	Order           string `json:"order"`
	UserName        string `json:"userName"`
	Ver             string `json:"ver"`
	Value1          int    `json:"value1"`
	Value2          int    `json:"value2"`
	Value3          int    `json:"value3"`
	Value4          int    `json:"value4"`
	Serial          Serial `json:"serial"`
	DeviceID        string `json:"deviceId"`
	ClientSessionID string `json:"clientSessionId"`
}

// NewOrder builds a set order
func NewOrder(p OrderParams) *Order {
	return &Order{
		UID:             p.UID,
		Cmd:             CmdSetOrder.Code,
		Order:           p.Order,
		UserName:        OrderUserName,
		Ver:             OrderVersion,
		Value1:          p.Values.Value1,
		Value2:          p.Values.Value2,
		Value3:          p.Values.Value3,
		Value4:          p.Values.Value4,
		Serial:          p.Serial,
		DeviceID:        p.DeviceID,
		ClientSessionID: p.ClientSessionID,
	}
}
