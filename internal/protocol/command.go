package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Direction tags which way a command travels. The protocol reuses numeric
// codes across directions, so a code alone is ambiguous.
type Direction uint8

const (
	Inbound  Direction = 1 << iota // device -> server
	Outbound                       // server -> device
	Both     = Inbound | Outbound
)

// String returns a human-readable direction name
func (d Direction) String() string {
	switch d {
	case Inbound:
		return "inbound"
	case Outbound:
		return "outbound"
	case Both:
		return "both"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
}

// Command is a protocol command code tagged with its direction
type Command struct {
	Code      int
	Name      string
	Direction Direction
}

// Known commands
var (
	CmdHello        = Command{Code: 0, Name: "hello", Direction: Both}
	CmdHandshake    = Command{Code: 6, Name: "handshake", Direction: Both}
	CmdHeartbeat    = Command{Code: 32, Name: "heartbeat", Direction: Both}
	CmdStateReport  = Command{Code: 42, Name: "state_report", Direction: Inbound}
	CmdStateConfirm = Command{Code: 42, Name: "state_confirm", Direction: Outbound}
	CmdStateAck     = Command{Code: 15, Name: "state_ack", Direction: Inbound}
	CmdSetOrder     = Command{Code: 15, Name: "set_order", Direction: Outbound}
)

var commands = []Command{
	CmdHello, CmdHandshake, CmdHeartbeat,
	CmdStateReport, CmdStateConfirm, CmdStateAck, CmdSetOrder,
}

// LookupCommand finds the command for a code travelling in the given
// direction. Unknown codes yield a Command named "unknown" and false.
func LookupCommand(code int, dir Direction) (Command, bool) {
	for _, c := range commands {
		if c.Code == code && c.Direction&dir != 0 {
			return c, true
		}
	}
	return Command{Code: code, Name: "unknown", Direction: dir}, false
}

// String returns a debug representation of the command
func (c Command) String() string {
	return fmt.Sprintf("%s(%d,%s)", c.Name, c.Code, c.Direction)
}

// Message is the decoded subset of a device payload the bridge acts on.
// Raw keeps the trimmed JSON for packet logging.
type Message struct {
	Cmd     int    `json:"cmd"`
	Serial  Serial `json:"serial"`
	UID     string `json:"uid,omitempty"`
	ModelID string `json:"modelId,omitempty"`
	Value1  int    `json:"value1"`

	Raw json.RawMessage `json:"-"`
}

// Command resolves the inbound command code
func (m *Message) Command() Command {
	c, _ := LookupCommand(m.Cmd, Inbound)
	return c
}

// DecodeCommand parses a decrypted payload. Devices pad the buffer with
// undefined trailer bytes after the JSON object, so the object is cut at the
// last '}' and, if the trailer itself contains a brace, at the first one.
func DecodeCommand(plaintext []byte) (*Message, error) {
	start := bytes.IndexByte(plaintext, '{')
	if start < 0 {
		return nil, fmt.Errorf("%w: no JSON object in %d bytes", ErrMalformedPayload, len(plaintext))
	}

	var lastErr error
	for _, end := range []int{bytes.LastIndexByte(plaintext, '}'), bytes.IndexByte(plaintext, '}')} {
		if end < start {
			lastErr = fmt.Errorf("no closing brace")
			continue
		}
		body := plaintext[start : end+1]

		var msg Message
		if err := json.Unmarshal(body, &msg); err != nil {
			lastErr = err
			continue
		}
		msg.Raw = json.RawMessage(bytes.Clone(body))
		return &msg, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, lastErr)
}

// Open decrypts a frame payload with key and decodes the command inside
func Open(f *Frame, key []byte) (*Message, error) {
	plaintext, err := Decrypt(f.Payload, key)
	if err != nil {
		return nil, err
	}
	return DecodeCommand(plaintext)
}

// Seal marshals payload to JSON, encrypts it with key and returns the
// serialized frame ready for the socket.
func Seal(typ FrameType, correlationID string, payload any, key []byte) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	encrypted, err := Encrypt(body, key)
	if err != nil {
		return nil, err
	}

	return NewFrame(typ, []byte(correlationID), encrypted).Marshal()
}
