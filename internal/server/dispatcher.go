package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/muurk/orvibo-bridge/internal/events"
	"github.com/muurk/orvibo-bridge/internal/logging"
	"github.com/muurk/orvibo-bridge/internal/protocol"
	"github.com/muurk/orvibo-bridge/internal/session"
	"go.uber.org/zap"
)

var (
	// ErrProtocolViolation is returned for a frame that is not allowed in the
	// current session phase: a dk frame before hello, a pk frame that is not
	// a hello, or a second hello on a keyed connection.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrNoSuchDevice is returned by SendOrder when no live connection has
	// identified with the UID.
	ErrNoSuchDevice = errors.New("no such device")
)

// Outcome is the result of dispatching one inbound frame. Any field may be
// empty. The connection worker commits Apply to the store, then writes Reply,
// then publishes Event.
type Outcome struct {
	Command protocol.Command
	Message *protocol.Message
	Reply   []byte
	Event   events.Event
	Apply   func(*session.Session)
}

// Dispatcher decodes inbound frames and decides the reply, the event and the
// session mutation for each one. It holds no per-connection state and is
// safe for concurrent use.
type Dispatcher struct {
	psk        []byte
	nicknames  map[string]string
	logPackets bool

	now              func() time.Time
	newSessionKey    func() (string, error)
	newCorrelationID func() (string, error)
}

// NewDispatcher creates a dispatcher for the given pre-shared key.
// Nicknames, keyed by UID, replace the placeholder device name.
func NewDispatcher(psk []byte, nicknames map[string]string, logPackets bool) *Dispatcher {
	names := make(map[string]string, len(nicknames))
	for uid, n := range nicknames {
		names[uid] = n
	}
	return &Dispatcher{
		psk:              psk,
		nicknames:        names,
		logPackets:       logPackets,
		now:              time.Now,
		newSessionKey:    protocol.GenerateSessionKey,
		newCorrelationID: func() (string, error) { return protocol.RandomHex(protocol.CorrelationIDSize) },
	}
}

// Dispatch handles one raw frame read from the connection described by sess.
// Frames that fail validation return an error and an empty outcome; the
// caller logs and drops them.
func (d *Dispatcher) Dispatch(sess session.Session, raw []byte) (*Outcome, error) {
	frame, err := protocol.ParseFrame(raw)
	if err != nil {
		return nil, err
	}

	if !frame.Valid() {
		return nil, fmt.Errorf("%w: header 0x%08x", protocol.ErrChecksumMismatch, frame.Checksum)
	}

	var key []byte
	switch frame.Type {
	case protocol.FrameTypePK:
		if sess.KeyEstablished() {
			return nil, fmt.Errorf("%w: pk frame on a keyed connection", ErrProtocolViolation)
		}
		key = d.psk
	case protocol.FrameTypeDK:
		if !sess.KeyEstablished() {
			return nil, fmt.Errorf("%w: dk frame before hello", ErrProtocolViolation)
		}
		key = []byte(sess.Key)
	default:
		return nil, fmt.Errorf("%w: unknown frame type %q", protocol.ErrMalformedFrame, frame.Type)
	}

	msg, err := protocol.Open(frame, key)
	if err != nil {
		return nil, err
	}

	if d.logPackets {
		logging.LogPayload(sess.ConnectionID, "in", msg.Raw)
	}

	if frame.Type == protocol.FrameTypePK && msg.Cmd != protocol.CmdHello.Code {
		return nil, fmt.Errorf("%w: cmd %d in a pk frame", ErrProtocolViolation, msg.Cmd)
	}
	if frame.Type == protocol.FrameTypeDK && msg.Cmd == protocol.CmdHello.Code {
		return nil, fmt.Errorf("%w: hello in a dk frame", ErrProtocolViolation)
	}

	now := d.now()
	uid := msg.UID
	if uid == "" {
		uid = sess.UID
	}

	out := &Outcome{Command: msg.Command(), Message: msg}
	var reply any

	switch msg.Cmd {
	case protocol.CmdHello.Code:
		return d.hello(sess, msg, now)

	case protocol.CmdHandshake.Code:
		name := d.nickname(uid)
		reply = protocol.NewHandshakeAck(protocol.HandshakeAckParams{Serial: msg.Serial})
		out.Event = events.DeviceConnected{UID: uid, Name: name}
		out.Apply = func(s *session.Session) {
			s.UID = uid
			s.Name = name
			s.Serial = msg.Serial
			s.IdentifiedAt = now
			s.LastSeen = now
		}

	case protocol.CmdHeartbeat.Code:
		reply = protocol.NewHeartbeatAck(protocol.HeartbeatAckParams{Serial: msg.Serial, UID: uid, Now: now})
		out.Event = events.Heartbeat{UID: uid, Name: sess.Name}
		out.Apply = func(s *session.Session) {
			s.UID = uid
			s.Serial = msg.Serial
			s.LastSeen = now
		}

	case protocol.CmdStateReport.Code:
		state := msg.Value1
		reply = protocol.NewStateConfirm(protocol.StateConfirmParams{Serial: msg.Serial, UID: uid, State: state, Now: now})
		out.Event = events.StateChanged{UID: uid, State: state, Name: sess.Name}
		out.Apply = func(s *session.Session) {
			s.State = state
			s.Serial = msg.Serial
			s.LastSeen = now
		}

	case protocol.CmdStateAck.Code:
		// device acknowledging an order
		out.Apply = func(s *session.Session) {
			s.LastSeen = now
		}

	default:
		logging.Debug("Unhandled command, sending generic ack",
			zap.String("conn_id", sess.ConnectionID),
			zap.Int("cmd", msg.Cmd),
		)
		reply = protocol.NewGenericAck(protocol.GenericAckParams{Cmd: msg.Cmd, Serial: msg.Serial, UID: uid})
		out.Apply = func(s *session.Session) {
			s.LastSeen = now
		}
	}

	if reply != nil {
		out.Reply, err = d.seal(sess.ConnectionID, protocol.FrameTypeDK, sess.CorrelationID, reply, key)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// hello establishes the session key. The reply travels under the PSK.
func (d *Dispatcher) hello(sess session.Session, msg *protocol.Message, now time.Time) (*Outcome, error) {
	key, err := d.newSessionKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session key: %w", err)
	}
	corrID, err := d.newCorrelationID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate correlation id: %w", err)
	}

	reply := protocol.NewHelloAck(protocol.HelloAckParams{Serial: msg.Serial, Key: key})
	frame, err := d.seal(sess.ConnectionID, protocol.FrameTypePK, corrID, reply, d.psk)
	if err != nil {
		return nil, err
	}

	return &Outcome{
		Command: msg.Command(),
		Message: msg,
		Reply:   frame,
		Apply: func(s *session.Session) {
			s.Key = key
			s.CorrelationID = corrID
			s.Serial = msg.Serial
			if msg.ModelID != "" {
				s.ModelID = msg.ModelID
			}
			s.LastSeen = now
		},
	}, nil
}

func (d *Dispatcher) seal(connID string, typ protocol.FrameType, corrID string, payload any, key []byte) ([]byte, error) {
	frame, err := protocol.Seal(typ, corrID, payload, key)
	if err != nil {
		return nil, fmt.Errorf("failed to encode reply: %w", err)
	}
	if d.logPackets {
		logPayloadJSON(connID, "out", payload)
	}
	return frame, nil
}

func (d *Dispatcher) nickname(uid string) string {
	if n := d.nicknames[uid]; n != "" {
		return n
	}
	return session.PlaceholderName
}
