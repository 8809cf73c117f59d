package server

import (
	"fmt"

	"github.com/muurk/orvibo-bridge/internal/logging"
	"github.com/muurk/orvibo-bridge/internal/protocol"
	"github.com/muurk/orvibo-bridge/internal/session"
	"go.uber.org/zap"
)

// SendOrder sends a set order to the device identified by uid, e.g.
// SendOrder("abc123", "open", protocol.OrderValues{}).
//
// When no live connection has identified with uid nothing is written and
// ErrNoSuchDevice is returned; callers that only care about the wire may
// ignore it. The client session id and device id are generated on the first
// order of a connection and reused afterwards.
func (s *Server) SendOrder(uid, order string, values protocol.OrderValues) error {
	sess, c, ok := s.store.FindByUID(uid)
	if !ok || !sess.KeyEstablished() {
		logging.Warn("Order for unknown device dropped",
			zap.String("uid", uid),
			zap.String("order", order),
		)
		return fmt.Errorf("%w: %s", ErrNoSuchDevice, uid)
	}

	clientSessionID, err := protocol.RandomHex(protocol.CorrelationIDSize)
	if err != nil {
		return fmt.Errorf("failed to generate client session id: %w", err)
	}
	deviceID, err := protocol.RandomHex(protocol.CorrelationIDSize)
	if err != nil {
		return fmt.Errorf("failed to generate device id: %w", err)
	}
	serial, err := protocol.RandomSerial()
	if err != nil {
		return fmt.Errorf("failed to generate serial: %w", err)
	}

	sess, ok = s.store.Update(sess.ConnectionID, func(ss *session.Session) {
		if ss.ClientSessionID == "" {
			ss.ClientSessionID = clientSessionID
		}
		if ss.DeviceID == "" {
			ss.DeviceID = deviceID
		}
	})
	if !ok {
		return fmt.Errorf("%w: %s disconnected", ErrNoSuchDevice, uid)
	}

	payload := protocol.NewOrder(protocol.OrderParams{
		UID:             uid,
		Order:           order,
		Serial:          serial,
		ClientSessionID: sess.ClientSessionID,
		DeviceID:        sess.DeviceID,
		Values:          values,
	})

	frame, err := protocol.Seal(protocol.FrameTypeDK, sess.CorrelationID, payload, []byte(sess.Key))
	if err != nil {
		return fmt.Errorf("failed to encode order: %w", err)
	}
	if s.config.LogPackets {
		logPayloadJSON(sess.ConnectionID, "out", payload)
	}

	if err := c.Write(frame); err != nil {
		logging.Error("Failed to send order",
			zap.String("uid", uid),
			zap.String("conn_id", sess.ConnectionID),
			zap.Error(err),
		)
		return err
	}

	logging.Info("Order sent",
		zap.String("uid", uid),
		zap.String("order", order),
		zap.Stringer("serial", serial),
	)
	return nil
}

// ListDevices returns every device that has identified since startup,
// including devices that are currently offline.
func (s *Server) ListDevices() []session.DeviceInfo {
	return s.store.Devices()
}
