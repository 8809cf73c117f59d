package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/muurk/orvibo-bridge/internal/events"
	"github.com/muurk/orvibo-bridge/internal/logging"
	"github.com/muurk/orvibo-bridge/internal/protocol"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a frame to the device
	writeWait = 10 * time.Second
)

// conn is the write side of a device connection. Replies from the read loop
// and orders from API callers share it, so writes are serialized.
type conn struct {
	id         string
	remoteAddr string
	nc         net.Conn

	writeMu sync.Mutex
}

// Write sends one complete frame
func (c *conn) Write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.nc.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if _, err := c.nc.Write(frame); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}

	logging.LogFrame(c.id, "out", string(frameType(frame)), frame)
	return nil
}

func (c *conn) Close() error {
	return c.nc.Close()
}

// handleConnection runs the read loop of one device connection until the
// device disconnects, the connection fails or the server shuts down.
func (s *Server) handleConnection(nc net.Conn) {
	c := &conn{
		id:         uuid.NewString(),
		remoteAddr: nc.RemoteAddr().String(),
		nc:         nc,
	}

	if tcp, ok := nc.(*net.TCPConn); ok && s.config.KeepAlive > 0 {
		if err := tcp.SetKeepAlive(true); err == nil {
			_ = tcp.SetKeepAlivePeriod(s.config.KeepAlive)
		}
	}

	s.store.Add(c.id, c.remoteAddr, c)
	logging.LogConnection(c.id, c.remoteAddr, "connection_accepted")

	// Shutdown may have snapshotted the store before Add
	if s.isClosing() {
		_ = c.Close()
	}

	err := s.readLoop(c)

	_ = c.Close()
	final, _ := s.store.Remove(c.id)

	if err == nil || errors.Is(err, io.EOF) || (s.isClosing() && errors.Is(err, net.ErrClosed)) {
		logging.LogConnection(c.id, c.remoteAddr, "connection_closed")
		s.bus.Publish(events.DeviceDisconnected{UID: final.UID, Name: final.Name})
		return
	}

	logging.Warn("Connection closed with error",
		zap.String("conn_id", c.id),
		zap.String("remote_addr", c.remoteAddr),
		zap.String("uid", final.UID),
		zap.Error(err),
	)
	s.bus.Publish(events.DeviceDisconnectedWithError{
		ConnectionID: final.ConnectionID,
		UID:          final.UID,
		Name:         final.Name,
		ModelID:      final.ModelID,
		State:        final.State,
		Error:        err.Error(),
	})
}

// readLoop processes frames strictly in arrival order
func (s *Server) readLoop(c *conn) error {
	for {
		raw, err := protocol.ReadFrame(c.nc)
		if err != nil {
			return err
		}
		logging.LogFrame(c.id, "in", string(frameType(raw)), raw)

		sess, ok := s.store.Get(c.id)
		if !ok {
			return fmt.Errorf("session for %s vanished", c.id)
		}

		out, err := s.dispatcher.Dispatch(sess, raw)
		if err != nil {
			logging.Warn("Dropping frame",
				zap.String("conn_id", c.id),
				zap.String("remote_addr", c.remoteAddr),
				zap.String("uid", sess.UID),
				zap.Error(err),
			)
			logging.LogRawBytes("Dropped frame", raw)
			continue
		}

		logging.Debug("Dispatched command",
			zap.String("conn_id", c.id),
			zap.String("command", out.Command.String()),
			zap.Stringer("serial", out.Message.Serial),
		)

		if out.Apply != nil {
			s.store.Update(c.id, out.Apply)
		}
		if out.Reply != nil {
			if err := c.Write(out.Reply); err != nil {
				return err
			}
		}
		if out.Event != nil {
			s.bus.Publish(out.Event)
		}
	}
}

func frameType(raw []byte) protocol.FrameType {
	if len(raw) < 6 {
		return ""
	}
	return protocol.FrameType(raw[4:6])
}

func logPayloadJSON(connID, direction string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	logging.LogPayload(connID, direction, data)
}
