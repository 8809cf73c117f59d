package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/orvibo-bridge/internal/events"
	"github.com/muurk/orvibo-bridge/internal/logging"
	"github.com/muurk/orvibo-bridge/internal/protocol"
	"github.com/muurk/orvibo-bridge/internal/server"
	"github.com/muurk/orvibo-bridge/internal/session"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	// Maximum order request body
	maxBodySize = 4096
)

// Bridge is the part of the device server the API exposes
type Bridge interface {
	ListDevices() []session.DeviceInfo
	SendOrder(uid, order string, values protocol.OrderValues) error
}

// OrderRequest is the body of POST /api/devices/{uid}/orders
type OrderRequest struct {
	Order  string `json:"order"`
	Value1 int    `json:"value1"`
	Value2 int    `json:"value2"`
	Value3 int    `json:"value3"`
	Value4 int    `json:"value4"`
}

// Values returns the numeric order arguments
func (r OrderRequest) Values() protocol.OrderValues {
	return protocol.OrderValues{Value1: r.Value1, Value2: r.Value2, Value3: r.Value3, Value4: r.Value4}
}

type orderResponse struct {
	Status string `json:"status"`
	UID    string `json:"uid"`
	Order  string `json:"order"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server is the local control API
type Server struct {
	bridge   Bridge
	bus      *events.Bus
	upgrader websocket.Upgrader
	http     *http.Server
}

// NewServer creates an API server for bridge, streaming events from bus
func NewServer(bridge Bridge, bus *events.Bus) *Server {
	s := &Server{
		bridge: bridge,
		bus:    bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	mux := http.NewServeMux()
	s.Register(mux)
	s.http = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Register adds the API routes to mux
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/devices", s.handleDevices)
	mux.HandleFunc("POST /api/devices/{uid}/orders", s.handleOrder)
	mux.HandleFunc("GET /api/events", s.handleEvents)
}

// Handler returns the HTTP handler serving the API
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start serves the API on addr until ctx is cancelled
func (s *Server) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	logging.Info("Control API listening", zap.String("addr", ln.Addr().String()))

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.http.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// Event streams are hijacked connections; they end when the bus closes
		return s.http.Shutdown(shutdownCtx)
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bridge.ListDevices())
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")

	var req OrderRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid order body: %v", err)})
		return
	}
	req.Order = strings.TrimSpace(req.Order)
	if req.Order == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "order is required"})
		return
	}

	if err := s.bridge.SendOrder(uid, req.Order, req.Values()); err != nil {
		if errors.Is(err, server.ErrNoSuchDevice) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
			return
		}
		logging.Error("Order failed", zap.String("uid", uid), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, orderResponse{Status: "accepted", UID: uid, Order: req.Order})
}

// handleEvents streams bus events to a websocket client as JSON envelopes
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error
		logging.Warn("Websocket upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}
	remoteAddr := r.RemoteAddr
	logging.Info("Event subscriber connected", zap.String("remote_addr", remoteAddr))

	sub, unsubscribe := s.bus.Subscribe(events.DefaultBuffer)
	defer func() {
		unsubscribe()
		_ = ws.Close()
		logging.Info("Event subscriber disconnected", zap.String("remote_addr", remoteAddr))
	}()

	// The reader only handles control frames and notices the close
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		ws.SetReadLimit(maxMessageSize)
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-sub:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "bridge shutting down"))
				return
			}
			env, err := events.Wrap(e, time.Now())
			if err != nil {
				logging.Error("Failed to encode event", zap.Error(err))
				continue
			}
			if err := ws.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("Failed to write response", zap.Error(err))
	}
}
