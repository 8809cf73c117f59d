package server

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/muurk/orvibo-bridge/internal/events"
	"github.com/muurk/orvibo-bridge/internal/logging"
	"github.com/muurk/orvibo-bridge/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// testDevice plays the device side of a connection
type testDevice struct {
	t   *testing.T
	nc  net.Conn
	key string
}

func startTestServer(t *testing.T) (*Server, <-chan events.Event) {
	t.Helper()

	bus := events.NewBus()
	sub, unsub := bus.Subscribe(32)
	t.Cleanup(unsub)

	srv, err := New(&Config{PreSharedKey: testPSK, KeepAlive: time.Second}, bus)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		assert.NoError(t, srv.Shutdown(ctx))
		assert.NoError(t, <-done)
	})

	require.Eventually(t, func() bool { return srv.Addr() != nil }, time.Second, 5*time.Millisecond)
	return srv, sub
}

func dialDevice(t *testing.T, srv *Server) *testDevice {
	t.Helper()
	nc, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = nc.Close() })
	return &testDevice{t: t, nc: nc}
}

func (d *testDevice) send(typ protocol.FrameType, payload any) {
	d.t.Helper()
	key := d.key
	if typ == protocol.FrameTypePK {
		key = testPSK
	}
	raw, err := protocol.Seal(typ, testDeviceCorrelation, payload, []byte(key))
	require.NoError(d.t, err)
	_, err = d.nc.Write(raw)
	require.NoError(d.t, err)
}

func (d *testDevice) read(into any) *protocol.Frame {
	d.t.Helper()
	require.NoError(d.t, d.nc.SetReadDeadline(time.Now().Add(2*time.Second)))
	raw, err := protocol.ReadFrame(d.nc)
	require.NoError(d.t, err)

	frame, err := protocol.ParseFrame(raw)
	require.NoError(d.t, err)
	require.True(d.t, frame.Valid())

	key := d.key
	if frame.Type == protocol.FrameTypePK {
		key = testPSK
	}
	plaintext, err := protocol.Decrypt(frame.Payload, []byte(key))
	require.NoError(d.t, err)
	require.NoError(d.t, json.Unmarshal(plaintext, into))
	return frame
}

// identify runs hello and handshake
func (d *testDevice) identify(uid string) {
	d.t.Helper()

	d.send(protocol.FrameTypePK, map[string]any{"cmd": 0, "serial": 1, "modelId": "m-b25"})
	var hello protocol.HelloAck
	d.read(&hello)
	require.Len(d.t, hello.Key, protocol.KeySize)
	d.key = hello.Key

	d.send(protocol.FrameTypeDK, map[string]any{"cmd": 6, "serial": 2, "uid": uid})
	var ack protocol.HandshakeAck
	d.read(&ack)
	require.Equal(d.t, protocol.CmdHandshake.Code, ack.Cmd)
}

func waitEvent(t *testing.T, ch <-chan events.Event, typ events.Type) events.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e, ok := <-ch:
			require.True(t, ok, "event channel closed")
			if e.Type() == typ {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", typ)
			return nil
		}
	}
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New(&Config{PreSharedKey: "short"}, nil)
	assert.Error(t, err)

	_, err = New(nil, nil)
	assert.Error(t, err)

	srv, err := New(&Config{PreSharedKey: testPSK}, nil)
	require.NoError(t, err)
	assert.NotNil(t, srv.Events())
	assert.Nil(t, srv.Addr())
}

func TestServer_SessionFlow(t *testing.T) {
	srv, sub := startTestServer(t)
	dev := dialDevice(t, srv)

	dev.identify("abc123")
	assert.Equal(t, events.DeviceConnected{UID: "abc123", Name: "unknown"}, waitEvent(t, sub, events.TypeDeviceConnected))

	dev.send(protocol.FrameTypeDK, map[string]any{"cmd": 32, "serial": 3, "uid": "abc123"})
	var hb protocol.HeartbeatAck
	dev.read(&hb)
	assert.Equal(t, protocol.Serial("3"), hb.Serial)
	assert.Equal(t, "abc123", hb.UID)
	assert.Equal(t, events.Heartbeat{UID: "abc123", Name: "unknown"}, waitEvent(t, sub, events.TypeHeartbeat))

	dev.send(protocol.FrameTypeDK, map[string]any{"cmd": 42, "serial": 4, "uid": "abc123", "value1": 75})
	var confirm protocol.StateConfirm
	dev.read(&confirm)
	assert.Equal(t, 42, confirm.Cmd)
	assert.Equal(t, 75, confirm.Value1)
	assert.Equal(t, events.StateChanged{UID: "abc123", State: 75, Name: "unknown"}, waitEvent(t, sub, events.TypeStateChanged))

	devices := srv.ListDevices()
	require.Len(t, devices, 1)
	assert.Equal(t, "abc123", devices[0].UID)
	assert.Equal(t, "unknown", devices[0].Name)
	assert.Equal(t, 75, devices[0].State)
	assert.Equal(t, "m-b25", devices[0].ModelID)
	assert.True(t, devices[0].Online)
}

func TestServer_SendOrder(t *testing.T) {
	srv, _ := startTestServer(t)
	dev := dialDevice(t, srv)
	dev.identify("abc123")

	require.NoError(t, srv.SendOrder("abc123", "open", protocol.OrderValues{}))

	var first protocol.Order
	frame := dev.read(&first)
	assert.Equal(t, protocol.FrameTypeDK, frame.Type)
	assert.Equal(t, 15, first.Cmd)
	assert.Equal(t, "open", first.Order)
	assert.Equal(t, 0, first.Value1)
	assert.Equal(t, "abc123", first.UID)
	assert.Equal(t, protocol.OrderUserName, first.UserName)
	assert.Equal(t, protocol.OrderVersion, first.Ver)
	assert.Len(t, first.ClientSessionID, 32)
	assert.Len(t, first.DeviceID, 32)
	serial, ok := first.Serial.Int64()
	require.True(t, ok)
	assert.GreaterOrEqual(t, serial, int64(10000000))
	assert.Less(t, serial, int64(100000000))

	require.NoError(t, srv.SendOrder("abc123", "close", protocol.OrderValues{Value1: 50}))
	var second protocol.Order
	dev.read(&second)
	assert.Equal(t, "close", second.Order)
	assert.Equal(t, 50, second.Value1)
	assert.Equal(t, first.ClientSessionID, second.ClientSessionID, "client session id is reused")
	assert.Equal(t, first.DeviceID, second.DeviceID, "device id is reused")
}

func TestServer_SendOrderUnknownDevice(t *testing.T) {
	srv, _ := startTestServer(t)
	dev := dialDevice(t, srv)
	dev.identify("abc123")

	err := srv.SendOrder("nope", "open", protocol.OrderValues{})
	assert.ErrorIs(t, err, ErrNoSuchDevice)

	// nothing reaches the identified device
	require.NoError(t, dev.nc.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, err = protocol.ReadFrame(dev.nc)
	var ne net.Error
	require.ErrorAs(t, err, &ne)
	assert.True(t, ne.Timeout())
}

func TestServer_Disconnect(t *testing.T) {
	srv, sub := startTestServer(t)
	dev := dialDevice(t, srv)
	dev.identify("abc123")
	waitEvent(t, sub, events.TypeDeviceConnected)

	require.NoError(t, dev.nc.Close())

	assert.Equal(t, events.DeviceDisconnected{UID: "abc123", Name: "unknown"}, waitEvent(t, sub, events.TypeDeviceDisconnected))
	assert.Equal(t, 0, srv.ActiveConnections())
	assert.ErrorIs(t, srv.SendOrder("abc123", "open", protocol.OrderValues{}), ErrNoSuchDevice)

	devices := srv.ListDevices()
	require.Len(t, devices, 1)
	assert.False(t, devices[0].Online)
}

func TestServer_DisconnectBeforeHandshake(t *testing.T) {
	srv, sub := startTestServer(t)
	dev := dialDevice(t, srv)

	require.Eventually(t, func() bool { return srv.ActiveConnections() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, dev.nc.Close())

	assert.Equal(t, events.DeviceDisconnected{}, waitEvent(t, sub, events.TypeDeviceDisconnected))
	assert.Empty(t, srv.ListDevices())
}

func TestServer_StreamErrorDisconnects(t *testing.T) {
	srv, sub := startTestServer(t)
	dev := dialDevice(t, srv)
	dev.identify("abc123")

	_, err := dev.nc.Write([]byte("GET / HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)

	e := waitEvent(t, sub, events.TypeDeviceDisconnectedWithError).(events.DeviceDisconnectedWithError)
	assert.Equal(t, "abc123", e.UID)
	assert.Equal(t, "unknown", e.Name)
	assert.Equal(t, "m-b25", e.ModelID)
	assert.NotEmpty(t, e.ConnectionID)
	assert.Contains(t, e.Error, "malformed frame")
}

func TestServer_ShortLengthDisconnects(t *testing.T) {
	srv, sub := startTestServer(t)
	dev := dialDevice(t, srv)
	dev.identify("abc123")

	// Valid magic, declared length shorter than the header
	_, err := dev.nc.Write([]byte{'h', 'd', 0x00, 0x10, 'd', 'k'})
	require.NoError(t, err)

	e := waitEvent(t, sub, events.TypeDeviceDisconnectedWithError).(events.DeviceDisconnectedWithError)
	assert.Equal(t, "abc123", e.UID)
	assert.Contains(t, e.Error, "below header size")
}

func TestServer_BadFrameIsDropped(t *testing.T) {
	srv, _ := startTestServer(t)
	dev := dialDevice(t, srv)
	dev.identify("abc123")

	raw, err := protocol.Seal(protocol.FrameTypeDK, testDeviceCorrelation, map[string]any{"cmd": 32, "serial": 5}, []byte(dev.key))
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xFF
	_, err = dev.nc.Write(raw)
	require.NoError(t, err)

	// The connection survives and answers the next frame
	dev.send(protocol.FrameTypeDK, map[string]any{"cmd": 32, "serial": 6, "uid": "abc123"})
	var hb protocol.HeartbeatAck
	dev.read(&hb)
	assert.Equal(t, protocol.Serial("6"), hb.Serial)
}

func TestServer_ShutdownClosesConnections(t *testing.T) {
	bus := events.NewBus()
	srv, err := New(&Config{PreSharedKey: testPSK}, bus)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()
	require.Eventually(t, func() bool { return srv.Addr() != nil }, time.Second, 5*time.Millisecond)

	dev := dialDevice(t, srv)
	dev.identify("abc123")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	require.NoError(t, <-done)

	require.NoError(t, dev.nc.SetReadDeadline(time.Now().Add(time.Second)))
	_, err = protocol.ReadFrame(dev.nc)
	assert.Error(t, err)
	assert.Equal(t, 0, srv.ActiveConnections())
}

func TestServer_ShutdownLogsSessionPhases(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logging.SetLogger(zap.New(core))
	t.Cleanup(func() { logging.SetLogger(zap.NewNop()) })

	srv, err := New(&Config{PreSharedKey: testPSK}, nil)
	require.NoError(t, err)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()
	require.Eventually(t, func() bool { return srv.Addr() != nil }, time.Second, 5*time.Millisecond)

	identified := dialDevice(t, srv)
	identified.identify("abc123")
	dialDevice(t, srv)
	require.Eventually(t, func() bool { return srv.ActiveConnections() == 2 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	require.NoError(t, <-done)

	phases := make(map[string]string)
	for _, entry := range logs.FilterMessage("Closing active connection").All() {
		fields := entry.ContextMap()
		phases[fields["uid"].(string)] = fields["phase"].(string)
	}
	assert.Equal(t, map[string]string{"abc123": "identified", "": "unauthenticated"}, phases)
}
