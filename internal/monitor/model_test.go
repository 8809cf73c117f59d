package monitor

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/orvibo-bridge/internal/events"
	"github.com/muurk/orvibo-bridge/internal/protocol"
	"github.com/muurk/orvibo-bridge/internal/session"
)

type fakeSource struct {
	mu      sync.Mutex
	devices []session.DeviceInfo
	err     error
	orders  []string
}

func (f *fakeSource) Devices(ctx context.Context) ([]session.DeviceInfo, error) {
	return f.devices, f.err
}

func (f *fakeSource) SendOrder(ctx context.Context, uid, order string, values protocol.OrderValues) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, uid+":"+order)
	return f.err
}

func envelope(t *testing.T, e events.Event) envelopeMsg {
	t.Helper()
	env, err := events.Wrap(e, time.Date(2025, 11, 25, 10, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	return envelopeMsg(env)
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	require.True(t, ok)
	return nm, cmd
}

func TestModel_DevicesMsg(t *testing.T) {
	m := NewModel(&fakeSource{}, nil, "127.0.0.1:8089")
	m, _ = update(t, m, devicesMsg{
		{UID: "bbb", Name: "Kitchen", State: 20, Online: false},
		{UID: "aaa", Name: "Bedroom", State: 75, Online: true},
	})

	rows := m.table.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "aaa", rows[0][0], "rows are sorted by uid")
	assert.Equal(t, "75", rows[0][2])
	assert.Equal(t, "online", rows[0][3])
	assert.Equal(t, "offline", rows[1][3])
	assert.Equal(t, "2 device(s)", m.status)
}

func TestModel_EventsUpdateDevices(t *testing.T) {
	stream := make(chan events.Envelope)
	m := NewModel(&fakeSource{}, stream, "127.0.0.1:8089")

	m, cmd := update(t, m, envelope(t, events.DeviceConnected{UID: "abc123", Name: "unknown"}))
	assert.NotNil(t, cmd, "the stream keeps being read")
	assert.True(t, m.devices["abc123"].Online)

	m, _ = update(t, m, envelope(t, events.StateChanged{UID: "abc123", State: 40, Name: "unknown"}))
	assert.Equal(t, 40, m.devices["abc123"].State)

	m, _ = update(t, m, envelope(t, events.DeviceDisconnected{UID: "abc123", Name: "unknown"}))
	assert.False(t, m.devices["abc123"].Online)
	assert.Equal(t, 40, m.devices["abc123"].State, "state survives a disconnect")

	// unidentified connections do not add rows
	m, _ = update(t, m, envelope(t, events.DeviceDisconnected{}))
	assert.Len(t, m.devices, 1)
	assert.Len(t, m.log, 4)
}

func TestModel_LogIsBounded(t *testing.T) {
	m := NewModel(&fakeSource{}, nil, "")
	for i := 0; i < MaxLogLines+5; i++ {
		m, _ = update(t, m, envelope(t, events.Heartbeat{UID: "abc123", Name: "unknown"}))
	}
	assert.Len(t, m.log, MaxLogLines)
}

func TestModel_OrderKeys(t *testing.T) {
	src := &fakeSource{}
	m := NewModel(src, nil, "")

	// no selection
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("o")})
	assert.Nil(t, cmd)
	assert.Equal(t, "no device selected", m.status)

	m, _ = update(t, m, devicesMsg{{UID: "abc123", Online: true}})
	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	require.NotNil(t, cmd)

	msg := cmd()
	assert.Equal(t, orderResultMsg{uid: "abc123", order: "close"}, msg)
	assert.Equal(t, []string{"abc123:close"}, src.orders)

	m, _ = update(t, m, msg)
	assert.Equal(t, "sent close to abc123", m.status)

	m, _ = update(t, m, orderResultMsg{uid: "abc123", order: "stop", err: errors.New("boom")})
	require.Error(t, m.err)
	assert.Contains(t, m.err.Error(), "boom")
}

func TestModel_Quit(t *testing.T) {
	m := NewModel(&fakeSource{}, nil, "")
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModel_FetchError(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	m := NewModel(src, nil, "")

	msg := fetchDevices(src)()
	m, _ = update(t, m, msg)
	require.Error(t, m.err)
	assert.Contains(t, m.View(), "connection refused")
}

func TestModel_StreamClosed(t *testing.T) {
	stream := make(chan events.Envelope)
	close(stream)

	msg := waitForEnvelope(stream)()
	assert.Equal(t, streamClosedMsg{}, msg)

	m := NewModel(&fakeSource{}, stream, "")
	m, _ = update(t, m, msg)
	assert.True(t, m.streamClosed)
	assert.Nil(t, waitForEnvelope(nil))
}

func TestModel_View(t *testing.T) {
	m := NewModel(&fakeSource{}, nil, "127.0.0.1:8089")
	m, _ = update(t, m, devicesMsg{{UID: "abc123", Name: "Bedroom", Online: true}})

	view := m.View()
	assert.Contains(t, view, AppName)
	assert.Contains(t, view, "127.0.0.1:8089")
	assert.Contains(t, view, "abc123")
	assert.Contains(t, view, "waiting for events")
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		event events.Event
		want  string
	}{
		{events.DeviceConnected{UID: "abc", Name: "Blind"}, "abc (Blind) connected"},
		{events.StateChanged{UID: "abc", Name: "Blind", State: 5}, "abc (Blind) state 5"},
		{events.Heartbeat{UID: "abc", Name: "Blind"}, "abc (Blind) heartbeat"},
		{events.DeviceDisconnected{}, "unidentified connection closed"},
		{events.DeviceDisconnected{UID: "abc", Name: "Blind"}, "abc (Blind) disconnected"},
		{events.DeviceDisconnectedWithError{ConnectionID: "c1", Error: "EOF"}, "c1 disconnected: EOF"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Describe(tt.event))
	}
}

func TestRunPlain(t *testing.T) {
	stream := make(chan events.Envelope, 2)
	stream <- events.Envelope(envelope(t, events.StateChanged{UID: "abc", Name: "Blind", State: 75}))
	stream <- events.Envelope{Type: "bogus", Time: time.Now()}
	close(stream)

	var buf bytes.Buffer
	require.NoError(t, RunPlain(context.Background(), stream, &buf))
	assert.Contains(t, buf.String(), "stateChanged")
	assert.Contains(t, buf.String(), "abc (Blind) state 75")
	assert.Contains(t, buf.String(), "undecodable")
}
