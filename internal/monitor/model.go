package monitor

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/orvibo-bridge/internal/events"
	"github.com/muurk/orvibo-bridge/internal/protocol"
	"github.com/muurk/orvibo-bridge/internal/session"
)

// Source is the bridge API the monitor reads from and sends orders to
type Source interface {
	Devices(ctx context.Context) ([]session.DeviceInfo, error)
	SendOrder(ctx context.Context, uid, order string, values protocol.OrderValues) error
}

// Messages
type devicesMsg []session.DeviceInfo
type envelopeMsg events.Envelope
type streamClosedMsg struct{}
type errMsg struct{ err error }
type orderResultMsg struct {
	uid   string
	order string
	err   error
}

// keyMap defines key bindings for the monitor
type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Open    key.Binding
	Close   key.Binding
	Stop    key.Binding
	Refresh key.Binding
	Quit    key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Open, k.Close, k.Stop, k.Refresh, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Open, k.Close, k.Stop},
		{k.Refresh, k.Quit},
	}
}

func newKeyMap() keyMap {
	return keyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Open: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "open"),
		),
		Close: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "close"),
		),
		Stop: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "stop"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// Model is the bubbletea model of the monitor dashboard
type Model struct {
	source  Source
	stream  <-chan events.Envelope
	apiAddr string

	devices map[string]session.DeviceInfo
	table   table.Model
	log     []string
	status  string
	err     error

	streamClosed bool

	Width  int
	Height int

	help help.Model
	keys keyMap
}

// NewModel creates a monitor for source, fed by stream
func NewModel(source Source, stream <-chan events.Envelope, apiAddr string) Model {
	width := GetTerminalWidth()
	t := table.New(
		table.WithColumns(columns(width)),
		table.WithFocused(true),
		table.WithHeight(8),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(MutedColor).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(TextColor).
		Background(PrimaryColor).
		Bold(false)
	t.SetStyles(s)

	return Model{
		source:  source,
		stream:  stream,
		apiAddr: apiAddr,
		devices: make(map[string]session.DeviceInfo),
		table:   t,
		Width:   width,
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

func columns(width int) []table.Column {
	// UID, state, online and last seen are fixed; the name takes the rest
	fixed := 14 + 7 + 9 + 10
	name := width - fixed - 10
	if name < 12 {
		name = 12
	}
	return []table.Column{
		{Title: "UID", Width: 14},
		{Title: "Name", Width: name},
		{Title: "State", Width: 7},
		{Title: "Status", Width: 9},
		{Title: "Last seen", Width: 10},
	}
}

// Init fetches the device list and starts listening for events
func (m Model) Init() tea.Cmd {
	return tea.Batch(fetchDevices(m.source), waitForEnvelope(m.stream))
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = clampWidth(msg.Width)
		m.Height = msg.Height
		m.help.Width = m.Width
		m.table.SetColumns(columns(m.Width))
		if h := msg.Height - MaxLogLines - 10; h > 3 {
			m.table.SetHeight(h)
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Refresh):
			m.status = "refreshing..."
			return m, fetchDevices(m.source)
		case key.Matches(msg, m.keys.Open):
			return m.order("open")
		case key.Matches(msg, m.keys.Close):
			return m.order("close")
		case key.Matches(msg, m.keys.Stop):
			return m.order("stop")
		}

	case devicesMsg:
		m.devices = make(map[string]session.DeviceInfo, len(msg))
		for _, d := range msg {
			m.devices[d.UID] = d
		}
		m.err = nil
		m.status = fmt.Sprintf("%d device(s)", len(msg))
		m.refreshRows()
		return m, nil

	case envelopeMsg:
		env := events.Envelope(msg)
		if e, err := env.Decode(); err == nil {
			m.apply(e, env.Time)
			m.appendLog(env.Time, e)
			m.refreshRows()
		}
		return m, waitForEnvelope(m.stream)

	case streamClosedMsg:
		m.streamClosed = true
		m.status = "event stream closed"
		return m, nil

	case orderResultMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("%s %s: %w", msg.order, msg.uid, msg.err)
		} else {
			m.err = nil
			m.status = fmt.Sprintf("sent %s to %s", msg.order, msg.uid)
		}
		return m, nil

	case errMsg:
		m.err = msg.err
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) order(order string) (tea.Model, tea.Cmd) {
	row := m.table.SelectedRow()
	if row == nil {
		m.status = "no device selected"
		return m, nil
	}
	uid := row[0]
	m.status = fmt.Sprintf("sending %s to %s...", order, uid)
	return m, sendOrder(m.source, uid, order)
}

// apply folds an event into the device view
func (m *Model) apply(e events.Event, at time.Time) {
	update := func(uid string, fn func(*session.DeviceInfo)) {
		if uid == "" {
			return
		}
		d := m.devices[uid]
		d.UID = uid
		fn(&d)
		m.devices[uid] = d
	}

	switch ev := e.(type) {
	case events.DeviceConnected:
		update(ev.UID, func(d *session.DeviceInfo) {
			d.Name, d.Online, d.LastSeen = ev.Name, true, at
		})
	case events.StateChanged:
		update(ev.UID, func(d *session.DeviceInfo) {
			d.Name, d.State, d.Online, d.LastSeen = ev.Name, ev.State, true, at
		})
	case events.Heartbeat:
		update(ev.UID, func(d *session.DeviceInfo) {
			d.Online, d.LastSeen = true, at
		})
	case events.DeviceDisconnected:
		update(ev.UID, func(d *session.DeviceInfo) { d.Online = false })
	case events.DeviceDisconnectedWithError:
		update(ev.UID, func(d *session.DeviceInfo) { d.Online = false })
	}
}

func (m *Model) appendLog(at time.Time, e events.Event) {
	line := LogTimeStyle.Render(at.Local().Format("15:04:05")) + " " +
		LogTypeStyle.Render(string(e.Type())) +
		LogTextStyle.Render(Describe(e))
	m.log = append(m.log, line)
	if len(m.log) > MaxLogLines {
		m.log = m.log[len(m.log)-MaxLogLines:]
	}
}

func (m *Model) refreshRows() {
	uids := make([]string, 0, len(m.devices))
	for uid := range m.devices {
		uids = append(uids, uid)
	}
	sort.Strings(uids)

	rows := make([]table.Row, 0, len(uids))
	for _, uid := range uids {
		d := m.devices[uid]
		status := "offline"
		if d.Online {
			status = "online"
		}
		seen := "-"
		if !d.LastSeen.IsZero() {
			seen = d.LastSeen.Local().Format("15:04:05")
		}
		rows = append(rows, table.Row{d.UID, d.Name, strconv.Itoa(d.State), status, seen})
	}
	m.table.SetRows(rows)
}

// View renders the dashboard
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render(AppName))
	b.WriteString(SubtitleStyle.Render(fmt.Sprintf("%s · %s", m.apiAddr, AppVersion())))
	b.WriteString("\n")

	b.WriteString(SectionTitleStyle.Render("Devices"))
	b.WriteString("\n")
	b.WriteString(m.table.View())
	b.WriteString("\n")

	switch {
	case m.err != nil:
		b.WriteString(ErrorMessageStyle.Render("✗ " + m.err.Error()))
	case m.streamClosed:
		b.WriteString(WarningMessageStyle.Render("! " + m.status))
	default:
		b.WriteString(StatusStyle.Render(m.status))
	}
	b.WriteString("\n")

	b.WriteString(SectionTitleStyle.Render("Events"))
	b.WriteString("\n")
	if len(m.log) == 0 {
		b.WriteString(StatusStyle.Render("waiting for events..."))
		b.WriteString("\n")
	}
	for _, line := range m.log {
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString(HelpStyle.Render(m.help.View(m.keys)))
	return b.String()
}

// Describe renders the payload of an event as one short line
func Describe(e events.Event) string {
	switch ev := e.(type) {
	case events.DeviceConnected:
		return fmt.Sprintf("%s (%s) connected", ev.UID, ev.Name)
	case events.StateChanged:
		return fmt.Sprintf("%s (%s) state %d", ev.UID, ev.Name, ev.State)
	case events.Heartbeat:
		return fmt.Sprintf("%s (%s) heartbeat", ev.UID, ev.Name)
	case events.DeviceDisconnected:
		if ev.UID == "" {
			return "unidentified connection closed"
		}
		return fmt.Sprintf("%s (%s) disconnected", ev.UID, ev.Name)
	case events.DeviceDisconnectedWithError:
		uid := ev.UID
		if uid == "" {
			uid = ev.ConnectionID
		}
		return fmt.Sprintf("%s disconnected: %s", uid, ev.Error)
	default:
		return string(e.Type())
	}
}

func fetchDevices(source Source) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		devices, err := source.Devices(ctx)
		if err != nil {
			return errMsg{err: err}
		}
		return devicesMsg(devices)
	}
}

func sendOrder(source Source, uid, order string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := source.SendOrder(ctx, uid, order, protocol.OrderValues{})
		return orderResultMsg{uid: uid, order: order, err: err}
	}
}

func waitForEnvelope(stream <-chan events.Envelope) tea.Cmd {
	if stream == nil {
		return nil
	}
	return func() tea.Msg {
		env, ok := <-stream
		if !ok {
			return streamClosedMsg{}
		}
		return envelopeMsg(env)
	}
}
