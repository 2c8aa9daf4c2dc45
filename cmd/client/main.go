// roomchat TUI client.
//
// Usage: client <host> <port> <user> <room>
//
// On connect it sends a join frame for <room>, then forwards every submitted
// input line as a chat frame.  Typing /quit (or pressing esc / ctrl+c) exits.
//
// Concurrency
// -----------
//	A single goroutine reads length-prefixed frames from the TCP connection
//	and forwards decoded envelopes to the envs channel.  The Bubbletea event
//	loop consumes one envelope at a time via waitForEnv (a tea.Cmd),
//	immediately queuing the next read after each envelope is processed.
package main

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"roomchat/internal/protocol"
)

// ---------------------------------------------------------------------------
// Styles
// ---------------------------------------------------------------------------

var (
	purple = lipgloss.Color("99")
	yellow = lipgloss.Color("220")
	gray   = lipgloss.Color("241")
	white  = lipgloss.Color("255")
	orange = lipgloss.Color("214")
	blue   = lipgloss.Color("75")

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Background(purple).
			Foreground(white).
			Padding(0, 1)

	footerBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder(), true, false, false, false).
				BorderForeground(gray).
				Padding(0, 1)

	sysStyle    = lipgloss.NewStyle().Foreground(yellow).Italic(true)
	tsStyle     = lipgloss.NewStyle().Foreground(gray)
	myNameStyle = lipgloss.NewStyle().Bold(true).Foreground(orange)
	peerStyle   = lipgloss.NewStyle().Bold(true).Foreground(blue)
)

// ---------------------------------------------------------------------------
// Bubbletea message types
// ---------------------------------------------------------------------------

type serverEnvMsg *protocol.Envelope // a decoded envelope arrived
type disconnectedMsg struct{}        // server closed the connection

// ---------------------------------------------------------------------------
// Model
// ---------------------------------------------------------------------------

type model struct {
	conn net.Conn
	envs chan *protocol.Envelope // reader goroutine → bubbletea bridge

	user string
	room string

	ready    bool
	viewport viewport.Model
	input    textinput.Model
	lines    []string // rendered lines shown in the viewport

	width, height int
}

func newModel(conn net.Conn, envs chan *protocol.Envelope, user, room string) model {
	ti := textinput.New()
	ti.Placeholder = "Type a message…  (/quit to exit)"
	ti.CharLimit = 500
	ti.Focus()

	return model{
		conn:  conn,
		envs:  envs,
		user:  user,
		room:  room,
		input: ti,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForEnv())
}

// waitForEnv blocks on the envelope channel as a tea.Cmd.
func (m model) waitForEnv() tea.Cmd {
	return func() tea.Msg {
		env, ok := <-m.envs
		if !ok {
			return disconnectedMsg{}
		}
		return serverEnvMsg(env)
	}
}

// ---------------------------------------------------------------------------
// Update
// ---------------------------------------------------------------------------

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		headerH := lipgloss.Height(m.headerView())
		footerH := 2 // input line + border
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerH-footerH)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerH - footerH
		}
		m.viewport.SetContent(m.content())
		m.viewport.GotoBottom()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.conn.Close()
			return m, tea.Quit
		case tea.KeyEnter:
			line := m.input.Value()
			m.input.Reset()
			if line == "" {
				return m, nil
			}
			if line == "/quit" {
				m.conn.Close()
				return m, tea.Quit
			}
			m.sendChat(line)
			return m, nil
		}

	case serverEnvMsg:
		m.appendLine(renderEnv((*protocol.Envelope)(msg), m.user))
		return m, m.waitForEnv()

	case disconnectedMsg:
		m.appendLine(sysStyle.Render("· disconnected from server ·"))
		return m, tea.Quit
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *model) appendLine(line string) {
	m.lines = append(m.lines, line)
	if m.ready {
		m.viewport.SetContent(m.content())
		m.viewport.GotoBottom()
	}
}

func (m *model) content() string {
	return strings.Join(m.lines, "\n")
}

// sendChat writes one chat frame.  A failed write means the connection is
// gone; the reader goroutine notices and delivers disconnectedMsg.
func (m *model) sendChat(text string) {
	env := &protocol.Envelope{Type: protocol.TypeChat, Room: m.room, User: m.user, Text: text}
	data, err := env.Encode()
	if err != nil {
		return
	}
	_ = protocol.WriteFrame(m.conn, data)
}

// ---------------------------------------------------------------------------
// View
// ---------------------------------------------------------------------------

func (m model) headerView() string {
	return headerStyle.Width(m.width).Render(
		fmt.Sprintf("roomchat · #%s as %s", m.room, m.user))
}

func (m model) View() string {
	if !m.ready {
		return "connecting…"
	}
	footer := footerBorderStyle.Width(m.width - 2).Render(m.input.View())
	return lipgloss.JoinVertical(lipgloss.Left, m.headerView(), m.viewport.View(), footer)
}

// renderEnv turns one server envelope into a display line.
func renderEnv(env *protocol.Envelope, me string) string {
	switch env.Type {
	case protocol.TypeChat:
		ts := tsStyle.Render(time.Unix(env.Ts, 0).Format("15:04:05"))
		name := peerStyle.Render(env.User)
		if env.User == me {
			name = myNameStyle.Render(env.User)
		}
		return fmt.Sprintf("%s %s: %s", ts, name, env.Text)
	case protocol.TypeSys:
		return sysStyle.Render(fmt.Sprintf("· %s (#%s) ·", env.Text, env.Room))
	case protocol.TypePong:
		return sysStyle.Render("· pong ·")
	default:
		return tsStyle.Render(fmt.Sprintf("· %s ·", env.Type))
	}
}

// ---------------------------------------------------------------------------
// main
// ---------------------------------------------------------------------------

func main() {
	if len(os.Args) < 5 {
		fmt.Fprintf(os.Stderr, "Usage: %s <host> <port> <user> <room>\n", os.Args[0])
		os.Exit(1)
	}
	host, port, user, room := os.Args[1], os.Args[2], os.Args[3], os.Args[4]

	conn, err := net.Dial("tcp", net.JoinHostPort(host, port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}

	// Join before entering the UI so the welcome + history arrive first.
	join := &protocol.Envelope{Type: protocol.TypeJoin, Room: room, User: user}
	data, _ := join.Encode()
	if err := protocol.WriteFrame(conn, data); err != nil {
		fmt.Fprintf(os.Stderr, "join: %v\n", err)
		os.Exit(1)
	}

	// Reader goroutine: frames → envelopes → channel.  Closing the channel
	// tells the UI the server went away.
	envs := make(chan *protocol.Envelope, 16)
	go func() {
		defer close(envs)
		for {
			payload, err := protocol.ReadFrame(conn)
			if err != nil {
				return
			}
			env, err := protocol.DecodeEnvelope(payload)
			if err != nil {
				continue // tolerate junk from the server side
			}
			envs <- env
		}
	}()

	p := tea.NewProgram(newModel(conn, envs, user, room), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "ui: %v\n", err)
		os.Exit(1)
	}
}
