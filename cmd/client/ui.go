package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kamivour/chatserver/internal/protocol"
)

type connectionMsg struct {
	connected bool
}

type modelState struct {
	network       *Network
	viewport      viewport.Model
	textInput     textinput.Model
	messages      []string
	err           error
	ready         bool
	authenticated bool
	username      string
}

func initialModel(net *Network) modelState {
	ti := textinput.New()
	ti.Placeholder = "/connect host:port, /register, /login, or a message once logged in..."
	ti.Focus()
	ti.CharLimit = 1024
	ti.Width = 40

	return modelState{
		network:   net,
		textInput: ti,
		messages:  []string{},
	}
}

func (m modelState) Init() tea.Cmd {
	return textinput.Blink
}

func (m *modelState) appendLine(line string) {
	m.messages = append(m.messages, line)
	m.viewport.SetContent(strings.Join(m.messages, "\n"))
	m.viewport.GotoBottom()
}

var adminCommands = map[string]protocol.Type{
	"kick":    protocol.KICK_USER,
	"ban":     protocol.BAN_USER,
	"unban":   protocol.UNBAN_USER,
	"mute":    protocol.MUTE_USER,
	"unmute":  protocol.UNMUTE_USER,
	"promote": protocol.PROMOTE_USER,
	"demote":  protocol.DEMOTE_USER,
}

func (m modelState) handleCommand(content string) (tea.Model, tea.Cmd) {
	parts := strings.Fields(content)
	cmd := parts[0]
	args := parts[1:]

	switch cmd {
	case "/connect":
		if len(args) != 1 {
			m.appendLine("Usage: /connect <host:port>")
			return m, nil
		}
		host := args[0]
		return m, func() tea.Msg {
			if err := m.network.Connect(host); err != nil {
				return errMsg(err)
			}
			return connectionMsg{connected: true}
		}
	case "/register":
		if len(args) != 2 {
			m.appendLine("Usage: /register <username> <password>")
			return m, nil
		}
		return m, m.network.SendRegister(args[0], args[1])
	case "/login":
		if len(args) != 2 {
			m.appendLine("Usage: /login <username> <password>")
			return m, nil
		}
		return m, m.network.SendLogin(args[0], args[1])
	case "/logout":
		return m, m.network.SendLogout()
	case "/w":
		if len(args) < 2 {
			m.appendLine("Usage: /w <username> <message>")
			return m, nil
		}
		return m, m.network.SendPrivate(args[0], strings.Join(args[1:], " "))
	case "/quit":
		return m, tea.Quit
	default:
		name := strings.TrimPrefix(cmd, "/")
		if msgType, ok := adminCommands[name]; ok {
			if len(args) != 1 {
				m.appendLine(fmt.Sprintf("Usage: /%s <username>", name))
				return m, nil
			}
			return m, m.network.SendAdminCommand(msgType, args[0])
		}
		m.appendLine("Unknown command: " + cmd)
		return m, nil
	}
}

func (m modelState) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			content := m.textInput.Value()
			if content == "" {
				break
			}
			m.textInput.SetValue("")

			if strings.HasPrefix(content, "/") {
				return m.handleCommand(content)
			}
			if !m.authenticated {
				m.appendLine("Not logged in. Use /login <username> <password>.")
				return m, nil
			}
			return m, m.network.SendGlobal(content)
		}

	case connectionMsg:
		if msg.connected {
			m.appendLine("Connected.")
			return m, m.network.WaitForMessage
		}

	case tea.WindowSizeMsg:
		footerHeight := 3
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-footerHeight)
			m.viewport.SetContent("")
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - footerHeight
		}
		m.textInput.Width = msg.Width

	case protocol.Message:
		m.handleServerMessage(msg)
		return m, m.network.WaitForMessage

	case errMsg:
		m.err = msg
		m.appendLine(fmt.Sprintf("Error: %v", msg))
		return m, nil
	}

	m.textInput, tiCmd = m.textInput.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd)
}

func (m *modelState) handleServerMessage(msg protocol.Message) {
	switch msg.Type {
	case protocol.OK:
		if strings.Contains(msg.Content, "Login successful") {
			m.authenticated = true
		}
		m.appendLine(formatSystem(msg.Content))
	case protocol.ERROR:
		m.appendLine(formatSystem("Error: " + msg.Content))
	case protocol.MSG_GLOBAL:
		m.appendLine(formatChat(msg.Sender, msg.Content, false))
	case protocol.MSG_PRIVATE:
		m.appendLine(formatChat(msg.Sender, msg.Content, true))
	case protocol.USER_STATUS:
		m.appendLine(formatSystem(fmt.Sprintf("%s is now %s", msg.Sender, msg.Content)))
	case protocol.ONLINE_LIST:
		m.appendLine(formatSystem("Online: " + msg.Extra))
	case protocol.KICKED:
		m.authenticated = false
		m.appendLine(formatSystem("You have been kicked: " + msg.Content))
	case protocol.BANNED:
		m.authenticated = false
		m.appendLine(formatSystem("You have been banned: " + msg.Content))
	case protocol.MUTED:
		m.appendLine(formatSystem("You have been muted: " + msg.Content))
	case protocol.UNMUTED:
		m.appendLine(formatSystem("You have been unmuted: " + msg.Content))
	case protocol.PONG:
		// heartbeat reply, nothing to render
	default:
		m.appendLine(formatSystem(msg.Type.String() + ": " + msg.Content))
	}
}

func (m modelState) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}
	return fmt.Sprintf("%s\n%s\n%s",
		m.viewport.View(),
		strings.Repeat("─", m.viewport.Width),
		m.textInput.View(),
	)
}

var (
	systemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080")).Italic(true)
	senderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#00AFAF")).Bold(true)
	privStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#D787FF")).Bold(true)
)

func formatSystem(text string) string {
	return systemStyle.Render(fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), text))
}

func formatChat(sender, content string, private bool) string {
	style := senderStyle
	tag := ""
	if private {
		style = privStyle
		tag = " (whisper)"
	}
	return fmt.Sprintf("[%s] %s%s: %s", time.Now().Format("15:04:05"), style.Render(sender), tag, content)
}
