package main

import (
	"fmt"
	"net"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kamivour/chatserver/internal/protocol"
)

const defaultClientPort = "9000"

// Network owns the raw TCP connection to the chat server and turns the
// blocking frame protocol into bubbletea commands/messages.
type Network struct {
	conn net.Conn
}

func NewNetwork() *Network {
	return &Network{}
}

func (n *Network) Connect(host string) error {
	if n.conn != nil {
		n.conn.Close()
	}
	if !strings.Contains(host, ":") {
		host = host + ":" + defaultClientPort
	}

	c, err := net.Dial("tcp", host)
	if err != nil {
		return err
	}
	n.conn = c
	return nil
}

func (n *Network) Disconnect() {
	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
	}
}

func (n *Network) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}

// WaitForMessage is a tea.Cmd that blocks for the next frame from the
// server. Returning it again after each frame keeps the read loop alive
// for the lifetime of the connection.
func (n *Network) WaitForMessage() tea.Msg {
	if n.conn == nil {
		return nil
	}
	msg, err := protocol.ReadFrame(n.conn)
	if err != nil {
		n.Disconnect()
		return errMsg(err)
	}
	return msg
}

func (n *Network) send(msg protocol.Message) tea.Cmd {
	return func() tea.Msg {
		if n.conn == nil {
			return errMsg(fmt.Errorf("not connected"))
		}
		if err := protocol.WriteFrame(n.conn, msg); err != nil {
			return errMsg(err)
		}
		return nil
	}
}

func (n *Network) SendGlobal(content string) tea.Cmd {
	return n.send(protocol.Message{Type: protocol.MSG_GLOBAL, Content: content})
}

func (n *Network) SendPrivate(receiver, content string) tea.Cmd {
	return n.send(protocol.Message{Type: protocol.MSG_PRIVATE, Receiver: receiver, Content: content})
}

func (n *Network) SendRegister(username, password string) tea.Cmd {
	return n.send(protocol.Message{Type: protocol.REGISTER, Content: credentialsJSON(username, password)})
}

func (n *Network) SendLogin(username, password string) tea.Cmd {
	return n.send(protocol.Message{Type: protocol.LOGIN, Content: credentialsJSON(username, password)})
}

func (n *Network) SendLogout() tea.Cmd {
	return n.send(protocol.Message{Type: protocol.LOGOUT})
}

// SendAdminCommand covers the KICK/BAN/UNBAN/MUTE/UNMUTE/PROMOTE/DEMOTE
// family: all of them are a bare type plus a target username.
func (n *Network) SendAdminCommand(msgType protocol.Type, target string) tea.Cmd {
	return n.send(protocol.Message{Type: msgType, Receiver: target})
}

func credentialsJSON(username, password string) string {
	return fmt.Sprintf(`{"username":%q,"password":%q}`, username, password)
}

type errMsg error
