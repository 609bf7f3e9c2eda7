// Package session implements the per-connection protocol state machine
// from spec.md §4.3: reads frames, dispatches by type, enforces
// auth/role/mute/rate preconditions, and writes responses.
package session

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/kamivour/chatserver/internal/chaterr"
	"github.com/kamivour/chatserver/internal/hub"
	"github.com/kamivour/chatserver/internal/protocol"
	"github.com/kamivour/chatserver/internal/store"
)

// State mirrors spec.md §4.3's Anonymous/Authenticated/Closed machine.
type State int

const (
	Anonymous State = iota
	AuthenticatedState
	Closed
)

// Session is one connection's authoritative server-side state. It
// implements hub.Session so the Hub can address it without importing
// this package (avoiding an import cycle).
type Session struct {
	id       string
	conn     net.Conn
	peerAddr string
	hub      *hub.Hub
	store    *store.Store
	limiter  *rate.Limiter

	sendMu sync.Mutex

	stateMu     sync.Mutex
	state       State
	username    string
	displayName string
	active      bool
}

// New constructs a Session for a freshly-accepted connection. ratePerSec
// is the chat-frame rate limit from spec.md §4.3 (default 10).
func New(conn net.Conn, h *hub.Hub, st *store.Store, ratePerSec int) *Session {
	if ratePerSec <= 0 {
		ratePerSec = 10
	}
	return &Session{
		id:       uuid.NewString(),
		conn:     conn,
		peerAddr: conn.RemoteAddr().String(),
		hub:      h,
		store:    st,
		limiter:  rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		state:    Anonymous,
		active:   true,
	}
}

// --- hub.Session interface ---

func (s *Session) ID() string          { return s.id }
func (s *Session) PeerAddress() string { return s.peerAddr }

func (s *Session) Username() string {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.username
}

func (s *Session) DisplayName() string {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.displayName
}

func (s *Session) IsAuthenticated() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state == AuthenticatedState
}

func (s *Session) SetInactive() {
	s.stateMu.Lock()
	s.active = false
	s.stateMu.Unlock()
	// Interrupt the blocking read in Run so the worker observes the flag
	// promptly instead of waiting for the next byte from the peer.
	_ = s.conn.Close()
}

func (s *Session) ClearAuth() {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state = Anonymous
	s.username = ""
	s.displayName = ""
}

// Send writes msg to the connection under the session's send lock, which
// guarantees frames from this session are never interleaved on the wire
// (spec.md §5).
func (s *Session) Send(msg protocol.Message) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return protocol.WriteFrame(s.conn, msg)
}

func (s *Session) isActive() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.active
}

// Run is the per-connection worker: it blocks on reads until the peer
// disconnects, an unrecoverable I/O error occurs, or the session is
// marked inactive (kicked, or server shutdown). It never returns an
// error; disconnect handling (offline broadcast, index cleanup) happens
// here so callers only need to install the session and call Run.
func (s *Session) Run() {
	defer s.onDisconnect()

	for s.isActive() {
		msg, err := protocol.ReadFrame(s.conn)
		if err != nil {
			if errors.Is(err, protocol.ErrFrameTooLarge) {
				// Buffer state is reset by ReadFrame itself (the oversized
				// body is drained); the connection stays open per spec.md §4.1.
				s.trySend(protocol.ErrorMsg(chaterr.MsgFrameTooLarge))
				continue
			}
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				// The whole body was consumed, so the stream is still in sync.
				s.trySend(protocol.ErrorMsg(chaterr.MsgMalformedFrame))
				continue
			}
			if !errors.Is(err, io.EOF) && s.isActive() {
				log.Printf("session %s: read error from %s: %v", s.id, s.peerAddr, err)
			}
			return
		}
		s.dispatch(msg)
	}
}

// dispatch never lets a handler panic escape: an unexpected error is
// logged and a generic ERROR frame is attempted, matching spec.md §7's
// Internal category (never unwinds past the per-message boundary).
func (s *Session) dispatch(msg protocol.Message) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("session %s: panic handling %s: %v", s.id, msg.Type, r)
			s.trySend(protocol.ErrorMsg(chaterr.MsgInternal))
		}
	}()

	switch msg.Type {
	case protocol.REGISTER:
		s.handleRegister(msg)
	case protocol.LOGIN:
		s.handleLogin(msg)
	case protocol.LOGOUT:
		s.handleLogout(msg)
	case protocol.CHANGE_PASSWORD:
		s.handleChangePassword(msg)
	case protocol.MSG_GLOBAL:
		s.handleGlobalMessage(msg)
	case protocol.MSG_PRIVATE:
		s.handlePrivateMessage(msg)
	case protocol.PING:
		s.trySend(protocol.Message{Type: protocol.PONG})
	case protocol.USER_INFO:
		s.handleUserInfo(msg)
	case protocol.KICK_USER:
		s.handleKickUser(msg)
	case protocol.BAN_USER:
		s.handleBanUser(msg)
	case protocol.UNBAN_USER:
		s.handleUnbanUser(msg)
	case protocol.MUTE_USER:
		s.handleMuteUser(msg)
	case protocol.UNMUTE_USER:
		s.handleUnmuteUser(msg)
	case protocol.PROMOTE_USER:
		s.handlePromoteUser(msg)
	case protocol.DEMOTE_USER:
		s.handleDemoteUser(msg)
	case protocol.GET_ALL_USERS:
		s.handleGetAllUsers(msg)
	case protocol.GET_BANNED_LIST:
		s.handleGetBannedList(msg)
	case protocol.GET_MUTED_LIST:
		s.handleGetMutedList(msg)
	default:
		s.replyError("Unknown message type")
	}
}

func (s *Session) onDisconnect() {
	username := s.Username()
	if username != "" {
		s.hub.Broadcast(protocol.UserStatusMessage(username, protocol.StatusOffline), s.id)
		s.hub.UnregisterUser(username)
	}
	s.hub.Unregister(s.id)
	_ = s.conn.Close()
	log.Printf("Client disconnected: %s%s", s.peerAddr, disconnectSuffix(username))
}

func disconnectSuffix(username string) string {
	if username == "" {
		return ""
	}
	return " (" + username + ")"
}

// trySend swallows send errors: a failed reply during dispatch is a
// Transient condition for that recipient only (spec.md §7), never a
// reason to crash the dispatcher.
func (s *Session) trySend(msg protocol.Message) {
	_ = s.Send(msg)
}

func (s *Session) replyError(content string) {
	s.trySend(protocol.ErrorMsg(content))
}

func (s *Session) replyOK(content, extra string) {
	s.trySend(protocol.OKMsg(content, extra))
}

func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
