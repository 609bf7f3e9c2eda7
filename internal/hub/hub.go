// Package hub implements the process-wide router described in spec.md
// §4.4: a socket-id → session index and a username → socket-id index,
// with fan-out primitives layered on top.
package hub

import (
	"sync"

	"github.com/kamivour/chatserver/internal/protocol"
	"github.com/kamivour/chatserver/internal/store"
)

// Session is the subset of session.Session the Hub needs. Kept as an
// interface here (rather than the Hub importing package session) so the
// two packages don't form an import cycle: session.Session holds a
// *Hub, and the Hub only ever needs to call back into it.
type Session interface {
	ID() string
	Send(msg protocol.Message) error
	IsAuthenticated() bool
	SetInactive()
	ClearAuth()
	PeerAddress() string
	Username() string
	DisplayName() string
}

// Snapshot is one row of the Status API's connected-clients view
// (spec.md §4.6).
type Snapshot struct {
	Username      string
	DisplayName   string
	PeerAddress   string
	Authenticated bool
	Role          int
}

// Hub owns the two indexes. Lock order, per spec.md §5: clients-lock
// before users-lock, never the reverse.
type Hub struct {
	clientsMu sync.RWMutex
	sessions  map[string]Session // socket-id -> session

	usersMu sync.RWMutex
	users   map[string]string // username -> socket-id

	store *store.Store
}

func New(st *store.Store) *Hub {
	return &Hub{
		sessions: make(map[string]Session),
		users:    make(map[string]string),
		store:    st,
	}
}

// Register installs a newly-accepted session into the socket index.
func (h *Hub) Register(s Session) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	h.sessions[s.ID()] = s
}

// Unregister removes a session from the socket index (on disconnect).
func (h *Hub) Unregister(id string) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	delete(h.sessions, id)
}

// RegisterUser records that username is now authenticated on socket id.
func (h *Hub) RegisterUser(username, id string) {
	h.usersMu.Lock()
	defer h.usersMu.Unlock()
	h.users[username] = id
}

// UnregisterUser removes username from the username index.
func (h *Hub) UnregisterUser(username string) {
	h.usersMu.Lock()
	defer h.usersMu.Unlock()
	delete(h.users, username)
}

// IsOnline reports whether username currently has a live, authenticated
// session.
func (h *Hub) IsOnline(username string) bool {
	h.usersMu.RLock()
	defer h.usersMu.RUnlock()
	_, ok := h.users[username]
	return ok
}

// OnlineUsers returns a snapshot of the username index's keys.
func (h *Hub) OnlineUsers() []string {
	h.usersMu.RLock()
	defer h.usersMu.RUnlock()
	out := make([]string, 0, len(h.users))
	for u := range h.users {
		out = append(out, u)
	}
	return out
}

// Broadcast sends msg to every authenticated session except excludeID
// (pass "" to exclude none). Cross-session ordering is unspecified;
// per-session delivery order is preserved by each session's own send
// lock (spec.md §4.4, §5).
func (h *Hub) Broadcast(msg protocol.Message, excludeID string) {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for id, s := range h.sessions {
		if id == excludeID || !s.IsAuthenticated() {
			continue
		}
		_ = s.Send(msg) // Transient send failures are absorbed per-recipient (spec.md §7).
	}
}

// SendToUser delivers msg to whichever session is currently authenticated
// as username, or reports false if none is. The username-index lock is
// released before the send is attempted, matching spec.md §4.4.
func (h *Hub) SendToUser(username string, msg protocol.Message) bool {
	h.usersMu.RLock()
	id, ok := h.users[username]
	h.usersMu.RUnlock()
	if !ok {
		return false
	}

	h.clientsMu.RLock()
	s, ok := h.sessions[id]
	h.clientsMu.RUnlock()
	if !ok {
		return false
	}
	return s.Send(msg) == nil
}

// KickUser removes username from the username index and marks its
// session inactive with cleared auth. Returns false if the user was not
// online.
func (h *Hub) KickUser(username string) bool {
	h.usersMu.Lock()
	id, ok := h.users[username]
	if ok {
		delete(h.users, username)
	}
	h.usersMu.Unlock()
	if !ok {
		return false
	}

	h.clientsMu.RLock()
	s, ok := h.sessions[id]
	h.clientsMu.RUnlock()
	if ok {
		s.SetInactive()
		s.ClearAuth()
	}
	return ok
}

// Snapshot returns the Status API's connected-clients view (spec.md
// §4.6): every currently-installed session with its auth state and,
// when authenticated, its role resolved from the store.
func (h *Hub) Snapshot() []Snapshot {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	out := make([]Snapshot, 0, len(h.sessions))
	for _, s := range h.sessions {
		snap := Snapshot{
			Username:      s.Username(),
			DisplayName:   s.DisplayName(),
			PeerAddress:   s.PeerAddress(),
			Authenticated: s.IsAuthenticated(),
		}
		if snap.Authenticated && snap.Username != "" {
			snap.Role = h.store.GetRole(snap.Username)
		}
		out = append(out, snap)
	}
	return out
}

// ClientCount returns the number of installed sessions, authenticated or
// not, used by the acceptor's max-clients check.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.sessions)
}
