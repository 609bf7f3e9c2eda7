package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamivour/chatserver/internal/auth"
	"github.com/kamivour/chatserver/internal/protocol"
	"github.com/kamivour/chatserver/internal/store"
)

type fakeSession struct {
	id            string
	username      string
	displayName   string
	peerAddress   string
	authenticated bool
	active        bool
	received      []protocol.Message
}

func newFakeSession(id, username string) *fakeSession {
	return &fakeSession{id: id, username: username, displayName: username, active: true, authenticated: username != ""}
}

func (f *fakeSession) ID() string          { return f.id }
func (f *fakeSession) PeerAddress() string { return f.peerAddress }
func (f *fakeSession) Username() string    { return f.username }
func (f *fakeSession) DisplayName() string { return f.displayName }
func (f *fakeSession) IsAuthenticated() bool {
	return f.authenticated
}
func (f *fakeSession) SetInactive() { f.active = false }
func (f *fakeSession) ClearAuth()   { f.authenticated = false; f.username = "" }
func (f *fakeSession) Send(msg protocol.Message) error {
	f.received = append(f.received, msg)
	return nil
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	s, err := store.New(":memory:", auth.ReferenceHasher{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s)
}

func TestAtMostOneSessionPerUsername(t *testing.T) {
	h := newTestHub(t)
	h.RegisterUser("alice", "sock-1")
	assert.True(t, h.IsOnline("alice"))

	// A second login for the same username overwrites the index entry,
	// matching the reference's map semantics; session-layer duplicate
	// rejection (spec.md §4.3 DuplicateSession) happens before this call.
	h.RegisterUser("alice", "sock-2")
	assert.Equal(t, []string{"alice"}, h.OnlineUsers())
}

func TestKickRemovesFromUsernameIndex(t *testing.T) {
	h := newTestHub(t)
	sess := newFakeSession("sock-1", "alice")
	h.Register(sess)
	h.RegisterUser("alice", "sock-1")

	ok := h.KickUser("alice")
	require.True(t, ok)

	assert.False(t, h.IsOnline("alice"))
	assert.False(t, sess.IsAuthenticated())
}

func TestBroadcastExcludesGivenSocketAndUnauthenticated(t *testing.T) {
	h := newTestHub(t)
	alice := newFakeSession("sock-1", "alice")
	bob := newFakeSession("sock-2", "bob")
	anon := newFakeSession("sock-3", "")

	h.Register(alice)
	h.Register(bob)
	h.Register(anon)

	h.Broadcast(protocol.GlobalMessage("alice", "hi"), "sock-1")

	assert.Empty(t, alice.received)
	require.Len(t, bob.received, 1)
	assert.Empty(t, anon.received)
}

func TestSendToUserFailsWhenOffline(t *testing.T) {
	h := newTestHub(t)
	ok := h.SendToUser("ghost", protocol.PrivateMessage("alice", "ghost", "hi"))
	assert.False(t, ok)
}
