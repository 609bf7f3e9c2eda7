package session_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamivour/chatserver/internal/auth"
	"github.com/kamivour/chatserver/internal/hub"
	"github.com/kamivour/chatserver/internal/protocol"
	"github.com/kamivour/chatserver/internal/session"
	"github.com/kamivour/chatserver/internal/store"
)

// testClient drives one Session over an in-process net.Pipe, draining
// incoming frames into a channel so a synchronous fan-out from the
// server side (net.Pipe is unbuffered) never has to wait on the test
// goroutine to call recv at exactly the right moment.
type testClient struct {
	conn     net.Conn
	incoming chan protocol.Message
}

func newTestClient(h *hub.Hub, st *store.Store) *testClient {
	serverSide, clientSide := net.Pipe()
	sess := session.New(serverSide, h, st, 10)
	h.Register(sess)
	go sess.Run()

	tc := &testClient{conn: clientSide, incoming: make(chan protocol.Message, 64)}
	go func() {
		for {
			msg, err := protocol.ReadFrame(tc.conn)
			if err != nil {
				close(tc.incoming)
				return
			}
			tc.incoming <- msg
		}
	}()
	return tc
}

func (tc *testClient) send(t *testing.T, msg protocol.Message) {
	t.Helper()
	require.NoError(t, protocol.WriteFrame(tc.conn, msg))
}

func (tc *testClient) recv(t *testing.T) protocol.Message {
	t.Helper()
	select {
	case msg, ok := <-tc.incoming:
		require.True(t, ok, "connection closed while waiting for a frame")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for a frame")
		return protocol.Message{}
	}
}

func newTestEnv(t *testing.T) (*hub.Hub, *store.Store) {
	t.Helper()
	st, err := store.New(":memory:", auth.ReferenceHasher{})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return hub.New(st), st
}

func registerAndLogin(t *testing.T, h *hub.Hub, st *store.Store, username, password string) *testClient {
	t.Helper()
	tc := newTestClient(h, st)
	tc.send(t, protocol.Message{Type: protocol.REGISTER, Content: `{"username":"` + username + `","password":"` + password + `"}`})
	reg := tc.recv(t)
	require.Equal(t, protocol.OK, reg.Type)

	tc.send(t, protocol.Message{Type: protocol.LOGIN, Content: `{"username":"` + username + `","password":"` + password + `"}`})
	loginOK := tc.recv(t)
	require.Equal(t, protocol.OK, loginOK.Type)
	tc.recv(t) // USER_STATUS(online) broadcast includes the newly-authenticated session itself
	tc.recv(t) // ONLINE_LIST sent to self after login
	return tc
}

func TestGlobalEcho(t *testing.T) {
	h, st := newTestEnv(t)
	alice := registerAndLogin(t, h, st, "alice", "pw12")
	bob := registerAndLogin(t, h, st, "bob", "pw12")

	// bob's login broadcasts USER_STATUS(online) to alice.
	status := alice.recv(t)
	assert.Equal(t, protocol.USER_STATUS, status.Type)

	alice.send(t, protocol.Message{Type: protocol.MSG_GLOBAL, Content: "hi"})

	m1 := alice.recv(t)
	m2 := bob.recv(t)
	assert.Equal(t, protocol.MSG_GLOBAL, m1.Type)
	assert.Equal(t, "alice", m1.Sender)
	assert.Equal(t, "hi", m1.Content)
	assert.Equal(t, m1, m2)

	assert.Equal(t, 1, st.GetMessageCount())
}

func TestPrivateToOffline(t *testing.T) {
	h, st := newTestEnv(t)
	alice := registerAndLogin(t, h, st, "alice", "pw12")

	alice.send(t, protocol.Message{Type: protocol.MSG_PRIVATE, Receiver: "bob", Content: "hello"})
	reply := alice.recv(t)

	assert.Equal(t, protocol.ERROR, reply.Type)
	assert.Contains(t, reply.Content, "not online")
	assert.Equal(t, 0, st.GetMessageCount(), "a failed delivery must not leave a log row behind")
}

func TestDuplicateLoginRejected(t *testing.T) {
	h, st := newTestEnv(t)
	alice := registerAndLogin(t, h, st, "alice", "pw12")

	second := newTestClient(h, st)
	second.send(t, protocol.Message{Type: protocol.LOGIN, Content: `{"username":"alice","password":"pw12"}`})
	reply := second.recv(t)
	assert.Equal(t, protocol.ERROR, reply.Type)

	// alice's original connection must not see anything from this rejected attempt.
	select {
	case msg := <-alice.incoming:
		t.Fatalf("unexpected frame on original session: %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBanKicksAndBars(t *testing.T) {
	h, st := newTestEnv(t)
	root := registerAndLogin(t, h, st, "root", "pw12") // first user, auto-admin
	alice := registerAndLogin(t, h, st, "alice", "pw12")
	root.recv(t) // USER_STATUS(alice online)

	root.send(t, protocol.Message{Type: protocol.BAN_USER, Receiver: "alice"})

	banned := alice.recv(t)
	assert.Equal(t, protocol.BANNED, banned.Type)

	offline := root.recv(t)
	assert.Equal(t, protocol.USER_STATUS, offline.Type)
	assert.Equal(t, protocol.StatusOffline, offline.Content)

	ok := root.recv(t)
	assert.Equal(t, protocol.OK, ok.Type)

	relogin := newTestClient(h, st)
	relogin.send(t, protocol.Message{Type: protocol.LOGIN, Content: `{"username":"alice","password":"pw12"}`})
	reply := relogin.recv(t)
	assert.Equal(t, protocol.ERROR, reply.Type)
	assert.Contains(t, reply.Content, "banned")
}

func TestMuteBlocksChatNotControl(t *testing.T) {
	h, st := newTestEnv(t)
	root := registerAndLogin(t, h, st, "root", "pw12")
	alice := registerAndLogin(t, h, st, "alice", "pw12")
	root.recv(t) // USER_STATUS(alice online)

	root.send(t, protocol.Message{Type: protocol.MUTE_USER, Receiver: "alice"})
	muted := alice.recv(t)
	assert.Equal(t, protocol.MUTED, muted.Type)
	root.recv(t) // OK for the mute command

	alice.send(t, protocol.Message{Type: protocol.MSG_GLOBAL, Content: "x"})
	errMsg := alice.recv(t)
	assert.Equal(t, protocol.ERROR, errMsg.Type)

	alice.send(t, protocol.Message{Type: protocol.PING})
	pong := alice.recv(t)
	assert.Equal(t, protocol.PONG, pong.Type)
}

func TestRegisterUsernameLengthBoundaries(t *testing.T) {
	cases := []struct {
		name     string
		username string
		wantOK   bool
	}{
		{"two chars rejected", "ab", false},
		{"three chars accepted", "abc", true},
		{"twenty chars accepted", "abcdefghijklmnopqrst", true},
		{"twenty-one chars rejected", "abcdefghijklmnopqrstu", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, st := newTestEnv(t)
			client := newTestClient(h, st)
			client.send(t, protocol.Message{Type: protocol.REGISTER, Content: `{"username":"` + tc.username + `","password":"pw12"}`})
			reply := client.recv(t)
			if tc.wantOK {
				assert.Equal(t, protocol.OK, reply.Type)
			} else {
				assert.Equal(t, protocol.ERROR, reply.Type)
			}
		})
	}
}

func TestRegisterPasswordLengthBoundaries(t *testing.T) {
	cases := []struct {
		name     string
		password string
		wantOK   bool
	}{
		{"three chars rejected", "abc", false},
		{"four chars accepted", "abcd", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, st := newTestEnv(t)
			client := newTestClient(h, st)
			client.send(t, protocol.Message{Type: protocol.REGISTER, Content: `{"username":"alice","password":"` + tc.password + `"}`})
			reply := client.recv(t)
			if tc.wantOK {
				assert.Equal(t, protocol.OK, reply.Type)
			} else {
				assert.Equal(t, protocol.ERROR, reply.Type)
			}
		})
	}
}

func TestRateLimitBoundary(t *testing.T) {
	h, st := newTestEnv(t)
	alice := registerAndLogin(t, h, st, "alice", "pw12")

	for i := 0; i < 10; i++ {
		alice.send(t, protocol.Message{Type: protocol.MSG_GLOBAL, Content: "msg"})
		reply := alice.recv(t)
		require.Equal(t, protocol.MSG_GLOBAL, reply.Type)
	}

	alice.send(t, protocol.Message{Type: protocol.MSG_GLOBAL, Content: "eleventh"})
	reply := alice.recv(t)
	assert.Equal(t, protocol.ERROR, reply.Type)
}
