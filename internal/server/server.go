// Package server implements the connection acceptor and the small
// operator-facing status/broadcast API layered on top of the hub.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/kamivour/chatserver/internal/hub"
	"github.com/kamivour/chatserver/internal/protocol"
	"github.com/kamivour/chatserver/internal/session"
	"github.com/kamivour/chatserver/internal/store"
)

// Server owns the listener and the pool of in-flight connection
// goroutines. Shutdown is context-driven: cancelling ctx stops the
// accept loop and Wait blocks until every session goroutine has
// returned, replacing the reference implementation's detach-and-sleep
// pattern with a proper join.
type Server struct {
	hub        *hub.Hub
	store      *store.Store
	maxClients int
	rateLimit  int

	wg sync.WaitGroup
}

func New(h *hub.Hub, st *store.Store, maxClients, rateLimit int) *Server {
	return &Server{hub: h, store: st, maxClients: maxClients, rateLimit: rateLimit}
}

// Run accepts connections on ln until ctx is cancelled or Accept fails.
// It never returns an error for the ctx-cancelled case; callers should
// select on ctx.Done() themselves if they need to distinguish the two.
func (s *Server) Run(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}

		if s.hub.ClientCount() >= s.maxClients {
			log.Printf("rejecting %s: server full (%d/%d)", conn.RemoteAddr(), s.hub.ClientCount(), s.maxClients)
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serve(ctx, conn)
		}()
	}
}

func (s *Server) serve(ctx context.Context, conn net.Conn) {
	sess := session.New(conn, s.hub, s.store, s.rateLimit)
	s.hub.Register(sess)
	log.Printf("New connection from %s", conn.RemoteAddr())
	// On shutdown, mark the session inactive so its blocking read returns.
	stop := context.AfterFunc(ctx, sess.SetInactive)
	defer stop()
	sess.Run()
}

// Wait blocks until every accepted connection's session goroutine has
// returned. Call after Run has returned during shutdown.
func (s *Server) Wait() {
	s.wg.Wait()
}

// serverSender is the fixed frame sender for operator-originated messages
// (spec.md §4.6): never a real username.
const serverSender = "[SERVER]"

// BroadcastServerMessage sends an operator-authored global announcement.
func (s *Server) BroadcastServerMessage(content string) {
	s.hub.Broadcast(protocol.Message{Type: protocol.MSG_GLOBAL, Sender: serverSender, Content: content}, "")
}

// SendServerMessageToUser sends an operator-authored private message to a
// single online user. Returns false if the user isn't online.
func (s *Server) SendServerMessageToUser(username, content string) bool {
	return s.hub.SendToUser(username, protocol.Message{Type: protocol.MSG_PRIVATE, Sender: serverSender, Receiver: username, Content: content})
}

// KickByName is the console-facing wrapper around hub.KickUser, returning
// a human-readable outcome for the operator console.
func (s *Server) KickByName(username string) string {
	if s.hub.KickUser(username) {
		s.hub.Broadcast(protocol.UserStatusMessage(username, protocol.StatusOffline), "")
		return fmt.Sprintf("kicked %s", username)
	}
	return fmt.Sprintf("%s is not online", username)
}

// BanByName bans username in the store and, if currently online, kicks
// its session. Mirrors handleBanUser's admin-protection rule.
func (s *Server) BanByName(username string) string {
	if !s.store.UserExists(username) {
		return fmt.Sprintf("no such user: %s", username)
	}
	if s.store.IsAdmin(username) {
		return "cannot ban an admin"
	}
	s.store.Ban(username)
	if s.hub.IsOnline(username) {
		s.hub.SendToUser(username, protocol.Message{Type: protocol.BANNED, Content: "You have been banned"})
		s.hub.KickUser(username)
		s.hub.Broadcast(protocol.UserStatusMessage(username, protocol.StatusOffline), "")
	}
	return fmt.Sprintf("banned %s", username)
}

// UnbanByName lifts a ban from the console.
func (s *Server) UnbanByName(username string) string {
	if !s.store.UserExists(username) {
		return fmt.Sprintf("no such user: %s", username)
	}
	s.store.Unban(username)
	return fmt.Sprintf("unbanned %s", username)
}

// ConnectedClients exposes the Status API snapshot for the console's
// "clients" command.
func (s *Server) ConnectedClients() []hub.Snapshot {
	return s.hub.Snapshot()
}
