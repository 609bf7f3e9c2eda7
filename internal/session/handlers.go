package session

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/kamivour/chatserver/internal/chaterr"
	"github.com/kamivour/chatserver/internal/protocol"
	"github.com/kamivour/chatserver/internal/store"
)

type credentialsPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type changePasswordPayload struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type loginOKExtra struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Role        int    `json:"role"`
	IsMuted     bool   `json:"isMuted"`
}

type userInfoExtra struct {
	store.UserInfo
	IsOnline bool `json:"isOnline"`
}

// requireAuth replies AuthorizationError and returns false when the
// session is not Authenticated.
func (s *Session) requireAuth() bool {
	if !s.IsAuthenticated() {
		s.replyError(chaterr.MsgNotAuthenticated)
		return false
	}
	return true
}

// replyStoreError unwraps a store error into the categorized content string
// callers should see, falling back to a generic Internal message (and
// logging the cause) for anything the store didn't tag itself.
func (s *Session) replyStoreError(err error) {
	ce, ok := chaterr.AsCategory(err)
	if !ok {
		log.Printf("session %s: unclassified store error: %v", s.id, err)
		s.replyError(chaterr.MsgInternal)
		return
	}
	if ce.Cat == chaterr.Internal {
		log.Printf("session %s: internal store error: %v", s.id, err)
	}
	s.replyError(ce.Content)
}

// requireAdmin implies requireAuth.
func (s *Session) requireAdmin() bool {
	if !s.requireAuth() {
		return false
	}
	if !s.store.IsAdmin(s.Username()) {
		s.replyError(chaterr.MsgNotAdmin)
		return false
	}
	return true
}

func (s *Session) handleRegister(msg protocol.Message) {
	var payload credentialsPayload
	if err := json.Unmarshal([]byte(msg.Content), &payload); err != nil {
		s.replyError(chaterr.MsgMalformedFrame)
		return
	}
	if len(payload.Username) < 3 || len(payload.Username) > 20 {
		s.replyError(chaterr.MsgInvalidUsernameLen)
		return
	}
	if len(payload.Password) < 4 {
		s.replyError(chaterr.MsgInvalidPasswordLen)
		return
	}

	if err := s.store.Register(payload.Username, payload.Password, ""); err != nil {
		s.replyStoreError(err)
		return
	}
	s.replyOK("Registration successful", "")
}

func (s *Session) handleLogin(msg protocol.Message) {
	if s.IsAuthenticated() {
		s.replyError(chaterr.MsgAlreadyLoggedIn)
		return
	}

	var payload credentialsPayload
	if err := json.Unmarshal([]byte(msg.Content), &payload); err != nil {
		s.replyError(chaterr.MsgMalformedFrame)
		return
	}

	if s.hub.IsOnline(payload.Username) {
		s.replyError(chaterr.MsgDuplicateSession)
		return
	}
	if s.store.IsBanned(payload.Username) {
		s.replyError(chaterr.MsgBanned)
		return
	}
	if !s.store.Authenticate(payload.Username, payload.Password) {
		s.replyError(chaterr.MsgWrongCredentials)
		return
	}

	displayName := s.store.GetDisplayName(payload.Username)
	if displayName == "" {
		displayName = payload.Username
	}
	role := s.store.GetRole(payload.Username)
	isMuted := s.store.IsMuted(payload.Username)

	s.stateMu.Lock()
	s.state = AuthenticatedState
	s.username = payload.Username
	s.displayName = displayName
	s.stateMu.Unlock()

	s.hub.RegisterUser(payload.Username, s.id)

	extra := mustJSON(loginOKExtra{Username: payload.Username, DisplayName: displayName, Role: role, IsMuted: isMuted})
	s.replyOK("Login successful", extra)

	s.hub.Broadcast(protocol.UserStatusMessage(payload.Username, protocol.StatusOnline), "")

	onlineExtra := mustJSON(s.hub.OnlineUsers())
	s.trySend(protocol.OnlineListMessage(onlineExtra))
}

func (s *Session) handleLogout(msg protocol.Message) {
	if !s.requireAuth() {
		return
	}
	username := s.Username()
	s.hub.Broadcast(protocol.UserStatusMessage(username, protocol.StatusOffline), s.id)
	s.hub.UnregisterUser(username)
	s.ClearAuth()
	s.replyOK("Logged out successfully", "")
}

func (s *Session) handleChangePassword(msg protocol.Message) {
	if !s.requireAuth() {
		return
	}
	var payload changePasswordPayload
	if err := json.Unmarshal([]byte(msg.Content), &payload); err != nil {
		s.replyError(chaterr.MsgMalformedFrame)
		return
	}
	if len(payload.NewPassword) < 4 {
		s.replyError(chaterr.MsgInvalidPasswordLen)
		return
	}
	if err := s.store.ChangePassword(s.Username(), payload.OldPassword, payload.NewPassword); err != nil {
		s.replyStoreError(err)
		return
	}
	s.replyOK("Password changed successfully", "")
}

// requireCanChat enforces auth, not-muted and the rate limit shared by
// MSG_GLOBAL and MSG_PRIVATE.
func (s *Session) requireCanChat() bool {
	if !s.requireAuth() {
		return false
	}
	if s.store.IsMuted(s.Username()) {
		s.replyError("You are muted and cannot send messages")
		return false
	}
	if !s.limiter.Allow() {
		s.replyError(chaterr.MsgRateLimited)
		return false
	}
	return true
}

func (s *Session) handleGlobalMessage(msg protocol.Message) {
	if !s.requireCanChat() {
		return
	}
	if msg.Content == "" {
		// Silently ignored, matching ClientSession::handleGlobalMessage.
		return
	}

	username := s.Username()
	_ = s.store.LogMessage(username, "", msg.Content, "global")
	s.hub.Broadcast(protocol.GlobalMessage(username, msg.Content), "")
}

func (s *Session) handlePrivateMessage(msg protocol.Message) {
	if !s.requireCanChat() {
		return
	}
	if msg.Receiver == "" {
		s.replyError(chaterr.MsgReceiverRequired)
		return
	}
	username := s.Username()
	if msg.Receiver == username {
		s.replyError(chaterr.MsgCannotMessageSelf)
		return
	}
	if msg.Content == "" {
		// Silently ignored, matching ClientSession::handlePrivateMessage.
		return
	}

	out := protocol.PrivateMessage(username, msg.Receiver, msg.Content)
	if !s.hub.SendToUser(msg.Receiver, out) {
		s.replyError(chaterr.NotOnline(msg.Receiver).Error())
		return
	}

	// Only logged once delivery has succeeded, per spec.md §8's private-to-offline
	// scenario: no row is created when the receiver isn't online.
	_ = s.store.LogMessage(username, msg.Receiver, msg.Content, "private")
	s.trySend(out)
}

func (s *Session) handleUserInfo(msg protocol.Message) {
	if !s.requireAuth() {
		return
	}
	target := msg.Receiver
	if target == "" {
		target = msg.Content
	}
	info, ok := s.store.GetUserInfo(target)
	if !ok {
		s.replyError(chaterr.MsgTargetNotFound)
		return
	}
	extra := mustJSON(userInfoExtra{UserInfo: info, IsOnline: s.hub.IsOnline(target)})
	s.replyOK("", extra)
}

func (s *Session) handleKickUser(msg protocol.Message) {
	if !s.requireAdmin() {
		return
	}
	target := msg.Receiver
	if target == s.Username() {
		s.replyError(chaterr.MsgCannotActOnSelf)
		return
	}
	if !s.hub.SendToUser(target, protocol.Message{Type: protocol.KICKED, Content: "You have been kicked by an admin"}) {
		s.replyError(chaterr.MsgTargetNotFound)
		return
	}
	s.hub.KickUser(target)
	s.hub.Broadcast(protocol.UserStatusMessage(target, protocol.StatusOffline), "")
	s.replyOK(fmt.Sprintf("User kicked: %s", target), "")
}

func (s *Session) handleBanUser(msg protocol.Message) {
	if !s.requireAdmin() {
		return
	}
	target := msg.Receiver
	if target == s.Username() {
		s.replyError(chaterr.MsgCannotActOnSelf)
		return
	}
	if !s.store.UserExists(target) {
		s.replyError(chaterr.MsgTargetNotFound)
		return
	}
	if s.store.IsAdmin(target) {
		s.replyError(chaterr.MsgTargetIsAdmin)
		return
	}
	s.store.Ban(target)

	if s.hub.IsOnline(target) {
		s.hub.SendToUser(target, protocol.Message{Type: protocol.BANNED, Content: "You have been banned"})
		s.hub.KickUser(target)
		s.hub.Broadcast(protocol.UserStatusMessage(target, protocol.StatusOffline), "")
	}
	s.replyOK(fmt.Sprintf("User banned: %s", target), "")
}

func (s *Session) handleUnbanUser(msg protocol.Message) {
	if !s.requireAdmin() {
		return
	}
	target := msg.Receiver
	if !s.store.UserExists(target) {
		s.replyError(chaterr.MsgTargetNotFound)
		return
	}
	s.store.Unban(target)
	s.replyOK(fmt.Sprintf("User unbanned: %s", target), "")
}

func (s *Session) handleMuteUser(msg protocol.Message) {
	if !s.requireAdmin() {
		return
	}
	target := msg.Receiver
	if target == s.Username() {
		s.replyError(chaterr.MsgCannotActOnSelf)
		return
	}
	if !s.store.UserExists(target) {
		s.replyError(chaterr.MsgTargetNotFound)
		return
	}
	if s.store.IsAdmin(target) {
		s.replyError(chaterr.MsgTargetIsAdmin)
		return
	}
	s.store.Mute(target)
	if s.hub.IsOnline(target) {
		s.hub.SendToUser(target, protocol.Message{Type: protocol.MUTED, Content: "You have been muted"})
	}
	s.replyOK(fmt.Sprintf("User muted: %s", target), "")
}

func (s *Session) handleUnmuteUser(msg protocol.Message) {
	if !s.requireAdmin() {
		return
	}
	target := msg.Receiver
	if !s.store.UserExists(target) {
		s.replyError(chaterr.MsgTargetNotFound)
		return
	}
	s.store.Unmute(target)
	if s.hub.IsOnline(target) {
		s.hub.SendToUser(target, protocol.Message{Type: protocol.UNMUTED, Content: "You have been unmuted"})
	}
	s.replyOK(fmt.Sprintf("User unmuted: %s", target), "")
}

func (s *Session) handlePromoteUser(msg protocol.Message) {
	if !s.requireAdmin() {
		return
	}
	target := msg.Receiver
	if !s.store.UserExists(target) {
		s.replyError(chaterr.MsgTargetNotFound)
		return
	}
	if s.store.IsAdmin(target) {
		s.replyError(chaterr.MsgAlreadyAdmin)
		return
	}
	s.store.SetRole(target, store.RoleAdmin)
	s.replyOK(fmt.Sprintf("User promoted: %s", target), "")
}

func (s *Session) handleDemoteUser(msg protocol.Message) {
	if !s.requireAdmin() {
		return
	}
	target := msg.Receiver
	if target == s.Username() {
		s.replyError(chaterr.MsgCannotActOnSelf)
		return
	}
	if !s.store.IsAdmin(target) {
		s.replyError(chaterr.MsgNotAnAdmin)
		return
	}
	s.store.SetRole(target, store.RoleMember)
	s.replyOK(fmt.Sprintf("User demoted: %s", target), "")
}

func (s *Session) handleGetAllUsers(msg protocol.Message) {
	if !s.requireAdmin() {
		return
	}
	users := s.store.GetAllUsers()
	extra := make([]userInfoExtra, 0, len(users))
	for _, u := range users {
		extra = append(extra, userInfoExtra{UserInfo: u, IsOnline: s.hub.IsOnline(u.Username)})
	}
	s.replyOK("", mustJSON(extra))
}

func (s *Session) handleGetBannedList(msg protocol.Message) {
	if !s.requireAdmin() {
		return
	}
	s.replyOK("", mustJSON(s.store.GetBannedUsers()))
}

func (s *Session) handleGetMutedList(msg protocol.Message) {
	if !s.requireAdmin() {
		return
	}
	s.replyOK("", mustJSON(s.store.GetMutedUsers()))
}
