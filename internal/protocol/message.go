// Package protocol implements the wire format shared by the chat server
// and its clients: a 4-byte big-endian length prefix followed by a JSON
// object describing one message.
package protocol

// Type is the integer message-type code. Values are part of the wire
// contract and must never be renumbered.
type Type int

const (
	REGISTER        Type = 1
	LOGIN           Type = 2
	LOGOUT          Type = 3
	CHANGE_PASSWORD Type = 4

	MSG_GLOBAL  Type = 10
	MSG_PRIVATE Type = 11

	ONLINE_LIST Type = 20
	USER_STATUS Type = 21
	USER_INFO   Type = 22

	KICK_USER       Type = 30
	BAN_USER        Type = 31
	UNBAN_USER      Type = 32
	MUTE_USER       Type = 33
	UNMUTE_USER     Type = 34
	PROMOTE_USER    Type = 35
	DEMOTE_USER     Type = 36
	GET_ALL_USERS   Type = 37
	GET_BANNED_LIST Type = 38
	GET_MUTED_LIST  Type = 39

	KICKED  Type = 40
	BANNED  Type = 41
	MUTED   Type = 42
	UNMUTED Type = 43

	OK    Type = 100
	ERROR Type = 101

	PING Type = 200
	PONG Type = 201
)

var typeNames = map[Type]string{
	REGISTER: "REGISTER", LOGIN: "LOGIN", LOGOUT: "LOGOUT", CHANGE_PASSWORD: "CHANGE_PASSWORD",
	MSG_GLOBAL: "MSG_GLOBAL", MSG_PRIVATE: "MSG_PRIVATE",
	ONLINE_LIST: "ONLINE_LIST", USER_STATUS: "USER_STATUS", USER_INFO: "USER_INFO",
	KICK_USER: "KICK_USER", BAN_USER: "BAN_USER", UNBAN_USER: "UNBAN_USER",
	MUTE_USER: "MUTE_USER", UNMUTE_USER: "UNMUTE_USER",
	PROMOTE_USER: "PROMOTE_USER", DEMOTE_USER: "DEMOTE_USER",
	GET_ALL_USERS: "GET_ALL_USERS", GET_BANNED_LIST: "GET_BANNED_LIST", GET_MUTED_LIST: "GET_MUTED_LIST",
	KICKED: "KICKED", BANNED: "BANNED", MUTED: "MUTED", UNMUTED: "UNMUTED",
	OK: "OK", ERROR: "ERROR", PING: "PING", PONG: "PONG",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// Message is one frame's JSON payload.
type Message struct {
	Type      Type   `json:"type"`
	Sender    string `json:"sender"`
	Receiver  string `json:"receiver"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Extra     string `json:"extra"`
}

// OKMsg builds a success response.
func OKMsg(content, extra string) Message {
	return Message{Type: OK, Content: content, Extra: extra, Timestamp: nowStamp()}
}

// ErrorMsg builds an error response.
func ErrorMsg(content string) Message {
	return Message{Type: ERROR, Content: content, Timestamp: nowStamp()}
}

// GlobalMessage builds a MSG_GLOBAL frame.
func GlobalMessage(sender, content string) Message {
	return Message{Type: MSG_GLOBAL, Sender: sender, Content: content, Timestamp: nowStamp()}
}

// PrivateMessage builds a MSG_PRIVATE frame.
func PrivateMessage(sender, receiver, content string) Message {
	return Message{Type: MSG_PRIVATE, Sender: sender, Receiver: receiver, Content: content, Timestamp: nowStamp()}
}

// OnlineListMessage builds an ONLINE_LIST frame; users is JSON-encoded into Extra by the caller.
func OnlineListMessage(extraJSON string) Message {
	return Message{Type: ONLINE_LIST, Extra: extraJSON, Timestamp: nowStamp()}
}

// UserStatus values used in USER_STATUS.Content.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// UserStatusMessage builds a USER_STATUS frame.
func UserStatusMessage(username, status string) Message {
	return Message{Type: USER_STATUS, Sender: username, Content: status, Timestamp: nowStamp()}
}
