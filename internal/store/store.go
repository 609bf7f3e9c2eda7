// Package store implements the durable account/message store described in
// spec.md §4.2, backed by SQLite. All operations are serialized behind a
// single mutex: chat throughput is dominated by fan-out, not DB
// contention, so a coarse lock is an explicit, accepted design choice
// (spec.md §4.2).
package store

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kamivour/chatserver/internal/auth"
	"github.com/kamivour/chatserver/internal/chaterr"
)

const (
	RoleMember = 0
	RoleAdmin  = 1
)

// UserInfo is a read-only snapshot of a user row, used for GET_ALL_USERS,
// USER_INFO and the Status API.
type UserInfo struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Role        int    `json:"role"`
	IsBanned    bool   `json:"isBanned"`
	IsMuted     bool   `json:"isMuted"`
	CreatedAt   string `json:"createdAt"`
}

// MessageRecord is one persisted chat message row.
type MessageRecord struct {
	ID        int64  `json:"id"`
	Sender    string `json:"sender"`
	Receiver  string `json:"receiver"`
	Content   string `json:"content"`
	Kind      string `json:"kind"`
	Timestamp string `json:"timestamp"`
}

// Store is a dependency-injected replacement for the reference
// implementation's process-wide Database singleton (spec.md §9):
// constructed explicitly at startup and passed into the Hub and each
// Session.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	hasher auth.Hasher
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT UNIQUE NOT NULL,
	password TEXT NOT NULL,
	display_name TEXT,
	role INTEGER DEFAULT 0,
	is_banned INTEGER DEFAULT 0,
	is_muted INTEGER DEFAULT 0,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_username ON users(username);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	sender TEXT NOT NULL,
	receiver TEXT,
	content TEXT NOT NULL,
	message_type TEXT NOT NULL,
	timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender);
CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp);
`

// New opens (creating if necessary) the SQLite file at path, applies the
// schema, and promotes the earliest-created user to admin if no admin
// currently exists — the same check original_source/server/Database.cpp
// runs on every initialize(), not only on first-ever registration.
func New(path string, hasher auth.Hasher) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	db.SetMaxOpenConns(1) // single file, coarse lock already serializes access

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: schema: %w", err)
	}

	s := &Store{db: db, hasher: hasher}
	if err := s.promoteFirstAdminIfNeeded(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) promoteFirstAdminIfNeeded() error {
	var adminCount int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM users WHERE role = ?`, RoleAdmin).Scan(&adminCount); err != nil {
		return fmt.Errorf("store: count admins: %w", err)
	}
	if adminCount > 0 {
		return nil
	}
	_, err := s.db.Exec(`UPDATE users SET role = ? WHERE id = (SELECT MIN(id) FROM users)`, RoleAdmin)
	if err != nil {
		return fmt.Errorf("store: promote first admin: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Register inserts a new user with a hashed password. Length validation
// (username 3-20, password >=4) is the session layer's responsibility
// per spec.md §4.2; Register itself only enforces uniqueness.
func (s *Store) Register(username, password, displayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM users WHERE username = ?`, username).Scan(&count); err != nil {
		return fmt.Errorf("store: check exists: %w", err)
	}
	if count > 0 {
		return chaterr.New(chaterr.Auth, chaterr.MsgUsernameExists)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("store: hash password: %w", err)
	}
	if displayName == "" {
		displayName = username
	}

	if _, err := s.db.Exec(
		`INSERT INTO users (username, password, display_name) VALUES (?, ?, ?)`,
		username, hash, displayName,
	); err != nil {
		return chaterr.Wrap(chaterr.Internal, chaterr.MsgInternal, fmt.Errorf("store: insert user: %w", err))
	}

	return s.promoteFirstAdminIfNeeded()
}

// Authenticate reports whether the credentials match a stored user. It
// does not disclose whether the username exists: a missing user and a
// wrong password both simply return false.
func (s *Store) Authenticate(username, password string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var hash string
	err := s.db.QueryRow(`SELECT password FROM users WHERE username = ?`, username).Scan(&hash)
	if err != nil {
		return false
	}
	return s.hasher.Verify(password, hash)
}

// ChangePassword re-verifies old before writing new.
func (s *Store) ChangePassword(username, oldPassword, newPassword string) error {
	if !s.Authenticate(username, oldPassword) {
		return chaterr.New(chaterr.Auth, chaterr.MsgWrongCredentials)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("store: hash password: %w", err)
	}
	res, err := s.db.Exec(
		`UPDATE users SET password = ?, updated_at = CURRENT_TIMESTAMP WHERE username = ?`,
		hash, username,
	)
	if err != nil {
		return chaterr.Wrap(chaterr.Internal, chaterr.MsgInternal, fmt.Errorf("store: update password: %w", err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return chaterr.New(chaterr.State, chaterr.MsgTargetNotFound)
	}
	return nil
}

func (s *Store) UserExists(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM users WHERE username = ?`, username).Scan(&count)
	return count > 0
}

func (s *Store) GetDisplayName(username string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var name string
	if err := s.db.QueryRow(`SELECT display_name FROM users WHERE username = ?`, username).Scan(&name); err != nil {
		return ""
	}
	return name
}

func (s *Store) GetRole(username string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var role int
	if err := s.db.QueryRow(`SELECT role FROM users WHERE username = ?`, username).Scan(&role); err != nil {
		return -1
	}
	return role
}

func (s *Store) IsAdmin(username string) bool {
	return s.GetRole(username) == RoleAdmin
}

func (s *Store) SetRole(username string, role int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`UPDATE users SET role = ?, updated_at = CURRENT_TIMESTAMP WHERE username = ?`, role, username)
	if err != nil {
		return false
	}
	n, _ := res.RowsAffected()
	return n > 0
}

func (s *Store) setFlag(column, username string, value bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := 0
	if value {
		v = 1
	}
	query := fmt.Sprintf(`UPDATE users SET %s = ?, updated_at = CURRENT_TIMESTAMP WHERE username = ?`, column)
	res, err := s.db.Exec(query, v, username)
	if err != nil {
		return false
	}
	n, _ := res.RowsAffected()
	return n > 0
}

func (s *Store) getFlag(column, username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	var v int
	query := fmt.Sprintf(`SELECT %s FROM users WHERE username = ?`, column)
	if err := s.db.QueryRow(query, username).Scan(&v); err != nil {
		return false
	}
	return v != 0
}

func (s *Store) Ban(username string) bool   { return s.setFlag("is_banned", username, true) }
func (s *Store) Unban(username string) bool { return s.setFlag("is_banned", username, false) }
func (s *Store) IsBanned(username string) bool { return s.getFlag("is_banned", username) }

func (s *Store) Mute(username string) bool     { return s.setFlag("is_muted", username, true) }
func (s *Store) Unmute(username string) bool   { return s.setFlag("is_muted", username, false) }
func (s *Store) IsMuted(username string) bool  { return s.getFlag("is_muted", username) }

func (s *Store) listWhere(column string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	query := fmt.Sprintf(`SELECT username FROM users WHERE %s = 1`, column)
	rows, err := s.db.Query(query)
	if err != nil {
		return nil
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var u string
		if rows.Scan(&u) == nil {
			out = append(out, u)
		}
	}
	return out
}

func (s *Store) GetBannedUsers() []string { return s.listWhere("is_banned") }
func (s *Store) GetMutedUsers() []string  { return s.listWhere("is_muted") }

// GetUserInfo returns the stored record for username, or false if not found.
func (s *Store) GetUserInfo(username string) (UserInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var info UserInfo
	var isBanned, isMuted int
	err := s.db.QueryRow(
		`SELECT username, display_name, role, is_banned, is_muted, created_at FROM users WHERE username = ?`,
		username,
	).Scan(&info.Username, &info.DisplayName, &info.Role, &isBanned, &isMuted, &info.CreatedAt)
	if err != nil {
		return UserInfo{}, false
	}
	info.IsBanned = isBanned != 0
	info.IsMuted = isMuted != 0
	return info, true
}

// GetAllUsers returns every registered user, ordered by username.
func (s *Store) GetAllUsers() []UserInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(
		`SELECT username, display_name, role, is_banned, is_muted, created_at FROM users ORDER BY username`,
	)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []UserInfo
	for rows.Next() {
		var info UserInfo
		var isBanned, isMuted int
		if err := rows.Scan(&info.Username, &info.DisplayName, &info.Role, &isBanned, &isMuted, &info.CreatedAt); err != nil {
			continue
		}
		info.IsBanned = isBanned != 0
		info.IsMuted = isMuted != 0
		out = append(out, info)
	}
	return out
}

// LogMessage appends a row to the message log. receiver is stored empty
// for global messages.
func (s *Store) LogMessage(sender, receiver, content, kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO messages (sender, receiver, content, message_type) VALUES (?, ?, ?, ?)`,
		sender, receiver, content, kind,
	)
	if err != nil {
		return fmt.Errorf("store: log message: %w", err)
	}
	return nil
}

// GetRecentMessages returns the most recent messages, newest first.
func (s *Store) GetRecentMessages(limit int) ([]MessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(
		`SELECT id, sender, receiver, content, message_type, timestamp FROM messages ORDER BY timestamp DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: recent messages: %w", err)
	}
	defer rows.Close()

	var out []MessageRecord
	for rows.Next() {
		var m MessageRecord
		var receiver sql.NullString
		if err := rows.Scan(&m.ID, &m.Sender, &receiver, &m.Content, &m.Kind, &m.Timestamp); err != nil {
			continue
		}
		m.Receiver = receiver.String
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) GetMessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count
}
