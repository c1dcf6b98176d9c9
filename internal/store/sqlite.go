// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides user/message/group persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			username      TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);

		CREATE TABLE IF NOT EXISTS messages (
			id                TEXT PRIMARY KEY,
			sender            TEXT NOT NULL,
			recipient         TEXT NOT NULL,
			content           TEXT NOT NULL,
			created_at        TEXT NOT NULL,
			read_at           TEXT,
			sender_deleted    INTEGER NOT NULL DEFAULT 0,
			recipient_deleted INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_messages_recipient
			ON messages(recipient, created_at);

		CREATE INDEX IF NOT EXISTS idx_messages_sender
			ON messages(sender, created_at);

		CREATE TABLE IF NOT EXISTS chat_groups (
			name TEXT PRIMARY KEY
		);

		CREATE TABLE IF NOT EXISTS group_connections (
			connection_id TEXT PRIMARY KEY,
			group_name    TEXT NOT NULL REFERENCES chat_groups(name),
			username      TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_group_connections_group
			ON group_connections(group_name);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isUniqueConstraintError reports whether err is a SQLite unique constraint violation
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// CreateUser inserts a new user.
// Returns ErrDuplicateUser if the username is already taken.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, username, password_hash, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.PasswordHash,
		user.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateUser
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	s.logger.Debug("created user", "username", user.Username)
	return nil
}

// GetUserByName retrieves a user by username.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) GetUserByName(ctx context.Context, username string) (*User, error) {
	query := `
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE username = ?
	`

	var user User
	var createdAtStr string

	err := s.db.QueryRowContext(ctx, query, username).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&createdAtStr,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	user.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &user, nil
}

// ListUsers retrieves one page of users ordered by username
func (s *SQLiteStore) ListUsers(ctx context.Context, page, pageSize int) (*UserPage, error) {
	page, pageSize = clampPage(page, pageSize)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting users: %w", err)
	}

	query := `
		SELECT id, username, password_hash, created_at
		FROM users
		ORDER BY username
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	users := make([]*User, 0, pageSize)
	for rows.Next() {
		var user User
		var createdAtStr string
		if err := rows.Scan(&user.ID, &user.Username, &user.PasswordHash, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		user.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		users = append(users, &user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}

	return &UserPage{
		Users:      users,
		Pagination: paginate(page, pageSize, total),
	}, nil
}

// CreateMessage persists a message. Inside the same transaction it checks
// whether the recipient has a connection joined to groupName; if so the
// message is stamped read at its creation time. Keeping the membership check
// and the insert in one transaction means the read decision cannot race a
// concurrent join or leave.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *Message, groupName string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var inGroup bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM group_connections
			WHERE group_name = ? AND username = ?
		)
	`, groupName, msg.Recipient).Scan(&inGroup)
	if err != nil {
		return false, fmt.Errorf("checking group membership: %w", err)
	}

	if inGroup {
		readAt := msg.CreatedAt
		msg.ReadAt = &readAt
	}

	var readAtStr any
	if msg.ReadAt != nil {
		readAtStr = msg.ReadAt.UTC().Format(time.RFC3339)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, sender, recipient, content, created_at, read_at, sender_deleted, recipient_deleted)
		VALUES (?, ?, ?, ?, ?, ?, 0, 0)
	`,
		msg.ID,
		msg.Sender,
		msg.Recipient,
		msg.Content,
		msg.CreatedAt.UTC().Format(time.RFC3339),
		readAtStr,
	)
	if err != nil {
		return false, fmt.Errorf("inserting message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing message: %w", err)
	}

	s.logger.Debug("created message",
		"id", msg.ID,
		"sender", msg.Sender,
		"recipient", msg.Recipient,
		"read_on_arrival", inGroup,
	)
	return inGroup, nil
}

// GetMessage retrieves a message by ID.
// Returns ErrNotFound if the message doesn't exist.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, sender, recipient, content, created_at, read_at, sender_deleted, recipient_deleted
		FROM messages
		WHERE id = ?
	`, id)

	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}
	return msg, nil
}

// GetMessageThread returns the conversation between currentUser and otherUser
// in chronological order, excluding messages the current user has deleted
// from their own view. Every unread message addressed to currentUser is
// marked read in the same transaction as the select, so the catch-up batch
// is atomic with the snapshot it returns.
func (s *SQLiteStore) GetMessageThread(ctx context.Context, currentUser, otherUser string) ([]*Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Truncate(time.Second)
	_, err = tx.ExecContext(ctx, `
		UPDATE messages
		SET read_at = ?
		WHERE recipient = ? AND sender = ? AND read_at IS NULL AND recipient_deleted = 0
	`, now.Format(time.RFC3339), currentUser, otherUser)
	if err != nil {
		return nil, fmt.Errorf("marking messages read: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, sender, recipient, content, created_at, read_at, sender_deleted, recipient_deleted
		FROM messages
		WHERE (recipient = ? AND sender = ? AND recipient_deleted = 0)
		   OR (recipient = ? AND sender = ? AND sender_deleted = 0)
		ORDER BY created_at
	`, currentUser, otherUser, otherUser, currentUser)
	if err != nil {
		return nil, fmt.Errorf("querying thread: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating thread: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing thread read: %w", err)
	}

	return messages, nil
}

// ListMessages retrieves one page of messages for a user. The container
// selects inbox (received, not deleted by recipient), outbox (sent, not
// deleted by sender) or unread (inbox restricted to read_at IS NULL).
func (s *SQLiteStore) ListMessages(ctx context.Context, params MessageParams) (*MessagePage, error) {
	page, pageSize := clampPage(params.Page, params.PageSize)

	var where string
	switch params.Container {
	case ContainerInbox:
		where = `recipient = ? AND recipient_deleted = 0`
	case ContainerOutbox:
		where = `sender = ? AND sender_deleted = 0`
	default:
		where = `recipient = ? AND recipient_deleted = 0 AND read_at IS NULL`
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM messages WHERE ` + where
	if err := s.db.QueryRowContext(ctx, countQuery, params.Username).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting messages: %w", err)
	}

	query := `
		SELECT id, sender, recipient, content, created_at, read_at, sender_deleted, recipient_deleted
		FROM messages
		WHERE ` + where + `
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, params.Username, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*Message, 0, pageSize)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	return &MessagePage{
		Messages:   messages,
		Pagination: paginate(page, pageSize, total),
	}, nil
}

// DeleteMessage records username's deletion of the message. The flag update,
// the both-flags check and the physical removal happen in one transaction.
// Returns ErrNotFound if the message doesn't exist and ErrNotParticipant if
// username is neither sender nor recipient.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id, username string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var sender, recipient string
	var senderDeleted, recipientDeleted bool
	err = tx.QueryRowContext(ctx, `
		SELECT sender, recipient, sender_deleted, recipient_deleted
		FROM messages
		WHERE id = ?
	`, id).Scan(&sender, &recipient, &senderDeleted, &recipientDeleted)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("querying message: %w", err)
	}

	switch username {
	case sender:
		senderDeleted = true
	case recipient:
		recipientDeleted = true
	default:
		return ErrNotParticipant
	}

	if senderDeleted && recipientDeleted {
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id); err != nil {
			return fmt.Errorf("removing message: %w", err)
		}
	} else {
		_, err := tx.ExecContext(ctx, `
			UPDATE messages SET sender_deleted = ?, recipient_deleted = ? WHERE id = ?
		`, senderDeleted, recipientDeleted, id)
		if err != nil {
			return fmt.Errorf("updating deletion flags: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing deletion: %w", err)
	}

	s.logger.Debug("deleted message for user",
		"id", id,
		"username", username,
		"removed", senderDeleted && recipientDeleted,
	)
	return nil
}

// JoinGroup adds a connection to a conversation group, creating the group
// lazily on first join, and returns the updated membership. The group row
// and the connection row are written in one transaction so a failed join
// leaves nothing behind.
func (s *SQLiteStore) JoinGroup(ctx context.Context, groupName, username, connectionID string) ([]GroupConnection, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO chat_groups (name) VALUES (?)`, groupName); err != nil {
		return nil, fmt.Errorf("creating group: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO group_connections (connection_id, group_name, username)
		VALUES (?, ?, ?)
	`, connectionID, groupName, username)
	if err != nil {
		return nil, fmt.Errorf("joining group: %w", err)
	}

	members, err := queryGroupConnections(ctx, tx, groupName)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing join: %w", err)
	}

	s.logger.Debug("connection joined group",
		"group", groupName,
		"username", username,
		"connection_id", connectionID,
		"members", len(members),
	)
	return members, nil
}

// LeaveGroup removes a connection from whichever group contains it and
// returns the group name with the remaining members.
// Returns ErrNotFound if no group contains the connection.
func (s *SQLiteStore) LeaveGroup(ctx context.Context, connectionID string) (string, []GroupConnection, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var groupName string
	err = tx.QueryRowContext(ctx, `
		SELECT group_name FROM group_connections WHERE connection_id = ?
	`, connectionID).Scan(&groupName)
	if err == sql.ErrNoRows {
		return "", nil, ErrNotFound
	}
	if err != nil {
		return "", nil, fmt.Errorf("locating connection: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM group_connections WHERE connection_id = ?`, connectionID); err != nil {
		return "", nil, fmt.Errorf("leaving group: %w", err)
	}

	remaining, err := queryGroupConnections(ctx, tx, groupName)
	if err != nil {
		return "", nil, err
	}

	if err := tx.Commit(); err != nil {
		return "", nil, fmt.Errorf("committing leave: %w", err)
	}

	s.logger.Debug("connection left group",
		"group", groupName,
		"connection_id", connectionID,
		"remaining", len(remaining),
	)
	return groupName, remaining, nil
}

// GroupConnections returns the current membership of a group
func (s *SQLiteStore) GroupConnections(ctx context.Context, groupName string) ([]GroupConnection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT connection_id, username FROM group_connections WHERE group_name = ?
	`, groupName)
	if err != nil {
		return nil, fmt.Errorf("querying group connections: %w", err)
	}
	defer rows.Close()

	return collectGroupConnections(rows)
}

// ClearGroupConnections drops every joined connection. Connection IDs are
// per-process; rows surviving a restart can never match a live session.
func (s *SQLiteStore) ClearGroupConnections(ctx context.Context) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM group_connections`)
	if err != nil {
		return fmt.Errorf("clearing group connections: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil && n > 0 {
		s.logger.Info("cleared stale group connections", "count", n)
	}
	return nil
}

// queryable is satisfied by both *sql.DB and *sql.Tx
type queryable interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryGroupConnections(ctx context.Context, q queryable, groupName string) ([]GroupConnection, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT connection_id, username FROM group_connections WHERE group_name = ?
	`, groupName)
	if err != nil {
		return nil, fmt.Errorf("querying group connections: %w", err)
	}
	defer rows.Close()

	return collectGroupConnections(rows)
}

func collectGroupConnections(rows *sql.Rows) ([]GroupConnection, error) {
	conns := make([]GroupConnection, 0, 4)
	for rows.Next() {
		var gc GroupConnection
		if err := rows.Scan(&gc.ConnectionID, &gc.Username); err != nil {
			return nil, fmt.Errorf("scanning group connection: %w", err)
		}
		conns = append(conns, gc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating group connections: %w", err)
	}
	return conns, nil
}

// scannable is satisfied by *sql.Row and *sql.Rows
type scannable interface {
	Scan(dest ...any) error
}

func scanMessage(row scannable) (*Message, error) {
	var msg Message
	var createdAtStr string
	var readAtStr sql.NullString

	err := row.Scan(
		&msg.ID,
		&msg.Sender,
		&msg.Recipient,
		&msg.Content,
		&createdAtStr,
		&readAtStr,
		&msg.SenderDeleted,
		&msg.RecipientDeleted,
	)
	if err != nil {
		return nil, err
	}

	msg.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	if readAtStr.Valid {
		readAt, err := time.Parse(time.RFC3339, readAtStr.String)
		if err != nil {
			return nil, fmt.Errorf("parsing read_at: %w", err)
		}
		msg.ReadAt = &readAt
	}

	return &msg, nil
}

// clampPage normalizes page and pageSize to sane bounds
func clampPage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

// paginate computes pagination metadata for a page of a result set
func paginate(page, pageSize, total int) Pagination {
	totalPages := (total + pageSize - 1) / pageSize
	return Pagination{
		CurrentPage: page,
		PageSize:    pageSize,
		TotalCount:  total,
		TotalPages:  totalPages,
	}
}
