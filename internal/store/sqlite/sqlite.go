package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/quicklink-server/internal/store"
)

//go:embed schema.sql
var schema string

const dsnParams = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, Migrate)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Tests pass Migrate with ":memory:".
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate applies the schema. It is idempotent.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (username, password_hash, created_at)
		VALUES (?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, username, passwordHash, time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert user %q: %w", username, store.ErrConflict)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE id = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE username = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, username))
}

// UpdateUsername renames a user.
func (s *SQLiteStore) UpdateUsername(ctx context.Context, id int64, username string) (*store.User, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET username = ? WHERE id = ?`, username, id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("rename user %d: %w", id, store.ErrConflict)
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	return s.GetUserByID(ctx, id)
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*store.User, error) {
	var user store.User
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

// ==== ServerStore implementation ====

// CreateServer inserts the server, adds the owner as a member and creates the default channel.
func (s *SQLiteStore) CreateServer(ctx context.Context, name, inviteCode string, ownerID int64, defaultChannel string) (*store.Server, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO servers (name, invite_code, owner_id, created_at)
		VALUES (?, ?, ?, ?)
	`, name, inviteCode, ownerID, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert server: %w", store.ErrConflict)
		}
		return nil, fmt.Errorf("insert server: %w", err)
	}

	serverID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO server_members (server_id, user_id, joined_at)
		VALUES (?, ?, ?)
	`, serverID, ownerID, now); err != nil {
		return nil, fmt.Errorf("add owner to members: %w", err)
	}

	if defaultChannel != "" {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO channels (name, server_id, created_at)
			VALUES (?, ?, ?)
		`, defaultChannel, serverID, now); err != nil {
			return nil, fmt.Errorf("create default channel: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return s.GetServerByID(ctx, serverID)
}

// GetServerByID retrieves a server with its channels.
func (s *SQLiteStore) GetServerByID(ctx context.Context, id int64) (*store.Server, error) {
	query := `
		SELECT id, name, invite_code, owner_id, created_at
		FROM servers
		WHERE id = ?
	`
	server, err := scanServer(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := s.attachChannels(ctx, server); err != nil {
		return nil, err
	}
	return server, nil
}

// GetServerByInviteCode retrieves a server by its invite code.
func (s *SQLiteStore) GetServerByInviteCode(ctx context.Context, code string) (*store.Server, error) {
	query := `
		SELECT id, name, invite_code, owner_id, created_at
		FROM servers
		WHERE invite_code = ?
	`
	server, err := scanServer(s.db.QueryRowContext(ctx, query, code))
	if err != nil {
		return nil, err
	}
	if err := s.attachChannels(ctx, server); err != nil {
		return nil, err
	}
	return server, nil
}

// ListServersForUser lists servers the user is a member of.
func (s *SQLiteStore) ListServersForUser(ctx context.Context, userID int64) ([]*store.Server, error) {
	query := `
		SELECT s.id, s.name, s.invite_code, s.owner_id, s.created_at
		FROM servers s
		JOIN server_members sm ON sm.server_id = s.id
		WHERE sm.user_id = ?
		ORDER BY s.id ASC
	`
	return s.listServers(ctx, query, userID)
}

// ListServers lists every server.
func (s *SQLiteStore) ListServers(ctx context.Context) ([]*store.Server, error) {
	query := `
		SELECT id, name, invite_code, owner_id, created_at
		FROM servers
		ORDER BY id ASC
	`
	return s.listServers(ctx, query)
}

func (s *SQLiteStore) listServers(ctx context.Context, query string, args ...any) ([]*store.Server, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query servers: %w", err)
	}

	var servers []*store.Server
	for rows.Next() {
		var server store.Server
		if err := rows.Scan(&server.ID, &server.Name, &server.InviteCode, &server.OwnerID, &server.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan server: %w", err)
		}
		server.CreatedAt = server.CreatedAt.UTC()
		servers = append(servers, &server)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate servers: %w", err)
	}
	// Close before issuing channel queries: the pool holds a single connection.
	rows.Close()

	for _, server := range servers {
		if err := s.attachChannels(ctx, server); err != nil {
			return nil, err
		}
	}
	return servers, nil
}

func scanServer(row *sql.Row) (*store.Server, error) {
	var server store.Server
	err := row.Scan(&server.ID, &server.Name, &server.InviteCode, &server.OwnerID, &server.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("server: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query server: %w", err)
	}
	server.CreatedAt = server.CreatedAt.UTC()
	return &server, nil
}

func (s *SQLiteStore) attachChannels(ctx context.Context, server *store.Server) error {
	channels, err := s.ListChannels(ctx, server.ID)
	if err != nil {
		return err
	}
	server.Channels = channels
	return nil
}

// DeleteServer removes a server together with its channels, messages and memberships.
func (s *SQLiteStore) DeleteServer(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	statements := []string{
		`DELETE FROM messages WHERE channel_id IN (SELECT id FROM channels WHERE server_id = ?)`,
		`DELETE FROM channels WHERE server_id = ?`,
		`DELETE FROM server_members WHERE server_id = ?`,
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("delete server %d dependents: %w", id, err)
		}
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM servers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete server: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("server %d: %w", id, store.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// AddMember adds a user to a server.
func (s *SQLiteStore) AddMember(ctx context.Context, userID, serverID int64) error {
	query := `
		INSERT OR IGNORE INTO server_members (server_id, user_id, joined_at)
		VALUES (?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query, serverID, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert server member: %w", err)
	}

	return nil
}

// IsMember checks if user is a member of the server.
func (s *SQLiteStore) IsMember(ctx context.Context, userID, serverID int64) (bool, error) {
	query := `
		SELECT 1 FROM server_members
		WHERE user_id = ? AND server_id = ?
	`
	var exists int
	err := s.db.QueryRowContext(ctx, query, userID, serverID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query membership: %w", err)
	}

	return true, nil
}

// ListMembers lists all member ids of a server.
func (s *SQLiteStore) ListMembers(ctx context.Context, serverID int64) ([]int64, error) {
	query := `
		SELECT user_id FROM server_members
		WHERE server_id = ?
		ORDER BY joined_at ASC, user_id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, serverID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var members []int64
	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, userID)
	}

	return members, rows.Err()
}

// ==== ChannelStore implementation ====

// CreateChannel creates a channel in a server.
func (s *SQLiteStore) CreateChannel(ctx context.Context, serverID int64, name string) (*store.Channel, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO channels (name, server_id, created_at)
		VALUES (?, ?, ?)
	`, name, serverID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("insert channel: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetChannelByID(ctx, id)
}

// GetChannelByID retrieves a channel by ID.
func (s *SQLiteStore) GetChannelByID(ctx context.Context, id int64) (*store.Channel, error) {
	query := `
		SELECT id, name, server_id, created_at
		FROM channels
		WHERE id = ?
	`
	var channel store.Channel
	err := s.db.QueryRowContext(ctx, query, id).Scan(&channel.ID, &channel.Name, &channel.ServerID, &channel.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("channel %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query channel: %w", err)
	}
	channel.CreatedAt = channel.CreatedAt.UTC()
	return &channel, nil
}

// ListChannels lists channels of a server in creation order.
func (s *SQLiteStore) ListChannels(ctx context.Context, serverID int64) ([]*store.Channel, error) {
	query := `
		SELECT id, name, server_id, created_at
		FROM channels
		WHERE server_id = ?
		ORDER BY id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, serverID)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	channels := make([]*store.Channel, 0)
	for rows.Next() {
		var channel store.Channel
		if err := rows.Scan(&channel.ID, &channel.Name, &channel.ServerID, &channel.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		channel.CreatedAt = channel.CreatedAt.UTC()
		channels = append(channels, &channel)
	}

	return channels, rows.Err()
}

// MembersOfChannel resolves the member ids of the server owning the channel.
func (s *SQLiteStore) MembersOfChannel(ctx context.Context, channelID int64) ([]int64, error) {
	query := `
		SELECT sm.user_id
		FROM channels c
		LEFT JOIN server_members sm ON sm.server_id = c.server_id
		WHERE c.id = ?
	`
	rows, err := s.db.QueryContext(ctx, query, channelID)
	if err != nil {
		return nil, fmt.Errorf("query channel members: %w", err)
	}
	defer rows.Close()

	found := false
	members := make([]int64, 0)
	for rows.Next() {
		found = true
		var userID sql.NullInt64
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan channel member: %w", err)
		}
		if userID.Valid {
			members = append(members, userID.Int64)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channel members: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("channel %d: %w", channelID, store.ErrNotFound)
	}

	return members, nil
}

// ==== MessageStore implementation ====

// SaveMessage persists a message to storage.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.CreatedAt = msg.CreatedAt.UTC()

	query := `
		INSERT INTO messages (channel_id, user_id, content, created_at)
		VALUES (?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, msg.ChannelID, msg.UserID, msg.Content, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	msg.ID = id
	return nil
}

// ListMessages retrieves the newest messages of a channel, newest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, channelID int64, limit int) ([]*store.Message, error) {
	query := `
		SELECT m.id, m.channel_id, m.user_id, u.username, m.content, m.created_at
		FROM messages m
		JOIN users u ON u.id = m.user_id
		WHERE m.channel_id = ?
		ORDER BY m.id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.Message, 0)
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(&msg.ID, &msg.ChannelID, &msg.UserID, &msg.SenderUsername, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.CreatedAt = msg.CreatedAt.UTC()
		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}

// Ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)
