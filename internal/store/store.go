package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint rejects a write.
	ErrConflict = errors.New("conflict")
)

// User represents a user in the system.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Server represents a community: a named group with an owner, members and channels.
type Server struct {
	ID         int64
	Name       string
	InviteCode string
	OwnerID    int64
	CreatedAt  time.Time
	Channels   []*Channel
}

// Channel is a named message stream inside exactly one server.
type Channel struct {
	ID        int64
	Name      string
	ServerID  int64
	CreatedAt time.Time
}

// Message represents a persisted chat message.
type Message struct {
	ID             int64
	ChannelID      int64
	UserID         int64
	SenderUsername string
	Content        string
	CreatedAt      time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// UpdateUsername renames a user.
	UpdateUsername(ctx context.Context, id int64, username string) (*User, error)
}

// ServerStore handles server and membership persistence.
type ServerStore interface {
	// CreateServer inserts the server, adds the owner as a member and creates
	// the default channel, all in one transaction.
	CreateServer(ctx context.Context, name, inviteCode string, ownerID int64, defaultChannel string) (*Server, error)

	// GetServerByID retrieves a server with its channels.
	GetServerByID(ctx context.Context, id int64) (*Server, error)

	// GetServerByInviteCode retrieves a server by its invite code.
	GetServerByInviteCode(ctx context.Context, code string) (*Server, error)

	// ListServersForUser lists servers the user is a member of.
	ListServersForUser(ctx context.Context, userID int64) ([]*Server, error)

	// ListServers lists every server.
	ListServers(ctx context.Context) ([]*Server, error)

	// DeleteServer removes a server together with its channels, messages and memberships.
	DeleteServer(ctx context.Context, id int64) error

	// AddMember adds a user to a server. Adding an existing member is a no-op.
	AddMember(ctx context.Context, userID, serverID int64) error

	// IsMember checks if user is a member of the server.
	IsMember(ctx context.Context, userID, serverID int64) (bool, error)

	// ListMembers lists all member ids of a server.
	ListMembers(ctx context.Context, serverID int64) ([]int64, error)
}

// ChannelStore handles channel persistence.
type ChannelStore interface {
	// CreateChannel creates a channel in a server.
	CreateChannel(ctx context.Context, serverID int64, name string) (*Channel, error)

	// GetChannelByID retrieves a channel by ID.
	GetChannelByID(ctx context.Context, id int64) (*Channel, error)

	// ListChannels lists channels of a server in creation order.
	ListChannels(ctx context.Context, serverID int64) ([]*Channel, error)

	// MembersOfChannel resolves the member ids of the server owning the channel.
	// Returns ErrNotFound when the channel no longer exists.
	MembersOfChannel(ctx context.Context, channelID int64) ([]int64, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message and fills in its ID.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListMessages retrieves the newest messages of a channel, newest first.
	ListMessages(ctx context.Context, channelID int64, limit int) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ServerStore
	ChannelStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
