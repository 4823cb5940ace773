package community

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/quicklink-server/internal/auth"
	"github.com/vovakirdan/quicklink-server/internal/config"
	"github.com/vovakirdan/quicklink-server/internal/core"
	"github.com/vovakirdan/quicklink-server/internal/store"
	"github.com/vovakirdan/quicklink-server/internal/utils"
)

// DefaultChannelName is created with every new server.
const DefaultChannelName = "general"

// Common errors for community operations.
var (
	ErrForbidden       = errors.New("forbidden")
	ErrNotMember       = errors.New("not a member of this server")
	ErrServerNotFound  = errors.New("server not found")
	ErrChannelNotFound = errors.New("channel not found")
	ErrEmptyContent    = errors.New("message content is empty")
	ErrInvalidName     = errors.New("invalid name")
)

// Publisher fans a persisted message out to connected members.
type Publisher interface {
	Publish(ctx context.Context, ev core.MessageEvent) core.DeliveryReport
}

// Service provides server, channel and message business logic.
type Service struct {
	store        store.Store
	publisher    Publisher
	historyLimit int
	log          zerolog.Logger
}

// New creates a community service. publisher may be nil, in which case
// messages are persisted without real-time delivery.
func New(st store.Store, publisher Publisher, historyLimit int, logger *zerolog.Logger) *Service {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "community").Logger()
	}
	if historyLimit <= 0 {
		historyLimit = config.Default().HistoryLimit
	}
	return &Service{
		store:        st,
		publisher:    publisher,
		historyLimit: historyLimit,
		log:          log,
	}
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 100 {
		return "", ErrInvalidName
	}
	return name, nil
}

// CreateServer creates a server owned by userID with a default channel.
func (s *Service) CreateServer(ctx context.Context, userID int64, name string) (*store.Server, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	srv, err := s.store.CreateServer(ctx, name, utils.NewInviteCode(), userID, DefaultChannelName)
	if err != nil {
		return nil, fmt.Errorf("create server: %w", err)
	}
	s.log.Info().Int64("server_id", srv.ID).Int64("user_id", userID).Msg("server created")
	return srv, nil
}

func (s *Service) server(ctx context.Context, serverID int64) (*store.Server, error) {
	srv, err := s.store.GetServerByID(ctx, serverID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrServerNotFound
		}
		return nil, fmt.Errorf("get server: %w", err)
	}
	return srv, nil
}

func (s *Service) ownedServer(ctx context.Context, userID, serverID int64) (*store.Server, error) {
	srv, err := s.server(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if srv.OwnerID != userID {
		return nil, ErrForbidden
	}
	return srv, nil
}

func (s *Service) requireMember(ctx context.Context, userID, serverID int64) error {
	ok, err := s.store.IsMember(ctx, userID, serverID)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !ok {
		return ErrNotMember
	}
	return nil
}

// channelForMember loads a channel and checks userID belongs to its server.
func (s *Service) channelForMember(ctx context.Context, userID, channelID int64) (*store.Channel, error) {
	ch, err := s.store.GetChannelByID(ctx, channelID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrChannelNotFound
		}
		return nil, fmt.Errorf("get channel: %w", err)
	}
	if err := s.requireMember(ctx, userID, ch.ServerID); err != nil {
		return nil, err
	}
	return ch, nil
}

// Join adds userID to the server. Joining twice is a no-op.
func (s *Service) Join(ctx context.Context, userID, serverID int64) (*store.Server, error) {
	srv, err := s.server(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if err := s.store.AddMember(ctx, userID, srv.ID); err != nil {
		return nil, fmt.Errorf("join server: %w", err)
	}
	return srv, nil
}

// JoinByInvite adds userID to the server identified by an invite code.
func (s *Service) JoinByInvite(ctx context.Context, userID int64, code string) (*store.Server, error) {
	srv, err := s.store.GetServerByInviteCode(ctx, strings.TrimSpace(code))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrServerNotFound
		}
		return nil, fmt.Errorf("get server by invite: %w", err)
	}
	if err := s.store.AddMember(ctx, userID, srv.ID); err != nil {
		return nil, fmt.Errorf("join server: %w", err)
	}
	return srv, nil
}

// MemberCount returns how many users belong to the server.
func (s *Service) MemberCount(ctx context.Context, serverID int64) (int, error) {
	members, err := s.store.ListMembers(ctx, serverID)
	if err != nil {
		return 0, fmt.Errorf("list members: %w", err)
	}
	return len(members), nil
}

// ListServers returns the servers userID belongs to.
func (s *Service) ListServers(ctx context.Context, userID int64) ([]*store.Server, error) {
	servers, err := s.store.ListServersForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	return servers, nil
}

// ListAllServers returns every server, for discovery.
func (s *Service) ListAllServers(ctx context.Context) ([]*store.Server, error) {
	servers, err := s.store.ListServers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list all servers: %w", err)
	}
	return servers, nil
}

// InviteCode returns the invite code of a server owned by userID.
func (s *Service) InviteCode(ctx context.Context, userID, serverID int64) (string, error) {
	srv, err := s.ownedServer(ctx, userID, serverID)
	if err != nil {
		return "", err
	}
	return srv.InviteCode, nil
}

// DeleteServer removes a server owned by userID.
func (s *Service) DeleteServer(ctx context.Context, userID, serverID int64) error {
	if _, err := s.ownedServer(ctx, userID, serverID); err != nil {
		return err
	}
	if err := s.store.DeleteServer(ctx, serverID); err != nil {
		return fmt.Errorf("delete server: %w", err)
	}
	s.log.Info().Int64("server_id", serverID).Int64("user_id", userID).Msg("server deleted")
	return nil
}

// CreateChannel adds a channel to a server owned by userID.
func (s *Service) CreateChannel(ctx context.Context, userID, serverID int64, name string) (*store.Channel, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedServer(ctx, userID, serverID); err != nil {
		return nil, err
	}
	ch, err := s.store.CreateChannel(ctx, serverID, name)
	if err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}
	return ch, nil
}

// ListChannels lists the channels of a server userID belongs to.
func (s *Service) ListChannels(ctx context.Context, userID, serverID int64) ([]*store.Channel, error) {
	if _, err := s.server(ctx, serverID); err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, userID, serverID); err != nil {
		return nil, err
	}
	channels, err := s.store.ListChannels(ctx, serverID)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return channels, nil
}

// PostMessage persists a message from sender and then broadcasts it to the
// channel's connected members. Content is stored as sent; whitespace-only
// content is rejected. The message is committed before any delivery
// is attempted. Delivery outcome never affects the returned result.
func (s *Service) PostMessage(ctx context.Context, sender *store.User, channelID int64, content string) (*store.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if _, err := s.channelForMember(ctx, sender.ID, channelID); err != nil {
		return nil, err
	}

	msg := &store.Message{
		ChannelID:      channelID,
		UserID:         sender.ID,
		SenderUsername: sender.Username,
		Content:        content,
	}
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}

	if s.publisher != nil {
		report := s.publisher.Publish(context.WithoutCancel(ctx), core.NewMessageEvent(msg, sender.Username))
		s.log.Debug().
			Int64("message_id", msg.ID).
			Int64("channel_id", channelID).
			Int("delivered", report.Delivered).
			Msg("message posted")
	}
	return msg, nil
}

// ListMessages returns up to limit of the newest messages, newest first.
// A non-positive limit uses the configured default; it is capped at config.MaxHistoryLimit.
func (s *Service) ListMessages(ctx context.Context, userID, channelID int64, limit int) ([]*store.Message, error) {
	if _, err := s.channelForMember(ctx, userID, channelID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.historyLimit
	}
	limit = min(limit, config.MaxHistoryLimit)

	messages, err := s.store.ListMessages(ctx, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// RenameUser changes userID's username. A taken name yields auth.ErrUserExists.
func (s *Service) RenameUser(ctx context.Context, userID int64, username string) (*store.User, error) {
	username, err := auth.NormalizeUsername(username)
	if err != nil {
		return nil, err
	}
	user, err := s.store.UpdateUsername(ctx, userID, username)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, auth.ErrUserExists
		}
		return nil, fmt.Errorf("rename user: %w", err)
	}
	return user, nil
}
