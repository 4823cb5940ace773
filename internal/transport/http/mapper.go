package http

import (
	"github.com/vovakirdan/quicklink-server/internal/proto"
	"github.com/vovakirdan/quicklink-server/internal/store"
)

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// ChannelResponse represents a channel in API responses.
type ChannelResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ServerID int64  `json:"server_id"`
}

// ServerResponse represents a server with its channels.
type ServerResponse struct {
	ID       int64             `json:"id"`
	Name     string            `json:"name"`
	OwnerID  int64             `json:"owner_id"`
	Channels []ChannelResponse `json:"channels"`
}

// MessageResponse represents a persisted message in API responses.
type MessageResponse struct {
	ID        int64        `json:"id"`
	Content   string       `json:"content"`
	Timestamp string       `json:"timestamp"`
	UserID    int64        `json:"user_id"`
	ChannelID int64        `json:"channel_id"`
	Sender    UserResponse `json:"sender"`
}

func toUserResponse(u *store.User) UserResponse {
	return UserResponse{ID: u.ID, Username: u.Username}
}

func toChannelResponse(ch *store.Channel) ChannelResponse {
	return ChannelResponse{ID: ch.ID, Name: ch.Name, ServerID: ch.ServerID}
}

func toChannelResponses(channels []*store.Channel) []ChannelResponse {
	out := make([]ChannelResponse, 0, len(channels))
	for _, ch := range channels {
		out = append(out, toChannelResponse(ch))
	}
	return out
}

func toServerResponse(srv *store.Server) ServerResponse {
	return ServerResponse{
		ID:       srv.ID,
		Name:     srv.Name,
		OwnerID:  srv.OwnerID,
		Channels: toChannelResponses(srv.Channels),
	}
}

func toServerResponses(servers []*store.Server) []ServerResponse {
	out := make([]ServerResponse, 0, len(servers))
	for _, srv := range servers {
		out = append(out, toServerResponse(srv))
	}
	return out
}

func toMessageResponse(msg *store.Message) MessageResponse {
	return MessageResponse{
		ID:        msg.ID,
		Content:   msg.Content,
		Timestamp: proto.FormatTimestamp(msg.CreatedAt),
		UserID:    msg.UserID,
		ChannelID: msg.ChannelID,
		Sender:    UserResponse{ID: msg.UserID, Username: msg.SenderUsername},
	}
}
