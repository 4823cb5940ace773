package core

import (
	"time"

	"github.com/vovakirdan/quicklink-server/internal/store"
)

// MessageEvent is the fan-out payload for one freshly persisted message.
// It is passed by value so the dispatcher never shares mutable state with the caller.
type MessageEvent struct {
	MessageID  int64
	ChannelID  int64
	SenderID   int64
	SenderName string
	Content    string
	CreatedAt  time.Time
}

// NewMessageEvent builds the event for a committed message row.
// The timestamp is normalized to UTC.
func NewMessageEvent(msg *store.Message, senderName string) MessageEvent {
	if senderName == "" {
		senderName = msg.SenderUsername
	}
	return MessageEvent{
		MessageID:  msg.ID,
		ChannelID:  msg.ChannelID,
		SenderID:   msg.UserID,
		SenderName: senderName,
		Content:    msg.Content,
		CreatedAt:  msg.CreatedAt.UTC(),
	}
}
