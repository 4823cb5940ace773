package proto

import (
	"encoding/json"
	"time"

	"github.com/vovakirdan/quicklink-server/internal/core"
)

const (
	// OutboundTypeNewMessage tags a freshly persisted channel message.
	OutboundTypeNewMessage = "new_message"

	// TimestampLayout is the wire format for message timestamps (always UTC).
	TimestampLayout = time.RFC3339Nano
)

// Outbound is the envelope for frames pushed to the client.
type Outbound struct {
	Type    string          `json:"type"`
	Message *MessagePayload `json:"message,omitempty"`
}

// MessagePayload is a channel message as seen by clients.
type MessagePayload struct {
	ID        int64  `json:"id"`
	Content   string `json:"content"`
	UserID    int64  `json:"user_id"`
	ChannelID int64  `json:"channel_id"`
	Timestamp string `json:"timestamp"`
	Sender    Sender `json:"sender"`
}

// Sender carries the display data of the message author.
type Sender struct {
	Username string `json:"username"`
}

// NewMessagePayload converts a hub event into its wire form.
func NewMessagePayload(ev core.MessageEvent) *MessagePayload {
	return &MessagePayload{
		ID:        ev.MessageID,
		Content:   ev.Content,
		UserID:    ev.SenderID,
		ChannelID: ev.ChannelID,
		Timestamp: FormatTimestamp(ev.CreatedAt),
		Sender:    Sender{Username: ev.SenderName},
	}
}

// EncodeMessageEvent renders ev as a new_message frame. It matches core.EncodeFunc.
func EncodeMessageEvent(ev core.MessageEvent) ([]byte, error) {
	return json.Marshal(Outbound{
		Type:    OutboundTypeNewMessage,
		Message: NewMessagePayload(ev),
	})
}

// FormatTimestamp renders t in UTC with a trailing Z.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
