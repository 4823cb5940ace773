package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/quicklink-server/internal/service/community"
)

// MessageHandlers serves channel history and message posting.
type MessageHandlers struct {
	community *community.Service
	limiter   *rateLimiter
	log       *zerolog.Logger
}

// NewMessageHandlers creates message handlers. perMinute <= 0 disables rate limiting.
func NewMessageHandlers(svc *community.Service, perMinute int, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		community: svc,
		limiter:   newRateLimiter(perMinute),
		log:       logger,
	}
}

// PostMessageRequest is the body of a new message.
type PostMessageRequest struct {
	Content string `json:"content"`
}

func (h *MessageHandlers) fail(c *gin.Context, err error, msg string) {
	status, public := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg(msg)
	}
	abortWithError(c, status, public)
}

// ListMessages returns channel history, newest first.
// GET /channels/:id/messages?limit=50
func (h *MessageHandlers) ListMessages(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	channelID, ok := idParam(c, "id")
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			abortWithError(c, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	messages, err := h.community.ListMessages(c.Request.Context(), user.ID, channelID, limit)
	if err != nil {
		h.fail(c, err, "failed to list messages")
		return
	}

	out := make([]MessageResponse, 0, len(messages))
	for _, msg := range messages {
		out = append(out, toMessageResponse(msg))
	}
	c.JSON(http.StatusOK, out)
}

// PostMessage persists a message and broadcasts it to connected members.
// POST /channels/:id/messages
func (h *MessageHandlers) PostMessage(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	channelID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if !h.limiter.allow(user.ID) {
		abortWithError(c, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	msg, err := h.community.PostMessage(c.Request.Context(), user, channelID, req.Content)
	if err != nil {
		h.fail(c, err, "failed to post message")
		return
	}
	c.JSON(http.StatusOK, toMessageResponse(msg))
}
