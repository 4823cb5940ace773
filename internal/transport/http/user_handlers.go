package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/quicklink-server/internal/service/community"
)

// UserHandlers provides HTTP handlers for the caller's own profile.
type UserHandlers struct {
	community *community.Service
	log       *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(svc *community.Service, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		community: svc,
		log:       logger,
	}
}

// UpdateUserRequest is the rename body.
type UpdateUserRequest struct {
	Username string `json:"username" binding:"required"`
}

// Me returns the authenticated user.
// GET /users/me
func (h *UserHandlers) Me(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

// UpdateMe renames the authenticated user.
// PATCH /users/me
func (h *UserHandlers) UpdateMe(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.community.RenameUser(c.Request.Context(), user.ID, req.Username)
	if err != nil {
		status, msg := statusFor(err)
		if status == http.StatusInternalServerError {
			h.log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to rename user")
		}
		abortWithError(c, status, msg)
		return
	}

	h.log.Info().Int64("user_id", updated.ID).Str("username", updated.Username).Msg("user renamed")
	c.JSON(http.StatusOK, toUserResponse(updated))
}
