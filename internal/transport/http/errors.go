package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vovakirdan/quicklink-server/internal/auth"
	"github.com/vovakirdan/quicklink-server/internal/service/community"
)

// ErrorResponse represents an error response body. Detail mirrors Error for
// clients that read the FastAPI-style field.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func abortWithError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg, Detail: msg})
}

// statusFor maps a domain error onto an HTTP status and public message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, community.ErrServerNotFound):
		return http.StatusNotFound, "Server not found"
	case errors.Is(err, community.ErrChannelNotFound):
		return http.StatusNotFound, "Channel not found"
	case errors.Is(err, community.ErrForbidden):
		return http.StatusForbidden, "Not authorized"
	case errors.Is(err, community.ErrNotMember):
		return http.StatusForbidden, "Not a member of this server"
	case errors.Is(err, community.ErrEmptyContent):
		return http.StatusBadRequest, "Message content is empty"
	case errors.Is(err, community.ErrInvalidName):
		return http.StatusBadRequest, "Invalid name"
	case errors.Is(err, auth.ErrUserExists):
		return http.StatusBadRequest, "Username already registered"
	case errors.Is(err, auth.ErrInvalidUsername):
		return http.StatusBadRequest, "Username must be 3 to 32 characters"
	case errors.Is(err, auth.ErrInvalidPassword):
		return http.StatusBadRequest, "Password must be at least 6 characters"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Incorrect username or password"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
