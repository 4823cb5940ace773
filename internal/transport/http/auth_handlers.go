package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/quicklink-server/internal/auth"
)

// AuthHandlers serves registration and token issuing.
type AuthHandlers struct {
	authService *auth.Service
	log         *zerolog.Logger
}

// NewAuthHandlers creates a new auth handlers instance.
func NewAuthHandlers(authService *auth.Service, logger *zerolog.Logger) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		log:         logger,
	}
}

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// TokenRequest carries login credentials, as a form or JSON body.
type TokenRequest struct {
	Username string `form:"username" json:"username" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

// TokenResponse is the OAuth2-style token body.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Register handles user registration.
// POST /register
func (h *AuthHandlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid register request")
		abortWithError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.authService.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		status, msg := statusFor(err)
		if status == http.StatusInternalServerError {
			h.log.Error().Err(err).Str("username", req.Username).Msg("failed to register user")
		}
		abortWithError(c, status, msg)
		return
	}

	h.log.Info().Int64("user_id", user.ID).Str("username", user.Username).Msg("user registered")
	c.JSON(http.StatusOK, toUserResponse(user))
}

// Token exchanges credentials for an access token.
// POST /token
func (h *AuthHandlers) Token(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBind(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid token request")
		abortWithError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		status, msg := statusFor(err)
		if status == http.StatusUnauthorized {
			c.Header("WWW-Authenticate", "Bearer")
		} else {
			h.log.Error().Err(err).Str("username", req.Username).Msg("failed to issue token")
		}
		abortWithError(c, status, msg)
		return
	}

	c.JSON(http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer"})
}
