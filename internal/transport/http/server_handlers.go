package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/quicklink-server/internal/service/community"
	"github.com/vovakirdan/quicklink-server/internal/store"
)

// ServerHandlers provides HTTP handlers for servers and their channels.
type ServerHandlers struct {
	community *community.Service
	log       *zerolog.Logger
}

// NewServerHandlers creates a new server handlers instance.
func NewServerHandlers(svc *community.Service, logger *zerolog.Logger) *ServerHandlers {
	return &ServerHandlers{
		community: svc,
		log:       logger,
	}
}

// NameRequest is the body for creating servers and channels.
type NameRequest struct {
	Name string `json:"name" binding:"required"`
}

// JoinResponse is returned after joining a server.
type JoinResponse struct {
	Status  string `json:"status"`
	Server  string `json:"server"`
	Members int    `json:"members"`
}

// InviteResponse carries a server's invite code.
type InviteResponse struct {
	InviteCode string `json:"invite_code"`
}

// idParam parses a positive int64 path parameter, aborting with 400 otherwise.
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		abortWithError(c, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func (h *ServerHandlers) fail(c *gin.Context, err error, msg string) {
	status, public := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg(msg)
	}
	abortWithError(c, status, public)
}

// ListServers lists the servers the caller belongs to.
// GET /servers
func (h *ServerHandlers) ListServers(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	servers, err := h.community.ListServers(c.Request.Context(), user.ID)
	if err != nil {
		h.fail(c, err, "failed to list servers")
		return
	}
	c.JSON(http.StatusOK, toServerResponses(servers))
}

// ListAllServers lists every server for discovery.
// GET /servers/all
func (h *ServerHandlers) ListAllServers(c *gin.Context) {
	servers, err := h.community.ListAllServers(c.Request.Context())
	if err != nil {
		h.fail(c, err, "failed to list all servers")
		return
	}
	c.JSON(http.StatusOK, toServerResponses(servers))
}

// CreateServer creates a server owned by the caller.
// POST /servers
func (h *ServerHandlers) CreateServer(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req NameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	srv, err := h.community.CreateServer(c.Request.Context(), user.ID, req.Name)
	if err != nil {
		h.fail(c, err, "failed to create server")
		return
	}
	c.JSON(http.StatusOK, toServerResponse(srv))
}

// JoinServer adds the caller to a server.
// POST /servers/:id/join
func (h *ServerHandlers) JoinServer(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	serverID, ok := idParam(c, "id")
	if !ok {
		return
	}

	srv, err := h.community.Join(c.Request.Context(), user.ID, serverID)
	if err != nil {
		h.fail(c, err, "failed to join server")
		return
	}
	h.log.Info().Int64("user_id", user.ID).Int64("server_id", srv.ID).Msg("user joined server")
	h.joined(c, srv)
}

// JoinByInvite adds the caller to the server behind an invite code.
// POST /invites/:code/join
func (h *ServerHandlers) JoinByInvite(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	srv, err := h.community.JoinByInvite(c.Request.Context(), user.ID, c.Param("code"))
	if err != nil {
		h.fail(c, err, "failed to join by invite")
		return
	}
	h.joined(c, srv)
}

func (h *ServerHandlers) joined(c *gin.Context, srv *store.Server) {
	members, err := h.community.MemberCount(c.Request.Context(), srv.ID)
	if err != nil {
		h.fail(c, err, "failed to count members")
		return
	}
	c.JSON(http.StatusOK, JoinResponse{Status: "joined", Server: srv.Name, Members: members})
}

// Invite returns the invite code. Owner only.
// GET /servers/:id/invite
func (h *ServerHandlers) Invite(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	serverID, ok := idParam(c, "id")
	if !ok {
		return
	}

	code, err := h.community.InviteCode(c.Request.Context(), user.ID, serverID)
	if err != nil {
		h.fail(c, err, "failed to load invite code")
		return
	}
	c.JSON(http.StatusOK, InviteResponse{InviteCode: code})
}

// DeleteServer removes a server. Owner only.
// DELETE /servers/:id
func (h *ServerHandlers) DeleteServer(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	serverID, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.community.DeleteServer(c.Request.Context(), user.ID, serverID); err != nil {
		h.fail(c, err, "failed to delete server")
		return
	}
	c.Status(http.StatusNoContent)
}

// CreateChannel adds a channel to a server. Owner only.
// POST /servers/:id/channels
func (h *ServerHandlers) CreateChannel(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	serverID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req NameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	ch, err := h.community.CreateChannel(c.Request.Context(), user.ID, serverID, req.Name)
	if err != nil {
		h.fail(c, err, "failed to create channel")
		return
	}
	c.JSON(http.StatusOK, toChannelResponse(ch))
}

// ListChannels lists a server's channels. Members only.
// GET /servers/:id/channels
func (h *ServerHandlers) ListChannels(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	serverID, ok := idParam(c, "id")
	if !ok {
		return
	}

	channels, err := h.community.ListChannels(c.Request.Context(), user.ID, serverID)
	if err != nil {
		h.fail(c, err, "failed to list channels")
		return
	}
	c.JSON(http.StatusOK, toChannelResponses(channels))
}
