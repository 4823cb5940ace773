package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/quicklink-server/internal/auth"
	"github.com/vovakirdan/quicklink-server/internal/config"
	"github.com/vovakirdan/quicklink-server/internal/core"
)

// WSHandler upgrades HTTP connections and attaches them to the hub as
// receive-only handles. Inbound frames are read and discarded.
// It is mounted on a plain ServeMux: gin flushes the 101 header before the
// hijack, which coder/websocket cannot recover from.
type WSHandler struct {
	hub  *core.Hub
	auth *auth.Service
	cfg  config.WSConfig
	log  *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, authService *auth.Service, cfg config.WSConfig, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{hub: hub, auth: authService, cfg: cfg, log: logger}
}

// ServeHTTP serves GET /ws/{user_id}.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.PathValue("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid user_id")
		return
	}
	if !h.authorize(w, r, userID) {
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	handle, err := h.hub.Attach(userID, wsTransport{conn: conn})
	if err != nil {
		_ = conn.Close(websocket.StatusGoingAway, core.ReasonShutdown)
		return
	}

	reason := h.readLoop(r.Context(), conn, handle)
	h.hub.Detach(handle, reason)
}

// authorize checks the optional ?token= against the path user id.
func (h *WSHandler) authorize(w http.ResponseWriter, r *http.Request, userID int64) bool {
	token := r.URL.Query().Get("token")
	if token == "" {
		if h.cfg.RequireToken {
			writeError(w, http.StatusUnauthorized, "Not authenticated")
			return false
		}
		return true
	}

	claims, err := h.auth.ValidateToken(token)
	if err != nil || claims.UserID != userID {
		h.log.Debug().Err(err).Int64("user_id", userID).Msg("ws token rejected")
		writeError(w, http.StatusUnauthorized, "Could not validate credentials")
		return false
	}
	return true
}

// readLoop drains inbound frames until the socket fails. A handle closed by the
// hub ends the loop too, since the writer's close handshake fails the pending read.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, handle *core.Conn) string {
	for {
		_, _, err := conn.Read(ctx)
		if err == nil {
			continue
		}
		if reason := handle.CloseReason(); reason != "" {
			return reason
		}
		switch status := websocket.CloseStatus(err); {
		case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
			return "client disconnected"
		case errors.Is(err, context.Canceled):
			return "request cancelled"
		default:
			h.log.Debug().Err(err).Str("conn_id", handle.ID()).Msg("ws read ended")
			return "read error"
		}
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: msg, Detail: msg})
}

// wsTransport adapts a websocket connection to core.Transport.
type wsTransport struct {
	conn *websocket.Conn
}

func (t wsTransport) Write(ctx context.Context, payload []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, payload)
}

func (t wsTransport) Ping(ctx context.Context) error {
	return t.conn.Ping(ctx)
}

func (t wsTransport) Close(reason string) error {
	status := websocket.StatusNormalClosure
	switch reason {
	case core.ReasonShutdown:
		status = websocket.StatusGoingAway
	case core.ReasonSlowConsumer:
		status = websocket.StatusTryAgainLater
	}
	return t.conn.Close(status, reason)
}
