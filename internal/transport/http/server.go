package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/quicklink-server/internal/auth"
	"github.com/vovakirdan/quicklink-server/internal/config"
	"github.com/vovakirdan/quicklink-server/internal/core"
	"github.com/vovakirdan/quicklink-server/internal/metrics"
	"github.com/vovakirdan/quicklink-server/internal/service/community"
)

// Deps holds everything the HTTP layer routes to.
type Deps struct {
	Hub       *core.Hub
	Auth      *auth.Service
	Community *community.Service
	// Metrics is served on /metrics when non-nil and enabled in config.
	Metrics *prometheus.Registry
	Config  *config.Config
	Logger  *zerolog.Logger
}

// NewServer builds the HTTP server with REST and WebSocket routes.
func NewServer(deps Deps) *http.Server {
	return &http.Server{
		Addr:              deps.Config.Addr,
		Handler:           NewHandler(deps),
		ReadHeaderTimeout: deps.Config.ReadHeaderTimeout,
	}
}

// NewHandler mounts the WebSocket endpoint on a ServeMux and hands every
// other path to the gin router.
func NewHandler(deps Deps) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /ws/{user_id}", NewWSHandler(deps.Hub, deps.Auth, deps.Config.WS, deps.Logger))
	mux.Handle("/", NewRouter(deps))
	return mux
}

// NewRouter wires the REST routes onto a gin engine.
func NewRouter(deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(deps.Logger))
	router.Use(CORSMiddleware(deps.Config.CORSAllowOrigins))

	router.GET("/health", healthHandler(deps.Hub))
	if deps.Metrics != nil && deps.Config.MetricsEnabled {
		router.GET("/metrics", gin.WrapH(metrics.Handler(deps.Metrics)))
	}

	authHandlers := NewAuthHandlers(deps.Auth, deps.Logger)
	router.POST("/register", authHandlers.Register)
	router.POST("/token", authHandlers.Token)

	protected := router.Group("")
	protected.Use(AuthMiddleware(deps.Auth, deps.Logger))

	userHandlers := NewUserHandlers(deps.Community, deps.Logger)
	protected.GET("/users/me", userHandlers.Me)
	protected.PATCH("/users/me", userHandlers.UpdateMe)

	serverHandlers := NewServerHandlers(deps.Community, deps.Logger)
	router.GET("/servers/all", serverHandlers.ListAllServers)
	protected.GET("/servers", serverHandlers.ListServers)
	protected.POST("/servers", serverHandlers.CreateServer)
	protected.DELETE("/servers/:id", serverHandlers.DeleteServer)
	protected.POST("/servers/:id/join", serverHandlers.JoinServer)
	protected.GET("/servers/:id/invite", serverHandlers.Invite)
	protected.POST("/servers/:id/channels", serverHandlers.CreateChannel)
	protected.GET("/servers/:id/channels", serverHandlers.ListChannels)
	protected.POST("/invites/:code/join", serverHandlers.JoinByInvite)

	messageHandlers := NewMessageHandlers(deps.Community, deps.Config.RateLimitPerMinute, deps.Logger)
	protected.GET("/channels/:id/messages", messageHandlers.ListMessages)
	protected.POST("/channels/:id/messages", messageHandlers.PostMessage)

	return router
}

func healthHandler(hub *core.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := hub.Stats()
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"connections": stats.Connections,
			"users":       stats.Users,
		})
	}
}
