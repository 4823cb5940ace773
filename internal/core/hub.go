package core

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/quicklink-server/internal/metrics"
	"github.com/vovakirdan/quicklink-server/internal/store"
	"github.com/vovakirdan/quicklink-server/internal/utils"
)

// MembershipDirectory resolves the users entitled to see a channel's messages.
type MembershipDirectory interface {
	MembersOfChannel(ctx context.Context, channelID int64) ([]int64, error)
}

// HubOptions configures a Hub. Zero values fall back to defaults.
type HubOptions struct {
	Encode  EncodeFunc
	Metrics *metrics.HubMetrics
	Logger  *zerolog.Logger
	Conn    ConnOptions
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	Connections int `json:"connections"`
	Users       int `json:"users"`
}

// Hub owns the connection registry and fans message events out to channel members.
type Hub struct {
	directory  MembershipDirectory
	registry   *Registry
	dispatcher *Dispatcher
	metrics    *metrics.HubMetrics
	connOpts   ConnOptions
	log        zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// NewHub creates a hub resolving recipients through directory.
func NewHub(directory MembershipDirectory, opts HubOptions) *Hub {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "hub").Logger()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.NewHubMetrics(prometheus.NewRegistry())
	}
	encode := opts.Encode
	if encode == nil {
		encode = func(ev MessageEvent) ([]byte, error) { return json.Marshal(ev) }
	}

	registry := NewRegistry()
	registry.OnChange(func(handles, users int) {
		m.ActiveConnections.Set(float64(handles))
		m.ConnectedUsers.Set(float64(users))
	})

	return &Hub{
		directory:  directory,
		registry:   registry,
		dispatcher: NewDispatcher(registry, encode, m, logger),
		metrics:    m,
		connOpts:   opts.Conn,
		log:        logger,
	}
}

// Registry exposes the underlying connection registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Attach registers a new connection for userID over t and starts its writer.
// The returned Conn is Connected; callers must Detach it when the socket ends.
func (h *Hub) Attach(userID int64, t Transport) (*Conn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}

	c := newConn(utils.NewID(), userID, t, h.connOpts, func(c *Conn) {
		h.registry.Unregister(c.userID, c)
	})
	c.state.Store(int32(StateConnected))
	h.registry.Register(userID, c)
	go c.run()

	h.log.Info().
		Int64("user_id", userID).
		Str("conn_id", c.id).
		Int("connections", h.registry.Len()).
		Msg("connection attached")
	return c, nil
}

// Detach closes c, removes it from the registry and waits for its writer to exit.
func (h *Hub) Detach(c *Conn, reason string) {
	c.Close(reason)
	<-c.Finished()
	h.log.Info().
		Int64("user_id", c.userID).
		Str("conn_id", c.id).
		Str("reason", c.CloseReason()).
		Msg("connection detached")
}

// Publish delivers ev to every live handle of the channel's members.
// A directory failure is logged and treated as an empty recipient set.
func (h *Hub) Publish(ctx context.Context, ev MessageEvent) DeliveryReport {
	h.metrics.EventsPublished.Inc()

	members, err := h.directory.MembersOfChannel(ctx, ev.ChannelID)
	if err != nil {
		h.metrics.DirectoryFailures.Inc()
		lvl := h.log.Warn()
		if !errors.Is(err, store.ErrNotFound) {
			lvl = h.log.Error()
		}
		lvl.Err(err).
			Int64("channel_id", ev.ChannelID).
			Int64("message_id", ev.MessageID).
			Msg("resolve channel members")
		return DeliveryReport{}
	}
	h.metrics.RecipientsResolved.Observe(float64(len(members)))

	report := h.dispatcher.Deliver(ev, members)
	h.log.Debug().
		Int64("channel_id", ev.ChannelID).
		Int64("message_id", ev.MessageID).
		Int("recipients", report.Recipients).
		Int("delivered", report.Delivered).
		Int("evicted", report.Evicted).
		Msg("message event dispatched")
	return report
}

// Run blocks until ctx is done, then closes every live connection.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.CloseAll(ReasonShutdown)
}

// CloseAll refuses further attaches and closes every registered connection.
func (h *Hub) CloseAll(reason string) {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	for _, b := range h.registry.All() {
		b.Handle.Close(reason)
	}
}

// Stats reports current registry totals.
func (h *Hub) Stats() Stats {
	return Stats{
		Connections: h.registry.Len(),
		Users:       h.registry.Users(),
	}
}
