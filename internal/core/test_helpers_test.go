package core

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/quicklink-server/internal/metrics"
)

// fakeHandle records pushes in memory.
type fakeHandle struct {
	id string

	mu      sync.Mutex
	got     [][]byte
	sendErr error
	closed  bool
	reason  string
}

func newFakeHandle(id string) *fakeHandle { return &fakeHandle{id: id} }

func (h *fakeHandle) ID() string { return h.id }

func (h *fakeHandle) Send(payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	if h.sendErr != nil {
		return h.sendErr
	}
	h.got = append(h.got, payload)
	return nil
}

func (h *fakeHandle) Close(reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		h.reason = reason
	}
}

func (h *fakeHandle) received() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][]byte(nil), h.got...)
}

func (h *fakeHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// fakeTransport stands in for a websocket under a Conn.
type fakeTransport struct {
	writes   chan []byte
	writeErr error
	// when set, Write blocks until release is closed or ctx ends
	release chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
	reason    string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		writes: make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

func (t *fakeTransport) Write(ctx context.Context, payload []byte) error {
	if t.writeErr != nil {
		return t.writeErr
	}
	if t.release != nil {
		select {
		case <-t.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	t.writes <- payload
	return nil
}

func (t *fakeTransport) Ping(context.Context) error { return nil }

func (t *fakeTransport) Close(reason string) error {
	t.closeOnce.Do(func() {
		t.reason = reason
		close(t.closed)
	})
	return nil
}

// staticDirectory resolves channel members from a fixed map.
type staticDirectory struct {
	mu      sync.Mutex
	members map[int64][]int64
	err     error
}

func (d *staticDirectory) MembersOfChannel(_ context.Context, channelID int64) ([]int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	return append([]int64(nil), d.members[channelID]...), nil
}

var errEncode = errors.New("encode failed")

func testEncode(ev MessageEvent) ([]byte, error) {
	if ev.Content == "\x00poison" {
		return nil, errEncode
	}
	return json.Marshal(map[string]any{"id": ev.MessageID, "content": ev.Content})
}

func newTestHub(t *testing.T, dir MembershipDirectory, opts ConnOptions) (*Hub, *metrics.HubMetrics) {
	t.Helper()
	m := metrics.NewHubMetrics(prometheus.NewRegistry())
	h := NewHub(dir, HubOptions{Encode: testEncode, Metrics: m, Conn: opts})
	t.Cleanup(func() { h.CloseAll(ReasonShutdown) })
	return h, m
}

func testEvent(id, channelID int64, content string) MessageEvent {
	return MessageEvent{
		MessageID:  id,
		ChannelID:  channelID,
		SenderID:   1,
		SenderName: "alice",
		Content:    content,
		CreatedAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func decodeContent(t *testing.T, payload []byte) string {
	t.Helper()
	var body struct {
		Content string `json:"content"`
	}
	require.NoError(t, json.Unmarshal(payload, &body))
	return body.Content
}

func mustWrite(t *testing.T, tr *fakeTransport) []byte {
	t.Helper()
	select {
	case p := <-tr.writes:
		return p
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a write, none arrived")
		return nil
	}
}

func assertNoWrite(t *testing.T, tr *fakeTransport) {
	t.Helper()
	select {
	case p := <-tr.writes:
		t.Fatalf("unexpected write %q", p)
	case <-time.After(50 * time.Millisecond):
	}
}
