package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/quicklink-server/internal/auth"
	"github.com/vovakirdan/quicklink-server/internal/config"
	"github.com/vovakirdan/quicklink-server/internal/core"
	"github.com/vovakirdan/quicklink-server/internal/metrics"
	"github.com/vovakirdan/quicklink-server/internal/proto"
	"github.com/vovakirdan/quicklink-server/internal/service/community"
	"github.com/vovakirdan/quicklink-server/internal/store/sqlite"
)

type testEnv struct {
	ts  *httptest.Server
	hub *core.Hub
	cfg config.Config
}

// newTestEnv starts the full HTTP stack over an in-memory store.
func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.JWTSecret = "test-secret"
	cfg.WS.PingInterval = time.Minute
	if mutate != nil {
		mutate(&cfg)
	}

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	logger := zerolog.Nop()
	reg := metrics.NewRegistry()
	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.TokenTTL,
	})
	hub := core.NewHub(st, core.HubOptions{
		Encode:  proto.EncodeMessageEvent,
		Metrics: metrics.NewHubMetrics(reg),
		Logger:  &logger,
		Conn: core.ConnOptions{
			SendBuffer:   cfg.WS.SendBuffer,
			WriteTimeout: cfg.WS.WriteTimeout,
			PingInterval: cfg.WS.PingInterval,
		},
	})

	server := NewServer(Deps{
		Hub:       hub,
		Auth:      authService,
		Community: community.New(st, hub, cfg.HistoryLimit, &logger),
		Metrics:   reg,
		Config:    &cfg,
		Logger:    &logger,
	})

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)
	t.Cleanup(func() { hub.CloseAll(core.ReasonShutdown) })

	return &testEnv{ts: ts, hub: hub, cfg: cfg}
}

// do sends a JSON request and returns status and body.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return e.send(t, req)
}

func (e *testEnv) send(t *testing.T, req *http.Request) (int, []byte) {
	t.Helper()
	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, raw
}

// decode unmarshals raw into a value of type T.
func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return v
}

// signup registers a user and logs in through the form endpoint.
func (e *testEnv) signup(t *testing.T, username string) (int64, string) {
	t.Helper()

	status, raw := e.do(t, http.MethodPost, "/register", "", RegisterRequest{Username: username, Password: "password123"})
	if status != http.StatusOK {
		t.Fatalf("register %s: status %d: %s", username, status, raw)
	}
	user := decode[UserResponse](t, raw)

	form := url.Values{"username": {username}, "password": {"password123"}}
	req, err := http.NewRequest(http.MethodPost, e.ts.URL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("build token request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	status, raw = e.send(t, req)
	if status != http.StatusOK {
		t.Fatalf("token %s: status %d: %s", username, status, raw)
	}
	return user.ID, decode[TokenResponse](t, raw).AccessToken
}

func (e *testEnv) createServer(t *testing.T, token, name string) ServerResponse {
	t.Helper()
	status, raw := e.do(t, http.MethodPost, "/servers", token, NameRequest{Name: name})
	if status != http.StatusOK {
		t.Fatalf("create server: status %d: %s", status, raw)
	}
	return decode[ServerResponse](t, raw)
}

func (e *testEnv) wsURL(userID int64, token string) string {
	u := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws/" + strconv.FormatInt(userID, 10)
	if token != "" {
		u += "?token=" + url.QueryEscape(token)
	}
	return u
}

// dial opens a websocket for userID and waits until the hub has registered it.
func (e *testEnv) dial(t *testing.T, ctx context.Context, userID int64, token string) *websocket.Conn {
	t.Helper()
	before := e.hub.Stats().Connections
	conn, _, err := websocket.Dial(ctx, e.wsURL(userID, token), nil)
	if err != nil {
		t.Fatalf("dial ws for %d: %v", userID, err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })
	e.waitConnections(t, before+1)
	return conn
}

func (e *testEnv) waitConnections(t *testing.T, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.hub.Stats().Connections == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d connections, have %d", want, e.hub.Stats().Connections)
}
