package http

import (
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/vovakirdan/quicklink-server/internal/config"
)

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	status, raw := env.do(t, http.MethodGet, "/health", "", nil)
	if status != http.StatusOK {
		t.Fatalf("unexpected status: %d", status)
	}
	body := decode[map[string]any](t, raw)
	if body["status"] != "ok" {
		t.Fatalf("unexpected health body: %s", raw)
	}
}

func TestRegisterAndToken(t *testing.T) {
	env := newTestEnv(t, nil)

	id, token := env.signup(t, "alice")
	if id <= 0 || token == "" {
		t.Fatalf("expected id and token, got %d %q", id, token)
	}

	status, raw := env.do(t, http.MethodPost, "/register", "", RegisterRequest{Username: "alice", Password: "password123"})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate, got %d", status)
	}
	if resp := decode[ErrorResponse](t, raw); resp.Detail != "Username already registered" {
		t.Fatalf("unexpected error body: %s", raw)
	}

	// JSON credentials are accepted too.
	status, raw = env.do(t, http.MethodPost, "/token", "", TokenRequest{Username: "alice", Password: "password123"})
	if status != http.StatusOK {
		t.Fatalf("json token: status %d: %s", status, raw)
	}
	if tok := decode[TokenResponse](t, raw); tok.TokenType != "bearer" || tok.AccessToken == "" {
		t.Fatalf("unexpected token response: %s", raw)
	}

	status, _ = env.do(t, http.MethodPost, "/token", "", TokenRequest{Username: "alice", Password: "wrong-password"})
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", status)
	}
}

func TestUsersMe(t *testing.T) {
	env := newTestEnv(t, nil)
	id, token := env.signup(t, "alice")

	if status, _ := env.do(t, http.MethodGet, "/users/me", "", nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}
	if status, _ := env.do(t, http.MethodGet, "/users/me", "garbage", nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", status)
	}

	status, raw := env.do(t, http.MethodGet, "/users/me", token, nil)
	if status != http.StatusOK {
		t.Fatalf("me: status %d", status)
	}
	if me := decode[UserResponse](t, raw); me.ID != id || me.Username != "alice" {
		t.Fatalf("unexpected me: %+v", me)
	}

	status, raw = env.do(t, http.MethodPatch, "/users/me", token, UpdateUserRequest{Username: "alicia"})
	if status != http.StatusOK {
		t.Fatalf("rename: status %d: %s", status, raw)
	}
	if me := decode[UserResponse](t, raw); me.Username != "alicia" {
		t.Fatalf("rename not applied: %+v", me)
	}
}

func TestServerLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	_, ownerToken := env.signup(t, "owner")
	_, guestToken := env.signup(t, "guest")

	srv := env.createServer(t, ownerToken, "gophers")
	if len(srv.Channels) != 1 || srv.Channels[0].Name != "general" {
		t.Fatalf("expected default channel, got %+v", srv.Channels)
	}
	base := "/servers/" + strconv.FormatInt(srv.ID, 10)

	status, raw := env.do(t, http.MethodGet, "/servers", guestToken, nil)
	if status != http.StatusOK || len(decode[[]ServerResponse](t, raw)) != 0 {
		t.Fatalf("guest should belong to no servers: %d %s", status, raw)
	}
	status, raw = env.do(t, http.MethodGet, "/servers/all", "", nil)
	if status != http.StatusOK || len(decode[[]ServerResponse](t, raw)) != 1 {
		t.Fatalf("expected one server in discovery: %d %s", status, raw)
	}

	if status, _ := env.do(t, http.MethodGet, base+"/channels", guestToken, nil); status != http.StatusForbidden {
		t.Fatalf("non-member listing channels: expected 403, got %d", status)
	}

	status, raw = env.do(t, http.MethodPost, base+"/join", guestToken, nil)
	if status != http.StatusOK {
		t.Fatalf("join: status %d: %s", status, raw)
	}
	if join := decode[JoinResponse](t, raw); join.Status != "joined" || join.Server != "gophers" || join.Members != 2 {
		t.Fatalf("unexpected join response: %s", raw)
	}

	if status, _ := env.do(t, http.MethodPost, "/servers/999/join", guestToken, nil); status != http.StatusNotFound {
		t.Fatalf("join missing server: expected 404, got %d", status)
	}

	if status, _ := env.do(t, http.MethodPost, base+"/channels", guestToken, NameRequest{Name: "random"}); status != http.StatusForbidden {
		t.Fatalf("guest creating channel: expected 403, got %d", status)
	}
	status, raw = env.do(t, http.MethodPost, base+"/channels", ownerToken, NameRequest{Name: "random"})
	if status != http.StatusOK {
		t.Fatalf("create channel: status %d: %s", status, raw)
	}

	status, raw = env.do(t, http.MethodGet, base+"/channels", guestToken, nil)
	if status != http.StatusOK || len(decode[[]ChannelResponse](t, raw)) != 2 {
		t.Fatalf("expected two channels: %d %s", status, raw)
	}

	if status, _ := env.do(t, http.MethodGet, base+"/invite", guestToken, nil); status != http.StatusForbidden {
		t.Fatalf("guest reading invite: expected 403, got %d", status)
	}
	status, raw = env.do(t, http.MethodGet, base+"/invite", ownerToken, nil)
	if status != http.StatusOK {
		t.Fatalf("invite: status %d", status)
	}
	invite := decode[InviteResponse](t, raw)

	_, thirdToken := env.signup(t, "third")
	status, raw = env.do(t, http.MethodPost, "/invites/"+invite.InviteCode+"/join", thirdToken, nil)
	if status != http.StatusOK {
		t.Fatalf("join by invite: status %d: %s", status, raw)
	}
	if join := decode[JoinResponse](t, raw); join.Members != 3 {
		t.Fatalf("expected 3 members after invite join: %s", raw)
	}

	if status, _ := env.do(t, http.MethodDelete, base, guestToken, nil); status != http.StatusForbidden {
		t.Fatalf("guest deleting server: expected 403, got %d", status)
	}
	if status, _ := env.do(t, http.MethodDelete, base, ownerToken, nil); status != http.StatusNoContent {
		t.Fatalf("delete server: expected 204, got %d", status)
	}
	if status, _ := env.do(t, http.MethodGet, base+"/channels", ownerToken, nil); status != http.StatusNotFound {
		t.Fatalf("deleted server: expected 404, got %d", status)
	}
}

func TestMessagesHistory(t *testing.T) {
	env := newTestEnv(t, nil)
	_, ownerToken := env.signup(t, "owner")
	_, strangerToken := env.signup(t, "stranger")
	srv := env.createServer(t, ownerToken, "team")
	path := "/channels/" + strconv.FormatInt(srv.Channels[0].ID, 10) + "/messages"

	for _, text := range []string{"first", "second", "third"} {
		status, raw := env.do(t, http.MethodPost, path, ownerToken, PostMessageRequest{Content: text})
		if status != http.StatusOK {
			t.Fatalf("post %q: status %d: %s", text, status, raw)
		}
		msg := decode[MessageResponse](t, raw)
		if msg.Sender.Username != "owner" || !strings.HasSuffix(msg.Timestamp, "Z") {
			t.Fatalf("unexpected message response: %s", raw)
		}
	}

	status, raw := env.do(t, http.MethodGet, path+"?limit=2", ownerToken, nil)
	if status != http.StatusOK {
		t.Fatalf("history: status %d", status)
	}
	history := decode[[]MessageResponse](t, raw)
	if len(history) != 2 || history[0].Content != "third" || history[1].Content != "second" {
		t.Fatalf("expected newest first, got %s", raw)
	}

	if status, _ := env.do(t, http.MethodGet, path+"?limit=abc", ownerToken, nil); status != http.StatusBadRequest {
		t.Fatalf("bad limit: expected 400, got %d", status)
	}
	if status, _ := env.do(t, http.MethodPost, path, ownerToken, PostMessageRequest{Content: "   "}); status != http.StatusBadRequest {
		t.Fatalf("blank content: expected 400, got %d", status)
	}
	if status, _ := env.do(t, http.MethodPost, path, strangerToken, PostMessageRequest{Content: "hi"}); status != http.StatusForbidden {
		t.Fatalf("non-member post: expected 403, got %d", status)
	}
	if status, _ := env.do(t, http.MethodGet, path, strangerToken, nil); status != http.StatusForbidden {
		t.Fatalf("non-member history: expected 403, got %d", status)
	}
	if status, _ := env.do(t, http.MethodPost, "/channels/999/messages", ownerToken, PostMessageRequest{Content: "hi"}); status != http.StatusNotFound {
		t.Fatalf("missing channel: expected 404, got %d", status)
	}
}

func TestPostingIsRateLimited(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.RateLimitPerMinute = 2 })
	_, token := env.signup(t, "chatty")
	srv := env.createServer(t, token, "team")
	path := "/channels/" + strconv.FormatInt(srv.Channels[0].ID, 10) + "/messages"

	for i := range 2 {
		if status, raw := env.do(t, http.MethodPost, path, token, PostMessageRequest{Content: "hi"}); status != http.StatusOK {
			t.Fatalf("post %d: status %d: %s", i, status, raw)
		}
	}
	if status, _ := env.do(t, http.MethodPost, path, token, PostMessageRequest{Content: "hi"}); status != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", status)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	status, raw := env.do(t, http.MethodGet, "/metrics", "", nil)
	if status != http.StatusOK {
		t.Fatalf("metrics: status %d", status)
	}
	if !strings.Contains(string(raw), "quicklink_websocket_active_connections") {
		t.Fatalf("hub metrics missing from exposition")
	}

	disabled := newTestEnv(t, func(cfg *config.Config) { cfg.MetricsEnabled = false })
	if status, _ := disabled.do(t, http.MethodGet, "/metrics", "", nil); status != http.StatusNotFound {
		t.Fatalf("disabled metrics: expected 404, got %d", status)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil)

	req, err := http.NewRequest(http.MethodOptions, env.ts.URL+"/servers", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := env.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("unexpected allow-origin %q", got)
	}
}
