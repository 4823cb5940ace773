package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/vovakirdan/quicklink-server/internal/proto"
)

// ws_smoke registers a throwaway user, creates a server, connects a websocket,
// posts a message over REST and waits for the matching new_message frame.
func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

type client struct {
	base  string
	token string
	http  *http.Client
}

func (c *client) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, raw)
	}
	if out != nil {
		return json.Unmarshal(raw, out)
	}
	return nil
}

func run() error {
	base := flag.String("base", "http://localhost:8000", "server base URL")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 10*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c := &client{base: strings.TrimRight(*base, "/"), http: &http.Client{}}
	username := "smoke-" + uuid.NewString()[:8]
	password := "smoke-password"

	var user struct {
		ID int64 `json:"id"`
	}
	if err := c.call(ctx, http.MethodPost, "/register", map[string]string{"username": username, "password": password}, &user); err != nil {
		return err
	}
	var tok struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.call(ctx, http.MethodPost, "/token", map[string]string{"username": username, "password": password}, &tok); err != nil {
		return err
	}
	c.token = tok.AccessToken

	var srv struct {
		ID       int64 `json:"id"`
		Channels []struct {
			ID int64 `json:"id"`
		} `json:"channels"`
	}
	if err := c.call(ctx, http.MethodPost, "/servers", map[string]string{"name": "smoke"}, &srv); err != nil {
		return err
	}
	if len(srv.Channels) == 0 {
		return fmt.Errorf("server %d has no channels", srv.ID)
	}
	channelID := srv.Channels[0].ID

	wsURL := strings.Replace(c.base, "http", "ws", 1) + "/ws/" + strconv.FormatInt(user.ID, 10) + "?token=" + url.QueryEscape(c.token)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	// give the server a moment to register the socket before posting
	time.Sleep(100 * time.Millisecond)

	var posted struct {
		ID int64 `json:"id"`
	}
	if err := c.call(ctx, http.MethodPost, "/channels/"+strconv.FormatInt(channelID, 10)+"/messages", map[string]string{"content": *text}, &posted); err != nil {
		return err
	}

	for {
		var frame proto.Outbound
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if frame.Type != proto.OutboundTypeNewMessage || frame.Message == nil {
			continue
		}
		fmt.Printf("received new_message id=%d channel=%d from=%s: %s\n",
			frame.Message.ID, frame.Message.ChannelID, frame.Message.Sender.Username, frame.Message.Content)
		if frame.Message.ID == posted.ID {
			fmt.Println("smoke test passed")
			return nil
		}
	}
}
