package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/quicklink-server/internal/proto"
)

// ws_listen prints every new_message frame delivered to one user.
func main() {
	addr := flag.String("addr", "ws://localhost:8000/ws", "WebSocket base address")
	userID := flag.Int64("user", 0, "user id to connect as")
	token := flag.String("token", "", "access token (required when the server enforces it)")
	flag.Parse()

	if *userID <= 0 {
		log.Fatal("ws_listen: -user is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	target := *addr + "/" + strconv.FormatInt(*userID, 10)
	if *token != "" {
		target += "?token=" + url.QueryEscape(*token)
	}

	conn, _, err := websocket.Dial(ctx, target, nil)
	if err != nil {
		log.Fatalf("ws_listen: dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")
	fmt.Printf("listening as user %d on %s\n", *userID, *addr)

	for {
		var frame proto.Outbound
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			if status := websocket.CloseStatus(err); status != -1 {
				fmt.Printf("server closed connection: %v\n", status)
				return
			}
			log.Fatalf("ws_listen: read: %v", err)
		}
		if frame.Message == nil {
			fmt.Printf("[%s]\n", frame.Type)
			continue
		}
		m := frame.Message
		fmt.Printf("[%s] #%d %s: %s\n", m.Timestamp, m.ChannelID, m.Sender.Username, m.Content)
	}
}
