// Command ws_smoke drives two replicas over WebSocket: it creates a room and
// selects a card on the first, then polls the second until the selection shows up.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/vovakirdan/roomsync-server/internal/core"
	"github.com/vovakirdan/roomsync-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addrA := flag.String("a", "ws://localhost:8080/ws", "first replica WebSocket address")
	addrB := flag.String("b", "ws://localhost:8081/ws", "second replica WebSocket address")
	strategy := flag.String("strategy", "rdbms", "strategy: rdbms, global or local")
	user := flag.String("user", "tester", "participant id")
	card := flag.String("card", "5", "card value to select")
	timeout := flag.Duration("timeout", 10*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	a, err := dial(ctx, *addrA)
	if err != nil {
		return err
	}
	defer a.Close(websocket.StatusNormalClosure, "bye")
	b, err := dial(ctx, *addrB)
	if err != nil {
		return err
	}
	defer b.Close(websocket.StatusNormalClosure, "bye")

	roomID := "smoke-" + uuid.NewString()[:8]

	raw, err := call(ctx, a, proto.Inbound{Command: proto.CommandCreateRoom, Strategy: *strategy, RoomID: roomID})
	if err != nil {
		return err
	}
	fmt.Printf("A create: %s\n", raw)

	// The local strategy only learns about rooms through selections, so
	// the second replica cannot see the room until one is made.
	raw, err = call(ctx, a, proto.Inbound{
		Command:   proto.CommandSelectCard,
		Strategy:  *strategy,
		RoomID:    roomID,
		UserID:    *user,
		CardValue: *card,
	})
	if err != nil {
		return err
	}
	fmt.Printf("A select: %s\n", raw)

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		raw, err = call(ctx, b, proto.Inbound{Command: proto.CommandGetRoom, Strategy: *strategy, RoomID: roomID})
		if err != nil {
			return err
		}
		var room proto.Room
		if err := json.Unmarshal(raw, &room); err == nil && room.Selections[*user] == *card {
			fmt.Printf("B converged: %s\n", raw)
			return nil
		}
		fmt.Printf("B not yet: %s\n", raw)

		select {
		case <-ctx.Done():
			return fmt.Errorf("replica b never saw the selection: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func dial(ctx context.Context, addr string) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}

// call sends one command and returns the raw reply. Error replies other than
// room_not_found are returned as errors.
func call(ctx context.Context, conn *websocket.Conn, in proto.Inbound) (json.RawMessage, error) {
	if err := wsjson.Write(ctx, conn, in); err != nil {
		return nil, fmt.Errorf("send %s: %w", in.Command, err)
	}
	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			return nil, fmt.Errorf("read %s: %w", in.Command, err)
		}
		var evt proto.Event
		if json.Unmarshal(raw, &evt) == nil && evt.Event != "" {
			continue
		}
		var reply proto.ErrorReply
		if json.Unmarshal(raw, &reply) == nil && reply.Error != nil {
			if reply.Error.Code == core.ErrCodeRoomNotFound {
				return raw, nil
			}
			return nil, errors.New(reply.Error.Code + ": " + reply.Error.Msg)
		}
		return raw, nil
	}
}
