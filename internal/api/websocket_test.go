package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"pixelboard/internal/eventbus"
	"pixelboard/internal/kv"
)

func TestWebSocketForwardsDrawEnvelope(t *testing.T) {
	s, store, b := newTestServer(t)
	srv := httptest.NewServer(http.HandlerFunc(s.handleWebSocket))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	drawPixel(t, b, store, 5, 5, "acct-ws", "112233", 1000)

	// Give handleWebSocket's forward loop a moment to subscribe before
	// publishing, matching the at-most-once delivery of a live bus.
	time.Sleep(50 * time.Millisecond)
	s.bus.Publish(eventbus.Event{Type: "draw", Data: map[string]string{"type": "draw"}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env map[string]string
	if err := json.Unmarshal(msg, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env["type"] != "draw" {
		t.Fatalf("type = %q, want draw", env["type"])
	}
}

func TestWebSocketCatchUpReplaysSince(t *testing.T) {
	s, store, _ := newTestServer(t)
	ctx := context.Background()
	if err := store.ZAdd(ctx, "draw_events", kv.Z{Score: 1500, Member: `{"type":"draw","ts":1500}`}); err != nil {
		t.Fatalf("zadd: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(s.handleWebSocket))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(inboundMessage{Type: "catch_up", SinceTimestamp: 1000}); err != nil {
		t.Fatalf("write catch_up: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(msg), `"ts":1500`) {
		t.Fatalf("replay message = %s, want containing replayed entry", msg)
	}
}
