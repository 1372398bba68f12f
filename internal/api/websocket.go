package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"pixelboard/internal/eventbus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// inboundMessage is the tagged union of messages a WS client may send
// (spec.md §6). Unrecognized types are ignored.
type inboundMessage struct {
	Type          string  `json:"type"`
	SinceTimestamp float64 `json:"since_timestamp"`
}

// handleWebSocket upgrades the connection, subscribes it to both outbound
// envelope kinds, and runs the forward/receive subtasks described in
// spec.md §4.7 until either one errors or the socket closes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[api] ws upgrade: %v", err)
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	log.Printf("[api] ws connect id=%s remote=%s", connID, r.RemoteAddr)
	defer log.Printf("[api] ws disconnect id=%s", connID)

	drawCh, unsubDraw := s.bus.NewSubscriber("draw")
	defer unsubDraw()
	openedCh, unsubOpened := s.bus.NewSubscriber("regions_opened")
	defer unsubOpened()

	done := make(chan struct{})
	go s.wsForwardLoop(conn, drawCh, openedCh, done)
	s.wsReceiveLoop(conn, connID, done)
}

func (s *Server) wsForwardLoop(conn *websocket.Conn, drawCh, openedCh <-chan eventbus.Event, done chan struct{}) {
	for {
		var err error
		select {
		case evt := <-drawCh:
			err = s.writeEnvelope(conn, evt.Data)
		case evt := <-openedCh:
			err = s.writeEnvelope(conn, evt.Data)
		case <-done:
			return
		}
		if err != nil {
			// Closing the socket makes the receive loop's read fail, which
			// ends the connection handler.
			conn.Close()
			return
		}
	}
}

func (s *Server) writeEnvelope(conn *websocket.Conn, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return conn.WriteMessage(websocket.TextMessage, body)
}

func (s *Server) wsReceiveLoop(conn *websocket.Conn, connID string, done chan struct{}) {
	defer close(done)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "catch_up":
			log.Printf("[api] ws catch_up id=%s since=%v", connID, msg.SinceTimestamp)
			s.handleCatchUp(conn, msg.SinceTimestamp)
		default:
			// Unknown opcode: ignore (spec.md §7).
		}
	}
}

// handleCatchUp streams every draw_events replay entry since the
// requested timestamp to this socket only (spec.md §4.7).
func (s *Server) handleCatchUp(conn *websocket.Conn, since float64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	members, err := s.store.ZRangeByScore(ctx, "draw_events", since, 1<<62)
	if err != nil {
		log.Printf("[api] catch_up zrangebyscore: %v", err)
		return
	}
	for _, m := range members {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(m))
	}
}
