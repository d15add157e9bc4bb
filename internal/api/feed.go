package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/terra-clan/psv-academy/internal/models"
)

const (
	feedWriteWait  = 10 * time.Second
	feedPongWait   = 60 * time.Second
	feedPingPeriod = (feedPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// FeedMessage is one frame sent over the progression feed
type FeedMessage struct {
	Type  string        `json:"type"`
	Event *models.Event `json:"event,omitempty"`
	Data  string        `json:"data,omitempty"`
}

// handleFeed streams progression events. Learners receive their own events;
// API clients may filter with ?profileId= or receive everything.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	filter := LearnerFromContext(r.Context())
	if filter == "" {
		filter = r.URL.Query().Get("profileId")
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := s.hub.Subscribe(filter)
	defer unsubscribe()

	slog.Info("feed websocket connected", "profile_id", filter)

	if err := s.sendFeedMessage(conn, FeedMessage{Type: "connected", Data: "subscribed to progression events"}); err != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	// Client -> server: only control frames matter; reading drives pong handling
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(feedPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(feedPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					slog.Debug("websocket read error", "error", err)
				}
				return
			}
		}
	}()

	// Hub -> client; closing the connection unblocks the reader
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer conn.Close()
		defer cancel()
		ticker := time.NewTicker(feedPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-events:
				if !ok {
					conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
						time.Now().Add(feedWriteWait))
					return
				}
				if err := s.sendFeedMessage(conn, FeedMessage{Type: "event", Event: &e}); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(feedWriteWait)); err != nil {
					return
				}
			}
		}
	}()

	wg.Wait()
	slog.Info("feed websocket disconnected", "profile_id", filter)
}

func (s *Server) sendFeedMessage(conn *websocket.Conn, msg FeedMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal feed message", "error", err)
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("failed to send feed message", "error", err)
		return err
	}
	return nil
}
