package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"SR_rewards_bot/internal/metrics"
	"SR_rewards_bot/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	feedWriteWait  = 10 * time.Second
	feedPongWait   = 60 * time.Second
	feedPingPeriod = feedPongWait * 9 / 10
	feedBufferSize = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type feedClient struct {
	adminID int64
	conn    *websocket.Conn
	send    chan []byte
}

// FeedHub broadcasts admin events to connected websocket clients. Slow
// clients drop messages instead of blocking the publisher.
type FeedHub struct {
	mu      sync.RWMutex
	clients map[*feedClient]struct{}
	logger  *zap.Logger
}

func NewFeedHub(logger *zap.Logger) *FeedHub {
	return &FeedHub{
		clients: make(map[*feedClient]struct{}),
		logger:  logger,
	}
}

func (h *FeedHub) Publish(ctx context.Context, event service.Event) {
	out, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal feed event", zap.Error(err), zap.String("type", event.Type))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.send <- out:
		default:
			metrics.FeedEventsDropped.Inc()
			h.logger.Warn("feed client is too slow, dropping event",
				zap.Int64("admin_id", client.adminID),
				zap.String("type", event.Type))
		}
	}
}

func (h *FeedHub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *FeedHub) register(client *feedClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
	metrics.FeedClients.Set(float64(len(h.clients)))
}

func (h *FeedHub) unregister(client *feedClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	metrics.FeedClients.Set(float64(len(h.clients)))
}

// Close disconnects every client.
func (h *FeedHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
	metrics.FeedClients.Set(0)
}

func (h *FeedHub) ServeWS(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &feedClient{
		adminID: user.ID,
		conn:    conn,
		send:    make(chan []byte, feedBufferSize),
	}
	h.register(client)

	h.logger.Info("admin feed connected", zap.Int64("admin_id", user.ID))

	go h.writeLoop(client)
	go h.readLoop(client)
}

// readLoop discards client input and detects disconnects.
func (h *FeedHub) readLoop(client *feedClient) {
	defer func() {
		h.unregister(client)
		client.conn.Close()
		h.logger.Info("admin feed disconnected", zap.Int64("admin_id", client.adminID))
	}()

	client.conn.SetReadLimit(512)
	_ = client.conn.SetReadDeadline(time.Now().Add(feedPongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(feedPongWait))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *FeedHub) writeLoop(client *feedClient) {
	ticker := time.NewTicker(feedPingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Warn("failed to write feed event", zap.Error(err), zap.Int64("admin_id", client.adminID))
				return
			}

		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var _ service.EventPublisher = (*FeedHub)(nil)
