package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"studytracker-backend/internal/metrics"
	"studytracker-backend/internal/models"
	"studytracker-backend/internal/services"
)

const writeTimeout = 10 * time.Second

// Authenticator resolves the user behind a bearer token.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, int, string, error)
}

// client serialises writes to one connection.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub relays session events to the user's open websocket connections. With a
// Redis client it subscribes to each connected user's channel so events from
// any instance are delivered; without one it only relays events published to
// it directly.
type Hub struct {
	mu          sync.RWMutex
	connections map[int64][]*client
	cancelFuncs map[int64]context.CancelFunc

	auth        Authenticator
	redisClient *redis.Client
	upgrader    websocket.Upgrader
	logger      zerolog.Logger
}

func NewHub(auth Authenticator, redisClient *redis.Client, allowedOrigins []string, logger zerolog.Logger) *Hub {
	h := &Hub{
		connections: make(map[int64][]*client),
		cancelFuncs: make(map[int64]context.CancelFunc),
		auth:        auth,
		redisClient: redisClient,
		logger:      logger.With().Str("component", "websocket").Logger(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.TrimSpace(o), "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set["*"] || set[origin]
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Authenticate via token query param
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	user, status, _, err := h.auth.Authenticate(r.Context(), tokenStr)
	if err != nil {
		http.Error(w, http.StatusText(status), status)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Int64("user_id", user.ID).Msg("WebSocket upgrade failed")
		return
	}

	c := &client{conn: conn}
	h.registerConnection(user.ID, c)

	// Keep connection alive and handle disconnect
	go func() {
		defer h.unregisterConnection(user.ID, c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (h *Hub) registerConnection(userID int64, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[userID] = append(h.connections[userID], c)
	metrics.WebsocketConnections.Inc()

	// Start pub/sub subscription if this is the first connection for this user
	if h.redisClient != nil && len(h.connections[userID]) == 1 {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[userID] = cancel
		go h.subscribeToPubSub(ctx, userID)
	}

	h.logger.Debug().Int64("user_id", userID).Int("total", len(h.connections[userID])).Msg("WebSocket connected")
}

func (h *Hub) unregisterConnection(userID int64, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	_ = c.conn.Close()

	conns := h.connections[userID]
	for i, existing := range conns {
		if existing == c {
			h.connections[userID] = append(conns[:i], conns[i+1:]...)
			metrics.WebsocketConnections.Dec()
			break
		}
	}

	// If no more connections, cancel pub/sub
	if len(h.connections[userID]) == 0 {
		delete(h.connections, userID)
		if cancel, ok := h.cancelFuncs[userID]; ok {
			cancel()
			delete(h.cancelFuncs, userID)
		}
	}

	h.logger.Debug().Int64("user_id", userID).Msg("WebSocket disconnected")
}

func (h *Hub) subscribeToPubSub(ctx context.Context, userID int64) {
	pubsub := h.redisClient.Subscribe(ctx, services.UserChannel(userID))
	defer func() { _ = pubsub.Close() }()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(userID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) broadcast(userID int64, data []byte) {
	h.mu.RLock()
	conns := append([]*client(nil), h.connections[userID]...)
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.write(data); err != nil {
			h.logger.Debug().Err(err).Int64("user_id", userID).Msg("WebSocket write failed")
		}
	}
}

// Publish delivers msg to the user's connections on this instance. It lets
// the hub stand in for the Redis publisher in single-instance deployments.
func (h *Hub) Publish(_ context.Context, userID int64, msg models.WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.broadcast(userID, data)
	return nil
}

// Close drops every connection and subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, conns := range h.connections {
		for _, c := range conns {
			_ = c.conn.Close()
			metrics.WebsocketConnections.Dec()
		}
		if cancel, ok := h.cancelFuncs[userID]; ok {
			cancel()
		}
	}
	h.connections = make(map[int64][]*client)
	h.cancelFuncs = make(map[int64]context.CancelFunc)
}

func (h *Hub) connectionCount(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[userID])
}
