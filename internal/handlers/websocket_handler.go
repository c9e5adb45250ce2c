package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"secure-video-access/internal/cache"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WebSocketHandler fans live view-count updates out to connected
// clients. Updates arrive over the cache's pub/sub channel, so every
// instance behind a load balancer sees every recorded view.
type WebSocketHandler struct {
	upgrader   websocket.Upgrader
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	logger     zerolog.Logger
}

func NewWebSocketHandler(logger zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		logger:     logger.With().Str("component", "websocket").Logger(),
	}
}

func (h *WebSocketHandler) HandleConnections(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer func() {
		h.unregister <- ws
		ws.Close()
	}()

	h.register <- ws
	go h.handleClientMessages(ws)

	for {
		time.Sleep(30 * time.Second)
		if err := ws.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
			return
		}
	}
}

func (h *WebSocketHandler) handleClientMessages(ws *websocket.Conn) {
	for {
		var msg map[string]interface{}
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("websocket read error")
			}
			break
		}

		switch msg["type"] {
		case "subscribe":
			ws.WriteJSON(map[string]interface{}{
				"type":      "subscribed",
				"message":   "Subscribed to view count updates",
				"timestamp": time.Now().Unix(),
			})
		case "ping":
			ws.WriteJSON(map[string]interface{}{
				"type": "pong",
				"time": time.Now().Unix(),
			})
		default:
			ws.WriteJSON(map[string]interface{}{
				"type":      "error",
				"message":   "Unknown message type",
				"timestamp": time.Now().Unix(),
			})
		}
	}
}

// RunHub owns the client set and the broadcast loop. It also drains the
// pub/sub subscription until ctx is done.
func (h *WebSocketHandler) RunHub(ctx context.Context, updates <-chan cache.CountUpdate) {
	go func() {
		for update := range updates {
			h.BroadcastUpdate(update)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				client.Close()
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.logger.Debug().Int("clients", len(h.clients)).Msg("websocket client registered")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					client.Close()
					delete(h.clients, client)
				}
			}
		}
	}
}

func (h *WebSocketHandler) BroadcastUpdate(update cache.CountUpdate) {
	message := map[string]interface{}{
		"type":         "view_update",
		"post_id":      update.PostID,
		"total_views":  update.TotalViews,
		"unique_views": update.UniqueViews,
		"timestamp":    update.Timestamp,
	}
	data, err := json.Marshal(message)
	if err != nil {
		return
	}
	h.broadcast <- data
}
