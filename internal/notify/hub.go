// Пакет notify — WebSocket hub уведомлений о ходе обработки документов.
//
// Соединения группируются по пользователю; администраторы получают
// уведомления всех пользователей. Запись в соединение выполняет только
// его writePump, поэтому Notify не блокируется на медленных клиентах:
// клиент с переполненным буфером отключается.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/domain/model"
)

var wsConnections = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "mp_ws_connections",
	Help: "Количество открытых WebSocket-соединений",
})

const (
	// allUsers — ключ подписки администраторов
	allUsers = "*"
	// sendBuffer — очередь исходящих сообщений соединения
	sendBuffer = 32
	writeWait  = 10 * time.Second
	maxMessage = 4096
)

// clientMessage — сообщение клиента.
type clientMessage struct {
	Type string `json:"type"`
}

// Hub — реестр WebSocket-соединений.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}

	pingInterval time.Duration
	upgrader     websocket.Upgrader
	logger       *slog.Logger
}

// NewHub создаёт hub. pingInterval — период ping; соединение без pong
// дольше двух периодов закрывается.
func NewHub(pingInterval time.Duration, logger *slog.Logger) *Hub {
	return &Hub{
		clients:      make(map[string]map[*client]struct{}),
		pingInterval: pingInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Токен проверяется до upgrade, origin не ограничивается
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger.With(slog.String("component", "ws_hub")),
	}
}

type client struct {
	hub  *Hub
	key  string
	conn *websocket.Conn

	// mu защищает send от записи после закрытия
	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// Serve выполняет upgrade и обслуживает соединение до его закрытия.
// admin — подписка на уведомления всех пользователей.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string, admin bool) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade: %w", err)
	}

	key := userID
	if admin {
		key = allUsers
	}
	c := &client{hub: h, key: key, conn: conn, send: make(chan []byte, sendBuffer)}
	h.register(c)

	h.logger.Info("WebSocket подключён",
		slog.String("user_id", userID), slog.Bool("admin", admin))

	go c.writePump()
	c.readPump()
	return nil
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.key]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.key] = set
	}
	set[c] = struct{}{}
	wsConnections.Inc()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.key]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.key)
	}
	wsConnections.Dec()
}

// close закрывает соединение один раз.
func (c *client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	c.hub.unregister(c)
}

// enqueue ставит сообщение в очередь; false — буфер переполнен
// или соединение уже закрыто.
func (c *client) enqueue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) readPump() {
	defer func() {
		c.close()
		_ = c.conn.Close()
	}()

	pongWait := 2 * c.hub.pingInterval
	c.conn.SetReadLimit(maxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("WebSocket закрыт", slog.String("error", err.Error()))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg clientMessage
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		if msg.Type == "ping" {
			c.enqueue([]byte(`{"type":"pong"}`))
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

// Notify отправляет уведомление соединениям пользователя и администраторов.
func (h *Hub) Notify(_ context.Context, userID string, update model.DocumentUpdate) error {
	if update.Action == "" {
		update.Action = model.DocumentUpdateAction
	}
	if update.Timestamp.IsZero() {
		update.Timestamp = time.Now().UTC()
	}
	msg, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("кодирование уведомления: %w", err)
	}

	h.mu.RLock()
	targets := make([]*client, 0)
	for c := range h.clients[userID] {
		targets = append(targets, c)
	}
	if userID != allUsers {
		for c := range h.clients[allUsers] {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(msg) {
			h.logger.Warn("Клиент не успевает читать, соединение закрыто", slog.String("key", c.key))
			c.close()
		}
	}
	return nil
}

// Connections возвращает количество соединений пользователя.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Close закрывает все соединения.
func (h *Hub) Close() {
	h.mu.RLock()
	all := make([]*client, 0)
	for _, set := range h.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range all {
		c.close()
	}
}
