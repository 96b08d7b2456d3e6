package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	// ErrConnectionGone 连接已关闭或不存在
	ErrConnectionGone = errors.New("connection gone")
	// ErrSendBufferFull 连接发送缓冲区已满，本次推送被丢弃
	ErrSendBufferFull = errors.New("send buffer full")
)

// Envelope WebSocket 消息格式 {"event": "...", "data": ...}
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Handler 连接生命周期与入站控制消息回调
type Handler interface {
	OnConnect(connID string)
	OnDisconnect(connID string)
	OnMessage(connID, event string, data json.RawMessage)
}

// Hub 管理所有 WebSocket 连接，按连接 ID 定向推送或广播
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	handler  Handler
	upgrader websocket.Upgrader
	sendSize int
	logger   *zap.Logger
}

// NewHub 创建 Hub，allowedOrigins 为空时不限制来源
func NewHub(allowedOrigins []string, logger *zap.Logger) *Hub {
	h := &Hub{
		clients:  make(map[string]*Client),
		sendSize: 256,
		logger:   logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

// SetHandler 设置回调，必须在 ServeWS 之前调用
func (h *Hub) SetHandler(handler Handler) {
	h.handler = handler
}

// ServeWS 升级 HTTP 连接并阻塞运行读循环，直到连接关闭
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	client := newClient(uuid.NewString(), conn, h.sendSize, h.logger)
	h.register(client)
	if h.handler != nil {
		h.handler.OnConnect(client.id)
	}

	go client.writePump()
	client.readPump(h.dispatch)

	h.unregister(client)
	if h.handler != nil {
		h.handler.OnDisconnect(client.id)
	}
}

// Push 向单个连接推送事件，不阻塞
func (h *Hub) Push(connID, event string, payload any) error {
	h.mu.RLock()
	client, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrConnectionGone, connID)
	}

	msg, err := encode(event, payload)
	if err != nil {
		return err
	}
	return client.enqueue(msg)
}

// Broadcast 向所有连接推送事件，缓冲区已满的连接本次跳过
func (h *Hub) Broadcast(event string, payload any) error {
	msg, err := encode(event, payload)
	if err != nil {
		return err
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	dropped := 0
	for _, c := range clients {
		if err := c.enqueue(msg); err != nil {
			dropped++
		}
	}
	if dropped > 0 {
		return fmt.Errorf("%w: %s dropped for %d of %d connections", ErrSendBufferFull, event, dropped, len(clients))
	}
	return nil
}

// Disconnect 关闭单个连接；连接不存在时返回 false
// 读循环随之退出，OnDisconnect 照常回调
func (h *Hub) Disconnect(connID string) bool {
	h.mu.Lock()
	client, ok := h.clients[connID]
	if ok {
		delete(h.clients, connID)
	}
	h.mu.Unlock()
	if !ok {
		return false
	}

	client.close()
	h.logger.Info("WebSocket client disconnected by server", zap.String("conn_id", connID))
	return true
}

// Len 当前连接数
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close 关闭所有连接
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.logger.Info("WebSocket client connected",
		zap.String("conn_id", c.id),
		zap.String("remote_addr", c.conn.RemoteAddr().String()),
	)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if cur, ok := h.clients[c.id]; ok && cur == c {
		delete(h.clients, c.id)
	}
	h.mu.Unlock()
	c.close()
	h.logger.Info("WebSocket client disconnected", zap.String("conn_id", c.id))
}

func (h *Hub) dispatch(c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		h.logger.Debug("Ignoring malformed client message",
			zap.String("conn_id", c.id),
			zap.Int("size", len(raw)),
		)
		return
	}
	if h.handler != nil {
		h.handler.OnMessage(c.id, env.Event, env.Data)
	}
}

func encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	msg, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s envelope: %w", event, err)
	}
	return msg, nil
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(r *http.Request) bool { return true }
		}
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}
