// internal/service/batchbuilder/interfaces/outcome_hub.go
package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"flashpromo/internal/service/batchbuilder/domain/port"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool { // 简化处理，允许所有跨域
		return true
	},
}

// OutcomeHub 维护每个会话的 WebSocket 连接，把提交结果推送给发起提交的会话。
// 它实现了 port.OutcomeNotifier。
type OutcomeHub struct {
	clients    map[string]map[*hubClient]struct{} // 使用 sessionID 作为 Key，同一会话可能开了多个标签页
	register   chan *hubClient
	unregister chan *hubClient
	lock       sync.RWMutex
}

type hubClient struct {
	hub       *OutcomeHub
	conn      *websocket.Conn
	send      chan []byte
	sessionID string
}

func NewOutcomeHub() *OutcomeHub {
	return &OutcomeHub{
		clients:    make(map[string]map[*hubClient]struct{}),
		register:   make(chan *hubClient),
		unregister: make(chan *hubClient),
	}
}

// Run 处理连接注册，ctx 结束时关闭所有连接
func (h *OutcomeHub) Run(ctx context.Context) error {
	for {
		select {
		case c := <-h.register:
			h.lock.Lock()
			if h.clients[c.sessionID] == nil {
				h.clients[c.sessionID] = make(map[*hubClient]struct{})
			}
			h.clients[c.sessionID][c] = struct{}{}
			h.lock.Unlock()
			log.Debug().Str("session_id", c.sessionID).Msg("Outcome subscriber registered")
		case c := <-h.unregister:
			h.remove(c)
		case <-ctx.Done():
			h.lock.Lock()
			for sid, set := range h.clients {
				for c := range set {
					close(c.send)
				}
				delete(h.clients, sid)
			}
			h.lock.Unlock()
			return nil
		}
	}
}

func (h *OutcomeHub) remove(c *hubClient) {
	h.lock.Lock()
	defer h.lock.Unlock()
	set, ok := h.clients[c.sessionID]
	if !ok {
		return
	}
	if _, ok := set[c]; ok {
		delete(set, c)
		close(c.send)
	}
	if len(set) == 0 {
		delete(h.clients, c.sessionID)
	}
}

// Notify 推送给该会话的所有连接，缓冲区满的连接直接丢弃这条消息
func (h *OutcomeHub) Notify(_ context.Context, outcome port.Outcome) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	h.lock.RLock()
	defer h.lock.RUnlock()
	for c := range h.clients[outcome.SessionID] {
		select {
		case c.send <- payload:
		default:
			log.Warn().Str("session_id", outcome.SessionID).Msg("Outcome subscriber is too slow, dropping message")
		}
	}
	return nil
}

// RegisterRoutes 注册 /ws/outcomes，会话从请求头、cookie 或 ?session= 读取
func (h *OutcomeHub) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ws/outcomes", h.ServeWS).Methods(http.MethodGet)
}

// ServeWS 把 HTTP 升级为 WebSocket 并注册到 Hub
func (h *OutcomeHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	// 1. 识别会话
	sessionID := sessionFromRequest(r)
	if sessionID == "" {
		http.Error(w, "session is required", http.StatusBadRequest)
		return
	}

	// 2. HTTP升级为WebSocket
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	// 3. 创建客户端实例并注册到Hub
	c := &hubClient{hub: h, conn: conn, send: make(chan []byte, sendBuffer), sessionID: sessionID}
	select {
	case h.register <- c:
	case <-r.Context().Done():
		conn.Close()
		return
	}

	// 4. 启动读写goroutine
	go c.writePump()
	go c.readPump()
}

// writePump 负责将 send channel 中的消息写入 websocket，并定期发送 ping
func (c *hubClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
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
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 只处理 pong 和关闭，客户端不会发送业务消息
func (c *hubClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-time.After(writeWait):
			c.hub.remove(c)
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
