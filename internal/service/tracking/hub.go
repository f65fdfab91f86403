// internal/service/tracking/hub.go
package tracking

import (
	"context"
	"net/http"
	"sync"
	"time"

	"atelier/internal/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	// 单条消息的写超时
	writeWait = 10 * time.Second
	// 收到 pong 后允许的最长静默时间
	pongWait = 60 * time.Second
	// ping 周期，必须小于 pongWait
	pingPeriod = (pongWait * 9) / 10
	// 客户端只发心跳，不接受大消息
	maxMessageSize = 512
	// 每个连接的待推送缓冲
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool { // 简化处理，允许所有跨域
		return true
	},
}

// Hub 维护所有活跃的连接，按买家分组推送订单动态。
// 同一买家可以开多个页面，推送会到达每一个连接。
type Hub struct {
	clients    map[string]map[*Client]struct{} // shopperID -> 连接集合
	register   chan *Client
	unregister chan *Client
	lock       sync.RWMutex

	wg sync.WaitGroup
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Start 启动注册循环，ctx 取消即退出。
func (h *Hub) Start(ctx context.Context) error {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for {
			select {
			case <-ctx.Done():
				h.closeAll()
				return
			case client := <-h.register:
				h.lock.Lock()
				conns, ok := h.clients[client.shopperID]
				if !ok {
					conns = make(map[*Client]struct{})
					h.clients[client.shopperID] = conns
				}
				conns[client] = struct{}{}
				h.lock.Unlock()
				logger.Ctx(ctx).Info().Str("shopperId", client.shopperID).Msg("Tracking client connected")
			case client := <-h.unregister:
				h.lock.Lock()
				if conns, ok := h.clients[client.shopperID]; ok {
					if _, live := conns[client]; live {
						delete(conns, client)
						close(client.send)
						if len(conns) == 0 {
							delete(h.clients, client.shopperID)
						}
					}
				}
				h.lock.Unlock()
				logger.Ctx(ctx).Info().Str("shopperId", client.shopperID).Msg("Tracking client disconnected")
			}
		}
	}()
	return nil
}

// Stop 等待注册循环退出。
func (h *Hub) Stop(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Push 把消息推给某个买家的全部连接。
// 发不进去说明对端写入积压，直接丢弃该条，连接由心跳机制回收。
func (h *Hub) Push(ctx context.Context, shopperID string, message []byte) {
	h.lock.RLock()
	defer h.lock.RUnlock()
	for client := range h.clients[shopperID] {
		select {
		case client.send <- message:
		default:
			logger.Ctx(ctx).Warn().Str("shopperId", shopperID).Msg("Dropping push message, client send buffer full")
		}
	}
}

func (h *Hub) closeAll() {
	h.lock.Lock()
	defer h.lock.Unlock()
	for _, conns := range h.clients {
		for client := range conns {
			close(client.send)
		}
	}
	h.clients = make(map[string]map[*Client]struct{})
}

// Client 是一个 WebSocket 连接的代表。
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	shopperID string
}

// readPump 读取对端消息（仅心跳）并维持 pong 超时。
// 连接出错或对端关闭时负责从 Hub 注销。
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
		// 追踪页不上行业务消息，读到什么都忽略
	}
}

// writePump 把 send 通道中的消息写入连接，并按周期发送 ping。
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 关闭了通道
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs 把一次 HTTP 请求升级为该买家的追踪连接。
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	shopperID := r.URL.Query().Get("shopperId")
	if shopperID == "" {
		http.Error(w, "shopperId is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Ctx(r.Context()).Error().Err(err).Msg("Websocket upgrade failed")
		return
	}

	client := &Client{hub: h, conn: conn, send: make(chan []byte, sendBuffer), shopperID: shopperID}
	h.register <- client

	go client.writePump()
	go client.readPump()
}
