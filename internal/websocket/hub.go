package websocket

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
)

// Message 推送给客户端的工作流事件
type Message struct {
	Type      string          `json:"type"`
	ProjectID string          `json:"projectId"`
	Data      json.RawMessage `json:"data"`
}

type outbound struct {
	projectID string
	payload   []byte
}

// Hub 管理所有 WebSocket 连接,按项目过滤广播工作流事件
type Hub struct {
	// 已注册的客户端
	clients map[*Client]bool

	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	// 互斥锁，保护 clients map
	mu     sync.RWMutex
	logger logrus.FieldLogger
}

// NewHub 创建新的 Hub
func NewHub(logger logrus.FieldLogger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logger.WithField("component", "websocket_hub"),
	}
}

// Run 运行 Hub,直到 Stop 被调用
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.Matches(msg.projectID) {
					continue
				}
				select {
				case client.Send <- msg.payload:
				default:
					// 客户端消费太慢,断开连接
					delete(h.clients, client)
					close(client.Send)
				}
			}
			h.mu.Unlock()

		case <-h.stop:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.Send)
	}
}

// Stop 停止 Hub 并关闭所有客户端
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
	<-h.done
}

// Register 注册客户端,Hub 已停止时返回 false
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.stop:
		return false
	}
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stop:
	}
}

// Publish 广播工作流事件,缓冲区满时丢弃
func (h *Hub) Publish(projectID, eventType string, data []byte) {
	payload, err := json.Marshal(Message{Type: eventType, ProjectID: projectID, Data: data})
	if err != nil {
		h.logger.WithError(err).Warn("failed to encode live event")
		return
	}

	select {
	case h.broadcast <- outbound{projectID: projectID, payload: payload}:
	default:
		h.logger.WithFields(logrus.Fields{
			"project_id": projectID,
			"event_type": eventType,
		}).Warn("live feed buffer full, event dropped")
	}
}

// GetClientCount 获取客户端数量
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}
