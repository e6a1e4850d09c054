// Package hub 把导出完成的通知推送给同一会话下已连接的页面脚本。
package hub

import (
	"context"
	"encoding/json"

	"chat-dumper-go/pkg/log"

	"github.com/gorilla/websocket"
)

// Notification 是推送给页面脚本的消息。
type Notification struct {
	Type     string `json:"type"`
	Entity   string `json:"entity"`
	FileName string `json:"file_name"`
	URL      string `json:"url"`
}

// TypeExportReady 表示某个角色的导出文件已可下载。
const TypeExportReady = "export_ready"

type delivery struct {
	sessionID string
	payload   []byte
}

// Hub 维护按会话分组的连接，并向其广播通知。
type Hub struct {
	sessions   map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	deliveries chan *delivery
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		sessions:   make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliveries: make(chan *delivery, 64),
		done:       make(chan struct{}),
	}
}

// Run 处理注册、注销与投递，直到 ctx 被取消。
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for _, clients := range h.sessions {
				for client := range clients {
					close(client.Send)
				}
			}
			h.sessions = make(map[string]map[*Client]bool)
			return
		case client := <-h.register:
			clients, ok := h.sessions[client.SessionID]
			if !ok {
				clients = make(map[*Client]bool)
				h.sessions[client.SessionID] = clients
			}
			clients[client] = true
		case client := <-h.unregister:
			h.remove(client)
		case d := <-h.deliveries:
			for client := range h.sessions[d.sessionID] {
				select {
				case client.Send <- d.payload:
				default:
					// 发送缓冲已满，视为掉线
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	clients, ok := h.sessions[client.SessionID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.sessions, client.SessionID)
	}
}

// ServeWs 为一个已升级的连接创建客户端并启动读写协程。
func (h *Hub) ServeWs(conn *websocket.Conn, sessionID string) {
	client := &Client{Hub: h, SessionID: sessionID, Conn: conn, Send: make(chan []byte, 16)}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}

// Notify 向会话内所有连接投递通知，不阻塞调用方。
func (h *Hub) Notify(sessionID string, n Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		log.Errorf("序列化通知失败: %v", err)
		return
	}
	select {
	case h.deliveries <- &delivery{sessionID: sessionID, payload: payload}:
	default:
		log.Warnf("通知队列已满，丢弃会话 %s 的通知", sessionID)
	}
}
