package ws

import (
	"sync"

	"PPInbox/logger"
	"PPInbox/service/storage"
	"PPInbox/tools/safe"

	"time"
)

const presenceTTL = 2 * time.Minute

// Hub 本地房间登记表：room -> 订阅连接集合
// 跨实例投递不在这里做（见 fan-out publisher 走 NATS），Hub 只管本进程
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	byConn  map[*Client]map[string]struct{}
	fanout  *Fanout
	gwID    string // 节点ID
	closing bool
}

func NewHub(gwID string, workers, queue int) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Client]struct{}),
		byConn: make(map[*Client]map[string]struct{}),
		fanout: NewFanout(workers, queue),
		gwID:   gwID,
	}
}

func (h *Hub) GwID() string { return h.gwID }

// Register 连接建立即登记（尚未入任何房间）
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		_ = c.Conn.Close()
		return
	}
	h.byConn[c] = make(map[string]struct{})
}

// Join 入房；授权检查在上游（server.go）做完
func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.rooms[room]
	if !ok {
		set = make(map[*Client]struct{})
		h.rooms[room] = set
	}
	set[c] = struct{}{}
	if m := h.byConn[c]; m != nil {
		m[room] = struct{}{}
	}
}

func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) leaveLocked(c *Client, room string) {
	if set, ok := h.rooms[room]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.rooms, room)
		}
	}
	if m := h.byConn[c]; m != nil {
		delete(m, room)
	}
}

// Remove 连接断开：退所有房间并关发送队列
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	rooms := h.byConn[c]
	for room := range rooms {
		h.leaveLocked(c, room)
	}
	delete(h.byConn, c)
	h.mu.Unlock()

	// Send 队列不显式 close：fanout worker 可能还持有引用，
	// writePump 由连接关闭后的写失败自然退出
	_ = c.Conn.Close()

	if c.Authorized && c.AgentID != "" {
		agent := c.AgentID
		safe.SafeGo(func() {
			if err := storage.PresenceOffline(agent); err != nil {
				logger.Warnf("[hub] presence offline agent=%s err=%v", agent, err)
			}
		})
	}
}

// MarkOnline 授权完成后登记在线状态（redis presence）
func (h *Hub) MarkOnline(c *Client) {
	agent, gw := c.AgentID, h.gwID
	safe.SafeGo(func() {
		if err := storage.PresenceOnline(agent, gw, presenceTTL); err != nil {
			logger.Warnf("[hub] presence online agent=%s err=%v", agent, err)
		}
	})
}

// BroadcastRoom 把 payload 投给房间内全部本地订阅者（best-effort，至多一次）
func (h *Hub) BroadcastRoom(room string, payload []byte) {
	h.mu.RLock()
	set := h.rooms[room]
	conns := make([]*Client, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	h.fanout.Broadcast(room, conns, payload)
}

// RoomSize 测试/诊断用
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Close 踢掉所有连接并停 fan-out 池
func (h *Hub) Close() {
	h.mu.Lock()
	h.closing = true
	conns := make([]*Client, 0, len(h.byConn))
	for c := range h.byConn {
		conns = append(conns, c)
	}
	h.rooms = make(map[string]map[*Client]struct{})
	h.byConn = make(map[*Client]map[string]struct{})
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.Conn.Close()
	}
	h.fanout.Close()
}
