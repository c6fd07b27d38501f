package ws

import (
	"net"
	"time"

	"PPInbox/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendQueue  = 256
)

// Client 一条订阅端连接
type Client struct {
	SnowID     string
	AgentID    string // auth 帧之后才有值
	Authorized bool

	Conn   *websocket.Conn
	Remote net.Addr
	Send   chan []byte // 每连接独立发送队列

	CreatedAt time.Time
}

func newClient(sid string, conn *websocket.Conn) *Client {
	return &Client{
		SnowID:    sid,
		Conn:      conn,
		Remote:    conn.RemoteAddr(),
		Send:      make(chan []byte, sendQueue),
		CreatedAt: time.Now(),
	}
}

// writePump 写协程：独占写连接；Send 关闭或写失败即收尾
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Infof("[ws] write err snowID=%s err=%v", c.SnowID, err)
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
