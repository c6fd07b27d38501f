package ws

import (
	"net"
	"net/http"
	"strings"

	"PPInbox/logger"
	"PPInbox/module/inbox/model"
	"PPInbox/tools/ids"
	"PPInbox/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgraded = websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: func(r *http.Request) bool { return true }}

// Server ws 接入层：一条连接 = 一个 Client，先 auth 再 subscribe
type Server struct {
	hub     *Hub
	jwtOpts security.Options
}

func NewServer(hub *Hub, jwtOpts security.Options) *Server {
	return &Server{hub: hub, jwtOpts: jwtOpts}
}

func (s *Server) Hub() *Hub { return s.hub }

// HandleWS ===== WebSocket 处理 =====
func (s *Server) HandleWS(c *gin.Context) {
	conn, err := upgraded.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 常见：非 WebSocket 请求/握手失败
		logger.Infof("[HandleWS] upgrade websocket error: %v", err)
		return
	}

	client := newClient(ids.GenerateString(), conn)
	s.hub.Register(client)
	go client.writePump()

	defer s.hub.Remove(client)

	// ---- 读循环：只读，不写；出错即退出（写协程收尾） ----
	for {
		mt, data, rerr := conn.ReadMessage()
		if rerr != nil {
			if websocket.IsCloseError(rerr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[HandleWS] peer closed snowID=%s err=%v", client.SnowID, rerr)
			} else if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				logger.Infof("[HandleWS] read timeout snowID=%s err=%v", client.SnowID, rerr)
			} else {
				logger.Infof("[HandleWS] read err snowID=%s err=%v", client.SnowID, rerr)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		frame, perr := ParseFrameJSON(data)
		if perr != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Infof("[HandleWS] ParseFrameJSON err snowID=%s err=%v sample=%q", client.SnowID, perr, sample)
			continue
		}

		switch frame.Type {
		case FrameAuth:
			s.handleAuth(client, frame)
		case FrameSubscribe:
			s.handleSubscribe(client, frame)
		case FrameUnsubscribe:
			for _, room := range frame.Rooms {
				s.hub.Leave(client, room)
			}
			s.ack(client, AckFrame{Type: "ack", Of: FrameUnsubscribe, Rooms: frame.Rooms})
		case FramePing:
			s.ack(client, AckFrame{Type: "pong"})
		default:
			s.ack(client, AckFrame{Type: "error", Msg: "unknown frame type"})
		}
	}
}

func (s *Server) handleAuth(client *Client, frame *Frame) {
	claims, err := security.Verify(s.jwtOpts, frame.Token)
	if err != nil {
		logger.Infof("[HandleWS] auth failed snowID=%s err=%v", client.SnowID, err)
		s.ack(client, AckFrame{Type: "error", Of: FrameAuth, Msg: "auth failed"})
		return
	}
	client.AgentID = claims.AgentID
	client.Authorized = true

	// 授权即入自己的 user 房间
	s.hub.Join(client, model.RoomUser(claims.AgentID))
	s.hub.MarkOnline(client)
	s.ack(client, AckFrame{Type: "ack", Of: FrameAuth})
}

func (s *Server) handleSubscribe(client *Client, frame *Frame) {
	if !client.Authorized {
		s.ack(client, AckFrame{Type: "error", Of: FrameSubscribe, Msg: "auth required"})
		return
	}
	joined := make([]string, 0, len(frame.Rooms))
	for _, room := range frame.Rooms {
		// user 房间只能订自己的
		if strings.HasPrefix(room, model.RoomUserPrefix) && room != model.RoomUser(client.AgentID) {
			continue
		}
		s.hub.Join(client, room)
		joined = append(joined, room)
	}
	s.ack(client, AckFrame{Type: "ack", Of: FrameSubscribe, Rooms: joined})
}

func (s *Server) ack(client *Client, a AckFrame) {
	select {
	case client.Send <- marshalAck(a):
	default:
	}
}
