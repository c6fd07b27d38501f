package ws

import (
	"encoding/json"
	"fmt"
)

// 订阅端入站帧类型
const (
	FrameAuth        = "auth"
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePing        = "ping"
)

// Frame 入站控制帧
type Frame struct {
	Type  string   `json:"type"`
	Token string   `json:"token,omitempty"` // auth
	Rooms []string `json:"rooms,omitempty"` // subscribe / unsubscribe
}

// AckFrame 出站应答
type AckFrame struct {
	Type  string   `json:"type"` // "ack" | "pong" | "error"
	Of    string   `json:"of,omitempty"`
	Rooms []string `json:"rooms,omitempty"`
	Msg   string   `json:"msg,omitempty"`
}

func ParseFrameJSON(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f.Type == "" {
		return nil, fmt.Errorf("frame missing type")
	}
	return &f, nil
}

func marshalAck(a AckFrame) []byte {
	b, _ := json.Marshal(a)
	return b
}
