package model

// 房间事件类型
const (
	EventNewMessage         = "new_message"
	EventConversationUpdate = "conversation_update"
)

// 房间地址前缀：user:<agentID> / page:<pageID> / conv:<conversationID>
const (
	RoomUserPrefix = "user:"
	RoomPagePrefix = "page:"
	RoomConvPrefix = "conv:"
)

func RoomUser(agentID string) string { return RoomUserPrefix + agentID }
func RoomPage(pageID string) string  { return RoomPagePrefix + pageID }
func RoomConv(convID string) string  { return RoomConvPrefix + convID }

// RoomEventData data 载荷：new_message 带 message，conversation_update 带会话快照
type RoomEventData struct {
	ConversationID string        `json:"conversation_id"`
	Message        *Message      `json:"message,omitempty"`
	Conversation   *Conversation `json:"conversation,omitempty"`
}

// RoomEvent 推给订阅端的事件帧
type RoomEvent struct {
	Event string        `json:"event"` // new_message | conversation_update
	Data  RoomEventData `json:"data"`
}
