package model

import (
	"PPInbox/service/mgo"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// DefaultParticipantName 平台 webhook 不带昵称，入库用占位名
const DefaultParticipantName = "Guest"

// AttachmentSnippet 会话列表里非文本消息的预览占位
const AttachmentSnippet = "[attachment]"

// Conversation 会话：一个外部访客与一个页面之间的持久线程
// 唯一键 (page_id, participant_id)，由唯一索引守住并发首条消息的建会话竞态
type Conversation struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"        json:"_id,omitempty"`
	ConversationID string             `bson:"conversation_id"      json:"conversation_id"` // 雪花ID，房间/API 寻址用
	PageID         string             `bson:"page_id"              json:"page_id"`
	ParticipantID  string             `bson:"participant_id"       json:"participant_id"`
	AccountID      string             `bson:"account_id,omitempty" json:"account_id,omitempty"` // 页面归属账号（绑定缺失时为空）

	ParticipantName string `bson:"participant_name"     json:"participant_name"` // webhook 不带昵称 => "Guest"
	Snippet         string `bson:"snippet"              json:"snippet"`          // 最后一条消息预览
	UnreadCount     int64  `bson:"unread_count"         json:"unread_count"`     // 仅随访客消息 +1，mark read 清零
	UpdatedTimeMS   int64  `bson:"updated_time_ms"      json:"updated_time_ms"`

	// 分配字段只由分配引擎 / 授权的手动操作改写
	AssignedToID string `bson:"assigned_to_id,omitempty" json:"assigned_to_id,omitempty"`
	AssignedAtMS int64  `bson:"assigned_at_ms,omitempty" json:"assigned_at_ms,omitempty"`

	CreatedAtMS int64 `bson:"created_at_ms"        json:"created_at_ms"`
}

func (sess *Conversation) GetTableName() string {
	return "inbox_conversation"
}

func (sess *Conversation) Collection() *mongo.Collection {
	return mgo.GetDB().Collection(sess.GetTableName())
}

// Message 消息：归属于一个会话，写入后不可变
type Message struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"     json:"_id,omitempty"`
	MsgID          string             `bson:"msg_id"            json:"msg_id"` // 雪花ID
	ConversationID string             `bson:"conversation_id"   json:"conversation_id"`
	PageID         string             `bson:"page_id"           json:"page_id"`
	SenderID       string             `bson:"sender_id"         json:"sender_id"`

	Text        string           `bson:"text,omitempty"        json:"text,omitempty"`
	Attachments []map[string]any `bson:"attachments,omitempty" json:"attachments,omitempty"`
	StickerID   int64            `bson:"sticker_id,omitempty"  json:"sticker_id,omitempty"`

	FromAgent   bool  `bson:"from_agent"        json:"from_agent"` // true=坐席发出，false=访客
	CreatedAtMS int64 `bson:"created_at_ms"     json:"created_at_ms"`
}

func (sess *Message) GetTableName() string {
	return "inbox_message"
}

func (sess *Message) Collection() *mongo.Collection {
	return mgo.GetDB().Collection(sess.GetTableName())
}
