package service

import (
	"time"

	"github.com/pkg/errors"
)

// ErrNotPageObject 顶层 object 不是 "page"：不认这类事件，按"未处理"返回（404），不算错误
var ErrNotPageObject = errors.New("webhook object is not page")

// WebhookPayload 平台事件推送的外层结构
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

type WebhookEntry struct {
	ID        string          `json:"id"` // 页面ID
	Time      int64           `json:"time"`
	Messaging []MessagingItem `json:"messaging"`
}

type MessagingItem struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Timestamp int64 `json:"timestamp"`
	// 没有 message 的条目（已读回执/送达确认等）直接跳过
	Message *MessagePayload `json:"message,omitempty"`
}

type MessagePayload struct {
	MID         string           `json:"mid"`
	Text        string           `json:"text"`
	Attachments []map[string]any `json:"attachments"`
	StickerID   int64            `json:"sticker_id"`
	IsEcho      bool             `json:"is_echo"` // 页面侧回声，不是访客消息
}

// InboundEvent 归一化后的入站消息事件
type InboundEvent struct {
	PageID      string
	SenderID    string
	Text        string
	Attachments []map[string]any
	StickerID   int64
	TimestampMS int64
}

// NormalizeWebhook 把已验签的 payload 摊平成 (page, sender, message) 序列。
// 容错：entry 没有 messaging、item 没有 message、echo 消息一律跳过。
func NormalizeWebhook(p *WebhookPayload) ([]InboundEvent, error) {
	if p == nil || p.Object != "page" {
		return nil, ErrNotPageObject
	}

	var out []InboundEvent
	for _, entry := range p.Entry {
		if len(entry.Messaging) == 0 {
			continue
		}
		for _, item := range entry.Messaging {
			if item.Message == nil || item.Message.IsEcho {
				continue
			}
			if item.Sender.ID == "" {
				continue
			}
			ts := item.Timestamp
			if ts == 0 {
				ts = time.Now().UnixMilli()
			}
			out = append(out, InboundEvent{
				PageID:      entry.ID,
				SenderID:    item.Sender.ID,
				Text:        item.Message.Text,
				Attachments: item.Message.Attachments,
				StickerID:   item.Message.StickerID,
				TimestampMS: ts,
			})
		}
	}
	return out, nil
}
