package service

import (
	"encoding/json"
	"io"
	"net/http"

	"PPInbox/logger"
	midsec "PPInbox/middleware/security"
	"PPInbox/module/inbox/model"
	"PPInbox/module/inbox/store"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

// 平台验证握手的 query 参数
const (
	paramHubMode      = "hub.mode"
	paramHubToken     = "hub.verify_token"
	paramHubChallenge = "hub.challenge"
)

const maxWebhookBody = 1 << 20 // 1MB

// Webhook 入站事件接收器：验签 -> 归一化 -> 落库 -> 响应式分配 -> 扇出
type Webhook struct {
	Conv   store.ConversationDB
	Teams  store.TeamDB
	Engine *AssignEngine
	Pub    *Publisher

	AppSecret   []byte // 为空 => 跳过验签（有日志）
	VerifyToken string
}

// HandleVerify GET：订阅握手。mode=subscribe 且 token 对得上 => 原样返回 challenge
func (h *Webhook) HandleVerify(c *gin.Context) {
	mode := c.Query(paramHubMode)
	token := c.Query(paramHubToken)
	challenge := c.Query(paramHubChallenge)

	if mode == "" || token == "" || challenge == "" {
		c.String(http.StatusBadRequest, "missing verification params")
		return
	}
	if mode == "subscribe" && token == h.VerifyToken {
		logger.Info("[webhook] verification handshake ok")
		c.String(http.StatusOK, challenge)
		return
	}
	logger.Warnf("[webhook] verification failed mode=%s", mode)
	c.String(http.StatusForbidden, "verification failed")
}

// HandleEvents POST：事件投递。
// 注意验签必须针对原始 body 字节，先读完再解析。
func (h *Webhook) HandleEvents(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.String(http.StatusBadRequest, "cannot read body")
		return
	}

	sig := c.GetHeader(midsec.SignatureHeader)
	if err := midsec.VerifySignature(body, sig, h.AppSecret); err != nil {
		logger.Warnf("[webhook] signature rejected: %v", err)
		c.String(http.StatusUnauthorized, "invalid signature")
		return
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.String(http.StatusBadRequest, "malformed payload")
		return
	}

	events, err := NormalizeWebhook(&payload)
	if errors.Is(err, ErrNotPageObject) {
		// 不认这类事件：按平台约定回 404，避免对方把"忽略"当"失败"重试
		c.String(http.StatusNotFound, "unsupported object")
		return
	}

	for _, ev := range events {
		if perr := h.processEvent(c, ev); perr != nil {
			// 基础设施错误：打日志并回非 200，让平台自己的重试策略接管
			logger.Errorf("[webhook] process page=%s sender=%s err=%v", ev.PageID, ev.SenderID, perr)
			c.String(http.StatusInternalServerError, "processing failed")
			return
		}
	}

	c.String(http.StatusOK, "EVENT_RECEIVED")
}

// processEvent 单条入站消息：会话 upsert + 消息落库 + 新会话触发分配 + 扇出
func (h *Webhook) processEvent(c *gin.Context, ev InboundEvent) error {
	ctx := c.Request.Context()

	accountID, err := h.Teams.AccountForPage(ctx, ev.PageID)
	if err != nil {
		return err
	}

	snippet := ev.Text
	if snippet == "" {
		snippet = model.AttachmentSnippet
	}

	conv, created, err := h.Conv.UpsertInbound(ctx, store.InboundUpsert{
		PageID:      ev.PageID,
		SenderID:    ev.SenderID,
		AccountID:   accountID,
		Snippet:     snippet,
		TimestampMS: ev.TimestampMS,
	})
	if err != nil {
		return err
	}

	msg := &model.Message{
		ConversationID: conv.ConversationID,
		PageID:         ev.PageID,
		SenderID:       ev.SenderID,
		Text:           ev.Text,
		Attachments:    ev.Attachments,
		StickerID:      ev.StickerID,
		FromAgent:      false,
		CreatedAtMS:    ev.TimestampMS,
	}
	if err := h.Conv.InsertMessage(ctx, msg); err != nil {
		return err
	}

	if created && accountID != "" {
		if _, err := h.Engine.AssignNew(ctx, accountID, conv); err != nil {
			return err
		}
	}

	if h.Pub != nil {
		h.Pub.PublishNewMessage(conv, msg)
	}
	return nil
}
