package store

import (
	"context"

	"PPInbox/module/inbox/model"
)

// InboundUpsert 一条归一化后的入站消息要落到会话上的增量
type InboundUpsert struct {
	PageID      string
	SenderID    string
	AccountID   string // 调用方先从页面绑定解析；可为空
	Snippet     string
	TimestampMS int64
}

// ConversationDB 抽象：生产实现 Mongo；测试用内存实现（mem.go）
type ConversationDB interface {
	// UpsertInbound 单次原子操作完成"存在则 unread+1，不存在则建会话"
	// created=true 表示本次新建（触发自动分配的依据）
	UpsertInbound(ctx context.Context, in InboundUpsert) (conv *model.Conversation, created bool, err error)

	InsertMessage(ctx context.Context, m *model.Message) error

	// MarkRead unread 置 0，幂等
	MarkRead(ctx context.Context, conversationID string) (*model.Conversation, error)

	GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error)

	SetAssignment(ctx context.Context, conversationID, userID string, atMS int64) error
	ClearAssignment(ctx context.Context, conversationID string) error
	// UnassignAllFor 成员被移出团队时，清掉其名下全部会话的分配
	UnassignAllFor(ctx context.Context, accountID, userID string) (int64, error)

	// ListUnassigned 未分配会话，updated_time 倒序（bulk 分配的输入）
	ListUnassigned(ctx context.Context, accountID string) ([]model.Conversation, error)
	ListConversations(ctx context.Context, pageID string, beforeMS int64, limit int64) ([]model.Conversation, error)
	ListMessages(ctx context.Context, conversationID string, beforeMS int64, limit int64) ([]model.Message, error)
}

// TeamDB 团队与轮转游标
type TeamDB interface {
	// GetTeamByAccount 没有团队返回 (nil, nil)，不是错误
	GetTeamByAccount(ctx context.Context, accountID string) (*model.Team, error)

	// ActiveMembers 活跃成员，joined_at 升序（轮转名单顺序）
	ActiveMembers(ctx context.Context, teamID string) ([]model.TeamMember, error)

	// ClaimRotationSlot 原子领取下一个轮转位：返回领取前的游标（调用方 mod n 得下标），
	// 同时把游标推进到 (idx+1) mod n。activeCount 必须 > 0。
	ClaimRotationSlot(ctx context.Context, teamID string, activeCount int64) (before int64, err error)

	// CasCursor 游标从 from 置为 to；from 不匹配返回 false（bulk 收尾用）
	CasCursor(ctx context.Context, teamID string, from, to int64) (bool, error)

	CreateTeam(ctx context.Context, t *model.Team) error
	SetAutoAssign(ctx context.Context, teamID string, enabled bool) error
	AddMember(ctx context.Context, m *model.TeamMember) error
	SetMemberActive(ctx context.Context, teamID, userID string, active bool) error
	// RemoveMember 硬删关联行；调用方负责同一逻辑操作里清会话分配
	RemoveMember(ctx context.Context, teamID, userID string) error

	// AccountForPage 页面归属账号；无绑定返回 ("", nil)
	AccountForPage(ctx context.Context, pageID string) (string, error)
	BindPage(ctx context.Context, b *model.PageBinding) error
}
