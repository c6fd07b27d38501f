package service

import (
	"context"
	"time"

	"PPInbox/logger"
	"PPInbox/module/inbox/model"
	"PPInbox/module/inbox/store"
)

// AssignEngine 轮转分配引擎。规则只有一条：把团队轮转游标指到的下一个活跃成员
// 分给会话，然后推进游标。鉴权是调用方的事，引擎默认只被授权方调用。
type AssignEngine struct {
	Conv  store.ConversationDB
	Teams store.TeamDB
	Pub   *Publisher // 可为 nil（测试）
}

// AssignNew 响应式入口：新会话落库后调用。
// 没团队/没开自动分配/没活跃成员 => 空操作，返回 ""。
func (e *AssignEngine) AssignNew(ctx context.Context, accountID string, conv *model.Conversation) (string, error) {
	team, err := e.Teams.GetTeamByAccount(ctx, accountID)
	if err != nil {
		return "", err
	}
	if team == nil || !team.AutoAssignEnabled {
		return "", nil
	}
	members, err := e.Teams.ActiveMembers(ctx, team.TeamID)
	if err != nil {
		return "", err
	}
	if len(members) == 0 {
		return "", nil
	}

	n := int64(len(members))
	before, err := e.Teams.ClaimRotationSlot(ctx, team.TeamID, n)
	if err != nil {
		return "", err
	}
	idx := before % n
	member := members[idx]

	now := time.Now().UnixMilli()
	if err := e.Conv.SetAssignment(ctx, conv.ConversationID, member.UserID, now); err != nil {
		return "", err
	}
	conv.AssignedToID = member.UserID
	conv.AssignedAtMS = now

	logger.Infof("[assign] conv=%s -> user=%s (slot %d/%d)", conv.ConversationID, member.UserID, idx, n)
	if e.Pub != nil {
		e.Pub.PublishConversationUpdate(conv)
	}
	return member.UserID, nil
}

// AutoAssignAll 批量入口（运营触发）：先对冻结的活跃名单算出完整分配计划，
// 再逐条落库，最后 CAS 收尾游标 = (起始 + 分配数) mod n。
// 计划按快照算，跑批途中成员变动不会打乱轮转。
func (e *AssignEngine) AutoAssignAll(ctx context.Context, accountID string) (int, error) {
	team, err := e.Teams.GetTeamByAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if team == nil {
		return 0, nil
	}
	members, err := e.Teams.ActiveMembers(ctx, team.TeamID)
	if err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return 0, nil
	}
	convs, err := e.Conv.ListUnassigned(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if len(convs) == 0 {
		// 空跑不动游标
		return 0, nil
	}

	n := int64(len(members))
	start := team.AssignCursor % n
	plan := planRotation(len(convs), n, start)

	now := time.Now().UnixMilli()
	assigned := 0
	for i := range convs {
		member := members[plan[i]]
		if err := e.Conv.SetAssignment(ctx, convs[i].ConversationID, member.UserID, now); err != nil {
			logger.Errorf("[assign] bulk set conv=%s user=%s err=%v", convs[i].ConversationID, member.UserID, err)
			continue
		}
		convs[i].AssignedToID = member.UserID
		convs[i].AssignedAtMS = now
		assigned++
		if e.Pub != nil {
			e.Pub.PublishConversationUpdate(&convs[i])
		}
	}

	final := (start + int64(assigned)) % n
	ok, err := e.Teams.CasCursor(ctx, team.TeamID, team.AssignCursor, final)
	if err != nil {
		return assigned, err
	}
	if !ok {
		// 并发改动了游标（另一个 bulk 或响应式分配），放弃收尾写，轮转仍在 [0,n) 内
		logger.Warnf("[assign] cursor cas lost team=%s from=%d to=%d", team.TeamID, team.AssignCursor, final)
	}
	return assigned, nil
}

// planRotation 纯函数：第 i 个会话分给下标 (start+i) mod n 的成员
func planRotation(count int, n, start int64) []int64 {
	if n <= 0 || count <= 0 {
		return nil
	}
	plan := make([]int64, count)
	for i := 0; i < count; i++ {
		plan[i] = (start + int64(i)) % n
	}
	return plan
}
