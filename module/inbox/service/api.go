package service

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"PPInbox/logger"
	midsec "PPInbox/middleware/security"
	"PPInbox/module/inbox/model"
	"PPInbox/module/inbox/store"
	"PPInbox/tools/errs"

	"github.com/gin-gonic/gin"
)

// AssignAction 封闭的命令集；不认的 tag 显式拒绝，不做开放式字符串分发
type AssignAction string

const (
	ActionAssign        AssignAction = "assign"
	ActionUnassign      AssignAction = "unassign"
	ActionAutoAssignAll AssignAction = "autoAssignAll"
)

// TeamAction 团队管理命令
type TeamAction string

const (
	ActionCreateTeam      TeamAction = "createTeam"
	ActionAddMember       TeamAction = "addMember"
	ActionRemoveMember    TeamAction = "removeMember"
	ActionSetMemberActive TeamAction = "setMemberActive"
	ActionSetAutoAssign   TeamAction = "setAutoAssign"
	ActionGetTeam         TeamAction = "getTeam"
)

// API 坐席侧接口：分配、团队管理、会话读路径
type API struct {
	Conv   store.ConversationDB
	Teams  store.TeamDB
	Engine *AssignEngine
	Pub    *Publisher
}

type assignmentReq struct {
	Action         AssignAction `json:"action"`
	ConversationID string       `json:"conversation_id"`
	AssignToID     string       `json:"assign_to_id"`
}

// HandleAssignment POST /api/assignment
// 手动 assign/unassign 绕过轮转直写；需要团队管理角色
func (s *API) HandleAssignment(c *gin.Context) {
	claims := midsec.ClaimsFrom(c)
	if !midsec.HasTeamRole(claims) {
		c.JSON(http.StatusForbidden, errs.ErrNoPermission)
		return
	}

	var req assignmentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errs.ErrArgs.WithDetail(err.Error()))
		return
	}

	ctx := c.Request.Context()
	switch req.Action {
	case ActionAssign:
		if req.ConversationID == "" || req.AssignToID == "" {
			c.JSON(http.StatusBadRequest, errs.ErrArgs.WithDetail("conversation_id and assign_to_id required"))
			return
		}
		if err := s.Conv.SetAssignment(ctx, req.ConversationID, req.AssignToID, time.Now().UnixMilli()); err != nil {
			s.serverError(c, "assign", err)
			return
		}
		s.publishConv(ctx, req.ConversationID)
		c.JSON(http.StatusOK, gin.H{"success": true})

	case ActionUnassign:
		if req.ConversationID == "" {
			c.JSON(http.StatusBadRequest, errs.ErrArgs.WithDetail("conversation_id required"))
			return
		}
		if err := s.Conv.ClearAssignment(ctx, req.ConversationID); err != nil {
			s.serverError(c, "unassign", err)
			return
		}
		s.publishConv(ctx, req.ConversationID)
		c.JSON(http.StatusOK, gin.H{"success": true})

	case ActionAutoAssignAll:
		n, err := s.Engine.AutoAssignAll(ctx, claims.AccountID)
		if err != nil {
			s.serverError(c, "autoAssignAll", err)
			return
		}
		// 没团队/没成员/没未分配会话都是 assigned:0 的正常返回
		c.JSON(http.StatusOK, gin.H{"success": true, "assigned": n})

	default:
		c.JSON(http.StatusBadRequest, errs.ErrUnknownAction.WithDetail(string(req.Action)))
	}
}

type teamReq struct {
	Action     TeamAction `json:"action"`
	Name       string     `json:"name"`
	UserID     string     `json:"user_id"`
	Active     *bool      `json:"active"`
	AutoAssign *bool      `json:"auto_assign"`
}

// HandleTeam POST /api/team
func (s *API) HandleTeam(c *gin.Context) {
	claims := midsec.ClaimsFrom(c)
	if !midsec.HasTeamRole(claims) {
		c.JSON(http.StatusForbidden, errs.ErrNoPermission)
		return
	}

	var req teamReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errs.ErrArgs.WithDetail(err.Error()))
		return
	}

	ctx := c.Request.Context()
	team, err := s.Teams.GetTeamByAccount(ctx, claims.AccountID)
	if err != nil {
		s.serverError(c, string(req.Action), err)
		return
	}

	switch req.Action {
	case ActionCreateTeam:
		if team != nil {
			c.JSON(http.StatusBadRequest, errs.ErrArgs.WithDetail("team already exists"))
			return
		}
		t := &model.Team{
			AccountID:         claims.AccountID,
			Name:              req.Name,
			AutoAssignEnabled: req.AutoAssign != nil && *req.AutoAssign,
		}
		if err := s.Teams.CreateTeam(ctx, t); err != nil {
			s.serverError(c, "createTeam", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "team": t})

	case ActionAddMember:
		if team == nil || req.UserID == "" {
			c.JSON(http.StatusBadRequest, errs.ErrArgs.WithDetail("team and user_id required"))
			return
		}
		m := &model.TeamMember{
			TeamID:    team.TeamID,
			AccountID: claims.AccountID,
			UserID:    req.UserID,
			IsActive:  true,
		}
		if err := s.Teams.AddMember(ctx, m); err != nil {
			s.serverError(c, "addMember", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})

	case ActionRemoveMember:
		if team == nil || req.UserID == "" {
			c.JSON(http.StatusBadRequest, errs.ErrArgs.WithDetail("team and user_id required"))
			return
		}
		// 移除 + 清分配是同一个逻辑操作：不留指向非成员的会话
		if err := s.Teams.RemoveMember(ctx, team.TeamID, req.UserID); err != nil {
			s.serverError(c, "removeMember", err)
			return
		}
		cleared, err := s.Conv.UnassignAllFor(ctx, claims.AccountID, req.UserID)
		if err != nil {
			s.serverError(c, "removeMember", err)
			return
		}
		logger.Infof("[team] removed user=%s cleared=%d conversations", req.UserID, cleared)
		c.JSON(http.StatusOK, gin.H{"success": true, "unassigned": cleared})

	case ActionSetMemberActive:
		if team == nil || req.UserID == "" || req.Active == nil {
			c.JSON(http.StatusBadRequest, errs.ErrArgs.WithDetail("team, user_id and active required"))
			return
		}
		if err := s.Teams.SetMemberActive(ctx, team.TeamID, req.UserID, *req.Active); err != nil {
			s.serverError(c, "setMemberActive", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})

	case ActionSetAutoAssign:
		if team == nil || req.AutoAssign == nil {
			c.JSON(http.StatusBadRequest, errs.ErrArgs.WithDetail("team and auto_assign required"))
			return
		}
		if err := s.Teams.SetAutoAssign(ctx, team.TeamID, *req.AutoAssign); err != nil {
			s.serverError(c, "setAutoAssign", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})

	case ActionGetTeam:
		if team == nil {
			c.JSON(http.StatusOK, gin.H{"success": true, "team": nil})
			return
		}
		members, err := s.Teams.ActiveMembers(ctx, team.TeamID)
		if err != nil {
			s.serverError(c, "getTeam", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "team": team, "members": members})

	default:
		c.JSON(http.StatusBadRequest, errs.ErrUnknownAction.WithDetail(string(req.Action)))
	}
}

// HandleListConversations GET /api/conversations?page_id=&cursor_ms=&limit=
func (s *API) HandleListConversations(c *gin.Context) {
	pageID := c.Query("page_id")
	if pageID == "" {
		c.JSON(http.StatusBadRequest, errs.ErrArgs.WithDetail("page_id required"))
		return
	}
	cursor := parseInt64(c.Query("cursor_ms"), 1<<62)
	limit := parseInt64(c.Query("limit"), 50)

	items, err := s.Conv.ListConversations(c.Request.Context(), pageID, cursor, limit)
	if err != nil {
		s.serverError(c, "listConversations", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// HandleListMessages GET /api/conversations/:conversation_id/messages
func (s *API) HandleListMessages(c *gin.Context) {
	conv := c.Param("conversation_id")
	cursor := parseInt64(c.Query("cursor_ms"), 1<<62)
	limit := parseInt64(c.Query("limit"), 50)

	items, err := s.Conv.ListMessages(c.Request.Context(), conv, cursor, limit)
	if err != nil {
		s.serverError(c, "listMessages", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// HandleMarkRead POST /api/conversations/:conversation_id/read （幂等）
func (s *API) HandleMarkRead(c *gin.Context) {
	convID := c.Param("conversation_id")
	conv, err := s.Conv.MarkRead(c.Request.Context(), convID)
	if err != nil {
		s.serverError(c, "markRead", err)
		return
	}
	if s.Pub != nil {
		s.Pub.PublishConversationUpdate(conv)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "conversation": conv})
}

// publishConv 重新加载会话快照并广播 conversation_update
func (s *API) publishConv(ctx context.Context, conversationID string) {
	if s.Pub == nil {
		return
	}
	conv, err := s.Conv.GetConversation(ctx, conversationID)
	if err != nil {
		logger.Warnf("[api] publish update conv=%s err=%v", conversationID, err)
		return
	}
	s.Pub.PublishConversationUpdate(conv)
}

func (s *API) serverError(c *gin.Context, op string, err error) {
	logger.Errorf("[api] %s failed: %v", op, err)
	c.JSON(http.StatusInternalServerError, errs.ErrInternalServer.WithDetail(op))
}

func parseInt64(s string, def int64) int64 {
	x, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return def
	}
	return x
}
