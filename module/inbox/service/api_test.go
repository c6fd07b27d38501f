package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	midsec "PPInbox/middleware/security"
	"PPInbox/module/inbox/model"
	"PPInbox/module/inbox/store"
	"PPInbox/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newAPIRouter(t *testing.T, db interface {
	store.ConversationDB
	store.TeamDB
}, hub *fakeHub, claims *security.AgentClaims) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var pub *Publisher
	if hub != nil {
		pub = NewPublisher(hub, nil)
	}
	api := &API{
		Conv:   db,
		Teams:  db,
		Engine: &AssignEngine{Conv: db, Teams: db, Pub: pub},
		Pub:    pub,
	}

	r := gin.New()
	if claims != nil {
		// 测试里直接塞身份，跳过 JWT 中间件
		r.Use(func(c *gin.Context) { c.Set(midsec.CtxAgentClaims, claims) })
	}
	r.POST("/api/assignment", api.HandleAssignment)
	r.POST("/api/team", api.HandleTeam)
	r.GET("/api/conversations", api.HandleListConversations)
	r.GET("/api/conversations/:conversation_id/messages", api.HandleListMessages)
	r.POST("/api/conversations/:conversation_id/read", api.HandleMarkRead)
	return r
}

func doJSON(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

var managerClaims = &security.AgentClaims{AgentID: "agent_mgr", AccountID: "acct_1", Role: "manager"}

func TestAssignmentRequiresTeamRole(t *testing.T) {
	db := store.NewMemDB()

	// 无身份
	r := newAPIRouter(t, db, nil, nil)
	w := doJSON(r, http.MethodPost, "/api/assignment", `{"action":"assign"}`)
	require.Equal(t, http.StatusForbidden, w.Code)

	// 普通坐席
	r = newAPIRouter(t, db, nil, &security.AgentClaims{AgentID: "a", AccountID: "acct_1", Role: "agent"})
	w = doJSON(r, http.MethodPost, "/api/assignment", `{"action":"assign"}`)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestAssignmentUnknownAction(t *testing.T) {
	db := store.NewMemDB()
	r := newAPIRouter(t, db, nil, managerClaims)

	w := doJSON(r, http.MethodPost, "/api/assignment", `{"action":"resolveAll"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "resolveAll")
}

func TestAssignmentManualAssignUnassign(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemDB()
	hub := newFakeHub()
	r := newAPIRouter(t, db, hub, managerClaims)

	conv := newConv(t, db, "page_1", "v1", "acct_1", 100)

	w := doJSON(r, http.MethodPost, "/api/assignment",
		`{"action":"assign","conversation_id":"`+conv.ConversationID+`","assign_to_id":"agent_x"}`)
	require.Equal(t, http.StatusOK, w.Code)

	got, err := db.GetConversation(ctx, conv.ConversationID)
	require.NoError(t, err)
	require.Equal(t, "agent_x", got.AssignedToID)

	// 分配更新要进分到坐席的 user 房间
	evs := hub.byRoom[model.RoomUser("agent_x")]
	require.Len(t, evs, 1)
	require.Equal(t, model.EventConversationUpdate, evs[0].Event)

	w = doJSON(r, http.MethodPost, "/api/assignment",
		`{"action":"unassign","conversation_id":"`+conv.ConversationID+`"}`)
	require.Equal(t, http.StatusOK, w.Code)

	got, err = db.GetConversation(ctx, conv.ConversationID)
	require.NoError(t, err)
	require.Empty(t, got.AssignedToID)
}

func TestAssignmentMissingArgs(t *testing.T) {
	db := store.NewMemDB()
	r := newAPIRouter(t, db, nil, managerClaims)

	w := doJSON(r, http.MethodPost, "/api/assignment", `{"action":"assign","conversation_id":"c1"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/api/assignment", `{"action":"unassign"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAssignmentAutoAssignAll(t *testing.T) {
	db := store.NewMemDB()
	seedTeam(t, db, "acct_1", 2, true)
	for i := 0; i < 3; i++ {
		newConv(t, db, "page_1", "v"+string(rune('a'+i)), "acct_1", int64(100+i))
	}
	r := newAPIRouter(t, db, newFakeHub(), managerClaims)

	w := doJSON(r, http.MethodPost, "/api/assignment", `{"action":"autoAssignAll"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success  bool `json:"success"`
		Assigned int  `json:"assigned"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, 3, resp.Assigned)

	// 没团队的账号也是正常的 assigned:0
	r2 := newAPIRouter(t, store.NewMemDB(), nil, managerClaims)
	w = doJSON(r2, http.MethodPost, "/api/assignment", `{"action":"autoAssignAll"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Zero(t, resp.Assigned)
}

func TestTeamLifecycle(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemDB()
	r := newAPIRouter(t, db, nil, managerClaims)

	w := doJSON(r, http.MethodPost, "/api/team", `{"action":"createTeam","name":"support","auto_assign":true}`)
	require.Equal(t, http.StatusOK, w.Code)

	// 一户一队
	w = doJSON(r, http.MethodPost, "/api/team", `{"action":"createTeam","name":"second"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/api/team", `{"action":"addMember","user_id":"agent_1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(r, http.MethodPost, "/api/team", `{"action":"addMember","user_id":"agent_2"}`)
	require.Equal(t, http.StatusOK, w.Code)

	team, err := db.GetTeamByAccount(ctx, "acct_1")
	require.NoError(t, err)
	require.True(t, team.AutoAssignEnabled)

	members, err := db.ActiveMembers(ctx, team.TeamID)
	require.NoError(t, err)
	require.Len(t, members, 2)

	// 停用：退出轮转但保留成员
	w = doJSON(r, http.MethodPost, "/api/team", `{"action":"setMemberActive","user_id":"agent_2","active":false}`)
	require.Equal(t, http.StatusOK, w.Code)
	members, err = db.ActiveMembers(ctx, team.TeamID)
	require.NoError(t, err)
	require.Len(t, members, 1)

	// 移除要连带清掉该坐席名下的分配
	conv := newConv(t, db, "page_1", "v1", "acct_1", 500)
	require.NoError(t, db.SetAssignment(ctx, conv.ConversationID, "agent_1", 501))
	w = doJSON(r, http.MethodPost, "/api/team", `{"action":"removeMember","user_id":"agent_1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"unassigned":1`)

	got, err := db.GetConversation(ctx, conv.ConversationID)
	require.NoError(t, err)
	require.Empty(t, got.AssignedToID)

	w = doJSON(r, http.MethodPost, "/api/team", `{"action":"burnTeam"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMarkReadResetsUnreadAndPublishes(t *testing.T) {
	db := store.NewMemDB()
	hub := newFakeHub()
	r := newAPIRouter(t, db, hub, managerClaims)

	var conv *model.Conversation
	for i := 0; i < 3; i++ {
		c, _, err := db.UpsertInbound(context.Background(), store.InboundUpsert{
			PageID: "page_1", SenderID: "v1", AccountID: "acct_1", Snippet: "hi", TimestampMS: int64(100 + i),
		})
		require.NoError(t, err)
		conv = c
	}
	require.EqualValues(t, 3, conv.UnreadCount)

	w := doJSON(r, http.MethodPost, "/api/conversations/"+conv.ConversationID+"/read", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"unread_count":0`)

	evs := hub.byRoom[model.RoomConv(conv.ConversationID)]
	require.Len(t, evs, 1)
	require.Equal(t, model.EventConversationUpdate, evs[0].Event)
	require.Zero(t, evs[0].Data.Conversation.UnreadCount)
}

func TestListConversationsAndMessages(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemDB()
	r := newAPIRouter(t, db, nil, managerClaims)

	conv := newConv(t, db, "page_1", "v1", "acct_1", 100)
	for i := 0; i < 3; i++ {
		require.NoError(t, db.InsertMessage(ctx, &model.Message{
			ConversationID: conv.ConversationID, PageID: "page_1", SenderID: "v1",
			Text: "m", CreatedAtMS: int64(10 + i),
		}))
	}

	w := doJSON(r, http.MethodGet, "/api/conversations?page_id=page_1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var convResp struct {
		Items []model.Conversation `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &convResp))
	require.Len(t, convResp.Items, 1)

	w = doJSON(r, http.MethodGet, "/api/conversations", "")
	require.Equal(t, http.StatusBadRequest, w.Code, "page_id is mandatory")

	w = doJSON(r, http.MethodGet, "/api/conversations/"+conv.ConversationID+"/messages?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	var msgResp struct {
		Items []model.Message `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msgResp))
	require.Len(t, msgResp.Items, 2)
	require.Greater(t, msgResp.Items[0].CreatedAtMS, msgResp.Items[1].CreatedAtMS, "newest first")
}
