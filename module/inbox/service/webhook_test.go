package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	midsec "PPInbox/middleware/security"
	"PPInbox/module/inbox/model"
	"PPInbox/module/inbox/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type fakeHub struct {
	byRoom map[string][]model.RoomEvent
}

func newFakeHub() *fakeHub { return &fakeHub{byRoom: make(map[string][]model.RoomEvent)} }

func (h *fakeHub) GwID() string { return "gw-test" }

func (h *fakeHub) BroadcastRoom(room string, payload []byte) {
	var ev model.RoomEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		panic(err)
	}
	h.byRoom[room] = append(h.byRoom[room], ev)
}

const testSecret = "app_secret_42"

func newWebhookRouter(t *testing.T, db interface {
	store.ConversationDB
	store.TeamDB
}, hub *fakeHub) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	pub := NewPublisher(hub, nil)
	engine := &AssignEngine{Conv: db, Teams: db, Pub: pub}
	wh := &Webhook{
		Conv:        db,
		Teams:       db,
		Engine:      engine,
		Pub:         pub,
		AppSecret:   []byte(testSecret),
		VerifyToken: "verify_me",
	}

	r := gin.New()
	r.GET("/webhook", wh.HandleVerify)
	r.POST("/webhook", wh.HandleEvents)
	return r
}

func signBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func postEvents(r *gin.Engine, body []byte, sig string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sig != "" {
		req.Header.Set(midsec.SignatureHeader, sig)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func textMessageBody(t *testing.T, pageID, senderID, text string, ts int64) []byte {
	t.Helper()
	var item MessagingItem
	item.Sender.ID = senderID
	item.Timestamp = ts
	item.Message = &MessagePayload{MID: "mid." + senderID, Text: text}
	payload := WebhookPayload{
		Object: "page",
		Entry:  []WebhookEntry{{ID: pageID, Time: ts, Messaging: []MessagingItem{item}}},
	}
	body, err := json.Marshal(&payload)
	require.NoError(t, err)
	return body
}

func TestHandleVerifyHandshake(t *testing.T) {
	db := store.NewMemDB()
	r := newWebhookRouter(t, db, newFakeHub())

	do := func(mode, token, challenge string) *httptest.ResponseRecorder {
		q := url.Values{}
		if mode != "" {
			q.Set("hub.mode", mode)
		}
		if token != "" {
			q.Set("hub.verify_token", token)
		}
		if challenge != "" {
			q.Set("hub.challenge", challenge)
		}
		req := httptest.NewRequest(http.MethodGet, "/webhook?"+q.Encode(), nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := do("subscribe", "verify_me", "ch_12345")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ch_12345", w.Body.String())

	require.Equal(t, http.StatusForbidden, do("subscribe", "wrong", "ch").Code)
	require.Equal(t, http.StatusForbidden, do("unsubscribe", "verify_me", "ch").Code)
	require.Equal(t, http.StatusBadRequest, do("subscribe", "verify_me", "").Code)
}

func TestHandleEventsRejectsBadSignature(t *testing.T) {
	db := store.NewMemDB()
	r := newWebhookRouter(t, db, newFakeHub())

	body := textMessageBody(t, "page_1", "visitor_1", "hello", 1000)

	w := postEvents(r, body, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// 签的是别的 body
	w = postEvents(r, body, signBody([]byte("something else")))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	convs, err := db.ListConversations(context.Background(), "page_1", math.MaxInt64, 0)
	require.NoError(t, err)
	require.Empty(t, convs)
}

func TestHandleEventsMalformedJSON(t *testing.T) {
	db := store.NewMemDB()
	r := newWebhookRouter(t, db, newFakeHub())

	body := []byte(`{"object": "page", "entry": [`)
	w := postEvents(r, body, signBody(body))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleEventsNonPageObject(t *testing.T) {
	db := store.NewMemDB()
	r := newWebhookRouter(t, db, newFakeHub())

	body := []byte(`{"object": "instagram", "entry": []}`)
	w := postEvents(r, body, signBody(body))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleEventsRepeatedSenderIncrementsUnread(t *testing.T) {
	db := store.NewMemDB()
	r := newWebhookRouter(t, db, newFakeHub())

	const N = 4
	for i := 0; i < N; i++ {
		body := textMessageBody(t, "page_1", "visitor_1", "ping", int64(1000+i))
		w := postEvents(r, body, signBody(body))
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "EVENT_RECEIVED", w.Body.String())
	}

	convs, err := db.ListConversations(context.Background(), "page_1", math.MaxInt64, 0)
	require.NoError(t, err)
	require.Len(t, convs, 1, "same (page, sender) must stay one conversation")
	require.EqualValues(t, N, convs[0].UnreadCount)
	require.Equal(t, "ping", convs[0].Snippet)
	require.EqualValues(t, 1000+N-1, convs[0].UpdatedTimeMS)

	msgs, err := db.ListMessages(context.Background(), convs[0].ConversationID, math.MaxInt64, 0)
	require.NoError(t, err)
	require.Len(t, msgs, N)
}

func TestHandleEventsNewConversationAssignsAndFansOut(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemDB()
	hub := newFakeHub()
	r := newWebhookRouter(t, db, hub)

	team, users := seedTeam(t, db, "acct_1", 3, true)
	require.NoError(t, db.BindPage(ctx, &model.PageBinding{PageID: "page_1", AccountID: "acct_1"}))

	body := textMessageBody(t, "page_1", "visitor_1", "need help", 5000)
	w := postEvents(r, body, signBody(body))
	require.Equal(t, http.StatusOK, w.Code)

	convs, err := db.ListConversations(ctx, "page_1", math.MaxInt64, 0)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	conv := convs[0]
	require.Equal(t, "acct_1", conv.AccountID)
	require.Equal(t, users[0], conv.AssignedToID, "fresh cursor starts at member 0")
	require.EqualValues(t, 1, conv.UnreadCount)

	after, err := db.GetTeamByAccount(ctx, "acct_1")
	require.NoError(t, err)
	require.EqualValues(t, 1, after.AssignCursor)
	require.Equal(t, team.TeamID, after.TeamID)

	// page 房间要同时看到分配更新和新消息
	pageEvents := hub.byRoom[model.RoomPage("page_1")]
	require.Len(t, pageEvents, 2)
	require.Equal(t, model.EventConversationUpdate, pageEvents[0].Event)
	require.Equal(t, model.EventNewMessage, pageEvents[1].Event)
	require.Equal(t, conv.ConversationID, pageEvents[1].Data.ConversationID)
	require.NotNil(t, pageEvents[1].Data.Message)
	require.Equal(t, "need help", pageEvents[1].Data.Message.Text)

	// 分到的坐席的 user 房间也要收到新消息
	userEvents := hub.byRoom[model.RoomUser(users[0])]
	require.NotEmpty(t, userEvents)
	last := userEvents[len(userEvents)-1]
	require.Equal(t, model.EventNewMessage, last.Event)
}

func TestHandleEventsDeliveryReceiptIsIgnored(t *testing.T) {
	db := store.NewMemDB()
	hub := newFakeHub()
	r := newWebhookRouter(t, db, hub)

	// 送达确认：messaging 条目没有 message 字段
	body := []byte(`{"object":"page","entry":[{"id":"page_1","time":1,` +
		`"messaging":[{"sender":{"id":"visitor_1"},"recipient":{"id":"page_1"},"timestamp":1,` +
		`"delivery":{"watermark":1}}]}]}`)
	w := postEvents(r, body, signBody(body))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "EVENT_RECEIVED", w.Body.String())

	convs, err := db.ListConversations(context.Background(), "page_1", math.MaxInt64, 0)
	require.NoError(t, err)
	require.Empty(t, convs)
	require.Empty(t, hub.byRoom)
}

func TestHandleEventsAttachmentSnippet(t *testing.T) {
	db := store.NewMemDB()
	r := newWebhookRouter(t, db, newFakeHub())

	var item MessagingItem
	item.Sender.ID = "visitor_1"
	item.Timestamp = 777
	item.Message = &MessagePayload{
		MID:         "mid.att",
		Attachments: []map[string]any{{"type": "image"}},
	}
	payload := WebhookPayload{
		Object: "page",
		Entry:  []WebhookEntry{{ID: "page_1", Time: 777, Messaging: []MessagingItem{item}}},
	}
	body, err := json.Marshal(&payload)
	require.NoError(t, err)

	w := postEvents(r, body, signBody(body))
	require.Equal(t, http.StatusOK, w.Code)

	convs, err := db.ListConversations(context.Background(), "page_1", math.MaxInt64, 0)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.Equal(t, model.AttachmentSnippet, convs[0].Snippet)
}
