package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"PPInbox/module/inbox/model"
	"PPInbox/tools/ids"
)

var (
	ErrDupConversation = errors.New("unique (page_id, participant_id) violated")
	ErrNoConversation  = errors.New("conversation not found")
	ErrNoTeam          = errors.New("team not found")
)

// memDB 内存实现：语义对齐 Mongo 实现，单测/本地联调用
type memDB struct {
	mu       sync.Mutex
	byKey    map[string]*model.Conversation // page|participant -> conv
	byConvID map[string]*model.Conversation
	messages []model.Message

	teams   map[string]*model.Team         // team_id -> team
	byAcct  map[string]string              // account_id -> team_id
	members map[string][]*model.TeamMember // team_id -> members (joined order)
	pages   map[string]string              // page_id -> account_id
}

func NewMemDB() *memDB {
	return &memDB{
		byKey:    make(map[string]*model.Conversation),
		byConvID: make(map[string]*model.Conversation),
		teams:    make(map[string]*model.Team),
		byAcct:   make(map[string]string),
		members:  make(map[string][]*model.TeamMember),
		pages:    make(map[string]string),
	}
}

var (
	_ ConversationDB = (*memDB)(nil)
	_ TeamDB         = (*memDB)(nil)
)

func convKey(page, participant string) string { return page + "|" + participant }

func (db *memDB) UpsertInbound(ctx context.Context, in InboundUpsert) (*model.Conversation, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	k := convKey(in.PageID, in.SenderID)
	if c, ok := db.byKey[k]; ok {
		c.UnreadCount++
		c.Snippet = in.Snippet
		c.UpdatedTimeMS = in.TimestampMS
		cp := *c
		return &cp, false, nil
	}
	c := &model.Conversation{
		ConversationID:  ids.GenerateString(),
		PageID:          in.PageID,
		ParticipantID:   in.SenderID,
		AccountID:       in.AccountID,
		ParticipantName: model.DefaultParticipantName,
		Snippet:         in.Snippet,
		UnreadCount:     1,
		UpdatedTimeMS:   in.TimestampMS,
		CreatedAtMS:     in.TimestampMS,
	}
	db.byKey[k] = c
	db.byConvID[c.ConversationID] = c
	cp := *c
	return &cp, true, nil
}

func (db *memDB) InsertMessage(ctx context.Context, m *model.Message) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if m.MsgID == "" {
		m.MsgID = ids.GenerateString()
	}
	if m.CreatedAtMS == 0 {
		m.CreatedAtMS = time.Now().UnixMilli()
	}
	db.messages = append(db.messages, *m)
	return nil
}

func (db *memDB) MarkRead(ctx context.Context, conversationID string) (*model.Conversation, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	c, ok := db.byConvID[conversationID]
	if !ok {
		return nil, ErrNoConversation
	}
	c.UnreadCount = 0
	cp := *c
	return &cp, nil
}

func (db *memDB) GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	c, ok := db.byConvID[conversationID]
	if !ok {
		return nil, ErrNoConversation
	}
	cp := *c
	return &cp, nil
}

func (db *memDB) SetAssignment(ctx context.Context, conversationID, userID string, atMS int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	c, ok := db.byConvID[conversationID]
	if !ok {
		return ErrNoConversation
	}
	c.AssignedToID = userID
	c.AssignedAtMS = atMS
	return nil
}

func (db *memDB) ClearAssignment(ctx context.Context, conversationID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	c, ok := db.byConvID[conversationID]
	if !ok {
		return ErrNoConversation
	}
	c.AssignedToID = ""
	c.AssignedAtMS = 0
	return nil
}

func (db *memDB) UnassignAllFor(ctx context.Context, accountID, userID string) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var n int64
	for _, c := range db.byConvID {
		if c.AccountID == accountID && c.AssignedToID == userID {
			c.AssignedToID = ""
			c.AssignedAtMS = 0
			n++
		}
	}
	return n, nil
}

func (db *memDB) ListUnassigned(ctx context.Context, accountID string) ([]model.Conversation, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var items []model.Conversation
	for _, c := range db.byConvID {
		if c.AccountID == accountID && c.AssignedToID == "" {
			items = append(items, *c)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].UpdatedTimeMS > items[j].UpdatedTimeMS })
	return items, nil
}

func (db *memDB) ListConversations(ctx context.Context, pageID string, beforeMS int64, limit int64) ([]model.Conversation, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var items []model.Conversation
	for _, c := range db.byConvID {
		if c.PageID == pageID && c.UpdatedTimeMS < beforeMS {
			items = append(items, *c)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].UpdatedTimeMS > items[j].UpdatedTimeMS })
	if limit > 0 && int64(len(items)) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (db *memDB) ListMessages(ctx context.Context, conversationID string, beforeMS int64, limit int64) ([]model.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var items []model.Message
	for _, m := range db.messages {
		if m.ConversationID == conversationID && m.CreatedAtMS < beforeMS {
			items = append(items, m)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAtMS > items[j].CreatedAtMS })
	if limit > 0 && int64(len(items)) > limit {
		items = items[:limit]
	}
	return items, nil
}

// ---- TeamDB ----

func (db *memDB) GetTeamByAccount(ctx context.Context, accountID string) (*model.Team, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	tid, ok := db.byAcct[accountID]
	if !ok {
		return nil, nil
	}
	cp := *db.teams[tid]
	return &cp, nil
}

func (db *memDB) ActiveMembers(ctx context.Context, teamID string) ([]model.TeamMember, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var items []model.TeamMember
	for _, m := range db.members[teamID] {
		if m.IsActive {
			items = append(items, *m)
		}
	}
	return items, nil
}

func (db *memDB) ClaimRotationSlot(ctx context.Context, teamID string, activeCount int64) (int64, error) {
	if activeCount <= 0 {
		return 0, errors.New("activeCount must be positive")
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	t, ok := db.teams[teamID]
	if !ok {
		return 0, ErrNoTeam
	}
	before := t.AssignCursor
	t.AssignCursor = (before%activeCount + 1) % activeCount
	return before, nil
}

func (db *memDB) CasCursor(ctx context.Context, teamID string, from, to int64) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	t, ok := db.teams[teamID]
	if !ok || t.AssignCursor != from {
		return false, nil
	}
	t.AssignCursor = to
	return true, nil
}

func (db *memDB) CreateTeam(ctx context.Context, t *model.Team) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if t.TeamID == "" {
		t.TeamID = ids.GenerateString()
	}
	cp := *t
	db.teams[t.TeamID] = &cp
	db.byAcct[t.AccountID] = t.TeamID
	return nil
}

func (db *memDB) SetAutoAssign(ctx context.Context, teamID string, enabled bool) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	t, ok := db.teams[teamID]
	if !ok {
		return ErrNoTeam
	}
	t.AutoAssignEnabled = enabled
	return nil
}

func (db *memDB) AddMember(ctx context.Context, m *model.TeamMember) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now()
	}
	cp := *m
	db.members[m.TeamID] = append(db.members[m.TeamID], &cp)
	return nil
}

func (db *memDB) SetMemberActive(ctx context.Context, teamID, userID string, active bool) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, m := range db.members[teamID] {
		if m.UserID == userID {
			m.IsActive = active
			return nil
		}
	}
	return errors.New("member not found")
}

func (db *memDB) RemoveMember(ctx context.Context, teamID, userID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	list := db.members[teamID]
	for i, m := range list {
		if m.UserID == userID {
			db.members[teamID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return nil
}

func (db *memDB) AccountForPage(ctx context.Context, pageID string) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.pages[pageID], nil
}

func (db *memDB) BindPage(ctx context.Context, b *model.PageBinding) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.pages[b.PageID] = b.AccountID
	return nil
}
