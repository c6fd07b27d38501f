package store

import (
	"context"
	"time"

	"PPInbox/module/inbox/model"
	"PPInbox/tools/ids"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collConversation = "inbox_conversation"
	collMessage      = "inbox_message"
)

// ConversationRepo Mongo 实现
type ConversationRepo struct {
	DB *mongo.Database
}

var _ ConversationDB = (*ConversationRepo)(nil)

// UpsertInbound 单条原子命令：$inc + $set + $setOnInsert（upsert）
// unread_count 在 insert 分支由 $inc 落成 1，不需要 lookup-then-create。
// 并发首条消息撞唯一索引时驱动会报 E11000，按"别人赢了，改走 update"重试一次。
func (r *ConversationRepo) UpsertInbound(ctx context.Context, in InboundUpsert) (*model.Conversation, bool, error) {
	filter := bson.M{"page_id": in.PageID, "participant_id": in.SenderID}
	update := bson.M{
		"$inc": bson.M{"unread_count": 1},
		"$set": bson.M{"snippet": in.Snippet, "updated_time_ms": in.TimestampMS},
		"$setOnInsert": bson.M{
			"conversation_id":  ids.GenerateString(),
			"account_id":       in.AccountID,
			"participant_name": model.DefaultParticipantName,
			"created_at_ms":    in.TimestampMS,
		},
	}

	var created bool
	for attempt := 0; ; attempt++ {
		res, err := r.DB.Collection(collConversation).UpdateOne(ctx, filter, update,
			options.Update().SetUpsert(true))
		if err != nil {
			if mongo.IsDuplicateKeyError(err) && attempt == 0 {
				continue
			}
			return nil, false, err
		}
		created = res.UpsertedCount == 1
		break
	}

	var conv model.Conversation
	if err := r.DB.Collection(collConversation).FindOne(ctx, filter).Decode(&conv); err != nil {
		return nil, false, err
	}
	return &conv, created, nil
}

func (r *ConversationRepo) InsertMessage(ctx context.Context, m *model.Message) error {
	if m.MsgID == "" {
		m.MsgID = ids.GenerateString()
	}
	if m.CreatedAtMS == 0 {
		m.CreatedAtMS = time.Now().UnixMilli()
	}
	_, err := r.DB.Collection(collMessage).InsertOne(ctx, m)
	return err
}

// MarkRead unread 置 0；重复调用结果一致
func (r *ConversationRepo) MarkRead(ctx context.Context, conversationID string) (*model.Conversation, error) {
	after := options.After
	res := r.DB.Collection(collConversation).FindOneAndUpdate(ctx,
		bson.M{"conversation_id": conversationID},
		bson.M{"$set": bson.M{"unread_count": int64(0)}},
		&options.FindOneAndUpdateOptions{ReturnDocument: &after},
	)
	var conv model.Conversation
	if err := res.Decode(&conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.DB.Collection(collConversation).FindOne(ctx,
		bson.M{"conversation_id": conversationID}).Decode(&conv)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *ConversationRepo) SetAssignment(ctx context.Context, conversationID, userID string, atMS int64) error {
	_, err := r.DB.Collection(collConversation).UpdateOne(ctx,
		bson.M{"conversation_id": conversationID},
		bson.M{"$set": bson.M{"assigned_to_id": userID, "assigned_at_ms": atMS}},
	)
	return err
}

func (r *ConversationRepo) ClearAssignment(ctx context.Context, conversationID string) error {
	_, err := r.DB.Collection(collConversation).UpdateOne(ctx,
		bson.M{"conversation_id": conversationID},
		bson.M{"$unset": bson.M{"assigned_to_id": "", "assigned_at_ms": ""}},
	)
	return err
}

func (r *ConversationRepo) UnassignAllFor(ctx context.Context, accountID, userID string) (int64, error) {
	res, err := r.DB.Collection(collConversation).UpdateMany(ctx,
		bson.M{"account_id": accountID, "assigned_to_id": userID},
		bson.M{"$unset": bson.M{"assigned_to_id": "", "assigned_at_ms": ""}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *ConversationRepo) ListUnassigned(ctx context.Context, accountID string) ([]model.Conversation, error) {
	cur, err := r.DB.Collection(collConversation).Find(ctx,
		bson.M{"account_id": accountID, "assigned_to_id": bson.M{"$exists": false}},
		optionsFindSortLimit(bson.D{{Key: "updated_time_ms", Value: -1}}, 0),
	)
	if err != nil {
		return nil, err
	}
	var items []model.Conversation
	if err := cur.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *ConversationRepo) ListConversations(ctx context.Context, pageID string, beforeMS int64, limit int64) ([]model.Conversation, error) {
	cur, err := r.DB.Collection(collConversation).Find(ctx,
		bson.M{"page_id": pageID, "updated_time_ms": bson.M{"$lt": beforeMS}},
		optionsFindSortLimit(bson.D{{Key: "updated_time_ms", Value: -1}}, int(limit)),
	)
	if err != nil {
		return nil, err
	}
	var items []model.Conversation
	if err := cur.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *ConversationRepo) ListMessages(ctx context.Context, conversationID string, beforeMS int64, limit int64) ([]model.Message, error) {
	cur, err := r.DB.Collection(collMessage).Find(ctx,
		bson.M{"conversation_id": conversationID, "created_at_ms": bson.M{"$lt": beforeMS}},
		optionsFindSortLimit(bson.D{{Key: "created_at_ms", Value: -1}}, int(limit)),
	)
	if err != nil {
		return nil, err
	}
	var items []model.Message
	if err := cur.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// helpers
func optionsFindSortLimit(sort bson.D, limit int) *options.FindOptions {
	o := options.Find().SetSort(sort)
	if limit > 0 {
		o.SetLimit(int64(limit))
	}
	return o
}
