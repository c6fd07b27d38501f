package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes 启动时建索引
// (page_id, participant_id) 唯一索引是建会话竞态的最后防线（见 UpsertInbound）
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(collConversation).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "page_id", Value: 1}, {Key: "participant_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_page_participant"),
		},
		{
			Keys:    bson.D{{Key: "conversation_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_conversation_id"),
		},
		{
			Keys:    bson.D{{Key: "account_id", Value: 1}, {Key: "updated_time_ms", Value: -1}},
			Options: options.Index().SetName("idx_account_updated"),
		},
	})
	if err != nil {
		return err
	}

	_, err = db.Collection(collMessage).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at_ms", Value: -1}},
			Options: options.Index().SetName("idx_conv_created"),
		},
		{
			Keys:    bson.D{{Key: "msg_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_msg_id"),
		},
	})
	if err != nil {
		return err
	}

	_, err = db.Collection(collTeam).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "account_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_team_account"),
		},
		{
			Keys:    bson.D{{Key: "team_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_team_id"),
		},
	})
	if err != nil {
		return err
	}

	_, err = db.Collection(collTeamMember).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "team_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_team_member"),
		},
		{
			Keys:    bson.D{{Key: "team_id", Value: 1}, {Key: "is_active", Value: 1}, {Key: "joined_at", Value: 1}},
			Options: options.Index().SetName("idx_active_members"),
		},
	})
	if err != nil {
		return err
	}

	_, err = db.Collection(collPageBinding).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "page_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_page_binding"),
	})
	return err
}
