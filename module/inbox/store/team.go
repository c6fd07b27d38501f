package store

import (
	"context"
	"time"

	"PPInbox/module/inbox/model"
	"PPInbox/tools/ids"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collTeam        = "inbox_team"
	collTeamMember  = "inbox_team_member"
	collPageBinding = "inbox_page_binding"
)

// TeamRepo Mongo 实现
type TeamRepo struct {
	DB *mongo.Database
}

var _ TeamDB = (*TeamRepo)(nil)

func (r *TeamRepo) GetTeamByAccount(ctx context.Context, accountID string) (*model.Team, error) {
	var t model.Team
	err := r.DB.Collection(collTeam).FindOne(ctx, bson.M{"account_id": accountID}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TeamRepo) ActiveMembers(ctx context.Context, teamID string) ([]model.TeamMember, error) {
	cur, err := r.DB.Collection(collTeamMember).Find(ctx,
		bson.M{"team_id": teamID, "is_active": true},
		options.Find().SetSort(bson.D{{Key: "joined_at", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	var items []model.TeamMember
	if err := cur.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ClaimRotationSlot 管道更新一步完成"读旧游标 + 推进游标"，两次调用拿不到同一个槽位。
// 推进写法 (cursor mod n + 1) mod n：游标永远落在 [0, n)，成员减少也不会越界。
func (r *TeamRepo) ClaimRotationSlot(ctx context.Context, teamID string, activeCount int64) (int64, error) {
	if activeCount <= 0 {
		return 0, errors.New("activeCount must be positive")
	}
	before := options.Before
	pipeline := bson.A{bson.M{"$set": bson.M{
		"assign_cursor": bson.M{"$mod": bson.A{
			bson.M{"$add": bson.A{
				bson.M{"$mod": bson.A{"$assign_cursor", activeCount}},
				1,
			}},
			activeCount,
		}},
		"updated_at": "$$NOW",
	}}}
	res := r.DB.Collection(collTeam).FindOneAndUpdate(ctx,
		bson.M{"team_id": teamID},
		pipeline,
		&options.FindOneAndUpdateOptions{ReturnDocument: &before},
	)
	var doc struct {
		AssignCursor int64 `bson:"assign_cursor"`
	}
	if err := res.Decode(&doc); err != nil {
		return 0, err
	}
	return doc.AssignCursor, nil
}

func (r *TeamRepo) CasCursor(ctx context.Context, teamID string, from, to int64) (bool, error) {
	res, err := r.DB.Collection(collTeam).UpdateOne(ctx,
		bson.M{"team_id": teamID, "assign_cursor": from},
		bson.M{"$set": bson.M{"assign_cursor": to, "updated_at": time.Now()}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func (r *TeamRepo) CreateTeam(ctx context.Context, t *model.Team) error {
	if t.TeamID == "" {
		t.TeamID = ids.GenerateString()
	}
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	_, err := r.DB.Collection(collTeam).InsertOne(ctx, t)
	return err
}

func (r *TeamRepo) SetAutoAssign(ctx context.Context, teamID string, enabled bool) error {
	_, err := r.DB.Collection(collTeam).UpdateOne(ctx,
		bson.M{"team_id": teamID},
		bson.M{"$set": bson.M{"auto_assign_enabled": enabled, "updated_at": time.Now()}},
	)
	return err
}

func (r *TeamRepo) AddMember(ctx context.Context, m *model.TeamMember) error {
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now()
	}
	_, err := r.DB.Collection(collTeamMember).InsertOne(ctx, m)
	return err
}

func (r *TeamRepo) SetMemberActive(ctx context.Context, teamID, userID string, active bool) error {
	_, err := r.DB.Collection(collTeamMember).UpdateOne(ctx,
		bson.M{"team_id": teamID, "user_id": userID},
		bson.M{"$set": bson.M{"is_active": active}},
	)
	return err
}

func (r *TeamRepo) RemoveMember(ctx context.Context, teamID, userID string) error {
	_, err := r.DB.Collection(collTeamMember).DeleteOne(ctx,
		bson.M{"team_id": teamID, "user_id": userID},
	)
	return err
}

func (r *TeamRepo) AccountForPage(ctx context.Context, pageID string) (string, error) {
	var b model.PageBinding
	err := r.DB.Collection(collPageBinding).FindOne(ctx, bson.M{"page_id": pageID}).Decode(&b)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return b.AccountID, nil
}

func (r *TeamRepo) BindPage(ctx context.Context, b *model.PageBinding) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	_, err := r.DB.Collection(collPageBinding).UpdateOne(ctx,
		bson.M{"page_id": b.PageID},
		bson.M{"$set": bson.M{"account_id": b.AccountID, "page_name": b.PageName},
			"$setOnInsert": bson.M{"created_at": b.CreatedAt}},
		options.Update().SetUpsert(true),
	)
	return err
}
