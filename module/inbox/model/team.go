package model

import (
	"PPInbox/service/mgo"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Team 团队：一个 account（host）一个团队
type Team struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"          json:"_id,omitempty"`
	TeamID    string             `bson:"team_id"                json:"team_id"`
	AccountID string             `bson:"account_id"             json:"account_id"` // 唯一索引：一户一队

	Name string `bson:"name"                         json:"name"`
	// 允许为这个团队自动分配（页面的勾选）
	AutoAssignEnabled bool `bson:"auto_assign_enabled"         json:"auto_assign_enabled"`

	// 轮转游标：下一个接单成员在活跃名单里的下标
	// 使用前一律对“当前活跃人数”取模，成员增减不会越界
	AssignCursor int64 `bson:"assign_cursor"                json:"assign_cursor"`

	CreatedAt time.Time `bson:"created_at"                   json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"                   json:"updated_at"`
}

func (sess *Team) GetTableName() string {
	return "inbox_team"
}

func (sess *Team) Collection() *mongo.Collection {
	return mgo.GetDB().Collection(sess.GetTableName())
}

// TeamMember 团队-坐席关联
// 下线用 is_active 软删（保留分配历史）；显式移除才硬删，并同时清掉该成员名下会话的分配
type TeamMember struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"          json:"_id,omitempty"`
	TeamID    string             `bson:"team_id"                json:"team_id"`
	AccountID string             `bson:"account_id"             json:"account_id"`
	UserID    string             `bson:"user_id"                json:"user_id"` // 坐席身份

	IsActive bool      `bson:"is_active"              json:"is_active"`
	JoinedAt time.Time `bson:"joined_at"              json:"joined_at"` // 名单顺序按加入时间
}

// 建立索引
// db.inbox_team.createIndex({ account_id: 1 }, { unique: true, name: "uniq_team_account" })
// db.inbox_team_member.createIndex({ team_id: 1, user_id: 1 }, { unique: true, name: "uniq_team_member" })
// db.inbox_team_member.createIndex({ team_id: 1, is_active: 1, joined_at: 1 }, { name: "idx_active_members" })

func (sess *TeamMember) GetTableName() string {
	return "inbox_team_member"
}

func (sess *TeamMember) Collection() *mongo.Collection {
	return mgo.GetDB().Collection(sess.GetTableName())
}
