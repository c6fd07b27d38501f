package model

import (
	"PPInbox/service/mgo"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// PageBinding 页面 -> 归属账号（host）
// 绑定在页面接入流程里建好（OAuth 换 token 属外部协作方，这里只消费映射）
type PageBinding struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"  json:"_id,omitempty"`
	PageID    string             `bson:"page_id"        json:"page_id"` // 唯一索引
	AccountID string             `bson:"account_id"     json:"account_id"`
	PageName  string             `bson:"page_name,omitempty" json:"page_name,omitempty"`

	CreatedAt time.Time `bson:"created_at"     json:"created_at"`
}

func (sess *PageBinding) GetTableName() string {
	return "inbox_page_binding"
}

func (sess *PageBinding) Collection() *mongo.Collection {
	return mgo.GetDB().Collection(sess.GetTableName())
}
