package domain

import (
	"time"
)

// RoomModel is the GORM model for the rooms table.
type RoomModel struct {
	Rid           string    `gorm:"column:rid;type:varchar(64);primaryKey"`
	T             string    `gorm:"column:t;type:varchar(8);index;not null"`
	Name          string    `gorm:"type:varchar(200)"`
	Topic         string    `gorm:"type:text"`
	U             string    `gorm:"column:u;type:varchar(64);index"`
	LastMessage   string    `gorm:"type:text"`
	LastMessageTs int64     `gorm:"index;not null;default:0"`
	Msgs          int64     `gorm:"not null;default:0"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for RoomModel.
func (RoomModel) TableName() string {
	return "rooms"
}

// ToDomain converts RoomModel to domain Room.
func (m *RoomModel) ToDomain() *Room {
	return &Room{
		Rid:           m.Rid,
		T:             RoomType(m.T),
		Name:          m.Name,
		Topic:         m.Topic,
		U:             m.U,
		LastMessage:   m.LastMessage,
		LastMessageTs: m.LastMessageTs,
		Msgs:          m.Msgs,
		CreatedAt:     m.CreatedAt,
	}
}

// RoomToModel converts domain Room to RoomModel.
func RoomToModel(r *Room) *RoomModel {
	return &RoomModel{
		Rid:           r.Rid,
		T:             string(r.T),
		Name:          r.Name,
		Topic:         r.Topic,
		U:             r.U,
		LastMessage:   r.LastMessage,
		LastMessageTs: r.LastMessageTs,
		Msgs:          r.Msgs,
		CreatedAt:     r.CreatedAt,
	}
}

// RoomColumns maps Room document field names to rooms table columns.
var RoomColumns = map[string]string{
	RoomFieldRid:           "rid",
	RoomFieldT:             "t",
	RoomFieldName:          "name",
	RoomFieldTopic:         "topic",
	RoomFieldU:             "u",
	RoomFieldLastMessage:   "last_message",
	RoomFieldLastMessageTs: "last_message_ts",
	RoomFieldMsgs:          "msgs",
	RoomFieldCreatedAt:     "created_at",
}

// SubscriptionModel is the GORM model for the subscriptions table.
// (u, rid) is the composite primary key.
type SubscriptionModel struct {
	U        string    `gorm:"column:u;type:varchar(64);primaryKey"`
	Rid      string    `gorm:"column:rid;type:varchar(64);primaryKey;index"`
	Name     string    `gorm:"type:varchar(200)"`
	T        string    `gorm:"column:t;type:varchar(8)"`
	Open     bool      `gorm:"not null"`
	Unread   int64     `gorm:"not null"`
	Ts       time.Time `gorm:"column:ts;index"`
	Archived bool      `gorm:"not null"`
	Ls       int64     `gorm:"column:ls;not null"`
}

// TableName specifies the table name for SubscriptionModel.
func (SubscriptionModel) TableName() string {
	return "subscriptions"
}

// ToDomain converts SubscriptionModel to domain Subscription.
func (m *SubscriptionModel) ToDomain() *Subscription {
	return &Subscription{
		U:        m.U,
		Rid:      m.Rid,
		Name:     m.Name,
		T:        RoomType(m.T),
		Open:     m.Open,
		Unread:   m.Unread,
		Ts:       m.Ts,
		Archived: m.Archived,
		Ls:       m.Ls,
	}
}

// SubscriptionToModel converts domain Subscription to SubscriptionModel.
func SubscriptionToModel(s *Subscription) *SubscriptionModel {
	return &SubscriptionModel{
		U:        s.U,
		Rid:      s.Rid,
		Name:     s.Name,
		T:        string(s.T),
		Open:     s.Open,
		Unread:   s.Unread,
		Ts:       s.Ts,
		Archived: s.Archived,
		Ls:       s.Ls,
	}
}

// SubscriptionColumns maps Subscription document field names to subscriptions table columns.
var SubscriptionColumns = map[string]string{
	SubFieldU:        "u",
	SubFieldRid:      "rid",
	SubFieldName:     "name",
	SubFieldT:        "t",
	SubFieldOpen:     "open",
	SubFieldUnread:   "unread",
	SubFieldTs:       "ts",
	SubFieldArchived: "archived",
	SubFieldLs:       "ls",
}
