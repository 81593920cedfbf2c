package domain

import (
	"time"
)

// RoomType is the room type tag.
type RoomType string

const (
	RoomTypeDirect   RoomType = "d"
	RoomTypeChannel  RoomType = "c"
	RoomTypePrivate  RoomType = "p"
	RoomTypeLivechat RoomType = "l"
)

// Valid reports whether t is a known room type.
func (t RoomType) Valid() bool {
	switch t {
	case RoomTypeDirect, RoomTypeChannel, RoomTypePrivate, RoomTypeLivechat:
		return true
	}
	return false
}

// Room is a conversation identified by Rid. LastMessageTs is epoch milliseconds
// and is the recency key of the subscription feed.
type Room struct {
	Rid           string    `json:"rid" bson:"rid"`
	T             RoomType  `json:"t" bson:"t"`
	Name          string    `json:"name" bson:"name"`
	Topic         string    `json:"topic" bson:"topic"`
	U             string    `json:"u" bson:"u"`
	LastMessage   string    `json:"lastMessage" bson:"lastMessage"`
	LastMessageTs int64     `json:"lastMessageTs" bson:"lastMessageTs"`
	Msgs          int64     `json:"msgs" bson:"msgs"`
	CreatedAt     time.Time `json:"createdAt" bson:"createdAt"`
}

// RoomUpdate is a partial room modification. Nil fields are left untouched.
type RoomUpdate struct {
	T             *RoomType `json:"t,omitempty"`
	Name          *string   `json:"name,omitempty"`
	Topic         *string   `json:"topic,omitempty"`
	LastMessage   *string   `json:"lastMessage,omitempty"`
	LastMessageTs *int64    `json:"lastMessageTs,omitempty"`
	Msgs          *int64    `json:"msgs,omitempty"`
}

// Document field names of Room.
const (
	RoomFieldRid           = "rid"
	RoomFieldT             = "t"
	RoomFieldName          = "name"
	RoomFieldTopic         = "topic"
	RoomFieldU             = "u"
	RoomFieldLastMessage   = "lastMessage"
	RoomFieldLastMessageTs = "lastMessageTs"
	RoomFieldMsgs          = "msgs"
	RoomFieldCreatedAt     = "createdAt"
)

// Fields returns the set fields keyed by document field name.
func (u RoomUpdate) Fields() map[string]interface{} {
	fields := make(map[string]interface{})
	if u.T != nil {
		fields[RoomFieldT] = string(*u.T)
	}
	if u.Name != nil {
		fields[RoomFieldName] = *u.Name
	}
	if u.Topic != nil {
		fields[RoomFieldTopic] = *u.Topic
	}
	if u.LastMessage != nil {
		fields[RoomFieldLastMessage] = *u.LastMessage
	}
	if u.LastMessageTs != nil {
		fields[RoomFieldLastMessageTs] = *u.LastMessageTs
	}
	if u.Msgs != nil {
		fields[RoomFieldMsgs] = *u.Msgs
	}
	return fields
}

// IsEmpty reports whether the update sets nothing.
func (u RoomUpdate) IsEmpty() bool {
	return len(u.Fields()) == 0
}

// ReplaceFields returns every field a full replace overwrites: all of them
// except the identity (rid) and the creation time.
func (r *Room) ReplaceFields() map[string]interface{} {
	return map[string]interface{}{
		RoomFieldT:             string(r.T),
		RoomFieldName:          r.Name,
		RoomFieldTopic:         r.Topic,
		RoomFieldU:             r.U,
		RoomFieldLastMessage:   r.LastMessage,
		RoomFieldLastMessageTs: r.LastMessageTs,
		RoomFieldMsgs:          r.Msgs,
	}
}
