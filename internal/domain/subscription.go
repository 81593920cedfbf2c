package domain

import (
	"errors"
	"time"
)

// ErrNegativeUnread is returned when an update would set a negative counter.
var ErrNegativeUnread = errors.New("unread must not be negative")

// Subscription is a user's membership state in one room, identified by (U, Rid).
// A subscription materialized by an unread increment has the same shape as an
// explicitly created one, with the caller fields left zero.
type Subscription struct {
	U        string    `json:"u" bson:"u"`
	Rid      string    `json:"rid" bson:"rid"`
	Name     string    `json:"name" bson:"name"`
	T        RoomType  `json:"t" bson:"t"`
	Open     bool      `json:"open" bson:"open"`
	Unread   int64     `json:"unread" bson:"unread"`
	Ts       time.Time `json:"ts" bson:"ts"`
	Archived bool      `json:"archived" bson:"archived"`
	Ls       int64     `json:"ls" bson:"ls"`
}

// CreateSubscription is one item of a batch create. Archived and Ts are
// accepted for wire compatibility and always overwritten at insert time.
type CreateSubscription struct {
	U        string    `json:"u" binding:"required"`
	Rid      string    `json:"rid" binding:"required"`
	Name     string    `json:"name"`
	T        RoomType  `json:"t"`
	Open     bool      `json:"open"`
	Archived bool      `json:"archived"`
	Ts       time.Time `json:"ts"`
}

// ToSubscription stamps the item with archived=false and ts=now.
func (c CreateSubscription) ToSubscription(now time.Time) Subscription {
	return Subscription{
		U:        c.U,
		Rid:      c.Rid,
		Name:     c.Name,
		T:        c.T,
		Open:     c.Open,
		Unread:   0,
		Ts:       now,
		Archived: false,
	}
}

// SubscriptionUpdate is a partial subscription modification. Nil fields are left untouched.
type SubscriptionUpdate struct {
	Name     *string `json:"name,omitempty"`
	Open     *bool   `json:"open,omitempty"`
	Unread   *int64  `json:"unread,omitempty"`
	Archived *bool   `json:"archived,omitempty"`
	Ls       *int64  `json:"ls,omitempty"`
}

// Document field names of Subscription.
const (
	SubFieldU        = "u"
	SubFieldRid      = "rid"
	SubFieldName     = "name"
	SubFieldT        = "t"
	SubFieldOpen     = "open"
	SubFieldUnread   = "unread"
	SubFieldTs       = "ts"
	SubFieldArchived = "archived"
	SubFieldLs       = "ls"
)

// Validate checks the values of the set fields.
func (u SubscriptionUpdate) Validate() error {
	if u.Unread != nil && *u.Unread < 0 {
		return ErrNegativeUnread
	}
	return nil
}

// Fields returns the set fields keyed by document field name.
func (u SubscriptionUpdate) Fields() map[string]interface{} {
	fields := make(map[string]interface{})
	if u.Name != nil {
		fields[SubFieldName] = *u.Name
	}
	if u.Open != nil {
		fields[SubFieldOpen] = *u.Open
	}
	if u.Unread != nil {
		fields[SubFieldUnread] = *u.Unread
	}
	if u.Archived != nil {
		fields[SubFieldArchived] = *u.Archived
	}
	if u.Ls != nil {
		fields[SubFieldLs] = *u.Ls
	}
	return fields
}

// IsEmpty reports whether the update sets nothing.
func (u SubscriptionUpdate) IsEmpty() bool {
	return len(u.Fields()) == 0
}

// SubscriptionFeedItem is a subscription joined with its room.
type SubscriptionFeedItem struct {
	Subscription `bson:",inline"`
	RoomData     Room `json:"roomData" bson:"roomData"`
}
