package pubsub

import (
	"fmt"
	"strings"
)

// Channel naming: {scope}:{id}:{stream}.
const (
	ChannelUserSubscriptions = "user:%s:subscriptions"
	ChannelRoomMeta          = "room:%s:meta"
)

// Event types.
const (
	EventUnreadIncremented   = "subscription.unread"
	EventSubscriptionUpdated = "subscription.updated"
	EventRoomUpdated         = "room.updated"
)

// UserSubscriptionsChannel returns the channel carrying a user's subscription changes.
func UserSubscriptionsChannel(u string) string {
	return fmt.Sprintf(ChannelUserSubscriptions, u)
}

// RoomMetaChannel returns the channel carrying a room's metadata changes.
func RoomMetaChannel(rid string) string {
	return fmt.Sprintf(ChannelRoomMeta, rid)
}

// UnreadIncrementedPayload is published once per user whose counter moved.
type UnreadIncrementedPayload struct {
	U   string `json:"u"`
	Rid string `json:"rid"`
}

// SubscriptionUpdatedPayload is published after an explicit subscription update.
type SubscriptionUpdatedPayload struct {
	U        string `json:"u"`
	Rid      string `json:"rid"`
	Unread   int64  `json:"unread"`
	Archived bool   `json:"archived"`
}

// RoomUpdatedPayload is published after a room replace or partial update.
type RoomUpdatedPayload struct {
	Rid           string   `json:"rid"`
	Fields        []string `json:"fields,omitempty"`
	LastMessageTs int64    `json:"lastMessageTs,omitempty"`
}

// channelToTopicAndKey converts a channel to a Kafka topic and message key.
//
//	"user:alice:subscriptions" → topic: "user-subscriptions", key: "alice"
//	"room:GENERAL:meta"        → topic: "room-meta", key: "GENERAL"
//
// The id segment may itself contain ':'.
func channelToTopicAndKey(channel string) (topic, key string, err error) {
	parts := strings.Split(channel, ":")
	if len(parts) < 3 {
		return "", "", fmt.Errorf("invalid channel format: %s", channel)
	}
	scope := parts[0]
	stream := parts[len(parts)-1]
	key = strings.Join(parts[1:len(parts)-1], ":")
	if scope == "" || stream == "" || key == "" {
		return "", "", fmt.Errorf("invalid channel format: %s", channel)
	}
	return scope + "-" + strings.ReplaceAll(stream, "_", "-"), key, nil
}
