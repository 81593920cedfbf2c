package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelToTopicAndKey(t *testing.T) {
	tests := []struct {
		channel string
		topic   string
		key     string
		wantErr bool
	}{
		{channel: UserSubscriptionsChannel("alice"), topic: "user-subscriptions", key: "alice"},
		{channel: RoomMetaChannel("GENERAL"), topic: "room-meta", key: "GENERAL"},
		{channel: "room:a:b:meta", topic: "room-meta", key: "a:b"},
		{channel: "user:bob:read_state", topic: "user-read-state", key: "bob"},
		{channel: "user:alice", wantErr: true},
		{channel: "user::subscriptions", wantErr: true},
		{channel: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			topic, key, err := channelToTopicAndKey(tt.channel)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.topic, topic)
			assert.Equal(t, tt.key, key)
		})
	}
}

func TestNewEventPayload(t *testing.T) {
	evt, err := NewEvent(EventUnreadIncremented, "alice", UnreadIncrementedPayload{U: "alice", Rid: "r1"})
	require.NoError(t, err)
	assert.Equal(t, EventUnreadIncremented, evt.Type)
	assert.Equal(t, "alice", evt.Key)
	assert.False(t, evt.Timestamp.IsZero())

	var p UnreadIncrementedPayload
	require.NoError(t, evt.UnmarshalPayload(&p))
	assert.Equal(t, UnreadIncrementedPayload{U: "alice", Rid: "r1"}, p)
}

func TestNewPublisherDriverSelection(t *testing.T) {
	p, err := NewPublisher(Config{Driver: "none"})
	require.NoError(t, err)
	assert.IsType(t, NopPublisher{}, p)
	require.NoError(t, p.Publish(context.Background(), "user:alice:subscriptions", &Event{}))

	_, err = NewPublisher(Config{Driver: "nats"})
	require.Error(t, err)
}
