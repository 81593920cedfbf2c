package service

import (
	"context"

	"github.com/weiawesome/wes-io-live/conversation-service/internal/consumer"
	"github.com/weiawesome/wes-io-live/conversation-service/internal/domain"
)

// ConversationService defines the room, subscription and feed operations.
type ConversationService interface {
	CreateRoom(ctx context.Context, room *domain.Room) (*domain.Room, error)
	GetRoom(ctx context.Context, rid string) (*domain.Room, error)
	GetRoomByType(ctx context.Context, rid string, t domain.RoomType) (*domain.Room, error)
	GetRooms(ctx context.Context, rids []string) ([]domain.Room, error)
	ReplaceRoom(ctx context.Context, rid string, room *domain.Room) error
	UpdateRoom(ctx context.Context, rid string, update domain.RoomUpdate) error

	CreateSubscriptions(ctx context.Context, items []domain.CreateSubscription) error
	IncrementUnread(ctx context.Context, uids []string, rid string) error
	GetSubscriptions(ctx context.Context, uids []string, rid string) ([]domain.Subscription, error)
	UpdateSubscription(ctx context.Context, u, rid string, update domain.SubscriptionUpdate) (*domain.Subscription, error)
	MarkRead(ctx context.Context, u, rid string, ts int64) (*domain.Subscription, error)
	ListSubscriptions(ctx context.Context, u string, p domain.Pagination) ([]domain.Subscription, error)

	SubscriptionFeed(ctx context.Context, u string, since int64, p domain.Pagination) ([]domain.SubscriptionFeedItem, error)

	consumer.MessageEventHandler
}
