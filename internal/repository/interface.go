package repository

import (
	"context"

	"github.com/weiawesome/wes-io-live/conversation-service/internal/domain"
)

// RoomRepository persists rooms. Lookups return a nil room and a nil error
// when nothing matches. Replace and update report the number of matched rooms;
// zero means the rid does not exist and nothing was written.
type RoomRepository interface {
	CreateRoom(ctx context.Context, room *domain.Room) error
	FindByRid(ctx context.Context, rid string) (*domain.Room, error)
	FindByRidAndType(ctx context.Context, rid string, t domain.RoomType) (*domain.Room, error)
	FindByRidList(ctx context.Context, rids []string) ([]domain.Room, error)
	ReplaceByRid(ctx context.Context, rid string, room *domain.Room) (int64, error)
	UpdateByRid(ctx context.Context, rid string, update domain.RoomUpdate) (int64, error)
}

// SubscriptionRepository persists per-user room subscriptions keyed by (u, rid).
type SubscriptionRepository interface {
	// CreateSubscriptions inserts the batch in order. It is not atomic: on
	// failure a prefix of the batch may already be stored.
	CreateSubscriptions(ctx context.Context, items []domain.CreateSubscription) error

	// IncrementUnread atomically adds one to the unread counter of (u, rid)
	// for every distinct u and stamps ts. Missing subscriptions are created
	// with unread = 1.
	IncrementUnread(ctx context.Context, uids []string, rid string) error

	FindByRidAndUids(ctx context.Context, uids []string, rid string) ([]domain.Subscription, error)

	// UpdateOne applies the update and returns the stored result, or nil if
	// (u, rid) does not exist. It never creates a subscription.
	UpdateOne(ctx context.Context, u, rid string, update domain.SubscriptionUpdate) (*domain.Subscription, error)

	FindPage(ctx context.Context, u string, p domain.Pagination) ([]domain.Subscription, error)
}

// FeedRepository produces a user's subscriptions joined with their rooms,
// most recently active room first.
type FeedRepository interface {
	// FindSubscriptionFeed drops subscriptions whose room does not exist.
	// A non-zero since keeps only rooms with lastMessageTs > since.
	// p.SortBy and p.SortOrder are ignored.
	FindSubscriptionFeed(ctx context.Context, u string, since int64, p domain.Pagination) ([]domain.SubscriptionFeedItem, error)
}

// Repositories bundles one store driver's implementations.
type Repositories struct {
	Driver        string
	Rooms         RoomRepository
	Subscriptions SubscriptionRepository
	Feed          FeedRepository
}
