package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-live/conversation-service/internal/domain"
	"github.com/weiawesome/wes-io-live/conversation-service/pkg/log"
)

// feedColumns selects every subscription column plus the joined room's
// columns under a room_ prefix.
const feedColumns = `subscriptions.u, subscriptions.rid, subscriptions.name, subscriptions.t,
	subscriptions.open, subscriptions.unread, subscriptions.ts, subscriptions.archived, subscriptions.ls,
	rooms.rid AS room_rid, rooms.t AS room_t, rooms.name AS room_name, rooms.topic AS room_topic,
	rooms.u AS room_u, rooms.last_message AS room_last_message, rooms.last_message_ts AS room_last_message_ts,
	rooms.msgs AS room_msgs, rooms.created_at AS room_created_at`

type feedRow struct {
	domain.SubscriptionModel `gorm:"embedded"`

	RoomRid           string
	RoomT             string
	RoomName          string
	RoomTopic         string
	RoomU             string
	RoomLastMessage   string
	RoomLastMessageTs int64
	RoomMsgs          int64
	RoomCreatedAt     time.Time
}

func (row *feedRow) toDomain() domain.SubscriptionFeedItem {
	return domain.SubscriptionFeedItem{
		Subscription: *row.SubscriptionModel.ToDomain(),
		RoomData: domain.Room{
			Rid:           row.RoomRid,
			T:             domain.RoomType(row.RoomT),
			Name:          row.RoomName,
			Topic:         row.RoomTopic,
			U:             row.RoomU,
			LastMessage:   row.RoomLastMessage,
			LastMessageTs: row.RoomLastMessageTs,
			Msgs:          row.RoomMsgs,
			CreatedAt:     row.RoomCreatedAt,
		},
	}
}

// GormFeedRepository implements FeedRepository with an inner JOIN.
type GormFeedRepository struct {
	db *gorm.DB
}

// NewGormFeedRepository creates a new GORM-based feed repository.
func NewGormFeedRepository(db *gorm.DB) *GormFeedRepository {
	return &GormFeedRepository{db: db}
}

// FindSubscriptionFeed joins u's subscriptions to rooms, filters by since on
// the room's timestamp, orders by it descending and applies the page window.
func (r *GormFeedRepository) FindSubscriptionFeed(ctx context.Context, u string, since int64, p domain.Pagination) ([]domain.SubscriptionFeedItem, error) {
	query := r.db.WithContext(ctx).
		Table("subscriptions").
		Select(feedColumns).
		Joins("JOIN rooms ON rooms.rid = subscriptions.rid").
		Where("subscriptions.u = ?", u)
	if since != 0 {
		query = query.Where("rooms.last_message_ts > ?", since)
	}

	var rows []feedRow
	err := query.
		Order("rooms.last_message_ts DESC").
		Offset(int(p.Offset())).
		Limit(int(p.Limit())).
		Scan(&rows).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, u).Int64(log.FieldSince, since).Msg("failed to query subscription feed")
		return nil, err
	}

	items := make([]domain.SubscriptionFeedItem, len(rows))
	for i := range rows {
		items[i] = rows[i].toDomain()
	}
	return items, nil
}

// NewGormRepositories wires the GORM implementations for driver.
func NewGormRepositories(db *gorm.DB, driver string) *Repositories {
	return &Repositories{
		Driver:        driver,
		Rooms:         NewGormRoomRepository(db),
		Subscriptions: NewGormSubscriptionRepository(db),
		Feed:          NewGormFeedRepository(db),
	}
}

// AutoMigrateModels lists the tables the GORM repositories expect.
func AutoMigrateModels() []interface{} {
	return []interface{}{&domain.RoomModel{}, &domain.SubscriptionModel{}}
}
