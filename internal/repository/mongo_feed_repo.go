package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/weiawesome/wes-io-live/conversation-service/internal/domain"
	"github.com/weiawesome/wes-io-live/conversation-service/pkg/log"
)

const feedRoomField = "roomData"

// MongoFeedRepository implements FeedRepository with an aggregation pipeline
// over the subscriptions collection that $lookups the rooms collection.
type MongoFeedRepository struct {
	subscriptions *mongo.Collection
	roomsName     string
}

// NewMongoFeedRepository creates a feed repository joining subscriptions to
// the collection named roomsName in the same database.
func NewMongoFeedRepository(subscriptions *mongo.Collection, roomsName string) *MongoFeedRepository {
	return &MongoFeedRepository{
		subscriptions: subscriptions,
		roomsName:     roomsName,
	}
}

// FindSubscriptionFeed runs the feed pipeline for u.
func (r *MongoFeedRepository) FindSubscriptionFeed(ctx context.Context, u string, since int64, p domain.Pagination) ([]domain.SubscriptionFeedItem, error) {
	l := log.Ctx(ctx)

	cursor, err := r.subscriptions.Aggregate(ctx, buildFeedPipeline(r.roomsName, u, since, p))
	if err != nil {
		l.Error().Err(err).Str(log.FieldUserID, u).Int64(log.FieldSince, since).Msg("failed to aggregate subscription feed")
		return nil, err
	}

	items := []domain.SubscriptionFeedItem{}
	if err := cursor.All(ctx, &items); err != nil {
		l.Error().Err(err).Str(log.FieldUserID, u).Msg("failed to decode subscription feed")
		return nil, err
	}
	return items, nil
}

// buildFeedPipeline returns
//
//	$match u → $lookup rooms on rid → $unwind → [$match lastMessageTs > since] → $sort desc → $skip → $limit
//
// $unwind without preserveNullAndEmptyArrays drops subscriptions whose room is
// missing. The since filter runs after the join so it sees the room's own timestamp.
func buildFeedPipeline(roomsName, u string, since int64, p domain.Pagination) mongo.Pipeline {
	roomTs := fmt.Sprintf("%s.%s", feedRoomField, domain.RoomFieldLastMessageTs)

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: domain.SubFieldU, Value: u}}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: roomsName},
			{Key: "localField", Value: domain.SubFieldRid},
			{Key: "foreignField", Value: domain.RoomFieldRid},
			{Key: "as", Value: feedRoomField},
		}}},
		{{Key: "$unwind", Value: "$" + feedRoomField}},
	}

	if since != 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.D{
			{Key: roomTs, Value: bson.D{{Key: "$gt", Value: since}}},
		}}})
	}

	return append(pipeline,
		bson.D{{Key: "$sort", Value: bson.D{{Key: roomTs, Value: -1}}}},
		bson.D{{Key: "$skip", Value: p.Offset()}},
		bson.D{{Key: "$limit", Value: p.Limit()}},
	)
}

// CollectionNames names the two collections.
type CollectionNames struct {
	Rooms         string
	Subscriptions string
}

// NewMongoRepositories wires the MongoDB implementations on db and makes sure
// their indexes exist.
func NewMongoRepositories(ctx context.Context, db *mongo.Database, names CollectionNames) (*Repositories, error) {
	rooms := NewMongoRoomRepository(db.Collection(names.Rooms))
	subs := NewMongoSubscriptionRepository(db.Collection(names.Subscriptions))

	if err := rooms.EnsureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure room indexes: %w", err)
	}
	if err := subs.EnsureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure subscription indexes: %w", err)
	}

	return &Repositories{
		Driver:        "mongo",
		Rooms:         rooms,
		Subscriptions: subs,
		Feed:          NewMongoFeedRepository(db.Collection(names.Subscriptions), names.Rooms),
	}, nil
}
