package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/weiawesome/wes-io-live/conversation-service/internal/domain"
	"github.com/weiawesome/wes-io-live/conversation-service/pkg/log"
)

// MongoRoomRepository implements RoomRepository on a MongoDB collection.
type MongoRoomRepository struct {
	coll *mongo.Collection
}

// NewMongoRoomRepository creates a room repository backed by coll.
func NewMongoRoomRepository(coll *mongo.Collection) *MongoRoomRepository {
	return &MongoRoomRepository{coll: coll}
}

// EnsureIndexes creates the unique rid index the duplicate check relies on.
func (r *MongoRoomRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: domain.RoomFieldRid, Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uidx_rid"),
		},
		{
			Keys:    bson.D{{Key: domain.RoomFieldLastMessageTs, Value: -1}},
			Options: options.Index().SetName("idx_last_message_ts"),
		},
	})
	return err
}

// CreateRoom inserts a room, stamping createdAt when unset.
func (r *MongoRoomRepository) CreateRoom(ctx context.Context, room *domain.Room) error {
	l := log.Ctx(ctx)

	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}

	if _, err := r.coll.InsertOne(ctx, room); err != nil {
		err = handleMongoError(err)
		if !errors.Is(err, ErrDuplicateKey) {
			l.Error().Err(err).Str(log.FieldRoomID, room.Rid).Msg("failed to insert room")
		}
		return err
	}

	l.Debug().Str(log.FieldRoomID, room.Rid).Msg("room inserted")
	return nil
}

// FindByRid retrieves a room by rid.
func (r *MongoRoomRepository) FindByRid(ctx context.Context, rid string) (*domain.Room, error) {
	return r.findOne(ctx, bson.M{domain.RoomFieldRid: rid})
}

// FindByRidAndType retrieves a room by rid and type.
func (r *MongoRoomRepository) FindByRidAndType(ctx context.Context, rid string, t domain.RoomType) (*domain.Room, error) {
	return r.findOne(ctx, bson.M{domain.RoomFieldRid: rid, domain.RoomFieldT: string(t)})
}

func (r *MongoRoomRepository) findOne(ctx context.Context, filter bson.M) (*domain.Room, error) {
	var room domain.Room
	if err := r.coll.FindOne(ctx, filter).Decode(&room); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to find room")
		return nil, err
	}
	return &room, nil
}

// FindByRidList retrieves the rooms whose rid is in rids.
func (r *MongoRoomRepository) FindByRidList(ctx context.Context, rids []string) ([]domain.Room, error) {
	rids = Distinct(rids)
	if len(rids) == 0 {
		return []domain.Room{}, nil
	}

	cursor, err := r.coll.Find(ctx, bson.M{domain.RoomFieldRid: bson.M{"$in": rids}})
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Int(log.FieldCount, len(rids)).Msg("failed to find rooms by rid list")
		return nil, err
	}

	rooms := []domain.Room{}
	if err := cursor.All(ctx, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// ReplaceByRid overwrites every field but rid and createdAt.
func (r *MongoRoomRepository) ReplaceByRid(ctx context.Context, rid string, room *domain.Room) (int64, error) {
	return r.set(ctx, rid, room.ReplaceFields())
}

// UpdateByRid overwrites only the fields set in update.
func (r *MongoRoomRepository) UpdateByRid(ctx context.Context, rid string, update domain.RoomUpdate) (int64, error) {
	fields := update.Fields()
	if len(fields) == 0 {
		return r.coll.CountDocuments(ctx, bson.M{domain.RoomFieldRid: rid})
	}
	return r.set(ctx, rid, fields)
}

func (r *MongoRoomRepository) set(ctx context.Context, rid string, fields map[string]interface{}) (int64, error) {
	l := log.Ctx(ctx)

	res, err := r.coll.UpdateOne(ctx,
		bson.M{domain.RoomFieldRid: rid},
		bson.M{"$set": bson.M(fields)},
	)
	if err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, rid).Msg("failed to update room")
		return 0, err
	}
	l.Debug().Str(log.FieldRoomID, rid).Int64(log.FieldCount, res.MatchedCount).Msg("room updated")
	return res.MatchedCount, nil
}
