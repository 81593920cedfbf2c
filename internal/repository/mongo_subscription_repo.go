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

// MongoSubscriptionRepository implements SubscriptionRepository on a MongoDB collection.
type MongoSubscriptionRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewMongoSubscriptionRepository creates a subscription repository backed by coll.
func NewMongoSubscriptionRepository(coll *mongo.Collection) *MongoSubscriptionRepository {
	return &MongoSubscriptionRepository{
		coll: coll,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// EnsureIndexes creates the unique (u, rid) index and the lookup indexes.
func (r *MongoSubscriptionRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: domain.SubFieldU, Value: 1}, {Key: domain.SubFieldRid, Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uidx_u_rid"),
		},
		{
			Keys:    bson.D{{Key: domain.SubFieldRid, Value: 1}},
			Options: options.Index().SetName("idx_rid"),
		},
		{
			Keys:    bson.D{{Key: domain.SubFieldU, Value: 1}, {Key: domain.SubFieldTs, Value: -1}},
			Options: options.Index().SetName("idx_u_ts"),
		},
	})
	return err
}

// CreateSubscriptions inserts the batch with an ordered insertMany: the first
// failing document stops the batch and earlier documents stay.
func (r *MongoSubscriptionRepository) CreateSubscriptions(ctx context.Context, items []domain.CreateSubscription) error {
	if len(items) == 0 {
		return nil
	}
	l := log.Ctx(ctx)

	now := r.now()
	docs := make([]interface{}, len(items))
	for i, item := range items {
		docs[i] = item.ToSubscription(now)
	}

	if _, err := r.coll.InsertMany(ctx, docs); err != nil {
		err = handleMongoError(err)
		l.Error().Err(err).Int(log.FieldCount, len(items)).Msg("failed to insert subscriptions")
		return err
	}

	l.Debug().Int(log.FieldCount, len(items)).Msg("subscriptions inserted")
	return nil
}

// IncrementUnread sends one upserting $inc per user in a single unordered
// bulk write. Two concurrent upserts of a missing (u, rid) can collide on the
// unique index; only the users whose upsert collided are retried, once, and
// then match the winner's document.
func (r *MongoSubscriptionRepository) IncrementUnread(ctx context.Context, uids []string, rid string) error {
	uids = Distinct(uids)
	if len(uids) == 0 {
		return nil
	}
	l := log.Ctx(ctx)

	err := r.incrementUnread(ctx, uids, rid)
	if retry := collidedUpserts(err, uids); len(retry) > 0 {
		l.Debug().Str(log.FieldRoomID, rid).Int(log.FieldCount, len(retry)).Msg("unread upsert raced with a concurrent insert, retrying")
		err = r.incrementUnread(ctx, retry, rid)
	}
	if err != nil {
		err = handleMongoError(err)
		l.Error().Err(err).Str(log.FieldRoomID, rid).Int(log.FieldCount, len(uids)).Msg("failed to increment unread")
		return err
	}
	return nil
}

func (r *MongoSubscriptionRepository) incrementUnread(ctx context.Context, uids []string, rid string) error {
	now := r.now()
	models := make([]mongo.WriteModel, len(uids))
	for i, u := range uids {
		models[i] = mongo.NewUpdateOneModel().
			SetFilter(bson.M{domain.SubFieldU: u, domain.SubFieldRid: rid}).
			SetUpdate(unreadIncrementUpdate(now)).
			SetUpsert(true)
	}

	_, err := r.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	return err
}

// collidedUpserts returns the uids whose upsert in the bulk write built from
// uids failed on the unique index. Every other operation was applied. It
// returns nil when err carries any other kind of failure.
func collidedUpserts(err error, uids []string) []string {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || bwe.WriteConcernError != nil || len(bwe.WriteErrors) == 0 {
		return nil
	}

	out := make([]string, 0, len(bwe.WriteErrors))
	for _, we := range bwe.WriteErrors {
		if !isDuplicateKeyCode(we.Code) || we.Index < 0 || we.Index >= len(uids) {
			return nil
		}
		out = append(out, uids[we.Index])
	}
	return out
}

func isDuplicateKeyCode(code int) bool {
	return code == 11000 || code == 11001 || code == 12582
}

// unreadIncrementUpdate increments unread and stamps ts. On insert the
// remaining fields get the same zero values an explicit create would write;
// u and rid come from the equality filter.
func unreadIncrementUpdate(now time.Time) bson.M {
	return bson.M{
		"$inc": bson.M{domain.SubFieldUnread: 1},
		"$set": bson.M{domain.SubFieldTs: now},
		"$setOnInsert": bson.M{
			domain.SubFieldName:     "",
			domain.SubFieldT:        "",
			domain.SubFieldOpen:     false,
			domain.SubFieldArchived: false,
			domain.SubFieldLs:       int64(0),
		},
	}
}

// FindByRidAndUids retrieves the existing subscriptions of uids in rid.
func (r *MongoSubscriptionRepository) FindByRidAndUids(ctx context.Context, uids []string, rid string) ([]domain.Subscription, error) {
	uids = Distinct(uids)
	if len(uids) == 0 {
		return []domain.Subscription{}, nil
	}

	return r.find(ctx, bson.M{
		domain.SubFieldRid: rid,
		domain.SubFieldU:   bson.M{"$in": uids},
	})
}

// UpdateOne applies $set with findOneAndUpdate and returns the post-image.
func (r *MongoSubscriptionRepository) UpdateOne(ctx context.Context, u, rid string, update domain.SubscriptionUpdate) (*domain.Subscription, error) {
	filter := bson.M{domain.SubFieldU: u, domain.SubFieldRid: rid}

	var res *mongo.SingleResult
	if fields := update.Fields(); len(fields) > 0 {
		res = r.coll.FindOneAndUpdate(ctx, filter,
			bson.M{"$set": bson.M(fields)},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		)
	} else {
		res = r.coll.FindOne(ctx, filter)
	}

	var sub domain.Subscription
	if err := res.Decode(&sub); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, u).Str(log.FieldRoomID, rid).Msg("failed to update subscription")
		return nil, err
	}
	return &sub, nil
}

// FindPage retrieves one page of u's subscriptions.
func (r *MongoSubscriptionRepository) FindPage(ctx context.Context, u string, p domain.Pagination) ([]domain.Subscription, error) {
	return r.find(ctx, bson.M{domain.SubFieldU: u}, pageFindOptions(p))
}

// pageFindOptions builds skip/limit and, if requested, the sort clause.
// Sort fields have been validated against the closed set in domain.
func pageFindOptions(p domain.Pagination) *options.FindOptions {
	opts := options.Find().SetSkip(p.Offset()).SetLimit(p.Limit())
	if p.Sorted() {
		dir := 1
		if p.Descending() {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: string(p.SortBy), Value: dir}})
	}
	return opts
}

func (r *MongoSubscriptionRepository) find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]domain.Subscription, error) {
	l := log.Ctx(ctx)

	cursor, err := r.coll.Find(ctx, filter, opts...)
	if err != nil {
		l.Error().Err(err).Msg("failed to find subscriptions")
		return nil, err
	}

	subs := []domain.Subscription{}
	if err := cursor.All(ctx, &subs); err != nil {
		l.Error().Err(err).Msg("failed to decode subscriptions")
		return nil, err
	}
	return subs, nil
}
