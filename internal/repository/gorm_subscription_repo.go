package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/weiawesome/wes-io-live/conversation-service/internal/domain"
	"github.com/weiawesome/wes-io-live/conversation-service/pkg/log"
)

const createBatchSize = 100

// GormSubscriptionRepository implements SubscriptionRepository using GORM.
type GormSubscriptionRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormSubscriptionRepository creates a new GORM-based subscription repository.
func NewGormSubscriptionRepository(db *gorm.DB) *GormSubscriptionRepository {
	return &GormSubscriptionRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// CreateSubscriptions inserts the batch in chunks of createBatchSize.
func (r *GormSubscriptionRepository) CreateSubscriptions(ctx context.Context, items []domain.CreateSubscription) error {
	if len(items) == 0 {
		return nil
	}
	l := log.Ctx(ctx)

	now := r.now()
	models := make([]*domain.SubscriptionModel, len(items))
	for i, item := range items {
		sub := item.ToSubscription(now)
		models[i] = domain.SubscriptionToModel(&sub)
	}

	if err := r.db.WithContext(ctx).CreateInBatches(models, createBatchSize).Error; err != nil {
		err = handleGormError(err)
		l.Error().Err(err).Int(log.FieldCount, len(items)).Msg("failed to create subscriptions in db")
		return err
	}

	l.Debug().Int(log.FieldCount, len(items)).Msg("subscriptions created in db")
	return nil
}

// IncrementUnread runs a single INSERT ... ON CONFLICT (u, rid) DO UPDATE so the
// increment happens inside the database.
func (r *GormSubscriptionRepository) IncrementUnread(ctx context.Context, uids []string, rid string) error {
	uids = Distinct(uids)
	if len(uids) == 0 {
		return nil
	}
	l := log.Ctx(ctx)

	now := r.now()
	models := make([]*domain.SubscriptionModel, len(uids))
	for i, u := range uids {
		models[i] = &domain.SubscriptionModel{
			U:      u,
			Rid:    rid,
			Unread: 1,
			Ts:     now,
		}
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "u"}, {Name: "rid"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"unread": gorm.Expr("subscriptions.unread + ?", 1),
			"ts":     now,
		}),
	}).Create(&models).Error
	if err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, rid).Int(log.FieldCount, len(uids)).Msg("failed to increment unread in db")
		return err
	}
	return nil
}

// FindByRidAndUids retrieves the existing subscriptions of uids in rid.
func (r *GormSubscriptionRepository) FindByRidAndUids(ctx context.Context, uids []string, rid string) ([]domain.Subscription, error) {
	uids = Distinct(uids)
	if len(uids) == 0 {
		return []domain.Subscription{}, nil
	}

	var models []domain.SubscriptionModel
	err := r.db.WithContext(ctx).
		Where("rid = ? AND u IN ?", rid, uids).
		Find(&models).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldRoomID, rid).Msg("failed to find subscriptions by rid and uids")
		return nil, err
	}
	return toSubscriptions(models), nil
}

// UpdateOne updates and re-reads the row inside one transaction so the
// returned record is the post-update state.
func (r *GormSubscriptionRepository) UpdateOne(ctx context.Context, u, rid string, update domain.SubscriptionUpdate) (*domain.Subscription, error) {
	l := log.Ctx(ctx)

	columns := make(map[string]interface{})
	for field, v := range update.Fields() {
		columns[domain.SubscriptionColumns[field]] = v
	}

	var model domain.SubscriptionModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(columns) > 0 {
			result := tx.Model(&domain.SubscriptionModel{}).
				Where("u = ? AND rid = ?", u, rid).
				Updates(columns)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return gorm.ErrRecordNotFound
			}
		}
		return tx.Where("u = ? AND rid = ?", u, rid).Take(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		l.Error().Err(err).Str(log.FieldUserID, u).Str(log.FieldRoomID, rid).Msg("failed to update subscription in db")
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindPage retrieves one page of u's subscriptions.
func (r *GormSubscriptionRepository) FindPage(ctx context.Context, u string, p domain.Pagination) ([]domain.Subscription, error) {
	query := r.db.WithContext(ctx).Where("u = ?", u)
	if p.Sorted() {
		query = query.Order(clause.OrderByColumn{
			Column: clause.Column{Name: domain.SubscriptionColumns[string(p.SortBy)]},
			Desc:   p.Descending(),
		})
	}

	var models []domain.SubscriptionModel
	if err := query.Offset(int(p.Offset())).Limit(int(p.Limit())).Find(&models).Error; err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, u).Msg("failed to find subscription page")
		return nil, err
	}
	return toSubscriptions(models), nil
}

func toSubscriptions(models []domain.SubscriptionModel) []domain.Subscription {
	subs := make([]domain.Subscription, len(models))
	for i := range models {
		subs[i] = *models[i].ToDomain()
	}
	return subs
}
