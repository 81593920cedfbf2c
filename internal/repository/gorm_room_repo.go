package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-live/conversation-service/internal/domain"
	"github.com/weiawesome/wes-io-live/conversation-service/pkg/log"
)

// GormRoomRepository implements RoomRepository using GORM.
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository creates a new GORM-based room repository.
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	return &GormRoomRepository{db: db}
}

// CreateRoom inserts a room. The rid is the primary key.
func (r *GormRoomRepository) CreateRoom(ctx context.Context, room *domain.Room) error {
	l := log.Ctx(ctx)

	model := domain.RoomToModel(room)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		err = handleGormError(err)
		if !errors.Is(err, ErrDuplicateKey) {
			l.Error().Err(err).Str(log.FieldRoomID, room.Rid).Msg("failed to create room in db")
		}
		return err
	}

	room.CreatedAt = model.CreatedAt
	l.Debug().Str(log.FieldRoomID, room.Rid).Msg("room created in db")
	return nil
}

// FindByRid retrieves a room by rid.
func (r *GormRoomRepository) FindByRid(ctx context.Context, rid string) (*domain.Room, error) {
	return r.findOne(ctx, r.db.WithContext(ctx).Where("rid = ?", rid))
}

// FindByRidAndType retrieves a room by rid and type.
func (r *GormRoomRepository) FindByRidAndType(ctx context.Context, rid string, t domain.RoomType) (*domain.Room, error) {
	return r.findOne(ctx, r.db.WithContext(ctx).Where("rid = ? AND t = ?", rid, string(t)))
}

func (r *GormRoomRepository) findOne(ctx context.Context, query *gorm.DB) (*domain.Room, error) {
	var model domain.RoomModel
	if err := query.Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to find room in db")
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByRidList retrieves the rooms whose rid is in rids.
func (r *GormRoomRepository) FindByRidList(ctx context.Context, rids []string) ([]domain.Room, error) {
	rids = Distinct(rids)
	if len(rids) == 0 {
		return []domain.Room{}, nil
	}

	var models []domain.RoomModel
	if err := r.db.WithContext(ctx).Where("rid IN ?", rids).Find(&models).Error; err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Int(log.FieldCount, len(rids)).Msg("failed to find rooms by rid list")
		return nil, err
	}

	rooms := make([]domain.Room, len(models))
	for i := range models {
		rooms[i] = *models[i].ToDomain()
	}
	return rooms, nil
}

// ReplaceByRid overwrites every field but rid and created_at.
func (r *GormRoomRepository) ReplaceByRid(ctx context.Context, rid string, room *domain.Room) (int64, error) {
	return r.updateColumns(ctx, rid, room.ReplaceFields())
}

// UpdateByRid overwrites only the fields set in update.
func (r *GormRoomRepository) UpdateByRid(ctx context.Context, rid string, update domain.RoomUpdate) (int64, error) {
	fields := update.Fields()
	if len(fields) == 0 {
		var count int64
		err := r.db.WithContext(ctx).Model(&domain.RoomModel{}).Where("rid = ?", rid).Count(&count).Error
		return count, err
	}
	return r.updateColumns(ctx, rid, fields)
}

func (r *GormRoomRepository) updateColumns(ctx context.Context, rid string, fields map[string]interface{}) (int64, error) {
	l := log.Ctx(ctx)

	columns := make(map[string]interface{}, len(fields))
	for field, v := range fields {
		columns[domain.RoomColumns[field]] = v
	}

	result := r.db.WithContext(ctx).Model(&domain.RoomModel{}).
		Where("rid = ?", rid).
		Updates(columns)
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldRoomID, rid).Msg("failed to update room in db")
		return 0, result.Error
	}
	l.Debug().Str(log.FieldRoomID, rid).Int64(log.FieldCount, result.RowsAffected).Msg("room updated in db")
	return result.RowsAffected, nil
}
