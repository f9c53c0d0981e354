package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dom/werewolf/internal/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// roomState holds one serialized game per room.
type roomState struct {
	RoomID    string         `gorm:"primaryKey;size:64"`
	State     datatypes.JSON `gorm:"type:jsonb;not null"`
	ExpiresAt time.Time      `gorm:"index;not null"`
	UpdatedAt time.Time
}

func (roomState) TableName() string { return "room_states" }

type gameRepository struct {
	db  *gorm.DB
	ttl time.Duration
}

func NewGameRepository(db *gorm.DB, ttl time.Duration) *gameRepository {
	return &gameRepository{db: db, ttl: ttl}
}

func (r *gameRepository) Get(ctx context.Context, roomID string) (*domain.Game, error) {
	var row roomState
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND expires_at > ?", roomID, time.Now()).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading game %s: %w", roomID, err)
	}

	var game domain.Game
	if err := json.Unmarshal(row.State, &game); err != nil {
		return nil, fmt.Errorf("decoding game %s: %w", roomID, err)
	}
	return &game, nil
}

func (r *gameRepository) Save(ctx context.Context, game *domain.Game) error {
	data, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("encoding game %s: %w", game.RoomID, err)
	}

	row := roomState{
		RoomID:    game.RoomID,
		State:     datatypes.JSON(data),
		ExpiresAt: time.Now().Add(r.ttl),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}},
		UpdateAll: true,
	}).Create(&row).Error
}

func (r *gameRepository) Exists(ctx context.Context, roomID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&roomState{}).
		Where("room_id = ? AND expires_at > ?", roomID, time.Now()).
		Count(&count).Error
	return count > 0, err
}

func (r *gameRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// PurgeExpired deletes rooms and locks past their expiry.
func (r *gameRepository) PurgeExpired(ctx context.Context) (int64, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&roomState{})
	if res.Error != nil {
		return 0, res.Error
	}
	if err := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&roomLock{}).Error; err != nil {
		return res.RowsAffected, err
	}
	return res.RowsAffected, nil
}
