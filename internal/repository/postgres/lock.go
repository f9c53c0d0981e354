package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dom/werewolf/internal/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errLockHeld = errors.New("lock held by another owner")

// roomLock is a lease row. A row whose lease has expired can be taken over.
type roomLock struct {
	RoomID    string    `gorm:"primaryKey;size:64"`
	Token     string    `gorm:"size:36;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
}

func (roomLock) TableName() string { return "room_locks" }

type locker struct {
	db   *gorm.DB
	ttl  time.Duration
	wait time.Duration
}

func NewLocker(db *gorm.DB, ttl, wait time.Duration) *locker {
	return &locker{db: db, ttl: ttl, wait: wait}
}

func (l *locker) Acquire(ctx context.Context, roomID string) (repository.Lock, error) {
	token := uuid.NewString()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = l.wait

	err := backoff.Retry(func() error {
		now := time.Now()
		row := roomLock{RoomID: roomID, Token: token, ExpiresAt: now.Add(l.ttl)}
		res := l.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "room_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"token", "expires_at"}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Lt{Column: clause.Column{Table: "room_locks", Name: "expires_at"}, Value: now},
			}},
		}).Create(&row)
		if res.Error != nil {
			return backoff.Permanent(res.Error)
		}
		if res.RowsAffected == 0 {
			return errLockHeld
		}
		return nil
	}, backoff.WithContext(b, ctx))

	switch {
	case err == nil:
		return &lock{db: l.db, roomID: roomID, token: token}, nil
	case errors.Is(err, errLockHeld):
		return nil, repository.ErrLockTimeout
	default:
		return nil, fmt.Errorf("acquiring lock for room %s: %w", roomID, err)
	}
}

type lock struct {
	db     *gorm.DB
	roomID string
	token  string
}

func (l *lock) Release(ctx context.Context) error {
	return l.db.WithContext(ctx).
		Where("room_id = ? AND token = ?", l.roomID, l.token).
		Delete(&roomLock{}).Error
}
