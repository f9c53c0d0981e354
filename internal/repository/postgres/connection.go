package postgres

import (
	"github.com/dom/werewolf/internal/repository"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewConnection opens the database and migrates the room tables.
func NewConnection(databaseURL string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates or updates the tables used by this package.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&roomState{}, &roomLock{})
}

// NewRepositories returns the game store and room locks. Presence and the
// event bus are not kept in Postgres; the caller fills them in.
func NewRepositories(db *gorm.DB, opts repository.Options) *repository.Repositories {
	return &repository.Repositories{
		Games: NewGameRepository(db, opts.RoomTTL),
		Locks: NewLocker(db, opts.LockTTL, opts.LockWait),
	}
}
