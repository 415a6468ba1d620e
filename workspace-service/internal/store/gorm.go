package store

import (
	"context"
	"fmt"
	"time"

	"github.com/weiawesome/wes-io-live/pkg/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RoomEntryModel is one persisted room key.
type RoomEntryModel struct {
	RoomID    string    `gorm:"type:varchar(128);primaryKey"`
	Key       string    `gorm:"column:entry_key;type:varchar(32);primaryKey"`
	Value     []byte    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (RoomEntryModel) TableName() string {
	return "room_entries"
}

// GormStore keeps room keys in a relational table.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore migrates the schema and wraps db.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := database.AutoMigrate(db, &RoomEntryModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate room_entries: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Room(roomID string) RoomStore {
	return &gormRoom{store: s, roomID: roomID}
}

func (s *GormStore) Close() error {
	return database.Close(s.db)
}

type gormRoom struct {
	alarm
	store  *GormStore
	roomID string
}

func (r *gormRoom) Get(ctx context.Context, keys ...string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	var rows []RoomEntryModel
	err := r.store.db.WithContext(ctx).
		Where("room_id = ? AND entry_key IN ?", r.roomID, keys).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read room %s: %w", r.roomID, err)
	}

	for _, row := range rows {
		out[row.Key] = row.Value
	}
	return out, nil
}

func (r *gormRoom) Put(ctx context.Context, key string, value []byte) error {
	return r.upsert(r.store.db.WithContext(ctx), key, value)
}

func (r *gormRoom) PutMany(ctx context.Context, entries map[string][]byte) error {
	return r.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for k, v := range entries {
			if err := r.upsert(tx, k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *gormRoom) upsert(db *gorm.DB, key string, value []byte) error {
	row := RoomEntryModel{RoomID: r.roomID, Key: key, Value: value}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}, {Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to write %s for room %s: %w", key, r.roomID, err)
	}
	return nil
}

func (r *gormRoom) Close() error {
	r.stop()
	return nil
}
