package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// RoomStore is the durable key/value namespace of a single room, plus its
// single-shot alarm. Only the owning room actor may use it.
type RoomStore interface {
	// Get batch-reads keys. Missing keys are absent from the result.
	Get(ctx context.Context, keys ...string) (map[string][]byte, error)

	// Put overwrites a single key.
	Put(ctx context.Context, key string, value []byte) error

	// PutMany overwrites several keys atomically.
	PutMany(ctx context.Context, entries map[string][]byte) error

	// Alarm returns the pending alarm time, if any.
	Alarm(ctx context.Context) (time.Time, bool, error)

	// SetAlarm replaces any pending alarm.
	SetAlarm(ctx context.Context, at time.Time) error

	// OnAlarm registers the callback invoked once the alarm fires.
	OnAlarm(fn func())

	// Close cancels the pending alarm.
	Close() error
}

// Store hands out room namespaces.
type Store interface {
	Room(roomID string) RoomStore
	Close() error
}

// GetOne reads a single key, returning ErrNotFound when it is absent.
func GetOne(ctx context.Context, rs RoomStore, key string) ([]byte, error) {
	values, err := rs.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	v, ok := values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}
