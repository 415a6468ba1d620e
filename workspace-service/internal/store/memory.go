package store

import (
	"context"
	"sync"
)

// MemoryStore keeps room data in process memory. Data survives room eviction
// but not a restart.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string][]byte)}
}

func (s *MemoryStore) Room(roomID string) RoomStore {
	return &memoryRoom{store: s, roomID: roomID}
}

func (s *MemoryStore) Close() error {
	return nil
}

type memoryRoom struct {
	alarm
	store  *MemoryStore
	roomID string
}

func (r *memoryRoom) Get(_ context.Context, keys ...string) (map[string][]byte, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	out := make(map[string][]byte, len(keys))
	ns := r.store.data[r.roomID]
	for _, k := range keys {
		if v, ok := ns[k]; ok {
			out[k] = append([]byte(nil), v...)
		}
	}
	return out, nil
}

func (r *memoryRoom) Put(ctx context.Context, key string, value []byte) error {
	return r.PutMany(ctx, map[string][]byte{key: value})
}

func (r *memoryRoom) PutMany(_ context.Context, entries map[string][]byte) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	ns, ok := r.store.data[r.roomID]
	if !ok {
		ns = make(map[string][]byte)
		r.store.data[r.roomID] = ns
	}
	for k, v := range entries {
		ns[k] = append([]byte(nil), v...)
	}
	return nil
}

func (r *memoryRoom) Close() error {
	r.stop()
	return nil
}
