package store

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weiawesome/wes-io-live/pkg/database"
)

// exerciseRoomStore runs the shared contract against one backend.
func exerciseRoomStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	a := s.Room("room-a")
	b := s.Room("room-b")
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})

	got, err := a.Get(ctx, "pinned", "history")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, a.Put(ctx, "pinned", []byte(`{"memories":["x"]}`)))
	require.NoError(t, a.Put(ctx, "pinned", []byte(`{"memories":["y"]}`)))

	got, err = a.Get(ctx, "pinned", "history")
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"pinned": []byte(`{"memories":["y"]}`)}, got)

	require.NoError(t, a.PutMany(ctx, map[string][]byte{
		"pinned":  []byte(`{}`),
		"history": []byte(`[]`),
	}))
	got, err = a.Get(ctx, "pinned", "history", "settings")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, []byte(`[]`), got["history"])

	_, err = GetOne(ctx, b, "pinned")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	exerciseRoomStore(t, NewMemoryStore())
}

func TestMemoryStoreSurvivesRoomReopen(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Room("r").Put(ctx, "settings", []byte(`{"aiAutoRespond":true}`)))

	v, err := GetOne(ctx, s.Room("r"), "settings")
	require.NoError(t, err)
	assert.JSONEq(t, `{"aiAutoRespond":true}`, string(v))
}

func TestGormStoreSQLite(t *testing.T) {
	db, err := database.New(&database.Config{
		Driver:   "sqlite",
		FilePath: filepath.Join(t.TempDir(), "rooms.db"),
	})
	require.NoError(t, err)

	s, err := NewGormStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	exerciseRoomStore(t, s)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDRESS")
	if addr == "" {
		t.Skip("REDIS_ADDRESS not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	prefix := "workspace-test-" + time.Now().Format("150405.000000")
	s := NewRedisStoreWithClient(client, prefix)
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := client.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		s.Close()
	})

	exerciseRoomStore(t, s)
}

func TestAlarmFiresOnce(t *testing.T) {
	ctx := context.Background()
	rs := NewMemoryStore().Room("r")
	t.Cleanup(func() { rs.Close() })

	var fired atomic.Int32
	rs.OnAlarm(func() { fired.Add(1) })

	_, ok, err := rs.Alarm(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Now().Add(20 * time.Millisecond)
	require.NoError(t, rs.SetAlarm(ctx, at))

	pending, ok, err := rs.Alarm(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, pending.Equal(at))

	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)

	_, ok, _ = rs.Alarm(ctx)
	assert.False(t, ok)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestAlarmReplaceAndClose(t *testing.T) {
	ctx := context.Background()
	rs := NewMemoryStore().Room("r")

	var fired atomic.Int32
	rs.OnAlarm(func() { fired.Add(1) })

	require.NoError(t, rs.SetAlarm(ctx, time.Now().Add(10*time.Millisecond)))
	require.NoError(t, rs.SetAlarm(ctx, time.Now().Add(30*time.Millisecond)))
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, rs.SetAlarm(ctx, time.Now().Add(20*time.Millisecond)))
	require.NoError(t, rs.Close())
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New(Config{Driver: "etcd"})
	assert.Error(t, err)

	s, err := New(Config{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
}
