package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weiawesome/wes-io-live/pkg/pubsub"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/config"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/domain"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/hub"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/llm/llmtest"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/service"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/state"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/store"
)

type fakeRoom struct {
	id string

	mu      sync.Mutex
	since   time.Time
	idle    bool
	stopErr error
	stops   atomic.Int32
	evicts  atomic.Int32
}

func (f *fakeRoom) ID() string                      { return f.id }
func (f *fakeRoom) Connect(*hub.Client) error       { return nil }
func (f *fakeRoom) HandleFrame(*hub.Client, []byte) {}
func (f *fakeRoom) Disconnect(*hub.Client)          {}
func (f *fakeRoom) Snapshot(context.Context) (domain.RoomSnapshot, error) {
	return domain.RoomSnapshot{RoomID: f.id}, nil
}

func (f *fakeRoom) IdleSince() (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.since, f.idle
}

func (f *fakeRoom) setIdle(since time.Time, idle bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.since, f.idle = since, idle
}

func (f *fakeRoom) Evict(context.Context) error {
	f.evicts.Add(1)
	return nil
}

func (f *fakeRoom) Stop(context.Context) error {
	f.stops.Add(1)
	return f.stopErr
}

type fakeFactory struct {
	mu    sync.Mutex
	rooms map[string][]*fakeRoom
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{rooms: make(map[string][]*fakeRoom)}
}

func (f *fakeFactory) build(roomID string) service.RoomService {
	f.mu.Lock()
	defer f.mu.Unlock()
	room := &fakeRoom{id: roomID}
	f.rooms[roomID] = append(f.rooms[roomID], room)
	return room
}

func (f *fakeFactory) created(roomID string) []*fakeRoom {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rooms[roomID]
}

func TestGetCreatesOnce(t *testing.T) {
	ff := newFakeFactory()
	reg := New(ff.build, Config{})

	a, err := reg.Get(context.Background(), "a")
	require.NoError(t, err)
	again, err := reg.Get(context.Background(), "a")
	require.NoError(t, err)
	_, err = reg.Get(context.Background(), "b")
	require.NoError(t, err)

	assert.Same(t, a, again)
	assert.Len(t, ff.created("a"), 1)
	assert.Equal(t, 2, reg.Len())

	_, ok := reg.Lookup("c")
	assert.False(t, ok)
}

func TestConcurrentGetSharesActor(t *testing.T) {
	ff := newFakeFactory()
	reg := New(ff.build, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.Get(context.Background(), "shared")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, ff.created("shared"), 1)
}

func TestSweepStopsOnlyIdleRooms(t *testing.T) {
	ff := newFakeFactory()
	reg := New(ff.build, Config{IdleTimeout: time.Minute})
	now := time.Now()

	for _, id := range []string{"old", "recent", "busy"} {
		_, err := reg.Get(context.Background(), id)
		require.NoError(t, err)
	}
	ff.created("old")[0].setIdle(now.Add(-2*time.Minute), true)
	ff.created("recent")[0].setIdle(now.Add(-10*time.Second), true)
	ff.created("busy")[0].setIdle(time.Time{}, false)

	assert.Equal(t, 1, reg.Sweep(now))
	assert.Equal(t, int32(1), ff.created("old")[0].evicts.Load())
	assert.Equal(t, int32(1), ff.created("old")[0].stops.Load())
	assert.Zero(t, ff.created("recent")[0].evicts.Load())
	assert.Equal(t, 2, reg.Len())

	_, ok := reg.Lookup("old")
	assert.False(t, ok)

	// The next Get builds a fresh actor.
	_, err := reg.Get(context.Background(), "old")
	require.NoError(t, err)
	assert.Len(t, ff.created("old"), 2)
}

func TestShutdownStopsEveryRoom(t *testing.T) {
	ff := newFakeFactory()
	reg := New(ff.build, Config{})
	reg.Start()

	for _, id := range []string{"a", "b", "c"} {
		_, err := reg.Get(context.Background(), id)
		require.NoError(t, err)
	}
	ff.created("b")[0].stopErr = errors.New("flush failed")

	err := reg.Shutdown(context.Background())
	require.Error(t, err)
	for _, id := range []string{"a", "b", "c"} {
		assert.Equal(t, int32(1), ff.created(id)[0].stops.Load(), id)
	}

	_, err = reg.Get(context.Background(), "a")
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 0, reg.Len())
}

func TestSweptRoomStateSurvives(t *testing.T) {
	ms := store.NewMemoryStore()
	cfg := config.DefaultRoomConfig()
	reg := New(NewFactory(ms, llmtest.New(), pubsub.NopPublisher{}, cfg), Config{IdleTimeout: time.Millisecond})

	room, err := reg.Get(context.Background(), "r1")
	require.NoError(t, err)

	c := hub.NewClient(nil, config.DefaultWebSocketConfig())
	require.NoError(t, room.Connect(c))
	room.HandleFrame(c, []byte(`{"type":"chat","user":"alice","text":"/remember keep me"}`))
	room.Disconnect(c)

	require.Eventually(t, func() bool {
		_, idle := room.IdleSince()
		return idle
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, reg.Sweep(time.Now().Add(time.Second)))

	v, err := store.GetOne(context.Background(), ms.Room("r1"), state.KeyPinned)
	require.NoError(t, err)
	assert.JSONEq(t, `{"memories":["keep me"],"todos":[]}`, string(v))

	next, err := reg.Get(context.Background(), "r1")
	require.NoError(t, err)
	snap, err := next.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"keep me"}, snap.Pinned.Memories)

	require.NoError(t, reg.Shutdown(context.Background()))
}
