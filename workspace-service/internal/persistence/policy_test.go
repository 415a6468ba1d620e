package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/domain"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/state"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/store"
)

// recordingRoom counts writes per key and can fail the next n writes.
type recordingRoom struct {
	store.RoomStore
	mu       sync.Mutex
	puts     map[string]int
	batches  int
	failNext int
}

func newRecordingRoom() *recordingRoom {
	return &recordingRoom{
		RoomStore: store.NewMemoryStore().Room("room"),
		puts:      make(map[string]int),
	}
}

func (r *recordingRoom) fail() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext > 0 {
		r.failNext--
		return errors.New("store unavailable")
	}
	return nil
}

func (r *recordingRoom) Put(ctx context.Context, key string, value []byte) error {
	if err := r.fail(); err != nil {
		return err
	}
	r.mu.Lock()
	r.puts[key]++
	r.mu.Unlock()
	return r.RoomStore.Put(ctx, key, value)
}

func (r *recordingRoom) PutMany(ctx context.Context, entries map[string][]byte) error {
	if err := r.fail(); err != nil {
		return err
	}
	r.mu.Lock()
	r.batches++
	r.mu.Unlock()
	return r.RoomStore.PutMany(ctx, entries)
}

func (r *recordingRoom) putCount(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.puts[key]
}

// testActor serializes functions the way a room actor does.
type testActor struct {
	ch chan func()
}

func newTestActor(t *testing.T) *testActor {
	a := &testActor{ch: make(chan func(), 64)}
	done := make(chan struct{})
	go func() {
		for {
			select {
			case fn := <-a.ch:
				fn()
			case <-done:
				return
			}
		}
	}()
	t.Cleanup(func() { close(done) })
	return a
}

func (a *testActor) post(fn func()) {
	a.ch <- fn
}

func (a *testActor) do(fn func()) {
	done := make(chan struct{})
	a.ch <- func() {
		fn()
		close(done)
	}
	<-done
}

type fixture struct {
	actor  *testActor
	room   *recordingRoom
	state  *state.RoomState
	policy *Policy
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		actor: newTestActor(t),
		room:  newRecordingRoom(),
		state: state.New("room", state.DefaultMaxHistory),
	}
	_, err := f.state.Load(nil)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.PinnedFlushDelay = 30 * time.Millisecond
	cfg.Backoff = time.Millisecond
	f.policy = New(f.room, f.state, f.actor.post, cfg, zerolog.Nop())
	t.Cleanup(f.policy.Close)
	return f
}

func (f *fixture) flush(t *testing.T) {
	t.Helper()
	var err error
	f.actor.do(func() { err = f.policy.Flush(context.Background()) })
	require.NoError(t, err)
}

func (f *fixture) stored(t *testing.T, key string) []byte {
	t.Helper()
	v, err := store.GetOne(context.Background(), f.room, key)
	require.NoError(t, err)
	return v
}

func TestPinnedWritesAreDebounced(t *testing.T) {
	f := newFixture(t)

	f.actor.do(func() {
		for _, m := range []string{"a", "b", "c"} {
			f.state.AddMemory(m)
			f.policy.PinnedChanged()
		}
	})
	assert.Equal(t, 0, f.room.putCount(state.KeyPinned))

	require.Eventually(t, func() bool { return f.room.putCount(state.KeyPinned) == 1 }, time.Second, 5*time.Millisecond)
	assert.JSONEq(t, `{"memories":["a","b","c"],"todos":[]}`, string(f.stored(t, state.KeyPinned)))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, f.room.putCount(state.KeyPinned))
}

func TestHistoryFlushesEveryBatch(t *testing.T) {
	f := newFixture(t)

	appendN := func(n int) {
		f.actor.do(func() {
			for i := 0; i < n; i++ {
				f.state.AppendChat("u", "m")
				f.policy.HistoryAppended()
			}
		})
	}

	appendN(4)
	f.actor.do(func() { assert.True(t, f.policy.Pending()) })
	appendN(1)
	f.actor.do(func() {})
	require.Eventually(t, func() bool { return f.room.putCount(state.KeyHistory) == 1 }, time.Second, 5*time.Millisecond)

	appendN(2)
	f.actor.do(f.policy.FlushHistory)
	require.Eventually(t, func() bool { return f.room.putCount(state.KeyHistory) == 2 }, time.Second, 5*time.Millisecond)

	appendN(4)
	assert.Equal(t, 2, f.room.putCount(state.KeyHistory))
}

func TestFlushDrainsPendingWork(t *testing.T) {
	f := newFixture(t)

	f.actor.do(func() {
		f.state.AddTodo("ship it")
		f.policy.PinnedChanged()
		f.state.AppendChat("u", "m")
		f.policy.HistoryAppended()
	})
	f.flush(t)

	assert.Equal(t, 1, f.room.putCount(state.KeyPinned))
	assert.Equal(t, 1, f.room.putCount(state.KeyHistory))
	f.actor.do(func() { assert.False(t, f.policy.Pending()) })

	// The debounce timer was cancelled by the flush.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, f.room.putCount(state.KeyPinned))
}

func TestResetWritesAllKeysAtomically(t *testing.T) {
	f := newFixture(t)

	f.actor.do(func() {
		f.state.AddMemory("m")
		f.policy.PinnedChanged()
		f.state.Reset()
		f.policy.Reset()
	})
	f.flush(t)

	assert.Equal(t, 1, f.room.batches)
	assert.Equal(t, 0, f.room.putCount(state.KeyPinned))
	for _, k := range state.Keys {
		f.stored(t, k)
	}
	assert.JSONEq(t, `{"memories":[],"todos":[]}`, string(f.stored(t, state.KeyPinned)))
}

func TestWriteRetriesThenSucceeds(t *testing.T) {
	f := newFixture(t)
	f.room.failNext = 2

	f.actor.do(f.policy.SettingsChanged)
	f.flush(t)

	assert.Equal(t, 1, f.room.putCount(state.KeySettings))
}

func TestWriteDroppedAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	f.room.failNext = 3

	f.actor.do(f.policy.ArtifactsChanged)
	f.flush(t)
	assert.Equal(t, 0, f.room.putCount(state.KeyArtifacts))

	f.actor.do(f.policy.ArtifactsChanged)
	f.flush(t)
	assert.Equal(t, 1, f.room.putCount(state.KeyArtifacts))
}

func TestLatestWriteWins(t *testing.T) {
	f := newFixture(t)

	f.actor.do(func() {
		for i := 0; i < 20; i++ {
			f.state.AppendChat("u", "m")
			f.policy.FlushHistory()
		}
	})
	f.flush(t)

	var want []byte
	f.actor.do(func() {
		var err error
		want, err = f.state.Encode(state.KeyHistory)
		require.NoError(t, err)
	})
	assert.JSONEq(t, string(want), string(f.stored(t, state.KeyHistory)))
}

// stalledRoom blocks every write until release is closed.
type stalledRoom struct {
	*recordingRoom
	release chan struct{}
}

func (r *stalledRoom) Put(ctx context.Context, key string, value []byte) error {
	<-r.release
	return r.recordingRoom.Put(ctx, key, value)
}

func TestStalledStoreDoesNotBlockActor(t *testing.T) {
	actor := newTestActor(t)
	room := &stalledRoom{recordingRoom: newRecordingRoom(), release: make(chan struct{})}
	st := state.New("room", state.DefaultMaxHistory)
	_, err := st.Load(nil)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.QueueSize = 4
	policy := New(room, st, actor.post, cfg, zerolog.Nop())
	t.Cleanup(policy.Close)

	returned := make(chan struct{})
	go actor.do(func() {
		for i := 0; i < 500; i++ {
			prompt := fmt.Sprintf("prompt %d", i)
			st.UpdateSettings(domain.SettingsPatch{SystemPrompt: &prompt})
			policy.SettingsChanged()
			policy.ArtifactsChanged()
		}
		close(returned)
	})
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		close(room.release)
		t.Fatal("actor blocked on a stalled store")
	}

	close(room.release)
	var flushErr error
	actor.do(func() { flushErr = policy.Flush(context.Background()) })
	require.NoError(t, flushErr)

	// One write was in flight when the rest coalesced behind it.
	assert.LessOrEqual(t, room.putCount(state.KeySettings), 2)
	assert.LessOrEqual(t, room.putCount(state.KeyArtifacts), 2)

	var want []byte
	actor.do(func() { want, err = st.Encode(state.KeySettings) })
	require.NoError(t, err)
	v, err := store.GetOne(context.Background(), room, state.KeySettings)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(v))
}

func TestSupersedeStopsAtBarrier(t *testing.T) {
	put := func(k, v string) writeOp { return writeOp{entries: map[string][]byte{k: []byte(v)}} }
	barrier := writeOp{barrier: make(chan struct{})}

	pending := []writeOp{put("a", "1"), barrier, put("a", "2"), put("b", "1")}
	pending = supersede(pending, put("a", "3"))

	require.Len(t, pending, 3)
	assert.Equal(t, "1", string(pending[0].entries["a"]))
	assert.NotNil(t, pending[1].barrier)
	assert.Equal(t, "1", string(pending[2].entries["b"]))

	batch := writeOp{entries: map[string][]byte{"a": nil, "b": nil}, atomic: true}
	pending = supersede(pending, batch)
	assert.Len(t, pending, 2)
}
