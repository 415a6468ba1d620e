package presence

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/config"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/hub"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/store"
)

func newHeartbeat(t *testing.T, now *time.Time) (*Heartbeat, *hub.Hub, store.RoomStore) {
	t.Helper()
	h := hub.NewHub("room")
	rs := store.NewMemoryStore().Room("room")
	t.Cleanup(func() { rs.Close() })

	b := New(h, rs, Config{Interval: time.Hour, StaleTimeout: 45 * time.Second}, zerolog.Nop())
	b.SetClock(func() time.Time { return *now })
	return b, h, rs
}

func connect(h *hub.Hub, lastSeen time.Time) *hub.Client {
	c := hub.NewClient(nil, config.DefaultWebSocketConfig())
	h.Register(c)
	h.RecordActivity(c, lastSeen)
	return c
}

func TestEnsureArmsOnlyOnce(t *testing.T) {
	now := time.Now()
	b, _, rs := newHeartbeat(t, &now)
	ctx := context.Background()

	assert.Equal(t, StateIdle, b.State())
	require.NoError(t, b.Ensure(ctx))
	first, ok, _ := rs.Alarm(ctx)
	require.True(t, ok)
	assert.True(t, first.Equal(now.Add(time.Hour)))

	now = now.Add(10 * time.Minute)
	require.NoError(t, b.Ensure(ctx))
	second, _, _ := rs.Alarm(ctx)
	assert.True(t, first.Equal(second))
	assert.Equal(t, StateAlarmScheduled, b.State())
}

func TestOnAlarmReclaimsStaleConnections(t *testing.T) {
	now := time.Now()
	b, h, rs := newHeartbeat(t, &now)
	ctx := context.Background()

	stale := connect(h, now.Add(-50*time.Second))
	fresh := connect(h, now.Add(-10*time.Second))

	reclaimed := b.OnAlarm(ctx)
	assert.Equal(t, 1, reclaimed)
	assert.Equal(t, 1, h.Count())

	_, open := <-stale.Send
	assert.False(t, open)

	var presence map[string]interface{}
	require.NoError(t, json.Unmarshal(<-fresh.Send, &presence))
	assert.Equal(t, "presence", presence["type"])
	assert.Equal(t, float64(1), presence["count"])

	_, armed, _ := rs.Alarm(ctx)
	assert.True(t, armed)
	assert.Equal(t, StateAlarmScheduled, b.State())
}

func TestOnAlarmGoesIdleWhenEmpty(t *testing.T) {
	now := time.Now()
	b, h, rs := newHeartbeat(t, &now)
	ctx := context.Background()

	connect(h, now.Add(-time.Minute))

	assert.Equal(t, 1, b.OnAlarm(ctx))
	assert.Equal(t, 0, h.Count())
	_, armed, _ := rs.Alarm(ctx)
	assert.False(t, armed)
	assert.Equal(t, StateIdle, b.State())
}

func TestOnAlarmWithoutStaleIsSilent(t *testing.T) {
	now := time.Now()
	b, h, _ := newHeartbeat(t, &now)

	c := connect(h, now)
	assert.Equal(t, 0, b.OnAlarm(context.Background()))

	select {
	case <-c.Send:
		t.Fatal("unexpected presence broadcast")
	default:
	}
}
