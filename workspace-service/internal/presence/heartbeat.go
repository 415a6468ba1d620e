package presence

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/weiawesome/wes-io-live/pkg/log"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/domain"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/hub"
)

type State int

const (
	StateIdle State = iota
	StateAlarmScheduled
	StateScanning
)

func (s State) String() string {
	switch s {
	case StateAlarmScheduled:
		return "alarm_scheduled"
	case StateScanning:
		return "scanning"
	default:
		return "idle"
	}
}

// Alarm is the single-shot timer of a room's store.
type Alarm interface {
	Alarm(ctx context.Context) (time.Time, bool, error)
	SetAlarm(ctx context.Context, at time.Time) error
}

type Config struct {
	Interval     time.Duration
	StaleTimeout time.Duration
}

// Heartbeat reclaims connections that stopped sending frames. All methods
// must be called from the room actor.
type Heartbeat struct {
	hub    *hub.Hub
	alarm  Alarm
	cfg    Config
	now    func() time.Time
	state  State
	logger zerolog.Logger
}

func New(h *hub.Hub, alarm Alarm, cfg Config, logger zerolog.Logger) *Heartbeat {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.StaleTimeout <= 0 {
		cfg.StaleTimeout = 45 * time.Second
	}
	return &Heartbeat{
		hub:    h,
		alarm:  alarm,
		cfg:    cfg,
		now:    time.Now,
		logger: logger,
	}
}

// SetClock overrides time.Now.
func (b *Heartbeat) SetClock(now func() time.Time) {
	b.now = now
}

func (b *Heartbeat) State() State {
	return b.state
}

// Ensure arms the alarm one interval out unless one is already pending.
func (b *Heartbeat) Ensure(ctx context.Context) error {
	if _, ok, err := b.alarm.Alarm(ctx); err != nil {
		return err
	} else if ok {
		b.state = StateAlarmScheduled
		return nil
	}

	if err := b.alarm.SetAlarm(ctx, b.now().Add(b.cfg.Interval)); err != nil {
		return err
	}
	b.state = StateAlarmScheduled
	return nil
}

// OnAlarm closes every stale connection, broadcasts the new presence count
// when anything was reclaimed, and re-arms while connections remain.
func (b *Heartbeat) OnAlarm(ctx context.Context) int {
	b.state = StateScanning
	cutoff := b.now().Add(-b.cfg.StaleTimeout)

	reclaimed := 0
	for _, c := range b.hub.OpenConnections() {
		if !c.Session.LastSeen().Before(cutoff) {
			continue
		}
		if b.hub.Unregister(c) {
			reclaimed++
			b.logger.Info().
				Uint64(log.FieldConnectionID, c.ID).
				Str(log.FieldClientID, c.Session.GetClientID()).
				Msg("reclaimed stale connection")
		}
	}

	if reclaimed > 0 {
		b.BroadcastPresence()
	}

	b.state = StateIdle
	if b.hub.Count() > 0 {
		if err := b.Ensure(ctx); err != nil {
			b.logger.Error().Err(err).Msg("failed to re-arm heartbeat")
		}
	}
	return reclaimed
}

func (b *Heartbeat) BroadcastPresence() {
	if err := b.hub.Broadcast(domain.NewPresence(b.hub.Count())); err != nil {
		b.logger.Error().Err(err).Msg("failed to broadcast presence")
	}
}
