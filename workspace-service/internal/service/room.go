package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/weiawesome/wes-io-live/pkg/log"
	"github.com/weiawesome/wes-io-live/pkg/pubsub"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/ai"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/audit"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/config"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/domain"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/hub"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/llm"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/persistence"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/presence"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/state"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/store"
)

var ErrRoomClosed = errors.New("room closed")

type Deps struct {
	Store     store.RoomStore
	LLM       llm.Client
	Publisher pubsub.Publisher
}

type Option func(*options)

type options struct {
	now   func() time.Time
	newID func() string
}

// WithClock overrides time.Now for state timestamps and the heartbeat.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator overrides artifact id generation.
func WithIDGenerator(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

// Room is the actor owning one collaboration room. Every state change runs
// on its loop goroutine; other goroutines hand work over through post.
type Room struct {
	id        string
	cfg       config.RoomConfig
	hub       *hub.Hub
	rs        store.RoomStore
	state     *state.RoomState
	persist   *persistence.Policy
	heartbeat *presence.Heartbeat
	ai        *ai.Orchestrator
	publisher pubsub.Publisher
	logger    zerolog.Logger
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mailbox  chan func()
	quit     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	// closing is set by the final pass of Stop; later Connects are refused.
	closing bool

	aiRunning  atomic.Bool
	conns      atomic.Int64
	lastActive atomic.Int64
}

func NewRoom(roomID string, cfg config.RoomConfig, deps Deps, opts ...Option) *Room {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	cfg = withDefaults(cfg)
	logger := log.Room(roomID)
	ctx, cancel := context.WithCancel(log.WithLogger(context.Background(), logger))

	r := &Room{
		id:        roomID,
		cfg:       cfg,
		hub:       hub.NewHub(roomID),
		rs:        deps.Store,
		publisher: deps.Publisher,
		logger:    logger,
		now:       o.now,
		ctx:       ctx,
		cancel:    cancel,
		mailbox:   make(chan func(), cfg.MailboxSize),
		quit:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	if r.publisher == nil {
		r.publisher = pubsub.NopPublisher{}
	}

	stateOpts := []state.Option{state.WithClock(o.now)}
	if o.newID != nil {
		stateOpts = append(stateOpts, state.WithIDGenerator(o.newID))
	}
	r.state = state.New(roomID, cfg.MaxHistory, stateOpts...)

	r.persist = persistence.New(deps.Store, r.state, func(fn func()) { r.post(fn) }, persistence.Config{
		PinnedFlushDelay: cfg.PinnedFlushDelay,
		HistoryBatch:     cfg.HistoryFlushEvery,
		WriteTimeout:     cfg.WriteTimeout,
		MaxAttempts:      cfg.WriteAttempts,
		Backoff:          cfg.WriteBackoff,
	}, logger)

	r.heartbeat = presence.New(r.hub, deps.Store, presence.Config{
		Interval:     cfg.HeartbeatInterval,
		StaleTimeout: cfg.StaleTimeout,
	}, logger)
	r.heartbeat.SetClock(o.now)

	r.hub.OnDrop(func(int) {
		r.conns.Store(int64(r.hub.Count()))
		r.heartbeat.BroadcastPresence()
	})

	r.ai = ai.NewOrchestrator(deps.LLM, cfg.AITimeout, logger)

	deps.Store.OnAlarm(func() {
		r.post(r.onAlarm)
	})

	r.lastActive.Store(o.now().UnixNano())
	return r
}

func withDefaults(cfg config.RoomConfig) config.RoomConfig {
	def := config.DefaultRoomConfig()
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = def.MaxHistory
	}
	if cfg.HistoryFlushEvery <= 0 {
		cfg.HistoryFlushEvery = def.HistoryFlushEvery
	}
	if cfg.PinnedFlushDelay <= 0 {
		cfg.PinnedFlushDelay = def.PinnedFlushDelay
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.StaleTimeout <= 0 {
		cfg.StaleTimeout = def.StaleTimeout
	}
	if cfg.AIContextMessages <= 0 {
		cfg.AIContextMessages = def.AIContextMessages
	}
	if cfg.AITimeout <= 0 {
		cfg.AITimeout = def.AITimeout
	}
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = def.MailboxSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.WriteAttempts <= 0 {
		cfg.WriteAttempts = def.WriteAttempts
	}
	if cfg.WriteBackoff <= 0 {
		cfg.WriteBackoff = def.WriteBackoff
	}
	return cfg
}

// Start runs the actor loop.
func (r *Room) Start() {
	go r.run()
	r.logger.Debug().Msg("room actor started")
}

func (r *Room) ID() string {
	return r.id
}

func (r *Room) run() {
	defer close(r.stopped)
	for {
		select {
		case fn := <-r.mailbox:
			r.safeRun(fn)
		case <-r.quit:
			return
		}
	}
}

func (r *Room) safeRun(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Msg("room actor recovered from panic")
		}
	}()
	fn()
}

// post schedules fn on the actor. It reports false once the room is closed.
func (r *Room) post(fn func()) bool {
	select {
	case <-r.quit:
		return false
	default:
	}
	select {
	case r.mailbox <- fn:
		return true
	case <-r.quit:
		return false
	}
}

// call runs fn on the actor and waits for it to finish.
func (r *Room) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !r.post(func() {
		defer close(done)
		fn()
	}) {
		return ErrRoomClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stopped:
		select {
		case <-done:
			return nil
		default:
			return ErrRoomClosed
		}
	}
}

// Connect registers client and arms the heartbeat. It returns ErrRoomClosed
// when the room is shutting down.
func (r *Room) Connect(client *hub.Client) error {
	var closed bool
	err := r.call(r.ctx, func() {
		if r.closing {
			closed = true
			return
		}
		id := r.hub.Register(client)
		r.conns.Store(int64(r.hub.Count()))
		r.touch()

		if err := r.heartbeat.Ensure(r.ctx); err != nil {
			r.logger.Error().Err(err).Msg("failed to arm heartbeat")
		}
		r.heartbeat.BroadcastPresence()
		audit.Log(r.ctx, audit.ActionConnect, "", fmt.Sprintf("connection %d opened", id))
	})
	if closed || (err != nil && r.ctx.Err() != nil) {
		return ErrRoomClosed
	}
	return err
}

// Disconnect unregisters client after its socket closed.
func (r *Room) Disconnect(client *hub.Client) {
	ok := r.post(func() {
		removed := r.hub.Unregister(client)
		r.conns.Store(int64(r.hub.Count()))
		r.touch()
		if removed {
			r.heartbeat.BroadcastPresence()
			audit.Log(r.ctx, audit.ActionDisconnect, client.Session.GetDisplayName(), fmt.Sprintf("connection %d closed", client.ID))
		}
	})
	if !ok {
		r.hub.Unregister(client)
	}
}

// HandleFrame is called from the connection's read goroutine.
func (r *Room) HandleFrame(client *hub.Client, raw []byte) {
	r.hub.RecordActivity(client, r.now())

	msg, err := domain.Decode(raw)
	if err != nil {
		r.logger.Debug().Err(err).Uint64(log.FieldConnectionID, client.ID).Msg("dropping invalid frame")
		return
	}

	if _, ok := msg.(domain.PingMessage); ok {
		r.hub.Send(client, domain.NewPong())
		return
	}

	r.post(func() { r.dispatch(client, msg) })
}

// Snapshot returns the full room state.
func (r *Room) Snapshot(ctx context.Context) (domain.RoomSnapshot, error) {
	var (
		snap    domain.RoomSnapshot
		loadErr error
	)
	err := r.call(ctx, func() {
		if loadErr = r.ensureHydrated(); loadErr != nil {
			return
		}
		snap = r.state.Snapshot()
	})
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	return snap, loadErr
}

// Evict flushes pending writes and drops the in-memory state. The next frame
// re-hydrates from the store.
func (r *Room) Evict(ctx context.Context) error {
	var flushErr error
	err := r.call(ctx, func() {
		if !r.state.Hydrated() {
			return
		}
		if flushErr = r.persist.Flush(ctx); flushErr != nil {
			return
		}
		r.state.Drop()
		r.logger.Debug().Msg("room state evicted from memory")
	})
	if err != nil {
		return err
	}
	return flushErr
}

// IdleSince reports when the room last lost activity. ok is false while the
// room has connections or an AI turn in flight.
func (r *Room) IdleSince() (time.Time, bool) {
	if r.conns.Load() > 0 || r.aiRunning.Load() {
		return time.Time{}, false
	}
	return time.Unix(0, r.lastActive.Load()), true
}

// Stop closes every connection, flushes pending writes and ends the actor.
func (r *Room) Stop(ctx context.Context) error {
	var err error
	r.stopOnce.Do(func() {
		err = r.call(ctx, func() {
			r.closing = true
			r.hub.CloseAll()
			r.conns.Store(0)
			if r.state.Hydrated() {
				if ferr := r.persist.Flush(ctx); ferr != nil {
					r.logger.Error().Err(ferr).Msg("failed to flush room state")
				}
			}
		})

		close(r.quit)
		<-r.stopped
		r.cancel()
		r.persist.Close()
		r.rs.Close()
		r.logger.Debug().Msg("room actor stopped")
	})
	return err
}

func (r *Room) touch() {
	r.lastActive.Store(r.now().UnixNano())
}

func (r *Room) onAlarm() {
	if n := r.heartbeat.OnAlarm(r.ctx); n > 0 {
		r.conns.Store(int64(r.hub.Count()))
		r.touch()
		audit.LogWithDetail(r.ctx, audit.ActionReclaim, "", fmt.Sprintf("%d", n), "stale connections reclaimed")
	}
}

// ensureHydrated loads persisted state once per activation.
func (r *Room) ensureHydrated() error {
	if r.state.Hydrated() {
		return nil
	}

	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.WriteTimeout)
	defer cancel()

	values, err := r.rs.Get(ctx, state.Keys...)
	if err != nil {
		return fmt.Errorf("hydrate room %s: %w", r.id, err)
	}
	rewrites, err := r.state.Load(values)
	if err != nil {
		return fmt.Errorf("hydrate room %s: %w", r.id, err)
	}
	if len(rewrites) > 0 {
		r.persist.Write(rewrites)
		r.logger.Info().Int("keys", len(rewrites)).Msg("migrated legacy room state")
	}
	r.logger.Debug().Int("history", len(r.state.History())).Msg("room state hydrated")
	return nil
}
