package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/weiawesome/wes-io-live/pkg/log"
	"github.com/weiawesome/wes-io-live/pkg/pubsub"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/audit"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/config"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/llm"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/service"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/store"
	"golang.org/x/sync/errgroup"
)

var ErrClosed = errors.New("registry closed")

// Factory builds and starts the actor for one room.
type Factory func(roomID string) service.RoomService

// NewFactory returns a Factory wiring every room to the shared backends.
func NewFactory(st store.Store, client llm.Client, publisher pubsub.Publisher, cfg config.RoomConfig) Factory {
	return func(roomID string) service.RoomService {
		room := service.NewRoom(roomID, cfg, service.Deps{
			Store:     st.Room(roomID),
			LLM:       client,
			Publisher: publisher,
		})
		room.Start()
		return room
	}
}

type Config struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	StopTimeout   time.Duration
}

// Registry owns room actor lifetimes.
type Registry struct {
	factory Factory
	cfg     Config

	mu       sync.Mutex
	rooms    map[string]service.RoomService
	stopping map[string]chan struct{}
	closed   bool

	quit     chan struct{}
	stopOnce sync.Once
}

func New(factory Factory, cfg Config) *Registry {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 10 * time.Second
	}
	return &Registry{
		factory:  factory,
		cfg:      cfg,
		rooms:    make(map[string]service.RoomService),
		stopping: make(map[string]chan struct{}),
		quit:     make(chan struct{}),
	}
}

// Start launches the idle sweep.
func (r *Registry) Start() {
	go r.sweepLoop()
}

// Get returns the actor for roomID, creating it on first use. A room that is
// being swept is waited for so that its final writes land before the next
// actor hydrates.
func (r *Registry) Get(ctx context.Context, roomID string) (service.RoomService, error) {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, ErrClosed
		}
		if room, ok := r.rooms[roomID]; ok {
			r.mu.Unlock()
			return room, nil
		}
		if done, ok := r.stopping[roomID]; ok {
			r.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		room := r.factory(roomID)
		r.rooms[roomID] = room
		r.mu.Unlock()

		l := log.Room(roomID)
		l.Info().Msg("room actor created")
		return room, nil
	}
}

// Lookup returns the actor for roomID without creating it.
func (r *Registry) Lookup(roomID string) (service.RoomService, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	return room, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

func (r *Registry) sweepLoop() {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.quit:
			return
		case <-ticker.C:
			r.Sweep(time.Now())
		}
	}
}

// Sweep stops every room idle since before now minus IdleTimeout and returns
// how many were removed.
func (r *Registry) Sweep(now time.Time) int {
	cutoff := now.Add(-r.cfg.IdleTimeout)

	r.mu.Lock()
	var idle []service.RoomService
	for id, room := range r.rooms {
		since, ok := room.IdleSince()
		if !ok || since.After(cutoff) {
			continue
		}
		delete(r.rooms, id)
		r.stopping[id] = make(chan struct{})
		idle = append(idle, room)
	}
	r.mu.Unlock()

	for _, room := range idle {
		r.evictRoom(room)
		r.stopRoom(room)
	}
	if len(idle) > 0 {
		l := log.L()
		l.Info().Int("rooms", len(idle)).Int("active", r.Len()).Msg("evicted idle rooms")
	}
	return len(idle)
}

// evictRoom flushes an idle room and drops its in-memory state.
func (r *Registry) evictRoom(room service.RoomService) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.StopTimeout)
	defer cancel()
	ctx = log.WithLogger(ctx, log.Room(room.ID()))

	if err := room.Evict(ctx); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to flush idle room")
	}
	audit.LogWithTarget(ctx, audit.ActionRoomEvicted, "", room.ID(), "idle room evicted")
}

func (r *Registry) stopRoom(room service.RoomService) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.StopTimeout)
	defer cancel()

	if err := room.Stop(ctx); err != nil {
		l := log.Room(room.ID())
		l.Error().Err(err).Msg("failed to stop idle room")
	}

	r.mu.Lock()
	done := r.stopping[room.ID()]
	delete(r.stopping, room.ID())
	r.mu.Unlock()
	if done != nil {
		close(done)
	}
}

// Shutdown stops the sweep and every room concurrently, flushing their
// state. Get fails with ErrClosed afterwards.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.stopOnce.Do(func() {
		close(r.quit)
	})

	r.mu.Lock()
	r.closed = true
	rooms := make([]service.RoomService, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	r.rooms = make(map[string]service.RoomService)
	sweeping := make([]chan struct{}, 0, len(r.stopping))
	for _, done := range r.stopping {
		sweeping = append(sweeping, done)
	}
	r.mu.Unlock()

	var g errgroup.Group
	for _, room := range rooms {
		room := room
		g.Go(func() error {
			return room.Stop(ctx)
		})
	}
	for _, done := range sweeping {
		done := done
		g.Go(func() error {
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	return g.Wait()
}
