package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/weiawesome/wes-io-live/pkg/log"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/state"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/store"
)

type Config struct {
	PinnedFlushDelay time.Duration
	HistoryBatch     int
	WriteTimeout     time.Duration
	MaxAttempts      int
	Backoff          time.Duration
	QueueSize        int
}

func DefaultConfig() Config {
	return Config{
		PinnedFlushDelay: time.Second,
		HistoryBatch:     5,
		WriteTimeout:     5 * time.Second,
		MaxAttempts:      3,
		Backoff:          100 * time.Millisecond,
		QueueSize:        128,
	}
}

// Encoder snapshots the current value of a state key.
type Encoder interface {
	Encode(key string) ([]byte, error)
	EncodeAll() (map[string][]byte, error)
}

// Policy decides when room state reaches the store. Every method except
// Close must be called from the room actor; post schedules a function back
// onto that actor.
type Policy struct {
	cfg     Config
	encoder Encoder
	post    func(func())
	logger  zerolog.Logger

	pinnedTimer   *time.Timer
	pinnedPending bool
	historyCount  int

	writer    *writer
	closeOnce sync.Once
}

func New(rs store.RoomStore, encoder Encoder, post func(func()), cfg Config, logger zerolog.Logger) *Policy {
	def := DefaultConfig()
	if cfg.PinnedFlushDelay <= 0 {
		cfg.PinnedFlushDelay = def.PinnedFlushDelay
	}
	if cfg.HistoryBatch <= 0 {
		cfg.HistoryBatch = def.HistoryBatch
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = def.Backoff
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}

	p := &Policy{
		cfg:     cfg,
		encoder: encoder,
		post:    post,
		logger:  logger,
	}
	p.writer = newWriter(rs, cfg, logger)
	go p.writer.run()
	return p
}

// PinnedChanged schedules a debounced write of pinned memory. Changes inside
// the window coalesce into one write of the latest value.
func (p *Policy) PinnedChanged() {
	if p.pinnedPending {
		return
	}
	p.pinnedPending = true
	p.pinnedTimer = time.AfterFunc(p.cfg.PinnedFlushDelay, func() {
		p.post(p.flushPinned)
	})
}

func (p *Policy) flushPinned() {
	if !p.pinnedPending {
		return
	}
	p.pinnedPending = false
	if p.pinnedTimer != nil {
		p.pinnedTimer.Stop()
		p.pinnedTimer = nil
	}
	p.save(state.KeyPinned)
}

// HistoryAppended counts an append and writes the whole history every
// HistoryBatch appends.
func (p *Policy) HistoryAppended() {
	p.historyCount++
	if p.historyCount >= p.cfg.HistoryBatch {
		p.FlushHistory()
	}
}

// FlushHistory writes history now and resets the counter.
func (p *Policy) FlushHistory() {
	p.historyCount = 0
	p.save(state.KeyHistory)
}

func (p *Policy) ArtifactsChanged() {
	p.save(state.KeyArtifacts)
}

func (p *Policy) SettingsChanged() {
	p.save(state.KeySettings)
}

// Reset cancels pending work and writes all keys in one atomic batch.
func (p *Policy) Reset() {
	p.cancelPinned()
	p.historyCount = 0

	entries, err := p.encoder.EncodeAll()
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to encode room state")
		return
	}
	p.writer.enqueue(writeOp{entries: entries, atomic: true})
}

// Write persists raw values, used for migration write-back.
func (p *Policy) Write(entries map[string][]byte) {
	for k, v := range entries {
		p.writer.enqueue(writeOp{entries: map[string][]byte{k: v}})
	}
}

// Pending reports unsaved work.
func (p *Policy) Pending() bool {
	return p.pinnedPending || p.historyCount > 0
}

// Flush writes everything still pending and waits for the writer to drain.
func (p *Policy) Flush(ctx context.Context) error {
	if p.pinnedPending {
		p.flushPinned()
	}
	if p.historyCount > 0 {
		p.FlushHistory()
	}

	done := make(chan struct{})
	p.writer.enqueue(writeOp{barrier: done})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the writer after it has drained queued writes. Safe to call
// from any goroutine once the actor no longer uses the policy.
func (p *Policy) Close() {
	p.closeOnce.Do(func() {
		p.cancelPinned()
		p.writer.close()
	})
}

func (p *Policy) cancelPinned() {
	p.pinnedPending = false
	if p.pinnedTimer != nil {
		p.pinnedTimer.Stop()
		p.pinnedTimer = nil
	}
}

func (p *Policy) save(key string) {
	data, err := p.encoder.Encode(key)
	if err != nil {
		p.logger.Error().Err(err).Str(log.FieldStoreKey, key).Msg("failed to encode room state")
		return
	}
	p.writer.enqueue(writeOp{entries: map[string][]byte{key: data}})
}
