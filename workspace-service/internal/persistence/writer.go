package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/weiawesome/wes-io-live/pkg/log"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/store"
)

type writeOp struct {
	entries map[string][]byte
	atomic  bool
	barrier chan struct{}
}

// writer applies writes in submission order, so an older snapshot of a key
// never lands after a newer one. enqueue never blocks: a pending single-key
// write is superseded by a newer write of the same key.
type writer struct {
	rs     store.RoomStore
	cfg    Config
	logger zerolog.Logger
	wake   chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	pending []writeOp
	closed  bool
	warned  bool
}

func newWriter(rs store.RoomStore, cfg Config, logger zerolog.Logger) *writer {
	return &writer{
		rs:     rs,
		cfg:    cfg,
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (w *writer) enqueue(op writeOp) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		if op.barrier != nil {
			close(op.barrier)
		}
		return
	}
	if op.barrier == nil {
		w.pending = supersede(w.pending, op)
	}
	w.pending = append(w.pending, op)
	backlog := len(w.pending)
	warn := backlog > w.cfg.QueueSize && !w.warned
	if warn {
		w.warned = true
	} else if backlog <= w.cfg.QueueSize {
		w.warned = false
	}
	w.mu.Unlock()

	if warn {
		w.logger.Warn().Int("backlog", backlog).Msg("room state writes are falling behind")
	}
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// supersede drops pending single-key writes that op overwrites. It stops at
// the most recent barrier so a Flush still waits for what preceded it.
func supersede(pending []writeOp, op writeOp) []writeOp {
	start := 0
	for i := len(pending) - 1; i >= 0; i-- {
		if pending[i].barrier != nil {
			start = i + 1
			break
		}
	}

	kept := pending[:start]
	for _, p := range pending[start:] {
		if !p.atomic && len(p.entries) == 1 && overwrites(op, p) {
			continue
		}
		kept = append(kept, p)
	}
	return kept
}

func overwrites(op, p writeOp) bool {
	for k := range p.entries {
		if _, ok := op.entries[k]; !ok {
			return false
		}
	}
	return true
}

func (w *writer) next() (writeOp, bool) {
	for {
		w.mu.Lock()
		if len(w.pending) > 0 {
			op := w.pending[0]
			w.pending[0] = writeOp{}
			w.pending = w.pending[1:]
			w.mu.Unlock()
			return op, true
		}
		closed := w.closed
		w.mu.Unlock()
		if closed {
			return writeOp{}, false
		}
		<-w.wake
	}
}

func (w *writer) close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
	<-w.done
}

func (w *writer) run() {
	defer close(w.done)
	for {
		op, ok := w.next()
		if !ok {
			return
		}
		if op.barrier != nil {
			close(op.barrier)
			continue
		}
		w.apply(op)
	}
}

func (w *writer) apply(op writeOp) {
	keys := make([]string, 0, len(op.entries))
	for k := range op.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	backoff := w.cfg.Backoff
	var err error
	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		err = w.write(op)
		if err == nil {
			w.logger.Debug().Strs(log.FieldStoreKey, keys).Msg("room state persisted")
			return
		}
		if attempt < w.cfg.MaxAttempts {
			w.logger.Warn().Err(err).Strs(log.FieldStoreKey, keys).Int("attempt", attempt).Msg("room state write failed, retrying")
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	w.logger.Error().Err(err).Strs(log.FieldStoreKey, keys).Msg("room state write dropped")
}

func (w *writer) write(op writeOp) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.WriteTimeout)
	defer cancel()

	if op.atomic || len(op.entries) > 1 {
		return w.rs.PutMany(ctx, op.entries)
	}
	for k, v := range op.entries {
		return w.rs.Put(ctx, k, v)
	}
	return nil
}
