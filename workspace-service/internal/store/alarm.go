package store

import (
	"context"
	"sync"
	"time"
)

// alarm is an in-process single-shot timer shared by all backends.
// Connections are process-local, so a heartbeat alarm has no meaning after a
// restart and is not persisted.
type alarm struct {
	mu    sync.Mutex
	timer *time.Timer
	at    time.Time
	set   bool
	gen   uint64
	fn    func()
}

func (a *alarm) Alarm(_ context.Context) (time.Time, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.at, a.set, nil
}

func (a *alarm) SetAlarm(_ context.Context, at time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.timer != nil {
		a.timer.Stop()
	}
	a.at = at
	a.set = true
	a.gen++
	gen := a.gen
	a.timer = time.AfterFunc(time.Until(at), func() { a.fire(gen) })
	return nil
}

func (a *alarm) OnAlarm(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fn = fn
}

func (a *alarm) fire(gen uint64) {
	a.mu.Lock()
	if !a.set || a.gen != gen {
		// Replaced by a later SetAlarm.
		a.mu.Unlock()
		return
	}
	a.timer = nil
	a.set = false
	a.at = time.Time{}
	fn := a.fn
	a.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func (a *alarm) stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.set = false
	a.at = time.Time{}
	a.gen++
}
