// Package timer provides named auto-reload software timers.
package timer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Callback is invoked on every expiry. It runs on the timer goroutine and
// must return quickly.
type Callback func()

// Timer calls its callback once per period until stopped.
type Timer struct {
	name     string
	period   time.Duration
	callback Callback

	fired atomic.Uint64
}

// New creates a timer. It fires once Run is called.
func New(name string, period time.Duration, cb Callback) (*Timer, error) {
	if period <= 0 {
		return nil, fmt.Errorf("timer %q: period must be positive, got %v", name, period)
	}
	if cb == nil {
		return nil, fmt.Errorf("timer %q: nil callback", name)
	}
	return &Timer{name: name, period: period, callback: cb}, nil
}

// Name returns the timer name.
func (t *Timer) Name() string {
	return t.name
}

// Period returns the reload period.
func (t *Timer) Period() time.Duration {
	return t.period
}

// Fired returns how many times the callback has run.
func (t *Timer) Fired() uint64 {
	return t.fired.Load()
}

// Run fires the callback every period until ctx is done and returns ctx.Err().
func (t *Timer) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.callback()
			t.fired.Add(1)
		}
	}
}
