// Package watchdog is a software liveness timer. The control loop resets it
// every cycle; if it is not reset within the timeout the expiry hook runs,
// which in production restarts the process.
package watchdog

import (
	"log/slog"
	"sync"
	"time"
)

// Watchdog fires onExpire once if Reset is not called within timeout.
type Watchdog struct {
	timeout  time.Duration
	onExpire func()
	log      *slog.Logger

	mu      sync.Mutex
	timer   *time.Timer
	fired   bool
	stopped bool
}

// New returns an unarmed watchdog.
func New(timeout time.Duration, onExpire func(), log *slog.Logger) *Watchdog {
	return &Watchdog{timeout: timeout, onExpire: onExpire, log: log}
}

// Arm starts the countdown. Arming an armed watchdog restarts it.
func (w *Watchdog) Arm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.stopped = false
	w.timer = time.AfterFunc(w.timeout, w.expire)
	w.log.Info("watchdog armed", "timeout", w.timeout)
}

// Reset pushes the deadline out by another timeout. It is a no-op before
// Arm and after Stop or expiry.
func (w *Watchdog) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer == nil || w.stopped || w.fired {
		return
	}
	w.timer.Reset(w.timeout)
}

// Stop disarms the watchdog.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
}

// Fired reports whether the watchdog expired.
func (w *Watchdog) Fired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fired
}

func (w *Watchdog) expire() {
	w.mu.Lock()
	if w.stopped || w.fired {
		w.mu.Unlock()
		return
	}
	w.fired = true
	w.mu.Unlock()

	w.log.Error("watchdog expired", "timeout", w.timeout)
	if w.onExpire != nil {
		w.onExpire()
	}
}
