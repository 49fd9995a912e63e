// Package supervisor keeps the network link and the broker session up for
// the control loop. Retries are bounded; once a bound is exhausted the
// supervisor signals a restart and stays in the Fatal phase for good.
//
// Restart contract: Restarter.Restart is called at most once per process.
// The production restarter exits the process with a non-zero status and the
// service manager (systemd Restart=on-failure, a container restart policy)
// brings it back in a clean state. Nothing in this package tries to recover
// from Fatal.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/secretengineer/GreenHouse-Tender-2/internal/greenhouse"
)

// ErrFatal is returned once a retry bound has been exhausted.
var ErrFatal = errors.New("connectivity lost beyond retry bound")

// Link is the network link provider.
type Link interface {
	// Up reports whether the link is usable right now.
	Up() bool
	// Connect starts (re)association. It does not wait for the link.
	Connect() error
}

// Session is the messaging session provider.
type Session interface {
	Connected() bool
	Connect() error
	Subscribe(filter string) error
}

// Watchdog is kept alive while the supervisor blocks in a retry.
type Watchdog interface {
	Reset()
}

// Restarter performs the hard device restart.
type Restarter interface {
	Restart(reason string)
}

// Observer receives one call per connection attempt. Optional.
type Observer interface {
	ConnectAttempt(target string, ok bool)
}

// Policy bounds the retry sequences.
type Policy struct {
	LinkAttempts   int
	LinkInterval   time.Duration
	BrokerAttempts int
	BrokerDelay    time.Duration
}

// DefaultPolicy is 30 link checks 500ms apart and 5 broker attempts 5s apart.
var DefaultPolicy = Policy{
	LinkAttempts:   30,
	LinkInterval:   500 * time.Millisecond,
	BrokerAttempts: 5,
	BrokerDelay:    5 * time.Second,
}

// Supervisor implements the Disconnected -> Connecting -> Connected state
// machine with the absorbing Fatal state.
type Supervisor struct {
	link      Link
	session   Session
	watchdog  Watchdog
	restarter Restarter
	policy    Policy
	log       *slog.Logger

	// Sleep waits between attempts; replaced in tests.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnPhase is told about every phase change.
	OnPhase  func(greenhouse.Phase)
	Observer Observer

	mu    sync.Mutex
	phase greenhouse.Phase
}

// New wires a supervisor. The watchdog may be nil.
func New(link Link, session Session, wd Watchdog, r Restarter, p Policy, log *slog.Logger) *Supervisor {
	return &Supervisor{
		link:      link,
		session:   session,
		watchdog:  wd,
		restarter: r,
		policy:    p,
		log:       log,
		Sleep:     sleepCtx,
		phase:     greenhouse.Disconnected,
	}
}

// Phase returns the current phase.
func (s *Supervisor) Phase() greenhouse.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// EnsureConnected returns nil when both link and session are up, possibly
// after reconnecting and resubscribing. It returns an error wrapping ErrFatal
// once a bound is exhausted, and ctx.Err() if ctx ends while waiting.
func (s *Supervisor) EnsureConnected(ctx context.Context) error {
	if s.Phase() == greenhouse.Fatal {
		return ErrFatal
	}
	if err := s.ensureLink(ctx); err != nil {
		return err
	}
	return s.ensureSession(ctx)
}

func (s *Supervisor) ensureLink(ctx context.Context) error {
	if s.link.Up() {
		return nil
	}
	s.setPhase(greenhouse.Disconnected)
	s.setPhase(greenhouse.Connecting)
	s.log.Warn("network link down, connecting", "checks", s.policy.LinkAttempts, "interval", s.policy.LinkInterval)
	if err := s.link.Connect(); err != nil {
		s.log.Warn("link connect request failed", "err", err)
	}
	for i := 1; i <= s.policy.LinkAttempts; i++ {
		s.resetWatchdog()
		if err := s.Sleep(ctx, s.policy.LinkInterval); err != nil {
			return err
		}
		up := s.link.Up()
		s.observe("link", up)
		if up {
			s.log.Info("network link up", "checks", i)
			return nil
		}
	}
	return s.fatal(fmt.Sprintf("network link still down after %d checks", s.policy.LinkAttempts))
}

func (s *Supervisor) ensureSession(ctx context.Context) error {
	if s.session.Connected() {
		s.setPhase(greenhouse.Connected)
		return nil
	}
	s.setPhase(greenhouse.Disconnected)
	s.setPhase(greenhouse.Connecting)
	for attempt := 1; attempt <= s.policy.BrokerAttempts; attempt++ {
		s.resetWatchdog()
		err := s.session.Connect()
		if err == nil {
			if err = s.session.Subscribe(greenhouse.ControlFilter); err != nil {
				err = fmt.Errorf("subscribe %s: %w", greenhouse.ControlFilter, err)
			}
		}
		s.observe("broker", err == nil)
		if err == nil {
			s.log.Info("broker session established", "attempt", attempt, "subscribed", greenhouse.ControlFilter)
			s.setPhase(greenhouse.Connected)
			return nil
		}
		s.log.Warn("broker connect failed", "attempt", attempt, "of", s.policy.BrokerAttempts, "err", err)
		if attempt < s.policy.BrokerAttempts {
			if err := s.Sleep(ctx, s.policy.BrokerDelay); err != nil {
				return err
			}
		}
	}
	return s.fatal(fmt.Sprintf("broker unreachable after %d attempts", s.policy.BrokerAttempts))
}

func (s *Supervisor) fatal(reason string) error {
	s.mu.Lock()
	already := s.phase == greenhouse.Fatal
	s.phase = greenhouse.Fatal
	s.mu.Unlock()
	if already {
		return ErrFatal
	}
	if s.OnPhase != nil {
		s.OnPhase(greenhouse.Fatal)
	}
	s.log.Error("connectivity fatal, restarting", "reason", reason)
	s.restarter.Restart(reason)
	return fmt.Errorf("%w: %s", ErrFatal, reason)
}

func (s *Supervisor) setPhase(p greenhouse.Phase) {
	s.mu.Lock()
	changed := s.phase != p
	s.phase = p
	s.mu.Unlock()
	if changed && s.OnPhase != nil {
		s.OnPhase(p)
	}
}

func (s *Supervisor) resetWatchdog() {
	if s.watchdog != nil {
		s.watchdog.Reset()
	}
}

func (s *Supervisor) observe(target string, ok bool) {
	if s.Observer != nil {
		s.Observer.ConnectAttempt(target, ok)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
