package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc performs one liveness check against the validator, usually over
// the network. A non-nil error means the check could not be performed, not
// that the session is revoked.
type CheckFunc func(ctx context.Context) (Result, error)

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// Check is mandatory.
	Check CheckFunc

	// Interval between background checks. Defaults to 30 seconds.
	Interval time.Duration

	// OnRevoked is invoked exactly once, with the verdict that ended the
	// session. The callback owns the redirect to the login surface.
	OnRevoked func(Result)

	// Events optionally feeds pushed revocation hints. A hint triggers an
	// immediate re-check; the poll loop remains the correctness path and the
	// watcher keeps working when the channel is nil or closed.
	Events <-chan Revocation

	// TenantID/UserID filter pushed hints to this session's identity.
	TenantID string
	UserID   string
}

// Watcher maintains the client-side belief that a session is still valid.
// Two producers feed it, the interval poll and the optional push channel,
// and a single one-way latch consumes the first revoked verdict. Transport
// failures fail open: a flaky network never logs the user out.
type Watcher struct {
	cfg     WatcherConfig
	revoked atomic.Bool
	once    sync.Once
	focus   chan struct{}
}

// NewWatcher constructs a Watcher.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Check == nil {
		return nil, fmt.Errorf("%w: check function is required", ErrInvalidInput)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Watcher{
		cfg:   cfg,
		focus: make(chan struct{}, 1),
	}, nil
}

// Revoked reports whether the latch has fired.
func (w *Watcher) Revoked() bool {
	return w.revoked.Load()
}

// Focus requests an immediate re-check, coalescing bursts. Call it when the
// page regains visibility so revocations that happened while the tab was
// backgrounded are caught before the next tick.
func (w *Watcher) Focus() {
	select {
	case w.focus <- struct{}{}:
	default:
	}
}

// Run polls until the context ends or the session is revoked. It performs an
// initial check immediately, then on every tick, focus signal or pushed
// hint. Once revoked it returns; the latch never re-arms.
func (w *Watcher) Run(ctx context.Context) {
	if w.checkOnce(ctx) {
		return
	}
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	events := w.cfg.Events
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.checkOnce(ctx) {
				return
			}
		case <-w.focus:
			if w.checkOnce(ctx) {
				return
			}
		case ev, ok := <-events:
			if !ok {
				// Push path gone; polling carries on alone.
				events = nil
				continue
			}
			if !w.matches(ev) {
				continue
			}
			if w.checkOnce(ctx) {
				return
			}
		}
	}
}

// checkOnce runs one validation pass. Returns true when the watcher should
// stop (revoked or already latched).
func (w *Watcher) checkOnce(ctx context.Context) bool {
	if w.revoked.Load() {
		return true
	}
	result, err := w.cfg.Check(ctx)
	if err != nil {
		// Fail open: a transport error is not a revocation.
		return false
	}
	if result.Valid {
		return false
	}
	w.trip(result)
	return true
}

func (w *Watcher) trip(result Result) {
	w.once.Do(func() {
		w.revoked.Store(true)
		if w.cfg.OnRevoked != nil {
			w.cfg.OnRevoked(result)
		}
	})
}

// matches filters pushed hints: a tenant-wide event (empty UserID) matches
// every user of that tenant.
func (w *Watcher) matches(ev Revocation) bool {
	if ev.TenantID != "" && ev.TenantID != w.cfg.TenantID {
		return false
	}
	if ev.UserID != "" && ev.UserID != w.cfg.UserID {
		return false
	}
	return true
}
