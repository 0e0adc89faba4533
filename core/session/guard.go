package session

import "sync"

// Phase is the lifecycle guard state.
type Phase int

const (
	// PhaseIdle means no logout sequence is executing.
	PhaseIdle Phase = iota
	// PhaseLoggingOut means a logout sequence has started and has not yet
	// released its grace window.
	PhaseLoggingOut
)

// Guard is the mutual-exclusion primitive protecting session truth.
// It replaces scattered boolean flags with one explicit phase machine,
// a liveness bit, and an epoch counter.
//
// The epoch advances whenever session identity changes (login, logout),
// so an asynchronous continuation started under an older epoch can
// detect at its resumption point that its result is stale. Commit is the
// single place that check happens: all async result handling goes
// through it rather than inlining flag checks.
type Guard struct {
	mu         sync.Mutex
	phase      Phase
	alive      bool
	epoch      uint64
	refreshing bool
}

// NewGuard returns a live guard in the idle phase.
func NewGuard() *Guard {
	return &Guard{alive: true}
}

// BeginLogout transitions idle -> logging-out and advances the epoch,
// returning the epoch of this logout for the matching EndLogout call.
// ok is false when a logout is already in progress or the guard is
// dead, making logout idempotent under concurrency.
func (g *Guard) BeginLogout() (epoch uint64, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.alive || g.phase == PhaseLoggingOut {
		return 0, false
	}
	g.phase = PhaseLoggingOut
	g.epoch++
	return g.epoch, true
}

// EndLogout returns the guard to idle, but only when the epoch still
// matches the BeginLogout that raised the phase. Called after the grace
// window so stragglers started before logout still see the logging-out
// phase; the epoch check keeps a stale grace timer from lowering the
// phase of a newer logout that began in the meantime.
func (g *Guard) EndLogout(epoch uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.epoch != epoch {
		return
	}
	g.phase = PhaseIdle
}

// Reset forces the guard back to idle and advances the epoch.
// Login uses it to clear a stale logging-out phase before attempting.
func (g *Guard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.phase = PhaseIdle
	g.epoch++
}

// LoggingOut reports whether a logout sequence is in progress.
func (g *Guard) LoggingOut() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.phase == PhaseLoggingOut
}

// Alive reports whether the owning component is still mounted.
func (g *Guard) Alive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.alive
}

// Shutdown marks the owning component as torn down. Irreversible.
func (g *Guard) Shutdown() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.alive = false
	g.epoch++
}

// Epoch returns the current epoch for later use with Commit.
func (g *Guard) Epoch() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.epoch
}

// Commit runs fn only if the guard is alive, idle, and still in the
// given epoch. It returns false without running fn when the result is
// stale: the session was torn down, a logout started, or identity
// changed since the caller captured the epoch. fn runs with the guard
// lock held, so it must not call back into the guard.
func (g *Guard) Commit(epoch uint64, fn func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.alive || g.phase != PhaseIdle || g.epoch != epoch {
		return false
	}
	fn()
	return true
}

// TryRefresh acquires the subscription refresh single-flight slot.
// Returns false when a refresh is already outstanding, a logout is in
// progress, or the guard is dead. Callers that get true must call
// EndRefresh.
func (g *Guard) TryRefresh() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.alive || g.phase == PhaseLoggingOut || g.refreshing {
		return false
	}
	g.refreshing = true
	return true
}

// EndRefresh releases the single-flight slot.
func (g *Guard) EndRefresh() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refreshing = false
}
