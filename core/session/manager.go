package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/sessionkit/core/logger"
	"github.com/dmitrymomot/sessionkit/pkg/async"
	"github.com/dmitrymomot/sessionkit/pkg/debounce"
	"github.com/dmitrymomot/sessionkit/pkg/tokenexp"
)

// auditTimeout bounds the fire-and-forget audit emission during logout.
const auditTimeout = 3 * time.Second

// State is the in-memory view of session truth. It is a cache of the
// durable record: the User pointer is replaced wholesale on every
// committed change and never mutated in place, so a snapshot stays
// coherent after the mutex is released.
type State struct {
	Authenticated bool
	User          *User
	Token         string
	TokenExp      time.Time

	// SessionExpired distinguishes "the session became invalid" from a
	// plain logged-out state, so a UI can prompt re-authentication.
	SessionExpired bool
}

// LoginResult is the outcome of a Login call.
type LoginResult struct {
	OK              bool
	InactiveAccount bool
}

// Manager owns the client-side session lifecycle: boot, login, logout,
// periodic revalidation, entitlement refresh, and reactions to focus and
// cross-instance storage changes. The durable store is the sole source
// of truth; the manager's state is a guarded cache of it.
type Manager struct {
	api      API
	store    Store
	guard    *Guard
	cfg      Config
	log      *slog.Logger
	navigate func()

	mu     sync.RWMutex
	state  State
	runCtx context.Context

	// Set in NewManager and never reassigned, so hook goroutines can
	// read them without holding mu.
	focusDeb   *debounce.Debouncer
	refreshDeb *debounce.Debouncer

	cancel  context.CancelFunc
	started atomic.Bool

	subsMu sync.Mutex
	subs   []chan State
	closed bool
}

// NewManager creates a session manager. The API implementation owns the
// outbound bearer attachment; the store owns durability.
func NewManager(api API, store Store, opts ...Option) *Manager {
	m := &Manager{
		api:   api,
		store: store,
		guard: NewGuard(),
		cfg:   DefaultConfig(),
		log:   logger.Noop(),
	}

	for _, opt := range opts {
		opt(m)
	}

	// Built here rather than in Start so transport hooks arriving before
	// (or while) the run loop starts never observe a nil debouncer.
	m.focusDeb = debounce.New(m.cfg.FocusDebounce, func() {
		m.revalidate(m.ctxOrBackground())
	})
	m.refreshDeb = debounce.New(m.cfg.RefreshDebounce, func() {
		_ = m.RefreshSubscription(m.ctxOrBackground())
	})

	return m
}

// Guard exposes the lifecycle guard, mainly for tests and embedding.
func (m *Manager) Guard() *Guard {
	return m.guard
}

// Snapshot returns the current in-memory state.
func (m *Manager) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Subscribe returns a channel receiving a state snapshot after every
// committed change. Slow consumers drop updates rather than blocking
// the manager. The channel closes on Close.
func (m *Manager) Subscribe() <-chan State {
	ch := make(chan State, 8)

	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	if m.closed {
		close(ch)
		return ch
	}
	m.subs = append(m.subs, ch)
	return ch
}

// Start boots the session from durable state and runs the timer loop.
// It blocks until ctx is cancelled or Close is called; run it on its own
// goroutine. The three cadences (local expiry check, server probe,
// subscription refresh) and the cross-instance storage watch all drain
// through this loop.
func (m *Manager) Start(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if !m.guard.Alive() {
		return ErrClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.runCtx = ctx
	m.mu.Unlock()

	m.boot(ctx)

	watch, err := m.store.Watch(ctx)
	if err != nil {
		// Loss of cross-instance sync degrades, it does not fail the boot.
		m.log.WarnContext(ctx, "storage watch unavailable",
			logger.Component("session"), logger.Error(err))
		watch = nil
	}

	expiry := time.NewTicker(m.cfg.ExpiryCheckInterval)
	defer expiry.Stop()
	probe := time.NewTicker(m.cfg.ProbeInterval)
	defer probe.Stop()
	subscription := time.NewTicker(m.cfg.SubscriptionRefreshInterval)
	defer subscription.Stop()

	m.log.InfoContext(ctx, "session manager started",
		logger.Component("session"),
		slog.Duration("expiry_check", m.cfg.ExpiryCheckInterval),
		slog.Duration("probe", m.cfg.ProbeInterval),
		slog.Duration("subscription_refresh", m.cfg.SubscriptionRefreshInterval))

	for {
		select {
		case <-ctx.Done():
			m.log.InfoContext(context.Background(), "session manager stopping",
				logger.Component("session"))
			return ctx.Err()
		case <-expiry.C:
			m.checkExpiry(ctx)
		case <-probe.C:
			go func() { _, _ = m.Probe(ctx) }()
		case <-subscription.C:
			go func() { _ = m.RefreshSubscription(ctx) }()
		case _, ok := <-watch:
			if !ok {
				watch = nil
				continue
			}
			m.handleStorageChange(ctx)
		}
	}
}

// Close tears the manager down: marks the guard dead so in-flight
// completions become no-ops, stops all timers, and closes subscriber
// channels. Safe to call more than once.
func (m *Manager) Close() {
	m.guard.Shutdown()

	m.focusDeb.Stop()
	m.refreshDeb.Stop()

	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for _, ch := range m.subs {
		close(ch)
	}
	m.subs = nil
}

// boot derives initial state from the durable record. A corrupt or
// expired record was already purged by Load and yields a clean
// unauthenticated state with no user-visible error.
func (m *Manager) boot(ctx context.Context) {
	rec, ok, err := m.store.Load(ctx)
	if err != nil {
		m.log.WarnContext(ctx, "loading durable session failed",
			logger.Component("session"), logger.Error(err))
		ok = false
	}
	if !ok {
		m.api.ClearToken()
		m.setState(State{})
		return
	}

	m.api.SetToken(rec.Token)
	m.setStateFromRecord(rec)

	m.log.InfoContext(ctx, "session restored from storage",
		logger.Component("session"), logger.UserID(rec.User.ID))

	// Re-derive fresh truth in the background; both calls re-check the
	// guard before committing.
	go func() {
		_, _ = m.Probe(ctx)
		_ = m.RefreshSubscription(ctx)
	}()
}

// Login exchanges credentials for a session. It never panics and keeps
// failures distinguishable: an account under review yields
// {InactiveAccount: true} with ErrInactiveAccount and establishes no
// session; any other failure yields a zero result with the cause.
func (m *Manager) Login(ctx context.Context, identifier, secret string) (LoginResult, error) {
	if !m.guard.Alive() {
		return LoginResult{}, ErrClosed
	}

	// Stale workflow keys or a leftover logging-out phase must not leak
	// into the new session.
	if len(m.cfg.AuxKeys) > 0 {
		if err := m.store.Purge(ctx, m.cfg.AuxKeys...); err != nil {
			m.log.WarnContext(ctx, "purging auxiliary keys failed",
				logger.Component("session"), logger.Error(err))
		}
	}
	m.guard.Reset()

	resp, err := m.api.Login(ctx, identifier, secret)
	if err != nil {
		m.log.InfoContext(ctx, "login failed",
			logger.Component("session"), logger.Error(err))
		return LoginResult{}, err
	}
	if resp.Inactive {
		return LoginResult{InactiveAccount: true}, ErrInactiveAccount
	}

	m.api.SetToken(resp.Token)
	exp := m.resolveExpiry(ctx, resp)

	rec := Record{
		Authenticated: true,
		User:          resp.User,
		Token:         resp.Token,
		TokenExpMs:    exp.UnixMilli(),
	}
	if rec.User.Subscription != nil {
		rec.User.Subscription.Normalize(time.Now())
	}

	if err := m.store.Save(ctx, rec); err != nil {
		m.log.WarnContext(ctx, "persisting session failed",
			logger.Component("session"), logger.Error(err))
	}
	m.setStateFromRecord(rec)

	m.log.InfoContext(ctx, "login succeeded",
		logger.Component("session"), logger.UserID(rec.User.ID))

	return LoginResult{OK: true}, nil
}

// resolveExpiry determines the token horizon: explicit login payload
// first, then an authorize round-trip, then the token's own exp claim,
// then the conservative fallback.
func (m *Manager) resolveExpiry(ctx context.Context, resp LoginResponse) time.Time {
	if resp.ExpUnix > 0 {
		return time.Unix(resp.ExpUnix, 0)
	}

	if auth, err := m.api.Authorize(ctx); err == nil && auth.ExpUnix > 0 {
		return time.Unix(auth.ExpUnix, 0)
	}

	if exp, ok := tokenexp.Expiry(resp.Token); ok {
		return exp
	}

	return time.Now().Add(m.cfg.FallbackTokenTTL)
}

// Logout is the user-initiated logout: full teardown plus navigation to
// the entry route when a navigator is configured.
func (m *Manager) Logout(ctx context.Context) {
	m.logout(ctx, true)
}

// LogoutGuarded tears the session down without navigating, used when the
// session is found invalid in the background so the UI can surface the
// expired-session affordance first.
func (m *Manager) LogoutGuarded(ctx context.Context) {
	m.logout(ctx, false)
}

// logout runs the teardown sequence. The step order is load-bearing:
// the guard is raised before anything else, and the grace window keeps
// it raised after the cleared state is committed so completions from
// before the logout cannot repopulate session fields.
func (m *Manager) logout(ctx context.Context, navigate bool) bool {
	epoch, ok := m.guard.BeginLogout()
	if !ok {
		// A logout is already executing; this call is a no-op.
		return false
	}

	m.mu.RLock()
	user := m.state.User
	m.mu.RUnlock()

	if user != nil {
		event := AuditEvent{
			ID:         uuid.NewString(),
			Action:     "logout",
			EntityType: "session",
			EntityID:   user.ID,
			At:         time.Now(),
		}
		async.Fire(auditTimeout, func(ctx context.Context) error {
			return m.api.Audit(ctx, event)
		})
	}

	m.api.ClearToken()

	if err := m.store.Clear(ctx); err != nil {
		m.log.WarnContext(ctx, "clearing durable session failed",
			logger.Component("session"), logger.Error(err))
	}
	if len(m.cfg.AuxKeys) > 0 {
		if err := m.store.Purge(ctx, m.cfg.AuxKeys...); err != nil {
			m.log.WarnContext(ctx, "purging auxiliary keys failed",
				logger.Component("session"), logger.Error(err))
		}
	}

	m.mu.Lock()
	// A guarded logout preserves the expired marker for the UI; an
	// explicit one clears everything.
	expired := m.state.SessionExpired && !navigate
	m.state = State{SessionExpired: expired}
	snap := m.state
	m.mu.Unlock()
	m.publish(snap)

	m.log.InfoContext(ctx, "logged out",
		logger.Component("session"), logger.UserID(userID(user)),
		slog.Bool("navigate", navigate))

	time.AfterFunc(m.cfg.LogoutGrace, func() { m.guard.EndLogout(epoch) })

	if navigate && m.navigate != nil {
		m.navigate()
	}
	return true
}

// Probe asks the server to confirm the current token and reconciles the
// returned identity into local state. It refuses to run without a token
// or during logout, and never forces logout itself; escalating a
// rejected token is the transport interceptor's job.
func (m *Manager) Probe(ctx context.Context) (bool, error) {
	if !m.guard.Alive() {
		return false, ErrClosed
	}
	if m.guard.LoggingOut() {
		return false, ErrLogoutInProgress
	}

	m.mu.RLock()
	token := m.state.Token
	m.mu.RUnlock()
	if token == "" {
		return false, ErrNotAuthenticated
	}

	epoch := m.guard.Epoch()

	resp, err := m.api.Authorize(ctx)
	if err != nil {
		m.log.DebugContext(ctx, "probe failed",
			logger.Component("session"), logger.Error(err))
		return false, err
	}

	committed := m.guard.Commit(epoch, func() {
		m.applyProbe(ctx, resp)
	})
	return committed, nil
}

func (m *Manager) applyProbe(ctx context.Context, resp AuthorizeResponse) {
	m.mu.Lock()
	if !m.state.Authenticated || m.state.User == nil {
		m.mu.Unlock()
		return
	}

	merged := m.state.User.MergeProbe(resp)
	if merged.Subscription != nil {
		merged.Subscription.Normalize(time.Now())
	}
	m.state.User = &merged
	if resp.ExpUnix > 0 {
		m.state.TokenExp = time.Unix(resp.ExpUnix, 0)
	}
	rec := m.recordLocked()
	snap := m.state
	m.mu.Unlock()

	if err := m.store.Save(ctx, rec); err != nil {
		m.log.WarnContext(ctx, "persisting probed session failed",
			logger.Component("session"), logger.Error(err))
	}
	m.publish(snap)
}

// RefreshSubscription fetches the entitlement snapshot and replaces the
// user's subscription wholesale. Single-flight: a call while one is
// outstanding returns ErrRefreshInFlight. Failures are reported to the
// caller but are not session errors; a 401 from the subscription
// endpoint in particular never causes logout (the endpoint is exempt in
// the transport interceptor).
func (m *Manager) RefreshSubscription(ctx context.Context) error {
	if !m.guard.Alive() {
		return ErrClosed
	}
	if m.guard.LoggingOut() {
		return ErrLogoutInProgress
	}

	m.mu.RLock()
	authenticated := m.state.Authenticated
	m.mu.RUnlock()
	if !authenticated {
		return ErrNotAuthenticated
	}

	if !m.guard.TryRefresh() {
		return ErrRefreshInFlight
	}
	defer m.guard.EndRefresh()

	epoch := m.guard.Epoch()

	sub, err := m.api.SubscriptionStatus(ctx)
	if err != nil {
		m.log.DebugContext(ctx, "subscription refresh failed",
			logger.Component("session"), logger.Error(err))
		return err
	}
	sub.Normalize(time.Now())

	m.guard.Commit(epoch, func() {
		m.mu.Lock()
		if !m.state.Authenticated || m.state.User == nil {
			m.mu.Unlock()
			return
		}
		user := *m.state.User
		user.Subscription = &sub
		m.state.User = &user
		rec := m.recordLocked()
		snap := m.state
		m.mu.Unlock()

		if err := m.store.Save(ctx, rec); err != nil {
			m.log.WarnContext(ctx, "persisting subscription failed",
				logger.Component("session"), logger.Error(err))
		}
		m.publish(snap)
	})
	return nil
}

// NotifyFocus signals that the application regained focus or visibility.
// Expiry is checked immediately; the probe and subscription refresh run
// after the focus debounce window so rapid focus/blur churn collapses
// into a single revalidation.
func (m *Manager) NotifyFocus() {
	if !m.guard.Alive() || m.guard.LoggingOut() {
		return
	}
	go m.handleFocus(m.ctxOrBackground())
}

func (m *Manager) handleFocus(ctx context.Context) {
	if !m.guard.Alive() || m.guard.LoggingOut() {
		return
	}

	_, ok, err := m.store.Load(ctx)
	if err != nil {
		m.log.WarnContext(ctx, "loading durable session failed",
			logger.Component("session"), logger.Error(err))
		return
	}
	if !ok {
		// Load purges an expired durable record, so an absent record
		// while we still think we are authenticated past the horizon
		// means the session expired while unfocused.
		m.mu.Lock()
		expired := m.state.Authenticated &&
			!m.state.TokenExp.IsZero() && !time.Now().Before(m.state.TokenExp)
		if expired {
			m.state.SessionExpired = true
		}
		m.mu.Unlock()

		if expired {
			m.logout(ctx, false)
		}
		return
	}

	m.focusDeb.Trigger()
}

// revalidate is the debounced focus action: probe first, then refresh.
func (m *Manager) revalidate(ctx context.Context) {
	_, _ = m.Probe(ctx)
	_ = m.RefreshSubscription(ctx)
}

// checkExpiry is the local clock tick comparing now to the token horizon.
func (m *Manager) checkExpiry(ctx context.Context) {
	m.mu.Lock()
	expired := m.state.Authenticated &&
		!m.state.TokenExp.IsZero() && !time.Now().Before(m.state.TokenExp)
	if expired {
		m.state.SessionExpired = true
	}
	m.mu.Unlock()

	if expired {
		m.log.InfoContext(ctx, "token expired locally",
			logger.Component("session"))
		m.logout(ctx, false)
	}
}

// handleStorageChange re-derives in-memory state from whatever is now
// durable: a wholesale replace, including "now absent" which yields a
// logged-out state without any network call of our own.
func (m *Manager) handleStorageChange(ctx context.Context) {
	if !m.guard.Alive() || m.guard.LoggingOut() {
		return
	}

	rec, ok, err := m.store.Load(ctx)
	if err != nil {
		m.log.WarnContext(ctx, "loading durable session failed",
			logger.Component("session"), logger.Error(err))
		return
	}
	if !ok {
		m.api.ClearToken()
		m.setState(State{})
		return
	}

	m.api.SetToken(rec.Token)
	m.setStateFromRecord(rec)
}

// AuthFailure implements the transport hook for a 401 from a non-exempt
// endpoint: mark the session expired and run a guarded logout, unless a
// logout is already underway.
func (m *Manager) AuthFailure(endpoint string) {
	if !m.guard.Alive() || m.guard.LoggingOut() {
		return
	}

	m.mu.Lock()
	if !m.state.Authenticated {
		m.mu.Unlock()
		return
	}
	m.state.SessionExpired = true
	m.mu.Unlock()

	ctx := m.ctxOrBackground()
	m.log.InfoContext(ctx, "server rejected token",
		logger.Component("session"), logger.Endpoint(endpoint))
	m.logout(ctx, false)
}

// QuotaSignal implements the transport hook for a rate/quota signal.
// It is a soft signal: schedule a debounced entitlement refresh, never
// a logout.
func (m *Manager) QuotaSignal(endpoint string) {
	if !m.guard.Alive() || m.guard.LoggingOut() {
		return
	}
	m.refreshDeb.Trigger()
}

// BillableCall implements the transport hook for a successful call to a
// budget-consuming endpoint; the meter moved, so re-read it shortly.
func (m *Manager) BillableCall(endpoint string) {
	m.QuotaSignal(endpoint)
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	m.publish(s)
}

func (m *Manager) setStateFromRecord(rec Record) {
	user := rec.User
	s := State{
		Authenticated: true,
		User:          &user,
		Token:         rec.Token,
		TokenExp:      rec.Expiry(),
	}
	m.setState(s)
}

// recordLocked builds the durable record from current state.
// Caller must hold m.mu and have verified state.User is non-nil.
func (m *Manager) recordLocked() Record {
	return Record{
		Authenticated: m.state.Authenticated,
		User:          *m.state.User,
		Token:         m.state.Token,
		TokenExpMs:    m.state.TokenExp.UnixMilli(),
	}
}

func (m *Manager) publish(s State) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- s:
		default:
		}
	}
}

func (m *Manager) ctxOrBackground() context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.runCtx != nil {
		return m.runCtx
	}
	return context.Background()
}

func userID(u *User) string {
	if u == nil {
		return ""
	}
	return u.ID
}
