package session

import (
	"log/slog"
	"time"
)

// Config holds the manager's cadences and horizons. All values are
// tunable through the environment; control flow never hardcodes them.
type Config struct {
	// ExpiryCheckInterval is how often the local clock is compared
	// against the token expiry.
	ExpiryCheckInterval time.Duration `env:"SESSION_EXPIRY_CHECK_INTERVAL" envDefault:"2m"`

	// ProbeInterval is how often the token is revalidated against the
	// server while authenticated.
	ProbeInterval time.Duration `env:"SESSION_PROBE_INTERVAL" envDefault:"30m"`

	// SubscriptionRefreshInterval is how often entitlement data is
	// refreshed while authenticated.
	SubscriptionRefreshInterval time.Duration `env:"SESSION_SUBSCRIPTION_REFRESH_INTERVAL" envDefault:"12h"`

	// FallbackTokenTTL is assumed when neither the login response, an
	// authorize call, nor the token payload yields an explicit expiry.
	FallbackTokenTTL time.Duration `env:"SESSION_FALLBACK_TOKEN_TTL" envDefault:"72h"`

	// FocusDebounce collapses rapid focus/blur churn before revalidating.
	FocusDebounce time.Duration `env:"SESSION_FOCUS_DEBOUNCE" envDefault:"2s"`

	// RefreshDebounce delays subscription refreshes triggered by billable
	// calls or rate-limit signals.
	RefreshDebounce time.Duration `env:"SESSION_REFRESH_DEBOUNCE" envDefault:"1500ms"`

	// LogoutGrace is how long the logging-out phase stays raised after the
	// cleared state is committed, absorbing straggler completions.
	LogoutGrace time.Duration `env:"SESSION_LOGOUT_GRACE" envDefault:"500ms"`

	// AuxKeys are session-scoped cached keys purged on logout and before
	// login, e.g. a last-selected-workflow-action.
	AuxKeys []string `env:"SESSION_AUX_KEYS" envSeparator:","`
}

// DefaultConfig returns the stock cadences.
func DefaultConfig() Config {
	return Config{
		ExpiryCheckInterval:         2 * time.Minute,
		ProbeInterval:               30 * time.Minute,
		SubscriptionRefreshInterval: 12 * time.Hour,
		FallbackTokenTTL:            72 * time.Hour,
		FocusDebounce:               2 * time.Second,
		RefreshDebounce:             1500 * time.Millisecond,
		LogoutGrace:                 500 * time.Millisecond,
	}
}

// normalize fills zero values with defaults so a partially populated
// config cannot stall a timer loop with a zero interval.
func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.ExpiryCheckInterval <= 0 {
		c.ExpiryCheckInterval = def.ExpiryCheckInterval
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = def.ProbeInterval
	}
	if c.SubscriptionRefreshInterval <= 0 {
		c.SubscriptionRefreshInterval = def.SubscriptionRefreshInterval
	}
	if c.FallbackTokenTTL <= 0 {
		c.FallbackTokenTTL = def.FallbackTokenTTL
	}
	if c.FocusDebounce <= 0 {
		c.FocusDebounce = def.FocusDebounce
	}
	if c.RefreshDebounce <= 0 {
		c.RefreshDebounce = def.RefreshDebounce
	}
	if c.LogoutGrace <= 0 {
		c.LogoutGrace = def.LogoutGrace
	}
	return c
}

// Option is a functional option for configuring the manager.
type Option func(*Manager)

// WithConfig replaces the manager configuration.
func WithConfig(cfg Config) Option {
	return func(m *Manager) {
		m.cfg = cfg.normalize()
	}
}

// WithLogger configures structured logging. Default discards everything.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithNavigate sets the callback invoked after a user-initiated logout,
// typically routing the UI back to the entry screen. Guarded logouts
// never navigate.
func WithNavigate(fn func()) Option {
	return func(m *Manager) {
		m.navigate = fn
	}
}
