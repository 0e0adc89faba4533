package session

import "context"

// Store defines the durable persistence contract for the session record.
// It is the sole source of durable truth; components never touch the
// underlying storage directly.
//
// Load validates structure and expiry: a malformed or expired value is
// purged and reported as absent (ok=false), never as an error reaching
// the caller. Save replaces the record atomically from the caller's
// perspective. Purge removes auxiliary session-scoped keys.
//
// Watch returns a channel that receives a signal whenever another
// process or instance mutates the record, enabling cross-instance state
// propagation. The channel is closed when ctx is cancelled or the store
// is closed. Implementations that cannot observe external changes may
// return a channel that never fires.
type Store interface {
	Load(ctx context.Context) (Record, bool, error)
	Save(ctx context.Context, rec Record) error
	Clear(ctx context.Context) error
	Purge(ctx context.Context, keys ...string) error
	Watch(ctx context.Context) (<-chan struct{}, error)
	Close() error
}

// API is the transport boundary the manager drives. Implementations own
// the outbound bearer attachment: SetToken and ClearToken must apply to
// every subsequent request atomically.
type API interface {
	Login(ctx context.Context, identifier, secret string) (LoginResponse, error)
	Authorize(ctx context.Context) (AuthorizeResponse, error)
	SubscriptionStatus(ctx context.Context) (Subscription, error)
	Audit(ctx context.Context, event AuditEvent) error
	SetToken(token string)
	ClearToken()
}
