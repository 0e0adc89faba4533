package session

import (
	"time"
)

// Plan identifies the subscription tier of an account.
type Plan string

const (
	PlanTrial     Plan = "trial"
	PlanLimited   Plan = "limited"
	PlanUnlimited Plan = "unlimited"
	PlanAdmin     Plan = "admin"
	PlanNone      Plan = "none"
)

// UnlimitedCalls is the Limit value denoting no call budget.
const UnlimitedCalls = -1

// Subscription is a point-in-time snapshot of plan and usage data.
// It is replaced wholesale on every sync, never merged field by field.
type Subscription struct {
	Plan          Plan       `json:"plan"`
	Active        bool       `json:"active"`
	Used          int        `json:"used"`
	Limit         int        `json:"limit"`
	Expired       bool       `json:"expired"`
	Locked        bool       `json:"locked"`
	ValidUntil    *time.Time `json:"validUntil,omitempty"`
	DaysRemaining int        `json:"daysRemaining"`
}

// Normalize recomputes derived fields against the given instant.
func (s *Subscription) Normalize(now time.Time) {
	if s.ValidUntil == nil {
		s.DaysRemaining = 0
		return
	}

	remaining := s.ValidUntil.Sub(now)
	if remaining <= 0 {
		s.DaysRemaining = 0
		s.Expired = true
		return
	}

	// Partial days count as a full remaining day.
	s.DaysRemaining = int((remaining + 24*time.Hour - 1) / (24 * time.Hour))
}

// Unlimited reports whether the snapshot carries no call budget.
func (s Subscription) Unlimited() bool {
	return s.Limit == UnlimitedCalls
}

// User holds the identity and entitlement view of the authenticated account.
type User struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Active      bool     `json:"active"`

	// Capability flags are granted independently of roles and are not
	// returned by every endpoint; merges must preserve the local value
	// when a response omits them.
	CanUseAPI       bool `json:"canUseApi"`
	CanBatchProcess bool `json:"canBatchProcess"`

	Subscription *Subscription `json:"subscription,omitempty"`
}

// HasRole reports whether the user carries the given role.
func (u User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Record is the durable session state persisted across process restarts.
// Field names match the storage schema exactly and must not change.
type Record struct {
	Authenticated bool   `json:"isAuthenticated"`
	User          User   `json:"user"`
	Token         string `json:"token"`
	TokenExpMs    int64  `json:"tokenExpMs"`
}

// Valid reports whether the record is structurally usable and unexpired.
// An invalid record is treated as absent by the storage layer.
func (r Record) Valid(now time.Time) bool {
	if !r.Authenticated || r.Token == "" || r.User.ID == "" {
		return false
	}
	return r.TokenExpMs > now.UnixMilli()
}

// Expiry returns the token expiry as a time.Time.
func (r Record) Expiry() time.Time {
	return time.UnixMilli(r.TokenExpMs)
}

// AuthorizeResponse carries the server's view of the current token holder.
// Optional fields are pointers so a merge can distinguish "omitted" from
// "explicitly false".
type AuthorizeResponse struct {
	ID          string
	DisplayName string
	Email       string
	Roles       []string
	Active      *bool

	CanUseAPI       *bool
	CanBatchProcess *bool
	Subscription    *Subscription

	// ExpUnix is the token expiry in unix seconds, 0 when not reported.
	ExpUnix int64
}

// LoginResponse is the outcome of a credential exchange.
type LoginResponse struct {
	Token    string
	User     User
	Inactive bool

	// ExpUnix is the token expiry in unix seconds when the login payload
	// carries one, 0 otherwise.
	ExpUnix int64
}

// MergeProbe reconciles a fresh authorize response into the user.
// Precedence: fresh identity fields and roles win; capability flags and
// the subscription snapshot keep their local values when the response
// omits them.
func (u User) MergeProbe(resp AuthorizeResponse) User {
	merged := u

	if resp.ID != "" {
		merged.ID = resp.ID
	}
	if resp.DisplayName != "" {
		merged.DisplayName = resp.DisplayName
	}
	if resp.Email != "" {
		merged.Email = resp.Email
	}
	if resp.Roles != nil {
		merged.Roles = resp.Roles
	}
	if resp.Active != nil {
		merged.Active = *resp.Active
	}

	if resp.CanUseAPI != nil {
		merged.CanUseAPI = *resp.CanUseAPI
	}
	if resp.CanBatchProcess != nil {
		merged.CanBatchProcess = *resp.CanBatchProcess
	}
	if resp.Subscription != nil {
		sub := *resp.Subscription
		merged.Subscription = &sub
	}

	return merged
}

// AuditEvent is the fire-and-forget payload sent to the audit sink.
type AuditEvent struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	At         time.Time      `json:"at"`
}
