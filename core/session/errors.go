package session

import "errors"

var (
	// ErrNotAuthenticated is returned when an operation requires an active session.
	ErrNotAuthenticated = errors.New("session: not authenticated")
	// ErrLogoutInProgress is returned when an operation is refused because a logout is underway.
	ErrLogoutInProgress = errors.New("session: logout in progress")
	// ErrRefreshInFlight is returned when a subscription refresh is already outstanding.
	ErrRefreshInFlight = errors.New("session: subscription refresh already in flight")
	// ErrInactiveAccount is returned by Login when the account is under review.
	ErrInactiveAccount = errors.New("session: account is inactive")
	// ErrClosed is returned when the manager has been torn down.
	ErrClosed = errors.New("session: manager closed")
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("session: manager already started")
)
