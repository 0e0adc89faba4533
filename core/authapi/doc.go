// Package authapi is the transport boundary of the session lifecycle:
// a typed client for the login/authorize/subscription/audit endpoints
// plus a response interceptor that turns observed status codes into
// session reactions.
//
// The client owns the outbound bearer attachment. SetToken and
// ClearToken swap it atomically, which keeps the attachment in lockstep
// with the session's durable token instead of leaving it as ambient
// global state.
//
//	api := authapi.New("https://api.example.com",
//		authapi.WithBillableEndpoints("/documents/validate"),
//	)
//	api.BindHooks(manager) // session.Manager implements authapi.Hooks
//
// Reactions: a 401 from any endpoint except /auth/login and
// /subscription/status escalates to Hooks.AuthFailure; a 429 or a
// quota-exhausted payload schedules an entitlement re-sync via
// Hooks.QuotaSignal; a successful call to a billable endpoint reports
// Hooks.BillableCall. Hook dispatch is asynchronous and never alters
// the response seen by the caller.
package authapi
