// Package session implements the client-side session lifecycle: one
// consistent view of "is this user authenticated, with what identity and
// entitlements, for how much longer" under concurrent pressure from
// timers, focus events, cross-instance storage changes, and
// HTTP-failure reactions.
//
// The Manager is the orchestrator. It caches the durable Record held by
// a Store, drives an API client, and serializes every state mutation
// through a Guard: an explicit phase machine (idle / logging-out) with a
// liveness bit and an epoch counter. Asynchronous completions commit
// their results through Guard.Commit, which re-checks all three at the
// resumption point, so a probe or refresh that started before a logout
// can never repopulate cleared state.
//
//	api := authapi.New(baseURL)
//	store, _ := sessionstore.NewFileStore(dir)
//
//	mgr := session.NewManager(api, store,
//		session.WithLogger(log),
//	)
//	api.BindHooks(mgr)
//
//	go mgr.Start(ctx)
//	defer mgr.Close()
//
//	result, err := mgr.Login(ctx, "user@example.com", secret)
//
// Three independent cadences run while authenticated: a local expiry
// check (default 2m), a server-side token probe (default 30m), and an
// entitlement refresh (default 12h). Focus regained triggers a debounced
// probe+refresh; storage changes from sibling instances replace local
// state wholesale, which is how a logout in one instance propagates to
// the others without their own network calls.
package session
