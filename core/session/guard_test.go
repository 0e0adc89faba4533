package session_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessionkit/core/session"
)

func beginLogout(t *testing.T, g *session.Guard) uint64 {
	t.Helper()
	epoch, ok := g.BeginLogout()
	require.True(t, ok)
	return epoch
}

func TestGuard_LogoutPhase(t *testing.T) {
	t.Parallel()

	t.Run("begin is exclusive", func(t *testing.T) {
		t.Parallel()

		g := session.NewGuard()
		epoch := beginLogout(t, g)
		_, ok := g.BeginLogout()
		assert.False(t, ok)
		assert.True(t, g.LoggingOut())

		g.EndLogout(epoch)
		assert.False(t, g.LoggingOut())
		_, ok = g.BeginLogout()
		assert.True(t, ok)
	})

	t.Run("concurrent begins admit exactly one", func(t *testing.T) {
		t.Parallel()

		g := session.NewGuard()

		const attempts = 32
		var wg sync.WaitGroup
		var mu sync.Mutex
		won := 0

		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, ok := g.BeginLogout(); ok {
					mu.Lock()
					won++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, won)
	})

	t.Run("reset clears a stuck phase", func(t *testing.T) {
		t.Parallel()

		g := session.NewGuard()
		beginLogout(t, g)

		g.Reset()
		assert.False(t, g.LoggingOut())
		_, ok := g.BeginLogout()
		assert.True(t, ok)
	})

	t.Run("stale grace release cannot lower a newer logout", func(t *testing.T) {
		t.Parallel()

		g := session.NewGuard()

		epochA := beginLogout(t, g)
		g.Reset() // a login happened inside A's grace window
		epochB := beginLogout(t, g)

		// A's grace timer fires late; B's phase must stay raised.
		g.EndLogout(epochA)
		assert.True(t, g.LoggingOut())

		g.EndLogout(epochB)
		assert.False(t, g.LoggingOut())
	})
}

func TestGuard_Commit(t *testing.T) {
	t.Parallel()

	t.Run("runs in same epoch", func(t *testing.T) {
		t.Parallel()

		g := session.NewGuard()
		epoch := g.Epoch()

		ran := false
		assert.True(t, g.Commit(epoch, func() { ran = true }))
		assert.True(t, ran)
	})

	t.Run("refuses a stale epoch", func(t *testing.T) {
		t.Parallel()

		g := session.NewGuard()
		epoch := g.Epoch()

		// Identity changed in between.
		g.Reset()

		ran := false
		assert.False(t, g.Commit(epoch, func() { ran = true }))
		assert.False(t, ran)
	})

	t.Run("refuses during logout", func(t *testing.T) {
		t.Parallel()

		g := session.NewGuard()
		epoch := g.Epoch()
		beginLogout(t, g)

		assert.False(t, g.Commit(epoch, func() {}))
	})

	t.Run("logout advances the epoch past EndLogout", func(t *testing.T) {
		t.Parallel()

		g := session.NewGuard()
		epoch := g.Epoch()

		logoutEpoch := beginLogout(t, g)
		g.EndLogout(logoutEpoch)

		// Idle again, but the pre-logout epoch stays unusable.
		assert.False(t, g.Commit(epoch, func() {}))
		assert.True(t, g.Commit(g.Epoch(), func() {}))
	})

	t.Run("refuses after shutdown", func(t *testing.T) {
		t.Parallel()

		g := session.NewGuard()
		epoch := g.Epoch()

		g.Shutdown()
		assert.False(t, g.Alive())
		assert.False(t, g.Commit(epoch, func() {}))
		assert.False(t, g.Commit(g.Epoch(), func() {}))
		_, ok := g.BeginLogout()
		assert.False(t, ok)
	})
}

func TestGuard_RefreshSlot(t *testing.T) {
	t.Parallel()

	t.Run("single flight", func(t *testing.T) {
		t.Parallel()

		g := session.NewGuard()
		require.True(t, g.TryRefresh())
		assert.False(t, g.TryRefresh())

		g.EndRefresh()
		assert.True(t, g.TryRefresh())
	})

	t.Run("unavailable during logout", func(t *testing.T) {
		t.Parallel()

		g := session.NewGuard()
		epoch := beginLogout(t, g)
		assert.False(t, g.TryRefresh())

		g.EndLogout(epoch)
		assert.True(t, g.TryRefresh())
	})

	t.Run("unavailable after shutdown", func(t *testing.T) {
		t.Parallel()

		g := session.NewGuard()
		g.Shutdown()
		assert.False(t, g.TryRefresh())
	})
}
