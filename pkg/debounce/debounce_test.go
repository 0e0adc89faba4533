package debounce_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessionkit/pkg/debounce"
)

func TestDebouncer_SingleTrigger(t *testing.T) {
	t.Parallel()

	var fired atomic.Int32
	d := debounce.New(20*time.Millisecond, func() {
		fired.Add(1)
	})
	defer d.Stop()

	d.Trigger()

	require.Eventually(t, func() bool {
		return fired.Load() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestDebouncer_BurstCollapsesToOne(t *testing.T) {
	t.Parallel()

	var fired atomic.Int32
	d := debounce.New(50*time.Millisecond, func() {
		fired.Add(1)
	})
	defer d.Stop()

	for i := 0; i < 10; i++ {
		d.Trigger()
		time.Sleep(2 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return fired.Load() == 1
	}, time.Second, 5*time.Millisecond)

	// No second fire after the burst settles.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	t.Parallel()

	var fired atomic.Int32
	d := debounce.New(30*time.Millisecond, func() {
		fired.Add(1)
	})

	d.Trigger()
	d.Stop()

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestDebouncer_TriggerAfterStopIsNoop(t *testing.T) {
	t.Parallel()

	var fired atomic.Int32
	d := debounce.New(10*time.Millisecond, func() {
		fired.Add(1)
	})

	d.Stop()
	d.Trigger()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
	assert.False(t, d.Pending())
}
