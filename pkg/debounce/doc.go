// Package debounce provides a resettable timer primitive for collapsing
// bursts of events into a single delayed action.
//
// Typical use is coalescing rapid focus/blur churn or repeated change
// notifications before kicking off expensive revalidation work:
//
//	d := debounce.New(2*time.Second, func() {
//		refresh()
//	})
//	defer d.Stop()
//
//	d.Trigger() // schedules refresh in 2s
//	d.Trigger() // resets the clock; refresh runs once, 2s after this call
package debounce
