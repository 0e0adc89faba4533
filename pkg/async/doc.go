// Package async provides small helpers for running functions on background
// goroutines: Run returns an awaitable Future, Fire detaches best-effort
// work behind its own timeout-bounded context.
//
//	f := async.Run(ctx, func(ctx context.Context) error {
//		return svc.Sync(ctx)
//	})
//	if err := f.AwaitWithTimeout(5 * time.Second); err != nil {
//		log.Warn("sync did not finish", "error", err)
//	}
//
//	// Fire-and-forget; result intentionally discarded.
//	async.Fire(3*time.Second, func(ctx context.Context) error {
//		return audit.Emit(ctx, event)
//	})
package async
