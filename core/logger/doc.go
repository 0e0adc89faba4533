// Package logger provides structured logging built on Go's standard slog
// package: a factory with environment presets and nil-safe attribute
// helpers for common fields.
//
//	log := logger.New(
//		logger.WithProduction("myapp"),
//	)
//
//	log.Info("session established",
//		logger.Component("session"),
//		logger.UserID(user.ID),
//	)
//
// Helpers return an empty slog.Attr for nil/zero input, which slog drops,
// so calls like logger.Error(err) are safe without nil checks.
package logger
