package logger

import (
	"log/slog"
	"time"
)

// Attribute helpers follow the empty Attr pattern for nil safety:
// logger.Error(nil) yields an attribute slog silently drops, so call
// sites never need explicit nil checks.

// Error creates an attribute for a single error under the key "error".
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component identifies the subsystem emitting the record.
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Event names the lifecycle event being logged.
func Event(name string) slog.Attr {
	return slog.String("event", name)
}

// UserID attaches the acting user's identifier.
func UserID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("user_id", id)
}

// Endpoint attaches the request path of an HTTP exchange.
func Endpoint(path string) slog.Attr {
	return slog.String("endpoint", path)
}

// Status attaches an HTTP status code.
func Status(code int) slog.Attr {
	return slog.Int("status", code)
}

// Duration creates an attribute for a duration.
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Elapsed calculates and logs the duration since the start time.
func Elapsed(start time.Time) slog.Attr {
	return slog.Duration("elapsed", time.Since(start))
}
