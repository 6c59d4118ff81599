// Package logging is the logger every rtmp-auth component receives. Each
// component tags its records with a "module" attribute via With.
package logging

import "context"

// Logger writes leveled records with alternating key/value attributes:
//
//	logger.Warn(ctx, "publish rejected", "stream", "live/main", "reason", err)
type Logger interface {
	// Debug is for per-request detail such as each callback.
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a Logger that adds args to every record.
	With(args ...any) Logger
}
