// Package attrs builds slog key-value lists for audit log lines.
package attrs

import (
	"context"

	"auditgov/pkg/requestcontext"
)

// LogTypeAudit marks a log line as part of the audit stream so log pipelines
// can route it apart from operational logs.
const LogTypeAudit = "audit"

// Lookup finds key in a [key1, value1, key2, value2, ...] list.
func Lookup(args []any, key string) (any, bool) {
	for i := 0; i+1 < len(args); i += 2 {
		if k, ok := args[i].(string); ok && k == key {
			return args[i+1], true
		}
	}
	return nil, false
}

// Audit appends the event name, the audit log type and the request id
// carried in ctx. A request_id already present in args wins.
func Audit(ctx context.Context, event string, args ...any) []any {
	out := make([]any, 0, len(args)+6)
	out = append(out, args...)
	if _, ok := Lookup(args, "request_id"); !ok {
		if requestID := requestcontext.RequestID(ctx); requestID != "" {
			out = append(out, "request_id", requestID)
		}
	}
	return append(out, "event", event, "log_type", LogTypeAudit)
}
