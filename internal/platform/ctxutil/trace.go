// Package ctxutil carries per-request correlation ids across goroutine and
// job boundaries where the HTTP framework's context does not reach.
package ctxutil

import "context"

type traceDataKey struct{}

// TraceData holds the ids propagated from inbound headers into job payloads
// and log lines.
type TraceData struct {
	TraceID   string
	RequestID string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if ctx == nil {
		return nil
	}
	td, _ := ctx.Value(traceDataKey{}).(*TraceData)
	return td
}
