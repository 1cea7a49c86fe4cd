package context

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// TraceContext correlates log lines of one request.
type TraceContext struct {
	TraceID   string
	SpanID    string
	RequestID string
}

type traceContextKey struct{}

// WithTrace adds TraceContext to context.
func WithTrace(ctx context.Context, tc *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, tc)
}

// GetTrace returns TraceContext from context.
func GetTrace(ctx context.Context) *TraceContext {
	if v, ok := ctx.Value(traceContextKey{}).(*TraceContext); ok {
		return v
	}
	return nil
}

// NewTraceContext takes ids from span when it is recording into a real
// provider. Otherwise the caller's trace id is kept, or a fresh one minted.
// An empty requestID is replaced as well.
func NewTraceContext(span trace.SpanContext, traceID, requestID string) *TraceContext {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	tc := &TraceContext{RequestID: requestID}
	if span.IsValid() {
		tc.TraceID = span.TraceID().String()
		tc.SpanID = span.SpanID().String()
		return tc
	}
	tc.TraceID = traceID
	if tc.TraceID == "" {
		tc.TraceID = uuid.NewString()
	}
	tc.SpanID = uuid.NewString()[:16]
	return tc
}
