package context

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestUserID(t *testing.T) {
	ctx := context.Background()
	_, err := UserID(ctx)
	assert.ErrorIs(t, err, ErrNoUser)

	_, err = UserID(WithUser(ctx, &UserContext{UserID: "not-a-uuid"}))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoUser)

	id := uuid.New()
	got, err := UserID(WithUser(ctx, &UserContext{UserID: id.String()}))
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestNewTraceContext(t *testing.T) {
	t.Run("no span keeps header ids", func(t *testing.T) {
		tc := NewTraceContext(trace.SpanContext{}, "trace-1", "req-1")
		assert.Equal(t, "trace-1", tc.TraceID)
		assert.Equal(t, "req-1", tc.RequestID)
		assert.Len(t, tc.SpanID, 16)
	})

	t.Run("no span and no headers mints ids", func(t *testing.T) {
		tc := NewTraceContext(trace.SpanContext{}, "", "")
		assert.NotEmpty(t, tc.TraceID)
		assert.NotEmpty(t, tc.RequestID)
	})

	t.Run("valid span wins", func(t *testing.T) {
		sc := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID: trace.TraceID{1},
			SpanID:  trace.SpanID{2},
		})
		tc := NewTraceContext(sc, "ignored", "req-1")
		assert.Equal(t, sc.TraceID().String(), tc.TraceID)
		assert.Equal(t, sc.SpanID().String(), tc.SpanID)
	})

	ctx := WithTrace(context.Background(), &TraceContext{TraceID: "t"})
	assert.Equal(t, "t", GetTrace(ctx).TraceID)
}
