package logger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	appctx "okrtrack/internal/core/context"
	"okrtrack/internal/core/tenant"
)

func observed() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return &Logger{zap.New(core).Sugar()}, logs
}

func TestWithContext_AddsScope(t *testing.T) {
	l, logs := observed()
	org := uuid.New()

	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "u-1"})
	ctx = tenant.WithScope(ctx, tenant.Scope{OrganizationID: org})
	ctx = WithLogger(ctx, l)

	Info(ctx, "hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "u-1", fields["user_id"])
	assert.Equal(t, org.String(), fields["organization_id"])
	assert.NotContains(t, fields, "system_owner")
}

func TestWithContext_ActingOwner(t *testing.T) {
	l, logs := observed()
	org := uuid.New()
	ctx := tenant.WithScope(context.Background(), tenant.Scope{OrganizationID: org, ActingOwner: true})

	l.WithContext(ctx).Info("owner on slug route")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, true, fields["acting_owner"])
	assert.NotContains(t, fields, "system_owner")
}

func TestWithContext_NoScope(t *testing.T) {
	l, logs := observed()
	ctx := WithLogger(context.Background(), l)

	Warn(ctx, "anonymous")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.NotContains(t, fields, "organization_id")
	assert.NotContains(t, fields, "user_id")
}

func TestWithComponent(t *testing.T) {
	l, logs := observed()
	l.WithComponent("rls").Infow("installed")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "rls", logs.All()[0].ContextMap()["component"])
}

func TestNew_BadLevelFallsBackToInfo(t *testing.T) {
	l, err := New(Config{Level: "loud", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)
	assert.False(t, l.Desugar().Core().Enabled(zap.DebugLevel))
	assert.True(t, l.Desugar().Core().Enabled(zap.InfoLevel))
}
