package logger

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/accounts/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAttachesRequestFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithOrgID(ctx, "org-uuid")
	ctx = obscontext.WithActor(ctx, "user", "user-uuid")
	WithContext(ctx, zap.New(core)).Info("charge created")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "org-uuid", fields["org_uuid"])
	assert.Equal(t, "user-uuid", fields["user_uuid"])
	assert.NotContains(t, fields, "actor_kind")
}

func TestWithContextNonUserActor(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	ctx := obscontext.WithActor(context.Background(), "webhook", "stripe")
	WithContext(ctx, zap.New(core)).Info("event")

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "webhook", fields["actor_kind"])
	assert.Equal(t, "stripe", fields["actor_id"])
}

func TestZapConfigRejectsUnknownLevel(t *testing.T) {
	_, err := zapConfig(Config{Level: "loud"})
	require.Error(t, err)

	cfg, err := zapConfig(Config{Format: "console"})
	require.NoError(t, err)
	assert.Equal(t, "console", cfg.Encoding)
}
