//go:build integration

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditgov/pkg/testutil/containers"
)

func TestDedupeGuard(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	ctx := context.Background()
	require.NoError(t, rc.Reset(ctx))
	require.NoError(t, rc.Client.Health(ctx))
	guard := NewDedupeGuard(rc.Client.Client)

	ok, err := guard.Acquire(ctx, "tenant:deadline_reminder_1d:obs:2026-02-10", 25*time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = guard.Acquire(ctx, "tenant:deadline_reminder_1d:obs:2026-02-10", 25*time.Hour)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire on the same day is refused")

	require.NoError(t, guard.Release(ctx, "tenant:deadline_reminder_1d:obs:2026-02-10"))
	ok, err = guard.Acquire(ctx, "tenant:deadline_reminder_1d:obs:2026-02-10", 25*time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "released keys can be taken again")
}
