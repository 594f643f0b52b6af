package sender

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditgov/internal/notification/models"
	id "auditgov/pkg/domain"
	dErrors "auditgov/pkg/domain-errors"
	"auditgov/pkg/platform/circuit"
	"auditgov/pkg/testutil"
)

type recordingPublisher struct {
	topic   string
	key     []byte
	value   []byte
	headers map[string]string
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, key, value []byte, headers map[string]string) error {
	p.topic, p.key, p.value, p.headers = topic, key, value, headers
	return p.err
}

type countingSender struct {
	calls int
	err   error
}

func (s *countingSender) Send(context.Context, models.Message) error {
	s.calls++
	return s.err
}

func message() models.Message {
	tenant := testutil.NewTenant()
	return models.Message{
		IntentIDs:   []id.IntentID{id.NewIntentID(), id.NewIntentID()},
		TenantID:    tenant,
		RecipientID: testutil.NewActor(tenant).ID,
		Type:        models.TypeBulkDigest,
		Subject:     "Weekly summary: 2 open observation(s)",
		Body:        "...",
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestKafkaSender(t *testing.T) {
	msg := message()

	t.Run("publishes JSON keyed by recipient", func(t *testing.T) {
		pub := &recordingPublisher{}
		require.NoError(t, NewKafkaSender(pub, "governance.notifications").Send(context.Background(), msg))

		assert.Equal(t, "governance.notifications", pub.topic)
		assert.Equal(t, msg.RecipientID.String(), string(pub.key))
		assert.Equal(t, "bulk_digest", pub.headers["notification_type"])

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(pub.value, &decoded))
		assert.Equal(t, msg.Subject, decoded["subject"])
		assert.Equal(t, msg.TenantID.String(), decoded["tenant_id"])
		assert.Len(t, decoded["intent_ids"], 2)
	})

	t.Run("publish failure is transient", func(t *testing.T) {
		pub := &recordingPublisher{err: errors.New("broker not available")}
		err := NewKafkaSender(pub, "t").Send(context.Background(), msg)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeTransientDelivery))
	})
}

func TestBreakerSender(t *testing.T) {
	ctx := context.Background()
	inner := &countingSender{err: dErrors.New(dErrors.CodeTransientDelivery, "gateway down")}
	clock := time.Date(2026, 10, 5, 9, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }
	breaker := circuit.New("notifications",
		circuit.WithFailureThreshold(2),
		circuit.WithSuccessThreshold(1),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(now),
	)
	s := NewBreakerSender(inner, breaker, discard())
	s.now = now

	assert.Error(t, s.Send(ctx, message()))
	assert.Error(t, s.Send(ctx, message()))
	require.True(t, breaker.IsOpen())

	err := s.Send(ctx, message())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTransientDelivery))
	assert.Contains(t, dErrors.MessageOf(err), "circuit")
	assert.Equal(t, 2, inner.calls, "open circuit does not reach the gateway")

	inner.err = nil
	clock = clock.Add(2 * time.Minute)
	require.NoError(t, s.Send(ctx, message()))
	assert.Equal(t, 3, inner.calls)
	assert.False(t, breaker.IsOpen())
}

func TestLogSender(t *testing.T) {
	assert.NoError(t, NewLogSender(discard()).Send(context.Background(), message()))
}
