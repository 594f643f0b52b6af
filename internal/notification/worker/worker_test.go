package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"auditgov/internal/notification/metrics"
	"auditgov/internal/notification/models"
	"auditgov/internal/notification/render"
	"auditgov/internal/notification/store/memory"
	id "auditgov/pkg/domain"
	dErrors "auditgov/pkg/domain-errors"
	"auditgov/pkg/testutil"
)

type fakeSender struct {
	mu       sync.Mutex
	messages []models.Message
	err      error
	block    bool
}

func (s *fakeSender) Send(ctx context.Context, msg models.Message) error {
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, msg)
	return nil
}

func (s *fakeSender) sent() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.messages...)
}

type WorkerSuite struct {
	suite.Suite
	store   *memory.InMemoryStore
	sender  *fakeSender
	metrics *metrics.Metrics
	clock   time.Time
	worker  *Worker
	tenant  id.TenantID
}

func TestWorkerSuite(t *testing.T) {
	suite.Run(t, new(WorkerSuite))
}

func (s *WorkerSuite) SetupTest() {
	s.store = memory.New()
	s.sender = &fakeSender{}
	s.metrics = metrics.NewWithRegistry(prometheus.NewRegistry())
	s.clock = time.Date(2026, 10, 5, 9, 0, 0, 0, time.UTC)
	s.tenant = testutil.NewTenant()
	s.worker = s.newWorker()
}

func (s *WorkerSuite) newWorker(opts ...Option) *Worker {
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithClock(func() time.Time { return s.clock }),
		WithAttemptTimeout(50 * time.Millisecond),
	}
	w, err := New(s.store, render.New(), s.sender, append(base, opts...)...)
	s.Require().NoError(err)
	return w
}

func (s *WorkerSuite) enqueue(typ models.Type, recipient id.ActorID, batchKey string) *models.Intent {
	intent := &models.Intent{
		ID:          id.NewIntentID(),
		TenantID:    s.tenant,
		RecipientID: recipient,
		Type:        typ,
		Payload: models.Payload{
			ObservationID: id.NewObservationID(),
			Title:         "Cash vault dual control lapsed",
			Severity:      "HIGH",
			Status:        "ISSUED",
		},
		Status:    models.StatusPending,
		SendAfter: s.clock,
		BatchKey:  batchKey,
		CreatedAt: s.clock,
		UpdatedAt: s.clock,
	}
	s.Require().NoError(s.store.Create(context.Background(), intent))
	return intent
}

func (s *WorkerSuite) reload(intentID id.IntentID) *models.Intent {
	intent, err := s.store.FindByID(context.Background(), intentID)
	s.Require().NoError(err)
	return intent
}

func (s *WorkerSuite) TestNew() {
	_, err := New(nil, render.New(), s.sender)
	s.Error(err)
	_, err = New(s.store, render.New(), s.sender, WithAttemptTimeout(time.Minute), WithLeaseTimeout(time.Second))
	s.Error(err, "lease shorter than an attempt would reclaim in-flight sends")
}

func (s *WorkerSuite) TestDeliversIndividualIntent() {
	ctx := context.Background()
	recipient := testutil.NewActor(s.tenant).ID
	intent := s.enqueue(models.TypeAssignment, recipient, "")

	res, err := s.worker.ProcessOnce(ctx)
	s.Require().NoError(err)
	s.Equal(1, res.Claimed)
	s.Equal(1, res.Sent)

	sent := s.sender.sent()
	s.Require().Len(sent, 1)
	s.Equal(models.TypeAssignment, sent[0].Type)
	s.Equal(recipient, sent[0].RecipientID)
	s.Contains(sent[0].Subject, "Cash vault dual control lapsed")

	got := s.reload(intent.ID)
	s.Equal(models.StatusSent, got.Status)
	delivery, ok := s.store.Delivery(got.DeliveryID)
	s.Require().True(ok)
	s.Equal(1, delivery.IntentCount)
	s.Equal(ContentHash(render.Content{Subject: sent[0].Subject, Body: sent[0].Body}), delivery.ContentHash)
	s.Len(delivery.ContentHash, 64)
}

func (s *WorkerSuite) TestBatchDeliveredAsOneMessage() {
	ctx := context.Background()
	recipient := testutil.NewActor(s.tenant).ID
	other := testutil.NewActor(s.tenant).ID
	a := s.enqueue(models.TypeWeeklyDigest, recipient, "digest:w41")
	b := s.enqueue(models.TypeWeeklyDigest, recipient, "digest:w41")
	c := s.enqueue(models.TypeWeeklyDigest, recipient, "digest:w41")
	s.enqueue(models.TypeWeeklyDigest, other, "digest:w41")

	res, err := s.worker.ProcessOnce(ctx)
	s.Require().NoError(err)
	s.Equal(4, res.Sent)
	s.Equal(2, res.Deliveries)

	var bulk *models.Message
	for _, m := range s.sender.sent() {
		if m.RecipientID == recipient {
			bulk = &m
		}
	}
	s.Require().NotNil(bulk)
	s.Equal(models.TypeBulkDigest, bulk.Type)
	s.ElementsMatch([]id.IntentID{a.ID, b.ID, c.ID}, bulk.IntentIDs)

	deliveryID := s.reload(a.ID).DeliveryID
	s.Equal(deliveryID, s.reload(b.ID).DeliveryID)
	s.Equal(deliveryID, s.reload(c.ID).DeliveryID)
	delivery, ok := s.store.Delivery(deliveryID)
	s.Require().True(ok)
	s.Equal(3, delivery.IntentCount)
}

func (s *WorkerSuite) TestBatchFailureIsUniform() {
	ctx := context.Background()
	recipient := testutil.NewActor(s.tenant).ID
	a := s.enqueue(models.TypeResponseReceived, recipient, "responses:x")
	b := s.enqueue(models.TypeResponseReceived, recipient, "responses:x")
	s.sender.err = dErrors.New(dErrors.CodeTransientDelivery, "gateway down")

	res, err := s.worker.ProcessOnce(ctx)
	s.Require().NoError(err)
	s.Equal(2, res.Retried)

	for _, intentID := range []id.IntentID{a.ID, b.ID} {
		got := s.reload(intentID)
		s.Equal(models.StatusPending, got.Status)
		s.Equal(1, got.RetryCount)
		s.Equal(s.clock.Add(2*time.Minute), got.SendAfter)
		s.Contains(got.LastError, "gateway down")
	}
}

func (s *WorkerSuite) TestThreeAttemptsThenFailed() {
	ctx := context.Background()
	intent := s.enqueue(models.TypeOverdueEscalation, testutil.NewActor(s.tenant).ID, "")
	s.sender.err = errors.New("smtp relay refused")
	start := s.clock

	_, err := s.worker.ProcessOnce(ctx)
	s.Require().NoError(err)
	got := s.reload(intent.ID)
	s.Equal(models.StatusPending, got.Status)
	s.Equal(start.Add(2*time.Minute), got.SendAfter)

	s.clock = start.Add(time.Minute)
	res, err := s.worker.ProcessOnce(ctx)
	s.Require().NoError(err)
	s.Zero(res.Claimed, "not due before backoff elapses")

	s.clock = got.SendAfter
	_, err = s.worker.ProcessOnce(ctx)
	s.Require().NoError(err)
	got = s.reload(intent.ID)
	s.Equal(models.StatusPending, got.Status)
	s.Equal(2, got.RetryCount)
	s.Equal(s.clock.Add(4*time.Minute), got.SendAfter, "backoff grows")

	s.clock = got.SendAfter
	res, err = s.worker.ProcessOnce(ctx)
	s.Require().NoError(err)
	s.Equal(1, res.Failed)
	got = s.reload(intent.ID)
	s.Equal(models.StatusFailed, got.Status)
	s.Equal(3, got.RetryCount)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.PermanentFailure.WithLabelValues(string(models.TypeOverdueEscalation))))

	s.clock = s.clock.Add(time.Hour)
	res, err = s.worker.ProcessOnce(ctx)
	s.Require().NoError(err)
	s.Zero(res.Claimed, "failed intents are never claimed again")
}

func (s *WorkerSuite) TestTimeoutCountsAsFailedAttempt() {
	intent := s.enqueue(models.TypeAssignment, testutil.NewActor(s.tenant).ID, "")
	s.sender.block = true

	res, err := s.worker.ProcessOnce(context.Background())
	s.Require().NoError(err)
	s.Equal(1, res.Retried)

	got := s.reload(intent.ID)
	s.Equal(models.StatusPending, got.Status)
	s.Equal(1, got.RetryCount)
	s.Contains(got.LastError, "deadline exceeded")
}

func (s *WorkerSuite) TestRenderFailureIsPermanent() {
	intent := s.enqueue(models.Type("fax"), testutil.NewActor(s.tenant).ID, "")

	res, err := s.worker.ProcessOnce(context.Background())
	s.Require().NoError(err)
	s.Equal(1, res.Failed)
	s.Empty(s.sender.sent())
	s.Equal(models.StatusFailed, s.reload(intent.ID).Status)
}

func (s *WorkerSuite) TestReclaimsExpiredClaims() {
	ctx := context.Background()
	intent := s.enqueue(models.TypeAssignment, testutil.NewActor(s.tenant).ID, "")

	claimed, err := s.store.ClaimDue(ctx, s.clock, 10)
	s.Require().NoError(err)
	s.Require().Len(claimed, 1)

	s.clock = s.clock.Add(5 * time.Minute)
	res, err := s.worker.ProcessOnce(ctx)
	s.Require().NoError(err)
	s.Zero(res.Reclaimed, "lease still held")
	s.Zero(res.Claimed)

	s.clock = s.clock.Add(6 * time.Minute)
	res, err = s.worker.ProcessOnce(ctx)
	s.Require().NoError(err)
	s.Equal(1, res.Reclaimed)
	s.Equal(1, res.Sent)

	got := s.reload(intent.ID)
	s.Equal(models.StatusSent, got.Status)
	s.Zero(got.RetryCount, "reclaim does not spend an attempt")
	s.Equal(1.0, promtest.ToFloat64(s.metrics.Reclaimed))
}

func (s *WorkerSuite) TestConcurrentWorkersNeverDoubleSend() {
	ctx := context.Background()
	for i := 0; i < 40; i++ {
		s.enqueue(models.TypeAssignment, testutil.NewActor(s.tenant).ID, "")
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		w := s.newWorker(WithBatchSize(7), WithConcurrency(3))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				_, err := w.ProcessOnce(ctx)
				assert.NoError(s.T(), err)
			}
		}()
	}
	wg.Wait()

	seen := make(map[id.IntentID]int)
	for _, m := range s.sender.sent() {
		for _, intentID := range m.IntentIDs {
			seen[intentID]++
		}
	}
	s.Len(seen, 40)
	for intentID, n := range seen {
		s.Equal(1, n, intentID.String())
	}
}

func (s *WorkerSuite) TestRunStopsOnCancel() {
	ctx, cancel := context.WithCancel(context.Background())
	w := s.newWorker(WithPollInterval(5 * time.Millisecond))
	s.enqueue(models.TypeAssignment, testutil.NewActor(s.tenant).ID, "")

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	s.Eventually(func() bool { return len(s.sender.sent()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	s.NoError(<-done)
}

func TestPartition(t *testing.T) {
	tenant := testutil.NewTenant()
	alice := testutil.NewActor(tenant).ID
	bob := testutil.NewActor(tenant).ID
	mk := func(recipient id.ActorID, key string) *models.Intent {
		return &models.Intent{ID: id.NewIntentID(), TenantID: tenant, RecipientID: recipient, BatchKey: key}
	}
	intents := []*models.Intent{
		mk(alice, "digest:w41"),
		mk(alice, ""),
		mk(bob, "digest:w41"),
		mk(alice, "digest:w41"),
		mk(alice, ""),
	}

	groups := Partition(intents)
	require.Len(t, groups, 4)
	assert.Len(t, groups[0].Intents, 2, "same recipient and key coalesce")
	assert.Same(t, intents[3], groups[0].Intents[1])
	assert.Len(t, groups[1].Intents, 1)
	assert.Len(t, groups[2].Intents, 1, "other recipient keeps its own batch")
	assert.Len(t, groups[3].Intents, 1, "unbatched intents are never merged")
}
