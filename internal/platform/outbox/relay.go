// Package outbox relays committed outbox rows to Kafka. Rows are written by
// the audit store in the same transaction as the change they record.
package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Publisher is the Kafka side of the relay.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// Relay polls unprocessed outbox rows and publishes them in creation order.
type Relay struct {
	db        *sql.DB
	publisher Publisher
	topic     string
	batchSize int
	interval  time.Duration
	logger    *slog.Logger
	metrics   *Metrics
	now       func() time.Time
}

type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) { r.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) { r.interval = d }
}

func WithBatchSize(n int) Option {
	return func(r *Relay) { r.batchSize = n }
}

func New(db *sql.DB, publisher Publisher, topic string, opts ...Option) *Relay {
	r := &Relay{
		db:        db,
		publisher: publisher,
		topic:     topic,
		batchSize: 100,
		interval:  2 * time.Second,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run relays until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.ErrorContext(ctx, "outbox relay pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

type row struct {
	id          string
	aggregateID string
	eventType   string
	payload     []byte
}

// RunOnce publishes one batch. Rows are locked with SKIP LOCKED so several
// relays can run side by side; a row is marked processed only after Kafka
// acknowledged it.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin outbox tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, aggregate_id, event_type, payload
		FROM outbox
		WHERE processed_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("select outbox rows: %w", err)
	}
	var batch []row
	for rows.Next() {
		var rw row
		if err := rows.Scan(&rw.id, &rw.aggregateID, &rw.eventType, &rw.payload); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan outbox row: %w", err)
		}
		batch = append(batch, rw)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate outbox rows: %w", err)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	published := make([]string, 0, len(batch))
	for _, rw := range batch {
		if err := r.publish(ctx, rw); err != nil {
			r.metrics.incFailed()
			r.logger.ErrorContext(ctx, "outbox publish failed",
				"outbox_id", rw.id,
				"event_type", rw.eventType,
				"error", err,
			)
			// Keep order: stop at the first row that could not be published.
			break
		}
		published = append(published, rw.id)
	}

	if len(published) > 0 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE outbox SET processed_at = $1 WHERE id = ANY($2::uuid[])`,
			r.now(), pq.Array(published)); err != nil {
			return 0, fmt.Errorf("mark outbox rows processed: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit outbox tx: %w", err)
	}
	r.metrics.addPublished(len(published))
	return len(published), nil
}

func (r *Relay) publish(ctx context.Context, rw row) error {
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2)
	return backoff.Retry(func() error {
		return r.publisher.Publish(ctx, r.topic, []byte(rw.aggregateID), rw.payload, map[string]string{
			"event_type": rw.eventType,
			"outbox_id":  rw.id,
		})
	}, backoff.WithContext(policy, ctx))
}

// Metrics counts relay outcomes.
type Metrics struct {
	Published prometheus.Counter
	Failed    prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		Published: promauto.NewCounter(prometheus.CounterOpts{
			Name: "auditgov_outbox_published_total",
			Help: "Outbox rows published to Kafka",
		}),
		Failed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "auditgov_outbox_publish_failures_total",
			Help: "Outbox rows that could not be published after retries",
		}),
	}
}

func (m *Metrics) addPublished(n int) {
	if m == nil {
		return
	}
	m.Published.Add(float64(n))
}

func (m *Metrics) incFailed() {
	if m == nil {
		return
	}
	m.Failed.Inc()
}
