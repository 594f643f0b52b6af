package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	topic   string
	key     string
	headers map[string]string
}

type fakePublisher struct {
	mu     sync.Mutex
	sent   []published
	failOn string
}

func (p *fakePublisher) Publish(_ context.Context, topic string, key, _ []byte, headers map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if headers["outbox_id"] == p.failOn {
		return errors.New("broker unavailable")
	}
	p.sent = append(p.sent, published{topic: topic, key: string(key), headers: headers})
	return nil
}

var fixedNow = time.Date(2026, 10, 5, 9, 0, 0, 0, time.UTC)

func newRelay(t *testing.T, pub Publisher) (*Relay, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	r := New(db, pub, "audit.events",
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithBatchSize(10),
	)
	r.now = func() time.Time { return fixedNow }
	return r, mock
}

var outboxColumns = []string{"id", "aggregate_id", "event_type", "payload"}

const (
	rowA = "6f1c1c1e-8d1b-4f57-9a53-0a9e2b8f3a01"
	rowB = "6f1c1c1e-8d1b-4f57-9a53-0a9e2b8f3a02"
	obs  = "0b7f5b1a-2c43-4b8e-8a0a-61f0b4c9d111"
)

func TestRunOncePublishesAndMarksRows(t *testing.T) {
	pub := &fakePublisher{}
	relay, mock := newRelay(t, pub)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows(outboxColumns).
			AddRow(rowA, obs, "observation_created", []byte(`{"action":"observation_created"}`)).
			AddRow(rowB, obs, "observation_transitioned", []byte(`{"action":"observation_transitioned"}`)))
	mock.ExpectExec("UPDATE outbox SET processed_at").
		WithArgs(fixedNow, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, pub.sent, 2)
	assert.Equal(t, "audit.events", pub.sent[0].topic)
	assert.Equal(t, obs, pub.sent[0].key, "keyed by observation so one observation stays ordered")
	assert.Equal(t, "observation_created", pub.sent[0].headers["event_type"])
	assert.Equal(t, rowB, pub.sent[1].headers["outbox_id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunOnceEmptyBatch(t *testing.T) {
	relay, mock := newRelay(t, &fakePublisher{})
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").WillReturnRows(sqlmock.NewRows(outboxColumns))
	mock.ExpectRollback()

	n, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunOnceStopsAtFirstFailure(t *testing.T) {
	pub := &fakePublisher{failOn: rowA}
	relay, mock := newRelay(t, pub)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
		WillReturnRows(sqlmock.NewRows(outboxColumns).
			AddRow(rowA, obs, "observation_created", []byte(`{}`)).
			AddRow(rowB, obs, "observation_transitioned", []byte(`{}`)))
	mock.ExpectCommit()

	n, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, pub.sent, "later rows wait so ordering holds")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunOnceSelectError(t *testing.T) {
	relay, mock := newRelay(t, &fakePublisher{})
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").WillReturnError(errors.New("relation \"outbox\" does not exist"))
	mock.ExpectRollback()

	_, err := relay.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "select outbox rows")
}
