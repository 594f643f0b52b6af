// Package memory is an in-process Observation store. Transactions stage
// their writes and apply them under one lock on commit, so a failed unit of
// work leaves nothing behind.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"auditgov/internal/observation/models"
	"auditgov/internal/observation/store"
	id "auditgov/pkg/domain"
	dErrors "auditgov/pkg/domain-errors"
	"auditgov/pkg/platform/sentinel"
)

// defaultTxTimeout is the maximum duration for an in-memory transaction.
const defaultTxTimeout = 5 * time.Second

type InMemoryStore struct {
	// txMu serializes units of work; mu guards the committed maps.
	txMu sync.Mutex
	mu   sync.RWMutex

	observations map[id.ObservationID]*models.Observation
	timeline     map[id.ObservationID][]models.TimelineEntry
	responses    map[id.ObservationID][]models.AuditeeResponse
	seq          int64
	timeout      time.Duration
}

func New() *InMemoryStore {
	return &InMemoryStore{
		observations: make(map[id.ObservationID]*models.Observation),
		timeline:     make(map[id.ObservationID][]models.TimelineEntry),
		responses:    make(map[id.ObservationID][]models.AuditeeResponse),
	}
}

// RunInTx stages every write fn makes and applies them together when fn
// returns nil.
func (s *InMemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, st store.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	timeout := s.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	tx := newTxStore(s)
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.apply(tx)
	return nil
}

func (s *InMemoryStore) apply(tx *txStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for obsID, obs := range tx.observations {
		s.observations[obsID] = obs
	}
	for _, e := range tx.timeline {
		s.seq++
		e.Seq = s.seq
		s.timeline[e.ObservationID] = append(s.timeline[e.ObservationID], e)
	}
	for _, r := range tx.responses {
		s.responses[r.ObservationID] = append(s.responses[r.ObservationID], r)
	}
}

// write runs a single operation as its own unit of work.
func (s *InMemoryStore) write(ctx context.Context, fn func(st store.Store) error) error {
	return s.RunInTx(ctx, func(_ context.Context, st store.Store) error {
		return fn(st)
	})
}

// reader returns a view with nothing staged.
func (s *InMemoryStore) reader() *txStore { return newTxStore(s) }

func (s *InMemoryStore) Create(ctx context.Context, obs *models.Observation) error {
	return s.write(ctx, func(st store.Store) error { return st.Create(ctx, obs) })
}

func (s *InMemoryStore) FindByID(ctx context.Context, tenantID id.TenantID, obsID id.ObservationID) (*models.Observation, error) {
	return s.reader().FindByID(ctx, tenantID, obsID)
}

func (s *InMemoryStore) UpdateIfVersion(ctx context.Context, obs *models.Observation, expectedVersion int) error {
	return s.write(ctx, func(st store.Store) error { return st.UpdateIfVersion(ctx, obs, expectedVersion) })
}

func (s *InMemoryStore) IncrementEvidence(ctx context.Context, tenantID id.TenantID, obsID id.ObservationID, limit int, now time.Time) (*models.Observation, error) {
	var out *models.Observation
	err := s.write(ctx, func(st store.Store) error {
		var err error
		out, err = st.IncrementEvidence(ctx, tenantID, obsID, limit, now)
		return err
	})
	return out, err
}

func (s *InMemoryStore) AppendTimeline(ctx context.Context, entries ...models.TimelineEntry) error {
	return s.write(ctx, func(st store.Store) error { return st.AppendTimeline(ctx, entries...) })
}

func (s *InMemoryStore) ListTimeline(ctx context.Context, tenantID id.TenantID, obsID id.ObservationID) ([]models.TimelineEntry, error) {
	return s.reader().ListTimeline(ctx, tenantID, obsID)
}

func (s *InMemoryStore) CreateResponse(ctx context.Context, resp *models.AuditeeResponse) error {
	return s.write(ctx, func(st store.Store) error { return st.CreateResponse(ctx, resp) })
}

func (s *InMemoryStore) ListResponses(ctx context.Context, tenantID id.TenantID, obsID id.ObservationID) ([]models.AuditeeResponse, error) {
	return s.reader().ListResponses(ctx, tenantID, obsID)
}

func (s *InMemoryStore) ListClosedInScope(ctx context.Context, tenantID id.TenantID, branchID id.BranchID, areaID id.AuditAreaID) ([]*models.Observation, error) {
	return s.reader().ListClosedInScope(ctx, tenantID, branchID, areaID)
}

func (s *InMemoryStore) CountClosedInScope(ctx context.Context, tenantID id.TenantID, branchID id.BranchID, areaID id.AuditAreaID) (int, error) {
	return s.reader().CountClosedInScope(ctx, tenantID, branchID, areaID)
}

func (s *InMemoryStore) ListOpenWithAssignee(ctx context.Context) ([]*models.Observation, error) {
	return s.reader().ListOpenWithAssignee(ctx)
}

// txStore overlays staged writes on the committed state.
type txStore struct {
	base         *InMemoryStore
	observations map[id.ObservationID]*models.Observation
	timeline     []models.TimelineEntry
	responses    []models.AuditeeResponse
}

func newTxStore(base *InMemoryStore) *txStore {
	return &txStore{
		base:         base,
		observations: make(map[id.ObservationID]*models.Observation),
	}
}

func clone(obs *models.Observation) *models.Observation {
	c := *obs
	return &c
}

func (t *txStore) lookup(obsID id.ObservationID) (*models.Observation, bool) {
	if obs, ok := t.observations[obsID]; ok {
		return obs, true
	}
	t.base.mu.RLock()
	defer t.base.mu.RUnlock()
	obs, ok := t.base.observations[obsID]
	return obs, ok
}

// snapshot returns every Observation as the transaction sees it.
func (t *txStore) snapshot() []*models.Observation {
	t.base.mu.RLock()
	out := make([]*models.Observation, 0, len(t.base.observations)+len(t.observations))
	for obsID, obs := range t.base.observations {
		if _, staged := t.observations[obsID]; !staged {
			out = append(out, obs)
		}
	}
	t.base.mu.RUnlock()
	for _, obs := range t.observations {
		out = append(out, obs)
	}
	return out
}

func (t *txStore) Create(_ context.Context, obs *models.Observation) error {
	if _, exists := t.lookup(obs.ID); exists {
		return sentinel.ErrAlreadyExists
	}
	t.observations[obs.ID] = clone(obs)
	return nil
}

func (t *txStore) FindByID(_ context.Context, tenantID id.TenantID, obsID id.ObservationID) (*models.Observation, error) {
	obs, ok := t.lookup(obsID)
	if !ok || obs.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	return clone(obs), nil
}

func (t *txStore) UpdateIfVersion(_ context.Context, obs *models.Observation, expectedVersion int) error {
	current, ok := t.lookup(obs.ID)
	if !ok || current.TenantID != obs.TenantID {
		return sentinel.ErrNotFound
	}
	if current.Version != expectedVersion {
		return sentinel.ErrConflict
	}
	if obs.Version != expectedVersion+1 {
		return fmt.Errorf("update must advance version by one: expected %d, got %d", expectedVersion+1, obs.Version)
	}
	t.observations[obs.ID] = clone(obs)
	return nil
}

func (t *txStore) IncrementEvidence(_ context.Context, tenantID id.TenantID, obsID id.ObservationID, limit int, now time.Time) (*models.Observation, error) {
	current, ok := t.lookup(obsID)
	if !ok || current.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	if current.EvidenceCount >= limit {
		return nil, sentinel.ErrLimitReached
	}
	next := clone(current)
	next.EvidenceCount++
	next.Version++
	next.UpdatedAt = now
	t.observations[obsID] = next
	return clone(next), nil
}

func (t *txStore) AppendTimeline(_ context.Context, entries ...models.TimelineEntry) error {
	t.timeline = append(t.timeline, entries...)
	return nil
}

func (t *txStore) ListTimeline(_ context.Context, tenantID id.TenantID, obsID id.ObservationID) ([]models.TimelineEntry, error) {
	t.base.mu.RLock()
	committed := t.base.timeline[obsID]
	out := make([]models.TimelineEntry, 0, len(committed)+len(t.timeline))
	for _, e := range committed {
		if e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	t.base.mu.RUnlock()
	for _, e := range t.timeline {
		if e.ObservationID == obsID && e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (t *txStore) CreateResponse(_ context.Context, resp *models.AuditeeResponse) error {
	t.responses = append(t.responses, *resp)
	return nil
}

func (t *txStore) ListResponses(_ context.Context, tenantID id.TenantID, obsID id.ObservationID) ([]models.AuditeeResponse, error) {
	t.base.mu.RLock()
	var out []models.AuditeeResponse
	for _, r := range t.base.responses[obsID] {
		if r.TenantID == tenantID {
			out = append(out, r)
		}
	}
	t.base.mu.RUnlock()
	for _, r := range t.responses {
		if r.ObservationID == obsID && r.TenantID == tenantID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *txStore) ListClosedInScope(_ context.Context, tenantID id.TenantID, branchID id.BranchID, areaID id.AuditAreaID) ([]*models.Observation, error) {
	var out []*models.Observation
	for _, obs := range t.snapshot() {
		if obs.TenantID == tenantID && obs.Status == models.StatusClosed &&
			obs.BranchID == branchID && obs.AuditAreaID == areaID {
			out = append(out, clone(obs))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *txStore) CountClosedInScope(ctx context.Context, tenantID id.TenantID, branchID id.BranchID, areaID id.AuditAreaID) (int, error) {
	closed, err := t.ListClosedInScope(ctx, tenantID, branchID, areaID)
	return len(closed), err
}

func (t *txStore) ListOpenWithAssignee(_ context.Context) ([]*models.Observation, error) {
	var out []*models.Observation
	for _, obs := range t.snapshot() {
		if obs.Status.IsOpen() && !obs.AssigneeID.IsNil() {
			out = append(out, clone(obs))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
