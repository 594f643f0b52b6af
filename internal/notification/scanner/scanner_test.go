package scanner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"auditgov/internal/notification/models"
	"auditgov/internal/notification/service"
	"auditgov/internal/notification/store/memory"
	id "auditgov/pkg/domain"
	"auditgov/pkg/testutil"
)

type staticSource struct {
	items []Item
	err   error
}

func (s *staticSource) ListOpenAssigned(context.Context) ([]Item, error) {
	return s.items, s.err
}

type failingEnqueuer struct{}

func (failingEnqueuer) EnqueueReminder(context.Context, models.EnqueueRequest) (bool, error) {
	return false, errors.New("queue unavailable")
}

type ScannerSuite struct {
	suite.Suite
	store   *memory.InMemoryStore
	source  *staticSource
	scanner *Scanner
	tenant  id.TenantID
	monday  time.Time
}

func TestScannerSuite(t *testing.T) {
	suite.Run(t, new(ScannerSuite))
}

func (s *ScannerSuite) SetupTest() {
	s.store = memory.New()
	svc, err := service.New(s.store)
	s.Require().NoError(err)
	s.source = &staticSource{}
	s.scanner, err = New(s.source, svc,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithDigestWeekday(time.Monday),
	)
	s.Require().NoError(err)
	s.tenant = testutil.NewTenant()
	s.monday = time.Date(2026, 10, 5, 6, 30, 0, 0, time.UTC)
}

func (s *ScannerSuite) item(dueInDays int) Item {
	due := s.monday.AddDate(0, 0, dueInDays)
	return Item{
		ObservationID: id.NewObservationID(),
		TenantID:      s.tenant,
		Title:         "Dormant account reactivation without KYC",
		Severity:      "HIGH",
		Status:        "ISSUED",
		AssigneeID:    testutil.NewActor(s.tenant).ID,
		CreatorID:     testutil.NewActor(s.tenant).ID,
		DueDate:       &due,
	}
}

func (s *ScannerSuite) intentsOf(typ models.Type) []*models.Intent {
	var out []*models.Intent
	for _, intent := range s.store.List() {
		if intent.Type == typ {
			out = append(out, intent)
		}
	}
	return out
}

func (s *ScannerSuite) TestDeadlineReminders() {
	tuesday := s.monday.AddDate(0, 0, 1)
	in7, in3, in1, in5 := s.item(8), s.item(4), s.item(2), s.item(6)
	s.source.items = []Item{in7, in3, in1, in5}

	res, err := s.scanner.Scan(context.Background(), tuesday)
	s.Require().NoError(err)
	s.Equal(3, res.Reminders)
	s.Zero(res.Digests, "not the digest weekday")

	for typ, item := range map[models.Type]Item{
		models.TypeDeadlineReminder7d: in7,
		models.TypeDeadlineReminder3d: in3,
		models.TypeDeadlineReminder1d: in1,
	} {
		intents := s.intentsOf(typ)
		s.Require().Len(intents, 1, typ)
		s.Equal(item.AssigneeID, intents[0].RecipientID)
		s.Equal(item.ObservationID, intents[0].Payload.ObservationID)
		s.Equal("2026-10-06", intents[0].DedupeDay)
		s.Empty(intents[0].BatchKey)
	}
}

func (s *ScannerSuite) TestOverdueEscalatesToCreator() {
	late := s.item(-3)
	dueToday := s.item(1)
	s.source.items = []Item{late, dueToday}

	res, err := s.scanner.Scan(context.Background(), s.monday.AddDate(0, 0, 1))
	s.Require().NoError(err)
	s.Equal(1, res.Escalations)

	intents := s.intentsOf(models.TypeOverdueEscalation)
	s.Require().Len(intents, 1)
	s.Equal(late.CreatorID, intents[0].RecipientID)
	s.Equal(4, intents[0].Payload.DaysOverdue)
}

func (s *ScannerSuite) TestWeeklyDigestBatchesPerAssignee() {
	a, b := s.item(30), s.item(40)
	b.AssigneeID = a.AssigneeID
	c := s.item(50)
	s.source.items = []Item{a, b, c}

	res, err := s.scanner.Scan(context.Background(), s.monday)
	s.Require().NoError(err)
	s.Equal(3, res.Digests)

	want := DigestBatchKey(s.tenant, a.AssigneeID, "2026-W41")
	var shared int
	for _, intent := range s.intentsOf(models.TypeWeeklyDigest) {
		if intent.BatchKey == want {
			shared++
		}
		s.True(intent.SendAfter.After(s.monday), "batched intents wait out the window")
	}
	s.Equal(2, shared)
}

func (s *ScannerSuite) TestRepeatedScanSameDayIsDeduplicated() {
	s.source.items = []Item{s.item(7), s.item(-1)}
	ctx := context.Background()

	first, err := s.scanner.Scan(ctx, s.monday)
	s.Require().NoError(err)
	s.Equal(4, first.Total(), "reminder, escalation and two digests")

	second, err := s.scanner.Scan(ctx, s.monday.Add(3*time.Hour))
	s.Require().NoError(err)
	s.Zero(second.Total())
	s.Equal(4, second.Duplicates)
	s.Len(s.store.List(), 4)

	next, err := s.scanner.Scan(ctx, s.monday.AddDate(0, 0, 1))
	s.Require().NoError(err)
	s.Equal(1, next.Escalations, "a new calendar day escalates again")
}

func (s *ScannerSuite) TestSourceFailure() {
	s.source.err = errors.New("connection reset")
	_, err := s.scanner.Scan(context.Background(), s.monday)
	s.Error(err)
}

func TestScanJoinsProducerErrors(t *testing.T) {
	due := time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)
	tenant := testutil.NewTenant()
	source := &staticSource{items: []Item{{
		ObservationID: id.NewObservationID(),
		TenantID:      tenant,
		AssigneeID:    testutil.NewActor(tenant).ID,
		CreatorID:     testutil.NewActor(tenant).ID,
		DueDate:       &due,
	}}}
	sc, err := New(source, failingEnqueuer{}, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	_, err = sc.Scan(context.Background(), time.Date(2026, 10, 5, 12, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadline scan")
	assert.Contains(t, err.Error(), "digest scan")
}

func TestDaysBetween(t *testing.T) {
	now := time.Date(2026, 10, 5, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, 1, DaysBetween(now, time.Date(2026, 10, 6, 0, 1, 0, 0, time.UTC)))
	assert.Equal(t, 0, DaysBetween(now, time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, -2, DaysBetween(now, time.Date(2026, 10, 3, 12, 0, 0, 0, time.UTC)))
}

func TestISOWeek(t *testing.T) {
	assert.Equal(t, "2026-W41", ISOWeek(time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2026-W53", ISOWeek(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestParseWeekday(t *testing.T) {
	d, err := ParseWeekday(" friday ")
	require.NoError(t, err)
	assert.Equal(t, time.Friday, d)
	_, err = ParseWeekday("someday")
	assert.Error(t, err)
}
