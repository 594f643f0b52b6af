package middleware

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditgov/internal/platform/metrics"
	id "auditgov/pkg/domain"
	dErrors "auditgov/pkg/domain-errors"
	"auditgov/pkg/requestcontext"
	"auditgov/pkg/testutil"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubValidator struct {
	actor id.Actor
	err   error
	token string
}

func (v *stubValidator) ValidateActor(token string) (id.Actor, error) {
	v.token = token
	return v.actor, v.err
}

func TestRequireActor(t *testing.T) {
	actor := testutil.NewActor(testutil.NewTenant(), id.RoleAuditor)
	var seen id.Actor
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = requestcontext.Actor(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("valid bearer token sets the actor", func(t *testing.T) {
		v := &stubValidator{actor: actor}
		req := httptest.NewRequest(http.MethodGet, "/observations", nil)
		req.Header.Set("Authorization", "Bearer abc.def.ghi")
		rr := httptest.NewRecorder()
		RequireActor(v, discard())(next).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "abc.def.ghi", v.token)
		assert.Equal(t, actor.ID, seen.ID)
	})

	t.Run("missing header", func(t *testing.T) {
		rr := httptest.NewRecorder()
		RequireActor(&stubValidator{}, discard())(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, string(dErrors.CodeUnauthorized))
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rr := httptest.NewRecorder()
		RequireActor(&stubValidator{err: errors.New("bad signature")}, discard())(next).ServeHTTP(rr, req)
		testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, string(dErrors.CodeUnauthorized))
	})

	t.Run("token without tenant", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer x")
		rr := httptest.NewRecorder()
		RequireActor(&stubValidator{actor: id.Actor{ID: actor.ID}}, discard())(next).ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestRequestID(t *testing.T) {
	var got string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = requestcontext.RequestID(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, got)
	assert.Equal(t, got, rr.Header().Get(RequestIDHeader))

	inbound := "6f1c1f0e-8a7d-4d8e-9b1a-2f5f1e7f3c10"
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, inbound)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, inbound, got)

	req.Header.Set(RequestIDHeader, "<script>")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.NotEqual(t, "<script>", got, "malformed ids are replaced")
}

func TestRecovery(t *testing.T) {
	h := Recovery(discard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	testutil.AssertStatusAndError(t, rr, http.StatusInternalServerError, string(dErrors.CodeInternal))
}

func TestLoggerRecordsRouteTemplate(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	r := chi.NewRouter()
	r.Use(Logger(discard(), m))
	r.Get("/observations/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/observations/123", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/observations/456", nil))

	assert.Equal(t, 1, promtest.CollectAndCount(m.RequestDuration))
	assert.Equal(t, 0.0, promtest.ToFloat64(m.RequestsInFlight))
}

func TestClientMetadata(t *testing.T) {
	var ip, family string
	h := ClientMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip = requestcontext.ClientIP(r.Context())
		family = requestcontext.UserAgentFamily(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "203.0.113.7", ip)
	assert.Equal(t, "Firefox 128", family)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.4:51234"
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "198.51.100.4", ip)
	assert.Empty(t, family)
}
