package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jwttoken "auditgov/internal/jwt_token"
	notifyadapters "auditgov/internal/notification/adapters"
	notifymetrics "auditgov/internal/notification/metrics"
	"auditgov/internal/notification/render"
	"auditgov/internal/notification/scanner"
	"auditgov/internal/notification/sender"
	notifyservice "auditgov/internal/notification/service"
	notifystore "auditgov/internal/notification/store"
	notifymemory "auditgov/internal/notification/store/memory"
	notifypostgres "auditgov/internal/notification/store/postgres"
	notifyredis "auditgov/internal/notification/store/redis"
	"auditgov/internal/notification/worker"
	obsadapters "auditgov/internal/observation/adapters"
	"auditgov/internal/observation/handler"
	obsmetrics "auditgov/internal/observation/metrics"
	"auditgov/internal/observation/repeat"
	obsservice "auditgov/internal/observation/service"
	obsstore "auditgov/internal/observation/store"
	obsmemory "auditgov/internal/observation/store/memory"
	obspostgres "auditgov/internal/observation/store/postgres"
	"auditgov/internal/platform/config"
	"auditgov/internal/platform/kafka/producer"
	httpmetrics "auditgov/internal/platform/metrics"
	"auditgov/internal/platform/middleware"
	"auditgov/internal/platform/outbox"
	"auditgov/internal/platform/postgres"
	platformredis "auditgov/internal/platform/redis"
	"auditgov/internal/platform/tracing"
	"auditgov/pkg/platform/audit"
	"auditgov/pkg/platform/audit/publishers/compliance"
	auditmemory "auditgov/pkg/platform/audit/store/memory"
	auditpostgres "auditgov/pkg/platform/audit/store/postgres"
	"auditgov/pkg/platform/circuit"
	"auditgov/pkg/platform/httputil"
)

const (
	serviceName = "auditgov"
	tokenIssuer = "auditgov"
)

// app holds the process-wide dependencies. Each command builds one and
// closes it on exit.
type app struct {
	cfg    config.Config
	logger *slog.Logger

	db       *sql.DB
	redis    *platformredis.Client
	producer *producer.Producer

	obsStore      obsstore.Store
	notifyStore   notifystore.Store
	notifications *notifyservice.Service
	observations  *obsservice.Service
	repeats       *repeat.Detector
	notifyMetrics *notifymetrics.Metrics
	tokens        *jwttoken.JWTService

	shutdownTracing func(context.Context) error
}

func bootstrap(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logger,
		tokens: newTokenService(cfg),
	}

	shutdown, err := tracing.Setup(cfg.Tracing, serviceName, cfg.Environment)
	if err != nil {
		return nil, err
	}
	a.shutdownTracing = shutdown

	var (
		obsTx      obsstore.Tx
		auditStore audit.Store
	)
	if cfg.Database.URL != "" {
		db, err := postgres.Open(ctx, cfg.Database, logger)
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		a.db = db
		store := obspostgres.New(db)
		a.obsStore = store
		obsTx = newObservationPostgresTx(db, store, cfg.TxTimeout)
		auditStore = auditpostgres.New(db)
		a.notifyStore = notifypostgres.New(db)
	} else {
		logger.WarnContext(ctx, "DATABASE_URL not set, using in-memory stores")
		store := obsmemory.New()
		a.obsStore = store
		obsTx = store
		auditStore = auditmemory.NewInMemoryStore()
		a.notifyStore = notifymemory.New()
	}

	if cfg.Redis.URL != "" {
		client, err := platformredis.New(ctx, cfg.Redis)
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		a.redis = client
	}

	if len(cfg.Kafka.Brokers) > 0 {
		p, err := producer.New(ctx, cfg.Kafka.Brokers, serviceName, logger)
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		a.producer = p
		if err := p.EnsureTopics(ctx, 3, 1, cfg.Kafka.NotificationTopic, cfg.Kafka.AuditTopic); err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("ensure kafka topics: %w", err)
		}
	}

	a.notifyMetrics = notifymetrics.New()
	notifyOpts := []notifyservice.Option{
		notifyservice.WithLogger(logger),
		notifyservice.WithMetrics(a.notifyMetrics),
		notifyservice.WithBatchWindow(cfg.Notify.BatchWindow),
	}
	if a.redis != nil {
		notifyOpts = append(notifyOpts, notifyservice.WithDedupeGuard(notifyredis.NewDedupeGuard(a.redis.Client)))
	}
	if a.notifications, err = notifyservice.New(a.notifyStore, notifyOpts...); err != nil {
		a.close(ctx)
		return nil, err
	}

	auditor := compliance.New(auditStore,
		compliance.WithLogger(logger),
		compliance.WithMetrics(compliance.NewMetrics()),
	)
	m := obsmetrics.New()
	a.observations, err = obsservice.New(a.obsStore, obsTx, auditor,
		obsservice.WithLogger(logger),
		obsservice.WithMetrics(m),
		obsservice.WithNotifier(obsadapters.NewNotifierAdapter(a.notifications)),
	)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.repeats, err = repeat.New(a.obsStore, obsTx, auditor,
		repeat.WithLogger(logger),
		repeat.WithMetrics(m),
	)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	return a, nil
}

func newTokenService(cfg config.Config) *jwttoken.JWTService {
	return jwttoken.NewJWTService(cfg.Server.JWTSigningKey, tokenIssuer)
}

func (a *app) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Logger(a.logger, httpmetrics.New()))

	r.Get("/healthz", a.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireActor(a.tokens, a.logger))
		handler.New(a.observations, a.repeats, a.logger).Register(r)
	})
	return r
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true
	record := func(name string, err error) {
		if err != nil {
			healthy = false
			checks[name] = err.Error()
			return
		}
		checks[name] = "ok"
	}
	if a.db != nil {
		record("postgres", a.db.PingContext(ctx))
	}
	if a.redis != nil {
		record("redis", a.redis.Health(ctx))
	}
	if a.producer != nil {
		record("kafka", a.producer.Health(ctx))
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, map[string]any{"healthy": healthy, "checks": checks})
}

// notificationSender publishes to Kafka behind a circuit breaker, or logs
// when no broker is configured.
func (a *app) notificationSender() worker.Sender {
	if a.producer == nil {
		a.logger.Warn("KAFKA_BROKERS not set, notifications are written to the log")
		return sender.NewLogSender(a.logger)
	}
	breaker := circuit.New("notifications",
		circuit.WithFailureThreshold(5),
		circuit.WithSuccessThreshold(2),
		circuit.WithCooldown(30*time.Second),
	)
	return sender.NewBreakerSender(sender.NewKafkaSender(a.producer, a.cfg.Kafka.NotificationTopic), breaker, a.logger)
}

func (a *app) worker() (*worker.Worker, error) {
	return worker.New(a.notifyStore, render.New(), a.notificationSender(),
		worker.WithLogger(a.logger),
		worker.WithMetrics(a.notifyMetrics),
		worker.WithPollInterval(a.cfg.Notify.PollInterval),
		worker.WithBatchSize(a.cfg.Notify.BatchSize),
		worker.WithAttemptTimeout(a.cfg.Notify.AttemptTimeout),
		worker.WithLeaseTimeout(a.cfg.Notify.LeaseTimeout),
	)
}

func (a *app) scanner() (*scanner.Scanner, error) {
	return scanner.New(notifyadapters.NewObservationSource(a.obsStore), a.notifications,
		scanner.WithLogger(a.logger),
		scanner.WithMetrics(a.notifyMetrics),
		scanner.WithInterval(a.cfg.Scan.Interval),
		scanner.WithDigestWeekday(a.cfg.Scan.DigestWeekday),
	)
}

// relay is nil unless both PostgreSQL and Kafka are configured.
func (a *app) relay() *outbox.Relay {
	if a.db == nil || a.producer == nil {
		return nil
	}
	return outbox.New(a.db, a.producer, a.cfg.Kafka.AuditTopic,
		outbox.WithLogger(a.logger),
		outbox.WithMetrics(outbox.NewMetrics()),
	)
}

func (a *app) close(ctx context.Context) {
	var errs []error
	if a.producer != nil {
		a.producer.Close()
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if a.shutdownTracing != nil {
		errs = append(errs, a.shutdownTracing(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.WarnContext(ctx, "shutdown completed with errors", "error", err)
	}
}
