package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"certify/internal/access"
	adminhandler "certify/internal/admin/handler"
	adminservice "certify/internal/admin/service"
	adminstore "certify/internal/admin/store"
	"certify/internal/artifact"
	certhandler "certify/internal/certificate/handler"
	certmetrics "certify/internal/certificate/metrics"
	"certify/internal/certificate/number"
	certservice "certify/internal/certificate/service"
	certstore "certify/internal/certificate/store"
	"certify/internal/course"
	jwttoken "certify/internal/jwt_token"
	"certify/internal/platform/config"
	httpmetrics "certify/internal/platform/metrics"
	"certify/internal/platform/postgres"
	platformredis "certify/internal/platform/redis"
	rlmetrics "certify/internal/ratelimit/metrics"
	rlmiddleware "certify/internal/ratelimit/middleware"
	"certify/internal/ratelimit/store/bucket"
	audit "certify/pkg/platform/audit"
	"certify/pkg/platform/audit/publisher"
	"certify/pkg/platform/audit/publishers/kafka"
	auditlogger "certify/pkg/platform/audit/store/logger"
	auditpostgres "certify/pkg/platform/audit/store/postgres"
	"certify/pkg/platform/httputil"
	"certify/pkg/platform/middleware/metadata"
	"certify/pkg/platform/middleware/request"
	"certify/pkg/platform/middleware/requesttime"
)

const (
	auditBufferSize     = 1024
	verifyWindow        = time.Minute
	tokenIssuer         = "certify"
	tokenAudience       = "certify-admin"
	healthCheckTimeout  = 2 * time.Second
	gaugeRefreshTimeout = 10 * time.Second
)

type healthCheck struct {
	name  string
	check func(context.Context) error
}

type app struct {
	router       http.Handler
	log          *slog.Logger
	certificates *certservice.Service
	localLimits  *bucket.InMemoryStore
	checks       []healthCheck
	closers      []func()
}

// buildApp wires every component from cfg. Postgres, Redis and Kafka are each
// optional; without them the app runs on in-process stores. A nil renderer
// selects headless Chrome.
func buildApp(ctx context.Context, cfg config.Server, log *slog.Logger, registry *prometheus.Registry, renderer artifact.Renderer) (*app, error) {
	a := &app{log: log}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	certMetrics := certmetrics.NewWith(registry)

	var certificates certstore.Backend = certstore.NewInMemoryStore()
	var catalog certservice.Catalog = course.NewInMemoryCatalog(course.Defaults()...)
	var db *sql.DB

	if cfg.DatabaseURL != "" {
		var err error
		db, err = postgres.Open(ctx, postgres.Config{DSN: cfg.DatabaseURL})
		if err != nil {
			return nil, err
		}
		a.onClose(func() { _ = db.Close() })
		if err := postgres.Migrate(ctx, db, log); err != nil {
			return nil, err
		}
		certificates = certstore.NewPostgres(db)
		catalog = course.NewPostgresCatalog(db)
		a.checks = append(a.checks, healthCheck{"postgres", db.PingContext})
		log.Info("using postgres storage")
	} else {
		log.Warn("DATABASE_URL not set; certificates are kept in memory and lost on restart")
	}

	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if redisClient != nil {
		a.onClose(func() { _ = redisClient.Close() })
		certificates = certstore.NewRedisCache(certificates, redisClient.Client, cfg.Redis.CacheTTL,
			certstore.WithCacheLogger(log),
			certstore.WithCacheObserver(certMetrics),
		)
		a.checks = append(a.checks, healthCheck{"redis", redisClient.Health})
		log.Info("using redis verification cache", "ttl", cfg.Redis.CacheTTL)
	}

	auditPublisher := publisher.NewPublisher(auditSink(ctx, cfg, log, db, a),
		publisher.WithAsyncBuffer(auditBufferSize),
		publisher.WithSampler(publisher.NewSampler(cfg.AuditSampleRate)),
		publisher.WithLogger(log),
		publisher.WithMetrics(publisher.NewMetricsWith(registry)),
		publisher.WithCircuitBreaker(publisher.NewCircuitBreaker(5, 30*time.Second)),
	)
	// registered after the sink so the publisher drains before the sink closes
	a.onClose(func() { _ = auditPublisher.Close() })

	admins := adminstore.NewInMemoryStore()
	if _, err := admins.Seed(cfg.AdminUsername, cfg.AdminPassword); err != nil {
		return nil, fmt.Errorf("seed admin: %w", err)
	}
	tokens := jwttoken.NewJWTService(cfg.JWTSigningKey, tokenIssuer, tokenAudience)
	gate := access.NewGate(jwttoken.NewAdapter(tokens), log)
	adminSvc := adminservice.New(admins, tokens, cfg.AdminTokenTTL,
		adminservice.WithLogger(log),
		adminservice.WithAuditPublisher(auditPublisher),
	)

	a.certificates = certservice.New(certificates, catalog,
		number.New(cfg.Certificates.NumberPrefix, cfg.Certificates.TokenLength),
		artifact.New(cfg.Certificates.FrontendURL, cfg.Certificates.InstitutionName),
		certservice.WithLogger(log),
		certservice.WithMetrics(certMetrics),
		certservice.WithAuditPublisher(auditPublisher),
	)

	if renderer == nil {
		chrome := artifact.NewChromePDFRenderer(cfg.PDFRenderTimeout)
		a.onClose(chrome.Close)
		renderer = chrome
	}

	a.localLimits = bucket.NewInMemoryStore()
	var limits rlmiddleware.Store = a.localLimits
	if redisClient != nil {
		limits = bucket.NewFallbackStore(bucket.NewRedisStore(redisClient.Client), a.localLimits, log)
	}
	limiter := rlmiddleware.New(limits, log,
		rlmiddleware.WithMetrics(rlmetrics.NewWith(registry)),
		rlmiddleware.WithAuditPublisher(auditPublisher),
	)

	proxies, err := metadata.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("parse TRUSTED_PROXIES: %w", err)
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(log))
	r.Use(request.RequestID)
	r.Use(metadata.NewResolver(proxies...).Middleware)
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(log))
	r.Use(httpmetrics.NewWith(registry).Middleware)
	r.Use(request.Timeout(cfg.RequestTimeout))

	r.Get("/health", a.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	adminhandler.New(adminSvc, gate, log).Register(r)
	certhandler.New(a.certificates, gate, renderer, log,
		certhandler.WithPublicMiddleware(limiter.PerIP(cfg.VerifyRateLimit, verifyWindow)),
	).Register(r)

	a.router = r
	ok = true
	return a, nil
}

// auditSink streams to Kafka when brokers are configured and reachable.
// Otherwise events go to the audit_events table when Postgres is in use, and
// to the log as a last resort.
func auditSink(ctx context.Context, cfg config.Server, log *slog.Logger, db *sql.DB, a *app) audit.Store {
	local := func() audit.Store {
		if db != nil {
			log.Info("recording audit events in postgres")
			return auditpostgres.New(db)
		}
		return auditlogger.New(log)
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return local()
	}
	sink, err := kafka.New(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
	if err != nil {
		log.Warn("kafka audit sink unavailable", "error", err)
		return local()
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sink.Ping(pingCtx); err != nil {
		sink.Close()
		log.Warn("kafka audit sink unreachable", "error", err)
		return local()
	}
	a.onClose(sink.Close)
	log.Info("streaming audit events to kafka", "topic", cfg.Kafka.AuditTopic)
	return sink
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	failed := []string{}
	for _, hc := range a.checks {
		if err := hc.check(ctx); err != nil {
			a.log.WarnContext(ctx, "health check failed", "component", hc.name, "error", err)
			failed = append(failed, hc.name)
		}
	}
	if len(failed) > 0 {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "failed": failed})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *app) refreshGauges() {
	ctx, cancel := context.WithTimeout(context.Background(), gaugeRefreshTimeout)
	defer cancel()
	if err := a.certificates.RefreshStoredGauge(ctx); err != nil {
		a.log.Warn("failed to refresh certificate gauge", "error", err)
	}
}

func (a *app) sweepRateLimits() {
	if n := a.localLimits.Sweep(); n > 0 {
		a.log.Debug("swept idle rate limit windows", "count", n)
	}
}
