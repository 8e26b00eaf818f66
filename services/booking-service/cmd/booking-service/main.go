package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/servicebay/servicebay/libs/auth"
	"github.com/servicebay/servicebay/libs/config"
	"github.com/servicebay/servicebay/libs/db"
	"github.com/servicebay/servicebay/libs/httpx"
	"github.com/servicebay/servicebay/libs/kafkax"
	otelx "github.com/servicebay/servicebay/libs/otel"
	"github.com/servicebay/servicebay/libs/runtime"
	"github.com/servicebay/servicebay/services/booking-service/internal/availability"
	"github.com/servicebay/servicebay/services/booking-service/internal/cache"
	"github.com/servicebay/servicebay/services/booking-service/internal/handlers"
	"github.com/servicebay/servicebay/services/booking-service/internal/metrics"
	"github.com/servicebay/servicebay/services/booking-service/internal/outbox"
	"github.com/servicebay/servicebay/services/booking-service/internal/storage"
	"github.com/servicebay/servicebay/services/booking-service/migrations"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		panic(err)
	}
	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.Service)

	ctx, stop := runtime.SignalContext(logger)
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	if cfg.MigrateOnStart {
		if err := migrateUp(cfg.DatabaseURL); err != nil {
			logger.Error("migrations failed", "err", err)
			os.Exit(1)
		}
		logger.Info("migrations applied")
	}

	pool, err := db.OpenWithOptions(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: int32(cfg.DBMaxConns), ConnectAttempts: 5})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	bookingMetrics := metrics.NewBookingMetrics(registry)

	outboxRepo := outbox.NewRepository()
	appointments := storage.NewAppointmentRepository(pool, outboxRepo)
	busyRepo := storage.NewBusyOverrideRepository(pool, outboxRepo)
	var hours handlers.WorkingHoursStore = storage.NewWorkingHoursRepository(pool, outboxRepo)

	ready := runtime.NewReadiness(runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	if cfg.KafkaBrokers != "" {
		ready.Add(runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()
		hours = cache.NewScheduleCache(rdb, hours, cfg.ScheduleCacheTTL, logger, bookingMetrics)
		ready.Add(runtime.ReadyCheck{Name: "redis", Check: cache.ReadyCheck(rdb)})
	} else {
		logger.Warn("redis not configured; working hours are read from postgres on every request")
	}

	resolver := availability.NewResolver(hours, busyRepo, appointments, availability.Config{
		Granularity:  cfg.Granularity,
		Location:     cfg.Location,
		FetchTimeout: cfg.FetchTimeout,
		OverrideMode: cfg.OverrideMode,
	}, logger, bookingMetrics)
	guard := availability.NewGuard(resolver, appointments, logger, bookingMetrics)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, bookingMetrics, outbox.PublisherConfig{
		Brokers:   cfg.KafkaBrokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	bookingHandler := handlers.NewBookingHandler(resolver, guard, appointments, logger, cfg.HorizonDays)
	providerHandler := handlers.NewProviderHandler(hours, busyRepo, logger)

	var limiter httpx.Limiter = httpx.NewMemoryLimiter(cfg.RateLimit, time.Minute)
	if rdb != nil {
		limiter = httpx.NewRedisLimiter(rdb, cfg.RateLimit, time.Minute, "booking:rl")
	}
	limit := httpx.RateLimit(limiter, httpx.RateLimitOptions{Logger: logger, FailOpen: true})
	public := func(h http.HandlerFunc) http.Handler {
		return httpx.Chain(h, limit, httpx.WithBodyLimit(64<<10), httpx.WithTimeout(cfg.RequestTimeout))
	}

	var jwks *auth.JWKSClient
	if cfg.JWKSURL != "" {
		jwks = auth.NewJWKSClient(cfg.JWKSURL, 5*time.Minute)
	}
	verifier := auth.NewVerifier(cfg.JWTSecret, jwks)
	var requireProvider httpx.Middleware
	if verifier.Enabled() {
		requireProvider = auth.RequireProvider(verifier)
	}
	provider := func(h http.HandlerFunc) http.Handler {
		return httpx.Chain(h, requireProvider, httpx.WithBodyLimit(64<<10), httpx.WithTimeout(cfg.RequestTimeout))
	}
	if !verifier.Enabled() {
		logger.Warn("provider auth disabled; trusting X-Provider-Id from the gateway")
	}

	mux := ready.Mux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	mux.Handle("/api/v1/public/slots", public(bookingHandler.Slots))
	mux.Handle("/api/v1/public/book", public(bookingHandler.Create))
	mux.Handle("/api/v1/appointments", provider(bookingHandler.List))
	mux.Handle("/api/v1/appointments/status", provider(bookingHandler.UpdateStatus))
	mux.Handle("/api/v1/providers/working-hours", provider(providerHandler.WorkingHours))
	mux.Handle("/api/v1/providers/busy-status", provider(providerHandler.BusyStatus))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id", "X-Provider-Id"},
			MaxAge:         10 * time.Minute,
		}),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv, err := newGRPCServer(logger, cfg.GRPCPort)
	if err != nil {
		logger.Error("grpc listen failed", "err", err)
		os.Exit(1)
	}
	go grpcSrv.serve()

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	ready.Drain()
	grpcSrv.stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func migrateUp(databaseURL string) error {
	m, err := db.NewMigrator(databaseURL, migrations.FS, ".", "booking_schema_migrations")
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()
	return m.Up()
}
