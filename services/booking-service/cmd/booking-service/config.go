package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/servicebay/servicebay/libs/config"
	"github.com/servicebay/servicebay/services/booking-service/internal/schedule"
)

type serviceConfig struct {
	Service        string
	Port           string
	GRPCPort       string
	DatabaseURL    string
	MigrateOnStart bool
	DBMaxConns     int
	RequestTimeout time.Duration

	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	ScheduleCacheTTL time.Duration

	KafkaBrokers string

	JWTSecret string
	JWKSURL   string

	Location     *time.Location
	Granularity  time.Duration
	FetchTimeout time.Duration
	OverrideMode schedule.OverrideMode
	HorizonDays  int
	RateLimit    int
	CORSOrigins  []string
}

func loadConfig() (serviceConfig, error) {
	cfg := serviceConfig{
		Service:        config.String("SERVICE_NAME", "booking-service"),
		MigrateOnStart: config.Bool("MIGRATE_ON_START", false),
		RedisAddr:      config.String("REDIS_ADDR", ""),
		RedisPassword:  config.String("REDIS_PASSWORD", ""),
		KafkaBrokers:   config.String("KAFKA_BROKERS", ""),
		JWTSecret:      config.String("AUTH_JWT_SECRET", ""),
		JWKSURL:        config.String("AUTH_JWKS_URL", ""),
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error
	cfg.Port, err = config.Port("PORT", "8083")
	collect(err)
	cfg.GRPCPort, err = config.Port("GRPC_PORT", "9093")
	collect(err)
	cfg.DatabaseURL, err = config.RequiredString("DATABASE_URL")
	collect(err)
	cfg.DBMaxConns, err = config.Int("DB_MAX_CONNS", 10)
	collect(err)
	cfg.RequestTimeout, err = config.Duration("HTTP_REQUEST_TIMEOUT", 10*time.Second)
	collect(err)
	cfg.RedisDB, err = config.Int("REDIS_DB", 0)
	collect(err)
	cfg.ScheduleCacheTTL, err = config.Duration("SCHEDULE_CACHE_TTL", 5*time.Minute)
	collect(err)
	cfg.FetchTimeout, err = config.Duration("AVAILABILITY_FETCH_TIMEOUT", 3*time.Second)
	collect(err)
	cfg.HorizonDays, err = config.Int("BOOKING_HORIZON_DAYS", 30)
	collect(err)
	cfg.RateLimit, err = config.Int("RATE_LIMIT_PER_MINUTE", 120)
	collect(err)

	granularity, err := config.Int("SLOT_GRANULARITY_MINUTES", 30)
	collect(err)
	if err == nil && (granularity <= 0 || granularity > 24*60) {
		collect(fmt.Errorf("SLOT_GRANULARITY_MINUTES out of range: %d", granularity))
	}
	cfg.Granularity = time.Duration(granularity) * time.Minute

	cfg.Location, err = time.LoadLocation(config.String("SERVICE_TIMEZONE", "UTC"))
	if err != nil {
		collect(fmt.Errorf("SERVICE_TIMEZONE: %w", err))
	}
	cfg.OverrideMode, err = schedule.ParseOverrideMode(config.String("BUSY_OVERRIDE_MODE", string(schedule.OverrideWholeDay)))
	collect(err)

	for _, origin := range strings.Split(config.String("CORS_ALLOWED_ORIGINS", ""), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return serviceConfig{}, err
	}
	return cfg, nil
}
