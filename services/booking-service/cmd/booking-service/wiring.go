package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/agencyhub/libs/config"
	"github.com/md-rashed-zaman/agencyhub/libs/db"
	"github.com/md-rashed-zaman/agencyhub/libs/httpx"
	"github.com/md-rashed-zaman/agencyhub/libs/kafkax"
	"github.com/md-rashed-zaman/agencyhub/libs/runtime"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/consumer"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/email"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/inbox"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/meetings/gcal"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/meetings/zoom"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/sideeffects"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/storage/memory"
	"github.com/redis/go-redis/v9"
)

type backend struct {
	store   storage.Store
	pool    *db.Pool
	brokers string
	checks  []runtime.ReadyCheck
}

func (b *backend) Close() {
	b.pool.Close()
}

// openBackend selects the store from STORAGE: postgres (default) or memory.
func openBackend(ctx context.Context, logger *slog.Logger) (*backend, error) {
	be := &backend{brokers: config.String("KAFKA_BROKERS", "")}

	switch kind := strings.ToLower(config.String("STORAGE", "postgres")); kind {
	case "memory":
		store := memory.New()
		if path := config.String("SEED_FILE", ""); path != "" {
			seeded, err := memory.LoadFile(path)
			if err != nil {
				return nil, err
			}
			store = seeded
		}
		logger.Warn("using in-memory storage; data is lost on restart")
		be.store = store
		return be, nil

	case "postgres":
		dbURL, err := config.RequiredString("DATABASE_URL")
		if err != nil {
			return nil, err
		}
		maxConns, err := config.Int("DB_MAX_CONNS", 10)
		if err != nil {
			return nil, err
		}
		pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(maxConns)})
		if err != nil {
			return nil, fmt.Errorf("db connection: %w", err)
		}
		pg := storage.NewPostgres(pool, outbox.NewRepository())
		if config.Bool("DB_AUTO_MIGRATE", true) {
			if err := pg.Migrate(ctx); err != nil {
				pool.Close()
				return nil, err
			}
		}
		be.store = pg
		be.pool = pool
		be.checks = append(be.checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
		if be.brokers != "" {
			be.checks = append(be.checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(be.brokers)})
		}
		return be, nil

	default:
		return nil, fmt.Errorf("STORAGE must be postgres or memory (got %q)", kind)
	}
}

func newSideEffectsRunner(logger *slog.Logger, store storage.Store) *sideeffects.Runner {
	timeout, err := config.Duration("SIDE_EFFECTS_TIMEOUT", sideeffects.DefaultTimeout)
	if err != nil {
		panic(err)
	}
	cfg := sideeffects.Config{
		PlaceholderBaseURL: config.String("PLACEHOLDER_MEETING_BASE_URL", "https://meet.google.com/"),
		Timeout:            timeout,
	}
	if id := config.String("ZOOM_CLIENT_ID", ""); id != "" {
		cfg.Zoom = zoom.New(id, config.String("ZOOM_CLIENT_SECRET", ""))
	}
	if id := config.String("GOOGLE_CLIENT_ID", ""); id != "" {
		cfg.Calendar = gcal.New(id, config.String("GOOGLE_CLIENT_SECRET", ""))
	}
	if host := config.String("SMTP_HOST", ""); host != "" {
		smtpTimeout, err := config.Duration("SMTP_TIMEOUT", email.DefaultSMTPTimeout)
		if err != nil {
			panic(err)
		}
		cfg.Mailer = email.NewSMTPSender(host, config.String("SMTP_PORT", "1025"), config.String("SMTP_FROM", "")).WithTimeout(smtpTimeout)
	} else {
		cfg.Mailer = email.LogSender{Logger: logger}
	}
	return sideeffects.NewRunner(store, logger, cfg)
}

// startSideEffects starts the outbox publisher when postgres and kafka are
// configured, and returns the dispatcher the booking service calls after
// commit. In async mode that dispatcher is a no-op and a consumer of the
// booked event runs the side effects instead.
func startSideEffects(ctx context.Context, logger *slog.Logger, be *backend) booking.SideEffects {
	runner := newSideEffectsRunner(logger, be.store)

	hasKafka := be.pool != nil && be.brokers != ""
	if hasKafka {
		publisher := outbox.NewPublisher(be.pool, outbox.NewRepository(), logger, outbox.PublisherConfig{
			Brokers:   be.brokers,
			PollEvery: 2 * time.Second,
			BatchSize: 50,
		})
		go publisher.Run(ctx)
	}

	mode := strings.ToLower(config.String("SIDE_EFFECTS_MODE", "inline"))
	if mode != "async" {
		return runner
	}
	if !hasKafka {
		logger.Warn("async side effects need postgres and kafka; running inline")
		return runner
	}

	eventConsumer := consumer.New(logger, inbox.NewRepository(be.pool), consumer.Config{
		Brokers: be.brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "booking-service"),
		Topic:   outbox.EventAppointmentBooked,
	}, runner.HandleBooked)
	go eventConsumer.Run(ctx)
	logger.Info("side effects running async", "topic", outbox.EventAppointmentBooked)
	return sideeffects.Deferred{}
}

// newRateLimit builds the limiter for the public booking routes: redis when
// REDIS_URL is set, in-process otherwise.
func newRateLimit(logger *slog.Logger) (httpx.Middleware, func()) {
	perMinute, err := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	if err != nil || perMinute <= 0 {
		perMinute = 60
	}
	failOpen := config.Bool("RATE_LIMIT_FAIL_OPEN", true)

	if raw := config.String("REDIS_URL", ""); raw != "" {
		opts, err := redis.ParseURL(raw)
		if err != nil {
			logger.Error("invalid REDIS_URL; using in-memory rate limit", "err", err)
		} else {
			rdb := redis.NewClient(opts)
			rl := httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl:book"))
			logger.Info("rate limiting enabled (redis)", "per_minute", perMinute)
			return httpx.WithRateLimit(rl, logger, failOpen), func() { _ = rdb.Close() }
		}
	}

	logger.Info("rate limiting enabled (in-memory)", "per_minute", perMinute)
	return httpx.WithRateLimit(httpx.NewRateLimiter(perMinute, time.Minute), logger, failOpen), func() {}
}
