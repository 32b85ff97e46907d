// Package bootstrap builds the infrastructure shared by cmd/api and
// cmd/worker.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/igabaycare/care-api/internal/config"
	"github.com/igabaycare/care-api/internal/email"
	"github.com/igabaycare/care-api/internal/handler/health"
	"github.com/igabaycare/care-api/internal/repository/postgres"
	"github.com/igabaycare/care-api/internal/service/audit"
	"github.com/igabaycare/care-api/internal/service/notification"
	"github.com/igabaycare/care-api/internal/service/reminder"
	"github.com/igabaycare/care-api/pkg/idempotency"
	"github.com/igabaycare/care-api/pkg/logger"
	"github.com/igabaycare/care-api/pkg/messaging"
	"github.com/igabaycare/care-api/pkg/messaging/kafka"
	redisbroker "github.com/igabaycare/care-api/pkg/messaging/redis"
	"github.com/igabaycare/care-api/pkg/metrics"
	"github.com/igabaycare/care-api/pkg/security"
)

const metricsNamespace = "igabaycare"

// Infra holds the long-lived clients. Redis is nil when redis.url is unset.
type Infra struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *sqlx.DB
	Repos    *postgres.Repositories
	Redis    *goredis.Client
	Broker   messaging.Broker
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
}

// Init loads configuration and connects every backing service.
func Init(ctx context.Context, service string) (*Infra, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}).With("service", service)

	if cfg.Sentry.DSN != "" {
		env := cfg.Sentry.Environment
		if env == "" {
			env = cfg.Env
		}
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      env,
			ServerName:       service,
			EnableTracing:    cfg.Sentry.TracesSampleRate > 0,
			TracesSampleRate: cfg.Sentry.TracesSampleRate,
		}); err != nil {
			return nil, fmt.Errorf("failed to initialise sentry: %w", err)
		}
	}

	infra := &Infra{Config: cfg, Logger: log}

	infra.DB, err = postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	var cipher *security.FieldCipher
	if cfg.Database.EncryptionKey != "" {
		if cipher, err = security.NewFieldCipher(cfg.Database.EncryptionKey); err != nil {
			infra.Close()
			return nil, fmt.Errorf("failed to load field cipher: %w", err)
		}
	} else {
		log.Warn("database.encryption_key not set, prescriptions stored unsealed")
	}
	infra.Repos = postgres.NewRepositories(infra.DB, cipher)

	if cfg.Redis.URL != "" {
		infra.Redis, err = redisbroker.NewClient(ctx, cfg.Redis.ToClientConfig())
		if err != nil {
			infra.Close()
			return nil, err
		}
	}

	infra.Broker, err = newBroker(cfg, infra.Redis, log)
	if err != nil {
		infra.Close()
		return nil, err
	}

	infra.Registry = prometheus.NewRegistry()
	infra.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	infra.Metrics = metrics.NewMetrics(metricsNamespace, infra.Registry)

	return infra, nil
}

func newBroker(cfg *config.Config, client *goredis.Client, log *logger.Logger) (messaging.Broker, error) {
	switch cfg.Outbox.Broker {
	case "redis":
		return redisbroker.NewRedisBroker(client, log.Zerolog()), nil
	case "kafka":
		return kafka.NewKafkaBroker(cfg.Kafka.ToBrokerConfig(), log.Zerolog())
	default:
		return messaging.NewMemoryBroker(), nil
	}
}

// DedupStore prefers Redis so every API replica shares webhook claims.
func (i *Infra) DedupStore() idempotency.Store {
	if i.Redis != nil {
		return idempotency.NewRedisStore(i.Redis, "igabay:")
	}
	return idempotency.NewMemoryStore(10 * time.Minute)
}

// Notifications builds the notification service and its collaborators,
// which both binaries need.
func (i *Infra) Notifications() (*notification.Service, *reminder.Service, *audit.Service) {
	auditor := audit.NewService(i.Repos.Audit)
	notifier := notification.NewService(
		i.Repos.Notifications,
		i.Repos.Users,
		email.NewService(i.Config.SMTP),
		i.Broker,
		i.Config.Notification,
		i.Metrics,
	)
	reminders := reminder.NewService(
		i.Repos.Reminders,
		i.Repos.Appointments,
		notification.NewParties(i.Repos.Patients, i.Repos.Clinics),
		notifier,
		i.Metrics,
		i.Config.Reminder.BatchSize,
		i.Config.Booking.Location(),
	)
	return notifier, reminders, auditor
}

// Checks are the readiness checks for the configured dependencies.
func (i *Infra) Checks() map[string]health.Checker {
	checks := map[string]health.Checker{
		"database": health.CheckerFunc(i.DB.PingContext),
	}
	if i.Redis != nil {
		checks["redis"] = health.CheckerFunc(func(ctx context.Context) error {
			return i.Redis.Ping(ctx).Err()
		})
	}
	return checks
}

func (i *Infra) Close() {
	if i.Broker != nil {
		if err := i.Broker.Close(); err != nil {
			i.Logger.Error(err, "failed to close broker")
		}
	}
	if i.Redis != nil {
		_ = i.Redis.Close()
	}
	if i.DB != nil {
		_ = i.DB.Close()
	}
	sentry.Flush(2 * time.Second)
}
