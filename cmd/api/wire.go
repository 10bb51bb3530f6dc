package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	amqpevents "github.com/travelmap/ratings-api/internal/adapters/amqp/events"
	"github.com/travelmap/ratings-api/internal/adapters/gcs"
	gcsdocstore "github.com/travelmap/ratings-api/internal/adapters/gcs/docstore"
	"github.com/travelmap/ratings-api/internal/adapters/httpapi"
	memdocstore "github.com/travelmap/ratings-api/internal/adapters/memory/docstore"
	memevents "github.com/travelmap/ratings-api/internal/adapters/memory/events"
	memidempotency "github.com/travelmap/ratings-api/internal/adapters/memory/idempotency"
	"github.com/travelmap/ratings-api/internal/adapters/postgres"
	pgdocstore "github.com/travelmap/ratings-api/internal/adapters/postgres/docstore"
	pgidempotency "github.com/travelmap/ratings-api/internal/adapters/postgres/idempotency"
	"github.com/travelmap/ratings-api/internal/adapters/redis"
	redisdocstore "github.com/travelmap/ratings-api/internal/adapters/redis/docstore"
	redisevents "github.com/travelmap/ratings-api/internal/adapters/redis/events"
	"github.com/travelmap/ratings-api/internal/adapters/restcountries"
	"github.com/travelmap/ratings-api/internal/app/countries"
	"github.com/travelmap/ratings-api/internal/app/ratings"
	"github.com/travelmap/ratings-api/internal/app/roles"
	"github.com/travelmap/ratings-api/internal/domain"
	"github.com/travelmap/ratings-api/internal/platform/auth/jwtverifier"
	platformclock "github.com/travelmap/ratings-api/internal/platform/clock"
	"github.com/travelmap/ratings-api/internal/platform/config"
	"github.com/travelmap/ratings-api/internal/platform/metrics"
	"github.com/travelmap/ratings-api/internal/ports/out/clock"
	"github.com/travelmap/ratings-api/internal/ports/out/docstore"
	"github.com/travelmap/ratings-api/internal/ports/out/events"
	"github.com/travelmap/ratings-api/internal/ports/out/idempotency"
)

type app struct {
	handler  http.Handler
	idem     idempotency.Store
	sessions *ratings.Sessions
	clock    clock.Clock
	closers  []func()
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func build(ctx context.Context, cfg config.Config, log *zap.Logger) (a *app, err error) {
	a = &app{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	clk := platformclock.NewSystemClock()

	var rdb *goredis.Client
	redisClient := func() (*goredis.Client, error) {
		if rdb != nil {
			return rdb, nil
		}
		c, err := redis.NewClient(ctx, redis.Options{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		rdb = c
		a.closers = append(a.closers, func() { _ = c.Close() })
		return c, nil
	}

	var (
		docs docstore.Store
		idem idempotency.Store
	)
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.Storage.Postgres.DSN, postgres.PoolOptions{MaxConns: cfg.Storage.Postgres.MaxConns})
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		if cfg.Storage.Postgres.Migrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				return nil, fmt.Errorf("postgres migrate: %w", err)
			}
		}
		docs = pgdocstore.NewStore(pool)
		idem = pgidempotency.NewStore(pool)
	case config.BackendRedis:
		c, err := redisClient()
		if err != nil {
			return nil, err
		}
		docs = redisdocstore.NewStore(c, cfg.Storage.Redis.KeyPrefix)
	case config.BackendGCS:
		client, err := gcs.NewClient(ctx, gcs.ClientOptions{
			EmulatorHost:    cfg.Storage.GCS.EmulatorHost,
			CredentialsFile: cfg.Storage.GCS.CredentialsFile,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		docs = gcsdocstore.NewStore(client.Bucket(cfg.Storage.GCS.Bucket), cfg.Storage.GCS.ObjectPrefix)
	default:
		docs = memdocstore.NewStore()
	}
	if idem == nil {
		idem = memidempotency.NewStore()
	}
	a.idem, a.clock = idem, clk

	var bus events.Bus
	switch cfg.Events.Backend {
	case config.BackendRedis:
		c, err := redisClient()
		if err != nil {
			return nil, err
		}
		bus = redisevents.NewBus(c, cfg.Events.RedisChannel, log)
	case config.BackendAMQP:
		b, err := amqpevents.Dial(cfg.Events.AMQPURL, cfg.Events.AMQPExchange, log)
		if err != nil {
			return nil, fmt.Errorf("amqp: %w", err)
		}
		bus = b
	default:
		bus = memevents.NewBus()
	}
	a.closers = append(a.closers, func() { _ = bus.Close() })

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	observer := metrics.NewStoreObserver(reg)

	storeLog := log.Named("ratings")
	sessions := ratings.NewSessions(func(domain.UserID) *ratings.Store {
		return ratings.NewStore(docs, clk,
			ratings.WithLogger(storeLog),
			ratings.WithEvents(bus),
			ratings.WithObserver(observer),
		)
	}, ratings.WithSessionClock(clk))
	a.sessions = sessions
	rolesSvc := roles.NewService(docs, log.Named("roles"))
	catalog := restcountries.NewSource(cfg.Countries.BaseURL, &http.Client{Timeout: 15 * time.Second})
	countriesSvc := countries.NewService(catalog, clk, cfg.Countries.TTL, log.Named("countries"))

	var authMW func(http.Handler) http.Handler
	switch cfg.Auth.Mode {
	case "dev":
		log.Warn("dev auth enabled; X-Debug-Subject is trusted")
		authMW = httpapi.NewDevAuthMiddleware(cfg.Auth.DevSubject)
	default:
		jwtCfg, err := config.LoadJWTConfigFromEnv()
		if err != nil {
			return nil, fmt.Errorf("invalid auth config: %w", err)
		}
		authMW = httpapi.NewAuthMiddleware(jwtverifier.New(jwtCfg))
	}

	api := httpapi.NewServer(httpapi.ServerDeps{
		Sessions:  sessions,
		Roles:     rolesSvc,
		Countries: countriesSvc,
		Idem:      idem,
		Events:    bus,
		Clock:     clk,
		Log:       log.Named("http"),
	})
	a.handler = httpapi.NewRouterWithOptions(api, httpapi.RouterOptions{
		AuthMiddleware:  authMW,
		AdminMiddleware: httpapi.NewAdminMiddleware(rolesSvc),
		Logger:          log.Named("access"),
		Metrics:         metrics.HTTPMiddleware(reg),
		MetricsHandler:  metrics.Handler(reg),
	})
	return a, nil
}
