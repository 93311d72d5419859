package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"catalog/internal/api"
	"catalog/internal/audit"
	"catalog/internal/audit/forwarder"
	auditmem "catalog/internal/audit/store/memory"
	auditpg "catalog/internal/audit/store/postgres"
	"catalog/internal/catalog"
	"catalog/internal/catalog/entity"
	"catalog/internal/catalog/manager"
	"catalog/internal/catalog/resolver"
	"catalog/internal/catalog/store/cache"
	catalogmem "catalog/internal/catalog/store/memory"
	catalogpg "catalog/internal/catalog/store/postgres"
	"catalog/internal/eventbus"
	eventmem "catalog/internal/eventbus/store/memory"
	eventpg "catalog/internal/eventbus/store/postgres"
	"catalog/internal/ops"
	"catalog/internal/platform/config"
	"catalog/internal/platform/httpserver"
	"catalog/internal/platform/kafka"
	"catalog/internal/platform/logger"
	"catalog/internal/platform/metrics"
	"catalog/internal/platform/redis"
)

// resources served by this process. Each gets its own store, resolver and
// manager; the trail and bus are shared instances.
var servedResources = []catalog.Resource{
	catalog.ResourceSample,
	catalog.ResourceIndividual,
	catalog.ResourceFile,
}

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	if cfg.Postgres.DSN != "" {
		var err error
		db, err = sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			log.Error("postgres open failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := bootstrapSchema(ctx, db); err != nil {
			log.Error("schema bootstrap failed", "error", err)
			os.Exit(1)
		}
	}

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connect failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Audit trail, optionally tapped into Kafka.
	var (
		auditStore  audit.RecordStore
		auditRecent ops.RecentLister
	)
	if db != nil {
		pg := auditpg.New(db)
		auditStore, auditRecent = pg, pg
	} else {
		mem := auditmem.New()
		auditStore, auditRecent = mem, mem
	}

	trailOpts := []audit.Option{
		audit.WithLogger(log),
		audit.WithMetrics(m),
		audit.WithMaxOpenOperations(cfg.Audit.MaxOpenOperations),
	}

	kafkaClient, err := kafka.New(cfg.Kafka)
	if err != nil {
		log.Error("kafka connect failed", "error", err)
		os.Exit(1)
	}
	var (
		tap chan audit.Record
		fwd *forwarder.Forwarder
	)
	if kafkaClient != nil {
		defer kafkaClient.Close()
		tap = make(chan audit.Record, cfg.Audit.TapSize)
		fwd = forwarder.New(kafkaClient, tap, cfg.Kafka.TopicPrefix,
			forwarder.WithLogger(log), forwarder.WithMetrics(m))
		if err := kafkaClient.EnsureTopics(ctx, fwd.Topics()...); err != nil {
			log.Error("kafka topic bootstrap failed", "error", err)
			os.Exit(1)
		}
		trailOpts = append(trailOpts, audit.WithTap(tap))
	}

	trail := audit.NewTrail(auditStore, trailOpts...)

	var eventStore eventbus.RecordStore
	if db != nil {
		eventStore = eventpg.New(db)
	} else {
		eventStore = eventmem.New()
	}
	bus := eventbus.New(eventStore, eventbus.WithLogger(log), eventbus.WithMetrics(m))

	managers := make(map[catalog.Resource]*manager.Manager[entity.Document], len(servedResources))
	for _, resource := range servedResources {
		var store catalog.Store[entity.Document]
		if db != nil {
			store = catalogpg.New[entity.Document](db, resource)
		} else {
			store = catalogmem.New[entity.Document](nil)
		}

		cached := cache.New(store, redisClient, resource, cfg.Cache.TTL, log)
		bus.Subscribe(eventbus.EventID(resource, string(audit.ActionUpdate)), cached.Observer())
		bus.Subscribe(eventbus.EventID(resource, string(audit.ActionDelete)), cached.Observer())

		res := resolver.New[entity.Document](resource, cached,
			resolver.WithLogger[entity.Document](log),
			resolver.WithMetrics[entity.Document](m))
		managers[resource] = manager.New[entity.Document](resource, res, trail, bus,
			manager.WithLogger[entity.Document](log))
	}
	deps := map[string]ops.HealthChecker{}
	if db != nil {
		deps["postgres"] = sqlHealth{db}
	}
	if redisClient != nil {
		deps["redis"] = redisClient
	}

	router := chi.NewRouter()
	ops.New(log, auditRecent, deps).Register(router)
	api.New(log, managers).Register(router)

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting catalog server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if fwd != nil {
		g.Go(func() error {
			if err := fwd.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

type sqlHealth struct{ db *sql.DB }

func (h sqlHealth) Health(ctx context.Context) error {
	return h.db.PingContext(ctx)
}

func bootstrapSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{auditpg.Schema(), eventpg.Schema()}
	for _, resource := range servedResources {
		stmts = append(stmts, catalogpg.Schema(resource))
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
