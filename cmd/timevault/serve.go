package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"timevault/internal/capsule/handler"
	"timevault/internal/capsule/ledger"
	"timevault/internal/capsule/metrics"
	"timevault/internal/capsule/relay"
	"timevault/internal/capsule/service"
	"timevault/internal/capsule/store/memory"
	capsulepg "timevault/internal/capsule/store/postgres"
	capsuleredis "timevault/internal/capsule/store/redis"
	jwttoken "timevault/internal/jwt_token"
	"timevault/internal/platform/config"
	"timevault/internal/platform/httpserver"
	"timevault/internal/platform/kafka"
	platformmetrics "timevault/internal/platform/metrics"
	"timevault/internal/platform/postgres"
	platformredis "timevault/internal/platform/redis"
	httptransport "timevault/internal/transport/http"
)

// backend is the selected ledger plus whatever it holds open.
type backend struct {
	ledger ledger.Ledger
	reader ledger.Reader
	db     *sql.DB
	checks map[string]httptransport.HealthCheck
	close  func()
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, with postgres and kafka configured, the outbox relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serveRun(ctx, cfg, log)
		},
	}
}

func serveRun(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	if cfg.UsesDevSigningKey() {
		log.Warn("using the development JWT signing key; set TIMEVAULT_AUTH_JWT_SIGNING_KEY")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	capsuleMetrics := metrics.New(reg)

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer be.close()

	svc := service.New(be.ledger, be.reader,
		service.WithLogger(log),
		service.WithMetrics(capsuleMetrics),
		service.WithLimits(cfg.Limits()),
	)
	tokens := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	router := httptransport.NewRouter(httptransport.Deps{
		Logger:    log,
		Capsules:  handler.New(svc, log),
		Validator: tokens,
		Metrics:   platformmetrics.NewHTTP(reg),
		Gatherer:  reg,
		Checks:    be.checks,
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	if cfg.RelayEnabled() {
		if err := startRelay(ctx, g, cfg, be, capsuleMetrics, log); err != nil {
			return err
		}
	}

	g.Go(func() error {
		log.Info("starting timevault", "addr", cfg.Server.Addr, "ledger", cfg.Ledger.Backend)
		return httpserver.Serve(ctx, srv, cfg.Server.ShutdownTimeout, log)
	})
	return g.Wait()
}

func startRelay(ctx context.Context, g *errgroup.Group, cfg *config.Config, be *backend, m *metrics.Metrics, log *slog.Logger) error {
	kcfg := kafka.Config{
		Brokers:           cfg.Kafka.Brokers,
		Topic:             cfg.Kafka.Topic,
		Partitions:        cfg.Kafka.Partitions,
		ReplicationFactor: cfg.Kafka.ReplicationFactor,
	}
	client, err := kafka.NewClient(kcfg)
	if err != nil {
		return err
	}
	if err := kafka.EnsureTopic(ctx, client, kcfg); err != nil {
		client.Close()
		return err
	}
	be.checks["kafka"] = func(ctx context.Context) error { return kafka.Health(ctx, client) }

	worker := relay.New(capsulepg.NewOutbox(be.db), relay.NewKafkaPublisher(client, kcfg.Topic),
		relay.WithBatchSize(cfg.Kafka.BatchSize),
		relay.WithPollInterval(cfg.Kafka.PollInterval),
		relay.WithLogger(log),
		relay.WithMetrics(m),
	)
	listener := relay.NewListener(cfg.Postgres.URL, capsulepg.NotifyChannel, log)

	g.Go(func() error {
		defer client.Close()
		return worker.Run(ctx)
	})
	g.Go(func() error {
		return listener.Run(ctx, worker.Notify)
	})
	log.Info("outbox relay started", "topic", kcfg.Topic, "brokers", kcfg.Brokers)
	return nil
}

func openBackend(ctx context.Context, cfg *config.Config, log *slog.Logger) (*backend, error) {
	switch cfg.Ledger.Backend {
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		if err := capsulepg.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		l := capsulepg.New(db)
		return &backend{
			ledger: l,
			reader: l,
			db:     db,
			checks: map[string]httptransport.HealthCheck{"postgres": db.PingContext},
			close:  func() { _ = db.Close() },
		}, nil

	case config.BackendRedis:
		client, err := platformredis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		l := capsuleredis.New(client.Client,
			capsuleredis.WithMaxRetries(cfg.Redis.MaxRetries),
			capsuleredis.WithStreamMaxLen(cfg.Redis.StreamMaxLen),
		)
		return &backend{
			ledger: l,
			reader: l,
			checks: map[string]httptransport.HealthCheck{"redis": client.Health},
			close:  func() { _ = client.Close() },
		}, nil

	default:
		log.Warn("using the in-memory ledger; state is lost on restart")
		l := memory.New()
		return &backend{
			ledger: l,
			reader: l,
			checks: map[string]httptransport.HealthCheck{},
			close:  func() {},
		}, nil
	}
}
