package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/telhawk-systems/exception-monitor/common/database"
	"github.com/telhawk-systems/exception-monitor/common/logging"
	"github.com/telhawk-systems/exception-monitor/common/messaging"
	natsclient "github.com/telhawk-systems/exception-monitor/common/messaging/nats"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/config"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/handlers"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/ingest"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/mirror"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/ratelimit"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/repository"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/server"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/service"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	memory := flag.Bool("memory", false, "keep records in memory and run an embedded NATS server")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("exception-monitor"))
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *memory, logger); err != nil {
		slog.Error("Exception monitor stopped with error", logging.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, memory bool, logger *logging.Logger) error {
	slog.Info("Starting exception monitor",
		slog.Int("port", cfg.Server.Port),
		slog.String("version", cfg.Server.Version),
		slog.Bool("memory", memory),
		slog.String("log_level", cfg.Logging.Level),
	)

	repo, closeRepo, err := openStore(ctx, cfg, memory)
	if err != nil {
		return err
	}
	defer closeRepo()

	// Bus
	if memory {
		cfg.NATS.Embedded = true
	}
	natsURL := cfg.NATS.URL
	var embedded *natsclient.EmbeddedServer
	if cfg.NATS.Embedded {
		embedded, err = natsclient.StartEmbedded(natsclient.EmbeddedConfig{
			Port:     cfg.NATS.EmbeddedPort,
			StoreDir: cfg.NATS.StoreDir,
		})
		if err != nil {
			return fmt.Errorf("failed to start embedded NATS: %w", err)
		}
		natsURL = embedded.ClientURL()
		slog.Info("Embedded NATS server started", slog.String("url", natsURL))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = embedded.Shutdown(shutdownCtx)
		}()
	}

	var (
		worker *ingest.Worker
		bus    messaging.Client
	)
	if cfg.Ingest.Enabled {
		natsCfg := natsclient.DefaultConfig()
		natsCfg.URL = natsURL
		natsCfg.Username = cfg.NATS.Username
		natsCfg.Password = cfg.NATS.Password
		natsCfg.Token = cfg.NATS.Token
		natsCfg.Logger = logger.Logger

		js, err := natsclient.NewJetStreamClient(natsCfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := js.Drain(); err != nil {
				slog.Warn("Failed to drain NATS connection", logging.Error(err))
			}
		}()
		bus = js

		worker = ingest.NewWorker(ingest.Config{
			Topic:         cfg.Ingest.Topic,
			Group:         cfg.Ingest.Group,
			Stream:        cfg.Ingest.Stream,
			Partitions:    cfg.Ingest.Partitions,
			ShutdownGrace: cfg.Ingest.ShutdownGrace(),
		}, js, repo, openMirror(cfg), logger)

		// Handlers see a context that outlives the signal so draining can
		// finish in-flight messages.
		if err := worker.Start(context.WithoutCancel(ctx)); err != nil {
			return fmt.Errorf("failed to start ingestion: %w", err)
		}
	} else {
		slog.Info("Ingestion disabled")
	}

	limiter := openRateLimiter(cfg)
	defer limiter.Close()

	h, err := handlers.New(
		service.NewSearchService(repo, logger, service.SearchOptions{
			DefaultPageSize: cfg.Query.DefaultPageSize,
			MaxPageSize:     cfg.Query.MaxPageSize,
		}),
		service.NewStatsService(repo, logger, cfg.Query.TopN),
		repo,
		logger,
		cfg.Server.Version,
	)
	if err != nil {
		return err
	}
	if bus != nil {
		h.WithBus(bus)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.NewRouter(h, limiter),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Exception monitor listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down exception monitor")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	var errs []error
	if worker != nil {
		if err := worker.Stop(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}

	slog.Info("Exception monitor stopped")
	return errors.Join(errs...)
}

func openStore(ctx context.Context, cfg *config.Config, memory bool) (repository.Repository, func(), error) {
	if memory {
		slog.Warn("Using the in-memory record store, records are lost on restart")
		return repository.NewMemoryRepository(), func() {}, nil
	}

	if cfg.Database.Migrate {
		migrateCtx, cancel := database.MigrateContext(ctx)
		version, err := repository.Migrate(migrateCtx, cfg.Database.URL)
		cancel()
		if err != nil {
			return nil, nil, err
		}
		slog.Info("Database schema up to date", slog.Uint64("version", uint64(version)))
	}

	repo, err := repository.NewPostgresRepository(ctx, cfg.Database.URL, repository.PoolConfig{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		Timeouts: database.Timeouts{
			Query: cfg.Database.QueryTimeout,
			Write: cfg.Database.WriteTimeout,
		},
	})
	if err != nil {
		return nil, nil, err
	}
	return repo, repo.Close, nil
}

func openMirror(cfg *config.Config) mirror.Mirror {
	if !cfg.OpenSearch.Enabled {
		return mirror.Nop{}
	}
	m, err := mirror.NewOpenSearch(mirror.Config{
		URL:           cfg.OpenSearch.URL,
		Username:      cfg.OpenSearch.Username,
		Password:      cfg.OpenSearch.Password,
		TLSSkipVerify: cfg.OpenSearch.TLSSkipVerify,
		IndexPrefix:   cfg.OpenSearch.IndexPrefix,
	})
	if err != nil {
		slog.Warn("OpenSearch mirror unavailable, continuing without it", logging.Error(err))
		return mirror.Nop{}
	}
	slog.Info("Mirroring exceptions to OpenSearch",
		slog.String("url", cfg.OpenSearch.URL),
		slog.String("index_prefix", cfg.OpenSearch.IndexPrefix),
	)
	return m
}

func openRateLimiter(cfg *config.Config) ratelimit.RateLimiter {
	if !cfg.RateLimit.Enabled {
		return &ratelimit.NoOpRateLimiter{}
	}
	limiter, err := ratelimit.NewRedisRateLimiter(cfg.RateLimit.RedisURL, cfg.RateLimit.Requests, cfg.RateLimit.Window, false)
	if err != nil {
		slog.Warn("Failed to initialize Redis rate limiter, continuing without rate limiting", logging.Error(err))
		return &ratelimit.NoOpRateLimiter{}
	}
	slog.Info("API rate limiting enabled",
		slog.Int("requests", cfg.RateLimit.Requests),
		slog.Duration("window", cfg.RateLimit.Window),
	)
	return limiter
}
