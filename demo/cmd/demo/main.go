package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/telhawk-systems/exception-monitor/common/logging"
	"github.com/telhawk-systems/exception-monitor/demo/internal/app"
	"github.com/telhawk-systems/exception-monitor/reporter"
)

const version = "1.2.0"

func main() {
	configPath := flag.String("config", "", "path to reporter config file")
	port := flag.Int("port", 8081, "HTTP port")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger := logging.New(logging.ParseLevel(*logLevel), "json").With(logging.Service("demo"))
	logging.SetDefault(logger)

	cfg, err := reporter.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load reporter config: %v", err)
	}
	if cfg.ComponentName == "" {
		cfg.ComponentName = "demo"
	}
	if cfg.PodName == "" {
		cfg.PodName, _ = os.Hostname()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *port, logger); err != nil {
		slog.Error("Demo stopped with error", logging.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg reporter.Config, port int, logger *logging.Logger) error {
	rep, err := reporter.Connect(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rep.Close(closeCtx); err != nil {
			slog.Warn("Reporter did not drain cleanly", logging.Error(err))
		}
	}()

	h := app.NewHandler(app.NewService(), rep, cfg, version)
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           app.NewRouter(h, rep),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Demo listening",
			slog.Int("port", port),
			slog.String("project", cfg.ProjectName),
			slog.String("bus", cfg.Bus.Servers),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down demo")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
