// Package app assembles the job pool process from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/jdziat/simple-job-pool/api"
	"github.com/jdziat/simple-job-pool/pkg/config"
	"github.com/jdziat/simple-job-pool/pkg/core"
	"github.com/jdziat/simple-job-pool/pkg/executor"
	"github.com/jdziat/simple-job-pool/pkg/metrics"
	"github.com/jdziat/simple-job-pool/pkg/queue"
	"github.com/jdziat/simple-job-pool/pkg/retention"
	"github.com/jdziat/simple-job-pool/pkg/storage"
	"github.com/jdziat/simple-job-pool/pkg/worker"
)

var errWorkersStopped = errors.New("worker pool is not running")

// App owns every long-running component of the process.
type App struct {
	cfg      *config.Config
	log      *slog.Logger
	queue    *queue.Queue
	pool     *worker.Pool
	janitor  *retention.Janitor
	archive  *storage.GormArchive
	registry *prometheus.Registry
	handler  http.Handler
}

// New builds the application. Nothing runs until Run is called.
func New(cfg *config.Config, log *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log}

	queueOpts := []queue.Option{
		queue.Retries(cfg.Jobs.MaxRetries),
		queue.WithLogger(log),
	}
	if cfg.Archive.Enabled() {
		archive, err := openArchive(cfg.Archive)
		if err != nil {
			return nil, err
		}
		a.archive = archive
		queueOpts = append(queueOpts, queue.WithArchive(archive))
	}
	a.queue = queue.New(queueOpts...)

	a.pool = worker.NewPool(a.queue,
		worker.Concurrency(cfg.Pool.Workers),
		worker.PollInterval(cfg.Pool.PollInterval),
		worker.WithLogger(log),
		worker.WithExecutor(executor.NewSimulated(
			executor.Duration(cfg.Executor.Duration),
			executor.FailureRate(cfg.Executor.FailureRate),
		)),
	)

	janitor, err := retention.New(a.queue,
		retention.TTL(cfg.Retention.TTL),
		retention.Schedule(cfg.Retention.Schedule),
		retention.BatchSize(cfg.Retention.BatchSize),
		retention.WithLogger(log),
	)
	if err != nil {
		a.closeArchive()
		return nil, err
	}
	a.janitor = janitor

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if _, err := metrics.Register(a.registry, a.queue); err != nil {
		a.closeArchive()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	apiOpts := []api.Option{
		api.WithLogger(log),
		api.WithMetrics(a.registry),
		api.WithCheck("workers", a.checkWorkers),
	}
	if a.archive != nil {
		apiOpts = append(apiOpts, api.WithCheck("archive", a.checkArchive))
	}
	a.handler = api.Handler(a.queue, apiOpts...)

	return a, nil
}

func openArchive(cfg config.Archive) (*storage.GormArchive, error) {
	db, err := storage.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	archive, err := storage.NewGormArchiveWithPool(db, storage.WithPoolConfig(storage.ArchivePoolConfigFor(cfg.DSN)))
	if err == nil {
		err = archive.Migrate(context.Background())
	}
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, fmt.Errorf("failed to prepare archive: %w", err)
	}
	return archive, nil
}

// Queue returns the application queue.
func (a *App) Queue() *queue.Queue {
	return a.queue
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run serves HTTP on the configured address until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.HTTP.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve runs the worker pool, the retention janitor and the HTTP server on
// ln. When ctx is cancelled the server stops accepting requests, in-flight
// jobs are resolved and Serve returns nil.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	defer a.closeArchive()

	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range []core.Starter{a.pool, a.janitor} {
		g.Go(func() error {
			return ignoreCanceled(s.Start(gctx))
		})
	}
	g.Go(func() error {
		a.log.Info("http server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		a.log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (a *App) checkWorkers(context.Context) error {
	if !a.pool.Running() {
		return errWorkersStopped
	}
	return nil
}

func (a *App) checkArchive(ctx context.Context) error {
	sqlDB, err := a.archive.DB().DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (a *App) closeArchive() {
	if a.archive == nil {
		return
	}
	if sqlDB, err := a.archive.DB().DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
