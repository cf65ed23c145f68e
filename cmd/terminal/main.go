package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/packfinderz-pos/api/controllers"
	"github.com/angelmondragon/packfinderz-pos/api/routes"
	"github.com/angelmondragon/packfinderz-pos/internal/connectivity"
	"github.com/angelmondragon/packfinderz-pos/internal/cron"
	"github.com/angelmondragon/packfinderz-pos/internal/promotions"
	"github.com/angelmondragon/packfinderz-pos/internal/queue"
	"github.com/angelmondragon/packfinderz-pos/internal/salesapi"
	"github.com/angelmondragon/packfinderz-pos/internal/salesync"
	"github.com/angelmondragon/packfinderz-pos/internal/stockplan"
	"github.com/angelmondragon/packfinderz-pos/internal/submission"
	"github.com/angelmondragon/packfinderz-pos/pkg/config"
	"github.com/angelmondragon/packfinderz-pos/pkg/db"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
	"github.com/angelmondragon/packfinderz-pos/pkg/metrics"
	"github.com/angelmondragon/packfinderz-pos/pkg/migrate"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "terminal"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "terminal",
		TerminalID:  cfg.Terminal.ID,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":     cfg.App.Env,
		"storeId": cfg.Terminal.StoreID,
	})

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "terminal stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "terminal shut down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	syncMetrics := metrics.NewSyncMetrics(reg)

	q, readyChecks, err := openQueue(ctx, cfg, logg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, q.Close())
	}()

	client, err := salesapi.NewClient(cfg.SalesAPI.BaseURL,
		salesapi.WithToken(cfg.SalesAPI.Token),
		salesapi.WithHTTPClient(&http.Client{Timeout: cfg.SalesAPI.Timeout}),
	)
	if err != nil {
		return fmt.Errorf("sales api client: %w", err)
	}
	breaker := salesapi.NewBreaker(client, salesapi.BreakerSettings{
		MaxFailures:      cfg.SalesAPI.BreakerFailures,
		OpenTimeout:      cfg.SalesAPI.BreakerOpenTimeout,
		HalfOpenRequests: cfg.SalesAPI.BreakerHalfOpenProbe,
		OnOpenChange:     syncMetrics.SetBreakerOpen,
	}, logg)

	promos := promotions.NewCache(client, cfg.SalesAPI.PromotionsCacheTTL, promotions.WithLogger(logg))
	monitor := connectivity.NewMonitor(client, cfg.Connectivity.ProbeInterval, cfg.Connectivity.ProbeTimeout, logg)

	scheduler, err := salesync.NewService(salesync.ServiceParams{
		Config:       cfg.Sync,
		Logger:       logg,
		Queue:        q,
		Submitter:    breaker,
		Connectivity: monitor,
		Metrics:      syncMetrics,
	})
	if err != nil {
		return fmt.Errorf("sync scheduler: %w", err)
	}

	var planner stockplan.Planner
	if cfg.FeatureFlags.StockPlanning {
		planner, err = stockplan.NewClient(cfg.SalesAPI.PlannerURL(),
			stockplan.WithHTTPClient(&http.Client{Timeout: cfg.SalesAPI.Timeout}),
		)
		if err != nil {
			return fmt.Errorf("stock planner client: %w", err)
		}
	}

	facade, err := submission.NewService(submission.ServiceParams{
		TerminalID:    cfg.Terminal.ID,
		DirectTimeout: cfg.Sync.DirectTimeout,
		Logger:        logg,
		Queue:         q,
		Submitter:     breaker,
		Promotions:    promos,
		Planner:       planner,
		Scheduler:     scheduler,
		Metrics:       syncMetrics,
	})
	if err != nil {
		return fmt.Errorf("submission service: %w", err)
	}

	cronService, err := newCronService(cfg, logg, q, promos, syncMetrics, reg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr: ":" + cfg.App.Port,
		Handler: routes.NewRouter(routes.Deps{
			Config:      cfg,
			Logger:      logg,
			Submission:  facade,
			Scheduler:   scheduler,
			Queue:       q,
			Gatherer:    reg,
			ReadyChecks: readyChecks,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return monitor.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error { return cronService.Run(gctx) })
	g.Go(func() error {
		logg.Info(logg.WithField(gctx, "addr", srv.Addr), "starting terminal api")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("terminal api: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openQueue opens the configured queue backend. The SQLite store shares the
// terminal database; the bolt store keeps its own file.
func openQueue(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*queue.Queue, []controllers.ReadyCheck, error) {
	if cfg.Queue.IsBolt() {
		store, err := queue.OpenBoltStore(cfg.Queue.BoltPath, cfg.Queue.BoltTimeout)
		if err != nil {
			return nil, nil, fmt.Errorf("open bolt queue: %w", err)
		}
		q, err := queue.New(store)
		if err != nil {
			return nil, nil, multierr.Append(err, store.Close())
		}
		logg.Info(logg.WithField(ctx, "path", cfg.Queue.BoltPath), "bolt queue opened")
		return q, []controllers.ReadyCheck{{Name: "queue", Check: func(ctx context.Context) error {
			_, err := q.Count(ctx)
			return err
		}}}, nil
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap database: %w", err)
	}
	if err := migrate.MaybeRun(ctx, cfg, logg, dbClient); err != nil {
		return nil, nil, multierr.Append(fmt.Errorf("run migrations: %w", err), dbClient.Close())
	}
	store, err := queue.NewGormStore(dbClient)
	if err != nil {
		return nil, nil, multierr.Append(err, dbClient.Close())
	}
	q, err := queue.New(store)
	if err != nil {
		return nil, nil, multierr.Append(err, dbClient.Close())
	}
	return q, []controllers.ReadyCheck{{Name: "database", Check: dbClient.Ping}}, nil
}

func newCronService(
	cfg *config.Config,
	logg *logger.Logger,
	q *queue.Queue,
	promos *promotions.Cache,
	syncMetrics *metrics.SyncMetrics,
	reg prometheus.Registerer,
) (*cron.Service, error) {
	audit, err := cron.NewQueueAuditJob(cron.QueueAuditJobParams{
		Logger:         logg,
		Queue:          q,
		Metrics:        syncMetrics,
		StaleThreshold: cfg.Cron.StaleThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("queue audit job: %w", err)
	}
	refresh, err := cron.NewPromotionsRefreshJob(logg, promos)
	if err != nil {
		return nil, fmt.Errorf("promotions refresh job: %w", err)
	}
	registry, err := cron.NewRegistry(audit, refresh)
	if err != nil {
		return nil, fmt.Errorf("cron registry: %w", err)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Metrics:  metrics.NewHousekeepingMetrics(reg),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return nil, fmt.Errorf("cron service: %w", err)
	}
	return service, nil
}
