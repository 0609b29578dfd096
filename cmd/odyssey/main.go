package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-pos/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-pos/internal/app"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/warehouses"
	"github.com/odyssey-erp/odyssey-pos/internal/observability"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/receipts"
	"github.com/odyssey-erp/odyssey-pos/internal/sales/orders"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/jobs"
	"github.com/odyssey-erp/odyssey-pos/migrations"
)

const usage = `usage: odyssey [command]

commands:
  serve                     run the HTTP API (default)
  migrate [up|status]       apply or list database migrations
  jobs trigger <task> [-tenant N]
  jobs stats                show queue depth`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}
	switch cmd {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "migrate":
		err = migrate(ctx, cfg, logger, args)
	case "jobs":
		err = jobsCommand(ctx, cfg, args)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error(cmd, slog.Any("error", err))
		os.Exit(1)
	}
}

func migrate(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) error {
	pool, err := db.New(ctx, db.PoolConfig{DSN: cfg.PGDSN, MaxConns: 2})
	if err != nil {
		return err
	}
	defer pool.Close()

	action := "up"
	if len(args) > 0 {
		action = args[0]
	}
	switch action {
	case "up":
		return db.Migrate(ctx, pool, migrations.FS, logger)
	case "status":
		states, err := db.MigrationStatus(ctx, pool, migrations.FS)
		if err != nil {
			return err
		}
		for _, st := range states {
			state := "pending"
			if st.Applied {
				state = "applied"
			}
			fmt.Printf("%05d  %-8s %s\n", st.Version, state, st.Path)
		}
		return nil
	default:
		return fmt.Errorf("migrate: unknown action %q", action)
	}
}

func jobsCommand(ctx context.Context, cfg *app.Config, args []string) error {
	helper := cli.NewJobsCLI(cache.Options{Addr: cfg.RedisAddr}.AsynqOpts())
	defer helper.Close()

	if len(args) == 0 {
		return errors.New(usage)
	}
	switch args[0] {
	case "trigger":
		fs := flag.NewFlagSet("jobs trigger", flag.ContinueOnError)
		tenant := fs.Int64("tenant", 0, "tenant to scope the job to, 0 for all")
		if len(args) < 2 {
			return errors.New("jobs trigger: task name required")
		}
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		info, err := helper.Trigger(ctx, args[1], *tenant)
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return nil
	case "stats":
		stats, err := helper.InspectQueues(ctx)
		if err != nil {
			return err
		}
		for _, s := range stats {
			fmt.Printf("%-9s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
				s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
		}
		voids, err := helper.ListReceiptVoidRetries(20)
		if err != nil {
			return err
		}
		for _, t := range voids {
			fmt.Printf("receipt void %s retried=%d next=%s\n", t.ID, t.Retried, t.NextProcessAt.Format(time.RFC3339))
		}
		return nil
	default:
		return fmt.Errorf("jobs: unknown action %q", args[0])
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, db.PoolConfig{DSN: cfg.PGDSN})
	if err != nil {
		return err
	}
	defer pool.Close()

	redisOpts := cache.Options{Addr: cfg.RedisAddr}
	var redisClient *redis.Client
	if client, err := cache.New(ctx, redisOpts); err != nil {
		logger.Warn("redis unavailable, order leases disabled", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	jobClient, err := jobs.NewClient(redisOpts.AsynqOpts())
	if err != nil {
		return err
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts.AsynqOpts())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	warehouseService := warehouses.NewService(warehouses.NewRepository(pool))

	inventoryRepo := inventory.NewRepository(pool, cfg.TxMaxRetries)
	adjuster := inventory.NewAdjuster(inventory.ShortfallPolicy(cfg.ShortfallPolicy))
	inventoryService := inventory.NewService(inventoryRepo, adjuster, auditLogger, idempotencyStore, logger)

	receiptService := receipts.NewService(receipts.NewRepository(pool), auditLogger, logger)
	cascade := receipts.NewCascade(receiptService, jobClient, metrics.Fulfillment(), logger)

	orderService := orders.NewService(orders.NewRepository(pool, cfg.TxMaxRetries), inventoryService, cfg.OrdersConfig(), logger)
	orderService.SetVoider(cascade)
	orderService.SetNotifier(jobClient)
	orderService.SetAudit(auditLogger)
	orderService.SetMetrics(metrics.Fulfillment())
	if redisClient != nil {
		orderService.SetLocker(shared.NewLeaseManager(redisClient, shared.LeaseOptions{Wait: 2 * time.Second}))
	}

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		OrdersHandler:     orders.NewHandler(logger, orderService),
		InventoryHandler:  inventory.NewHandler(logger, inventoryService),
		WarehousesHandler: warehouses.NewHandler(logger, warehouseService),
		ReceiptsHandler:   receipts.NewHandler(logger, receiptService),
		JobHandler:        jobs.NewHandler(inspector, logger),
		Metrics:           metrics,
		Ready:             readiness(pool),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.String("inventory_mode", cfg.InventoryMode),
			slog.String("shortfall_policy", cfg.ShortfallPolicy),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func readiness(pool *pgxpool.Pool) func(*http.Request) error {
	return func(r *http.Request) error {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		return pool.Ping(ctx)
	}
}
