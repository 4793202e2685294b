// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"product-entitlements/internal/config"
	"product-entitlements/internal/domain/ports/repository"
	"product-entitlements/internal/infra/api"
	"product-entitlements/internal/infra/audit"
	"product-entitlements/internal/infra/auth"
	"product-entitlements/internal/infra/catalog"
	pg "product-entitlements/internal/infra/db/postgres"
	"product-entitlements/internal/infra/logging"
	"product-entitlements/internal/infra/metrics"
	"product-entitlements/internal/infra/ratelimit"
	red "product-entitlements/internal/infra/redis"
	"product-entitlements/internal/infra/sched"
	"product-entitlements/internal/infra/worker"
	"product-entitlements/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, unredacted codes)")
	migrate := flag.Bool("migrate", false, "apply database migrations before serving")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *migrate, logger); err != nil {
		logger.Error().Err(err).Msg("exiting")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, migrate bool, logger *zerolog.Logger) error {
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	if migrate {
		if err := pg.Migrate(ctx, pool, logger); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Msg("migrations applied")
	}

	// ---- Attempt store: Redis when configured, process memory otherwise ----
	var attempts repository.AttemptStore
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer redisClient.Close()
		attempts = red.NewAttemptStore(redisClient)
		logger.Info().Str("addr", cfg.Redis.URL).Msg("rate limiter uses redis")
	} else {
		mem := ratelimit.NewMemoryStore()
		defer mem.Close()
		attempts = mem
		logger.Warn().Msg("redis.url empty; rate limiter state is per process")
	}

	// ---- Catalog ----
	products, err := catalog.FromConfig(cfg.Products)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}

	// ---- Audit sink ----
	auditPool := worker.NewPool(cfg.Audit.Workers, cfg.Audit.QueueSize, logger)
	auditPool.Start(context.Background())
	defer auditPool.Stop()
	sink := audit.NewSink(auditPool, logger.With().Str("stream", "audit").Logger(), logger)

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	codeRepo := pg.NewActivationCodeRepo(pool)
	memberRepo := pg.NewMembershipRepo(pool)
	purchaseRepo := pg.NewPostgresPurchaseRepo(pool)
	trialRepo := pg.NewTrialRepo(pool)

	// ---- Use cases ----
	activationUC := usecase.NewActivationUseCase(codeRepo, memberRepo, purchaseRepo, products, tm, sink, usecase.ActivationConfig{
		MinBatch: cfg.Activation.MinBatch,
		MaxBatch: cfg.Activation.MaxBatch,
		Dev:      cfg.Runtime.Dev,
	}, logger)
	accessUC := usecase.NewAccessUseCase(memberRepo, purchaseRepo, trialRepo, products, cfg.Trial.Grace, logger)
	trialUC := usecase.NewTrialUseCase(trialRepo, products, sink, cfg.Trial.Grace, logger)
	memberUC := usecase.NewMemberUseCase(memberRepo, tm, sink, logger)
	limiter := usecase.NewRateLimiter(attempts, limitRules(cfg.RateLimit), logger)

	// ---- HTTP ----
	srv := api.NewServer(api.Deps{
		Activation: activationUC,
		Access:     accessUC,
		Trials:     trialUC,
		Members:    memberUC,
		Limiter:    limiter,
		Catalog:    products,
		Verifier:   auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
	}, cfg.HTTP.RequestTimeout, logger)

	root := chi.NewRouter()
	root.Handle("/metrics", promhttp.Handler())
	root.Mount("/", srv.Router())
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           root,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// ---- Stats worker ----
	stats := sched.NewStatsWorker(cfg.Stats.Interval, memberUC, func() (int32, int32, int32) {
		st := pool.Stat()
		return st.TotalConns(), st.IdleConns(), st.AcquiredConns()
	}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := stats.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func limitRules(raw map[string]config.RateRule) map[usecase.Action]usecase.LimitRule {
	out := make(map[usecase.Action]usecase.LimitRule, len(raw))
	for action, r := range raw {
		out[usecase.Action(action)] = usecase.LimitRule{MaxAttempts: r.MaxAttempts, Window: r.Window}
	}
	return out
}
