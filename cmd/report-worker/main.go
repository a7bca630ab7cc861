package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hackgods/dental-clinic-scheduling/internal/appointment"
	"github.com/hackgods/dental-clinic-scheduling/internal/config"
	"github.com/hackgods/dental-clinic-scheduling/internal/db"
	"github.com/hackgods/dental-clinic-scheduling/internal/observability"
	redisclient "github.com/hackgods/dental-clinic-scheduling/internal/redis"
	"github.com/hackgods/dental-clinic-scheduling/internal/report"
)

const serviceName = "report-worker"

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	observability.InitLogger(serviceName, cfg.Env, cfg.LogLevel)
	log.Info().Str("env", cfg.Env).Dur("interval", cfg.WorkerInterval).Msg("report-worker starting up")

	if !cfg.UsePostgres() || !cfg.UseRedis() {
		log.Fatal().Msg("report-worker needs both POSTGRES_DSN and Redis configured")
	}

	settings, err := cfg.ClinicSettings()
	if err != nil {
		log.Fatal().Err(err).Msg("clinic settings error")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTLPEndpoint != "" {
		shutdownMetrics, err := observability.SetupMetrics(rootCtx, serviceName, version, cfg.OTLPEndpoint)
		if err != nil {
			log.Fatal().Err(err).Msg("metrics setup error")
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownMetrics(ctx)
		}()
	}

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, 2)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		PoolSize: 2,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	repo := appointment.NewPgRepository(pgPool)
	svc := report.NewService(repo, repo, report.NewCache(rdb, cfg.ReportCacheTTL), settings.Location)

	// Run once at startup
	runOnce(rootCtx, svc)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping report worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc)
		}
	}
}

func runOnce(ctx context.Context, svc *report.Service) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	summary, err := svc.Refresh(runCtx)
	if err != nil {
		log.Error().Err(err).Msg("report refresh error")
		return
	}
	log.Info().
		Int("appointments", summary.TotalAppointments).
		Dur("took", time.Since(start)).
		Msg("report refresh complete")
}
