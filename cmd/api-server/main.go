package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/dental-clinic-scheduling/internal/api"
	"github.com/hackgods/dental-clinic-scheduling/internal/appointment"
	"github.com/hackgods/dental-clinic-scheduling/internal/availability"
	"github.com/hackgods/dental-clinic-scheduling/internal/config"
	"github.com/hackgods/dental-clinic-scheduling/internal/db"
	"github.com/hackgods/dental-clinic-scheduling/internal/observability"
	redisclient "github.com/hackgods/dental-clinic-scheduling/internal/redis"
	"github.com/hackgods/dental-clinic-scheduling/internal/report"
)

const serviceName = "api-server"

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	observability.InitLogger(serviceName, cfg.Env, cfg.LogLevel)
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Str("version", version).Msg("api-server starting up")

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
			if err := shutdownMetrics(ctx); err != nil {
				log.Warn().Err(err).Msg("metrics shutdown error")
			}
		}()
	}

	var (
		catalog appointment.Catalog
		repo    appointment.Repository
		pgPool  *pgxpool.Pool
	)

	if cfg.UsePostgres() {
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err = db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PostgresMaxConns)
		if err == nil {
			err = db.ApplySchema(pgCtx, pgPool)
		}
		cancelPg()
		if err != nil {
			log.Fatal().Err(err).Msg("postgres setup error")
		}
		defer pgPool.Close()
		log.Info().Msg("connected to Postgres")

		pg := appointment.NewPgRepository(pgPool)
		catalog, repo = pg, pg
	} else {
		mem := appointment.NewMemoryStore()
		mem.SeedCatalog()
		for i, p := range appointment.FakePatients(20, 0) {
			mem.AddPatient(p)
			if i < 3 {
				log.Info().Stringer("patient_id", p.ID).Str("name", p.Name).Msg("demo patient")
			}
		}
		catalog, repo = mem, mem
		log.Warn().Msg("POSTGRES_DSN not set, using the in-memory store")
	}

	var (
		locker redisclient.Locker = redisclient.NewLocalLocker(cfg.LockWait)
		cache  report.SummaryCache
		rdb    *redis.Client
		opts   []appointment.Option
	)

	if cfg.UseRedis() {
		rdb, err = redisclient.NewRedisClient(rootCtx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
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

		locker = redisclient.NewRedisLocker(rdb, cfg.LockTTL, cfg.LockWait)
		cache = report.NewCache(rdb, cfg.ReportCacheTTL)
		opts = append(opts, appointment.WithNotifier(redisclient.NewPublisher(rdb, cfg.EventsChannel)))
	} else if cfg.UsePostgres() {
		log.Warn().Msg("REDIS_ADDR not set, dentist locks are local to this process")
	}

	handler := api.NewRouter(api.RouterConfig{
		Appointments: appointment.NewService(catalog, repo, locker, settings, opts...),
		Availability: availability.NewEngine(catalog, repo, settings),
		Reports:      report.NewService(catalog, repo, cache, settings.Location),
		Catalog:      catalog,
		Clinic:       settings,
		PgPool:       pgPool,
		Redis:        rdb,
		Env:          cfg.Env,
		Version:      version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(rootCtx)

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down api-server")

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(ctx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("api-server stopped with error")
		return
	}
	log.Info().Msg("api-server stopped")
}
