package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hackgods/dental-clinic-scheduling/internal/appointment"
	"github.com/hackgods/dental-clinic-scheduling/internal/availability"
	"github.com/hackgods/dental-clinic-scheduling/internal/clinic"
	"github.com/hackgods/dental-clinic-scheduling/internal/config"
	"github.com/hackgods/dental-clinic-scheduling/internal/db"
	"github.com/hackgods/dental-clinic-scheduling/internal/observability"
	redisclient "github.com/hackgods/dental-clinic-scheduling/internal/redis"
)

type seedOptions struct {
	dsn          string
	patients     int
	appointments int
	days         int
	seed         uint64
	skipSchema   bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	observability.InitLogger("seed", cfg.Env, cfg.LogLevel)

	opts := seedOptions{dsn: cfg.PostgresDSN}

	cmd := &cobra.Command{
		Use:          "seed",
		Short:        "Create the schema and load dentists, services, patients and sample bookings",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.dsn == "" {
				return errors.New("POSTGRES_DSN (or --dsn) is required")
			}
			settings, err := cfg.ClinicSettings()
			if err != nil {
				return err
			}
			return run(cmd.Context(), opts, settings)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.dsn, "dsn", opts.dsn, "Postgres DSN")
	f.IntVar(&opts.patients, "patients", 200, "number of fake patients")
	f.IntVar(&opts.appointments, "appointments", 50, "number of sample bookings to attempt")
	f.IntVar(&opts.days, "days", 14, "spread sample bookings over this many days around today")
	f.Uint64Var(&opts.seed, "seed", 0, "faker seed, 0 for random")
	f.BoolVar(&opts.skipSchema, "skip-schema", false, "do not apply the embedded schema")

	return cmd
}

func run(ctx context.Context, opts seedOptions, settings *clinic.Settings) error {
	log.Info().Msg("seed starting")

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(connCtx, opts.dsn, 4)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if !opts.skipSchema {
		if err := db.ApplySchema(ctx, pool); err != nil {
			return err
		}
		log.Info().Msg("schema applied")
	}

	repo := appointment.NewPgRepository(pool)

	if err := seedCatalog(ctx, repo); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}

	patients := appointment.FakePatients(opts.patients, opts.seed)
	if err := seedPatients(ctx, pool, repo, patients); err != nil {
		return fmt.Errorf("seed patients: %w", err)
	}

	if opts.appointments > 0 && len(patients) > 0 {
		if err := seedAppointments(ctx, repo, settings, patients, opts); err != nil {
			return fmt.Errorf("seed appointments: %w", err)
		}
	}

	log.Info().Msg("seed complete")
	return nil
}

func seedCatalog(ctx context.Context, repo *appointment.PgRepository) error {
	for _, d := range appointment.DefaultDentists() {
		if err := repo.UpsertDentist(ctx, d); err != nil {
			return err
		}
	}
	for _, s := range appointment.DefaultServices() {
		if err := repo.UpsertService(ctx, s); err != nil {
			return err
		}
	}
	log.Info().Int("dentists", len(appointment.DefaultDentists())).Int("services", len(appointment.DefaultServices())).Msg("catalog seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, repo *appointment.PgRepository, patients []appointment.Patient) error {
	log.Info().Int("count", len(patients)).Msg("seeding patients")

	const batchSize = 500

	for offset := 0; offset < len(patients); offset += batchSize {
		end := offset + batchSize
		if end > len(patients) {
			end = len(patients)
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for _, p := range patients[offset:end] {
			if err := repo.InsertPatient(ctx, tx, p); err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Info().Msgf("patients seeded: %d/%d", end, len(patients))
	}

	return nil
}

// seedAppointments books through the same path as the API so the sample data
// respects clinic hours and never overlaps.
func seedAppointments(ctx context.Context, repo *appointment.PgRepository, settings *clinic.Settings, patients []appointment.Patient, opts seedOptions) error {
	svc := appointment.NewService(repo, repo, redisclient.NewLocalLocker(0), settings)
	engine := availability.NewEngine(repo, repo, settings)

	dentists := appointment.DefaultDentists()
	services := appointment.DefaultServices()
	seed := int64(opts.seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	// Centre the window on today so some bookings are already in the past.
	today, _ := settings.DayBounds(time.Now())
	first := today.AddDate(0, 0, -opts.days/2)
	booked := 0

	for i := 0; i < opts.appointments; i++ {
		day := first.AddDate(0, 0, rng.Intn(max(opts.days, 1)))
		dentist := dentists[rng.Intn(len(dentists))]
		service := services[rng.Intn(len(services))]

		slots, err := engine.Compute(ctx, day, dentist.ID, service.ID)
		if err != nil {
			return err
		}

		var free []time.Time
		for _, s := range slots {
			if s.IsAvailable {
				free = append(free, s.Time)
			}
		}
		if len(free) == 0 {
			continue
		}

		appt, err := svc.Book(ctx, appointment.BookRequest{
			PatientID: patients[rng.Intn(len(patients))].ID,
			DentistID: dentist.ID,
			ServiceID: service.ID,
			Start:     free[rng.Intn(len(free))],
		})
		if err != nil {
			if errors.Is(err, appointment.ErrConflict) {
				continue
			}
			return err
		}
		booked++

		// Past appointments get an outcome so reports have something to show.
		if appt.End.Before(time.Now()) {
			outcome := []appointment.AppointmentStatus{appointment.StatusCompleted, appointment.StatusCompleted, appointment.StatusNoShow}[rng.Intn(3)]
			if _, err := svc.SetStatus(ctx, appt.ID, outcome); err != nil {
				log.Warn().Err(err).Stringer("appointment_id", appt.ID).Msg("set sample outcome")
			}
		}
	}

	log.Info().Int("booked", booked).Int("attempted", opts.appointments).Msg("sample appointments seeded")
	return nil
}
