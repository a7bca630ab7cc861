package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/dental-clinic-scheduling/internal/api"
	"github.com/hackgods/dental-clinic-scheduling/internal/appointment"
	"github.com/hackgods/dental-clinic-scheduling/internal/observability"
	"github.com/hackgods/dental-clinic-scheduling/internal/schedule"
)

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	Days        int
	CancelRatio float64
	ReadRatio   float64
	Contention  float64
}

type DataPool struct {
	Patients []uuid.UUID
	Dentists []uuid.UUID
	Services []uuid.UUID
	Days     []string

	mu           sync.RWMutex
	appointments []uuid.UUID // created appointment IDs
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]

	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Availability OperationMetrics
	Booking      OperationMetrics
	Cancel       OperationMetrics
	ReadByID     OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	observability.InitLogger("simulate", "dev", "info")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg SimConfig

	cmd := &cobra.Command{
		Use:          "simulate",
		Short:        "Drive concurrent bookings against the API and check that no dentist is double booked",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateConfig(cfg); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.APIBaseURL, "api", "http://localhost:8080", "API base URL")
	f.DurationVar(&cfg.Duration, "duration", 30*time.Second, "how long to generate load")
	f.IntVar(&cfg.Workers, "workers", 10, "concurrent workers")
	f.IntVar(&cfg.Days, "days", 5, "book across this many days starting tomorrow")
	f.Float64Var(&cfg.CancelRatio, "cancel-ratio", 0.1, "share of operations that cancel a booking")
	f.Float64Var(&cfg.ReadRatio, "read-ratio", 0.2, "share of operations that read a booking")
	f.Float64Var(&cfg.Contention, "contention", 0.3, "share of bookings that ignore availability and race for the first slot")

	return cmd
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("--workers must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("--duration must be > 0")
	}
	if cfg.Days <= 0 {
		return fmt.Errorf("--days must be > 0")
	}
	if cfg.CancelRatio+cfg.ReadRatio >= 1 {
		return fmt.Errorf("--cancel-ratio plus --read-ratio must leave room for bookings")
	}
	return nil
}

func run(ctx context.Context, cfg SimConfig) error {
	log.Info().
		Str("api", cfg.APIBaseURL).
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Msg("simulator starting")

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	pool, err := sim.loadDataPool(ctx)
	if err != nil {
		return fmt.Errorf("load data pool: %w", err)
	}
	sim.pool = pool

	log.Info().
		Int("patients", len(pool.Patients)).
		Int("dentists", len(pool.Dentists)).
		Int("services", len(pool.Services)).
		Strs("days", pool.Days).
		Msg("loaded reference data")

	if err := sim.Run(ctx); err != nil {
		return err
	}

	sim.PrintReport()

	overlaps, err := sim.Verify(ctx)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	if overlaps > 0 {
		return fmt.Errorf("found %d overlapping appointment pairs", overlaps)
	}
	log.Info().Msg("no overlapping scheduled appointments")
	return nil
}

func (s *Simulator) loadDataPool(ctx context.Context) (*DataPool, error) {
	var (
		patients []appointment.Patient
		dentists []appointment.Dentist
		services []appointment.Treatment
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.getJSON(gctx, "/patients", &patients) })
	g.Go(func() error { return s.getJSON(gctx, "/dentists", &dentists) })
	g.Go(func() error { return s.getJSON(gctx, "/services", &services) })
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dp := &DataPool{}
	for _, p := range patients {
		dp.Patients = append(dp.Patients, p.ID)
	}
	for _, d := range dentists {
		dp.Dentists = append(dp.Dentists, d.ID)
	}
	for _, svc := range services {
		dp.Services = append(dp.Services, svc.ID)
	}

	tomorrow := time.Now().AddDate(0, 0, 1)
	for i := 0; i < s.config.Days; i++ {
		dp.Days = append(dp.Days, tomorrow.AddDate(0, 0, i).Format("2006-01-02"))
	}

	if len(dp.Patients) == 0 || len(dp.Dentists) == 0 || len(dp.Services) == 0 {
		return nil, errors.New("the API has no patients, dentists or services; run the seeder first")
	}

	return dp, nil
}

func (s *Simulator) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.Duration)
	defer cancel()

	log.Info().Msgf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.config.Workers; i++ {
		workerID := i
		g.Go(func() error {
			s.worker(gctx, workerID)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("simulation complete")
	return nil
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.CancelRatio:
				s.doCancel(ctx, rng)
			case r < s.config.CancelRatio+s.config.ReadRatio:
				s.doReadByID(ctx, rng)
			default:
				s.doBooking(ctx, rng)
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	dentistID := s.pool.Dentists[rng.Intn(len(s.pool.Dentists))]
	serviceID := s.pool.Services[rng.Intn(len(s.pool.Services))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	day := s.pool.Days[rng.Intn(len(s.pool.Days))]

	q := url.Values{}
	q.Set("date", day)
	q.Set("dentist_id", dentistID.String())
	q.Set("service_id", serviceID.String())

	var avail api.AvailabilityResponse
	start := time.Now()
	err := s.getJSON(ctx, "/availability?"+q.Encode(), &avail)
	s.metrics.Availability.Record(time.Since(start), err == nil, false)
	if err != nil || len(avail.Slots) == 0 {
		return
	}

	var slot schedule.TimeSlot
	if rng.Float64() < s.config.Contention {
		// Everyone piles onto the first slot of the day.
		slot = avail.Slots[0]
	} else {
		var free []schedule.TimeSlot
		for _, sl := range avail.Slots {
			if sl.IsAvailable {
				free = append(free, sl)
			}
		}
		if len(free) == 0 {
			return
		}
		slot = free[rng.Intn(len(free))]
	}

	body, _ := json.Marshal(api.BookAppointmentRequest{
		PatientID: patientID.String(),
		DentistID: dentistID.String(),
		ServiceID: serviceID.String(),
		Start:     slot.Time.Format(time.RFC3339),
	})

	start = time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/appointments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated:
			success = true
			var appt api.AppointmentResponse
			if json.NewDecoder(resp.Body).Decode(&appt) == nil && appt.ID != uuid.Nil {
				s.pool.AddAppointment(appt.ID)
			}
		case http.StatusConflict:
			conflict = true
		}
	}

	s.metrics.Booking.Record(latency, success, conflict)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/appointments/%s/cancel", s.config.APIBaseURL, apptID), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			success = true
		} else if resp.StatusCode == http.StatusConflict {
			conflict = true
		}
	}

	s.metrics.Cancel.Record(latency, success, conflict)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	var appt api.AppointmentResponse
	start := time.Now()
	err := s.getJSON(ctx, "/appointments/"+apptID.String(), &appt)
	s.metrics.ReadByID.Record(time.Since(start), err == nil, false)
}

// Verify lists every dentist's scheduled appointments and counts pairs that
// overlap.
func (s *Simulator) Verify(ctx context.Context) (int, error) {
	var overlaps int64

	g, gctx := errgroup.WithContext(ctx)
	for _, dentistID := range s.pool.Dentists {
		dentistID := dentistID
		g.Go(func() error {
			q := url.Values{}
			q.Set("dentist_id", dentistID.String())
			q.Set("status", string(appointment.StatusScheduled))

			var list api.AppointmentListResponse
			if err := s.getJSON(gctx, "/appointments?"+q.Encode(), &list); err != nil {
				return err
			}

			appts := list.Appointments
			for i := range appts {
				for j := i + 1; j < len(appts); j++ {
					a := schedule.Interval{Start: appts[i].Start, End: appts[i].End}
					b := schedule.Interval{Start: appts[j].Start, End: appts[j].End}
					if schedule.Overlaps(a, b) {
						atomic.AddInt64(&overlaps, 1)
						log.Error().
							Stringer("dentist_id", dentistID).
							Stringer("first", appts[i].ID).
							Stringer("second", appts[j].ID).
							Msg("overlapping appointments")
					}
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}
	return int(overlaps), nil
}

func (s *Simulator) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.APIBaseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Availability", &s.metrics.Availability)
	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func repeat(s string, n int) string {
	return strings.Repeat(s, n)
}
