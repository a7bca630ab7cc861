package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/dental-clinic-scheduling/internal/appointment"
	"github.com/hackgods/dental-clinic-scheduling/internal/clinic"
	"github.com/hackgods/dental-clinic-scheduling/internal/observability"
	"github.com/hackgods/dental-clinic-scheduling/internal/schedule"
)

// Engine answers "which start times can this dentist take this service on
// this day".
type Engine struct {
	catalog appointment.Catalog
	repo    appointment.Repository
	clinic  *clinic.Settings
}

func NewEngine(catalog appointment.Catalog, repo appointment.Repository, settings *clinic.Settings) *Engine {
	return &Engine{
		catalog: catalog,
		repo:    repo,
		clinic:  settings,
	}
}

// Compute returns every candidate slot of the day in chronological order,
// available or not. A closed day yields an empty slice and no error.
func (e *Engine) Compute(ctx context.Context, date time.Time, dentistID, serviceID uuid.UUID) ([]schedule.TimeSlot, error) {
	started := time.Now()

	svc, err := e.catalog.GetServiceByID(ctx, serviceID)
	if err != nil {
		if errors.Is(err, appointment.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load service: %w", err)
	}
	if _, err := e.catalog.GetDentistByID(ctx, dentistID); err != nil {
		if errors.Is(err, appointment.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load dentist: %w", err)
	}

	open, ok := e.clinic.OpenInterval(date)
	if !ok {
		return []schedule.TimeSlot{}, nil
	}

	starts := schedule.GenerateSlots(open, e.clinic.SlotDuration(), svc.Duration())
	if len(starts) == 0 {
		return []schedule.TimeSlot{}, nil
	}

	dayStart, dayEnd := e.clinic.DayBounds(date)
	existing, err := e.repo.ListScheduledAppointments(ctx, dentistID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("list scheduled appointments: %w", err)
	}
	booked := appointment.Intervals(existing)

	slots := make([]schedule.TimeSlot, 0, len(starts))
	free := 0
	for _, start := range starts {
		candidate := schedule.NewInterval(start, svc.Duration())
		available := !schedule.IsSlotBooked(candidate, booked)
		if available {
			free++
		}
		slots = append(slots, schedule.TimeSlot{
			Time:        candidate.Start,
			End:         candidate.End,
			IsAvailable: available,
		})
	}

	elapsed := time.Since(started)
	observability.RecordAvailability(ctx, elapsed, len(slots))
	observability.LoggerFromContext(ctx).Debug().
		Stringer("dentist_id", dentistID).
		Stringer("service_id", serviceID).
		Str("date", e.clinic.FormatDate(date)).
		Int("slots", len(slots)).
		Int("available", free).
		Dur("took", elapsed).
		Msg("availability computed")

	return slots, nil
}
