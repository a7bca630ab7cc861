package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hackgods/dental-clinic-scheduling/internal/clinic"
	"github.com/hackgods/dental-clinic-scheduling/internal/observability"
	redisclient "github.com/hackgods/dental-clinic-scheduling/internal/redis"
	"github.com/hackgods/dental-clinic-scheduling/internal/schedule"
)

const (
	EventAppointmentBooked        = "APPOINTMENT_BOOKED"
	EventAppointmentCancelled     = "APPOINTMENT_CANCELLED"
	EventAppointmentStatusChanged = "APPOINTMENT_STATUS_CHANGED"
)

var (
	ErrSlotUnavailable    = kindError(ErrConflict, "slot overlaps an existing appointment")
	ErrDentistBusy        = kindError(ErrConflict, "dentist schedule is being updated, please retry")
	ErrOutsideClinicHours = kindError(ErrValidation, "requested time is outside clinic hours")
	ErrInvalidStatus      = kindError(ErrValidation, "unknown appointment status")
)

// Notifier receives an Event after every committed mutation.
type Notifier interface {
	Publish(ctx context.Context, msg any) error
}

// Event is what a Notifier receives.
type Event struct {
	Type          string            `json:"type"`
	AppointmentID uuid.UUID         `json:"appointment_id"`
	PatientID     uuid.UUID         `json:"patient_id"`
	DentistID     uuid.UUID         `json:"dentist_id"`
	Status        AppointmentStatus `json:"status"`
	Start         time.Time         `json:"start"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

type Service struct {
	catalog  Catalog
	repo     Repository
	locker   redisclient.Locker
	clinic   *clinic.Settings
	notifier Notifier
	now      func() time.Time
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(catalog Catalog, repo Repository, locker redisclient.Locker, settings *clinic.Settings, opts ...Option) *Service {
	s := &Service{
		catalog: catalog,
		repo:    repo,
		locker:  locker,
		clinic:  settings,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Book reserves [req.Start, req.Start+service duration) with a dentist.
// The conflict check and the insert run under a lock held per dentist and
// clinic day, so two concurrent requests cannot both pass the check.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	if err := validateBookRequest(req); err != nil {
		return nil, err
	}

	if _, err := s.catalog.GetPatientByID(ctx, req.PatientID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if _, err := s.catalog.GetDentistByID(ctx, req.DentistID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load dentist: %w", err)
	}
	svc, err := s.catalog.GetServiceByID(ctx, req.ServiceID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load service: %w", err)
	}
	if err := svc.Validate(); err != nil {
		observability.RecordBooking(ctx, "rejected")
		return nil, err
	}

	start := req.Start.In(s.clinic.Location)
	slot := schedule.NewInterval(start, svc.Duration())

	open, ok := s.clinic.OpenInterval(start)
	if !ok || !slot.Within(open) {
		observability.RecordBooking(ctx, "rejected")
		return nil, ErrOutsideClinicHours
	}

	dayStart, dayEnd := s.clinic.DayBounds(start)

	var created *Appointment

	err = s.locker.WithLock(ctx, s.lockKey(req.DentistID, start), func(lockCtx context.Context) error {
		// Inside the critical section re-read the dentist's day; the caller's
		// slot list may be stale.
		existing, err := s.repo.ListScheduledAppointments(lockCtx, req.DentistID, dayStart, dayEnd)
		if err != nil {
			return fmt.Errorf("list scheduled appointments: %w", err)
		}
		if schedule.IsSlotBooked(slot, Intervals(existing)) {
			return ErrSlotUnavailable
		}

		appt, err := s.repo.InsertAppointment(lockCtx, Appointment{
			ID:              uuid.New(),
			PatientID:       req.PatientID,
			DentistID:       req.DentistID,
			ServiceID:       req.ServiceID,
			Start:           slot.Start,
			End:             slot.End,
			DurationMinutes: svc.DurationMinutes,
			Status:          StatusScheduled,
			CreatedAt:       s.now(),
		})
		if err != nil {
			if errors.Is(err, ErrConflict) {
				return err
			}
			return fmt.Errorf("insert appointment: %w", err)
		}

		created = appt

		s.logEvent(lockCtx, appt, EventAppointmentBooked, map[string]any{
			"service_id":       req.ServiceID.String(),
			"duration_minutes": svc.DurationMinutes,
			"end":              appt.End,
		})

		return nil
	})

	if err != nil {
		switch {
		case errors.Is(err, redisclient.ErrLockNotAcquired):
			observability.RecordBooking(ctx, "busy")
			return nil, ErrDentistBusy
		case errors.Is(err, ErrConflict):
			observability.RecordBooking(ctx, "conflict")
			return nil, err
		}
		observability.RecordBooking(ctx, "error")
		return nil, err
	}

	observability.RecordBooking(ctx, "booked")
	return created, nil
}

// Cancel moves a scheduled appointment to cancelled.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusCancelled, CanTransition, EventAppointmentCancelled)
}

// SetStatus is the staff override. See CanOverride for what it allows.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus) (*Appointment, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return s.transition(ctx, id, status, CanOverride, EventAppointmentStatusChanged)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to AppointmentStatus, allowed func(from, to AppointmentStatus) bool, eventType string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	var updated *Appointment

	err = s.locker.WithLock(ctx, s.lockKey(appt.DentistID, appt.Start), func(lockCtx context.Context) error {
		current, err := s.repo.GetAppointmentByID(lockCtx, id)
		if err != nil {
			return fmt.Errorf("reload appointment: %w", err)
		}

		if !allowed(current.Status, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, to)
		}
		if current.Status == to {
			updated = current
			return nil
		}

		u, err := s.repo.UpdateAppointmentStatus(lockCtx, id, current.Status, to)
		if err != nil {
			return fmt.Errorf("update appointment status: %w", err)
		}
		updated = u

		observability.RecordStatusChange(lockCtx, string(current.Status), string(to))
		s.logEvent(lockCtx, u, eventType, map[string]any{
			"from": current.Status,
			"to":   to,
		})
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrDentistBusy
		}
		return nil, err
	}

	return updated, nil
}

// Get retrieves one appointment by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// ListForPatient returns a patient's appointments ordered by start.
func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	return s.ListAll(ctx, ListFilter{PatientID: &patientID})
}

// ListAll returns the appointments matching filter ordered by start.
func (s *Service) ListAll(ctx context.Context, filter ListFilter) ([]Appointment, error) {
	appts, err := s.repo.ListAppointments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	SortByStart(appts)
	return appts, nil
}

func (s *Service) lockKey(dentistID uuid.UUID, start time.Time) string {
	return fmt.Sprintf("dentist:%s:%s", dentistID, s.clinic.FormatDate(start))
}

func (s *Service) logEvent(ctx context.Context, appt *Appointment, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appt.ID
	now := s.now()

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     now,
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		log.Error().Err(err).Str("event", eventType).Stringer("appointment_id", apptID).Msg("failed to insert event log")
	}

	if s.notifier == nil {
		return
	}
	msg := Event{
		Type:          eventType,
		AppointmentID: apptID,
		PatientID:     appt.PatientID,
		DentistID:     appt.DentistID,
		Status:        appt.Status,
		Start:         appt.Start,
		OccurredAt:    now,
	}
	if err := s.notifier.Publish(ctx, msg); err != nil {
		log.Warn().Err(err).Str("event", eventType).Stringer("appointment_id", apptID).Msg("failed to publish event")
	}
}

func validateBookRequest(req BookRequest) error {
	switch {
	case req.PatientID == uuid.Nil:
		return fmt.Errorf("%w: patient_id is required", ErrValidation)
	case req.DentistID == uuid.Nil:
		return fmt.Errorf("%w: dentist_id is required", ErrValidation)
	case req.ServiceID == uuid.Nil:
		return fmt.Errorf("%w: service_id is required", ErrValidation)
	case req.Start.IsZero():
		return fmt.Errorf("%w: start is required", ErrValidation)
	}
	return nil
}

// Intervals projects appointments onto their [Start, End) intervals.
func Intervals(appts []Appointment) []schedule.Interval {
	out := make([]schedule.Interval, len(appts))
	for i, a := range appts {
		out[i] = a.Interval()
	}
	return out
}

func SortByStart(appts []Appointment) {
	sort.SliceStable(appts, func(i, j int) bool {
		if appts[i].Start.Equal(appts[j].Start) {
			return appts[i].DentistID.String() < appts[j].DentistID.String()
		}
		return appts[i].Start.Before(appts[j].Start)
	})
}
