package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Error kinds. Every error returned by this package matches at most one of
// them with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrValidation        = errors.New("validation failed")
)

var (
	ErrPatientNotFound     = kindError(ErrNotFound, "patient not found")
	ErrDentistNotFound     = kindError(ErrNotFound, "dentist not found")
	ErrServiceNotFound     = kindError(ErrNotFound, "service not found")
	ErrAppointmentNotFound = kindError(ErrNotFound, "appointment not found")

	// ErrStatusChanged is returned by UpdateAppointmentStatus when the stored
	// status no longer equals the expected one.
	ErrStatusChanged = kindError(ErrConflict, "appointment status changed concurrently")
)

type kindErr struct {
	kind error
	msg  string
}

func kindError(kind error, msg string) error {
	return &kindErr{kind: kind, msg: msg}
}

func (e *kindErr) Error() string { return e.msg }
func (e *kindErr) Unwrap() error { return e.kind }

// Catalog is the read-only reference data: patients, dentists and services.
type Catalog interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetDentistByID(ctx context.Context, id uuid.UUID) (*Dentist, error)
	GetServiceByID(ctx context.Context, id uuid.UUID) (*Treatment, error)
	ListPatients(ctx context.Context) ([]Patient, error)
	ListDentists(ctx context.Context) ([]Dentist, error)
	ListServices(ctx context.Context) ([]Treatment, error)
}

// Repository is the persistence provider for appointments.
type Repository interface {
	// For conflict checks: scheduled appointments of a dentist starting in [from, to)
	ListScheduledAppointments(ctx context.Context, dentistID uuid.UUID, from, to time.Time) ([]Appointment, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, filter ListFilter) ([]Appointment, error)

	// Creation and updates
	InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

// Store is a Repository that also serves the catalog.
type Store interface {
	Catalog
	Repository
}
