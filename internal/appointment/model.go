package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/dental-clinic-scheduling/internal/schedule"
)

type Patient struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     *string   `json:"email,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Dentist struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Specialty string    `json:"specialty"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
}

// Treatment is a bookable clinic service, e.g. a cleaning or an extraction.
type Treatment struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"duration_minutes"`
}

func (s Treatment) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// Validate rejects treatments that would produce an empty or inverted
// appointment interval.
func (s Treatment) Validate() error {
	switch {
	case s.ID == uuid.Nil:
		return fmt.Errorf("%w: service id is required", ErrValidation)
	case s.DurationMinutes <= 0:
		return fmt.Errorf("%w: service %q duration must be positive, got %d minutes", ErrValidation, s.Name, s.DurationMinutes)
	}
	return nil
}

// Appointment keeps the service duration it was booked with so later catalog
// edits never move its end time.
type Appointment struct {
	ID              uuid.UUID         `json:"id"`
	PatientID       uuid.UUID         `json:"patient_id"`
	DentistID       uuid.UUID         `json:"dentist_id"`
	ServiceID       uuid.UUID         `json:"service_id"`
	Start           time.Time         `json:"start"`
	End             time.Time         `json:"end"`
	DurationMinutes int               `json:"duration_minutes"`
	Status          AppointmentStatus `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func (a Appointment) Interval() schedule.Interval {
	return schedule.Interval{Start: a.Start, End: a.End}
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// ListFilter narrows ListAppointments. Zero fields match everything; From and
// To bound the appointment start as [From, To).
type ListFilter struct {
	PatientID *uuid.UUID
	DentistID *uuid.UUID
	Status    *AppointmentStatus
	From      *time.Time
	To        *time.Time
}

func (f ListFilter) Match(a Appointment) bool {
	if f.PatientID != nil && a.PatientID != *f.PatientID {
		return false
	}
	if f.DentistID != nil && a.DentistID != *f.DentistID {
		return false
	}
	if f.Status != nil && a.Status != *f.Status {
		return false
	}
	if f.From != nil && a.Start.Before(*f.From) {
		return false
	}
	if f.To != nil && !a.Start.Before(*f.To) {
		return false
	}
	return true
}

// BookRequest is the input to Service.Book.
type BookRequest struct {
	PatientID uuid.UUID
	DentistID uuid.UUID
	ServiceID uuid.UUID
	Start     time.Time
}
