package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/dental-clinic-scheduling/internal/appointment"
	"github.com/hackgods/dental-clinic-scheduling/internal/clinic"
	"github.com/hackgods/dental-clinic-scheduling/internal/schedule"
)

type BookAppointmentRequest struct {
	PatientID string `json:"patient_id"`
	DentistID string `json:"dentist_id"`
	ServiceID string `json:"service_id"`
	Start     string `json:"start"` // RFC 3339
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	PatientID       uuid.UUID `json:"patient_id"`
	DentistID       uuid.UUID `json:"dentist_id"`
	ServiceID       uuid.UUID `json:"service_id"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// toAppointmentResponse renders times in the clinic's timezone.
func toAppointmentResponse(a appointment.Appointment, loc *time.Location) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		DentistID:       a.DentistID,
		ServiceID:       a.ServiceID,
		Start:           a.Start.In(loc),
		End:             a.End.In(loc),
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Count        int                   `json:"count"`
}

type AvailabilityResponse struct {
	Date      string              `json:"date"`
	DentistID uuid.UUID           `json:"dentist_id"`
	ServiceID uuid.UUID           `json:"service_id"`
	Slots     []schedule.TimeSlot `json:"slots"`
}

type ClinicSettingsResponse struct {
	Timezone            string                `json:"timezone"`
	SlotDurationMinutes int                   `json:"slot_duration_minutes"`
	Holidays            []string              `json:"holidays"`
	WorkingHours        []clinic.WorkingHours `json:"working_hours"`
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
