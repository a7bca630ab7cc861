package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hackgods/dental-clinic-scheduling/internal/appointment"
	"github.com/hackgods/dental-clinic-scheduling/internal/observability"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// errorCodes is checked in order; specific errors come before the kind they
// wrap.
var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{appointment.ErrPatientNotFound, http.StatusNotFound, "patient_not_found"},
	{appointment.ErrDentistNotFound, http.StatusNotFound, "dentist_not_found"},
	{appointment.ErrServiceNotFound, http.StatusNotFound, "service_not_found"},
	{appointment.ErrAppointmentNotFound, http.StatusNotFound, "appointment_not_found"},
	{appointment.ErrNotFound, http.StatusNotFound, "not_found"},

	{appointment.ErrSlotUnavailable, http.StatusConflict, "slot_unavailable"},
	{appointment.ErrDentistBusy, http.StatusConflict, "dentist_busy"},
	{appointment.ErrConflict, http.StatusConflict, "conflict"},

	{appointment.ErrInvalidTransition, http.StatusConflict, "invalid_status_transition"},

	{appointment.ErrOutsideClinicHours, http.StatusBadRequest, "outside_clinic_hours"},
	{appointment.ErrInvalidStatus, http.StatusBadRequest, "invalid_status"},
	{appointment.ErrValidation, http.StatusBadRequest, "validation_failed"},
}

// writeServiceError maps a domain error onto its HTTP status. Anything not
// recognised is logged and reported as a 500 without internals.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorCodes {
		if errors.Is(err, m.err) {
			writeError(w, m.status, m.code, err.Error())
			return
		}
	}

	observability.LoggerFromContext(r.Context()).Error().Err(err).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}
