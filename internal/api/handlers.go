package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/dental-clinic-scheduling/internal/appointment"
	"github.com/hackgods/dental-clinic-scheduling/internal/availability"
	"github.com/hackgods/dental-clinic-scheduling/internal/clinic"
	"github.com/hackgods/dental-clinic-scheduling/internal/report"
)

func bookAppointmentHandler(svc *appointment.Service, settings *clinic.Settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		dentistID, err := uuid.Parse(req.DentistID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_dentist_id", "dentist_id must be a valid UUID")
			return
		}
		serviceID, err := uuid.Parse(req.ServiceID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
			return
		}
		start, err := time.Parse(time.RFC3339, req.Start)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start", "start must be an RFC 3339 timestamp")
			return
		}

		appt, err := svc.Book(r.Context(), appointment.BookRequest{
			PatientID: patientID,
			DentistID: dentistID,
			ServiceID: serviceID,
			Start:     start,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt, settings.Location))
	}
}

func listAppointmentsHandler(svc *appointment.Service, settings *clinic.Settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseListFilter(r, settings)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}

		var appts []appointment.Appointment
		if filter.PatientID != nil && filter.DentistID == nil && filter.Status == nil && filter.From == nil && filter.To == nil {
			appts, err = svc.ListForPatient(r.Context(), *filter.PatientID)
		} else {
			appts, err = svc.ListAll(r.Context(), filter)
		}
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := AppointmentListResponse{
			Appointments: make([]AppointmentResponse, 0, len(appts)),
			Count:        len(appts),
		}
		for _, a := range appts {
			resp.Appointments = append(resp.Appointments, toAppointmentResponse(a, settings.Location))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getAppointmentHandler(svc *appointment.Service, settings *clinic.Settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt, settings.Location))
	}
}

func cancelAppointmentHandler(svc *appointment.Service, settings *clinic.Settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.Cancel(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt, settings.Location))
	}
}

func updateStatusHandler(svc *appointment.Service, settings *clinic.Settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		var req UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.SetStatus(r.Context(), id, appointment.AppointmentStatus(req.Status))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt, settings.Location))
	}
}

func availabilityHandler(engine *availability.Engine, settings *clinic.Settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		date, err := settings.ParseDate(q.Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		dentistID, err := uuid.Parse(q.Get("dentist_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_dentist_id", "dentist_id must be a valid UUID")
			return
		}
		serviceID, err := uuid.Parse(q.Get("service_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
			return
		}

		slots, err := engine.Compute(r.Context(), date, dentistID, serviceID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, AvailabilityResponse{
			Date:      settings.FormatDate(date),
			DentistID: dentistID,
			ServiceID: serviceID,
			Slots:     slots,
		})
	}
}

func listPatientsHandler(catalog appointment.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patients, err := catalog.ListPatients(r.Context())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if patients == nil {
			patients = []appointment.Patient{}
		}
		writeJSON(w, http.StatusOK, patients)
	}
}

func listDentistsHandler(catalog appointment.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dentists, err := catalog.ListDentists(r.Context())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if dentists == nil {
			dentists = []appointment.Dentist{}
		}
		writeJSON(w, http.StatusOK, dentists)
	}
}

func listServicesHandler(catalog appointment.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services, err := catalog.ListServices(r.Context())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if services == nil {
			services = []appointment.Treatment{}
		}
		writeJSON(w, http.StatusOK, services)
	}
}

func clinicSettingsHandler(settings *clinic.Settings) http.HandlerFunc {
	resp := ClinicSettingsResponse{
		Timezone:            settings.Location.String(),
		SlotDurationMinutes: settings.SlotDurationMinutes,
		Holidays:            append([]string{}, settings.Holidays...),
		WorkingHours:        settings.WorkingHours,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, resp)
	}
}

func reportSummaryHandler(reports *report.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fresh, _ := strconv.ParseBool(r.URL.Query().Get("fresh"))

		summary, err := reports.Summary(r.Context(), fresh)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// parseListFilter reads patient_id, dentist_id, status, from and to. from and
// to accept RFC 3339 or a clinic-local YYYY-MM-DD; a bare date in to includes
// that whole day.
func parseListFilter(r *http.Request, settings *clinic.Settings) (appointment.ListFilter, error) {
	q := r.URL.Query()
	var f appointment.ListFilter

	if v := q.Get("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, fmt.Errorf("patient_id must be a valid UUID")
		}
		f.PatientID = &id
	}
	if v := q.Get("dentist_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, fmt.Errorf("dentist_id must be a valid UUID")
		}
		f.DentistID = &id
	}
	if v := q.Get("status"); v != "" {
		status, err := appointment.ParseStatus(v)
		if err != nil {
			return f, err
		}
		f.Status = &status
	}
	if v := q.Get("from"); v != "" {
		t, err := parseBound(v, settings, false)
		if err != nil {
			return f, fmt.Errorf("from: %w", err)
		}
		f.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := parseBound(v, settings, true)
		if err != nil {
			return f, fmt.Errorf("to: %w", err)
		}
		f.To = &t
	}

	return f, nil
}

func parseBound(v string, settings *clinic.Settings, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	day, err := settings.ParseDate(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC 3339 or YYYY-MM-DD, got %q", v)
	}
	if endOfDay {
		_, next := settings.DayBounds(day)
		return next, nil
	}
	return day, nil
}
