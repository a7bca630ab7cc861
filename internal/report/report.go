package report

import (
	"time"

	"github.com/hackgods/dental-clinic-scheduling/internal/appointment"
)

// Summary is the practice overview shown on the reports screen. Rates are
// percentages of all appointments, whatever their status.
type Summary struct {
	TotalAppointments int            `json:"total_appointments"`
	NoShowRate        float64        `json:"no_show_rate"`
	AttendanceRate    float64        `json:"attendance_rate"`
	ByService         map[string]int `json:"appointments_by_service"`
	ByWeekday         map[string]int `json:"busiest_days"`
	ByStatus          map[string]int `json:"appointments_by_status"`
	ByDentist         map[string]int `json:"appointments_by_dentist"`
	GeneratedAt       time.Time      `json:"generated_at"`
}

// Build reduces appts into a Summary. Every catalog service, dentist and
// status appears in its map even with a zero count; weekdays appear only when
// something was booked on them. Weekdays are taken in loc.
func Build(appts []appointment.Appointment, services []appointment.Treatment, dentists []appointment.Dentist, loc *time.Location) Summary {
	if loc == nil {
		loc = time.UTC
	}

	s := Summary{
		TotalAppointments: len(appts),
		ByService:         make(map[string]int, len(services)),
		ByWeekday:         make(map[string]int),
		ByStatus:          make(map[string]int),
		ByDentist:         make(map[string]int, len(dentists)),
	}

	serviceNames := make(map[string]string, len(services))
	for _, svc := range services {
		s.ByService[svc.Name] = 0
		serviceNames[svc.ID.String()] = svc.Name
	}
	dentistNames := make(map[string]string, len(dentists))
	for _, d := range dentists {
		s.ByDentist[d.Name] = 0
		dentistNames[d.ID.String()] = d.Name
	}
	for _, st := range appointment.Statuses() {
		s.ByStatus[string(st)] = 0
	}

	var noShows, completed int
	for _, a := range appts {
		switch a.Status {
		case appointment.StatusNoShow:
			noShows++
		case appointment.StatusCompleted:
			completed++
		}

		s.ByStatus[string(a.Status)]++
		s.ByWeekday[a.Start.In(loc).Weekday().String()]++

		if name, ok := serviceNames[a.ServiceID.String()]; ok {
			s.ByService[name]++
		}
		if name, ok := dentistNames[a.DentistID.String()]; ok {
			s.ByDentist[name]++
		}
	}

	if s.TotalAppointments > 0 {
		total := float64(s.TotalAppointments)
		s.NoShowRate = float64(noShows) / total * 100
		s.AttendanceRate = float64(completed) / total * 100
	}

	return s
}
