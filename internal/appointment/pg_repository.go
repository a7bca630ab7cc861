package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgExclusionViolation = "23P01"

var pgDialect = goqu.Dialect("postgres")

var appointmentColumns = []any{
	"id", "patient_id", "dentist_id", "service_id", "start_time", "end_time",
	"duration_minutes", "status", "created_at", "updated_at",
}

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanDentist(row pgx.Row) (*Dentist, error) {
	var d Dentist

	err := row.Scan(&d.ID, &d.Name, &d.Specialty, &d.Color, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDentistNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanTreatment(row pgx.Row) (*Treatment, error) {
	var s Treatment

	err := row.Scan(&s.ID, &s.Name, &s.DurationMinutes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DentistID,
		&a.ServiceID,
		&a.Start,
		&a.End,
		&a.DurationMinutes,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Catalog

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, created_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetDentistByID(ctx context.Context, id uuid.UUID) (*Dentist, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, color, created_at
		FROM dentists
		WHERE id = $1
	`, id)
	return scanDentist(row)
}

func (r *PgRepository) GetServiceByID(ctx context.Context, id uuid.UUID) (*Treatment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, duration_minutes
		FROM services
		WHERE id = $1
	`, id)
	return scanTreatment(row)
}

func (r *PgRepository) ListPatients(ctx context.Context) ([]Patient, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, email, phone, created_at
		FROM patients
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

func (r *PgRepository) ListDentists(ctx context.Context) ([]Dentist, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, specialty, color, created_at
		FROM dentists
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Dentist
	for rows.Next() {
		d, err := scanDentist(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}

func (r *PgRepository) ListServices(ctx context.Context) ([]Treatment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, duration_minutes
		FROM services
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Treatment
	for rows.Next() {
		s, err := scanTreatment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}

// UpsertDentist and UpsertService load reference data; used by the seeder.
func (r *PgRepository) UpsertDentist(ctx context.Context, d Dentist) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO dentists (id, name, specialty, color, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, specialty = EXCLUDED.specialty, color = EXCLUDED.color
	`, d.ID, d.Name, d.Specialty, d.Color)
	if err != nil {
		return fmt.Errorf("upsert dentist: %w", err)
	}
	return nil
}

func (r *PgRepository) UpsertService(ctx context.Context, s Treatment) error {
	if err := s.Validate(); err != nil {
		return err
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO services (id, name, duration_minutes)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, duration_minutes = EXCLUDED.duration_minutes
	`, s.ID, s.Name, s.DurationMinutes)
	if err != nil {
		return fmt.Errorf("upsert service: %w", err)
	}
	return nil
}

func (r *PgRepository) InsertPatient(ctx context.Context, tx pgx.Tx, p Patient) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO patients (id, name, email, phone, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO NOTHING
	`, p.ID, p.Name, p.Email, p.Phone)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

// Appointments

func (r *PgRepository) ListScheduledAppointments(ctx context.Context, dentistID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	status := StatusScheduled
	return r.ListAppointments(ctx, ListFilter{DentistID: &dentistID, Status: &status, From: &from, To: &to})
}

func (r *PgRepository) ListAppointments(ctx context.Context, filter ListFilter) ([]Appointment, error) {
	ds := pgDialect.From("appointments").Select(appointmentColumns...).Prepared(true)

	if filter.PatientID != nil {
		ds = ds.Where(goqu.Ex{"patient_id": filter.PatientID.String()})
	}
	if filter.DentistID != nil {
		ds = ds.Where(goqu.Ex{"dentist_id": filter.DentistID.String()})
	}
	if filter.Status != nil {
		ds = ds.Where(goqu.Ex{"status": string(*filter.Status)})
	}
	if filter.From != nil {
		ds = ds.Where(goqu.C("start_time").Gte(*filter.From))
	}
	if filter.To != nil {
		ds = ds.Where(goqu.C("start_time").Lt(*filter.To))
	}
	ds = ds.Order(goqu.I("start_time").Asc())

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, patient_id, dentist_id, service_id, start_time, end_time,
		       duration_minutes, status, created_at, updated_at
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

// InsertAppointment relies on the appointments_no_overlap exclusion
// constraint as a last line of defence against double booking.
func (r *PgRepository) InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, dentist_id, service_id, start_time, end_time,
		                          duration_minutes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, now()), now())
		RETURNING id, patient_id, dentist_id, service_id, start_time, end_time,
		          duration_minutes, status, created_at, updated_at
	`, a.ID, a.PatientID, a.DentistID, a.ServiceID, a.Start, a.End,
		a.DurationMinutes, a.Status, nullableTime(a.CreatedAt))

	created, err := scanAppointment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation {
			return nil, ErrSlotUnavailable
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING id, patient_id, dentist_id, service_id, start_time, end_time,
		          duration_minutes, status, created_at, updated_at
	`, id, to, from)

	updated, err := scanAppointment(row)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, ErrAppointmentNotFound) {
		return nil, err
	}

	// No row matched: either the id is unknown or the status moved on.
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrStatusChanged
	}
	return nil, ErrAppointmentNotFound
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
