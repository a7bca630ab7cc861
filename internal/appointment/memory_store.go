package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps appointments and reference data in process memory.
// Writers take the exclusive lock; readers get copies, never pointers into
// the map.
type MemoryStore struct {
	mu           sync.RWMutex
	patients     map[uuid.UUID]Patient
	dentists     map[uuid.UUID]Dentist
	services     map[uuid.UUID]Treatment
	appointments map[uuid.UUID]Appointment
	events       []EventLog
	now          func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		patients:     make(map[uuid.UUID]Patient),
		dentists:     make(map[uuid.UUID]Dentist),
		services:     make(map[uuid.UUID]Treatment),
		appointments: make(map[uuid.UUID]Appointment),
		now:          time.Now,
	}
}

func (m *MemoryStore) AddPatient(p Patient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients[p.ID] = p
}

func (m *MemoryStore) AddDentist(d Dentist) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dentists[d.ID] = d
}

func (m *MemoryStore) AddService(s Treatment) error {
	if err := s.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[s.ID] = s
	return nil
}

func (m *MemoryStore) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (m *MemoryStore) GetDentistByID(_ context.Context, id uuid.UUID) (*Dentist, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.dentists[id]
	if !ok {
		return nil, ErrDentistNotFound
	}
	return &d, nil
}

func (m *MemoryStore) GetServiceByID(_ context.Context, id uuid.UUID) (*Treatment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.services[id]
	if !ok {
		return nil, ErrServiceNotFound
	}
	return &s, nil
}

func (m *MemoryStore) ListPatients(_ context.Context) ([]Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Patient, 0, len(m.patients))
	for _, p := range m.patients {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) ListDentists(_ context.Context) ([]Dentist, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Dentist, 0, len(m.dentists))
	for _, d := range m.dentists {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) ListServices(_ context.Context) ([]Treatment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Treatment, 0, len(m.services))
	for _, s := range m.services {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) ListScheduledAppointments(_ context.Context, dentistID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	status := StatusScheduled
	return m.list(ListFilter{DentistID: &dentistID, Status: &status, From: &from, To: &to}), nil
}

func (m *MemoryStore) ListAppointments(_ context.Context, filter ListFilter) ([]Appointment, error) {
	return m.list(filter), nil
}

func (m *MemoryStore) list(filter ListFilter) []Appointment {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Appointment
	for _, a := range m.appointments {
		if filter.Match(a) {
			out = append(out, a)
		}
	}
	return out
}

func (m *MemoryStore) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *MemoryStore) InsertAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := m.now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	m.appointments[a.ID] = a
	return &a, nil
}

func (m *MemoryStore) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != from {
		return nil, ErrStatusChanged
	}

	a.Status = to
	a.UpdatedAt = m.now()
	m.appointments[id] = a
	return &a, nil
}

func (m *MemoryStore) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev.ID = int64(len(m.events) + 1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = m.now()
	}
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of the event log.
func (m *MemoryStore) Events() []EventLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]EventLog(nil), m.events...)
}
