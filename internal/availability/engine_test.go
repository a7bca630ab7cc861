package availability

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/dental-clinic-scheduling/internal/appointment"
	"github.com/hackgods/dental-clinic-scheduling/internal/clinic"
	redisclient "github.com/hackgods/dental-clinic-scheduling/internal/redis"
)

type fixture struct {
	store    *appointment.MemoryStore
	engine   *Engine
	booking  *appointment.Service
	patient  appointment.Patient
	dentist  appointment.Dentist
	cleaning appointment.Treatment
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	settings := clinic.DefaultSettings(time.UTC)
	store := appointment.NewMemoryStore()
	store.SeedCatalog()

	patient := appointment.Patient{ID: uuid.New(), Name: "John Doe"}
	store.AddPatient(patient)

	cleaning := appointment.DefaultServices()[1]
	require.Equal(t, 60, cleaning.DurationMinutes)

	return &fixture{
		store:    store,
		engine:   NewEngine(store, store, settings),
		booking:  appointment.NewService(store, store, redisclient.NewLocalLocker(0), settings),
		patient:  patient,
		dentist:  appointment.DefaultDentists()[0],
		cleaning: cleaning,
	}
}

func monday(hour, minute int) time.Time {
	return time.Date(2025, time.March, 3, hour, minute, 0, 0, time.UTC)
}

func (f *fixture) compute(t *testing.T, date time.Time) map[string]bool {
	t.Helper()
	slots, err := f.engine.Compute(context.Background(), date, f.dentist.ID, f.cleaning.ID)
	require.NoError(t, err)

	out := make(map[string]bool, len(slots))
	for _, s := range slots {
		out[s.Time.Format("15:04")] = s.IsAvailable
	}
	return out
}

func TestCompute_OpenDay(t *testing.T) {
	f := newFixture(t)

	slots, err := f.engine.Compute(context.Background(), monday(0, 0), f.dentist.ID, f.cleaning.ID)
	require.NoError(t, err)
	require.Len(t, slots, 15)

	assert.True(t, slots[0].Time.Equal(monday(9, 0)))
	assert.True(t, slots[14].Time.Equal(monday(16, 0)))
	for i, s := range slots {
		assert.True(t, s.IsAvailable)
		assert.Equal(t, time.Hour, s.End.Sub(s.Time))
		assert.False(t, s.End.After(monday(17, 0)))
		if i > 0 {
			assert.True(t, slots[i-1].Time.Before(s.Time))
		}
	}
}

func TestCompute_ExistingBookingBlocksOverlaps(t *testing.T) {
	f := newFixture(t)

	_, err := f.booking.Book(context.Background(), appointment.BookRequest{
		PatientID: f.patient.ID,
		DentistID: f.dentist.ID,
		ServiceID: f.cleaning.ID,
		Start:     monday(10, 0),
	})
	require.NoError(t, err)

	got := f.compute(t, monday(0, 0))
	assert.True(t, got["09:00"])
	assert.False(t, got["09:30"])
	assert.False(t, got["10:00"])
	assert.False(t, got["10:30"])
	assert.True(t, got["11:00"])
}

func TestCompute_CancelledBookingIsIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, err := f.booking.Book(ctx, appointment.BookRequest{
		PatientID: f.patient.ID,
		DentistID: f.dentist.ID,
		ServiceID: f.cleaning.ID,
		Start:     monday(10, 0),
	})
	require.NoError(t, err)
	_, err = f.booking.Cancel(ctx, appt.ID)
	require.NoError(t, err)

	for slot, available := range f.compute(t, monday(0, 0)) {
		assert.True(t, available, slot)
	}
}

func TestCompute_OtherDentistUnaffected(t *testing.T) {
	f := newFixture(t)

	_, err := f.booking.Book(context.Background(), appointment.BookRequest{
		PatientID: f.patient.ID,
		DentistID: appointment.DefaultDentists()[1].ID,
		ServiceID: f.cleaning.ID,
		Start:     monday(10, 0),
	})
	require.NoError(t, err)

	assert.True(t, f.compute(t, monday(0, 0))["10:00"])
}

func TestCompute_ClosedDays(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		date time.Time
	}{
		{"sunday", time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)},
		{"saturday", time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC)},
		{"christmas", time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slots, err := f.engine.Compute(context.Background(), tt.date, f.dentist.ID, f.cleaning.ID)
			require.NoError(t, err)
			assert.NotNil(t, slots)
			assert.Empty(t, slots)
		})
	}
}

func TestCompute_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.booking.Book(ctx, appointment.BookRequest{
		PatientID: f.patient.ID,
		DentistID: f.dentist.ID,
		ServiceID: f.cleaning.ID,
		Start:     monday(13, 30),
	})
	require.NoError(t, err)

	first, err := f.engine.Compute(ctx, monday(0, 0), f.dentist.ID, f.cleaning.ID)
	require.NoError(t, err)
	second, err := f.engine.Compute(ctx, monday(0, 0), f.dentist.ID, f.cleaning.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCompute_UnknownReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Compute(ctx, monday(0, 0), f.dentist.ID, uuid.New())
	assert.ErrorIs(t, err, appointment.ErrServiceNotFound)
	assert.ErrorIs(t, err, appointment.ErrNotFound)

	_, err = f.engine.Compute(ctx, monday(0, 0), uuid.New(), f.cleaning.ID)
	assert.ErrorIs(t, err, appointment.ErrDentistNotFound)
}

func TestCompute_ClinicTimezone(t *testing.T) {
	loc, err := time.LoadLocation(clinic.DefaultTimezone)
	require.NoError(t, err)

	f := newFixture(t)
	f.engine = NewEngine(f.store, f.store, clinic.DefaultSettings(loc))

	// 2025-03-03 02:00 UTC is already 10:00 on Monday in Manila.
	slots, err := f.engine.Compute(context.Background(), time.Date(2025, 3, 3, 2, 0, 0, 0, time.UTC), f.dentist.ID, f.cleaning.ID)
	require.NoError(t, err)
	require.Len(t, slots, 15)
	assert.Equal(t, "09:00", slots[0].Time.In(loc).Format("15:04"))
	assert.Equal(t, loc, slots[0].Time.Location())
}
