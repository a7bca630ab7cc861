package report

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/dental-clinic-scheduling/internal/appointment"
)

func appt(dentist appointment.Dentist, svc appointment.Treatment, start time.Time, status appointment.AppointmentStatus) appointment.Appointment {
	return appointment.Appointment{
		ID:              uuid.New(),
		PatientID:       uuid.New(),
		DentistID:       dentist.ID,
		ServiceID:       svc.ID,
		Start:           start,
		End:             start.Add(svc.Duration()),
		DurationMinutes: svc.DurationMinutes,
		Status:          status,
	}
}

func TestBuild(t *testing.T) {
	dentists := appointment.DefaultDentists()
	services := appointment.DefaultServices()
	checkup, cleaning := services[0], services[1]

	monday := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	tuesday := monday.AddDate(0, 0, 1)

	appts := []appointment.Appointment{
		appt(dentists[0], checkup, monday, appointment.StatusCompleted),
		appt(dentists[0], cleaning, monday.Add(time.Hour), appointment.StatusNoShow),
		appt(dentists[1], cleaning, tuesday, appointment.StatusCompleted),
		appt(dentists[1], cleaning, tuesday.Add(2*time.Hour), appointment.StatusScheduled),
	}

	s := Build(appts, services, dentists, time.UTC)

	assert.Equal(t, 4, s.TotalAppointments)
	assert.InDelta(t, 25.0, s.NoShowRate, 1e-9)
	assert.InDelta(t, 50.0, s.AttendanceRate, 1e-9)

	assert.Equal(t, 1, s.ByService[checkup.Name])
	assert.Equal(t, 3, s.ByService[cleaning.Name])
	assert.Contains(t, s.ByService, "Extraction")
	assert.Equal(t, 0, s.ByService["Extraction"])

	assert.Equal(t, map[string]int{"Monday": 2, "Tuesday": 2}, s.ByWeekday)

	assert.Equal(t, 2, s.ByStatus["completed"])
	assert.Equal(t, 1, s.ByStatus["no-show"])
	assert.Equal(t, 0, s.ByStatus["cancelled"])

	assert.Equal(t, 2, s.ByDentist[dentists[0].Name])
	assert.Equal(t, 0, s.ByDentist[dentists[2].Name])
}

func TestBuild_Empty(t *testing.T) {
	s := Build(nil, appointment.DefaultServices(), nil, nil)

	assert.Equal(t, 0, s.TotalAppointments)
	assert.Zero(t, s.NoShowRate)
	assert.Zero(t, s.AttendanceRate)
	assert.Len(t, s.ByService, len(appointment.DefaultServices()))
	assert.Empty(t, s.ByWeekday)
}

func TestBuild_WeekdayInClinicTimezone(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Manila")
	require.NoError(t, err)

	svc := appointment.DefaultServices()[0]
	// Sunday 17:00 UTC is Monday 01:00 in Manila.
	a := appt(appointment.DefaultDentists()[0], svc, time.Date(2025, 3, 2, 17, 0, 0, 0, time.UTC), appointment.StatusScheduled)

	s := Build([]appointment.Appointment{a}, nil, nil, loc)
	assert.Equal(t, map[string]int{"Monday": 1}, s.ByWeekday)
}

func newCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewCache(rdb, time.Minute), mr
}

func TestCache_RoundTrip(t *testing.T) {
	cache, mr := newCache(t)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	in := &Summary{TotalAppointments: 3, ByService: map[string]int{"Filling": 3}}
	require.NoError(t, cache.Set(ctx, in))
	assert.Equal(t, time.Minute, mr.TTL(DefaultCacheKey))

	out, ok, err := cache.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, out.TotalAppointments)
	assert.Equal(t, 3, out.ByService["Filling"])

	mr.FastForward(2 * time.Minute)
	_, ok, err = cache.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func newStore(t *testing.T) *appointment.MemoryStore {
	t.Helper()
	store := appointment.NewMemoryStore()
	store.SeedCatalog()

	_, err := store.InsertAppointment(context.Background(), appt(
		appointment.DefaultDentists()[0],
		appointment.DefaultServices()[1],
		time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC),
		appointment.StatusCompleted,
	))
	require.NoError(t, err)
	return store
}

func TestService_UsesCache(t *testing.T) {
	cache, _ := newCache(t)
	store := newStore(t)
	svc := NewService(store, store, cache, time.UTC)
	ctx := context.Background()

	first, err := svc.Summary(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, first.TotalAppointments)

	_, err = store.InsertAppointment(ctx, appt(
		appointment.DefaultDentists()[1],
		appointment.DefaultServices()[0],
		time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC),
		appointment.StatusScheduled,
	))
	require.NoError(t, err)

	cached, err := svc.Summary(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, cached.TotalAppointments, "served from cache")

	fresh, err := svc.Summary(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.TotalAppointments)

	again, err := svc.Summary(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, again.TotalAppointments, "fresh read refreshed the cache")
}

func TestService_WithoutCache(t *testing.T) {
	store := newStore(t)
	svc := NewService(store, store, nil, time.UTC)

	s, err := svc.Summary(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, s.TotalAppointments)
	assert.InDelta(t, 100.0, s.AttendanceRate, 1e-9)
	assert.False(t, s.GeneratedAt.IsZero())
}

func TestService_CacheDownFallsBackToStore(t *testing.T) {
	cache, mr := newCache(t)
	mr.Close()
	store := newStore(t)
	svc := NewService(store, store, cache, time.UTC)

	s, err := svc.Summary(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, s.TotalAppointments)
}
