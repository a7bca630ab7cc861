package appointment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/dental-clinic-scheduling/internal/clinic"
	redisclient "github.com/hackgods/dental-clinic-scheduling/internal/redis"
	"github.com/hackgods/dental-clinic-scheduling/internal/schedule"
)

type fixture struct {
	store    *MemoryStore
	svc      *Service
	notifier *recordingNotifier
	patient  Patient
	dentist  Dentist
	other    Dentist
	cleaning Treatment
	checkup  Treatment
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Publish(_ context.Context, msg any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, msg.(Event))
	return nil
}

type busyLocker struct{}

func (busyLocker) WithLock(context.Context, string, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := NewMemoryStore()
	store.SeedCatalog()

	patient := Patient{ID: uuid.New(), Name: "John Doe"}
	store.AddPatient(patient)

	dentists := DefaultDentists()
	services := DefaultServices()

	f := &fixture{
		store:    store,
		notifier: &recordingNotifier{},
		patient:  patient,
		dentist:  dentists[0],
		other:    dentists[1],
		checkup:  services[0],
		cleaning: services[1],
	}
	require.Equal(t, 60, f.cleaning.DurationMinutes)
	require.Equal(t, 45, f.checkup.DurationMinutes)

	f.svc = NewService(store, store, redisclient.NewLocalLocker(0), clinic.DefaultSettings(time.UTC), WithNotifier(f.notifier))
	return f
}

// monday is 2025-03-03, a regular 09:00-17:00 day.
func monday(hour, minute int) time.Time {
	return time.Date(2025, time.March, 3, hour, minute, 0, 0, time.UTC)
}

func (f *fixture) book(t *testing.T, dentist Dentist, svc Treatment, start time.Time) (*Appointment, error) {
	t.Helper()
	return f.svc.Book(context.Background(), BookRequest{
		PatientID: f.patient.ID,
		DentistID: dentist.ID,
		ServiceID: svc.ID,
		Start:     start,
	})
}

func TestBook_CreatesScheduledAppointment(t *testing.T) {
	f := newFixture(t)

	appt, err := f.book(t, f.dentist, f.cleaning, monday(10, 0))
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, appt.ID)
	assert.Equal(t, StatusScheduled, appt.Status)
	assert.True(t, appt.End.Equal(monday(11, 0)))
	assert.Equal(t, 60, appt.DurationMinutes)
	assert.False(t, appt.CreatedAt.IsZero())

	events := f.store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventAppointmentBooked, events[0].EventType)
	assert.Equal(t, appt.ID, *events[0].AppointmentID)

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, EventAppointmentBooked, f.notifier.events[0].Type)
	assert.Equal(t, f.dentist.ID, f.notifier.events[0].DentistID)
}

func TestBook_OverlapIsConflict(t *testing.T) {
	f := newFixture(t)

	_, err := f.book(t, f.dentist, f.cleaning, monday(10, 0))
	require.NoError(t, err)

	for _, start := range []time.Time{monday(9, 30), monday(10, 0), monday(10, 30)} {
		_, err := f.book(t, f.dentist, f.cleaning, start)
		assert.ErrorIs(t, err, ErrSlotUnavailable, "start %s", start.Format("15:04"))
		assert.ErrorIs(t, err, ErrConflict)
	}
}

func TestBook_BackToBackIsAllowed(t *testing.T) {
	f := newFixture(t)

	_, err := f.book(t, f.dentist, f.cleaning, monday(10, 0))
	require.NoError(t, err)

	_, err = f.book(t, f.dentist, f.cleaning, monday(9, 0))
	assert.NoError(t, err, "ends exactly when the existing one starts")

	_, err = f.book(t, f.dentist, f.cleaning, monday(11, 0))
	assert.NoError(t, err, "starts exactly when the existing one ends")
}

func TestBook_OtherDentistIsIndependent(t *testing.T) {
	f := newFixture(t)

	_, err := f.book(t, f.dentist, f.cleaning, monday(10, 0))
	require.NoError(t, err)

	_, err = f.book(t, f.other, f.cleaning, monday(10, 0))
	assert.NoError(t, err)
}

func TestBook_CancelledAppointmentFreesSlot(t *testing.T) {
	f := newFixture(t)

	appt, err := f.book(t, f.dentist, f.cleaning, monday(10, 0))
	require.NoError(t, err)
	_, err = f.svc.Cancel(context.Background(), appt.ID)
	require.NoError(t, err)

	_, err = f.book(t, f.dentist, f.cleaning, monday(10, 0))
	assert.NoError(t, err)
}

func TestBook_OutsideClinicHours(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		start time.Time
	}{
		{"before opening", monday(8, 30)},
		{"runs past closing", monday(16, 30)},
		{"sunday", time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC)},
		{"holiday", time.Date(2024, 12, 25, 10, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.book(t, f.dentist, f.cleaning, tt.start)
			assert.ErrorIs(t, err, ErrOutsideClinicHours)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestBook_UnknownReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Book(ctx, BookRequest{PatientID: uuid.New(), DentistID: f.dentist.ID, ServiceID: f.cleaning.ID, Start: monday(10, 0)})
	assert.ErrorIs(t, err, ErrPatientNotFound)

	_, err = f.svc.Book(ctx, BookRequest{PatientID: f.patient.ID, DentistID: uuid.New(), ServiceID: f.cleaning.ID, Start: monday(10, 0)})
	assert.ErrorIs(t, err, ErrDentistNotFound)

	_, err = f.svc.Book(ctx, BookRequest{PatientID: f.patient.ID, DentistID: f.dentist.ID, ServiceID: uuid.New(), Start: monday(10, 0)})
	assert.ErrorIs(t, err, ErrServiceNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBook_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Book(context.Background(), BookRequest{DentistID: f.dentist.ID, ServiceID: f.cleaning.ID, Start: monday(10, 0)})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Book(context.Background(), BookRequest{PatientID: f.patient.ID, DentistID: f.dentist.ID, ServiceID: f.cleaning.ID})
	assert.ErrorIs(t, err, ErrValidation)
}

// editedCatalog serves one treatment that bypassed catalog validation, as a
// row edited directly in the database would.
type editedCatalog struct {
	*MemoryStore
	treatment Treatment
}

func (c editedCatalog) GetServiceByID(ctx context.Context, id uuid.UUID) (*Treatment, error) {
	if id == c.treatment.ID {
		t := c.treatment
		return &t, nil
	}
	return c.MemoryStore.GetServiceByID(ctx, id)
}

func TestBook_RejectsNonPositiveServiceDuration(t *testing.T) {
	for _, minutes := range []int{0, -60} {
		f := newFixture(t)

		_, err := f.book(t, f.dentist, f.cleaning, monday(10, 0))
		require.NoError(t, err)

		broken := Treatment{ID: uuid.New(), Name: "Broken", DurationMinutes: minutes}
		svc := NewService(editedCatalog{MemoryStore: f.store, treatment: broken}, f.store, redisclient.NewLocalLocker(0), clinic.DefaultSettings(time.UTC))

		for _, start := range []time.Time{monday(10, 30), monday(11, 0)} {
			_, err := svc.Book(context.Background(), BookRequest{
				PatientID: f.patient.ID,
				DentistID: f.dentist.ID,
				ServiceID: broken.ID,
				Start:     start,
			})
			assert.ErrorIs(t, err, ErrValidation, "duration %d at %s", minutes, start.Format("15:04"))
		}

		all, err := f.svc.ListAll(context.Background(), ListFilter{DentistID: &f.dentist.ID})
		require.NoError(t, err)
		assert.Len(t, all, 1, "duration %d must not insert anything", minutes)
	}
}

func TestBook_DurationIsSnapshotted(t *testing.T) {
	f := newFixture(t)

	appt, err := f.book(t, f.dentist, f.cleaning, monday(10, 0))
	require.NoError(t, err)

	longer := f.cleaning
	longer.DurationMinutes = 120
	require.NoError(t, f.store.AddService(longer))

	got, err := f.svc.Get(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.True(t, got.End.Equal(monday(11, 0)))
	assert.Equal(t, 60, got.DurationMinutes)

	_, err = f.book(t, f.dentist, f.checkup, monday(11, 0))
	assert.NoError(t, err, "the stored interval, not the edited catalog, decides conflicts")
}

func TestBook_LockNotAcquired(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.store, f.store, busyLocker{}, clinic.DefaultSettings(time.UTC))

	_, err := svc.Book(context.Background(), BookRequest{
		PatientID: f.patient.ID, DentistID: f.dentist.ID, ServiceID: f.cleaning.ID, Start: monday(10, 0),
	})
	assert.ErrorIs(t, err, ErrDentistBusy)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestBook_LocalLockWaitExpires(t *testing.T) {
	f := newFixture(t)
	locker := redisclient.NewLocalLocker(20 * time.Millisecond)
	svc := NewService(f.store, f.store, locker, clinic.DefaultSettings(time.UTC))

	hold := make(chan struct{})
	entered := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		key := fmt.Sprintf("dentist:%s:%s", f.dentist.ID, "2025-03-03")
		_ = locker.WithLock(context.Background(), key, func(context.Context) error {
			close(entered)
			<-hold
			return nil
		})
	}()
	<-entered

	req := BookRequest{PatientID: f.patient.ID, DentistID: f.dentist.ID, ServiceID: f.cleaning.ID, Start: monday(10, 0)}
	_, err := svc.Book(context.Background(), req)
	assert.ErrorIs(t, err, ErrDentistBusy)

	close(hold)
	<-done

	_, err = svc.Book(context.Background(), req)
	assert.NoError(t, err)
}

func TestBook_ConcurrentRequestsNeverOverlap(t *testing.T) {
	f := newFixture(t)

	starts := []time.Time{monday(10, 0), monday(10, 30), monday(11, 0), monday(9, 30), monday(10, 0), monday(10, 15)}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var booked []Appointment
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func(start time.Time) {
			defer wg.Done()
			appt, err := f.book(t, f.dentist, f.cleaning, start)
			if err != nil {
				assert.True(t, errors.Is(err, ErrSlotUnavailable), "unexpected error %v", err)
				return
			}
			mu.Lock()
			booked = append(booked, *appt)
			mu.Unlock()
		}(starts[i%len(starts)])
	}
	wg.Wait()

	require.NotEmpty(t, booked)

	scheduled, err := f.svc.ListAll(context.Background(), ListFilter{DentistID: &f.dentist.ID})
	require.NoError(t, err)
	assert.Len(t, scheduled, len(booked))

	for i := range scheduled {
		for j := i + 1; j < len(scheduled); j++ {
			assert.False(t, schedule.Overlaps(scheduled[i].Interval(), scheduled[j].Interval()),
				"%s and %s overlap", scheduled[i].Start.Format("15:04"), scheduled[j].Start.Format("15:04"))
		}
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, err := f.book(t, f.dentist, f.cleaning, monday(10, 0))
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	_, err = f.svc.Cancel(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.Cancel(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	assert.ErrorIs(t, err, ErrNotFound)

	types := []string{}
	for _, ev := range f.store.Events() {
		types = append(types, ev.EventType)
	}
	assert.Equal(t, []string{EventAppointmentBooked, EventAppointmentCancelled}, types)
}

func TestCancel_TerminalStatuses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i, status := range []AppointmentStatus{StatusCompleted, StatusNoShow} {
		appt, err := f.book(t, f.dentist, f.cleaning, monday(9+i, 0))
		require.NoError(t, err)
		_, err = f.svc.SetStatus(ctx, appt.ID, status)
		require.NoError(t, err)

		_, err = f.svc.Cancel(ctx, appt.ID)
		assert.ErrorIs(t, err, ErrInvalidTransition, "cancel from %s", status)
	}
}

func TestSetStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, err := f.book(t, f.dentist, f.cleaning, monday(10, 0))
	require.NoError(t, err)

	updated, err := f.svc.SetStatus(ctx, appt.ID, StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, updated.Status)

	// staff correction between terminal statuses
	updated, err = f.svc.SetStatus(ctx, appt.ID, StatusNoShow)
	require.NoError(t, err)
	assert.Equal(t, StatusNoShow, updated.Status)

	// same status is a no-op
	eventsBefore := len(f.store.Events())
	updated, err = f.svc.SetStatus(ctx, appt.ID, StatusNoShow)
	require.NoError(t, err)
	assert.Equal(t, StatusNoShow, updated.Status)
	assert.Len(t, f.store.Events(), eventsBefore)

	_, err = f.svc.SetStatus(ctx, appt.ID, StatusScheduled)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.SetStatus(ctx, appt.ID, AppointmentStatus("pending"))
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.SetStatus(ctx, uuid.New(), StatusCompleted)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestListForPatient_SortedByStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other := Patient{ID: uuid.New(), Name: "Jane Smith"}
	f.store.AddPatient(other)

	_, err := f.book(t, f.dentist, f.cleaning, monday(14, 0))
	require.NoError(t, err)
	_, err = f.book(t, f.other, f.checkup, monday(9, 0))
	require.NoError(t, err)
	_, err = f.svc.Book(ctx, BookRequest{PatientID: other.ID, DentistID: f.dentist.ID, ServiceID: f.checkup.ID, Start: monday(9, 0)})
	require.NoError(t, err)

	appts, err := f.svc.ListForPatient(ctx, f.patient.ID)
	require.NoError(t, err)
	require.Len(t, appts, 2)
	assert.True(t, appts[0].Start.Equal(monday(9, 0)))
	assert.True(t, appts[1].Start.Equal(monday(14, 0)))

	all, err := f.svc.ListAll(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
