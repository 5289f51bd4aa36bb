package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/heinthant2k4/sports-arena-booking/internal/database"
	"github.com/heinthant2k4/sports-arena-booking/internal/interval"
	"github.com/heinthant2k4/sports-arena-booking/internal/models"
	"github.com/heinthant2k4/sports-arena-booking/internal/repository"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	futsalID      int64 = 1
	badmintonID   int64 = 2
	maintenanceID int64 = 3
	inactiveID    int64 = 4
)

var baseNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishJSON(eventType string, payload any) error {
	return m.Called(eventType, payload).Error(0)
}

type recordingOutbox struct {
	mu         sync.Mutex
	types      []string
	changedBys []string
}

func (o *recordingOutbox) Enqueue(_ context.Context, eventType string, _ *models.Reservation, changedBy string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.types = append(o.types, eventType)
	o.changedBys = append(o.changedBys, changedBy)
	return nil
}

func (o *recordingOutbox) ChangedBy() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.changedBys...)
}

func (o *recordingOutbox) Types() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.types...)
}

type fixture struct {
	db           *database.DB
	facilities   *FacilityService
	index        *interval.Index
	locker       *repository.MemoryLocker
	bus          *mockPublisher
	outbox       *recordingOutbox
	reservations *ReservationService
	lifecycle    *LifecycleService
}

func testFacilities() []models.Facility {
	return []models.Facility{
		{ID: futsalID, Name: "Futsal Court A", Type: models.FacilityTypeFutsal, Capacity: 10, HourlyRate: decimal.NewFromInt(80), IsActive: true},
		{ID: badmintonID, Name: "Badminton Court 1", Type: models.FacilityTypeBadminton, Capacity: 4, HourlyRate: decimal.NewFromInt(25), IsActive: true},
		{ID: maintenanceID, Name: "Futsal Court B", Type: models.FacilityTypeFutsal, Capacity: 10, HourlyRate: decimal.NewFromInt(80), IsActive: true, IsUnderMaintenance: true, MaintenanceNote: "floor repair"},
		{ID: inactiveID, Name: "Badminton Court 2", Type: models.FacilityTypeBadminton, Capacity: 4, HourlyRate: decimal.NewFromInt(25), IsActive: false},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zerolog.Nop()
	ctx := context.Background()

	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	facilities := NewFacilityService(db, time.Minute, &logger)
	require.NoError(t, facilities.Seed(ctx, testFacilities()))

	bus := new(mockPublisher)
	bus.On("PublishJSON", mock.Anything, mock.Anything).Return(nil)
	outbox := &recordingOutbox{}
	index := interval.NewIndex()
	locker := repository.NewMemoryLocker()
	policy := models.DefaultPolicy()

	return &fixture{
		db:           db,
		facilities:   facilities,
		index:        index,
		locker:       locker,
		bus:          bus,
		outbox:       outbox,
		reservations: NewReservationService(db, facilities, locker, index, bus, outbox, policy, &logger),
		lifecycle:    NewLifecycleService(db, locker, index, bus, outbox, policy, &logger),
	}
}

func (f *fixture) create(t *testing.T, facilityID int64, start time.Time, d time.Duration) *models.Reservation {
	t.Helper()
	r, err := f.reservations.Create(context.Background(), models.CreateRequest{
		FacilityID: facilityID,
		OwnerID:    "owner-1",
		OwnerName:  "Aung",
		Start:      start,
		End:        start.Add(d),
	}, baseNow)
	require.NoError(t, err)
	return r
}

// instance is a second engine over the same store and locker with its own
// index, as when several processes share one database and Redis.
type instance struct {
	index        *interval.Index
	reservations *ReservationService
	lifecycle    *LifecycleService
}

func (f *fixture) peer(t *testing.T) *instance {
	t.Helper()
	logger := zerolog.Nop()
	index := interval.NewIndex()
	policy := models.DefaultPolicy()

	p := &instance{
		index:        index,
		reservations: NewReservationService(f.db, f.facilities, f.locker, index, f.bus, f.outbox, policy, &logger),
		lifecycle:    NewLifecycleService(f.db, f.locker, index, f.bus, f.outbox, policy, &logger),
	}
	require.NoError(t, p.reservations.LoadIndex(context.Background()))
	return p
}
