package service

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/heinthant2k4/sports-arena-booking/internal/apperrors"
	"github.com/heinthant2k4/sports-arena-booking/internal/events"
	"github.com/heinthant2k4/sports-arena-booking/internal/interval"
	"github.com/heinthant2k4/sports-arena-booking/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tomorrow := baseNow.Add(24 * time.Hour)

	tests := []struct {
		name string
		req  models.CreateRequest
		kind apperrors.Kind
	}{
		{"UnknownFacility", models.CreateRequest{FacilityID: 99, OwnerID: "o", Start: tomorrow, End: tomorrow.Add(time.Hour)}, apperrors.KindNotFound},
		{"UnderMaintenance", models.CreateRequest{FacilityID: maintenanceID, OwnerID: "o", Start: tomorrow, End: tomorrow.Add(time.Hour)}, apperrors.KindNotBookable},
		{"Inactive", models.CreateRequest{FacilityID: inactiveID, OwnerID: "o", Start: tomorrow, End: tomorrow.Add(time.Hour)}, apperrors.KindNotBookable},
		{"StartIsNow", models.CreateRequest{FacilityID: futsalID, OwnerID: "o", Start: baseNow, End: baseNow.Add(time.Hour)}, apperrors.KindInvalidInterval},
		{"StartInPast", models.CreateRequest{FacilityID: futsalID, OwnerID: "o", Start: baseNow.Add(-time.Hour), End: baseNow.Add(time.Hour)}, apperrors.KindInvalidInterval},
		{"EndBeforeStart", models.CreateRequest{FacilityID: futsalID, OwnerID: "o", Start: tomorrow, End: tomorrow.Add(-time.Hour)}, apperrors.KindInvalidInterval},
		{"EndEqualsStart", models.CreateRequest{FacilityID: futsalID, OwnerID: "o", Start: tomorrow, End: tomorrow}, apperrors.KindInvalidInterval},
		{"BeyondHorizon", models.CreateRequest{FacilityID: futsalID, OwnerID: "o", Start: baseNow.Add(720*time.Hour + time.Second), End: baseNow.Add(721*time.Hour + time.Second)}, apperrors.KindInvalidInterval},
		{"MissingOwner", models.CreateRequest{FacilityID: futsalID, Start: tomorrow, End: tomorrow.Add(time.Hour)}, apperrors.KindInvalidInput},
		// Facility checks win over interval checks.
		{"NotBookableBeatsBadInterval", models.CreateRequest{FacilityID: maintenanceID, OwnerID: "o", Start: baseNow.Add(-time.Hour), End: baseNow}, apperrors.KindNotBookable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.reservations.Create(ctx, tt.req, baseNow)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperrors.KindOf(err))
		})
	}

	assert.Equal(t, 0, f.index.Len())
}

func TestCreateDurationBounds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		minutes int
		ok      bool
	}{
		{59, false},
		{60, true},
		{480, true},
		{481, false},
	}

	for i, tt := range tests {
		start := baseNow.Add(time.Duration(i+1) * 24 * time.Hour)
		_, err := f.reservations.Create(ctx, models.CreateRequest{
			FacilityID: futsalID,
			OwnerID:    "o",
			Start:      start,
			End:        start.Add(time.Duration(tt.minutes) * time.Minute),
		}, baseNow)
		if tt.ok {
			assert.NoError(t, err, "%d minutes", tt.minutes)
		} else {
			assert.True(t, apperrors.Is(err, apperrors.KindInvalidInterval), "%d minutes", tt.minutes)
		}
	}
}

func TestCreateAtHorizonBoundary(t *testing.T) {
	f := newFixture(t)
	start := baseNow.Add(720 * time.Hour)
	r := f.create(t, futsalID, start, time.Hour)
	assert.True(t, r.StartTime.Equal(start))
}

func TestCreateCostAndSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := baseNow.Add(24 * time.Hour)

	r := f.create(t, futsalID, start, 90*time.Minute)
	assert.Equal(t, "120.00", r.TotalCost.StringFixed(2))
	assert.Equal(t, models.StatusPending, r.Status)
	assert.Equal(t, "Futsal Court A", r.FacilityName)
	assert.Equal(t, int64(1), r.Version)

	stored, err := f.reservations.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, stored.TotalCost.Equal(decimal.NewFromInt(120)))
	assert.True(t, stored.StartTime.Equal(start))

	badminton := f.create(t, badmintonID, start, 70*time.Minute)
	assert.Equal(t, "29.17", badminton.TotalCost.StringFixed(2))

	f.bus.AssertCalled(t, "PublishJSON", events.EventReservationCreated, mock.Anything)
	assert.Equal(t, []string{events.EventReservationCreated, events.EventReservationCreated}, f.outbox.Types())
	assert.Equal(t, []string{changedByOwner, changedByOwner}, f.outbox.ChangedBy())
}

func TestCreateSubSecondTimes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := baseNow.Add(24 * time.Hour)

	t.Run("ShortByHalfSecondIsTooShort", func(t *testing.T) {
		_, err := f.reservations.Create(ctx, models.CreateRequest{
			FacilityID: futsalID, OwnerID: "o", Start: start.Add(900 * time.Millisecond),
			End: start.Add(900*time.Millisecond + 59*time.Minute + 59*time.Second + 500*time.Millisecond),
		}, baseNow)
		assert.True(t, apperrors.Is(err, apperrors.KindInvalidInterval))
	})

	t.Run("FractionalStartRejected", func(t *testing.T) {
		_, err := f.reservations.Create(ctx, models.CreateRequest{
			FacilityID: futsalID, OwnerID: "o", Start: start.Add(500 * time.Millisecond),
			End: start.Add(time.Hour + 500*time.Millisecond),
		}, baseNow)
		assert.True(t, apperrors.Is(err, apperrors.KindInvalidInput))

		active, err := f.reservations.ListActive(ctx)
		require.NoError(t, err)
		assert.Empty(t, active)
	})

	t.Run("UpdateWithFractionRejected", func(t *testing.T) {
		r := f.create(t, futsalID, start, time.Hour)
		end := start.Add(2*time.Hour + 250*time.Millisecond)
		_, err := f.reservations.Update(ctx, r.ID, models.UpdateRequest{End: &end}, baseNow)
		assert.True(t, apperrors.Is(err, apperrors.KindInvalidInput))
	})

	t.Run("StoredInUTC", func(t *testing.T) {
		yangon := time.FixedZone("MMT", 6*3600+1800)
		local := start.Add(48 * time.Hour).In(yangon)
		r := f.create(t, futsalID, local, time.Hour)
		assert.Equal(t, time.UTC, r.StartTime.Location())
		assert.True(t, r.StartTime.Equal(local))
		assert.Equal(t, time.Hour, r.Duration())
	})
}

func TestCreateConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := baseNow.Add(24 * time.Hour)
	existing := f.create(t, futsalID, start, 2*time.Hour)

	t.Run("Overlap", func(t *testing.T) {
		_, err := f.reservations.Create(ctx, models.CreateRequest{
			FacilityID: futsalID, OwnerID: "o2", Start: start.Add(time.Hour), End: start.Add(3 * time.Hour),
		}, baseNow)
		require.Error(t, err)
		assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))

		appErr, ok := apperrors.As(err)
		require.True(t, ok)
		assert.Contains(t, appErr.Details["conflicting_ids"], strconv.FormatInt(existing.ID, 10))
	})

	t.Run("TouchingEndpointsAllowed", func(t *testing.T) {
		f.create(t, futsalID, start.Add(2*time.Hour), time.Hour)
		f.create(t, futsalID, start.Add(-time.Hour), time.Hour)
	})

	t.Run("OtherFacilityIndependent", func(t *testing.T) {
		f.create(t, badmintonID, start, 2*time.Hour)
	})

	t.Run("StoreConflictReloadsIndex", func(t *testing.T) {
		day := start.Add(48 * time.Hour)
		direct := &models.Reservation{
			FacilityID: futsalID, FacilityName: "Futsal Court A", OwnerID: "elsewhere",
			StartTime: day, EndTime: day.Add(time.Hour), Status: models.StatusPending, TotalCost: decimal.NewFromInt(80),
		}
		require.NoError(t, f.db.CreateReservationWithLock(ctx, direct))
		before := len(f.index.Entries(futsalID))

		_, err := f.reservations.Create(ctx, models.CreateRequest{
			FacilityID: futsalID, OwnerID: "o", Start: day, End: day.Add(time.Hour),
		}, baseNow)
		assert.True(t, apperrors.Is(err, apperrors.KindConflict))
		assert.Equal(t, before+1, len(f.index.Entries(futsalID)))
	})
}

func TestConcurrentCreates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := baseNow.Add(24 * time.Hour)

	const workers = 10
	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Each request overlaps every other one.
			offset := time.Duration(i) * time.Minute
			_, err := f.reservations.Create(ctx, models.CreateRequest{
				FacilityID: futsalID,
				OwnerID:    "racer",
				Start:      start.Add(offset),
				End:        start.Add(offset + time.Hour),
			}, baseNow)
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var ok, conflicts int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case apperrors.Is(err, apperrors.KindConflict):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, conflicts)

	active, err := f.reservations.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := baseNow.Add(24 * time.Hour)
	r := f.create(t, futsalID, start, time.Hour)
	f.create(t, futsalID, start.Add(3*time.Hour), time.Hour)

	t.Run("PurposeOnly", func(t *testing.T) {
		purpose := "league match"
		updated, err := f.reservations.Update(ctx, r.ID, models.UpdateRequest{Purpose: &purpose}, baseNow)
		require.NoError(t, err)
		assert.Equal(t, purpose, updated.Purpose)
		assert.Equal(t, int64(2), updated.Version)
		assert.True(t, updated.StartTime.Equal(start))
	})

	t.Run("ExtendRecomputesCost", func(t *testing.T) {
		end := start.Add(90 * time.Minute)
		updated, err := f.reservations.Update(ctx, r.ID, models.UpdateRequest{End: &end}, baseNow)
		require.NoError(t, err)
		assert.Equal(t, "120.00", updated.TotalCost.StringFixed(2))
		assert.Len(t, f.index.FindConflicts(futsalID, start.Add(80*time.Minute), start.Add(85*time.Minute), 0), 1)
	})

	t.Run("MoveIntoConflict", func(t *testing.T) {
		newStart := start.Add(3*time.Hour + 30*time.Minute)
		newEnd := newStart.Add(time.Hour)
		_, err := f.reservations.Update(ctx, r.ID, models.UpdateRequest{Start: &newStart, End: &newEnd}, baseNow)
		assert.True(t, apperrors.Is(err, apperrors.KindConflict))
	})

	t.Run("ShrinkBelowMinimum", func(t *testing.T) {
		end := start.Add(30 * time.Minute)
		_, err := f.reservations.Update(ctx, r.ID, models.UpdateRequest{End: &end}, baseNow)
		assert.True(t, apperrors.Is(err, apperrors.KindInvalidInterval))
	})

	t.Run("ShiftOverlappingItself", func(t *testing.T) {
		newStart := start.Add(30 * time.Minute)
		newEnd := newStart.Add(time.Hour)
		updated, err := f.reservations.Update(ctx, r.ID, models.UpdateRequest{Start: &newStart, End: &newEnd}, baseNow)
		require.NoError(t, err)
		assert.True(t, updated.StartTime.Equal(newStart))
		assert.Empty(t, f.index.FindConflicts(futsalID, start, newStart, 0))
	})

	t.Run("ConfirmedIsImmutable", func(t *testing.T) {
		_, err := f.lifecycle.Confirm(ctx, r.ID, baseNow)
		require.NoError(t, err)

		purpose := "too late"
		_, err = f.reservations.Update(ctx, r.ID, models.UpdateRequest{Purpose: &purpose}, baseNow)
		assert.True(t, apperrors.Is(err, apperrors.KindInvalidState))
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := f.reservations.Update(ctx, 999, models.UpdateRequest{}, baseNow)
		assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
	})
}

func TestCheckAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := baseNow.Add(24 * time.Hour)
	r := f.create(t, futsalID, start, 2*time.Hour)

	free, err := f.reservations.CheckAvailability(ctx, futsalID, start.Add(time.Hour), start.Add(3*time.Hour), 0)
	require.NoError(t, err)
	assert.False(t, free)

	free, err = f.reservations.CheckAvailability(ctx, futsalID, start.Add(time.Hour), start.Add(3*time.Hour), r.ID)
	require.NoError(t, err)
	assert.True(t, free)

	free, err = f.reservations.CheckAvailability(ctx, futsalID, start.Add(2*time.Hour), start.Add(3*time.Hour), 0)
	require.NoError(t, err)
	assert.True(t, free)

	_, err = f.reservations.CheckAvailability(ctx, 99, start, start.Add(time.Hour), 0)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))

	_, err = f.reservations.CheckAvailability(ctx, futsalID, start, start, 0)
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidInterval))
}

func TestLoadIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := baseNow.Add(24 * time.Hour)

	require.NoError(t, f.db.CreateReservationWithLock(ctx, &models.Reservation{
		FacilityID: futsalID, FacilityName: "Futsal Court A", OwnerID: "o",
		StartTime: start, EndTime: start.Add(time.Hour), Status: models.StatusPending, TotalCost: decimal.NewFromInt(80),
	}))

	free, err := f.reservations.CheckAvailability(ctx, futsalID, start, start.Add(time.Hour), 0)
	require.NoError(t, err)
	assert.True(t, free)

	require.NoError(t, f.reservations.LoadIndex(ctx))

	free, err = f.reservations.CheckAvailability(ctx, futsalID, start, start.Add(time.Hour), 0)
	require.NoError(t, err)
	assert.False(t, free)
}

func TestListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	soon := f.create(t, futsalID, baseNow.Add(time.Hour), time.Hour)
	later := f.create(t, futsalID, baseNow.Add(48*time.Hour), time.Hour)
	other := f.create(t, badmintonID, baseNow.Add(72*time.Hour), 2*time.Hour)

	t.Run("ByResource", func(t *testing.T) {
		rs, err := f.reservations.ListByResource(ctx, futsalID)
		require.NoError(t, err)
		require.Len(t, rs, 2)
		assert.Equal(t, soon.ID, rs[0].ID)
		assert.Equal(t, later.ID, rs[1].ID)

		_, err = f.reservations.ListByResource(ctx, 99)
		assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
	})

	t.Run("ByOwnerNewestFirst", func(t *testing.T) {
		rs, err := f.reservations.ListByOwner(ctx, "owner-1")
		require.NoError(t, err)
		require.Len(t, rs, 3)
		assert.Equal(t, other.ID, rs[0].ID)
	})

	t.Run("Cancellable", func(t *testing.T) {
		rs, err := f.reservations.ListCancellableByOwner(ctx, "owner-1", baseNow)
		require.NoError(t, err)
		// soon starts within the cutoff.
		assert.Len(t, rs, 2)
		for _, r := range rs {
			assert.NotEqual(t, soon.ID, r.ID)
		}
	})

	t.Run("UpcomingAndPast", func(t *testing.T) {
		upcoming, err := f.reservations.ListUpcomingByOwner(ctx, "owner-1", baseNow)
		require.NoError(t, err)
		assert.Len(t, upcoming, 3)

		past, err := f.reservations.ListPastByOwner(ctx, "owner-1", baseNow.Add(100*time.Hour))
		require.NoError(t, err)
		assert.Len(t, past, 3)
	})

	t.Run("ByStatus", func(t *testing.T) {
		_, err := f.lifecycle.Confirm(ctx, later.ID, baseNow)
		require.NoError(t, err)

		confirmed, err := f.reservations.ListByStatus(ctx, models.StatusConfirmed)
		require.NoError(t, err)
		require.Len(t, confirmed, 1)
		assert.Equal(t, later.ID, confirmed[0].ID)
	})

	t.Run("InRange", func(t *testing.T) {
		rs, err := f.reservations.ListInRange(ctx, baseNow, baseNow.Add(49*time.Hour))
		require.NoError(t, err)
		assert.Len(t, rs, 2)

		_, err = f.reservations.ListInRange(ctx, baseNow, baseNow.Add(-time.Hour))
		assert.True(t, apperrors.Is(err, apperrors.KindInvalidInterval))
	})

	t.Run("AllIncludesTerminal", func(t *testing.T) {
		_, err := f.lifecycle.Cancel(ctx, other.ID, baseNow)
		require.NoError(t, err)

		active, err := f.reservations.ListActive(ctx)
		require.NoError(t, err)
		assert.Len(t, active, 2)

		all, err := f.reservations.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, other.ID, all[0].ID)
		assert.Equal(t, models.StatusCancelled, all[0].Status)
	})
}

func TestSharedStoreAcrossInstances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := baseNow.Add(24 * time.Hour)

	t.Run("CancelElsewhereFreesSlot", func(t *testing.T) {
		r := f.create(t, futsalID, start, 2*time.Hour)
		other := f.peer(t)

		_, err := other.lifecycle.Cancel(ctx, r.ID, baseNow)
		require.NoError(t, err)

		free, err := f.reservations.CheckAvailability(ctx, futsalID, start, start.Add(2*time.Hour), 0)
		require.NoError(t, err)
		assert.True(t, free)

		again := f.create(t, futsalID, start, 2*time.Hour)
		assert.NotEqual(t, r.ID, again.ID)
		assert.Equal(t, []int64{again.ID}, entryIDs(f.index.Entries(futsalID)))
	})

	t.Run("MoveElsewhereFreesSlotForUpdate", func(t *testing.T) {
		day := start.Add(48 * time.Hour)
		moved := f.create(t, futsalID, day, time.Hour)
		mine := f.create(t, futsalID, day.Add(4*time.Hour), time.Hour)
		other := f.peer(t)

		newStart, newEnd := day.Add(2*time.Hour), day.Add(3*time.Hour)
		_, err := other.reservations.Update(ctx, moved.ID, models.UpdateRequest{Start: &newStart, End: &newEnd}, baseNow)
		require.NoError(t, err)

		target, targetEnd := day, day.Add(time.Hour)
		updated, err := f.reservations.Update(ctx, mine.ID, models.UpdateRequest{Start: &target, End: &targetEnd}, baseNow)
		require.NoError(t, err)
		assert.True(t, updated.StartTime.Equal(day))
	})

	t.Run("CreateElsewhereStillConflicts", func(t *testing.T) {
		day := start.Add(96 * time.Hour)
		other := f.peer(t)
		theirs, err := other.reservations.Create(ctx, models.CreateRequest{
			FacilityID: futsalID, OwnerID: "o2", Start: day, End: day.Add(time.Hour),
		}, baseNow)
		require.NoError(t, err)

		_, err = f.reservations.Create(ctx, models.CreateRequest{
			FacilityID: futsalID, OwnerID: "o", Start: day, End: day.Add(time.Hour),
		}, baseNow)
		assert.True(t, apperrors.Is(err, apperrors.KindConflict))
		assert.Contains(t, entryIDs(f.index.Entries(futsalID)), theirs.ID)
	})
}

func entryIDs(entries []interval.Entry) []int64 {
	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	return ids
}
