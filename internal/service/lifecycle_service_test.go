package service

import (
	"context"
	"testing"
	"time"

	"github.com/heinthant2k4/sports-arena-booking/internal/apperrors"
	"github.com/heinthant2k4/sports-arena-booking/internal/events"
	"github.com/heinthant2k4/sports-arena-booking/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestConfirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.create(t, futsalID, baseNow.Add(24*time.Hour), time.Hour)

	confirmed, err := f.lifecycle.Confirm(ctx, r.ID, baseNow)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, confirmed.Status)
	assert.Equal(t, int64(2), confirmed.Version)
	assert.Equal(t, 1, f.index.Len(), "confirmed reservations keep their slot")

	_, err = f.lifecycle.Confirm(ctx, r.ID, baseNow)
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidState))

	_, err = f.lifecycle.Confirm(ctx, 999, baseNow)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))

	f.bus.AssertCalled(t, "PublishJSON", events.EventReservationConfirmed, mock.Anything)
}

func TestCancelCutoff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := baseNow.Add(24 * time.Hour)

	tests := []struct {
		name    string
		before  time.Duration
		allowed bool
	}{
		{"121MinutesBefore", 121 * time.Minute, true},
		{"120MinutesBefore", 120 * time.Minute, false},
		{"119MinutesBefore", 119 * time.Minute, false},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slot := start.Add(time.Duration(i) * 24 * time.Hour)
			r := f.create(t, futsalID, slot, time.Hour)

			cancelled, err := f.lifecycle.Cancel(ctx, r.ID, slot.Add(-tt.before))
			if !tt.allowed {
				assert.True(t, apperrors.Is(err, apperrors.KindInvalidState))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, models.StatusCancelled, cancelled.Status)
		})
	}
}

func TestCancelFreesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := baseNow.Add(24 * time.Hour)

	r := f.create(t, futsalID, start, 2*time.Hour)
	_, err := f.lifecycle.Confirm(ctx, r.ID, baseNow)
	require.NoError(t, err)

	_, err = f.lifecycle.Cancel(ctx, r.ID, baseNow)
	require.NoError(t, err)
	assert.Equal(t, 0, f.index.Len())

	again := f.create(t, futsalID, start, 2*time.Hour)
	assert.NotEqual(t, r.ID, again.ID)

	assert.Contains(t, f.outbox.Types(), events.EventReservationCancelled)
	assert.Contains(t, f.outbox.ChangedBy(), changedByManager)
}

func TestCompleteGating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := baseNow.Add(24 * time.Hour)
	r := f.create(t, futsalID, start, time.Hour)
	end := start.Add(time.Hour)

	t.Run("PendingCannotComplete", func(t *testing.T) {
		_, err := f.lifecycle.Complete(ctx, r.ID, end)
		assert.True(t, apperrors.Is(err, apperrors.KindInvalidState))
	})

	_, err := f.lifecycle.Confirm(ctx, r.ID, baseNow)
	require.NoError(t, err)

	t.Run("BeforeEnd", func(t *testing.T) {
		_, err := f.lifecycle.Complete(ctx, r.ID, end.Add(-time.Second))
		assert.True(t, apperrors.Is(err, apperrors.KindInvalidState))
	})

	t.Run("AtEnd", func(t *testing.T) {
		completed, err := f.lifecycle.Complete(ctx, r.ID, end)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, completed.Status)
		assert.Equal(t, 0, f.index.Len())
	})
}

func TestTerminalStates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := baseNow.Add(24 * time.Hour)

	cancelled := f.create(t, futsalID, start, time.Hour)
	_, err := f.lifecycle.Cancel(ctx, cancelled.ID, baseNow)
	require.NoError(t, err)

	completed := f.create(t, futsalID, start.Add(2*time.Hour), time.Hour)
	_, err = f.lifecycle.Confirm(ctx, completed.ID, baseNow)
	require.NoError(t, err)
	_, err = f.lifecycle.Complete(ctx, completed.ID, start.Add(3*time.Hour))
	require.NoError(t, err)

	later := start.Add(100 * time.Hour)
	for _, id := range []int64{cancelled.ID, completed.ID} {
		_, err = f.lifecycle.Confirm(ctx, id, baseNow)
		assert.True(t, apperrors.Is(err, apperrors.KindInvalidState))

		_, err = f.lifecycle.Cancel(ctx, id, baseNow)
		assert.True(t, apperrors.Is(err, apperrors.KindInvalidState))

		_, err = f.lifecycle.Complete(ctx, id, later)
		assert.True(t, apperrors.Is(err, apperrors.KindInvalidState))

		purpose := "reopen"
		_, err = f.reservations.Update(ctx, id, models.UpdateRequest{Purpose: &purpose}, baseNow)
		assert.True(t, apperrors.Is(err, apperrors.KindInvalidState))
	}

	history, err := f.reservations.ListByOwner(ctx, "owner-1")
	require.NoError(t, err)
	assert.Len(t, history, 2, "terminal reservations are kept")
}
