package repository

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/heinthant2k4/sports-arena-booking/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverLocker uses the primary locker and falls back to the secondary
// while the primary is failing. The primary is retried once a minute.
type FailoverLocker struct {
	primary   domain.Locker
	fallback  domain.Locker
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverLocker(primary, fallback domain.Locker, logger *zerolog.Logger) *FailoverLocker {
	return &FailoverLocker{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

func (l *FailoverLocker) markDown(err error) {
	l.logger.Error().Err(err).Msg("Primary locker failed, falling back to in-process lock")
	l.isDown.Store(true)
	l.lastCheck.Store(l.now().UnixNano())
}

func (l *FailoverLocker) shouldProbe() bool {
	if !l.isDown.Load() {
		return true
	}
	return l.now().Sub(time.Unix(0, l.lastCheck.Load())) > recoveryInterval
}

func (l *FailoverLocker) Lock(ctx context.Context, facilityID int64) (func(), error) {
	if l.shouldProbe() {
		unlock, err := l.primary.Lock(ctx, facilityID)
		if err == nil {
			if l.isDown.Swap(false) {
				l.logger.Info().Msg("Primary locker recovered")
			}
			return unlock, nil
		}
		// Contention timeouts are not outages.
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		l.markDown(err)
	}

	return l.fallback.Lock(ctx, facilityID)
}

// Down reports whether the fallback is in use.
func (l *FailoverLocker) Down() bool {
	return l.isDown.Load()
}
