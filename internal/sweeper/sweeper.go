package sweeper

import (
	"context"
	"time"

	"github.com/stayware/booking/internal/logger"
)

type waitingList interface {
	ExpireStale(ctx context.Context, now time.Time) (int, error)
}

type reservations interface {
	CompleteElapsed(ctx context.Context, now time.Time) (int, error)
}

// Sweeper periodically expires stale waiting-list entries and completes
// reservations whose checkout has passed. It stands in for the external
// cron trigger in a single-binary deployment.
type Sweeper struct {
	l            *logger.Logger
	waitingList  waitingList
	reservations reservations
	interval     time.Duration
}

const defaultInterval = 5 * time.Minute

func New(l *logger.Logger, waitingList waitingList, reservations reservations, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = defaultInterval
	}

	return &Sweeper{
		l:            l,
		waitingList:  waitingList,
		reservations: reservations,
		interval:     interval,
	}
}

// Run sweeps once immediately, then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	now := time.Now().UTC()

	expired, err := s.waitingList.ExpireStale(ctx, now)
	if err != nil {
		s.l.LogErrorf("Sweep: could not expire stale waiting-list entries: %v", err.Error())
	} else if expired > 0 {
		s.l.LogInfo("Sweep: expired %d waiting-list entries", expired)
	}

	completed, err := s.reservations.CompleteElapsed(ctx, now)
	if err != nil {
		s.l.LogErrorf("Sweep: could not complete elapsed reservations: %v", err.Error())
	} else if completed > 0 {
		s.l.LogInfo("Sweep: completed %d reservations", completed)
	}
}
