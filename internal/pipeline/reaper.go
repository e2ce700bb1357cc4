package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sweeper is the side of the resume usecase the reaper drives.
type Sweeper interface {
	FailStuck(ctx context.Context, cutoff time.Time) (int, error)
	RequeuePending(ctx context.Context, cutoff time.Time) (int, error)
}

// Reaper periodically fails resumes stuck in parsing/analyzing longer than
// the processing timeout and re-enqueues uploads whose task was lost.
type Reaper struct {
	sweeper  Sweeper
	interval time.Duration
	timeout  time.Duration
	log      *zap.Logger

	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func NewReaper(sweeper Sweeper, interval, timeout time.Duration, log *zap.Logger) *Reaper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reaper{
		sweeper:  sweeper,
		interval: interval,
		timeout:  timeout,
		log:      log,
		stop:     make(chan struct{}),
	}
}

func (r *Reaper) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stop:
				return
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				r.Sweep(ctx, now)
			}
		}
	}()
}

// Sweep runs one pass.
func (r *Reaper) Sweep(ctx context.Context, now time.Time) {
	cutoff := now.Add(-r.timeout)

	failed, err := r.sweeper.FailStuck(ctx, cutoff)
	if err != nil {
		r.log.Warn("stuck resume sweep failed", zap.Error(err))
	} else if failed > 0 {
		r.log.Info("failed stuck resumes", zap.Int("count", failed))
	}

	requeued, err := r.sweeper.RequeuePending(ctx, cutoff)
	if err != nil {
		r.log.Warn("pending resume sweep failed", zap.Error(err))
	} else if requeued > 0 {
		r.log.Info("re-enqueued pending resumes", zap.Int("count", requeued))
	}
}

func (r *Reaper) Stop() {
	r.once.Do(func() { close(r.stop) })
	r.wg.Wait()
}
