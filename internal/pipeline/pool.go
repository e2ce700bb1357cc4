package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"go-screening-backend/internal/domain"

	"go.uber.org/zap"
)

// Handler processes one task while the pool holds the resume's lease. The
// context is cancelled on lease revocation, timeout or shutdown.
type Handler interface {
	Handle(ctx context.Context, task domain.ProcessingTask) error
}

type HandlerFunc func(ctx context.Context, task domain.ProcessingTask) error

func (f HandlerFunc) Handle(ctx context.Context, task domain.ProcessingTask) error {
	return f(ctx, task)
}

// tryEnqueuer is implemented by queues whose Enqueue can block on the
// consumers themselves.
type tryEnqueuer interface {
	TryEnqueue(task domain.ProcessingTask) error
}

type PoolConfig struct {
	Workers     int
	LeaseWait   time.Duration
	TaskTimeout time.Duration
	MaxAttempts int
}

// Pool is a fixed set of workers draining a TaskQueue.
type Pool struct {
	cfg     PoolConfig
	queue   domain.TaskQueue
	arena   *LeaseArena
	handler Handler
	log     *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(cfg PoolConfig, queue domain.TaskQueue, arena *LeaseArena, handler Handler, log *zap.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.LeaseWait <= 0 {
		cfg.LeaseWait = 10 * time.Second
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{cfg: cfg, queue: queue, arena: arena, handler: handler, log: log}
}

func (p *Pool) Start(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)
	tasks, err := p.queue.Consume(ctx)
	if err != nil {
		p.cancel()
		return err
	}

	p.log.Info("starting worker pool", zap.Int("workers", p.cfg.Workers))
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i+1, tasks)
	}
	return nil
}

// Stop cancels in-flight work and waits for the workers to exit.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.log.Info("worker pool stopped")
}

func (p *Pool) run(ctx context.Context, workerID int, tasks <-chan domain.ProcessingTask) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-tasks:
			if !ok {
				return
			}
			p.process(ctx, workerID, task)
		}
	}
}

func (p *Pool) process(ctx context.Context, workerID int, task domain.ProcessingTask) {
	log := p.log.With(
		zap.Int("worker", workerID),
		zap.String("resume_id", task.ResumeID.String()),
		zap.String("step", string(task.Step)),
		zap.Int64("generation", task.Generation),
	)

	lease, err := p.arena.Acquire(ctx, task.ResumeID, task.Generation, p.cfg.LeaseWait)
	if err != nil {
		if errors.Is(err, domain.ErrLeaseTimeout) {
			p.retry(ctx, log, task)
			return
		}
		log.Debug("lease wait aborted", zap.Error(err))
		return
	}
	defer lease.Release()

	runCtx, cancel := context.WithTimeout(lease.Context(), p.cfg.TaskTimeout)
	defer cancel()

	start := time.Now()
	if err := p.handler.Handle(runCtx, task); err != nil {
		if cause := context.Cause(runCtx); errors.Is(cause, ErrLeaseRevoked) {
			log.Info("task cancelled by lease revocation")
			return
		}
		log.Warn("task failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return
	}
	log.Debug("task done", zap.Duration("elapsed", time.Since(start)))
}

func (p *Pool) retry(ctx context.Context, log *zap.Logger, task domain.ProcessingTask) {
	task.Attempt++
	if task.Attempt >= p.cfg.MaxAttempts {
		log.Warn("dropping task after repeated lease timeouts", zap.Int("attempt", task.Attempt))
		return
	}
	var err error
	if q, ok := p.queue.(tryEnqueuer); ok {
		err = q.TryEnqueue(task)
	} else {
		err = p.queue.Enqueue(ctx, task)
	}
	if err != nil {
		// the reaper requeues resumes left waiting in uploaded
		log.Warn("re-enqueue failed", zap.Int("attempt", task.Attempt), zap.Error(err))
	}
}
