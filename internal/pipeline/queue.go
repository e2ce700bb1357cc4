package pipeline

import (
	"context"
	"errors"
	"sync"

	"go-screening-backend/internal/domain"
)

var (
	ErrQueueClosed = errors.New("queue closed")
	ErrQueueFull   = errors.New("queue full")
)

// MemoryQueue is a bounded in-process TaskQueue. Tasks are lost on restart;
// the reaper re-enqueues resumes left in uploaded.
type MemoryQueue struct {
	tasks     chan domain.ProcessingTask
	closed    chan struct{}
	closeOnce sync.Once
}

func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 100
	}
	return &MemoryQueue{
		tasks:  make(chan domain.ProcessingTask, buffer),
		closed: make(chan struct{}),
	}
}

// Enqueue blocks while the buffer is full, until ctx is done or the queue closes.
func (q *MemoryQueue) Enqueue(ctx context.Context, task domain.ProcessingTask) error {
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}
	select {
	case q.tasks <- task:
		return nil
	case <-q.closed:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryEnqueue adds the task only if the buffer has room. Workers use it for
// their own follow-ups so that a full queue never parks a consumer.
func (q *MemoryQueue) TryEnqueue(task domain.ProcessingTask) error {
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}
	select {
	case q.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Consume hands out the shared channel; it is never closed so that late
// Enqueue calls cannot panic. Workers stop on the closed signal instead.
func (q *MemoryQueue) Consume(ctx context.Context) (<-chan domain.ProcessingTask, error) {
	out := make(chan domain.ProcessingTask)
	go func() {
		defer close(out)
		for {
			select {
			case <-q.closed:
				return
			case <-ctx.Done():
				return
			case t := <-q.tasks:
				select {
				case out <- t:
				case <-q.closed:
					return
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (q *MemoryQueue) Len() int { return len(q.tasks) }

func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.closed) })
	return nil
}
