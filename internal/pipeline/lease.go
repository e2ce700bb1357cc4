// Package pipeline runs resume processing: a per-resume lease arena, an
// in-process task queue, the worker pool that drains it and the reaper that
// fails stuck work.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"go-screening-backend/internal/domain"

	"github.com/google/uuid"
)

// ErrLeaseRevoked is the cancellation cause seen by work whose lease was revoked.
var ErrLeaseRevoked = errors.New("lease revoked")

// Lease is an exclusive, generation-stamped claim on one resume.
type Lease struct {
	ResumeID   uuid.UUID
	Generation int64
	AcquiredAt time.Time

	token  uint64
	ctx    context.Context
	cancel context.CancelCauseFunc
	done   chan struct{}
	once   sync.Once
	arena  *LeaseArena
}

// Context is cancelled when the lease is released or revoked.
func (l *Lease) Context() context.Context { return l.ctx }

// Release frees the resume. Releasing a revoked lease is a no-op.
func (l *Lease) Release() {
	l.arena.drop(l, context.Canceled)
}

func (l *Lease) close(cause error) {
	l.once.Do(func() {
		l.cancel(cause)
		close(l.done)
	})
}

// LeaseArena holds at most one lease per resume id.
type LeaseArena struct {
	mu     sync.Mutex
	leases map[uuid.UUID]*Lease
	next   uint64
}

func NewLeaseArena() *LeaseArena {
	return &LeaseArena{leases: make(map[uuid.UUID]*Lease)}
}

// TryAcquire claims the resume if nobody holds it. The lease context derives
// from parent.
func (a *LeaseArena) TryAcquire(parent context.Context, id uuid.UUID, generation int64) (*Lease, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, held := a.leases[id]; held {
		return nil, false
	}
	return a.grant(parent, id, generation), true
}

// Acquire waits up to wait for the current holder to finish.
func (a *LeaseArena) Acquire(parent context.Context, id uuid.UUID, generation int64, wait time.Duration) (*Lease, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		a.mu.Lock()
		holder, held := a.leases[id]
		if !held {
			l := a.grant(parent, id, generation)
			a.mu.Unlock()
			return l, nil
		}
		done := holder.done
		a.mu.Unlock()

		select {
		case <-done:
		case <-timer.C:
			return nil, domain.ErrLeaseTimeout
		case <-parent.Done():
			return nil, parent.Err()
		}
	}
}

// Revoke cancels the in-flight holder of id, if any. Its eventual results
// must be discarded by the generation check.
func (a *LeaseArena) Revoke(id uuid.UUID) bool {
	a.mu.Lock()
	l, held := a.leases[id]
	if held {
		delete(a.leases, id)
	}
	a.mu.Unlock()
	if held {
		l.close(ErrLeaseRevoked)
	}
	return held
}

func (a *LeaseArena) Held(id uuid.UUID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, held := a.leases[id]
	return held
}

func (a *LeaseArena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.leases)
}

func (a *LeaseArena) grant(parent context.Context, id uuid.UUID, generation int64) *Lease {
	a.next++
	ctx, cancel := context.WithCancelCause(parent)
	l := &Lease{
		ResumeID:   id,
		Generation: generation,
		AcquiredAt: time.Now(),
		token:      a.next,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		arena:      a,
	}
	a.leases[id] = l
	return l
}

func (a *LeaseArena) drop(l *Lease, cause error) {
	a.mu.Lock()
	if cur, ok := a.leases[l.ResumeID]; ok && cur.token == l.token {
		delete(a.leases, l.ResumeID)
	}
	a.mu.Unlock()
	l.close(cause)
}
