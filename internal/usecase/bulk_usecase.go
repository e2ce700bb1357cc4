package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go-screening-backend/internal/domain"
	"go-screening-backend/internal/pipeline"
	"go-screening-backend/pkg/apperror"
	"go-screening-backend/pkg/validation"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type BulkDeps struct {
	Resumes     domain.ResumeRepository
	Jobs        domain.JobRepository
	Ranking     domain.RankingUsecase
	Leases      *pipeline.LeaseArena
	Publisher   domain.Publisher
	Concurrency int
	LeaseWait   time.Duration
	Log         *zap.Logger
}

// bulkUsecase applies one operation per resume under that resume's lease, so
// overlapping operations on the same resume run one after another.
type bulkUsecase struct {
	resumes     domain.ResumeRepository
	jobs        domain.JobRepository
	ranking     domain.RankingUsecase
	leases      *pipeline.LeaseArena
	publisher   domain.Publisher
	concurrency int
	leaseWait   time.Duration
	log         *zap.Logger
}

// itemFunc performs the write for one leased, in-scope resume and reports
// whether anything changed.
type itemFunc func(ctx context.Context, r *domain.Resume) (bool, error)

func NewBulkUsecase(d BulkDeps) domain.BulkUsecase {
	if d.Concurrency <= 0 {
		d.Concurrency = 8
	}
	if d.LeaseWait <= 0 {
		d.LeaseWait = 10 * time.Second
	}
	if d.Leases == nil {
		d.Leases = pipeline.NewLeaseArena()
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &bulkUsecase{
		resumes:     d.Resumes,
		jobs:        d.Jobs,
		ranking:     d.Ranking,
		leases:      d.Leases,
		publisher:   publisherOrNop(d.Publisher),
		concurrency: d.Concurrency,
		leaseWait:   d.LeaseWait,
		log:         d.Log.Named("bulk"),
	}
}

func (u *bulkUsecase) ToggleShortlist(ctx context.Context, jobID int64, id uuid.UUID, value bool) (*domain.Resume, error) {
	item, r := u.apply(ctx, jobID, id.String(), u.shortlist(value))
	switch item.Outcome {
	case domain.OutcomeOK:
		r.RankingVisible()
		return r, nil
	case domain.OutcomeNotFound, domain.OutcomeScopeMismatch:
		return nil, apperror.NotFound("Resume not found")
	case domain.OutcomeLeaseTimeout:
		return nil, toAppError(domain.ErrLeaseTimeout, "Resume")
	}
	return nil, apperror.Internal(errors.New(item.Message))
}

func (u *bulkUsecase) BulkShortlist(ctx context.Context, jobID int64, ids []string, value bool) (*domain.BulkResult, error) {
	if err := u.checkBatch(ctx, jobID, ids); err != nil {
		return nil, err
	}
	return u.run(ctx, jobID, domain.BulkShortlist, ids, u.shortlist(value)), nil
}

func (u *bulkUsecase) AssignGroup(ctx context.Context, jobID int64, ids []string, label string) (*domain.BulkResult, error) {
	label = strings.TrimSpace(label)
	if err := validation.Validator().Var(label, "required,group_label"); err != nil {
		return nil, apperror.BadRequest("Group label must be 1-64 letters, digits, spaces or _ . / -")
	}
	if err := u.checkBatch(ctx, jobID, ids); err != nil {
		return nil, err
	}
	if _, err := u.jobs.EnsureGroupLabel(ctx, jobID, label); err != nil {
		return nil, toAppError(err, "Job")
	}

	result := u.run(ctx, jobID, domain.BulkGroup, ids, func(ctx context.Context, r *domain.Resume) (bool, error) {
		if r.GroupLabel != nil && *r.GroupLabel == label {
			return false, nil
		}
		if err := u.resumes.SetGroupLabel(ctx, r.ID, label); err != nil {
			return false, err
		}
		r.GroupLabel = &label
		publishResume(ctx, u.publisher, r, domain.NewResumeUpdatedEvent(r))
		return true, nil
	})
	return result, nil
}

// BulkRecompute checks every id, then recomputes the ranking with the valid
// ones as the subset.
func (u *bulkUsecase) BulkRecompute(ctx context.Context, jobID int64, ids []string) (*domain.BulkResult, error) {
	if err := u.checkBatch(ctx, jobID, ids); err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var subset []uuid.UUID
	result := u.run(ctx, jobID, domain.BulkRerank, ids, func(_ context.Context, r *domain.Resume) (bool, error) {
		if r.Status != domain.StatusAnalyzed {
			return false, domain.ErrNotAnalyzed
		}
		mu.Lock()
		subset = append(subset, r.ID)
		mu.Unlock()
		return true, nil
	})
	if len(subset) == 0 {
		return result, nil
	}

	ranking, err := u.ranking.RecomputeRanking(ctx, jobID, subset)
	if err != nil {
		u.log.Warn("bulk recompute failed", zap.Int64("job_id", jobID), zap.Error(err))
		for i := range result.Items {
			if result.Items[i].Success {
				result.Items[i] = domain.BulkItemResult{
					ResumeID: result.Items[i].ResumeID,
					Outcome:  domain.OutcomeInternal,
					Message:  "ranking recompute failed",
				}
			}
		}
		result.Tally()
		return result, nil
	}
	result.Ranking = ranking
	return result, nil
}

func (u *bulkUsecase) checkBatch(ctx context.Context, jobID int64, ids []string) error {
	if len(ids) == 0 {
		return apperror.BadRequest("resume_ids must not be empty")
	}
	if _, err := u.jobs.GetByID(ctx, jobID); err != nil {
		return toAppError(err, "Job")
	}
	return nil
}

func (u *bulkUsecase) shortlist(value bool) itemFunc {
	return func(ctx context.Context, r *domain.Resume) (bool, error) {
		if r.Shortlisted == value {
			return false, nil
		}
		if err := u.resumes.SetShortlisted(ctx, r.ID, value); err != nil {
			return false, err
		}
		r.Shortlisted = value
		publishResume(ctx, u.publisher, r, domain.NewResumeUpdatedEvent(r))
		return true, nil
	}
}

// run fans the items out with bounded concurrency. One item's failure never
// affects the others; the result keeps request order.
func (u *bulkUsecase) run(ctx context.Context, jobID int64, op domain.BulkOperation, ids []string, fn itemFunc) *domain.BulkResult {
	items := make([]domain.BulkItemResult, len(ids))

	var g errgroup.Group
	g.SetLimit(u.concurrency)
	for i, raw := range ids {
		g.Go(func() error {
			items[i], _ = u.apply(ctx, jobID, raw, fn)
			return nil
		})
	}
	_ = g.Wait()

	result := &domain.BulkResult{Operation: op, Items: items}
	result.Tally()
	u.log.Info("bulk operation finished",
		zap.Int64("job_id", jobID),
		zap.String("operation", string(op)),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
	)
	return result
}

// apply runs fn for one id: wait for the lease, load, check scope, write.
func (u *bulkUsecase) apply(ctx context.Context, jobID int64, raw string, fn itemFunc) (domain.BulkItemResult, *domain.Resume) {
	item := domain.BulkItemResult{ResumeID: raw}
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		item.Outcome, item.Message = domain.OutcomeInvalidID, "not a valid resume id"
		return item, nil
	}
	item.ResumeID = id.String()

	lease, err := u.leases.Acquire(ctx, id, 0, u.leaseWait)
	if err != nil {
		if errors.Is(err, domain.ErrLeaseTimeout) {
			item.Outcome, item.Message = domain.OutcomeLeaseTimeout, "resume is busy"
		} else {
			item.Outcome, item.Message = domain.OutcomeInternal, err.Error()
		}
		return item, nil
	}
	defer lease.Release()

	r, err := u.resumes.GetByID(lease.Context(), id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		item.Outcome, item.Message = domain.OutcomeNotFound, "resume not found"
		return item, nil
	case err != nil:
		item.Outcome, item.Message = domain.OutcomeInternal, err.Error()
		return item, nil
	case r.JobID != jobID:
		item.Outcome, item.Message = domain.OutcomeScopeMismatch, "resume belongs to a different job"
		return item, nil
	}

	changed, err := fn(lease.Context(), r)
	if err != nil {
		if errors.Is(err, domain.ErrNotAnalyzed) {
			item.Outcome, item.Message = domain.OutcomeNotAnalyzed, "resume is not analyzed"
		} else {
			u.log.Warn("bulk item failed", zap.String("resume_id", id.String()), zap.Error(err))
			item.Outcome, item.Message = domain.OutcomeInternal, "write failed"
		}
		return item, nil
	}
	item.Success, item.Outcome, item.Changed = true, domain.OutcomeOK, changed
	return item, r
}
