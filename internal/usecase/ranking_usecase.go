package usecase

import (
	"context"
	"time"

	"go-screening-backend/internal/domain"
	"go-screening-backend/internal/scoring"
	"go-screening-backend/pkg/validation"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type rankingUsecase struct {
	resumes    domain.ResumeRepository
	jobs       domain.JobRepository
	publisher  domain.Publisher
	thresholds scoring.Thresholds
	autoRerank bool
	log        *zap.Logger
}

func NewRankingUsecase(resumes domain.ResumeRepository, jobs domain.JobRepository, publisher domain.Publisher, thresholds scoring.Thresholds, autoRerank bool, log *zap.Logger) domain.RankingUsecase {
	if log == nil {
		log = zap.NewNop()
	}
	return &rankingUsecase{
		resumes:    resumes,
		jobs:       jobs,
		publisher:  publisherOrNop(publisher),
		thresholds: thresholds,
		autoRerank: autoRerank,
		log:        log.Named("ranking"),
	}
}

// UpdateWeights rejects weights that do not sum to 1.0 without touching the
// stored weights or ranks.
func (u *rankingUsecase) UpdateWeights(ctx context.Context, jobID int64, weights domain.ScoringWeights) (*domain.Job, error) {
	if err := validation.Struct(weights); err != nil {
		return nil, validationError(err)
	}
	if err := weights.Validate(); err != nil {
		return nil, toAppError(err, "Job")
	}
	if _, err := u.jobs.GetByID(ctx, jobID); err != nil {
		return nil, toAppError(err, "Job")
	}
	if err := u.jobs.UpdateWeights(ctx, jobID, weights); err != nil {
		return nil, toAppError(err, "Job")
	}
	u.log.Info("weights updated", zap.Int64("job_id", jobID), zap.Any("weights", weights))
	u.Invalidate(ctx, jobID, "weights_changed")

	job, err := u.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, toAppError(err, "Job")
	}
	return job, nil
}

// RecomputeRanking re-derives overall scores from the job's current weights
// and writes a fresh rank set. With a subset only those resumes get new
// overall scores; every analyzed resume of the job is still ranked.
func (u *rankingUsecase) RecomputeRanking(ctx context.Context, jobID int64, subset []uuid.UUID) (*domain.RankingResult, error) {
	only := make(map[uuid.UUID]bool, len(subset))
	for _, id := range subset {
		only[id] = true
	}

	plan := func(job *domain.Job, snapshot []domain.RankCandidate) ([]domain.RankEntry, error) {
		candidates := make([]domain.RankCandidate, len(snapshot))
		for i, c := range snapshot {
			if len(only) == 0 || only[c.ResumeID] {
				c.Overall = scoring.Overall(c.Dimensions, job.Weights)
			}
			candidates[i] = c
		}
		entries := scoring.Rank(candidates)
		for i := range entries {
			entries[i].Recommendation = u.thresholds.Recommend(entries[i].Overall)
		}
		return entries, nil
	}

	res, err := u.resumes.ApplyRanking(ctx, jobID, plan)
	if err != nil {
		return nil, toAppError(err, "Job")
	}
	u.log.Info("ranking recomputed",
		zap.Int64("job_id", jobID),
		zap.Int64("version", res.Version),
		zap.Int("total", res.Total),
		zap.Int("subset", len(subset)),
	)
	u.publisher.Publish(ctx, domain.Event{
		Type:  domain.EventRankingRecomputed,
		JobID: jobID,
		At:    res.ComputedAt,
		Ranking: &domain.RankingPayload{
			Version: res.Version,
			Total:   res.Total,
			Entries: res.Entries,
		},
	}, domain.JobChannel(jobID))
	return res, nil
}

func (u *rankingUsecase) Invalidate(ctx context.Context, jobID int64, reason string) {
	if err := u.jobs.MarkRankingStale(ctx, jobID); err != nil {
		u.log.Warn("invalidate: mark stale", zap.Int64("job_id", jobID), zap.Error(err))
	}
	job, err := u.jobs.GetByID(ctx, jobID)
	if err != nil {
		u.log.Warn("invalidate: load job", zap.Int64("job_id", jobID), zap.Error(err))
		return
	}
	u.publisher.Publish(ctx, domain.Event{
		Type:    domain.EventRankingInvalidated,
		JobID:   jobID,
		At:      time.Now().UTC(),
		Ranking: &domain.RankingPayload{Version: job.RankingVersion, Stale: true, Reason: reason},
	}, domain.JobChannel(jobID))

	if !u.autoRerank {
		return
	}
	if _, err := u.RecomputeRanking(ctx, jobID, nil); err != nil {
		u.log.Warn("auto rerank failed", zap.Int64("job_id", jobID), zap.Error(err))
	}
}
