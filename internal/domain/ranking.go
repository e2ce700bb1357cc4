package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RankCandidate is one analyzed resume as seen by a ranking pass.
type RankCandidate struct {
	ResumeID   uuid.UUID
	Dimensions DimensionScores
	Overall    int
	AnalyzedAt time.Time
}

type RankEntry struct {
	ResumeID       uuid.UUID      `json:"resume_id"`
	Overall        int            `json:"overall_score"`
	Recommendation Recommendation `json:"recommendation"`
	Rank           int            `json:"rank_position"`
	Percentile     int            `json:"percentile"`
}

// RankingPlanner computes the rank set for a consistent snapshot of a job.
// It must not perform I/O.
type RankingPlanner func(job *Job, snapshot []RankCandidate) ([]RankEntry, error)

type RankingResult struct {
	JobID      int64       `json:"job_id"`
	Version    int64       `json:"version"`
	Total      int         `json:"total"`
	ComputedAt time.Time   `json:"computed_at"`
	Entries    []RankEntry `json:"entries"`
}

type RankingUsecase interface {
	UpdateWeights(ctx context.Context, jobID int64, weights ScoringWeights) (*Job, error)
	RecomputeRanking(ctx context.Context, jobID int64, subset []uuid.UUID) (*RankingResult, error)
	// Invalidate announces a stale ranking and recomputes it when auto-rerank is on.
	Invalidate(ctx context.Context, jobID int64, reason string)
}
