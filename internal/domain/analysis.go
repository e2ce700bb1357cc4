package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DimensionScores are the five analyzer outputs, each in [0,100].
type DimensionScores struct {
	Skills     int `json:"skills"`
	Experience int `json:"experience"`
	Trust      int `json:"trust"`
	Education  int `json:"education"`
	Projects   int `json:"projects"`
}

type Recommendation string

const (
	RecommendStrongYes Recommendation = "strong_yes"
	RecommendYes       Recommendation = "yes"
	RecommendMaybe     Recommendation = "maybe"
	RecommendNo        Recommendation = "no"
	RecommendStrongNo  Recommendation = "strong_no"
)

func (r Recommendation) IsValid() bool {
	switch r {
	case RecommendStrongYes, RecommendYes, RecommendMaybe, RecommendNo, RecommendStrongNo:
		return true
	}
	return false
}

type AnalysisKind string

const (
	AnalysisFull       AnalysisKind = "full"
	AnalysisQuickMatch AnalysisKind = "quick_match"
	AnalysisRescore    AnalysisKind = "verix_rescore"
)

// Analysis is an immutable snapshot of one scoring run. ResumeID is nil for
// quick matches.
type Analysis struct {
	ID             uuid.UUID       `json:"id"`
	JobID          int64           `json:"job_id"`
	ResumeID       *uuid.UUID      `json:"resume_id,omitempty"`
	Kind           AnalysisKind    `json:"kind"`
	Weights        ScoringWeights  `json:"weights"`
	Dimensions     DimensionScores `json:"dimensions"`
	OverallScore   int             `json:"overall_score"`
	Recommendation Recommendation  `json:"recommendation"`
	Summary        string          `json:"summary"`
	Strengths      []string        `json:"strengths"`
	Concerns       []string        `json:"concerns"`
	SkillMatch     SkillMatch      `json:"skill_match"`
	TrustFlags     []string        `json:"trust_flags"`
	CreatedAt      time.Time       `json:"created_at"`
}

type QuickMatchInput struct {
	ResumeText string `json:"resume_text" binding:"required,min=50,max=60000"`
}

type AnalysisRepository interface {
	Create(ctx context.Context, a *Analysis) error
	GetByID(ctx context.Context, id uuid.UUID) (*Analysis, error)
	ListByResume(ctx context.Context, resumeID uuid.UUID) ([]Analysis, error)
}

type AnalysisUsecase interface {
	QuickMatch(ctx context.Context, jobID int64, in QuickMatchInput) (*Analysis, error)
	Get(ctx context.Context, jobID int64, id uuid.UUID) (*Analysis, error)
	ListForResume(ctx context.Context, jobID int64, resumeID uuid.UUID) ([]Analysis, error)
}
