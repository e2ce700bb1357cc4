package usecase

import (
	"time"

	"go-screening-backend/internal/domain"
	"go-screening-backend/internal/scoring"

	"github.com/google/uuid"
)

// newAnalysis scores an analyzer result against the job's current weights.
func newAnalysis(job *domain.Job, resumeID *uuid.UUID, kind domain.AnalysisKind, res *domain.AnalyzerResult, th scoring.Thresholds, now time.Time) *domain.Analysis {
	dims := scoring.ClampDimensions(res.Dimensions)
	overall := scoring.Overall(dims, job.Weights)
	return &domain.Analysis{
		ID:             uuid.New(),
		JobID:          job.ID,
		ResumeID:       resumeID,
		Kind:           kind,
		Weights:        job.Weights,
		Dimensions:     dims,
		OverallScore:   overall,
		Recommendation: th.Recommend(overall),
		Summary:        res.Summary,
		Strengths:      nonNil(res.Strengths),
		Concerns:       nonNil(res.Concerns),
		SkillMatch:     res.SkillMatch,
		TrustFlags:     nonNil(res.TrustFlags),
		CreatedAt:      now,
	}
}

func scoresOf(a *domain.Analysis, unmet []string) *domain.ResumeScores {
	return &domain.ResumeScores{
		AnalysisID:     a.ID,
		Overall:        a.OverallScore,
		Dimensions:     a.Dimensions,
		Recommendation: a.Recommendation,
		Strengths:      a.Strengths,
		Concerns:       a.Concerns,
		SkillMatch:     a.SkillMatch,
		TrustFlags:     a.TrustFlags,
		UnmetCriteria:  nonNil(unmet),
		AnalyzedAt:     a.CreatedAt,
	}
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
