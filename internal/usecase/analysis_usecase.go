package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go-screening-backend/internal/domain"
	"go-screening-backend/internal/scoring"
	"go-screening-backend/pkg/apperror"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type analysisUsecase struct {
	analyses   domain.AnalysisRepository
	resumes    domain.ResumeRepository
	jobs       domain.JobRepository
	analyzer   domain.Analyzer
	thresholds scoring.Thresholds
	log        *zap.Logger
}

func NewAnalysisUsecase(analyses domain.AnalysisRepository, resumes domain.ResumeRepository, jobs domain.JobRepository, analyzer domain.Analyzer, thresholds scoring.Thresholds, log *zap.Logger) domain.AnalysisUsecase {
	if log == nil {
		log = zap.NewNop()
	}
	return &analysisUsecase{
		analyses:   analyses,
		resumes:    resumes,
		jobs:       jobs,
		analyzer:   analyzer,
		thresholds: thresholds,
		log:        log.Named("analysis"),
	}
}

// QuickMatch scores raw resume text against the job without creating a resume.
func (u *analysisUsecase) QuickMatch(ctx context.Context, jobID int64, in domain.QuickMatchInput) (*domain.Analysis, error) {
	text := strings.TrimSpace(in.ResumeText)
	if text == "" {
		return nil, apperror.BadRequest("resume_text is required")
	}
	job, err := u.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, toAppError(err, "Job")
	}

	start := time.Now()
	res, err := u.analyzer.Analyze(ctx, domain.AnalyzeInput{ResumeText: text, Job: job})
	if err != nil {
		u.log.Warn("quick match failed", zap.Int64("job_id", jobID), zap.Error(err))
		return nil, apperror.Unavailable("Analyzer unavailable, try again later", err)
	}
	a := newAnalysis(job, nil, domain.AnalysisQuickMatch, res, u.thresholds, time.Now().UTC())
	if err := u.analyses.Create(ctx, a); err != nil {
		return nil, toAppError(err, "Analysis")
	}
	u.log.Info("quick match",
		zap.Int64("job_id", jobID),
		zap.String("analysis_id", a.ID.String()),
		zap.Int("overall", a.OverallScore),
		zap.Duration("elapsed", time.Since(start)),
	)
	return a, nil
}

func (u *analysisUsecase) Get(ctx context.Context, jobID int64, id uuid.UUID) (*domain.Analysis, error) {
	a, err := u.analyses.GetByID(ctx, id)
	if err != nil {
		return nil, toAppError(err, "Analysis")
	}
	if a.JobID != jobID {
		return nil, toAppError(fmt.Errorf("analysis %s: %w", id, domain.ErrScopeMismatch), "Analysis")
	}
	return a, nil
}

func (u *analysisUsecase) ListForResume(ctx context.Context, jobID int64, resumeID uuid.UUID) ([]domain.Analysis, error) {
	r, err := u.resumes.GetByID(ctx, resumeID)
	if err != nil {
		return nil, toAppError(err, "Resume")
	}
	if r.JobID != jobID {
		return nil, apperror.NotFound("Resume not found")
	}
	list, err := u.analyses.ListByResume(ctx, resumeID)
	if err != nil {
		return nil, toAppError(err, "Resume")
	}
	return list, nil
}
