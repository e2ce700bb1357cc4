package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"go-screening-backend/internal/domain"
	"go-screening-backend/pkg/apperror"
	"go-screening-backend/pkg/token"
	"go-screening-backend/pkg/validation"

	"github.com/google/uuid"
)

type jobUsecase struct {
	jobRepo       domain.JobRepository
	ranking       domain.RankingUsecase
	tokens        *token.Manager
	publicBaseURL string
	linkTTL       time.Duration
}

func NewJobUsecase(jobRepo domain.JobRepository, ranking domain.RankingUsecase, tokens *token.Manager, publicBaseURL string, linkTTL time.Duration) domain.JobUsecase {
	if linkTTL <= 0 {
		linkTTL = 30 * 24 * time.Hour
	}
	return &jobUsecase{
		jobRepo:       jobRepo,
		ranking:       ranking,
		tokens:        tokens,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		linkTTL:       linkTTL,
	}
}

func (u *jobUsecase) GetPreferences(ctx context.Context, jobID int64) (*domain.JobPreferences, error) {
	job, err := u.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return nil, toAppError(err, "Job")
	}
	return &domain.JobPreferences{Weights: job.Weights, CustomQuestions: job.CustomQuestions}, nil
}

// UpdatePreferences stores weights and custom questions together. A blank
// question text rejects the whole update.
func (u *jobUsecase) UpdatePreferences(ctx context.Context, jobID int64, prefs domain.JobPreferences) (*domain.JobPreferences, error) {
	for i := range prefs.CustomQuestions {
		q := &prefs.CustomQuestions[i]
		q.Text = strings.TrimSpace(q.Text)
		if q.ID == uuid.Nil {
			q.ID = uuid.New()
		}
	}
	if prefs.CustomQuestions == nil {
		prefs.CustomQuestions = []domain.PreferenceQuestion{}
	}
	if err := validation.Struct(prefs); err != nil {
		return nil, validationError(err)
	}
	if err := prefs.Weights.Validate(); err != nil {
		return nil, toAppError(err, "Job")
	}

	changed, err := u.jobRepo.UpdatePreferences(ctx, jobID, prefs)
	if err != nil {
		return nil, toAppError(err, "Job")
	}
	if changed && u.ranking != nil {
		u.ranking.Invalidate(ctx, jobID, "weights_changed")
	}
	return &prefs, nil
}

func (u *jobUsecase) ListGroups(ctx context.Context, jobID int64) ([]domain.GroupLabel, error) {
	if _, err := u.jobRepo.GetByID(ctx, jobID); err != nil {
		return nil, toAppError(err, "Job")
	}
	labels, err := u.jobRepo.ListGroupLabels(ctx, jobID)
	if err != nil {
		return nil, toAppError(err, "Job")
	}
	return labels, nil
}

func (u *jobUsecase) IssueApplicationLink(ctx context.Context, jobID int64) (*domain.ApplicationLink, error) {
	if _, err := u.jobRepo.GetByID(ctx, jobID); err != nil {
		return nil, toAppError(err, "Job")
	}
	expiresAt := time.Now().UTC().Add(u.linkTTL)
	tok, err := u.tokens.IssueApplication(jobID, expiresAt)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return &domain.ApplicationLink{
		JobID:     jobID,
		Token:     tok,
		URL:       u.publicBaseURL + "/apply/" + tok,
		ExpiresAt: expiresAt,
	}, nil
}

func (u *jobUsecase) ResolveApplicationToken(ctx context.Context, tok string) (*domain.Job, error) {
	jobID, err := u.tokens.ParseApplication(tok)
	if err != nil {
		return nil, toAppError(err, "Job")
	}
	job, err := u.jobRepo.GetByID(ctx, jobID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, toAppError(domain.ErrTokenInvalid, "Job")
	}
	if err != nil {
		return nil, toAppError(err, "Job")
	}
	return job, nil
}
