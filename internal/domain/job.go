package domain

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// WeightsEpsilon is the tolerance allowed around a weight sum of 1.0.
const WeightsEpsilon = 0.01

// ScoringWeights are the per-dimension multipliers of a job. Accepted weights
// always sum to 1.0 within WeightsEpsilon.
type ScoringWeights struct {
	Skills     float64 `json:"skills" validate:"gte=0,lte=1"`
	Experience float64 `json:"experience" validate:"gte=0,lte=1"`
	Trust      float64 `json:"trust" validate:"gte=0,lte=1"`
	Education  float64 `json:"education" validate:"gte=0,lte=1"`
	Projects   float64 `json:"projects" validate:"gte=0,lte=1"`
}

func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{Skills: 0.4, Experience: 0.25, Trust: 0.2, Education: 0.1, Projects: 0.05}
}

func (w ScoringWeights) Sum() float64 {
	return w.Skills + w.Experience + w.Trust + w.Education + w.Projects
}

func (w ScoringWeights) Validate() error {
	for name, v := range map[string]float64{
		"skills": w.Skills, "experience": w.Experience, "trust": w.Trust,
		"education": w.Education, "projects": w.Projects,
	} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%w: %s weight %v outside [0,1]", ErrWeightsInvalid, name, v)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1.0) > WeightsEpsilon {
		return fmt.Errorf("%w: weights sum to %.4f, expected 1.0", ErrWeightsInvalid, sum)
	}
	return nil
}

// PreferenceQuestion is a recruiter-defined question asked during verification.
type PreferenceQuestion struct {
	ID       uuid.UUID `json:"id"`
	Text     string    `json:"text" validate:"required,max=500,no_emoji"`
	Required bool      `json:"required"`
}

type Job struct {
	ID               int64                `json:"id"`
	OrganizationID   string               `json:"organization_id"`
	Title            string               `json:"title"`
	Description      string               `json:"description"`
	RequiredSkills   []string             `json:"required_skills"`
	NiceToHaveSkills []string             `json:"nice_to_have_skills"`
	Weights          ScoringWeights       `json:"weights"`
	CustomQuestions  []PreferenceQuestion `json:"custom_questions"`
	RankingStale     bool                 `json:"ranking_stale"`
	RankingVersion   int64                `json:"ranking_version"`
	RankedAt         *time.Time           `json:"ranked_at,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// CustomQuestion returns the preference question with the given id.
func (j *Job) CustomQuestion(id uuid.UUID) (PreferenceQuestion, bool) {
	for _, q := range j.CustomQuestions {
		if q.ID == id {
			return q, true
		}
	}
	return PreferenceQuestion{}, false
}

type JobPreferences struct {
	Weights         ScoringWeights       `json:"weights"`
	CustomQuestions []PreferenceQuestion `json:"custom_questions" validate:"max=10,dive"`
}

type GroupLabel struct {
	JobID     int64     `json:"job_id"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
}

// ApplicationLink lets a candidate upload a resume for one job without recruiter auth.
type ApplicationLink struct {
	JobID     int64     `json:"job_id"`
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type JobRepository interface {
	GetByID(ctx context.Context, id int64) (*Job, error)
	// UpdateWeights stores new weights and flags the job's ranking stale.
	UpdateWeights(ctx context.Context, jobID int64, weights ScoringWeights) error
	// UpdatePreferences stores weights and questions in one write. The ranking is
	// flagged stale only when the weights differ from the stored ones; the
	// returned bool reports that.
	UpdatePreferences(ctx context.Context, jobID int64, prefs JobPreferences) (bool, error)
	MarkRankingStale(ctx context.Context, jobID int64) error
	EnsureGroupLabel(ctx context.Context, jobID int64, label string) (bool, error)
	ListGroupLabels(ctx context.Context, jobID int64) ([]GroupLabel, error)
}

type JobUsecase interface {
	GetPreferences(ctx context.Context, jobID int64) (*JobPreferences, error)
	UpdatePreferences(ctx context.Context, jobID int64, prefs JobPreferences) (*JobPreferences, error)
	ListGroups(ctx context.Context, jobID int64) ([]GroupLabel, error)
	IssueApplicationLink(ctx context.Context, jobID int64) (*ApplicationLink, error)
	ResolveApplicationToken(ctx context.Context, token string) (*Job, error)
}
