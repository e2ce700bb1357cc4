package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ResumeStatus string

const (
	StatusUploaded  ResumeStatus = "uploaded"
	StatusParsing   ResumeStatus = "parsing"
	StatusParsed    ResumeStatus = "parsed"
	StatusAnalyzing ResumeStatus = "analyzing"
	StatusAnalyzed  ResumeStatus = "analyzed"
	StatusFailed    ResumeStatus = "failed"
)

var ResumeStatuses = []ResumeStatus{
	StatusUploaded, StatusParsing, StatusParsed, StatusAnalyzing, StatusAnalyzed, StatusFailed,
}

func ParseResumeStatus(s string) (ResumeStatus, bool) {
	st := ResumeStatus(s)
	return st, st.IsValid()
}

func (s ResumeStatus) IsValid() bool {
	switch s {
	case StatusUploaded, StatusParsing, StatusParsed, StatusAnalyzing, StatusAnalyzed, StatusFailed:
		return true
	}
	return false
}

// IsTransient reports whether a worker owns the resume in this state.
func (s ResumeStatus) IsTransient() bool {
	return s == StatusParsing || s == StatusAnalyzing
}

// TransitionCause names who drives a transition. Backward moves are only
// legal for the reprocess and rescore causes.
type TransitionCause string

const (
	CausePipeline  TransitionCause = "pipeline"
	CauseReprocess TransitionCause = "reprocess"
	CauseRescore   TransitionCause = "rescore"
)

func (s ResumeStatus) CanTransitionTo(next ResumeStatus, cause TransitionCause) bool {
	switch cause {
	case CausePipeline:
		if next == StatusFailed {
			return s != StatusAnalyzed && s != StatusFailed
		}
		switch s {
		case StatusUploaded:
			return next == StatusParsing
		case StatusParsing:
			return next == StatusParsed
		case StatusParsed:
			return next == StatusAnalyzing
		case StatusAnalyzing:
			return next == StatusAnalyzed
		case StatusAnalyzed, StatusFailed:
			return false
		}
	case CauseReprocess:
		return s == StatusFailed && next == StatusUploaded
	case CauseRescore:
		switch s {
		case StatusAnalyzed:
			return next == StatusAnalyzing
		case StatusAnalyzing:
			return next == StatusAnalyzed || next == StatusFailed
		}
	}
	return false
}

type Profile struct {
	Name            string   `json:"name"`
	Email           string   `json:"email"`
	YearsExperience float64  `json:"years_experience"`
	Skills          []string `json:"skills"`
	Location        string   `json:"location"`
}

type SkillMatch struct {
	Matched []string `json:"matched"`
	Missing []string `json:"missing"`
	Bonus   []string `json:"bonus"`
}

// ResumeScores holds the outputs of the latest analysis of a resume.
type ResumeScores struct {
	AnalysisID     uuid.UUID       `json:"analysis_id"`
	Overall        int             `json:"overall_score"`
	Dimensions     DimensionScores `json:"dimensions"`
	Recommendation Recommendation  `json:"recommendation"`
	Strengths      []string        `json:"strengths"`
	Concerns       []string        `json:"concerns"`
	SkillMatch     SkillMatch      `json:"skill_match"`
	TrustFlags     []string        `json:"trust_flags"`
	UnmetCriteria  []string        `json:"unmet_criteria"`
	AnalyzedAt     time.Time       `json:"analyzed_at"`
}

type Resume struct {
	ID              uuid.UUID    `json:"id"`
	JobID           int64        `json:"job_id"`
	FileKey         string       `json:"file_key"`
	FileName        string       `json:"file_name"`
	ContentType     string       `json:"content_type"`
	Status          ResumeStatus `json:"status"`
	ErrorReason     *string      `json:"error_reason,omitempty"`
	Generation      int64        `json:"generation"`
	StatusChangedAt time.Time    `json:"status_changed_at"`

	Text    string        `json:"-"`
	Profile *Profile      `json:"profile,omitempty"`
	Scores  *ResumeScores `json:"scores,omitempty"`

	RankPosition *int `json:"rank_position,omitempty"`
	Percentile   *int `json:"percentile,omitempty"`

	Shortlisted bool    `json:"shortlisted"`
	GroupLabel  *string `json:"group_label,omitempty"`

	VerixConversationID *uuid.UUID `json:"verix_conversation_id,omitempty"`
	VerixChecked        bool       `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RankingVisible hides rank outputs that are not meaningful for the resume's status.
func (r *Resume) RankingVisible() {
	if r.Status != StatusAnalyzed {
		r.RankPosition = nil
		r.Percentile = nil
	}
}

// Transition is one compare-and-swap status change. It applies only while the
// stored row still has From and Generation.
type Transition struct {
	ResumeID   uuid.UUID
	From       ResumeStatus
	To         ResumeStatus
	Cause      TransitionCause
	Generation int64

	ErrorReason    *string
	Text           *string
	Profile        *Profile
	Scores         *ResumeScores
	BumpGeneration bool
	VerixChecked   bool
}

type CandidateFilter struct {
	Status      *ResumeStatus
	Shortlisted *bool
	Group       *string
}

// CandidateList is the ordered view returned to recruiters.
type CandidateList struct {
	JobID          int64    `json:"job_id"`
	RankingStale   bool     `json:"ranking_stale"`
	RankingVersion int64    `json:"ranking_version"`
	Total          int      `json:"total"`
	Candidates     []Resume `json:"candidates"`
}

type UploadInput struct {
	FileName    string
	ContentType string
	Data        []byte
}

type UploadRegistration struct {
	FileKey     string `json:"file_key" binding:"required"`
	FileName    string `json:"file_name" binding:"required"`
	ContentType string `json:"content_type"`
}

type ResumeRepository interface {
	Create(ctx context.Context, r *Resume) error
	GetByID(ctx context.Context, id uuid.UUID) (*Resume, error)
	ListByJob(ctx context.Context, jobID int64, filter CandidateFilter) ([]Resume, error)
	CountByStatus(ctx context.Context, jobID int64) (map[ResumeStatus]int, error)
	// ApplyTransition returns ErrStaleGeneration when the stored status or
	// generation no longer match. Writing scores also flags the job ranking stale.
	ApplyTransition(ctx context.Context, t Transition) (*Resume, error)
	SetShortlisted(ctx context.Context, id uuid.UUID, value bool) error
	SetGroupLabel(ctx context.Context, id uuid.UUID, label string) error
	LinkVerix(ctx context.Context, id uuid.UUID, conversationID uuid.UUID) error
	// ApplyRanking locks the job, hands a consistent snapshot of its analyzed
	// resumes to plan and writes the plan back as one batch.
	ApplyRanking(ctx context.Context, jobID int64, plan RankingPlanner) (*RankingResult, error)
	FindStuck(ctx context.Context, statuses []ResumeStatus, changedBefore time.Time, limit int) ([]Resume, error)
}

type ResumeUsecase interface {
	IssueUploadURL(ctx context.Context, jobID int64, fileName, contentType string) (*UploadHandle, error)
	RegisterUpload(ctx context.Context, jobID int64, reg UploadRegistration) (*Resume, error)
	Upload(ctx context.Context, jobID int64, in UploadInput) (*Resume, error)
	DownloadURL(ctx context.Context, jobID int64, id uuid.UUID) (*DownloadHandle, error)
	Analyze(ctx context.Context, jobID int64, id uuid.UUID) (*Resume, error)
	AnalyzeAll(ctx context.Context, jobID int64) (int, error)
	Reprocess(ctx context.Context, jobID int64, id uuid.UUID) (*Resume, error)
	GetCandidates(ctx context.Context, jobID int64, filter CandidateFilter) (*CandidateList, error)
	GetResume(ctx context.Context, jobID int64, id uuid.UUID) (*Resume, error)
	JobSnapshot(ctx context.Context, jobID int64) (*JobSnapshot, error)
	ResumeSnapshot(ctx context.Context, jobID int64, id uuid.UUID) (*ResumeSnapshot, error)
	// FailStuck fails resumes left in a transient state since before cutoff.
	FailStuck(ctx context.Context, cutoff time.Time) (int, error)
	// RequeuePending re-enqueues uploaded resumes whose task was lost.
	RequeuePending(ctx context.Context, cutoff time.Time) (int, error)
}
