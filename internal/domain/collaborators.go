package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AnalyzeInput is what the analyzer sees for one scoring run. Profile is nil
// for quick matches.
type AnalyzeInput struct {
	ResumeText string
	Profile    *Profile
	Job        *Job
}

type AnalyzerResult struct {
	Dimensions DimensionScores
	Summary    string
	Strengths  []string
	Concerns   []string
	SkillMatch SkillMatch
	TrustFlags []string
	// UnmetCriteria holds ids of job custom questions the resume does not answer.
	UnmetCriteria []string
}

type ResponseEvaluation struct {
	Depth       int
	Specificity int
	Relevance   int
	Technical   int
	Authorship  AuthorshipVerdict
	Notes       string
}

// Analyzer is the opaque scoring model. Any call may fail or time out.
type Analyzer interface {
	ExtractProfile(ctx context.Context, resumeText string) (*Profile, error)
	Analyze(ctx context.Context, in AnalyzeInput) (*AnalyzerResult, error)
	EvaluateResponse(ctx context.Context, job *Job, question VerixQuestion, answer string) (*ResponseEvaluation, error)
}

type TextExtractor interface {
	Extract(ctx context.Context, fileName string, data []byte) (string, error)
}

type UploadHandle struct {
	FileKey   string            `json:"file_key"`
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	ExpiresAt time.Time         `json:"expires_at"`
}

type DownloadHandle struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type FileStorage interface {
	PresignUpload(ctx context.Context, key, contentType string) (*UploadHandle, error)
	PresignDownload(ctx context.Context, key string) (*DownloadHandle, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
}

type VerixInvitation struct {
	ConversationID uuid.UUID
	CandidateName  string
	CandidateEmail string
	JobTitle       string
	Link           string
	QuestionCount  int
	ExpiresAt      time.Time
}

// Mailer delivers candidate invitations. Delivery outcome is reported back
// through VerixUsecase.ReportDelivery.
type Mailer interface {
	SendVerixInvitation(ctx context.Context, inv VerixInvitation) error
}

type TaskStep string

const (
	StepParse   TaskStep = "parse"
	StepAnalyze TaskStep = "analyze"
)

// ProcessingTask is one unit of pipeline work for one resume.
type ProcessingTask struct {
	ResumeID   uuid.UUID `json:"resume_id"`
	JobID      int64     `json:"job_id"`
	Step       TaskStep  `json:"step"`
	Generation int64     `json:"generation"`
	Attempt    int       `json:"attempt"`
}

type TaskQueue interface {
	Enqueue(ctx context.Context, task ProcessingTask) error
	// Consume returns the delivery channel. It is closed when the queue closes.
	Consume(ctx context.Context) (<-chan ProcessingTask, error)
	Close() error
}

// Publisher fans an event out to the named notifier channels. Publishing
// never blocks on subscribers.
type Publisher interface {
	Publish(ctx context.Context, ev Event, channels ...string)
}
