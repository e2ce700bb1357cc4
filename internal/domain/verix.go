package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type VerixStatus string

const (
	VerixPending          VerixStatus = "pending"
	VerixQuestionsSent    VerixStatus = "questions_sent"
	VerixAwaitingResponse VerixStatus = "awaiting_response"
	VerixResponded        VerixStatus = "responded"
	VerixVerified         VerixStatus = "verified"
	VerixCompleted        VerixStatus = "completed"
	VerixFailed           VerixStatus = "failed"
	VerixExpired          VerixStatus = "expired"
)

func (s VerixStatus) IsValid() bool {
	switch s {
	case VerixPending, VerixQuestionsSent, VerixAwaitingResponse, VerixResponded,
		VerixVerified, VerixCompleted, VerixFailed, VerixExpired:
		return true
	}
	return false
}

// Open reports whether the candidate link is usable in this state.
func (s VerixStatus) Open() bool {
	return s == VerixQuestionsSent || s == VerixAwaitingResponse
}

// Retryable reports whether an explicit retry may reopen the conversation.
func (s VerixStatus) Retryable() bool {
	return s == VerixFailed || s == VerixExpired
}

func (s VerixStatus) CanTransitionTo(next VerixStatus) bool {
	switch s {
	case VerixPending:
		return next == VerixQuestionsSent || next == VerixFailed
	case VerixQuestionsSent:
		return next == VerixAwaitingResponse || next == VerixFailed || next == VerixExpired
	case VerixAwaitingResponse:
		return next == VerixResponded || next == VerixFailed || next == VerixExpired
	case VerixResponded:
		return next == VerixVerified || next == VerixFailed
	case VerixVerified:
		return next == VerixCompleted || next == VerixFailed
	case VerixFailed, VerixExpired:
		return next == VerixQuestionsSent
	case VerixCompleted:
		return false
	}
	return false
}

type AuthorshipVerdict string

const (
	AuthorHuman       AuthorshipVerdict = "human"
	AuthorAIAssisted  AuthorshipVerdict = "ai_assisted"
	AuthorAIGenerated AuthorshipVerdict = "ai_generated"
)

func ParseAuthorshipVerdict(s string) (AuthorshipVerdict, bool) {
	v := AuthorshipVerdict(strings.ToLower(strings.TrimSpace(s)))
	switch v {
	case AuthorHuman, AuthorAIAssisted, AuthorAIGenerated:
		return v, true
	}
	return "", false
}

type QuestionSource string

const (
	QuestionSystem QuestionSource = "system"
	QuestionCustom QuestionSource = "custom"
)

type VerixQuestion struct {
	ID       uuid.UUID      `json:"id"`
	Position int            `json:"position"`
	Text     string         `json:"text"`
	Required bool           `json:"required"`
	Source   QuestionSource `json:"source"`
	// CustomQuestionID links back to the job preference question.
	CustomQuestionID *uuid.UUID `json:"custom_question_id,omitempty"`
}

type VerixResponse struct {
	QuestionID     uuid.UUID         `json:"question_id"`
	Answer         string            `json:"answer"`
	SubmittedAt    time.Time         `json:"submitted_at"`
	LatencySeconds int64             `json:"latency_seconds"`
	Evaluated      bool              `json:"evaluated"`
	Depth          int               `json:"depth"`
	Specificity    int               `json:"specificity"`
	Relevance      int               `json:"relevance"`
	Technical      int               `json:"technical"`
	Quality        int               `json:"quality"`
	Authorship     AuthorshipVerdict `json:"authorship,omitempty"`
	Notes          string            `json:"notes,omitempty"`
}

type VerixEventType string

const (
	VerixEventCreated        VerixEventType = "created"
	VerixEventEmailSent      VerixEventType = "email_sent"
	VerixEventViewed         VerixEventType = "viewed"
	VerixEventSubmitted      VerixEventType = "submitted"
	VerixEventVerified       VerixEventType = "verified"
	VerixEventReanalyzed     VerixEventType = "reanalyzed"
	VerixEventDeliveryFailed VerixEventType = "delivery_failed"
	VerixEventExpired        VerixEventType = "expired"
	VerixEventFailed         VerixEventType = "failed"
	VerixEventRetried        VerixEventType = "retried"
)

type VerixEvent struct {
	ID     uuid.UUID      `json:"id"`
	Type   VerixEventType `json:"type"`
	At     time.Time      `json:"at"`
	Detail string         `json:"detail,omitempty"`
}

type VerixConversation struct {
	ID             uuid.UUID       `json:"id"`
	ResumeID       uuid.UUID       `json:"resume_id"`
	JobID          int64           `json:"job_id"`
	Status         VerixStatus     `json:"status"`
	TriggerReasons []string        `json:"trigger_reasons"`
	Questions      []VerixQuestion `json:"questions"`
	Responses      []VerixResponse `json:"responses"`
	Events         []VerixEvent    `json:"events"`

	PreTrust    *int `json:"pre_trust,omitempty"`
	PreSkills   *int `json:"pre_skills,omitempty"`
	PreOverall  *int `json:"pre_overall,omitempty"`
	PostTrust   *int `json:"post_trust,omitempty"`
	PostSkills  *int `json:"post_skills,omitempty"`
	PostOverall *int `json:"post_overall,omitempty"`

	TokenVersion  int        `json:"token_version"`
	ExpiresAt     time.Time  `json:"expires_at"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	Version       int64      `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TransitionTo moves the conversation along its table.
func (c *VerixConversation) TransitionTo(next VerixStatus, now time.Time) error {
	if !c.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: verix %s -> %s", ErrInvalidTransition, c.Status, next)
	}
	c.Status = next
	c.UpdatedAt = now
	return nil
}

// Record appends to the timeline. Events are never rewritten.
func (c *VerixConversation) Record(t VerixEventType, now time.Time, detail string) VerixEvent {
	ev := VerixEvent{ID: uuid.New(), Type: t, At: now, Detail: detail}
	c.Events = append(c.Events, ev)
	return ev
}

func (c *VerixConversation) HasEvent(t VerixEventType) bool {
	for _, ev := range c.Events {
		if ev.Type == t {
			return true
		}
	}
	return false
}

func (c *VerixConversation) Question(id uuid.UUID) (*VerixQuestion, bool) {
	for i := range c.Questions {
		if c.Questions[i].ID == id {
			return &c.Questions[i], true
		}
	}
	return nil, false
}

func (c *VerixConversation) Response(questionID uuid.UUID) (*VerixResponse, bool) {
	for i := range c.Responses {
		if c.Responses[i].QuestionID == questionID {
			return &c.Responses[i], true
		}
	}
	return nil, false
}

// RequiredAnswered reports whether every required question has a non-empty answer.
func (c *VerixConversation) RequiredAnswered() bool {
	for _, q := range c.Questions {
		if !q.Required {
			continue
		}
		r, ok := c.Response(q.ID)
		if !ok || strings.TrimSpace(r.Answer) == "" {
			return false
		}
	}
	return true
}

// Expired reports a lapsed link on a conversation still waiting for answers.
func (c *VerixConversation) Expired(now time.Time) bool {
	return c.Status.Open() && !now.Before(c.ExpiresAt)
}

type VerixAnswer struct {
	QuestionID uuid.UUID `json:"question_id" binding:"required"`
	Answer     string    `json:"answer" binding:"required,max=5000"`
}

// CandidateVerixView is the candidate-facing projection of a conversation.
type CandidateVerixView struct {
	ConversationID uuid.UUID           `json:"conversation_id"`
	JobTitle       string              `json:"job_title"`
	Status         VerixStatus         `json:"status"`
	ExpiresAt      time.Time           `json:"expires_at"`
	Questions      []CandidateQuestion `json:"questions"`
	Skipped        []uuid.UUID         `json:"skipped,omitempty"`
}

type CandidateQuestion struct {
	ID       uuid.UUID `json:"id"`
	Position int       `json:"position"`
	Text     string    `json:"text"`
	Required bool      `json:"required"`
	Answered bool      `json:"answered"`
}

// VerixDetail is the recruiter view. CandidateLink is set while the link is open.
type VerixDetail struct {
	VerixConversation
	CandidateLink string `json:"candidate_link,omitempty"`
}

type VerixRepository interface {
	Create(ctx context.Context, c *VerixConversation) error
	GetByID(ctx context.Context, id uuid.UUID) (*VerixConversation, error)
	GetByResumeID(ctx context.Context, resumeID uuid.UUID) (*VerixConversation, error)
	// Save writes the conversation if its Version is unchanged and bumps it;
	// otherwise it returns ErrConcurrentUpdate.
	Save(ctx context.Context, c *VerixConversation) error
}

type VerixUsecase interface {
	// EvaluateTrigger runs once per resume right after its first analysis.
	EvaluateTrigger(ctx context.Context, resume *Resume, job *Job) (*VerixConversation, error)
	Get(ctx context.Context, jobID int64, id uuid.UUID) (*VerixDetail, error)
	Retry(ctx context.Context, jobID int64, id uuid.UUID) (*VerixDetail, error)
	OpenByToken(ctx context.Context, token string) (*CandidateVerixView, error)
	SubmitAnswers(ctx context.Context, token string, answers []VerixAnswer) (*CandidateVerixView, error)
	ReportDelivery(ctx context.Context, id uuid.UUID, tokenVersion int, deliveryErr error)
}
