package domain

import (
	"context"

	"github.com/google/uuid"
)

type BulkOperation string

const (
	BulkShortlist BulkOperation = "shortlist"
	BulkGroup     BulkOperation = "assign_group"
	BulkRerank    BulkOperation = "recompute_ranking"
)

type BulkOutcome string

const (
	OutcomeOK            BulkOutcome = "ok"
	OutcomeInvalidID     BulkOutcome = "invalid_id"
	OutcomeNotFound      BulkOutcome = "not_found"
	OutcomeScopeMismatch BulkOutcome = "scope_mismatch"
	OutcomeNotAnalyzed   BulkOutcome = "not_analyzed"
	OutcomeLeaseTimeout  BulkOutcome = "lease_timeout"
	OutcomeInternal      BulkOutcome = "internal"
)

type BulkItemResult struct {
	ResumeID string      `json:"resume_id"`
	Success  bool        `json:"success"`
	Outcome  BulkOutcome `json:"outcome"`
	Changed  bool        `json:"changed"`
	Message  string      `json:"message,omitempty"`
}

// BulkResult always carries one item per requested id, in request order.
type BulkResult struct {
	Operation BulkOperation    `json:"operation"`
	Total     int              `json:"total"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Items     []BulkItemResult `json:"items"`
	Ranking   *RankingResult   `json:"ranking,omitempty"`
}

func (r *BulkResult) Tally() {
	r.Total, r.Succeeded, r.Failed = len(r.Items), 0, 0
	for _, it := range r.Items {
		if it.Success {
			r.Succeeded++
		} else {
			r.Failed++
		}
	}
}

type BulkShortlistRequest struct {
	ResumeIDs   []string `json:"resume_ids" binding:"required,min=1,max=500"`
	Shortlisted *bool    `json:"shortlisted" binding:"required"`
}

type BulkGroupRequest struct {
	ResumeIDs []string `json:"resume_ids" binding:"required,min=1,max=500"`
	Label     string   `json:"label" binding:"required,group_label"`
}

type BulkRerankRequest struct {
	ResumeIDs []string `json:"resume_ids" binding:"required,min=1,max=500"`
}

type BulkUsecase interface {
	ToggleShortlist(ctx context.Context, jobID int64, id uuid.UUID, value bool) (*Resume, error)
	BulkShortlist(ctx context.Context, jobID int64, ids []string, value bool) (*BulkResult, error)
	AssignGroup(ctx context.Context, jobID int64, ids []string, label string) (*BulkResult, error)
	BulkRecompute(ctx context.Context, jobID int64, ids []string) (*BulkResult, error)
}
