package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventResumeStatusChanged EventType = "resume.status_changed"
	EventResumeUpdated       EventType = "resume.updated"
	EventRankingInvalidated  EventType = "ranking.invalidated"
	EventRankingRecomputed   EventType = "ranking.recomputed"
	EventVerixChanged        EventType = "verix.changed"
	// Stream-only frames, never published through the hub.
	EventSnapshot  EventType = "snapshot"
	EventResync    EventType = "resync"
	EventHeartbeat EventType = "heartbeat"
)

func JobChannel(jobID int64) string {
	return fmt.Sprintf("job:%d", jobID)
}

func ResumeChannel(id uuid.UUID) string {
	return "resume:" + id.String()
}

// Event is a closed variant: exactly one payload field matches Type.
type Event struct {
	Channel  string     `json:"channel"`
	Seq      uint64     `json:"seq"`
	Type     EventType  `json:"type"`
	JobID    int64      `json:"job_id"`
	ResumeID *uuid.UUID `json:"resume_id,omitempty"`
	At       time.Time  `json:"at"`

	Status  *StatusPayload  `json:"status,omitempty"`
	Resume  *ResumePayload  `json:"resume,omitempty"`
	Ranking *RankingPayload `json:"ranking,omitempty"`
	Verix   *VerixPayload   `json:"verix,omitempty"`
}

type StatusPayload struct {
	From        ResumeStatus    `json:"from"`
	To          ResumeStatus    `json:"to"`
	Generation  int64           `json:"generation"`
	ErrorReason *string         `json:"error_reason,omitempty"`
	Overall     *int            `json:"overall_score,omitempty"`
	Recommend   *Recommendation `json:"recommendation,omitempty"`
}

type ResumePayload struct {
	Shortlisted bool    `json:"shortlisted"`
	GroupLabel  *string `json:"group_label,omitempty"`
}

type RankingPayload struct {
	Version int64       `json:"version"`
	Stale   bool        `json:"stale"`
	Total   int         `json:"total"`
	Reason  string      `json:"reason,omitempty"`
	Entries []RankEntry `json:"entries,omitempty"`
}

type VerixPayload struct {
	ConversationID uuid.UUID      `json:"conversation_id"`
	Status         VerixStatus    `json:"status"`
	EventType      VerixEventType `json:"event_type,omitempty"`
	PreOverall     *int           `json:"pre_overall,omitempty"`
	PostOverall    *int           `json:"post_overall,omitempty"`
}

func NewStatusEvent(r *Resume, from ResumeStatus) Event {
	p := &StatusPayload{From: from, To: r.Status, Generation: r.Generation, ErrorReason: r.ErrorReason}
	if r.Scores != nil && r.Status == StatusAnalyzed {
		overall, rec := r.Scores.Overall, r.Scores.Recommendation
		p.Overall, p.Recommend = &overall, &rec
	}
	id := r.ID
	return Event{Type: EventResumeStatusChanged, JobID: r.JobID, ResumeID: &id, At: time.Now().UTC(), Status: p}
}

func NewResumeUpdatedEvent(r *Resume) Event {
	id := r.ID
	return Event{
		Type: EventResumeUpdated, JobID: r.JobID, ResumeID: &id, At: time.Now().UTC(),
		Resume: &ResumePayload{Shortlisted: r.Shortlisted, GroupLabel: r.GroupLabel},
	}
}

func NewVerixEvent(c *VerixConversation, evType VerixEventType) Event {
	id := c.ResumeID
	return Event{
		Type: EventVerixChanged, JobID: c.JobID, ResumeID: &id, At: time.Now().UTC(),
		Verix: &VerixPayload{
			ConversationID: c.ID, Status: c.Status, EventType: evType,
			PreOverall: c.PreOverall, PostOverall: c.PostOverall,
		},
	}
}

// JobSnapshot is what a reconnecting job subscriber fetches instead of a replay.
type JobSnapshot struct {
	JobID          int64                `json:"job_id"`
	Seq            uint64               `json:"seq"`
	RankingStale   bool                 `json:"ranking_stale"`
	RankingVersion int64                `json:"ranking_version"`
	Counts         map[ResumeStatus]int `json:"counts"`
	Candidates     []CandidateSummary   `json:"candidates"`
	TakenAt        time.Time            `json:"taken_at"`
}

type CandidateSummary struct {
	ID             uuid.UUID       `json:"id"`
	Name           string          `json:"name,omitempty"`
	Status         ResumeStatus    `json:"status"`
	Overall        *int            `json:"overall_score,omitempty"`
	Recommendation *Recommendation `json:"recommendation,omitempty"`
	RankPosition   *int            `json:"rank_position,omitempty"`
	Percentile     *int            `json:"percentile,omitempty"`
	Shortlisted    bool            `json:"shortlisted"`
	GroupLabel     *string         `json:"group_label,omitempty"`
}

func SummarizeResume(r *Resume) CandidateSummary {
	s := CandidateSummary{
		ID: r.ID, Status: r.Status, Shortlisted: r.Shortlisted, GroupLabel: r.GroupLabel,
		RankPosition: r.RankPosition, Percentile: r.Percentile,
	}
	if r.Profile != nil {
		s.Name = r.Profile.Name
	}
	if r.Scores != nil && r.Status == StatusAnalyzed {
		overall, rec := r.Scores.Overall, r.Scores.Recommendation
		s.Overall, s.Recommendation = &overall, &rec
	}
	if r.Status != StatusAnalyzed {
		s.RankPosition, s.Percentile = nil, nil
	}
	return s
}

type ResumeSnapshot struct {
	Seq         uint64           `json:"seq"`
	Resume      CandidateSummary `json:"resume"`
	ErrorReason *string          `json:"error_reason,omitempty"`
	Verix       *VerixPayload    `json:"verix,omitempty"`
	TakenAt     time.Time        `json:"taken_at"`
}
