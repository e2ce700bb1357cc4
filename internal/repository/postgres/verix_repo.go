package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go-screening-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

type verixRepo struct {
	db *pgxpool.Pool
}

func NewVerixRepository(db *pgxpool.Pool) domain.VerixRepository {
	return &verixRepo{db: db}
}

const verixColumns = `id, resume_id, job_id, status, trigger_reasons, questions, responses, events,
	pre_trust, pre_skills, pre_overall, post_trust, post_skills, post_overall,
	token_version, expires_at, sent_at, failure_reason, version, created_at, updated_at`

func scanVerix(row pgx.Row) (*domain.VerixConversation, error) {
	var (
		c                          domain.VerixConversation
		status                     string
		questions, responses, evts []byte
	)
	err := row.Scan(
		&c.ID, &c.ResumeID, &c.JobID, &status, pq.Array(&c.TriggerReasons), &questions, &responses, &evts,
		&c.PreTrust, &c.PreSkills, &c.PreOverall, &c.PostTrust, &c.PostSkills, &c.PostOverall,
		&c.TokenVersion, &c.ExpiresAt, &c.SentAt, &c.FailureReason, &c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	c.Status = domain.VerixStatus(status)
	if !c.Status.IsValid() {
		return nil, fmt.Errorf("verix %s has unknown status %q", c.ID, status)
	}
	if err := json.Unmarshal(questions, &c.Questions); err != nil {
		return nil, fmt.Errorf("decode questions of verix %s: %w", c.ID, err)
	}
	if err := json.Unmarshal(responses, &c.Responses); err != nil {
		return nil, fmt.Errorf("decode responses of verix %s: %w", c.ID, err)
	}
	if err := json.Unmarshal(evts, &c.Events); err != nil {
		return nil, fmt.Errorf("decode events of verix %s: %w", c.ID, err)
	}
	return &c, nil
}

type verixDocs struct {
	questions, responses, events string
}

func encodeVerix(c *domain.VerixConversation) (verixDocs, error) {
	var docs verixDocs
	for _, doc := range []struct {
		v   any
		dst *string
	}{{c.Questions, &docs.questions}, {c.Responses, &docs.responses}, {c.Events, &docs.events}} {
		raw, err := json.Marshal(doc.v)
		if err != nil {
			return docs, err
		}
		if string(raw) == "null" {
			raw = []byte("[]")
		}
		*doc.dst = string(raw)
	}
	return docs, nil
}

func (r *verixRepo) Create(ctx context.Context, c *domain.VerixConversation) error {
	docs, err := encodeVerix(c)
	if err != nil {
		return err
	}
	query := `INSERT INTO verix_conversations (` + verixColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8::jsonb, $9, $10, $11, $12, $13, $14,
	                  $15, $16, $17, $18, $19, $20, $21)`
	_, err = r.db.Exec(ctx, query,
		c.ID, c.ResumeID, c.JobID, string(c.Status), pq.Array(c.TriggerReasons), docs.questions, docs.responses, docs.events,
		c.PreTrust, c.PreSkills, c.PreOverall, c.PostTrust, c.PostSkills, c.PostOverall,
		c.TokenVersion, c.ExpiresAt, c.SentAt, c.FailureReason, c.Version, c.CreatedAt, c.UpdatedAt,
	)
	return insertError(err, fmt.Sprintf("verix for resume %s", c.ResumeID))
}

func (r *verixRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.VerixConversation, error) {
	return scanVerix(r.db.QueryRow(ctx, `SELECT `+verixColumns+` FROM verix_conversations WHERE id = $1`, id))
}

func (r *verixRepo) GetByResumeID(ctx context.Context, resumeID uuid.UUID) (*domain.VerixConversation, error) {
	return scanVerix(r.db.QueryRow(ctx, `SELECT `+verixColumns+` FROM verix_conversations WHERE resume_id = $1`, resumeID))
}

func (r *verixRepo) Save(ctx context.Context, c *domain.VerixConversation) error {
	docs, err := encodeVerix(c)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE verix_conversations SET
			status = $3, trigger_reasons = $4, questions = $5::jsonb, responses = $6::jsonb, events = $7::jsonb,
			pre_trust = $8, pre_skills = $9, pre_overall = $10,
			post_trust = $11, post_skills = $12, post_overall = $13,
			token_version = $14, expires_at = $15, sent_at = $16, failure_reason = $17,
			version = version + 1, updated_at = $18
		WHERE id = $1 AND version = $2`,
		c.ID, c.Version,
		string(c.Status), pq.Array(c.TriggerReasons), docs.questions, docs.responses, docs.events,
		c.PreTrust, c.PreSkills, c.PreOverall,
		c.PostTrust, c.PostSkills, c.PostOverall,
		c.TokenVersion, c.ExpiresAt, c.SentAt, c.FailureReason, c.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM verix_conversations WHERE id = $1)`, c.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound
		}
		return fmt.Errorf("verix %s@%d: %w", c.ID, c.Version, domain.ErrConcurrentUpdate)
	}
	c.Version++
	return nil
}
