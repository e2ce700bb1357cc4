package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go-screening-backend/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

type jobRepo struct {
	db *pgxpool.Pool
}

func NewJobRepository(db *pgxpool.Pool) domain.JobRepository {
	return &jobRepo{db: db}
}

const jobColumns = `id, organization_id, title, description, required_skills, nice_to_have_skills,
	weights, custom_questions, ranking_stale, ranking_version, ranked_at, created_at, updated_at`

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job       domain.Job
		weights   []byte
		questions []byte
	)
	err := row.Scan(
		&job.ID, &job.OrganizationID, &job.Title, &job.Description,
		pq.Array(&job.RequiredSkills), pq.Array(&job.NiceToHaveSkills),
		&weights, &questions, &job.RankingStale, &job.RankingVersion, &job.RankedAt,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(weights, &job.Weights); err != nil {
		return nil, fmt.Errorf("decode weights of job %d: %w", job.ID, err)
	}
	job.CustomQuestions = []domain.PreferenceQuestion{}
	if len(questions) > 0 {
		if err := json.Unmarshal(questions, &job.CustomQuestions); err != nil {
			return nil, fmt.Errorf("decode questions of job %d: %w", job.ID, err)
		}
	}
	return &job, nil
}

func (r *jobRepo) GetByID(ctx context.Context, id int64) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	return scanJob(r.db.QueryRow(ctx, query, id))
}

func (r *jobRepo) UpdateWeights(ctx context.Context, jobID int64, weights domain.ScoringWeights) error {
	raw, err := json.Marshal(weights)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE jobs SET weights = $2::jsonb, ranking_stale = TRUE, updated_at = NOW() WHERE id = $1`,
		jobID, string(raw),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *jobRepo) UpdatePreferences(ctx context.Context, jobID int64, prefs domain.JobPreferences) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var current []byte
	err = tx.QueryRow(ctx, `SELECT weights FROM jobs WHERE id = $1 FOR UPDATE`, jobID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, domain.ErrNotFound
	}
	if err != nil {
		return false, err
	}
	var stored domain.ScoringWeights
	if err := json.Unmarshal(current, &stored); err != nil {
		return false, fmt.Errorf("decode weights of job %d: %w", jobID, err)
	}
	changed := stored != prefs.Weights

	weights, err := json.Marshal(prefs.Weights)
	if err != nil {
		return false, err
	}
	questions, err := json.Marshal(prefs.CustomQuestions)
	if err != nil {
		return false, err
	}
	_, err = tx.Exec(ctx, `
		UPDATE jobs
		SET weights = $2::jsonb, custom_questions = $3::jsonb,
		    ranking_stale = ranking_stale OR $4, updated_at = NOW()
		WHERE id = $1`,
		jobID, string(weights), string(questions), changed,
	)
	if err != nil {
		return false, err
	}
	return changed, tx.Commit(ctx)
}

func (r *jobRepo) MarkRankingStale(ctx context.Context, jobID int64) error {
	_, err := r.db.Exec(ctx, `UPDATE jobs SET ranking_stale = TRUE WHERE id = $1`, jobID)
	return err
}

// EnsureGroupLabel reports whether the label was newly created.
func (r *jobRepo) EnsureGroupLabel(ctx context.Context, jobID int64, label string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO job_group_labels (job_id, label, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (job_id, label) DO NOTHING`,
		jobID, label,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *jobRepo) ListGroupLabels(ctx context.Context, jobID int64) ([]domain.GroupLabel, error) {
	rows, err := r.db.Query(ctx,
		`SELECT job_id, label, created_at FROM job_group_labels WHERE job_id = $1 ORDER BY created_at, label`,
		jobID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	labels := []domain.GroupLabel{}
	for rows.Next() {
		var l domain.GroupLabel
		if err := rows.Scan(&l.JobID, &l.Label, &l.CreatedAt); err != nil {
			return nil, err
		}
		labels = append(labels, l)
	}
	return labels, rows.Err()
}
