package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-screening-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

type resumeRepo struct {
	db *pgxpool.Pool
}

func NewResumeRepository(db *pgxpool.Pool) domain.ResumeRepository {
	return &resumeRepo{db: db}
}

const resumeColumns = `id, job_id, file_key, file_name, content_type, status, error_reason, generation,
	status_changed_at, text, profile, scores, rank_position, percentile, shortlisted, group_label,
	verix_conversation_id, verix_checked, created_at, updated_at`

func scanResume(row pgx.Row) (*domain.Resume, error) {
	var (
		r       domain.Resume
		status  string
		profile []byte
		scores  []byte
	)
	err := row.Scan(
		&r.ID, &r.JobID, &r.FileKey, &r.FileName, &r.ContentType, &status, &r.ErrorReason, &r.Generation,
		&r.StatusChangedAt, &r.Text, &profile, &scores, &r.RankPosition, &r.Percentile, &r.Shortlisted, &r.GroupLabel,
		&r.VerixConversationID, &r.VerixChecked, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	st, ok := domain.ParseResumeStatus(status)
	if !ok {
		return nil, fmt.Errorf("resume %s has unknown status %q", r.ID, status)
	}
	r.Status = st
	if len(profile) > 0 {
		r.Profile = &domain.Profile{}
		if err := json.Unmarshal(profile, r.Profile); err != nil {
			return nil, fmt.Errorf("decode profile of resume %s: %w", r.ID, err)
		}
	}
	if len(scores) > 0 {
		r.Scores = &domain.ResumeScores{}
		if err := json.Unmarshal(scores, r.Scores); err != nil {
			return nil, fmt.Errorf("decode scores of resume %s: %w", r.ID, err)
		}
	}
	return &r, nil
}

// jsonParam encodes v for a jsonb parameter. The pool runs in simple
// protocol mode, so documents travel as text.
func jsonParam(v any) (*string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(raw)
	return &s, nil
}

func (r *resumeRepo) Create(ctx context.Context, res *domain.Resume) error {
	query := `INSERT INTO resumes (id, job_id, file_key, file_name, content_type, status, generation,
	              status_changed_at, text, shortlisted, verix_checked, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '', FALSE, FALSE, $9, $10)`
	_, err := r.db.Exec(ctx, query,
		res.ID, res.JobID, res.FileKey, res.FileName, res.ContentType, string(res.Status), res.Generation,
		res.StatusChangedAt, res.CreatedAt, res.UpdatedAt,
	)
	return insertError(err, "resume "+res.ID.String())
}

func (r *resumeRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Resume, error) {
	return scanResume(r.db.QueryRow(ctx, `SELECT `+resumeColumns+` FROM resumes WHERE id = $1`, id))
}

func (r *resumeRepo) ListByJob(ctx context.Context, jobID int64, filter domain.CandidateFilter) ([]domain.Resume, error) {
	conds := []string{"job_id = $1"}
	args := []any{jobID}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Shortlisted != nil {
		args = append(args, *filter.Shortlisted)
		conds = append(conds, fmt.Sprintf("shortlisted = $%d", len(args)))
	}
	if filter.Group != nil {
		args = append(args, *filter.Group)
		conds = append(conds, fmt.Sprintf("group_label = $%d", len(args)))
	}

	query := `SELECT ` + resumeColumns + ` FROM resumes WHERE ` + strings.Join(conds, " AND ") + `
		ORDER BY (status = 'analyzed') DESC, rank_position NULLS LAST, created_at`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []domain.Resume{}
	for rows.Next() {
		res, err := scanResume(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *res)
	}
	return list, rows.Err()
}

func (r *resumeRepo) CountByStatus(ctx context.Context, jobID int64) (map[domain.ResumeStatus]int, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM resumes WHERE job_id = $1 GROUP BY status`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.ResumeStatus]int, len(domain.ResumeStatuses))
	for _, s := range domain.ResumeStatuses {
		counts[s] = 0
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.ResumeStatus(status)] = n
	}
	return counts, rows.Err()
}

// ApplyTransition is a compare-and-swap on (id, status, generation). Writing
// scores flags the job ranking stale in the same transaction.
func (r *resumeRepo) ApplyTransition(ctx context.Context, t domain.Transition) (*domain.Resume, error) {
	var (
		profile, scores *string
		err             error
	)
	if t.Profile != nil {
		if profile, err = jsonParam(t.Profile); err != nil {
			return nil, err
		}
	}
	if t.Scores != nil {
		if scores, err = jsonParam(t.Scores); err != nil {
			return nil, err
		}
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Lock order is job then resume, the same as ApplyRanking.
	if t.Scores != nil {
		var jobID int64
		err := tx.QueryRow(ctx, `
			SELECT j.id FROM jobs j JOIN resumes r ON r.job_id = j.id
			WHERE r.id = $1
			FOR UPDATE OF j`, t.ResumeID).Scan(&jobID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
	}

	query := `
		UPDATE resumes SET
			status = $4,
			error_reason = $5,
			generation = generation + CASE WHEN $6 THEN 1 ELSE 0 END,
			text = COALESCE($7, text),
			profile = COALESCE($8::jsonb, profile),
			scores = COALESCE($9::jsonb, scores),
			verix_checked = verix_checked OR $10,
			status_changed_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND status = $2 AND generation = $3
		RETURNING ` + resumeColumns
	updated, err := scanResume(tx.QueryRow(ctx, query,
		t.ResumeID, string(t.From), t.Generation,
		string(t.To), t.ErrorReason, t.BumpGeneration,
		t.Text, profile, scores, t.VerixChecked,
	))
	if errors.Is(err, domain.ErrNotFound) {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM resumes WHERE id = $1)`, t.ResumeID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("resume %s %s@%d: %w", t.ResumeID, t.From, t.Generation, domain.ErrStaleGeneration)
	}
	if err != nil {
		return nil, err
	}

	if t.Scores != nil {
		if _, err := tx.Exec(ctx, `UPDATE jobs SET ranking_stale = TRUE WHERE id = $1`, updated.JobID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *resumeRepo) SetShortlisted(ctx context.Context, id uuid.UUID, value bool) error {
	return r.exec(ctx, `UPDATE resumes SET shortlisted = $2, updated_at = NOW() WHERE id = $1`, id, value)
}

func (r *resumeRepo) SetGroupLabel(ctx context.Context, id uuid.UUID, label string) error {
	return r.exec(ctx, `UPDATE resumes SET group_label = $2, updated_at = NOW() WHERE id = $1`, id, label)
}

func (r *resumeRepo) LinkVerix(ctx context.Context, id uuid.UUID, conversationID uuid.UUID) error {
	return r.exec(ctx, `UPDATE resumes SET verix_conversation_id = $2, updated_at = NOW() WHERE id = $1`, id, conversationID)
}

func (r *resumeRepo) exec(ctx context.Context, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ApplyRanking holds the job row lock for the whole read-plan-write cycle, so
// recomputes of one job never interleave.
func (r *resumeRepo) ApplyRanking(ctx context.Context, jobID int64, plan domain.RankingPlanner) (*domain.RankingResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	job, err := scanJob(tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, jobID))
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT id, scores FROM resumes
		WHERE job_id = $1 AND status = 'analyzed' AND scores IS NOT NULL`, jobID)
	if err != nil {
		return nil, err
	}
	stored := map[uuid.UUID]*domain.ResumeScores{}
	var snapshot []domain.RankCandidate
	for rows.Next() {
		var (
			id  uuid.UUID
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			rows.Close()
			return nil, err
		}
		s := &domain.ResumeScores{}
		if err := json.Unmarshal(raw, s); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decode scores of resume %s: %w", id, err)
		}
		stored[id] = s
		snapshot = append(snapshot, domain.RankCandidate{
			ResumeID: id, Dimensions: s.Dimensions, Overall: s.Overall, AnalyzedAt: s.AnalyzedAt,
		})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	entries, err := plan(job, snapshot)
	if err != nil {
		return nil, err
	}

	batch := &pgx.Batch{}
	batch.Queue(`
		UPDATE resumes SET rank_position = NULL, percentile = NULL
		WHERE job_id = $1 AND status <> 'analyzed' AND rank_position IS NOT NULL`, jobID)
	for _, e := range entries {
		s, ok := stored[e.ResumeID]
		if !ok {
			return nil, fmt.Errorf("ranking plan names resume %s outside the snapshot", e.ResumeID)
		}
		s.Overall, s.Recommendation = e.Overall, e.Recommendation
		raw, err := json.Marshal(s)
		if err != nil {
			return nil, err
		}
		batch.Queue(`UPDATE resumes SET rank_position = $2, percentile = $3, scores = $4::jsonb WHERE id = $1`,
			e.ResumeID, e.Rank, e.Percentile, string(raw))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return nil, fmt.Errorf("write ranking of job %d: %w", jobID, err)
	}

	var (
		version    int64
		computedAt time.Time
	)
	err = tx.QueryRow(ctx, `
		UPDATE jobs SET ranking_stale = FALSE, ranking_version = ranking_version + 1, ranked_at = NOW()
		WHERE id = $1
		RETURNING ranking_version, ranked_at`, jobID).Scan(&version, &computedAt)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []domain.RankEntry{}
	}
	return &domain.RankingResult{JobID: jobID, Version: version, Total: len(entries), ComputedAt: computedAt, Entries: entries}, nil
}

func (r *resumeRepo) FindStuck(ctx context.Context, statuses []domain.ResumeStatus, changedBefore time.Time, limit int) ([]domain.Resume, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+resumeColumns+` FROM resumes
		WHERE status = ANY($1) AND status_changed_at < $2
		ORDER BY status_changed_at
		LIMIT $3`,
		pq.Array(names), changedBefore, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []domain.Resume
	for rows.Next() {
		res, err := scanResume(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *res)
	}
	return list, rows.Err()
}
