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

type analysisRepo struct {
	db *pgxpool.Pool
}

func NewAnalysisRepository(db *pgxpool.Pool) domain.AnalysisRepository {
	return &analysisRepo{db: db}
}

const analysisColumns = `id, job_id, resume_id, kind, weights, dimensions, overall_score, recommendation,
	summary, strengths, concerns, skill_match, trust_flags, created_at`

func scanAnalysis(row pgx.Row) (*domain.Analysis, error) {
	var (
		a                            domain.Analysis
		kind, rec                    string
		weights, dims, skillMatchRaw []byte
	)
	err := row.Scan(
		&a.ID, &a.JobID, &a.ResumeID, &kind, &weights, &dims, &a.OverallScore, &rec,
		&a.Summary, pq.Array(&a.Strengths), pq.Array(&a.Concerns), &skillMatchRaw, pq.Array(&a.TrustFlags),
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	a.Kind = domain.AnalysisKind(kind)
	a.Recommendation = domain.Recommendation(rec)
	for _, doc := range []struct {
		raw []byte
		dst any
	}{{weights, &a.Weights}, {dims, &a.Dimensions}, {skillMatchRaw, &a.SkillMatch}} {
		if err := json.Unmarshal(doc.raw, doc.dst); err != nil {
			return nil, fmt.Errorf("decode analysis %s: %w", a.ID, err)
		}
	}
	return &a, nil
}

func (r *analysisRepo) Create(ctx context.Context, a *domain.Analysis) error {
	weights, err := json.Marshal(a.Weights)
	if err != nil {
		return err
	}
	dims, err := json.Marshal(a.Dimensions)
	if err != nil {
		return err
	}
	skillMatch, err := json.Marshal(a.SkillMatch)
	if err != nil {
		return err
	}

	query := `INSERT INTO analyses (` + analysisColumns + `)
	          VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb, $7, $8, $9, $10, $11, $12::jsonb, $13, $14)`
	_, err = r.db.Exec(ctx, query,
		a.ID, a.JobID, a.ResumeID, string(a.Kind), string(weights), string(dims), a.OverallScore, string(a.Recommendation),
		a.Summary, pq.Array(a.Strengths), pq.Array(a.Concerns), string(skillMatch), pq.Array(a.TrustFlags),
		a.CreatedAt,
	)
	return err
}

func (r *analysisRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Analysis, error) {
	return scanAnalysis(r.db.QueryRow(ctx, `SELECT `+analysisColumns+` FROM analyses WHERE id = $1`, id))
}

// ListByResume returns the scoring history of a resume, newest first.
func (r *analysisRepo) ListByResume(ctx context.Context, resumeID uuid.UUID) ([]domain.Analysis, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+analysisColumns+` FROM analyses WHERE resume_id = $1 ORDER BY created_at DESC`, resumeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []domain.Analysis{}
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}
