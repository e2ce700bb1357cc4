package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"go-screening-backend/internal/domain"
	"go-screening-backend/internal/scoring"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// testPool connects to TEST_DATABASE_URL and loads the reference schema.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	schema, err := os.ReadFile("../../../scripts/schema.sql")
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(schema))
	require.NoError(t, err)
	return pool
}

func TestTransitionAndRankingShareLockOrder(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := NewResumeRepository(pool)

	var jobID int64
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO jobs (organization_id, title) VALUES (1, 'lock order') RETURNING id`).Scan(&jobID))
	t.Cleanup(func() { _, _ = pool.Exec(context.Background(), `DELETE FROM jobs WHERE id = $1`, jobID) })

	const n = 24
	ids := make([]uuid.UUID, n)
	now := time.Now().UTC()
	for i := range ids {
		ids[i] = uuid.New()
		require.NoError(t, repo.Create(ctx, &domain.Resume{
			ID: ids[i], JobID: jobID, FileKey: "k", FileName: "cv.txt", ContentType: "text/plain",
			Status: domain.StatusAnalyzing, Generation: 1,
			StatusChangedAt: now, CreatedAt: now, UpdatedAt: now,
		}))
	}

	plan := func(_ *domain.Job, snap []domain.RankCandidate) ([]domain.RankEntry, error) {
		return scoring.Rank(snap), nil
	}

	var g errgroup.Group
	for i, id := range ids {
		id, score := id, 50+i
		g.Go(func() error {
			_, err := repo.ApplyTransition(ctx, domain.Transition{
				ResumeID: id, From: domain.StatusAnalyzing, To: domain.StatusAnalyzed,
				Cause: domain.CausePipeline, Generation: 1,
				Scores: &domain.ResumeScores{Overall: score, AnalyzedAt: time.Now().UTC()},
			})
			return err
		})
		g.Go(func() error {
			_, err := repo.ApplyRanking(ctx, jobID, plan)
			return err
		})
	}
	require.NoError(t, g.Wait())

	res, err := repo.ApplyRanking(ctx, jobID, plan)
	require.NoError(t, err)
	require.Equal(t, n, res.Total)
}
