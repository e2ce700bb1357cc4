package usecase_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"go-screening-backend/internal/domain"
	"go-screening-backend/internal/scoring"
	"go-screening-backend/internal/usecase"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flat(v int) domain.DimensionScores {
	return domain.DimensionScores{Skills: v, Experience: v, Trust: v, Education: v, Projects: v}
}

func TestUpdateWeights(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		weights domain.ScoringWeights
		code    int
	}{
		{
			name:    "Should reject weights that do not sum to one",
			weights: domain.ScoringWeights{Skills: 0.5, Experience: 0.2, Trust: 0.1, Education: 0.05, Projects: 0.05},
			code:    http.StatusBadRequest,
		},
		{
			name:    "Should reject a weight above one",
			weights: domain.ScoringWeights{Skills: 1.5, Experience: -0.5},
			code:    http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := newFakeJobRepo(testJob(1))
			resumes := newFakeResumeRepo(jobs)
			pub := &recordingPublisher{}
			uc := usecase.NewRankingUsecase(resumes, jobs, pub, scoring.DefaultThresholds(), false, nil)

			_, err := uc.UpdateWeights(ctx, 1, tt.weights)
			assert.Equal(t, tt.code, appCode(t, err))

			job, _ := jobs.GetByID(ctx, 1)
			assert.Equal(t, domain.DefaultScoringWeights(), job.Weights)
			assert.False(t, job.RankingStale)
			assert.Empty(t, pub.ofType(domain.EventRankingInvalidated))
		})
	}

	t.Run("Should store valid weights and flag the ranking stale", func(t *testing.T) {
		jobs := newFakeJobRepo(testJob(1))
		pub := &recordingPublisher{}
		uc := usecase.NewRankingUsecase(newFakeResumeRepo(jobs), jobs, pub, scoring.DefaultThresholds(), false, nil)

		w := domain.ScoringWeights{Skills: 0.2, Experience: 0.2, Trust: 0.2, Education: 0.2, Projects: 0.2}
		job, err := uc.UpdateWeights(ctx, 1, w)
		require.NoError(t, err)
		assert.Equal(t, w, job.Weights)
		assert.True(t, job.RankingStale)
		assert.Len(t, pub.ofType(domain.EventRankingInvalidated), 1)
	})

	t.Run("Should report an unknown job", func(t *testing.T) {
		jobs := newFakeJobRepo()
		uc := usecase.NewRankingUsecase(newFakeResumeRepo(jobs), jobs, nil, scoring.DefaultThresholds(), false, nil)
		_, err := uc.UpdateWeights(ctx, 7, domain.DefaultScoringWeights())
		assert.Equal(t, http.StatusNotFound, appCode(t, err))
	})
}

func TestRecomputeRanking(t *testing.T) {
	ctx := context.Background()
	jobs := newFakeJobRepo(testJob(1))
	resumes := newFakeResumeRepo(jobs)
	pub := &recordingPublisher{}
	uc := usecase.NewRankingUsecase(resumes, jobs, pub, scoring.DefaultThresholds(), false, nil)

	base := time.Now().Add(-time.Hour)
	older := analyzedResume(1, flat(90), 0, base)
	newer := analyzedResume(1, flat(90), 0, base.Add(time.Minute))
	low := analyzedResume(1, flat(70), 0, base.Add(2*time.Minute))
	pending := &domain.Resume{ID: uuid.New(), JobID: 1, Status: domain.StatusParsed, Generation: 1}
	for _, r := range []*domain.Resume{older, newer, low, pending} {
		resumes.put(r)
	}
	_ = jobs.MarkRankingStale(ctx, 1)

	res, err := uc.RecomputeRanking(ctx, 1, nil)
	require.NoError(t, err)
	require.Len(t, res.Entries, 3)

	assert.Equal(t, newer.ID, res.Entries[0].ResumeID, "ties go to the most recent analysis")
	assert.Equal(t, older.ID, res.Entries[1].ResumeID)
	assert.Equal(t, low.ID, res.Entries[2].ResumeID)

	var ranks, pcts, overall []int
	for _, e := range res.Entries {
		ranks = append(ranks, e.Rank)
		pcts = append(pcts, e.Percentile)
		overall = append(overall, e.Overall)
	}
	assert.Equal(t, []int{1, 2, 3}, ranks)
	assert.Equal(t, []int{100, 67, 33}, pcts)
	assert.Equal(t, []int{90, 90, 70}, overall)
	assert.Equal(t, domain.RecommendStrongYes, res.Entries[0].Recommendation)
	assert.Equal(t, domain.RecommendYes, res.Entries[2].Recommendation)

	job, _ := jobs.GetByID(ctx, 1)
	assert.False(t, job.RankingStale)
	assert.Equal(t, res.Version, job.RankingVersion)
	require.Len(t, pub.ofType(domain.EventRankingRecomputed), 1)

	stored, _ := resumes.GetByID(ctx, pending.ID)
	assert.Nil(t, stored.RankPosition)

	t.Run("Should be idempotent", func(t *testing.T) {
		again, err := uc.RecomputeRanking(ctx, 1, nil)
		require.NoError(t, err)
		require.Len(t, again.Entries, 3)
		for i := range again.Entries {
			assert.Equal(t, res.Entries[i].ResumeID, again.Entries[i].ResumeID)
			assert.Equal(t, res.Entries[i].Rank, again.Entries[i].Rank)
			assert.Equal(t, res.Entries[i].Percentile, again.Entries[i].Percentile)
		}
		assert.Greater(t, again.Version, res.Version)
	})

	t.Run("Should rescore only the subset but rank everyone", func(t *testing.T) {
		skillsOnly := domain.ScoringWeights{Skills: 1}
		require.NoError(t, jobs.UpdateWeights(ctx, 1, skillsOnly))
		resumes.mu.Lock()
		resumes.resumes[low.ID].Scores.Dimensions.Skills = 100
		resumes.resumes[older.ID].Scores.Dimensions.Skills = 10
		resumes.mu.Unlock()

		sub, err := uc.RecomputeRanking(ctx, 1, []uuid.UUID{low.ID})
		require.NoError(t, err)
		require.Len(t, sub.Entries, 3)
		assert.Equal(t, low.ID, sub.Entries[0].ResumeID)
		assert.Equal(t, 100, sub.Entries[0].Overall)
		// older keeps its previous overall because it was not in the subset.
		for _, e := range sub.Entries {
			if e.ResumeID == older.ID {
				assert.Equal(t, 90, e.Overall)
			}
		}
		job, _ := jobs.GetByID(ctx, 1)
		assert.False(t, job.RankingStale)
	})
}

func TestInvalidateAutoRerank(t *testing.T) {
	ctx := context.Background()
	jobs := newFakeJobRepo(testJob(1))
	resumes := newFakeResumeRepo(jobs)
	resumes.put(analyzedResume(1, flat(80), 80, time.Now()))
	pub := &recordingPublisher{}

	uc := usecase.NewRankingUsecase(resumes, jobs, pub, scoring.DefaultThresholds(), true, nil)
	uc.Invalidate(ctx, 1, "resume_analyzed")

	assert.Len(t, pub.ofType(domain.EventRankingInvalidated), 1)
	assert.Len(t, pub.ofType(domain.EventRankingRecomputed), 1)
	assert.Equal(t, 1, resumes.rankingWrites)
}

func TestInvalidateMarksStaleWithoutRerank(t *testing.T) {
	ctx := context.Background()
	jobs := newFakeJobRepo(testJob(1))
	resumes := newFakeResumeRepo(jobs)
	pub := &recordingPublisher{}

	uc := usecase.NewRankingUsecase(resumes, jobs, pub, scoring.DefaultThresholds(), false, nil)
	uc.Invalidate(ctx, 1, "verix_rescore")

	job, _ := jobs.GetByID(ctx, 1)
	assert.True(t, job.RankingStale)
	require.Len(t, pub.ofType(domain.EventRankingInvalidated), 1)
	assert.True(t, pub.ofType(domain.EventRankingInvalidated)[0].Ranking.Stale)
	assert.Zero(t, resumes.rankingWrites)
}
