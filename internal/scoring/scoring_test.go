package scoring_test

import (
	"testing"
	"time"

	"go-screening-backend/internal/domain"
	"go-screening-backend/internal/scoring"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverall(t *testing.T) {
	weights := domain.ScoringWeights{Skills: 0.4, Experience: 0.25, Trust: 0.2, Education: 0.1, Projects: 0.05}

	t.Run("weighted sum of dimensions", func(t *testing.T) {
		dims := domain.DimensionScores{Skills: 80, Experience: 60, Trust: 90, Education: 50, Projects: 40}
		overall := scoring.Overall(dims, weights)
		assert.Equal(t, 72, overall)
		assert.Equal(t, domain.RecommendYes, scoring.DefaultThresholds().Recommend(overall))
	})

	t.Run("rounds to nearest integer", func(t *testing.T) {
		dims := domain.DimensionScores{Skills: 81, Experience: 61, Trust: 91, Education: 51, Projects: 41}
		// 32.4 + 15.25 + 18.2 + 5.1 + 2.05 = 73.0
		assert.Equal(t, 73, scoring.Overall(dims, weights))

		half := domain.ScoringWeights{Skills: 0.5, Experience: 0.5}
		assert.Equal(t, 51, scoring.Overall(domain.DimensionScores{Skills: 50, Experience: 51}, half))
	})

	t.Run("clamps out of range inputs", func(t *testing.T) {
		high := domain.DimensionScores{Skills: 300, Experience: 300, Trust: 300, Education: 300, Projects: 300}
		assert.Equal(t, 100, scoring.Overall(high, weights))

		low := domain.DimensionScores{Skills: -50, Experience: -50, Trust: -50, Education: -50, Projects: -50}
		assert.Equal(t, 0, scoring.Overall(low, weights))
	})
}

func TestThresholds(t *testing.T) {
	th := scoring.DefaultThresholds()
	require.NoError(t, th.Validate())

	cases := []struct {
		score int
		want  domain.Recommendation
	}{
		{100, domain.RecommendStrongYes},
		{85, domain.RecommendStrongYes},
		{84, domain.RecommendYes},
		{70, domain.RecommendYes},
		{69, domain.RecommendMaybe},
		{50, domain.RecommendMaybe},
		{49, domain.RecommendNo},
		{30, domain.RecommendNo},
		{29, domain.RecommendStrongNo},
		{0, domain.RecommendStrongNo},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, th.Recommend(tc.score), "score %d", tc.score)
	}

	assert.Error(t, scoring.Thresholds{StrongYes: 70, Yes: 70, Maybe: 50, No: 30}.Validate())
	assert.Error(t, scoring.Thresholds{StrongYes: 120, Yes: 70, Maybe: 50, No: 30}.Validate())
}

func TestRank(t *testing.T) {
	now := time.Now()

	t.Run("ties broken by recency", func(t *testing.T) {
		older, newer, low := uuid.New(), uuid.New(), uuid.New()
		in := []domain.RankCandidate{
			{ResumeID: older, Overall: 90, AnalyzedAt: now.Add(-time.Hour)},
			{ResumeID: low, Overall: 70, AnalyzedAt: now},
			{ResumeID: newer, Overall: 90, AnalyzedAt: now},
		}
		out := scoring.Rank(in)
		require.Len(t, out, 3)

		assert.Equal(t, newer, out[0].ResumeID)
		assert.Equal(t, older, out[1].ResumeID)
		assert.Equal(t, low, out[2].ResumeID)

		assert.Equal(t, []int{1, 2, 3}, []int{out[0].Rank, out[1].Rank, out[2].Rank})
		assert.Equal(t, []int{100, 67, 33}, []int{out[0].Percentile, out[1].Percentile, out[2].Percentile})

		// input untouched
		assert.Equal(t, older, in[0].ResumeID)
	})

	t.Run("contiguous and monotonic for any input", func(t *testing.T) {
		var in []domain.RankCandidate
		for i := 0; i < 25; i++ {
			in = append(in, domain.RankCandidate{
				ResumeID:   uuid.New(),
				Overall:    (i * 37) % 101,
				AnalyzedAt: now.Add(time.Duration(i%4) * time.Minute),
			})
		}
		out := scoring.Rank(in)
		require.Len(t, out, len(in))
		for i, e := range out {
			assert.Equal(t, i+1, e.Rank)
			if i > 0 {
				assert.LessOrEqual(t, e.Percentile, out[i-1].Percentile)
				assert.LessOrEqual(t, e.Overall, out[i-1].Overall)
			}
		}
		assert.Equal(t, 100, out[0].Percentile)
	})

	t.Run("idempotent", func(t *testing.T) {
		id1, id2 := uuid.New(), uuid.New()
		in := []domain.RankCandidate{
			{ResumeID: id1, Overall: 80, AnalyzedAt: now},
			{ResumeID: id2, Overall: 80, AnalyzedAt: now},
		}
		first := scoring.Rank(in)
		second := scoring.Rank([]domain.RankCandidate{in[1], in[0]})
		assert.Equal(t, first, second)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, scoring.Rank(nil))
	})
}

func TestBlend(t *testing.T) {
	assert.Equal(t, 65, scoring.Blend(50, []int{80, 80}, 0.5))
	assert.Equal(t, 40, scoring.Blend(50, []int{60, 0}, 0.5), "non-qualifying evidence counts as zero")
	assert.Equal(t, 50, scoring.Blend(50, nil, 0.5))
	assert.Equal(t, 90, scoring.Blend(50, []int{90}, 1))

	assert.Equal(t, 75, scoring.ResponseQuality(70, 80, 75, 75))
}
