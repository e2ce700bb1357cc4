package usecase_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"go-screening-backend/internal/domain"
	"go-screening-backend/internal/pipeline"
	"go-screening-backend/internal/scoring"
	"go-screening-backend/internal/usecase"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bulkFixture struct {
	jobs    *fakeJobRepo
	resumes *fakeResumeRepo
	leases  *pipeline.LeaseArena
	pub     *recordingPublisher
	uc      domain.BulkUsecase
}

func newBulkFixture(leaseWait time.Duration) *bulkFixture {
	f := &bulkFixture{
		jobs:   newFakeJobRepo(testJob(1), testJob(2)),
		leases: pipeline.NewLeaseArena(),
		pub:    &recordingPublisher{},
	}
	f.resumes = newFakeResumeRepo(f.jobs)
	ranking := usecase.NewRankingUsecase(f.resumes, f.jobs, f.pub, scoring.DefaultThresholds(), false, nil)
	f.uc = usecase.NewBulkUsecase(usecase.BulkDeps{
		Resumes:     f.resumes,
		Jobs:        f.jobs,
		Ranking:     ranking,
		Leases:      f.leases,
		Publisher:   f.pub,
		Concurrency: 3,
		LeaseWait:   leaseWait,
	})
	return f
}

func (f *bulkFixture) seed(jobID int64, n int) []string {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		r := analyzedResume(jobID, flat(60+i), 60+i, time.Now().Add(time.Duration(i)*time.Second))
		f.resumes.put(r)
		ids = append(ids, r.ID.String())
	}
	return ids
}

func TestBulkShortlist(t *testing.T) {
	ctx := context.Background()
	f := newBulkFixture(time.Second)

	own := f.seed(1, 4)
	foreign := f.seed(2, 1)
	ids := []string{own[0], own[1], foreign[0], own[2], own[3]}

	res, err := f.uc.BulkShortlist(ctx, 1, ids, true)
	require.NoError(t, err)
	require.Len(t, res.Items, 5)
	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 4, res.Succeeded)
	assert.Equal(t, 1, res.Failed)

	for i, item := range res.Items {
		assert.Equal(t, ids[i], item.ResumeID, "items keep request order")
		if i == 2 {
			assert.False(t, item.Success)
			assert.Equal(t, domain.OutcomeScopeMismatch, item.Outcome)
			continue
		}
		assert.True(t, item.Success)
		assert.Equal(t, domain.OutcomeOK, item.Outcome)
		assert.True(t, item.Changed)
	}

	other, _ := f.resumes.GetByID(ctx, uuid.MustParse(foreign[0]))
	assert.False(t, other.Shortlisted, "a foreign resume is never written")
	// Two channels per change: job and resume.
	assert.Len(t, f.pub.ofType(domain.EventResumeUpdated), 8)

	t.Run("Should report unchanged items on a repeat", func(t *testing.T) {
		again, err := f.uc.BulkShortlist(ctx, 1, own, true)
		require.NoError(t, err)
		assert.Equal(t, 4, again.Succeeded)
		for _, item := range again.Items {
			assert.False(t, item.Changed)
		}
		assert.Len(t, f.pub.ofType(domain.EventResumeUpdated), 8)
	})

	t.Run("Should classify malformed and unknown ids", func(t *testing.T) {
		missing := uuid.NewString()
		res, err := f.uc.BulkShortlist(ctx, 1, []string{"not-a-uuid", missing, own[0]}, false)
		require.NoError(t, err)
		require.Len(t, res.Items, 3)
		assert.Equal(t, domain.OutcomeInvalidID, res.Items[0].Outcome)
		assert.Equal(t, "not-a-uuid", res.Items[0].ResumeID)
		assert.Equal(t, domain.OutcomeNotFound, res.Items[1].Outcome)
		assert.Equal(t, domain.OutcomeOK, res.Items[2].Outcome)
		assert.Equal(t, 1, res.Succeeded)
	})

	t.Run("Should reject an empty batch", func(t *testing.T) {
		_, err := f.uc.BulkShortlist(ctx, 1, nil, true)
		assert.Equal(t, http.StatusBadRequest, appCode(t, err))
	})

	t.Run("Should reject an unknown job", func(t *testing.T) {
		_, err := f.uc.BulkShortlist(ctx, 9, own, true)
		assert.Equal(t, http.StatusNotFound, appCode(t, err))
	})
}

func TestToggleShortlist(t *testing.T) {
	ctx := context.Background()
	f := newBulkFixture(50 * time.Millisecond)
	ids := f.seed(1, 1)
	id := uuid.MustParse(ids[0])

	r, err := f.uc.ToggleShortlist(ctx, 1, id, true)
	require.NoError(t, err)
	assert.True(t, r.Shortlisted)

	r, err = f.uc.ToggleShortlist(ctx, 1, id, true)
	require.NoError(t, err)
	assert.True(t, r.Shortlisted)
	assert.Len(t, f.pub.ofType(domain.EventResumeUpdated), 2, "the repeat publishes nothing")

	t.Run("Should hide resumes of other jobs", func(t *testing.T) {
		_, err := f.uc.ToggleShortlist(ctx, 2, id, false)
		assert.Equal(t, http.StatusNotFound, appCode(t, err))
	})

	t.Run("Should give up when the lease stays busy", func(t *testing.T) {
		lease, ok := f.leases.TryAcquire(ctx, id, 1)
		require.True(t, ok)
		defer lease.Release()

		_, err := f.uc.ToggleShortlist(ctx, 1, id, false)
		assert.Equal(t, http.StatusConflict, appCode(t, err))

		got, _ := f.resumes.GetByID(ctx, id)
		assert.True(t, got.Shortlisted)
	})
}

func TestBulkLeaseTimeout(t *testing.T) {
	ctx := context.Background()
	f := newBulkFixture(50 * time.Millisecond)
	ids := f.seed(1, 2)

	lease, ok := f.leases.TryAcquire(ctx, uuid.MustParse(ids[1]), 1)
	require.True(t, ok)
	defer lease.Release()

	res, err := f.uc.BulkShortlist(ctx, 1, ids, true)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeOK, res.Items[0].Outcome)
	assert.Equal(t, domain.OutcomeLeaseTimeout, res.Items[1].Outcome)
	assert.False(t, res.Items[1].Success)
}

func TestAssignGroup(t *testing.T) {
	ctx := context.Background()
	f := newBulkFixture(time.Second)
	ids := f.seed(1, 3)

	res, err := f.uc.AssignGroup(ctx, 1, ids, "  Round 2  ")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Succeeded)

	labels, _ := f.jobs.ListGroupLabels(ctx, 1)
	require.Len(t, labels, 1)
	assert.Equal(t, "Round 2", labels[0].Label)

	got, _ := f.resumes.GetByID(ctx, uuid.MustParse(ids[0]))
	require.NotNil(t, got.GroupLabel)
	assert.Equal(t, "Round 2", *got.GroupLabel)

	t.Run("Should not duplicate the label or rewrite members", func(t *testing.T) {
		res, err := f.uc.AssignGroup(ctx, 1, ids[:1], "Round 2")
		require.NoError(t, err)
		assert.False(t, res.Items[0].Changed)
		labels, _ := f.jobs.ListGroupLabels(ctx, 1)
		assert.Len(t, labels, 1)
	})

	t.Run("Should accept a label at the length cap", func(t *testing.T) {
		res, err := f.uc.AssignGroup(ctx, 1, ids[:1], strings.Repeat("g", 64))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Succeeded)
	})

	for _, label := range []string{"", "   ", "<script>", strings.Repeat("g", 65)} {
		t.Run("Should reject label "+label, func(t *testing.T) {
			_, err := f.uc.AssignGroup(ctx, 1, ids, label)
			assert.Equal(t, http.StatusBadRequest, appCode(t, err))
		})
	}
}

func TestBulkRecompute(t *testing.T) {
	ctx := context.Background()
	f := newBulkFixture(time.Second)
	ids := f.seed(1, 2)

	parsed := &domain.Resume{ID: uuid.New(), JobID: 1, Status: domain.StatusParsed, Generation: 1}
	f.resumes.put(parsed)
	_ = f.jobs.MarkRankingStale(ctx, 1)

	res, err := f.uc.BulkRecompute(ctx, 1, append(ids, parsed.ID.String()))
	require.NoError(t, err)
	require.Len(t, res.Items, 3)
	assert.Equal(t, domain.OutcomeOK, res.Items[0].Outcome)
	assert.Equal(t, domain.OutcomeOK, res.Items[1].Outcome)
	assert.Equal(t, domain.OutcomeNotAnalyzed, res.Items[2].Outcome)
	require.NotNil(t, res.Ranking)
	assert.Equal(t, 2, res.Ranking.Total)
	assert.Equal(t, 1, f.resumes.rankingWrites)

	job, _ := f.jobs.GetByID(ctx, 1)
	assert.False(t, job.RankingStale)

	t.Run("Should skip the ranking write when nothing qualifies", func(t *testing.T) {
		res, err := f.uc.BulkRecompute(ctx, 1, []string{parsed.ID.String()})
		require.NoError(t, err)
		assert.Nil(t, res.Ranking)
		assert.Equal(t, 1, f.resumes.rankingWrites)
	})
}
