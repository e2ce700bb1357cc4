package usecase_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"go-screening-backend/internal/domain"
	"go-screening-backend/internal/pipeline"
	"go-screening-backend/internal/scoring"
	"go-screening-backend/internal/usecase"
	"go-screening-backend/pkg/token"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const verixBase = "https://screening.test"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type verixFixture struct {
	jobs     *fakeJobRepo
	resumes  *fakeResumeRepo
	analyses *fakeAnalysisRepo
	convs    *fakeVerixRepo
	analyzer *MockAnalyzer
	pub      *recordingPublisher
	clock    *fakeClock
	uc       domain.VerixUsecase
}

func newVerixFixture(t *testing.T, mailer domain.Mailer, jobs ...*domain.Job) *verixFixture {
	t.Helper()
	if len(jobs) == 0 {
		jobs = []*domain.Job{testJob(1)}
	}
	f := &verixFixture{
		jobs:     newFakeJobRepo(jobs...),
		analyses: newFakeAnalysisRepo(),
		convs:    newFakeVerixRepo(),
		analyzer: new(MockAnalyzer),
		pub:      &recordingPublisher{},
		clock:    &fakeClock{now: time.Now()},
	}
	f.resumes = newFakeResumeRepo(f.jobs)
	ranking := usecase.NewRankingUsecase(f.resumes, f.jobs, f.pub, scoring.DefaultThresholds(), false, nil)
	f.uc = usecase.NewVerixUsecase(usecase.VerixDeps{
		Conversations:   f.convs,
		Resumes:         f.resumes,
		Jobs:            f.jobs,
		Analyses:        f.analyses,
		Analyzer:        f.analyzer,
		Mailer:          mailer,
		Tokens:          token.NewManager("verix-test-secret", "apply-test-secret"),
		Leases:          pipeline.NewLeaseArena(),
		Ranking:         ranking,
		Publisher:       f.pub,
		TrustFloor:      60,
		TokenTTL:        72 * time.Hour,
		BlendWeight:     0.5,
		MinQuality:      40,
		SystemQuestions: []string{"Describe a system you built end to end.", "Walk through a production incident you handled."},
		PublicBaseURL:   verixBase,
		LeaseWait:       time.Second,
		Clock:           f.clock.Now,
	})
	return f
}

// lowTrust seeds an analyzed resume whose trust score is under the floor.
func (f *verixFixture) lowTrust(t *testing.T) (*domain.Resume, *domain.Job) {
	t.Helper()
	r := analyzedResume(1, domain.DimensionScores{Skills: 70, Experience: 60, Trust: 40, Education: 50, Projects: 50}, 58, time.Now())
	f.resumes.put(r)
	job, err := f.jobs.GetByID(context.Background(), 1)
	require.NoError(t, err)
	return r, job
}

func (f *verixFixture) link(t *testing.T, id uuid.UUID) string {
	t.Helper()
	d, err := f.uc.Get(context.Background(), 1, id)
	require.NoError(t, err)
	require.NotEmpty(t, d.CandidateLink)
	return strings.TrimPrefix(d.CandidateLink, verixBase+"/verix/")
}

func (f *verixFixture) status(id uuid.UUID) domain.VerixStatus {
	c, err := f.convs.GetByID(context.Background(), id)
	if err != nil {
		return ""
	}
	return c.Status
}

func TestVerixTrigger(t *testing.T) {
	ctx := context.Background()

	t.Run("Should not trigger when trust is at the floor", func(t *testing.T) {
		f := newVerixFixture(t, nil)
		r := analyzedResume(1, domain.DimensionScores{Skills: 70, Experience: 60, Trust: 60, Education: 50, Projects: 50}, 63, time.Now())
		f.resumes.put(r)
		job, _ := f.jobs.GetByID(ctx, 1)

		c, err := f.uc.EvaluateTrigger(ctx, r, job)
		require.NoError(t, err)
		assert.Nil(t, c)
		assert.Empty(t, f.convs.convs)
	})

	t.Run("Should trigger on low trust and wait for answers without a mailer", func(t *testing.T) {
		f := newVerixFixture(t, nil)
		r, job := f.lowTrust(t)

		c, err := f.uc.EvaluateTrigger(ctx, r, job)
		require.NoError(t, err)
		require.NotNil(t, c)
		assert.Equal(t, domain.VerixAwaitingResponse, c.Status)
		assert.Equal(t, []string{"trust_below_floor"}, c.TriggerReasons)
		assert.Len(t, c.Questions, 2)
		assert.Equal(t, 40, *c.PreTrust)

		require.True(t, c.HasEvent(domain.VerixEventEmailSent), "awaiting_response is reached through a recorded hand-off")
		last := c.Events[len(c.Events)-1]
		assert.Equal(t, domain.VerixEventEmailSent, last.Type)
		assert.Equal(t, "link handed to recruiter", last.Detail)

		stored, _ := f.resumes.GetByID(ctx, r.ID)
		require.NotNil(t, stored.VerixConversationID)
		assert.Equal(t, c.ID, *stored.VerixConversationID)

		again, err := f.uc.EvaluateTrigger(ctx, r, job)
		require.NoError(t, err)
		assert.Equal(t, c.ID, again.ID, "one conversation per resume")
		assert.Len(t, f.convs.convs, 1)
	})

	t.Run("Should trigger on an unmet required criterion", func(t *testing.T) {
		job := testJob(1)
		q := domain.PreferenceQuestion{ID: uuid.New(), Text: "Have you run Postgres in production?", Required: true}
		job.CustomQuestions = []domain.PreferenceQuestion{q}
		f := newVerixFixture(t, nil, job)

		r := analyzedResume(1, flat(80), 80, time.Now())
		r.Scores.UnmetCriteria = []string{q.ID.String()}
		f.resumes.put(r)

		c, err := f.uc.EvaluateTrigger(ctx, r, job)
		require.NoError(t, err)
		require.NotNil(t, c)
		assert.Equal(t, []string{"unmet_required_criterion:" + q.ID.String()}, c.TriggerReasons)
		require.Len(t, c.Questions, 3)
		assert.Equal(t, domain.QuestionCustom, c.Questions[2].Source)
		assert.Equal(t, q.ID, *c.Questions[2].CustomQuestionID)
	})
}

func TestVerixAnswerAndRescore(t *testing.T) {
	ctx := context.Background()
	f := newVerixFixture(t, nil)
	r, job := f.lowTrust(t)

	f.analyzer.On("EvaluateResponse", mock.Anything, mock.Anything, mock.Anything, mock.AnythingOfType("string")).
		Return(&domain.ResponseEvaluation{Depth: 80, Specificity: 80, Relevance: 80, Technical: 80, Authorship: domain.AuthorHuman}, nil)

	c, err := f.uc.EvaluateTrigger(ctx, r, job)
	require.NoError(t, err)
	tok := f.link(t, c.ID)

	view, err := f.uc.OpenByToken(ctx, tok)
	require.NoError(t, err)
	require.Len(t, view.Questions, 2)
	q1, q2 := view.Questions[0].ID, view.Questions[1].ID

	view, err = f.uc.SubmitAnswers(ctx, tok, []domain.VerixAnswer{{QuestionID: q1, Answer: "I built the billing ledger on Postgres."}})
	require.NoError(t, err)
	assert.Equal(t, domain.VerixAwaitingResponse, view.Status)
	assert.True(t, view.Questions[0].Answered)
	assert.False(t, view.Questions[1].Answered)

	view, err = f.uc.SubmitAnswers(ctx, tok, []domain.VerixAnswer{
		{QuestionID: q1, Answer: "a different first answer"},
		{QuestionID: q2, Answer: "A replica fell behind and I failed over by hand."},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.VerixResponded, view.Status)
	assert.Equal(t, []uuid.UUID{q1}, view.Skipped)

	assert.Eventually(t, func() bool {
		return f.status(c.ID) == domain.VerixCompleted
	}, 2*time.Second, 10*time.Millisecond)

	done, _ := f.convs.GetByID(ctx, c.ID)
	require.NotNil(t, done.PostTrust)
	assert.Equal(t, 60, *done.PostTrust)
	assert.Equal(t, 75, *done.PostSkills)
	resp, _ := done.Response(q1)
	assert.Equal(t, "I built the billing ledger on Postgres.", resp.Answer)
	assert.True(t, resp.Evaluated)

	assert.Equal(t, 1, f.analyses.countKind(domain.AnalysisRescore))
	rescored, _ := f.resumes.GetByID(ctx, r.ID)
	assert.Equal(t, domain.StatusAnalyzed, rescored.Status)
	assert.Equal(t, 60, rescored.Scores.Dimensions.Trust)
	assert.Equal(t, *done.PostOverall, rescored.Scores.Overall)
	f.analyzer.AssertNumberOfCalls(t, "EvaluateResponse", 2)

	t.Run("Should refuse answers after submission", func(t *testing.T) {
		_, err := f.uc.SubmitAnswers(ctx, tok, []domain.VerixAnswer{{QuestionID: q2, Answer: "late"}})
		assert.Equal(t, http.StatusConflict, appCode(t, err))
	})

	t.Run("Should reject unknown questions", func(t *testing.T) {
		g := newVerixFixture(t, nil)
		r, job := g.lowTrust(t)
		c, err := g.uc.EvaluateTrigger(ctx, r, job)
		require.NoError(t, err)
		_, err = g.uc.SubmitAnswers(ctx, g.link(t, c.ID), []domain.VerixAnswer{{QuestionID: uuid.New(), Answer: "x"}})
		assert.Equal(t, http.StatusBadRequest, appCode(t, err))
	})
}

func TestVerixExpiryAndRetry(t *testing.T) {
	ctx := context.Background()
	f := newVerixFixture(t, nil)
	r, job := f.lowTrust(t)

	c, err := f.uc.EvaluateTrigger(ctx, r, job)
	require.NoError(t, err)
	oldTok := f.link(t, c.ID)

	f.clock.Advance(73 * time.Hour)

	_, err = f.uc.OpenByToken(ctx, oldTok)
	assert.Equal(t, http.StatusGone, appCode(t, err))
	assert.Equal(t, domain.VerixExpired, f.status(c.ID))
	assert.NotEmpty(t, f.pub.ofType(domain.EventVerixChanged))

	d, err := f.uc.Retry(ctx, 1, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VerixAwaitingResponse, d.Status)
	assert.Equal(t, 2, d.TokenVersion)
	require.NotEmpty(t, d.CandidateLink)
	newTok := strings.TrimPrefix(d.CandidateLink, verixBase+"/verix/")

	_, err = f.uc.OpenByToken(ctx, oldTok)
	assert.Equal(t, http.StatusUnauthorized, appCode(t, err))

	view, err := f.uc.OpenByToken(ctx, newTok)
	require.NoError(t, err)
	assert.Equal(t, domain.VerixAwaitingResponse, view.Status)

	t.Run("Should refuse to retry an open conversation", func(t *testing.T) {
		_, err := f.uc.Retry(ctx, 1, c.ID)
		assert.Equal(t, http.StatusConflict, appCode(t, err))
	})

	t.Run("Should hide conversations of other jobs", func(t *testing.T) {
		_, err := f.uc.Get(ctx, 2, c.ID)
		assert.Equal(t, http.StatusNotFound, appCode(t, err))
	})

	t.Run("Should reject a garbage token", func(t *testing.T) {
		_, err := f.uc.OpenByToken(ctx, "not-a-token")
		assert.Equal(t, http.StatusUnauthorized, appCode(t, err))
	})
}

func TestVerixDelivery(t *testing.T) {
	ctx := context.Background()

	t.Run("Should fail the conversation when the mailer fails", func(t *testing.T) {
		mailer := new(MockMailer)
		mailer.On("SendVerixInvitation", mock.Anything, mock.MatchedBy(func(inv domain.VerixInvitation) bool {
			return inv.CandidateEmail == "ada@example.com" && strings.HasPrefix(inv.Link, verixBase+"/verix/")
		})).Return(errors.New("smtp: connection refused"))

		f := newVerixFixture(t, mailer)
		r, job := f.lowTrust(t)
		c, err := f.uc.EvaluateTrigger(ctx, r, job)
		require.NoError(t, err)
		assert.Equal(t, domain.VerixQuestionsSent, c.Status)

		assert.Eventually(t, func() bool {
			return f.status(c.ID) == domain.VerixFailed
		}, 2*time.Second, 10*time.Millisecond)

		failed, _ := f.convs.GetByID(ctx, c.ID)
		require.NotNil(t, failed.FailureReason)
		assert.Contains(t, *failed.FailureReason, "connection refused")
		assert.True(t, failed.HasEvent(domain.VerixEventDeliveryFailed))
	})

	t.Run("Should wait for answers once the invitation is delivered", func(t *testing.T) {
		mailer := new(MockMailer)
		mailer.On("SendVerixInvitation", mock.Anything, mock.Anything).Return(nil)

		f := newVerixFixture(t, mailer)
		r, job := f.lowTrust(t)
		c, err := f.uc.EvaluateTrigger(ctx, r, job)
		require.NoError(t, err)

		assert.Eventually(t, func() bool {
			return f.status(c.ID) == domain.VerixAwaitingResponse
		}, 2*time.Second, 10*time.Millisecond)
		sent, _ := f.convs.GetByID(ctx, c.ID)
		assert.True(t, sent.HasEvent(domain.VerixEventEmailSent))
	})

	t.Run("Should ignore reports for an older link", func(t *testing.T) {
		f := newVerixFixture(t, nil)
		r, job := f.lowTrust(t)
		c, err := f.uc.EvaluateTrigger(ctx, r, job)
		require.NoError(t, err)

		f.uc.ReportDelivery(ctx, c.ID, c.TokenVersion+1, errors.New("bounce"))
		assert.Equal(t, domain.VerixAwaitingResponse, f.status(c.ID))
	})
}
