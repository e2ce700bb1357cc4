package usecase_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"go-screening-backend/internal/domain"
	"go-screening-backend/internal/pipeline"
	"go-screening-backend/internal/scoring"
	"go-screening-backend/internal/usecase"
	"go-screening-backend/pkg/apperror"
	"go-screening-backend/pkg/parser"
	"go-screening-backend/pkg/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const resumeText = "Ada Lovelace\nada@example.com\nSenior Go engineer, eight years building payment services on Postgres."

type pipelineFixture struct {
	jobs      *fakeJobRepo
	resumes   *fakeResumeRepo
	analyses  *fakeAnalysisRepo
	store     *storage.MemoryStorage
	queue     *recordingQueue
	leases    *pipeline.LeaseArena
	pub       *recordingPublisher
	analyzer  *MockAnalyzer
	uc        domain.ResumeUsecase
	processor *usecase.Processor
}

func newPipelineFixture(t *testing.T, autoAnalyze bool) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		jobs:     newFakeJobRepo(testJob(1), testJob(2)),
		analyses: newFakeAnalysisRepo(),
		store:    storage.NewMemoryStorage("http://files.test"),
		queue:    &recordingQueue{},
		leases:   pipeline.NewLeaseArena(),
		pub:      &recordingPublisher{},
		analyzer: new(MockAnalyzer),
	}
	f.resumes = newFakeResumeRepo(f.jobs)
	f.uc = usecase.NewResumeUsecase(usecase.ResumeDeps{
		Resumes:     f.resumes,
		Jobs:        f.jobs,
		Storage:     f.store,
		Queue:       f.queue,
		Leases:      f.leases,
		Publisher:   f.pub,
		AutoAnalyze: autoAnalyze,
	})
	ranking := usecase.NewRankingUsecase(f.resumes, f.jobs, f.pub, scoring.DefaultThresholds(), false, nil)
	f.processor = usecase.NewProcessor(usecase.ProcessorDeps{
		Resumes:     f.resumes,
		Jobs:        f.jobs,
		Analyses:    f.analyses,
		Storage:     f.store,
		Extractor:   parser.NewExtractor(0),
		Analyzer:    f.analyzer,
		Ranking:     ranking,
		Publisher:   f.pub,
		Thresholds:  scoring.DefaultThresholds(),
		AutoAnalyze: autoAnalyze,
	})
	return f
}

func appCode(t *testing.T, err error) int {
	t.Helper()
	var ae *apperror.AppError
	require.True(t, errors.As(err, &ae), "expected AppError, got %v", err)
	return ae.Code
}

func TestUploadParseAnalyze(t *testing.T) {
	f := newPipelineFixture(t, true)
	ctx := context.Background()

	f.analyzer.On("ExtractProfile", mock.Anything, mock.AnythingOfType("string")).
		Return(&domain.Profile{Name: "Ada Lovelace", Email: "ada@example.com", Skills: []string{"go"}}, nil)
	f.analyzer.On("Analyze", mock.Anything, mock.MatchedBy(func(in domain.AnalyzeInput) bool {
		return in.Job != nil && in.Job.ID == 1 && in.Profile != nil
	})).Return(&domain.AnalyzerResult{
		Dimensions: domain.DimensionScores{Skills: 80, Experience: 60, Trust: 90, Education: 50, Projects: 40},
		Summary:    "solid",
	}, nil)

	r, err := f.uc.Upload(ctx, 1, domain.UploadInput{FileName: "ada.txt", Data: []byte(resumeText)})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUploaded, r.Status)
	assert.Equal(t, int64(1), r.Generation)

	tasks := f.queue.all()
	require.Len(t, tasks, 1)
	assert.Equal(t, domain.StepParse, tasks[0].Step)

	require.NoError(t, f.processor.Handle(ctx, tasks[0]))
	assert.Len(t, f.queue.all(), 1, "auto analyze runs inline, nothing is enqueued")

	done, _ := f.resumes.GetByID(ctx, r.ID)
	assert.Equal(t, "Ada Lovelace", done.Profile.Name)
	require.Equal(t, domain.StatusAnalyzed, done.Status)
	assert.Equal(t, 72, done.Scores.Overall)
	assert.Equal(t, domain.RecommendYes, done.Scores.Recommendation)
	assert.True(t, done.VerixChecked)

	job, _ := f.jobs.GetByID(ctx, 1)
	assert.True(t, job.RankingStale)

	var path []domain.ResumeStatus
	for _, ev := range f.pub.ofType(domain.EventResumeStatusChanged) {
		if ev.Channel == domain.ResumeChannel(r.ID) {
			path = append(path, ev.Status.To)
		}
	}
	assert.Equal(t, []domain.ResumeStatus{
		domain.StatusUploaded, domain.StatusParsing, domain.StatusParsed, domain.StatusAnalyzing, domain.StatusAnalyzed,
	}, path)
	assert.Equal(t, 1, f.analyses.countKind(domain.AnalysisFull))
}

func TestUploadRejectsBadFiles(t *testing.T) {
	f := newPipelineFixture(t, false)
	ctx := context.Background()

	t.Run("Should reject a disallowed extension", func(t *testing.T) {
		_, err := f.uc.Upload(ctx, 1, domain.UploadInput{FileName: "cv.exe", Data: []byte("MZ...")})
		assert.Equal(t, http.StatusBadRequest, appCode(t, err))
	})

	t.Run("Should reject a PDF without the PDF signature", func(t *testing.T) {
		_, err := f.uc.Upload(ctx, 1, domain.UploadInput{FileName: "cv.pdf", Data: []byte("plain text pretending")})
		assert.Equal(t, http.StatusBadRequest, appCode(t, err))
	})

	t.Run("Should report an unknown job", func(t *testing.T) {
		_, err := f.uc.Upload(ctx, 99, domain.UploadInput{FileName: "cv.txt", Data: []byte(resumeText)})
		assert.Equal(t, http.StatusNotFound, appCode(t, err))
	})

	assert.Empty(t, f.queue.all())
}

func TestProcessorFailureIsAbsorbed(t *testing.T) {
	f := newPipelineFixture(t, false)
	ctx := context.Background()

	r, err := f.uc.Upload(ctx, 1, domain.UploadInput{FileName: "ada.txt", Data: []byte(resumeText)})
	require.NoError(t, err)
	f.analyzer.On("ExtractProfile", mock.Anything, mock.Anything).Return(nil, errors.New("model timeout"))

	err = f.processor.Handle(ctx, f.queue.all()[0])
	assert.Error(t, err)

	got, _ := f.resumes.GetByID(ctx, r.ID)
	assert.Equal(t, domain.StatusFailed, got.Status)
	require.NotNil(t, got.ErrorReason)
	assert.Contains(t, *got.ErrorReason, "model timeout")
}

func TestStaleGenerationDiscarded(t *testing.T) {
	f := newPipelineFixture(t, false)
	ctx := context.Background()

	r := &domain.Resume{
		ID: uuid.New(), JobID: 1, FileKey: "k", FileName: "a.txt", Status: domain.StatusParsed,
		Generation: 1, Text: resumeText, Profile: &domain.Profile{Name: "Ada"}, StatusChangedAt: time.Now(),
	}
	f.resumes.put(r)

	// While the analyzer runs, the resume is failed and reprocessed under a new generation.
	f.analyzer.On("Analyze", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		f.resumes.mu.Lock()
		cur := f.resumes.resumes[r.ID]
		cur.Status = domain.StatusUploaded
		cur.Generation = 2
		f.resumes.mu.Unlock()
	}).Return(&domain.AnalyzerResult{Dimensions: domain.DimensionScores{Skills: 90, Experience: 90, Trust: 90, Education: 90, Projects: 90}}, nil)

	err := f.processor.Handle(ctx, domain.ProcessingTask{ResumeID: r.ID, JobID: 1, Step: domain.StepAnalyze, Generation: 1})
	require.NoError(t, err)

	got, _ := f.resumes.GetByID(ctx, r.ID)
	assert.Equal(t, domain.StatusUploaded, got.Status)
	assert.Equal(t, int64(2), got.Generation)
	assert.Nil(t, got.Scores)
	for _, ev := range f.pub.ofType(domain.EventResumeStatusChanged) {
		assert.NotEqual(t, domain.StatusAnalyzed, ev.Status.To)
	}

	t.Run("Should drop a task from an older generation untouched", func(t *testing.T) {
		calls := len(f.analyzer.Calls)
		err := f.processor.Handle(ctx, domain.ProcessingTask{ResumeID: r.ID, JobID: 1, Step: domain.StepParse, Generation: 1})
		require.NoError(t, err)
		assert.Len(t, f.analyzer.Calls, calls)
		got, _ := f.resumes.GetByID(ctx, r.ID)
		assert.Equal(t, domain.StatusUploaded, got.Status)
	})
}

func TestReprocess(t *testing.T) {
	f := newPipelineFixture(t, false)
	ctx := context.Background()

	reason := "analyzer timeout"
	r := &domain.Resume{
		ID: uuid.New(), JobID: 1, FileKey: "k", FileName: "a.txt", Status: domain.StatusFailed,
		Generation: 3, ErrorReason: &reason, StatusChangedAt: time.Now(),
	}
	f.resumes.put(r)

	// A worker from the old generation still holds the lease.
	lease, ok := f.leases.TryAcquire(ctx, r.ID, 3)
	require.True(t, ok)

	got, err := f.uc.Reprocess(ctx, 1, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUploaded, got.Status)
	assert.Equal(t, int64(4), got.Generation)
	assert.Nil(t, got.ErrorReason)
	assert.Error(t, lease.Context().Err(), "in-flight work is cancelled")

	tasks := f.queue.all()
	require.Len(t, tasks, 1)
	assert.Equal(t, domain.StepParse, tasks[0].Step)
	assert.Equal(t, int64(4), tasks[0].Generation)

	t.Run("Should refuse to reprocess a resume that is not failed", func(t *testing.T) {
		_, err := f.uc.Reprocess(ctx, 1, r.ID)
		assert.Equal(t, http.StatusConflict, appCode(t, err))
	})

	t.Run("Should hide resumes of other jobs", func(t *testing.T) {
		_, err := f.uc.Reprocess(ctx, 2, r.ID)
		assert.Equal(t, http.StatusNotFound, appCode(t, err))
	})
}

func TestAnalyzeRequiresParsed(t *testing.T) {
	f := newPipelineFixture(t, false)
	ctx := context.Background()

	parsing := &domain.Resume{ID: uuid.New(), JobID: 1, Status: domain.StatusParsing, Generation: 1}
	parsed := &domain.Resume{ID: uuid.New(), JobID: 1, Status: domain.StatusParsed, Generation: 1}
	parsedToo := &domain.Resume{ID: uuid.New(), JobID: 1, Status: domain.StatusParsed, Generation: 1}
	f.resumes.put(parsing)
	f.resumes.put(parsed)
	f.resumes.put(parsedToo)

	_, err := f.uc.Analyze(ctx, 1, parsing.ID)
	assert.Equal(t, http.StatusConflict, appCode(t, err))

	_, err = f.uc.Analyze(ctx, 1, parsed.ID)
	require.NoError(t, err)

	n, err := f.uc.AnalyzeAll(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, f.queue.all(), 3)
}

func TestGetCandidatesOmitsRanksOfUnanalyzed(t *testing.T) {
	f := newPipelineFixture(t, false)
	ctx := context.Background()

	now := time.Now()
	a := analyzedResume(1, domain.DimensionScores{Skills: 90, Experience: 90, Trust: 90, Education: 90, Projects: 90}, 90, now)
	one, pct := 1, 100
	a.RankPosition, a.Percentile = &one, &pct
	failed := &domain.Resume{ID: uuid.New(), JobID: 1, Status: domain.StatusFailed, Generation: 1, CreatedAt: now}
	two := 2
	failed.RankPosition = &two
	f.resumes.put(a)
	f.resumes.put(failed)

	list, err := f.uc.GetCandidates(ctx, 1, domain.CandidateFilter{})
	require.NoError(t, err)
	require.Len(t, list.Candidates, 2)
	assert.Equal(t, a.ID, list.Candidates[0].ID)
	assert.Equal(t, 1, *list.Candidates[0].RankPosition)
	assert.Nil(t, list.Candidates[1].RankPosition)
}

func TestFailStuck(t *testing.T) {
	f := newPipelineFixture(t, false)
	ctx := context.Background()

	stuck := &domain.Resume{ID: uuid.New(), JobID: 1, Status: domain.StatusAnalyzing, Generation: 1, StatusChangedAt: time.Now().Add(-time.Hour)}
	fresh := &domain.Resume{ID: uuid.New(), JobID: 1, Status: domain.StatusParsing, Generation: 1, StatusChangedAt: time.Now()}
	f.resumes.put(stuck)
	f.resumes.put(fresh)
	lease, _ := f.leases.TryAcquire(ctx, stuck.ID, 1)

	reaper := pipeline.NewReaper(f.uc, time.Minute, 10*time.Minute, nil)
	reaper.Sweep(ctx, time.Now())

	got, _ := f.resumes.GetByID(ctx, stuck.ID)
	assert.Equal(t, domain.StatusFailed, got.Status)
	require.NotNil(t, got.ErrorReason)
	assert.Contains(t, *got.ErrorReason, "timed out")
	assert.Error(t, lease.Context().Err())

	other, _ := f.resumes.GetByID(ctx, fresh.ID)
	assert.Equal(t, domain.StatusParsing, other.Status)
}
