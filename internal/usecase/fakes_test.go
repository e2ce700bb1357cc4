package usecase_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go-screening-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// Mock collaborators

type MockAnalyzer struct {
	mock.Mock
}

func (m *MockAnalyzer) ExtractProfile(ctx context.Context, resumeText string) (*domain.Profile, error) {
	args := m.Called(ctx, resumeText)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Profile), args.Error(1)
}

func (m *MockAnalyzer) Analyze(ctx context.Context, in domain.AnalyzeInput) (*domain.AnalyzerResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AnalyzerResult), args.Error(1)
}

func (m *MockAnalyzer) EvaluateResponse(ctx context.Context, job *domain.Job, q domain.VerixQuestion, answer string) (*domain.ResponseEvaluation, error) {
	args := m.Called(ctx, job, q, answer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ResponseEvaluation), args.Error(1)
}

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendVerixInvitation(ctx context.Context, inv domain.VerixInvitation) error {
	return m.Called(ctx, inv).Error(0)
}

// recordingPublisher keeps every published event in order.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev domain.Event, channels ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range channels {
		ev.Channel = ch
		p.events = append(p.events, ev)
	}
}

func (p *recordingPublisher) ofType(t domain.EventType) []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Event
	for _, ev := range p.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// recordingQueue captures enqueued tasks.
type recordingQueue struct {
	mu    sync.Mutex
	tasks []domain.ProcessingTask
	err   error
}

func (q *recordingQueue) Enqueue(_ context.Context, task domain.ProcessingTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *recordingQueue) Consume(context.Context) (<-chan domain.ProcessingTask, error) {
	return nil, fmt.Errorf("not consumable")
}

func (q *recordingQueue) Close() error { return nil }

func (q *recordingQueue) all() []domain.ProcessingTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.ProcessingTask(nil), q.tasks...)
}

// In-memory repositories

type fakeJobRepo struct {
	mu     sync.Mutex
	jobs   map[int64]*domain.Job
	labels map[int64][]domain.GroupLabel
}

func newFakeJobRepo(jobs ...*domain.Job) *fakeJobRepo {
	r := &fakeJobRepo{jobs: map[int64]*domain.Job{}, labels: map[int64][]domain.GroupLabel{}}
	for _, j := range jobs {
		r.jobs[j.ID] = j
	}
	return r
}

func (r *fakeJobRepo) GetByID(_ context.Context, id int64) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	cp.CustomQuestions = append([]domain.PreferenceQuestion(nil), j.CustomQuestions...)
	return &cp, nil
}

func (r *fakeJobRepo) UpdateWeights(_ context.Context, jobID int64, w domain.ScoringWeights) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	j.Weights = w
	j.RankingStale = true
	return nil
}

func (r *fakeJobRepo) UpdatePreferences(_ context.Context, jobID int64, prefs domain.JobPreferences) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return false, domain.ErrNotFound
	}
	changed := j.Weights != prefs.Weights
	j.Weights = prefs.Weights
	j.CustomQuestions = prefs.CustomQuestions
	if changed {
		j.RankingStale = true
	}
	return changed, nil
}

func (r *fakeJobRepo) MarkRankingStale(_ context.Context, jobID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[jobID]; ok {
		j.RankingStale = true
	}
	return nil
}

func (r *fakeJobRepo) EnsureGroupLabel(_ context.Context, jobID int64, label string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.labels[jobID] {
		if l.Label == label {
			return false, nil
		}
	}
	r.labels[jobID] = append(r.labels[jobID], domain.GroupLabel{JobID: jobID, Label: label, CreatedAt: time.Now()})
	return true, nil
}

func (r *fakeJobRepo) ListGroupLabels(_ context.Context, jobID int64) ([]domain.GroupLabel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.GroupLabel(nil), r.labels[jobID]...), nil
}

type fakeResumeRepo struct {
	mu      sync.Mutex
	resumes map[uuid.UUID]*domain.Resume
	jobs    *fakeJobRepo

	rankingWrites int
}

func newFakeResumeRepo(jobs *fakeJobRepo) *fakeResumeRepo {
	return &fakeResumeRepo{resumes: map[uuid.UUID]*domain.Resume{}, jobs: jobs}
}

func cloneResume(r *domain.Resume) *domain.Resume {
	cp := *r
	if r.Scores != nil {
		s := *r.Scores
		cp.Scores = &s
	}
	if r.RankPosition != nil {
		v := *r.RankPosition
		cp.RankPosition = &v
	}
	if r.Percentile != nil {
		v := *r.Percentile
		cp.Percentile = &v
	}
	return &cp
}

func (f *fakeResumeRepo) put(r *domain.Resume) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumes[r.ID] = cloneResume(r)
}

func (f *fakeResumeRepo) Create(_ context.Context, r *domain.Resume) error {
	f.put(r)
	return nil
}

func (f *fakeResumeRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Resume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.resumes[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneResume(r), nil
}

func (f *fakeResumeRepo) ListByJob(_ context.Context, jobID int64, filter domain.CandidateFilter) ([]domain.Resume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Resume
	for _, r := range f.resumes {
		if r.JobID != jobID {
			continue
		}
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		if filter.Shortlisted != nil && r.Shortlisted != *filter.Shortlisted {
			continue
		}
		if filter.Group != nil && (r.GroupLabel == nil || *r.GroupLabel != *filter.Group) {
			continue
		}
		out = append(out, *cloneResume(r))
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].RankPosition, out[j].RankPosition
		if a != nil && b != nil {
			return *a < *b
		}
		if (a != nil) != (b != nil) {
			return a != nil
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (f *fakeResumeRepo) CountByStatus(_ context.Context, jobID int64) (map[domain.ResumeStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := map[domain.ResumeStatus]int{}
	for _, r := range f.resumes {
		if r.JobID == jobID {
			counts[r.Status]++
		}
	}
	return counts, nil
}

func (f *fakeResumeRepo) ApplyTransition(_ context.Context, t domain.Transition) (*domain.Resume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.resumes[t.ResumeID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if r.Status != t.From || r.Generation != t.Generation {
		return nil, domain.ErrStaleGeneration
	}
	if !t.From.CanTransitionTo(t.To, t.Cause) {
		return nil, domain.ErrInvalidTransition
	}
	r.Status = t.To
	r.ErrorReason = t.ErrorReason
	r.StatusChangedAt = time.Now()
	if t.BumpGeneration {
		r.Generation++
	}
	if t.Text != nil {
		r.Text = *t.Text
	}
	if t.Profile != nil {
		r.Profile = t.Profile
	}
	if t.VerixChecked {
		r.VerixChecked = true
	}
	if t.Scores != nil {
		s := *t.Scores
		r.Scores = &s
		_ = f.jobs.MarkRankingStale(context.Background(), r.JobID)
	}
	return cloneResume(r), nil
}

func (f *fakeResumeRepo) SetShortlisted(_ context.Context, id uuid.UUID, value bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.resumes[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.Shortlisted = value
	return nil
}

func (f *fakeResumeRepo) SetGroupLabel(_ context.Context, id uuid.UUID, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.resumes[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.GroupLabel = &label
	return nil
}

func (f *fakeResumeRepo) LinkVerix(_ context.Context, id uuid.UUID, conversationID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.resumes[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.VerixConversationID = &conversationID
	return nil
}

func (f *fakeResumeRepo) ApplyRanking(ctx context.Context, jobID int64, plan domain.RankingPlanner) (*domain.RankingResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, err := f.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	var snapshot []domain.RankCandidate
	for _, r := range f.resumes {
		if r.JobID == jobID && r.Status == domain.StatusAnalyzed && r.Scores != nil {
			snapshot = append(snapshot, domain.RankCandidate{
				ResumeID: r.ID, Dimensions: r.Scores.Dimensions, Overall: r.Scores.Overall, AnalyzedAt: r.Scores.AnalyzedAt,
			})
		}
	}
	entries, err := plan(job, snapshot)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		r := f.resumes[e.ResumeID]
		rank, pct := e.Rank, e.Percentile
		r.RankPosition, r.Percentile = &rank, &pct
		r.Scores.Overall, r.Scores.Recommendation = e.Overall, e.Recommendation
	}
	f.rankingWrites++

	f.jobs.mu.Lock()
	j := f.jobs.jobs[jobID]
	j.RankingStale = false
	j.RankingVersion++
	version := j.RankingVersion
	f.jobs.mu.Unlock()

	return &domain.RankingResult{JobID: jobID, Version: version, Total: len(entries), ComputedAt: time.Now(), Entries: entries}, nil
}

func (f *fakeResumeRepo) FindStuck(_ context.Context, statuses []domain.ResumeStatus, changedBefore time.Time, limit int) ([]domain.Resume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Resume
	for _, r := range f.resumes {
		for _, s := range statuses {
			if r.Status == s && r.StatusChangedAt.Before(changedBefore) {
				out = append(out, *cloneResume(r))
			}
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

type fakeAnalysisRepo struct {
	mu       sync.Mutex
	analyses map[uuid.UUID]domain.Analysis
}

func newFakeAnalysisRepo() *fakeAnalysisRepo {
	return &fakeAnalysisRepo{analyses: map[uuid.UUID]domain.Analysis{}}
}

func (f *fakeAnalysisRepo) Create(_ context.Context, a *domain.Analysis) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyses[a.ID] = *a
	return nil
}

func (f *fakeAnalysisRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Analysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.analyses[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &a, nil
}

func (f *fakeAnalysisRepo) ListByResume(_ context.Context, resumeID uuid.UUID) ([]domain.Analysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Analysis
	for _, a := range f.analyses {
		if a.ResumeID != nil && *a.ResumeID == resumeID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeAnalysisRepo) countKind(kind domain.AnalysisKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.analyses {
		if a.Kind == kind {
			n++
		}
	}
	return n
}

// fakeVerixRepo stores deep copies and enforces the optimistic version.
type fakeVerixRepo struct {
	mu    sync.Mutex
	convs map[uuid.UUID]domain.VerixConversation
}

func newFakeVerixRepo() *fakeVerixRepo {
	return &fakeVerixRepo{convs: map[uuid.UUID]domain.VerixConversation{}}
}

func cloneConversation(c domain.VerixConversation) domain.VerixConversation {
	c.Questions = append([]domain.VerixQuestion(nil), c.Questions...)
	c.Responses = append([]domain.VerixResponse(nil), c.Responses...)
	c.Events = append([]domain.VerixEvent(nil), c.Events...)
	c.TriggerReasons = append([]string(nil), c.TriggerReasons...)
	return c
}

func (f *fakeVerixRepo) Create(_ context.Context, c *domain.VerixConversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.Version = 1
	f.convs[c.ID] = cloneConversation(*c)
	return nil
}

func (f *fakeVerixRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.VerixConversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.convs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := cloneConversation(c)
	return &cp, nil
}

func (f *fakeVerixRepo) GetByResumeID(_ context.Context, resumeID uuid.UUID) (*domain.VerixConversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.convs {
		if c.ResumeID == resumeID {
			cp := cloneConversation(c)
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeVerixRepo) Save(_ context.Context, c *domain.VerixConversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.convs[c.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != c.Version {
		return domain.ErrConcurrentUpdate
	}
	c.Version++
	f.convs[c.ID] = cloneConversation(*c)
	return nil
}

// Fixtures

func testJob(id int64) *domain.Job {
	return &domain.Job{
		ID:             id,
		Title:          "Backend Engineer",
		Description:    "Go services",
		RequiredSkills: []string{"go", "postgres"},
		Weights:        domain.DefaultScoringWeights(),
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
}

func analyzedResume(jobID int64, dims domain.DimensionScores, overall int, analyzedAt time.Time) *domain.Resume {
	return &domain.Resume{
		ID:         uuid.New(),
		JobID:      jobID,
		FileKey:    "resumes/x.pdf",
		FileName:   "x.pdf",
		Status:     domain.StatusAnalyzed,
		Generation: 1,
		Profile:    &domain.Profile{Name: "Ada", Email: "ada@example.com"},
		Scores: &domain.ResumeScores{
			AnalysisID:     uuid.New(),
			Overall:        overall,
			Dimensions:     dims,
			Recommendation: domain.RecommendYes,
			AnalyzedAt:     analyzedAt,
		},
		VerixChecked:    true,
		StatusChangedAt: analyzedAt,
		CreatedAt:       analyzedAt,
		UpdatedAt:       analyzedAt,
	}
}
