package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-screening-backend/internal/domain"
	"go-screening-backend/internal/pipeline"
	"go-screening-backend/internal/scoring"
	"go-screening-backend/pkg/security"
	"go-screening-backend/pkg/security/antivirus"

	"go.uber.org/zap"
)

const maxErrorReason = 500

type ProcessorDeps struct {
	Resumes    domain.ResumeRepository
	Jobs       domain.JobRepository
	Analyses   domain.AnalysisRepository
	Storage    domain.FileStorage
	Extractor  domain.TextExtractor
	Analyzer   domain.Analyzer
	Ranking    domain.RankingUsecase
	Verix      domain.VerixUsecase
	Publisher  domain.Publisher
	Scanner    antivirus.Scanner
	Audit      *security.AuditLogger
	Thresholds scoring.Thresholds
	Log        *zap.Logger

	AutoAnalyze bool
}

// Processor runs the parse and analyze steps of the pipeline. Every status
// change is a compare-and-swap on (status, generation), so work on a
// superseded generation is discarded when it tries to write.
type Processor struct {
	resumes    domain.ResumeRepository
	jobs       domain.JobRepository
	analyses   domain.AnalysisRepository
	storage    domain.FileStorage
	extractor  domain.TextExtractor
	analyzer   domain.Analyzer
	ranking    domain.RankingUsecase
	verix      domain.VerixUsecase
	publisher  domain.Publisher
	guard      fileGuard
	thresholds scoring.Thresholds
	log        *zap.Logger

	autoAnalyze bool
}

var _ pipeline.Handler = (*Processor)(nil)

func NewProcessor(d ProcessorDeps) *Processor {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Thresholds == (scoring.Thresholds{}) {
		d.Thresholds = scoring.DefaultThresholds()
	}
	return &Processor{
		resumes:     d.Resumes,
		jobs:        d.Jobs,
		analyses:    d.Analyses,
		storage:     d.Storage,
		extractor:   d.Extractor,
		analyzer:    d.Analyzer,
		ranking:     d.Ranking,
		verix:       d.Verix,
		publisher:   publisherOrNop(d.Publisher),
		guard:       fileGuard{scanner: d.Scanner, audit: d.Audit},
		thresholds:  d.Thresholds,
		log:         d.Log.Named("processor"),
		autoAnalyze: d.AutoAnalyze,
	}
}

func (p *Processor) Handle(ctx context.Context, task domain.ProcessingTask) error {
	r, err := p.resumes.GetByID(ctx, task.ResumeID)
	if errors.Is(err, domain.ErrNotFound) {
		p.log.Warn("task for unknown resume", zap.String("resume_id", task.ResumeID.String()))
		return nil
	}
	if err != nil {
		return err
	}
	if r.Generation != task.Generation {
		p.log.Debug("dropping superseded task",
			zap.String("resume_id", r.ID.String()),
			zap.Int64("generation", task.Generation),
			zap.Int64("current", r.Generation),
		)
		return nil
	}

	switch task.Step {
	case domain.StepParse:
		return p.parse(ctx, r)
	case domain.StepAnalyze:
		return p.analyze(ctx, r)
	}
	return fmt.Errorf("unknown step %q", task.Step)
}

func (p *Processor) parse(ctx context.Context, r *domain.Resume) error {
	if r.Status != domain.StatusUploaded {
		return nil
	}
	cur, err := p.transition(ctx, r, domain.Transition{To: domain.StatusParsing})
	if err != nil {
		return discardStale(err)
	}

	data, err := p.storage.Get(ctx, cur.FileKey)
	if err != nil {
		return p.fail(ctx, cur, fmt.Errorf("read file: %w", err))
	}
	if err := p.guard.inspect(ctx, cur.FileName, data); err != nil {
		return p.fail(ctx, cur, err)
	}
	text, err := p.extractor.Extract(ctx, cur.FileName, data)
	if err != nil {
		return p.fail(ctx, cur, fmt.Errorf("extract text: %w", err))
	}
	profile, err := p.analyzer.ExtractProfile(ctx, text)
	if err != nil {
		return p.fail(ctx, cur, fmt.Errorf("extract profile: %w", err))
	}

	parsed, err := p.transition(ctx, cur, domain.Transition{
		To:      domain.StatusParsed,
		Text:    &text,
		Profile: profile,
	})
	if err != nil {
		return discardStale(err)
	}

	// Analyze runs under the lease already held for this generation; a
	// worker never waits on queue space for its own follow-up step.
	if p.autoAnalyze {
		return p.analyze(ctx, parsed)
	}
	return nil
}

func (p *Processor) analyze(ctx context.Context, r *domain.Resume) error {
	if r.Status != domain.StatusParsed {
		return nil
	}
	job, err := p.jobs.GetByID(ctx, r.JobID)
	if err != nil {
		return p.fail(ctx, r, fmt.Errorf("load job: %w", err))
	}
	cur, err := p.transition(ctx, r, domain.Transition{To: domain.StatusAnalyzing})
	if err != nil {
		return discardStale(err)
	}

	res, err := p.analyzer.Analyze(ctx, domain.AnalyzeInput{ResumeText: cur.Text, Profile: cur.Profile, Job: job})
	if err != nil {
		return p.fail(ctx, cur, fmt.Errorf("analyze: %w", err))
	}
	id := cur.ID
	analysis := newAnalysis(job, &id, domain.AnalysisFull, res, p.thresholds, time.Now().UTC())
	if err := p.analyses.Create(ctx, analysis); err != nil {
		return p.fail(ctx, cur, fmt.Errorf("store analysis: %w", err))
	}

	done, err := p.transition(ctx, cur, domain.Transition{
		To:           domain.StatusAnalyzed,
		Scores:       scoresOf(analysis, res.UnmetCriteria),
		VerixChecked: true,
	})
	if err != nil {
		return discardStale(err)
	}

	if p.ranking != nil {
		p.ranking.Invalidate(ctx, job.ID, "resume_analyzed")
	}
	if !cur.VerixChecked && p.verix != nil {
		if _, err := p.verix.EvaluateTrigger(ctx, done, job); err != nil {
			p.log.Warn("verification trigger failed", zap.String("resume_id", done.ID.String()), zap.Error(err))
		}
	}
	return nil
}

// transition fills the compare-and-swap fields of t from r and publishes the change.
func (p *Processor) transition(ctx context.Context, r *domain.Resume, t domain.Transition) (*domain.Resume, error) {
	t.ResumeID = r.ID
	t.From = r.Status
	t.Generation = r.Generation
	if t.Cause == "" {
		t.Cause = domain.CausePipeline
	}
	if !r.Status.CanTransitionTo(t.To, t.Cause) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, r.Status, t.To)
	}
	updated, err := p.resumes.ApplyTransition(ctx, t)
	if err != nil {
		if errors.Is(err, domain.ErrStaleGeneration) {
			p.log.Info("discarding stale transition",
				zap.String("resume_id", r.ID.String()),
				zap.String("from", string(t.From)),
				zap.String("to", string(t.To)),
				zap.Int64("generation", t.Generation),
			)
		}
		return nil, err
	}
	p.log.Info("resume transition",
		zap.String("resume_id", r.ID.String()),
		zap.Int64("job_id", r.JobID),
		zap.String("from", string(t.From)),
		zap.String("to", string(t.To)),
		zap.Int64("generation", updated.Generation),
	)
	publishResume(ctx, p.publisher, updated, domain.NewStatusEvent(updated, t.From))
	return updated, nil
}

// fail records cause on the resume. Work cancelled by a lease revocation
// leaves the row alone: whoever revoked it owns the state now.
func (p *Processor) fail(ctx context.Context, r *domain.Resume, cause error) error {
	if errors.Is(context.Cause(ctx), pipeline.ErrLeaseRevoked) {
		return cause
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		cause = fmt.Errorf("processing timed out: %w", cause)
	}

	reason := cause.Error()
	if len(reason) > maxErrorReason {
		reason = reason[:maxErrorReason]
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if _, err := p.transition(wctx, r, domain.Transition{To: domain.StatusFailed, ErrorReason: &reason}); err != nil && !errors.Is(err, domain.ErrStaleGeneration) {
		p.log.Error("could not record failure", zap.String("resume_id", r.ID.String()), zap.Error(err))
	}
	return cause
}

func discardStale(err error) error {
	if errors.Is(err, domain.ErrStaleGeneration) {
		return nil
	}
	return err
}
