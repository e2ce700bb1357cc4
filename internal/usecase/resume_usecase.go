package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"go-screening-backend/internal/domain"
	"go-screening-backend/internal/pipeline"
	"go-screening-backend/pkg/apperror"
	"go-screening-backend/pkg/security"
	"go-screening-backend/pkg/security/antivirus"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const sweepBatch = 100

type ResumeDeps struct {
	Resumes   domain.ResumeRepository
	Jobs      domain.JobRepository
	Verix     domain.VerixRepository
	Storage   domain.FileStorage
	Queue     domain.TaskQueue
	Leases    *pipeline.LeaseArena
	Publisher domain.Publisher
	Sequences SequenceReader
	Scanner   antivirus.Scanner
	Audit     *security.AuditLogger
	Log       *zap.Logger

	MaxUploadBytes     int64
	AutoAnalyze        bool
	EnqueueConcurrency int
}

type resumeUsecase struct {
	resumes   domain.ResumeRepository
	jobs      domain.JobRepository
	verix     domain.VerixRepository
	storage   domain.FileStorage
	queue     domain.TaskQueue
	leases    *pipeline.LeaseArena
	publisher domain.Publisher
	sequences SequenceReader
	guard     fileGuard
	log       *zap.Logger

	maxUploadBytes     int64
	autoAnalyze        bool
	enqueueConcurrency int
}

// NewResumeUsecase builds the resume usecase. It also serves as the reaper's
// pipeline.Sweeper.
func NewResumeUsecase(d ResumeDeps) domain.ResumeUsecase {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Leases == nil {
		d.Leases = pipeline.NewLeaseArena()
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 10 << 20
	}
	if d.EnqueueConcurrency <= 0 {
		d.EnqueueConcurrency = 8
	}
	return &resumeUsecase{
		resumes:            d.Resumes,
		jobs:               d.Jobs,
		verix:              d.Verix,
		storage:            d.Storage,
		queue:              d.Queue,
		leases:             d.Leases,
		publisher:          publisherOrNop(d.Publisher),
		sequences:          d.Sequences,
		guard:              fileGuard{scanner: d.Scanner, audit: d.Audit},
		log:                d.Log.Named("resumes"),
		maxUploadBytes:     d.MaxUploadBytes,
		autoAnalyze:        d.AutoAnalyze,
		enqueueConcurrency: d.EnqueueConcurrency,
	}
}

var (
	_ domain.ResumeUsecase = (*resumeUsecase)(nil)
	_ pipeline.Sweeper     = (*resumeUsecase)(nil)
)

func storageKey(jobID int64, id uuid.UUID, fileName string) string {
	return fmt.Sprintf("resumes/%d/%s%s", jobID, id, strings.ToLower(filepath.Ext(fileName)))
}

func (u *resumeUsecase) IssueUploadURL(ctx context.Context, jobID int64, fileName, contentType string) (*domain.UploadHandle, error) {
	if err := security.ValidateFileExtension(fileName); err != nil {
		return nil, apperror.BadRequest(err.Error())
	}
	if _, err := u.jobs.GetByID(ctx, jobID); err != nil {
		return nil, toAppError(err, "Job")
	}
	if contentType == "" {
		contentType = security.ContentTypeFor(fileName)
	}
	handle, err := u.storage.PresignUpload(ctx, storageKey(jobID, uuid.New(), fileName), contentType)
	if err != nil {
		return nil, apperror.Unavailable("Storage unavailable", err)
	}
	return handle, nil
}

func (u *resumeUsecase) RegisterUpload(ctx context.Context, jobID int64, reg domain.UploadRegistration) (*domain.Resume, error) {
	if err := security.ValidateFileExtension(reg.FileName); err != nil {
		return nil, apperror.BadRequest(err.Error())
	}
	prefix := fmt.Sprintf("resumes/%d/", jobID)
	if !strings.HasPrefix(reg.FileKey, prefix) || strings.Contains(reg.FileKey, "..") {
		return nil, apperror.BadRequest("file_key does not belong to this job")
	}
	id, err := uuid.Parse(strings.TrimSuffix(strings.TrimPrefix(reg.FileKey, prefix), filepath.Ext(reg.FileKey)))
	if err != nil {
		return nil, apperror.BadRequest("file_key was not issued by this service")
	}
	if _, err := u.jobs.GetByID(ctx, jobID); err != nil {
		return nil, toAppError(err, "Job")
	}
	contentType := reg.ContentType
	if contentType == "" {
		contentType = security.ContentTypeFor(reg.FileName)
	}
	// Content checks for presigned uploads run in the parse step.
	return u.create(ctx, jobID, id, reg.FileKey, reg.FileName, contentType)
}

func (u *resumeUsecase) Upload(ctx context.Context, jobID int64, in domain.UploadInput) (*domain.Resume, error) {
	if int64(len(in.Data)) > u.maxUploadBytes {
		return nil, apperror.BadRequest(fmt.Sprintf("File exceeds the %d MB limit", u.maxUploadBytes>>20))
	}
	if len(in.Data) == 0 {
		return nil, apperror.BadRequest("File is empty")
	}
	if err := u.guard.inspect(ctx, in.FileName, in.Data); err != nil {
		if errors.Is(err, errMalware) {
			return nil, apperror.New(http.StatusUnprocessableEntity, "File failed security scan", err)
		}
		return nil, apperror.BadRequest(err.Error())
	}
	if _, err := u.jobs.GetByID(ctx, jobID); err != nil {
		return nil, toAppError(err, "Job")
	}

	id := uuid.New()
	key := storageKey(jobID, id, in.FileName)
	contentType := security.ContentTypeFor(in.FileName)
	if err := u.storage.Put(ctx, key, in.Data, contentType); err != nil {
		return nil, apperror.Unavailable("Storage unavailable", err)
	}
	return u.create(ctx, jobID, id, key, in.FileName, contentType)
}

func (u *resumeUsecase) create(ctx context.Context, jobID int64, id uuid.UUID, key, fileName, contentType string) (*domain.Resume, error) {
	now := time.Now().UTC()
	r := &domain.Resume{
		ID:              id,
		JobID:           jobID,
		FileKey:         key,
		FileName:        filepath.Base(fileName),
		ContentType:     contentType,
		Status:          domain.StatusUploaded,
		Generation:      1,
		StatusChangedAt: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := u.resumes.Create(ctx, r); err != nil {
		return nil, toAppError(err, "Resume")
	}
	u.log.Info("resume uploaded", zap.String("resume_id", id.String()), zap.Int64("job_id", jobID))
	publishResume(ctx, u.publisher, r, domain.NewStatusEvent(r, ""))

	// A lost enqueue is picked up by the reaper's pending sweep.
	u.enqueue(ctx, r, domain.StepParse)
	return r, nil
}

func (u *resumeUsecase) enqueue(ctx context.Context, r *domain.Resume, step domain.TaskStep) bool {
	task := domain.ProcessingTask{ResumeID: r.ID, JobID: r.JobID, Step: step, Generation: r.Generation}
	if err := u.queue.Enqueue(ctx, task); err != nil {
		u.log.Warn("enqueue failed",
			zap.String("resume_id", r.ID.String()),
			zap.String("step", string(step)),
			zap.Error(err),
		)
		return false
	}
	return true
}

// load fetches a resume and checks it belongs to jobID.
func (u *resumeUsecase) load(ctx context.Context, jobID int64, id uuid.UUID) (*domain.Resume, error) {
	r, err := u.resumes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.JobID != jobID {
		return nil, fmt.Errorf("resume %s: %w", id, domain.ErrScopeMismatch)
	}
	return r, nil
}

func (u *resumeUsecase) DownloadURL(ctx context.Context, jobID int64, id uuid.UUID) (*domain.DownloadHandle, error) {
	r, err := u.load(ctx, jobID, id)
	if err != nil {
		return nil, toAppError(err, "Resume")
	}
	handle, err := u.storage.PresignDownload(ctx, r.FileKey)
	if err != nil {
		return nil, apperror.Unavailable("Storage unavailable", err)
	}
	return handle, nil
}

func (u *resumeUsecase) Analyze(ctx context.Context, jobID int64, id uuid.UUID) (*domain.Resume, error) {
	r, err := u.load(ctx, jobID, id)
	if err != nil {
		return nil, toAppError(err, "Resume")
	}
	if r.Status.IsTransient() || u.leases.Held(id) {
		return nil, toAppError(domain.ErrLeaseHeld, "Resume")
	}
	switch r.Status {
	case domain.StatusParsed:
	case domain.StatusAnalyzed:
		return nil, apperror.Conflict("Resume is already analyzed")
	case domain.StatusUploaded:
		return nil, apperror.Conflict("Resume has not been parsed yet")
	case domain.StatusFailed:
		return nil, apperror.Conflict("Resume failed processing, reprocess it first")
	default:
		return nil, toAppError(domain.ErrInvalidTransition, "Resume")
	}
	if !u.enqueue(ctx, r, domain.StepAnalyze) {
		return nil, apperror.Unavailable("Processing queue unavailable", nil)
	}
	r.RankingVisible()
	return r, nil
}

// AnalyzeAll queues every parsed resume of the job and reports how many were queued.
func (u *resumeUsecase) AnalyzeAll(ctx context.Context, jobID int64) (int, error) {
	if _, err := u.jobs.GetByID(ctx, jobID); err != nil {
		return 0, toAppError(err, "Job")
	}
	parsed := domain.StatusParsed
	list, err := u.resumes.ListByJob(ctx, jobID, domain.CandidateFilter{Status: &parsed})
	if err != nil {
		return 0, toAppError(err, "Job")
	}

	var queued atomic.Int64
	var g errgroup.Group
	g.SetLimit(u.enqueueConcurrency)
	for i := range list {
		r := &list[i]
		if u.leases.Held(r.ID) {
			continue
		}
		g.Go(func() error {
			if u.enqueue(ctx, r, domain.StepAnalyze) {
				queued.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	n := int(queued.Load())
	u.log.Info("analyze all queued", zap.Int64("job_id", jobID), zap.Int("queued", n), zap.Int("parsed", len(list)))
	return n, nil
}

// Reprocess moves a failed resume back to uploaded under a new generation.
// Any in-flight work on the old generation is cancelled and its result discarded.
func (u *resumeUsecase) Reprocess(ctx context.Context, jobID int64, id uuid.UUID) (*domain.Resume, error) {
	r, err := u.load(ctx, jobID, id)
	if err != nil {
		return nil, toAppError(err, "Resume")
	}
	if r.Status != domain.StatusFailed {
		return nil, apperror.Conflict(fmt.Sprintf("Only failed resumes can be reprocessed (status is %s)", r.Status))
	}

	updated, err := u.resumes.ApplyTransition(ctx, domain.Transition{
		ResumeID:       r.ID,
		From:           domain.StatusFailed,
		To:             domain.StatusUploaded,
		Cause:          domain.CauseReprocess,
		Generation:     r.Generation,
		BumpGeneration: true,
	})
	if err != nil {
		return nil, toAppError(err, "Resume")
	}
	if u.leases.Revoke(id) {
		u.log.Info("revoked in-flight lease", zap.String("resume_id", id.String()), zap.Int64("generation", r.Generation))
	}
	u.log.Info("resume reprocessed",
		zap.String("resume_id", id.String()),
		zap.Int64("generation", updated.Generation),
	)
	publishResume(ctx, u.publisher, updated, domain.NewStatusEvent(updated, r.Status))
	u.enqueue(ctx, updated, domain.StepParse)
	updated.RankingVisible()
	return updated, nil
}

func (u *resumeUsecase) GetCandidates(ctx context.Context, jobID int64, filter domain.CandidateFilter) (*domain.CandidateList, error) {
	job, err := u.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, toAppError(err, "Job")
	}
	list, err := u.resumes.ListByJob(ctx, jobID, filter)
	if err != nil {
		return nil, toAppError(err, "Job")
	}
	for i := range list {
		list[i].RankingVisible()
	}
	return &domain.CandidateList{
		JobID:          jobID,
		RankingStale:   job.RankingStale,
		RankingVersion: job.RankingVersion,
		Total:          len(list),
		Candidates:     list,
	}, nil
}

func (u *resumeUsecase) GetResume(ctx context.Context, jobID int64, id uuid.UUID) (*domain.Resume, error) {
	r, err := u.load(ctx, jobID, id)
	if err != nil {
		return nil, toAppError(err, "Resume")
	}
	r.RankingVisible()
	return r, nil
}

// current reads the channel sequence before the state it describes, so every
// later event has a higher number than the snapshot.
func (u *resumeUsecase) current(ctx context.Context, channel string) (uint64, error) {
	if u.sequences == nil {
		return 0, nil
	}
	return u.sequences.Current(ctx, channel)
}

func (u *resumeUsecase) JobSnapshot(ctx context.Context, jobID int64) (*domain.JobSnapshot, error) {
	seq, err := u.current(ctx, domain.JobChannel(jobID))
	if err != nil {
		return nil, apperror.Unavailable("Sequencer unavailable", err)
	}
	job, err := u.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, toAppError(err, "Job")
	}
	counts, err := u.resumes.CountByStatus(ctx, jobID)
	if err != nil {
		return nil, toAppError(err, "Job")
	}
	list, err := u.resumes.ListByJob(ctx, jobID, domain.CandidateFilter{})
	if err != nil {
		return nil, toAppError(err, "Job")
	}
	summaries := make([]domain.CandidateSummary, 0, len(list))
	for i := range list {
		summaries = append(summaries, domain.SummarizeResume(&list[i]))
	}
	return &domain.JobSnapshot{
		JobID:          jobID,
		Seq:            seq,
		RankingStale:   job.RankingStale,
		RankingVersion: job.RankingVersion,
		Counts:         counts,
		Candidates:     summaries,
		TakenAt:        time.Now().UTC(),
	}, nil
}

func (u *resumeUsecase) ResumeSnapshot(ctx context.Context, jobID int64, id uuid.UUID) (*domain.ResumeSnapshot, error) {
	seq, err := u.current(ctx, domain.ResumeChannel(id))
	if err != nil {
		return nil, apperror.Unavailable("Sequencer unavailable", err)
	}
	r, err := u.load(ctx, jobID, id)
	if err != nil {
		return nil, toAppError(err, "Resume")
	}
	snap := &domain.ResumeSnapshot{
		Seq:         seq,
		Resume:      domain.SummarizeResume(r),
		ErrorReason: r.ErrorReason,
		TakenAt:     time.Now().UTC(),
	}
	if r.VerixConversationID != nil && u.verix != nil {
		c, err := u.verix.GetByID(ctx, *r.VerixConversationID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, toAppError(err, "Conversation")
		}
		if c != nil {
			snap.Verix = &domain.VerixPayload{
				ConversationID: c.ID,
				Status:         c.Status,
				PreOverall:     c.PreOverall,
				PostOverall:    c.PostOverall,
			}
		}
	}
	return snap, nil
}

// FailStuck fails resumes left in parsing or analyzing since before cutoff
// and revokes whatever lease is still held on them.
func (u *resumeUsecase) FailStuck(ctx context.Context, cutoff time.Time) (int, error) {
	stuck, err := u.resumes.FindStuck(ctx, []domain.ResumeStatus{domain.StatusParsing, domain.StatusAnalyzing}, cutoff, sweepBatch)
	if err != nil {
		return 0, err
	}
	failed := 0
	for i := range stuck {
		r := &stuck[i]
		u.leases.Revoke(r.ID)
		reason := fmt.Sprintf("processing timed out in %s", r.Status)
		updated, err := u.resumes.ApplyTransition(ctx, domain.Transition{
			ResumeID:    r.ID,
			From:        r.Status,
			To:          domain.StatusFailed,
			Cause:       domain.CausePipeline,
			Generation:  r.Generation,
			ErrorReason: &reason,
		})
		if errors.Is(err, domain.ErrStaleGeneration) {
			continue
		}
		if err != nil {
			return failed, err
		}
		failed++
		u.log.Warn("failed stuck resume",
			zap.String("resume_id", r.ID.String()),
			zap.Int64("job_id", r.JobID),
			zap.String("from", string(r.Status)),
			zap.Time("status_changed_at", r.StatusChangedAt),
		)
		publishResume(ctx, u.publisher, updated, domain.NewStatusEvent(updated, r.Status))
	}
	return failed, nil
}

// RequeuePending re-enqueues resumes whose next task was never picked up.
// Duplicates are harmless: workers skip tasks that no longer match the row.
func (u *resumeUsecase) RequeuePending(ctx context.Context, cutoff time.Time) (int, error) {
	statuses := []domain.ResumeStatus{domain.StatusUploaded}
	if u.autoAnalyze {
		statuses = append(statuses, domain.StatusParsed)
	}
	pending, err := u.resumes.FindStuck(ctx, statuses, cutoff, sweepBatch)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range pending {
		r := &pending[i]
		if u.leases.Held(r.ID) {
			continue
		}
		step := domain.StepParse
		if r.Status == domain.StatusParsed {
			step = domain.StepAnalyze
		}
		if u.enqueue(ctx, r, step) {
			n++
		}
	}
	return n, nil
}
