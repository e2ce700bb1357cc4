package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-screening-backend/internal/domain"
	"go-screening-backend/internal/pipeline"
	"go-screening-backend/internal/scoring"
	"go-screening-backend/pkg/apperror"
	"go-screening-backend/pkg/token"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	reasonLowTrust   = "trust_below_floor"
	reasonUnmetPrefx = "unmet_required_criterion:"

	saveAttempts = 3
)

// errUnchanged tells mutate to skip the write.
var errUnchanged = errors.New("unchanged")

type VerixDeps struct {
	Conversations domain.VerixRepository
	Resumes       domain.ResumeRepository
	Jobs          domain.JobRepository
	Analyses      domain.AnalysisRepository
	Analyzer      domain.Analyzer
	Mailer        domain.Mailer // nil: links are handed to the recruiter instead
	Tokens        *token.Manager
	Leases        *pipeline.LeaseArena
	Ranking       domain.RankingUsecase
	Publisher     domain.Publisher
	Thresholds    scoring.Thresholds
	Log           *zap.Logger

	TrustFloor      int
	TokenTTL        time.Duration
	BlendWeight     float64
	MinQuality      int
	SystemQuestions []string
	PublicBaseURL   string
	LeaseWait       time.Duration

	// Clock defaults to time.Now.
	Clock func() time.Time
}

type verixUsecase struct {
	conversations domain.VerixRepository
	resumes       domain.ResumeRepository
	jobs          domain.JobRepository
	analyses      domain.AnalysisRepository
	analyzer      domain.Analyzer
	mailer        domain.Mailer
	tokens        *token.Manager
	leases        *pipeline.LeaseArena
	ranking       domain.RankingUsecase
	publisher     domain.Publisher
	thresholds    scoring.Thresholds
	log           *zap.Logger

	trustFloor      int
	tokenTTL        time.Duration
	blendWeight     float64
	minQuality      int
	systemQuestions []string
	publicBaseURL   string
	leaseWait       time.Duration
	clock           func() time.Time
}

func NewVerixUsecase(d VerixDeps) domain.VerixUsecase {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Leases == nil {
		d.Leases = pipeline.NewLeaseArena()
	}
	if d.TokenTTL <= 0 {
		d.TokenTTL = 72 * time.Hour
	}
	if d.LeaseWait <= 0 {
		d.LeaseWait = 30 * time.Second
	}
	if d.Thresholds == (scoring.Thresholds{}) {
		d.Thresholds = scoring.DefaultThresholds()
	}
	return &verixUsecase{
		conversations:   d.Conversations,
		resumes:         d.Resumes,
		jobs:            d.Jobs,
		analyses:        d.Analyses,
		analyzer:        d.Analyzer,
		mailer:          d.Mailer,
		tokens:          d.Tokens,
		leases:          d.Leases,
		ranking:         d.Ranking,
		publisher:       publisherOrNop(d.Publisher),
		thresholds:      d.Thresholds,
		log:             d.Log.Named("verix"),
		trustFloor:      d.TrustFloor,
		tokenTTL:        d.TokenTTL,
		blendWeight:     d.BlendWeight,
		minQuality:      d.MinQuality,
		systemQuestions: d.SystemQuestions,
		publicBaseURL:   strings.TrimRight(d.PublicBaseURL, "/"),
		leaseWait:       d.LeaseWait,
		clock:           d.Clock,
	}
}

func (u *verixUsecase) now() time.Time { return u.clock().UTC() }

// triggerReasons lists why a freshly analyzed resume needs verification.
func (u *verixUsecase) triggerReasons(r *domain.Resume, job *domain.Job) []string {
	var reasons []string
	if r.Scores.Dimensions.Trust < u.trustFloor {
		reasons = append(reasons, reasonLowTrust)
	}
	for _, raw := range r.Scores.UnmetCriteria {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		if q, ok := job.CustomQuestion(id); ok && q.Required {
			reasons = append(reasons, reasonUnmetPrefx+id.String())
		}
	}
	return reasons
}

func (u *verixUsecase) EvaluateTrigger(ctx context.Context, r *domain.Resume, job *domain.Job) (*domain.VerixConversation, error) {
	if r.Scores == nil || r.Status != domain.StatusAnalyzed {
		return nil, nil
	}
	reasons := u.triggerReasons(r, job)
	if len(reasons) == 0 {
		return nil, nil
	}
	existing, err := u.conversations.GetByResumeID(ctx, r.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	now := u.now()
	trust, skills, overall := r.Scores.Dimensions.Trust, r.Scores.Dimensions.Skills, r.Scores.Overall
	c := &domain.VerixConversation{
		ID:             uuid.New(),
		ResumeID:       r.ID,
		JobID:          r.JobID,
		Status:         domain.VerixPending,
		TriggerReasons: reasons,
		Questions:      u.buildQuestions(job),
		Responses:      []domain.VerixResponse{},
		PreTrust:       &trust,
		PreSkills:      &skills,
		PreOverall:     &overall,
		TokenVersion:   1,
		ExpiresAt:      now.Add(u.tokenTTL),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	c.Record(domain.VerixEventCreated, now, strings.Join(reasons, ","))
	if err := u.conversations.Create(ctx, c); err != nil {
		return nil, err
	}
	if err := u.resumes.LinkVerix(ctx, r.ID, c.ID); err != nil {
		u.log.Warn("link conversation to resume", zap.String("resume_id", r.ID.String()), zap.Error(err))
	}
	u.log.Info("verification triggered",
		zap.String("conversation_id", c.ID.String()),
		zap.String("resume_id", r.ID.String()),
		zap.Strings("reasons", reasons),
	)
	publishVerix(ctx, u.publisher, c, domain.VerixEventCreated)

	return u.send(ctx, c.ID, r, job, func(c *domain.VerixConversation) error {
		return c.TransitionTo(domain.VerixQuestionsSent, u.now())
	})
}

func (u *verixUsecase) buildQuestions(job *domain.Job) []domain.VerixQuestion {
	qs := make([]domain.VerixQuestion, 0, len(u.systemQuestions)+len(job.CustomQuestions))
	for _, text := range u.systemQuestions {
		qs = append(qs, domain.VerixQuestion{
			ID: uuid.New(), Position: len(qs) + 1, Text: text, Required: true, Source: domain.QuestionSystem,
		})
	}
	for _, pq := range job.CustomQuestions {
		if strings.TrimSpace(pq.Text) == "" {
			continue
		}
		pqID := pq.ID
		qs = append(qs, domain.VerixQuestion{
			ID: uuid.New(), Position: len(qs) + 1, Text: pq.Text, Required: pq.Required,
			Source: domain.QuestionCustom, CustomQuestionID: &pqID,
		})
	}
	return qs
}

// send moves the conversation to questions_sent via open and dispatches the
// invitation. Without a mailer or a candidate address the link is only shown
// to the recruiter and the conversation waits for answers right away.
func (u *verixUsecase) send(ctx context.Context, id uuid.UUID, r *domain.Resume, job *domain.Job, open func(c *domain.VerixConversation) error) (*domain.VerixConversation, error) {
	c, err := u.mutate(ctx, id, func(c *domain.VerixConversation) error {
		if err := open(c); err != nil {
			return err
		}
		now := u.now()
		c.SentAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	publishVerix(ctx, u.publisher, c, "")

	link, err := u.candidateLink(c)
	if err != nil {
		return u.failConversation(ctx, c.ID, fmt.Sprintf("issue link: %v", err))
	}
	email := ""
	if r.Profile != nil {
		email = strings.TrimSpace(r.Profile.Email)
	}
	if u.mailer == nil || email == "" {
		handed := false
		c, err := u.mutate(ctx, c.ID, func(c *domain.VerixConversation) error {
			if c.Status != domain.VerixQuestionsSent {
				return errUnchanged
			}
			now := u.now()
			c.Record(domain.VerixEventEmailSent, now, "link handed to recruiter")
			handed = true
			return c.TransitionTo(domain.VerixAwaitingResponse, now)
		})
		if err != nil {
			return nil, err
		}
		if handed {
			publishVerix(ctx, u.publisher, c, domain.VerixEventEmailSent)
		}
		return c, nil
	}

	inv := domain.VerixInvitation{
		ConversationID: c.ID,
		CandidateEmail: email,
		JobTitle:       job.Title,
		Link:           link,
		QuestionCount:  len(c.Questions),
		ExpiresAt:      c.ExpiresAt,
	}
	if r.Profile != nil {
		inv.CandidateName = r.Profile.Name
	}
	version := c.TokenVersion
	go func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
		defer cancel()
		u.ReportDelivery(sendCtx, inv.ConversationID, version, u.mailer.SendVerixInvitation(sendCtx, inv))
	}()
	return c, nil
}

func (u *verixUsecase) candidateLink(c *domain.VerixConversation) (string, error) {
	tok, err := u.tokens.IssueVerix(c.ID, c.TokenVersion, c.ExpiresAt)
	if err != nil {
		return "", err
	}
	return u.publicBaseURL + "/verix/" + tok, nil
}

// ReportDelivery applies the mailer outcome. Reports for an older token
// version are ignored.
func (u *verixUsecase) ReportDelivery(ctx context.Context, id uuid.UUID, tokenVersion int, deliveryErr error) {
	var evType domain.VerixEventType
	c, err := u.mutate(ctx, id, func(c *domain.VerixConversation) error {
		if c.TokenVersion != tokenVersion || !c.Status.Open() {
			return errUnchanged
		}
		now := u.now()
		if deliveryErr != nil {
			evType = domain.VerixEventDeliveryFailed
			c.Record(evType, now, deliveryErr.Error())
			// The candidate already opened the link; keep waiting for answers.
			if c.Status == domain.VerixAwaitingResponse {
				return nil
			}
			reason := "invitation delivery failed: " + deliveryErr.Error()
			c.FailureReason = &reason
			return c.TransitionTo(domain.VerixFailed, now)
		}
		evType = domain.VerixEventEmailSent
		c.Record(evType, now, "")
		if c.Status == domain.VerixQuestionsSent {
			return c.TransitionTo(domain.VerixAwaitingResponse, now)
		}
		return nil
	})
	if err != nil {
		u.log.Warn("record delivery outcome", zap.String("conversation_id", id.String()), zap.Error(err))
		return
	}
	if evType == "" {
		return
	}
	if deliveryErr != nil {
		u.log.Warn("invitation delivery failed", zap.String("conversation_id", id.String()), zap.Error(deliveryErr))
	}
	publishVerix(ctx, u.publisher, c, evType)
}

func (u *verixUsecase) Get(ctx context.Context, jobID int64, id uuid.UUID) (*domain.VerixDetail, error) {
	c, err := u.loadScoped(ctx, jobID, id)
	if err != nil {
		return nil, toAppError(err, "Conversation")
	}
	return u.detail(c), nil
}

// Retry reopens a failed or expired conversation with a fresh link. Earlier
// links stop working and collected answers are kept.
func (u *verixUsecase) Retry(ctx context.Context, jobID int64, id uuid.UUID) (*domain.VerixDetail, error) {
	c, err := u.loadScoped(ctx, jobID, id)
	if err != nil {
		return nil, toAppError(err, "Conversation")
	}
	if !c.Status.Retryable() {
		return nil, apperror.Conflict(fmt.Sprintf("Only failed or expired conversations can be retried (status is %s)", c.Status))
	}
	r, err := u.resumes.GetByID(ctx, c.ResumeID)
	if err != nil {
		return nil, toAppError(err, "Resume")
	}
	job, err := u.jobs.GetByID(ctx, c.JobID)
	if err != nil {
		return nil, toAppError(err, "Job")
	}

	c, err = u.send(ctx, c.ID, r, job, func(c *domain.VerixConversation) error {
		if !c.Status.Retryable() {
			return fmt.Errorf("%w: verix %s cannot be retried", domain.ErrInvalidTransition, c.Status)
		}
		now := u.now()
		c.TokenVersion++
		c.ExpiresAt = now.Add(u.tokenTTL)
		c.FailureReason = nil
		c.Record(domain.VerixEventRetried, now, fmt.Sprintf("token version %d", c.TokenVersion))
		return c.TransitionTo(domain.VerixQuestionsSent, now)
	})
	if err != nil {
		return nil, toAppError(err, "Conversation")
	}
	u.log.Info("verification retried", zap.String("conversation_id", c.ID.String()), zap.Int("token_version", c.TokenVersion))
	return u.detail(c), nil
}

func (u *verixUsecase) detail(c *domain.VerixConversation) *domain.VerixDetail {
	d := &domain.VerixDetail{VerixConversation: *c}
	if c.Status.Open() {
		if link, err := u.candidateLink(c); err == nil {
			d.CandidateLink = link
		}
	}
	return d
}

func (u *verixUsecase) loadScoped(ctx context.Context, jobID int64, id uuid.UUID) (*domain.VerixConversation, error) {
	c, err := u.conversations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.JobID != jobID {
		return nil, fmt.Errorf("conversation %s: %w", id, domain.ErrScopeMismatch)
	}
	return u.expireIfDue(ctx, c)
}

// expireIfDue moves a lapsed open conversation to expired. Expiry is only
// ever checked on access.
func (u *verixUsecase) expireIfDue(ctx context.Context, c *domain.VerixConversation) (*domain.VerixConversation, error) {
	if !c.Expired(u.now()) {
		return c, nil
	}
	updated, err := u.mutate(ctx, c.ID, func(c *domain.VerixConversation) error {
		now := u.now()
		if !c.Expired(now) {
			return errUnchanged
		}
		c.Record(domain.VerixEventExpired, now, "")
		return c.TransitionTo(domain.VerixExpired, now)
	})
	if err != nil {
		return nil, err
	}
	if updated.Status == domain.VerixExpired {
		u.log.Info("verification expired", zap.String("conversation_id", c.ID.String()))
		publishVerix(ctx, u.publisher, updated, domain.VerixEventExpired)
	}
	return updated, nil
}

// resolve turns a candidate token into its live conversation.
func (u *verixUsecase) resolve(ctx context.Context, tok string) (*domain.VerixConversation, error) {
	id, version, err := u.tokens.ParseVerix(tok)
	if err != nil && !errors.Is(err, domain.ErrTokenExpired) {
		return nil, domain.ErrTokenInvalid
	}
	c, lerr := u.conversations.GetByID(ctx, id)
	if errors.Is(lerr, domain.ErrNotFound) {
		return nil, domain.ErrTokenInvalid
	}
	if lerr != nil {
		return nil, lerr
	}
	if version != c.TokenVersion {
		return nil, fmt.Errorf("%w: link was superseded", domain.ErrTokenInvalid)
	}
	if err != nil {
		if _, xerr := u.expireIfDue(ctx, c); xerr != nil {
			return nil, xerr
		}
		return nil, domain.ErrTokenExpired
	}
	c, err = u.expireIfDue(ctx, c)
	if err != nil {
		return nil, err
	}
	switch c.Status {
	case domain.VerixExpired:
		return nil, domain.ErrTokenExpired
	case domain.VerixFailed, domain.VerixPending:
		return nil, fmt.Errorf("%w: conversation is %s", domain.ErrTokenInvalid, c.Status)
	}
	return c, nil
}

func (u *verixUsecase) OpenByToken(ctx context.Context, tok string) (*domain.CandidateVerixView, error) {
	c, err := u.resolve(ctx, tok)
	if err != nil {
		return nil, toAppError(err, "Conversation")
	}
	if c.Status.Open() && (c.Status == domain.VerixQuestionsSent || !c.HasEvent(domain.VerixEventViewed)) {
		c, err = u.mutate(ctx, c.ID, func(c *domain.VerixConversation) error {
			if !c.Status.Open() {
				return errUnchanged
			}
			now := u.now()
			if !c.HasEvent(domain.VerixEventViewed) {
				c.Record(domain.VerixEventViewed, now, "")
			}
			if c.Status == domain.VerixQuestionsSent {
				return c.TransitionTo(domain.VerixAwaitingResponse, now)
			}
			return nil
		})
		if err != nil {
			return nil, toAppError(err, "Conversation")
		}
		publishVerix(ctx, u.publisher, c, domain.VerixEventViewed)
	}
	return u.candidateView(ctx, c, nil), nil
}

// SubmitAnswers stores answers to unanswered questions. Answers to questions
// that already have one are reported as skipped. Once every required
// question is answered, evaluation and the re-score run in the background.
func (u *verixUsecase) SubmitAnswers(ctx context.Context, tok string, answers []domain.VerixAnswer) (*domain.CandidateVerixView, error) {
	c, err := u.resolve(ctx, tok)
	if err != nil {
		return nil, toAppError(err, "Conversation")
	}
	if !c.Status.Open() {
		return nil, apperror.Conflict("Answers were already submitted")
	}
	for _, a := range answers {
		if _, ok := c.Question(a.QuestionID); !ok {
			return nil, apperror.BadRequest(fmt.Sprintf("Unknown question %s", a.QuestionID))
		}
	}

	var skipped []uuid.UUID
	c, err = u.mutate(ctx, c.ID, func(c *domain.VerixConversation) error {
		if !c.Status.Open() {
			return fmt.Errorf("%w: conversation is %s", domain.ErrInvalidTransition, c.Status)
		}
		now := u.now()
		skipped = skipped[:0]
		added := 0
		for _, a := range answers {
			text := strings.TrimSpace(a.Answer)
			if text == "" {
				continue
			}
			if prev, ok := c.Response(a.QuestionID); ok && strings.TrimSpace(prev.Answer) != "" {
				skipped = append(skipped, a.QuestionID)
				continue
			}
			resp := domain.VerixResponse{QuestionID: a.QuestionID, Answer: text, SubmittedAt: now}
			if c.SentAt != nil {
				resp.LatencySeconds = int64(now.Sub(*c.SentAt).Seconds())
			}
			c.Responses = append(c.Responses, resp)
			added++
		}
		moved := c.Status == domain.VerixQuestionsSent
		if moved {
			if err := c.TransitionTo(domain.VerixAwaitingResponse, now); err != nil {
				return err
			}
		}
		if added > 0 {
			c.Record(domain.VerixEventSubmitted, now, fmt.Sprintf("%d answers", added))
		}
		if c.RequiredAnswered() {
			return c.TransitionTo(domain.VerixResponded, now)
		}
		if added == 0 && !moved {
			return errUnchanged
		}
		return nil
	})
	if err != nil {
		return nil, toAppError(err, "Conversation")
	}
	publishVerix(ctx, u.publisher, c, domain.VerixEventSubmitted)

	if c.Status == domain.VerixResponded {
		id := c.ID
		go func() {
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Minute)
			defer cancel()
			u.finalize(fctx, id)
		}()
	}
	return u.candidateView(ctx, c, skipped), nil
}

func (u *verixUsecase) candidateView(ctx context.Context, c *domain.VerixConversation, skipped []uuid.UUID) *domain.CandidateVerixView {
	view := &domain.CandidateVerixView{
		ConversationID: c.ID,
		Status:         c.Status,
		ExpiresAt:      c.ExpiresAt,
		Questions:      make([]domain.CandidateQuestion, 0, len(c.Questions)),
		Skipped:        skipped,
	}
	if job, err := u.jobs.GetByID(ctx, c.JobID); err == nil {
		view.JobTitle = job.Title
	}
	for _, q := range c.Questions {
		r, ok := c.Response(q.ID)
		view.Questions = append(view.Questions, domain.CandidateQuestion{
			ID:       q.ID,
			Position: q.Position,
			Text:     q.Text,
			Required: q.Required,
			Answered: ok && strings.TrimSpace(r.Answer) != "",
		})
	}
	return view
}

// finalize evaluates the answers, marks the conversation verified and runs
// the single re-score. Only the submission that reached responded gets here.
func (u *verixUsecase) finalize(ctx context.Context, id uuid.UUID) {
	c, err := u.conversations.GetByID(ctx, id)
	if err != nil || c.Status != domain.VerixResponded {
		return
	}
	job, err := u.jobs.GetByID(ctx, c.JobID)
	if err != nil {
		_, _ = u.failConversation(ctx, id, fmt.Sprintf("load job: %v", err))
		return
	}

	evaluated := make(map[uuid.UUID]domain.VerixResponse, len(c.Responses))
	for _, resp := range c.Responses {
		if resp.Evaluated {
			continue
		}
		q, _ := c.Question(resp.QuestionID)
		if q == nil {
			continue
		}
		ev, err := u.analyzer.EvaluateResponse(ctx, job, *q, resp.Answer)
		if err != nil {
			_, _ = u.failConversation(ctx, id, fmt.Sprintf("evaluate response: %v", err))
			return
		}
		resp.Evaluated = true
		resp.Depth, resp.Specificity = scoring.Clamp(ev.Depth), scoring.Clamp(ev.Specificity)
		resp.Relevance, resp.Technical = scoring.Clamp(ev.Relevance), scoring.Clamp(ev.Technical)
		resp.Quality = scoring.ResponseQuality(ev.Depth, ev.Specificity, ev.Relevance, ev.Technical)
		resp.Authorship = ev.Authorship
		resp.Notes = ev.Notes
		evaluated[resp.QuestionID] = resp
	}

	c, err = u.mutate(ctx, id, func(c *domain.VerixConversation) error {
		if c.Status != domain.VerixResponded {
			return fmt.Errorf("%w: conversation is %s", domain.ErrInvalidTransition, c.Status)
		}
		for i := range c.Responses {
			if ev, ok := evaluated[c.Responses[i].QuestionID]; ok {
				c.Responses[i] = ev
			}
		}
		now := u.now()
		c.Record(domain.VerixEventVerified, now, "")
		return c.TransitionTo(domain.VerixVerified, now)
	})
	if err != nil {
		u.log.Warn("mark verified", zap.String("conversation_id", id.String()), zap.Error(err))
		return
	}
	publishVerix(ctx, u.publisher, c, domain.VerixEventVerified)

	if err := u.rescore(ctx, c, job); err != nil {
		u.log.Warn("re-score failed", zap.String("conversation_id", id.String()), zap.Error(err))
	}
}

// qualifies reports whether a response counts as evidence in the blend.
func (u *verixUsecase) qualifies(r domain.VerixResponse) bool {
	return r.Evaluated && r.Quality >= u.minQuality && r.Authorship != domain.AuthorAIGenerated
}

// rescore blends the responses into the resume's trust and skills scores
// under the resume lease: analyzed -> analyzing -> analyzed.
func (u *verixUsecase) rescore(ctx context.Context, c *domain.VerixConversation, job *domain.Job) error {
	lease, err := u.leases.Acquire(ctx, c.ResumeID, 0, u.leaseWait)
	if err != nil {
		_, _ = u.failConversation(ctx, c.ID, "resume is busy, retry later")
		return err
	}
	defer lease.Release()
	lctx := lease.Context()

	r, err := u.resumes.GetByID(lctx, c.ResumeID)
	if err != nil {
		_, _ = u.failConversation(ctx, c.ID, fmt.Sprintf("load resume: %v", err))
		return err
	}
	if r.Status != domain.StatusAnalyzed || r.Scores == nil {
		_, _ = u.failConversation(ctx, c.ID, fmt.Sprintf("resume is %s, not analyzed", r.Status))
		return domain.ErrNotAnalyzed
	}

	var trustEvidence, skillsEvidence []int
	for _, resp := range c.Responses {
		if u.qualifies(resp) {
			trustEvidence = append(trustEvidence, resp.Quality)
			skillsEvidence = append(skillsEvidence, resp.Technical)
		} else {
			trustEvidence = append(trustEvidence, 0)
			skillsEvidence = append(skillsEvidence, 0)
		}
	}
	prior := r.Scores
	dims := prior.Dimensions
	dims.Trust = scoring.Blend(prior.Dimensions.Trust, trustEvidence, u.blendWeight)
	dims.Skills = scoring.Blend(prior.Dimensions.Skills, skillsEvidence, u.blendWeight)

	analyzing, err := u.resumes.ApplyTransition(lctx, domain.Transition{
		ResumeID:   r.ID,
		From:       domain.StatusAnalyzed,
		To:         domain.StatusAnalyzing,
		Cause:      domain.CauseRescore,
		Generation: r.Generation,
	})
	if err != nil {
		_, _ = u.failConversation(ctx, c.ID, fmt.Sprintf("start re-score: %v", err))
		return err
	}
	publishResume(ctx, u.publisher, analyzing, domain.NewStatusEvent(analyzing, domain.StatusAnalyzed))

	rid := r.ID
	now := u.now()
	a := newAnalysis(job, &rid, domain.AnalysisRescore, &domain.AnalyzerResult{
		Dimensions: dims,
		Summary:    fmt.Sprintf("Re-scored after verification: trust %d -> %d, skills %d -> %d", prior.Dimensions.Trust, dims.Trust, prior.Dimensions.Skills, dims.Skills),
		Strengths:  prior.Strengths,
		Concerns:   prior.Concerns,
		SkillMatch: prior.SkillMatch,
		TrustFlags: prior.TrustFlags,
	}, u.thresholds, now)
	if err := u.analyses.Create(lctx, a); err != nil {
		u.failResume(ctx, analyzing, fmt.Sprintf("store re-score: %v", err))
		_, _ = u.failConversation(ctx, c.ID, fmt.Sprintf("store re-score: %v", err))
		return err
	}

	done, err := u.resumes.ApplyTransition(lctx, domain.Transition{
		ResumeID:   r.ID,
		From:       domain.StatusAnalyzing,
		To:         domain.StatusAnalyzed,
		Cause:      domain.CauseRescore,
		Generation: analyzing.Generation,
		Scores:     scoresOf(a, prior.UnmetCriteria),
	})
	if err != nil {
		u.failResume(ctx, analyzing, fmt.Sprintf("finish re-score: %v", err))
		_, _ = u.failConversation(ctx, c.ID, fmt.Sprintf("finish re-score: %v", err))
		return err
	}
	publishResume(ctx, u.publisher, done, domain.NewStatusEvent(done, domain.StatusAnalyzing))
	if u.ranking != nil {
		u.ranking.Invalidate(ctx, job.ID, "verix_rescore")
	}

	postTrust, postSkills, postOverall := dims.Trust, dims.Skills, a.OverallScore
	c, err = u.mutate(ctx, c.ID, func(c *domain.VerixConversation) error {
		now := u.now()
		c.PostTrust, c.PostSkills, c.PostOverall = &postTrust, &postSkills, &postOverall
		c.Record(domain.VerixEventReanalyzed, now, fmt.Sprintf("overall %d -> %d", prior.Overall, postOverall))
		return c.TransitionTo(domain.VerixCompleted, now)
	})
	if err != nil {
		return err
	}
	u.log.Info("verification completed",
		zap.String("conversation_id", c.ID.String()),
		zap.String("resume_id", r.ID.String()),
		zap.Int("pre_overall", prior.Overall),
		zap.Int("post_overall", postOverall),
	)
	publishVerix(ctx, u.publisher, c, domain.VerixEventReanalyzed)
	return nil
}

func (u *verixUsecase) failResume(ctx context.Context, r *domain.Resume, reason string) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	failed, err := u.resumes.ApplyTransition(wctx, domain.Transition{
		ResumeID:    r.ID,
		From:        domain.StatusAnalyzing,
		To:          domain.StatusFailed,
		Cause:       domain.CauseRescore,
		Generation:  r.Generation,
		ErrorReason: &reason,
	})
	if err != nil {
		u.log.Error("could not fail resume after re-score error", zap.String("resume_id", r.ID.String()), zap.Error(err))
		return
	}
	publishResume(ctx, u.publisher, failed, domain.NewStatusEvent(failed, domain.StatusAnalyzing))
}

func (u *verixUsecase) failConversation(ctx context.Context, id uuid.UUID, reason string) (*domain.VerixConversation, error) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	c, err := u.mutate(wctx, id, func(c *domain.VerixConversation) error {
		if !c.Status.CanTransitionTo(domain.VerixFailed) {
			return errUnchanged
		}
		now := u.now()
		c.FailureReason = &reason
		c.Record(domain.VerixEventFailed, now, reason)
		return c.TransitionTo(domain.VerixFailed, now)
	})
	if err != nil {
		u.log.Error("could not fail conversation", zap.String("conversation_id", id.String()), zap.Error(err))
		return nil, err
	}
	if c.Status == domain.VerixFailed {
		u.log.Warn("verification failed", zap.String("conversation_id", id.String()), zap.String("reason", reason))
		publishVerix(ctx, u.publisher, c, domain.VerixEventFailed)
	}
	return c, nil
}

// mutate reloads, applies fn and saves, retrying on optimistic-lock conflicts.
// fn returning errUnchanged skips the save.
func (u *verixUsecase) mutate(ctx context.Context, id uuid.UUID, fn func(c *domain.VerixConversation) error) (*domain.VerixConversation, error) {
	for attempt := 0; attempt < saveAttempts; attempt++ {
		c, err := u.conversations.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(c); err != nil {
			if errors.Is(err, errUnchanged) {
				return c, nil
			}
			return nil, err
		}
		err = u.conversations.Save(ctx, c)
		if errors.Is(err, domain.ErrConcurrentUpdate) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, domain.ErrConcurrentUpdate
}
