package v1

import (
	"net/http"

	"go-screening-backend/internal/delivery/http/middleware"
	"go-screening-backend/internal/delivery/http/response"
	"go-screening-backend/internal/domain"
	"go-screening-backend/pkg/security"

	"github.com/gin-gonic/gin"
)

type JobHandler struct {
	jobUC    domain.JobUsecase
	resumeUC domain.ResumeUsecase
	limiter  *security.UploadLimiter
	audit    *security.AuditLogger
	maxBytes int64
}

type JobHandlerDeps struct {
	JobUC    domain.JobUsecase
	ResumeUC domain.ResumeUsecase
	Limiter  *security.UploadLimiter
	Audit    *security.AuditLogger
	MaxBytes int64
}

func NewJobHandler(public *gin.RouterGroup, jobs *gin.RouterGroup, d JobHandlerDeps) {
	handler := &JobHandler{
		jobUC:    d.JobUC,
		resumeUC: d.ResumeUC,
		limiter:  d.Limiter,
		audit:    d.Audit,
		maxBytes: d.MaxBytes,
	}

	// PUBLIC: candidates apply through a signed link, no recruiter auth
	public.POST("/apply/:token", handler.Apply)

	jobs.GET("/preferences", handler.GetPreferences)
	jobs.PUT("/preferences", handler.UpdatePreferences)
	jobs.GET("/groups", handler.ListGroups)
	jobs.POST("/application-link", handler.IssueApplicationLink)
}

// GetPreferences godoc
// @Summary      Get scoring weights and custom questions
// @Tags         jobs
// @Produce      json
// @Param        jobId  path      int  true  "Job ID"
// @Success      200    {object}  response.Response
// @Failure      404    {object}  response.Response
// @Router       /jobs/{jobId}/preferences [get]
// @Security     BearerAuth
func (h *JobHandler) GetPreferences(c *gin.Context) {
	prefs, err := h.jobUC.GetPreferences(c.Request.Context(), jobID(c))
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Preferences", prefs)
}

// UpdatePreferences godoc
// @Summary      Replace scoring weights and custom questions
// @Description  Changing the weights flags the ranking stale.
// @Tags         jobs
// @Accept       json
// @Produce      json
// @Param        jobId  path      int                    true  "Job ID"
// @Param        body   body      domain.JobPreferences  true  "Preferences"
// @Success      200    {object}  response.Response
// @Failure      400    {object}  response.Response
// @Router       /jobs/{jobId}/preferences [put]
// @Security     BearerAuth
func (h *JobHandler) UpdatePreferences(c *gin.Context) {
	var req domain.JobPreferences
	if !bindJSON(c, &req) {
		return
	}
	prefs, err := h.jobUC.UpdatePreferences(c.Request.Context(), jobID(c), req)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Preferences updated", prefs)
}

func (h *JobHandler) ListGroups(c *gin.Context) {
	groups, err := h.jobUC.ListGroups(c.Request.Context(), jobID(c))
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Groups", groups)
}

// IssueApplicationLink godoc
// @Summary      Issue a signed candidate application link
// @Tags         jobs
// @Produce      json
// @Param        jobId  path      int  true  "Job ID"
// @Success      201    {object}  response.Response
// @Router       /jobs/{jobId}/application-link [post]
// @Security     BearerAuth
func (h *JobHandler) IssueApplicationLink(c *gin.Context) {
	link, err := h.jobUC.IssueApplicationLink(c.Request.Context(), jobID(c))
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusCreated, "Application link issued", link)
}

// Apply godoc
// @Summary      Candidate resume submission
// @Description  The token identifies the job. Uploads share the per-job upload limits.
// @Tags         public
// @Accept       multipart/form-data
// @Produce      json
// @Param        token  path      string  true  "Application token"
// @Param        file   formData  file    true  "Resume (pdf, txt)"
// @Success      202    {object}  response.Response
// @Failure      401    {object}  response.Response
// @Failure      410    {object}  response.Response
// @Failure      429    {object}  response.Response
// @Router       /public/apply/{token} [post]
func (h *JobHandler) Apply(c *gin.Context) {
	job, err := h.jobUC.ResolveApplicationToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.audit.Log(c.Request.Context(), security.SecurityEvent{
			Event:     security.EventCandidateToken,
			IP:        c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
			RequestID: c.GetString(string(domain.KeyRequestID)),
			Details:   map[string]interface{}{"kind": "application", "result": "rejected"},
		})
		c.Error(err)
		return
	}
	if !middleware.AllowUpload(c, h.limiter, h.audit, job.ID) {
		return
	}
	in, ok := readUpload(c, h.maxBytes)
	if !ok {
		return
	}
	r, err := h.resumeUC.Upload(c.Request.Context(), job.ID, in)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusAccepted, "Application received", gin.H{
		"resume_id": r.ID,
		"status":    r.Status,
		"job_title": job.Title,
	})
}
