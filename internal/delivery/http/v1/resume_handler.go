package v1

import (
	"io"
	"net/http"
	"strconv"

	"go-screening-backend/internal/delivery/http/response"
	"go-screening-backend/internal/domain"
	"go-screening-backend/pkg/apperror"

	"github.com/gin-gonic/gin"
)

type ResumeHandler struct {
	resumeUC domain.ResumeUsecase
	bulkUC   domain.BulkUsecase
	maxBytes int64
}

// NewResumeHandler mounts the resume routes on a job-scoped group.
func NewResumeHandler(jobs *gin.RouterGroup, uploadLimit gin.HandlerFunc, resumeUC domain.ResumeUsecase, bulkUC domain.BulkUsecase, maxBytes int64) {
	handler := &ResumeHandler{resumeUC: resumeUC, bulkUC: bulkUC, maxBytes: maxBytes}

	resumes := jobs.Group("/resumes")
	{
		resumes.GET("", handler.List)
		resumes.POST("", uploadLimit, handler.Register)
		resumes.POST("/upload-url", uploadLimit, handler.UploadURL)
		resumes.POST("/upload", uploadLimit, handler.Upload)
		resumes.POST("/analyze", handler.AnalyzeAll)
		resumes.GET("/:id", handler.Get)
		resumes.GET("/:id/download", handler.Download)
		resumes.GET("/:id/snapshot", handler.ResumeSnapshot)
		resumes.POST("/:id/analyze", handler.Analyze)
		resumes.POST("/:id/reprocess", handler.Reprocess)
		resumes.PATCH("/:id/shortlist", handler.Shortlist)
	}
	jobs.GET("/snapshot", handler.JobSnapshot)
}

type UploadURLRequest struct {
	FileName    string `json:"file_name" binding:"required,max=255"`
	ContentType string `json:"content_type" binding:"omitempty,max=100"`
}

type ShortlistRequest struct {
	Shortlisted *bool `json:"shortlisted" binding:"required"`
}

// UploadURL godoc
// @Summary      Issue a presigned upload handle
// @Tags         resumes
// @Accept       json
// @Produce      json
// @Param        jobId  path      int               true  "Job ID"
// @Param        body   body      UploadURLRequest  true  "File name and type"
// @Success      200    {object}  response.Response
// @Failure      400    {object}  response.Response
// @Router       /jobs/{jobId}/resumes/upload-url [post]
// @Security     BearerAuth
func (h *ResumeHandler) UploadURL(c *gin.Context) {
	var req UploadURLRequest
	if !bindJSON(c, &req) {
		return
	}
	handle, err := h.resumeUC.IssueUploadURL(c.Request.Context(), jobID(c), req.FileName, req.ContentType)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Upload URL issued", handle)
}

// Register godoc
// @Summary      Register a resume uploaded through a presigned URL
// @Tags         resumes
// @Accept       json
// @Produce      json
// @Param        jobId  path      int                        true  "Job ID"
// @Param        body   body      domain.UploadRegistration  true  "Uploaded object"
// @Success      202    {object}  response.Response
// @Failure      400    {object}  response.Response
// @Router       /jobs/{jobId}/resumes [post]
// @Security     BearerAuth
func (h *ResumeHandler) Register(c *gin.Context) {
	var req domain.UploadRegistration
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.resumeUC.RegisterUpload(c.Request.Context(), jobID(c), req)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusAccepted, "Resume registered", r)
}

// Upload godoc
// @Summary      Upload a resume file
// @Description  Multipart upload; the file is validated, stored and queued for parsing.
// @Tags         resumes
// @Accept       multipart/form-data
// @Produce      json
// @Param        jobId  path      int   true  "Job ID"
// @Param        file   formData  file  true  "Resume (pdf, txt)"
// @Success      202    {object}  response.Response
// @Failure      400    {object}  response.Response
// @Failure      429    {object}  response.Response
// @Router       /jobs/{jobId}/resumes/upload [post]
// @Security     BearerAuth
func (h *ResumeHandler) Upload(c *gin.Context) {
	in, ok := readUpload(c, h.maxBytes)
	if !ok {
		return
	}
	r, err := h.resumeUC.Upload(c.Request.Context(), jobID(c), in)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusAccepted, "Resume uploaded", r)
}

// readUpload pulls the "file" form field into memory, capped at maxBytes+1 so
// the usecase can report an oversized file.
func readUpload(c *gin.Context, maxBytes int64) (domain.UploadInput, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+(1<<20))
	fh, err := c.FormFile("file")
	if err != nil {
		c.Error(apperror.BadRequest("A file field is required"))
		return domain.UploadInput{}, false
	}
	f, err := fh.Open()
	if err != nil {
		c.Error(apperror.BadRequest("Unreadable upload"))
		return domain.UploadInput{}, false
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		c.Error(apperror.BadRequest("Unreadable upload"))
		return domain.UploadInput{}, false
	}
	return domain.UploadInput{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, true
}

// List godoc
// @Summary      List candidates of a job
// @Description  Ranked candidates first; rank fields are omitted for resumes that are not analyzed.
// @Tags         resumes
// @Produce      json
// @Param        jobId        path      int     true   "Job ID"
// @Param        status       query     string  false  "Status filter"
// @Param        shortlisted  query     bool    false  "Shortlist filter"
// @Param        group        query     string  false  "Group label filter"
// @Success      200          {object}  response.Response
// @Router       /jobs/{jobId}/resumes [get]
// @Security     BearerAuth
func (h *ResumeHandler) List(c *gin.Context) {
	var filter domain.CandidateFilter
	if s := c.Query("status"); s != "" {
		st, ok := domain.ParseResumeStatus(s)
		if !ok {
			c.Error(apperror.BadRequest("Unknown status filter"))
			return
		}
		filter.Status = &st
	}
	if s := c.Query("shortlisted"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			c.Error(apperror.BadRequest("shortlisted must be true or false"))
			return
		}
		filter.Shortlisted = &v
	}
	if g := c.Query("group"); g != "" {
		filter.Group = &g
	}

	list, err := h.resumeUC.GetCandidates(c.Request.Context(), jobID(c), filter)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Candidates", list)
}

// Get godoc
// @Summary      Candidate detail
// @Tags         resumes
// @Produce      json
// @Param        jobId  path      int     true  "Job ID"
// @Param        id     path      string  true  "Resume ID"
// @Success      200    {object}  response.Response
// @Failure      404    {object}  response.Response
// @Router       /jobs/{jobId}/resumes/{id} [get]
// @Security     BearerAuth
func (h *ResumeHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id", "Resume")
	if !ok {
		return
	}
	r, err := h.resumeUC.GetResume(c.Request.Context(), jobID(c), id)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Resume", r)
}

func (h *ResumeHandler) Download(c *gin.Context) {
	id, ok := uuidParam(c, "id", "Resume")
	if !ok {
		return
	}
	handle, err := h.resumeUC.DownloadURL(c.Request.Context(), jobID(c), id)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Download URL issued", handle)
}

// Analyze godoc
// @Summary      Queue one parsed resume for analysis
// @Tags         resumes
// @Produce      json
// @Param        jobId  path      int     true  "Job ID"
// @Param        id     path      string  true  "Resume ID"
// @Success      202    {object}  response.Response
// @Failure      409    {object}  response.Response
// @Router       /jobs/{jobId}/resumes/{id}/analyze [post]
// @Security     BearerAuth
func (h *ResumeHandler) Analyze(c *gin.Context) {
	id, ok := uuidParam(c, "id", "Resume")
	if !ok {
		return
	}
	r, err := h.resumeUC.Analyze(c.Request.Context(), jobID(c), id)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusAccepted, "Analysis queued", r)
}

func (h *ResumeHandler) AnalyzeAll(c *gin.Context) {
	n, err := h.resumeUC.AnalyzeAll(c.Request.Context(), jobID(c))
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusAccepted, "Analysis queued", gin.H{"queued": n})
}

// Reprocess godoc
// @Summary      Send a failed resume back through the pipeline
// @Tags         resumes
// @Produce      json
// @Param        jobId  path      int     true  "Job ID"
// @Param        id     path      string  true  "Resume ID"
// @Success      202    {object}  response.Response
// @Failure      409    {object}  response.Response
// @Router       /jobs/{jobId}/resumes/{id}/reprocess [post]
// @Security     BearerAuth
func (h *ResumeHandler) Reprocess(c *gin.Context) {
	id, ok := uuidParam(c, "id", "Resume")
	if !ok {
		return
	}
	r, err := h.resumeUC.Reprocess(c.Request.Context(), jobID(c), id)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusAccepted, "Resume requeued", r)
}

// Shortlist godoc
// @Summary      Set the shortlist flag of one resume
// @Tags         resumes
// @Accept       json
// @Produce      json
// @Param        jobId  path      int               true  "Job ID"
// @Param        id     path      string            true  "Resume ID"
// @Param        body   body      ShortlistRequest  true  "Flag"
// @Success      200    {object}  response.Response
// @Router       /jobs/{jobId}/resumes/{id}/shortlist [patch]
// @Security     BearerAuth
func (h *ResumeHandler) Shortlist(c *gin.Context) {
	id, ok := uuidParam(c, "id", "Resume")
	if !ok {
		return
	}
	var req ShortlistRequest
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.bulkUC.ToggleShortlist(c.Request.Context(), jobID(c), id, *req.Shortlisted)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Shortlist updated", r)
}

func (h *ResumeHandler) JobSnapshot(c *gin.Context) {
	snap, err := h.resumeUC.JobSnapshot(c.Request.Context(), jobID(c))
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Job snapshot", snap)
}

func (h *ResumeHandler) ResumeSnapshot(c *gin.Context) {
	id, ok := uuidParam(c, "id", "Resume")
	if !ok {
		return
	}
	snap, err := h.resumeUC.ResumeSnapshot(c.Request.Context(), jobID(c), id)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Resume snapshot", snap)
}
