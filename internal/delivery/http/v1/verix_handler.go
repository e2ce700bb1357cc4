package v1

import (
	"net/http"

	"go-screening-backend/internal/delivery/http/response"
	"go-screening-backend/internal/domain"
	"go-screening-backend/pkg/security"

	"github.com/gin-gonic/gin"
)

type VerixHandler struct {
	verixUC domain.VerixUsecase
	audit   *security.AuditLogger
}

type SubmitAnswersRequest struct {
	Answers []domain.VerixAnswer `json:"answers" binding:"required,min=1,max=20,dive"`
}

func NewVerixHandler(public *gin.RouterGroup, jobs *gin.RouterGroup, verixUC domain.VerixUsecase, audit *security.AuditLogger) {
	handler := &VerixHandler{verixUC: verixUC, audit: audit}

	jobs.GET("/verix/:id", handler.Get)
	jobs.POST("/verix/:id/retry", handler.Retry)

	public.GET("/verix/:token", handler.Open)
	public.POST("/verix/:token/answers", handler.Submit)
}

// Get godoc
// @Summary      Verix conversation detail
// @Tags         verix
// @Produce      json
// @Param        jobId  path      int     true  "Job ID"
// @Param        id     path      string  true  "Conversation ID"
// @Success      200    {object}  response.Response
// @Failure      404    {object}  response.Response
// @Router       /jobs/{jobId}/verix/{id} [get]
// @Security     BearerAuth
func (h *VerixHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id", "Verix conversation")
	if !ok {
		return
	}
	detail, err := h.verixUC.Get(c.Request.Context(), jobID(c), id)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Verix conversation", detail)
}

// Retry godoc
// @Summary      Re-send the Verix invitation
// @Description  Allowed for failed or expired conversations. A fresh link replaces the old one.
// @Tags         verix
// @Produce      json
// @Param        jobId  path      int     true  "Job ID"
// @Param        id     path      string  true  "Conversation ID"
// @Success      200    {object}  response.Response
// @Failure      409    {object}  response.Response
// @Router       /jobs/{jobId}/verix/{id}/retry [post]
// @Security     BearerAuth
func (h *VerixHandler) Retry(c *gin.Context) {
	id, ok := uuidParam(c, "id", "Verix conversation")
	if !ok {
		return
	}
	detail, err := h.verixUC.Retry(c.Request.Context(), jobID(c), id)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Verix invitation re-sent", detail)
}

// Open godoc
// @Summary      Candidate view of a Verix conversation
// @Tags         public
// @Produce      json
// @Param        token  path      string  true  "Candidate token"
// @Success      200    {object}  response.Response
// @Failure      401    {object}  response.Response
// @Failure      410    {object}  response.Response
// @Router       /public/verix/{token} [get]
func (h *VerixHandler) Open(c *gin.Context) {
	view, err := h.verixUC.OpenByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.rejected(c, "open")
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Verix questions", view)
}

// Submit godoc
// @Summary      Submit Verix answers
// @Description  Answers to questions already answered are skipped and listed in the reply.
// @Tags         public
// @Accept       json
// @Produce      json
// @Param        token  path      string                true  "Candidate token"
// @Param        body   body      SubmitAnswersRequest  true  "Answers"
// @Success      200    {object}  response.Response
// @Failure      400    {object}  response.Response
// @Failure      410    {object}  response.Response
// @Router       /public/verix/{token}/answers [post]
func (h *VerixHandler) Submit(c *gin.Context) {
	var req SubmitAnswersRequest
	if !bindJSON(c, &req) {
		return
	}
	view, err := h.verixUC.SubmitAnswers(c.Request.Context(), c.Param("token"), req.Answers)
	if err != nil {
		h.rejected(c, "submit")
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Answers recorded", view)
}

func (h *VerixHandler) rejected(c *gin.Context, action string) {
	h.audit.Log(c.Request.Context(), security.SecurityEvent{
		Event:     security.EventCandidateToken,
		IP:        c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
		RequestID: c.GetString(string(domain.KeyRequestID)),
		Details:   map[string]interface{}{"kind": "verix", "action": action, "result": "rejected"},
	})
}
