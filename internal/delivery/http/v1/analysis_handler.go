package v1

import (
	"net/http"

	"go-screening-backend/internal/delivery/http/response"
	"go-screening-backend/internal/domain"

	"github.com/gin-gonic/gin"
)

type AnalysisHandler struct {
	analysisUC domain.AnalysisUsecase
}

func NewAnalysisHandler(jobs *gin.RouterGroup, analysisUC domain.AnalysisUsecase) {
	handler := &AnalysisHandler{analysisUC: analysisUC}

	jobs.POST("/quick-match", handler.QuickMatch)
	jobs.GET("/analyses/:id", handler.Get)
	jobs.GET("/resumes/:id/analyses", handler.ListForResume)
}

// QuickMatch godoc
// @Summary      Score pasted resume text against the job
// @Description  Nothing is stored on a resume and the ranking is untouched.
// @Tags         analyses
// @Accept       json
// @Produce      json
// @Param        jobId  path      int                     true  "Job ID"
// @Param        body   body      domain.QuickMatchInput  true  "Resume text"
// @Success      200    {object}  response.Response
// @Failure      400    {object}  response.Response
// @Failure      503    {object}  response.Response
// @Router       /jobs/{jobId}/quick-match [post]
// @Security     BearerAuth
func (h *AnalysisHandler) QuickMatch(c *gin.Context) {
	var req domain.QuickMatchInput
	if !bindJSON(c, &req) {
		return
	}
	a, err := h.analysisUC.QuickMatch(c.Request.Context(), jobID(c), req)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Quick match", a)
}

func (h *AnalysisHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id", "Analysis")
	if !ok {
		return
	}
	a, err := h.analysisUC.Get(c.Request.Context(), jobID(c), id)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Analysis", a)
}

func (h *AnalysisHandler) ListForResume(c *gin.Context) {
	id, ok := uuidParam(c, "id", "Resume")
	if !ok {
		return
	}
	list, err := h.analysisUC.ListForResume(c.Request.Context(), jobID(c), id)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Analyses", list)
}
