package v1

import (
	"net/http"

	"go-screening-backend/internal/delivery/http/response"
	"go-screening-backend/internal/domain"

	"github.com/gin-gonic/gin"
)

type BulkHandler struct {
	bulkUC domain.BulkUsecase
}

func NewBulkHandler(jobs *gin.RouterGroup, bulkUC domain.BulkUsecase) {
	handler := &BulkHandler{bulkUC: bulkUC}

	bulk := jobs.Group("/resumes/bulk")
	{
		bulk.POST("/shortlist", handler.Shortlist)
		bulk.POST("/group", handler.AssignGroup)
		bulk.POST("/rerank", handler.Rerank)
	}
}

// Shortlist godoc
// @Summary      Set the shortlist flag on many resumes
// @Description  Every id gets its own result item; the request succeeds even when some items fail.
// @Tags         bulk
// @Accept       json
// @Produce      json
// @Param        jobId  path      int                          true  "Job ID"
// @Param        body   body      domain.BulkShortlistRequest  true  "Ids and flag"
// @Success      200    {object}  response.Response
// @Failure      400    {object}  response.Response
// @Router       /jobs/{jobId}/resumes/bulk/shortlist [post]
// @Security     BearerAuth
func (h *BulkHandler) Shortlist(c *gin.Context) {
	var req domain.BulkShortlistRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.bulkUC.BulkShortlist(c.Request.Context(), jobID(c), req.ResumeIDs, *req.Shortlisted)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Bulk shortlist applied", res)
}

// AssignGroup godoc
// @Summary      Assign a group label to many resumes
// @Tags         bulk
// @Accept       json
// @Produce      json
// @Param        jobId  path      int                      true  "Job ID"
// @Param        body   body      domain.BulkGroupRequest  true  "Ids and label"
// @Success      200    {object}  response.Response
// @Failure      400    {object}  response.Response
// @Router       /jobs/{jobId}/resumes/bulk/group [post]
// @Security     BearerAuth
func (h *BulkHandler) AssignGroup(c *gin.Context) {
	var req domain.BulkGroupRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.bulkUC.AssignGroup(c.Request.Context(), jobID(c), req.ResumeIDs, req.Label)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Group assigned", res)
}

func (h *BulkHandler) Rerank(c *gin.Context) {
	var req domain.BulkRerankRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.bulkUC.BulkRecompute(c.Request.Context(), jobID(c), req.ResumeIDs)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Ranking recomputed", res)
}
