package v1

import (
	"net/http"

	"go-screening-backend/internal/delivery/http/response"
	"go-screening-backend/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type RankingHandler struct {
	rankingUC domain.RankingUsecase
}

func NewRankingHandler(jobs *gin.RouterGroup, rankingUC domain.RankingUsecase) {
	handler := &RankingHandler{rankingUC: rankingUC}

	jobs.POST("/ranking/recompute", handler.Recompute)
	jobs.PUT("/weights", handler.UpdateWeights)
}

type RecomputeRequest struct {
	ResumeIDs []uuid.UUID `json:"resume_ids" binding:"omitempty,max=500"`
}

// Recompute godoc
// @Summary      Recompute the job ranking
// @Description  Ranks every analyzed resume of the job. An optional id list only restricts which entries are returned.
// @Tags         ranking
// @Accept       json
// @Produce      json
// @Param        jobId  path      int               true   "Job ID"
// @Param        body   body      RecomputeRequest  false  "Optional subset"
// @Success      200    {object}  response.Response
// @Failure      409    {object}  response.Response
// @Router       /jobs/{jobId}/ranking/recompute [post]
// @Security     BearerAuth
func (h *RankingHandler) Recompute(c *gin.Context) {
	var req RecomputeRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	res, err := h.rankingUC.RecomputeRanking(c.Request.Context(), jobID(c), req.ResumeIDs)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Ranking recomputed", res)
}

// UpdateWeights godoc
// @Summary      Replace the scoring weights of a job
// @Description  Weights must be non-negative and sum to 1. The ranking is flagged stale.
// @Tags         ranking
// @Accept       json
// @Produce      json
// @Param        jobId  path      int                    true  "Job ID"
// @Param        body   body      domain.ScoringWeights  true  "Weights"
// @Success      200    {object}  response.Response
// @Failure      400    {object}  response.Response
// @Router       /jobs/{jobId}/weights [put]
// @Security     BearerAuth
func (h *RankingHandler) UpdateWeights(c *gin.Context) {
	var weights domain.ScoringWeights
	if !bindJSON(c, &weights) {
		return
	}
	job, err := h.rankingUC.UpdateWeights(c.Request.Context(), jobID(c), weights)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Weights updated", job)
}
