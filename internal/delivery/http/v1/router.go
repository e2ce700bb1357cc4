package v1

import (
	"net/http"

	"go-screening-backend/config"
	"go-screening-backend/internal/delivery/http/middleware"
	"go-screening-backend/internal/delivery/http/response"
	"go-screening-backend/internal/domain"
	"go-screening-backend/internal/notifier"
	"go-screening-backend/internal/usecase"
	"go-screening-backend/pkg/auth"
	"go-screening-backend/pkg/security"
	"go-screening-backend/pkg/validation"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

type RouterDeps struct {
	ResumeUC   domain.ResumeUsecase
	RankingUC  domain.RankingUsecase
	BulkUC     domain.BulkUsecase
	VerixUC    domain.VerixUsecase
	JobUC      domain.JobUsecase
	AnalysisUC domain.AnalysisUsecase
	HealthUC   usecase.HealthUsecase

	Hub           *notifier.Hub
	Verifier      *auth.Verifier
	RateLimiter   *middleware.RateLimiter
	UploadLimiter *security.UploadLimiter
	Audit         *security.AuditLogger
	Config        *config.Config
	Log           *zap.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		validation.RegisterValidators(v)
	}

	r := gin.New()

	// Global Middlewares
	r.Use(middleware.CORSMiddleware(deps.Config.IsProduction(), deps.Config.FrontendURL, deps.Config.PublicBaseURL)) // CORS must be first!
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.Use(middleware.RequestID())
	r.Use(middleware.SecurityHeadersMiddleware(deps.Config.IsProduction()))
	r.Use(middleware.ErrorHandler(deps.Log, deps.Audit))

	v1 := r.Group("/v1")

	// Health Check
	v1.GET("/health", func(c *gin.Context) {
		checks := map[string]string{"status": "ok"}
		if deps.HealthUC != nil {
			checks = deps.HealthUC.Check(c.Request.Context())
		}
		if checks["status"] != "ok" {
			response.Error(c, http.StatusServiceUnavailable, "System degraded", checks)
			return
		}
		response.Success(c, http.StatusOK, "System operational", checks)
	})

	// Swagger
	v1.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Candidate-facing routes, authenticated by signed tokens in the path
	public := v1.Group("/public")
	public.Use(deps.RateLimiter.Middleware(middleware.PublicRateLimitConfig()))

	// Recruiter routes, scoped to one job
	jobs := v1.Group("/jobs/:jobId")
	jobs.Use(
		deps.RateLimiter.Middleware(middleware.DefaultRateLimitConfig()),
		middleware.AuthMiddleware(deps.Verifier, deps.Audit),
		middleware.JobScope(deps.Audit),
	)
	{
		uploadLimit := middleware.UploadLimit(deps.UploadLimiter, deps.Audit)

		NewResumeHandler(jobs, uploadLimit, deps.ResumeUC, deps.BulkUC, deps.Config.UploadMaxBytes)
		NewBulkHandler(jobs, deps.BulkUC)
		NewRankingHandler(jobs, deps.RankingUC)
		NewAnalysisHandler(jobs, deps.AnalysisUC)
		NewJobHandler(public, jobs, JobHandlerDeps{
			JobUC:    deps.JobUC,
			ResumeUC: deps.ResumeUC,
			Limiter:  deps.UploadLimiter,
			Audit:    deps.Audit,
			MaxBytes: deps.Config.UploadMaxBytes,
		})
		NewVerixHandler(public, jobs, deps.VerixUC, deps.Audit)
		NewStreamHandler(jobs, deps.Hub, deps.ResumeUC, StreamConfig{
			Heartbeat:     deps.Config.StreamHeartbeat,
			RetryAttempts: deps.Config.SnapshotRetryAttempts,
			RetryBase:     deps.Config.SnapshotRetryBase,
		}, deps.Log)
	}

	return r
}
