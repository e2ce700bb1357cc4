package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go-screening-backend/config"
	v1 "go-screening-backend/internal/delivery/http/v1"
	"go-screening-backend/internal/delivery/http/middleware"
	"go-screening-backend/internal/domain"
	"go-screening-backend/internal/notifier"
	"go-screening-backend/internal/pipeline"
	"go-screening-backend/internal/repository/postgres"
	"go-screening-backend/internal/scoring"
	"go-screening-backend/internal/usecase"
	"go-screening-backend/pkg/analyzer"
	"go-screening-backend/pkg/auth"
	"go-screening-backend/pkg/broker"
	"go-screening-backend/pkg/database"
	"go-screening-backend/pkg/email"
	"go-screening-backend/pkg/logger"
	"go-screening-backend/pkg/parser"
	"go-screening-backend/pkg/redis"
	"go-screening-backend/pkg/security"
	"go-screening-backend/pkg/security/antivirus"
	"go-screening-backend/pkg/storage"
	"go-screening-backend/pkg/token"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// @title           Resume Screening API
// @version         1.0
// @description     Resume ingestion, AI scoring, ranking and Verix trust verification for recruiters.
// @host            localhost:8080
// @BasePath        /v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Setup Logger
	zl := logger.Init(cfg.LogJSON, cfg.LogDebug)
	defer func() { _ = zl.Sync() }()
	zl.Info("Starting screening backend", zap.String("port", cfg.Port), zap.String("env", cfg.AppEnv))
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Setup Database
	dbPool, err := database.NewPostgresConnection(ctx, cfg.DBUrl, database.PoolOptions{
		MaxConns: int32(cfg.WorkerCount*2 + 10),
	}, zl)
	if err != nil {
		zl.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer dbPool.Close()

	// 4. Redis (optional): cross-instance sequencing, relay and rate limits
	var redisClient *goredis.Client
	redisClient, err = redis.Connect(ctx, redis.Config{
		URL:      cfg.UpstashRedisURL,
		Password: cfg.UpstashRedisPassword,
		PoolSize: 10,
	})
	switch {
	case errors.Is(err, redis.ErrNotConfigured):
		redisClient = nil
	case err != nil:
		zl.Warn("Redis unavailable, falling back to in-process state", zap.Error(err))
		redisClient = nil
	default:
		defer redisClient.Close()
	}

	// 5. Notifier
	var seq notifier.Sequencer = notifier.NewMemorySequencer()
	if redisClient != nil {
		seq = notifier.NewRedisSequencer(redisClient)
	}
	hub := notifier.NewHub(seq, cfg.NotifierBuffer, zl.Named("notifier"))
	var relay *notifier.RedisRelay
	if redisClient != nil {
		relay = notifier.NewRedisRelay(redisClient, hub, zl.Named("relay"))
		if err := relay.Start(ctx); err != nil {
			zl.Warn("Event relay disabled", zap.Error(err))
			relay = nil
		}
	}

	// 6. Security
	audit := security.NewAuditLogger(zl, "screening-backend", cfg.AppEnv)
	audit.SetPersistFunc(security.NewEventStore(dbPool).Save)
	uploadLimiter := security.NewUploadLimiter(redisClient, cfg.UploadPerMinute, cfg.UploadPerDay)
	rateLimiter := middleware.NewRateLimiter(redisClient, audit)

	var scanner antivirus.Scanner = antivirus.Disabled{}
	if cfg.ClamAVAddress != "" {
		scanner = antivirus.NewClamAVScanner(cfg.ClamAVAddress, cfg.ClamAVTimeout)
		if !scanner.Available(ctx) {
			zl.Warn("ClamAV not reachable; uploads will be rejected until it is", zap.String("address", cfg.ClamAVAddress))
		}
	}

	// 7. Storage
	healthChecks := map[string]usecase.HealthCheck{
		"database": dbPool.Ping,
	}
	if redisClient != nil {
		healthChecks["redis"] = func(ctx context.Context) error { return redis.HealthCheck(ctx, redisClient) }
	}

	var fileStorage domain.FileStorage
	if cfg.S3Bucket != "" {
		s3, err := storage.NewS3Storage(ctx, storage.Config{
			Provider:        storage.Provider(cfg.S3Provider),
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Endpoint:        cfg.S3Endpoint,
			PresignTTL:      cfg.PresignTTL,
		})
		if err != nil {
			zl.Fatal("Failed to init object storage", zap.Error(err))
		}
		fileStorage = s3
		healthChecks["storage"] = s3.Ping
	} else {
		zl.Warn("S3_BUCKET not set, resumes are kept in memory")
		fileStorage = storage.NewMemoryStorage(cfg.PublicBaseURL + "/v1/files")
	}

	// 8. Analyzer and parser
	gemini, err := analyzer.NewGemini(ctx, analyzer.Config{
		APIKey:     cfg.GeminiAPIKey,
		Model:      cfg.GeminiModel,
		Timeout:    cfg.AnalyzerTimeout,
		MaxRetries: cfg.AnalyzerMaxRetries,
	}, zl.Named("analyzer"))
	if err != nil {
		zl.Fatal("Failed to init analyzer", zap.Error(err))
	}
	extractor := parser.NewExtractor(0)

	// 9. Queue
	var queue domain.TaskQueue
	switch cfg.QueueDriver {
	case "rabbitmq":
		mq, err := broker.NewRabbitMQ(cfg.RabbitMQURL, cfg.QueueName, cfg.WorkerCount, zl.Named("rabbitmq"))
		if err != nil {
			zl.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		queue = mq
	default:
		queue = pipeline.NewMemoryQueue(cfg.QueueBuffer)
	}
	leases := pipeline.NewLeaseArena()

	// 10. Mail; a nil Mailer hands Verix links to the recruiter instead
	var mailer domain.Mailer
	if svc := email.NewEmailService(cfg); svc.IsConfigured() {
		mailer = svc
	} else {
		zl.Warn("Email service not configured - Verix links are shown to recruiters only")
	}

	// 11. Setup Repositories
	jobRepo := postgres.NewJobRepository(dbPool)
	resumeRepo := postgres.NewResumeRepository(dbPool)
	analysisRepo := postgres.NewAnalysisRepository(dbPool)
	verixRepo := postgres.NewVerixRepository(dbPool)

	// 12. Setup UseCases
	thresholds := scoring.Thresholds{
		StrongYes: cfg.RecommendStrongYes,
		Yes:       cfg.RecommendYes,
		Maybe:     cfg.RecommendMaybe,
		No:        cfg.RecommendNo,
	}
	tokens := token.NewManager(cfg.VerixTokenSecret, cfg.ApplicationTokenSecret)

	rankingUC := usecase.NewRankingUsecase(resumeRepo, jobRepo, hub, thresholds, cfg.AutoRerank, zl.Named("ranking"))
	verixUC := usecase.NewVerixUsecase(usecase.VerixDeps{
		Conversations:   verixRepo,
		Resumes:         resumeRepo,
		Jobs:            jobRepo,
		Analyses:        analysisRepo,
		Analyzer:        gemini,
		Mailer:          mailer,
		Tokens:          tokens,
		Leases:          leases,
		Ranking:         rankingUC,
		Publisher:       hub,
		Thresholds:      thresholds,
		Log:             zl.Named("verix"),
		TrustFloor:      cfg.VerixTrustFloor,
		TokenTTL:        cfg.VerixTokenTTL,
		BlendWeight:     cfg.VerixBlendWeight,
		MinQuality:      cfg.VerixMinQuality,
		SystemQuestions: cfg.VerixSystemQuestions,
		PublicBaseURL:   cfg.PublicBaseURL,
		LeaseWait:       cfg.LeaseWait,
	})
	resumeUC := usecase.NewResumeUsecase(usecase.ResumeDeps{
		Resumes:            resumeRepo,
		Jobs:               jobRepo,
		Verix:              verixRepo,
		Storage:            fileStorage,
		Queue:              queue,
		Leases:             leases,
		Publisher:          hub,
		Sequences:          hub,
		Scanner:            scanner,
		Audit:              audit,
		Log:                zl.Named("resumes"),
		MaxUploadBytes:     cfg.UploadMaxBytes,
		AutoAnalyze:        cfg.AutoAnalyze,
		EnqueueConcurrency: cfg.BulkConcurrency,
	})
	bulkUC := usecase.NewBulkUsecase(usecase.BulkDeps{
		Resumes:     resumeRepo,
		Jobs:        jobRepo,
		Ranking:     rankingUC,
		Leases:      leases,
		Publisher:   hub,
		Concurrency: cfg.BulkConcurrency,
		LeaseWait:   cfg.LeaseWait,
		Log:         zl.Named("bulk"),
	})
	jobUC := usecase.NewJobUsecase(jobRepo, rankingUC, tokens, cfg.PublicBaseURL, cfg.ApplicationLinkTTL)
	analysisUC := usecase.NewAnalysisUsecase(analysisRepo, resumeRepo, jobRepo, gemini, thresholds, zl.Named("analysis"))

	processor := usecase.NewProcessor(usecase.ProcessorDeps{
		Resumes:     resumeRepo,
		Jobs:        jobRepo,
		Analyses:    analysisRepo,
		Storage:     fileStorage,
		Extractor:   extractor,
		Analyzer:    gemini,
		Ranking:     rankingUC,
		Verix:       verixUC,
		Publisher:   hub,
		Scanner:     scanner,
		Audit:       audit,
		Thresholds:  thresholds,
		Log:         zl.Named("processor"),
		AutoAnalyze: cfg.AutoAnalyze,
	})

	// 13. Workers
	pool := pipeline.NewPool(pipeline.PoolConfig{
		Workers:     cfg.WorkerCount,
		LeaseWait:   cfg.LeaseWait,
		TaskTimeout: cfg.ProcessingTimeout,
		MaxAttempts: 3,
	}, queue, leases, processor, zl.Named("pool"))
	if err := pool.Start(ctx); err != nil {
		zl.Fatal("Failed to start worker pool", zap.Error(err))
	}
	reaper := pipeline.NewReaper(resumeUC, cfg.ReaperInterval, cfg.ProcessingTimeout, zl.Named("reaper"))
	reaper.Start(ctx)

	// 14. Auth
	var keys *auth.KeySet
	if cfg.JWKSURL != "" {
		keys = auth.NewKeySet(cfg.JWKSURL, cfg.JWKSRefresh)
	}
	verifier := auth.NewVerifier(cfg.JWTSecret, keys)

	// 15. Setup Router
	router := v1.NewRouter(v1.RouterDeps{
		ResumeUC:      resumeUC,
		RankingUC:     rankingUC,
		BulkUC:        bulkUC,
		VerixUC:       verixUC,
		JobUC:         jobUC,
		AnalysisUC:    analysisUC,
		HealthUC:      usecase.NewHealthUsecase(healthChecks),
		Hub:           hub,
		Verifier:      verifier,
		RateLimiter:   rateLimiter,
		UploadLimiter: uploadLimiter,
		Audit:         audit,
		Config:        cfg,
		Log:           zl,
	})

	// 16. Start Server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Error("Listen failed", zap.Error(err))
			stop()
		}
	}()

	// Graceful Shutdown
	<-ctx.Done()
	zl.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("Server forced to shutdown", zap.Error(err))
		_ = srv.Close()
	}

	reaper.Stop()
	pool.Stop()
	if err := queue.Close(); err != nil {
		zl.Warn("Queue close failed", zap.Error(err))
	}
	if relay != nil {
		_ = relay.Close()
	}

	zl.Info("Server exiting")
}
