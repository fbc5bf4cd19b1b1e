package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/build-biblical-leaders/bbl-api/api/swagger"
	"github.com/build-biblical-leaders/bbl-api/internal/handler"
	"github.com/build-biblical-leaders/bbl-api/internal/middleware"
	"github.com/build-biblical-leaders/bbl-api/internal/repository"
	"github.com/build-biblical-leaders/bbl-api/internal/service"
	"github.com/build-biblical-leaders/bbl-api/pkg/cache"
	"github.com/build-biblical-leaders/bbl-api/pkg/config"
	"github.com/build-biblical-leaders/bbl-api/pkg/database"
	"github.com/build-biblical-leaders/bbl-api/pkg/export"
	"github.com/build-biblical-leaders/bbl-api/pkg/logger"
	"github.com/build-biblical-leaders/bbl-api/pkg/mailer"
	corsmiddleware "github.com/build-biblical-leaders/bbl-api/pkg/middleware/cors"
	reqidmiddleware "github.com/build-biblical-leaders/bbl-api/pkg/middleware/requestid"
	"github.com/build-biblical-leaders/bbl-api/pkg/storage"
)

// @title Build Biblical Leaders API
// @version 1.0.0
// @description Learning platform backend: curriculum, progress, certificates, and community
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	inviteRepo := repository.NewInviteRepository(db)
	curriculumRepo := repository.NewCurriculumRepository(db)
	attemptRepo := repository.NewAttemptRepository(db)
	certificateRepo := repository.NewCertificateRepository(db)
	chatRepo := repository.NewChatRepository(db)
	studyRepo := repository.NewStudyRepository(db)
	contentRepo := repository.NewContentRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)

	metricsService := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		} else {
			repo := repository.NewCacheRepository(redisClient, logr)
			defer repo.Close()
			cacheRepo = repo
		}
	}
	cacheService := service.NewCacheService(cacheRepo, metricsService, cfg.Cache.TTL, logr, cfg.Cache.Enabled && cacheRepo != nil)

	mailSender, err := buildMailer(cfg, logr)
	if err != nil {
		logr.Fatal("failed to init mailer", zap.Error(err))
	}

	certificateFiles, err := storage.NewLocalStorage(cfg.Certificates.StorageDir)
	if err != nil {
		logr.Fatal("failed to init certificate storage", zap.Error(err))
	}
	certificateSigner := storage.NewSignedURLSigner(cfg.Certificates.SignedURLSecret, cfg.Certificates.SignedURLTTL)

	exportFiles, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Fatal("failed to init export storage", zap.Error(err))
	}
	exportSigner := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	// Services.
	outboxService := service.NewOutboxService(outboxRepo, mailSender, logr, service.OutboxConfig{
		Workers:      cfg.Outbox.Workers,
		MaxRetries:   cfg.Outbox.MaxRetries,
		RetryDelay:   cfg.Outbox.RetryDelay,
		PollInterval: cfg.Outbox.PollInterval,
	})

	authService := service.NewAuthService(userRepo, outboxService, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		Audience:           cfg.JWT.Audience,
		SingleSession:      cfg.JWT.SingleSession,
		VerifyLinkBaseURL:  cfg.JWT.VerifyLinkBaseURL,
		AdminEmail:         cfg.Admin.Email,
		AdminName:          cfg.Admin.Name,
		AdminPassword:      cfg.Admin.Password,
	})

	inviteService := service.NewInviteService(inviteRepo, userRepo, authService, outboxService, nil, logr, service.InviteConfig{
		TTL:         cfg.Invites.TTL,
		LinkBaseURL: cfg.Invites.LinkBaseURL,
	})

	userService := service.NewUserService(userRepo, nil, logr, cfg.Admin.Email)
	curriculumService := service.NewCurriculumService(curriculumRepo, userRepo, attemptRepo, studyRepo, cacheService, cfg.Cache.TTL, nil, logr)
	progressService := service.NewProgressService(attemptRepo, curriculumRepo, nil, logr)
	certificateService := service.NewCertificateService(certificateRepo, progressService, curriculumRepo, userRepo,
		export.NewPDFExporter(), certificateFiles, certificateSigner, cfg.Certificates.IssuerName, nil, logr)
	chatService := service.NewChatService(chatRepo, userRepo, cfg.Chat.GlobalChannelName, nil, logr)
	studyService := service.NewStudyService(studyRepo, logr)
	contentService := service.NewContentService(contentRepo, nil, logr)
	exportService := service.NewExportService(userRepo, attemptRepo, progressService, exportFiles, exportSigner, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.SignedURLTTL,
	}, logr, nil, nil)

	// Startup seeding.
	if err := authService.EnsureRootAdmin(ctx); err != nil {
		logr.Fatal("failed to seed root admin", zap.Error(err))
	}
	if err := chatService.EnsureGlobalChannel(ctx); err != nil {
		logr.Fatal("failed to seed global channel", zap.Error(err))
	}

	outboxService.Start(ctx)
	defer outboxService.Stop()

	go runAuditPruner(ctx, userRepo, cfg.Audit, logr)
	go runExportCleanup(ctx, exportService, cfg.Exports.CleanupInterval, logr)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.WithResponseMeta())
	r.Use(middleware.Metrics(metricsService))

	registerRoutes(r, cfg, &handlers{
		auth:        handler.NewAuthHandler(authService),
		user:        handler.NewUserHandler(userService),
		invite:      handler.NewInviteHandler(inviteService),
		curriculum:  handler.NewCurriculumHandler(curriculumService),
		progress:    handler.NewProgressHandler(progressService),
		certificate: handler.NewCertificateHandler(certificateService),
		chat:        handler.NewChatHandler(chatService),
		study:       handler.NewStudyHandler(studyService),
		content:     handler.NewContentHandler(contentService),
		export:      handler.NewExportHandler(exportService),
		metrics:     handler.NewMetricsHandler(metricsService),
	}, authService, userRepo)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Info("server starting", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildMailer(cfg *config.Config, logr *zap.Logger) (mailer.Mailer, error) {
	switch cfg.Mail.Backend {
	case "sendgrid":
		return mailer.NewSendgridMailer(cfg.Mail.SendgridAPIKey, cfg.Mail.FromName, cfg.Mail.FromAddress)
	default:
		return mailer.NewConsoleMailer(logr), nil
	}
}

func runAuditPruner(ctx context.Context, repo *repository.UserRepository, cfg config.AuditConfig, logr *zap.Logger) {
	ticker := time.NewTicker(cfg.PruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-cfg.Retention)
			pruned, err := repo.PruneAuditLogs(ctx, cutoff)
			if err != nil {
				logr.Warn("audit prune failed", zap.Error(err))
				continue
			}
			if pruned > 0 {
				logr.Info("pruned audit logs", zap.Int64("count", pruned))
			}
		}
	}
}

func runExportCleanup(ctx context.Context, exports *service.ExportService, interval time.Duration, logr *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := exports.Cleanup(0)
			if err != nil {
				logr.Warn("export cleanup failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				logr.Info("removed expired exports", zap.Int("count", len(removed)))
			}
		}
	}
}
