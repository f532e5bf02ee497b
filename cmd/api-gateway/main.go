package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"

	_ "github.com/docuvault/docuvault-api/api/swagger"
	"github.com/docuvault/docuvault-api/internal/handler"
	"github.com/docuvault/docuvault-api/internal/repository"
	"github.com/docuvault/docuvault-api/internal/service"
	"github.com/docuvault/docuvault-api/pkg/cache"
	"github.com/docuvault/docuvault-api/pkg/config"
	"github.com/docuvault/docuvault-api/pkg/database"
	"github.com/docuvault/docuvault-api/pkg/jobs"
	"github.com/docuvault/docuvault-api/pkg/logger"
	"github.com/docuvault/docuvault-api/pkg/storage"
)

// @title DocuVault API
// @version 1.0.0
// @description Role-based document management with versioning, comments and secure downloads
// @BasePath /api/v1
// @schemes http

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(ctx, db.DB); err != nil {
			logr.Sugar().Fatalw("failed to run migrations", "error", err)
		}
	}

	metrics := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, continuing without cache", "error", err)
		} else {
			defer redisClient.Close() //nolint:errcheck
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			cacheSvc = service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, true)
		}
	}

	var (
		store  storage.BlobStore
		signer *storage.URLSigner
	)
	switch cfg.Storage.Driver {
	case config.StorageDriverS3:
		store, err = storage.NewS3Store(ctx, cfg.Storage.Region, cfg.Storage.Bucket, cfg.Storage.Prefix)
		if err != nil {
			logr.Sugar().Fatalw("failed to init s3 storage", "error", err)
		}
	default:
		signer = storage.NewURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)
		store, err = storage.NewLocalStore(cfg.Storage.LocalDir, cfg.Storage.PublicBaseURL, signer)
		if err != nil {
			logr.Sugar().Fatalw("failed to init local storage", "error", err)
		}
	}

	janitor := service.NewBlobCleanupService(store, jobs.QueueConfig{
		Workers:    cfg.Cleanup.Workers,
		MaxRetries: cfg.Cleanup.MaxRetries,
		RetryDelay: cfg.Cleanup.RetryDelay,
		Logger:     logr,
	}, logr)
	janitor.Start(ctx)
	defer janitor.Stop()

	userRepo := repository.NewUserRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	folderRepo := repository.NewFolderRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	commentRepo := repository.NewCommentRepository(db)

	validate := validator.New()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "docuvault-api",
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	accessSvc := service.NewAccessService(categoryRepo, userRepo, cacheSvc, validate, logr)
	categorySvc := service.NewCategoryService(categoryRepo, accessSvc, userRepo, cacheSvc, janitor, validate, logr)
	folderSvc := service.NewFolderService(folderRepo, accessSvc, userRepo, cacheSvc, janitor, validate, logr)
	documentSvc := service.NewDocumentService(documentRepo, folderRepo, accessSvc, userRepo, store, janitor, metrics, cfg.Uploads, validate, logr)
	commentSvc := service.NewCommentService(commentRepo, documentSvc, userRepo, validate, logr)
	downloadSvc := service.NewDownloadService(documentSvc, documentRepo, store, userRepo, metrics, cfg.Storage.SignedURLTTL, logr)
	exportSvc := service.NewExportService(categoryRepo, nil, nil, logr)

	handlers := handler.Handlers{
		Auth:      handler.NewAuthHandler(authSvc),
		Users:     handler.NewUserHandler(userSvc),
		Category:  handler.NewCategoryHandler(categorySvc, accessSvc),
		Folder:    handler.NewFolderHandler(folderSvc),
		Document:  handler.NewDocumentHandler(documentSvc, cfg.Uploads.MaxFileSizeBytes),
		Comment:   handler.NewCommentHandler(commentSvc),
		Download:  handler.NewDownloadHandler(downloadSvc, logr),
		Report:    handler.NewReportHandler(exportSvc),
		Metrics:   handler.NewMetricsHandler(metrics),
		AuthSvc:   authSvc,
		MetricSvc: metrics,
	}
	if signer != nil {
		handlers.Blob = handler.NewBlobHandler(store, signer, logr)
	}

	r := handler.NewRouter(cfg, logr, handlers)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
