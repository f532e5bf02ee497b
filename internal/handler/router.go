package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/docuvault/docuvault-api/internal/middleware"
	"github.com/docuvault/docuvault-api/internal/service"
	"github.com/docuvault/docuvault-api/pkg/config"
	"github.com/docuvault/docuvault-api/pkg/logger"
	corsmiddleware "github.com/docuvault/docuvault-api/pkg/middleware/cors"
	reqidmiddleware "github.com/docuvault/docuvault-api/pkg/middleware/requestid"
)

// Handlers aggregates the HTTP handlers wired by the router.
type Handlers struct {
	Auth      *AuthHandler
	Users     *UserHandler
	Category  *CategoryHandler
	Folder    *FolderHandler
	Document  *DocumentHandler
	Comment   *CommentHandler
	Download  *DownloadHandler
	Blob      *BlobHandler
	Report    *ReportHandler
	Metrics   *MetricsHandler
	AuthSvc   *service.AuthService
	MetricSvc *service.MetricsService
}

// NewRouter builds the gin engine with all middleware and routes attached.
func NewRouter(cfg *config.Config, logr *zap.Logger, h Handlers) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	if h.MetricSvc != nil {
		r.Use(middleware.Metrics(h.MetricSvc))
	}

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", h.Metrics.Prometheus)

	if h.Blob != nil {
		r.GET("/blobs/:token", h.Blob.Serve)
	}

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	prefix := cfg.APIPrefix
	if prefix == "" {
		prefix = "/api/v1"
	}
	api := r.Group(prefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", h.Auth.Login)
		auth.POST("/refresh", h.Auth.Refresh)
	}

	authed := api.Group("")
	authed.Use(middleware.JWT(h.AuthSvc))
	{
		authed.POST("/auth/logout", h.Auth.Logout)
		authed.PUT("/auth/password", h.Auth.ChangePassword)
		authed.GET("/auth/me", h.Auth.Me)

		users := authed.Group("/users")
		users.Use(middleware.RequireAdmin())
		{
			users.GET("", h.Users.List)
			users.POST("", h.Users.Create)
			users.GET("/:id", h.Users.Get)
			users.PUT("/:id", h.Users.Update)
			users.DELETE("/:id", h.Users.Delete)
		}

		categories := authed.Group("/categories")
		{
			categories.GET("", h.Category.List)
			categories.GET("/:id", h.Category.Get)
			categories.POST("", middleware.RequireAdmin(), h.Category.Create)
			categories.DELETE("/:id", middleware.RequireAdmin(), h.Category.Delete)

			categories.GET("/:id/grants", middleware.RequireAdmin(), h.Category.ListGrants)
			categories.PUT("/:id/grants", middleware.RequireAdmin(), h.Category.Grant)
			categories.DELETE("/:id/grants/:userId", middleware.RequireAdmin(), h.Category.Revoke)

			categories.GET("/:id/folders", h.Folder.List)
			categories.POST("/:id/folders", h.Folder.Create)
		}

		folders := authed.Group("/folders")
		{
			folders.GET("/:id", h.Folder.Get)
			folders.DELETE("/:id", h.Folder.Delete)
			folders.GET("/:id/documents", h.Document.List)
			folders.POST("/:id/documents", h.Document.Create)
		}

		documents := authed.Group("/documents")
		{
			documents.GET("/:id", h.Document.Get)
			documents.DELETE("/:id", h.Document.Delete)
			documents.POST("/:id/clone", h.Document.Clone)

			documents.GET("/:id/versions", h.Document.ListVersions)
			documents.POST("/:id/versions", h.Document.UploadVersion)
			documents.DELETE("/:id/versions/:versionId", h.Document.DeleteVersion)

			documents.GET("/:id/comments", h.Comment.List)
			documents.POST("/:id/comments", h.Comment.Create)

			documents.GET("/:id/download", h.Download.Download)
			documents.GET("/:id/versions/:versionId/download", h.Download.Download)
			documents.GET("/:id/signed-url", h.Download.DownloadURL)
		}

		comments := authed.Group("/comments")
		{
			comments.PUT("/:id", h.Comment.Update)
			comments.DELETE("/:id", h.Comment.Delete)
		}

		if cfg.Reports.Enabled && h.Report != nil {
			reports := authed.Group("/reports")
			reports.Use(middleware.RequireAdmin())
			{
				reports.GET("/storage", h.Report.Storage)
				reports.GET("/metrics", h.Metrics.Snapshot)
			}
		}
	}

	return r
}
