package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/teknokomo/universo-platformo-backend/internal/handlers"
	"github.com/teknokomo/universo-platformo-backend/internal/middleware"
)

type RouterConfig struct {
	ServiceName      string
	CORSOrigins      []string
	RequestLogger    *middleware.RequestLogger
	MigrationHandler *handlers.MigrationHandler
	TemplateHandler  *handlers.TemplateHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.RequestLogger != nil {
		router.Use(cfg.RequestLogger.Handle())
	}
	router.Use(otelgin.Middleware(cfg.ServiceName))

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5174"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthz", handlers.HealthCheck)

	api := router.Group("/api/v1")
	{
		branch := api.Group("/branches/:branchId/migration")
		branch.GET("/status", cfg.MigrationHandler.Status)
		branch.GET("/plan", cfg.MigrationHandler.Plan)
		branch.POST("/apply", cfg.MigrationHandler.Apply)
		branch.GET("/history", cfg.MigrationHandler.History)

		// Metahub-scoped mirror of the same operations; the default branch
		// is resolved server-side.
		metahub := api.Group("/metahubs/:metahubId/migration")
		metahub.GET("/status", cfg.MigrationHandler.Status)
		metahub.GET("/plan", cfg.MigrationHandler.Plan)
		metahub.POST("/apply", cfg.MigrationHandler.Apply)
		metahub.GET("/history", cfg.MigrationHandler.History)

		templates := api.Group("/templates")
		templates.POST("/import", cfg.TemplateHandler.Import)
		templates.GET("/:codename/versions", cfg.TemplateHandler.ListVersions)
	}

	return router
}
