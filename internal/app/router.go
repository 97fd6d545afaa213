package app

import (
	"github.com/gin-gonic/gin"

	"github.com/teknokomo/universo-platformo-backend/internal/middleware"
	"github.com/teknokomo/universo-platformo-backend/internal/pkg/logger"
	"github.com/teknokomo/universo-platformo-backend/internal/server"
)

func wireRouter(log *logger.Logger, cfg Config, handlerset Handlers) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		ServiceName:      cfg.ServiceName,
		CORSOrigins:      cfg.CORSOrigins,
		RequestLogger:    middleware.NewRequestLogger(log),
		MigrationHandler: handlerset.Migration,
		TemplateHandler:  handlerset.Template,
	})
}
