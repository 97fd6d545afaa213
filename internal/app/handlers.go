package app

import (
	"github.com/teknokomo/universo-platformo-backend/internal/handlers"
	"github.com/teknokomo/universo-platformo-backend/internal/pkg/logger"
)

type Handlers struct {
	Migration *handlers.MigrationHandler
	Template  *handlers.TemplateHandler
}

func wireHandlers(log *logger.Logger, serviceset Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Migration: handlers.NewMigrationHandler(serviceset.Migration),
		Template:  handlers.NewTemplateHandler(serviceset.Template),
	}
}
