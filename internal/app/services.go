package app

import (
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/teknokomo/universo-platformo-backend/internal/history"
	"github.com/teknokomo/universo-platformo-backend/internal/migration"
	"github.com/teknokomo/universo-platformo-backend/internal/pkg/logger"
	"github.com/teknokomo/universo-platformo-backend/internal/services"
	"github.com/teknokomo/universo-platformo-backend/internal/structure"
	"github.com/teknokomo/universo-platformo-backend/internal/template"
)

type Services struct {
	Migration services.MigrationService
	Template  services.TemplateService

	Orchestrator *migration.Orchestrator
	Catalog      *structure.Catalog
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos, cache *redis.Client) Services {
	log.Info("Wiring services...")

	// The structure catalog is built once here and injected everywhere;
	// nothing mutates it afterwards.
	catalog := structure.NewCatalog(structure.DefaultVersions())
	applier := structure.NewApplier(log)
	hist := history.NewStore(db, log)
	migrator := structure.NewMigrator(db, catalog, applier, hist, log)

	seeder := template.NewSeeder(db, log)
	seedMigrator := template.NewSeedMigrator(db, seeder, log)
	cleanup := template.NewCleanupService(db, log)

	orchestrator := migration.NewOrchestrator(
		db,
		catalog,
		migrator,
		seeder,
		seedMigrator,
		cleanup,
		hist,
		reposet.Metahub,
		reposet.Branch,
		reposet.TemplateVersion,
		cache,
		migration.Options{
			LockWait:  cfg.ApplyLockWait,
			LockPoll:  cfg.ApplyLockPoll,
			StatusTTL: cfg.StatusCacheTTL,
		},
		log,
	)

	return Services{
		Migration:    services.NewMigrationService(orchestrator, log),
		Template:     services.NewTemplateService(db, log, reposet.Template, reposet.TemplateVersion, template.ValidateManifest),
		Orchestrator: orchestrator,
		Catalog:      catalog,
	}
}
