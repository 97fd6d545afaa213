package db

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/teknokomo/universo-platformo-backend/internal/pkg/logger"
	"github.com/teknokomo/universo-platformo-backend/internal/types"
	"github.com/teknokomo/universo-platformo-backend/internal/utils"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
	postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
	postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	postgresName := utils.GetEnv("POSTGRES_NAME", "universo", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

	serviceLog.Info("Connecting to Postgres...")
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		serviceLog.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(utils.GetEnvAsInt("POSTGRES_MAX_OPEN_CONNS", 20, log))
	sqlDB.SetMaxIdleConns(utils.GetEnvAsInt("POSTGRES_MAX_IDLE_CONNS", 5, log))
	sqlDB.SetConnMaxLifetime(time.Duration(utils.GetEnvAsInt("POSTGRES_CONN_MAX_LIFETIME_MIN", 30, log)) * time.Minute)

	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		serviceLog.Error("Failed to enable uuid-ossp extension", "error", err)
		return nil, fmt.Errorf("failed to enable uuid-ossp extension: %w", err)
	}

	return &PostgresService{db: db, log: serviceLog}, nil
}

// AutoMigrateAll creates the platform's own control-plane tables. Branch
// schemas are never touched here; the structure migrator owns them.
func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating platform tables...")
	err := s.db.AutoMigrate(
		&types.Metahub{},
		&types.Branch{},
		&types.Template{},
		&types.TemplateVersion{},
		&types.Membership{},
	)
	if err != nil {
		s.log.Error("Auto migration failed for platform tables", "error", err)
		return err
	}
	if err := s.db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS "uq_branch_metahub_codename"
		ON "branch" ("metahub_id", "codename")
		WHERE "deleted_at" IS NULL
	`).Error; err != nil {
		return fmt.Errorf("failed to add uq_branch_metahub_codename: %w", err)
	}
	if err := s.db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS "uq_template_version_label"
		ON "template_version" ("template_id", "version_label")
	`).Error; err != nil {
		return fmt.Errorf("failed to add uq_template_version_label: %w", err)
	}
	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
