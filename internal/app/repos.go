package app

import (
	"gorm.io/gorm"

	"github.com/teknokomo/universo-platformo-backend/internal/pkg/logger"
	"github.com/teknokomo/universo-platformo-backend/internal/repos"
)

type Repos struct {
	Metahub         repos.MetahubRepo
	Branch          repos.BranchRepo
	Template        repos.TemplateRepo
	TemplateVersion repos.TemplateVersionRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Metahub:         repos.NewMetahubRepo(db, log),
		Branch:          repos.NewBranchRepo(db, log),
		Template:        repos.NewTemplateRepo(db, log),
		TemplateVersion: repos.NewTemplateVersionRepo(db, log),
	}
}
