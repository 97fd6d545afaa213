package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	pkgerrors "github.com/teknokomo/universo-platformo-backend/internal/pkg/errors"
	"github.com/teknokomo/universo-platformo-backend/internal/pkg/logger"
	"github.com/teknokomo/universo-platformo-backend/internal/platform/apierr"
	"github.com/teknokomo/universo-platformo-backend/internal/platform/pgerr"
	"github.com/teknokomo/universo-platformo-backend/internal/repos"
	"github.com/teknokomo/universo-platformo-backend/internal/template"
	"github.com/teknokomo/universo-platformo-backend/internal/types"
)

type TemplateImportResult struct {
	TemplateID          string `json:"templateId"`
	TemplateVersionID   string `json:"templateVersionId"`
	Codename            string `json:"codename"`
	VersionLabel        string `json:"versionLabel"`
	MinStructureVersion int    `json:"minStructureVersion"`
}

type TemplateService interface {
	// Import parses a JSON or YAML manifest document, validates it, and
	// stores it as a new immutable template version. Re-importing an
	// existing (codename, version) pair is a conflict, never an overwrite.
	Import(ctx context.Context, raw []byte) (*TemplateImportResult, error)
	ListVersions(ctx context.Context, codename string) ([]*types.TemplateVersion, error)
}

type templateService struct {
	db        *gorm.DB
	log       *logger.Logger
	templates repos.TemplateRepo
	versions  repos.TemplateVersionRepo
	validate  template.Validator
}

func NewTemplateService(
	db *gorm.DB,
	baseLog *logger.Logger,
	templates repos.TemplateRepo,
	versions repos.TemplateVersionRepo,
	validate template.Validator,
) TemplateService {
	if validate == nil {
		validate = template.ValidateManifest
	}
	return &templateService{
		db:        db,
		log:       baseLog.With("service", "TemplateService"),
		templates: templates,
		versions:  versions,
		validate:  validate,
	}
}

func (s *templateService) Import(ctx context.Context, raw []byte) (*TemplateImportResult, error) {
	m, err := template.ParseManifest(raw)
	if err != nil {
		return nil, apierr.New(http.StatusBadRequest, apierr.CodeManifestInvalid, err)
	}
	if err := s.validate(m); err != nil {
		return nil, apierr.New(http.StatusBadRequest, apierr.CodeManifestInvalid, err)
	}

	// Manifests persist canonically as JSON regardless of import format.
	canonical, err := template.CanonicalJSON(m)
	if err != nil {
		return nil, err
	}

	var result *TemplateImportResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tpl, err := s.templates.GetByCodename(ctx, tx, m.Codename)
		if errors.Is(err, pkgerrors.ErrNotFound) {
			created, cerr := s.templates.Create(ctx, tx, []*types.Template{{
				Codename: m.Codename,
				Name:     localizedJSON(m.Name),
			}})
			if cerr != nil {
				return pgerr.Classify(cerr)
			}
			tpl = created[0]
		} else if err != nil {
			return err
		}

		if _, err := s.versions.GetByLabel(ctx, tx, tpl.ID, m.Version); err == nil {
			return apierr.Newf(http.StatusConflict, apierr.CodeManifestInvalid,
				"template %s version %s already exists; versions are immutable", m.Codename, m.Version)
		} else if !errors.Is(err, pkgerrors.ErrNotFound) {
			return err
		}

		created, err := s.versions.Create(ctx, tx, []*types.TemplateVersion{{
			TemplateID:          tpl.ID,
			VersionLabel:        m.Version,
			MinStructureVersion: m.MinStructureVersion,
			Content:             datatypes.JSON(canonical),
		}})
		if err != nil {
			if pgerr.IsUniqueViolation(err) {
				return apierr.Newf(http.StatusConflict, apierr.CodeManifestInvalid,
					"template %s version %s already exists", m.Codename, m.Version)
			}
			return pgerr.Classify(err)
		}

		result = &TemplateImportResult{
			TemplateID:          tpl.ID.String(),
			TemplateVersionID:   created[0].ID.String(),
			Codename:            m.Codename,
			VersionLabel:        m.Version,
			MinStructureVersion: m.MinStructureVersion,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("template version imported", "codename", result.Codename, "version", result.VersionLabel)
	return result, nil
}

func (s *templateService) ListVersions(ctx context.Context, codename string) ([]*types.TemplateVersion, error) {
	tpl, err := s.templates.GetByCodename(ctx, nil, codename)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			return nil, apierr.Newf(http.StatusNotFound, apierr.CodeTemplateVersionNotFound,
				"template %s not found", codename)
		}
		return nil, err
	}
	return s.versions.ListForTemplate(ctx, nil, tpl.ID)
}

func localizedJSON(name map[string]string) datatypes.JSON {
	if len(name) == 0 {
		return nil
	}
	raw, err := json.Marshal(name)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
