package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/teknokomo/universo-platformo-backend/internal/pkg/errors"
	"github.com/teknokomo/universo-platformo-backend/internal/pkg/logger"
	"github.com/teknokomo/universo-platformo-backend/internal/platform/pgerr"
	"github.com/teknokomo/universo-platformo-backend/internal/types"
)

type TemplateVersionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, versions []*types.TemplateVersion) ([]*types.TemplateVersion, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.TemplateVersion, error)
	GetByLabel(ctx context.Context, tx *gorm.DB, templateID uuid.UUID, label string) (*types.TemplateVersion, error)
	ListForTemplate(ctx context.Context, tx *gorm.DB, templateID uuid.UUID) ([]*types.TemplateVersion, error)
	// Latest returns the newest published version of a template by creation
	// time. Semantic ordering of labels is the publisher's responsibility.
	Latest(ctx context.Context, tx *gorm.DB, templateID uuid.UUID) (*types.TemplateVersion, error)
}

type templateVersionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTemplateVersionRepo(db *gorm.DB, baseLog *logger.Logger) TemplateVersionRepo {
	repoLog := baseLog.With("repo", "TemplateVersionRepo")
	return &templateVersionRepo{db: db, log: repoLog}
}

func (tvr *templateVersionRepo) Create(ctx context.Context, tx *gorm.DB, versions []*types.TemplateVersion) ([]*types.TemplateVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = tvr.db
	}

	if len(versions) == 0 {
		return []*types.TemplateVersion{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&versions).Error; err != nil {
		return nil, pgerr.Classify(err)
	}

	return versions, nil
}

func (tvr *templateVersionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.TemplateVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = tvr.db
	}

	var result types.TemplateVersion
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.ErrNotFound
		}
		return nil, pgerr.Classify(err)
	}
	return &result, nil
}

func (tvr *templateVersionRepo) GetByLabel(ctx context.Context, tx *gorm.DB, templateID uuid.UUID, label string) (*types.TemplateVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = tvr.db
	}

	var result types.TemplateVersion
	if err := transaction.WithContext(ctx).
		Where("template_id = ? AND version_label = ?", templateID, label).
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.ErrNotFound
		}
		return nil, pgerr.Classify(err)
	}
	return &result, nil
}

func (tvr *templateVersionRepo) ListForTemplate(ctx context.Context, tx *gorm.DB, templateID uuid.UUID) ([]*types.TemplateVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = tvr.db
	}

	var results []*types.TemplateVersion
	if err := transaction.WithContext(ctx).
		Where("template_id = ?", templateID).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, pgerr.Classify(err)
	}
	return results, nil
}

func (tvr *templateVersionRepo) Latest(ctx context.Context, tx *gorm.DB, templateID uuid.UUID) (*types.TemplateVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = tvr.db
	}

	var result types.TemplateVersion
	if err := transaction.WithContext(ctx).
		Where("template_id = ?", templateID).
		Order("created_at DESC").
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.ErrNotFound
		}
		return nil, pgerr.Classify(err)
	}
	return &result, nil
}
