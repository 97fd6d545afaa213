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

type TemplateRepo interface {
	Create(ctx context.Context, tx *gorm.DB, templates []*types.Template) ([]*types.Template, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Template, error)
	GetByCodename(ctx context.Context, tx *gorm.DB, codename string) (*types.Template, error)
}

type templateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTemplateRepo(db *gorm.DB, baseLog *logger.Logger) TemplateRepo {
	repoLog := baseLog.With("repo", "TemplateRepo")
	return &templateRepo{db: db, log: repoLog}
}

func (tr *templateRepo) Create(ctx context.Context, tx *gorm.DB, templates []*types.Template) ([]*types.Template, error) {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}

	if len(templates) == 0 {
		return []*types.Template{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&templates).Error; err != nil {
		return nil, pgerr.Classify(err)
	}

	return templates, nil
}

func (tr *templateRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Template, error) {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}

	var result types.Template
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

func (tr *templateRepo) GetByCodename(ctx context.Context, tx *gorm.DB, codename string) (*types.Template, error) {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}

	var result types.Template
	if err := transaction.WithContext(ctx).
		Where("codename = ?", codename).
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.ErrNotFound
		}
		return nil, pgerr.Classify(err)
	}
	return &result, nil
}
