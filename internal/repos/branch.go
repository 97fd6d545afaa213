package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/teknokomo/universo-platformo-backend/internal/pkg/errors"
	"github.com/teknokomo/universo-platformo-backend/internal/pkg/logger"
	"github.com/teknokomo/universo-platformo-backend/internal/platform/pgerr"
	"github.com/teknokomo/universo-platformo-backend/internal/types"
)

type BranchRepo interface {
	Create(ctx context.Context, tx *gorm.DB, branches []*types.Branch) ([]*types.Branch, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Branch, error)
	GetDefaultForMetahub(ctx context.Context, tx *gorm.DB, metahubID uuid.UUID) (*types.Branch, error)
	ListForMetahub(ctx context.Context, tx *gorm.DB, metahubID uuid.UUID) ([]*types.Branch, error)
	SetStructureVersion(ctx context.Context, tx *gorm.DB, id uuid.UUID, version int) error
	SetTemplatePointer(ctx context.Context, tx *gorm.DB, id uuid.UUID, versionID uuid.UUID, versionLabel string) error
}

type branchRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBranchRepo(db *gorm.DB, baseLog *logger.Logger) BranchRepo {
	repoLog := baseLog.With("repo", "BranchRepo")
	return &branchRepo{db: db, log: repoLog}
}

func (br *branchRepo) Create(ctx context.Context, tx *gorm.DB, branches []*types.Branch) ([]*types.Branch, error) {
	transaction := tx
	if transaction == nil {
		transaction = br.db
	}

	if len(branches) == 0 {
		return []*types.Branch{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&branches).Error; err != nil {
		return nil, pgerr.Classify(err)
	}

	return branches, nil
}

func (br *branchRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Branch, error) {
	transaction := tx
	if transaction == nil {
		transaction = br.db
	}

	var result types.Branch
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

func (br *branchRepo) GetDefaultForMetahub(ctx context.Context, tx *gorm.DB, metahubID uuid.UUID) (*types.Branch, error) {
	transaction := tx
	if transaction == nil {
		transaction = br.db
	}

	var result types.Branch
	if err := transaction.WithContext(ctx).
		Where("metahub_id = ? AND is_default = true", metahubID).
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.ErrNotFound
		}
		return nil, pgerr.Classify(err)
	}
	return &result, nil
}

func (br *branchRepo) ListForMetahub(ctx context.Context, tx *gorm.DB, metahubID uuid.UUID) ([]*types.Branch, error) {
	transaction := tx
	if transaction == nil {
		transaction = br.db
	}

	var results []*types.Branch
	if err := transaction.WithContext(ctx).
		Where("metahub_id = ?", metahubID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, pgerr.Classify(err)
	}
	return results, nil
}

func (br *branchRepo) SetStructureVersion(ctx context.Context, tx *gorm.DB, id uuid.UUID, version int) error {
	transaction := tx
	if transaction == nil {
		transaction = br.db
	}

	res := transaction.WithContext(ctx).
		Model(&types.Branch{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"structure_version": version,
			"updated_at":        time.Now().UTC(),
		})
	if res.Error != nil {
		return pgerr.Classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}

func (br *branchRepo) SetTemplatePointer(ctx context.Context, tx *gorm.DB, id uuid.UUID, versionID uuid.UUID, versionLabel string) error {
	transaction := tx
	if transaction == nil {
		transaction = br.db
	}

	res := transaction.WithContext(ctx).
		Model(&types.Branch{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_template_version_id":    versionID,
			"last_template_version_label": versionLabel,
			"updated_at":                  time.Now().UTC(),
		})
	if res.Error != nil {
		return pgerr.Classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}
