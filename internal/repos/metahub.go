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

type MetahubRepo interface {
	Create(ctx context.Context, tx *gorm.DB, metahubs []*types.Metahub) ([]*types.Metahub, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Metahub, error)
	GetByCodename(ctx context.Context, tx *gorm.DB, codename string) (*types.Metahub, error)
}

type metahubRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMetahubRepo(db *gorm.DB, baseLog *logger.Logger) MetahubRepo {
	repoLog := baseLog.With("repo", "MetahubRepo")
	return &metahubRepo{db: db, log: repoLog}
}

func (mr *metahubRepo) Create(ctx context.Context, tx *gorm.DB, metahubs []*types.Metahub) ([]*types.Metahub, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}

	if len(metahubs) == 0 {
		return []*types.Metahub{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&metahubs).Error; err != nil {
		return nil, pgerr.Classify(err)
	}

	return metahubs, nil
}

func (mr *metahubRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Metahub, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}

	var result types.Metahub
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

func (mr *metahubRepo) GetByCodename(ctx context.Context, tx *gorm.DB, codename string) (*types.Metahub, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}

	var result types.Metahub
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
