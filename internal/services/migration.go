package services

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/teknokomo/universo-platformo-backend/internal/history"
	"github.com/teknokomo/universo-platformo-backend/internal/migration"
	"github.com/teknokomo/universo-platformo-backend/internal/pkg/logger"
	"github.com/teknokomo/universo-platformo-backend/internal/platform/apierr"
	"github.com/teknokomo/universo-platformo-backend/internal/template"
)

// MigrationInput is the transport-agnostic shape handlers hand to the
// service. CleanupMode arrives as the raw caller string and is validated
// here, before it reaches the orchestrator.
type MigrationInput struct {
	MetahubID               uuid.UUID
	BranchID                *uuid.UUID
	TargetTemplateVersionID *uuid.UUID
	CleanupMode             string
}

type MigrationApplyInput struct {
	MigrationInput
	DryRun bool
	Actor  *uuid.UUID
}

type HistoryPage struct {
	Items  []history.Record `json:"items"`
	Total  int64            `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

type MigrationService interface {
	Plan(ctx context.Context, input MigrationInput) (*migration.Plan, error)
	Status(ctx context.Context, input MigrationInput) (*migration.Status, error)
	Apply(ctx context.Context, input MigrationApplyInput) (*migration.ApplyResult, error)
	History(ctx context.Context, input MigrationInput, limit, offset int) (*HistoryPage, error)
}

type migrationService struct {
	orchestrator *migration.Orchestrator
	log          *logger.Logger
}

func NewMigrationService(orchestrator *migration.Orchestrator, baseLog *logger.Logger) MigrationService {
	return &migrationService{
		orchestrator: orchestrator,
		log:          baseLog.With("service", "MigrationService"),
	}
}

func (s *migrationService) request(input MigrationInput) (migration.Request, error) {
	mode := template.CleanupMode(input.CleanupMode)
	if input.CleanupMode == "" {
		mode = template.CleanupKeep
	}
	if !mode.Valid() {
		return migration.Request{}, apierr.Newf(http.StatusBadRequest, apierr.CodeCleanupModeReadOnly,
			"unknown cleanup mode %q; expected keep, dry_run or confirm", input.CleanupMode)
	}
	return migration.Request{
		MetahubID:               input.MetahubID,
		BranchID:                input.BranchID,
		TargetTemplateVersionID: input.TargetTemplateVersionID,
		CleanupMode:             mode,
	}, nil
}

func (s *migrationService) Plan(ctx context.Context, input MigrationInput) (*migration.Plan, error) {
	req, err := s.request(input)
	if err != nil {
		return nil, err
	}
	return s.orchestrator.Plan(ctx, req)
}

func (s *migrationService) Status(ctx context.Context, input MigrationInput) (*migration.Status, error) {
	req, err := s.request(input)
	if err != nil {
		return nil, err
	}
	return s.orchestrator.Status(ctx, req)
}

func (s *migrationService) Apply(ctx context.Context, input MigrationApplyInput) (*migration.ApplyResult, error) {
	req, err := s.request(input.MigrationInput)
	if err != nil {
		return nil, err
	}
	result, err := s.orchestrator.Apply(ctx, migration.ApplyRequest{
		Request: req,
		DryRun:  input.DryRun,
		Actor:   input.Actor,
	})
	if err != nil {
		s.log.Warn("apply failed", "branch_id", input.BranchID, "error", err)
		return nil, err
	}
	return result, nil
}

func (s *migrationService) History(ctx context.Context, input MigrationInput, limit, offset int) (*HistoryPage, error) {
	req, err := s.request(input)
	if err != nil {
		return nil, err
	}
	items, total, err := s.orchestrator.History(ctx, req, limit, offset)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []history.Record{}
	}
	if limit <= 0 {
		limit = 50
	}
	return &HistoryPage{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}
