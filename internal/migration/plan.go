package migration

import (
	"strings"

	"github.com/google/uuid"

	"github.com/teknokomo/universo-platformo-backend/internal/history"
	"github.com/teknokomo/universo-platformo-backend/internal/platform/apierr"
	"github.com/teknokomo/universo-platformo-backend/internal/template"
)

// Branch status values reported by Plan and Status.
const (
	StatusUpToDate          = "up_to_date"
	StatusRequiresMigration = "requires_migration"
	StatusBlocked           = "blocked"
	StatusApplied           = "applied"
)

// SchemaName derives the physical Postgres schema owned by a branch.
func SchemaName(branchID uuid.UUID) string {
	return "upb_branch_" + strings.ReplaceAll(branchID.String(), "-", "")
}

// Blocker describes one reason an apply cannot proceed. Destructive
// structural changes always land here; there is no automatic application
// path for them.
type Blocker struct {
	Source string `json:"source"` // structure | template | cleanup
	Key    string `json:"key,omitempty"`
	Reason string `json:"reason"`
}

type StructurePlan struct {
	CurrentVersion int      `json:"currentVersion"`
	TargetVersion  int      `json:"targetVersion"`
	Additive       []string `json:"additive,omitempty"`
	Destructive    []string `json:"destructive,omitempty"`
}

func (p StructurePlan) UpgradeRequired() bool {
	return p.CurrentVersion < p.TargetVersion
}

type TemplatePlan struct {
	CurrentVersionID    *uuid.UUID               `json:"currentVersionId,omitempty"`
	CurrentVersionLabel string                   `json:"currentVersionLabel,omitempty"`
	TargetVersionID     *uuid.UUID               `json:"targetVersionId,omitempty"`
	TargetVersionLabel  string                   `json:"targetVersionLabel,omitempty"`
	UpgradeRequired     bool                     `json:"upgradeRequired"`
	FirstSeed           bool                     `json:"firstSeed,omitempty"`
	SeedDryRun          *template.MergeResult    `json:"seedDryRun,omitempty"`
	Cleanup             *template.CleanupSummary `json:"cleanup,omitempty"`
}

// Plan is the full pre-apply assessment for one branch. Apply always
// re-derives it fresh; a caller-supplied plan is never trusted.
type Plan struct {
	BranchID    uuid.UUID            `json:"branchId"`
	Schema      string               `json:"schema"`
	Status      string               `json:"status"`
	CleanupMode template.CleanupMode `json:"cleanupMode"`
	Structure   StructurePlan        `json:"structure"`
	Template    TemplatePlan         `json:"template"`
	Blockers    []Blocker            `json:"blockers,omitempty"`
}

func (p *Plan) Blocked() bool { return len(p.Blockers) > 0 }

func (p *Plan) MigrationRequired() bool {
	return p.Structure.UpgradeRequired() || p.Template.UpgradeRequired
}

// classify sets Status from the accumulated blockers and upgrade flags.
func (p *Plan) classify() {
	switch {
	case p.Blocked():
		p.Status = StatusBlocked
	case p.MigrationRequired():
		p.Status = StatusRequiresMigration
	default:
		p.Status = StatusUpToDate
	}
}

// Status is the cheap polling shape: the plan collapsed to flags, without
// the seed dry-run.
type Status struct {
	Status                   string    `json:"status"`
	Code                     string    `json:"code,omitempty"`
	Blockers                 []Blocker `json:"blockers,omitempty"`
	MigrationRequired        bool      `json:"migrationRequired"`
	StructureUpgradeRequired bool      `json:"structureUpgradeRequired"`
	TemplateUpgradeRequired  bool      `json:"templateUpgradeRequired"`
}

func statusFromPlan(p *Plan) *Status {
	s := &Status{
		Status:                   p.Status,
		Blockers:                 p.Blockers,
		MigrationRequired:        p.MigrationRequired(),
		StructureUpgradeRequired: p.Structure.UpgradeRequired(),
		TemplateUpgradeRequired:  p.Template.UpgradeRequired,
	}
	switch p.Status {
	case StatusBlocked:
		s.Code = apierr.CodeMigrationBlocked
	case StatusRequiresMigration:
		s.Code = apierr.CodeMigrationRequired
	}
	return s
}

// ApplyResult reports a completed (or dry-run) apply call.
type ApplyResult struct {
	Status               string                   `json:"status"`
	Plan                 *Plan                    `json:"plan"`
	StructureVersion     int                      `json:"structureVersion"`
	TemplateVersionID    *uuid.UUID               `json:"templateVersionId,omitempty"`
	TemplateVersionLabel string                   `json:"templateVersionLabel,omitempty"`
	Seed                 *template.SeedResult     `json:"seed,omitempty"`
	Cleanup              *template.CleanupSummary `json:"cleanup,omitempty"`
	LatestMigrations     []history.Record         `json:"latestMigrations,omitempty"`
}
