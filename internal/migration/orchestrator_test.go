package migration

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/teknokomo/universo-platformo-backend/internal/history"
	pkgerrors "github.com/teknokomo/universo-platformo-backend/internal/pkg/errors"
	"github.com/teknokomo/universo-platformo-backend/internal/pkg/logger"
	"github.com/teknokomo/universo-platformo-backend/internal/platform/apierr"
	"github.com/teknokomo/universo-platformo-backend/internal/structure"
	"github.com/teknokomo/universo-platformo-backend/internal/template"
	"github.com/teknokomo/universo-platformo-backend/internal/types"
)

// --- fakes ---

type fakeBranches struct {
	branch *types.Branch
	events *[]string
}

func (f *fakeBranches) Create(ctx context.Context, tx *gorm.DB, branches []*types.Branch) ([]*types.Branch, error) {
	return branches, nil
}

func (f *fakeBranches) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Branch, error) {
	if f.branch == nil || f.branch.ID != id {
		return nil, pkgerrors.ErrNotFound
	}
	copied := *f.branch
	return &copied, nil
}

func (f *fakeBranches) GetDefaultForMetahub(ctx context.Context, tx *gorm.DB, metahubID uuid.UUID) (*types.Branch, error) {
	if f.branch == nil {
		return nil, pkgerrors.ErrNotFound
	}
	copied := *f.branch
	return &copied, nil
}

func (f *fakeBranches) ListForMetahub(ctx context.Context, tx *gorm.DB, metahubID uuid.UUID) ([]*types.Branch, error) {
	return nil, nil
}

func (f *fakeBranches) SetStructureVersion(ctx context.Context, tx *gorm.DB, id uuid.UUID, version int) error {
	f.branch.StructureVersion = version
	return nil
}

func (f *fakeBranches) SetTemplatePointer(ctx context.Context, tx *gorm.DB, id uuid.UUID, versionID uuid.UUID, versionLabel string) error {
	*f.events = append(*f.events, "pointer")
	f.branch.LastTemplateVersionID = &versionID
	f.branch.LastTemplateVersionLabel = versionLabel
	return nil
}

type fakeVersions struct {
	byID map[uuid.UUID]*types.TemplateVersion
}

func (f *fakeVersions) Create(ctx context.Context, tx *gorm.DB, versions []*types.TemplateVersion) ([]*types.TemplateVersion, error) {
	return versions, nil
}

func (f *fakeVersions) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.TemplateVersion, error) {
	tv, ok := f.byID[id]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	return tv, nil
}

func (f *fakeVersions) GetByLabel(ctx context.Context, tx *gorm.DB, templateID uuid.UUID, label string) (*types.TemplateVersion, error) {
	return nil, pkgerrors.ErrNotFound
}

func (f *fakeVersions) ListForTemplate(ctx context.Context, tx *gorm.DB, templateID uuid.UUID) ([]*types.TemplateVersion, error) {
	return nil, nil
}

func (f *fakeVersions) Latest(ctx context.Context, tx *gorm.DB, templateID uuid.UUID) (*types.TemplateVersion, error) {
	return nil, pkgerrors.ErrNotFound
}

type fakeMigrator struct {
	events *[]string
}

func (f *fakeMigrator) Migrate(ctx context.Context, schema string, from, to int) (*structure.MigrateResult, error) {
	*f.events = append(*f.events, "migrate")
	return &structure.MigrateResult{FromVersion: from, ToVersion: to, Success: true}, nil
}

type fakeSeeder struct {
	seeded bool
	events *[]string
}

func (f *fakeSeeder) HasSeedData(ctx context.Context, schema string) (bool, error) {
	return f.seeded, nil
}

func (f *fakeSeeder) Execute(ctx context.Context, schema string, m *template.Manifest) (*template.SeedResult, error) {
	*f.events = append(*f.events, "execute")
	return &template.SeedResult{}, nil
}

type fakeMerger struct {
	events *[]string
	err    error
}

func (f *fakeMerger) Merge(ctx context.Context, schema string, m *template.Manifest, dry bool) (*template.MergeResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	*f.events = append(*f.events, "merge")
	return &template.MergeResult{Dry: dry}, nil
}

type fakeCleanup struct {
	events   *[]string
	summary  *template.CleanupSummary
	gotOld   *template.Seed
	gotMode  template.CleanupMode
	gotActor *uuid.UUID
}

func (f *fakeCleanup) Analyze(ctx context.Context, schema string, oldSeed, newSeed template.Seed, mode template.CleanupMode) (*template.CleanupSummary, error) {
	return f.summary, nil
}

func (f *fakeCleanup) Apply(ctx context.Context, schema string, oldSeed, newSeed template.Seed, mode template.CleanupMode, actor *uuid.UUID) (*template.CleanupSummary, error) {
	*f.events = append(*f.events, "cleanup")
	f.gotOld = &oldSeed
	f.gotMode = mode
	f.gotActor = actor
	return f.summary, nil
}

type fakeHistory struct {
	events  *[]string
	records []history.Record
	latest  []history.Record // overrides recorded inserts when set
}

func (f *fakeHistory) Insert(ctx context.Context, tx *gorm.DB, schema string, rec *history.Record) error {
	*f.events = append(*f.events, "history")
	f.records = append([]history.Record{*rec}, f.records...)
	return nil
}

func (f *fakeHistory) Latest(ctx context.Context, schema string, n int) ([]history.Record, error) {
	if f.latest != nil {
		return f.latest, nil
	}
	if len(f.records) > n {
		return f.records[:n], nil
	}
	return f.records, nil
}

func (f *fakeHistory) List(ctx context.Context, schema string, limit, offset int) ([]history.Record, int64, error) {
	return f.records, int64(len(f.records)), nil
}

// --- fixture ---

type applyFixture struct {
	orch     *Orchestrator
	branches *fakeBranches
	cleanup  *fakeCleanup
	hist     *fakeHistory
	merger   *fakeMerger
	events   []string
	branchID uuid.UUID
	oldVer   uuid.UUID
	target   uuid.UUID
}

const oldManifestDoc = `{"codename":"base","version":"1.0.0","minStructureVersion":1,` +
	`"seed":{"settings":[{"key":"theme","value":"dark"}]}}`

const newManifestDoc = `{"codename":"base","version":"1.1.0","minStructureVersion":1}`

func newApplyFixture(t *testing.T) *applyFixture {
	t.Helper()
	f := &applyFixture{
		branchID: uuid.New(),
		oldVer:   uuid.New(),
		target:   uuid.New(),
	}
	templateID := uuid.New()

	branch := &types.Branch{
		ID:                       f.branchID,
		StructureVersion:         4,
		LastTemplateVersionID:    &f.oldVer,
		LastTemplateVersionLabel: "1.0.0",
	}
	f.branches = &fakeBranches{branch: branch, events: &f.events}
	versions := &fakeVersions{byID: map[uuid.UUID]*types.TemplateVersion{
		f.oldVer: {
			ID:           f.oldVer,
			TemplateID:   templateID,
			VersionLabel: "1.0.0",
			Content:      datatypes.JSON([]byte(oldManifestDoc)),
		},
		f.target: {
			ID:           f.target,
			TemplateID:   templateID,
			VersionLabel: "1.1.0",
			Content:      datatypes.JSON([]byte(newManifestDoc)),
		},
	}}
	f.cleanup = &fakeCleanup{events: &f.events, summary: &template.CleanupSummary{Mode: template.CleanupConfirm}}
	f.hist = &fakeHistory{events: &f.events}
	f.merger = &fakeMerger{events: &f.events}

	f.orch = &Orchestrator{
		tx:               func(ctx context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) },
		migrator:         &fakeMigrator{events: &f.events},
		seeder:           &fakeSeeder{seeded: true, events: &f.events},
		seedMigrator:     f.merger,
		cleanup:          f.cleanup,
		history:          f.hist,
		branches:         f.branches,
		templateVersions: versions,
		log:              logger.NewNop(),
	}
	return f
}

func (f *applyFixture) plan(mode template.CleanupMode) *Plan {
	return &Plan{
		BranchID:    f.branchID,
		Schema:      SchemaName(f.branchID),
		CleanupMode: mode,
		Structure:   StructurePlan{CurrentVersion: 4, TargetVersion: 4},
		Template: TemplatePlan{
			CurrentVersionID:   &f.oldVer,
			TargetVersionID:    &f.target,
			TargetVersionLabel: "1.1.0",
			UpgradeRequired:    true,
		},
	}
}

func (f *applyFixture) apply(mode template.CleanupMode) (*ApplyResult, error) {
	req := ApplyRequest{Request: Request{BranchID: &f.branchID, CleanupMode: mode}}
	plan := f.plan(mode)
	result := &ApplyResult{Plan: plan, StructureVersion: plan.Structure.CurrentVersion}
	err := f.orch.applyLocked(context.Background(), req, plan, result)
	return result, err
}

// --- tests ---

func TestApplyCleanupRunsBeforePointerAdvance(t *testing.T) {
	f := newApplyFixture(t)

	result, err := f.apply(template.CleanupConfirm)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	want := []string{"merge", "history", "cleanup", "pointer"}
	if fmt.Sprint(f.events) != fmt.Sprint(want) {
		t.Fatalf("event order = %v, want %v", f.events, want)
	}
	if f.branches.branch.LastTemplateVersionID == nil || *f.branches.branch.LastTemplateVersionID != f.target {
		t.Fatalf("pointer = %v, want %s", f.branches.branch.LastTemplateVersionID, f.target)
	}
	if result.TemplateVersionID == nil || *result.TemplateVersionID != f.target {
		t.Fatalf("result pointer = %v", result.TemplateVersionID)
	}
	// Cleanup must see the manifest the branch pointed at before the
	// upgrade, not the incoming one.
	if f.cleanup.gotOld == nil || len(f.cleanup.gotOld.Settings) != 1 || f.cleanup.gotOld.Settings[0].Key != "theme" {
		t.Fatalf("cleanup received wrong old seed: %+v", f.cleanup.gotOld)
	}
	if f.cleanup.gotMode != template.CleanupConfirm {
		t.Fatalf("cleanup mode = %q", f.cleanup.gotMode)
	}
}

func TestApplyCleanupBlockerStopsPointerAdvance(t *testing.T) {
	f := newApplyFixture(t)
	f.cleanup.summary = &template.CleanupSummary{
		Mode: template.CleanupConfirm,
		Blockers: []template.CleanupBlocker{
			{Kind: "entity", Key: "catalog:tags", Reason: "entity row was created or updated by a user"},
		},
	}

	result, err := f.apply(template.CleanupConfirm)
	var ae *apierr.Error
	if !errors.As(err, &ae) || ae.Code != apierr.CodeMigrationBlocked {
		t.Fatalf("expected MIGRATION_BLOCKED, got %v", err)
	}
	for _, ev := range f.events {
		if ev == "pointer" {
			t.Fatal("pointer advanced despite blocked cleanup")
		}
	}
	if *f.branches.branch.LastTemplateVersionID != f.oldVer {
		t.Fatalf("stored pointer moved to %s", *f.branches.branch.LastTemplateVersionID)
	}
	if result.Cleanup == nil || !result.Cleanup.Blocked() {
		t.Fatalf("blocked summary not surfaced: %+v", result.Cleanup)
	}
}

func TestApplyMergeFailureLeavesPointerUnchanged(t *testing.T) {
	f := newApplyFixture(t)
	f.merger.err = errors.New("merge exploded")

	_, err := f.apply(template.CleanupKeep)
	if err == nil {
		t.Fatal("expected merge failure to propagate")
	}
	if len(f.events) != 0 {
		t.Fatalf("unexpected writes after merge failure: %v", f.events)
	}
	if *f.branches.branch.LastTemplateVersionID != f.oldVer {
		t.Fatalf("pointer moved to %s after failed merge", *f.branches.branch.LastTemplateVersionID)
	}
}

func TestApplyPointerConflictWhenHistoryDisagrees(t *testing.T) {
	f := newApplyFixture(t)
	other := uuid.New()
	meta, err := history.EncodeMeta(history.MetaTemplateSeed, history.TemplateSeedMeta{
		TemplateVersionID:    other,
		TemplateVersionLabel: "9.9.9",
	})
	if err != nil {
		t.Fatalf("EncodeMeta failed: %v", err)
	}
	f.hist.latest = []history.Record{{Name: "template_seed_base_9.9.9", Meta: meta}}

	_, err = f.apply(template.CleanupKeep)
	var ae *apierr.Error
	if !errors.As(err, &ae) || ae.Code != apierr.CodeTemplatePointerConflict {
		t.Fatalf("expected TEMPLATE_POINTER_CONFLICT, got %v", err)
	}
	if *f.branches.branch.LastTemplateVersionID != f.oldVer {
		t.Fatalf("pointer moved to %s despite conflicting history", *f.branches.branch.LastTemplateVersionID)
	}
}
