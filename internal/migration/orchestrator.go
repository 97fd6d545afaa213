package migration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/teknokomo/universo-platformo-backend/internal/history"
	pkgerrors "github.com/teknokomo/universo-platformo-backend/internal/pkg/errors"
	"github.com/teknokomo/universo-platformo-backend/internal/pkg/logger"
	"github.com/teknokomo/universo-platformo-backend/internal/platform/apierr"
	"github.com/teknokomo/universo-platformo-backend/internal/repos"
	"github.com/teknokomo/universo-platformo-backend/internal/structure"
	"github.com/teknokomo/universo-platformo-backend/internal/template"
	"github.com/teknokomo/universo-platformo-backend/internal/types"
)

// Request selects the branch and target for a plan/status/apply call. When
// BranchID is nil the metahub's default branch is resolved. When
// TargetTemplateVersionID is nil the latest version of the branch's current
// template is the implied target; a branch with no template pointer has no
// template component at all.
type Request struct {
	MetahubID               uuid.UUID
	BranchID                *uuid.UUID
	TargetTemplateVersionID *uuid.UUID
	CleanupMode             template.CleanupMode
}

type ApplyRequest struct {
	Request
	DryRun bool
	Actor  *uuid.UUID
}

// The orchestrator consumes its collaborators through narrow interfaces so
// apply sequencing can be exercised without a live database.
type structureMigrator interface {
	Migrate(ctx context.Context, schema string, from, to int) (*structure.MigrateResult, error)
}

type seedExecutor interface {
	HasSeedData(ctx context.Context, schema string) (bool, error)
	Execute(ctx context.Context, schema string, m *template.Manifest) (*template.SeedResult, error)
}

type seedMerger interface {
	Merge(ctx context.Context, schema string, m *template.Manifest, dry bool) (*template.MergeResult, error)
}

type seedCleaner interface {
	Analyze(ctx context.Context, schema string, oldSeed, newSeed template.Seed, mode template.CleanupMode) (*template.CleanupSummary, error)
	Apply(ctx context.Context, schema string, oldSeed, newSeed template.Seed, mode template.CleanupMode, actor *uuid.UUID) (*template.CleanupSummary, error)
}

type historyLog interface {
	Insert(ctx context.Context, tx *gorm.DB, schema string, rec *history.Record) error
	Latest(ctx context.Context, schema string, n int) ([]history.Record, error)
	List(ctx context.Context, schema string, limit, offset int) ([]history.Record, int64, error)
}

// txRunner begins one database transaction and runs fn inside it.
type txRunner func(ctx context.Context, fn func(tx *gorm.DB) error) error

func gormTxRunner(db *gorm.DB) txRunner {
	return func(ctx context.Context, fn func(tx *gorm.DB) error) error {
		return db.WithContext(ctx).Transaction(fn)
	}
}

// Options tune lock acquisition and status caching.
type Options struct {
	LockWait  time.Duration
	LockPoll  time.Duration
	StatusTTL time.Duration
}

func (o Options) withDefaults() Options {
	if o.LockWait <= 0 {
		o.LockWait = 10 * time.Second
	}
	if o.LockPoll <= 0 {
		o.LockPoll = 250 * time.Millisecond
	}
	if o.StatusTTL <= 0 {
		o.StatusTTL = 5 * time.Second
	}
	return o
}

// Orchestrator is the plan/status/apply state machine. Plan and Status are
// read-only and take no lock; Apply serializes per branch via an advisory
// lock held on a pinned connection.
type Orchestrator struct {
	db               *gorm.DB
	tx               txRunner
	catalog          *structure.Catalog
	migrator         structureMigrator
	seeder           seedExecutor
	seedMigrator     seedMerger
	cleanup          seedCleaner
	history          historyLog
	metahubs         repos.MetahubRepo
	branches         repos.BranchRepo
	templateVersions repos.TemplateVersionRepo
	log              *logger.Logger

	sf        singleflight.Group
	cache     *redis.Client // nil when no cache is configured
	lockWait  time.Duration
	lockPoll  time.Duration
	statusTTL time.Duration
}

func NewOrchestrator(
	db *gorm.DB,
	catalog *structure.Catalog,
	migrator *structure.Migrator,
	seeder *template.Seeder,
	seedMigrator *template.SeedMigrator,
	cleanup *template.CleanupService,
	hist *history.Store,
	metahubs repos.MetahubRepo,
	branches repos.BranchRepo,
	templateVersions repos.TemplateVersionRepo,
	cache *redis.Client,
	opts Options,
	baseLog *logger.Logger,
) *Orchestrator {
	opts = opts.withDefaults()
	return &Orchestrator{
		db:               db,
		tx:               gormTxRunner(db),
		catalog:          catalog,
		metahubs:         metahubs,
		migrator:         migrator,
		seeder:           seeder,
		seedMigrator:     seedMigrator,
		cleanup:          cleanup,
		history:          hist,
		branches:         branches,
		templateVersions: templateVersions,
		cache:            cache,
		lockWait:         opts.LockWait,
		lockPoll:         opts.LockPoll,
		statusTTL:        opts.StatusTTL,
		log:              baseLog.With("component", "MigrationOrchestrator"),
	}
}

func (o *Orchestrator) resolveBranch(ctx context.Context, req Request) (*types.Branch, error) {
	var (
		branch *types.Branch
		err    error
	)
	if req.BranchID != nil {
		branch, err = o.branches.GetByID(ctx, nil, *req.BranchID)
	} else {
		if _, err := o.metahubs.GetByID(ctx, nil, req.MetahubID); err != nil {
			if errors.Is(err, pkgerrors.ErrNotFound) {
				return nil, apierr.Newf(http.StatusNotFound, apierr.CodeBranchNotFound,
					"metahub %s not found", req.MetahubID)
			}
			return nil, err
		}
		branch, err = o.branches.GetDefaultForMetahub(ctx, nil, req.MetahubID)
	}
	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			return nil, apierr.Newf(http.StatusNotFound, apierr.CodeBranchNotFound, "branch not found")
		}
		return nil, err
	}
	return branch, nil
}

// resolveTargetVersion picks the template version an apply would move the
// branch to. Returns nil when the branch has no template component.
func (o *Orchestrator) resolveTargetVersion(ctx context.Context, branch *types.Branch, requested *uuid.UUID) (*types.TemplateVersion, error) {
	if requested != nil {
		tv, err := o.templateVersions.GetByID(ctx, nil, *requested)
		if err != nil {
			if errors.Is(err, pkgerrors.ErrNotFound) {
				return nil, apierr.Newf(http.StatusNotFound, apierr.CodeTemplateVersionNotFound,
					"template version %s not found", *requested)
			}
			return nil, err
		}
		return tv, nil
	}
	if branch.LastTemplateVersionID == nil {
		return nil, nil
	}
	current, err := o.templateVersions.GetByID(ctx, nil, *branch.LastTemplateVersionID)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			return nil, apierr.Newf(http.StatusNotFound, apierr.CodeTemplateVersionNotFound,
				"template version %s pointed to by branch no longer exists", *branch.LastTemplateVersionID)
		}
		return nil, err
	}
	return o.templateVersions.Latest(ctx, nil, current.TemplateID)
}

func (o *Orchestrator) currentManifest(ctx context.Context, branch *types.Branch) (*template.Manifest, error) {
	if branch.LastTemplateVersionID == nil {
		return nil, nil
	}
	tv, err := o.templateVersions.GetByID(ctx, nil, *branch.LastTemplateVersionID)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return template.ParseManifest(tv.Content)
}

// Plan derives the full assessment described by the plan operation. It is
// read-only; seed work runs in dry mode and cleanup only analyzes.
func (o *Orchestrator) Plan(ctx context.Context, req Request) (*Plan, error) {
	return o.buildPlan(ctx, req, true)
}

func (o *Orchestrator) buildPlan(ctx context.Context, req Request, includeSeedDryRun bool) (*Plan, error) {
	if req.CleanupMode == "" {
		req.CleanupMode = template.CleanupKeep
	}
	if !req.CleanupMode.Valid() {
		return nil, apierr.Newf(http.StatusBadRequest, apierr.CodeCleanupModeReadOnly,
			"unknown cleanup mode %q", req.CleanupMode)
	}

	branch, err := o.resolveBranch(ctx, req)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		BranchID:    branch.ID,
		Schema:      SchemaName(branch.ID),
		CleanupMode: req.CleanupMode,
		Structure: StructurePlan{
			CurrentVersion: branch.StructureVersion,
			TargetVersion:  o.catalog.Current(),
		},
	}

	// Structure component: accumulate pairwise diffs. Destructive entries
	// are folded into the blocker list; they have no automatic apply path.
	for v := plan.Structure.CurrentVersion; v < plan.Structure.TargetVersion; v++ {
		oldDefs, err := o.catalog.Get(v)
		if err != nil {
			return nil, err
		}
		newDefs, err := o.catalog.Get(v + 1)
		if err != nil {
			return nil, err
		}
		diff := structure.Diff(oldDefs, newDefs, v, v+1)
		for _, ch := range diff.Additive {
			plan.Structure.Additive = append(plan.Structure.Additive, ch.Description)
		}
		for _, ch := range diff.Destructive {
			plan.Structure.Destructive = append(plan.Structure.Destructive, ch.Description)
			plan.Blockers = append(plan.Blockers, Blocker{
				Source: "structure",
				Key:    ch.TableName,
				Reason: fmt.Sprintf("destructive change requires manual migration: %s", ch.Description),
			})
		}
	}

	// Template component.
	target, err := o.resolveTargetVersion(ctx, branch, req.TargetTemplateVersionID)
	if err != nil {
		return nil, err
	}
	plan.Template.CurrentVersionID = branch.LastTemplateVersionID
	plan.Template.CurrentVersionLabel = branch.LastTemplateVersionLabel
	if target != nil {
		plan.Template.TargetVersionID = &target.ID
		plan.Template.TargetVersionLabel = target.VersionLabel
		plan.Template.UpgradeRequired = branch.LastTemplateVersionID == nil ||
			*branch.LastTemplateVersionID != target.ID

		if target.MinStructureVersion > plan.Structure.TargetVersion {
			plan.Blockers = append(plan.Blockers, Blocker{
				Source: "template",
				Key:    target.VersionLabel,
				Reason: fmt.Sprintf("template version requires structure version %d, platform ships %d",
					target.MinStructureVersion, plan.Structure.TargetVersion),
			})
		}
	}

	if target != nil && plan.Template.UpgradeRequired {
		newManifest, err := template.ParseManifest(target.Content)
		if err != nil {
			return nil, err
		}

		if branch.StructureVersion == 0 {
			// Fresh branch: the schema does not exist yet, the full seed
			// runs after structure migration. Nothing to dry-run against.
			plan.Template.FirstSeed = true
		} else {
			seeded, err := o.seeder.HasSeedData(ctx, plan.Schema)
			if err != nil {
				return nil, err
			}
			if !seeded {
				plan.Template.FirstSeed = true
			} else if includeSeedDryRun {
				dry, err := o.seedMigrator.Merge(ctx, plan.Schema, newManifest, true)
				if err != nil {
					return nil, err
				}
				plan.Template.SeedDryRun = dry
			}

			oldManifest, err := o.currentManifest(ctx, branch)
			if err != nil {
				return nil, err
			}
			if oldManifest != nil && req.CleanupMode != template.CleanupKeep {
				summary, err := o.cleanup.Analyze(ctx, plan.Schema, oldManifest.Seed, newManifest.Seed, req.CleanupMode)
				if err != nil {
					return nil, err
				}
				plan.Template.Cleanup = summary
				for _, b := range summary.Blockers {
					plan.Blockers = append(plan.Blockers, Blocker{
						Source: "cleanup",
						Key:    b.Key,
						Reason: b.Reason,
					})
				}
			}
		}
	}

	plan.classify()
	return plan, nil
}

// Status collapses the plan into the cheap polling shape. Concurrent calls
// for the same branch share one computation, and a short-TTL cache absorbs
// aggressive pollers; status tolerates slight staleness by contract.
func (o *Orchestrator) Status(ctx context.Context, req Request) (*Status, error) {
	key := statusCacheKey(req)

	if o.cache != nil {
		if raw, err := o.cache.Get(ctx, key).Bytes(); err == nil {
			var cached Status
			if json.Unmarshal(raw, &cached) == nil {
				return &cached, nil
			}
		}
	}

	v, err, _ := o.sf.Do(key, func() (interface{}, error) {
		plan, err := o.buildPlan(ctx, req, false)
		if err != nil {
			return nil, err
		}
		return statusFromPlan(plan), nil
	})
	if err != nil {
		return nil, err
	}
	status := v.(*Status)

	if o.cache != nil {
		if raw, err := json.Marshal(status); err == nil {
			o.cache.Set(ctx, key, raw, o.statusTTL)
		}
	}
	return status, nil
}

func statusCacheKey(req Request) string {
	branch := "default:" + req.MetahubID.String()
	if req.BranchID != nil {
		branch = req.BranchID.String()
	}
	target := "latest"
	if req.TargetTemplateVersionID != nil {
		target = req.TargetTemplateVersionID.String()
	}
	return fmt.Sprintf("migration:status:%s:%s:%s", branch, target, req.CleanupMode)
}

func (o *Orchestrator) invalidateStatus(ctx context.Context, req Request) {
	if o.cache == nil {
		return
	}
	o.cache.Del(ctx, statusCacheKey(req))
}

// Apply re-derives the plan fresh, refuses on blockers and on read-only
// cleanup-mode conflicts, then performs structure migration, seed work, and
// optional cleanup under the branch advisory lock. The branch's template
// pointer advances only after the recorded seed history is independently
// re-read and confirmed.
func (o *Orchestrator) Apply(ctx context.Context, req ApplyRequest) (*ApplyResult, error) {
	plan, err := o.Plan(ctx, req.Request)
	if err != nil {
		return nil, err
	}

	result := &ApplyResult{
		Plan:             plan,
		StructureVersion: plan.Structure.CurrentVersion,
	}

	if req.DryRun {
		result.Status = plan.Status
		return result, nil
	}
	if plan.Blocked() {
		result.Status = StatusBlocked
		return result, nil
	}
	if plan.CleanupMode == template.CleanupDryRun && plan.Template.Cleanup != nil && len(plan.Template.Cleanup.Candidates) > 0 {
		return nil, apierr.Newf(http.StatusConflict, apierr.CodeCleanupModeReadOnly,
			"cleanup mode dry_run is read-only; destructive cleanup is pending, apply with keep or confirm")
	}
	if !plan.MigrationRequired() {
		result.Status = StatusUpToDate
		return result, nil
	}

	err = o.withBranchLock(ctx, plan.BranchID, func() error {
		return o.applyLocked(ctx, req, plan, result)
	})
	if err != nil {
		return nil, err
	}

	o.invalidateStatus(ctx, req.Request)
	result.Status = StatusApplied
	return result, nil
}

func (o *Orchestrator) applyLocked(ctx context.Context, req ApplyRequest, plan *Plan, result *ApplyResult) error {
	branch, err := o.branches.GetByID(ctx, nil, plan.BranchID)
	if err != nil {
		return err
	}
	schema := plan.Schema

	// Structure first. Each version pair commits its own transaction; a
	// later failure leaves prior pairs durably applied and logged.
	if branch.StructureVersion < plan.Structure.TargetVersion {
		mres, err := o.migrator.Migrate(ctx, schema, branch.StructureVersion, plan.Structure.TargetVersion)
		if err != nil {
			return err
		}
		if !mres.Success {
			return apierr.Newf(http.StatusInternalServerError, apierr.CodeMigrationBlocked,
				"structure migration stopped at version %d", mres.ToVersion)
		}
		if err := o.branches.SetStructureVersion(ctx, nil, branch.ID, plan.Structure.TargetVersion); err != nil {
			return err
		}
		branch.StructureVersion = plan.Structure.TargetVersion
	}
	result.StructureVersion = branch.StructureVersion

	if !plan.Template.UpgradeRequired || plan.Template.TargetVersionID == nil {
		result.TemplateVersionID = branch.LastTemplateVersionID
		result.TemplateVersionLabel = branch.LastTemplateVersionLabel
		return o.loadLatestMigrations(ctx, schema, result)
	}

	target, err := o.templateVersions.GetByID(ctx, nil, *plan.Template.TargetVersionID)
	if err != nil {
		return err
	}
	newManifest, err := template.ParseManifest(target.Content)
	if err != nil {
		return err
	}

	// Seed: full execute on a virgin schema, additive merge otherwise.
	seeded, err := o.seeder.HasSeedData(ctx, schema)
	if err != nil {
		return err
	}
	var seedResult *template.SeedResult
	if !seeded {
		seedResult, err = o.seeder.Execute(ctx, schema, newManifest)
	} else {
		var merge *template.MergeResult
		merge, err = o.seedMigrator.Merge(ctx, schema, newManifest, false)
		if merge != nil {
			seedResult = &merge.SeedResult
		}
	}
	if err != nil {
		return err
	}
	result.Seed = seedResult

	meta, err := history.EncodeMeta(history.MetaTemplateSeed, history.TemplateSeedMeta{
		TemplateVersionID:    target.ID,
		TemplateVersionLabel: target.VersionLabel,
		Counts:               seedResult.Counts(),
	})
	if err != nil {
		return err
	}
	rec := &history.Record{
		Name:        fmt.Sprintf("template_seed_%s_%s", newManifest.Codename, target.VersionLabel),
		FromVersion: branch.StructureVersion,
		ToVersion:   branch.StructureVersion,
		Meta:        meta,
	}
	if err := o.history.Insert(ctx, nil, schema, rec); err != nil {
		return err
	}

	// Cleanup runs before the pointer moves, confirm mode only. The branch
	// still carries the old pointer here, so currentManifest reads the seed
	// being cleaned away. A blocker discovered now (the live data changed
	// since planning) refuses all cleanup writes and keeps the pointer
	// where it is; the seed merge already committed stays applied.
	if plan.CleanupMode == template.CleanupConfirm {
		oldManifest, err := o.currentManifest(ctx, branch)
		if err != nil {
			return err
		}
		if oldManifest != nil {
			summary, err := o.cleanup.Apply(ctx, schema, oldManifest.Seed, newManifest.Seed, template.CleanupConfirm, req.Actor)
			if err != nil {
				return err
			}
			result.Cleanup = summary
			if summary.Blocked() {
				return apierr.Newf(http.StatusConflict, apierr.CodeMigrationBlocked,
					"cleanup re-analysis found %d blocker(s) (first: %s); template pointer not advanced",
					len(summary.Blockers), summary.Blockers[0].Reason)
			}
		}
	}

	// Pointer advance happens in its own transaction, and only after the
	// recorded seed history is re-read and matches the target. Anything
	// else is reported as a conflict, never guessed as success.
	err = o.tx(ctx, func(tx *gorm.DB) error {
		if _, err := o.branches.GetByID(ctx, tx, branch.ID); err != nil {
			return err
		}
		latest, err := o.history.Latest(ctx, schema, 10)
		if err != nil {
			return err
		}
		confirmed := false
		for _, r := range latest {
			m := history.ParseMeta(r.Meta)
			if m == nil || m.TemplateSeed == nil {
				continue
			}
			if m.TemplateSeed.TemplateVersionID == target.ID {
				confirmed = true
			}
			break
		}
		if !confirmed {
			return apierr.Newf(http.StatusConflict, apierr.CodeTemplatePointerConflict,
				"seed history does not record template version %s; refusing to advance pointer", target.ID)
		}
		return o.branches.SetTemplatePointer(ctx, tx, branch.ID, target.ID, target.VersionLabel)
	})
	if err != nil {
		return err
	}
	result.TemplateVersionID = &target.ID
	result.TemplateVersionLabel = target.VersionLabel

	return o.loadLatestMigrations(ctx, schema, result)
}

func (o *Orchestrator) loadLatestMigrations(ctx context.Context, schema string, result *ApplyResult) error {
	latest, err := o.history.Latest(ctx, schema, 5)
	if err != nil {
		return err
	}
	result.LatestMigrations = latest
	return nil
}

// History exposes the paginated migration-history listing for a branch.
func (o *Orchestrator) History(ctx context.Context, req Request, limit, offset int) ([]history.Record, int64, error) {
	branch, err := o.resolveBranch(ctx, req)
	if err != nil {
		return nil, 0, err
	}
	return o.history.List(ctx, SchemaName(branch.ID), limit, offset)
}
