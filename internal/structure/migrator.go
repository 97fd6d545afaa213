package structure

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"github.com/teknokomo/universo-platformo-backend/internal/history"
	"github.com/teknokomo/universo-platformo-backend/internal/pkg/logger"
	"github.com/teknokomo/universo-platformo-backend/internal/platform/pgerr"
)

// MigrateStep summarizes one committed version-pair transition.
type MigrateStep struct {
	FromVersion int      `json:"from_version"`
	ToVersion   int      `json:"to_version"`
	Applied     []string `json:"applied"`
	Skipped     []string `json:"skipped_destructive,omitempty"`
}

// MigrateResult reports what a Migrate call durably applied. Steps commit
// one transaction per version pair; a later failure never rolls back earlier
// committed steps, so Applied is a faithful log even when Success is false.
type MigrateResult struct {
	FromVersion        int           `json:"from_version"`
	ToVersion          int           `json:"to_version"`
	Applied            []MigrateStep `json:"applied"`
	SkippedDestructive []Change      `json:"-"`
	Success            bool          `json:"success"`
}

// Migrator walks the structure history version by version and applies the
// additive part of each diff. Destructive changes are recorded and returned,
// never executed.
type Migrator struct {
	db      *gorm.DB
	catalog *Catalog
	applier *Applier
	history *history.Store
	log     *logger.Logger
}

func NewMigrator(db *gorm.DB, catalog *Catalog, applier *Applier, hist *history.Store, baseLog *logger.Logger) *Migrator {
	return &Migrator{
		db:      db,
		catalog: catalog,
		applier: applier,
		history: hist,
		log:     baseLog.With("component", "StructureMigrator"),
	}
}

// orderForApply groups additive changes so dependencies resolve: renames
// before adds (a new table's inline FK may reference a renamed table's new
// name), then tables, columns, indexes, foreign keys.
func orderForApply(changes []Change) []Change {
	rank := func(k ChangeKind) int {
		switch k {
		case ChangeRenameTable:
			return 0
		case ChangeAddTable:
			return 1
		case ChangeAddColumn, ChangeAlterColumn:
			return 2
		case ChangeRenameIndex:
			return 3
		case ChangeAddIndex:
			return 4
		case ChangeAddForeignKey:
			return 5
		default:
			return 6
		}
	}
	out := make([]Change, len(changes))
	copy(out, changes)
	// Stable sort keeps the diff's within-group order.
	sort.SliceStable(out, func(i, j int) bool {
		return rank(out[i].Kind) < rank(out[j].Kind)
	})
	return out
}

// Migrate applies every consecutive version pair in (from, to]. The branch
// schema and history table are created on the way when migrating from
// version 0. Missing definitions for any endpoint abort the whole range: a
// configuration bug, not a runtime condition.
func (m *Migrator) Migrate(ctx context.Context, schema string, from, to int) (*MigrateResult, error) {
	res := &MigrateResult{FromVersion: from, ToVersion: to}
	if to < from {
		return nil, fmt.Errorf("cannot migrate backwards: from v%d to v%d", from, to)
	}

	if err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := m.applier.EnsureSchema(ctx, tx, schema); err != nil {
			return err
		}
		if err := m.history.EnsureTable(ctx, tx, schema); err != nil {
			return err
		}
		if from == 0 {
			meta, err := history.EncodeMeta(history.MetaBaseline, nil)
			if err != nil {
				return err
			}
			return m.history.Insert(ctx, tx, schema, &history.Record{
				Name: "baseline", FromVersion: 0, ToVersion: 0, Meta: meta,
			})
		}
		return nil
	}); err != nil {
		return res, pgerr.Classify(err)
	}

	for v := from; v < to; v++ {
		oldDefs, err := m.catalog.Get(v)
		if err != nil {
			return res, err
		}
		newDefs, err := m.catalog.Get(v + 1)
		if err != nil {
			return res, err
		}

		diff := Diff(oldDefs, newDefs, v, v+1)
		if diff.Empty() {
			continue
		}

		step := MigrateStep{FromVersion: v, ToVersion: v + 1}
		for _, ch := range diff.Destructive {
			step.Skipped = append(step.Skipped, ch.Description)
			res.SkippedDestructive = append(res.SkippedDestructive, ch)
			m.log.Warn("skipping destructive structure change",
				"schema", schema, "from", v, "to", v+1, "change", ch.Description)
		}

		err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, ch := range orderForApply(diff.Additive) {
				if err := m.applier.Apply(ctx, tx, schema, ch); err != nil {
					return err
				}
				step.Applied = append(step.Applied, ch.Description)
			}
			meta, err := history.EncodeMeta(history.MetaStructure, history.StructureMeta{
				Applied:            step.Applied,
				SkippedDestructive: step.Skipped,
			})
			if err != nil {
				return err
			}
			return m.history.Insert(ctx, tx, schema, &history.Record{
				Name:        fmt.Sprintf("structure_v%d_to_v%d", v, v+1),
				FromVersion: v,
				ToVersion:   v + 1,
				Meta:        meta,
			})
		})
		if err != nil {
			// Prior pairs are already committed and stay applied.
			return res, pgerr.Classify(fmt.Errorf("structure migration v%d -> v%d failed: %w", v, v+1, err))
		}
		res.Applied = append(res.Applied, step)
		m.log.Info("structure version pair applied",
			"schema", schema, "from", v, "to", v+1,
			"applied", len(step.Applied), "skipped_destructive", len(step.Skipped))
	}

	res.Success = true
	return res, nil
}
