package template

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/teknokomo/universo-platformo-backend/internal/pkg/logger"
	"github.com/teknokomo/universo-platformo-backend/internal/platform/pgerr"
)

// MergeResult reports an incremental seed merge. The same shape serves dry
// runs: Dry performs every read-side comparison and count without writing.
type MergeResult struct {
	SeedResult
	Dry bool `json:"dry"`
}

// SeedMigrator merges a newer template version's seed into a schema that
// already has data. It only ever inserts; an existing row with the same
// natural key is skipped with a recorded reason, never updated. The one
// departure from pure additivity: an incoming layout that wants to be the
// default is demoted to non-default when the tenant already has one.
type SeedMigrator struct {
	db     *gorm.DB
	seeder *Seeder
	log    *logger.Logger
}

func NewSeedMigrator(db *gorm.DB, seeder *Seeder, baseLog *logger.Logger) *SeedMigrator {
	return &SeedMigrator{db: db, seeder: seeder, log: baseLog.With("component", "TemplateSeedMigrator")}
}

// Merge walks the seed in the executor's insertion order. dry reuses the
// same read path and decision logic but suppresses every write.
func (sm *SeedMigrator) Merge(ctx context.Context, schema string, m *Manifest, dry bool) (*MergeResult, error) {
	res := &MergeResult{Dry: dry}
	run := func(tx *gorm.DB) error {
		if err := sm.mergeLayouts(ctx, tx, schema, m, dry, res); err != nil {
			return err
		}
		if err := sm.mergeSettings(ctx, tx, schema, m, dry, res); err != nil {
			return err
		}
		entityIDs, err := sm.mergeEntities(ctx, tx, schema, m, dry, res)
		if err != nil {
			return err
		}
		if err := sm.mergeElements(ctx, tx, schema, m, dry, res, entityIDs); err != nil {
			return err
		}
		return sm.mergeEnumValues(ctx, tx, schema, m, dry, res, entityIDs)
	}

	var err error
	if dry {
		err = run(sm.db)
	} else {
		err = sm.db.WithContext(ctx).Transaction(run)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (sm *SeedMigrator) skip(res *MergeResult, format string, args ...interface{}) {
	reason := fmt.Sprintf(format, args...)
	res.Skipped = append(res.Skipped, reason)
}

func (sm *SeedMigrator) mergeLayouts(ctx context.Context, tx *gorm.DB, schema string, m *Manifest, dry bool, res *MergeResult) error {
	existing := map[string]bool{}
	var keys []string
	err := tx.WithContext(ctx).
		Table(qualify(schema, tableLayouts)).
		Where("is_deleted = false").
		Pluck("template_key", &keys).Error
	if err != nil && !pgerr.IsUndefinedTable(err) {
		return pgerr.Classify(err)
	}
	for _, k := range keys {
		existing[k] = true
	}

	var defaultCount int64
	err = tx.WithContext(ctx).
		Table(qualify(schema, tableLayouts)).
		Where("is_default = true AND is_deleted = false").
		Count(&defaultCount).Error
	if err != nil && !pgerr.IsUndefinedTable(err) {
		return pgerr.Classify(err)
	}
	hasDefault := defaultCount > 0

	for _, layout := range m.Seed.Layouts {
		if existing[layout.Codename] {
			sm.skip(res, "layout %q already present", layout.Codename)
			continue
		}
		widgets := m.Seed.LayoutZoneWidgets[layout.Codename]
		incoming := layout
		if incoming.IsDefault && hasDefault {
			// Never displace the tenant's chosen default.
			incoming.IsDefault = false
			sm.skip(res, "layout %q inserted as non-default; a default layout already exists", layout.Codename)
		}
		res.LayoutsAdded++
		res.ZoneWidgetsAdded += len(widgets)
		if dry {
			continue
		}
		if _, err := sm.seeder.insertLayout(ctx, tx, schema, incoming, widgets); err != nil {
			return err
		}
		if incoming.IsDefault {
			hasDefault = true
		}
	}
	return nil
}

func (sm *SeedMigrator) mergeSettings(ctx context.Context, tx *gorm.DB, schema string, m *Manifest, dry bool, res *MergeResult) error {
	existing := map[string]bool{}
	var keys []string
	err := tx.WithContext(ctx).
		Table(qualify(schema, tableSettings)).
		Where("is_deleted = false").
		Pluck("key", &keys).Error
	if err != nil && !pgerr.IsUndefinedTable(err) {
		return pgerr.Classify(err)
	}
	for _, k := range keys {
		existing[k] = true
	}

	for _, setting := range m.Seed.Settings {
		if existing[setting.Key] {
			sm.skip(res, "setting %q already present", setting.Key)
			continue
		}
		res.SettingsAdded++
		if dry {
			continue
		}
		if _, err := sm.seeder.insertSetting(ctx, tx, schema, setting); err != nil {
			return err
		}
	}
	return nil
}

type liveEntity struct {
	ID       uuid.UUID
	Kind     string
	Codename string
}

func (sm *SeedMigrator) liveEntities(ctx context.Context, tx *gorm.DB, schema string) ([]liveEntity, error) {
	var rows []liveEntity
	err := tx.WithContext(ctx).
		Table(qualify(schema, tableEntities)).
		Select("id", "kind", "codename").
		Where("is_deleted = false").
		Find(&rows).Error
	if err != nil && !pgerr.IsUndefinedTable(err) {
		return nil, pgerr.Classify(err)
	}
	return rows, nil
}

// mergeEntities returns the codename-to-id map covering both pre-existing
// and newly inserted entities, so attribute targets resolve either way.
func (sm *SeedMigrator) mergeEntities(ctx context.Context, tx *gorm.DB, schema string, m *Manifest, dry bool, res *MergeResult) (map[string]uuid.UUID, error) {
	live, err := sm.liveEntities(ctx, tx, schema)
	if err != nil {
		return nil, err
	}
	existingByKey := map[string]bool{}
	entityIDs := map[string]uuid.UUID{}
	for _, e := range live {
		existingByKey[e.Kind+":"+e.Codename] = true
		entityIDs[e.Codename] = e.ID
	}

	for _, entity := range m.Seed.Entities {
		if existingByKey[entity.Kind+":"+entity.Codename] {
			sm.skip(res, "entity %s %q already present", entity.Kind, entity.Codename)
			continue
		}
		id := uuid.New()
		res.EntitiesAdded++
		if !dry {
			if err := sm.seeder.insertEntity(ctx, tx, schema, id, entity); err != nil {
				return nil, err
			}
		}
		entityIDs[entity.Codename] = id

		for i, attr := range entity.Attributes {
			if attr.TargetEntityCodename != "" {
				if _, ok := entityIDs[attr.TargetEntityCodename]; !ok {
					sm.skip(res, "attribute %s.%s targets unknown entity %q", entity.Codename, attr.Codename, attr.TargetEntityCodename)
					continue
				}
			}
			res.AttributesAdded++
			if dry {
				continue
			}
			if _, err := sm.seeder.insertAttribute(ctx, tx, schema, id, entity.Codename, i, attr, entityIDs, &res.SeedResult); err != nil {
				return nil, err
			}
		}
	}
	return entityIDs, nil
}

func (sm *SeedMigrator) mergeElements(ctx context.Context, tx *gorm.DB, schema string, m *Manifest, dry bool, res *MergeResult, entityIDs map[string]uuid.UUID) error {
	for _, codename := range sortedKeys(m.Seed.Elements) {
		entityID, ok := entityIDs[codename]
		if !ok {
			sm.skip(res, "elements for unknown entity %q skipped", codename)
			continue
		}
		var count int64
		err := tx.WithContext(ctx).
			Table(qualify(schema, tableElements)).
			Where("entity_id = ? AND is_deleted = false", entityID).
			Count(&count).Error
		if err != nil && !pgerr.IsUndefinedTable(err) {
			return pgerr.Classify(err)
		}
		if count > 0 {
			sm.skip(res, "entity %q already has elements", codename)
			continue
		}
		for _, el := range m.Seed.Elements[codename] {
			res.ElementsAdded++
			if dry {
				continue
			}
			if err := sm.seeder.insertElement(ctx, tx, schema, entityID, el); err != nil {
				return err
			}
		}
	}
	return nil
}

func (sm *SeedMigrator) mergeEnumValues(ctx context.Context, tx *gorm.DB, schema string, m *Manifest, dry bool, res *MergeResult, entityIDs map[string]uuid.UUID) error {
	for _, codename := range sortedKeys(m.Seed.EnumerationValues) {
		entityID, ok := entityIDs[codename]
		if !ok {
			sm.skip(res, "enumerationValues for unknown entity %q skipped", codename)
			continue
		}
		var count int64
		err := tx.WithContext(ctx).
			Table(qualify(schema, tableEnumValues)).
			Where("entity_id = ? AND is_deleted = false", entityID).
			Count(&count).Error
		if err != nil && !pgerr.IsUndefinedTable(err) {
			return pgerr.Classify(err)
		}
		if count > 0 {
			sm.skip(res, "entity %q already has enumeration values", codename)
			continue
		}
		for _, ev := range m.Seed.EnumerationValues[codename] {
			res.EnumerationValuesAdded++
			if dry {
				continue
			}
			if err := sm.seeder.insertEnumValue(ctx, tx, schema, entityID, ev); err != nil {
				return err
			}
		}
	}
	return nil
}
