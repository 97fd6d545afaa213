package template

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/teknokomo/universo-platformo-backend/internal/pkg/logger"
	"github.com/teknokomo/universo-platformo-backend/internal/platform/pgerr"
)

// SeedResult reports what a first-time seed inserted. Skipped collects the
// per-item reasons for anything a missing codename reference forced out.
type SeedResult struct {
	LayoutsAdded           int      `json:"layoutsAdded"`
	ZoneWidgetsAdded       int      `json:"zoneWidgetsAdded"`
	SettingsAdded          int      `json:"settingsAdded"`
	EntitiesAdded          int      `json:"entitiesAdded"`
	AttributesAdded        int      `json:"attributesAdded"`
	ElementsAdded          int      `json:"elementsAdded"`
	EnumerationValuesAdded int      `json:"enumerationValuesAdded"`
	Skipped                []string `json:"skipped,omitempty"`
}

func (r *SeedResult) Counts() map[string]int {
	return map[string]int{
		"layoutsAdded":           r.LayoutsAdded,
		"zoneWidgetsAdded":       r.ZoneWidgetsAdded,
		"settingsAdded":          r.SettingsAdded,
		"entitiesAdded":          r.EntitiesAdded,
		"attributesAdded":        r.AttributesAdded,
		"elementsAdded":          r.ElementsAdded,
		"enumerationValuesAdded": r.EnumerationValuesAdded,
	}
}

// Seeder populates a fresh branch schema from a manifest's seed block. It is
// only used when the schema has no prior seed data; upgrades go through
// SeedMigrator instead.
type Seeder struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSeeder(db *gorm.DB, baseLog *logger.Logger) *Seeder {
	return &Seeder{db: db, log: baseLog.With("component", "TemplateSeeder")}
}

// HasSeedData probes the seed-bearing tables for any live rows. Freshness is
// decided by existence checks, never by a flag on the branch.
func (s *Seeder) HasSeedData(ctx context.Context, schema string) (bool, error) {
	for _, table := range []string{tableLayouts, tableSettings, tableEntities} {
		var count int64
		err := s.db.WithContext(ctx).
			Table(qualify(schema, table)).
			Where("is_deleted = false").
			Count(&count).Error
		if err != nil {
			if pgerr.IsUndefinedTable(err) {
				continue
			}
			return false, pgerr.Classify(err)
		}
		if count > 0 {
			return true, nil
		}
	}
	return false, nil
}

func insertRow(ctx context.Context, tx *gorm.DB, schema, table string, row map[string]interface{}) error {
	if err := tx.WithContext(ctx).Table(qualify(schema, table)).Create(row).Error; err != nil {
		return pgerr.Classify(fmt.Errorf("insert into %s: %w", table, err))
	}
	return nil
}

// Execute inserts the whole seed inside one transaction. Codename-to-id maps
// are built as layouts and entities are inserted, so manifest authors must
// order entities so a referencing entity follows its target. An unresolved
// reference skips the dependent items with a logged reason; it never aborts
// the seed.
func (s *Seeder) Execute(ctx context.Context, schema string, m *Manifest) (*SeedResult, error) {
	res := &SeedResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		layoutIDs := map[string]uuid.UUID{}

		for _, layout := range m.Seed.Layouts {
			widgets := m.Seed.LayoutZoneWidgets[layout.Codename]
			id, err := s.insertLayout(ctx, tx, schema, layout, widgets)
			if err != nil {
				return err
			}
			layoutIDs[layout.Codename] = id
			res.LayoutsAdded++
			res.ZoneWidgetsAdded += len(widgets)
		}
		for _, codename := range sortedKeys(m.Seed.LayoutZoneWidgets) {
			if _, ok := layoutIDs[codename]; !ok {
				s.skip(res, "layoutZoneWidgets for unknown layout %q skipped", codename)
			}
		}

		for _, setting := range m.Seed.Settings {
			inserted, err := s.insertSetting(ctx, tx, schema, setting)
			if err != nil {
				return err
			}
			if inserted {
				res.SettingsAdded++
			} else {
				s.skip(res, "setting %q already present", setting.Key)
			}
		}

		entityIDs := map[string]uuid.UUID{}
		for _, entity := range m.Seed.Entities {
			id := uuid.New()
			if err := s.insertEntity(ctx, tx, schema, id, entity); err != nil {
				return err
			}
			entityIDs[entity.Codename] = id
			res.EntitiesAdded++

			for i, attr := range entity.Attributes {
				ok, err := s.insertAttribute(ctx, tx, schema, id, entity.Codename, i, attr, entityIDs, res)
				if err != nil {
					return err
				}
				if ok {
					res.AttributesAdded++
				}
			}
		}

		for _, codename := range sortedKeys(m.Seed.Elements) {
			entityID, ok := entityIDs[codename]
			if !ok {
				s.skip(res, "elements for unknown entity %q skipped", codename)
				continue
			}
			for _, el := range m.Seed.Elements[codename] {
				if err := s.insertElement(ctx, tx, schema, entityID, el); err != nil {
					return err
				}
				res.ElementsAdded++
			}
		}

		for _, codename := range sortedKeys(m.Seed.EnumerationValues) {
			entityID, ok := entityIDs[codename]
			if !ok {
				s.skip(res, "enumerationValues for unknown entity %q skipped", codename)
				continue
			}
			for _, ev := range m.Seed.EnumerationValues[codename] {
				if err := s.insertEnumValue(ctx, tx, schema, entityID, ev); err != nil {
					return err
				}
				res.EnumerationValuesAdded++
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Seeder) skip(res *SeedResult, format string, args ...interface{}) {
	reason := fmt.Sprintf(format, args...)
	res.Skipped = append(res.Skipped, reason)
	s.log.Warn("seed item skipped", "reason", reason)
}

func (s *Seeder) insertLayout(ctx context.Context, tx *gorm.DB, schema string, layout SeedLayout, widgets []SeedZoneWidget) (uuid.UUID, error) {
	id := uuid.New()
	name, err := jsonValue(layout.Name)
	if err != nil {
		return uuid.Nil, err
	}
	desc, err := jsonValue(layout.Description)
	if err != nil {
		return uuid.Nil, err
	}
	config, err := jsonValue(deriveLayoutConfig(widgets))
	if err != nil {
		return uuid.Nil, err
	}
	err = insertRow(ctx, tx, schema, tableLayouts, map[string]interface{}{
		"id":           id,
		"template_key": layout.Codename,
		"name":         name,
		"description":  desc,
		"is_default":   layout.IsDefault,
		"config":       config,
	})
	if err != nil {
		return uuid.Nil, err
	}
	for _, w := range widgets {
		if err := s.insertZoneWidget(ctx, tx, schema, id, w); err != nil {
			return uuid.Nil, err
		}
	}
	return id, nil
}

func (s *Seeder) insertZoneWidget(ctx context.Context, tx *gorm.DB, schema string, layoutID uuid.UUID, w SeedZoneWidget) error {
	config, err := jsonValue(w.Config)
	if err != nil {
		return err
	}
	return insertRow(ctx, tx, schema, tableZoneWidgets, map[string]interface{}{
		"id":          uuid.New(),
		"layout_id":   layoutID,
		"zone":        w.Zone,
		"widget_type": w.WidgetType,
		"sort_order":  w.SortOrder,
		"config":      config,
	})
}

// insertSetting skips keys that already exist; first-time seeds can still
// collide with platform-written settings.
func (s *Seeder) insertSetting(ctx context.Context, tx *gorm.DB, schema string, setting SeedSetting) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).
		Table(qualify(schema, tableSettings)).
		Where("key = ? AND is_deleted = false", setting.Key).
		Count(&count).Error
	if err != nil {
		return false, pgerr.Classify(err)
	}
	if count > 0 {
		return false, nil
	}
	value, err := jsonValue(setting.Value)
	if err != nil {
		return false, err
	}
	err = insertRow(ctx, tx, schema, tableSettings, map[string]interface{}{
		"id":    uuid.New(),
		"key":   setting.Key,
		"value": value,
	})
	return err == nil, err
}

func (s *Seeder) insertEntity(ctx context.Context, tx *gorm.DB, schema string, id uuid.UUID, entity SeedEntity) error {
	name, err := jsonValue(entity.Name)
	if err != nil {
		return err
	}
	desc, err := jsonValue(entity.Description)
	if err != nil {
		return err
	}
	return insertRow(ctx, tx, schema, tableEntities, map[string]interface{}{
		"id":          id,
		"kind":        entity.Kind,
		"codename":    entity.Codename,
		"name":        name,
		"description": desc,
	})
}

// insertAttribute resolves an optional cross-entity target through the map
// built so far. An unresolvable target skips this attribute only.
func (s *Seeder) insertAttribute(ctx context.Context, tx *gorm.DB, schema string, entityID uuid.UUID, entityCodename string, sortOrder int, attr SeedAttribute, entityIDs map[string]uuid.UUID, res *SeedResult) (bool, error) {
	var targetID interface{}
	if attr.TargetEntityCodename != "" {
		id, ok := entityIDs[attr.TargetEntityCodename]
		if !ok {
			s.skip(res, "attribute %s.%s targets unknown entity %q", entityCodename, attr.Codename, attr.TargetEntityCodename)
			return false, nil
		}
		targetID = id
	}
	defaultValue, err := jsonValue(attr.Default)
	if err != nil {
		return false, err
	}
	err = insertRow(ctx, tx, schema, tableAttributes, map[string]interface{}{
		"id":               uuid.New(),
		"entity_id":        entityID,
		"codename":         attr.Codename,
		"data_type":        attr.DataType,
		"required":         attr.Required,
		"default_value":    defaultValue,
		"target_entity_id": targetID,
		"sort_order":       sortOrder,
	})
	return err == nil, err
}

func (s *Seeder) insertElement(ctx context.Context, tx *gorm.DB, schema string, entityID uuid.UUID, el SeedElement) error {
	data, err := jsonValue(el.Data)
	if err != nil {
		return err
	}
	return insertRow(ctx, tx, schema, tableElements, map[string]interface{}{
		"id":         uuid.New(),
		"entity_id":  entityID,
		"data":       data,
		"sort_order": el.SortOrder,
	})
}

func (s *Seeder) insertEnumValue(ctx context.Context, tx *gorm.DB, schema string, entityID uuid.UUID, ev SeedEnumValue) error {
	value, err := jsonValue(ev.Value)
	if err != nil {
		return err
	}
	return insertRow(ctx, tx, schema, tableEnumValues, map[string]interface{}{
		"id":         uuid.New(),
		"entity_id":  entityID,
		"codename":   ev.Codename,
		"value":      value,
		"sort_order": ev.SortOrder,
	})
}
