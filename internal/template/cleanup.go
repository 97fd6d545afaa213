package template

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/teknokomo/universo-platformo-backend/internal/pkg/logger"
	"github.com/teknokomo/universo-platformo-backend/internal/platform/pgerr"
)

type CleanupMode string

const (
	CleanupKeep    CleanupMode = "keep"
	CleanupDryRun  CleanupMode = "dry_run"
	CleanupConfirm CleanupMode = "confirm"
)

func (m CleanupMode) Valid() bool {
	switch m {
	case CleanupKeep, CleanupDryRun, CleanupConfirm:
		return true
	}
	return false
}

type CleanupBlocker struct {
	Kind   string `json:"kind"` // entity | attribute | setting
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

type CleanupCandidate struct {
	Kind string `json:"kind"`
	Key  string `json:"key"`
}

// CleanupSummary is returned from every mode; Blockers is always complete,
// even in confirm mode. Deleted counts are nonzero only after confirm
// actually wrote.
type CleanupSummary struct {
	Mode                     CleanupMode        `json:"mode"`
	Candidates               []CleanupCandidate `json:"candidates,omitempty"`
	Blockers                 []CleanupBlocker   `json:"blockers,omitempty"`
	EntitiesDeleted          int                `json:"entitiesDeleted"`
	AttributesDeleted        int                `json:"attributesDeleted"`
	ElementsDeleted          int                `json:"elementsDeleted"`
	EnumerationValuesDeleted int                `json:"enumerationValuesDeleted"`
	SettingsDeleted          int                `json:"settingsDeleted"`
}

func (s *CleanupSummary) Blocked() bool { return len(s.Blockers) > 0 }

// CleanupService removes seed content the newer template version no longer
// wants, but only when the live data provably still matches what the old
// seed produced: no audit actor anywhere, and content byte-identical under
// canonical serialization. Any blocker anywhere refuses all writes.
type CleanupService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCleanupService(db *gorm.DB, baseLog *logger.Logger) *CleanupService {
	return &CleanupService{db: db, log: baseLog.With("component", "TemplateSeedCleanup")}
}

// --- live row shapes ---

type liveAudit struct {
	ID        uuid.UUID
	CreatedBy *uuid.UUID
	UpdatedBy *uuid.UUID
}

func (a liveAudit) touched() bool { return a.CreatedBy != nil || a.UpdatedBy != nil }

type liveEntityRow struct {
	liveAudit
	Kind     string
	Codename string
}

type liveAttributeRow struct {
	liveAudit
	Codename     string
	DataType     string
	Required     bool
	DefaultValue []byte
}

type liveElementRow struct {
	liveAudit
	SortOrder int
	Data      []byte
}

type liveSettingRow struct {
	liveAudit
	Key   string
	Value []byte
}

// removedEntities lists old-seed entities absent from the new seed, in old
// declaration order.
func removedEntities(oldSeed, newSeed Seed) []SeedEntity {
	var out []SeedEntity
	for _, e := range oldSeed.Entities {
		if newSeed.Entity(e.Kind, e.Codename) == nil {
			out = append(out, e)
		}
	}
	return out
}

// removedAttributes maps an entity present in both seeds to the attributes
// the new seed dropped.
func removedAttributes(oldSeed, newSeed Seed) map[string][]SeedAttribute {
	out := map[string][]SeedAttribute{}
	for _, oldEnt := range oldSeed.Entities {
		newEnt := newSeed.Entity(oldEnt.Kind, oldEnt.Codename)
		if newEnt == nil {
			continue
		}
		kept := map[string]bool{}
		for _, a := range newEnt.Attributes {
			kept[a.Codename] = true
		}
		for _, a := range oldEnt.Attributes {
			if !kept[a.Codename] {
				out[oldEnt.Kind+":"+oldEnt.Codename] = append(out[oldEnt.Kind+":"+oldEnt.Codename], a)
			}
		}
	}
	return out
}

func removedSettings(oldSeed, newSeed Seed) []SeedSetting {
	kept := map[string]bool{}
	for _, s := range newSeed.Settings {
		kept[s.Key] = true
	}
	var out []SeedSetting
	for _, s := range oldSeed.Settings {
		if !kept[s.Key] {
			out = append(out, s)
		}
	}
	return out
}

// Analyze computes the cleanup candidates and the full blocker list without
// writing. keep mode returns an empty summary: always safe, nothing to do.
func (c *CleanupService) Analyze(ctx context.Context, schema string, oldSeed, newSeed Seed, mode CleanupMode) (*CleanupSummary, error) {
	summary := &CleanupSummary{Mode: mode}
	if mode == CleanupKeep {
		return summary, nil
	}

	for _, ent := range removedEntities(oldSeed, newSeed) {
		if err := c.analyzeEntityRemoval(ctx, schema, oldSeed, ent, summary); err != nil {
			return nil, err
		}
	}

	removed := removedAttributes(oldSeed, newSeed)
	for _, oldEnt := range oldSeed.Entities {
		key := oldEnt.Kind + ":" + oldEnt.Codename
		attrs, ok := removed[key]
		if !ok {
			continue
		}
		if err := c.analyzeAttributeRemovals(ctx, schema, oldEnt, attrs, summary); err != nil {
			return nil, err
		}
	}

	for _, setting := range removedSettings(oldSeed, newSeed) {
		if err := c.analyzeSettingRemoval(ctx, schema, setting, summary); err != nil {
			return nil, err
		}
	}

	return summary, nil
}

// findEntity reads through conn so confirm-mode writes can re-resolve inside
// their own transaction.
func (c *CleanupService) findEntity(ctx context.Context, conn *gorm.DB, schema, kind, codename string) (*liveEntityRow, error) {
	var rows []liveEntityRow
	err := conn.WithContext(ctx).
		Table(qualify(schema, tableEntities)).
		Select("id", "kind", "codename", "created_by", "updated_by").
		Where("kind = ? AND codename = ? AND is_deleted = false", kind, codename).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		if pgerr.IsUndefinedTable(err) {
			return nil, nil
		}
		return nil, pgerr.Classify(err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (c *CleanupService) analyzeEntityRemoval(ctx context.Context, schema string, oldSeed Seed, ent SeedEntity, summary *CleanupSummary) error {
	key := ent.Kind + ":" + ent.Codename
	live, err := c.findEntity(ctx, c.db, schema, ent.Kind, ent.Codename)
	if err != nil {
		return err
	}
	if live == nil {
		// Already gone; nothing to do and nothing to block.
		return nil
	}

	block := func(reason string) {
		summary.Blockers = append(summary.Blockers, CleanupBlocker{Kind: "entity", Key: key, Reason: reason})
	}

	if live.touched() {
		block("entity row was created or updated by a user")
		return nil
	}

	var attrs []liveAttributeRow
	err = c.db.WithContext(ctx).
		Table(qualify(schema, tableAttributes)).
		Select("id", "codename", "data_type", "required", "default_value", "created_by", "updated_by").
		Where("entity_id = ? AND is_deleted = false", live.ID).
		Find(&attrs).Error
	if err != nil && !pgerr.IsUndefinedTable(err) {
		return pgerr.Classify(err)
	}
	seedAttrs := map[string]bool{}
	for _, a := range ent.Attributes {
		seedAttrs[a.Codename] = true
	}
	blocked := false
	for _, a := range attrs {
		if a.touched() {
			block(fmt.Sprintf("attribute %q was created or updated by a user", a.Codename))
			blocked = true
			continue
		}
		if !seedAttrs[a.Codename] {
			block(fmt.Sprintf("attribute %q exists live but was never part of the seed", a.Codename))
			blocked = true
		}
	}

	var elements []liveElementRow
	err = c.db.WithContext(ctx).
		Table(qualify(schema, tableElements)).
		Select("id", "sort_order", "data", "created_by", "updated_by").
		Where("entity_id = ? AND is_deleted = false", live.ID).
		Find(&elements).Error
	if err != nil && !pgerr.IsUndefinedTable(err) {
		return pgerr.Classify(err)
	}

	// Elements compare by content under canonical serialization, never by
	// insertion order.
	expected := map[string]int{}
	for _, el := range oldSeed.Elements[ent.Codename] {
		canon, err := CanonicalJSON(el.Data)
		if err != nil {
			return err
		}
		expected[elementKey(el.SortOrder, canon)]++
	}
	for _, el := range elements {
		if el.touched() {
			block(fmt.Sprintf("an element of %q was created or updated by a user", ent.Codename))
			blocked = true
			continue
		}
		canon, err := CanonicalJSON(el.Data)
		if err != nil {
			return err
		}
		k := elementKey(el.SortOrder, canon)
		if expected[k] == 0 {
			block(fmt.Sprintf("an element of %q does not match the seed content", ent.Codename))
			blocked = true
			continue
		}
		expected[k]--
	}

	var enums []liveAudit
	err = c.db.WithContext(ctx).
		Table(qualify(schema, tableEnumValues)).
		Select("id", "created_by", "updated_by").
		Where("entity_id = ? AND is_deleted = false", live.ID).
		Find(&enums).Error
	if err != nil && !pgerr.IsUndefinedTable(err) {
		return pgerr.Classify(err)
	}
	for _, ev := range enums {
		if ev.touched() {
			block(fmt.Sprintf("an enumeration value of %q was created or updated by a user", ent.Codename))
			blocked = true
			break
		}
	}

	if !blocked {
		summary.Candidates = append(summary.Candidates, CleanupCandidate{Kind: "entity", Key: key})
	}
	return nil
}

func elementKey(sortOrder int, canonicalData string) string {
	return fmt.Sprintf("%d|%s", sortOrder, canonicalData)
}

func (c *CleanupService) analyzeAttributeRemovals(ctx context.Context, schema string, ent SeedEntity, removed []SeedAttribute, summary *CleanupSummary) error {
	live, err := c.findEntity(ctx, c.db, schema, ent.Kind, ent.Codename)
	if err != nil || live == nil {
		return err
	}

	for _, seedAttr := range removed {
		key := ent.Codename + "." + seedAttr.Codename
		var rows []liveAttributeRow
		err := c.db.WithContext(ctx).
			Table(qualify(schema, tableAttributes)).
			Select("id", "codename", "data_type", "required", "default_value", "created_by", "updated_by").
			Where("entity_id = ? AND codename = ? AND is_deleted = false", live.ID, seedAttr.Codename).
			Limit(1).
			Find(&rows).Error
		if err != nil {
			if pgerr.IsUndefinedTable(err) {
				continue
			}
			return pgerr.Classify(err)
		}
		if len(rows) == 0 {
			continue
		}
		attr := rows[0]
		if attr.touched() {
			summary.Blockers = append(summary.Blockers, CleanupBlocker{
				Kind: "attribute", Key: key,
				Reason: "attribute was created or updated by a user",
			})
			continue
		}
		same, err := c.attributeMatchesSeed(attr, seedAttr)
		if err != nil {
			return err
		}
		if !same {
			summary.Blockers = append(summary.Blockers, CleanupBlocker{
				Kind: "attribute", Key: key,
				Reason: "attribute definition no longer matches the seed",
			})
			continue
		}
		summary.Candidates = append(summary.Candidates, CleanupCandidate{Kind: "attribute", Key: key})
	}
	return nil
}

func (c *CleanupService) attributeMatchesSeed(attr liveAttributeRow, seedAttr SeedAttribute) (bool, error) {
	if attr.DataType != seedAttr.DataType || attr.Required != seedAttr.Required {
		return false, nil
	}
	return CanonicalEqual(attr.DefaultValue, seedAttr.Default)
}

func (c *CleanupService) findSetting(ctx context.Context, conn *gorm.DB, schema, key string) (*liveSettingRow, error) {
	var rows []liveSettingRow
	err := conn.WithContext(ctx).
		Table(qualify(schema, tableSettings)).
		Select("id", "key", "value", "created_by", "updated_by").
		Where("key = ? AND is_deleted = false", key).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		if pgerr.IsUndefinedTable(err) {
			return nil, nil
		}
		return nil, pgerr.Classify(err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (c *CleanupService) analyzeSettingRemoval(ctx context.Context, schema string, setting SeedSetting, summary *CleanupSummary) error {
	live, err := c.findSetting(ctx, c.db, schema, setting.Key)
	if err != nil {
		return err
	}
	if live == nil {
		return nil
	}
	if live.touched() {
		summary.Blockers = append(summary.Blockers, CleanupBlocker{
			Kind: "setting", Key: setting.Key,
			Reason: "setting was created or updated by a user",
		})
		return nil
	}
	same, err := CanonicalEqual(live.Value, setting.Value)
	if err != nil {
		return err
	}
	if !same {
		summary.Blockers = append(summary.Blockers, CleanupBlocker{
			Kind: "setting", Key: setting.Key,
			Reason: "setting value no longer matches the seed",
		})
		return nil
	}
	summary.Candidates = append(summary.Candidates, CleanupCandidate{Kind: "setting", Key: setting.Key})
	return nil
}

// Apply runs the analysis and, in confirm mode only, soft-deletes every
// candidate inside one transaction. Cleanup is all-or-nothing: a single
// blocker anywhere means nothing is written, and the full blocker list is
// returned regardless of mode.
func (c *CleanupService) Apply(ctx context.Context, schema string, oldSeed, newSeed Seed, mode CleanupMode, actor *uuid.UUID) (*CleanupSummary, error) {
	summary, err := c.Analyze(ctx, schema, oldSeed, newSeed, mode)
	if err != nil {
		return nil, err
	}
	if mode != CleanupConfirm || summary.Blocked() || len(summary.Candidates) == 0 {
		return summary, nil
	}

	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, cand := range summary.Candidates {
			switch cand.Kind {
			case "entity":
				kind, codename := splitEntityKey(cand.Key)
				if err := c.softDeleteEntity(ctx, tx, schema, kind, codename, actor, summary); err != nil {
					return err
				}
			case "attribute":
				if err := c.softDeleteAttribute(ctx, tx, schema, oldSeed, cand.Key, actor, summary); err != nil {
					return err
				}
			case "setting":
				if err := c.softDeleteSetting(ctx, tx, schema, oldSeed, cand.Key, actor, summary); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown cleanup candidate kind %q", cand.Kind)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.log.Info("seed cleanup applied",
		"schema", schema,
		"entities", summary.EntitiesDeleted,
		"attributes", summary.AttributesDeleted,
		"elements", summary.ElementsDeleted,
		"settings", summary.SettingsDeleted)
	return summary, nil
}

func splitEntityKey(key string) (kind, codename string) {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return key[:i], key[i+1:]
		}
	}
	return "", key
}

// softDelete marks matching live rows deleted and bumps counter by the
// number of rows affected. The write predicate repeats the provenance guard:
// a row a user touched between analysis and this statement stays untouched
// no matter what the earlier analysis concluded.
func (c *CleanupService) softDelete(ctx context.Context, tx *gorm.DB, schema, table, where string, args []interface{}, actor *uuid.UUID, counter *int) error {
	now := time.Now().UTC()
	res := tx.WithContext(ctx).
		Table(qualify(schema, table)).
		Where(where+" AND is_deleted = false AND created_by IS NULL AND updated_by IS NULL", args...).
		Updates(map[string]interface{}{
			"is_deleted": true,
			"deleted_at": now,
			"deleted_by": actor,
			"updated_at": now,
		})
	if res.Error != nil {
		return pgerr.Classify(res.Error)
	}
	*counter += int(res.RowsAffected)
	return nil
}

// softDeleteEntity removes children before the parent row: elements and
// enumeration values, then attributes, then the entity itself. The entity is
// re-read inside the transaction; a row touched since analysis is skipped
// wholesale, children included.
func (c *CleanupService) softDeleteEntity(ctx context.Context, tx *gorm.DB, schema, kind, codename string, actor *uuid.UUID, summary *CleanupSummary) error {
	live, err := c.findEntity(ctx, tx, schema, kind, codename)
	if err != nil {
		return err
	}
	if live == nil || live.touched() {
		return nil
	}
	if err := c.softDelete(ctx, tx, schema, tableElements, "entity_id = ?", []interface{}{live.ID}, actor, &summary.ElementsDeleted); err != nil {
		return err
	}
	if err := c.softDelete(ctx, tx, schema, tableEnumValues, "entity_id = ?", []interface{}{live.ID}, actor, &summary.EnumerationValuesDeleted); err != nil {
		return err
	}
	if err := c.softDelete(ctx, tx, schema, tableAttributes, "entity_id = ?", []interface{}{live.ID}, actor, &summary.AttributesDeleted); err != nil {
		return err
	}
	return c.softDelete(ctx, tx, schema, tableEntities, "id = ?", []interface{}{live.ID}, actor, &summary.EntitiesDeleted)
}

func (c *CleanupService) softDeleteAttribute(ctx context.Context, tx *gorm.DB, schema string, oldSeed Seed, key string, actor *uuid.UUID, summary *CleanupSummary) error {
	// key is "<entityCodename>.<attrCodename>"
	var entityCodename, attrCodename string
	for i := 0; i < len(key); i++ {
		if key[i] == '.' {
			entityCodename, attrCodename = key[:i], key[i+1:]
			break
		}
	}
	var owner *SeedEntity
	for i := range oldSeed.Entities {
		if oldSeed.Entities[i].Codename == entityCodename {
			owner = &oldSeed.Entities[i]
			break
		}
	}
	if owner == nil {
		return fmt.Errorf("cleanup candidate %q has no owning entity in the old seed", key)
	}
	var seedAttr *SeedAttribute
	for i := range owner.Attributes {
		if owner.Attributes[i].Codename == attrCodename {
			seedAttr = &owner.Attributes[i]
			break
		}
	}
	live, err := c.findEntity(ctx, tx, schema, owner.Kind, entityCodename)
	if err != nil || live == nil {
		return err
	}

	// Re-verify the definition inside the transaction; analysis ran on an
	// earlier snapshot.
	var rows []liveAttributeRow
	err = tx.WithContext(ctx).
		Table(qualify(schema, tableAttributes)).
		Select("id", "codename", "data_type", "required", "default_value", "created_by", "updated_by").
		Where("entity_id = ? AND codename = ? AND is_deleted = false", live.ID, attrCodename).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return pgerr.Classify(err)
	}
	if len(rows) == 0 || rows[0].touched() {
		return nil
	}
	if seedAttr != nil {
		same, err := c.attributeMatchesSeed(rows[0], *seedAttr)
		if err != nil {
			return err
		}
		if !same {
			return nil
		}
	}
	return c.softDelete(ctx, tx, schema, tableAttributes,
		"entity_id = ? AND codename = ?", []interface{}{live.ID, attrCodename},
		actor, &summary.AttributesDeleted)
}

// softDeleteSetting re-reads the row inside the transaction and deletes only
// when it still carries exactly the old seed's value and no actor.
func (c *CleanupService) softDeleteSetting(ctx context.Context, tx *gorm.DB, schema string, oldSeed Seed, key string, actor *uuid.UUID, summary *CleanupSummary) error {
	var seedSetting *SeedSetting
	for i := range oldSeed.Settings {
		if oldSeed.Settings[i].Key == key {
			seedSetting = &oldSeed.Settings[i]
			break
		}
	}
	live, err := c.findSetting(ctx, tx, schema, key)
	if err != nil {
		return err
	}
	if live == nil || live.touched() {
		return nil
	}
	if seedSetting != nil {
		same, err := CanonicalEqual(live.Value, seedSetting.Value)
		if err != nil {
			return err
		}
		if !same {
			return nil
		}
	}
	return c.softDelete(ctx, tx, schema, tableSettings,
		"key = ?", []interface{}{key}, actor, &summary.SettingsDeleted)
}
