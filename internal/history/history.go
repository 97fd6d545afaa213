package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/teknokomo/universo-platformo-backend/internal/pkg/logger"
	"github.com/teknokomo/universo-platformo-backend/internal/platform/pgerr"
)

const TableName = "migration_history"

// Meta types recorded alongside migration rows.
const (
	MetaBaseline          = "baseline"
	MetaStructure         = "structure"
	MetaTemplateSeed      = "template_seed"
	MetaManualDestructive = "manual_destructive"
)

// Record is one row of a branch schema's migration-history table. The table
// is a forward-only log: rows are appended when a step commits and are never
// rewritten, even when a later step of the same apply call fails.
type Record struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	FromVersion int            `json:"from_version"`
	ToVersion   int            `json:"to_version"`
	AppliedAt   time.Time      `json:"applied_at"`
	Meta        datatypes.JSON `json:"meta,omitempty"`
}

type StructureMeta struct {
	Applied            []string `json:"applied"`
	SkippedDestructive []string `json:"skippedDestructive,omitempty"`
}

type TemplateSeedMeta struct {
	TemplateVersionID    uuid.UUID      `json:"templateVersionId"`
	TemplateVersionLabel string         `json:"templateVersionLabel"`
	Counts               map[string]int `json:"counts,omitempty"`
}

type ManualDestructiveMeta struct {
	Statements []string   `json:"statements,omitempty"`
	Note       string     `json:"note,omitempty"`
	Actor      *uuid.UUID `json:"actor,omitempty"`
}

// Meta is the decoded tagged payload of a record. Exactly one of the shape
// pointers is set, matching Type.
type Meta struct {
	Type              string                 `json:"type"`
	Structure         *StructureMeta         `json:"-"`
	TemplateSeed      *TemplateSeedMeta      `json:"-"`
	ManualDestructive *ManualDestructiveMeta `json:"-"`
}

// ParseMeta decodes a stored meta payload. Malformed or legacy payloads
// decode to nil so history listing never fails on old rows.
func ParseMeta(raw []byte) *Meta {
	if len(raw) == 0 {
		return nil
	}
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil
	}
	m := &Meta{Type: envelope.Type}
	switch envelope.Type {
	case MetaBaseline:
		return m
	case MetaStructure:
		var s StructureMeta
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		m.Structure = &s
	case MetaTemplateSeed:
		var s TemplateSeedMeta
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		m.TemplateSeed = &s
	case MetaManualDestructive:
		var s ManualDestructiveMeta
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		m.ManualDestructive = &s
	default:
		return nil
	}
	return m
}

// EncodeMeta renders a meta payload for storage, injecting the type tag.
func EncodeMeta(metaType string, shape interface{}) (datatypes.JSON, error) {
	body := map[string]interface{}{"type": metaType}
	if shape != nil {
		raw, err := json.Marshal(shape)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, err
		}
		body["type"] = metaType
	}
	out, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(out), nil
}

// Store reads and writes a branch schema's migration-history table.
type Store struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStore(db *gorm.DB, baseLog *logger.Logger) *Store {
	return &Store{db: db, log: baseLog.With("component", "MigrationHistory")}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// rawQualified is for hand-built SQL; ormQualified feeds gorm's Table(),
// which quotes the dotted parts itself.
func (s *Store) rawQualified(schema string) string {
	return quoteIdent(schema) + "." + quoteIdent(TableName)
}

func (s *Store) ormQualified(schema string) string {
	return schema + "." + TableName
}

func (s *Store) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

// EnsureTable creates the history table inside schema if missing.
func (s *Store) EnsureTable(ctx context.Context, tx *gorm.DB, schema string) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  "id" uuid PRIMARY KEY DEFAULT uuid_generate_v4(),
  "name" varchar(255) NOT NULL,
  "from_version" integer NOT NULL,
  "to_version" integer NOT NULL,
  "applied_at" timestamptz NOT NULL DEFAULT now(),
  "meta" jsonb
)`, s.rawQualified(schema))
	if err := s.conn(tx).WithContext(ctx).Exec(stmt).Error; err != nil {
		return pgerr.Classify(err)
	}
	return nil
}

// Insert appends one record inside the caller's transaction.
func (s *Store) Insert(ctx context.Context, tx *gorm.DB, schema string, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.AppliedAt.IsZero() {
		rec.AppliedAt = time.Now().UTC()
	}
	row := map[string]interface{}{
		"id":           rec.ID,
		"name":         rec.Name,
		"from_version": rec.FromVersion,
		"to_version":   rec.ToVersion,
		"applied_at":   rec.AppliedAt,
		"meta":         rec.Meta,
	}
	if err := s.conn(tx).WithContext(ctx).Table(s.ormQualified(schema)).Create(row).Error; err != nil {
		return pgerr.Classify(err)
	}
	return nil
}

// List returns records newest-first with the total row count for paging.
func (s *Store) List(ctx context.Context, schema string, limit, offset int) ([]Record, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var total int64
	if err := s.db.WithContext(ctx).Table(s.ormQualified(schema)).Count(&total).Error; err != nil {
		if pgerr.IsUndefinedTable(err) {
			return nil, 0, nil
		}
		return nil, 0, pgerr.Classify(err)
	}
	var rows []Record
	err := s.db.WithContext(ctx).
		Table(s.ormQualified(schema)).
		Order("applied_at DESC, name DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, 0, pgerr.Classify(err)
	}
	return rows, total, nil
}

// Latest returns up to n most recent records, tolerating a missing table.
func (s *Store) Latest(ctx context.Context, schema string, n int) ([]Record, error) {
	rows, _, err := s.List(ctx, schema, n, 0)
	return rows, err
}
