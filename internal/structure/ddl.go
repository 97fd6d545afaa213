package structure

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/teknokomo/universo-platformo-backend/internal/pkg/logger"
	"github.com/teknokomo/universo-platformo-backend/internal/platform/pgerr"
)

// Applier turns declarative table definitions into DDL against one branch
// schema. All statements are idempotent where Postgres allows it, so a
// replayed migration step is a no-op rather than an error.
type Applier struct {
	log *logger.Logger
}

func NewApplier(baseLog *logger.Logger) *Applier {
	return &Applier{log: baseLog.With("component", "StructureApplier")}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func qualify(schema, table string) string {
	return quoteIdent(schema) + "." + quoteIdent(table)
}

func columnSQLType(c ColumnDefinition) string {
	switch c.Type {
	case TypeUUID:
		return "uuid"
	case TypeString:
		length := c.Length
		if length == 0 {
			length = 255
		}
		return fmt.Sprintf("varchar(%d)", length)
	case TypeText:
		return "text"
	case TypeInteger:
		return "integer"
	case TypeBoolean:
		return "boolean"
	case TypeJSON:
		return "jsonb"
	case TypeTimestamp:
		return "timestamptz"
	default:
		// Unknown abstract types cannot be guessed at; the catalog is
		// validated by tests, so this only fires on a programming error.
		return string(c.Type)
	}
}

func columnDefault(c ColumnDefinition) string {
	switch c.Default {
	case "":
		return ""
	case DefaultUUID:
		return "uuid_generate_v4()"
	case DefaultNow:
		return "now()"
	default:
		if c.Type == TypeString || c.Type == TypeText {
			return "'" + strings.ReplaceAll(c.Default, "'", "''") + "'"
		}
		return c.Default
	}
}

// columnClause renders one column for CREATE TABLE, honoring the declared
// nullability.
func columnClause(c ColumnDefinition) string {
	var b strings.Builder
	b.WriteString(quoteIdent(c.Name))
	b.WriteString(" ")
	b.WriteString(columnSQLType(c))
	if d := columnDefault(c); d != "" {
		b.WriteString(" DEFAULT ")
		b.WriteString(d)
	}
	if !c.Nullable && !c.Primary {
		b.WriteString(" NOT NULL")
	}
	return b.String()
}

// CreateTableSQL renders the full CREATE TABLE statement (shared columns
// merged in) plus the trailing statements for named, partial and GIN indexes
// that cannot be expressed inside the CREATE.
func CreateTableSQL(schema string, table TableDefinition) []string {
	full := WithSharedColumns(table)
	var cols []string
	var pk []string
	for _, c := range full.Columns {
		cols = append(cols, columnClause(c))
		if c.Primary {
			pk = append(pk, quoteIdent(c.Name))
		}
	}
	if len(pk) > 0 {
		cols = append(cols, "PRIMARY KEY ("+strings.Join(pk, ", ")+")")
	}
	for _, uq := range full.UniqueConstraints {
		quoted := make([]string, len(uq))
		for i, col := range uq {
			quoted[i] = quoteIdent(col)
		}
		cols = append(cols, "UNIQUE ("+strings.Join(quoted, ", ")+")")
	}
	for _, fk := range full.ForeignKeys {
		cols = append(cols, fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)%s",
			quoteIdent(fkName(full.Name, fk)),
			quoteIdent(fk.Column),
			qualify(schema, fk.ReferencesTable),
			quoteIdent(fk.ReferencesColumn),
			onDeleteClause(fk)))
	}

	stmts := []string{fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)",
		qualify(schema, full.Name), strings.Join(cols, ",\n  "))}

	for _, c := range full.Columns {
		if !c.Indexed {
			continue
		}
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			quoteIdent("ix_"+full.Name+"_"+c.Name), qualify(schema, full.Name), quoteIdent(c.Name)))
	}
	for _, ix := range full.Indexes {
		stmts = append(stmts, CreateIndexSQL(schema, full.Name, ix))
	}
	return stmts
}

func onDeleteClause(fk ForeignKeyDefinition) string {
	if fk.OnDelete == "" {
		return ""
	}
	return " ON DELETE " + fk.OnDelete
}

func fkName(table string, fk ForeignKeyDefinition) string {
	return "fk_" + table + "_" + fk.Column
}

func CreateIndexSQL(schema, table string, ix IndexDefinition) string {
	unique := ""
	if ix.Unique {
		unique = "UNIQUE "
	}
	quoted := make([]string, len(ix.Columns))
	for i, col := range ix.Columns {
		quoted[i] = quoteIdent(col)
	}
	stmt := fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s USING %s (%s)",
		unique, quoteIdent(ix.Name), qualify(schema, table), normalizeMethod(ix.Method), strings.Join(quoted, ", "))
	if ix.Where != "" {
		stmt += " WHERE " + ix.Where
	}
	return stmt
}

// AddColumnSQL renders ALTER TABLE ADD COLUMN. The column is always created
// nullable regardless of its declared nullability: adding NOT NULL to a
// populated table is unsafe without a backfill, and this relaxation is
// permanent, not a gap.
func AddColumnSQL(schema, table string, c ColumnDefinition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s",
		qualify(schema, table), quoteIdent(c.Name), columnSQLType(c))
	if d := columnDefault(c); d != "" {
		b.WriteString(" DEFAULT ")
		b.WriteString(d)
	}
	return b.String()
}

func RenameTableSQL(schema, from, to string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME TO %s", qualify(schema, from), quoteIdent(to))
}

func RenameIndexSQL(schema, from, to string) string {
	return fmt.Sprintf("ALTER INDEX %s RENAME TO %s", qualify(schema, from), quoteIdent(to))
}

func DropNotNullSQL(schema, table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL",
		qualify(schema, table), quoteIdent(column))
}

func AddForeignKeySQL(schema, table string, fk ForeignKeyDefinition) string {
	return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)%s",
		qualify(schema, table),
		quoteIdent(fkName(table, fk)),
		quoteIdent(fk.Column),
		qualify(schema, fk.ReferencesTable),
		quoteIdent(fk.ReferencesColumn),
		onDeleteClause(fk))
}

func (a *Applier) exec(ctx context.Context, tx *gorm.DB, stmt string) error {
	if err := tx.WithContext(ctx).Exec(stmt).Error; err != nil {
		return pgerr.Classify(fmt.Errorf("ddl failed: %s: %w", stmt, err))
	}
	return nil
}

func (a *Applier) constraintExists(ctx context.Context, tx *gorm.DB, schema, name string) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).
		Raw(`SELECT count(*) FROM pg_constraint c
		     JOIN pg_namespace n ON n.oid = c.connamespace
		     WHERE n.nspname = ? AND c.conname = ?`, schema, name).
		Scan(&count).Error
	if err != nil {
		return false, pgerr.Classify(err)
	}
	return count > 0, nil
}

// Apply executes one additive change inside the caller's transaction. The
// switch is exhaustive over the closed change-kind set; destructive kinds
// are rejected outright because there is no automatic application path for
// them.
func (a *Applier) Apply(ctx context.Context, tx *gorm.DB, schema string, ch Change) error {
	if ch.Destructive {
		return fmt.Errorf("destructive change %s on %s cannot be auto-applied", ch.Kind, ch.TableName)
	}
	switch ch.Kind {
	case ChangeAddTable:
		if ch.Table == nil {
			return fmt.Errorf("%s without table definition", ch.Kind)
		}
		for _, stmt := range CreateTableSQL(schema, *ch.Table) {
			if err := a.exec(ctx, tx, stmt); err != nil {
				return err
			}
		}
		return nil
	case ChangeRenameTable:
		// Engine rename primitive: data stays in place.
		return a.exec(ctx, tx, RenameTableSQL(schema, ch.FromName, ch.TableName))
	case ChangeAddColumn:
		if ch.Column == nil {
			return fmt.Errorf("%s without column definition", ch.Kind)
		}
		return a.exec(ctx, tx, AddColumnSQL(schema, ch.TableName, *ch.Column))
	case ChangeAlterColumn:
		// The only additive ALTER_COLUMN is a nullable relaxation.
		if ch.Column == nil {
			return fmt.Errorf("%s without column definition", ch.Kind)
		}
		return a.exec(ctx, tx, DropNotNullSQL(schema, ch.TableName, ch.Column.Name))
	case ChangeAddIndex:
		if ch.Index == nil {
			return fmt.Errorf("%s without index definition", ch.Kind)
		}
		return a.exec(ctx, tx, CreateIndexSQL(schema, ch.TableName, *ch.Index))
	case ChangeRenameIndex:
		return a.exec(ctx, tx, RenameIndexSQL(schema, ch.FromName, ch.Index.Name))
	case ChangeAddForeignKey:
		if ch.ForeignKey == nil {
			return fmt.Errorf("%s without foreign key definition", ch.Kind)
		}
		exists, err := a.constraintExists(ctx, tx, schema, fkName(ch.TableName, *ch.ForeignKey))
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		return a.exec(ctx, tx, AddForeignKeySQL(schema, ch.TableName, *ch.ForeignKey))
	case ChangeDropTable, ChangeDropColumn, ChangeDropIndex, ChangeDropForeignKey:
		return fmt.Errorf("destructive change %s on %s cannot be auto-applied", ch.Kind, ch.TableName)
	default:
		return fmt.Errorf("unknown structure change kind %q", ch.Kind)
	}
}

// EnsureSchema creates the branch schema and the extension the uuid default
// depends on.
func (a *Applier) EnsureSchema(ctx context.Context, tx *gorm.DB, schema string) error {
	if err := a.exec(ctx, tx, `CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`); err != nil {
		return err
	}
	return a.exec(ctx, tx, "CREATE SCHEMA IF NOT EXISTS "+quoteIdent(schema))
}
