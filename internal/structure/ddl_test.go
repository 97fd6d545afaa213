package structure

import (
	"strings"
	"testing"
)

func TestColumnSQLType(t *testing.T) {
	cases := []struct {
		name string
		col  ColumnDefinition
		want string
	}{
		{name: "uuid", col: ColumnDefinition{Type: TypeUUID}, want: "uuid"},
		{name: "string_default_length", col: ColumnDefinition{Type: TypeString}, want: "varchar(255)"},
		{name: "string_custom_length", col: ColumnDefinition{Type: TypeString, Length: 190}, want: "varchar(190)"},
		{name: "json_is_jsonb", col: ColumnDefinition{Type: TypeJSON}, want: "jsonb"},
		{name: "timestamp_is_timestamptz", col: ColumnDefinition{Type: TypeTimestamp}, want: "timestamptz"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := columnSQLType(tc.col); got != tc.want {
				t.Fatalf("columnSQLType = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestColumnDefaultSymbols(t *testing.T) {
	cases := []struct {
		name string
		col  ColumnDefinition
		want string
	}{
		{name: "uuid_symbol", col: ColumnDefinition{Type: TypeUUID, Default: DefaultUUID}, want: "uuid_generate_v4()"},
		{name: "now_symbol", col: ColumnDefinition{Type: TypeTimestamp, Default: DefaultNow}, want: "now()"},
		{name: "string_literal_quoted", col: ColumnDefinition{Type: TypeString, Default: "it's"}, want: "'it''s'"},
		{name: "boolean_literal", col: ColumnDefinition{Type: TypeBoolean, Default: "false"}, want: "false"},
		{name: "none", col: ColumnDefinition{Type: TypeText}, want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := columnDefault(tc.col); got != tc.want {
				t.Fatalf("columnDefault = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCreateTableSQL(t *testing.T) {
	table := TableDefinition{
		Name: "entities",
		Columns: []ColumnDefinition{
			{Name: "id", Type: TypeUUID, Primary: true, Default: DefaultUUID},
			{Name: "kind", Type: TypeString, Length: 32},
			{Name: "codename", Type: TypeString, Length: 190, Indexed: true},
		},
		UniqueConstraints: [][]string{{"kind", "codename"}},
		ForeignKeys: []ForeignKeyDefinition{
			{Column: "parent_id", ReferencesTable: "entities", ReferencesColumn: "id", OnDelete: "CASCADE"},
		},
		Indexes: []IndexDefinition{
			{Name: "ix_entities_kind", Columns: []string{"kind"}},
		},
	}

	stmts := CreateTableSQL("upb_branch_ab", table)
	if len(stmts) != 3 {
		t.Fatalf("expected create + 2 index statements, got %d:\n%s", len(stmts), strings.Join(stmts, "\n"))
	}

	create := stmts[0]
	for _, want := range []string{
		`CREATE TABLE IF NOT EXISTS "upb_branch_ab"."entities"`,
		`"id" uuid DEFAULT uuid_generate_v4()`,
		`PRIMARY KEY ("id")`,
		`UNIQUE ("kind", "codename")`,
		`CONSTRAINT "fk_entities_parent_id" FOREIGN KEY ("parent_id") REFERENCES "upb_branch_ab"."entities" ("id") ON DELETE CASCADE`,
		`"created_at" timestamptz`,
		`"is_deleted" boolean`,
	} {
		if !strings.Contains(create, want) {
			t.Fatalf("CREATE TABLE missing %q:\n%s", want, create)
		}
	}

	if !strings.Contains(stmts[1], `CREATE INDEX IF NOT EXISTS "ix_entities_codename"`) {
		t.Fatalf("indexed column statement wrong: %s", stmts[1])
	}
	if !strings.Contains(stmts[2], `CREATE INDEX IF NOT EXISTS "ix_entities_kind"`) {
		t.Fatalf("named index statement wrong: %s", stmts[2])
	}
}

func TestCreateIndexSQLVariants(t *testing.T) {
	cases := []struct {
		name string
		ix   IndexDefinition
		want []string
	}{
		{
			name: "unique_partial",
			ix:   IndexDefinition{Name: "uq_layouts_single_default", Columns: []string{"is_default"}, Unique: true, Where: "is_default = true AND is_deleted = false"},
			want: []string{"CREATE UNIQUE INDEX IF NOT EXISTS", "USING btree", "WHERE is_default = true AND is_deleted = false"},
		},
		{
			name: "gin",
			ix:   IndexDefinition{Name: "ix_entity_elements_data", Columns: []string{"data"}, Method: MethodGIN},
			want: []string{"USING gin", `("data")`},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stmt := CreateIndexSQL("s", "t", tc.ix)
			for _, w := range tc.want {
				if !strings.Contains(stmt, w) {
					t.Fatalf("statement missing %q: %s", w, stmt)
				}
			}
		})
	}
}

// Columns added by ALTER are always nullable; backfilling and tightening is
// a separate, manual concern.
func TestAddColumnSQLAlwaysNullable(t *testing.T) {
	stmt := AddColumnSQL("s", "entities", ColumnDefinition{Name: "sort_order", Type: TypeInteger, Nullable: false})
	if strings.Contains(stmt, "NOT NULL") {
		t.Fatalf("ALTER ADD COLUMN must not carry NOT NULL: %s", stmt)
	}
	if !strings.Contains(stmt, `ADD COLUMN IF NOT EXISTS "sort_order" integer`) {
		t.Fatalf("unexpected statement: %s", stmt)
	}
}

func TestRenameSQL(t *testing.T) {
	if got := RenameTableSQL("s", "layout_widgets", "layout_zone_widgets"); got != `ALTER TABLE "s"."layout_widgets" RENAME TO "layout_zone_widgets"` {
		t.Fatalf("RenameTableSQL = %s", got)
	}
	if got := RenameIndexSQL("s", "ix_old", "ix_new"); got != `ALTER INDEX "s"."ix_old" RENAME TO "ix_new"` {
		t.Fatalf("RenameIndexSQL = %s", got)
	}
}

func TestApplyRejectsDestructive(t *testing.T) {
	a := NewApplier(testLogger())
	err := a.Apply(t.Context(), nil, "s", Change{Kind: ChangeDropTable, Destructive: true, TableName: "entities"})
	if err == nil {
		t.Fatal("destructive change must be rejected")
	}
	err = a.Apply(t.Context(), nil, "s", Change{Kind: ChangeKind("EXPLODE_TABLE"), TableName: "entities"})
	if err == nil || !strings.Contains(err.Error(), "unknown structure change kind") {
		t.Fatalf("unknown kind must be rejected, got %v", err)
	}
}
