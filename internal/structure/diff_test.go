package structure

import (
	"strings"
	"testing"
)

func objectsTable() TableDefinition {
	return TableDefinition{
		Name: "objects",
		Columns: []ColumnDefinition{
			{Name: "id", Type: TypeUUID, Primary: true, Default: DefaultUUID},
			{Name: "codename", Type: TypeString, Length: 190},
		},
	}
}

func kinds(changes []Change) []ChangeKind {
	out := make([]ChangeKind, 0, len(changes))
	for _, c := range changes {
		out = append(out, c.Kind)
	}
	return out
}

func TestDiffAddTableAndColumn(t *testing.T) {
	oldDefs := []TableDefinition{objectsTable()}

	withSort := objectsTable()
	withSort.Columns = append(withSort.Columns, ColumnDefinition{Name: "sort_order", Type: TypeInteger, Nullable: true})
	newDefs := []TableDefinition{
		withSort,
		{
			Name: "values",
			Columns: []ColumnDefinition{
				{Name: "id", Type: TypeUUID, Primary: true, Default: DefaultUUID},
				{Name: "object_id", Type: TypeUUID},
			},
		},
	}

	res := Diff(oldDefs, newDefs, 1, 2)

	if len(res.Destructive) != 0 {
		t.Fatalf("expected no destructive changes, got %v", kinds(res.Destructive))
	}
	got := kinds(res.Additive)
	want := []ChangeKind{ChangeAddColumn, ChangeAddTable}
	if len(got) != len(want) {
		t.Fatalf("additive kinds = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("additive kinds = %v, want %v", got, want)
		}
	}
	if res.Additive[0].Column == nil || res.Additive[0].Column.Name != "sort_order" {
		t.Fatalf("expected sort_order column change, got %+v", res.Additive[0])
	}
	if res.Additive[1].TableName != "values" {
		t.Fatalf("expected values table change, got %+v", res.Additive[1])
	}
}

func TestDiffRenameTableEmitsSingleRename(t *testing.T) {
	oldDefs := []TableDefinition{objectsTable()}

	renamed := objectsTable()
	renamed.Name = "catalog_objects"
	renamed.RenamedFrom = []string{"objects"}
	newDefs := []TableDefinition{renamed}

	res := Diff(oldDefs, newDefs, 1, 2)

	if len(res.Destructive) != 0 {
		t.Fatalf("rename must not be an add+drop pair, destructive = %v", kinds(res.Destructive))
	}
	renames := 0
	for _, c := range res.Additive {
		switch c.Kind {
		case ChangeRenameTable:
			renames++
			if c.FromName != "objects" || c.TableName != "catalog_objects" {
				t.Fatalf("rename change wrong: %+v", c)
			}
		case ChangeAddTable, ChangeDropTable:
			t.Fatalf("unexpected %s alongside rename", c.Kind)
		}
	}
	if renames != 1 {
		t.Fatalf("expected exactly one RENAME_TABLE, got %d", renames)
	}
}

func TestDiffDeterminism(t *testing.T) {
	oldDefs := DefaultVersions()[0]
	newDefs := DefaultVersions()[1]

	a := Diff(oldDefs, newDefs, 1, 2)
	b := Diff(oldDefs, newDefs, 1, 2)

	if a.Summary != b.Summary {
		t.Fatalf("summary not deterministic:\n%s\n%s", a.Summary, b.Summary)
	}
	if len(a.Additive) != len(b.Additive) || len(a.Destructive) != len(b.Destructive) {
		t.Fatalf("change counts differ across runs")
	}
	for i := range a.Additive {
		if a.Additive[i].Description != b.Additive[i].Description {
			t.Fatalf("additive[%d] differs: %q vs %q", i, a.Additive[i].Description, b.Additive[i].Description)
		}
	}
}

func TestDiffNullableChanges(t *testing.T) {
	cases := []struct {
		name            string
		oldNullable     bool
		newNullable     bool
		wantDestructive bool
	}{
		{name: "tighten_is_destructive", oldNullable: true, newNullable: false, wantDestructive: true},
		{name: "relax_is_additive", oldNullable: false, newNullable: true, wantDestructive: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			oldTable := objectsTable()
			oldTable.Columns[1].Nullable = tc.oldNullable
			newTable := objectsTable()
			newTable.Columns[1].Nullable = tc.newNullable

			res := Diff([]TableDefinition{oldTable}, []TableDefinition{newTable}, 1, 2)
			if tc.wantDestructive {
				if len(res.Destructive) != 1 || res.Destructive[0].Kind != ChangeAlterColumn {
					t.Fatalf("expected one destructive ALTER_COLUMN, got %v / %v", kinds(res.Additive), kinds(res.Destructive))
				}
				return
			}
			if len(res.Destructive) != 0 || len(res.Additive) != 1 || res.Additive[0].Kind != ChangeAlterColumn {
				t.Fatalf("expected one additive ALTER_COLUMN, got %v / %v", kinds(res.Additive), kinds(res.Destructive))
			}
		})
	}
}

func TestDiffTypeChangeIsDestructive(t *testing.T) {
	oldTable := objectsTable()
	newTable := objectsTable()
	newTable.Columns[1].Type = TypeText

	res := Diff([]TableDefinition{oldTable}, []TableDefinition{newTable}, 3, 4)
	if len(res.Destructive) != 1 || res.Destructive[0].Kind != ChangeAlterColumn {
		t.Fatalf("type change must be destructive, got %v / %v", kinds(res.Additive), kinds(res.Destructive))
	}
	if len(res.Additive) != 0 {
		t.Fatalf("type change must not produce additive entries, got %v", kinds(res.Additive))
	}
}

func TestDiffDropTableIsDestructive(t *testing.T) {
	res := Diff([]TableDefinition{objectsTable()}, nil, 1, 2)
	if len(res.Destructive) != 1 || res.Destructive[0].Kind != ChangeDropTable {
		t.Fatalf("expected DROP_TABLE, got %v", kinds(res.Destructive))
	}
	if !strings.Contains(res.Summary, "0 additive, 1 destructive") {
		t.Fatalf("summary = %q", res.Summary)
	}
}

func TestDiffIndexRenameFirstClaimWins(t *testing.T) {
	oldTable := objectsTable()
	oldTable.Indexes = []IndexDefinition{
		{Name: "ix_objects_codename", Columns: []string{"codename"}},
	}
	newTable := objectsTable()
	newTable.Indexes = []IndexDefinition{
		{Name: "ix_objects_code", Columns: []string{"codename"}, RenamedFrom: []string{"ix_objects_codename"}},
		{Name: "ix_objects_code_alt", Columns: []string{"codename"}, RenamedFrom: []string{"ix_objects_codename"}},
	}

	res := Diff([]TableDefinition{oldTable}, []TableDefinition{newTable}, 1, 2)

	var renames, adds int
	for _, c := range res.Additive {
		switch c.Kind {
		case ChangeRenameIndex:
			renames++
			if c.FromName != "ix_objects_codename" || c.Index.Name != "ix_objects_code" {
				t.Fatalf("first declared index should claim the rename, got %+v", c)
			}
		case ChangeAddIndex:
			adds++
			if c.Index.Name != "ix_objects_code_alt" {
				t.Fatalf("second claimant should fall back to ADD_INDEX, got %+v", c)
			}
		}
	}
	if renames != 1 || adds != 1 {
		t.Fatalf("expected 1 rename + 1 add, got %d renames %d adds", renames, adds)
	}
}

func TestDiffForeignKeyIdentity(t *testing.T) {
	oldTable := objectsTable()
	oldTable.ForeignKeys = []ForeignKeyDefinition{
		{Column: "parent_id", ReferencesTable: "objects", ReferencesColumn: "id", OnDelete: "CASCADE"},
	}
	newTable := objectsTable()
	newTable.ForeignKeys = []ForeignKeyDefinition{
		{Column: "parent_id", ReferencesTable: "objects", ReferencesColumn: "id", OnDelete: "CASCADE"},
		{Column: "owner_id", ReferencesTable: "entities", ReferencesColumn: "id", OnDelete: "SET NULL"},
	}

	res := Diff([]TableDefinition{oldTable}, []TableDefinition{newTable}, 1, 2)
	if len(res.Destructive) != 0 {
		t.Fatalf("unchanged FK must not be dropped, got %v", kinds(res.Destructive))
	}
	if len(res.Additive) != 1 || res.Additive[0].Kind != ChangeAddForeignKey {
		t.Fatalf("expected one ADD_FK, got %v", kinds(res.Additive))
	}
}

func TestDiffIdenticalInputsEmpty(t *testing.T) {
	defs := DefaultVersions()[2]
	res := Diff(defs, defs, 3, 3)
	if !res.Empty() {
		t.Fatalf("diff of identical definitions must be empty: %s", res.Summary)
	}
}
