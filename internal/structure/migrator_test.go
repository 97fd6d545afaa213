package structure

import "testing"

func TestOrderForApply(t *testing.T) {
	in := []Change{
		{Kind: ChangeAddForeignKey, TableName: "a"},
		{Kind: ChangeAddIndex, TableName: "b"},
		{Kind: ChangeAddColumn, TableName: "c"},
		{Kind: ChangeAddTable, TableName: "d"},
		{Kind: ChangeAddColumn, TableName: "e"},
		{Kind: ChangeRenameTable, TableName: "f"},
		{Kind: ChangeRenameIndex, TableName: "g"},
	}

	out := orderForApply(in)

	// Renames run before adds so a new table's inline FK can already
	// reference a renamed table's new name.
	wantOrder := []string{"f", "d", "c", "e", "g", "b", "a"}
	if len(out) != len(wantOrder) {
		t.Fatalf("len = %d, want %d", len(out), len(wantOrder))
	}
	for i, want := range wantOrder {
		if out[i].TableName != want {
			got := make([]string, len(out))
			for j, c := range out {
				got[j] = c.TableName
			}
			t.Fatalf("order = %v, want %v", got, wantOrder)
		}
	}

	// Input must not be reordered in place.
	if in[0].Kind != ChangeAddForeignKey {
		t.Fatal("orderForApply mutated its input")
	}
}
