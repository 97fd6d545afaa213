package structure

import (
	"fmt"
	"strings"
)

// DiffResult is the computed delta between two consecutive structure
// versions. Additive changes are safe to auto-apply; destructive changes are
// surfaced as blockers and never applied automatically.
type DiffResult struct {
	FromVersion int
	ToVersion   int
	Additive    []Change
	Destructive []Change
	Summary     string
}

func (r DiffResult) Empty() bool {
	return len(r.Additive) == 0 && len(r.Destructive) == 0
}

// Diff compares two complete table lists. Both sides get the shared column
// blocks appended before comparison, so shared-field evolution diffs exactly
// like any table's own columns. Output ordering follows the insertion order
// of the new definitions (then the old definitions for pure drops), which
// keeps the summary deterministic.
func Diff(oldDefs, newDefs []TableDefinition, fromVersion, toVersion int) DiffResult {
	res := DiffResult{FromVersion: fromVersion, ToVersion: toVersion}

	oldByName := make(map[string]TableDefinition, len(oldDefs))
	for _, t := range oldDefs {
		oldByName[t.Name] = WithSharedColumns(t)
	}
	claimed := make(map[string]bool, len(oldDefs))

	for _, raw := range newDefs {
		newTable := WithSharedColumns(raw)

		if oldTable, ok := oldByName[newTable.Name]; ok {
			claimed[newTable.Name] = true
			diffTablePair(&res, oldTable, newTable)
			continue
		}

		// Rename matching: first unclaimed renamedFrom candidate wins. If two
		// new tables name the same source, whichever is declared first claims
		// it; this order dependence is deliberate and documented.
		renamed := false
		for _, from := range newTable.RenamedFrom {
			oldTable, ok := oldByName[from]
			if !ok || claimed[from] {
				continue
			}
			claimed[from] = true
			res.Additive = append(res.Additive, Change{
				Kind:        ChangeRenameTable,
				Description: fmt.Sprintf("rename table %s to %s", from, newTable.Name),
				TableName:   newTable.Name,
				FromName:    from,
				Table:       &newTable,
			})
			diffTablePair(&res, oldTable, newTable)
			renamed = true
			break
		}
		if renamed {
			continue
		}

		res.Additive = append(res.Additive, Change{
			Kind:        ChangeAddTable,
			Description: fmt.Sprintf("create table %s", newTable.Name),
			TableName:   newTable.Name,
			Table:       &newTable,
		})
	}

	for _, t := range oldDefs {
		if claimed[t.Name] {
			continue
		}
		dropped := WithSharedColumns(t)
		res.Destructive = append(res.Destructive, Change{
			Kind:        ChangeDropTable,
			Destructive: true,
			Description: fmt.Sprintf("drop table %s (and all of its rows)", t.Name),
			TableName:   t.Name,
			Table:       &dropped,
		})
	}

	res.Summary = summarize(res)
	return res
}

// diffTablePair appends the column, index and foreign-key deltas of one
// matched table pair. Both sides already carry the shared blocks.
func diffTablePair(res *DiffResult, oldTable, newTable TableDefinition) {
	diffColumns(res, oldTable, newTable)
	diffIndexes(res, oldTable, newTable)
	diffForeignKeys(res, oldTable, newTable)
}

func diffColumns(res *DiffResult, oldTable, newTable TableDefinition) {
	oldCols := make(map[string]ColumnDefinition, len(oldTable.Columns))
	for _, c := range oldTable.Columns {
		oldCols[c.Name] = c
	}
	seen := make(map[string]bool, len(newTable.Columns))

	for _, nc := range newTable.Columns {
		nc := nc
		seen[nc.Name] = true
		oc, ok := oldCols[nc.Name]
		if !ok {
			res.Additive = append(res.Additive, Change{
				Kind:        ChangeAddColumn,
				Description: fmt.Sprintf("add column %s.%s (%s)", newTable.Name, nc.Name, nc.Type),
				TableName:   newTable.Name,
				Column:      &nc,
			})
			continue
		}
		if oc.Type != nc.Type {
			res.Destructive = append(res.Destructive, Change{
				Kind:        ChangeAlterColumn,
				Destructive: true,
				Description: fmt.Sprintf("alter column %s.%s type %s -> %s", newTable.Name, nc.Name, oc.Type, nc.Type),
				TableName:   newTable.Name,
				Column:      &nc,
			})
			continue
		}
		if oc.Nullable != nc.Nullable {
			if oc.Nullable && !nc.Nullable {
				res.Destructive = append(res.Destructive, Change{
					Kind:        ChangeAlterColumn,
					Destructive: true,
					Description: fmt.Sprintf("tighten column %s.%s to NOT NULL", newTable.Name, nc.Name),
					TableName:   newTable.Name,
					Column:      &nc,
				})
			} else {
				res.Additive = append(res.Additive, Change{
					Kind:        ChangeAlterColumn,
					Description: fmt.Sprintf("relax column %s.%s to nullable", newTable.Name, nc.Name),
					TableName:   newTable.Name,
					Column:      &nc,
				})
			}
		}
	}

	for _, oc := range oldTable.Columns {
		oc := oc
		if seen[oc.Name] {
			continue
		}
		res.Destructive = append(res.Destructive, Change{
			Kind:        ChangeDropColumn,
			Destructive: true,
			Description: fmt.Sprintf("drop column %s.%s", newTable.Name, oc.Name),
			TableName:   newTable.Name,
			Column:      &oc,
		})
	}
}

func sameIndexShape(a, b IndexDefinition) bool {
	if a.Unique != b.Unique || a.Where != b.Where || normalizeMethod(a.Method) != normalizeMethod(b.Method) {
		return false
	}
	if len(a.Columns) != len(b.Columns) {
		return false
	}
	for i := range a.Columns {
		if a.Columns[i] != b.Columns[i] {
			return false
		}
	}
	return true
}

func normalizeMethod(m IndexMethod) IndexMethod {
	if m == "" {
		return MethodBTree
	}
	return m
}

func diffIndexes(res *DiffResult, oldTable, newTable TableDefinition) {
	oldIdx := make(map[string]IndexDefinition, len(oldTable.Indexes))
	for _, ix := range oldTable.Indexes {
		oldIdx[ix.Name] = ix
	}
	claimed := make(map[string]bool, len(oldTable.Indexes))

	for _, nix := range newTable.Indexes {
		nix := nix
		if oix, ok := oldIdx[nix.Name]; ok {
			claimed[nix.Name] = true
			if !sameIndexShape(oix, nix) {
				// A reshaped index is a drop of the old definition plus a
				// create of the new one; the drop side stays manual.
				res.Destructive = append(res.Destructive, Change{
					Kind:        ChangeDropIndex,
					Destructive: true,
					Description: fmt.Sprintf("index %s on %s changed shape; old definition must be dropped", nix.Name, newTable.Name),
					TableName:   newTable.Name,
					Index:       &oix,
				})
				res.Additive = append(res.Additive, Change{
					Kind:        ChangeAddIndex,
					Description: fmt.Sprintf("create index %s on %s", nix.Name, newTable.Name),
					TableName:   newTable.Name,
					Index:       &nix,
				})
			}
			continue
		}

		// Rename probe keyed by name only; first claim wins when two indexes
		// name the same renamedFrom source.
		renamed := false
		for _, from := range nix.RenamedFrom {
			oix, ok := oldIdx[from]
			if !ok || claimed[from] {
				continue
			}
			claimed[from] = true
			if sameIndexShape(oix, nix) {
				res.Additive = append(res.Additive, Change{
					Kind:        ChangeRenameIndex,
					Description: fmt.Sprintf("rename index %s to %s", from, nix.Name),
					TableName:   newTable.Name,
					FromName:    from,
					Index:       &nix,
				})
			} else {
				res.Destructive = append(res.Destructive, Change{
					Kind:        ChangeDropIndex,
					Destructive: true,
					Description: fmt.Sprintf("index %s replaces %s on %s with a different shape; old index must be dropped", nix.Name, from, newTable.Name),
					TableName:   newTable.Name,
					Index:       &oix,
				})
				res.Additive = append(res.Additive, Change{
					Kind:        ChangeAddIndex,
					Description: fmt.Sprintf("create index %s on %s", nix.Name, newTable.Name),
					TableName:   newTable.Name,
					Index:       &nix,
				})
			}
			renamed = true
			break
		}
		if renamed {
			continue
		}

		res.Additive = append(res.Additive, Change{
			Kind:        ChangeAddIndex,
			Description: fmt.Sprintf("create index %s on %s", nix.Name, newTable.Name),
			TableName:   newTable.Name,
			Index:       &nix,
		})
	}

	for _, oix := range oldTable.Indexes {
		oix := oix
		if claimed[oix.Name] {
			continue
		}
		found := false
		for _, nix := range newTable.Indexes {
			if nix.Name == oix.Name {
				found = true
				break
			}
		}
		if found {
			continue
		}
		res.Destructive = append(res.Destructive, Change{
			Kind:        ChangeDropIndex,
			Destructive: true,
			Description: fmt.Sprintf("drop index %s on %s", oix.Name, newTable.Name),
			TableName:   newTable.Name,
			Index:       &oix,
		})
	}
}

func fkIdentity(fk ForeignKeyDefinition) string {
	return fk.Column + "->" + fk.ReferencesTable + "." + fk.ReferencesColumn
}

func diffForeignKeys(res *DiffResult, oldTable, newTable TableDefinition) {
	oldFKs := make(map[string]ForeignKeyDefinition, len(oldTable.ForeignKeys))
	for _, fk := range oldTable.ForeignKeys {
		oldFKs[fkIdentity(fk)] = fk
	}
	seen := make(map[string]bool, len(newTable.ForeignKeys))

	for _, nfk := range newTable.ForeignKeys {
		nfk := nfk
		id := fkIdentity(nfk)
		seen[id] = true
		if _, ok := oldFKs[id]; ok {
			continue
		}
		res.Additive = append(res.Additive, Change{
			Kind:        ChangeAddForeignKey,
			Description: fmt.Sprintf("add foreign key %s.%s -> %s.%s", newTable.Name, nfk.Column, nfk.ReferencesTable, nfk.ReferencesColumn),
			TableName:   newTable.Name,
			ForeignKey:  &nfk,
		})
	}

	for _, ofk := range oldTable.ForeignKeys {
		ofk := ofk
		if seen[fkIdentity(ofk)] {
			continue
		}
		res.Destructive = append(res.Destructive, Change{
			Kind:        ChangeDropForeignKey,
			Destructive: true,
			Description: fmt.Sprintf("drop foreign key %s.%s -> %s.%s", newTable.Name, ofk.Column, ofk.ReferencesTable, ofk.ReferencesColumn),
			TableName:   newTable.Name,
			ForeignKey:  &ofk,
		})
	}
}

func summarize(res DiffResult) string {
	parts := make([]string, 0, len(res.Additive)+len(res.Destructive))
	for _, c := range res.Additive {
		parts = append(parts, string(c.Kind)+" "+c.TableName+describeTarget(c))
	}
	for _, c := range res.Destructive {
		parts = append(parts, string(c.Kind)+"! "+c.TableName+describeTarget(c))
	}
	return fmt.Sprintf("v%d -> v%d: %d additive, %d destructive [%s]",
		res.FromVersion, res.ToVersion, len(res.Additive), len(res.Destructive), strings.Join(parts, "; "))
}

func describeTarget(c Change) string {
	switch {
	case c.Column != nil:
		return "." + c.Column.Name
	case c.Index != nil:
		return ":" + c.Index.Name
	case c.ForeignKey != nil:
		return "." + c.ForeignKey.Column
	default:
		return ""
	}
}
