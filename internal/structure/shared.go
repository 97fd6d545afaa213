package structure

// Two column blocks every system table carries. They are never listed per
// table; WithSharedColumns appends them uniformly wherever columns are
// enumerated, so DDL generation and diffing can never drift apart.

// auditColumns records who touched a row and when. A row whose created_by
// and updated_by are both unset was written by the platform seeder, never by
// an interactive user; the cleanup service leans on that.
func auditColumns() []ColumnDefinition {
	return []ColumnDefinition{
		{Name: "created_at", Type: TypeTimestamp, Nullable: false, Default: DefaultNow},
		{Name: "created_by", Type: TypeUUID, Nullable: true},
		{Name: "updated_at", Type: TypeTimestamp, Nullable: false, Default: DefaultNow},
		{Name: "updated_by", Type: TypeUUID, Nullable: true},
		{Name: "row_version", Type: TypeInteger, Nullable: false, Default: "1"},
		{Name: "locked_at", Type: TypeTimestamp, Nullable: true},
		{Name: "locked_by", Type: TypeUUID, Nullable: true},
	}
}

// lifecycleColumns carries the tenant-facing publish/archive/soft-delete
// flags. Cleanup soft-deletes through these, never hard-deletes.
func lifecycleColumns() []ColumnDefinition {
	return []ColumnDefinition{
		{Name: "is_published", Type: TypeBoolean, Nullable: false, Default: "false"},
		{Name: "is_archived", Type: TypeBoolean, Nullable: false, Default: "false"},
		{Name: "archived_at", Type: TypeTimestamp, Nullable: true},
		{Name: "is_deleted", Type: TypeBoolean, Nullable: false, Default: "false"},
		{Name: "deleted_at", Type: TypeTimestamp, Nullable: true},
		{Name: "deleted_by", Type: TypeUUID, Nullable: true},
	}
}

// WithSharedColumns returns a copy of table with the shared audit and
// lifecycle blocks appended after the table's own columns. Pure: the input
// definition is never mutated.
func WithSharedColumns(table TableDefinition) TableDefinition {
	out := table
	out.Columns = make([]ColumnDefinition, 0, len(table.Columns)+13)
	out.Columns = append(out.Columns, table.Columns...)
	out.Columns = append(out.Columns, auditColumns()...)
	out.Columns = append(out.Columns, lifecycleColumns()...)
	return out
}
