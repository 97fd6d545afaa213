package structure

// ColumnType is the abstract column type used by table definitions. The DDL
// applier maps it to a concrete Postgres type.
type ColumnType string

const (
	TypeUUID      ColumnType = "uuid"
	TypeString    ColumnType = "string"
	TypeText      ColumnType = "text"
	TypeInteger   ColumnType = "integer"
	TypeBoolean   ColumnType = "boolean"
	TypeJSON      ColumnType = "json"
	TypeTimestamp ColumnType = "timestamp"
)

// Symbolic defaults resolved by the column builder.
const (
	DefaultUUID = "@uuid"
	DefaultNow  = "@now"
)

type IndexMethod string

const (
	MethodBTree IndexMethod = "btree"
	MethodGIN   IndexMethod = "gin"
)

type ColumnDefinition struct {
	Name     string
	Type     ColumnType
	Length   int
	Nullable bool
	Default  string
	Primary  bool
	Indexed  bool
}

type IndexDefinition struct {
	Name        string
	Columns     []string
	Unique      bool
	RenamedFrom []string
	Where       string
	Method      IndexMethod
}

type ForeignKeyDefinition struct {
	Column           string
	ReferencesTable  string
	ReferencesColumn string
	OnDelete         string
}

// TableDefinition is one system table at one structure version. Versions
// declare complete tables, never deltas. Renames are expressed through
// RenamedFrom so the diff engine can match them as identity-preserving.
type TableDefinition struct {
	Name              string
	RenamedFrom       []string
	Description       string
	Columns           []ColumnDefinition
	ForeignKeys       []ForeignKeyDefinition
	Indexes           []IndexDefinition
	UniqueConstraints [][]string
}

// Column returns the named column, searching the table's own columns only
// (shared blocks are appended by WithSharedColumns before any enumeration).
func (t TableDefinition) Column(name string) *ColumnDefinition {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

type ChangeKind string

const (
	ChangeAddTable       ChangeKind = "ADD_TABLE"
	ChangeRenameTable    ChangeKind = "RENAME_TABLE"
	ChangeDropTable      ChangeKind = "DROP_TABLE"
	ChangeAddColumn      ChangeKind = "ADD_COLUMN"
	ChangeDropColumn     ChangeKind = "DROP_COLUMN"
	ChangeAlterColumn    ChangeKind = "ALTER_COLUMN"
	ChangeAddIndex       ChangeKind = "ADD_INDEX"
	ChangeRenameIndex    ChangeKind = "RENAME_INDEX"
	ChangeDropIndex      ChangeKind = "DROP_INDEX"
	ChangeAddForeignKey  ChangeKind = "ADD_FK"
	ChangeDropForeignKey ChangeKind = "DROP_FK"
)

// Change is one computed structural change. The kind set is closed: the DDL
// applier switches exhaustively over it and rejects anything it does not
// recognize, so a new kind is a compile-and-test-visible gap rather than a
// silent no-op.
type Change struct {
	Kind        ChangeKind
	Destructive bool
	Description string

	// TableName is the table the change applies to (new name for renames).
	TableName string
	// FromName carries the previous table or index name for renames.
	FromName string

	Table      *TableDefinition
	Column     *ColumnDefinition
	Index      *IndexDefinition
	ForeignKey *ForeignKeyDefinition
}
