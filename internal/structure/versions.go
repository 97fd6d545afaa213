package structure

// The platform's structure history. Every version declares the complete set
// of system tables that must exist at that version; adding platform history
// means appending a new complete list here, never editing an old one.
//
// DefaultVersions is consumed once at process start by NewCatalog; nothing
// mutates it afterwards.

func DefaultVersions() [][]TableDefinition {
	return [][]TableDefinition{
		version1(),
		version2(),
		version3(),
		version4(),
	}
}

func idColumn() ColumnDefinition {
	return ColumnDefinition{Name: "id", Type: TypeUUID, Primary: true, Default: DefaultUUID}
}

// --- version 1: initial system tables ---

func version1() []TableDefinition {
	return []TableDefinition{
		{
			Name:        "layouts",
			Description: "Dashboard layout templates available inside a branch.",
			Columns: []ColumnDefinition{
				idColumn(),
				{Name: "template_key", Type: TypeString, Length: 190, Nullable: false},
				{Name: "name", Type: TypeJSON, Nullable: true},
				{Name: "description", Type: TypeJSON, Nullable: true},
				{Name: "is_default", Type: TypeBoolean, Nullable: false, Default: "false"},
				{Name: "config", Type: TypeJSON, Nullable: true},
			},
			UniqueConstraints: [][]string{{"template_key"}},
		},
		{
			Name:        "layout_widgets",
			Description: "Widgets placed into a layout zone.",
			Columns: []ColumnDefinition{
				idColumn(),
				{Name: "layout_id", Type: TypeUUID, Nullable: false, Indexed: true},
				{Name: "zone", Type: TypeString, Length: 64, Nullable: false},
				{Name: "widget_type", Type: TypeString, Length: 128, Nullable: false},
				{Name: "sort_order", Type: TypeInteger, Nullable: false, Default: "0"},
				{Name: "config", Type: TypeJSON, Nullable: true},
			},
			ForeignKeys: []ForeignKeyDefinition{
				{Column: "layout_id", ReferencesTable: "layouts", ReferencesColumn: "id", OnDelete: "CASCADE"},
			},
		},
		{
			Name:        "settings",
			Description: "Branch-scoped key/value settings.",
			Columns: []ColumnDefinition{
				idColumn(),
				{Name: "key", Type: TypeString, Length: 190, Nullable: false},
				{Name: "value", Type: TypeJSON, Nullable: true},
			},
			UniqueConstraints: [][]string{{"key"}},
		},
		{
			Name:        "entities",
			Description: "Catalog, hub and document definitions.",
			Columns: []ColumnDefinition{
				idColumn(),
				{Name: "kind", Type: TypeString, Length: 32, Nullable: false},
				{Name: "codename", Type: TypeString, Length: 190, Nullable: false},
				{Name: "name", Type: TypeJSON, Nullable: true},
				{Name: "description", Type: TypeJSON, Nullable: true},
			},
			Indexes: []IndexDefinition{
				{Name: "ix_entities_codename", Columns: []string{"kind", "codename"}, Unique: true, Method: MethodBTree},
			},
		},
		{
			Name:        "entity_attributes",
			Description: "Attribute definitions nested under an entity.",
			Columns: []ColumnDefinition{
				idColumn(),
				{Name: "entity_id", Type: TypeUUID, Nullable: false, Indexed: true},
				{Name: "codename", Type: TypeString, Length: 190, Nullable: false},
				{Name: "data_type", Type: TypeString, Length: 64, Nullable: false},
				{Name: "required", Type: TypeBoolean, Nullable: false, Default: "false"},
				{Name: "default_value", Type: TypeJSON, Nullable: true},
				{Name: "target_entity_id", Type: TypeUUID, Nullable: true},
			},
			ForeignKeys: []ForeignKeyDefinition{
				{Column: "entity_id", ReferencesTable: "entities", ReferencesColumn: "id", OnDelete: "CASCADE"},
			},
		},
		{
			Name:        "entity_elements",
			Description: "Concrete data rows belonging to an entity.",
			Columns: []ColumnDefinition{
				idColumn(),
				{Name: "entity_id", Type: TypeUUID, Nullable: false, Indexed: true},
				{Name: "data", Type: TypeJSON, Nullable: true},
			},
			ForeignKeys: []ForeignKeyDefinition{
				{Column: "entity_id", ReferencesTable: "entities", ReferencesColumn: "id", OnDelete: "CASCADE"},
			},
		},
	}
}

// --- version 2: widgets table renamed, enumeration values, element ordering ---

func version2() []TableDefinition {
	defs := version1()
	out := make([]TableDefinition, 0, len(defs)+1)
	for _, t := range defs {
		switch t.Name {
		case "layout_widgets":
			t.Name = "layout_zone_widgets"
			t.RenamedFrom = []string{"layout_widgets"}
		case "entity_elements":
			t.Columns = append(t.Columns, ColumnDefinition{
				Name: "sort_order", Type: TypeInteger, Nullable: false, Default: "0",
			})
		}
		out = append(out, t)
	}
	out = append(out, TableDefinition{
		Name:        "enumeration_values",
		Description: "Enumeration members for enum-typed entities.",
		Columns: []ColumnDefinition{
			idColumn(),
			{Name: "entity_id", Type: TypeUUID, Nullable: false},
			{Name: "codename", Type: TypeString, Length: 190, Nullable: false},
			{Name: "value", Type: TypeJSON, Nullable: true},
			{Name: "sort_order", Type: TypeInteger, Nullable: false, Default: "0"},
		},
		ForeignKeys: []ForeignKeyDefinition{
			{Column: "entity_id", ReferencesTable: "entities", ReferencesColumn: "id", OnDelete: "CASCADE"},
		},
	})
	return out
}

// --- version 3: index rename, GIN element index, single-default guarantee,
// cross-entity attribute targets become a real foreign key ---

func version3() []TableDefinition {
	defs := version2()
	out := make([]TableDefinition, 0, len(defs))
	for _, t := range defs {
		switch t.Name {
		case "entities":
			t.Indexes = []IndexDefinition{
				{
					Name:        "ix_entity_kind_codename",
					Columns:     []string{"kind", "codename"},
					Unique:      true,
					RenamedFrom: []string{"ix_entities_codename"},
					Method:      MethodBTree,
				},
			}
		case "entity_elements":
			t.Indexes = append(t.Indexes, IndexDefinition{
				Name:    "ix_entity_elements_data",
				Columns: []string{"data"},
				Method:  MethodGIN,
			})
		case "layouts":
			t.Indexes = append(t.Indexes, IndexDefinition{
				Name:    "uq_layouts_single_default",
				Columns: []string{"is_default"},
				Unique:  true,
				Where:   "is_default = true AND is_deleted = false",
				Method:  MethodBTree,
			})
		case "entity_attributes":
			t.ForeignKeys = append(t.ForeignKeys, ForeignKeyDefinition{
				Column: "target_entity_id", ReferencesTable: "entities", ReferencesColumn: "id", OnDelete: "SET NULL",
			})
		}
		out = append(out, t)
	}
	return out
}

// --- version 4: attribute ordering, setting descriptions, enum lookups ---

func version4() []TableDefinition {
	defs := version3()
	out := make([]TableDefinition, 0, len(defs))
	for _, t := range defs {
		switch t.Name {
		case "entity_attributes":
			t.Columns = append(t.Columns, ColumnDefinition{
				Name: "sort_order", Type: TypeInteger, Nullable: false, Default: "0",
			})
		case "settings":
			t.Columns = append(t.Columns, ColumnDefinition{
				Name: "description", Type: TypeJSON, Nullable: true,
			})
		case "enumeration_values":
			t.Indexes = append(t.Indexes, IndexDefinition{
				Name:    "ix_enumeration_values_entity",
				Columns: []string{"entity_id"},
				Method:  MethodBTree,
			})
		}
		out = append(out, t)
	}
	return out
}
