package template

import (
	"encoding/json"
	"sort"
	"strings"

	"gorm.io/datatypes"
)

// System tables the seed pipeline writes, at the current structure version.
const (
	tableLayouts     = "layouts"
	tableZoneWidgets = "layout_zone_widgets"
	tableSettings    = "settings"
	tableEntities    = "entities"
	tableAttributes  = "entity_attributes"
	tableElements    = "entity_elements"
	tableEnumValues  = "enumeration_values"
)

// qualify feeds gorm's Table(), which quotes the dotted parts itself.
// Branch schema and system table names are generated lowercase identifiers,
// never user input.
func qualify(schema, table string) string {
	return schema + "." + table
}

// jsonValue marshals v for a jsonb column; nil stays SQL NULL.
func jsonValue(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// sortedKeys keeps map-keyed seed sections in a stable order so logs, skip
// reasons and dry-run output are deterministic.
func sortedKeys[V any](m map[string][]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Optional layout sections recognized by the dashboard. The derived layout
// config summarizes which of them a layout's widgets actually populate.
var optionalZones = []string{"header", "footer", "sidebar"}

func deriveLayoutConfig(widgets []SeedZoneWidget) map[string]interface{} {
	present := map[string]bool{}
	for _, w := range widgets {
		present[strings.ToLower(w.Zone)] = true
	}
	cfg := map[string]interface{}{}
	for _, zone := range optionalZones {
		key := "has" + strings.ToUpper(zone[:1]) + zone[1:]
		cfg[key] = present[zone]
	}
	return cfg
}
