package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest is one immutable template version: bundled seed data plus the
// minimum structure version the seed requires. All cross-references inside
// the seed use codenames; ids are assigned only at apply time.
type Manifest struct {
	Codename            string            `json:"codename" yaml:"codename"`
	Version             string            `json:"version" yaml:"version"`
	MinStructureVersion int               `json:"minStructureVersion" yaml:"minStructureVersion"`
	Name                map[string]string `json:"name" yaml:"name"`
	Description         map[string]string `json:"description,omitempty" yaml:"description,omitempty"`
	Seed                Seed              `json:"seed" yaml:"seed"`
}

type Seed struct {
	Layouts           []SeedLayout                `json:"layouts,omitempty" yaml:"layouts,omitempty"`
	LayoutZoneWidgets map[string][]SeedZoneWidget `json:"layoutZoneWidgets,omitempty" yaml:"layoutZoneWidgets,omitempty"`
	Settings          []SeedSetting               `json:"settings,omitempty" yaml:"settings,omitempty"`
	Entities          []SeedEntity                `json:"entities,omitempty" yaml:"entities,omitempty"`
	Elements          map[string][]SeedElement    `json:"elements,omitempty" yaml:"elements,omitempty"`
	EnumerationValues map[string][]SeedEnumValue  `json:"enumerationValues,omitempty" yaml:"enumerationValues,omitempty"`
}

type SeedLayout struct {
	Codename    string            `json:"codename" yaml:"codename"`
	Name        map[string]string `json:"name,omitempty" yaml:"name,omitempty"`
	Description map[string]string `json:"description,omitempty" yaml:"description,omitempty"`
	IsDefault   bool              `json:"isDefault,omitempty" yaml:"isDefault,omitempty"`
}

type SeedZoneWidget struct {
	Zone       string                 `json:"zone" yaml:"zone"`
	WidgetType string                 `json:"widgetType" yaml:"widgetType"`
	SortOrder  int                    `json:"sortOrder,omitempty" yaml:"sortOrder,omitempty"`
	Config     map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`
}

type SeedSetting struct {
	Key   string      `json:"key" yaml:"key"`
	Value interface{} `json:"value" yaml:"value"`
}

// Entity kinds a manifest may declare.
const (
	EntityKindCatalog  = "catalog"
	EntityKindHub      = "hub"
	EntityKindDocument = "document"
)

type SeedEntity struct {
	Kind        string            `json:"kind" yaml:"kind"`
	Codename    string            `json:"codename" yaml:"codename"`
	Name        map[string]string `json:"name,omitempty" yaml:"name,omitempty"`
	Description map[string]string `json:"description,omitempty" yaml:"description,omitempty"`
	Attributes  []SeedAttribute   `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

type SeedAttribute struct {
	Codename             string      `json:"codename" yaml:"codename"`
	DataType             string      `json:"dataType" yaml:"dataType"`
	Required             bool        `json:"required,omitempty" yaml:"required,omitempty"`
	Default              interface{} `json:"default,omitempty" yaml:"default,omitempty"`
	TargetEntityCodename string      `json:"targetEntityCodename,omitempty" yaml:"targetEntityCodename,omitempty"`
}

type SeedElement struct {
	SortOrder int                    `json:"sortOrder,omitempty" yaml:"sortOrder,omitempty"`
	Data      map[string]interface{} `json:"data" yaml:"data"`
}

type SeedEnumValue struct {
	Codename  string      `json:"codename" yaml:"codename"`
	Value     interface{} `json:"value,omitempty" yaml:"value,omitempty"`
	SortOrder int         `json:"sortOrder,omitempty" yaml:"sortOrder,omitempty"`
}

// Entity returns the declared entity for (kind, codename), or nil.
func (s Seed) Entity(kind, codename string) *SeedEntity {
	for i := range s.Entities {
		if s.Entities[i].Kind == kind && s.Entities[i].Codename == codename {
			return &s.Entities[i]
		}
	}
	return nil
}

// ParseManifest decodes a manifest document. JSON is detected by the leading
// byte; anything else goes through the YAML decoder (which also accepts
// JSON, but the fast path keeps error messages native).
func ParseManifest(raw []byte) (*Manifest, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, &ValidationError{Problems: []string{"manifest document is empty"}}
	}
	var m Manifest
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return nil, &ValidationError{Problems: []string{fmt.Sprintf("manifest is not valid JSON: %v", err)}}
		}
	} else {
		if err := yaml.Unmarshal(trimmed, &m); err != nil {
			return nil, &ValidationError{Problems: []string{fmt.Sprintf("manifest is not valid YAML: %v", err)}}
		}
	}
	return &m, nil
}

// ValidationError aborts only the affected request, never the platform.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "manifest validation failed: " + strings.Join(e.Problems, "; ")
}

// Validator checks a decoded manifest's shape. The platform default is
// ValidateManifest; tests and callers may swap in their own.
type Validator func(m *Manifest) error

var (
	codenameRe = regexp.MustCompile(`^[a-z][a-z0-9_]{0,189}$`)
	versionRe  = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
)

// ValidateManifest is the structural manifest validator: codename and
// version shape, structure requirement sanity, unique codenames, and
// resolvable intra-seed references.
func ValidateManifest(m *Manifest) error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if !codenameRe.MatchString(m.Codename) {
		add("template codename %q is not a valid codename", m.Codename)
	}
	if !versionRe.MatchString(m.Version) {
		add("version %q is not a semantic version", m.Version)
	}
	if m.MinStructureVersion < 1 {
		add("minStructureVersion must be >= 1, got %d", m.MinStructureVersion)
	}

	layoutKeys := map[string]bool{}
	for _, l := range m.Seed.Layouts {
		if !codenameRe.MatchString(l.Codename) {
			add("layout codename %q is invalid", l.Codename)
		}
		if layoutKeys[l.Codename] {
			add("duplicate layout codename %q", l.Codename)
		}
		layoutKeys[l.Codename] = true
	}
	for layout := range m.Seed.LayoutZoneWidgets {
		if !layoutKeys[layout] {
			add("layoutZoneWidgets references unknown layout %q", layout)
		}
	}

	settingKeys := map[string]bool{}
	for _, s := range m.Seed.Settings {
		if s.Key == "" {
			add("setting with empty key")
			continue
		}
		if settingKeys[s.Key] {
			add("duplicate setting key %q", s.Key)
		}
		settingKeys[s.Key] = true
	}

	entityKeys := map[string]bool{}
	entityCodenames := map[string]bool{}
	for _, e := range m.Seed.Entities {
		switch e.Kind {
		case EntityKindCatalog, EntityKindHub, EntityKindDocument:
		default:
			add("entity %q has unknown kind %q", e.Codename, e.Kind)
		}
		if !codenameRe.MatchString(e.Codename) {
			add("entity codename %q is invalid", e.Codename)
		}
		key := e.Kind + ":" + e.Codename
		if entityKeys[key] {
			add("duplicate entity %s %q", e.Kind, e.Codename)
		}
		entityKeys[key] = true
		entityCodenames[e.Codename] = true

		attrs := map[string]bool{}
		for _, a := range e.Attributes {
			if !codenameRe.MatchString(a.Codename) {
				add("entity %q attribute codename %q is invalid", e.Codename, a.Codename)
			}
			if attrs[a.Codename] {
				add("entity %q declares attribute %q twice", e.Codename, a.Codename)
			}
			attrs[a.Codename] = true
		}
	}
	for entity := range m.Seed.Elements {
		if !entityCodenames[entity] {
			add("elements reference unknown entity %q", entity)
		}
	}
	for entity := range m.Seed.EnumerationValues {
		if !entityCodenames[entity] {
			add("enumerationValues reference unknown entity %q", entity)
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
