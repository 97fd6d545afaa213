package template

import (
	"errors"
	"strings"
	"testing"
)

const jsonManifest = `{
  "codename": "knowledge_base",
  "version": "1.2.0",
  "minStructureVersion": 2,
  "name": {"en": "Knowledge base"},
  "seed": {
    "layouts": [
      {"codename": "main", "isDefault": true}
    ],
    "layoutZoneWidgets": {
      "main": [{"zone": "header", "widgetType": "breadcrumbs"}]
    },
    "settings": [
      {"key": "site_title", "value": {"en": "Docs"}}
    ],
    "entities": [
      {
        "kind": "catalog",
        "codename": "tags",
        "attributes": [{"codename": "label", "dataType": "string", "required": true}]
      },
      {
        "kind": "document",
        "codename": "articles",
        "attributes": [
          {"codename": "title", "dataType": "string"},
          {"codename": "tag", "dataType": "reference", "targetEntityCodename": "tags"}
        ]
      }
    ],
    "elements": {
      "tags": [{"sortOrder": 1, "data": {"label": "General"}}]
    }
  }
}`

const yamlManifest = `
codename: knowledge_base
version: 1.2.0
minStructureVersion: 2
name:
  en: Knowledge base
seed:
  layouts:
    - codename: main
      isDefault: true
  entities:
    - kind: catalog
      codename: tags
      attributes:
        - codename: label
          dataType: string
          required: true
`

func TestParseManifestJSON(t *testing.T) {
	m, err := ParseManifest([]byte(jsonManifest))
	if err != nil {
		t.Fatalf("ParseManifest failed: %v", err)
	}
	if m.Codename != "knowledge_base" || m.Version != "1.2.0" || m.MinStructureVersion != 2 {
		t.Fatalf("header decoded wrong: %+v", m)
	}
	if len(m.Seed.Entities) != 2 || m.Seed.Entities[1].Attributes[1].TargetEntityCodename != "tags" {
		t.Fatalf("seed decoded wrong: %+v", m.Seed.Entities)
	}
	if got := m.Seed.Entity("catalog", "tags"); got == nil || got.Codename != "tags" {
		t.Fatalf("Entity lookup failed: %+v", got)
	}
	if m.Seed.Entity("hub", "tags") != nil {
		t.Fatal("Entity lookup must match kind")
	}
}

func TestParseManifestYAML(t *testing.T) {
	m, err := ParseManifest([]byte(yamlManifest))
	if err != nil {
		t.Fatalf("ParseManifest failed: %v", err)
	}
	if m.Codename != "knowledge_base" || !m.Seed.Layouts[0].IsDefault {
		t.Fatalf("yaml decoded wrong: %+v", m)
	}
	if err := ValidateManifest(m); err != nil {
		t.Fatalf("valid yaml manifest rejected: %v", err)
	}
}

func TestParseManifestEmpty(t *testing.T) {
	_, err := ParseManifest([]byte("   \n  "))
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestValidateManifest(t *testing.T) {
	valid := func() *Manifest {
		m, err := ParseManifest([]byte(jsonManifest))
		if err != nil {
			t.Fatalf("fixture broken: %v", err)
		}
		return m
	}

	cases := []struct {
		name    string
		mutate  func(m *Manifest)
		problem string
	}{
		{
			name:   "valid_passes",
			mutate: func(m *Manifest) {},
		},
		{
			name:    "bad_codename",
			mutate:  func(m *Manifest) { m.Codename = "Knowledge-Base" },
			problem: "not a valid codename",
		},
		{
			name:    "bad_version",
			mutate:  func(m *Manifest) { m.Version = "v1.2" },
			problem: "not a semantic version",
		},
		{
			name:    "min_structure_version",
			mutate:  func(m *Manifest) { m.MinStructureVersion = 0 },
			problem: "minStructureVersion must be >= 1",
		},
		{
			name: "duplicate_entity",
			mutate: func(m *Manifest) {
				m.Seed.Entities = append(m.Seed.Entities, m.Seed.Entities[0])
			},
			problem: "duplicate entity",
		},
		{
			name: "same_codename_different_kind_ok",
			mutate: func(m *Manifest) {
				m.Seed.Entities = append(m.Seed.Entities, SeedEntity{Kind: EntityKindHub, Codename: "tags"})
			},
		},
		{
			name:    "unknown_entity_kind",
			mutate:  func(m *Manifest) { m.Seed.Entities[0].Kind = "widget" },
			problem: "unknown kind",
		},
		{
			name: "elements_unknown_entity",
			mutate: func(m *Manifest) {
				m.Seed.Elements["ghosts"] = []SeedElement{{Data: map[string]interface{}{"x": 1}}}
			},
			problem: `elements reference unknown entity "ghosts"`,
		},
		{
			name: "widgets_unknown_layout",
			mutate: func(m *Manifest) {
				m.Seed.LayoutZoneWidgets["sidebar_layout"] = []SeedZoneWidget{{Zone: "left", WidgetType: "nav"}}
			},
			problem: "unknown layout",
		},
		{
			name: "duplicate_setting",
			mutate: func(m *Manifest) {
				m.Seed.Settings = append(m.Seed.Settings, m.Seed.Settings[0])
			},
			problem: "duplicate setting key",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := valid()
			tc.mutate(m)
			err := ValidateManifest(m)
			if tc.problem == "" {
				if err != nil {
					t.Fatalf("expected valid, got %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if !strings.Contains(ve.Error(), tc.problem) {
				t.Fatalf("problems %v do not mention %q", ve.Problems, tc.problem)
			}
		})
	}
}
