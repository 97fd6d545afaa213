package template

import (
	"reflect"
	"testing"
)

func seedWith(entities []SeedEntity, settings []SeedSetting) Seed {
	return Seed{Entities: entities, Settings: settings}
}

func TestRemovedEntities(t *testing.T) {
	oldSeed := seedWith([]SeedEntity{
		{Kind: EntityKindCatalog, Codename: "tags"},
		{Kind: EntityKindDocument, Codename: "articles"},
		{Kind: EntityKindHub, Codename: "projects"},
	}, nil)
	newSeed := seedWith([]SeedEntity{
		{Kind: EntityKindDocument, Codename: "articles"},
		// same codename, different kind: still a removal of the catalog one
		{Kind: EntityKindHub, Codename: "tags"},
	}, nil)

	got := removedEntities(oldSeed, newSeed)
	if len(got) != 2 {
		t.Fatalf("expected 2 removed entities, got %d: %+v", len(got), got)
	}
	if got[0].Codename != "tags" || got[0].Kind != EntityKindCatalog {
		t.Fatalf("first removal should be catalog:tags, got %s:%s", got[0].Kind, got[0].Codename)
	}
	if got[1].Codename != "projects" {
		t.Fatalf("second removal should be projects, got %s", got[1].Codename)
	}

	if r := removedEntities(oldSeed, oldSeed); len(r) != 0 {
		t.Fatalf("identical seeds should remove nothing, got %+v", r)
	}
}

func TestRemovedAttributes(t *testing.T) {
	oldSeed := seedWith([]SeedEntity{
		{
			Kind: EntityKindCatalog, Codename: "tags",
			Attributes: []SeedAttribute{
				{Codename: "label", DataType: "string"},
				{Codename: "color", DataType: "string"},
			},
		},
		{
			// entity missing from the new seed entirely: not reported here
			Kind: EntityKindHub, Codename: "projects",
			Attributes: []SeedAttribute{{Codename: "title", DataType: "string"}},
		},
	}, nil)
	newSeed := seedWith([]SeedEntity{
		{
			Kind: EntityKindCatalog, Codename: "tags",
			Attributes: []SeedAttribute{{Codename: "label", DataType: "string"}},
		},
	}, nil)

	got := removedAttributes(oldSeed, newSeed)
	want := map[string][]SeedAttribute{
		"catalog:tags": {{Codename: "color", DataType: "string"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("removedAttributes = %+v, want %+v", got, want)
	}
}

func TestRemovedSettings(t *testing.T) {
	oldSeed := seedWith(nil, []SeedSetting{
		{Key: "site_title", Value: "Docs"},
		{Key: "theme", Value: "dark"},
	})
	newSeed := seedWith(nil, []SeedSetting{{Key: "site_title", Value: "Docs v2"}})

	got := removedSettings(oldSeed, newSeed)
	if len(got) != 1 || got[0].Key != "theme" {
		t.Fatalf("expected only theme removed, got %+v", got)
	}
}

func TestElementKey(t *testing.T) {
	a := elementKey(1, `{"label":"General"}`)
	b := elementKey(2, `{"label":"General"}`)
	c := elementKey(1, `{"label":"Other"}`)
	if a == b || a == c {
		t.Fatalf("element keys must separate sort order and content: %q %q %q", a, b, c)
	}
	if a != elementKey(1, `{"label":"General"}`) {
		t.Fatal("element key must be deterministic")
	}
}

func TestSplitEntityKey(t *testing.T) {
	cases := []struct {
		key      string
		kind     string
		codename string
	}{
		{"catalog:tags", "catalog", "tags"},
		{"document:faq_articles", "document", "faq_articles"},
		{"tags", "", "tags"},
	}
	for _, tc := range cases {
		kind, codename := splitEntityKey(tc.key)
		if kind != tc.kind || codename != tc.codename {
			t.Fatalf("splitEntityKey(%q) = %q, %q; want %q, %q", tc.key, kind, codename, tc.kind, tc.codename)
		}
	}
}

func TestCleanupModeValid(t *testing.T) {
	for _, m := range []CleanupMode{CleanupKeep, CleanupDryRun, CleanupConfirm} {
		if !m.Valid() {
			t.Fatalf("mode %q should be valid", m)
		}
	}
	for _, m := range []CleanupMode{"", "delete", "DRY_RUN"} {
		if m.Valid() {
			t.Fatalf("mode %q should be invalid", m)
		}
	}
}

func TestCleanupSummaryBlocked(t *testing.T) {
	s := &CleanupSummary{Mode: CleanupDryRun}
	if s.Blocked() {
		t.Fatal("empty summary must not be blocked")
	}
	s.Blockers = append(s.Blockers, CleanupBlocker{Kind: "setting", Key: "theme", Reason: "touched"})
	if !s.Blocked() {
		t.Fatal("summary with blockers must report blocked")
	}
}

func TestAttributeMatchesSeed(t *testing.T) {
	svc := &CleanupService{}
	base := liveAttributeRow{Codename: "label", DataType: "string", Required: true, DefaultValue: []byte(`{"en":"x"}`)}

	same, err := svc.attributeMatchesSeed(base, SeedAttribute{
		Codename: "label", DataType: "string", Required: true,
		Default: map[string]interface{}{"en": "x"},
	})
	if err != nil || !same {
		t.Fatalf("expected match, got same=%v err=%v", same, err)
	}

	same, err = svc.attributeMatchesSeed(base, SeedAttribute{Codename: "label", DataType: "text", Required: true})
	if err != nil || same {
		t.Fatalf("data type change must not match, got same=%v err=%v", same, err)
	}

	same, err = svc.attributeMatchesSeed(base, SeedAttribute{
		Codename: "label", DataType: "string", Required: true,
		Default: map[string]interface{}{"en": "y"},
	})
	if err != nil || same {
		t.Fatalf("default change must not match, got same=%v err=%v", same, err)
	}
}
