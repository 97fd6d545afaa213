package history

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestParseMeta(t *testing.T) {
	actor := uuid.New()

	t.Run("baseline", func(t *testing.T) {
		m := ParseMeta([]byte(`{"type":"baseline"}`))
		if m == nil || m.Type != MetaBaseline {
			t.Fatalf("ParseMeta = %+v", m)
		}
		if m.Structure != nil || m.TemplateSeed != nil || m.ManualDestructive != nil {
			t.Fatalf("baseline must carry no shape: %+v", m)
		}
	})

	t.Run("structure", func(t *testing.T) {
		raw := []byte(`{"type":"structure","applied":["ADD_TABLE entities"],"skippedDestructive":["DROP_TABLE legacy"]}`)
		m := ParseMeta(raw)
		if m == nil || m.Structure == nil {
			t.Fatalf("ParseMeta = %+v", m)
		}
		if len(m.Structure.Applied) != 1 || len(m.Structure.SkippedDestructive) != 1 {
			t.Fatalf("structure shape decoded wrong: %+v", m.Structure)
		}
	})

	t.Run("template_seed", func(t *testing.T) {
		id := uuid.New()
		raw := []byte(`{"type":"template_seed","templateVersionId":"` + id.String() + `","templateVersionLabel":"1.2.0","counts":{"entities":3}}`)
		m := ParseMeta(raw)
		if m == nil || m.TemplateSeed == nil {
			t.Fatalf("ParseMeta = %+v", m)
		}
		if m.TemplateSeed.TemplateVersionID != id || m.TemplateSeed.TemplateVersionLabel != "1.2.0" {
			t.Fatalf("template_seed shape decoded wrong: %+v", m.TemplateSeed)
		}
		if m.TemplateSeed.Counts["entities"] != 3 {
			t.Fatalf("counts decoded wrong: %+v", m.TemplateSeed.Counts)
		}
	})

	t.Run("manual_destructive", func(t *testing.T) {
		raw := []byte(`{"type":"manual_destructive","statements":["DROP TABLE x"],"note":"ticket 42","actor":"` + actor.String() + `"}`)
		m := ParseMeta(raw)
		if m == nil || m.ManualDestructive == nil {
			t.Fatalf("ParseMeta = %+v", m)
		}
		if m.ManualDestructive.Actor == nil || *m.ManualDestructive.Actor != actor {
			t.Fatalf("actor decoded wrong: %+v", m.ManualDestructive)
		}
	})

	t.Run("tolerant_of_bad_rows", func(t *testing.T) {
		for _, raw := range []string{"", "not json", `{"type":"unknown_kind"}`, `{"type":"structure","applied":12}`, `{}`} {
			if m := ParseMeta([]byte(raw)); m != nil {
				t.Fatalf("ParseMeta(%q) = %+v, want nil", raw, m)
			}
		}
	})
}

func TestEncodeMetaRoundTrip(t *testing.T) {
	id := uuid.New()
	raw, err := EncodeMeta(MetaTemplateSeed, TemplateSeedMeta{
		TemplateVersionID:    id,
		TemplateVersionLabel: "2.0.0",
		Counts:               map[string]int{"settings": 2},
	})
	if err != nil {
		t.Fatalf("EncodeMeta failed: %v", err)
	}
	if !strings.Contains(string(raw), `"type":"template_seed"`) {
		t.Fatalf("type tag missing: %s", raw)
	}
	m := ParseMeta(raw)
	if m == nil || m.TemplateSeed == nil {
		t.Fatalf("round trip failed: %+v", m)
	}
	if m.TemplateSeed.TemplateVersionID != id || m.TemplateSeed.Counts["settings"] != 2 {
		t.Fatalf("round trip lost data: %+v", m.TemplateSeed)
	}
}

func TestEncodeMetaBaseline(t *testing.T) {
	raw, err := EncodeMeta(MetaBaseline, nil)
	if err != nil {
		t.Fatalf("EncodeMeta failed: %v", err)
	}
	m := ParseMeta(raw)
	if m == nil || m.Type != MetaBaseline {
		t.Fatalf("baseline round trip failed: %+v", m)
	}
}
