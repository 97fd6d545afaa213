package template

import "testing"

func TestCanonicalJSON(t *testing.T) {
	cases := []struct {
		name string
		in   interface{}
		want string
	}{
		{name: "nil", in: nil, want: "null"},
		{name: "empty_bytes", in: []byte{}, want: "null"},
		{name: "sorted_keys", in: map[string]interface{}{"b": 1, "a": 2}, want: `{"a":2,"b":1}`},
		{
			name: "nested",
			in:   map[string]interface{}{"z": map[string]interface{}{"y": true, "x": nil}, "a": []interface{}{3, 1}},
			want: `{"a":[3,1],"z":{"x":null,"y":true}}`,
		},
		{name: "raw_json_bytes", in: []byte(` { "b" : 1, "a" : "x" } `), want: `{"a":"x","b":1}`},
		{name: "string", in: "héllo", want: `"héllo"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CanonicalJSON(tc.in)
			if err != nil {
				t.Fatalf("CanonicalJSON failed: %v", err)
			}
			if got != tc.want {
				t.Fatalf("CanonicalJSON = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestCanonicalJSONRejectsMalformedBytes(t *testing.T) {
	if _, err := CanonicalJSON([]byte("{not json")); err == nil {
		t.Fatal("expected error for malformed raw bytes")
	}
}

// Live rows come back as raw jsonb bytes while seed content is decoded Go
// values; equality must hold across that divide.
func TestCanonicalEqualAcrossRepresentations(t *testing.T) {
	live := []byte(`{"label": "Tag", "weight": 3}`)
	seed := map[string]interface{}{"weight": 3, "label": "Tag"}

	eq, err := CanonicalEqual(live, seed)
	if err != nil {
		t.Fatalf("CanonicalEqual failed: %v", err)
	}
	if !eq {
		t.Fatal("equivalent values not canonically equal")
	}

	other := map[string]interface{}{"weight": 4, "label": "Tag"}
	eq, err = CanonicalEqual(live, other)
	if err != nil {
		t.Fatalf("CanonicalEqual failed: %v", err)
	}
	if eq {
		t.Fatal("different values reported equal")
	}
}
