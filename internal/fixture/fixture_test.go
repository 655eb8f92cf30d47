package fixture

import (
	"testing"
)

func TestNormalizeMAC_Equivalence(t *testing.T) {
	tests := []struct {
		a, b string
	}{
		{"AA:BB:CC:DD:EE:FF", "aa-bb-cc-dd-ee-ff"},
		{" A0:B1:C2:D3:E4:F5 ", "a0-b1-c2-d3-e4-f5"},
		{"0A-DE-50-00-40-01", "0a:de:50:00:40:01"},
	}
	for _, tt := range tests {
		if NormalizeMAC(tt.a) != NormalizeMAC(tt.b) {
			t.Errorf("NormalizeMAC(%q) = %q, NormalizeMAC(%q) = %q; want equal",
				tt.a, NormalizeMAC(tt.a), tt.b, NormalizeMAC(tt.b))
		}
	}

	if NormalizeMAC("AA:BB:CC:DD:EE:FF") == NormalizeMAC("AA:BB:CC:DD:EE:00") {
		t.Error("distinct addresses must not normalize to the same key")
	}
}

func TestRecordCloneIsDeep(t *testing.T) {
	orig := Record{
		"mac":  "AA:BB:CC:DD:EE:FF",
		"deep": map[string]any{"ports": []any{map[string]any{"port": float64(1)}}},
	}
	clone := orig.Clone()
	clone.Map("deep")["ports"].([]any)[0].(map[string]any)["port"] = float64(9)

	if got := orig.Map("deep").Records("ports")[0].Int("port"); got != 1 {
		t.Errorf("original mutated through clone: port = %d, want 1", got)
	}
}

func TestRecordGetters(t *testing.T) {
	r := Record{
		"name":   "gw",
		"status": float64(14),
		"online": true,
		"detail": map[string]any{"model": "ER605"},
	}
	if r.String("name") != "gw" {
		t.Errorf("String = %q, want gw", r.String("name"))
	}
	if r.Int("status") != 14 {
		t.Errorf("Int = %d, want 14", r.Int("status"))
	}
	if !r.Bool("online") {
		t.Error("Bool = false, want true")
	}
	if r.Map("detail").String("model") != "ER605" {
		t.Errorf("nested Map lookup failed: %v", r.Map("detail"))
	}
	// Absent and mistyped fields fall back to zero values.
	if r.String("status") != "" || r.Int("name") != 0 || r.Bool("missing") {
		t.Error("zero-value fallbacks violated")
	}
}

func TestMergeAllowed_IgnoresUnknownKeys(t *testing.T) {
	r := Record{"port": float64(3), "name": "uplink", "poe": true}
	r.MergeAllowed(map[string]any{
		"poe":      false,
		"name":     "lab",
		"mac":      "11:22:33:44:55:66", // not writable
		"sneaky":   "value",
		"linkSpeed": float64(2),
	}, []string{"name", "poe", "linkSpeed"})

	if r.Bool("poe") {
		t.Error("poe = true, want false after patch")
	}
	if r.String("name") != "lab" {
		t.Errorf("name = %q, want lab", r.String("name"))
	}
	if r.Int("linkSpeed") != 2 {
		t.Errorf("linkSpeed = %d, want 2", r.Int("linkSpeed"))
	}
	if _, ok := r["sneaky"]; ok {
		t.Error("non-allow-listed key merged")
	}
	if _, ok := r["mac"]; ok {
		t.Error("identity field must not be writable")
	}
}

func TestCollectionFind_SeparatorInsensitive(t *testing.T) {
	c := NewCollection("mac", []Record{
		{"mac": "AA:BB:CC:DD:EE:FF", "name": "one"},
		{"mac": "11-22-33-44-55-66", "name": "two"},
	})

	if got := c.Find("aa-bb-cc-dd-ee-ff"); got == nil || got.String("name") != "one" {
		t.Fatalf("Find with dashed lowercase = %v, want record one", got)
	}
	if got := c.Find("11:22:33:44:55:66"); got == nil || got.String("name") != "two" {
		t.Fatalf("Find with colon form = %v, want record two", got)
	}
	if c.Find("00:00:00:00:00:00") != nil {
		t.Error("Find for unknown address should be nil")
	}
}

func TestCollectionEnsure_Idempotent(t *testing.T) {
	c := NewCollection("mac", []Record{
		{"mac": "AA:BB:CC:DD:EE:FF", "type": "ap", "model": "EAP610"},
		{"mac": "11:22:33:44:55:66", "type": "switch", "model": "SG2008P"},
	})

	first := c.Ensure("0A:0B:0C:0D:0E:0F", func(r Record) bool { return r.String("type") == "switch" }, Record{"name": "synth"})
	second := c.Ensure("0a-0b-0c-0d-0e-0f", nil, nil)

	if c.Len() != 3 {
		t.Fatalf("Len = %d, want 3 (single synthesized record)", c.Len())
	}
	// Same live record both times, not two synthesized ones.
	first["probe"] = "x"
	if second.String("probe") != "x" {
		t.Error("Ensure returned distinct records for the same address")
	}
	if first.String("model") != "SG2008P" {
		t.Errorf("template clone: model = %q, want SG2008P", first.String("model"))
	}
	if first.String("mac") != "0A:0B:0C:0D:0E:0F" {
		t.Errorf("identity overwrite: mac = %q", first.String("mac"))
	}
}

func TestCollectionEnsure_EmptyBaseline(t *testing.T) {
	c := NewCollection("mac", nil)
	r := c.Ensure("AA:BB:CC:DD:EE:FF", nil, Record{"name": "shell"})
	if r.String("name") != "shell" {
		t.Errorf("name = %q, want shell", r.String("name"))
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestIndex(t *testing.T) {
	idx := Index("mac", []Record{
		{"mac": "AA:BB:CC:DD:EE:FF", "name": "gw"},
		{"name": "no-mac"},
	})
	if len(idx) != 1 {
		t.Fatalf("len(idx) = %d, want 1", len(idx))
	}
	if idx["aa-bb-cc-dd-ee-ff"].String("name") != "gw" {
		t.Error("index key not normalized")
	}
}
