package oracle

import "testing"

func TestClaims_Clone(t *testing.T) {
	orig := &Claims{
		Subject:   "alice",
		Audience:  []string{"api"},
		ExpiresAt: 1700000000,
		Extra: map[string]any{
			"roles":  []any{"reader"},
			"groups": []string{"staff"},
			"org":    map[string]any{"id": "acme"},
		},
	}

	c := orig.Clone()
	c.Subject = "mallory"
	c.Audience[0] = "admin-api"
	c.Extra["roles"].([]any)[0] = "admin"
	c.Extra["groups"].([]string)[0] = "root"
	c.Extra["org"].(map[string]any)["id"] = "evil"
	c.Extra["new"] = true

	if orig.Subject != "alice" || orig.Audience[0] != "api" || orig.ExpiresAt != 1700000000 {
		t.Errorf("original changed: %+v", orig)
	}
	if got := orig.Extra["roles"].([]any)[0]; got != "reader" {
		t.Errorf("roles[0] = %v, want reader", got)
	}
	if got := orig.Extra["groups"].([]string)[0]; got != "staff" {
		t.Errorf("groups[0] = %v, want staff", got)
	}
	if got := orig.Extra["org"].(map[string]any)["id"]; got != "acme" {
		t.Errorf("org.id = %v, want acme", got)
	}
	if _, ok := orig.Extra["new"]; ok {
		t.Error("original gained a key")
	}
}

func TestClaims_CloneNil(t *testing.T) {
	var c *Claims
	if c.Clone() != nil {
		t.Error("nil Clone() should be nil")
	}
	if got := (&Claims{Subject: "a"}).Clone(); got.Extra != nil || got.Audience != nil {
		t.Errorf("Clone() = %+v, want nil Extra and Audience", got)
	}
}
