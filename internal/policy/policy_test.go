package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/overseer-dev/overseer/internal/coordinator"
)

func TestDefault_BuiltinTable(t *testing.T) {
	c := Default()

	cases := []struct {
		actionType string
		want       coordinator.RiskLevel
	}{
		{"screenshot", coordinator.RiskLow},
		{"click", coordinator.RiskMedium},
		{"key", coordinator.RiskHigh},
		{"shell", coordinator.RiskCritical},
		// Unknown action types fail safe to medium.
		{"teleport", coordinator.RiskMedium},
	}
	for _, tc := range cases {
		got := c.Classify(coordinator.ProposedAction{Type: tc.actionType})
		if got != tc.want {
			t.Errorf("Classify(%s) = %s, want %s", tc.actionType, got, tc.want)
		}
	}
}

func TestLoad_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	content := `
rules:
  - action_type: click
    risk: high
  - action_type: custom_gesture
    risk: bogus-level
allow:
  - action_type: launch_application
    param: path
    patterns:
      - "/Applications/**"
      - "/usr/bin/*"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if got := c.Classify(coordinator.ProposedAction{Type: "click"}); got != coordinator.RiskHigh {
		t.Errorf("override: click = %s, want high", got)
	}
	// Bogus risk strings fall back to medium, not low.
	if got := c.Classify(coordinator.ProposedAction{Type: "custom_gesture"}); got != coordinator.RiskMedium {
		t.Errorf("bogus risk = %s, want medium", got)
	}
}

func TestAllowlist_Downgrades(t *testing.T) {
	c, err := FromFile(File{
		Allow: []AllowRule{{
			ActionType: "launch_application",
			Param:      "path",
			Patterns:   []string{"/Applications/**", "/usr/bin/*"},
		}},
	})
	if err != nil {
		t.Fatalf("from file: %v", err)
	}

	trusted := coordinator.ProposedAction{
		Type:   "launch_application",
		Params: map[string]any{"path": "/Applications/Notes.app/Contents/MacOS/Notes"},
	}
	if got := c.Classify(trusted); got != coordinator.RiskLow {
		t.Errorf("trusted app = %s, want low", got)
	}

	untrusted := coordinator.ProposedAction{
		Type:   "launch_application",
		Params: map[string]any{"path": "/tmp/payload"},
	}
	if got := c.Classify(untrusted); got != coordinator.RiskHigh {
		t.Errorf("untrusted app = %s, want high", got)
	}

	// Allowlist for one action type must not leak to others.
	other := coordinator.ProposedAction{
		Type:   "shell",
		Params: map[string]any{"path": "/usr/bin/true"},
	}
	if got := c.Classify(other); got != coordinator.RiskCritical {
		t.Errorf("shell = %s, want critical", got)
	}

	// Missing or non-string param never matches.
	missing := coordinator.ProposedAction{Type: "launch_application"}
	if got := c.Classify(missing); got != coordinator.RiskHigh {
		t.Errorf("missing param = %s, want high", got)
	}
}

func TestFromFile_Validation(t *testing.T) {
	if _, err := FromFile(File{Rules: []Rule{{Risk: "high"}}}); err == nil {
		t.Error("expected error for rule without action_type")
	}
	if _, err := FromFile(File{Allow: []AllowRule{{ActionType: "click", Param: "path"}}}); err == nil {
		t.Error("expected error for allow rule without patterns")
	}
	if _, err := FromFile(File{Allow: []AllowRule{{
		ActionType: "click", Param: "path", Patterns: []string{"[bad"},
	}}}); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
