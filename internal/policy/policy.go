// Package policy provides the default rule-based risk classifier.
// Built-in per-action-type levels can be overridden by a YAML rules
// file, and glob allowlists can downgrade specific trusted targets so
// they dispatch without an approval prompt.
package policy

import (
	"fmt"
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/overseer-dev/overseer/internal/coordinator"
)

// builtinLevels is the default classification per action type. Unknown
// action types classify as medium (fail safe).
var builtinLevels = map[string]coordinator.RiskLevel{
	"screenshot":         coordinator.RiskLow,
	"cursor_position":    coordinator.RiskLow,
	"mouse_move":         coordinator.RiskLow,
	"scroll":             coordinator.RiskLow,
	"wait":               coordinator.RiskLow,
	"click":              coordinator.RiskMedium,
	"double_click":       coordinator.RiskMedium,
	"drag":               coordinator.RiskMedium,
	"type":               coordinator.RiskMedium,
	"key":                coordinator.RiskHigh,
	"launch_application": coordinator.RiskHigh,
	"shell":              coordinator.RiskCritical,
	"file_delete":        coordinator.RiskCritical,
}

// Rule overrides the risk level for one action type.
type Rule struct {
	ActionType string `yaml:"action_type"`
	Risk       string `yaml:"risk"`
}

// AllowRule downgrades matching actions to low risk. Patterns are
// doublestar globs matched against the named string param of the
// action (for example the path of a launch_application).
type AllowRule struct {
	ActionType string   `yaml:"action_type"`
	Param      string   `yaml:"param"`
	Patterns   []string `yaml:"patterns"`
}

// File is the on-disk shape of a policy rules file.
type File struct {
	Rules []Rule      `yaml:"rules"`
	Allow []AllowRule `yaml:"allow"`
}

// Classifier is the rule-based coordinator.Classifier.
type Classifier struct {
	levels map[string]coordinator.RiskLevel
	allow  []AllowRule
}

// Default returns a classifier with only the built-in table.
func Default() *Classifier {
	levels := make(map[string]coordinator.RiskLevel, len(builtinLevels))
	for k, v := range builtinLevels {
		levels[k] = v
	}
	return &Classifier{levels: levels}
}

// Load reads a YAML policy file and layers it over the built-in table.
func Load(path string) (*Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse policy file %q: %w", path, err)
	}
	return FromFile(f)
}

// FromFile builds a classifier from parsed rules.
func FromFile(f File) (*Classifier, error) {
	c := Default()
	for _, r := range f.Rules {
		if r.ActionType == "" {
			return nil, fmt.Errorf("policy rule missing action_type")
		}
		// ParseRiskLevel maps unknown strings to medium rather than
		// silently widening what runs unattended.
		c.levels[r.ActionType] = coordinator.ParseRiskLevel(r.Risk)
	}
	for _, a := range f.Allow {
		if a.ActionType == "" || a.Param == "" || len(a.Patterns) == 0 {
			return nil, fmt.Errorf("allow rule needs action_type, param and patterns")
		}
		for _, p := range a.Patterns {
			if !doublestar.ValidatePattern(p) {
				return nil, fmt.Errorf("invalid allow pattern %q", p)
			}
		}
		c.allow = append(c.allow, a)
	}
	return c, nil
}

// Classify implements coordinator.Classifier.
func (c *Classifier) Classify(action coordinator.ProposedAction) coordinator.RiskLevel {
	if c.allowed(action) {
		return coordinator.RiskLow
	}
	if lvl, ok := c.levels[action.Type]; ok {
		return lvl
	}
	return coordinator.RiskMedium
}

func (c *Classifier) allowed(action coordinator.ProposedAction) bool {
	for _, a := range c.allow {
		if a.ActionType != action.Type {
			continue
		}
		raw, ok := action.Params[a.Param]
		if !ok {
			continue
		}
		value, ok := raw.(string)
		if !ok {
			continue
		}
		for _, p := range a.Patterns {
			if matched, err := doublestar.Match(p, value); err == nil && matched {
				return true
			}
		}
	}
	return false
}

var _ coordinator.Classifier = (*Classifier)(nil)
