package review

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Guidelines is a project policy pack loaded from --guidelines. Every judge
// sees the same guidelines regardless of persona.
type Guidelines struct {
	Focus    []string        `yaml:"focus,omitempty" json:"focus,omitempty"`
	Required []RequiredCheck `yaml:"required,omitempty" json:"required,omitempty"`
	// Blocking lists conditions that should lead a judge to reject.
	Blocking []string `yaml:"blocking,omitempty" json:"blocking,omitempty"`
	// SeverityOverrides maps an issue keyword to the tier it must be rated at.
	SeverityOverrides map[string]string `yaml:"severityOverrides,omitempty" json:"severityOverrides,omitempty"`
}

// RequiredCheck is a policy check that should always be evaluated.
type RequiredCheck struct {
	ID   string `yaml:"id" json:"id"`
	Text string `yaml:"text" json:"text"`
}

// LoadGuidelines reads a YAML (or JSON) guidelines file. An empty path yields nil, nil.
func LoadGuidelines(path string) (*Guidelines, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading guidelines file: %w", err)
	}
	var g Guidelines
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing guidelines file: %w", err)
	}
	for i, req := range g.Required {
		if strings.TrimSpace(req.Text) == "" {
			return nil, fmt.Errorf("guidelines: required check %d has no text", i)
		}
		if req.ID == "" {
			g.Required[i].ID = fmt.Sprintf("R%d", i+1)
		}
	}
	for k, v := range g.SeverityOverrides {
		if NormalizeSeverity(v) != Severity(strings.ToLower(v)) {
			return nil, fmt.Errorf("guidelines: severity override %q: unknown severity %q", k, v)
		}
	}
	return &g, nil
}

// PromptSection renders the guidelines as prompt instructions.
func (g *Guidelines) PromptSection() string {
	if g == nil {
		return ""
	}

	var b strings.Builder

	if len(g.Focus) > 0 {
		fmt.Fprintf(&b, "\nProject focus areas: %s. Prioritize issues in these areas.\n",
			strings.Join(g.Focus, ", "))
	}

	if len(g.Required) > 0 {
		b.WriteString("\nRequired checks (always evaluate these):\n")
		for _, req := range g.Required {
			fmt.Fprintf(&b, "- [%s] %s\n", req.ID, req.Text)
		}
	}

	if len(g.Blocking) > 0 {
		b.WriteString("\nReject the change if any of these hold:\n")
		for _, cond := range g.Blocking {
			fmt.Fprintf(&b, "- %s\n", cond)
		}
	}

	if len(g.SeverityOverrides) > 0 {
		b.WriteString("\nSeverity policy:\n")
		for _, k := range sortedKeys(g.SeverityOverrides) {
			fmt.Fprintf(&b, "- issues about %s are %s severity.\n", k, g.SeverityOverrides[k])
		}
	}

	return b.String()
}

// ApplySeverityOverrides rewrites issue severities whose description mentions
// an override keyword. It returns a new slice.
func (g *Guidelines) ApplySeverityOverrides(issues []Issue) []Issue {
	if g == nil || len(g.SeverityOverrides) == 0 || len(issues) == 0 {
		return issues
	}
	keys := sortedKeys(g.SeverityOverrides)
	out := make([]Issue, len(issues))
	for i, issue := range issues {
		lower := strings.ToLower(issue.Description)
		for _, k := range keys {
			if strings.Contains(lower, strings.ToLower(k)) {
				issue.Severity = NormalizeSeverity(g.SeverityOverrides[k])
				break
			}
		}
		out[i] = issue
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
