package review

import (
	"strings"
	"testing"
)

func TestBuildJudgePrompt(t *testing.T) {
	cfg := JudgeConfig{ID: "sec", Provider: "anthropic", Model: "m", Persona: "security", Instructions: "Pay attention to SQL."}
	req := Request{
		Diff:        "diff --git a/main.go b/main.go\n+++ b/main.go\n@@ -1,3 +1,4 @@\n+import \"fmt\"\n",
		Files:       []string{"main.go"},
		Plan:        "Add logging",
		PriorReview: "Missing tests",
	}

	system, user := BuildJudgePrompt(cfg, req, nil)

	if !strings.Contains(system, "application security reviewer") {
		t.Error("system prompt should carry the persona")
	}
	if !strings.Contains(system, "Pay attention to SQL.") {
		t.Error("system prompt should carry judge instructions")
	}
	if !strings.Contains(system, `"disposition"`) {
		t.Error("system prompt should describe the response format")
	}
	if !strings.Contains(user, "BEGIN DIFF") || !strings.Contains(user, req.Diff) {
		t.Error("user prompt should contain the diff")
	}
	if !strings.Contains(user, "BEGIN PLAN") || !strings.Contains(user, "Add logging") {
		t.Error("user prompt should contain the plan")
	}
	if !strings.Contains(user, "BEGIN PRIOR REVIEW") || !strings.Contains(user, "Missing tests") {
		t.Error("user prompt should contain the prior review")
	}
	if !strings.Contains(user, "Languages: Go") {
		t.Error("user prompt should detect Go from .go files")
	}
}

func TestBuildJudgePrompt_OmitsEmptySections(t *testing.T) {
	_, user := BuildJudgePrompt(JudgeConfig{}, Request{Diff: "x"}, nil)
	if strings.Contains(user, "PLAN") || strings.Contains(user, "PRIOR REVIEW") {
		t.Error("empty plan and prior review should be omitted")
	}
}

func TestBuildJudgePrompt_UnknownPersonaFallsBack(t *testing.T) {
	system, _ := BuildJudgePrompt(JudgeConfig{Persona: "astrologer"}, Request{Diff: "x"}, nil)
	if !strings.Contains(system, "balanced senior reviewer") {
		t.Error("unknown persona should fall back to general")
	}
}

func TestBuildJudgePrompt_Guidelines(t *testing.T) {
	g := &Guidelines{
		Focus:    []string{"security"},
		Required: []RequiredCheck{{ID: "errs", Text: "Errors are wrapped"}},
		Blocking: []string{"secrets committed"},
	}
	system, _ := BuildJudgePrompt(JudgeConfig{}, Request{Diff: "x"}, g)
	for _, want := range []string{"Project focus areas: security", "[errs] Errors are wrapped", "secrets committed"} {
		if !strings.Contains(system, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
}

func TestDetectLanguages(t *testing.T) {
	tests := []struct {
		files    []string
		expected []string
	}{
		{[]string{"main.go", "util.go"}, []string{"Go"}},
		{[]string{"app.py"}, []string{"Python"}},
		{[]string{"index.ts", "app.tsx"}, []string{"TypeScript", "TypeScript/React"}},
		{[]string{"README.md"}, nil},
	}

	for _, tt := range tests {
		langs := detectLanguages(tt.files)
		if len(langs) != len(tt.expected) {
			t.Errorf("detectLanguages(%v) = %v, want %v", tt.files, langs, tt.expected)
			continue
		}
		for i := range langs {
			if langs[i] != tt.expected[i] {
				t.Errorf("detectLanguages(%v)[%d] = %q, want %q", tt.files, i, langs[i], tt.expected[i])
			}
		}
	}
}

func TestPersonaNames(t *testing.T) {
	names := PersonaNames()
	if len(names) != 6 || names[0] != "correctness" {
		t.Errorf("PersonaNames() = %v", names)
	}
	if _, ok := LookupPersona(""); !ok {
		t.Error("empty persona should resolve to the default")
	}
}
