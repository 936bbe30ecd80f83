package review

import (
	"fmt"
	"path/filepath"
	"strings"
)

const systemPreamble = `You are a member of a code review council. Several independent reviewers examine the same change and their verdicts are combined by weighted vote. Review on your own merits.`

const responseFormat = `Respond with ONLY a JSON object. No markdown, no preamble.

{
  "disposition": "approve|request_changes|reject",
  "score": 0-100,
  "rationale": "One or two paragraphs explaining the disposition",
  "issues": [
    {
      "description": "What is wrong and why it matters",
      "severity": "critical|high|medium|low",
      "path": "relative/file/path",
      "startLine": 1,
      "endLine": 1
    }
  ]
}

Use "approve" when the change is ready to merge, "request_changes" when it needs fixes first, and "reject" when the approach is wrong or unsafe.
Reference line numbers from the diff hunks. Only review the changes shown. If there are no issues, use an empty array.`

// BuildJudgePrompt returns the system and user prompts for one judge.
func BuildJudgePrompt(cfg JudgeConfig, req Request, guidelines *Guidelines) (system, user string) {
	return buildSystemPrompt(cfg, guidelines), buildUserPrompt(req)
}

func buildSystemPrompt(cfg JudgeConfig, guidelines *Guidelines) string {
	var b strings.Builder
	b.WriteString(systemPreamble)
	b.WriteString("\n\n")

	persona, ok := LookupPersona(cfg.Persona)
	if !ok {
		persona, _ = LookupPersona(DefaultPersona)
	}
	fmt.Fprintf(&b, "Your role: %s. %s\n", persona.Description, persona.Focus)

	if ins := strings.TrimSpace(cfg.Instructions); ins != "" {
		fmt.Fprintf(&b, "\nAdditional instructions:\n%s\n", ins)
	}
	if section := guidelines.PromptSection(); section != "" {
		b.WriteString(section)
	}

	b.WriteString("\n")
	b.WriteString(responseFormat)
	return b.String()
}

func buildUserPrompt(req Request) string {
	var b strings.Builder

	b.WriteString("Review the following change.\n\n")

	if langs := detectLanguages(req.Files); len(langs) > 0 {
		fmt.Fprintf(&b, "Languages: %s\n", strings.Join(langs, ", "))
	}
	if len(req.Files) > 0 {
		fmt.Fprintf(&b, "Files changed: %s\n", strings.Join(req.Files, ", "))
	}

	if plan := strings.TrimSpace(req.Plan); plan != "" {
		b.WriteString("\nThe author's stated intent for this change:\n--- BEGIN PLAN ---\n")
		b.WriteString(plan)
		b.WriteString("\n--- END PLAN ---\n")
	}
	if prior := strings.TrimSpace(req.PriorReview); prior != "" {
		b.WriteString("\nA previous review of this change said the following. Check whether it was addressed:\n--- BEGIN PRIOR REVIEW ---\n")
		b.WriteString(prior)
		b.WriteString("\n--- END PRIOR REVIEW ---\n")
	}

	b.WriteString("\n--- BEGIN DIFF ---\n")
	b.WriteString(req.Diff)
	b.WriteString("\n--- END DIFF ---\n")

	return b.String()
}

var langByExt = map[string]string{
	".go":    "Go",
	".py":    "Python",
	".js":    "JavaScript",
	".ts":    "TypeScript",
	".tsx":   "TypeScript/React",
	".jsx":   "JavaScript/React",
	".rs":    "Rust",
	".java":  "Java",
	".rb":    "Ruby",
	".cpp":   "C++",
	".c":     "C",
	".h":     "C/C++",
	".cs":    "C#",
	".php":   "PHP",
	".swift": "Swift",
	".kt":    "Kotlin",
	".sql":   "SQL",
	".sh":    "Shell",
	".yaml":  "YAML",
	".yml":   "YAML",
	".json":  "JSON",
	".tf":    "Terraform",
}

// detectLanguages returns languages in first-seen order.
func detectLanguages(files []string) []string {
	seen := make(map[string]bool)
	var langs []string
	for _, f := range files {
		lang, ok := langByExt[strings.ToLower(filepath.Ext(f))]
		if ok && !seen[lang] {
			seen[lang] = true
			langs = append(langs, lang)
		}
	}
	return langs
}
