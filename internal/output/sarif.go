package output

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dshills/tribunal/internal/review"
)

// SARIFWriter outputs council issues in SARIF v2.1.0 format.
type SARIFWriter struct{}

func (s *SARIFWriter) Write(w io.Writer, report *Report) error {
	data, err := json.MarshalIndent(buildSARIF(report), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling SARIF: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing SARIF: %w", err)
	}
	_, err = fmt.Fprintln(w)
	return err
}

// SARIF schema types (v2.1.0)

type sarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool       sarifTool         `json:"tool"`
	Results    []sarifResult     `json:"results"`
	Properties sarifRunProps     `json:"properties"`
	Invocation []sarifInvocation `json:"invocations,omitempty"`
}

type sarifRunProps struct {
	ReviewID    string  `json:"reviewId,omitempty"`
	Disposition string  `json:"disposition"`
	Confidence  float64 `json:"confidence"`
	Consensus   float64 `json:"consensus"`
	Degraded    bool    `json:"degraded"`
}

type sarifInvocation struct {
	ExecutionSuccessful bool                `json:"executionSuccessful"`
	Notifications       []sarifNotification `json:"toolExecutionNotifications,omitempty"`
}

type sarifNotification struct {
	Level   string       `json:"level"`
	Message sarifMessage `json:"message"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version"`
	InformationURI string      `json:"informationUri"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string             `json:"id"`
	ShortDescription sarifMessage       `json:"shortDescription"`
	DefaultConfig    sarifDefaultConfig `json:"defaultConfiguration"`
}

type sarifDefaultConfig struct {
	Level string `json:"level"`
}

type sarifResult struct {
	RuleID     string           `json:"ruleId"`
	Level      string           `json:"level"`
	Message    sarifMessage     `json:"message"`
	Locations  []sarifLocation  `json:"locations,omitempty"`
	Properties sarifResultProps `json:"properties"`
}

type sarifResultProps struct {
	RaisedBy []string `json:"raisedBy"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine int `json:"startLine"`
	EndLine   int `json:"endLine,omitempty"`
}

func buildSARIF(report *Report) sarifLog {
	v := &report.Verdict
	var (
		rules   []sarifRule
		results = []sarifResult{}
		seen    = make(map[string]bool)
	)

	for _, is := range v.Issues {
		ruleID := ruleIDFor(is)
		if !seen[ruleID] {
			seen[ruleID] = true
			rules = append(rules, sarifRule{
				ID:               ruleID,
				ShortDescription: sarifMessage{Text: firstLine(is.Description)},
				DefaultConfig:    sarifDefaultConfig{Level: severityToLevel(is.Severity)},
			})
		}

		result := sarifResult{
			RuleID:     ruleID,
			Level:      severityToLevel(is.Severity),
			Message:    sarifMessage{Text: is.Description},
			Properties: sarifResultProps{RaisedBy: is.RaisedBy},
		}
		if is.Location != nil && is.Location.Path != "" {
			loc := sarifPhysicalLocation{ArtifactLocation: sarifArtifactLocation{URI: is.Location.Path}}
			if is.Location.Lines.Start > 0 {
				loc.Region = &sarifRegion{StartLine: is.Location.Lines.Start, EndLine: is.Location.Lines.End}
			}
			result.Locations = []sarifLocation{{PhysicalLocation: loc}}
		}
		results = append(results, result)
	}

	inv := sarifInvocation{ExecutionSuccessful: !v.Degraded}
	for _, f := range v.Failed {
		inv.Notifications = append(inv.Notifications, sarifNotification{
			Level:   "warning",
			Message: sarifMessage{Text: fmt.Sprintf("judge %s %s: %s", f.JudgeID, f.Status, f.Error)},
		})
	}

	return sarifLog{
		Version: "2.1.0",
		Schema:  "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/main/sarif-2.1/schema/sarif-schema-2.1.0.json",
		Runs: []sarifRun{{
			Tool: sarifTool{Driver: sarifDriver{
				Name:           "tribunal",
				Version:        report.Version,
				InformationURI: "https://github.com/dshills/tribunal",
				Rules:          rules,
			}},
			Results: results,
			Properties: sarifRunProps{
				ReviewID:    v.ReviewID,
				Disposition: string(v.Disposition),
				Confidence:  v.Confidence,
				Consensus:   v.Consensus,
				Degraded:    v.Degraded,
			},
			Invocation: []sarifInvocation{inv},
		}},
	}
}

// severityToLevel maps issue severity to SARIF level.
func severityToLevel(s review.Severity) string {
	switch s {
	case review.SeverityCritical, review.SeverityHigh:
		return "error"
	case review.SeverityMedium:
		return "warning"
	default:
		return "note"
	}
}

// ruleIDFor derives a stable rule ID from severity and description.
func ruleIDFor(is review.Issue) string {
	h := sha256.Sum256([]byte(is.Description))
	return fmt.Sprintf("tribunal/%s/%x", is.Severity, h[:4])
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
