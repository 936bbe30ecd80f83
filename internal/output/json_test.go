package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/dshills/tribunal/internal/review"
)

func TestJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	if err := (&JSONWriter{}).Write(&buf, sampleReport()); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	var decoded Report
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if decoded.Tool != "tribunal" || decoded.Mode != "staged" {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.Verdict.Disposition != review.DispositionRequestChanges {
		t.Errorf("disposition = %q", decoded.Verdict.Disposition)
	}
	if len(decoded.Verdict.Failed) != 1 || decoded.Verdict.Failed[0].Failure != review.FailureTimeout {
		t.Errorf("failed = %+v", decoded.Verdict.Failed)
	}
	if !strings.HasSuffix(buf.String(), "\n") {
		t.Error("JSON output should end with newline")
	}
}

func TestYAMLWriter(t *testing.T) {
	var buf bytes.Buffer
	if err := (&YAMLWriter{}).Write(&buf, sampleReport()); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	var decoded map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Invalid YAML: %v", err)
	}
	verdict, ok := decoded["verdict"].(map[string]any)
	if !ok {
		t.Fatalf("verdict missing:\n%s", buf.String())
	}
	if verdict["disposition"] != "request_changes" {
		t.Errorf("disposition = %v", verdict["disposition"])
	}
	if verdict["degraded"] != true {
		t.Errorf("degraded = %v", verdict["degraded"])
	}
}
