package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/tribunal/internal/gitctx"
	"github.com/dshills/tribunal/internal/history"
	"github.com/dshills/tribunal/internal/logging"
	"github.com/dshills/tribunal/internal/output"
	"github.com/dshills/tribunal/internal/redact"
	"github.com/dshills/tribunal/internal/review"
)

// Reviewer is the part of a council the server needs.
type Reviewer interface {
	Review(ctx context.Context, req review.Request) *review.CouncilVerdict
	Judges() []review.JudgeConfig
	Ceiling() time.Duration
}

// Recorder persists verdicts. *history.Store satisfies it.
type Recorder interface {
	Save(ctx context.Context, meta history.Meta, v *review.CouncilVerdict) (history.Summary, error)
}

// Server exposes a council as MCP tools.
type Server struct {
	council      Reviewer
	version      string
	redact       redact.Options
	history      Recorder
	log          *logging.Logger
	maxDiffBytes int
	exclude      []string
}

// Option configures a Server.
type Option func(*Server)

// WithRedaction sets the redaction applied to every request before review.
func WithRedaction(opts redact.Options) Option {
	return func(s *Server) { s.redact = opts }
}

// WithHistory records every verdict in r.
func WithHistory(r Recorder) Option {
	return func(s *Server) { s.history = r }
}

// WithLogger sets the server's logger. It must not write to stdout.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithDiffLimits sets the byte budget and exclusion globs for submitted diffs.
func WithDiffLimits(maxBytes int, exclude []string) Option {
	return func(s *Server) {
		s.maxDiffBytes = maxBytes
		s.exclude = exclude
	}
}

// NewServer creates the MCP server wrapper around a council.
func NewServer(c Reviewer, version string, opts ...Option) *Server {
	s := &Server{council: c, version: version, log: logging.Nop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("tribunal", s.version, server.WithToolCapabilities(true))
	srv.AddTool(s.reviewTool())
	srv.AddTool(s.judgesTool())
	return srv
}

// ServeStdio serves on stdin/stdout until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve runs the stdio transport over in and out.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.MCPServer())
	stdio.SetErrorLogger(slog.NewLogLogger(s.log.Slog().Handler(), slog.LevelError))
	s.log.Info("mcp.serving", "judges", len(s.council.Judges()))
	return stdio.Listen(ctx, in, out)
}

// tribunal_review
func (s *Server) reviewTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tribunal_review",
		mcp.WithDescription("Convene the judge council on a unified diff. Every configured judge reviews the change in parallel; "+
			"returns the aggregate disposition (approve, request_changes, reject), confidence, consensus, merged issues and per-judge verdicts."),
		mcp.WithString("diff", mcp.Required(), mcp.Description("Unified diff of the change under review")),
		mcp.WithString("plan", mcp.Description("Implementation plan or intent the change should satisfy")),
		mcp.WithString("prior_review", mcp.Description("Earlier review of this change, for follow-up rounds")),
		mcp.WithString("format", mcp.Description("Result format"), mcp.Enum("json", "markdown", "text")),
	)
	return tool, s.handleReview
}

func (s *Server) handleReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	diff, err := request.RequireString("diff")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: diff"), nil
	}
	format := request.GetString("format", "json")
	writer, err := output.GetWriter(format)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := gitctx.Parse(diff, "mcp", gitctx.DiffOptions{MaxDiffBytes: s.maxDiffBytes, Exclude: s.exclude})
	if err != nil {
		if errors.Is(err, gitctx.ErrEmptyDiff) {
			return mcp.NewToolResultError("diff is empty after exclusions"), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}

	req, rep := redact.Request(res.Request(request.GetString("plan", ""), request.GetString("prior_review", "")), s.redact)
	v := s.council.Review(ctx, req)

	report := output.NewReport(s.version, v, s.council.Judges())
	report.Mode = res.Mode
	report.Notes = notes(res, rep)

	if s.history != nil {
		if _, err := s.history.Save(ctx, history.Meta{Mode: res.Mode}, v); err != nil {
			s.log.WithReview(v.ReviewID).Warn("history.save_failed", "error", err)
		}
	}

	var buf bytes.Buffer
	if err := writer.Write(&buf, report); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to render verdict: %v", err)), nil
	}
	return mcp.NewToolResultText(buf.String()), nil
}

func notes(res gitctx.DiffResult, rep redact.Report) []string {
	var out []string
	if res.Truncated {
		out = append(out, "diff was truncated to the configured byte budget")
	}
	if rep.Secrets > 0 {
		out = append(out, fmt.Sprintf("%d secret(s) redacted before review", rep.Secrets))
	}
	for _, f := range rep.Files {
		out = append(out, "contents of "+f+" withheld by path policy")
	}
	return out
}

// tribunal_judges
func (s *Server) judgesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tribunal_judges",
		mcp.WithDescription("List the judges seated on the council with provider, model, persona, vote weight and timeout."),
	)
	return tool, s.handleJudges
}

func (s *Server) handleJudges(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type judgeOut struct {
		ID       string  `json:"id"`
		Provider string  `json:"provider"`
		Model    string  `json:"model"`
		Persona  string  `json:"persona,omitempty"`
		Weight   float64 `json:"weight"`
		Timeout  string  `json:"timeout"`
	}

	judges := s.council.Judges()
	out := struct {
		Judges  []judgeOut `json:"judges"`
		Ceiling string     `json:"ceiling"`
	}{Judges: make([]judgeOut, len(judges)), Ceiling: s.council.Ceiling().String()}
	for i, j := range judges {
		out.Judges[i] = judgeOut{
			ID:       j.ID,
			Provider: j.Provider,
			Model:    j.Model,
			Persona:  j.Persona,
			Weight:   j.Weight,
			Timeout:  j.Timeout.String(),
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal judges: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
