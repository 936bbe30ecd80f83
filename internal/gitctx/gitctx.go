package gitctx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/dshills/tribunal/internal/review"
)

const truncationNote = "\n... (diff truncated at max-diff-bytes limit)\n"

// ErrEmptyDiff is returned when the selected change has no content to review.
var ErrEmptyDiff = errors.New("no changes to review")

// DiffOptions controls how diffs are gathered.
type DiffOptions struct {
	ContextLines int
	MaxDiffBytes int
	Exclude      []string
}

// DiffResult holds the collected diff and metadata.
type DiffResult struct {
	Diff      string
	Files     []string
	Mode      string
	Range     string
	Truncated bool
	Repo      RepoMeta
}

// Request turns the diff into the unit a council reviews.
func (d DiffResult) Request(plan, priorReview string) review.Request {
	return review.Request{
		Diff:        d.Diff,
		Files:       append([]string(nil), d.Files...),
		Plan:        plan,
		PriorReview: priorReview,
	}
}

// RepoMeta contains git repository metadata.
type RepoMeta struct {
	Root   string
	Head   string
	Branch string
}

// Repo runs git in a working directory. An empty Dir means the process
// working directory.
type Repo struct {
	Dir string
}

// Meta collects repository metadata from git.
func (r Repo) Meta(ctx context.Context) (RepoMeta, error) {
	root, err := r.git(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return RepoMeta{}, fmt.Errorf("not a git repository: %w", err)
	}
	// A repository with no commits has neither.
	head, _ := r.git(ctx, "rev-parse", "HEAD")
	branch, _ := r.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	return RepoMeta{
		Root:   strings.TrimSpace(root),
		Head:   strings.TrimSpace(head),
		Branch: strings.TrimSpace(branch),
	}, nil
}

// Unstaged returns the diff of working tree vs index.
func (r Repo) Unstaged(ctx context.Context, opts DiffOptions) (DiffResult, error) {
	diff, err := r.git(ctx, append([]string{"diff"}, diffArgs(opts)...)...)
	if err != nil {
		return DiffResult{}, fmt.Errorf("git diff: %w", err)
	}
	return r.result(ctx, diff, "unstaged", "", opts)
}

// Staged returns the diff of index vs HEAD.
func (r Repo) Staged(ctx context.Context, opts DiffOptions) (DiffResult, error) {
	diff, err := r.git(ctx, append([]string{"diff", "--cached"}, diffArgs(opts)...)...)
	if err != nil {
		return DiffResult{}, fmt.Errorf("git diff --cached: %w", err)
	}
	return r.result(ctx, diff, "staged", "", opts)
}

// Commit returns the diff a single commit introduced.
func (r Repo) Commit(ctx context.Context, sha string, opts DiffOptions) (DiffResult, error) {
	args := diffArgs(opts)
	diff, err := r.git(ctx, append([]string{"diff", sha + "~1", sha}, args...)...)
	if err != nil {
		// The root commit has no parent; fall back to show.
		show := append([]string{"show", "--format="}, contextArg(opts)...)
		diff, err = r.git(ctx, append(show, sha)...)
		if err != nil {
			return DiffResult{}, fmt.Errorf("git show %s: %w", sha, err)
		}
	}
	return r.result(ctx, diff, "commit", sha, opts)
}

// Range returns the combined diff for a revision range. With mergeBase,
// "a..b" is compared from the merge base of a and b.
func (r Repo) Range(ctx context.Context, revRange string, mergeBase bool, opts DiffOptions) (DiffResult, error) {
	diffRange := revRange
	if mergeBase && strings.Contains(revRange, "..") && !strings.Contains(revRange, "...") {
		diffRange = strings.Replace(revRange, "..", "...", 1)
	}
	diff, err := r.git(ctx, append([]string{"diff", diffRange}, diffArgs(opts)...)...)
	if err != nil {
		return DiffResult{}, fmt.Errorf("git diff %s: %w", revRange, err)
	}
	return r.result(ctx, diff, "range", revRange, opts)
}

// Snippet wraps raw content as a "diff" for review. If base is provided, it
// computes a real diff against it with git diff --no-index.
func Snippet(ctx context.Context, content, path, base string, opts DiffOptions) (DiffResult, error) {
	if path == "" {
		path = "snippet"
	}
	var diff string
	if base != "" {
		var err error
		diff, err = noIndexDiff(ctx, path, base, content)
		if err != nil {
			return DiffResult{}, err
		}
	} else {
		diff = newFileDiff(path, content)
	}
	res := DiffResult{Mode: "snippet", Files: []string{path}}
	res.Diff, res.Truncated = truncate(diff, opts.MaxDiffBytes)
	return res, nil
}

// Parse applies exclusion and the byte budget to a diff that was produced
// elsewhere, such as one handed over by an MCP client.
func Parse(diff, mode string, opts DiffOptions) (DiffResult, error) {
	res := buildResult(diff, mode, "", opts)
	if strings.TrimSpace(res.Diff) == "" {
		return DiffResult{}, fmt.Errorf("%s: %w", mode, ErrEmptyDiff)
	}
	return res, nil
}

func noIndexDiff(ctx context.Context, path, base, content string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "tribunal-snippet-*")
	if err != nil {
		return "", fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	name := filepath.Base(path)
	a := filepath.Join(tmpDir, "a", name)
	b := filepath.Join(tmpDir, "b", name)
	for file, data := range map[string]string{a: base, b: content} {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return "", err
		}
		if err := os.WriteFile(file, []byte(data), 0o644); err != nil {
			return "", err
		}
	}

	// git diff --no-index exits 1 when the files differ.
	diff, err := Repo{}.git(ctx, "diff", "--no-index", a, b)
	if err != nil && diff == "" {
		return "", fmt.Errorf("git diff --no-index: %w", err)
	}
	return diff, nil
}

func newFileDiff(path, content string) string {
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	var b strings.Builder
	fmt.Fprintf(&b, "diff --git a/%s b/%s\n", path, path)
	b.WriteString("new file mode 100644\n")
	b.WriteString("--- /dev/null\n")
	fmt.Fprintf(&b, "+++ b/%s\n", path)
	fmt.Fprintf(&b, "@@ -0,0 +1,%d @@\n", len(lines))
	for _, line := range lines {
		b.WriteString("+" + line + "\n")
	}
	return b.String()
}

func contextArg(opts DiffOptions) []string {
	if opts.ContextLines > 0 {
		return []string{fmt.Sprintf("-U%d", opts.ContextLines)}
	}
	return nil
}

func diffArgs(opts DiffOptions) []string {
	return append(contextArg(opts), "--")
}

func (r Repo) result(ctx context.Context, diff, mode, rangeStr string, opts DiffOptions) (DiffResult, error) {
	res := buildResult(diff, mode, rangeStr, opts)
	if strings.TrimSpace(res.Diff) == "" {
		return DiffResult{}, fmt.Errorf("%s: %w", mode, ErrEmptyDiff)
	}
	meta, err := r.Meta(ctx)
	if err == nil {
		res.Repo = meta
	}
	return res, nil
}

func buildResult(diff, mode, rangeStr string, opts DiffOptions) DiffResult {
	files := extractFiles(diff)

	// Excluded files must not consume the byte budget.
	if len(opts.Exclude) > 0 {
		diff = filterExcluded(diff, opts.Exclude)
		files = filterFileList(files, opts.Exclude)
	}
	diff, truncated := truncate(diff, opts.MaxDiffBytes)

	return DiffResult{
		Diff:      diff,
		Files:     files,
		Mode:      mode,
		Range:     rangeStr,
		Truncated: truncated,
	}
}

// truncate cuts diff to at most max bytes on a line boundary.
func truncate(diff string, max int) (string, bool) {
	if max <= 0 || len(diff) <= max {
		return diff, false
	}
	cut := diff[:max]
	if i := strings.LastIndexByte(cut, '\n'); i > 0 {
		cut = cut[:i+1]
	}
	return strings.TrimRight(cut, "\n") + truncationNote, true
}

func extractFiles(diff string) []string {
	var files []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(diff, "\n") {
		if f, ok := strings.CutPrefix(line, "+++ b/"); ok && !seen[f] {
			seen[f] = true
			files = append(files, f)
		}
	}
	return files
}

func filterExcluded(diff string, excludes []string) string {
	var kept []string
	for _, section := range splitDiffSections(diff) {
		path := extractPathFromSection(section)
		if path == "" || !MatchesAny(path, excludes) {
			kept = append(kept, section)
		}
	}
	return strings.Join(kept, "")
}

func splitDiffSections(diff string) []string {
	var (
		sections []string
		current  strings.Builder
	)
	for _, line := range strings.SplitAfter(diff, "\n") {
		if strings.HasPrefix(line, "diff --git") && current.Len() > 0 {
			sections = append(sections, current.String())
			current.Reset()
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		sections = append(sections, current.String())
	}
	return sections
}

func extractPathFromSection(section string) string {
	for _, line := range strings.Split(section, "\n") {
		if f, ok := strings.CutPrefix(line, "+++ b/"); ok {
			return f
		}
	}
	return ""
}

func filterFileList(files []string, excludes []string) []string {
	var result []string
	for _, f := range files {
		if !MatchesAny(f, excludes) {
			result = append(result, f)
		}
	}
	return result
}

// MatchesAny returns true if the path matches any of the given glob patterns.
func MatchesAny(path string, patterns []string) bool {
	for _, pattern := range patterns {
		if matched, err := filepath.Match(pattern, path); err == nil && matched {
			return true
		}
		if clean, ok := strings.CutPrefix(pattern, "**/"); ok {
			if matched, err := filepath.Match(clean, filepath.Base(path)); err == nil && matched {
				return true
			}
			if matched, err := filepath.Match(clean, path); err == nil && matched {
				return true
			}
		}
		// "dir/**" matches everything below dir.
		if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
			if strings.HasPrefix(path, prefix+"/") || strings.Contains(path, "/"+strings.TrimPrefix(prefix, "**/")+"/") {
				return true
			}
		}
	}
	return false
}

// HookPath returns the path of the named git hook for the repository.
func (r Repo) HookPath(ctx context.Context, name string) (string, error) {
	dir, err := r.git(ctx, "rev-parse", "--git-path", "hooks")
	if err != nil {
		return "", fmt.Errorf("not a git repository: %w", err)
	}
	hooks := strings.TrimSpace(dir)
	if !filepath.IsAbs(hooks) && r.Dir != "" {
		hooks = filepath.Join(r.Dir, hooks)
	}
	return filepath.Join(hooks, name), nil
}

func (r Repo) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.Dir
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return string(out), fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", err
	}
	return string(out), nil
}
