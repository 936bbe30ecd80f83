package history

import (
	"context"
	"crypto/rand"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dshills/tribunal/internal/review"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when no review matches the requested ID.
var ErrNotFound = errors.New("review not found")

// Meta describes where a reviewed change came from.
type Meta struct {
	Mode     string `json:"mode,omitempty"`
	Target   string `json:"target,omitempty"`
	RepoRoot string `json:"repoRoot,omitempty"`
	Branch   string `json:"branch,omitempty"`
	Head     string `json:"head,omitempty"`
}

// Summary is one row of the review list.
type Summary struct {
	ID          string             `json:"id"`
	CreatedAt   time.Time          `json:"createdAt"`
	Meta        Meta               `json:"meta"`
	Disposition review.Disposition `json:"disposition"`
	Confidence  float64            `json:"confidence"`
	Consensus   float64            `json:"consensus"`
	Score       float64            `json:"score"`
	Degraded    bool               `json:"degraded"`
	JudgeCount  int                `json:"judgeCount"`
	FailedCount int                `json:"failedCount"`
	IssueCount  int                `json:"issueCount"`
	Elapsed     time.Duration      `json:"elapsedNs"`
}

// Record is a stored review with its full verdict.
type Record struct {
	Summary
	Verdict review.CouncilVerdict `json:"verdict"`
}

// JudgeStat summarises one judge's reliability across stored reviews.
type JudgeStat struct {
	JudgeID     string        `json:"judgeId"`
	Runs        int           `json:"runs"`
	Failures    int           `json:"failures"`
	ParseFailed int           `json:"parseFailed"`
	AvgLatency  time.Duration `json:"avgLatencyNs"`
	// Agreement is the share of usable runs whose disposition matched the council.
	Agreement float64 `json:"agreement"`
	LastSeen  time.Time `json:"lastSeen"`
}

// FailureRate returns failures over runs.
func (s JudgeStat) FailureRate() float64 {
	if s.Runs == 0 {
		return 0
	}
	return float64(s.Failures) / float64(s.Runs)
}

// Store persists council verdicts in SQLite (modernc.org/sqlite, no CGO).
type Store struct {
	db  *sql.DB
	now func() time.Time

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// Open opens (or creates) the history database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer; concurrent access is serialised through the pool.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &Store{
		db:      db,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate runs all embedded SQL migration files in order.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(s.now()), s.entropy).String()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Save stores a council verdict and one row per judge. The review ID of the
// verdict is the record ID; a verdict without one gets a fresh ULID.
func (s *Store) Save(ctx context.Context, meta Meta, v *review.CouncilVerdict) (Summary, error) {
	if v == nil {
		return Summary{}, errors.New("save review: nil verdict")
	}
	id := v.ReviewID
	if id == "" {
		id = s.newID()
	}
	created := v.StartedAt
	if created.IsZero() {
		created = s.now()
	}
	created = created.UTC()

	blob, err := json.Marshal(v)
	if err != nil {
		return Summary{}, fmt.Errorf("encode verdict: %w", err)
	}

	sum := Summary{
		ID:          id,
		CreatedAt:   created,
		Meta:        meta,
		Disposition: v.Disposition,
		Confidence:  v.Confidence,
		Consensus:   v.Consensus,
		Score:       v.Score,
		Degraded:    v.Degraded,
		JudgeCount:  v.JudgeCount(),
		FailedCount: len(v.Failed),
		IssueCount:  len(v.Issues),
		Elapsed:     v.Elapsed,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Summary{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO reviews (id, created_at, mode, target, repo_root, branch, head, disposition, confidence, consensus, score, degraded, judge_count, failed_count, issue_count, elapsed_ms, verdict_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.ID, sum.CreatedAt, meta.Mode, meta.Target, meta.RepoRoot, meta.Branch, meta.Head,
		string(sum.Disposition), sum.Confidence, sum.Consensus, sum.Score, boolToInt(sum.Degraded),
		sum.JudgeCount, sum.FailedCount, sum.IssueCount, sum.Elapsed.Milliseconds(), string(blob),
	)
	if err != nil {
		return Summary{}, fmt.Errorf("insert review: %w", err)
	}

	runs := append(append([]review.JudgeVerdict(nil), v.Contributing...), v.Failed...)
	for _, jv := range runs {
		agreed := jv.Usable() && jv.Disposition == v.Disposition
		_, err := tx.ExecContext(ctx,
			`INSERT INTO judge_runs (id, review_id, judge_id, status, failure, disposition, score, latency_ms, tokens_used, agreed)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.newID(), sum.ID, jv.JudgeID, string(jv.Status), string(jv.Failure), string(jv.Disposition),
			jv.Score, jv.Latency.Milliseconds(), jv.TokensUsed, boolToInt(agreed),
		)
		if err != nil {
			return Summary{}, fmt.Errorf("insert judge run %s: %w", jv.JudgeID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Summary{}, fmt.Errorf("commit: %w", err)
	}
	return sum, nil
}

const summaryColumns = `id, created_at, mode, target, repo_root, branch, head, disposition, confidence, consensus, score, degraded, judge_count, failed_count, issue_count, elapsed_ms`

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(row scanner, extra ...any) (Summary, error) {
	var (
		s         Summary
		disp      string
		degraded  int
		elapsedMS int64
	)
	dest := []any{
		&s.ID, &s.CreatedAt, &s.Meta.Mode, &s.Meta.Target, &s.Meta.RepoRoot, &s.Meta.Branch, &s.Meta.Head,
		&disp, &s.Confidence, &s.Consensus, &s.Score, &degraded,
		&s.JudgeCount, &s.FailedCount, &s.IssueCount, &elapsedMS,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return Summary{}, err
	}
	s.Disposition = review.Disposition(disp)
	s.Degraded = degraded != 0
	s.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	return s, nil
}

// ListOptions filters List.
type ListOptions struct {
	Limit       int
	Disposition review.Disposition
}

// List returns stored reviews, newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Summary, error) {
	query := `SELECT ` + summaryColumns + ` FROM reviews`
	var args []any
	if opts.Disposition != "" {
		query += ` WHERE disposition = ?`
		args = append(args, string(opts.Disposition))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Get returns one stored review. A unique ID prefix is accepted.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+summaryColumns+`, verdict_json FROM reviews WHERE id = ? OR id LIKE ? ORDER BY id LIMIT 2`,
		id, id+"%")
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var blob string
		sum, err := scanSummary(rows, &blob)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		rec := Record{Summary: sum}
		if err := json.Unmarshal([]byte(blob), &rec.Verdict); err != nil {
			return nil, fmt.Errorf("decode verdict %s: %w", sum.ID, err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}

	for i := range recs {
		if recs[i].ID == id {
			return &recs[i], nil
		}
	}
	switch len(recs) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
		return &recs[0], nil
	default:
		return nil, fmt.Errorf("ambiguous review id prefix %q", id)
	}
}

// Delete removes reviews created before cutoff and returns how many were removed.
func (s *Store) Delete(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reviews WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete reviews: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete reviews: %w", err)
	}
	return int(n), nil
}

// JudgeStats aggregates per-judge reliability over all stored reviews,
// ordered by judge ID.
func (s *Store) JudgeStats(ctx context.Context) ([]JudgeStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT j.judge_id,
			COUNT(*),
			SUM(CASE WHEN j.status IN ('timed_out', 'error') THEN 1 ELSE 0 END),
			SUM(CASE WHEN j.status = 'parse_failed' THEN 1 ELSE 0 END),
			AVG(j.latency_ms),
			SUM(CASE WHEN j.status IN ('completed', 'parse_failed') THEN 1 ELSE 0 END),
			SUM(j.agreed),
			MAX(r.created_at)
		FROM judge_runs j JOIN reviews r ON r.id = j.review_id
		GROUP BY j.judge_id
		ORDER BY j.judge_id`)
	if err != nil {
		return nil, fmt.Errorf("judge stats: %w", err)
	}
	defer rows.Close()

	var out []JudgeStat
	for rows.Next() {
		var (
			st       JudgeStat
			avgMS    float64
			usable   int
			agreed   int
			lastSeen string
		)
		if err := rows.Scan(&st.JudgeID, &st.Runs, &st.Failures, &st.ParseFailed, &avgMS, &usable, &agreed, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan judge stats: %w", err)
		}
		st.AvgLatency = time.Duration(avgMS * float64(time.Millisecond))
		if usable > 0 {
			st.Agreement = float64(agreed) / float64(usable)
		}
		st.LastSeen = parseSQLiteTime(lastSeen)
		out = append(out, st)
	}
	return out, rows.Err()
}

// parseSQLiteTime reads the text form modernc.org/sqlite stores for
// time.Time values; aggregates lose the column's declared type.
func parseSQLiteTime(s string) time.Time {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999 -0700 MST",
		"2006-01-02 15:04:05.999999999-07:00",
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
