package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Entry is one cached judge response.
type Entry struct {
	Key        string    `json:"key"`
	Provider   string    `json:"provider"`
	Model      string    `json:"model"`
	Response   string    `json:"response"`
	TokensUsed int       `json:"tokensUsed"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Cache is a directory of JSON files, one per (provider, model, prompt).
// It is safe for concurrent use by several judges: writes go through a
// temp file and rename.
type Cache struct {
	dir     string
	ttl     time.Duration
	enabled bool
	now     func() time.Time
}

// New creates a Cache. A disabled cache misses on every Get and drops every Put.
// If dir is empty the default cache directory is used.
func New(enabled bool, dir string, ttl time.Duration) (*Cache, error) {
	c := &Cache{enabled: enabled, ttl: ttl, now: time.Now}
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	c.dir = dir
	if !enabled {
		return c, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return c, nil
}

// Get returns the entry stored under key. Expired entries are removed and miss.
func (c *Cache) Get(key string) (Entry, bool) {
	if !c.enabled {
		return Entry{}, false
	}
	path := c.entryPath(key)
	entry, err := readEntry(path)
	if err != nil {
		return Entry{}, false
	}
	if c.expired(entry) {
		_ = os.Remove(path)
		return Entry{}, false
	}
	return entry, true
}

// Put stores an entry under key.
func (c *Cache) Put(key string, entry Entry) error {
	if !c.enabled {
		return nil
	}
	entry.Key = key
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = c.now()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}
	tmp, err := os.CreateTemp(c.dir, ".entry-*")
	if err != nil {
		return fmt.Errorf("creating cache entry: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.entryPath(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("committing cache entry: %w", err)
	}
	return nil
}

// Clear removes every entry and returns how many were removed.
func (c *Cache) Clear() (int, error) {
	return c.sweep(func(Entry, error) bool { return true })
}

// Prune removes expired or unreadable entries and returns how many were removed.
func (c *Cache) Prune() (int, error) {
	return c.sweep(func(e Entry, err error) bool { return err != nil || c.expired(e) })
}

func (c *Cache) sweep(remove func(Entry, error) bool) (int, error) {
	if c.dir == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading cache directory: %w", err)
	}
	removed := 0
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" {
			continue
		}
		path := filepath.Join(c.dir, e.Name())
		if remove(readEntry(path)) {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// Stats describes the cache directory.
type Stats struct {
	Dir        string `json:"dir"`
	Enabled    bool   `json:"enabled"`
	Entries    int    `json:"entries"`
	TotalBytes int64  `json:"totalBytes"`
	Expired    int    `json:"expired"`
}

// GetStats scans the cache directory.
func (c *Cache) GetStats() (Stats, error) {
	stats := Stats{Dir: c.dir, Enabled: c.enabled}
	if c.dir == "" {
		return stats, nil
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return stats, nil
		}
		return stats, fmt.Errorf("reading cache directory: %w", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		stats.Entries++
		stats.TotalBytes += info.Size()

		entry, err := readEntry(filepath.Join(c.dir, e.Name()))
		if err == nil && c.expired(entry) {
			stats.Expired++
		}
	}
	return stats, nil
}

// Dir returns the cache directory path.
func (c *Cache) Dir() string {
	return c.dir
}

// Enabled reports whether caching is on.
func (c *Cache) Enabled() bool {
	return c.enabled
}

// Key derives the cache key for one judge call. Every input that can change
// the response is part of the key.
func Key(provider, model, system, user string, maxTokens int, temperature float64) string {
	h := sha256.New()
	for _, part := range []string{provider, model, system, user, fmt.Sprint(maxTokens), fmt.Sprint(temperature)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) expired(e Entry) bool {
	return c.ttl > 0 && c.now().Sub(e.CreatedAt) > c.ttl
}

func (c *Cache) entryPath(key string) string {
	// Keys from Key are already hex; anything else is hashed to a safe file name.
	if len(key) != sha256.Size*2 || strings.ContainsAny(key, `/\.`) {
		sum := sha256.Sum256([]byte(key))
		key = hex.EncodeToString(sum[:])
	}
	return filepath.Join(c.dir, key+".json")
}

func readEntry(path string) (Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// DefaultDir returns the OS-appropriate cache directory for tribunal.
func DefaultDir() (string, error) {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "tribunal"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Caches", "tribunal"), nil
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, "tribunal", "cache"), nil
		}
		return filepath.Join(home, "AppData", "Local", "tribunal", "cache"), nil
	default:
		return filepath.Join(home, ".cache", "tribunal"), nil
	}
}
