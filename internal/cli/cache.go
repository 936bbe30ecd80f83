package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dshills/tribunal/internal/cache"
	"github.com/dshills/tribunal/internal/config"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the judge response cache",
}

// openCache opens the configured cache directory. Maintenance commands work
// even when caching is disabled for reviews.
func openCache(cfg config.Config) (*cache.Cache, error) {
	c, err := cache.New(true, cfg.Cache.Dir, cfg.Cache.TTL())
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	return c, nil
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached judge responses",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(nil)
		if err != nil {
			return err
		}
		c, err := openCache(cfg)
		if err != nil {
			return err
		}
		n, err := c.Clear()
		if err != nil {
			return fmt.Errorf("clearing cache: %w", err)
		}
		newUI(cmd).Success("Cache cleared (%d entries removed).", n)
		return nil
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove expired cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(nil)
		if err != nil {
			return err
		}
		c, err := openCache(cfg)
		if err != nil {
			return err
		}
		n, err := c.Prune()
		if err != nil {
			return fmt.Errorf("pruning cache: %w", err)
		}
		newUI(cmd).Success("Pruned %d expired entries.", n)
		return nil
	},
}

var cacheShowCmd = &cobra.Command{
	Use:     "show",
	Aliases: []string{"stats"},
	Short:   "Show cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(nil)
		if err != nil {
			return err
		}
		c, err := cache.New(cfg.Cache.Enabled, cfg.Cache.Dir, cfg.Cache.TTL())
		if err != nil {
			return fmt.Errorf("opening cache: %w", err)
		}
		stats, err := c.GetStats()
		if err != nil {
			return fmt.Errorf("reading cache stats: %w", err)
		}

		ui := newUI(cmd)
		if !stats.Enabled {
			ui.Info("Cache is disabled (enable with: tribunal config set cache.enabled true)")
		}
		table := ui.Table([]string{"DIR", "ENTRIES", "EXPIRED", "SIZE"})
		if err := table.Append([]string{
			stats.Dir,
			strconv.Itoa(stats.Entries),
			strconv.Itoa(stats.Expired),
			formatBytes(stats.TotalBytes),
		}); err != nil {
			return err
		}
		return table.Render()
	},
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cachePruneCmd)
	cacheCmd.AddCommand(cacheShowCmd)
}
