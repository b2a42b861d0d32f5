package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"scrobbled/internal/config"
	"scrobbled/internal/logging"
	"scrobbled/internal/mbcache"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the metadata identifier cache",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))

	return cacheCmd
}

func openCache(cfg *config.Config) (*mbcache.Cache, error) {
	path := cfg.CachePath()
	if path == "" {
		return nil, fmt.Errorf("metadata cache is disabled in configuration")
	}
	ttl := time.Duration(cfg.Cache.TTLDays) * 24 * time.Hour
	return mbcache.New(path, ttl, cfg.Cache.MaxEntries, logging.NewNop()), nil
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache entry counts and age bounds",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cache, err := openCache(cfg)
			if err != nil {
				return err
			}

			stats := cache.Stats()
			rows := [][]string{
				{"Path", cfg.CachePath()},
				{"Entries", fmt.Sprintf("%d / %d", stats.EntryCount, cfg.Cache.MaxEntries)},
				{"TTL", fmt.Sprintf("%d days", cfg.Cache.TTLDays)},
			}
			if !stats.Oldest.IsZero() {
				rows = append(rows, []string{"Oldest", stats.Oldest.Local().Format(time.RFC822)})
			}
			if !stats.Newest.IsZero() {
				rows = append(rows, []string{"Newest", stats.Newest.Local().Format(time.RFC822)})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows))
			return nil
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all cached identifier entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cache, err := openCache(cfg)
			if err != nil {
				return err
			}

			before := cache.Len()
			cache.Clear()
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached entries\n", before)
			return nil
		},
	}
}
