package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"scrobbled/internal/config"
	"scrobbled/internal/logging"
	"scrobbled/internal/mbcache"
	"scrobbled/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, queue, and cache status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return printStatus(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}
}

func printStatus(ctx context.Context, out io.Writer, cfg *config.Config) error {
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}

	running := daemonRunning(cfg)
	if running {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, "running", colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "not running", colorize))
	}
	if cfg.ListenBrainz.Token != "" {
		fmt.Fprintln(out, renderStatusLine("ListenBrainz token", statusOK, "configured", colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("ListenBrainz token", statusWarn, "missing: delivery is paused", colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Player", statusInfo, cfg.Player.BusName, colorize))

	for _, line := range renderSectionHeader("Queue", colorize) {
		fmt.Fprintln(out, line)
	}
	store, err := queue.Open(cfg)
	if err != nil {
		fmt.Fprintln(out, renderStatusLine("Queue", statusError, err.Error(), colorize))
	} else {
		defer store.Close()
		count, err := store.Count(ctx)
		if err != nil {
			fmt.Fprintln(out, renderStatusLine("Queue", statusError, err.Error(), colorize))
		} else {
			kind := statusOK
			if count > 0 {
				kind = statusInfo
			}
			fmt.Fprintln(out, renderStatusLine("Pending listens", kind, fmt.Sprintf("%d", count), colorize))
		}
	}

	for _, line := range renderSectionHeader("Cache", colorize) {
		fmt.Fprintln(out, line)
	}
	if cfg.CachePath() == "" {
		fmt.Fprintln(out, renderStatusLine("Metadata cache", statusInfo, "disabled", colorize))
		return nil
	}
	cache := mbcache.New(cfg.CachePath(), time.Duration(cfg.Cache.TTLDays)*24*time.Hour, cfg.Cache.MaxEntries, logging.NewNop())
	stats := cache.Stats()
	fmt.Fprintln(out, renderStatusLine("Entries", statusInfo, fmt.Sprintf("%d", stats.EntryCount), colorize))
	if !stats.Oldest.IsZero() {
		fmt.Fprintln(out, renderStatusLine("Oldest entry", statusInfo, stats.Oldest.Local().Format(time.RFC822), colorize))
	}
	return nil
}

// daemonRunning probes the daemon's instance lock: failing to acquire it
// means a daemon holds it.
func daemonRunning(cfg *config.Config) bool {
	lockPath := filepath.Join(cfg.Paths.StateDir, "scrobbled.lock")
	if _, err := os.Stat(lockPath); err != nil {
		return false
	}
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return false
	}
	if ok {
		_ = lock.Unlock()
		return false
	}
	return true
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
