package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/glancesearch/glance/internal/exclude"
	"github.com/glancesearch/glance/internal/scanner"
	"github.com/glancesearch/glance/internal/store"
)

func newIndexCmd() *cobra.Command {
	var incremental bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Scan the root once and exit",
		Long: `index performs a one-shot scan of the configured root. The default is a
full rebuild; --incremental only applies filesystem changes since the
previous scan.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(incremental)
		},
	}

	cmd.Flags().BoolVar(&incremental, "incremental", false, "apply changes since the last scan instead of rebuilding")
	return cmd
}

func runIndex(incremental bool) error {
	lock := flock.New(cfg.IndexPath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire index lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("index is locked by another glance process")
	}
	defer func() { _ = lock.Unlock() }()

	st, err := store.Open(cfg.IndexPath)
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	defer func() { _ = st.Close() }()

	policy := exclude.NewWithExtra(cfg.Exclude.Dirs, cfg.Exclude.Globs)
	sc := scanner.New(st, policy, scanner.Config{
		MinFileSize: cfg.Scan.MinFileSize,
		BatchSize:   cfg.Scan.BatchSize,
	})

	ctx := context.Background()
	scanType := store.ScanTypeFull
	if incremental {
		scanType = store.ScanTypeIncremental
	}

	recordID, err := st.CreateScanRecord(ctx, cfg.Root, scanType)
	if err != nil {
		return fmt.Errorf("failed to record scan: %w", err)
	}

	start := time.Now()
	var count int
	if incremental {
		updated, deleted, scanErr := sc.ScanIncremental(ctx, cfg.Root)
		err = scanErr
		count = updated
		if err == nil {
			fmt.Printf("%s %d updated, %d removed in %s\n",
				styleSuccess.Render("incremental scan done:"),
				updated, deleted, time.Since(start).Round(time.Millisecond))
		}
	} else {
		count, err = sc.ScanFull(ctx, cfg.Root)
		if err == nil {
			fmt.Printf("%s %d files in %s\n",
				styleSuccess.Render("full scan done:"),
				count, time.Since(start).Round(time.Millisecond))
		}
	}

	dur := time.Since(start).Milliseconds()
	if err != nil {
		_ = st.FinalizeScanRecord(ctx, recordID, store.ScanStatusFailed, count, dur, err.Error())
		return fmt.Errorf("scan failed: %w", err)
	}
	return st.FinalizeScanRecord(ctx, recordID, store.ScanStatusSucceeded, count, dur, "")
}
