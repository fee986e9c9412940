package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/glancesearch/glance/internal/store"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show index size and the outcome of the most recent scan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

func runStatus() error {
	if _, err := os.Stat(cfg.IndexPath); os.IsNotExist(err) {
		fmt.Println(styleWarn.Render("no index found; run 'glance index' or 'glance serve' first"))
		return nil
	}

	st, err := store.Open(cfg.IndexPath)
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	defer func() { _ = st.Close() }()

	ctx := context.Background()
	count, err := st.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count entries: %w", err)
	}

	fmt.Println(styleTitle.Render("glance index status"))
	fmt.Printf("  root:    %s\n", cfg.Root)
	fmt.Printf("  index:   %s\n", cfg.IndexPath)
	if info, err := os.Stat(cfg.IndexPath); err == nil {
		fmt.Printf("  size:    %s\n", humanize.Bytes(uint64(info.Size())))
	}
	fmt.Printf("  files:   %d\n", count)

	last, err := st.LastScan(ctx)
	if err != nil {
		return fmt.Errorf("failed to read scan history: %w", err)
	}
	if last == nil {
		fmt.Println(styleDim.Render("  no completed scans yet"))
		return nil
	}

	when := humanize.Time(time.Unix(last.CreatedAt, 0))
	switch last.Status {
	case store.ScanStatusSucceeded:
		fmt.Printf("  last scan: %s %s (%s, %d files, %dms)\n",
			styleSuccess.Render("succeeded"), when, last.Type, last.IndexedFileCount, last.DurationMS)
	case store.ScanStatusFailed:
		fmt.Printf("  last scan: %s %s (%s): %s\n",
			styleError.Render("failed"), when, last.Type, last.Error)
	default:
		fmt.Printf("  last scan: %s %s (%s)\n", last.Status, when, last.Type)
	}
	return nil
}
