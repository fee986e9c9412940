package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/glancesearch/glance/internal/exclude"
	"github.com/glancesearch/glance/internal/indexer"
	"github.com/glancesearch/glance/internal/scanner"
	"github.com/glancesearch/glance/internal/watcher"
)

func newServeCmd() *cobra.Command {
	var noWatch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the indexer in the foreground, keeping the index fresh",
		Long: `serve performs a full scan, then keeps the index synchronized with the
filesystem via inotify events and periodic incremental rescans until
interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(noWatch)
		},
	}

	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "disable the filesystem watcher")
	return cmd
}

func runServe(noWatch bool) error {
	policy := exclude.NewWithExtra(cfg.Exclude.Dirs, cfg.Exclude.Globs)

	svc := indexer.New(indexer.Config{
		Root:      cfg.Root,
		IndexPath: cfg.IndexPath,
		Scanner: scanner.Config{
			MinFileSize: cfg.Scan.MinFileSize,
			BatchSize:   cfg.Scan.BatchSize,
		},
	}, policy)

	if err := svc.Start(); err != nil {
		return fmt.Errorf("failed to start indexer: %w", err)
	}
	defer svc.Stop()

	fmt.Printf("%s %s\n", styleTitle.Render("glance serve"), styleDim.Render("root="+cfg.Root))
	fmt.Printf("%s\n", styleDim.Render("index: "+cfg.IndexPath))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Watch.Enabled && !noWatch {
		w := watcher.New(cfg.Root, policy, svc, watcher.Options{
			DebounceWindow: cfg.Watch.DebounceWindowDuration(0),
		})
		if err := w.Start(ctx); err != nil {
			// Watch failures degrade to rescan-only operation.
			slog.Warn("filesystem watcher unavailable, relying on rescans", "error", err)
			fmt.Println(styleWarn.Render("watcher unavailable; relying on periodic rescans"))
		} else {
			g.Go(func() error {
				<-ctx.Done()
				w.Stop()
				return nil
			})
		}
	}

	if interval := cfg.Scan.RescanIntervalDuration(10 * time.Minute); interval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					svc.TriggerIncrementalScan()
				}
			}
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Println(styleDim.Render("shutting down"))
	return nil
}
