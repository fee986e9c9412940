package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/glancesearch/glance/internal/store"
)

func newSearchCmd() *cobra.Command {
	var (
		limit    int
		jsonOut  bool
		showMeta bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index for file names matching a prefix query",
		Long: `search matches each whitespace-separated term as a name prefix and
prints results best-first. All terms must match.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(query, limit, jsonOut, showMeta)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of results")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit results as JSON lines")
	cmd.Flags().BoolVarP(&showMeta, "long", "l", false, "show size and modification time")
	return cmd
}

func runSearch(query string, limit int, jsonOut, showMeta bool) error {
	st, err := store.Open(cfg.IndexPath)
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	defer func() { _ = st.Close() }()

	results, err := st.Search(context.Background(), query, limit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if jsonOut {
		return printJSONLines(results)
	}

	if len(results) == 0 {
		fmt.Println(styleDim.Render("no matches"))
		return nil
	}

	for _, r := range results {
		line := stylePath.Render(r.Path)
		if showMeta {
			mod := time.Unix(r.LastModifiedAt, 0).Format("2006-01-02 15:04")
			line += "  " + styleDim.Render(fmt.Sprintf("%s  %s  %s",
				humanize.Bytes(uint64(r.Size)), mod, r.FileType))
		}
		fmt.Println(line)
	}
	fmt.Println(styleDim.Render(fmt.Sprintf("%d result(s)", len(results))))
	return nil
}

func printJSONLines(results []store.ScoredEntry) error {
	enc := json.NewEncoder(os.Stdout)
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
