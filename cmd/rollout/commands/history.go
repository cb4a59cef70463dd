package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openrollout/openrollout/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		pattern string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Query past runs and recorded observations",
		Long: `Query the history database for past deployment runs, or search
recorded issue and success observations by pattern.`,
		Example: `  # List recent runs
  rollout history --db rollout.db

  # Search observations for cluster issues
  rollout history --db rollout.db --pattern "ManagedCluster issues"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if dbPath == "" {
				return &ExitError{Code: 2, Message: "history requires --db"}
			}

			store, err := stores.NewSQLiteStore(stores.Config{Path: dbPath})
			if err != nil {
				return &ExitError{Code: 2, Message: err.Error()}
			}
			if err := store.Init(ctx); err != nil {
				return &ExitError{Code: 2, Message: err.Error()}
			}
			defer store.Close()
			if err := store.Migrate(ctx); err != nil {
				return &ExitError{Code: 2, Message: err.Error()}
			}

			if pattern != "" {
				entries, err := store.Query(ctx, pattern)
				if err != nil {
					return &ExitError{Code: 2, Message: err.Error()}
				}
				if jsonOutput {
					return printJSON(entries)
				}
				for _, e := range entries {
					fmt.Printf("%s  [%s] %s: %s\n",
						e.RecordedAt.Format("2006-01-02 15:04:05"), e.Kind, e.ResourceType, e.Description)
				}
				log.Info().Int("entries", len(entries)).Msg("History query completed")
				return nil
			}

			records, err := store.ListRuns(ctx, limit)
			if err != nil {
				return &ExitError{Code: 2, Message: err.Error()}
			}
			if jsonOutput {
				return printJSON(records)
			}
			for _, r := range records {
				fmt.Printf("%s  %-10s %d/%d deployed, %d not ready  (%s)\n",
					r.StartedAt.Format("2006-01-02 15:04:05"), r.Status,
					r.Summary.Deployed, r.Summary.Total, r.Summary.NotReady, r.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&pattern, "pattern", "p", "", "search observations matching this pattern")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum runs to list")

	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
