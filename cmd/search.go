// search.go runs DSL queries from the command line.

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tagbox/core/internal/store"
)

var (
	searchLimit   int
	searchOffset  int
	searchJSON    bool
	searchDeleted bool
	searchDebug   bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the library with the query DSL",
	Long: `Queries combine field clauses and free text:

  tagbox search 'tag:tech/rust AND (author:Ada OR year:2024) -tag:old'
  tagbox search '"systems programming" year:>=2020'

An empty query lists all live files.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")

		svc, err := openEngine()
		if err != nil {
			return err
		}
		defer svc.Close()

		if searchDebug {
			dbg, err := svc.QueryDebug(cmd.Context(), query)
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(dbg)
		}

		result, err := svc.Search(cmd.Context(), query, store.ListOptions{
			Limit:          searchLimit,
			Offset:         searchOffset,
			IncludeDeleted: searchDeleted,
		})
		if err != nil {
			return err
		}

		if searchJSON {
			return json.NewEncoder(os.Stdout).Encode(result)
		}
		for _, e := range result.Entries {
			line := fmt.Sprintf("%s  %s", e.ID, e.Title)
			if len(e.Authors) > 0 {
				line += "  [" + strings.Join(e.Authors, ", ") + "]"
			}
			fmt.Println(line)
		}
		fmt.Fprintf(os.Stderr, "%d of %d\n", len(result.Entries), result.TotalCount)
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "maximum entries (default from config)")
	searchCmd.Flags().IntVar(&searchOffset, "offset", 0, "entries to skip")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "print the result as JSON")
	searchCmd.Flags().BoolVar(&searchDeleted, "deleted", false, "include soft-deleted files")
	searchCmd.Flags().BoolVar(&searchDebug, "debug", false, "print the translated SQL instead of executing")
	rootCmd.AddCommand(searchCmd)
}
