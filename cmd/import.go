// import.go imports one or more files from the command line.

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var importJSON bool

var importCmd = &cobra.Command{
	Use:   "import <path>...",
	Short: "Import files into the library",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openEngine()
		if err != nil {
			return err
		}
		defer svc.Close()

		results := svc.ImportFiles(cmd.Context(), args)
		failed := 0
		for _, r := range results {
			switch {
			case r.Err != nil:
				failed++
				fmt.Fprintf(os.Stderr, "%s: %v\n", r.Path, r.Err)
			case importJSON:
				enc := json.NewEncoder(os.Stdout)
				if err := enc.Encode(r.Entry); err != nil {
					return err
				}
			default:
				fmt.Printf("%s -> %s (%s)\n", r.Path, r.Entry.RelativePath, r.Entry.ID)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(results))
		}
		return nil
	},
}

func init() {
	importCmd.Flags().BoolVar(&importJSON, "json", false, "print imported entries as JSON")
	rootCmd.AddCommand(importCmd)
}
