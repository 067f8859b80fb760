// show.go pretty-prints one file entry, rendering its summary as
// markdown in the terminal.

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/tagbox/core/internal/history"
)

var showHistory bool

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one file entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openEngine()
		if err != nil {
			return err
		}
		defer svc.Close()

		f, err := svc.GetFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("%s  %s\n", f.ID, f.RelativePath)
		fmt.Printf("title:    %s\n", f.Title)
		if len(f.Authors) > 0 {
			fmt.Printf("authors:  %s\n", strings.Join(f.Authors, ", "))
		}
		if f.Year != nil {
			fmt.Printf("year:     %d\n", *f.Year)
		}
		if len(f.Tags) > 0 {
			fmt.Printf("tags:     %s\n", strings.Join(f.Tags, ", "))
		}
		fmt.Printf("hash:     %s\n", f.CurrentHash)

		if f.Summary != "" {
			if rendered, rerr := renderMarkdown(f.Summary); rerr == nil {
				fmt.Print(rendered)
			} else {
				fmt.Println(f.Summary)
			}
		}

		if showHistory {
			entries, err := svc.History(cmd.Context(), f.ID, 0)
			if err != nil {
				return err
			}
			fmt.Println()
			history.Render(os.Stdout, entries)
		}
		return nil
	},
}

// renderMarkdown renders markdown for the terminal, degrading to plain
// text when the terminal profile cannot be determined.
func renderMarkdown(text string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	return r.Render(text)
}

func init() {
	showCmd.Flags().BoolVar(&showHistory, "history", false, "append the file's history ledger")
	rootCmd.AddCommand(showCmd)
}
