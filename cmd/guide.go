// guide.go renders the embedded guide pages in the terminal.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tagbox/core/guide"
)

var guideCmd = &cobra.Command{
	Use:   "guide [page]",
	Short: "Show usage guides",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		content, err := guide.Get(name)
		if err != nil {
			pages, lerr := guide.List()
			if lerr == nil {
				return fmt.Errorf("unknown guide page %q (available: %v)", name, pages)
			}
			return err
		}
		if rendered, rerr := renderMarkdown(content); rerr == nil {
			fmt.Print(rendered)
			return nil
		}
		fmt.Print(content)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(guideCmd)
}
