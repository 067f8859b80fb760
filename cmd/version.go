// version.go prints build information.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tagbox/core/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show build information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Print(version.Get().String())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
