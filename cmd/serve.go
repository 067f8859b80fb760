// serve.go starts the stdio front-end transports: the newline-delimited
// JSON frame loop by default, or the MCP server with --mcp.

package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tagbox/core/internal/rpc"
)

var serveMCP bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the library API over stdio",
	Long: `Reads newline-delimited JSON frames {"cmd": ..., "args": {...}} from
stdin and writes one response per request to stdout. With --mcp the
Model Context Protocol is spoken instead, for LLM clients.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, err := openEngine()
		if err != nil {
			return err
		}
		defer svc.Close()

		if serveMCP {
			return rpc.ServeMCP(svc)
		}
		return rpc.Serve(cmd.Context(), svc, os.Stdin, os.Stdout)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveMCP, "mcp", false, "speak the Model Context Protocol instead of JSON frames")
	rootCmd.AddCommand(serveCmd)
}
