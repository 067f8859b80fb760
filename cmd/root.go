// root.go defines the root command and CLI execution entry point.
//
// The CLI is a thin driver: every subcommand opens the engine through
// openEngine() and calls service.Service operations. Domain logic lives
// in internal/; nothing here mutates the library directly.

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tagbox/core/internal/config"
	"github.com/tagbox/core/internal/engine"
	"github.com/tagbox/core/internal/log"
	"github.com/tagbox/core/internal/service"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "tagbox",
	Short: "Content-addressed file library with metadata search",
	Long:  `An offline-first file manager: files are hashed, filed under a templated layout, indexed for full-text search, and queryable through a small search language.`,
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

// loadConfig reads the configuration, honouring --config when given and
// the local/global discovery order otherwise.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load()
}

// openEngine loads config and opens the library. Callers must Close().
func openEngine() (service.Service, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return engine.New(cfg)
}

// Execute runs the root command and handles process lifecycle. Opens
// audit logging, executes the command, and closes the logger before
// exit. Exit code 1 indicates error.
func Execute() {
	// Initialise audit logger (warn if it fails, but continue)
	if err := log.Open(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: audit log unavailable: %v\n", err)
	}
	defer log.Close()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: .tagbox/config.yaml, then ~/.tagbox/config.yaml)")
}
