// db.go groups database maintenance: init, vacuum, validate.

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tagbox/core/internal/engine"
	"github.com/tagbox/core/internal/validate"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database maintenance",
}

var dbInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Initialise the library database",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path := cfg.DatabasePath()
		if len(args) == 1 {
			path = args[0]
		}
		if err := engine.InitDatabase(path, cfg); err != nil {
			return err
		}
		fmt.Println("initialised", path)
		return nil
	},
}

var dbVacuumCmd = &cobra.Command{
	Use:   "vacuum",
	Short: "Reclaim space in the database file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, err := openEngine()
		if err != nil {
			return err
		}
		defer svc.Close()
		_, err = svc.DB().ExecContext(cmd.Context(), "VACUUM")
		return err
	},
}

var (
	validateRepair    bool
	validateRecursive bool
)

var dbValidateCmd = &cobra.Command{
	Use:   "validate [root]",
	Short: "Check database rows against the on-disk library",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openEngine()
		if err != nil {
			return err
		}
		defer svc.Close()

		if err := svc.CheckConfigCompatibility(cmd.Context()); err != nil {
			return err
		}

		root := ""
		if len(args) == 1 {
			root = args[0]
		}
		mode := validate.ModeReportOnly
		if validateRepair {
			mode = validate.ModeRepair
		}
		report, err := svc.ValidateFilesInPath(cmd.Context(), root, validateRecursive, mode)
		if err != nil {
			return err
		}
		if len(report.Issues) == 0 {
			fmt.Printf("checked %d files, no issues\n", report.Checked)
			return nil
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	dbValidateCmd.Flags().BoolVar(&validateRepair, "repair", false, "update current_hash for drifted files")
	dbValidateCmd.Flags().BoolVar(&validateRecursive, "recursive", true, "descend into subdirectories")
	dbCmd.AddCommand(dbInitCmd, dbVacuumCmd, dbValidateCmd)
	rootCmd.AddCommand(dbCmd)
}
