// config.go reads and writes configuration by dotted key, mirroring the
// string-keyed surface the RPC mode exposes.

package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tagbox/core/internal/config"
)

var configLocal bool

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Get or set configuration values",
	Long: `With no arguments, lists every option with its effective value.
With a key, prints that value. With a key and value, writes the option
to the global config (~/.tagbox/config.yaml) or, with --local, to the
library config (.tagbox/config.yaml).`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		switch len(args) {
		case 0:
			all := cfg.All()
			keys := make([]string, 0, len(all))
			for k := range all {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				marker := " "
				if cfg.IsSet(k) {
					marker = "*"
				}
				fmt.Printf("%s %-38s %s\n", marker, k, all[k])
			}
			return nil
		case 1:
			v, err := cfg.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Println(v)
			return nil
		default:
			if err := cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			scope := config.ScopeGlobal
			if configLocal {
				scope = config.ScopeLocal
			}
			return cfg.SaveScope(scope)
		}
	},
}

func init() {
	configCmd.Flags().BoolVar(&configLocal, "local", false, "write to the library config instead of the global one")
	rootCmd.AddCommand(configCmd)
}
