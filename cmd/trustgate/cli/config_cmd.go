package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/trustgate/trustgate/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Long:  "Resolves flags, environment variables, and the config file into the final configuration. Secrets are masked.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(viper.GetViper())
			if cfg.DataDir == "" {
				cfg.DataDir = resolveDataDir()
			}

			out, err := cfg.RedactedYAML()
			if err != nil {
				return fmt.Errorf("render config: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	return cmd
}
