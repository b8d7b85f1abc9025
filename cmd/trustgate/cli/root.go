package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/trustgate/trustgate/internal/config"
)

var cfgFile string

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trustgate",
		Short: "Trust and access-control gateway",
		Long: `TrustGate: the trust and access-control gateway for state-changing requests.

It issues and verifies stateless signed CSRF tokens for browser-originated
writes, admits administrative requests through hashed API keys with
permission scoping and IP allow-listing, and records every gate decision
in a tamper-evident audit log with automatic retention.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./trustgate.yaml)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory for the SQLite store (default: ~/.trustgate)")

	cobra.OnInitialize(initConfig)

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))
	cmd.AddCommand(newKeyCmd())
	cmd.AddCommand(newAuditCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("trustgate")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.trustgate")
	}

	config.SetDefaults(viper.GetViper())

	viper.SetEnvPrefix("TRUSTGATE")
	viper.AutomaticEnv()
	viper.ReadInConfig() // Ignore error - config file is optional
}
