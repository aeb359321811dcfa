package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pdns-migrate/internal/cliconfig"
)

var (
	cfgFile string
	cfg     = viper.New()

	rootCmd = &cobra.Command{
		Use:   "pdns-migrate",
		Short: "Reconcile PowerDNS zones between two servers",
		Long: `pdns-migrate reads zones from a source PowerDNS server, sanitizes and diffs
them against a target PowerDNS server, and applies the minimal set of create,
patch, or recreate operations needed to bring the target in line.`,
		Version:       "1.0.0",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cliconfig.Load(cfg, cfgFile)
		},
	}
)

// Execute runs the root command; child commands register themselves in
// their own init functions.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.pdns-migrate.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "verbose output")
	cfg.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	rootCmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return usageError(err)
	})

	// Load environment variables from a .env file in the current directory.
	// If the .env file doesn't exist, that's fine - environment variables can still be set in the shell.
	// Only warn on actual errors (permissions, parse errors, etc.)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
		}
	}
}
