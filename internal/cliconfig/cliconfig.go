// Package cliconfig wires viper's layered configuration resolution into
// the migrate command's flag set: values bind in the order flags, then
// environment variables (PDNS_MIGRATE_ prefix), then the YAML config
// file, then cobra's own flag defaults.
package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "PDNS_MIGRATE"

// Bind registers cmd's flags with v, so that a value set in the config
// file or in a PDNS_MIGRATE_-prefixed environment variable is visible
// through v.Get* even when the flag itself was left at its default.
// Callers still read flags back through cmd.Flags() elsewhere; Bind's
// job is only to populate viper's own view for anything that consults
// it directly (the config file loader, future subcommands).
func Bind(v *viper.Viper, cmd *cobra.Command) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return v.BindPFlags(cmd.Flags())
}

// Load reads the YAML config file named by cfgFile, or, if cfgFile is
// empty, $HOME/.pdns-migrate.yaml when it exists. A missing default
// file is not an error; a missing explicit --config file is.
func Load(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
		}
		return nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}

	v.AddConfigPath(home)
	v.SetConfigType("yaml")
	v.SetConfigName(".pdns-migrate")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read default config file %s: %w", filepath.Join(home, ".pdns-migrate.yaml"), err)
	}
	return nil
}

// ApplyDefaults pushes any value viper resolved (from the config file or
// environment) into a flag that was never explicitly set on the command
// line, so cmd.Flags().Get* reflects the full flags > env > file
// priority without every call site needing to consult viper itself.
func ApplyDefaults(v *viper.Viper, cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			return
		}
		if !v.IsSet(f.Name) {
			return
		}
		_ = f.Value.Set(fmt.Sprintf("%v", v.Get(f.Name)))
	})
}
