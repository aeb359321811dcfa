package cliconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newTestCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("concurrency", "5", "")
	cmd.Flags().String("log-level", "info", "")
	return cmd
}

func TestApplyDefaultsLeavesExplicitFlagsAlone(t *testing.T) {
	cmd := newTestCommand()
	cmd.Flags().Set("log-level", "debug")
	cmd.Flags().Lookup("log-level").Changed = true

	v := viper.New()
	v.Set("log-level", "trace")
	v.Set("concurrency", "20")

	ApplyDefaults(v, cmd)

	if got, _ := cmd.Flags().GetString("log-level"); got != "debug" {
		t.Errorf("an explicitly-set flag should never be overridden, got %q", got)
	}
	if got, _ := cmd.Flags().GetString("concurrency"); got != "20" {
		t.Errorf("an unset flag should take viper's resolved value, got %q", got)
	}
}

func TestLoadReadsExplicitConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("concurrency: 7\n"), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	v := viper.New()
	if err := Load(v, path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if v.GetInt("concurrency") != 7 {
		t.Errorf("expected concurrency 7 from config file, got %d", v.GetInt("concurrency"))
	}
}

func TestLoadMissingExplicitConfigFileFails(t *testing.T) {
	v := viper.New()
	if err := Load(v, "/nonexistent/path.yaml"); err == nil {
		t.Fatal("expected an error for an explicit but missing config file")
	}
}

func TestLoadMissingDefaultConfigFileIsNotAnError(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	v := viper.New()
	if err := Load(v, ""); err != nil {
		t.Fatalf("a missing default config file should not be an error: %v", err)
	}
}
