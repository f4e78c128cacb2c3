package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hnrobert/lumauth/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath string
	logLevel   string
	logDir     string
)

var rootCmd = &cobra.Command{
	Use:   "lumauthd",
	Short: "polkit authentication agent for terminal sessions",
	Long: `lumauthd registers with polkit as the authentication agent of the current
session and asks for passwords on the controlling terminal.`,
	SilenceUsage: true,
	RunE:         runAgent,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Register with polkit and answer authentication requests",
	Args:  cobra.NoArgs,
	RunE:  runAgent,
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Print the effective configuration and validate it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		src := cfg.Source
		if src == "" {
			src = "built-in defaults"
		}
		b, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", src, b)
		return cfg.Validate()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "lumauthd %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: first of the standard locations)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "write daily log files under this directory")
	rootCmd.AddCommand(runCmd, checkConfigCmd, versionCmd)
}

// loadConfig applies command line flags over the file and environment.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logDir != "" {
		cfg.LogDir = logDir
	}
	return cfg, nil
}
