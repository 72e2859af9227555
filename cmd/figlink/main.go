package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	goruntime "runtime"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/leonletto/figlink/internal/config"
	"github.com/leonletto/figlink/internal/logging"
)

var (
	// Build info (set via ldflags).
	Version = "dev"
	Build   = "unknown"
)

var (
	// Global flags.
	flagConfig  string
	flagJSON    bool
	flagVerbose bool

	cfg *config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "figlink",
		Short: "Bridge AI agents to Figma",
		Long: `figlink lets an AI agent inspect and edit a Figma document.

An MCP server (figlink mcp serve) forwards tool calls through a channel
relay (figlink relay) to the Figma plugin, which executes them and sends
the result back.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (or FIGLINK_CONFIG env var)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "JSON output for scripting")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "Debug output")

	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("figlink v{{.Version}} (build: " + Build + ", " + goruntime.Version() + ")\n")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		c, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		if flagVerbose {
			c.Log.Level = "debug"
		}
		cfg = c
		return nil
	}

	rootCmd.AddCommand(relayCmd())
	rootCmd.AddCommand(mcpCmd())
	rootCmd.AddCommand(executorCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger from the loaded configuration.
func newLogger(c config.LogConfig) (*zap.Logger, error) {
	logger, err := logging.Setup(c)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}
	return logger, nil
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show figlink version",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagJSON {
				data, err := json.MarshalIndent(map[string]string{
					"version":    Version,
					"build":      Build,
					"go_version": goruntime.Version(),
				}, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}
			fmt.Printf("figlink v%s (build: %s, %s)\n", Version, Build, goruntime.Version())
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration after defaults, the config file and
FIGLINK_* environment overrides are applied. Secrets are never printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	})
	return cmd
}
