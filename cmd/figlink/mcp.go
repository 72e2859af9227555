package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leonletto/figlink/internal/gateway"
	figmcp "github.com/leonletto/figlink/internal/mcp"
)

// startupConnectTimeout bounds the initial relay dial. A relay that is not up
// yet is not fatal: the gateway keeps reconnecting in the background.
const startupConnectTimeout = 5 * time.Second

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "MCP server integration",
	}

	cmd.AddCommand(mcpServeCmd())
	return cmd
}

func mcpServeCmd() *cobra.Command {
	var channel string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start MCP stdio server for Figma commands",
		Long: `Starts an MCP server on stdin/stdout exposing one tool per Figma command.

Tool calls are forwarded through the channel relay (gateway.relay_url) to the
Figma plugin. Call join_channel with the channel shown in the plugin, or pass
--channel to join at startup.

Configure in your agent's MCP settings:
  {
    "mcpServers": {
      "figlink": {
        "type": "stdio",
        "command": "figlink",
        "args": ["mcp", "serve"]
      }
    }
  }`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("channel") {
				cfg.Gateway.Channel = channel
			}
			return runMCPServe()
		},
	}

	cmd.Flags().StringVar(&channel, "channel", "", "Channel to join at startup (default gateway.channel)")
	return cmd
}

func runMCPServe() error {
	// stdout carries the MCP protocol; logs must never go there.
	outputs := make([]string, 0, len(cfg.Log.Outputs))
	for _, out := range cfg.Log.Outputs {
		if out == "stdout" {
			out = "stderr"
		}
		outputs = append(outputs, out)
	}
	cfg.Log.Outputs = outputs

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	sup, err := gateway.NewSupervisor(cfg.Gateway.RelayURL, cfg.Gateway.ReconnectDelay, logger)
	if err != nil {
		return err
	}
	gw := gateway.New(sup, gateway.Options{
		Timeout:           cfg.Gateway.Timeout,
		CommandTimeouts:   cfg.Gateway.CommandTimeoutMap(),
		ProgressExtension: cfg.Gateway.ProgressExtension,
	}, logger)
	defer func() { _ = gw.Close() }()

	ctx, stop := signalContext()
	defer stop()

	connectAndJoin(ctx, sup, gw, logger)

	server := figmcp.NewServer(gw, figmcp.WithVersion(Version), figmcp.WithLogger(logger))
	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

// connectAndJoin makes a best-effort initial connection and, when a channel
// is configured, joins it. Failures are logged; tools report them to the
// agent on first use.
func connectAndJoin(ctx context.Context, sup *gateway.Supervisor, gw *gateway.Gateway, logger *zap.Logger) {
	dialCtx, cancel := context.WithTimeout(ctx, startupConnectTimeout)
	defer cancel()

	if err := sup.Connect(dialCtx); err != nil {
		logger.Warn("relay not reachable at startup", zap.String("url", cfg.Gateway.RelayURL), zap.Error(err))
		return
	}
	if cfg.Gateway.Channel == "" {
		return
	}
	if err := gw.Join(dialCtx, cfg.Gateway.Channel); err != nil {
		logger.Warn("auto-join failed", zap.String("channel", cfg.Gateway.Channel), zap.Error(err))
	}
}
