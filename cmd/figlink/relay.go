package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leonletto/figlink/internal/relay"
	"github.com/leonletto/figlink/internal/upload"
)

func relayCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the channel relay",
		Long: `Runs the websocket channel relay the MCP server and the Figma plugin
connect to. Clients join a named channel; every frame is rebroadcast to
the other members of the sender's channel.

The relay also serves the image upload side-channel:
  POST /upload        store an exported image
  GET  /images/{id}   fetch it back
  GET  /healthz       connection and channel counts

Set relay.tailscale.enabled and FIGLINK_TS_AUTHKEY to also serve the relay
on a tailnet.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				cfg.Relay.Addr = addr
			}
			return runRelay()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default relay.addr)")
	return cmd
}

func runRelay() error {
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	store := upload.NewStore(cfg.Upload.TTL, cfg.Upload.SweepInterval)
	uploads := upload.NewHandler(store, cfg.Upload.MaxBytes, cfg.Relay.PublicURL, logger)

	server := relay.NewServer(relay.Options{
		RateLimit: cfg.Relay.RateLimit,
		Routes:    uploads.Routes,
		Logger:    logger,
	})

	ctx, stop := signalContext()
	defer stop()

	if err := server.Start(cfg.Relay.Addr); err != nil {
		return err
	}

	if cfg.Relay.Tailscale.Enabled {
		ln, err := relay.ListenTailnet(ctx, cfg.Relay.Tailscale)
		if err != nil {
			_ = server.Stop(context.Background())
			return fmt.Errorf("start tailnet listener: %w", err)
		}
		defer func() { _ = ln.Close() }()
		go func() {
			if err := server.Serve(ln); err != nil {
				logger.Error("tailnet listener stopped", zap.Error(err))
			}
		}()
		logger.Info("relay reachable on tailnet",
			zap.String("hostname", cfg.Relay.Tailscale.Hostname),
			zap.Int("port", cfg.Relay.Tailscale.Port))
	}

	if !flagJSON {
		fmt.Printf("figlink relay listening on ws://%s\n", server.Addr())
	}

	<-ctx.Done()
	logger.Info("shutting down relay")
	return server.Stop(context.Background())
}
