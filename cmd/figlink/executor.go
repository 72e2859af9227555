package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leonletto/figlink/internal/executor"
	"github.com/leonletto/figlink/internal/upload"
)

func executorCmd() *cobra.Command {
	var (
		channel  string
		document string
		inline   bool
	)

	cmd := &cobra.Command{
		Use:   "executor",
		Short: "Run a simulated Figma document on a relay channel",
		Long: `Joins a relay channel and executes every command broadcast on it
against an in-memory document, the way the Figma plugin does.

Useful for trying the MCP server without Figma. Exports are uploaded to
executor.upload_url unless --inline is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("channel") {
				cfg.Executor.Channel = channel
			}
			if cfg.Executor.Channel == "" {
				return errors.New("a channel is required: set --channel or executor.channel")
			}
			return runExecutor(document, inline)
		},
	}

	cmd.Flags().StringVar(&channel, "channel", "", "Channel to join (default executor.channel)")
	cmd.Flags().StringVar(&document, "document", "Untitled", "Name of the simulated document")
	cmd.Flags().BoolVar(&inline, "inline", false, "Return exports as base64 instead of uploading them")
	return cmd
}

func runExecutor(name string, inline bool) error {
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	var uploader executor.Uploader
	if !inline && cfg.Executor.UploadURL != "" {
		uploader = upload.NewClient(cfg.Executor.UploadURL)
	}

	stub, err := executor.NewStub(executor.NewDocument(name, uploader), executor.StubOptions{
		RelayURL:       cfg.Executor.RelayURL,
		Channel:        cfg.Executor.Channel,
		ReconnectDelay: cfg.Executor.ReconnectDelay,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	if !flagJSON {
		fmt.Printf("figlink executor serving %q on channel %q\n", name, cfg.Executor.Channel)
	}
	logger.Info("executor starting", zap.String("relay", cfg.Executor.RelayURL), zap.String("channel", cfg.Executor.Channel))
	return stub.Run(ctx)
}
