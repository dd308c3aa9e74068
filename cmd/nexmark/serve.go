package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fabricekabongo/nexmark"
	"github.com/fabricekabongo/nexmark/internal/bridge/socket"
	"github.com/fabricekabongo/nexmark/internal/bridge/ws"
)

func newServeCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the socket and websocket bridges",
		Long: `Serve starts every bridge enabled in the config (socket.enabled,
websocket.enabled) and runs until interrupted. Each connection gets its own
generator.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load(cmd)
			if err != nil {
				return err
			}
			if !cfg.Socket.Enabled && !cfg.WebSocket.Enabled {
				return errors.New("nothing to serve: enable socket or websocket in the config")
			}
			g, ctx := errgroup.WithContext(cmd.Context())
			if cfg.Socket.Enabled {
				srv := socket.NewServer(socket.Config{
					Network:          cfg.Socket.Network,
					Address:          cfg.Socket.Address,
					UnixSocketPath:   cfg.Socket.UnixSocketPath,
					AuthToken:        cfg.Socket.AuthToken,
					MaxInflight:      cfg.Socket.MaxInflight,
					GlobalQueueLimit: cfg.Socket.GlobalQueueLimit,
					Logger:           logger,
				}, nexmark.New)
				g.Go(func() error { return srv.Start(ctx) })
			}
			if cfg.WebSocket.Enabled {
				h := ws.NewHandler(ws.Config{
					EventsPerSecond: cfg.WebSocket.EventsPerSecond,
					Burst:           cfg.WebSocket.Burst,
					Logger:          logger,
					Factory:         nexmark.New,
				})
				logger.Info("websocket listening", "addr", cfg.WebSocket.Address, "path", cfg.WebSocket.Path)
				g.Go(func() error { return ws.Serve(ctx, cfg.WebSocket.Address, cfg.WebSocket.Path, h) })
			}
			err = g.Wait()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
