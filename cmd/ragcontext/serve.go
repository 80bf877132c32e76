package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/ragcontext-mcp/internal/mcp"
	"github.com/dshills/ragcontext-mcp/internal/storage"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server on stdio",
		Long:  `Starts a Model Context Protocol server on stdio exposing the retrieve_context and get_status tools. Logs go to stderr.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := opts.openApp(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					a.Logger.Error("shutdown_failed", slog.String("error", err.Error()))
				}
			}()

			a.Logger.Info("server_starting",
				slog.String("version", version),
				slog.String("build_mode", storage.BuildMode),
				slog.String("sqlite_driver", storage.DriverName),
				slog.Bool("vector_extension", storage.VectorExtensionAvailable))

			srv, err := mcp.NewServer(a.Searcher, a.Store, a.Logger)
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}

			// Set up graceful shutdown
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)

			errChan := make(chan error, 1)
			go func() {
				errChan <- srv.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
			}()

			select {
			case sig := <-sigChan:
				a.Logger.Info("shutdown_signal", slog.String("signal", sig.String()))
				cancel()
				<-errChan
			case err := <-errChan:
				if err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("server error: %w", err)
				}
			}

			a.Logger.Info("server_stopped")
			return nil
		},
	}
}
