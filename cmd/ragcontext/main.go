package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/ragcontext-mcp/internal/app"
	"github.com/dshills/ragcontext-mcp/internal/config"
	"github.com/dshills/ragcontext-mcp/internal/logging"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// rootOptions holds flags shared by every subcommand
type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "ragcontext",
		Short: "Hybrid retrieval and context assembly over ingested documents",
		Long: `ragcontext retrieves the document fragments most relevant to a question,
fusing vector similarity with full-text rank, optionally reranking them, and
assembles a token-bounded context window for a downstream language model.
It serves the pipeline to MCP clients over stdio.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultConfigPath(), "config file path")

	root.AddCommand(
		newServeCmd(opts),
		newSearchCmd(opts),
		newIngestCmd(opts),
		newMigrateCmd(opts),
		newVersionCmd(),
	)
	return root
}

// loadConfig reads the config file and environment overrides
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// openApp loads configuration and builds every component
func (o *rootOptions) openApp(ctx context.Context, stderr io.Writer) (*app.App, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := logging.NewWithWriter(stderr, cfg.Log.Level, cfg.Log.Format)
	return app.New(ctx, cfg, logger)
}
