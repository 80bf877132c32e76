package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/ragcontext-mcp/internal/indexer"
)

type ingestOptions struct {
	workers   int
	batchSize int
}

func newIngestCmd(root *rootOptions) *cobra.Command {
	opts := &ingestOptions{}

	cmd := &cobra.Command{
		Use:   "ingest <file.jsonl|->",
		Short: "Embed and store pre-chunked documents from a JSONL file",
		Long: `Reads one document per line, embeds every chunk and stores the result.
Re-ingesting a document ID replaces the stored document. Use - to read stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("opening %s: %w", args[0], err)
				}
				defer f.Close()
				in = f
			}

			docs, err := indexer.ReadJSONL(in)
			if err != nil {
				return err
			}

			a, err := root.openApp(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.Indexer.IndexDocuments(ctx, docs, &indexer.Config{
				Workers:   opts.workers,
				BatchSize: opts.batchSize,
			})
			if err != nil {
				return err
			}
			a.Searcher.InvalidateCache(ctx)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Indexed %d documents (%d failed): %d chunks, %d embeddings in %s\n",
				stats.DocumentsIndexed, stats.DocumentsFailed, stats.ChunksCreated, stats.EmbeddingsCreated, stats.Duration)
			for _, msg := range stats.ErrorMessages {
				fmt.Fprintf(out, "  failed: %s\n", msg)
			}
			if stats.DocumentsFailed > 0 && stats.DocumentsIndexed == 0 {
				return fmt.Errorf("no documents were indexed")
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.workers, "workers", 0, "concurrent batches (default: number of CPUs)")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "documents per transaction (default: 20)")
	return cmd
}
