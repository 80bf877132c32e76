package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/ragcontext-mcp/internal/searcher"
	"github.com/dshills/ragcontext-mcp/pkg/types"
)

type searchOptions struct {
	userID      string
	documentIDs []string
	limit       int
	maxTokens   int
	noRerank    bool
	noCache     bool
	jsonOutput  bool
}

func newSearchCmd(root *rootOptions) *cobra.Command {
	opts := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run one retrieval and print the results and context window",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := root.openApp(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			req := searcher.SearchRequest{
				Query:            strings.Join(args, " "),
				Scope:            types.Scope{UserID: opts.userID, DocumentIDs: opts.documentIDs},
				Limit:            opts.limit,
				MaxContextTokens: opts.maxTokens,
				UseCache:         !opts.noCache,
			}
			if opts.noRerank {
				disabled := false
				req.EnableRerank = &disabled
			}

			resp, err := a.Searcher.Search(ctx, req)
			if err != nil {
				return err
			}

			if opts.jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			printSearchResponse(cmd.OutOrStdout(), resp)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.userID, "user", "u", "", "owner whose documents are searched (required)")
	cmd.Flags().StringSliceVar(&opts.documentIDs, "doc", nil, "restrict to these document IDs")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", searcher.DefaultLimit, "maximum results")
	cmd.Flags().IntVar(&opts.maxTokens, "max-tokens", 0, "context window budget (default from config)")
	cmd.Flags().BoolVar(&opts.noRerank, "no-rerank", false, "skip the reranker")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "bypass the response cache")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "print the full response as JSON")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func printSearchResponse(w io.Writer, resp *searcher.SearchResponse) {
	fmt.Fprintf(w, "%d results (vector %d, full-text %d, reranked %v, cached %v) in %dms\n\n",
		len(resp.Results), resp.VectorResults, resp.TextResults, resp.Reranked, resp.CacheHit, resp.Timing.TotalMs)

	for i, r := range resp.Results {
		fmt.Fprintf(w, "%2d. %.3f  %s  [%s]\n", i+1, r.Score, r.SourceLabel(), r.ID)
		fmt.Fprintf(w, "    %s\n", preview(r.Content, 160))
	}

	fmt.Fprintf(w, "\nContext: %d tokens, truncated %v, %d sources\n",
		resp.Context.TotalTokens, resp.Context.WasTruncated, len(resp.Context.Sources))
	if resp.Context.DocumentContext != "" {
		fmt.Fprintf(w, "\n%s\n", resp.Context.DocumentContext)
	}
	if resp.Context.ConversationContext != "" {
		fmt.Fprintf(w, "\n%s\n", resp.Context.ConversationContext)
	}
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
