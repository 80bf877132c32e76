package mcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/ragcontext-mcp/internal/cache"
	"github.com/dshills/ragcontext-mcp/internal/searcher"
	"github.com/dshills/ragcontext-mcp/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "ragcontext-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Searcher runs retrievals for retrieve_context
type Searcher interface {
	Search(ctx context.Context, req searcher.SearchRequest) (*searcher.SearchResponse, error)
	CacheStats() cache.Stats
}

// StatusReader reports store statistics for get_status
type StatusReader interface {
	GetStatus(ctx context.Context, ownerID string) (*storage.Status, error)
}

// Server exposes the retrieval pipeline as MCP tools
type Server struct {
	mcp      *server.MCPServer
	searcher Searcher
	status   StatusReader
	logger   *slog.Logger
}

// NewServer creates a new MCP server instance
func NewServer(srch Searcher, status StatusReader, logger *slog.Logger) (*Server, error) {
	if srch == nil {
		return nil, fmt.Errorf("searcher not initialized")
	}
	if status == nil {
		return nil, fmt.Errorf("status reader not initialized")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		searcher: srch,
		status:   status,
		logger:   logger,
	}

	s.registerTools()
	return s, nil
}

// Serve runs the MCP protocol over in/out until ctx is cancelled or in closes
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))

	s.logger.Info("mcp_server_ready", slog.String("name", ServerName), slog.String("version", ServerVersion))
	return stdio.Listen(ctx, in, out)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(retrieveContextTool(), s.handleRetrieveContext)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
