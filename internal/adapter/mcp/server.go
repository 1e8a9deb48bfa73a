package mcp

import (
	"log/slog"

	"github.com/guillermoBallester/nlquery/internal/core/port"
	"github.com/guillermoBallester/nlquery/internal/core/service"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/trace"
)

// NewServer creates an MCPServer with the query tools and logging hooks.
func NewServer(
	version string,
	query *service.QueryService,
	catalog *service.CatalogService,
	logger *slog.Logger,
	tracer trace.Tracer,
	inst port.Instrumentation,
) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithHooks(ToolCallHooks(logger, tracer, inst)),
	)

	RegisterTools(s, query, catalog)

	return s
}
