package mcp

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/guillermoBallester/nlquery/internal/core/port"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// inflight tracks a tool call between the before and after hooks.
type inflight struct {
	tool  string
	start time.Time
	span  trace.Span
}

// toolCalls keys in-flight calls by JSON-RPC request id.
type toolCalls struct {
	m sync.Map
}

func (c *toolCalls) begin(id any, call *inflight) { c.m.Store(id, call) }

func (c *toolCalls) end(id any) (*inflight, time.Duration) {
	v, ok := c.m.LoadAndDelete(id)
	if !ok {
		return nil, 0
	}
	call := v.(*inflight)
	return call, time.Since(call.start)
}

// ToolCallHooks logs every tool call with its duration and outcome, wraps it
// in a span and records the tool duration metric. A tool result flagged as an
// error (a gate rejection, a failed query) is logged at Warn: the service has
// already logged the underlying cause at its own level.
func ToolCallHooks(logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.Hooks {
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}

	hooks := &server.Hooks{}
	var calls toolCalls

	hooks.AddBeforeCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest) {
		call := &inflight{tool: req.Params.Name, start: time.Now()}
		if tracer != nil {
			_, call.span = tracer.Start(ctx, "mcp.tool.call",
				trace.WithAttributes(attribute.String("mcp.tool.name", call.tool)),
			)
		}
		calls.begin(id, call)
	})

	hooks.AddAfterCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest, result any) {
		call, elapsed := calls.end(id)

		attrs := []slog.Attr{
			slog.String("rpc.method", string(mcp.MethodToolsCall)),
			slog.String("mcp.tool.name", req.Params.Name),
			slog.Int64("duration_ms", elapsed.Milliseconds()),
		}

		level := slog.LevelInfo
		var toolErr string
		if r, ok := result.(*mcp.CallToolResult); ok && r.IsError {
			level = slog.LevelWarn
			toolErr = resultText(r)
			attrs = append(attrs, slog.Bool("mcp.tool.error", true), slog.String("error.message", toolErr))
		}
		logger.LogAttrs(ctx, level, "tool call", attrs...)

		inst.RecordToolDuration(ctx, float64(elapsed.Milliseconds()))

		if call != nil && call.span != nil {
			if toolErr != "" {
				call.span.SetStatus(codes.Error, toolErr)
				call.span.RecordError(errors.New(toolErr))
			}
			call.span.End()
		}
	})

	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		if method != mcp.MethodToolsCall {
			return
		}
		call, elapsed := calls.end(id)

		tool := ""
		if req, ok := message.(*mcp.CallToolRequest); ok {
			tool = req.Params.Name
		}
		logger.LogAttrs(ctx, slog.LevelError, "tool call failed",
			slog.String("rpc.method", string(method)),
			slog.String("mcp.tool.name", tool),
			slog.Int64("duration_ms", elapsed.Milliseconds()),
			slog.String("error.message", err.Error()),
		)

		if call != nil && call.span != nil {
			call.span.RecordError(err)
			call.span.SetStatus(codes.Error, err.Error())
			call.span.End()
		}
	})

	return hooks
}

func resultText(r *mcp.CallToolResult) string {
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}
