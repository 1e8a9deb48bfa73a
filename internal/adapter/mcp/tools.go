package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/guillermoBallester/nlquery/internal/core/domain"
	"github.com/guillermoBallester/nlquery/internal/core/service"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server metadata
const serverName = "nlquery"

// Tool descriptions
const (
	descDescribeSchema = "List the tables and columns queries may reference, the row cap and the statement timeout. " +
		"Call this first: any identifier outside this list is rejected before execution."

	descValidateQuery = "Check a SQL statement against the safety gate without running it. " +
		"Returns whether it is allowed, the failing stage and reason when it is not, " +
		"and the row-limited SQL that would be executed when it is."

	descExecuteQuery = "Validate and execute a read-only SELECT statement, returning columns, rows and timings as JSON. " +
		"Only single SELECT statements over the allowed tables and columns pass. " +
		"A LIMIT is appended when missing and results are capped at the configured row limit."

	descGenerateQuery = "Generate SQL for a natural-language question using the configured model. " +
		"The SQL is returned unvalidated and is not executed."

	descAsk = "Answer a natural-language question: generate SQL, validate it, execute it and return the rows. " +
		"The attempt is recorded in the query history."

	descListHistory = "List recorded query attempts, newest first, with generated and executed SQL, timings and notes."

	descClearHistory = "Irreversibly delete every recorded query attempt. Requires confirm=true."

	descSQLParam      = "SQL statement (SELECT only)"
	descQuestionParam = "Natural-language question"
	descBypassParam   = "Skip the allow-list checks (only honored when the server enables bypass; the row limit still applies)"
	descTimeoutParam  = "Statement timeout in seconds (defaults to, and is capped at, the server setting)"
	descRecordParam   = "Record this attempt in the query history. Defaults to true."
)

func RegisterTools(s *server.MCPServer, query *service.QueryService, catalog *service.CatalogService) {
	s.AddTool(
		mcp.NewTool("describe_schema",
			mcp.WithDescription(descDescribeSchema),
		),
		describeSchemaHandler(catalog),
	)

	s.AddTool(
		mcp.NewTool("validate_query",
			mcp.WithDescription(descValidateQuery),
			mcp.WithString("sql",
				mcp.Required(),
				mcp.Description(descSQLParam),
			),
		),
		validateQueryHandler(query),
	)

	s.AddTool(
		mcp.NewTool("execute_query",
			mcp.WithDescription(descExecuteQuery),
			mcp.WithString("sql",
				mcp.Required(),
				mcp.Description(descSQLParam),
			),
			mcp.WithString("question",
				mcp.Description("Question the SQL answers, stored with the history record (optional)"),
			),
			mcp.WithBoolean("bypass_validation", mcp.Description(descBypassParam)),
			mcp.WithNumber("timeout_seconds", mcp.Description(descTimeoutParam)),
			mcp.WithBoolean("record_history", mcp.Description(descRecordParam)),
		),
		executeQueryHandler(query),
	)

	s.AddTool(
		mcp.NewTool("generate_query",
			mcp.WithDescription(descGenerateQuery),
			mcp.WithString("question",
				mcp.Required(),
				mcp.Description(descQuestionParam),
			),
		),
		generateQueryHandler(query),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription(descAsk),
			mcp.WithString("question",
				mcp.Required(),
				mcp.Description(descQuestionParam),
			),
			mcp.WithBoolean("bypass_validation", mcp.Description(descBypassParam)),
			mcp.WithNumber("timeout_seconds", mcp.Description(descTimeoutParam)),
			mcp.WithBoolean("record_history", mcp.Description(descRecordParam)),
		),
		askHandler(query),
	)

	s.AddTool(
		mcp.NewTool("list_history",
			mcp.WithDescription(descListHistory),
			mcp.WithNumber("limit",
				mcp.Description("Return at most this many records (optional)"),
			),
		),
		listHistoryHandler(query),
	)

	s.AddTool(
		mcp.NewTool("clear_history",
			mcp.WithDescription(descClearHistory),
			mcp.WithBoolean("confirm",
				mcp.Required(),
				mcp.Description("Must be true"),
			),
		),
		clearHistoryHandler(query),
	)
}

func describeSchemaHandler(catalog *service.CatalogService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(catalog.Describe())
	}
}

func validateQueryHandler(query *service.QueryService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, ok := request.GetArguments()["sql"].(string)
		if !ok || sql == "" {
			return mcp.NewToolResultError("sql is required"), nil
		}

		ctx = service.WithToolName(ctx, "validate_query")
		// A rejection is a successful answer here, not a tool error.
		return jsonResult(query.Validate(ctx, sql))
	}
}

func executeQueryHandler(query *service.QueryService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		sql, ok := args["sql"].(string)
		if !ok || sql == "" {
			return mcp.NewToolResultError("sql is required"), nil
		}
		question, _ := args["question"].(string)

		ctx = service.WithToolName(ctx, "execute_query")
		resp, err := query.Execute(ctx, service.ExecuteRequest{
			SQL:              sql,
			Question:         question,
			BypassValidation: boolArg(args, "bypass_validation", false),
			RecordHistory:    boolArg(args, "record_history", true),
			Timeout:          timeoutArg(args),
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
		}

		return jsonResult(resp)
	}
}

func generateQueryHandler(query *service.QueryService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, ok := request.GetArguments()["question"].(string)
		if !ok || question == "" {
			return mcp.NewToolResultError("question is required"), nil
		}

		ctx = service.WithToolName(ctx, "generate_query")
		start := time.Now()
		sql, err := query.Generate(ctx, question)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("generation failed: %v", err)), nil
		}

		return jsonResult(map[string]any{
			"question":         question,
			"generated_sql":    sql,
			"api_execution_ms": time.Since(start).Milliseconds(),
		})
	}
}

func askHandler(query *service.QueryService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		question, ok := args["question"].(string)
		if !ok || question == "" {
			return mcp.NewToolResultError("question is required"), nil
		}

		ctx = service.WithToolName(ctx, "ask")
		resp, err := query.Ask(ctx, service.AskRequest{
			Question:         question,
			BypassValidation: boolArg(args, "bypass_validation", false),
			RecordHistory:    boolArg(args, "record_history", true),
			Timeout:          timeoutArg(args),
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("ask failed: %v", err)), nil
		}

		return jsonResult(resp)
	}
}

func listHistoryHandler(query *service.QueryService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		records := query.History(ctx)
		if records == nil {
			records = []domain.HistoryRecord{}
		}
		if limit, ok := request.GetArguments()["limit"].(float64); ok && limit >= 0 && int(limit) < len(records) {
			records = records[:int(limit)]
		}
		return jsonResult(records)
	}
}

func clearHistoryHandler(query *service.QueryService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if confirm, _ := request.GetArguments()["confirm"].(bool); !confirm {
			return mcp.NewToolResultError("confirm must be true to clear history"), nil
		}

		if err := query.ClearHistory(ctx); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to clear history: %v", err)), nil
		}
		return mcp.NewToolResultText(`{"cleared":true}`), nil
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func boolArg(args map[string]any, name string, def bool) bool {
	if v, ok := args[name].(bool); ok {
		return v
	}
	return def
}

func timeoutArg(args map[string]any) time.Duration {
	if v, ok := args["timeout_seconds"].(float64); ok && v > 0 {
		return time.Duration(v * float64(time.Second))
	}
	return 0
}
