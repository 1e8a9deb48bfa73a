package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/guillermoBallester/nlquery/internal/core/domain"
	"github.com/guillermoBallester/nlquery/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type toolNameKey struct{}

// WithToolName returns a context carrying the MCP tool name for logging.
func WithToolName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, toolNameKey{}, name)
}

func toolNameFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(toolNameKey{}).(string); ok {
		return v
	}
	return ""
}

// ExecuteRequest runs caller-supplied SQL. Question is carried into the
// history record only.
type ExecuteRequest struct {
	SQL              string
	Question         string
	BypassValidation bool
	RecordHistory    bool
	Timeout          time.Duration
}

// AskRequest generates SQL for Question and runs it.
type AskRequest struct {
	Question         string
	BypassValidation bool
	RecordHistory    bool
	Timeout          time.Duration
}

// Response is the assembled outcome of Execute and Ask.
type Response struct {
	Question            string                  `json:"question,omitempty"`
	GeneratedSQL        string                  `json:"generated_sql,omitempty"`
	ExecutedSQL         string                  `json:"executed_sql"`
	Result              *domain.ExecutionResult `json:"result"`
	APIExecutionMS      int64                   `json:"api_execution_ms"`
	DatabaseExecutionMS int64                   `json:"database_execution_ms"`
	Bypassed            bool                    `json:"bypassed,omitempty"`
}

// QueryService orchestrates generation, the safety gate, execution and the
// history log.
type QueryService struct {
	validator   port.QueryValidator
	executor    port.QueryExecutor
	generator   port.SQLGenerator
	history     port.HistoryLog
	logger      *slog.Logger
	allowBypass bool
	tracer      trace.Tracer
	inst        port.Instrumentation
}

// NewQueryService wires the pipeline. generator may be nil, in which case
// Generate and Ask fail with ErrGenerationFailed.
func NewQueryService(
	validator port.QueryValidator,
	executor port.QueryExecutor,
	generator port.SQLGenerator,
	history port.HistoryLog,
	logger *slog.Logger,
	allowBypass bool,
	tracer trace.Tracer,
	inst port.Instrumentation,
) *QueryService {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	return &QueryService{
		validator:   validator,
		executor:    executor,
		generator:   generator,
		history:     history,
		logger:      logger,
		allowBypass: allowBypass,
		tracer:      tracer,
		inst:        inst,
	}
}

// Validate runs the gate only.
func (s *QueryService) Validate(ctx context.Context, sql string) domain.Verdict {
	_, span := s.tracer.Start(ctx, "QueryService.Validate",
		trace.WithAttributes(attribute.String("db.statement", sql)),
	)
	defer span.End()

	verdict := s.validator.Validate(sql)
	span.SetAttributes(attribute.Bool("gate.allowed", verdict.Allowed))
	if !verdict.Allowed {
		span.SetAttributes(attribute.String("gate.stage", string(verdict.Stage)))
		s.inst.IncrementRejections(ctx, string(verdict.Stage))
	}
	return verdict
}

// Execute validates caller SQL and, if allowed, runs it.
func (s *QueryService) Execute(ctx context.Context, req ExecuteRequest) (*Response, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "QueryService.Execute",
		trace.WithAttributes(
			attribute.String("db.operation.name", "query"),
			attribute.String("db.statement", req.SQL),
			attribute.String("mcp.tool.name", toolNameFromCtx(ctx)),
		),
	)
	defer span.End()

	resp := &Response{Question: req.Question}
	err := s.run(ctx, span, resp, domain.CandidateQuery{SQL: req.SQL, Origin: domain.OriginCaller}, req.BypassValidation, req.Timeout)
	s.finish(ctx, start, resp, err, req.RecordHistory)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Generate asks the generator for SQL without validating or running it.
func (s *QueryService) Generate(ctx context.Context, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", domain.ErrEmptyQuestion
	}
	if s.generator == nil {
		return "", fmt.Errorf("%w: no generator configured", domain.ErrGenerationFailed)
	}

	ctx, span := s.tracer.Start(ctx, "QueryService.Generate")
	defer span.End()

	start := time.Now()
	sql, err := s.generator.Generate(ctx, question)
	s.inst.RecordGenerationDuration(ctx, float64(time.Since(start).Milliseconds()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, context.Canceled) {
			return "", fmt.Errorf("%w: %w", domain.ErrCanceled, err)
		}
		return "", fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err)
	}

	sql = strings.TrimSpace(sql)
	if sql == "" {
		span.SetStatus(codes.Error, domain.ErrEmptyGeneration.Error())
		return "", domain.ErrEmptyGeneration
	}
	span.SetAttributes(attribute.String("db.statement", sql))
	return sql, nil
}

// Ask generates SQL for the question, validates it and runs it.
func (s *QueryService) Ask(ctx context.Context, req AskRequest) (*Response, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "QueryService.Ask",
		trace.WithAttributes(attribute.String("mcp.tool.name", toolNameFromCtx(ctx))),
	)
	defer span.End()

	resp := &Response{Question: req.Question}

	sql, err := s.Generate(ctx, req.Question)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logFailure(ctx, "sql generation failed", err)
		// An empty question never produced an attempt worth recording.
		s.finish(ctx, start, resp, err, req.RecordHistory && !errors.Is(err, domain.ErrEmptyQuestion))
		return nil, err
	}
	resp.GeneratedSQL = sql

	err = s.run(ctx, span, resp, domain.CandidateQuery{SQL: sql, Origin: domain.OriginGenerated}, req.BypassValidation, req.Timeout)
	s.finish(ctx, start, resp, err, req.RecordHistory)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// RecordHistory appends rec to the history log. Failures are logged and
// swallowed.
func (s *QueryService) RecordHistory(ctx context.Context, rec domain.HistoryRecord) {
	if _, err := s.history.Append(ctx, rec); err != nil {
		s.logger.ErrorContext(ctx, "history append failed",
			slog.String("error.type", "audit_persistence"),
			slog.String("error.message", err.Error()),
		)
	}
}

// History lists recorded attempts, newest first.
func (s *QueryService) History(ctx context.Context) []domain.HistoryRecord {
	return s.history.List(ctx)
}

// ClearHistory irreversibly empties the history log.
func (s *QueryService) ClearHistory(ctx context.Context) error {
	if err := s.history.Clear(ctx); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "history cleared")
	return nil
}

// run pushes one candidate through gate and executor, filling resp as it goes.
func (s *QueryService) run(ctx context.Context, span trace.Span, resp *Response, candidate domain.CandidateQuery, bypass bool, timeout time.Duration) error {
	var sql string
	if bypass {
		if !s.allowBypass {
			span.SetStatus(codes.Error, domain.ErrBypassNotAllowed.Error())
			return domain.ErrBypassNotAllowed
		}
		sql = s.validator.EnforceRowLimit(candidate.SQL)
		resp.Bypassed = true
		s.logger.WarnContext(ctx, "validation bypassed",
			slog.String("db.statement", sql),
			slog.String("query.origin", string(candidate.Origin)),
		)
	} else {
		verdict := s.Validate(ctx, candidate.SQL)
		if !verdict.Allowed {
			err := verdict.Err()
			s.logger.WarnContext(ctx, "query validation rejected",
				slog.String("db.operation.name", "query"),
				slog.String("db.statement", candidate.SQL),
				slog.String("query.origin", string(candidate.Origin)),
				slog.String("gate.stage", string(verdict.Stage)),
				slog.String("error.type", "validation_error"),
				slog.String("error.message", verdict.Reason),
			)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		sql = verdict.SQL
	}
	resp.ExecutedSQL = sql

	result, err := s.executor.Execute(ctx, sql, s.boundTimeout(timeout))
	if err != nil {
		s.inst.IncrementQueryErrors(ctx, errorKind(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logFailure(ctx, "query execution failed", err, slog.String("db.statement", sql))
		return err
	}

	resp.Result = result
	resp.DatabaseExecutionMS = result.DurationMS()
	s.inst.RecordQueryDuration(ctx, float64(resp.DatabaseExecutionMS))
	s.inst.IncrementQueryCount(ctx)
	span.SetAttributes(
		attribute.Int("db.response.rows", result.RowCount),
		attribute.Bool("db.response.truncated", result.Truncated),
	)
	return nil
}

// boundTimeout caps a caller timeout at the policy's statement timeout.
// Non-positive values pass through so the executor applies its default.
func (s *QueryService) boundTimeout(timeout time.Duration) time.Duration {
	limit := s.validator.Policy().StatementTimeout()
	if timeout > limit {
		return limit
	}
	return timeout
}

// finish stamps the API duration and, when asked, records the attempt.
func (s *QueryService) finish(ctx context.Context, start time.Time, resp *Response, runErr error, record bool) {
	resp.APIExecutionMS = time.Since(start).Milliseconds()
	if !record {
		return
	}

	rec := domain.HistoryRecord{
		Question:       resp.Question,
		GeneratedSQL:   resp.GeneratedSQL,
		ExecutedSQL:    resp.ExecutedSQL,
		APIExecutionMS: resp.APIExecutionMS,
		Note:           historyNote(resp, runErr),
	}
	if runErr == nil && resp.Result != nil {
		dbMS := resp.DatabaseExecutionMS
		count := resp.Result.RowCount
		rec.DatabaseExecutionMS = &dbMS
		rec.ResultCount = &count
	}
	// History is recorded on a detached context so a canceled caller still
	// leaves a trace of the attempt.
	s.RecordHistory(context.WithoutCancel(ctx), rec)
}

func (s *QueryService) logFailure(ctx context.Context, msg string, err error, attrs ...any) {
	attrs = append(attrs,
		slog.String("error.type", errorKind(err)),
		slog.String("error.message", err.Error()),
	)
	if errors.Is(err, domain.ErrCanceled) {
		s.logger.InfoContext(ctx, msg, attrs...)
		return
	}
	s.logger.ErrorContext(ctx, msg, attrs...)
}

func historyNote(resp *Response, err error) string {
	var parts []string
	if resp.Bypassed {
		parts = append(parts, "validation bypassed")
	}
	switch {
	case err == nil:
		if resp.Result != nil && resp.Result.Truncated {
			parts = append(parts, "result truncated")
		}
	case errors.Is(err, domain.ErrValidationRejected):
		var rej *domain.RejectionError
		if errors.As(err, &rej) {
			parts = append(parts, "rejected: "+rej.Reason)
		} else {
			parts = append(parts, "rejected")
		}
	default:
		parts = append(parts, "failed: "+err.Error())
	}
	return strings.Join(parts, "; ")
}

// errorKind maps an error onto a short label for metrics and logs.
func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidationRejected):
		return "validation_error"
	case errors.Is(err, domain.ErrBypassNotAllowed):
		return "bypass_not_allowed"
	case errors.Is(err, domain.ErrTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrCanceled):
		return "canceled"
	case errors.Is(err, domain.ErrExecutionFailed):
		return "execution_error"
	case errors.Is(err, domain.ErrEmptyGeneration), errors.Is(err, domain.ErrGenerationFailed), errors.Is(err, domain.ErrEmptyQuestion):
		return "generation_error"
	default:
		return "internal_error"
	}
}
