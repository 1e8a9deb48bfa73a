package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/guillermoBallester/nlquery/internal/adapter/generator"
	"github.com/guillermoBallester/nlquery/internal/adapter/policy"
	"github.com/guillermoBallester/nlquery/internal/adapter/postgres"
	"github.com/guillermoBallester/nlquery/internal/adapter/sqlite"
	"github.com/guillermoBallester/nlquery/internal/audit"
	"github.com/guillermoBallester/nlquery/internal/config"
	"github.com/guillermoBallester/nlquery/internal/core/domain"
	"github.com/guillermoBallester/nlquery/internal/core/port"
	"github.com/guillermoBallester/nlquery/internal/core/service"
	"github.com/guillermoBallester/nlquery/internal/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// app is the wired pipeline shared by every subcommand.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	gate    *domain.Gate
	history port.HistoryLog
	query   *service.QueryService
	catalog *service.CatalogService
	tracer  trace.Tracer
	inst    port.Instrumentation

	closers []func(context.Context) error
}

// Logs go to stderr; stdout is reserved for the MCP stdio transport.
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadPolicy reads the policy file when configured and merges the allow-list
// entries supplied through the environment.
func loadPolicy(cfg *config.Config) (*policy.Policy, error) {
	pol := &policy.Policy{}
	if cfg.PolicyFile != "" {
		loaded, err := policy.LoadFromFile(cfg.PolicyFile)
		if err != nil {
			return nil, fmt.Errorf("loading policy: %w", err)
		}
		pol = loaded
	}
	pol.Merge(cfg.AllowedTables, cfg.AllowedColumns)
	return pol, nil
}

func openHistory(cfg *config.Config, logger *slog.Logger) (port.HistoryLog, error) {
	if cfg.HistoryPath == "" {
		logger.Warn("query history disabled")
		return audit.NoopLog{}, nil
	}
	log, err := audit.NewFileLog(cfg.HistoryPath, logger)
	if err != nil {
		return nil, fmt.Errorf("opening query history: %w", err)
	}
	logger.Info("query history enabled", slog.String("path", cfg.HistoryPath))
	return log, nil
}

// newApp wires the gate, history log and services. The store and generator are
// only connected when withStore is set, so offline commands never dial out.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, withStore bool) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logger,
		tracer: telemetry.NoopTracer(),
		inst:   telemetry.NoopInstruments(),
	}

	pol, err := loadPolicy(cfg)
	if err != nil {
		return nil, err
	}
	if len(pol.Tables) == 0 {
		logger.Warn("allow-list has no tables, every query will be rejected")
	}
	allow := pol.AllowList(cfg.MaxRows, cfg.QueryTimeout)
	a.gate = domain.NewGate(allow)
	a.catalog = service.NewCatalogService(allow, pol.PromptSchema())

	a.history, err = openHistory(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return a.history.Close() })

	var (
		executor port.QueryExecutor
		gen      port.SQLGenerator
	)
	if withStore {
		if cfg.OTelEnabled {
			provider, err := telemetry.Init(ctx, telemetry.Identity{
				ServiceName: "nlquery",
				Version:     version,
				DBDriver:    cfg.DBDriver,
				Transport:   cfg.Transport,
			})
			if err != nil {
				a.close(ctx)
				return nil, fmt.Errorf("initializing telemetry: %w", err)
			}
			a.closers = append(a.closers, provider.Shutdown)
			a.tracer = telemetry.Tracer()
			a.inst = telemetry.NewInstruments()
			logger.Info("opentelemetry enabled")
		}

		var inspector port.SchemaInspector
		executor, inspector, err = a.openExecutor(ctx, allow)
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		a.reportDrift(ctx, inspector)

		gen, err = generator.New(generator.Config{
			Provider:   cfg.Generator,
			APIKey:     cfg.GeneratorAPIKey(),
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.GeneratorModel,
			Timeout:    cfg.GeneratorTimeout,
			SchemaHint: pol.PromptSchema(),
		})
		if err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("creating generator: %w", err)
		}
		if gen == nil {
			logger.Info("no SQL generator configured, generate_query and ask are unavailable")
		} else {
			logger.Info("SQL generator configured", slog.String("generator", cfg.Generator))
		}
	}

	a.query = service.NewQueryService(a.gate, executor, gen, a.history, logger, cfg.AllowBypass, a.tracer, a.inst)
	return a, nil
}

func (a *app) openExecutor(ctx context.Context, allow *domain.AllowListPolicy) (port.QueryExecutor, port.SchemaInspector, error) {
	cfg := a.cfg
	switch cfg.DBDriver {
	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{
			MaxConns:        cfg.PoolMaxConns,
			MinConns:        cfg.PoolMinConns,
			MaxConnLifetime: cfg.PoolMaxConnLifetime,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { pool.Close(); return nil })
		a.logger.Info("database pool connected",
			slog.String("db.system", "postgresql"),
			slog.String("database_url", redactDSN(cfg.DatabaseURL)),
		)
		return postgres.NewExecutor(pool, cfg.ReadOnly, allow.MaxRows(), allow.StatementTimeout()),
			postgres.NewInspector(pool, nil), nil

	default:
		if path := sqlite.FilePath(cfg.DatabaseURL); path != "" {
			if _, err := os.Stat(path); err != nil {
				return nil, nil, fmt.Errorf("opening database: %w", err)
			}
		}
		dsn := cfg.DatabaseURL
		if cfg.ReadOnly {
			dsn = sqlite.ReadOnlyDSN(dsn)
		}
		a.logger.Info("database configured",
			slog.String("db.system", "sqlite"),
			slog.String("path", cfg.DatabaseURL),
			slog.Bool("read_only", cfg.ReadOnly),
		)
		return sqlite.NewExecutor(sqlite.DriverName, dsn, allow.MaxRows(), allow.StatementTimeout()),
			sqlite.NewInspector(sqlite.DriverName, dsn), nil
	}
}

// reportDrift warns about allow-listed names the store does not have. It never
// blocks startup.
func (a *app) reportDrift(ctx context.Context, inspector port.SchemaInspector) {
	drift, err := a.catalog.Verify(ctx, inspector)
	if err != nil {
		a.logger.Warn("schema check skipped", slog.String("error.message", err.Error()))
		return
	}
	if drift.Empty() {
		return
	}
	a.logger.Warn("allow-list references names missing from the database",
		slog.Any("missing_tables", drift.MissingTables),
		slog.Any("missing_columns", drift.MissingColumns),
	)
}

// close releases resources in reverse order of acquisition.
func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Error("shutdown", slog.String("error.message", err.Error()))
		}
	}
	a.closers = nil
}
