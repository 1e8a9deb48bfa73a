package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/guillermoBallester/nlquery/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var version = "dev"

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// cliFlags holds raw flag values. Only flags the user actually set become
// overrides; everything else falls through to the environment.
type cliFlags struct {
	dbDriver     string
	databaseURL  string
	logLevel     string
	maxRows      int
	queryTimeout time.Duration
	policyFile   string
	historyPath  string
	allowBypass  bool
	otel         bool

	transport       string
	httpAddr        string
	httpBearerToken string
	generator       string
	generatorModel  string

	poolMaxConns        int32
	poolMinConns        int32
	poolMaxConnLifetime time.Duration
}

func (fl *cliFlags) bindGlobal(fs *pflag.FlagSet) {
	fs.StringVar(&fl.dbDriver, "db-driver", "", "store driver: sqlite or postgres (env DB_DRIVER)")
	fs.StringVar(&fl.databaseURL, "database-url", "", "SQLite file path or Postgres URL (env DATABASE_URL)")
	fs.StringVar(&fl.logLevel, "log-level", "", "debug, info, warn or error (env LOG_LEVEL)")
	fs.IntVar(&fl.maxRows, "max-rows", 0, "maximum rows returned per query (env MAX_ROWS)")
	fs.DurationVar(&fl.queryTimeout, "query-timeout", 0, "statement timeout (env QUERY_TIMEOUT)")
	fs.StringVar(&fl.policyFile, "policy-file", "", "allow-list policy YAML (env POLICY_FILE)")
	fs.StringVar(&fl.historyPath, "history-path", "", "query history JSON file, empty disables (env HISTORY_PATH)")
	fs.BoolVar(&fl.allowBypass, "allow-bypass", false, "let callers skip the allow-list checks (env ALLOW_BYPASS)")
	fs.BoolVar(&fl.otel, "otel", false, "export traces and metrics over OTLP gRPC (env OTEL_ENABLED)")
}

func (fl *cliFlags) bindServe(fs *pflag.FlagSet) {
	fs.StringVar(&fl.transport, "transport", "", "stdio or http (env TRANSPORT)")
	fs.StringVar(&fl.httpAddr, "http-addr", "", "listen address for the http transport (env HTTP_ADDR)")
	fs.StringVar(&fl.httpBearerToken, "http-bearer-token", "", "bearer token required by the http transport (env HTTP_BEARER_TOKEN)")
	fs.StringVar(&fl.generator, "generator", "", "SQL generator: gemini, openai or empty (env GENERATOR)")
	fs.StringVar(&fl.generatorModel, "generator-model", "", "model name for the generator (env GENERATOR_MODEL)")
	fs.Int32Var(&fl.poolMaxConns, "pool-max-conns", 0, "postgres pool size (env POOL_MAX_CONNS)")
	fs.Int32Var(&fl.poolMinConns, "pool-min-conns", 0, "postgres idle connections kept open (env POOL_MIN_CONNS)")
	fs.DurationVar(&fl.poolMaxConnLifetime, "pool-max-conn-lifetime", 0, "postgres connection lifetime (env POOL_MAX_CONN_LIFETIME)")
}

// overrides converts the flags set on cmd into config overrides.
func (fl *cliFlags) overrides(fs *pflag.FlagSet) config.Overrides {
	var o config.Overrides
	set := fs.Changed

	if set("db-driver") {
		o.DBDriver = &fl.dbDriver
	}
	if set("database-url") {
		o.DatabaseURL = &fl.databaseURL
	}
	if set("log-level") {
		o.LogLevel = &fl.logLevel
	}
	if set("max-rows") {
		o.MaxRows = &fl.maxRows
	}
	if set("query-timeout") {
		o.QueryTimeout = &fl.queryTimeout
	}
	if set("policy-file") {
		o.PolicyFile = &fl.policyFile
	}
	if set("history-path") {
		o.HistoryPath = &fl.historyPath
	}
	if set("transport") {
		o.Transport = &fl.transport
	}
	if set("http-addr") {
		o.HTTPAddr = &fl.httpAddr
	}
	if set("http-bearer-token") {
		o.HTTPBearerToken = &fl.httpBearerToken
	}
	if set("generator") {
		o.Generator = &fl.generator
	}
	if set("generator-model") {
		o.GeneratorModel = &fl.generatorModel
	}
	if set("pool-max-conns") {
		o.PoolMaxConns = &fl.poolMaxConns
	}
	if set("pool-min-conns") {
		o.PoolMinConns = &fl.poolMinConns
	}
	if set("pool-max-conn-lifetime") {
		o.PoolMaxConnLifetime = &fl.poolMaxConnLifetime
	}
	o.AllowBypass = fl.allowBypass
	o.OTelEnabled = fl.otel
	return o
}

func newRootCmd(out io.Writer) *cobra.Command {
	fl := &cliFlags{}

	root := &cobra.Command{
		Use:           "nlquery",
		Short:         "Answer natural-language questions with guarded, read-only SQL",
		Long:          "nlquery turns questions into SQL through a text-generation model, checks the SQL against an allow-list and runs it read-only.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	fl.bindGlobal(root.PersistentFlags())

	root.AddCommand(
		newServeCmd(fl),
		newValidateCmd(fl),
		newHistoryCmd(fl),
	)
	return root
}
