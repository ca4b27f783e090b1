package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v3"

	"github.com/poldracklab/cogat/internal/app"
)

var Version = "dev"

// setupConfig reads flags, COGAT_* env vars and an optional plain config file.
func setupConfig(args []string) (app.Config, error) {
	fs := flag.NewFlagSet("cogat", flag.ContinueOnError)

	var cfg app.Config
	var corsOrigins string
	fs.StringVar(&cfg.ServiceName, "service-name", "cogat-api", "service name reported to tracing")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", ":8000", "HTTP listen address")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", 15*time.Second, "graceful shutdown budget")
	fs.StringVar(&cfg.GraphBackend, "graph-backend", app.BackendNeo4j, "graph store: neo4j or memory")
	fs.StringVar(&cfg.Neo4j.URI, "neo4j-uri", "bolt://localhost:7687", "Neo4j bolt URI")
	fs.StringVar(&cfg.Neo4j.User, "neo4j-user", "neo4j", "Neo4j user")
	fs.StringVar(&cfg.Neo4j.Password, "neo4j-password", "", "Neo4j password")
	fs.StringVar(&cfg.Neo4j.Database, "neo4j-database", "", "Neo4j database name (default database when empty)")
	fs.IntVar(&cfg.Neo4j.MaxPoolSize, "neo4j-max-pool-size", 50, "Neo4j connection pool size")
	fs.DurationVar(&cfg.Neo4j.ConnectTimeout, "neo4j-connect-timeout", 10*time.Second, "Neo4j connect timeout")
	fs.DurationVar(&cfg.Neo4j.QueryTimeout, "query-timeout", 10*time.Second, "per-transaction query timeout")
	fs.StringVar(&cfg.CatalogPath, "catalog", "", "entity catalog YAML overriding the built-in one")
	fs.StringVar(&cfg.LogMode, "log-mode", "development", "log encoding: development or production")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "minimum log level")
	fs.BoolVar(&cfg.LogHashIDs, "log-redact", false, "hash user ids in logs")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", "", "HS256 secret for curator tokens")
	fs.StringVar(&corsOrigins, "cors-origins", "", "comma separated allowed origins")
	fs.BoolVar(&cfg.MetricsEnabled, "metrics", true, "serve Prometheus metrics on /metrics")

	var configFile string
	fs.StringVar(&configFile, "config", "", "config file path")

	err := ff.Parse(fs, args,
		ff.WithEnvVarPrefix("COGAT"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	)
	if err != nil {
		return cfg, fmt.Errorf("failed to parse configuration: %w", err)
	}
	cfg.Version = Version
	cfg.CORSOrigins = app.SplitList(corsOrigins)
	return cfg, cfg.Validate()
}

func main() {
	cfg, err := setupConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		a.Log.Error("server exited", "error", err)
		a.Close()
		os.Exit(1)
	}
}
