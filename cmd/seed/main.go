// Command seed loads the built-in market hierarchy into Neo4j: sectors,
// companies with aliases, regulators and their coverage.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/FinSightAI/finsight-mvp/engine/graph"
	"github.com/FinSightAI/finsight-mvp/engine/symbols"
)

// Config holds all environment-based configuration.
type Config struct {
	Neo4jURL  string `envconfig:"NEO4J_URL" default:"neo4j://localhost:7687"`
	Neo4jUser string `envconfig:"NEO4J_USER" default:"neo4j"`
	Neo4jPass string `envconfig:"NEO4J_PASS" default:"password"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	_ = godotenv.Load()
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		logger.Error("config load failed", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		logger.Error("neo4j driver failed", "err", err)
		os.Exit(1)
	}
	defer driver.Close(ctx)

	if err := driver.VerifyConnectivity(ctx); err != nil {
		logger.Error("neo4j unreachable", "err", err)
		os.Exit(1)
	}

	data := symbols.DefaultData()
	if err := graph.New(driver).Seed(ctx, data); err != nil {
		logger.Error("seed failed", "err", err)
		os.Exit(1)
	}

	logger.Info("market graph seeded",
		"companies", len(data.Companies),
		"sectors", len(data.Sectors),
		"regulators", len(data.Regulators),
	)
}
