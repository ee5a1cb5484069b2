package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/datachat-core/server/internal/agent/dataset"
	"github.com/datachat-core/server/internal/agent/graph"
	"github.com/datachat-core/server/internal/agent/model"
	"github.com/datachat-core/server/internal/agent/repo"
	"github.com/datachat-core/server/internal/core"
	logx "github.com/datachat-core/server/pkg/logger"
	pkgredis "github.com/datachat-core/server/pkg/redis"
)

type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	RegistryPath string `envconfig:"DATASET_REGISTRY" default:"datasets/registry.yaml"`
	Dataset      string `envconfig:"DATASET_NAME"`

	Redis     pkgredis.Config            `envconfig:"REDIS"`
	Analyst   model.AnalystModelConfig   `envconfig:"ANALYST"`
	Responder model.ResponderModelConfig `envconfig:"RESPONDER"`
	Oracle    model.OracleConfig         `envconfig:"ORACLE"`
	Workflow  model.WorkflowConfig       `envconfig:"WORKFLOW"`
	Thread    model.ThreadConfig         `envconfig:"THREAD"`
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, relying on environment variables")
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		logx.Fatal().Err(err).Msg("Error processing configuration")
	}

	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(cfg.Environment)})

	registry, err := dataset.LoadRegistry(cfg.RegistryPath)
	if err != nil {
		logx.Fatal().Err(err).Str("path", cfg.RegistryPath).Msg("Error loading dataset registry")
	}

	name := cfg.Dataset
	if name == "" {
		name = registry.Names()[0]
	}
	ds, err := registry.Open(name)
	if err != nil {
		logx.Fatal().Err(err).Str("dataset", name).Msg("Error opening dataset")
	}
	rows, cols := ds.Table.Shape()
	logx.Info().Str("dataset", ds.Name).Int("rows", rows).Int("columns", cols).Msg("Dataset loaded")

	ttl, err := time.ParseDuration(cfg.Thread.TTL)
	if err != nil {
		logx.Fatal().Err(err).Msg("Error parsing thread TTL")
	}

	rdb := cfg.Redis.MustNew()
	defer rdb.Close()

	ctx := context.Background()
	runner, err := graph.BuildQueryWorkflow(ctx, graph.Config{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Analyst:    cfg.Analyst,
		Responder:  cfg.Responder,
		Oracle:     cfg.Oracle,
		Workflow:   cfg.Workflow,
		ThreadRepo: repo.NewRedisThreadRepository(rdb, ttl),
		Dataset:    ds,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("Error building query workflow")
	}

	threadID := uuid.NewString()
	questions := []string{
		"Which region had the highest total sales?",
		"And what about the lowest one?",
		"What is the CEO's favorite color?",
	}

	for _, q := range questions {
		fmt.Printf("\nUser: %s\n", q)
		answer, err := runner.RunTurn(ctx, q, threadID)
		if err != nil {
			logx.Error().Err(err).Msg("Turn failed")
			continue
		}
		fmt.Printf("Assistant: %s\n", answer)
	}
}
