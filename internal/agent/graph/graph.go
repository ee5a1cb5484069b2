package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/compose"

	"github.com/datachat-core/server/internal/agent/dataset"
	"github.com/datachat-core/server/internal/agent/executor"
	"github.com/datachat-core/server/internal/agent/graph/conversations"
	"github.com/datachat-core/server/internal/agent/graph/nodes"
	"github.com/datachat-core/server/internal/agent/graph/oracle"
	"github.com/datachat-core/server/internal/agent/model"
	logx "github.com/datachat-core/server/pkg/logger"
)

// Config wires a full workflow from external configuration: API credentials,
// the two chat-model configs, the retry policy, a thread repository, and the
// dataset the turn will run against.
type Config struct {
	APIKey     string
	BaseURL    string
	Analyst    model.AnalystModelConfig
	Responder  model.ResponderModelConfig
	Oracle     model.OracleConfig
	Workflow   model.WorkflowConfig
	ThreadRepo model.ThreadRepository
	Dataset    *dataset.Context
}

// GraphConfig is the compiled-graph level configuration. Tests construct it
// directly with scripted completers; BuildQueryWorkflow builds it from Config
// with real Gemini-backed clients.
type GraphConfig struct {
	Analyst   oracle.Completer
	Responder oracle.Completer
	History   *conversations.HistoryManager
	Dataset   *dataset.Context
	Workflow  model.WorkflowConfig
}

// BuildQueryWorkflow constructs the Gemini models, wires the node
// dependencies, compiles the graph, and returns a thread-safe Runner.
func BuildQueryWorkflow(ctx context.Context, cfg Config) (Runner, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("api key is required")
	}
	if cfg.ThreadRepo == nil {
		return nil, errors.New("thread repository is required")
	}
	if cfg.Dataset == nil {
		return nil, errors.New("dataset is required")
	}

	models, err := oracle.NewGeminiModels(ctx, oracle.ModelsConfig{
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		Analyst:   &cfg.Analyst,
		Responder: &cfg.Responder,
	})
	if err != nil {
		return nil, err
	}

	analyst, err := oracle.NewClient(models.Analyst, models.AnalystModelName, cfg.Oracle)
	if err != nil {
		return nil, err
	}
	responder, err := oracle.NewClient(models.Responder, models.ResponderModelName, cfg.Oracle)
	if err != nil {
		return nil, err
	}

	runnable, err := BuildGraph(ctx, &GraphConfig{
		Analyst:   analyst,
		Responder: responder,
		History:   conversations.NewHistoryManager(cfg.ThreadRepo, cfg.Workflow),
		Dataset:   cfg.Dataset,
		Workflow:  cfg.Workflow,
	})
	if err != nil {
		return nil, err
	}

	return newRunner(runnable), nil
}

// BuildGraph assembles and compiles the query workflow graph. Every edge and
// branch target is declared explicitly; an unreachable or dangling node fails
// compilation rather than surfacing at run time.
func BuildGraph(ctx context.Context, cfg *GraphConfig) (compose.Runnable[model.TurnInput, string], error) {
	if cfg.Analyst == nil || cfg.Responder == nil {
		return nil, errors.New("both analyst and responder completers are required")
	}
	if cfg.History == nil {
		return nil, errors.New("history manager is required")
	}
	if cfg.Dataset == nil {
		return nil, errors.New("dataset is required")
	}

	b := &graphBuilder{
		graph: compose.NewGraph[model.TurnInput, string](
			compose.WithGenLocalState(func(ctx context.Context) *model.WorkflowState {
				return &model.WorkflowState{}
			}),
		),
		deps: &nodes.Deps{
			Analyst:   cfg.Analyst,
			Responder: cfg.Responder,
			History:   cfg.History,
			Dataset:   cfg.Dataset,
			Executor:  executor.New(cfg.Dataset.Table),
			Workflow:  cfg.Workflow,
		},
	}

	if err := b.addNodes(); err != nil {
		return nil, fmt.Errorf("error adding graph nodes: %w", err)
	}
	if err := b.addEdges(); err != nil {
		return nil, fmt.Errorf("error adding graph edges: %w", err)
	}
	if err := b.addBranches(); err != nil {
		return nil, fmt.Errorf("error adding graph branches: %w", err)
	}
	return b.compile(ctx)
}

type graphBuilder struct {
	graph *compose.Graph[model.TurnInput, string]
	deps  *nodes.Deps
}

func (b *graphBuilder) addNodes() error {
	d := b.deps

	if err := b.graph.AddLambdaNode(nodes.NodeInterpretQuestion, nodes.NewInterpretNode(d),
		compose.WithStatePreHandler(nodes.NewInterpretPreHandler())); err != nil {
		return err
	}
	if err := b.graph.AddLambdaNode(nodes.NodeCheckRelevance, nodes.NewRelevanceNode(d)); err != nil {
		return err
	}
	if err := b.graph.AddLambdaNode(nodes.NodeGenerateQuery, nodes.NewGenerateQueryNode(d)); err != nil {
		return err
	}
	if err := b.graph.AddLambdaNode(nodes.NodeExecuteQuery, nodes.NewExecuteQueryNode(d)); err != nil {
		return err
	}
	if err := b.graph.AddLambdaNode(nodes.NodeGradeResponse, nodes.NewGradeNode(d)); err != nil {
		return err
	}
	if err := b.graph.AddLambdaNode(nodes.NodeTransformQuery, nodes.NewTransformQueryNode(d)); err != nil {
		return err
	}
	if err := b.graph.AddLambdaNode(nodes.NodeFormatResponse, nodes.NewFormatResponseNode(d),
		compose.WithStatePostHandler(nodes.NewFinalizePostHandler(d, nodes.OutcomeAnswered))); err != nil {
		return err
	}
	if err := b.graph.AddLambdaNode(nodes.NodeIrrelevant, nodes.NewIrrelevantNode(d),
		compose.WithStatePostHandler(nodes.NewFinalizePostHandler(d, nodes.OutcomeIrrelevant))); err != nil {
		return err
	}
	if err := b.graph.AddLambdaNode(nodes.NodeGiveUp, nodes.NewGiveUpNode(d),
		compose.WithStatePostHandler(nodes.NewFinalizePostHandler(d, nodes.OutcomeGaveUp))); err != nil {
		return err
	}
	return nil
}

func (b *graphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeInterpretQuestion},
		{nodes.NodeInterpretQuestion, nodes.NodeCheckRelevance},
		{nodes.NodeGenerateQuery, nodes.NodeExecuteQuery},
		{nodes.NodeExecuteQuery, nodes.NodeGradeResponse},
		{nodes.NodeTransformQuery, nodes.NodeExecuteQuery},
		{nodes.NodeFormatResponse, compose.END},
		{nodes.NodeIrrelevant, compose.END},
		{nodes.NodeGiveUp, compose.END},
	}
	for _, e := range edges {
		if err := b.graph.AddEdge(e[0], e[1]); err != nil {
			return fmt.Errorf("edge %s -> %s: %w", e[0], e[1], err)
		}
	}
	return nil
}

func (b *graphBuilder) addBranches() error {
	relevanceBranch := compose.NewGraphBranch(nodes.NewRelevanceCondition(), map[string]bool{
		nodes.NodeGenerateQuery: true,
		nodes.NodeIrrelevant:    true,
		nodes.NodeGiveUp:        true,
	})
	if err := b.graph.AddBranch(nodes.NodeCheckRelevance, relevanceBranch); err != nil {
		return err
	}

	gradeBranch := compose.NewGraphBranch(nodes.NewGradeCondition(b.deps.Workflow), map[string]bool{
		nodes.NodeFormatResponse: true,
		nodes.NodeTransformQuery: true,
		nodes.NodeGiveUp:         true,
	})
	return b.graph.AddBranch(nodes.NodeGradeResponse, gradeBranch)
}

func (b *graphBuilder) compile(ctx context.Context) (compose.Runnable[model.TurnInput, string], error) {
	maxSteps := maxRunSteps(b.deps.Workflow.MaxAttempts)
	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxSteps))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling workflow graph")
		return nil, fmt.Errorf("error compiling workflow graph: %w", err)
	}
	logx.Info().Int("max_run_steps", maxSteps).Msg("Workflow graph compiled")
	return runnable, nil
}

// maxRunSteps leaves headroom for the retry loop: each failed attempt adds a
// transform, execute, and grade step on top of the fixed prologue and
// epilogue nodes.
func maxRunSteps(maxAttempts int) int {
	if maxAttempts <= 0 {
		maxAttempts = 7
	}
	steps := 10 + maxAttempts*3
	if steps < 20 {
		steps = 20
	}
	return steps
}
