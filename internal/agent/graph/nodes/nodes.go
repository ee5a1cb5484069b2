package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"

	"github.com/datachat-core/server/internal/agent/dataset"
	"github.com/datachat-core/server/internal/agent/executor"
	"github.com/datachat-core/server/internal/agent/graph/conversations"
	"github.com/datachat-core/server/internal/agent/graph/oracle"
	"github.com/datachat-core/server/internal/agent/graph/prompts"
	"github.com/datachat-core/server/internal/agent/model"
	"github.com/datachat-core/server/internal/metrics"
	logx "github.com/datachat-core/server/pkg/logger"
)

// Node names. Edges between them are declared in graph.go and validated when
// the graph compiles.
const (
	NodeInterpretQuestion = "interpret_question"
	NodeCheckRelevance    = "check_relevance"
	NodeGenerateQuery     = "generate_query"
	NodeExecuteQuery      = "execute_query"
	NodeGradeResponse     = "grade_response"
	NodeTransformQuery    = "transform_query"
	NodeFormatResponse    = "format_response"
	NodeIrrelevant        = "irrelevant"
	NodeGiveUp            = "give_up"
)

// Terminal outcome labels for metrics.
const (
	OutcomeAnswered   = "answered"
	OutcomeIrrelevant = "irrelevant"
	OutcomeGaveUp     = "gave_up"
)

// grading classification tokens; anything else is treated as classError
// (fail closed).
const (
	affirmativeToken = "yes"
	classAnswer      = "answer"
	classNoData      = "no_data"
	classError       = "error"
)

// Deps bundles the collaborators node lambdas close over.
type Deps struct {
	Analyst   oracle.Completer
	Responder oracle.Completer
	History   *conversations.HistoryManager
	Dataset   *dataset.Context
	Executor  *executor.Executor
	Workflow  model.WorkflowConfig
}

// NewInterpretPreHandler resets per-turn state fields before the first node
// runs.
func NewInterpretPreHandler() func(context.Context, model.TurnInput, *model.WorkflowState) (model.TurnInput, error) {
	return func(ctx context.Context, in model.TurnInput, s *model.WorkflowState) (model.TurnInput, error) {
		s.ThreadID = in.ThreadID
		s.RawQuestion = in.Question
		s.StandaloneQuestion = ""
		s.IsRelevant = false
		s.CurrentQuery = ""
		s.CurrentResult = ""
		s.Grade = model.GradePending
		s.Attempts = 0
		s.FinalAnswer = ""
		s.OracleFault = false
		return in, nil
	}
}

// NewInterpretNode rewrites the raw question into a standalone one using the
// recent thread history. On an oracle fault it degrades to the raw question
// so the turn can still proceed.
func NewInterpretNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.TurnInput) (string, error) {
		history, err := d.History.RenderRecent(ctx, in.ThreadID)
		if err != nil {
			return "", fmt.Errorf("load thread history: %w", err)
		}

		prompt, err := prompts.RenderInterpret(ctx, history, in.Question, d.Dataset.SchemaSummary(), d.Dataset.Description)
		if err != nil {
			return "", err
		}

		standalone, err := d.Responder.Complete(ctx, prompt)
		if err != nil || standalone == "" {
			logx.Warn().Err(err).Str("thread_id", in.ThreadID).Msg("interpret degraded to raw question")
			standalone = in.Question
		}

		err = compose.ProcessState(ctx, func(_ context.Context, s *model.WorkflowState) error {
			s.StandaloneQuestion = standalone
			return nil
		})
		if err != nil {
			return "", err
		}

		logx.Debug().Str("thread_id", in.ThreadID).Str("standalone_question", standalone).Msg("Interpreted question")
		return standalone, nil
	})
}

// NewRelevanceNode asks the analyst whether the standalone question is
// answerable against the dataset columns. Only an exact affirmative counts;
// everything else, including a surfaced oracle fault, fails closed.
func NewRelevanceNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, standalone string) (string, error) {
		history, err := d.History.RenderRecent(ctx, threadIDFromState(ctx))
		if err != nil {
			return "", fmt.Errorf("load thread history: %w", err)
		}

		columns := strings.Join(d.Dataset.Table.ColumnNames(), ", ")
		prompt, err := prompts.RenderRelevance(ctx, standalone, columns, history, d.Dataset.Description)
		if err != nil {
			return "", err
		}

		resp, oerr := d.Analyst.Complete(ctx, prompt)
		relevant := oerr == nil && normalizeToken(resp) == affirmativeToken

		err = compose.ProcessState(ctx, func(_ context.Context, s *model.WorkflowState) error {
			s.IsRelevant = relevant
			if oerr != nil {
				s.OracleFault = true
			}
			return nil
		})
		if err != nil {
			return "", err
		}

		logx.Debug().Bool("relevant", relevant).Str("question", standalone).Msg("Relevance checked")
		return standalone, nil
	})
}

// NewRelevanceCondition routes after the relevance check: fault to give-up,
// irrelevant to the fixed rephrase answer, otherwise into query generation.
func NewRelevanceCondition() func(context.Context, string) (string, error) {
	return func(ctx context.Context, _ string) (string, error) {
		var fault, relevant bool
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.WorkflowState) error {
			fault = s.OracleFault
			relevant = s.IsRelevant
			return nil
		})
		if err != nil {
			return "", err
		}

		switch {
		case fault:
			logx.Warn().Msg("Oracle fault during relevance check - routing to give up")
			return NodeGiveUp, nil
		case !relevant:
			logx.Debug().Msg("Question not relevant to dataset - routing to irrelevant")
			return NodeIrrelevant, nil
		default:
			return NodeGenerateQuery, nil
		}
	}
}

// NewGenerateQueryNode asks the analyst for the initial query plan.
func NewGenerateQueryNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, standalone string) (string, error) {
		prompt, err := prompts.RenderGenerate(ctx, standalone, d.Dataset.SchemaSummary(), d.Dataset.Description)
		if err != nil {
			return "", err
		}

		plan, oerr := d.Analyst.Complete(ctx, prompt)

		err = compose.ProcessState(ctx, func(_ context.Context, s *model.WorkflowState) error {
			s.CurrentQuery = plan
			if oerr != nil {
				s.OracleFault = true
			}
			return nil
		})
		if err != nil {
			return "", err
		}

		logx.Debug().Str("plan", truncateForLog(plan)).Msg("Generated query plan")
		return plan, nil
	})
}

// NewExecuteQueryNode runs the current plan against the table. The executor
// never raises: faults arrive here as error text and flow into grading.
func NewExecuteQueryNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, plan string) (string, error) {
		result := d.Executor.Run(plan)

		err := compose.ProcessState(ctx, func(_ context.Context, s *model.WorkflowState) error {
			s.CurrentResult = result
			return nil
		})
		if err != nil {
			return "", err
		}

		logx.Debug().Str("result", truncateForLog(result)).Msg("Executed query plan")
		return result, nil
	})
}

// NewGradeNode classifies the current result against the standalone question.
// "no data found" style results are tolerated as a pass once enough attempts
// have been made; a failing grade increments the attempt counter.
func NewGradeNode(d *Deps) *compose.Lambda {
	noDataPassAfter := normalizeNoDataPassAfter(d.Workflow.NoDataPassAfter)
	return compose.InvokableLambda(func(ctx context.Context, result string) (string, error) {
		var fault bool
		var standalone string
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.WorkflowState) error {
			fault = s.OracleFault
			standalone = s.StandaloneQuestion
			return nil
		})
		if err != nil {
			return "", err
		}

		if fault {
			err := compose.ProcessState(ctx, func(_ context.Context, s *model.WorkflowState) error {
				s.Grade = model.GradeFail
				return nil
			})
			if err != nil {
				return "", err
			}
			return result, nil
		}

		prompt, err := prompts.RenderGrade(ctx, standalone, result)
		if err != nil {
			return "", err
		}
		resp, oerr := d.Analyst.Complete(ctx, prompt)
		verdict := normalizeToken(resp)

		err = compose.ProcessState(ctx, func(_ context.Context, s *model.WorkflowState) error {
			if oerr != nil {
				s.OracleFault = true
				s.Grade = model.GradeFail
				return nil
			}

			pass := verdict == classAnswer ||
				(verdict == classNoData && s.Attempts >= noDataPassAfter)
			if pass {
				s.Grade = model.GradePass
			} else {
				s.Grade = model.GradeFail
				s.Attempts++
			}

			logx.Debug().
				Str("verdict", verdict).
				Str("grade", string(s.Grade)).
				Int("attempts", s.Attempts).
				Msg("Graded query result")
			return nil
		})
		if err != nil {
			return "", err
		}
		return result, nil
	})
}

// NewGradeCondition routes after grading: pass to formatting, fail back into
// a transform retry while attempts remain, otherwise give up.
func NewGradeCondition(cfg model.WorkflowConfig) func(context.Context, string) (string, error) {
	maxAttempts := normalizeMaxAttempts(cfg.MaxAttempts)
	return func(ctx context.Context, _ string) (string, error) {
		var fault, pass bool
		var attempts int
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.WorkflowState) error {
			fault = s.OracleFault
			pass = s.Grade == model.GradePass
			attempts = s.Attempts
			return nil
		})
		if err != nil {
			return "", err
		}

		switch {
		case fault:
			logx.Warn().Msg("Oracle fault during grading - routing to give up")
			return NodeGiveUp, nil
		case pass:
			return NodeFormatResponse, nil
		case attempts >= maxAttempts:
			logx.Debug().Int("attempts", attempts).Msg("Attempt ceiling reached - routing to give up")
			return NodeGiveUp, nil
		default:
			return NodeTransformQuery, nil
		}
	}
}

// NewTransformQueryNode revises the plan using the failed attempt as context,
// then loops back into execution.
func NewTransformQueryNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, result string) (string, error) {
		var standalone, previousQuery string
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.WorkflowState) error {
			standalone = s.StandaloneQuestion
			previousQuery = s.CurrentQuery
			return nil
		})
		if err != nil {
			return "", err
		}

		prompt, err := prompts.RenderTransform(ctx, standalone, previousQuery, result, d.Dataset.SchemaSummary(), d.Dataset.Description)
		if err != nil {
			return "", err
		}

		plan, oerr := d.Analyst.Complete(ctx, prompt)

		err = compose.ProcessState(ctx, func(_ context.Context, s *model.WorkflowState) error {
			s.CurrentQuery = plan
			if oerr != nil {
				s.OracleFault = true
			}
			return nil
		})
		if err != nil {
			return "", err
		}

		logx.Debug().Str("plan", truncateForLog(plan)).Msg("Transformed query plan")
		return plan, nil
	})
}

// NewFormatResponseNode phrases the graded result for the user. On an oracle
// fault the raw result is returned as-is; it already passed grading.
func NewFormatResponseNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, result string) (string, error) {
		var rawQuestion string
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.WorkflowState) error {
			rawQuestion = s.RawQuestion
			return nil
		})
		if err != nil {
			return "", err
		}

		prompt, err := prompts.RenderFormat(ctx, rawQuestion, result, d.Dataset.HeadSample(), d.Dataset.Description)
		if err != nil {
			return "", err
		}

		answer, oerr := d.Responder.Complete(ctx, prompt)
		if oerr != nil || answer == "" {
			logx.Warn().Err(oerr).Msg("format degraded to raw result")
			answer = result
		}
		return answer, nil
	})
}

// NewIrrelevantNode produces the fixed answer for questions the dataset
// cannot serve. No oracle call is made and no query is ever executed.
func NewIrrelevantNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ string) (string, error) {
		answer := fmt.Sprintf(
			"I couldn't relate your question to the selected dataset %q. It has these columns: %s. Please rephrase your question or select a different dataset.",
			d.Dataset.Name,
			strings.Join(d.Dataset.Table.ColumnNames(), ", "),
		)
		return answer, nil
	})
}

// NewGiveUpNode produces the fixed apology after exhausted retries or a
// surfaced oracle fault.
func NewGiveUpNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ string) (string, error) {
		answer := fmt.Sprintf(
			"I'm sorry, I tried several ways to answer but couldn't produce a reliable result from the dataset %q. It has these columns: %s. Please try rephrasing your question.",
			d.Dataset.Name,
			strings.Join(d.Dataset.Table.ColumnNames(), ", "),
		)
		return answer, nil
	})
}

// NewFinalizePostHandler runs on every terminal node: it sets the final
// answer exactly once, appends the exchange to the thread history, and
// records turn metrics. History write failures are logged, not fatal; the
// user still gets their answer.
func NewFinalizePostHandler(d *Deps, outcome string) func(context.Context, string, *model.WorkflowState) (string, error) {
	return func(ctx context.Context, answer string, s *model.WorkflowState) (string, error) {
		s.FinalAnswer = answer

		if err := d.History.AppendExchange(ctx, s.ThreadID, s.RawQuestion, answer); err != nil {
			logx.Error().Err(err).Str("thread_id", s.ThreadID).Msg("Error saving exchange to thread history")
		}

		metrics.TurnsTotal.WithLabelValues(outcome).Inc()
		metrics.QueryAttempts.Observe(float64(s.Attempts))

		logx.Debug().
			Str("thread_id", s.ThreadID).
			Str("outcome", outcome).
			Int("attempts", s.Attempts).
			Msg("Turn finished")
		return answer, nil
	}
}
