package graph

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datachat-core/server/internal/agent/dataset"
	"github.com/datachat-core/server/internal/agent/graph/conversations"
	"github.com/datachat-core/server/internal/agent/model"
	"github.com/datachat-core/server/internal/agent/repo"
)

// prompt markers, one distinctive phrase per template
const (
	markInterpret = "rephrase each question"
	markRelevance = "determine if the question can be answered"
	markGenerate  = "Given the question:"
	markGrade     = "expert grader"
	markTransform = "Original question:"
	markFormat    = "formats answers"
)

// scriptedOracle serves scripted completions classified by prompt content.
// It stands in for both the analyst and the responder.
type scriptedOracle struct {
	mu sync.Mutex

	interpret string
	relevance string
	plans     []string // first serves generate, the rest successive transforms
	grades    []string
	format    string

	failOn string // prompts containing this marker return a transport error

	planCalls      int
	transformCalls int
	gradeCalls     int
	prompts        []string
}

func (o *scriptedOracle) Complete(_ context.Context, prompt string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prompts = append(o.prompts, prompt)

	if o.failOn != "" && strings.Contains(prompt, o.failOn) {
		return "", errors.New("oracle transport down")
	}

	switch {
	case strings.Contains(prompt, markInterpret):
		return o.interpret, nil
	case strings.Contains(prompt, markRelevance):
		return o.relevance, nil
	case strings.Contains(prompt, markGrade):
		g := pick(o.grades, o.gradeCalls)
		o.gradeCalls++
		return g, nil
	case strings.Contains(prompt, markTransform):
		o.transformCalls++
		p := pick(o.plans, o.planCalls)
		o.planCalls++
		return p, nil
	case strings.Contains(prompt, markGenerate):
		p := pick(o.plans, o.planCalls)
		o.planCalls++
		return p, nil
	case strings.Contains(prompt, markFormat):
		return o.format, nil
	}
	return "", errors.New("unrecognized prompt")
}

func pick(s []string, i int) string {
	if len(s) == 0 {
		return ""
	}
	if i >= len(s) {
		return s[len(s)-1]
	}
	return s[i]
}

func testDataset(t *testing.T) *dataset.Context {
	t.Helper()
	tbl := dataset.NewTable(
		[]string{"date", "region", "sales"},
		[][]string{
			{"2024-01-15", "North", "1200"},
			{"2024-03-05", "South", "1105"},
			{"2024-03-12", "West", "720"},
			{"2024-03-27", "North", "1580"},
		},
	)
	return dataset.NewContext("sales", tbl, "Monthly sales per region")
}

func buildTestRunner(t *testing.T, o *scriptedOracle, cfg model.WorkflowConfig) (Runner, *repo.MemoryThreadRepository) {
	t.Helper()
	store := repo.NewMemoryThreadRepository()
	runnable, err := BuildGraph(context.Background(), &GraphConfig{
		Analyst:   o,
		Responder: o,
		History:   conversations.NewHistoryManager(store, cfg),
		Dataset:   testDataset(t),
		Workflow:  cfg,
	})
	require.NoError(t, err)
	return newRunner(runnable), store
}

func defaultWorkflowConfig() model.WorkflowConfig {
	return model.WorkflowConfig{MaxAttempts: 7, NoDataPassAfter: 3, HistoryTurns: 5}
}

func TestTurnAnsweredDirectly(t *testing.T) {
	o := &scriptedOracle{
		interpret: "What were the total sales in March 2024?",
		relevance: "yes",
		plans: []string{`{
			"filter": [
				{"column": "date", "op": "gte", "value": "2024-03-01"},
				{"column": "date", "op": "lt", "value": "2024-04-01"}
			],
			"aggregate": [{"column": "sales", "fn": "sum"}]
		}`},
		grades: []string{"answer"},
		format: "Total sales in March 2024 were 3405.",
	}
	r, store := buildTestRunner(t, o, defaultWorkflowConfig())

	answer, err := r.RunTurn(context.Background(), "what about march?", "t1")
	require.NoError(t, err)
	assert.Equal(t, "Total sales in March 2024 were 3405.", answer)
	assert.Equal(t, 1, o.planCalls)
	assert.Equal(t, 0, o.transformCalls)

	h, err := store.LoadHistory(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, h.Exchanges, 1)
	assert.Equal(t, "what about march?", h.Exchanges[0].Question)
	assert.Equal(t, answer, h.Exchanges[0].Answer)
}

func TestIrrelevantQuestionNeverExecutes(t *testing.T) {
	o := &scriptedOracle{
		interpret: "What is the CEO's favorite color?",
		relevance: "no",
	}
	r, store := buildTestRunner(t, o, defaultWorkflowConfig())

	answer, err := r.RunTurn(context.Background(), "what is the CEO's favorite color?", "t1")
	require.NoError(t, err)

	for _, col := range []string{"date", "region", "sales"} {
		assert.Contains(t, answer, col)
	}
	assert.Contains(t, answer, `"sales"`)
	assert.Equal(t, 0, o.planCalls)

	n, err := store.ExchangeCount(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRelevanceFailsClosed(t *testing.T) {
	o := &scriptedOracle{
		interpret: "Anything",
		relevance: "probably yes",
	}
	r, _ := buildTestRunner(t, o, defaultWorkflowConfig())

	answer, err := r.RunTurn(context.Background(), "anything", "t1")
	require.NoError(t, err)
	assert.Contains(t, answer, "rephrase")
	assert.Equal(t, 0, o.planCalls)
}

func TestNoDataToleratedAfterEnoughAttempts(t *testing.T) {
	o := &scriptedOracle{
		interpret: "Sales on Mars?",
		relevance: "yes",
		plans:     []string{`{"filter": [{"column": "region", "op": "eq", "value": "Mars"}], "select": ["sales"]}`},
		grades:    []string{"no_data"},
		format:    "There are no sales recorded for that region.",
	}
	r, _ := buildTestRunner(t, o, defaultWorkflowConfig())

	answer, err := r.RunTurn(context.Background(), "sales on mars?", "t1")
	require.NoError(t, err)
	assert.Equal(t, "There are no sales recorded for that region.", answer)
	// attempts 0, 1, 2 fail the grade; at attempt 3 the empty result passes
	assert.Equal(t, 3, o.transformCalls)
	assert.Equal(t, 4, o.gradeCalls)
}

func TestGiveUpAfterAttemptCeiling(t *testing.T) {
	o := &scriptedOracle{
		interpret: "Impossible question",
		relevance: "yes",
		plans:     []string{`{"select": ["bogus_column"]}`},
		grades:    []string{"error"},
	}
	r, _ := buildTestRunner(t, o, defaultWorkflowConfig())

	answer, err := r.RunTurn(context.Background(), "impossible", "t1")
	require.NoError(t, err)
	assert.Contains(t, answer, "couldn't produce a reliable result")
	for _, col := range []string{"date", "region", "sales"} {
		assert.Contains(t, answer, col)
	}
	// 7 failing grades; the first 6 loop through transform, the 7th gives up
	assert.Equal(t, 7, o.gradeCalls)
	assert.Equal(t, 6, o.transformCalls)
}

func TestUnknownGradeTokenTreatedAsFailure(t *testing.T) {
	o := &scriptedOracle{
		interpret: "Total sales?",
		relevance: "yes",
		plans:     []string{`{"aggregate": [{"column": "sales", "fn": "sum"}]}`},
		grades:    []string{"maybe", "answer"},
		format:    "Total sales were 4605.",
	}
	r, _ := buildTestRunner(t, o, defaultWorkflowConfig())

	answer, err := r.RunTurn(context.Background(), "total sales?", "t1")
	require.NoError(t, err)
	assert.Equal(t, "Total sales were 4605.", answer)
	assert.Equal(t, 1, o.transformCalls)
}

func TestOracleFaultRoutesToGiveUp(t *testing.T) {
	o := &scriptedOracle{
		interpret: "Total sales?",
		failOn:    markRelevance,
	}
	r, store := buildTestRunner(t, o, defaultWorkflowConfig())

	answer, err := r.RunTurn(context.Background(), "total sales?", "t1")
	require.NoError(t, err)
	assert.Contains(t, answer, "couldn't produce a reliable result")
	assert.Equal(t, 0, o.planCalls)

	// the failed turn is still recorded so the user can retry with context
	n, err := store.ExchangeCount(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFormatFaultDegradesToRawResult(t *testing.T) {
	o := &scriptedOracle{
		interpret: "Total sales?",
		relevance: "yes",
		plans:     []string{`{"aggregate": [{"column": "sales", "fn": "sum"}]}`},
		grades:    []string{"answer"},
		failOn:    markFormat,
	}
	r, _ := buildTestRunner(t, o, defaultWorkflowConfig())

	answer, err := r.RunTurn(context.Background(), "total sales?", "t1")
	require.NoError(t, err)
	assert.Equal(t, "4605", answer)
}

func TestInterpretFaultDegradesToRawQuestion(t *testing.T) {
	o := &scriptedOracle{
		relevance: "yes",
		plans:     []string{`{"aggregate": [{"column": "sales", "fn": "count"}]}`},
		grades:    []string{"answer"},
		format:    "There are 4 sales records.",
		failOn:    markInterpret,
	}
	r, _ := buildTestRunner(t, o, defaultWorkflowConfig())

	answer, err := r.RunTurn(context.Background(), "how many sales records are there?", "t1")
	require.NoError(t, err)
	assert.Equal(t, "There are 4 sales records.", answer)

	// the raw question flowed into the relevance prompt unchanged
	var relevancePrompt string
	for _, p := range o.prompts {
		if strings.Contains(p, markRelevance) {
			relevancePrompt = p
		}
	}
	assert.Contains(t, relevancePrompt, "how many sales records are there?")
}

func TestFollowUpSeesHistory(t *testing.T) {
	o := &scriptedOracle{
		interpret: "Total sales in the North region?",
		relevance: "yes",
		plans: []string{`{
			"filter": [{"column": "region", "op": "eq", "value": "North"}],
			"aggregate": [{"column": "sales", "fn": "sum"}]
		}`},
		grades: []string{"answer"},
		format: "North region sales total 2780.",
	}
	r, _ := buildTestRunner(t, o, defaultWorkflowConfig())
	ctx := context.Background()

	_, err := r.RunTurn(ctx, "total sales in the north?", "t1")
	require.NoError(t, err)

	o.mu.Lock()
	o.prompts = nil
	o.mu.Unlock()

	_, err = r.RunTurn(ctx, "and what about last month?", "t1")
	require.NoError(t, err)

	var interpretPrompt string
	for _, p := range o.prompts {
		if strings.Contains(p, markInterpret) {
			interpretPrompt = p
		}
	}
	assert.Contains(t, interpretPrompt, "User: total sales in the north?")
	assert.Contains(t, interpretPrompt, "Assistant: North region sales total 2780.")
}

func TestFaultDuringGenerationSkipsGrading(t *testing.T) {
	o := &scriptedOracle{
		interpret: "Total sales?",
		relevance: "yes",
		failOn:    markGenerate,
	}
	r, _ := buildTestRunner(t, o, defaultWorkflowConfig())

	answer, err := r.RunTurn(context.Background(), "total sales?", "t1")
	require.NoError(t, err)
	assert.Contains(t, answer, "couldn't produce a reliable result")
	// the fault flag short-circuits grading; no grade prompt is ever sent
	assert.Equal(t, 0, o.gradeCalls)
	assert.Equal(t, 0, o.transformCalls)
}

func TestZeroConfigFallsBackToDefaults(t *testing.T) {
	o := &scriptedOracle{
		interpret: "Sales on Mars?",
		relevance: "yes",
		plans:     []string{`{"filter": [{"column": "region", "op": "eq", "value": "Mars"}], "select": ["sales"]}`},
		grades:    []string{"no_data"},
		format:    "There are no sales recorded for that region.",
	}
	r, _ := buildTestRunner(t, o, model.WorkflowConfig{})

	answer, err := r.RunTurn(context.Background(), "sales on mars?", "t1")
	require.NoError(t, err)
	assert.Equal(t, "There are no sales recorded for that region.", answer)
	// a zero config still means tolerance from attempt 3, not attempt 0
	assert.Equal(t, 3, o.transformCalls)
	assert.Equal(t, 4, o.gradeCalls)
}

func TestRunTurnValidatesInput(t *testing.T) {
	o := &scriptedOracle{relevance: "no", interpret: "x"}
	r, _ := buildTestRunner(t, o, defaultWorkflowConfig())
	ctx := context.Background()

	_, err := r.RunTurn(ctx, "   ", "t1")
	assert.Error(t, err)

	_, err = r.RunTurn(ctx, "question", "")
	assert.Error(t, err)
}

func TestBuildGraphValidatesConfig(t *testing.T) {
	_, err := BuildGraph(context.Background(), &GraphConfig{})
	assert.Error(t, err)
}
