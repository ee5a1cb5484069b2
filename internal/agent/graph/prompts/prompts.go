// Package prompts renders the workflow's oracle instructions from embedded
// templates. Rendering goes through the Eino prompt component so prompt
// callbacks fire on every render.
package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed template/interpret_prompt.txt
var interpretPrompt string

//go:embed template/relevance_prompt.txt
var relevancePrompt string

//go:embed template/generate_prompt.txt
var generatePrompt string

//go:embed template/grade_prompt.txt
var gradePrompt string

//go:embed template/transform_prompt.txt
var transformPrompt string

//go:embed template/format_prompt.txt
var formatPrompt string

func render(ctx context.Context, tplText string, vars map[string]any) (string, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(tplText),
	)
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("prompt render: empty result")
	}
	return msgs[0].Content, nil
}

// RenderInterpret builds the question-rewrite prompt.
func RenderInterpret(ctx context.Context, history, question, schemaSummary, description string) (string, error) {
	return render(ctx, interpretPrompt, map[string]any{
		"History":     history,
		"Question":    question,
		"Schema":      schemaSummary,
		"Description": description,
	})
}

// RenderRelevance builds the schema-relevance check prompt.
func RenderRelevance(ctx context.Context, question, columns, history, description string) (string, error) {
	return render(ctx, relevancePrompt, map[string]any{
		"Question":    question,
		"Columns":     columns,
		"History":     history,
		"Description": description,
	})
}

// RenderGenerate builds the initial query plan prompt.
func RenderGenerate(ctx context.Context, question, schemaSummary, description string) (string, error) {
	return render(ctx, generatePrompt, map[string]any{
		"Question":    question,
		"Schema":      schemaSummary,
		"Description": description,
	})
}

// RenderGrade builds the result grading prompt.
func RenderGrade(ctx context.Context, question, result string) (string, error) {
	return render(ctx, gradePrompt, map[string]any{
		"Question": question,
		"Result":   result,
	})
}

// RenderTransform builds the plan revision prompt after a failed attempt.
func RenderTransform(ctx context.Context, question, previousQuery, previousResult, schemaSummary, description string) (string, error) {
	return render(ctx, transformPrompt, map[string]any{
		"Question":       question,
		"PreviousQuery":  previousQuery,
		"PreviousResult": previousResult,
		"Schema":         schemaSummary,
		"Description":    description,
	})
}

// RenderFormat builds the user-facing answer formatting prompt.
func RenderFormat(ctx context.Context, question, result, sample, description string) (string, error) {
	return render(ctx, formatPrompt, map[string]any{
		"Question":    question,
		"Result":      result,
		"Sample":      sample,
		"Description": description,
	})
}
