// Package oracle wraps the language model behind a narrow text-completion
// interface. The model is a fallible, opaque collaborator; this package owns
// retries, timeouts, and the distinction between a transport fault and an
// answer the workflow dislikes.
package oracle

import (
	"context"
	"math/rand"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/datachat-core/server/internal/agent/model"
	errx "github.com/datachat-core/server/internal/core/error"
	"github.com/datachat-core/server/internal/metrics"
	logx "github.com/datachat-core/server/pkg/logger"
)

// Completer is the capability the workflow nodes depend on: one prompt in,
// trimmed completion text out. Errors returned from Complete carry the
// oracle fault kind (errx.IsOracleFault).
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

const baseBackoff = 200 * time.Millisecond

// Client adapts an Eino chat model to the Completer capability with bounded
// retries and a per-call timeout.
type Client struct {
	cm         einomodel.BaseChatModel
	modelName  string
	maxRetries int
	timeout    time.Duration
}

func NewClient(cm einomodel.BaseChatModel, modelName string, cfg model.OracleConfig) (*Client, error) {
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return nil, err
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &Client{
		cm:         cm,
		modelName:  modelName,
		maxRetries: retries,
		timeout:    timeout,
	}, nil
}

func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	msgs := []*schema.Message{schema.UserMessage(prompt)}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				metrics.OracleRequestsTotal.WithLabelValues(c.modelName, "error").Inc()
				return "", errx.WrapOracle(ctx.Err())
			case <-time.After(jitteredBackoff(attempt)):
			}
		}

		out, err := c.generate(ctx, msgs)
		if err == nil {
			metrics.OracleRequestsTotal.WithLabelValues(c.modelName, "ok").Inc()
			c.logUsage(out)
			return strings.TrimSpace(out.Content), nil
		}

		lastErr = err
		logx.Warn().Err(err).Str("model", c.modelName).Int("attempt", attempt+1).Msg("oracle call failed")
		if ctx.Err() != nil {
			break
		}
	}

	metrics.OracleRequestsTotal.WithLabelValues(c.modelName, "error").Inc()
	return "", errx.WrapOracle(lastErr)
}

func (c *Client) generate(ctx context.Context, msgs []*schema.Message) (*schema.Message, error) {
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := c.cm.Generate(callCtx, msgs)
	metrics.OracleRequestDuration.WithLabelValues(c.modelName).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, context.Canceled
	}
	return out, nil
}

func (c *Client) logUsage(out *schema.Message) {
	if out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		return
	}
	usage := out.ResponseMeta.Usage
	pricing := model.ResolvePricing(c.modelName)
	inC, outC, totalC := model.ComputeCost(usage, pricing)
	logx.Debug().
		Str("model", c.modelName).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Int("total_tokens", usage.TotalTokens).
		Float64("input_cost_usd", inC).
		Float64("output_cost_usd", outC).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")
}

func jitteredBackoff(attempt int) time.Duration {
	backoff := baseBackoff << (attempt - 1)
	return backoff + time.Duration(rand.Int63n(int64(baseBackoff)))
}
