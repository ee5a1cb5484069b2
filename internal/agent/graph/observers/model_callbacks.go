package observers

import (
	"context"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	callbacksHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/datachat-core/server/pkg/logger"
)

func newModelCallbacks() *callbacksHelper.ModelCallbackHandler {
	return &callbacksHelper.ModelCallbackHandler{
		OnStart: func(ctx context.Context, runInfo *callbacks.RunInfo, input *model.CallbackInput) context.Context {
			logx.Debug().
				Str("node", runInfo.Name).
				Int("messages", len(input.Messages)).
				Msg("Chat model call started")
			return ctx
		},
		OnEnd: func(ctx context.Context, runInfo *callbacks.RunInfo, output *model.CallbackOutput) context.Context {
			ev := logx.Debug().Str("node", runInfo.Name)
			if output.TokenUsage != nil {
				ev = ev.
					Int("prompt_tokens", output.TokenUsage.PromptTokens).
					Int("completion_tokens", output.TokenUsage.CompletionTokens).
					Int("total_tokens", output.TokenUsage.TotalTokens)
			}
			ev.Msg("Chat model call finished")
			return ctx
		},
		OnError: func(ctx context.Context, runInfo *callbacks.RunInfo, err error) context.Context {
			logx.Error().Err(err).Str("node", runInfo.Name).Msg("Chat model call failed")
			return ctx
		},
	}
}
