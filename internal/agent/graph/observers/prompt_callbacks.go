package observers

import (
	"context"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/prompt"
	callbacksHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/datachat-core/server/pkg/logger"
)

func newPromptCallbacks() *callbacksHelper.PromptCallbackHandler {
	return &callbacksHelper.PromptCallbackHandler{
		OnStart: func(ctx context.Context, runInfo *callbacks.RunInfo, input *prompt.CallbackInput) context.Context {
			logx.Debug().
				Str("node", runInfo.Name).
				Int("variables", len(input.Variables)).
				Msg("Prompt rendering started")
			return ctx
		},
		OnEnd: func(ctx context.Context, runInfo *callbacks.RunInfo, output *prompt.CallbackOutput) context.Context {
			logx.Debug().
				Str("node", runInfo.Name).
				Int("messages", len(output.Result)).
				Msg("Prompt rendering finished")
			return ctx
		},
		OnError: func(ctx context.Context, runInfo *callbacks.RunInfo, err error) context.Context {
			logx.Error().Err(err).Str("node", runInfo.Name).Msg("Prompt rendering failed")
			return ctx
		},
	}
}
