package observers

import (
	"github.com/cloudwego/eino/callbacks"
	callbacksHelper "github.com/cloudwego/eino/utils/callbacks"
)

// NewAllCallbacks aggregates the prompt and chat-model handlers into a single
// callbacks handler that is attached to every graph invocation.
func NewAllCallbacks() callbacks.Handler {
	return callbacksHelper.NewHandlerHelper().
		ChatModel(newModelCallbacks()).
		Prompt(newPromptCallbacks()).
		Handler()
}
