package graph

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/cloudwego/eino/compose"

	"github.com/datachat-core/server/internal/agent/graph/observers"
	"github.com/datachat-core/server/internal/agent/model"
	logx "github.com/datachat-core/server/pkg/logger"
)

// Runner executes one conversational turn at a time. Turns on the same
// thread are serialized so history reads and writes never interleave;
// different threads run concurrently.
type Runner interface {
	RunTurn(ctx context.Context, question, threadID string) (string, error)
}

type workflowRunner struct {
	runnable compose.Runnable[model.TurnInput, string]

	mu      sync.Mutex
	threads map[string]*sync.Mutex
}

func newRunner(runnable compose.Runnable[model.TurnInput, string]) *workflowRunner {
	return &workflowRunner{
		runnable: runnable,
		threads:  make(map[string]*sync.Mutex),
	}
}

func (r *workflowRunner) RunTurn(ctx context.Context, question, threadID string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", errors.New("question must not be empty")
	}
	if threadID == "" {
		return "", errors.New("thread id must not be empty")
	}

	lock := r.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	logx.Debug().Str("thread_id", threadID).Str("question", question).Msg("Turn started")

	answer, err := r.runnable.Invoke(ctx,
		model.TurnInput{ThreadID: threadID, Question: question},
		compose.WithCallbacks(observers.NewAllCallbacks()),
	)
	if err != nil {
		logx.Error().Err(err).Str("thread_id", threadID).Msg("Turn failed")
		return "", err
	}
	return answer, nil
}

func (r *workflowRunner) threadLock(threadID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.threads[threadID]
	if !ok {
		lock = &sync.Mutex{}
		r.threads[threadID] = lock
	}
	return lock
}
