package conversations

import (
	"context"
	"strings"
	"time"

	"github.com/datachat-core/server/internal/agent/model"
)

// HistoryManager mediates between workflow nodes and the thread repository:
// it renders recent history for prompts and appends completed exchanges.
type HistoryManager struct {
	repo     model.ThreadRepository
	maxTurns int
}

func NewHistoryManager(repo model.ThreadRepository, cfg model.WorkflowConfig) *HistoryManager {
	return &HistoryManager{
		repo:     repo,
		maxTurns: cfg.HistoryTurns,
	}
}

// RenderRecent renders the last maxTurns exchanges as User:/Assistant: lines
// for prompt embedding. Stored history stays unbounded; only rendering trims.
func (hm *HistoryManager) RenderRecent(ctx context.Context, threadID string) (string, error) {
	history, err := hm.repo.LoadHistory(ctx, threadID)
	if err != nil {
		return "", err
	}

	recent := trimTail(history.Exchanges, hm.maxTurns)
	var b strings.Builder
	for _, ex := range recent {
		b.WriteString("User: " + ex.Question + "\n")
		b.WriteString("Assistant: " + ex.Answer + "\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// AppendExchange records a finished (question, answer) pair for the thread.
func (hm *HistoryManager) AppendExchange(ctx context.Context, threadID, question, answer string) error {
	return hm.repo.AppendExchange(ctx, threadID, model.Exchange{
		Question: question,
		Answer:   answer,
		AskedAt:  time.Now().UTC(),
	})
}

// ExchangeCount exposes the stored history length for a thread.
func (hm *HistoryManager) ExchangeCount(ctx context.Context, threadID string) (int, error) {
	return hm.repo.ExchangeCount(ctx, threadID)
}

// ====================== Helper function ======================
func trimTail(exchanges []model.Exchange, maxTurns int) []model.Exchange {
	if maxTurns <= 0 || len(exchanges) <= maxTurns {
		return exchanges
	}
	return exchanges[len(exchanges)-maxTurns:]
}
