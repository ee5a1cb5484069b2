package repo

import (
	"context"
	"sync"

	"github.com/datachat-core/server/internal/agent/model"
)

// MemoryThreadRepository is an in-process history store for tests and
// single-process runs. It is an explicit handle, not module-level state, so
// each test or caller scopes its own instance.
type MemoryThreadRepository struct {
	mu      sync.RWMutex
	threads map[string][]model.Exchange
}

func NewMemoryThreadRepository() *MemoryThreadRepository {
	return &MemoryThreadRepository{threads: make(map[string][]model.Exchange)}
}

func (r *MemoryThreadRepository) AppendExchange(_ context.Context, threadID string, ex model.Exchange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.threads[threadID] = append(r.threads[threadID], ex)
	return nil
}

func (r *MemoryThreadRepository) LoadHistory(_ context.Context, threadID string) (*model.ThreadHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored := r.threads[threadID]
	exs := make([]model.Exchange, len(stored))
	copy(exs, stored)
	return &model.ThreadHistory{ThreadID: threadID, Exchanges: exs}, nil
}

func (r *MemoryThreadRepository) ClearHistory(_ context.Context, threadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.threads, threadID)
	return nil
}

func (r *MemoryThreadRepository) ExchangeCount(_ context.Context, threadID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.threads[threadID]), nil
}

var _ model.ThreadRepository = (*MemoryThreadRepository)(nil)
