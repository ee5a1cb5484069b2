package model

import (
	"context"
	"time"
)

// Exchange is one completed (question, answer) pair within a thread.
// Exchanges are immutable once appended.
type Exchange struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	AskedAt  time.Time `json:"asked_at"`
}

// ThreadHistory represents loaded thread data with metadata.
type ThreadHistory struct {
	ThreadID  string
	Exchanges []Exchange
}

// ThreadRepository persists conversation history keyed by an opaque thread id.
// History is append-only; entries are never edited or reordered.
type ThreadRepository interface {
	// AppendExchange adds a completed exchange to the thread's history.
	AppendExchange(ctx context.Context, threadID string, ex Exchange) error

	// LoadHistory retrieves the full history for a thread. Unknown threads
	// yield an empty history, not an error.
	LoadHistory(ctx context.Context, threadID string) (*ThreadHistory, error)

	// ClearHistory removes all history for a thread.
	ClearHistory(ctx context.Context, threadID string) error

	// ExchangeCount returns the number of stored exchanges for a thread.
	ExchangeCount(ctx context.Context, threadID string) (int, error)
}
