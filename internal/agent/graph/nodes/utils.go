package nodes

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/compose"

	"github.com/datachat-core/server/internal/agent/model"
)

const (
	defaultMaxAttempts     = 7
	defaultNoDataPassAfter = 3
	logValueLimit          = 300
)

func normalizeMaxAttempts(n int) int {
	if n <= 0 {
		return defaultMaxAttempts
	}
	return n
}

func normalizeNoDataPassAfter(n int) int {
	if n <= 0 {
		return defaultNoDataPassAfter
	}
	return n
}

// normalizeToken reduces a one-word oracle verdict to a comparable form.
// Models occasionally wrap the token in quotes or tack on a period.
func normalizeToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, "\"'`")
	s = strings.TrimSuffix(s, ".")
	return strings.TrimSpace(s)
}

func truncateForLog(s string) string {
	if len(s) <= logValueLimit {
		return s
	}
	return s[:logValueLimit] + "..."
}

func threadIDFromState(ctx context.Context) string {
	var id string
	_ = compose.ProcessState(ctx, func(_ context.Context, s *model.WorkflowState) error {
		id = s.ThreadID
		return nil
	})
	return id
}
