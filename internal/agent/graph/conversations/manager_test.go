package conversations

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datachat-core/server/internal/agent/model"
	"github.com/datachat-core/server/internal/agent/repo"
)

func newManagerForTest(maxTurns int) *HistoryManager {
	return NewHistoryManager(repo.NewMemoryThreadRepository(), model.WorkflowConfig{HistoryTurns: maxTurns})
}

func TestRenderRecentEmptyThread(t *testing.T) {
	hm := newManagerForTest(5)

	out, err := hm.RenderRecent(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestRenderRecentOrderAndFormat(t *testing.T) {
	hm := newManagerForTest(5)
	ctx := context.Background()

	require.NoError(t, hm.AppendExchange(ctx, "t1", "first question", "first answer"))
	require.NoError(t, hm.AppendExchange(ctx, "t1", "second question", "second answer"))

	out, err := hm.RenderRecent(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t,
		"User: first question\nAssistant: first answer\nUser: second question\nAssistant: second answer",
		out)
}

func TestRenderRecentTrimsToRecentTurns(t *testing.T) {
	hm := newManagerForTest(5)
	ctx := context.Background()

	for i := 1; i <= 8; i++ {
		require.NoError(t, hm.AppendExchange(ctx, "t1", fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i)))
	}

	out, err := hm.RenderRecent(ctx, "t1")
	require.NoError(t, err)

	assert.Equal(t, 5, strings.Count(out, "User: "))
	assert.NotContains(t, out, "q3")
	assert.Contains(t, out, "q4")
	assert.Contains(t, out, "q8")

	// rendering trims, storage does not
	n, err := hm.ExchangeCount(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 8, n)
}

func TestRenderRecentIsolatesThreads(t *testing.T) {
	hm := newManagerForTest(5)
	ctx := context.Background()

	require.NoError(t, hm.AppendExchange(ctx, "t1", "about sales", "sales answer"))

	out, err := hm.RenderRecent(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, "", out)
}
