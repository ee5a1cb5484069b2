package oracle

import (
	"context"
	"errors"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datachat-core/server/internal/agent/model"
	errx "github.com/datachat-core/server/internal/core/error"
)

// flakyChatModel fails the first failures calls, then answers.
type flakyChatModel struct {
	failures int
	calls    int
	content  string
}

func (m *flakyChatModel) Generate(_ context.Context, _ []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	m.calls++
	if m.calls <= m.failures {
		return nil, errors.New("connection reset")
	}
	return schema.AssistantMessage(m.content, nil), nil
}

func (m *flakyChatModel) Stream(_ context.Context, _ []*schema.Message, _ ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported")
}

func newTestClient(t *testing.T, cm einomodel.BaseChatModel, retries int) *Client {
	t.Helper()
	c, err := NewClient(cm, "test-model", model.OracleConfig{MaxRetries: retries, Timeout: "5s"})
	require.NoError(t, err)
	return c
}

func TestCompleteTrimsContent(t *testing.T) {
	cm := &flakyChatModel{content: "  yes \n"}
	c := newTestClient(t, cm, 0)

	out, err := c.Complete(context.Background(), "is it relevant?")
	require.NoError(t, err)
	assert.Equal(t, "yes", out)
	assert.Equal(t, 1, cm.calls)
}

func TestCompleteRetriesTransientFaults(t *testing.T) {
	cm := &flakyChatModel{failures: 2, content: "answer"}
	c := newTestClient(t, cm, 2)

	out, err := c.Complete(context.Background(), "grade this")
	require.NoError(t, err)
	assert.Equal(t, "answer", out)
	assert.Equal(t, 3, cm.calls)
}

func TestCompleteSurfacesOracleFault(t *testing.T) {
	cm := &flakyChatModel{failures: 10}
	c := newTestClient(t, cm, 1)

	_, err := c.Complete(context.Background(), "grade this")
	require.Error(t, err)
	assert.True(t, errx.IsOracleFault(err))
	assert.Equal(t, 2, cm.calls)
}

func TestCompleteHonorsCancelledContext(t *testing.T) {
	cm := &flakyChatModel{failures: 10}
	c := newTestClient(t, cm, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Complete(ctx, "grade this")
	require.Error(t, err)
	assert.True(t, errx.IsOracleFault(err))
	// no retry loop after cancellation
	assert.LessOrEqual(t, cm.calls, 1)
}

func TestNewClientRejectsBadTimeout(t *testing.T) {
	_, err := NewClient(&flakyChatModel{}, "m", model.OracleConfig{Timeout: "soon"})
	assert.Error(t, err)
}
