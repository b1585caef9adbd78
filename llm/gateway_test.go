package llm

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianmills2718/osint-deep-research/config"
)

type fakeProvider struct {
	calls      int32
	failTimes  int32
	failErr    error
	response   *Response
}

func (f *fakeProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= f.failTimes {
		return nil, f.failErr
	}
	resp := *f.response
	resp.Model = req.Model
	return &resp, nil
}

func testLLMConfig() config.LLMConfig {
	return config.LLMConfig{
		DefaultModel: "gpt-4o",
		PerOperationModel: map[string]string{
			"decomposition": "gpt-4o",
		},
		FallbackModels: []string{"gpt-4o-mini"},
		MaxRetries:     1,
	}
}

func TestCompleteUsesPerOperationModel(t *testing.T) {
	fp := &fakeProvider{response: &Response{Content: "hello", CostUSD: 0.01}}
	gw := New(fp, testLLMConfig(), 10.0, nil)

	resp, err := gw.Complete(context.Background(), Request{Operation: "decomposition", UserPrompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", resp.Model)
}

func TestCompleteRetriesTransientFailure(t *testing.T) {
	fp := &fakeProvider{failTimes: 1, failErr: assertErr, response: &Response{Content: "ok"}}
	gw := New(fp, testLLMConfig(), 10.0, nil)

	resp, err := gw.Complete(context.Background(), Request{Operation: "decomposition", UserPrompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, int32(2), atomic.LoadInt32(&fp.calls))
}

func TestCompleteFallsBackToNextModelOnPersistentFailure(t *testing.T) {
	fp := &fakeProvider{failTimes: 100, failErr: assertErr, response: &Response{Content: "unreached"}}
	gw := New(fp, testLLMConfig(), 10.0, nil)

	_, err := gw.Complete(context.Background(), Request{Operation: "decomposition", UserPrompt: "hi"})
	require.Error(t, err)
	assert.GreaterOrEqual(t, int(atomic.LoadInt32(&fp.calls)), 4)
}

func TestCompleteTracksCumulativeCost(t *testing.T) {
	fp := &fakeProvider{response: &Response{Content: "ok", CostUSD: 0.05}}
	gw := New(fp, testLLMConfig(), 10.0, nil)

	_, err := gw.Complete(context.Background(), Request{Operation: "decomposition", UserPrompt: "a"})
	require.NoError(t, err)
	_, err = gw.Complete(context.Background(), Request{Operation: "decomposition", UserPrompt: "b"})
	require.NoError(t, err)

	snap := gw.CostSnapshot()
	assert.InDelta(t, 0.10, snap.TotalUSD, 0.0001)
	assert.Equal(t, 2, snap.CallCount)
}

func TestCompleteRejectsCallsPastBudget(t *testing.T) {
	fp := &fakeProvider{response: &Response{Content: "ok", CostUSD: 1.0}}
	gw := New(fp, testLLMConfig(), 1.0, nil)

	_, err := gw.Complete(context.Background(), Request{Operation: "decomposition", UserPrompt: "a"})
	require.NoError(t, err)

	_, err = gw.Complete(context.Background(), Request{Operation: "decomposition", UserPrompt: "b"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBudgetExceeded)
}

func TestResetCostZeroesCounters(t *testing.T) {
	fp := &fakeProvider{response: &Response{Content: "ok", CostUSD: 0.5}}
	gw := New(fp, testLLMConfig(), 10.0, nil)

	_, err := gw.Complete(context.Background(), Request{Operation: "decomposition", UserPrompt: "a"})
	require.NoError(t, err)

	gw.ResetCost()
	snap := gw.CostSnapshot()
	assert.Equal(t, 0.0, snap.TotalUSD)
	assert.Equal(t, 0, snap.CallCount)
}

func TestValidateAgainstSchemaRejectsMissingField(t *testing.T) {
	schema := map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"name"},
		"properties": map[string]interface{}{
			"name": map[string]interface{}{"type": "string"},
		},
	}
	err := validateAgainstSchema(`{"other": 1}`, schema)
	assert.Error(t, err)
}

func TestValidateAgainstSchemaAcceptsValidDocument(t *testing.T) {
	schema := map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"name"},
		"properties": map[string]interface{}{
			"name": map[string]interface{}{"type": "string"},
		},
	}
	err := validateAgainstSchema(`{"name": "task-1"}`, schema)
	assert.NoError(t, err)
}

var assertErr = &testTransportError{"transient upstream error"}

type testTransportError struct{ msg string }

func (e *testTransportError) Error() string { return e.msg }
