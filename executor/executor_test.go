package executor

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianmills2718/osint-deep-research/integration"
)

type slowIntegration struct {
	id          string
	inFlight    *int32
	maxObserved *int32
	delay       time.Duration
}

func (s *slowIntegration) ID() string       { return s.id }
func (s *slowIntegration) Describe() string { return "test" }
func (s *slowIntegration) QuerySchema() integration.QuerySchema { return nil }
func (s *slowIntegration) Execute(ctx context.Context, params integration.QueryParams) (*integration.QueryResult, error) {
	n := atomic.AddInt32(s.inFlight, 1)
	defer atomic.AddInt32(s.inFlight, -1)

	for {
		cur := atomic.LoadInt32(s.maxObserved)
		if n <= cur || atomic.CompareAndSwapInt32(s.maxObserved, cur, n) {
			break
		}
	}

	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &integration.QueryResult{Items: []integration.Item{{ID: s.id}}}, nil
}

func TestExecuteRespectsGlobalConcurrencyLimit(t *testing.T) {
	var inFlight, maxObserved int32
	lookup := func(sourceID string) (integration.Integration, error) {
		return &slowIntegration{id: sourceID, inFlight: &inFlight, maxObserved: &maxObserved, delay: 20 * time.Millisecond}, nil
	}

	exec := New(3, 10, time.Second, lookup)

	var calls []SourceCall
	for i := 0; i < 10; i++ {
		calls = append(calls, SourceCall{SourceID: fmt.Sprintf("src-%d", i)})
	}

	outcomes := exec.Execute(context.Background(), calls)
	require.Len(t, outcomes, 10)
	for _, o := range outcomes {
		assert.NoError(t, o.Err)
	}
	assert.LessOrEqual(t, int(atomic.LoadInt32(&maxObserved)), 3)
}

func TestExecuteRespectsPerSourceConcurrencyLimit(t *testing.T) {
	var inFlight, maxObserved int32
	lookup := func(sourceID string) (integration.Integration, error) {
		return &slowIntegration{id: sourceID, inFlight: &inFlight, maxObserved: &maxObserved, delay: 20 * time.Millisecond}, nil
	}

	exec := New(20, 1, time.Second, lookup)

	var calls []SourceCall
	for i := 0; i < 5; i++ {
		calls = append(calls, SourceCall{SourceID: "same-source"})
	}

	outcomes := exec.Execute(context.Background(), calls)
	require.Len(t, outcomes, 5)
	assert.LessOrEqual(t, int(atomic.LoadInt32(&maxObserved)), 1)
}

func TestExecutePreservesCallOrderInOutcomes(t *testing.T) {
	lookup := func(sourceID string) (integration.Integration, error) {
		return &slowIntegration{id: sourceID, inFlight: new(int32), maxObserved: new(int32), delay: time.Millisecond}, nil
	}
	exec := New(5, 5, time.Second, lookup)

	calls := []SourceCall{
		{SourceID: "a"}, {SourceID: "b"}, {SourceID: "c"},
	}
	outcomes := exec.Execute(context.Background(), calls)
	require.Len(t, outcomes, 3)
	assert.Equal(t, "a", outcomes[0].SourceID)
	assert.Equal(t, "b", outcomes[1].SourceID)
	assert.Equal(t, "c", outcomes[2].SourceID)
}

func TestExecuteIsolatesOneSourcesFailure(t *testing.T) {
	lookup := func(sourceID string) (integration.Integration, error) {
		if sourceID == "broken" {
			return nil, fmt.Errorf("no credential")
		}
		return &slowIntegration{id: sourceID, inFlight: new(int32), maxObserved: new(int32), delay: time.Millisecond}, nil
	}
	exec := New(5, 5, time.Second, lookup)

	calls := []SourceCall{{SourceID: "broken"}, {SourceID: "healthy"}}
	outcomes := exec.Execute(context.Background(), calls)

	require.Len(t, outcomes, 2)
	assert.Error(t, outcomes[0].Err)
	assert.NoError(t, outcomes[1].Err)
	require.NotNil(t, outcomes[1].Result)
	assert.Equal(t, "healthy", outcomes[1].Result.Items[0].ID)
}

func TestExecuteEnforcesPerCallTimeout(t *testing.T) {
	lookup := func(sourceID string) (integration.Integration, error) {
		return &slowIntegration{id: sourceID, inFlight: new(int32), maxObserved: new(int32), delay: 100 * time.Millisecond}, nil
	}
	exec := New(5, 5, time.Second, lookup)

	calls := []SourceCall{{SourceID: "slow", Timeout: 10 * time.Millisecond}}
	outcomes := exec.Execute(context.Background(), calls)

	require.Len(t, outcomes, 1)
	assert.Error(t, outcomes[0].Err)
}
