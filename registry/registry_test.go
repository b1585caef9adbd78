package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianmills2718/osint-deep-research/integration"
)

type fakeIntegration struct{ id string }

func (f *fakeIntegration) ID() string                         { return f.id }
func (f *fakeIntegration) Describe() string                   { return "fake" }
func (f *fakeIntegration) QuerySchema() integration.QuerySchema { return nil }
func (f *fakeIntegration) Execute(ctx context.Context, params integration.QueryParams) (*integration.QueryResult, error) {
	return &integration.QueryResult{}, nil
}

func TestGetInstantiatesLazilyAndCaches(t *testing.T) {
	reg, err := New("", nil)
	require.NoError(t, err)

	calls := 0
	reg.Register("web-search", func() (integration.Integration, error) {
		calls++
		return &fakeIntegration{id: "web-search"}, nil
	})

	inst1, err := reg.Get("web-search")
	require.NoError(t, err)
	inst2, err := reg.Get("web-search")
	require.NoError(t, err)

	assert.Same(t, inst1, inst2)
	assert.Equal(t, 1, calls)
}

func TestGetUnknownIntegrationReturnsError(t *testing.T) {
	reg, err := New("", nil)
	require.NoError(t, err)

	_, err = reg.Get("nonexistent")
	require.Error(t, err)
}

func TestFailedRegistrationIsIsolated(t *testing.T) {
	reg, err := New("", nil)
	require.NoError(t, err)

	reg.Register("broken", func() (integration.Integration, error) {
		return nil, errors.New("missing credential")
	})
	reg.Register("healthy", func() (integration.Integration, error) {
		return &fakeIntegration{id: "healthy"}, nil
	})

	_, err = reg.Get("broken")
	require.Error(t, err)

	inst, err := reg.Get("healthy")
	require.NoError(t, err)
	assert.Equal(t, "healthy", inst.ID())

	st, ok := reg.Status("broken")
	require.True(t, ok)
	assert.False(t, st.Available)
}

func TestReportResultUpdatesStatus(t *testing.T) {
	reg, err := New("", nil)
	require.NoError(t, err)
	reg.Register("web-search", func() (integration.Integration, error) {
		return &fakeIntegration{id: "web-search"}, nil
	})
	_, err = reg.Get("web-search")
	require.NoError(t, err)

	reg.ReportResult("web-search", "open", errors.New("rate limited"))
	st, ok := reg.Status("web-search")
	require.True(t, ok)
	assert.Equal(t, "open", st.CircuitState)
	assert.Equal(t, "rate limited", st.LastError)
}

func TestIDsReturnsAllRegistered(t *testing.T) {
	reg, err := New("", nil)
	require.NoError(t, err)
	reg.Register("a", func() (integration.Integration, error) { return &fakeIntegration{id: "a"}, nil })
	reg.Register("b", func() (integration.Integration, error) { return &fakeIntegration{id: "b"}, nil })

	ids := reg.IDs()
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}
