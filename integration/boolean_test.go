package integration

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitDisjunction(t *testing.T) {
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, SplitDisjunction("alpha OR beta OR gamma"))
	assert.Equal(t, []string{"solo"}, SplitDisjunction("solo"))
	assert.Equal(t, []string{}, SplitDisjunction(""))
}

func TestMergeByIDDedupesAndPreservesOrder(t *testing.T) {
	a := []Item{{ID: "1", Title: "first"}, {ID: "2", Title: "second"}}
	b := []Item{{ID: "2", Title: "second-dup"}, {ID: "3", Title: "third"}}

	merged := MergeByID(a, b)
	assert.Len(t, merged, 3)
	assert.Equal(t, "1", merged[0].ID)
	assert.Equal(t, "2", merged[1].ID)
	assert.Equal(t, "3", merged[2].ID)
}

func TestMergeByIDFallsBackToURLWhenIDEmpty(t *testing.T) {
	a := []Item{{URL: "https://a.example/x"}}
	b := []Item{{URL: "https://a.example/x"}, {URL: "https://a.example/y"}}

	merged := MergeByID(a, b)
	assert.Len(t, merged, 2)
}

func TestExecuteBooleanHostileSkipsSplitWhenCompositeSucceeds(t *testing.T) {
	calls := 0
	items, err := ExecuteBooleanHostile("alpha OR beta", func(term string) ([]Item, bool, error) {
		calls++
		return []Item{{ID: "1"}}, false, nil
	})
	assert := assert.New(t)
	assert.NoError(err)
	assert.Len(items, 1)
	assert.Equal(1, calls)
}

func TestExecuteBooleanHostileSplitsOnZeroResults(t *testing.T) {
	call := 0
	items, err := ExecuteBooleanHostile("alpha OR beta", func(term string) ([]Item, bool, error) {
		call++
		if term == "alpha OR beta" {
			return nil, false, nil
		}
		return []Item{{ID: term}}, false, nil
	})
	assert := assert.New(t)
	assert.NoError(err)
	assert.Len(items, 2)
}
