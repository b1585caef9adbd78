package prompt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type decompositionData struct {
	Question         string
	Sensitivity      string
	Today            string
	RecentWindowDays int
	AvailableSources []struct {
		ID          string
		Description string
	}
	MaxTasks int
}

func TestNewLoadsBuiltInTemplates(t *testing.T) {
	store, err := New(7)
	require.NoError(t, err)

	for _, name := range []string{"decomposition", "query_generation", "relevance", "entity_extraction", "synthesis", "followup", "source_selection"} {
		_, err := store.Render(name, struct{}{})
		// struct{}{} will fail missingkey rendering for most templates,
		// but a rendering error still proves the template was parsed and
		// registered — only ErrNotFound would mean it's missing.
		if err != nil {
			assert.NotErrorIs(t, err, ErrNotFound, "template %q should be registered", name)
		}
	}
}

func TestRenderUsesFixedClockForDeterminism(t *testing.T) {
	store, err := New(30)
	require.NoError(t, err)

	fixed := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return fixed })

	data := decompositionData{
		Question:         "What contracts has Acme Corp been awarded?",
		Sensitivity:      "public",
		Today:            store.Today(),
		RecentWindowDays: store.RecentWindowDays(),
		MaxTasks:         5,
	}

	out, err := store.Render("decomposition", data)
	require.NoError(t, err)
	assert.Contains(t, out, "2026-07-30")
	assert.Contains(t, out, "last 30 days")
	assert.Contains(t, out, "Acme Corp")
}

func TestRenderSourceSelectionListsAvailableSources(t *testing.T) {
	store, err := New(7)
	require.NoError(t, err)

	data := struct {
		SubtaskDescription string
		AvailableSources   []struct {
			ID          string
			Description string
		}
	}{
		SubtaskDescription: "Find recent contracts awarded to Acme Corp",
		AvailableSources: []struct {
			ID          string
			Description string
		}{{ID: "gov-contracts", Description: "federal contract awards"}},
	}

	out, err := store.Render("source_selection", data)
	require.NoError(t, err)
	assert.Contains(t, out, "Acme Corp")
	assert.Contains(t, out, "gov-contracts: federal contract awards")
}

func TestRenderFailsHardOnUnknownTemplate(t *testing.T) {
	store, err := New(7)
	require.NoError(t, err)

	_, err = store.Render("does_not_exist", struct{}{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRenderFailsHardOnMissingField(t *testing.T) {
	store, err := New(7)
	require.NoError(t, err)

	require.NoError(t, store.Register("strict", "value: {{.Missing}}"))

	_, err = store.Render("strict", struct{ Other string }{Other: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRenderFailed)
}

func TestRegisterOverridesExistingTemplate(t *testing.T) {
	store, err := New(7)
	require.NoError(t, err)

	require.NoError(t, store.Register("relevance", "custom: {{.Name}}"))
	out, err := store.Render("relevance", struct{ Name string }{Name: "test"})
	require.NoError(t, err)
	assert.Equal(t, "custom: test", out)
}
