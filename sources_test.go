package research

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianmills2718/osint-deep-research/config"
	"github.com/brianmills2718/osint-deep-research/registry"
)

func TestRegisterSourcesOnlyRegistersEnabledSources(t *testing.T) {
	cfg := config.Default()
	cfg.Sources["gov-contracts"] = config.SourceConfig{Enabled: false}

	reg, err := registry.New("", nil)
	require.NoError(t, err)

	registerSources(reg, cfg, nil)

	ids := reg.IDs()
	assert.NotContains(t, ids, "gov-contracts")
	assert.Contains(t, ids, "federal-jobs")
	assert.Contains(t, ids, "web-search")
}

func TestRegisterSourcesSkipsBrowserScraperByDefault(t *testing.T) {
	cfg := config.Default()
	reg, err := registry.New("", nil)
	require.NoError(t, err)

	registerSources(reg, cfg, nil)

	assert.NotContains(t, reg.IDs(), "browser-scraper")
}

func TestWarmSourcesProbesEveryRegisteredSource(t *testing.T) {
	cfg := config.Default()
	reg, err := registry.New("", nil)
	require.NoError(t, err)

	WarmSources(reg, cfg, nil)

	statuses := reg.ListStatus()
	require.NotEmpty(t, statuses)
	seen := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		seen[s.ID] = true
	}
	for _, id := range reg.IDs() {
		assert.True(t, seen[id], "expected %q to have been probed", id)
	}
}
