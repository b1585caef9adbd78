package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoFileOrEnv(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.LLM.DefaultModel)
	assert.Equal(t, 3, cfg.Engine.RelevanceThresholdPublic)
	assert.Equal(t, 1, cfg.Engine.RelevanceThresholdSensitive)
}

func TestLoadMergesYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
llm:
  default_model: gpt-5
execution:
  max_tasks: 4
`), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "gpt-5", cfg.LLM.DefaultModel)
	assert.Equal(t, 4, cfg.Execution.MaxTasks)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`llm:
  default_model: gpt-5
`), 0o644))

	t.Setenv("RESEARCH_LLM_DEFAULT_MODEL", "gpt-5-env")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "gpt-5-env", cfg.LLM.DefaultModel)
}

func TestLoadOverridesWinOverEnv(t *testing.T) {
	t.Setenv("RESEARCH_MAX_TASKS", "20")
	maxTasks := 5

	cfg, err := Load("", &Overrides{MaxTasks: &maxTasks})
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Execution.MaxTasks)
}

func TestLoadFailsLoudlyOnInvalidSensitivityOrdering(t *testing.T) {
	pub := 1
	sens := 3

	_, err := Load("", &Overrides{RelevancePublic: &pub, RelevanceSensitive: &sens})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLoadFailsOnMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml", nil)
	require.Error(t, err)
}

func TestLoadFailsOnMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid: yaml"), 0o644))

	_, err := Load(path, nil)
	require.Error(t, err)
}

func TestCredentialForResolvesEnvVar(t *testing.T) {
	cfg := Default()
	t.Setenv("CONTRACTS_API_KEY", "secret-value")

	assert.Equal(t, "secret-value", cfg.CredentialFor("gov-contracts"))
	assert.Equal(t, "", cfg.CredentialFor("unknown-source"))
}
