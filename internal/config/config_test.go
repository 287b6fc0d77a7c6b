package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadFileDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)
	require.Equal(t, "ollama", cfg.ActiveProvider())
	require.Equal(t, RunAsk, cfg.RunPolicy())
	require.True(t, cfg.NewlineSupport())
	require.False(t, cfg.MissionMode())
	require.False(t, cfg.VisibilityAllowed())
	require.False(t, cfg.WebBrowsingAllowed())
}

func TestSettersPersistAcrossReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := LoadFile(path)
	require.NoError(t, err)

	require.NoError(t, cfg.SetActiveProvider("deepseek"))
	require.NoError(t, cfg.SetRunPolicy(RunAlways))
	require.NoError(t, cfg.SetMissionMode(true))
	require.NoError(t, cfg.SetProviderModel("deepseek", "deepseek-reasoner"))
	require.NoError(t, cfg.SetProviderEndpoint("ollama", "http://gpu-box:11434"))
	require.NoError(t, cfg.SetProviderMaxTokens("anthropic", 8192))

	fresh, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "deepseek", fresh.ActiveProvider())
	require.Equal(t, RunAlways, fresh.RunPolicy())
	require.True(t, fresh.MissionMode())
	require.Equal(t, "deepseek-reasoner", fresh.Provider("deepseek").Model)
	require.Equal(t, "http://gpu-box:11434", fresh.Provider("ollama").Endpoint)
	require.Equal(t, 8192, fresh.Provider("anthropic").MaxTokens)
}

func TestSetRunPolicyRejectsUnknown(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)
	require.Error(t, cfg.SetRunPolicy(RunPolicy("sometimes")))
	require.Equal(t, RunAsk, cfg.RunPolicy())
}

func TestLoadFileInvalidRunPolicyFallsBack(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("run_policy = \"yolo\"\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, RunAsk, cfg.RunPolicy())
}

func TestReloadPicksUpExternalEdit(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.SetFastMode(false))

	edited := []byte("active_provider = \"openai\"\n\n[modes]\nfast = true\n")
	require.NoError(t, os.WriteFile(path, edited, 0o644))

	require.NoError(t, cfg.Reload())
	require.True(t, cfg.FastMode())
	require.Equal(t, "openai", cfg.ActiveProvider())
}
