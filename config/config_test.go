package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProvider(id string) Provider {
	return Provider{
		ID:      id,
		Name:    "Test " + id,
		APIType: APITypeAnthropic,
		APIKey:  "sk-test",
		BaseURL: "https://api.example.com",
		Model:   "claude-sonnet-4-5",
	}
}

func TestLoadMissingFileReturnsNil(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "coworker.json"))
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coworker.json")

	cfg := NewAt(path)
	cfg.AddProvider(testProvider("p1"))
	cfg.SetTheme(ThemeDark)
	require.NoError(t, cfg.Save())

	loaded, err := LoadFrom(path)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "p1", loaded.ActiveProvider)
	require.Len(t, loaded.Providers, 1)
	assert.Equal(t, "sk-test", loaded.Providers[0].APIKey)
	assert.Equal(t, ThemeDark, loaded.Theme)
}

func TestSaveRejectsEmptyProviders(t *testing.T) {
	cfg := NewAt(filepath.Join(t.TempDir(), "coworker.json"))
	err := cfg.Save()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one provider")
}

func TestSaveRejectsUnknownActiveProvider(t *testing.T) {
	cfg := NewAt(filepath.Join(t.TempDir(), "coworker.json"))
	cfg.AddProvider(testProvider("p1"))
	cfg.ActiveProvider = "missing"
	err := cfg.Save()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "active provider not found")
}

func TestLoadMigratesLegacyFlatShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coworker.json")
	legacy := `{"apiKey":"sk-old","baseURL":"https://old.example.com","model":"claude-3","theme":"dark"}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "default", cfg.ActiveProvider)
	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, "sk-old", cfg.Providers[0].APIKey)
	assert.Equal(t, APITypeAnthropic, cfg.Providers[0].APIType)
	assert.Equal(t, ThemeDark, cfg.Theme)
}

func TestLoadUnrecognizedShapeReturnsNil(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coworker.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"something":"else"}`), 0600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestActiveProviderConfig(t *testing.T) {
	cfg := NewAt(filepath.Join(t.TempDir(), "coworker.json"))
	cfg.AddProvider(testProvider("p1"))
	cfg.AddProvider(testProvider("p2"))

	p := cfg.ActiveProviderConfig()
	require.NotNil(t, p)
	assert.Equal(t, "p1", p.ID)

	require.True(t, cfg.SetActiveProvider("p2"))
	p = cfg.ActiveProviderConfig()
	require.NotNil(t, p)
	assert.Equal(t, "p2", p.ID)

	assert.False(t, cfg.SetActiveProvider("nope"))
}

func TestRemoveProvider(t *testing.T) {
	cfg := NewAt(filepath.Join(t.TempDir(), "coworker.json"))
	cfg.AddProvider(testProvider("p1"))
	cfg.AddProvider(testProvider("p2"))

	require.True(t, cfg.RemoveProvider("p1"))
	// Active falls back to first remaining provider
	assert.Equal(t, "p2", cfg.ActiveProvider)

	assert.False(t, cfg.RemoveProvider("p1"))
}

func TestDeleteIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coworker.json")
	cfg := NewAt(path)
	cfg.AddProvider(testProvider("p1"))
	require.NoError(t, cfg.Save())

	require.NoError(t, cfg.Delete())
	require.NoError(t, cfg.Delete())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestEffectiveTheme(t *testing.T) {
	assert.Equal(t, ThemeDark, EffectiveTheme(ThemeDark))
	assert.Equal(t, ThemeLight, EffectiveTheme(ThemeLight))
	assert.Equal(t, ThemeLight, EffectiveTheme(ThemeSystem))
	assert.Equal(t, ThemeLight, EffectiveTheme(""))
}
