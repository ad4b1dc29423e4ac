package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learnforge/internal/core"
	"learnforge/internal/store"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"HTTP_PORT", "STORAGE_BACKEND", "AI_BASE_URL", "AI_MODEL", "OUTPUT_LANGUAGE", "AI_TIMEOUT_SECONDS", "MINIO_USE_SSL", "SETTINGS_FILE"} {
		if v, ok := os.LookupEnv(k); ok {
			os.Unsetenv(k)
			t.Cleanup(func() { os.Setenv(k, v) })
		}
	}

	cfg := FromEnv()
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, BackendFile, cfg.StorageBackend)
	assert.Equal(t, "http://localhost:3052/v1", cfg.AIBaseURL)
	assert.Equal(t, "gemini-2.5-flash", cfg.AIModel)
	assert.Equal(t, "Traditional Chinese", cfg.OutputLanguage)
	assert.Equal(t, 120*time.Second, cfg.AITimeout)
	assert.False(t, cfg.MinIOUseSSL)
	assert.Empty(t, cfg.SettingsFile)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "SQLite")
	t.Setenv("AI_TIMEOUT_SECONDS", "15")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("AI_MODEL", "gpt-4o-mini")

	cfg := FromEnv()
	assert.Equal(t, BackendSQLite, cfg.StorageBackend)
	assert.Equal(t, 15*time.Second, cfg.AITimeout)
	assert.True(t, cfg.MinIOUseSSL)
	assert.Equal(t, "gpt-4o-mini", cfg.AIModel)
}

func TestFromEnv_InvalidNumberKeepsDefault(t *testing.T) {
	t.Setenv("AI_TIMEOUT_SECONDS", "soon")
	assert.Equal(t, 120*time.Second, FromEnv().AITimeout)
}

func testConfig() Config {
	return Config{
		AIBaseURL:      "http://localhost:3052/v1",
		AIAPIKey:       "sk-env",
		AIModel:        "gemini-2.5-flash",
		OutputLanguage: "Traditional Chinese",
	}
}

func TestDefaultSettings(t *testing.T) {
	settings, err := testConfig().DefaultSettings()
	require.NoError(t, err)

	assert.Equal(t, "Traditional Chinese", settings.Language)
	assert.Equal(t, core.DefaultGenerateBasePrompt, settings.GenerationAI.BasePrompt)
	assert.Equal(t, core.DefaultTipsBasePrompt, settings.TipsAI.BasePrompt)
	assert.Equal(t, core.DefaultChatBasePrompt, settings.ChatAI.BasePrompt)
	for _, ai := range []store.AIConfig{settings.GenerationAI, settings.TipsAI, settings.ChatAI} {
		assert.Equal(t, "http://localhost:3052/v1", ai.BaseURL)
		assert.Equal(t, "sk-env", ai.APIKey)
		assert.Equal(t, "gemini-2.5-flash", ai.Model)
	}
}

func TestDefaultSettings_YAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
language: English
chatAI:
  model: gpt-4o
  basePrompt: "Be brief."
tipsAI:
  baseUrl: ""
`), 0o644))

	cfg := testConfig()
	cfg.SettingsFile = path
	settings, err := cfg.DefaultSettings()
	require.NoError(t, err)

	assert.Equal(t, "English", settings.Language)
	assert.Equal(t, "gpt-4o", settings.ChatAI.Model)
	assert.Equal(t, "Be brief.", settings.ChatAI.BasePrompt)
	assert.Equal(t, "sk-env", settings.ChatAI.APIKey)
	assert.Equal(t, "http://localhost:3052/v1", settings.TipsAI.BaseURL)
	assert.Equal(t, "gemini-2.5-flash", settings.GenerationAI.Model)
}

func TestDefaultSettings_BadFile(t *testing.T) {
	cfg := testConfig()
	cfg.SettingsFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := cfg.DefaultSettings()
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chatAI: [unclosed"), 0o644))
	cfg.SettingsFile = path
	_, err = cfg.DefaultSettings()
	assert.ErrorContains(t, err, "parse settings file")
}

func TestSeedData(t *testing.T) {
	seed, err := testConfig().SeedData()
	require.NoError(t, err)
	assert.NotNil(t, seed.Categories)
	assert.NotNil(t, seed.ChatHistory)
	assert.Nil(t, seed.ActiveChapterID)
	assert.Equal(t, "Traditional Chinese", seed.Settings.Language)
}

func TestOpenProvider(t *testing.T) {
	dir := t.TempDir()
	mr := miniredis.RunT(t)

	cases := []Config{
		{StorageBackend: BackendMemory},
		{StorageBackend: BackendFile, DataDir: filepath.Join(dir, "data")},
		{StorageBackend: BackendSQLite, DatabaseURL: filepath.Join(dir, "kv.db")},
		{StorageBackend: BackendRedis, RedisAddr: mr.Addr()},
	}
	for _, cfg := range cases {
		t.Run(cfg.StorageBackend, func(t *testing.T) {
			p, closeFn, err := cfg.OpenProvider()
			require.NoError(t, err)
			t.Cleanup(func() { _ = closeFn() })

			ctx := context.Background()
			require.NoError(t, p.Set(ctx, store.DocumentKey, "{}"))
			v, ok, err := p.Get(ctx, store.DocumentKey)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "{}", v)
		})
	}
}

func TestOpenProvider_Unknown(t *testing.T) {
	_, closeFn, err := Config{StorageBackend: "etcd"}.OpenProvider()
	assert.ErrorContains(t, err, `unknown storage backend "etcd"`)
	assert.NotNil(t, closeFn)
}
