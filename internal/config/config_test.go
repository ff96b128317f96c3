package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
logging:
  development: false
  level: warn
server:
  port: 9090
pipeline:
  scope: reef-co
  mode: static
  table_backend: sqlite
  page_delay_min: 1s
  page_delay_max: 4s
fetch:
  user_agent: test-agent
  timeout: 20s
llm:
  provider: gemini
  model: gemini-2.0-flash
storage:
  backend: gcs
  gcs_bucket: snapshots
pubsub:
  project_id: tours-dev
  topic: tour-merges
scopes:
  Reef-Co:
    force_include: true
    allow_links: ["https://reef.example.com/a"]
    locations: ["Low Isles"]
    price_hints:
      - url: https://Reef.example.com/a/?utm_source=x
        adult: "$149"
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.False(t, cfg.Logging.Development)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "static", cfg.Pipeline.Mode)
	assert.Equal(t, "sqlite", cfg.Pipeline.TableBackend)
	assert.Equal(t, time.Second, cfg.Pipeline.PageDelayMin)
	assert.Equal(t, 4*time.Second, cfg.Pipeline.PageDelayMax)
	assert.Equal(t, 20*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "snapshots", cfg.Storage.GCSBucket)

	scope := cfg.Scope("Reef-Co")
	assert.True(t, scope.ForceInclude)
	assert.Equal(t, []string{"Low Isles"}, scope.Locations)
	hints := scope.Hints()
	require.Contains(t, hints, "https://reef.example.com/a")
	assert.Equal(t, "$149", hints["https://reef.example.com/a"].Adult)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "auto", cfg.Pipeline.Mode)
	assert.Equal(t, "csv", cfg.Pipeline.TableBackend)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.PageDelayMin)
	assert.Equal(t, 15000, cfg.Reduce.MaxChars)
	assert.Equal(t, 200, cfg.Reduce.MinChars)
	assert.Equal(t, 8000, cfg.LLM.MaxChunkChars)
	assert.Equal(t, 40, cfg.Render.MaxExpansions)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, "tourpipe", cfg.Telemetry.ServiceName)
	assert.Empty(t, cfg.Scope("unknown").AllowLinks)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("TOURS_PIPELINE_MODE", "render")
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("GEMINI_API_KEY", "g-key")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "render", cfg.Pipeline.Mode)
	assert.Equal(t, "sk-openai", cfg.LLMKey())

	cfg.LLM.Provider = "gemini"
	assert.Equal(t, "g-key", cfg.LLMKey())

	cfg.LLM.APIKey = "explicit"
	assert.Equal(t, "explicit", cfg.LLMKey())
}

func TestLoadReadsEnvOnlyKeys(t *testing.T) {
	t.Setenv("TOURS_PIPELINE_INPUT", "urls/reef.txt")
	t.Setenv("TOURS_PIPELINE_SCOPE", "reefco")
	t.Setenv("TOURS_PIPELINE_OUTPUT", "data/reef.db")
	t.Setenv("TOURS_PUBSUB_PROJECT_ID", "tours-dev")
	t.Setenv("TOURS_PUBSUB_TOPIC", "tour-merges")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "urls/reef.txt", cfg.Pipeline.Input)
	assert.Equal(t, "reefco", cfg.Pipeline.Scope)
	assert.Equal(t, "data/reef.db", cfg.Pipeline.Output)
	assert.Equal(t, "tours-dev", cfg.PubSub.ProjectID)
	assert.Equal(t, "tour-merges", cfg.PubSub.Topic)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Pipeline: PipelineConfig{Mode: "auto", TableBackend: "csv"},
		Fetch:    FetchConfig{Timeout: time.Second},
		Render:   RenderConfig{Enabled: true},
		LLM:      LLMConfig{Provider: "openai"},
		Storage:  StorageConfig{Backend: "local"},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"negative port", func(c *Config) { c.Server.Port = -1 }, "server.port"},
		{"bad mode", func(c *Config) { c.Pipeline.Mode = "fast" }, "pipeline.mode"},
		{"render disabled", func(c *Config) { c.Pipeline.Mode = "render"; c.Render.Enabled = false }, "render.enabled"},
		{"bad backend", func(c *Config) { c.Pipeline.TableBackend = "xlsx" }, "pipeline.table_backend"},
		{"inverted delays", func(c *Config) { c.Pipeline.PageDelayMin = 2 * time.Second }, "page_delay"},
		{"inverted llm delays", func(c *Config) { c.Pipeline.LLMDelayMin = time.Second }, "llm_delay"},
		{"no timeout", func(c *Config) { c.Fetch.Timeout = 0 }, "fetch.timeout"},
		{"bad provider", func(c *Config) { c.LLM.Provider = "local" }, "llm.provider"},
		{"bad storage", func(c *Config) { c.Storage.Backend = "s3" }, "storage.backend"},
		{"gcs without bucket", func(c *Config) { c.Storage.Backend = "gcs" }, "storage.gcs_bucket"},
		{"sample ratio", func(c *Config) { c.Telemetry.SampleRatio = 2 }, "telemetry.sample_ratio"},
		{"topic without project", func(c *Config) { c.PubSub.Topic = "t" }, "pubsub.project_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
