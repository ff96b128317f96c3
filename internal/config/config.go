// Package config loads and validates tourpipe configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/tour-ingest/internal/logging"
	"github.com/JakeFAU/tour-ingest/internal/telemetry"
	"github.com/JakeFAU/tour-ingest/internal/tour"
)

// EnvPrefix prefixes every environment override, e.g. TOURS_PIPELINE_MODE.
const EnvPrefix = "TOURS"

// Config captures all configuration knobs.
type Config struct {
	Logging   logging.Config         `mapstructure:"logging"`
	Telemetry telemetry.Config       `mapstructure:"telemetry"`
	Server    ServerConfig           `mapstructure:"server"`
	Pipeline  PipelineConfig         `mapstructure:"pipeline"`
	Fetch     FetchConfig            `mapstructure:"fetch"`
	Render    RenderConfig           `mapstructure:"render"`
	Reduce    ReduceConfig           `mapstructure:"reduce"`
	LLM       LLMConfig              `mapstructure:"llm"`
	Storage   StorageConfig          `mapstructure:"storage"`
	DB        DBConfig               `mapstructure:"db"`
	PubSub    PubSubConfig           `mapstructure:"pubsub"`
	Scopes    map[string]ScopeConfig `mapstructure:"scopes"`
}

// ServerConfig controls the operator HTTP server. Port 0 disables it.
type ServerConfig struct {
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
}

// PipelineConfig governs one run.
type PipelineConfig struct {
	Scope        string        `mapstructure:"scope"`
	Mode         string        `mapstructure:"mode"`
	Input        string        `mapstructure:"input"`
	Output       string        `mapstructure:"output"`
	URLs         []string      `mapstructure:"urls"`
	TableBackend string        `mapstructure:"table_backend"`
	ForceInclude bool          `mapstructure:"force_include"`
	PageDelayMin time.Duration `mapstructure:"page_delay_min"`
	PageDelayMax time.Duration `mapstructure:"page_delay_max"`
	LLMDelayMin  time.Duration `mapstructure:"llm_delay_min"`
	LLMDelayMax  time.Duration `mapstructure:"llm_delay_max"`
}

// FetchConfig configures the static probe.
type FetchConfig struct {
	UserAgent     string        `mapstructure:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
	// PromotionScriptShare is the script percentage at which a static page
	// is re-fetched through the renderer.
	PromotionScriptShare int `mapstructure:"promotion_script_share"`
}

// RenderConfig configures the headless renderer.
type RenderConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	Wait              time.Duration `mapstructure:"wait"`
	MaxExpansions     int           `mapstructure:"max_expansions"`
	WindowWidth       int           `mapstructure:"window_width"`
	WindowHeight      int           `mapstructure:"window_height"`
	Attempts          int           `mapstructure:"attempts"`
}

// ReduceConfig bounds the reduced text.
type ReduceConfig struct {
	MaxChars int `mapstructure:"max_chars"`
	MinChars int `mapstructure:"min_chars"`
	// ContentSelectors override the main-content lookup order.
	ContentSelectors []string `mapstructure:"content_selectors"`
}

// LLMConfig selects the structuring model.
type LLMConfig struct {
	Provider      string        `mapstructure:"provider"`
	Model         string        `mapstructure:"model"`
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	OpenAIAPIKey  string        `mapstructure:"openai_api_key"`
	GeminiAPIKey  string        `mapstructure:"gemini_api_key"`
	MaxTokens     int           `mapstructure:"max_tokens"`
	Temperature   float32       `mapstructure:"temperature"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Attempts      int           `mapstructure:"attempts"`
	MaxChunkChars int           `mapstructure:"max_chunk_chars"`
}

// StorageConfig selects the snapshot archive.
type StorageConfig struct {
	Backend     string `mapstructure:"backend"`
	BaseDir     string `mapstructure:"base_dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// DBConfig points at the optional Postgres run ledger.
type DBConfig struct {
	DSN           string `mapstructure:"dsn"`
	MaxConns      int32  `mapstructure:"max_conns"`
	SnapshotTable string `mapstructure:"snapshot_table"`
}

// PubSubConfig holds metadata for merge notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ScopeConfig carries operator overrides for one site.
type ScopeConfig struct {
	ForceInclude bool        `mapstructure:"force_include"`
	AllowLinks   []string    `mapstructure:"allow_links"`
	Locations    []string    `mapstructure:"locations"`
	PriceHints   []PriceHint `mapstructure:"price_hints"`
}

// PriceHint is an operator-supplied price for one page URL.
type PriceHint struct {
	URL   string   `mapstructure:"url"`
	Adult string   `mapstructure:"adult"`
	Child string   `mapstructure:"child"`
	Tiers string   `mapstructure:"tiers"`
	Lines []string `mapstructure:"lines"`
}

// Load builds a Config from a .env file, an optional config file and the
// environment.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindProviderKeys(v); err != nil {
		return Config{}, err
	}
	if err := bindEnvOnlyKeys(v); err != nil {
		return Config{}, err
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// bindProviderKeys lets the conventional provider variables work without the
// TOURS prefix.
func bindProviderKeys(v *viper.Viper) error {
	binds := map[string][]string{
		"llm.openai_api_key": {"TOURS_LLM_OPENAI_API_KEY", "OPENAI_API_KEY"},
		"llm.gemini_api_key": {"TOURS_LLM_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"},
		"db.dsn":             {"TOURS_DB_DSN", "DATABASE_URL"},
	}
	for key, envs := range binds {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

// envOnlyKeys have no default, so AutomaticEnv alone would not surface them
// through Unmarshal.
var envOnlyKeys = []string{
	"server.api_key",
	"pipeline.scope", "pipeline.input", "pipeline.output",
	"llm.model", "llm.base_url", "llm.api_key",
	"storage.gcs_bucket", "storage.prefix",
	"pubsub.project_id", "pubsub.topic",
	"telemetry.enabled", "telemetry.version", "telemetry.project_id", "telemetry.sample_ratio",
}

func bindEnvOnlyKeys(v *viper.Viper) error {
	for _, key := range envOnlyKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("telemetry.service_name", "tourpipe")
	v.SetDefault("server.port", 0)
	v.SetDefault("pipeline.mode", "auto")
	v.SetDefault("pipeline.table_backend", "csv")
	v.SetDefault("pipeline.page_delay_min", "2s")
	v.SetDefault("pipeline.page_delay_max", "5s")
	v.SetDefault("pipeline.llm_delay_min", "1s")
	v.SetDefault("pipeline.llm_delay_max", "3s")
	v.SetDefault("fetch.user_agent", "tourpipe/0.1 (+https://github.com/JakeFAU/tour-ingest)")
	v.SetDefault("fetch.timeout", "15s")
	v.SetDefault("fetch.respect_robots", true)
	v.SetDefault("fetch.rate_per_second", 1.0)
	v.SetDefault("fetch.burst", 1)
	v.SetDefault("fetch.promotion_script_share", 25)
	v.SetDefault("render.enabled", true)
	v.SetDefault("render.navigation_timeout", "60s")
	v.SetDefault("render.wait", "3s")
	v.SetDefault("render.max_expansions", 40)
	v.SetDefault("render.window_width", 1920)
	v.SetDefault("render.window_height", 1080)
	v.SetDefault("render.attempts", 3)
	v.SetDefault("reduce.max_chars", 15000)
	v.SetDefault("reduce.min_chars", 200)
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.max_tokens", 2000)
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.timeout", "30s")
	v.SetDefault("llm.attempts", 3)
	v.SetDefault("llm.max_chunk_chars", 8000)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.base_dir", "data/snapshots")
	v.SetDefault("storage.content_type", "text/html; charset=utf-8")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.snapshot_table", "page_snapshots")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port < 0 {
		return fmt.Errorf("server.port must be >= 0")
	}
	switch c.Pipeline.Mode {
	case "auto", "static", "render":
	default:
		return fmt.Errorf("pipeline.mode must be auto, static or render, got %q", c.Pipeline.Mode)
	}
	if c.Pipeline.Mode == "render" && !c.Render.Enabled {
		return fmt.Errorf("pipeline.mode render requires render.enabled")
	}
	switch c.Pipeline.TableBackend {
	case "csv", "sqlite":
	default:
		return fmt.Errorf("pipeline.table_backend must be csv or sqlite, got %q", c.Pipeline.TableBackend)
	}
	if c.Pipeline.PageDelayMin < 0 || c.Pipeline.PageDelayMax < c.Pipeline.PageDelayMin {
		return fmt.Errorf("pipeline.page_delay_max must be >= pipeline.page_delay_min >= 0")
	}
	if c.Pipeline.LLMDelayMin < 0 || c.Pipeline.LLMDelayMax < c.Pipeline.LLMDelayMin {
		return fmt.Errorf("pipeline.llm_delay_max must be >= pipeline.llm_delay_min >= 0")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}
	if c.Render.MaxExpansions < 0 {
		return fmt.Errorf("render.max_expansions must be >= 0")
	}
	switch strings.ToLower(c.LLM.Provider) {
	case "openai", "gemini":
	default:
		return fmt.Errorf("llm.provider must be openai or gemini, got %q", c.LLM.Provider)
	}
	switch c.Storage.Backend {
	case "local", "gcs", "memory", "none":
	default:
		return fmt.Errorf("storage.backend must be local, gcs, memory or none, got %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0,1]")
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id is required when pubsub.topic is set")
	}
	return nil
}

// LLMKey returns the API key for the configured provider. llm.api_key wins
// over the provider-specific variables.
func (c Config) LLMKey() string {
	if c.LLM.APIKey != "" {
		return c.LLM.APIKey
	}
	if strings.EqualFold(c.LLM.Provider, "gemini") {
		return c.LLM.GeminiAPIKey
	}
	return c.LLM.OpenAIAPIKey
}

// Scope returns the overrides for name, or the zero value.
func (c Config) Scope(name string) ScopeConfig {
	if sc, ok := c.Scopes[name]; ok {
		return sc
	}
	return c.Scopes[strings.ToLower(name)]
}

// Hints converts the configured price hints into a canonical-URL keyed map.
// Entries with an unparsable url are skipped.
func (s ScopeConfig) Hints() map[string]tour.PriceHints {
	if len(s.PriceHints) == 0 {
		return nil
	}
	out := make(map[string]tour.PriceHints, len(s.PriceHints))
	for _, h := range s.PriceHints {
		canon, err := tour.CanonicalURL(h.URL)
		if err != nil || h.URL == "" {
			continue
		}
		out[canon] = tour.PriceHints{Adult: h.Adult, Child: h.Child, Tiers: h.Tiers, Lines: h.Lines}
	}
	return out
}
