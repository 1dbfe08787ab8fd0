package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Docs      DocsConfig      `yaml:"docs" mapstructure:"docs"`
	Text      TextConfig      `yaml:"text" mapstructure:"text"`
	Normalize NormalizeConfig `yaml:"normalize" mapstructure:"normalize"`
	Enrich    EnrichConfig    `yaml:"enrich" mapstructure:"enrich"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
}

// DocsConfig configures the announcement document store.
type DocsConfig struct {
	Dir         string `yaml:"dir" mapstructure:"dir"`
	Manifest    string `yaml:"manifest" mapstructure:"manifest"`
	Preflight   bool   `yaml:"preflight" mapstructure:"preflight"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// TextConfig configures PDF text extraction.
type TextConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MistralKey    string `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel  string `yaml:"mistral_ocr_model" mapstructure:"mistral_ocr_model"`
}

// NormalizeConfig configures table normalization.
type NormalizeConfig struct {
	VocabularyFile   string  `yaml:"vocabulary_file" mapstructure:"vocabulary_file"`
	DefaultCommodity string  `yaml:"default_commodity" mapstructure:"default_commodity"`
	FallbackDeposit  string  `yaml:"fallback_deposit" mapstructure:"fallback_deposit"`
	MetalTolerance   float64 `yaml:"metal_tolerance" mapstructure:"metal_tolerance"`
}

// EnrichConfig configures the optional LLM enrichment stage.
type EnrichConfig struct {
	Enabled           bool    `yaml:"enabled" mapstructure:"enabled"`
	Provider          string  `yaml:"provider" mapstructure:"provider"`
	Model             string  `yaml:"model" mapstructure:"model"`
	AnthropicKey      string  `yaml:"anthropic_key" mapstructure:"anthropic_key"`
	OpenAIKey         string  `yaml:"openai_key" mapstructure:"openai_key"`
	OpenAIBaseURL     string  `yaml:"openai_base_url" mapstructure:"openai_base_url"`
	GeminiKey         string  `yaml:"gemini_key" mapstructure:"gemini_key"`
	PromptFile        string  `yaml:"prompt_file" mapstructure:"prompt_file"`
	MaxTokens         int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts       int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	BackoffMillis     int     `yaml:"backoff_ms" mapstructure:"backoff_ms"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// APIKey returns the key configured for the selected provider.
func (e EnrichConfig) APIKey() string {
	switch e.Provider {
	case "openai":
		return e.OpenAIKey
	case "gemini":
		return e.GeminiKey
	default:
		return e.AnthropicKey
	}
}

// OutputConfig configures the output table.
type OutputConfig struct {
	Path   string `yaml:"path" mapstructure:"path"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StoreConfig configures the run ledger. An empty DSN disables it.
type StoreConfig struct {
	DSN string `yaml:"dsn" mapstructure:"dsn"`
}

// MetricsConfig configures the Prometheus textfile. An empty path disables it.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("docs.dir", "pdfs")
	v.SetDefault("docs.manifest", "")
	v.SetDefault("docs.preflight", true)
	v.SetDefault("docs.concurrency", 4)
	v.SetDefault("text.provider", "local")
	v.SetDefault("text.pdftotext_path", "pdftotext")
	v.SetDefault("text.mistral_api_key", "")
	v.SetDefault("text.mistral_ocr_model", "mistral-ocr-latest")
	v.SetDefault("normalize.vocabulary_file", "")
	v.SetDefault("normalize.default_commodity", "gold")
	v.SetDefault("normalize.fallback_deposit", "Unspecified")
	v.SetDefault("normalize.metal_tolerance", 0.05)
	v.SetDefault("enrich.enabled", true)
	v.SetDefault("enrich.provider", "anthropic")
	v.SetDefault("enrich.model", "")
	v.SetDefault("enrich.anthropic_key", "")
	v.SetDefault("enrich.openai_key", "")
	v.SetDefault("enrich.openai_base_url", "")
	v.SetDefault("enrich.gemini_key", "")
	v.SetDefault("enrich.prompt_file", "")
	v.SetDefault("enrich.max_tokens", 1024)
	v.SetDefault("enrich.timeout_secs", 60)
	v.SetDefault("enrich.max_attempts", 2)
	v.SetDefault("enrich.backoff_ms", 1000)
	v.SetDefault("enrich.requests_per_second", 1.0)
	v.SetDefault("output.path", "mre.csv")
	v.SetDefault("output.format", "csv")
	v.SetDefault("store.dsn", "")
	v.SetDefault("metrics.textfile", "")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command depends on. Mode is "run" for the
// full pipeline or "inspect" for single-document extraction.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Text.Provider {
	case "local", "native", "":
	case "mistral":
		if c.Text.MistralKey == "" {
			errs = append(errs, "text.mistral_api_key is required for the mistral provider")
		}
	default:
		errs = append(errs, "text.provider must be one of local, native, mistral")
	}

	switch mode {
	case "inspect":
	case "run":
		if c.Docs.Dir == "" {
			errs = append(errs, "docs.dir is required")
		}
		if c.Docs.Concurrency < 1 || c.Docs.Concurrency > 32 {
			errs = append(errs, "docs.concurrency must be between 1 and 32")
		}
		if c.Output.Path == "" {
			errs = append(errs, "output.path is required")
		}
		switch c.Output.Format {
		case "csv", "xlsx", "json":
		default:
			errs = append(errs, "output.format must be one of csv, xlsx, json")
		}
		switch c.Normalize.DefaultCommodity {
		case "gold", "other":
		default:
			errs = append(errs, "normalize.default_commodity must be gold or other")
		}
		if c.Normalize.MetalTolerance < 0 || c.Normalize.MetalTolerance > 1 {
			errs = append(errs, "normalize.metal_tolerance must be between 0 and 1")
		}
		if c.Enrich.Enabled {
			errs = append(errs, c.validateEnrich()...)
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateEnrich() []string {
	var errs []string
	switch c.Enrich.Provider {
	case "anthropic", "openai", "gemini":
	default:
		errs = append(errs, "enrich.provider must be one of anthropic, openai, gemini")
	}
	if c.Enrich.MaxAttempts < 1 || c.Enrich.MaxAttempts > 2 {
		errs = append(errs, "enrich.max_attempts must be 1 or 2")
	}
	if c.Enrich.TimeoutSecs <= 0 {
		errs = append(errs, "enrich.timeout_secs must be > 0")
	}
	if c.Enrich.RequestsPerSecond <= 0 {
		errs = append(errs, "enrich.requests_per_second must be > 0")
	}
	if c.Enrich.BackoffMillis < 0 {
		errs = append(errs, "enrich.backoff_ms must be >= 0")
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
