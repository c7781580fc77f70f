// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigDir is the directory name for unistore configuration.
	DefaultConfigDir = ".unistore"
	// DefaultConfigFile is the default config file name.
	DefaultConfigFile = "config.yaml"
	// DefaultDatabaseFile is the default SQLite database file name.
	DefaultDatabaseFile = "unistore.db"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "UNISTORE_"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Search index modes.
const (
	// IndexModePatch derives the search vector from the data patch of an update.
	IndexModePatch = "patch"
	// IndexModeDocument derives it from the merged document.
	IndexModeDocument = "document"
)

var (
	// reNonAlphanumeric matches characters that aren't alphanumeric or underscore.
	reNonAlphanumeric = regexp.MustCompile(`[^a-z0-9_]`)
	// reMultipleUnderscores matches consecutive underscores.
	reMultipleUnderscores = regexp.MustCompile(`_+`)
)

// Config holds static infrastructure configuration (read-only after init).
type Config struct {
	DefaultWorkspace string         `yaml:"default_workspace,omitempty" env:"WORKSPACE"`
	Storage          StorageConfig  `yaml:"storage,omitempty" envPrefix:"STORAGE_"`
	Search           SearchConfig   `yaml:"search,omitempty" envPrefix:"SEARCH_"`
	Schema           SchemaConfig   `yaml:"schema,omitempty" envPrefix:"SCHEMA_"`
	Semantic         SemanticConfig `yaml:"semantic,omitempty" envPrefix:"SEMANTIC_"`
	Export           ExportConfig   `yaml:"export,omitempty" envPrefix:"EXPORT_"`
	Log              LogConfig      `yaml:"log,omitempty" envPrefix:"LOG_"`
}

// StorageConfig selects and configures the relational backend.
type StorageConfig struct {
	Driver   string         `yaml:"driver,omitempty" env:"DRIVER"`
	SQLite   SQLiteConfig   `yaml:"sqlite,omitempty" envPrefix:"SQLITE_"`
	Postgres PostgresConfig `yaml:"postgres,omitempty" envPrefix:"POSTGRES_"`
}

// SQLiteConfig holds configuration for the SQLite relational database.
type SQLiteConfig struct {
	// Path is the file path to the SQLite database. Relative paths are
	// resolved against the project directory.
	Path string `yaml:"path,omitempty" env:"PATH"`
}

// PostgresConfig holds configuration for the Postgres relational database.
type PostgresConfig struct {
	DSN      string `yaml:"dsn,omitempty" env:"DSN"`
	MaxConns int32  `yaml:"max_conns,omitempty" env:"MAX_CONNS"`
	MinConns int32  `yaml:"min_conns,omitempty" env:"MIN_CONNS"`
}

// SearchConfig controls search vector derivation.
type SearchConfig struct {
	IndexMode string `yaml:"index_mode,omitempty" env:"INDEX_MODE"`
}

// SchemaConfig controls payload validation.
type SchemaConfig struct {
	// Strict rejects entity types that have no registered schema.
	Strict bool `yaml:"strict" env:"STRICT"`
}

// SemanticConfig configures the optional semantic index.
type SemanticConfig struct {
	Enabled  bool           `yaml:"enabled" env:"ENABLED"`
	Embedder EmbedderConfig `yaml:"embedder,omitempty" envPrefix:"EMBEDDER_"`
	Qdrant   QdrantConfig   `yaml:"qdrant,omitempty" envPrefix:"QDRANT_"`
}

// EmbedderConfig holds configuration for the embedding provider.
type EmbedderConfig struct {
	Provider string `yaml:"provider,omitempty" env:"PROVIDER"`
	Model    string `yaml:"model,omitempty" env:"MODEL"`
	APIKey   string `yaml:"api_key,omitempty" env:"API_KEY"`
	// BaseURL points at an OpenAI-compatible endpoint; empty uses OpenAI.
	BaseURL string `yaml:"base_url,omitempty" env:"BASE_URL"`
}

// QdrantConfig holds configuration for the Qdrant vector database.
type QdrantConfig struct {
	Host       string `yaml:"host,omitempty" env:"HOST"`
	Port       int    `yaml:"port,omitempty" env:"PORT"`
	Collection string `yaml:"collection,omitempty" env:"COLLECTION"`
	APIKey     string `yaml:"api_key,omitempty" env:"API_KEY"`
}

// ExportConfig configures snapshot uploads.
type ExportConfig struct {
	S3 S3Config `yaml:"s3,omitempty" envPrefix:"S3_"`
}

// S3Config holds configuration for S3-compatible snapshot storage.
type S3Config struct {
	Bucket          string `yaml:"bucket,omitempty" env:"BUCKET"`
	Region          string `yaml:"region,omitempty" env:"REGION"`
	Endpoint        string `yaml:"endpoint,omitempty" env:"ENDPOINT"`
	Prefix          string `yaml:"prefix,omitempty" env:"PREFIX"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" env:"ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" env:"SECRET_ACCESS_KEY"`
	UsePathStyle    bool   `yaml:"use_path_style,omitempty" env:"USE_PATH_STYLE"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level,omitempty" env:"LEVEL"`
	Format string `yaml:"format,omitempty" env:"FORMAT"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Driver: DriverSQLite,
			SQLite: SQLiteConfig{
				Path: filepath.Join(DefaultConfigDir, DefaultDatabaseFile),
			},
			Postgres: PostgresConfig{
				MaxConns: 10,
				MinConns: 1,
			},
		},
		Search: SearchConfig{
			IndexMode: IndexModePatch,
		},
		Semantic: SemanticConfig{
			Embedder: EmbedderConfig{
				Provider: "openai",
				Model:    "text-embedding-3-small",
			},
			Qdrant: QdrantConfig{
				Host:       "localhost",
				Port:       6334,
				Collection: "unistore_entities",
			},
		},
		Export: ExportConfig{
			S3: S3Config{
				Region: "us-east-1",
				Prefix: "exports",
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from the .unistore directory in the given path,
// then applies environment overrides.
func Load(basePath string) (*Config, error) {
	configFile := ConfigFilePath(basePath)

	data, err := os.ReadFile(configFile)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s (run 'unistore init' first)", configFile)
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Start with defaults
	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies UNISTORE_* variables, then the provider-wide
// OPENAI_API_KEY and QDRANT_API_KEY fallbacks.
func (c *Config) applyEnvOverrides() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parsing environment overrides: %w", err)
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && c.Semantic.Embedder.APIKey == "" {
		c.Semantic.Embedder.APIKey = key
	}
	if key := os.Getenv("QDRANT_API_KEY"); key != "" && c.Semantic.Qdrant.APIKey == "" {
		c.Semantic.Qdrant.APIKey = key
	}
	return nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite, DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("unsupported storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == DriverPostgres && c.Storage.Postgres.DSN == "" {
		return fmt.Errorf("storage.postgres.dsn is required for the postgres driver")
	}
	switch c.Search.IndexMode {
	case IndexModePatch, IndexModeDocument:
	default:
		return fmt.Errorf("unsupported search index mode %q", c.Search.IndexMode)
	}
	return nil
}

// SQLitePath resolves the SQLite path against basePath.
func (c *Config) SQLitePath(basePath string) string {
	p := c.Storage.SQLite.Path
	if p == ":memory:" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(basePath, p)
}

// ConfigDir returns the path to the .unistore config directory.
func ConfigDir(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir)
}

// ConfigFilePath returns the path to the config file.
func ConfigFilePath(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir, DefaultConfigFile)
}

// SanitizeName converts a workspace or collection name into a lowercase
// identifier safe for collection names and object keys.
func SanitizeName(name string) string {
	// Convert to lowercase
	name = strings.ToLower(name)

	// Replace spaces and hyphens with underscores
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "-", "_")

	// Remove any characters that aren't alphanumeric or underscore
	name = reNonAlphanumeric.ReplaceAllString(name, "")

	// Remove consecutive underscores
	name = reMultipleUnderscores.ReplaceAllString(name, "_")

	// Trim leading/trailing underscores
	name = strings.Trim(name, "_")

	if name == "" {
		return "default"
	}

	return name
}
