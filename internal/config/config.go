// Package config provides configuration for the tablecat service.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage types.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Config holds the configuration of a tablecat process.
type Config struct {
	// DataDir is the base directory for all files the service writes
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Schema locates the schema definition file to load at startup
	Schema SchemaConfig `json:"schema" yaml:"schema"`

	// Storage is the object store remote schema files and manifests live in
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// HTTP configuration
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// gRPC configuration
	GRPC GRPCConfig `json:"grpc" yaml:"grpc"`

	// Manifest export configuration
	Manifest ManifestConfig `json:"manifest" yaml:"manifest"`
}

// SchemaConfig locates the schema definition file.
type SchemaConfig struct {
	// File is a schema definition file on the local filesystem
	File string `json:"file" yaml:"file"`

	// Object is a schema definition object in Storage. Takes precedence over File.
	Object string `json:"object" yaml:"object"`

	// WorkDir receives downloaded schema objects; table files are placed next to them
	WorkDir string `json:"work_dir" yaml:"work_dir"`
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	Bucket string `json:"bucket" yaml:"bucket"`
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Enabled      bool          `json:"enabled" yaml:"enabled"`
	Addr         string        `json:"addr" yaml:"addr"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// GRPCConfig holds gRPC health server configuration.
type GRPCConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

// ManifestConfig controls the SQLite manifest written after a load.
type ManifestConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Path is the local manifest database path
	Path string `json:"path" yaml:"path"`

	// PublishObject, when set, is the object path the manifest is uploaded to
	PublishObject string `json:"publish_object" yaml:"publish_object"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/tablecat",
		Storage: StorageConfig{
			Type: StorageLocal,
		},
		HTTP: HTTPConfig{
			Enabled:      true,
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		GRPC: GRPCConfig{
			Enabled: true,
			Addr:    ":9090",
		},
		Manifest: ManifestConfig{
			Enabled: true,
		},
	}
}

// Resolve fills in paths derived from DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/tablecat"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "storage")
	}
	if c.Schema.WorkDir == "" {
		c.Schema.WorkDir = filepath.Join(c.DataDir, "schemas")
	}
	if c.Manifest.Path == "" {
		c.Manifest.Path = filepath.Join(c.DataDir, "manifest.db")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Schema.File == "" && c.Schema.Object == "" {
		return fmt.Errorf("schema.file or schema.object is required")
	}

	if c.Storage.Type != StorageLocal && c.Storage.Type != StorageS3 {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}

	if c.Storage.Type == StorageS3 && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	if c.HTTP.Enabled && c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required when http is enabled")
	}

	if c.GRPC.Enabled && c.GRPC.Addr == "" {
		return fmt.Errorf("grpc.addr is required when grpc is enabled")
	}

	return nil
}

// UsesObjectStorage reports whether the service needs an object store at all.
func (c *Config) UsesObjectStorage() bool {
	return c.Schema.Object != "" || (c.Manifest.Enabled && c.Manifest.PublishObject != "")
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// EnvPrefix prefixes every environment variable LoadFromEnv reads.
const EnvPrefix = "TABLECAT_"

// LoadFromEnv overrides cfg with environment variables.
func LoadFromEnv(cfg *Config) {
	str := func(name string, dst *string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v == "true" || v == "1"
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	str("DATA_DIR", &cfg.DataDir)

	str("SCHEMA_FILE", &cfg.Schema.File)
	str("SCHEMA_OBJECT", &cfg.Schema.Object)
	str("SCHEMA_WORK_DIR", &cfg.Schema.WorkDir)

	str("STORAGE_TYPE", &cfg.Storage.Type)
	str("STORAGE_PATH", &cfg.Storage.Path)
	str("S3_BUCKET", &cfg.Storage.S3.Bucket)
	str("S3_REGION", &cfg.Storage.S3.Region)
	str("S3_ENDPOINT", &cfg.Storage.S3.Endpoint)
	boolean("S3_USE_PATH_STYLE", &cfg.Storage.S3.UsePathStyle)

	boolean("HTTP_ENABLED", &cfg.HTTP.Enabled)
	str("HTTP_ADDR", &cfg.HTTP.Addr)
	duration("HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout)
	duration("HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout)
	duration("HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout)

	boolean("GRPC_ENABLED", &cfg.GRPC.Enabled)
	str("GRPC_ADDR", &cfg.GRPC.Addr)

	boolean("MANIFEST_ENABLED", &cfg.Manifest.Enabled)
	str("MANIFEST_PATH", &cfg.Manifest.Path)
	str("MANIFEST_PUBLISH_OBJECT", &cfg.Manifest.PublishObject)
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.Schema.WorkDir,
		filepath.Dir(c.Manifest.Path),
	}
	if c.Storage.Type == StorageLocal {
		dirs = append(dirs, c.Storage.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
