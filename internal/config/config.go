package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is where `phylo serve` looks for a config file when
// --config is not given. A missing default file is not an error.
const DefaultConfigPath = "config/phylo.yaml"

// Config is the root server configuration. Every field is optional: the Get*
// methods supply defaults for anything omitted from the YAML file, so partial
// configs are safe.
type Config struct {
	Listen         *string `yaml:"listen,omitempty"`
	UploadsDir     *string `yaml:"uploads_dir,omitempty"`
	ResultsDir     *string `yaml:"results_dir,omitempty"`
	Database       *string `yaml:"database,omitempty"` // empty means in-memory
	MaxUploadBytes *int64  `yaml:"max_upload_bytes,omitempty"`

	// AdmissionIdleTimeout is a duration string like "15m". "0" disables
	// reclaiming admission from an idle pipeline.
	AdmissionIdleTimeout *string `yaml:"admission_idle_timeout,omitempty"`

	Aligner  ToolConfig `yaml:"aligner,omitempty"`
	Inferrer ToolConfig `yaml:"inferrer,omitempty"`
}

// ToolConfig configures one external stage executable.
type ToolConfig struct {
	Path    *string `yaml:"path,omitempty"`
	Timeout *string `yaml:"timeout,omitempty"` // duration string like "30m"
	Threads *string `yaml:"threads,omitempty"` // inferrer only: "AUTO" or a count
}

// Default returns a Config with every field unset.
func Default() *Config {
	return &Config{}
}

// Load reads a Config from a YAML file. The file must have a .yaml or .yml
// extension and be under 1MB. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path if it exists and returns Default() otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	if c.MaxUploadBytes != nil && *c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive, got %d", *c.MaxUploadBytes)
	}

	durations := []struct {
		key string
		val *string
	}{
		{"admission_idle_timeout", c.AdmissionIdleTimeout},
		{"aligner.timeout", c.Aligner.Timeout},
		{"inferrer.timeout", c.Inferrer.Timeout},
	}
	for _, d := range durations {
		if d.val == nil || *d.val == "" {
			continue
		}
		v, err := time.ParseDuration(*d.val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.key, *d.val, err)
		}
		if v < 0 {
			return fmt.Errorf("%s must not be negative, got %s", d.key, *d.val)
		}
	}

	if c.Aligner.Threads != nil {
		return fmt.Errorf("aligner.threads is not supported")
	}
	if c.UploadsDir != nil && c.ResultsDir != nil && filepath.Clean(*c.UploadsDir) == filepath.Clean(*c.ResultsDir) {
		return fmt.Errorf("uploads_dir and results_dir must differ")
	}

	return nil
}

// GetListen returns the HTTP listen address or the default.
func (c *Config) GetListen() string {
	return stringOr(c.Listen, ":8080")
}

// GetUploadsDir returns the raw upload directory or the default.
func (c *Config) GetUploadsDir() string {
	return stringOr(c.UploadsDir, "uploads")
}

// GetResultsDir returns the results root or the default.
func (c *Config) GetResultsDir() string {
	return stringOr(c.ResultsDir, "results")
}

// GetDatabase returns the registry database path; empty selects in-memory.
func (c *Config) GetDatabase() string {
	return stringOr(c.Database, "")
}

// GetMaxUploadBytes returns the upload size limit or the default (64MiB).
func (c *Config) GetMaxUploadBytes() int64 {
	if c.MaxUploadBytes == nil {
		return 64 << 20
	}
	return *c.MaxUploadBytes
}

// GetAdmissionIdleTimeout returns the idle lease or the default of 15 minutes.
func (c *Config) GetAdmissionIdleTimeout() time.Duration {
	return durationOr(c.AdmissionIdleTimeout, 15*time.Minute)
}

// GetAlignerPath returns the alignment executable or the default.
func (c *Config) GetAlignerPath() string {
	return stringOr(c.Aligner.Path, "clustalo")
}

// GetAlignerTimeout returns the alignment timeout or the default of 30 minutes.
func (c *Config) GetAlignerTimeout() time.Duration {
	return durationOr(c.Aligner.Timeout, 30*time.Minute)
}

// GetInferrerPath returns the tree inference executable or the default.
func (c *Config) GetInferrerPath() string {
	return stringOr(c.Inferrer.Path, "iqtree")
}

// GetInferrerThreads returns the value passed to -nt or the default.
func (c *Config) GetInferrerThreads() string {
	return stringOr(c.Inferrer.Threads, "AUTO")
}

// GetInferrerTimeout returns the inference timeout or the default of 2 hours.
func (c *Config) GetInferrerTimeout() time.Duration {
	return durationOr(c.Inferrer.Timeout, 2*time.Hour)
}

func stringOr(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}
