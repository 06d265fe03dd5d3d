package internal

import (
	"fmt"
	"os"
	"slices"

	"github.com/sensiblebit/pemfile"
	"gopkg.in/yaml.v3"
)

// Config holds defaults read from a YAML file. Zero fields fall back to the
// built-in defaults; command-line flags override both.
type Config struct {
	Policy         string   `yaml:"policy,omitempty"`
	MaxSectionSize int      `yaml:"maxSectionSize,omitempty"`
	LineWidth      int      `yaml:"lineWidth,omitempty"`
	Include        []string `yaml:"include,omitempty"`
	Exclude        []string `yaml:"exclude,omitempty"`
	TrustStore     string   `yaml:"trustStore,omitempty"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Policy:         pemfile.Strict.String(),
		MaxSectionSize: pemfile.DefaultMaxSectionSize,
		LineWidth:      pemfile.DefaultLineWidth,
		TrustStore:     "mozilla",
	}
}

// LoadConfig reads path and layers it over DefaultConfig. An empty path
// returns the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if file.Policy != "" {
		cfg.Policy = file.Policy
	}
	if file.MaxSectionSize > 0 {
		cfg.MaxSectionSize = file.MaxSectionSize
	}
	if file.LineWidth != 0 {
		cfg.LineWidth = file.LineWidth
	}
	if file.TrustStore != "" {
		cfg.TrustStore = file.TrustStore
	}
	cfg.Include = file.Include
	cfg.Exclude = file.Exclude

	if _, err := cfg.ScanOptions(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ScanOptions converts the configuration into scanner options.
func (c *Config) ScanOptions() (pemfile.Options, error) {
	policy, err := pemfile.ParsePolicy(c.Policy)
	if err != nil {
		return pemfile.Options{}, err
	}
	if c.MaxSectionSize < 0 {
		return pemfile.Options{}, fmt.Errorf("maxSectionSize must not be negative, got %d", c.MaxSectionSize)
	}
	return pemfile.Options{Policy: policy, MaxSectionSize: c.MaxSectionSize}, nil
}

// Filter returns the label filter described by Include and Exclude.
func (c *Config) Filter() LabelFilter {
	return LabelFilter{Include: c.Include, Exclude: c.Exclude}
}

// LabelFilter selects sections by label or kind name. An entry matches an
// item when it equals the item's label ("RSA PRIVATE KEY") or its kind
// name ("pkcs1-private-key"). An empty Include admits everything; Exclude
// wins over Include.
type LabelFilter struct {
	Include []string
	Exclude []string
}

func filterMatches(entries []string, item pemfile.Item) bool {
	return slices.Contains(entries, item.Label) || slices.Contains(entries, item.Kind.String())
}

// Allows reports whether item passes the filter.
func (f LabelFilter) Allows(item pemfile.Item) bool {
	if filterMatches(f.Exclude, item) {
		return false
	}
	return len(f.Include) == 0 || filterMatches(f.Include, item)
}
