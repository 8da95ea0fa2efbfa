// Package config loads per-repository run settings from .repographrc in
// the repository root. Everything is optional; missing or invalid files
// fall back to defaults.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/repograph/repograph/internal/astcache"
	"github.com/repograph/repograph/internal/lang"
)

// FileName is the repository-local config file.
const FileName = ".repographrc"

// Config holds user-overridable analysis settings.
type Config struct {
	Analysis AnalysisConfig `yaml:"analysis"`
	Cache    CacheConfig    `yaml:"cache"`
}

// AnalysisConfig scopes what gets analyzed.
type AnalysisConfig struct {
	// Languages restricts analysis to these languages. Empty means all
	// supported languages.
	Languages []string `yaml:"languages"`

	// ExcludeGlobs are extra gitignore-syntax patterns applied during
	// discovery, added to the built-in directory exclusions.
	ExcludeGlobs []string `yaml:"exclude_globs"`

	// Workers caps the Pass 2 parse worker count. Zero means NumCPU.
	Workers int `yaml:"workers"`
}

// CacheConfig bounds the syntax tree cache.
type CacheConfig struct {
	MaxEntries *int   `yaml:"max_entries"`
	MaxBytes   *int64 `yaml:"max_bytes"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{}
}

// Load reads .repographrc from the given directory.
// Returns defaults if the file is missing or invalid.
func Load(dir string) *Config {
	cfg := Default()

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return cfg
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return Default()
	}
	return cfg
}

// EnabledLanguages returns the configured language set, or every
// supported language when unrestricted. Unknown names are dropped.
func (c *Config) EnabledLanguages() []lang.Language {
	if len(c.Analysis.Languages) == 0 {
		return lang.AllLanguages()
	}
	var out []lang.Language
	for _, name := range c.Analysis.Languages {
		if spec := lang.ForLanguage(lang.Language(name)); spec != nil {
			out = append(out, spec.Language)
		}
	}
	return out
}

// CacheMaxEntries returns the configured entry bound or the default.
func (c *Config) CacheMaxEntries() int {
	if c.Cache.MaxEntries != nil {
		return *c.Cache.MaxEntries
	}
	return astcache.DefaultMaxEntries
}

// CacheMaxBytes returns the configured byte bound or the default.
func (c *Config) CacheMaxBytes() int64 {
	if c.Cache.MaxBytes != nil {
		return *c.Cache.MaxBytes
	}
	return astcache.DefaultMaxBytes
}
