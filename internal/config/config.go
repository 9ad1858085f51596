// Package config provides configuration management for Singlet using Viper,
// loading from .singlet.yml files, environment variables with the SINGLET_
// prefix, and command-line flags.
//
// Configuration covers the preview server, the component manifest (tag name
// to source path mappings), registration concurrency, and development
// options like hot reload.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Components  ComponentsConfig  `yaml:"components"`
	Development DevelopmentConfig `yaml:"development"`
	Logging     LoggingConfig     `yaml:"logging"`
	TargetFiles []string          `yaml:"-"` // CLI arguments, not from config file
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	Open           bool     `yaml:"open"`
	NoOpen         bool     `yaml:"no-open"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ComponentEntry maps one custom tag name to its single-file source.
type ComponentEntry struct {
	Name         string `yaml:"name"`
	Path         string `yaml:"path"`
	UseShadowDOM bool   `yaml:"shadow_dom"`
}

type ComponentsConfig struct {
	// Register lists components loaded at startup.
	Register []ComponentEntry `yaml:"register"`
	// ScanPaths are directories scanned for *.html component sources; the
	// file stem becomes the tag name.
	ScanPaths       []string `yaml:"scan_paths"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
	// Concurrency bounds simultaneous fetches during batch registration.
	Concurrency int `yaml:"concurrency"`
}

type DevelopmentConfig struct {
	HotReload    bool `yaml:"hot_reload"`
	ErrorOverlay bool `yaml:"error_overlay"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Apply defaults for scan paths only if not explicitly set
	if !viper.IsSet("components.scan_paths") && len(config.Components.ScanPaths) == 0 {
		config.Components.ScanPaths = []string{"./components"}
	}

	// Handle scan_paths set via viper (workaround for viper slice handling)
	if viper.IsSet("components.scan_paths") && len(config.Components.ScanPaths) == 0 {
		scanPaths := viper.GetStringSlice("components.scan_paths")
		if len(scanPaths) > 0 {
			config.Components.ScanPaths = scanPaths
		}
	}

	if viper.IsSet("components.exclude_patterns") && len(config.Components.ExcludePatterns) == 0 {
		excludePatterns := viper.GetStringSlice("components.exclude_patterns")
		if len(excludePatterns) > 0 {
			config.Components.ExcludePatterns = excludePatterns
		}
	}

	// Handle development settings set via viper (workaround for viper bool handling)
	if viper.IsSet("development.hot_reload") {
		config.Development.HotReload = viper.GetBool("development.hot_reload")
	}
	if viper.IsSet("development.error_overlay") {
		config.Development.ErrorOverlay = viper.GetBool("development.error_overlay")
	}

	applyDefaults(&config)

	if err := Validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyDefaults(c *Config) {
	if c.Server.Port == 0 {
		c.Server.Port = 8120
	}
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Components.Concurrency == 0 {
		c.Components.Concurrency = 5
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks configuration values for consistency.
func Validate(c *Config) error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Components.Concurrency < 1 {
		return fmt.Errorf("components.concurrency must be at least 1, got %d", c.Components.Concurrency)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level %q", c.Logging.Level)
	}
	seen := make(map[string]string, len(c.Components.Register))
	for _, entry := range c.Components.Register {
		if entry.Name == "" {
			return fmt.Errorf("component entry with path %q has no name", entry.Path)
		}
		if entry.Path == "" {
			return fmt.Errorf("component %q has no path", entry.Name)
		}
		if prev, dup := seen[entry.Name]; dup {
			return fmt.Errorf("component %q registered twice (%s and %s)", entry.Name, prev, entry.Path)
		}
		seen[entry.Name] = entry.Path
	}
	return nil
}

// DiscoverComponents scans the configured scan paths for *.html sources and
// returns registration entries. The file stem is used as the tag name;
// files matching an exclude pattern or whose stem carries no hyphen are
// skipped, since custom tag names require one.
func (c *Config) DiscoverComponents() ([]ComponentEntry, error) {
	var entries []ComponentEntry
	for _, dir := range c.Components.ScanPaths {
		err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() || !strings.HasSuffix(path, ".html") {
				return nil
			}
			for _, pattern := range c.Components.ExcludePatterns {
				if ok, _ := filepath.Match(pattern, filepath.Base(path)); ok {
					return nil
				}
			}
			stem := strings.TrimSuffix(filepath.Base(path), ".html")
			if !strings.Contains(stem, "-") {
				return nil
			}
			entries = append(entries, ComponentEntry{Name: stem, Path: path})
			return nil
		})
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("scanning %s: %w", dir, err)
		}
	}
	return entries, nil
}

// DefaultConfig returns a fully defaulted configuration.
func DefaultConfig() *Config {
	c := &Config{}
	applyDefaults(c)
	c.Components.ScanPaths = []string{"./components"}
	c.Development.HotReload = true
	return c
}

// WriteDefault writes a scaffold .singlet.yml to path. It refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
