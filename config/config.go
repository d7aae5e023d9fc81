// Package config loads the server configuration from YAML or TOML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/nedpals/tla-sany-lsp/sany"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	ConfigEnv    = "TLA_SANY_LSP_CONFIG"
	ClasspathEnv = "TLA_SANY_LSP_CLASSPATH"
	LibraryEnv   = "TLA_LIBRARY"
)

type AnalyzerConfig struct {
	Command   string            `yaml:"command" toml:"command"`
	Args      []string          `yaml:"args" toml:"args"`
	Classpath string            `yaml:"classpath" toml:"classpath"`
	Format    string            `yaml:"format" toml:"format"`
	Env       map[string]string `yaml:"env" toml:"env"`
}

type JournalConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
}

type Config struct {
	Analyzer     AnalyzerConfig `yaml:"analyzer" toml:"analyzer"`
	LibraryPaths []string       `yaml:"library_paths" toml:"library_paths"`
	Journal      JournalConfig  `yaml:"journal" toml:"journal"`
	Log          LogConfig      `yaml:"log" toml:"log"`
	Listen       string         `yaml:"listen" toml:"listen"`
}

func Default() *Config {
	return &Config{
		Analyzer: AnalyzerConfig{
			Command: "java",
			Args:    []string{"-cp", "${classpath}", "tla2sany.export.Main", "--format", "${format}", "${file}"},
			Format:  string(sany.FormatJSON),
		},
		Journal: JournalConfig{Enabled: true},
		Log:     LogConfig{Level: "info"},
	}
}

// DefaultPath is the configuration file looked up when none is given.
func DefaultPath() string {
	return filepath.Join(DataDirPath(), "config.yaml")
}

// Load reads the configuration at path. An empty path falls back to
// $TLA_SANY_LSP_CONFIG, then to DefaultPath if that file exists, then to the
// defaults.
func Load(path string) (*Config, error) {
	if len(path) == 0 {
		path = os.Getenv(ConfigEnv)
	}

	if len(path) == 0 {
		if _, err := os.Stat(DefaultPath()); err == nil {
			path = DefaultPath()
		}
	}

	cfg := Default()
	if len(path) != 0 {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	return nil
}

func (c *Config) applyEnv() {
	if len(c.Analyzer.Classpath) == 0 {
		c.Analyzer.Classpath = os.Getenv(ClasspathEnv)
	}
	if libs := os.Getenv(LibraryEnv); len(libs) != 0 {
		for _, dir := range filepath.SplitList(libs) {
			if len(dir) != 0 {
				c.LibraryPaths = append(c.LibraryPaths, dir)
			}
		}
	}
}

func (c *Config) Validate() error {
	if len(strings.TrimSpace(c.Analyzer.Command)) == 0 {
		return errors.New("analyzer.command is required")
	}
	if _, err := sany.ParseFormat(c.Analyzer.Format); err != nil {
		return fmt.Errorf("analyzer.format: %w", err)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// Command builds the analyzer described by the configuration.
func (c *Config) Command() *sany.Command {
	format, _ := sany.ParseFormat(c.Analyzer.Format)

	env := make([]string, 0, len(c.Analyzer.Env))
	for k, v := range c.Analyzer.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)

	return &sany.Command{
		Program:   c.Analyzer.Command,
		Args:      append([]string{}, c.Analyzer.Args...),
		Env:       env,
		Classpath: c.Analyzer.Classpath,
		Format:    format,
	}
}

// JournalPath returns where the analysis journal is stored.
func (c *Config) JournalPath() string {
	if len(c.Journal.Path) != 0 {
		return c.Journal.Path
	}
	return filepath.Join(DataDirPath(), "journal.db")
}
