package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Config is the daemon configuration.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	Listen    string `yaml:"listen"`
	TempDir   string `yaml:"temp_dir"`
	HistoryDB string `yaml:"history_db"`

	// RenderTimeout bounds one compile from send to terminal message.
	// On expiry the worker is killed unconditionally.
	RenderTimeout time.Duration `yaml:"render_timeout"`

	DefaultCompiler string                  `yaml:"default_compiler"`
	Compilers       map[string]CompilerConf `yaml:"compilers"`
}

// CompilerConf describes one selectable worker executable.
type CompilerConf struct {
	Command []string `yaml:"command"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		LogLevel:        "INFO",
		Listen:          "127.0.0.1:8376",
		TempDir:         "",
		HistoryDB:       "",
		RenderTimeout:   10 * time.Second,
		DefaultCompiler: "libsass",
		Compilers: map[string]CompilerConf{
			"libsass": {Command: []string{"sass-worker"}},
		},
	}
}

// Load reads and parses configuration from a YAML file, merging over
// Defaults. ${VAR} references are expanded from the environment before
// parsing.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	data = expandEnvVars(data)

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", absPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", absPath, err)
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.RenderTimeout <= 0 {
		return fmt.Errorf("render_timeout must be positive, got %v", c.RenderTimeout)
	}
	if c.Listen == "" {
		return fmt.Errorf("listen address is empty")
	}
	if len(c.Compilers) == 0 {
		return fmt.Errorf("no compilers configured")
	}
	if c.DefaultCompiler == "" {
		return fmt.Errorf("default_compiler is empty")
	}
	if _, ok := c.Compilers[c.DefaultCompiler]; !ok {
		return fmt.Errorf("default_compiler %q is not in the compilers table", c.DefaultCompiler)
	}
	for name, cc := range c.Compilers {
		if len(cc.Command) == 0 {
			return fmt.Errorf("compiler %q has an empty command", name)
		}
	}
	return nil
}

// CompilerCommand returns the worker command for choice, falling back to the
// default compiler when choice is empty.
func (c *Config) CompilerCommand(choice string) ([]string, error) {
	if choice == "" {
		choice = c.DefaultCompiler
	}
	cc, ok := c.Compilers[choice]
	if !ok {
		return nil, fmt.Errorf("unknown compiler %q", choice)
	}
	return cc.Command, nil
}

// expandEnvVars replaces ${VAR} references with environment values.
// Unset variables expand to the empty string.
func expandEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}
