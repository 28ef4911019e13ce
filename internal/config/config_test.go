package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Defaults().Validate())
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
log_level: DEBUG
render_timeout: 30s
compilers:
  dart-sass:
    command: ["dart-sass-worker", "--stdio"]
default_compiler: dart-sass
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.RenderTimeout)
	assert.Equal(t, "127.0.0.1:8376", cfg.Listen, "unset fields keep defaults")

	cmd, err := cfg.CompilerCommand("")
	require.NoError(t, err)
	assert.Equal(t, []string{"dart-sass-worker", "--stdio"}, cmd)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("SASSPIPE_TMP", "/var/tmp/sasspipe")

	path := writeConfig(t, `
temp_dir: ${SASSPIPE_TMP}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/tmp/sasspipe", cfg.TempDir)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "config file not found")
}

func TestValidateRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "zero timeout",
			mutate: func(c *Config) { c.RenderTimeout = 0 },
			want:   "render_timeout",
		},
		{
			name:   "unknown default compiler",
			mutate: func(c *Config) { c.DefaultCompiler = "ghost" },
			want:   "default_compiler",
		},
		{
			name:   "empty command",
			mutate: func(c *Config) { c.Compilers["libsass"] = CompilerConf{} },
			want:   "empty command",
		},
		{
			name:   "no compilers",
			mutate: func(c *Config) { c.Compilers = nil },
			want:   "no compilers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestCompilerCommandUnknownChoice(t *testing.T) {
	t.Parallel()
	_, err := Defaults().CompilerCommand("no-such-compiler")
	assert.ErrorContains(t, err, "unknown compiler")
}
