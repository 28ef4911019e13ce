package doctor

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/sasspipe/internal/config"
)

func testDoctor(cfg *config.Config) *Doctor {
	d := New(cfg)
	d.lookPath = func(exe string) (string, error) {
		if exe == "sass-worker" {
			return "/usr/bin/sass-worker", nil
		}
		return "", fmt.Errorf("not found")
	}
	return d
}

func TestValidateHealthyConfig(t *testing.T) {
	cfg := config.Defaults()
	r := testDoctor(cfg).Validate()

	assert.True(t, r.Valid)
	assert.Empty(t, r.Errors)
}

func TestMissingWorkerExecutable(t *testing.T) {
	cfg := config.Defaults()
	cfg.Compilers["dart"] = config.CompilerConf{Command: []string{"dart-sass-worker"}}

	r := testDoctor(cfg).Validate()

	require.False(t, r.Valid)
	require.Len(t, r.Errors, 1)
	assert.Equal(t, "compilers.dart", r.Errors[0].Field)
}

func TestAbsoluteWorkerPathChecked(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "worker")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755))

	cfg := config.Defaults()
	cfg.Compilers["libsass"] = config.CompilerConf{Command: []string{exe}}
	r := testDoctor(cfg).Validate()
	assert.True(t, r.Valid)

	cfg.Compilers["libsass"] = config.CompilerConf{Command: []string{filepath.Join(dir, "missing")}}
	r = testDoctor(cfg).Validate()
	assert.False(t, r.Valid)
}

func TestNonLoopbackListenWarns(t *testing.T) {
	cfg := config.Defaults()
	cfg.Listen = "0.0.0.0:8376"

	r := testDoctor(cfg).Validate()

	assert.True(t, r.Valid)
	require.Len(t, r.Warnings, 1)
	assert.Equal(t, "listen", r.Warnings[0].Field)
}

func TestBadListenAddress(t *testing.T) {
	cfg := config.Defaults()
	cfg.Listen = "not-an-address"

	r := testDoctor(cfg).Validate()
	assert.False(t, r.Valid)
}

func TestTempDirChecks(t *testing.T) {
	cfg := config.Defaults()

	cfg.TempDir = filepath.Join(t.TempDir(), "not-yet")
	r := testDoctor(cfg).Validate()
	assert.True(t, r.Valid, "missing temp dir is only a warning")
	assert.NotEmpty(t, r.Warnings)

	file := filepath.Join(t.TempDir(), "plain-file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	cfg.TempDir = file
	r = testDoctor(cfg).Validate()
	assert.False(t, r.Valid)
}

func TestHistoryDBParentMustExist(t *testing.T) {
	cfg := config.Defaults()
	cfg.HistoryDB = filepath.Join(t.TempDir(), "nope", "history.db")

	r := testDoctor(cfg).Validate()
	require.False(t, r.Valid)
	assert.Equal(t, "history_db", r.Errors[0].Field)
}

func TestSlowTimeoutWarns(t *testing.T) {
	cfg := config.Defaults()
	cfg.RenderTimeout = 10 * time.Minute

	r := testDoctor(cfg).Validate()
	assert.True(t, r.Valid)
	assert.NotEmpty(t, r.Warnings)
}

func TestCheckEnvRefs(t *testing.T) {
	t.Setenv("SASSPIPE_SET_VAR", "1")

	raw := []byte("temp_dir: ${SASSPIPE_SET_VAR}\nhistory_db: ${SASSPIPE_UNSET_VAR}/h.db\nlisten: ${SASSPIPE_UNSET_VAR}\n")
	issues := CheckEnvRefs(raw)

	require.Len(t, issues, 1, "set vars and duplicates are not reported")
	assert.Equal(t, "SASSPIPE_UNSET_VAR", issues[0].Field)
}
