// Package doctor validates sasspipe configuration and the environment it
// expects: compiler executables, the temp tree, the history database.
package doctor

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"time"

	"github.com/mattjoyce/sasspipe/internal/config"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration against the host environment.
type Doctor struct {
	cfg *config.Config

	// lookPath is swappable for tests.
	lookPath func(string) (string, error)
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg, lookPath: exec.LookPath}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateListen(r)
	d.validateCompilers(r)
	d.validateTempDir(r)
	d.validateHistoryDB(r)
	d.warnSlowTimeout(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateListen(r *Result) {
	if d.cfg.Listen == "" {
		d.addError(r, "api", "listen", "listen address is required")
		return
	}
	host, _, err := net.SplitHostPort(d.cfg.Listen)
	if err != nil {
		d.addError(r, "api", "listen", fmt.Sprintf("listen address is not host:port: %v", err))
		return
	}
	if host != "127.0.0.1" && host != "localhost" && host != "::1" {
		d.addWarning(r, "api", "listen",
			fmt.Sprintf("listening on %s exposes the compile API beyond loopback", host))
	}
}

func (d *Doctor) validateCompilers(r *Result) {
	if len(d.cfg.Compilers) == 0 {
		d.addError(r, "compilers", "compilers", "no compilers configured")
		return
	}
	if _, ok := d.cfg.Compilers[d.cfg.DefaultCompiler]; !ok {
		d.addError(r, "compilers", "default_compiler",
			fmt.Sprintf("default_compiler %q is not in the compilers table", d.cfg.DefaultCompiler))
	}

	for name, cc := range d.cfg.Compilers {
		field := fmt.Sprintf("compilers.%s", name)
		if len(cc.Command) == 0 {
			d.addError(r, "compilers", field, "command is empty")
			continue
		}
		exe := cc.Command[0]
		if filepath.IsAbs(exe) {
			if _, err := os.Stat(exe); err != nil {
				d.addError(r, "compilers", field, fmt.Sprintf("worker executable not found: %s", exe))
			}
			continue
		}
		if _, err := d.lookPath(exe); err != nil {
			d.addError(r, "compilers", field, fmt.Sprintf("worker executable not on PATH: %s", exe))
		}
	}
}

func (d *Doctor) validateTempDir(r *Result) {
	if d.cfg.TempDir == "" {
		return // falls back to the OS temp dir
	}
	info, err := os.Stat(d.cfg.TempDir)
	if err != nil {
		d.addWarning(r, "staging", "temp_dir",
			fmt.Sprintf("temp_dir does not exist yet: %s (it will be created on first use)", d.cfg.TempDir))
		return
	}
	if !info.IsDir() {
		d.addError(r, "staging", "temp_dir", fmt.Sprintf("temp_dir is not a directory: %s", d.cfg.TempDir))
		return
	}
	probe := filepath.Join(d.cfg.TempDir, ".doctor-probe")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		d.addError(r, "staging", "temp_dir", fmt.Sprintf("temp_dir is not writable: %v", err))
		return
	}
	_ = os.Remove(probe)
}

func (d *Doctor) validateHistoryDB(r *Result) {
	if d.cfg.HistoryDB == "" {
		return // history is optional
	}
	dir := filepath.Dir(d.cfg.HistoryDB)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		d.addError(r, "history", "history_db",
			fmt.Sprintf("parent directory of history_db does not exist: %s", dir))
	}
}

func (d *Doctor) warnSlowTimeout(r *Result) {
	if d.cfg.RenderTimeout > 5*time.Minute {
		d.addWarning(r, "pipeline", "render_timeout",
			fmt.Sprintf("render_timeout of %v will hold the queue a long time on a hung worker", d.cfg.RenderTimeout))
	}
}

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// CheckEnvRefs scans raw config text for ${VAR} references to unset
// environment variables. Call it with the file contents before expansion.
func CheckEnvRefs(raw []byte) []Issue {
	var issues []Issue
	seen := map[string]bool{}
	for _, m := range envRefPattern.FindAllSubmatch(raw, -1) {
		name := string(m[1])
		if seen[name] {
			continue
		}
		seen[name] = true
		if _, ok := os.LookupEnv(name); !ok {
			issues = append(issues, Issue{
				Category: "config",
				Field:    name,
				Message:  fmt.Sprintf("${%s} is referenced but not set; it expands to an empty string", name),
			})
		}
	}
	return issues
}
