// Package staging materializes disposable snapshots of source trees so a
// compile can run against disk files even when the editor buffer is
// unsaved. Each snapshot lives under a content-hash-keyed directory inside
// the temp root and is registered for bulk cleanup.
package staging

import (
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/mattjoyce/sasspipe/internal/pathmap"
)

// Manager owns the staging root and the registry of created snapshots.
type Manager struct {
	mu       sync.Mutex
	baseDir  string
	registry map[string]string // key -> snapshot dir
}

// Staged describes one materialized snapshot.
type Staged struct {
	// Root is the snapshot directory (baseDir/key).
	Root string
	// ProjectDir is the real directory the snapshot mirrors: the entry
	// file's parent.
	ProjectDir string
	// EntryFile is the staged copy of the entry file.
	EntryFile string
	// IncludePaths is the adjusted search list: the real project directory
	// first, then the staged or passed-through include paths.
	IncludePaths []string
}

// NewManager creates a manager rooted at baseDir. An empty baseDir falls
// back to a "sasspipe" directory under the system temp path.
func NewManager(baseDir string) *Manager {
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "sasspipe")
	}
	return &Manager{
		baseDir:  filepath.Clean(baseDir),
		registry: make(map[string]string),
	}
}

// Key derives the snapshot directory name for an entry file path.
func Key(entryPath string) string {
	sum := blake3.Sum256([]byte(pathmap.SeparatorRelative(entryPath)))
	return hex.EncodeToString(sum[:])[:16]
}

// TempDir returns the current staging root.
func (m *Manager) TempDir() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.baseDir
}

// SetTempDir moves the staging root. Existing registered snapshots stay
// where they are and remain subject to DeleteAll.
func (m *Manager) SetTempDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("temp directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create temp directory: %w", err)
	}

	m.mu.Lock()
	m.baseDir = filepath.Clean(dir)
	m.mu.Unlock()
	return nil
}

// Mkdirp creates a directory and any missing parents.
func (m *Manager) Mkdirp(path string) error {
	if path == "" {
		return fmt.Errorf("path is empty")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("mkdirp %q: %w", path, err)
	}
	return nil
}

// Stage snapshots entryFile, its include paths, and the in-memory file
// contents into a fresh directory keyed by the entry path's hash. Any
// pre-existing snapshot for the same key is wiped first. Only paths that
// exist on disk are copied; in-memory contents are written verbatim to
// their staging-relative locations and take precedence over disk copies.
func (m *Manager) Stage(entryFile string, includePaths []string, inMemory map[string]string) (*Staged, error) {
	absEntry, err := filepath.Abs(entryFile)
	if err != nil {
		return nil, fmt.Errorf("resolve entry file: %w", err)
	}
	projectDir := filepath.Dir(absEntry)
	key := Key(absEntry)

	m.mu.Lock()
	root := filepath.Join(m.baseDir, key)
	m.registry[key] = root
	m.mu.Unlock()

	if err := os.RemoveAll(root); err != nil {
		return nil, fmt.Errorf("wipe stale snapshot %q: %w", root, err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}

	st := &Staged{
		Root:       root,
		ProjectDir: projectDir,
		EntryFile:  filepath.Join(root, filepath.Base(absEntry)),
		// Sibling-relative imports must keep resolving against real files,
		// so the original parent directory leads the search list.
		IncludePaths: []string{projectDir},
	}

	if _, err := os.Stat(absEntry); err == nil {
		if err := copyFile(absEntry, st.EntryFile); err != nil {
			return nil, err
		}
	}

	for _, inc := range includePaths {
		staged, err := m.stageInclude(st, inc)
		if err != nil {
			return nil, err
		}
		st.IncludePaths = append(st.IncludePaths, staged)
	}

	for rel, content := range inMemory {
		target, err := st.Map(rel)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, fmt.Errorf("create parent for %q: %w", target, err)
		}
		if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("write in-memory file %q: %w", target, err)
		}
	}

	return st, nil
}

// stageInclude copies one include path into the snapshot when it lies under
// the project and exists on disk. Everything else passes through unchanged.
func (m *Manager) stageInclude(st *Staged, inc string) (string, error) {
	abs, err := filepath.Abs(inc)
	if err != nil {
		return "", fmt.Errorf("resolve include path %q: %w", inc, err)
	}
	if !pathmap.Within(abs, st.ProjectDir) {
		return abs, nil
	}
	if _, err := os.Stat(abs); err != nil {
		return abs, nil
	}

	rel, err := filepath.Rel(st.ProjectDir, abs)
	if err != nil {
		return "", fmt.Errorf("relativize include path %q: %w", inc, err)
	}
	dst := filepath.Join(st.Root, rel)
	if err := copyTree(abs, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// Map translates a project path (or project-relative path) into its
// location inside the snapshot. Paths outside the project are rejected.
func (s *Staged) Map(p string) (string, error) {
	if !filepath.IsAbs(p) {
		return filepath.Join(s.Root, p), nil
	}
	if !pathmap.Within(p, s.ProjectDir) {
		return "", fmt.Errorf("path %q is outside the project directory", p)
	}
	rel, err := filepath.Rel(s.ProjectDir, filepath.Clean(p))
	if err != nil {
		return "", fmt.Errorf("relativize %q: %w", p, err)
	}
	return filepath.Join(s.Root, rel), nil
}

// DeleteAll removes every registered snapshot and clears the registry.
// Calling it again is a no-op.
func (m *Manager) DeleteAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, dir := range m.registry {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("remove snapshot %q: %w", dir, err)
		}
		delete(m.registry, key)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %q: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %q: %w", src, err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create %q: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %q to %q: %w", src, dst, err)
	}
	return out.Close()
}

// copyTree copies a file or directory tree. Snapshots copy bytes rather
// than hard-linking so later edits to real files cannot leak into a
// staged compile.
func copyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat %q: %w", src, err)
	}
	if !info.IsDir() {
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("create parent for %q: %w", dst, err)
		}
		return copyFile(src, dst)
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return fmt.Errorf("resolve relative path: %w", err)
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create directory %q: %w", target, err)
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil // skip sockets, symlinks and other oddities
		}
		return copyFile(path, target)
	})
}
