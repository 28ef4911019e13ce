// Package pathmap translates compiler output paths back into the caller's
// coordinate space. Everything here is pure: the same inputs always produce
// the same rewritten paths.
package pathmap

import (
	gopath "path"
	"path/filepath"
	"strings"

	"github.com/mattjoyce/sasspipe/internal/protocol"
)

// SeparatorRelative normalizes p for comparison: backslashes become forward
// slashes and any drive-letter prefix is dropped, so paths compare
// separator-relative rather than drive-relative.
func SeparatorRelative(p string) string {
	s := strings.ReplaceAll(p, `\`, "/")
	if len(s) >= 2 && s[1] == ':' && isDriveLetter(s[0]) {
		s = s[2:]
	}
	return s
}

func isDriveLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// norm produces the canonical comparison form of a path.
func norm(p string) string {
	return gopath.Clean(SeparatorRelative(p))
}

// SamePath reports whether two paths refer to the same file once
// normalized.
func SamePath(a, b string) bool {
	return norm(a) == norm(b)
}

// Within reports whether p lies inside root (or equals it).
func Within(p, root string) bool {
	np, nr := norm(p), norm(root)
	return np == nr || strings.HasPrefix(np, nr+"/")
}

// resolve interprets p against base when p is relative.
func resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

// relTo re-expresses p relative to dir, falling back to the resolved path
// when no relative form exists.
func relTo(dir, p string) string {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return p
	}
	return rel
}

// RewriteRenderSources rewrites a render-mode source map in place. Sources
// arrive relative to the output file's directory; each is resolved, the
// compiled entry file's source moves to the front, and every source is
// re-expressed relative to the output directory.
func RewriteRenderSources(m *protocol.SourceMap, entryFile, outFile string) {
	if m == nil || len(m.Sources) == 0 {
		return
	}

	outDir := filepath.Dir(outFile)

	entryAt := -1
	rewritten := make([]string, 0, len(m.Sources))
	for i, src := range m.Sources {
		abs := resolve(outDir, src)
		if entryAt == -1 && SamePath(abs, entryFile) {
			entryAt = i
		}
		rewritten = append(rewritten, relTo(outDir, abs))
	}

	if entryAt > 0 {
		entry := rewritten[entryAt]
		rewritten = append(rewritten[:entryAt], rewritten[entryAt+1:]...)
		rewritten = append([]string{entry}, rewritten...)
	}

	m.Sources = rewritten
}

// Preview describes the coordinate spaces of one preview compile: the
// staging root for the compile, the staged output file's directory, and the
// caller's real project directory the staging tree mirrors.
type Preview struct {
	Root       string
	OutDir     string
	ProjectDir string
}

// RewriteSources rewrites a preview-mode source map in place. Sources still
// inside the staging tree are re-expressed relative to the staging output
// directory; sources that escaped staging to real files are re-expressed
// relative to the project directory.
func (p Preview) RewriteSources(m *protocol.SourceMap) {
	if m == nil {
		return
	}

	for i, src := range m.Sources {
		abs := resolve(p.OutDir, src)
		if Within(abs, p.Root) {
			m.Sources[i] = relTo(p.OutDir, abs)
		} else {
			m.Sources[i] = relTo(p.ProjectDir, abs)
		}
	}
}

// RewritePath maps an error path inside the staging tree back to the real
// project path. Paths outside staging pass through unchanged.
func (p Preview) RewritePath(path string) string {
	if path == "" {
		return path
	}
	abs := resolve(p.OutDir, path)
	if !Within(abs, p.Root) {
		return path
	}
	rel, err := filepath.Rel(p.Root, abs)
	if err != nil {
		return path
	}
	return filepath.Join(p.ProjectDir, rel)
}

// StripRoot removes the staging-root prefix from a human-readable message.
func (p Preview) StripRoot(msg string) string {
	root := filepath.Clean(p.Root)
	msg = strings.ReplaceAll(msg, root+string(filepath.Separator), "")
	return strings.ReplaceAll(msg, root, "")
}

// RewriteErrors returns errs with paths mapped back to caller space and the
// staging root scrubbed from messages.
func (p Preview) RewriteErrors(errs []protocol.CompileError) []protocol.CompileError {
	out := make([]protocol.CompileError, len(errs))
	for i, e := range errs {
		e.Path = p.RewritePath(e.Path)
		e.Message = p.StripRoot(e.Message)
		out[i] = e
	}
	return out
}
