package staging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestKeyIsStableAndSeparatorBlind(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Key("/proj/src/a.scss"), Key("/proj/src/a.scss"))
	assert.Equal(t, Key(`C:\proj\src\a.scss`), Key("/proj/src/a.scss"))
	assert.NotEqual(t, Key("/proj/src/a.scss"), Key("/proj/src/b.scss"))
	assert.Len(t, Key("/proj/src/a.scss"), 16)
}

func TestStageSnapshotsEntryAndIncludes(t *testing.T) {
	t.Parallel()

	proj := t.TempDir()
	entry := filepath.Join(proj, "main.scss")
	writeFile(t, entry, `@import "partials/colors";`)
	writeFile(t, filepath.Join(proj, "partials", "_colors.scss"), "$red: #f00;")

	outside := t.TempDir()
	writeFile(t, filepath.Join(outside, "_theme.scss"), "$theme: dark;")

	m := NewManager(t.TempDir())
	st, err := m.Stage(entry, []string{filepath.Join(proj, "partials"), outside}, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(st.EntryFile)
	require.NoError(t, err)
	assert.Equal(t, `@import "partials/colors";`, string(data))

	// In-project include copied into the snapshot.
	_, err = os.Stat(filepath.Join(st.Root, "partials", "_colors.scss"))
	assert.NoError(t, err)

	// Search list: real project dir first, then staged include, then the
	// untouched outside include.
	require.Len(t, st.IncludePaths, 3)
	assert.Equal(t, proj, st.IncludePaths[0])
	assert.Equal(t, filepath.Join(st.Root, "partials"), st.IncludePaths[1])
	assert.Equal(t, outside, st.IncludePaths[2])
}

func TestStageInMemoryContentWins(t *testing.T) {
	t.Parallel()

	proj := t.TempDir()
	entry := filepath.Join(proj, "main.scss")
	writeFile(t, entry, "a{}")

	m := NewManager(t.TempDir())
	st, err := m.Stage(entry, nil, map[string]string{
		"main.scss":                     "b{} /* unsaved buffer */",
		"partials/_new.scss":            "$x: 1;",
		filepath.Join(proj, "abs.scss"): "c{}", // absolute path under the project
	})
	require.NoError(t, err)

	data, err := os.ReadFile(st.EntryFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "unsaved buffer")

	data, err = os.ReadFile(filepath.Join(st.Root, "partials", "_new.scss"))
	require.NoError(t, err)
	assert.Equal(t, "$x: 1;", string(data))

	_, err = os.Stat(filepath.Join(st.Root, "abs.scss"))
	assert.NoError(t, err)
}

func TestStageWipesPreviousSnapshot(t *testing.T) {
	t.Parallel()

	proj := t.TempDir()
	entry := filepath.Join(proj, "main.scss")
	writeFile(t, entry, "a{}")

	m := NewManager(t.TempDir())

	st1, err := m.Stage(entry, nil, map[string]string{"stale.scss": "old"})
	require.NoError(t, err)

	st2, err := m.Stage(entry, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, st1.Root, st2.Root, "same entry stages to the same key")

	_, err = os.Stat(filepath.Join(st2.Root, "stale.scss"))
	assert.True(t, os.IsNotExist(err), "previous snapshot contents must be wiped")
}

func TestStageMissingEntryComesFromMemory(t *testing.T) {
	t.Parallel()

	proj := t.TempDir()
	entry := filepath.Join(proj, "never-saved.scss")

	m := NewManager(t.TempDir())
	st, err := m.Stage(entry, nil, map[string]string{"never-saved.scss": "a{}"})
	require.NoError(t, err)

	data, err := os.ReadFile(st.EntryFile)
	require.NoError(t, err)
	assert.Equal(t, "a{}", string(data))
}

func TestDeleteAllIsIdempotent(t *testing.T) {
	t.Parallel()

	proj := t.TempDir()
	entry := filepath.Join(proj, "main.scss")
	writeFile(t, entry, "a{}")

	m := NewManager(t.TempDir())
	st, err := m.Stage(entry, nil, nil)
	require.NoError(t, err)

	require.NoError(t, m.DeleteAll())
	_, err = os.Stat(st.Root)
	assert.True(t, os.IsNotExist(err))

	// Second call is a no-op, no error.
	require.NoError(t, m.DeleteAll())
}

func TestStagedMapRejectsForeignAbsolutePaths(t *testing.T) {
	t.Parallel()

	proj := t.TempDir()
	entry := filepath.Join(proj, "main.scss")
	writeFile(t, entry, "a{}")

	m := NewManager(t.TempDir())
	st, err := m.Stage(entry, nil, nil)
	require.NoError(t, err)

	_, err = st.Map("/etc/passwd")
	assert.Error(t, err)
}

func TestSetTempDirAndMkdirp(t *testing.T) {
	t.Parallel()

	m := NewManager("")
	assert.Contains(t, m.TempDir(), "sasspipe")

	dir := filepath.Join(t.TempDir(), "custom", "tmp")
	require.NoError(t, m.SetTempDir(dir))
	assert.Equal(t, dir, m.TempDir())

	deep := filepath.Join(t.TempDir(), "a", "b", "c")
	require.NoError(t, m.Mkdirp(deep))
	info, err := os.Stat(deep)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	assert.Error(t, m.SetTempDir(""))
	assert.Error(t, m.Mkdirp(""))
}
