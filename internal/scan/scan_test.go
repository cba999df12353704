package scan

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
}

func sorted(paths []string) []string {
	out := append([]string(nil), paths...)
	sort.Strings(out)
	return out
}

func TestScan_DirectoryOneLevelDeep(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.mp4"))
	touch(t, filepath.Join(root, "b.MOV"))
	touch(t, filepath.Join(root, "c.avi"))
	touch(t, filepath.Join(root, "d.mkv"))
	touch(t, filepath.Join(root, "notes.txt"))
	touch(t, filepath.Join(root, "nested", "e.mp4"))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dir.mp4"), 0o755))

	groups := NewScanner(quietLogger()).Scan([]string{root})

	require.Len(t, groups, 1)
	assert.Equal(t, []string{
		filepath.Join(root, "a.mp4"),
		filepath.Join(root, "b.MOV"),
		filepath.Join(root, "c.avi"),
		filepath.Join(root, "d.mkv"),
	}, sorted(groups[root]))
}

func TestScan_SingleFileGroupedByParent(t *testing.T) {
	root := t.TempDir()
	video := filepath.Join(root, "clips", "one.mp4")
	touch(t, video)

	groups := NewScanner(quietLogger()).Scan([]string{filepath.Join(root, "clips", ".", "..", "clips", "one.mp4")})

	require.Len(t, groups, 1)
	assert.Equal(t, []string{video}, groups[filepath.Join(root, "clips")])
}

func TestScan_SkipsMissingAndUnsupported(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "ok", "a.mp4"))
	touch(t, filepath.Join(root, "readme.md"))

	groups := NewScanner(quietLogger()).Scan([]string{
		filepath.Join(root, "missing"),
		filepath.Join(root, "readme.md"),
		filepath.Join(root, "ok"),
	})

	require.Len(t, groups, 1)
	assert.Contains(t, groups, filepath.Join(root, "ok"))
}

func TestScan_EmptyDirectoryProducesNoGroup(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "only.txt"))

	groups := NewScanner(quietLogger()).Scan([]string{root})
	assert.Empty(t, groups)
}

func TestScan_MergesFileAndDirectoryInputs(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "a.mp4")
	b := filepath.Join(root, "b.mp4")
	touch(t, a)
	touch(t, b)

	groups := NewScanner(quietLogger()).Scan([]string{a, root})

	require.Len(t, groups, 1)
	assert.Equal(t, []string{a, b}, sorted(groups[root]))
}

func TestTag(t *testing.T) {
	assert.Equal(t, "clips", Tag("/data/clips"))
	assert.Equal(t, "clips", Tag("/data/clips/"))
	assert.Equal(t, "default", Tag("."))
	assert.Equal(t, "default", Tag("/"))
}
