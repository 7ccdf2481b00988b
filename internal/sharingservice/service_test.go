package sharingservice

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/easyshare-go/easyshare/pkg/protocol"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLsOrdering(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "b.txt"), "1")
	writeFile(t, filepath.Join(root, "a.txt"), "22")
	require.NoError(t, os.Mkdir(filepath.Join(root, "z-dir"), 0o755))

	entries, err := Ls(root, protocol.LsFlags{DirsFirst: true})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "z-dir", entries[0].Name)
	require.Equal(t, "a.txt", entries[1].Name)
	require.Equal(t, "b.txt", entries[2].Name)
}

func TestTreeDepth(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "b", "c.txt"), "x")

	entries, err := Tree(root, 2, protocol.LsFlags{})
	require.NoError(t, err)

	var sawC bool
	for _, e := range entries {
		if e.Name == "c.txt" {
			sawC = true
		}
	}
	require.False(t, sawC, "depth-limited tree should not descend past max_depth")

	entries, err = Tree(root, 0, protocol.LsFlags{})
	require.NoError(t, err)
	for _, e := range entries {
		if e.Name == "c.txt" {
			sawC = true
		}
	}
	require.True(t, sawC, "max_depth<=0 means unlimited depth")
}

func TestMkdirIdempotent(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "a", "b")
	require.NoError(t, Mkdir(target))
	require.NoError(t, Mkdir(target))

	fi, err := os.Stat(target)
	require.NoError(t, err)
	require.True(t, fi.IsDir())
}

func TestCpPreservesContent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "src", "f.txt"), "hello\n")

	results := Cp([]string{filepath.Join(root, "src")}, filepath.Join(root, "dst"))
	require.Len(t, results, 1)
	require.True(t, results[0].OK)

	data, err := os.ReadFile(filepath.Join(root, "dst", "f.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello\n", string(data))
}

func TestRmMissingIsSkippedNotError(t *testing.T) {
	root := t.TempDir()
	results := Rm([]string{filepath.Join(root, "missing")})
	require.Len(t, results, 1)
	require.True(t, results[0].OK)
}

func TestFindGlob(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "notes.txt"), "x")
	writeFile(t, filepath.Join(root, "notes.md"), "x")

	entries, err := Find(root, "*.txt", true)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "notes.txt", entries[0].Path)
}

func TestMvMultipleSourcesRequireDirDest(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "1")
	writeFile(t, filepath.Join(root, "b.txt"), "2")

	results := Mv([]string{filepath.Join(root, "a.txt"), filepath.Join(root, "b.txt")}, filepath.Join(root, "not-a-dir.txt"))
	require.Len(t, results, 2)
	require.False(t, results[0].OK)
}
