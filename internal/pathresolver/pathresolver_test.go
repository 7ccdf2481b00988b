package pathresolver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/easyshare-go/easyshare/pkg/protocol"
	"github.com/stretchr/testify/require"
)

func TestResolveWithinRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b"), 0o755))

	r := New(root)

	p, err := r.Resolve("a/b", root)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "a", "b"), p)
}

func TestResolveEmptyReturnsCwd(t *testing.T) {
	root := t.TempDir()
	r := New(root)

	cwd := filepath.Join(root, "sub")
	p, err := r.Resolve("", cwd)
	require.NoError(t, err)
	require.Equal(t, cwd, p)
}

func TestResolveDotDotEscape(t *testing.T) {
	root := t.TempDir()
	r := New(root)

	_, err := r.Resolve("../../etc", root)
	require.Error(t, err)
	perr := protocol.AsError(err)
	require.Equal(t, protocol.ErrPathEscapes, perr.Code)
}

func TestResolveRootRelative(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "x"), 0o755))
	r := New(root)

	p, err := r.Resolve("/x", filepath.Join(root, "somewhere-else-lexically-fine"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "x"), p)
}

func TestResolveSymlinkEscapeRejected(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "evil")))

	r := New(root)
	_, err := r.Resolve("evil", root)
	require.Error(t, err)
	require.Equal(t, protocol.ErrPathEscapes, protocol.AsError(err).Code)
}

func TestResolveSymlinkInsideAllowed(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "real"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(root, "real"), filepath.Join(root, "link")))

	r := New(root)
	p, err := r.Resolve("link", root)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "real"), p)
}

func TestResolveChainedSymlinkEscapeRejected(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()

	// link1 -> link2 -> outside: link1's single hop stays inside root,
	// so only chasing link2 as well reveals the escape.
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link2")))
	require.NoError(t, os.Symlink(filepath.Join(root, "link2"), filepath.Join(root, "link1")))

	r := New(root)
	_, err := r.Resolve("link1", root)
	require.Error(t, err)
	require.Equal(t, protocol.ErrPathEscapes, protocol.AsError(err).Code)
}

func TestResolveChainedSymlinkInsideAllowed(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "real"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(root, "real"), filepath.Join(root, "link2")))
	require.NoError(t, os.Symlink(filepath.Join(root, "link2"), filepath.Join(root, "link1")))

	r := New(root)
	p, err := r.Resolve("link1", root)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "real"), p)
}

func TestResolveSymlinkLoopRejected(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Symlink(filepath.Join(root, "b"), filepath.Join(root, "a")))
	require.NoError(t, os.Symlink(filepath.Join(root, "a"), filepath.Join(root, "b")))

	r := New(root)
	_, err := r.Resolve("a", root)
	require.Error(t, err)
	require.Equal(t, protocol.ErrInvalidArgument, protocol.AsError(err).Code)
}

func TestRelRendersSharingRelativePath(t *testing.T) {
	root := t.TempDir()
	r := New(root)

	rel, err := r.Rel(root)
	require.NoError(t, err)
	require.Equal(t, "/", rel)

	rel, err = r.Rel(filepath.Join(root, "a", "b"))
	require.NoError(t, err)
	require.Equal(t, "/a/b", rel)
}

func TestRejectsNulByte(t *testing.T) {
	root := t.TempDir()
	r := New(root)

	_, err := r.Resolve("a\x00b", root)
	require.Error(t, err)
	require.Equal(t, protocol.ErrInvalidArgument, protocol.AsError(err).Code)
}
