package transfer

import (
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/easyshare-go/easyshare/internal/logger"
	"github.com/easyshare-go/easyshare/pkg/protocol"
	"github.com/stretchr/testify/require"
)

func testLogger() *logger.Logger {
	return logger.New("test", logger.LevelError, logger.FormatText, io.Discard)
}

func dialLoopback(t *testing.T, addr *net.TCPAddr) net.Conn {
	t.Helper()
	loopback := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: addr.Port}
	conn, err := net.Dial("tcp", loopback.String())
	require.NoError(t, err)
	return conn
}

func TestGetTransferStreamsFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "f1"), []byte("hello\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "f2"), []byte{}, 0o644))

	tr, err := NewGet(root, "127.0.0.1", []string{filepath.Join(root, "a")}, protocol.OverwriteYes, testLogger())
	require.NoError(t, err)

	go tr.Serve()

	conn := dialLoopback(t, tr.Addr())
	defer conn.Close()

	var manifest protocol.Manifest
	require.NoError(t, protocol.ReadFrame(conn, &manifest))
	require.Len(t, manifest.Files, 3) // a/, a/f1, a/f2
	require.Equal(t, int64(6), manifest.TotalBytes)

	received := map[string][]byte{}
	for _, fe := range manifest.Files {
		if fe.Kind != protocol.FileRegular {
			continue
		}
		var hdr protocol.FileHeader
		require.NoError(t, protocol.ReadFrame(conn, &hdr))
		buf := make([]byte, hdr.Len)
		_, err := io.ReadFull(conn, buf)
		require.NoError(t, err)
		received[fe.Path] = buf
	}

	var outcome protocol.TransferOutcome
	require.NoError(t, protocol.ReadFrame(conn, &outcome))
	require.Equal(t, "success", outcome.Outcome)
	require.Equal(t, 2, outcome.FilesOK)
	require.Equal(t, int64(6), outcome.BytesOK)

	require.Equal(t, []byte("hello\n"), received["a/f1"])
	require.Equal(t, []byte{}, received["a/f2"])

	tr.Wait()
}

func TestPutTransferOverwriteNo(t *testing.T) {
	dest := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dest, "f1"), []byte("abc"), 0o644))

	tr, err := NewPut(dest, dest, "127.0.0.1", protocol.OverwriteNo, testLogger())
	require.NoError(t, err)
	go tr.Serve()

	conn := dialLoopback(t, tr.Addr())
	defer conn.Close()

	manifest := protocol.Manifest{
		Files: []protocol.FileEntry{
			{Path: "f1", Kind: protocol.FileRegular, Size: 9, Mtime: time.Now().UnixNano()},
		},
		TotalBytes: 9,
	}
	require.NoError(t, protocol.WriteFrame(conn, manifest))

	require.NoError(t, protocol.WriteFrame(conn, protocol.PutFileAsk{Idx: 0, Path: "f1", Size: 9}))

	var decision protocol.PutFileDecision
	require.NoError(t, protocol.ReadFrame(conn, &decision))
	require.Equal(t, protocol.DecisionSkip, decision)

	var outcome protocol.TransferOutcome
	require.NoError(t, protocol.ReadFrame(conn, &outcome))
	require.Equal(t, "success", outcome.Outcome)

	data, err := os.ReadFile(filepath.Join(dest, "f1"))
	require.NoError(t, err)
	require.Equal(t, "abc", string(data)) // unchanged
	tr.Wait()
}

func TestPeerAddressMismatchRejected(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "f1"), []byte("x"), 0o644))

	tr, err := NewGet(root, "10.0.0.1", []string{filepath.Join(root, "f1")}, protocol.OverwriteYes, testLogger())
	require.NoError(t, err)
	go tr.Serve()

	conn := dialLoopback(t, tr.Addr())
	buf := make([]byte, 4)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, err = conn.Read(buf)
	require.Error(t, err) // connection dropped, peer host does not match
}
