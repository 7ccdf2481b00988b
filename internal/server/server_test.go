package server

import (
	"encoding/json"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/easyshare-go/easyshare/internal/logger"
	"github.com/easyshare-go/easyshare/internal/sharing"
	"github.com/easyshare-go/easyshare/pkg/protocol"
	"github.com/stretchr/testify/require"
)

func testLogger() *logger.Logger {
	return logger.New("test", logger.LevelError, logger.FormatText, io.Discard)
}

func startTestDaemon(t *testing.T, root string, password string, rexecEnabled bool) *ServerDaemon {
	t.Helper()
	sharings := sharing.NewRegistry()
	_, err := sharings.Add("docs", root, false)
	require.NoError(t, err)

	d := New(Options{
		Address:      "127.0.0.1",
		Port:         0,
		DiscoverPort: 0,
		Name:         "test-server",
		Password:     password,
		Rexec:        rexecEnabled,
		IdleTimeout:  time.Minute,
	}, sharings, testLogger())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	d.listener = ln

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			c := d.newConn(conn)
			go c.serve()
		}
	}()

	t.Cleanup(func() { d.Stop() })
	return d
}

func call(t *testing.T, conn net.Conn, method string, args any) protocol.Response {
	t.Helper()
	var raw []byte
	if args != nil {
		var err error
		raw, err = json.Marshal(args)
		require.NoError(t, err)
	}
	req := protocol.Request{Method: method, Args: raw}
	require.NoError(t, protocol.WriteFrame(conn, req))

	var resp protocol.Response
	require.NoError(t, protocol.ReadFrame(conn, &resp))
	return resp
}

func TestPingAndInfoRequireNoAuth(t *testing.T) {
	root := t.TempDir()
	d := startTestDaemon(t, root, "", false)

	conn, err := net.Dial("tcp", d.listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	resp := call(t, conn, protocol.MethodPing, protocol.PingArgs{Echo: "hi"})
	require.True(t, resp.Success)

	resp = call(t, conn, protocol.MethodInfo, nil)
	require.True(t, resp.Success)
}

func TestOpenRequiresAuthWhenPasswordSet(t *testing.T) {
	root := t.TempDir()
	d := startTestDaemon(t, root, "secret", false)

	conn, err := net.Dial("tcp", d.listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	resp := call(t, conn, protocol.MethodOpen, protocol.OpenArgs{Name: "docs"})
	require.False(t, resp.Success)
	require.Equal(t, protocol.ErrAuthRequired, resp.Error.Code)

	resp = call(t, conn, protocol.MethodAuth, protocol.AuthArgs{Password: "wrong"})
	require.False(t, resp.Success)

	resp = call(t, conn, protocol.MethodAuth, protocol.AuthArgs{Password: "secret"})
	require.True(t, resp.Success)

	resp = call(t, conn, protocol.MethodOpen, protocol.OpenArgs{Name: "docs"})
	require.True(t, resp.Success)
}

func TestRlsAfterOpen(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hi"), 0o644))
	d := startTestDaemon(t, root, "", false)

	conn, err := net.Dial("tcp", d.listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	resp := call(t, conn, protocol.MethodOpen, protocol.OpenArgs{Name: "docs"})
	require.True(t, resp.Success)

	resp = call(t, conn, protocol.MethodRls, protocol.RlsArgs{})
	require.True(t, resp.Success)

	var result protocol.RlsResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	require.Len(t, result.Entries, 1)
	require.Equal(t, "a.txt", result.Entries[0].Name)
}

func TestRexecDisabledByDefault(t *testing.T) {
	root := t.TempDir()
	d := startTestDaemon(t, root, "", false)

	conn, err := net.Dial("tcp", d.listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	resp := call(t, conn, protocol.MethodRexec, protocol.RexecArgs{Cmd: []string{"/bin/echo", "hi"}})
	require.False(t, resp.Success)
	require.Equal(t, protocol.ErrRexecDisabled, resp.Error.Code)
}
