package rexec

import (
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/easyshare-go/easyshare/internal/logger"
	"github.com/stretchr/testify/require"
)

func testLogger() *logger.Logger {
	return logger.New("test", logger.LevelError, logger.FormatText, io.Discard)
}

func TestServeEchoesStdout(t *testing.T) {
	svc, err := New([]string{"/bin/echo", "hello"}, testLogger())
	require.NoError(t, err)

	go svc.Serve()

	conn, err := net.Dial("tcp", svc.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var gotStdout []byte
	var gotExit *uint32
	for gotExit == nil {
		header := make([]byte, 5)
		_, err := io.ReadFull(conn, header)
		require.NoError(t, err)

		tag := header[0]
		n := binary.BigEndian.Uint32(header[1:])

		switch tag {
		case TagExit:
			code := n
			gotExit = &code
		case TagStdout:
			buf := make([]byte, n)
			_, err := io.ReadFull(conn, buf)
			require.NoError(t, err)
			gotStdout = append(gotStdout, buf...)
		case TagStderr:
			buf := make([]byte, n)
			io.ReadFull(conn, buf)
		}
	}

	require.Equal(t, "hello\n", string(gotStdout))
	require.Equal(t, uint32(0), *gotExit)
}
