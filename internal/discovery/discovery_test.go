package discovery

import (
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"github.com/easyshare-go/easyshare/internal/logger"
	"github.com/easyshare-go/easyshare/pkg/protocol"
	"github.com/stretchr/testify/require"
)

func testLogger() *logger.Logger {
	return logger.New("test", logger.LevelError, logger.FormatText, io.Discard)
}

func TestDaemonDisabledOnZeroPort(t *testing.T) {
	d, err := NewDaemon(0, nil, testLogger())
	require.NoError(t, err)
	require.Nil(t, d)
}

// TestDaemonRepliesUnicast runs Daemon.Serve and sends it a unicast
// probe from a loopback UDP socket, since a real broadcast probe does
// not reliably route inside a sandboxed test network.
func TestDaemonRepliesUnicast(t *testing.T) {
	desc := protocol.ServerDescriptor{Name: "host1", Address: "127.0.0.1", Port: 12020}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	d := &Daemon{log: testLogger(), conn: conn, describe: func() protocol.ServerDescriptor { return desc }}
	defer d.Close()

	go d.Serve()

	client, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.WriteToUDP([]byte{1, 2, 3, 4}, conn.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)

	require.NoError(t, client.SetReadDeadline(time.Now().Add(time.Second)))
	buf := make([]byte, 2048)
	n, _, err := client.ReadFromUDP(buf)
	require.NoError(t, err)

	var got protocol.ServerDescriptor
	require.NoError(t, json.Unmarshal(buf[:n], &got))
	require.Equal(t, "host1", got.Name)
}

func TestScanNoRepliesReturnsEmpty(t *testing.T) {
	// A scan against a port with nothing listening should time out
	// cleanly and return no results, never an error, per the
	// best-effort discovery contract.
	results, err := Scan(59999, 100*time.Millisecond, testLogger())
	require.NoError(t, err)
	require.Empty(t, results)
}
