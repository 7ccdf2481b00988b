package client

import (
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/easyshare-go/easyshare/internal/rexec"
	"github.com/easyshare-go/easyshare/pkg/protocol"
)

// Attach dials a rexec/rshell endpoint and pumps the local terminal's
// stdio onto it until the remote process exits, returning its exit
// code.
func Attach(res protocol.RexecResult, useTLS bool) (int, error) {
	addr := fmt.Sprintf("%s:%d", res.Address, res.Port)

	var conn net.Conn
	var err error
	if useTLS {
		conn, err = tls.Dial("tcp", addr, &tls.Config{InsecureSkipVerify: true})
	} else {
		conn, err = net.Dial("tcp", addr)
	}
	if err != nil {
		return -1, fmt.Errorf("dial rexec endpoint: %w", err)
	}
	defer conn.Close()

	go io.Copy(conn, os.Stdin)

	header := make([]byte, 5)
	for {
		if _, err := io.ReadFull(conn, header); err != nil {
			return -1, nil
		}
		tag := header[0]
		n := binary.BigEndian.Uint32(header[1:])

		switch tag {
		case rexec.TagExit:
			return int(n), nil
		case rexec.TagStdout:
			io.CopyN(os.Stdout, conn, int64(n))
		case rexec.TagStderr:
			io.CopyN(os.Stderr, conn, int64(n))
		default:
			io.CopyN(io.Discard, conn, int64(n))
		}
	}
}
