// Package client implements the es command-line client's control
// channel: dialing a server, issuing one RPC per call, and driving the
// GET/PUT/rexec side-channels a call returns a handle for.
package client

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/easyshare-go/easyshare/pkg/protocol"
)

// Client owns one control-channel connection to one server.
type Client struct {
	conn net.Conn
}

// Dial opens the control channel. insecureTLS skips certificate
// verification, matching a self-signed server started without a
// configured cert (spec.md §6's ssl convenience).
func Dial(addr string, useTLS, insecureTLS bool, timeout time.Duration) (*Client, error) {
	dialer := &net.Dialer{Timeout: timeout}

	var conn net.Conn
	var err error
	if useTLS {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{InsecureSkipVerify: insecureTLS})
	} else {
		conn, err = dialer.Dial("tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

// Call issues one request/response round-trip; the control channel is
// strictly request/response with no pipelining, per spec.md §4.3.
func (c *Client) Call(method string, args any, result any) error {
	var raw json.RawMessage
	if args != nil {
		var err error
		raw, err = json.Marshal(args)
		if err != nil {
			return fmt.Errorf("marshal args for %s: %w", method, err)
		}
	}

	if err := protocol.WriteFrame(c.conn, protocol.Request{Method: method, Args: raw}); err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}

	var resp protocol.Response
	if err := protocol.ReadFrame(c.conn, &resp); err != nil {
		return fmt.Errorf("receive reply to %s: %w", method, err)
	}
	if !resp.Success {
		if resp.Error != nil {
			return resp.Error
		}
		return fmt.Errorf("%s failed with no error detail", method)
	}
	if result != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, result); err != nil {
			return fmt.Errorf("decode reply to %s: %w", method, err)
		}
	}
	return nil
}
