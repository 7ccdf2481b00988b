package server

import (
	"encoding/json"
	"io"
	"net"

	"github.com/easyshare-go/easyshare/internal/session"
	"github.com/easyshare-go/easyshare/pkg/protocol"
)

// conn is one accepted control-channel connection, paired 1:1 with a
// Session for its lifetime.
type conn struct {
	server *ServerDaemon
	nc     net.Conn
	sess   *session.Session
}

func (d *ServerDaemon) newConn(nc net.Conn) *conn {
	host, _, _ := net.SplitHostPort(nc.RemoteAddr().String())
	sess := session.New(host)
	// Session.Teardown closes nc directly so an idle-timeout sweep
	// (daemon.sweepIdleSessions -> Registry.Remove) can unblock the
	// serve loop's pending ReadFrame instead of only aborting transfers.
	sess.SetCloser(nc)
	return &conn{server: d, nc: nc, sess: sess}
}

func (c *conn) serve() {
	defer c.nc.Close()
	defer c.server.sessions.Remove(c.sess.ID)

	c.server.sessions.Add(c.sess)
	c.server.log.Debug("session %s: new connection from %s", c.sess.ID, c.nc.RemoteAddr())

	for {
		if err := c.handleOne(); err != nil {
			if err != io.EOF {
				c.server.log.Debug("session %s: %v", c.sess.ID, err)
			}
			return
		}
	}
}

// handleOne reads one Request frame, dispatches it, and writes back
// exactly one Response frame, recovering a handler panic into a
// TransportError so a single misbehaving request cannot take down the
// daemon (spec.md §7's per-connection panic isolation).
func (c *conn) handleOne() (err error) {
	var req protocol.Request
	if readErr := protocol.ReadFrame(c.nc, &req); readErr != nil {
		return readErr
	}

	c.sess.Touch()
	c.server.log.Trace("session %s: -> %s", c.sess.ID, req.Method)

	resp := c.dispatch(req)

	c.server.log.Trace("session %s: <- success=%v", c.sess.ID, resp.Success)
	return protocol.WriteFrame(c.nc, resp)
}

func (c *conn) dispatch(req protocol.Request) (resp *protocol.Response) {
	defer func() {
		if r := recover(); r != nil {
			c.server.log.Error("session %s: panic handling %s: %v", c.sess.ID, req.Method, r)
			resp = protocol.Fail(protocol.ErrTransport, "internal error")
		}
	}()

	h, ok := methodTable[req.Method]
	if !ok {
		return protocol.Fail(protocol.ErrInvalidArgument, "unknown method %q", req.Method)
	}

	if h.requiresAuth && c.server.opts.Password != "" && !c.sess.Authenticated() {
		return protocol.Fail(protocol.ErrAuthRequired, "authenticate before calling %q", req.Method)
	}
	if h.requiresSharing && c.sess.Sharing() == nil {
		return protocol.Fail(protocol.ErrNotBound, "no sharing is open")
	}

	return h.fn(c, req.Args)
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
