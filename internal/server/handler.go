package server

import (
	"encoding/json"
	"os"
	"time"

	"github.com/easyshare-go/easyshare/internal/authn"
	"github.com/easyshare-go/easyshare/internal/rexec"
	"github.com/easyshare-go/easyshare/internal/sharing"
	"github.com/easyshare-go/easyshare/internal/sharingservice"
	"github.com/easyshare-go/easyshare/internal/transfer"
	"github.com/easyshare-go/easyshare/pkg/protocol"
)

type handlerFunc func(c *conn, args json.RawMessage) *protocol.Response

type methodSpec struct {
	fn              handlerFunc
	requiresAuth    bool
	requiresSharing bool
}

// methodTable wires every method name in spec.md §4.4 to its handler,
// mirroring the teacher's procedure-number switch in conn.go but keyed
// by name instead of an XDR procedure constant.
var methodTable = map[string]methodSpec{
	protocol.MethodPing:        {fn: handlePing},
	protocol.MethodInfo:        {fn: handleInfo},
	protocol.MethodList:        {fn: handleList},
	protocol.MethodAuth:        {fn: handleAuth},
	protocol.MethodOpen:        {fn: handleOpen, requiresAuth: true},
	protocol.MethodClose:       {fn: handleClose, requiresAuth: true, requiresSharing: true},
	protocol.MethodRpwd:        {fn: handleRpwd, requiresAuth: true, requiresSharing: true},
	protocol.MethodRcd:         {fn: handleRcd, requiresAuth: true, requiresSharing: true},
	protocol.MethodRls:         {fn: handleRls, requiresAuth: true, requiresSharing: true},
	protocol.MethodRtree:       {fn: handleRtree, requiresAuth: true, requiresSharing: true},
	protocol.MethodRmkdir:      {fn: handleRmkdir, requiresAuth: true, requiresSharing: true},
	protocol.MethodRmv:         {fn: handleRmv, requiresAuth: true, requiresSharing: true},
	protocol.MethodRcp:         {fn: handleRcp, requiresAuth: true, requiresSharing: true},
	protocol.MethodRrm:         {fn: handleRrm, requiresAuth: true, requiresSharing: true},
	protocol.MethodRfind:       {fn: handleRfind, requiresAuth: true, requiresSharing: true},
	protocol.MethodGet:         {fn: handleGet, requiresAuth: true, requiresSharing: true},
	protocol.MethodPut:         {fn: handlePut, requiresAuth: true, requiresSharing: true},
	protocol.MethodPutDecision: {fn: handlePutDecision, requiresAuth: true, requiresSharing: true},
	protocol.MethodRexec:       {fn: handleRexec, requiresAuth: true},
	protocol.MethodRshell:      {fn: handleRshell, requiresAuth: true},
}

func handlePing(c *conn, args json.RawMessage) *protocol.Response {
	var a protocol.PingArgs
	decodeArgs(args, &a)
	resp, err := protocol.OK(protocol.PingResult{Echo: a.Echo, Timestamp: time.Now().UnixNano()})
	if err != nil {
		return protocol.Fail(protocol.ErrTransport, "%v", err)
	}
	return resp
}

func handleInfo(c *conn, args json.RawMessage) *protocol.Response {
	resp, err := protocol.OK(c.server.describe())
	if err != nil {
		return protocol.Fail(protocol.ErrTransport, "%v", err)
	}
	return resp
}

func handleList(c *conn, args json.RawMessage) *protocol.Response {
	resp, _ := protocol.OK(protocol.ListResult{Sharings: c.server.sharings.List()})
	return resp
}

func handleAuth(c *conn, args json.RawMessage) *protocol.Response {
	var a protocol.AuthArgs
	if err := decodeArgs(args, &a); err != nil {
		return protocol.Fail(protocol.ErrInvalidArgument, "%v", err)
	}
	if c.server.opts.Password == "" {
		c.sess.SetAuthenticated(true)
		resp, _ := protocol.OK(nil)
		return resp
	}
	if !authn.Verify(c.server.opts.Password, a.Password) {
		return protocol.Fail(protocol.ErrAuthFailed, "incorrect password")
	}
	c.sess.SetAuthenticated(true)
	resp, _ := protocol.OK(nil)
	return resp
}

func handleOpen(c *conn, args json.RawMessage) *protocol.Response {
	var a protocol.OpenArgs
	if err := decodeArgs(args, &a); err != nil {
		return protocol.Fail(protocol.ErrInvalidArgument, "%v", err)
	}

	if c.sess.Sharing() != nil {
		return protocol.Fail(protocol.ErrAlreadyBound, "a sharing is already open on this session")
	}

	sh, err := resolveSharing(c, a.Name)
	if err != nil {
		return failFrom(err)
	}

	c.sess.Bind(sh)
	resp, _ := protocol.OK(protocol.OpenResult{Name: sh.Name})
	return resp
}

func resolveSharing(c *conn, name string) (*sharing.Sharing, error) {
	if name == "" {
		if sh, ok := c.server.sharings.Sole(); ok {
			return sh, nil
		}
		return nil, protocol.NewError(protocol.ErrInvalidArgument, "sharing name required: multiple sharings are registered")
	}
	return c.server.sharings.Get(name)
}

func handleClose(c *conn, args json.RawMessage) *protocol.Response {
	c.sess.Unbind()
	resp, _ := protocol.OK(nil)
	return resp
}

func handleRpwd(c *conn, args json.RawMessage) *protocol.Response {
	rel, err := c.sess.Resolver().Rel(c.sess.Cwd())
	if err != nil {
		return failFrom(err)
	}
	resp, _ := protocol.OK(protocol.RpwdResult{Path: rel})
	return resp
}

func handleRcd(c *conn, args json.RawMessage) *protocol.Response {
	var a protocol.RcdArgs
	if err := decodeArgs(args, &a); err != nil {
		return protocol.Fail(protocol.ErrInvalidArgument, "%v", err)
	}
	abs, err := c.sess.Resolver().Resolve(a.Path, c.sess.Cwd())
	if err != nil {
		return failFrom(err)
	}
	if err := checkIsDir(abs); err != nil {
		return failFrom(err)
	}
	c.sess.SetCwd(abs)
	resp, _ := protocol.OK(nil)
	return resp
}

func handleRls(c *conn, args json.RawMessage) *protocol.Response {
	var a protocol.RlsArgs
	if err := decodeArgs(args, &a); err != nil {
		return protocol.Fail(protocol.ErrInvalidArgument, "%v", err)
	}
	abs, err := c.sess.Resolver().Resolve(a.Path, c.sess.Cwd())
	if err != nil {
		return failFrom(err)
	}
	entries, err := sharingservice.Ls(abs, a.Flags)
	if err != nil {
		return failFrom(err)
	}
	resp, _ := protocol.OK(protocol.RlsResult{Entries: entries})
	return resp
}

func handleRtree(c *conn, args json.RawMessage) *protocol.Response {
	var a protocol.RtreeArgs
	if err := decodeArgs(args, &a); err != nil {
		return protocol.Fail(protocol.ErrInvalidArgument, "%v", err)
	}
	abs, err := c.sess.Resolver().Resolve(a.Path, c.sess.Cwd())
	if err != nil {
		return failFrom(err)
	}
	entries, err := sharingservice.Tree(abs, a.MaxDepth, a.Flags)
	if err != nil {
		return failFrom(err)
	}
	resp, _ := protocol.OK(protocol.RtreeResult{Entries: entries})
	return resp
}

func handleRmkdir(c *conn, args json.RawMessage) *protocol.Response {
	if err := requireWritable(c); err != nil {
		return failFrom(err)
	}
	var a protocol.RmkdirArgs
	if err := decodeArgs(args, &a); err != nil {
		return protocol.Fail(protocol.ErrInvalidArgument, "%v", err)
	}
	abs, err := c.sess.Resolver().Resolve(a.Path, c.sess.Cwd())
	if err != nil {
		return failFrom(err)
	}
	if err := sharingservice.Mkdir(abs); err != nil {
		return failFrom(err)
	}
	resp, _ := protocol.OK(nil)
	return resp
}

func handleRmv(c *conn, args json.RawMessage) *protocol.Response {
	if err := requireWritable(c); err != nil {
		return failFrom(err)
	}
	var a protocol.RmvArgs
	if err := decodeArgs(args, &a); err != nil {
		return protocol.Fail(protocol.ErrInvalidArgument, "%v", err)
	}
	srcs, dest, err := resolveBatch(c, a.Sources, a.Dest)
	if err != nil {
		return failFrom(err)
	}
	results := sharingservice.Mv(srcs, dest)
	resp, _ := protocol.OK(protocol.BatchResult{Results: results})
	return resp
}

func handleRcp(c *conn, args json.RawMessage) *protocol.Response {
	if err := requireWritable(c); err != nil {
		return failFrom(err)
	}
	var a protocol.RcpArgs
	if err := decodeArgs(args, &a); err != nil {
		return protocol.Fail(protocol.ErrInvalidArgument, "%v", err)
	}
	srcs, dest, err := resolveBatch(c, a.Sources, a.Dest)
	if err != nil {
		return failFrom(err)
	}
	results := sharingservice.Cp(srcs, dest)
	resp, _ := protocol.OK(protocol.BatchResult{Results: results})
	return resp
}

func handleRrm(c *conn, args json.RawMessage) *protocol.Response {
	if err := requireWritable(c); err != nil {
		return failFrom(err)
	}
	var a protocol.RrmArgs
	if err := decodeArgs(args, &a); err != nil {
		return protocol.Fail(protocol.ErrInvalidArgument, "%v", err)
	}
	paths := make([]string, len(a.Paths))
	for i, p := range a.Paths {
		abs, err := c.sess.Resolver().Resolve(p, c.sess.Cwd())
		if err != nil {
			return failFrom(err)
		}
		paths[i] = abs
	}
	results := sharingservice.Rm(paths)
	resp, _ := protocol.OK(protocol.BatchResult{Results: results})
	return resp
}

func handleRfind(c *conn, args json.RawMessage) *protocol.Response {
	var a protocol.RfindArgs
	if err := decodeArgs(args, &a); err != nil {
		return protocol.Fail(protocol.ErrInvalidArgument, "%v", err)
	}
	caseSensitive := true
	if a.CaseSensitive != nil {
		caseSensitive = *a.CaseSensitive
	}
	entries, err := sharingservice.Find(c.sess.Cwd(), a.Pattern, caseSensitive)
	if err != nil {
		return failFrom(err)
	}
	resp, _ := protocol.OK(protocol.RfindResult{Entries: entries})
	return resp
}

func handleGet(c *conn, args json.RawMessage) *protocol.Response {
	var a protocol.GetArgs
	if err := decodeArgs(args, &a); err != nil {
		return protocol.Fail(protocol.ErrInvalidArgument, "%v", err)
	}
	if len(a.Paths) == 0 {
		return protocol.Fail(protocol.ErrInvalidArgument, "no paths given")
	}
	abs := make([]string, len(a.Paths))
	for i, p := range a.Paths {
		resolved, err := c.sess.Resolver().Resolve(p, c.sess.Cwd())
		if err != nil {
			return failFrom(err)
		}
		abs[i] = resolved
	}

	policy := a.OverwritePolicy
	if policy == "" {
		policy = protocol.OverwriteYes
	}

	tr, err := transfer.NewGet(c.sess.Resolver().Root(), c.sess.RemoteAddr, abs, policy, c.server.log)
	if err != nil {
		return protocol.Fail(protocol.ErrTransport, "%v", err)
	}
	c.sess.AddTransfer(tr)
	go func() {
		tr.Serve()
		c.sess.RemoveTransfer(tr.ID())
	}()

	resp, _ := protocol.OK(protocol.TransferHandle{
		TransferID: tr.ID(),
		Address:    c.server.opts.Address,
		Port:       tr.Addr().Port,
	})
	return resp
}

func handlePut(c *conn, args json.RawMessage) *protocol.Response {
	if err := requireWritable(c); err != nil {
		return failFrom(err)
	}
	var a protocol.PutArgs
	if err := decodeArgs(args, &a); err != nil {
		return protocol.Fail(protocol.ErrInvalidArgument, "%v", err)
	}

	policy := a.OverwritePolicy
	if policy == "" {
		policy = protocol.OverwritePrompt
	}

	tr, err := transfer.NewPut(c.sess.Resolver().Root(), c.sess.Cwd(), c.sess.RemoteAddr, policy, c.server.log)
	if err != nil {
		return protocol.Fail(protocol.ErrTransport, "%v", err)
	}
	c.sess.AddTransfer(tr)
	go func() {
		tr.Serve()
		c.sess.RemoveTransfer(tr.ID())
	}()

	resp, _ := protocol.OK(protocol.TransferHandle{
		TransferID: tr.ID(),
		Address:    c.server.opts.Address,
		Port:       tr.Addr().Port,
	})
	return resp
}

func handlePutDecision(c *conn, args json.RawMessage) *protocol.Response {
	var a protocol.PutDecisionArgs
	if err := decodeArgs(args, &a); err != nil {
		return protocol.Fail(protocol.ErrInvalidArgument, "%v", err)
	}
	t, ok := c.sess.Transfer(a.TransferID)
	if !ok {
		return protocol.Fail(protocol.ErrInvalidArgument, "no such transfer %q", a.TransferID)
	}
	pt, ok := t.(interface {
		Decide(idx uint32, decision protocol.PutFileDecision) error
	})
	if !ok {
		return protocol.Fail(protocol.ErrInvalidArgument, "transfer %q does not accept decisions", a.TransferID)
	}
	if err := pt.Decide(a.FileIdx, a.Decision); err != nil {
		return failFrom(err)
	}
	resp, _ := protocol.OK(nil)
	return resp
}

func handleRexec(c *conn, args json.RawMessage) *protocol.Response {
	return startRexecLike(c, args, nil)
}

func handleRshell(c *conn, args json.RawMessage) *protocol.Response {
	return startRexecLike(c, args, []string{})
}

func startRexecLike(c *conn, args json.RawMessage, shellFallback []string) *protocol.Response {
	if !c.server.opts.Rexec {
		return protocol.Fail(protocol.ErrRexecDisabled, "rexec is disabled on this server")
	}
	var a protocol.RexecArgs
	decodeArgs(args, &a)

	cmd := a.Cmd
	if len(cmd) == 0 {
		cmd = shellFallback
	}

	svc, err := rexec.New(cmd, c.server.log)
	if err != nil {
		return protocol.Fail(protocol.ErrInvalidArgument, "%v", err)
	}
	c.sess.AddRexec(svc)
	go svc.Serve()

	resp, _ := protocol.OK(protocol.RexecResult{
		Address: c.server.opts.Address,
		Port:    svc.Addr().Port,
	})
	return resp
}

func requireWritable(c *conn) error {
	sh := c.sess.Sharing()
	if sh != nil && sh.ReadOnly {
		return protocol.NewError(protocol.ErrReadOnly, "sharing %q is read-only", sh.Name)
	}
	return nil
}

func resolveBatch(c *conn, sources []string, dest string) ([]string, string, error) {
	abs := make([]string, len(sources))
	for i, s := range sources {
		r, err := c.sess.Resolver().Resolve(s, c.sess.Cwd())
		if err != nil {
			return nil, "", err
		}
		abs[i] = r
	}
	destAbs, err := c.sess.Resolver().Resolve(dest, c.sess.Cwd())
	if err != nil {
		return nil, "", err
	}
	return abs, destAbs, nil
}

func checkIsDir(abs string) error {
	fi, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return protocol.NewError(protocol.ErrNotFound, "%s", abs)
		}
		return protocol.NewError(protocol.ErrInvalidArgument, "%v", err)
	}
	if !fi.IsDir() {
		return protocol.NewError(protocol.ErrNotADirectory, "%s is not a directory", abs)
	}
	return nil
}

func failFrom(err error) *protocol.Response {
	e := protocol.AsError(err)
	return protocol.Fail(e.Code, "%s", e.Message)
}
