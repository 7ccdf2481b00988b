package transfer

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/easyshare-go/easyshare/internal/logger"
	"github.com/easyshare-go/easyshare/pkg/protocol"
	"github.com/google/uuid"
)

// Transfer is one GET or PUT endpoint: a TCP listener dedicated to a
// single connection, per spec.md §4.6.
type Transfer struct {
	id        string
	direction protocol.TransferDirection
	listener  net.Listener

	sharingRoot string
	destDir     string // PUT only: where files land
	srcs        []string
	policy      protocol.OverwritePolicy
	peerHost    string // must match the control channel's remote host

	log *logger.Logger

	mu       sync.Mutex
	state    protocol.TransferState
	filesOK  int
	filesErr int
	bytesOK  int64
	errs     []protocol.FileOutcome

	decisions   map[uint32]chan protocol.PutFileDecision
	abortCh     chan struct{}
	abortedOnce sync.Once
	doneCh      chan struct{}
}

func (t *Transfer) ID() string                     { return t.id }
func (t *Transfer) Addr() *net.TCPAddr              { return t.listener.Addr().(*net.TCPAddr) }
func (t *Transfer) State() protocol.TransferState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transfer) setState(s protocol.TransferState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// Abort cancels the transfer and closes its listener/connection,
// satisfying the ≤1s bounded-grace cancellation contract of §5: the
// listener Close unblocks Accept immediately, and closing abortCh
// unblocks any in-progress Read/Write via the connection's own Close
// triggered from the same signal.
func (t *Transfer) Abort() {
	t.abortedOnce.Do(func() {
		close(t.abortCh)
		t.listener.Close()
	})
}

func (t *Transfer) Wait() {
	<-t.doneCh
}

// Decide delivers a follow-up put_decision RPC to a file awaiting
// prompt arbitration.
func (t *Transfer) Decide(idx uint32, decision protocol.PutFileDecision) error {
	t.mu.Lock()
	ch, ok := t.decisions[idx]
	t.mu.Unlock()
	if !ok {
		return protocol.NewError(protocol.ErrInvalidArgument, "no pending decision for file %d", idx)
	}
	select {
	case ch <- decision:
		return nil
	default:
		return protocol.NewError(protocol.ErrInvalidArgument, "decision for file %d already delivered", idx)
	}
}

// NewGet allocates a listener and returns a Transfer that will stream
// srcs (already-resolved absolute paths) to whichever client connects
// first from peerHost.
func NewGet(sharingRoot, peerHost string, srcs []string, policy protocol.OverwritePolicy, log *logger.Logger) (*Transfer, error) {
	return newTransfer(protocol.DirectionGet, sharingRoot, "", peerHost, srcs, policy, log)
}

// NewPut allocates a listener that will receive files into destDir.
func NewPut(sharingRoot, destDir, peerHost string, policy protocol.OverwritePolicy, log *logger.Logger) (*Transfer, error) {
	return newTransfer(protocol.DirectionPut, sharingRoot, destDir, peerHost, nil, policy, log)
}

func newTransfer(dir protocol.TransferDirection, sharingRoot, destDir, peerHost string, srcs []string, policy protocol.OverwritePolicy, log *logger.Logger) (*Transfer, error) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		return nil, fmt.Errorf("allocate transfer endpoint: %w", err)
	}

	t := &Transfer{
		id:          uuid.NewString(),
		direction:   dir,
		listener:    ln,
		sharingRoot: sharingRoot,
		destDir:     destDir,
		srcs:        srcs,
		policy:      policy,
		peerHost:    peerHost,
		log:         log.With("transfer:" + dir_short(dir)),
		state:       protocol.TransferCreated,
		decisions:   make(map[uint32]chan protocol.PutFileDecision),
		abortCh:     make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	return t, nil
}

func dir_short(d protocol.TransferDirection) string {
	return string(d)
}

// Serve accepts exactly one connection whose peer host matches the
// session's control-channel remote host (spec.md §4.6), then runs the
// GET or PUT frame sequence. It always closes doneCh on return.
func (t *Transfer) Serve() {
	defer close(t.doneCh)
	defer t.listener.Close()

	conn, err := t.acceptMatchingPeer()
	if err != nil {
		t.log.Debug("transfer %s: accept failed: %v", t.id, err)
		t.setState(protocol.TransferAborted)
		return
	}
	defer conn.Close()

	go func() {
		<-t.abortCh
		conn.Close()
	}()

	t.setState(protocol.TransferStreaming)

	if t.direction == protocol.DirectionGet {
		t.runGet(conn)
	} else {
		t.runPut(conn)
	}
}

func (t *Transfer) acceptMatchingPeer() (net.Conn, error) {
	conn, err := t.listener.Accept()
	if err != nil {
		return nil, err
	}
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil || host != t.peerHost {
		conn.Close()
		return nil, fmt.Errorf("peer %s does not match session remote %s", conn.RemoteAddr(), t.peerHost)
	}
	return conn, nil
}

func (t *Transfer) runGet(conn net.Conn) {
	manifest, err := BuildManifest(t.sharingRoot, t.srcs)
	if err != nil {
		t.setState(protocol.TransferAborted)
		_ = protocol.WriteFrame(conn, protocol.TransferOutcome{Outcome: "aborted", Errors: []protocol.FileOutcome{{Error: err.Error()}}})
		return
	}

	if err := protocol.WriteFrame(conn, manifest); err != nil {
		t.setState(protocol.TransferAborted)
		return
	}

	for idx, fe := range manifest.Files {
		select {
		case <-t.abortCh:
			t.finalize(conn, "aborted")
			return
		default:
		}

		if fe.Kind != protocol.FileRegular {
			continue
		}

		if err := t.sendFile(conn, uint32(idx), fe); err != nil {
			t.recordError(fe.Path, err)
			t.finalize(conn, "aborted")
			return
		}
		t.recordOK(fe.Size)
	}

	t.finalize(conn, "success")
}

func (t *Transfer) sendFile(conn net.Conn, idx uint32, fe protocol.FileEntry) error {
	abs := filepath.Join(t.sharingRoot, filepath.FromSlash(fe.Path))
	f, err := os.Open(abs)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := protocol.WriteFrame(conn, protocol.FileHeader{Idx: idx, Len: uint32(fe.Size)}); err != nil {
		return err
	}

	n, err := io.CopyN(conn, f, fe.Size)
	if err != nil && err != io.EOF {
		return err
	}
	if n != fe.Size {
		return protocol.NewError(protocol.ErrTruncated, "sent %d of %d bytes for %s", n, fe.Size, fe.Path)
	}
	return nil
}

func (t *Transfer) runPut(conn net.Conn) {
	var manifest protocol.Manifest
	if err := protocol.ReadFrame(conn, &manifest); err != nil {
		t.setState(protocol.TransferAborted)
		return
	}

	for idx, fe := range manifest.Files {
		select {
		case <-t.abortCh:
			t.finalize(conn, "aborted")
			return
		default:
		}

		switch fe.Kind {
		case protocol.FileDirectory:
			dest := filepath.Join(t.destDir, filepath.FromSlash(fe.Path))
			if err := os.MkdirAll(dest, 0o755); err != nil {
				t.recordError(fe.Path, err)
				continue
			}
			t.recordOK(0)
		case protocol.FileSymlink:
			dest := filepath.Join(t.destDir, filepath.FromSlash(fe.Path))
			_ = os.Remove(dest)
			if err := os.Symlink(fe.Target, dest); err != nil {
				t.recordError(fe.Path, err)
				continue
			}
			t.recordOK(0)
		case protocol.FileRegular:
			if err := t.receiveFile(conn, uint32(idx), fe); err != nil {
				t.recordError(fe.Path, err)
				t.finalize(conn, "aborted")
				return
			}
		}
	}

	t.finalize(conn, "success")
}

func (t *Transfer) receiveFile(conn net.Conn, idx uint32, fe protocol.FileEntry) error {
	var ask protocol.PutFileAsk
	if err := protocol.ReadFrame(conn, &ask); err != nil {
		return err
	}

	dest := filepath.Join(t.destDir, filepath.FromSlash(fe.Path))
	decision := t.arbitrate(dest, fe)

	if err := protocol.WriteFrame(conn, decision); err != nil {
		return err
	}

	if decision == protocol.DecisionUndecided {
		final, err := t.awaitDecision(idx)
		if err != nil {
			return err
		}
		if err := protocol.WriteFrame(conn, final); err != nil {
			return err
		}
		decision = final
	}

	if decision == protocol.DecisionSkip {
		t.mu.Lock()
		t.errs = append(t.errs, protocol.FileOutcome{Idx: idx, Path: fe.Path, Status: "skipped"})
		t.mu.Unlock()
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(fe.Mode))
	if err != nil {
		return err
	}
	defer out.Close()

	var header protocol.FileHeader
	if err := protocol.ReadFrame(conn, &header); err != nil {
		return err
	}

	n, err := io.CopyN(out, conn, int64(header.Len))
	if err != nil {
		return protocol.NewError(protocol.ErrTruncated, "received %d of %d bytes for %s", n, header.Len, fe.Path)
	}

	mtime := time.Unix(0, fe.Mtime)
	_ = os.Chtimes(dest, mtime, mtime)

	t.recordOK(int64(header.Len))
	return nil
}

// arbitrate applies the overwrite policy of §4.6 against an existing
// target. A non-existent target is always accepted.
func (t *Transfer) arbitrate(dest string, fe protocol.FileEntry) protocol.PutFileDecision {
	info, err := os.Stat(dest)
	if err != nil {
		return protocol.DecisionAccept
	}

	switch t.policy {
	case protocol.OverwriteYes:
		return protocol.DecisionAccept
	case protocol.OverwriteNo:
		return protocol.DecisionSkip
	case protocol.OverwriteNewer:
		if fe.Mtime > info.ModTime().UnixNano() {
			return protocol.DecisionAccept
		}
		return protocol.DecisionSkip
	case protocol.OverwriteDifferentSize:
		if fe.Size != info.Size() {
			return protocol.DecisionAccept
		}
		return protocol.DecisionSkip
	case protocol.OverwritePrompt:
		return protocol.DecisionUndecided
	default:
		return protocol.DecisionAccept
	}
}

func (t *Transfer) awaitDecision(idx uint32) (protocol.PutFileDecision, error) {
	ch := make(chan protocol.PutFileDecision, 1)
	t.mu.Lock()
	t.decisions[idx] = ch
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.decisions, idx)
		t.mu.Unlock()
	}()

	select {
	case d := <-ch:
		if d == protocol.DecisionUndecided {
			return protocol.DecisionSkip, nil
		}
		return d, nil
	case <-t.abortCh:
		return "", protocol.NewError(protocol.ErrAborted, "transfer aborted while awaiting overwrite decision")
	}
}

func (t *Transfer) recordOK(bytes int64) {
	t.mu.Lock()
	t.filesOK++
	t.bytesOK += bytes
	t.mu.Unlock()
}

func (t *Transfer) recordError(path string, err error) {
	t.mu.Lock()
	t.filesErr++
	t.errs = append(t.errs, protocol.FileOutcome{Path: path, Status: "error", Error: err.Error()})
	t.mu.Unlock()
}

func (t *Transfer) finalize(conn net.Conn, outcome string) {
	if outcome == "aborted" {
		t.setState(protocol.TransferAborted)
	} else {
		t.setState(protocol.TransferFinalised)
	}

	t.mu.Lock()
	out := protocol.TransferOutcome{
		Outcome:  outcome,
		FilesOK:  t.filesOK,
		FilesErr: t.filesErr,
		BytesOK:  t.bytesOK,
		Errors:   t.errs,
	}
	t.mu.Unlock()

	_ = protocol.WriteFrame(conn, out)
}
