package client

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/easyshare-go/easyshare/pkg/protocol"
)

// ProgressFunc is invoked after each file completes, reporting bytes
// transferred so far and the file just finished.
type ProgressFunc func(path string, bytesDone, bytesTotal int64)

func dialTransfer(h protocol.TransferHandle, useTLS bool) (net.Conn, error) {
	addr := fmt.Sprintf("%s:%d", h.Address, h.Port)
	if useTLS {
		return tls.Dial("tcp", addr, &tls.Config{InsecureSkipVerify: true})
	}
	return net.Dial("tcp", addr)
}

// Get connects to a GET transfer endpoint and writes every regular
// file in the manifest under destDir, preserving relative paths.
func Get(h protocol.TransferHandle, destDir string, useTLS bool, progress ProgressFunc) (protocol.TransferOutcome, error) {
	conn, err := dialTransfer(h, useTLS)
	if err != nil {
		return protocol.TransferOutcome{}, err
	}
	defer conn.Close()

	var manifest protocol.Manifest
	if err := protocol.ReadFrame(conn, &manifest); err != nil {
		return protocol.TransferOutcome{}, fmt.Errorf("read manifest: %w", err)
	}

	var done int64
	for _, fe := range manifest.Files {
		dest := filepath.Join(destDir, filepath.FromSlash(fe.Path))

		switch fe.Kind {
		case protocol.FileDirectory:
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return protocol.TransferOutcome{}, err
			}
			continue
		case protocol.FileSymlink:
			os.Remove(dest)
			if err := os.Symlink(fe.Target, dest); err != nil {
				return protocol.TransferOutcome{}, err
			}
			continue
		}

		var header protocol.FileHeader
		if err := protocol.ReadFrame(conn, &header); err != nil {
			return protocol.TransferOutcome{}, fmt.Errorf("read header for %s: %w", fe.Path, err)
		}

		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return protocol.TransferOutcome{}, err
		}
		out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(fe.Mode))
		if err != nil {
			return protocol.TransferOutcome{}, err
		}
		n, err := io.CopyN(out, conn, int64(header.Len))
		out.Close()
		if err != nil {
			return protocol.TransferOutcome{}, fmt.Errorf("receive %s: %w", fe.Path, err)
		}
		done += n
		if progress != nil {
			progress(fe.Path, done, manifest.TotalBytes)
		}
		mtime := time.Unix(0, fe.Mtime)
		os.Chtimes(dest, mtime, mtime)
	}

	var outcome protocol.TransferOutcome
	if err := protocol.ReadFrame(conn, &outcome); err != nil {
		return protocol.TransferOutcome{}, fmt.Errorf("read outcome: %w", err)
	}
	return outcome, nil
}

// AskDecision is invoked when a PUT file's overwrite arbitration comes
// back "undecided" (server policy is "prompt"). It must issue the
// put_decision RPC over the control channel, a different connection
// than the transfer socket this function reads and writes; the
// resulting decision is delivered back on the transfer socket by the
// server, not returned here.
type AskDecision func(idx uint32, path string, size int64) error

// Put connects to a PUT transfer endpoint and streams entries (each a
// manifest FileEntry paired with the local path it is read from) to
// the server, honoring per-file overwrite arbitration.
func Put(h protocol.TransferHandle, entries []LocalEntry, useTLS bool, ask AskDecision, progress ProgressFunc) (protocol.TransferOutcome, error) {
	conn, err := dialTransfer(h, useTLS)
	if err != nil {
		return protocol.TransferOutcome{}, err
	}
	defer conn.Close()

	manifest := protocol.Manifest{}
	for _, e := range entries {
		manifest.Files = append(manifest.Files, e.FileEntry)
		if e.FileEntry.Kind == protocol.FileRegular {
			manifest.TotalBytes += e.FileEntry.Size
		}
	}
	if err := protocol.WriteFrame(conn, manifest); err != nil {
		return protocol.TransferOutcome{}, fmt.Errorf("send manifest: %w", err)
	}

	var done int64
	for idx, e := range entries {
		if e.FileEntry.Kind != protocol.FileRegular {
			continue
		}

		if err := protocol.WriteFrame(conn, protocol.PutFileAsk{
			Idx: uint32(idx), Path: e.FileEntry.Path, Size: e.FileEntry.Size, Mtime: e.FileEntry.Mtime,
		}); err != nil {
			return protocol.TransferOutcome{}, err
		}

		var decision protocol.PutFileDecision
		if err := protocol.ReadFrame(conn, &decision); err != nil {
			return protocol.TransferOutcome{}, fmt.Errorf("read decision for %s: %w", e.FileEntry.Path, err)
		}

		if decision == protocol.DecisionUndecided {
			if ask == nil {
				return protocol.TransferOutcome{}, fmt.Errorf("server requested overwrite decision for %s but no prompt handler is configured", e.FileEntry.Path)
			}
			if err := ask(uint32(idx), e.FileEntry.Path, e.FileEntry.Size); err != nil {
				return protocol.TransferOutcome{}, err
			}
			var confirmed protocol.PutFileDecision
			if err := protocol.ReadFrame(conn, &confirmed); err != nil {
				return protocol.TransferOutcome{}, err
			}
			decision = confirmed
		}

		if decision == protocol.DecisionSkip {
			continue
		}

		f, err := os.Open(e.LocalPath)
		if err != nil {
			return protocol.TransferOutcome{}, err
		}
		if err := protocol.WriteFrame(conn, protocol.FileHeader{Idx: uint32(idx), Len: uint32(e.FileEntry.Size)}); err != nil {
			f.Close()
			return protocol.TransferOutcome{}, err
		}
		n, err := io.CopyN(conn, f, e.FileEntry.Size)
		f.Close()
		if err != nil {
			return protocol.TransferOutcome{}, fmt.Errorf("send %s: %w", e.FileEntry.Path, err)
		}
		done += n
		if progress != nil {
			progress(e.FileEntry.Path, done, manifest.TotalBytes)
		}
	}

	var outcome protocol.TransferOutcome
	if err := protocol.ReadFrame(conn, &outcome); err != nil {
		return protocol.TransferOutcome{}, fmt.Errorf("read outcome: %w", err)
	}
	return outcome, nil
}

// LocalEntry pairs a manifest FileEntry with the local filesystem path
// it was built from, for the PUT-side sender which reads from disk.
type LocalEntry struct {
	FileEntry protocol.FileEntry
	LocalPath string
}
