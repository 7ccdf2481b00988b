// Package rexec implements the remote execution / remote shell
// channel of spec.md §4.7: a subprocess whose stdio is multiplexed
// onto a single bidirectional TCP stream.
package rexec

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"sync"

	"github.com/easyshare-go/easyshare/internal/logger"
)

const (
	TagStdout byte = 1
	TagStderr byte = 2
	TagExit   byte = 3
)

// Service allocates one listener per invocation, spawns the requested
// command (or falls back to a default shell for rshell) on accept, and
// terminates the subprocess when the client disconnects.
type Service struct {
	listener net.Listener
	cmd      []string
	log      *logger.Logger

	mu         sync.Mutex
	activeConn net.Conn
	activeCmd  *exec.Cmd
}

// New allocates a listener for one rexec/rshell invocation. cmd is the
// argv to run; if empty, resolveShell() supplies the default shell
// (spec.md §9's rshell fallback resolution).
func New(cmd []string, log *logger.Logger) (*Service, error) {
	if len(cmd) == 0 {
		shell, err := resolveShell()
		if err != nil {
			return nil, err
		}
		cmd = []string{shell}
	}

	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		return nil, fmt.Errorf("allocate rexec endpoint: %w", err)
	}

	return &Service{listener: ln, cmd: cmd, log: log.With("rexec")}, nil
}

func (s *Service) Addr() *net.TCPAddr { return s.listener.Addr().(*net.TCPAddr) }

func (s *Service) Close() error { return s.listener.Close() }

// resolveShell implements the Open Question resolution in spec.md §9:
// $SHELL, then /bin/sh, else InvalidArgument.
func resolveShell() (string, error) {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh, nil
	}
	if _, err := exec.LookPath("/bin/sh"); err == nil {
		return "/bin/sh", nil
	}
	return "", fmt.Errorf("no default shell available")
}

// Serve accepts exactly one connection, spawns the subprocess, and
// multiplexes its stdio until the process exits or the client
// disconnects.
func (s *Service) Serve() {
	defer s.listener.Close()

	conn, err := s.listener.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	cmd := exec.Command(s.cmd[0], s.cmd[1:]...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		s.log.Error("rexec: stdin pipe: %v", err)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.log.Error("rexec: stdout pipe: %v", err)
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.log.Error("rexec: stderr pipe: %v", err)
		return
	}

	if err := cmd.Start(); err != nil {
		s.log.Error("rexec: start %v: %v", s.cmd, err)
		return
	}

	s.mu.Lock()
	s.activeConn = conn
	s.activeCmd = cmd
	s.mu.Unlock()

	var writeMu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		pump(conn, &writeMu, TagStdout, stdout)
	}()
	go func() {
		defer wg.Done()
		pump(conn, &writeMu, TagStderr, stderr)
	}()

	// stdin pump: forwards inbound bytes from the client until EOF or
	// disconnect, then closes the subprocess's stdin and terminates it.
	go func() {
		buf := make([]byte, 32*1024)
		for {
			n, rerr := conn.Read(buf)
			if n > 0 {
				stdin.Write(buf[:n])
			}
			if rerr != nil {
				break
			}
		}
		stdin.Close()
		cmd.Process.Kill()
	}()

	// Drain both output pumps before Wait, which closes the pipes.
	wg.Wait()
	err = cmd.Wait()

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	writeMu.Lock()
	var frame [5]byte
	frame[0] = TagExit
	binary.BigEndian.PutUint32(frame[1:], uint32(exitCode))
	conn.Write(frame[:])
	writeMu.Unlock()
}

func pump(conn net.Conn, mu *sync.Mutex, tag byte, r io.Reader) {
	buf := make([]byte, 32*1024)
	br := bufio.NewReader(r)
	for {
		n, err := br.Read(buf)
		if n > 0 {
			mu.Lock()
			var header [5]byte
			header[0] = tag
			binary.BigEndian.PutUint32(header[1:], uint32(n))
			if _, werr := conn.Write(header[:]); werr == nil {
				conn.Write(buf[:n])
			}
			mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

// Kill terminates the accepted subprocess and its connection
// immediately, used when the owning session's control channel is torn
// down (spec.md §5's ≤1s cancellation grace).
func (s *Service) Kill() {
	s.listener.Close()

	s.mu.Lock()
	conn := s.activeConn
	cmd := s.activeCmd
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if cmd != nil && cmd.Process != nil {
		cmd.Process.Kill()
	}
}
