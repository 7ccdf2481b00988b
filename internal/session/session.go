// Package session implements the server-side Session and its
// server-wide Registry, per spec.md §3/§5: a per-connection
// authenticated context whose own fields are mutated only by that
// session's worker, while the registry map is guarded by one
// short-held mutex.
package session

import (
	"io"
	"sync"
	"time"

	"github.com/easyshare-go/easyshare/internal/pathresolver"
	"github.com/easyshare-go/easyshare/internal/sharing"
	"github.com/google/uuid"
)

// Transfer is the subset of transfer state the session needs to track
// for teardown/cancellation; the transfer package owns the full
// definition and satisfies this interface.
type Transfer interface {
	ID() string
	Abort()
}

// Killable is satisfied by an active rexec/rshell endpoint; a session
// owns zero or more and kills them all on teardown.
type Killable interface {
	Kill()
}

// Session is the per-connection authenticated context.
type Session struct {
	ID            string
	RemoteAddr    string
	mu            sync.Mutex
	authenticated bool
	sharing       *sharing.Sharing
	resolver      *pathresolver.Resolver
	cwd           string
	transfers     map[string]Transfer
	rexecs        []Killable
	closer        io.Closer
	lastActivity  time.Time
	createdAt     time.Time
}

func New(remoteAddr string) *Session {
	now := time.Now()
	return &Session{
		ID:           uuid.NewString(),
		RemoteAddr:   remoteAddr,
		transfers:    make(map[string]Transfer),
		lastActivity: now,
		createdAt:    now,
	}
}

func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) IdleSince() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity)
}

func (s *Session) SetAuthenticated(v bool) {
	s.mu.Lock()
	s.authenticated = v
	s.mu.Unlock()
}

func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// Bind attaches a sharing to the session and resets cwd to its root.
func (s *Session) Bind(sh *sharing.Sharing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sharing = sh
	s.resolver = pathresolver.New(sh.Root)
	s.cwd = sh.Root
}

func (s *Session) Unbind() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sharing = nil
	s.resolver = nil
	s.cwd = ""
}

func (s *Session) Sharing() *sharing.Sharing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sharing
}

func (s *Session) Resolver() *pathresolver.Resolver {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolver
}

func (s *Session) Cwd() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cwd
}

func (s *Session) SetCwd(abs string) {
	s.mu.Lock()
	s.cwd = abs
	s.mu.Unlock()
}

func (s *Session) AddTransfer(t Transfer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transfers[t.ID()] = t
}

func (s *Session) RemoveTransfer(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transfers, id)
}

func (s *Session) Transfer(id string) (Transfer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transfers[id]
	return t, ok
}

// AddRexec registers an active rexec/rshell endpoint for teardown.
func (s *Session) AddRexec(k Killable) {
	s.mu.Lock()
	s.rexecs = append(s.rexecs, k)
	s.mu.Unlock()
}

// SetCloser attaches the underlying control-channel connection so
// Teardown can close it. The caller (conn.newConn) owns the net.Conn;
// Session only needs enough of it to force the connection shut on
// idle-timeout or registry eviction.
func (s *Session) SetCloser(c io.Closer) {
	s.mu.Lock()
	s.closer = c
	s.mu.Unlock()
}

// Teardown aborts every transfer, kills every rexec, and closes the
// underlying connection owned by this session, per §3's ownership rule,
// §5's cancellation contract, and §4.4's requirement that an idle
// session actually closes rather than merely dropping its transfers.
func (s *Session) Teardown() {
	s.mu.Lock()
	transfers := make([]Transfer, 0, len(s.transfers))
	for _, t := range s.transfers {
		transfers = append(transfers, t)
	}
	s.transfers = make(map[string]Transfer)

	rexecs := s.rexecs
	s.rexecs = nil

	closer := s.closer
	s.mu.Unlock()

	for _, t := range transfers {
		t.Abort()
	}
	for _, r := range rexecs {
		r.Kill()
	}
	if closer != nil {
		closer.Close()
	}
}

// Registry is the server-wide session-id -> Session map.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		s.Teardown()
	}
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Snapshot returns all currently registered sessions.
func (r *Registry) Snapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
