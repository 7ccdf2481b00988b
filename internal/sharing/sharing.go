// Package sharing holds the server-side Sharing registry: named,
// root-anchored views of the filesystem, registered once at startup
// and immutable for the life of the process (spec.md §3, §5).
package sharing

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"github.com/easyshare-go/easyshare/pkg/protocol"
)

const maxNameLen = 64

var nameRe = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Sharing is the server-internal record for one named share.
type Sharing struct {
	Name     string
	Root     string // absolute, symlink-resolved
	Kind     protocol.SharingKind
	ReadOnly bool
}

func (s *Sharing) Descriptor() protocol.SharingDescriptor {
	return protocol.SharingDescriptor{
		Name:     s.Name,
		Kind:     s.Kind,
		ReadOnly: s.ReadOnly,
	}
}

// ValidateName enforces the naming rule from spec.md §3/§10.
func ValidateName(name string) error {
	if name == "" || len(name) > maxNameLen || !nameRe.MatchString(name) {
		return protocol.NewError(protocol.ErrInvalidArgument,
			"invalid sharing name %q: must match [A-Za-z0-9._-]+ and be <= %d chars",
			name, maxNameLen)
	}
	return nil
}

// Registry is the immutable, concurrency-safe set of sharings exposed
// by one server process. It is built once at startup; readers need no
// synchronization once construction completes, but the map is guarded
// anyway since nothing prevents a caller from registering sharings
// after Serve() begins in a test harness.
type Registry struct {
	mu       sync.RWMutex
	sharings map[string]*Sharing
}

func NewRegistry() *Registry {
	return &Registry{sharings: make(map[string]*Sharing)}
}

// Add registers a new sharing rooted at path. The root is resolved to
// an absolute, symlink-free path once, here, and never re-resolved.
func (r *Registry) Add(name, path string, readOnly bool) (*Sharing, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve sharing path %q: %w", path, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve sharing path %q: %w", path, err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("stat sharing path %q: %w", path, err)
	}

	kind := protocol.SharingDirectory
	if !info.IsDir() {
		kind = protocol.SharingFile
	}

	sh := &Sharing{Name: name, Root: resolved, Kind: kind, ReadOnly: readOnly}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sharings[name]; exists {
		return nil, fmt.Errorf("duplicate sharing name %q", name)
	}
	r.sharings[name] = sh
	return sh, nil
}

// Get returns the named sharing, or ErrNoSuchSharing.
func (r *Registry) Get(name string) (*Sharing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sh, ok := r.sharings[name]
	if !ok {
		return nil, protocol.NewError(protocol.ErrNoSuchSharing, "no sharing named %q", name)
	}
	return sh, nil
}

// Sole returns the single registered sharing, used by the `open` RPC's
// auto-select convenience when it is called with an empty name and
// exactly one sharing exists.
func (r *Registry) Sole() (*Sharing, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.sharings) != 1 {
		return nil, false
	}
	for _, sh := range r.sharings {
		return sh, true
	}
	return nil, false
}

// List returns all sharings' descriptors, sorted by name for a stable
// wire representation.
func (r *Registry) List() []protocol.SharingDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]protocol.SharingDescriptor, 0, len(r.sharings))
	for _, sh := range r.sharings {
		out = append(out, sh.Descriptor())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
