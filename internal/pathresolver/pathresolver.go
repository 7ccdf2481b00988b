// Package pathresolver implements the path safety layer described in
// spec.md §4.1: every client-supplied path is constrained to resolve
// inside its sharing root, independent of symlinks or ".." segments.
package pathresolver

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/easyshare-go/easyshare/pkg/protocol"
)

const maxNameLen = 255

// Resolver constrains client-supplied paths to one sharing root.
type Resolver struct {
	root string // absolute, cleaned, symlink-free
}

// New creates a Resolver for a sharing whose root has already been
// normalised (see sharing.Registry, which resolves symlinks once at
// registration time).
func New(root string) *Resolver {
	return &Resolver{root: filepath.Clean(root)}
}

func (r *Resolver) Root() string { return r.root }

// Resolve implements the rule sequence of §4.1: join relative to cwd
// or the sharing root, collapse "." / "..", then resolve symlinks
// component by component, re-checking ancestry after each hop so a
// symlink cannot redirect outside the sharing.
func (r *Resolver) Resolve(input string, cwd string) (string, error) {
	if err := checkComponents(input); err != nil {
		return "", err
	}

	var joined string
	switch {
	case input == "":
		joined = cwd
	case strings.HasPrefix(input, "/"):
		joined = filepath.Join(r.root, input)
	default:
		joined = filepath.Join(cwd, input)
	}

	clean := filepath.Clean(joined)
	if !r.contains(clean) {
		return "", protocol.NewError(protocol.ErrPathEscapes,
			"path %q escapes sharing root", input)
	}

	resolved, err := r.resolveSymlinks(clean)
	if err != nil {
		return "", err
	}
	return resolved, nil
}

// Rel renders an absolute in-sharing path as the sharing-relative form
// surfaced to clients (rpwd, ls entries): "/" for the root itself,
// "/a/b" otherwise. The on-disk root is never disclosed.
func (r *Resolver) Rel(absPath string) (string, error) {
	if !r.contains(absPath) {
		return "", protocol.NewError(protocol.ErrPathEscapes, "path %q escapes sharing root", absPath)
	}
	rel, err := filepath.Rel(r.root, absPath)
	if err != nil {
		return "", err
	}
	if rel == "." {
		return "/", nil
	}
	return "/" + filepath.ToSlash(rel), nil
}

// contains reports whether p equals the root or is a descendant of it,
// using a path-separator-aware prefix check (not a naive string
// HasPrefix, which would wrongly accept "/root-evil" against "/root").
func (r *Resolver) contains(p string) bool {
	if p == r.root {
		return true
	}
	return strings.HasPrefix(p, r.root+string(filepath.Separator))
}

// maxSymlinkHops bounds symlink-chain following per path component,
// matching the ELOOP limit most POSIX kernels enforce.
const maxSymlinkHops = 40

// resolveSymlinks walks p component by component from the root down,
// resolving any symlink encountered and re-validating ancestry after
// each resolution. This deliberately does not use filepath.EvalSymlinks
// wholesale, because that helper does not let us reject an
// out-of-sharing target before fully resolving it.
func (r *Resolver) resolveSymlinks(p string) (string, error) {
	rel, err := filepath.Rel(r.root, p)
	if err != nil {
		return "", err
	}
	if rel == "." {
		resolved, err := filepath.EvalSymlinks(r.root)
		if err != nil {
			if os.IsNotExist(err) {
				return r.root, nil
			}
			return "", err
		}
		if resolved != r.root && !strings.HasPrefix(resolved, r.root+string(filepath.Separator)) {
			return "", protocol.NewError(protocol.ErrPathEscapes, "sharing root resolves outside itself")
		}
		return p, nil
	}

	segments := strings.Split(filepath.ToSlash(rel), "/")
	current := r.root

	for i, seg := range segments {
		next := filepath.Join(current, seg)

		resolved, missing, err := r.followSymlinkChain(next)
		if err != nil {
			return "", err
		}
		if missing {
			// A missing component (mkdir target, a not-yet-existing PUT
			// destination) ends the walk early: the remaining,
			// already-clean segments cannot contain a symlink because
			// they don't exist yet, so they are appended lexically.
			return filepath.Join(resolved, filepath.Join(segments[i+1:]...)), nil
		}
		current = resolved
	}

	return current, nil
}

// followSymlinkChain resolves current down to a non-symlink, following
// each hop in turn and re-checking ancestry after every one so a chain
// of symlinks (a -> b -> outside) cannot escape one hop at a time. It
// reports missing=true if current, or some link target along the way,
// does not exist.
func (r *Resolver) followSymlinkChain(current string) (resolved string, missing bool, err error) {
	for hop := 0; ; hop++ {
		if hop >= maxSymlinkHops {
			return "", false, protocol.NewError(protocol.ErrInvalidArgument,
				"too many levels of symbolic links resolving %q", current)
		}

		info, statErr := os.Lstat(current)
		if statErr != nil {
			if os.IsNotExist(statErr) {
				return current, true, nil
			}
			return "", false, statErr
		}

		if info.Mode()&os.ModeSymlink == 0 {
			return current, false, nil
		}

		target, readErr := os.Readlink(current)
		if readErr != nil {
			return "", false, readErr
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(current), target)
		}
		target = filepath.Clean(target)

		if !r.contains(target) {
			return "", false, protocol.NewError(protocol.ErrPathEscapes,
				"symlink %q resolves outside sharing", current)
		}
		current = target
	}
}

// checkComponents rejects components exceeding the OS name limit or
// containing NUL, per §4.1 rule 6.
func checkComponents(input string) error {
	if strings.ContainsRune(input, 0) {
		return protocol.NewError(protocol.ErrInvalidArgument, "path contains NUL byte")
	}
	for _, seg := range strings.Split(input, "/") {
		if len(seg) > maxNameLen {
			return protocol.NewError(protocol.ErrInvalidArgument,
				"path component %q exceeds maximum length", seg)
		}
	}
	return nil
}

// ErrNotBound is the NotBound error for a sharing-relative path
// requested while no sharing is bound to the session. Resolver itself
// never returns it, having no notion of "bound".
var ErrNotBound = protocol.NewError(protocol.ErrNotBound, "no sharing is bound to this session")
