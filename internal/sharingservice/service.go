// Package sharingservice implements the filesystem operations scoped
// to one sharing, per spec.md §4.5: ls, tree, mkdir, mv, cp, rm, find.
// Every path argument has already been passed through a
// pathresolver.Resolver by the caller; these functions operate
// directly on resolved absolute paths.
package sharingservice

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/easyshare-go/easyshare/pkg/protocol"
)

// Ls lists the contents of dir (non-recursive), ordered per flags.
func Ls(dir string, flags protocol.LsFlags) ([]protocol.FileEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, mapErr(err)
	}

	out := make([]protocol.FileEntry, 0, len(entries))
	for _, de := range entries {
		if !flags.ShowHidden && strings.HasPrefix(de.Name(), ".") {
			continue
		}
		fi, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, entryFor(de.Name(), fi))
	}

	sortEntries(out, flags)
	return out, nil
}

// Tree performs a pre-order DFS under dir up to maxDepth (unlimited if
// <= 0, per the original's -1 sentinel). Symlinks are listed but never
// followed.
func Tree(dir string, maxDepth int, flags protocol.LsFlags) ([]protocol.FileEntry, error) {
	var out []protocol.FileEntry
	var walk func(path string, depth int) error

	walk = func(path string, depth int) error {
		entries, err := os.ReadDir(path)
		if err != nil {
			return mapErr(err)
		}

		batch := make([]protocol.FileEntry, 0, len(entries))
		for _, de := range entries {
			if !flags.ShowHidden && strings.HasPrefix(de.Name(), ".") {
				continue
			}
			fi, err := de.Info()
			if err != nil {
				continue
			}
			fe := entryFor(de.Name(), fi)
			fe.Depth = depth
			batch = append(batch, fe)
		}
		sortEntries(batch, flags)

		for _, fe := range batch {
			out = append(out, fe)
			if fe.Kind == protocol.FileDirectory && (maxDepth <= 0 || depth+1 < maxDepth) {
				if err := walk(filepath.Join(path, fe.Name), depth+1); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := walk(dir, 0); err != nil {
		return nil, err
	}
	return out, nil
}

// Mkdir creates path and any missing parents; idempotent if path is
// already a directory.
func Mkdir(path string) error {
	if fi, err := os.Stat(path); err == nil {
		if fi.IsDir() {
			return nil
		}
		return protocol.NewError(protocol.ErrExists, "%s exists and is not a directory", path)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return mapErr(err)
	}
	return nil
}

// Mv implements classical rename-or-move-into-dir semantics: a single
// source may be renamed to dest directly; multiple sources require
// dest to be an existing directory. Cross-device moves fall back to
// copy+unlink. Reports one outcome per source.
func Mv(srcs []string, dest string) []protocol.EntryOutcome {
	targets, err := resolveTargets(srcs, dest)
	if err != nil {
		return allFailed(srcs, err)
	}

	out := make([]protocol.EntryOutcome, 0, len(srcs))
	for i, src := range srcs {
		err := moveOne(src, targets[i])
		out = append(out, outcomeFor(src, err))
	}
	return out
}

// Cp recursively copies each source into dest, preserving mtime and
// mode. Reports one outcome per source.
func Cp(srcs []string, dest string) []protocol.EntryOutcome {
	targets, err := resolveTargets(srcs, dest)
	if err != nil {
		return allFailed(srcs, err)
	}

	out := make([]protocol.EntryOutcome, 0, len(srcs))
	for i, src := range srcs {
		err := copyOne(src, targets[i])
		out = append(out, outcomeFor(src, err))
	}
	return out
}

// Rm removes paths recursively, never prompting; missing entries are
// silently skipped (reported as ok).
func Rm(paths []string) []protocol.EntryOutcome {
	out := make([]protocol.EntryOutcome, 0, len(paths))
	for _, p := range paths {
		err := os.RemoveAll(p)
		out = append(out, outcomeFor(p, err))
	}
	return out
}

// Find returns entries under root whose relative path matches a
// shell-style glob pattern (*, ?, character classes).
func Find(root, pattern string, caseSensitive bool) ([]protocol.FileEntry, error) {
	matchPattern := pattern
	if !caseSensitive {
		matchPattern = strings.ToLower(pattern)
	}

	var out []protocol.FileEntry
	err := filepath.WalkDir(root, func(path string, de os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		candidate := rel
		if !caseSensitive {
			candidate = strings.ToLower(rel)
		}

		ok, err := filepath.Match(matchPattern, candidate)
		if err != nil {
			return err
		}
		if !ok {
			// Also match against the base name, matching the
			// original CLI's "find by filename" behaviour.
			base := filepath.Base(candidate)
			ok, err = filepath.Match(matchPattern, base)
			if err != nil {
				return err
			}
		}
		if ok {
			fi, err := de.Info()
			if err != nil {
				return nil
			}
			fe := entryFor(rel, fi)
			out = append(out, fe)
		}
		return nil
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func entryFor(name string, fi os.FileInfo) protocol.FileEntry {
	kind := protocol.FileRegular
	switch {
	case fi.Mode()&os.ModeSymlink != 0:
		kind = protocol.FileSymlink
	case fi.IsDir():
		kind = protocol.FileDirectory
	}
	size := fi.Size()
	if kind == protocol.FileDirectory {
		size = 0
	}
	return protocol.FileEntry{
		Path:  name,
		Name:  name,
		Kind:  kind,
		Size:  size,
		Mtime: fi.ModTime().UnixNano(),
		Mode:  uint32(fi.Mode().Perm()),
	}
}

func sortEntries(entries []protocol.FileEntry, flags protocol.LsFlags) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]

		if flags.DirsFirst {
			ai := a.Kind == protocol.FileDirectory
			bi := b.Kind == protocol.FileDirectory
			if ai != bi {
				return ai
			}
		}

		var less bool
		if flags.SortBySize {
			less = a.Size < b.Size
		} else {
			less = a.Name < b.Name
		}
		if flags.Reverse {
			return !less
		}
		return less
	})
}

func resolveTargets(srcs []string, dest string) ([]string, error) {
	if len(srcs) == 0 {
		return nil, protocol.NewError(protocol.ErrInvalidArgument, "no source paths given")
	}

	destInfo, destErr := os.Stat(dest)
	destIsDir := destErr == nil && destInfo.IsDir()

	if len(srcs) > 1 && !destIsDir {
		return nil, protocol.NewError(protocol.ErrNotADirectory,
			"destination must be an existing directory for multiple sources")
	}

	targets := make([]string, len(srcs))
	for i, src := range srcs {
		if destIsDir {
			targets[i] = filepath.Join(dest, filepath.Base(filepath.Clean(src)))
		} else {
			targets[i] = dest
		}
	}
	return targets, nil
}

func moveOne(src, dest string) error {
	if err := os.Rename(src, dest); err != nil {
		if isCrossDevice(err) {
			if err := copyOne(src, dest); err != nil {
				return err
			}
			return os.RemoveAll(src)
		}
		return mapErr(err)
	}
	return nil
}

func copyOne(src, dest string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return mapErr(err)
	}

	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(src)
		if err != nil {
			return mapErr(err)
		}
		return os.Symlink(target, dest)
	}

	if info.IsDir() {
		return copyDir(src, dest, info)
	}
	return copyFile(src, dest, info)
}

func copyDir(src, dest string, info os.FileInfo) error {
	if err := os.MkdirAll(dest, info.Mode().Perm()); err != nil {
		return mapErr(err)
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return mapErr(err)
	}
	for _, de := range entries {
		if err := copyOne(filepath.Join(src, de.Name()), filepath.Join(dest, de.Name())); err != nil {
			return err
		}
	}
	return os.Chtimes(dest, info.ModTime(), info.ModTime())
}

func copyFile(src, dest string, info os.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return mapErr(err)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return mapErr(err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return mapErr(err)
	}
	if err := out.Close(); err != nil {
		return mapErr(err)
	}
	return os.Chtimes(dest, info.ModTime(), info.ModTime())
}

func outcomeFor(path string, err error) protocol.EntryOutcome {
	if err == nil {
		return protocol.EntryOutcome{Path: path, OK: true}
	}
	return protocol.EntryOutcome{Path: path, OK: false, Error: mapErr(err).Error()}
}

func allFailed(paths []string, err error) []protocol.EntryOutcome {
	out := make([]protocol.EntryOutcome, len(paths))
	for i, p := range paths {
		out[i] = outcomeFor(p, err)
	}
	return out
}

// mapErr translates OS-level errors into the taxonomy of spec.md §7.
func mapErr(err error) *protocol.Error {
	if err == nil {
		return nil
	}
	switch {
	case os.IsNotExist(err):
		return protocol.NewError(protocol.ErrNotFound, "%v", err)
	case os.IsExist(err):
		return protocol.NewError(protocol.ErrExists, "%v", err)
	case os.IsPermission(err):
		return protocol.NewError(protocol.ErrPermissionDenied, "%v", err)
	}
	if pe, ok := err.(*protocol.Error); ok {
		return pe
	}
	return protocol.NewError(protocol.ErrInvalidArgument, "%v", err)
}
