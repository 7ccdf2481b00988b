// Package transfer implements the server-side TransferEngine of
// spec.md §4.6: manifest construction, per-file framing, overwrite
// arbitration and ordered completion reporting.
package transfer

import (
	"os"
	"path/filepath"

	"github.com/easyshare-go/easyshare/pkg/protocol"
)

// BuildManifest walks each requested absolute path (recursive for
// directories) and returns the ordered FileEntry list plus total byte
// count for a GET. sharingRoot bounds the "within the sharing root"
// check for symlink dereferencing (§4.6 step 1).
func BuildManifest(sharingRoot string, srcs []string) (*protocol.Manifest, error) {
	var entries []protocol.FileEntry
	var total int64

	for _, src := range srcs {
		base := filepath.Base(filepath.Clean(src))

		info, err := os.Lstat(src)
		if err != nil {
			return nil, mapErr(err)
		}

		if info.Mode()&os.ModeSymlink != 0 {
			fe, ok, err := symlinkEntry(sharingRoot, src, base, info)
			if err != nil {
				return nil, err
			}
			if ok {
				entries = append(entries, fe)
				total += fe.Size
				continue
			}
		}

		if !info.IsDir() {
			entries = append(entries, fileEntryFor(base, info))
			total += info.Size()
			continue
		}

		err = filepath.WalkDir(src, func(path string, de os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(src, path)
			if err != nil {
				return err
			}
			entryPath := base
			if rel != "." {
				entryPath = filepath.ToSlash(filepath.Join(base, rel))
			}

			fi, err := de.Info()
			if err != nil {
				return err
			}

			if fi.Mode()&os.ModeSymlink != 0 {
				fe, ok, err := symlinkEntry(sharingRoot, path, entryPath, fi)
				if err != nil {
					return err
				}
				if ok {
					entries = append(entries, fe)
					total += fe.Size
				}
				return nil
			}

			fe := fileEntryFor(entryPath, fi)
			entries = append(entries, fe)
			if fe.Kind == protocol.FileRegular {
				total += fe.Size
			}
			return nil
		})
		if err != nil {
			return nil, mapErr(err)
		}
	}

	return &protocol.Manifest{Files: entries, TotalBytes: total}, nil
}

// symlinkEntry implements the dereferencing rule of §4.6 step 1: a
// symlink within the sharing root pointing at a regular file is sent
// as that file; anything else (dangling, directory target, or
// escaping the sharing) is sent as a plain, non-followed symlink
// entry. Returns ok=false only for errors the caller should surface.
func symlinkEntry(sharingRoot, path, entryPath string, info os.FileInfo) (protocol.FileEntry, bool, error) {
	target, err := os.Readlink(path)
	if err != nil {
		return protocol.FileEntry{}, false, mapErr(err)
	}

	resolved := target
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(filepath.Dir(path), resolved)
	}
	resolved = filepath.Clean(resolved)

	within := resolved == sharingRoot || len(resolved) > len(sharingRoot) &&
		resolved[:len(sharingRoot)+1] == sharingRoot+string(filepath.Separator)

	if within {
		if targetInfo, err := os.Stat(resolved); err == nil && !targetInfo.IsDir() {
			fe := fileEntryFor(entryPath, targetInfo)
			return fe, true, nil
		}
	}

	return protocol.FileEntry{
		Path:   entryPath,
		Name:   filepath.Base(entryPath),
		Kind:   protocol.FileSymlink,
		Mtime:  info.ModTime().UnixNano(),
		Mode:   uint32(info.Mode().Perm()),
		Target: target,
	}, true, nil
}

func fileEntryFor(entryPath string, info os.FileInfo) protocol.FileEntry {
	kind := protocol.FileRegular
	size := info.Size()
	if info.IsDir() {
		kind = protocol.FileDirectory
		size = 0
	}
	return protocol.FileEntry{
		Path:  filepath.ToSlash(entryPath),
		Name:  filepath.Base(entryPath),
		Kind:  kind,
		Size:  size,
		Mtime: info.ModTime().UnixNano(),
		Mode:  uint32(info.Mode().Perm()),
	}
}

func mapErr(err error) *protocol.Error {
	if err == nil {
		return nil
	}
	switch {
	case os.IsNotExist(err):
		return protocol.NewError(protocol.ErrNotFound, "%v", err)
	case os.IsPermission(err):
		return protocol.NewError(protocol.ErrPermissionDenied, "%v", err)
	}
	if pe, ok := err.(*protocol.Error); ok {
		return pe
	}
	return protocol.NewError(protocol.ErrInvalidArgument, "%v", err)
}
