package client

import (
	"os"
	"path/filepath"

	"github.com/easyshare-go/easyshare/pkg/protocol"
)

// BuildLocalManifest walks each local source path and produces the
// LocalEntry list a PUT transfer sends, mirroring the server-side
// manifest builder in internal/transfer/manifest.go but rooted at the
// client's filesystem instead of a sharing.
func BuildLocalManifest(srcs []string) ([]LocalEntry, error) {
	var out []LocalEntry
	for _, src := range srcs {
		base := filepath.Base(filepath.Clean(src))
		if err := walkLocal(src, base, &out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func walkLocal(path, relPath string, out *[]LocalEntry) error {
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}

	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return err
		}
		*out = append(*out, LocalEntry{
			FileEntry: protocol.FileEntry{
				Path: filepath.ToSlash(relPath), Kind: protocol.FileSymlink, Target: target,
			},
			LocalPath: path,
		})
		return nil
	}

	if info.IsDir() {
		*out = append(*out, LocalEntry{
			FileEntry: protocol.FileEntry{
				Path: filepath.ToSlash(relPath), Kind: protocol.FileDirectory,
				Mtime: info.ModTime().UnixNano(), Mode: uint32(info.Mode().Perm()),
			},
		})
		entries, err := os.ReadDir(path)
		if err != nil {
			return err
		}
		for _, de := range entries {
			if err := walkLocal(filepath.Join(path, de.Name()), filepath.Join(relPath, de.Name()), out); err != nil {
				return err
			}
		}
		return nil
	}

	*out = append(*out, LocalEntry{
		FileEntry: protocol.FileEntry{
			Path: filepath.ToSlash(relPath), Kind: protocol.FileRegular,
			Size: info.Size(), Mtime: info.ModTime().UnixNano(), Mode: uint32(info.Mode().Perm()),
		},
		LocalPath: path,
	})
	return nil
}
