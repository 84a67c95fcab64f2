package installer

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/quickmod/quickmod/internal/platform"
)

var zipMagic = [][]byte{
	[]byte("PK\x03\x04"),
	[]byte("PK\x05\x06"), // empty archive
}

// isZip reports whether header starts with a zip signature.
func isZip(header []byte) bool {
	for _, m := range zipMagic {
		if bytes.HasPrefix(header, m) {
			return true
		}
	}
	return false
}

// extract unpacks the zip read from r into target. The archive is spooled
// and fully unpacked under root first; only then are its files moved into
// target, and any failed move undoes the ones before it.
func (i *Installer) extract(ctx context.Context, root, target, name string, r io.Reader) ([]string, error) {
	if err := os.MkdirAll(root, platform.DirPermNormal); err != nil {
		return nil, &FileSystemError{Op: "mkdir", Path: root, Err: err}
	}

	spool, err := os.CreateTemp(root, ".bundle-*.partial")
	if err != nil {
		return nil, &FileSystemError{Op: "create", Path: root, Err: err}
	}
	defer os.Remove(spool.Name())
	defer spool.Close()

	size, err := io.Copy(spool, &ctxReader{ctx: ctx, r: r})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &FileSystemError{Op: "write", Path: spool.Name(), Err: err}
	}

	header := make([]byte, 4)
	n, _ := spool.ReadAt(header, 0)
	if !isZip(header[:n]) {
		return nil, &UnsupportedArchiveError{Name: name}
	}
	zr, err := zip.NewReader(spool, size)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, &UnsupportedArchiveError{Name: name}
	}

	staging, err := os.MkdirTemp(root, ".extract-*.partial")
	if err != nil {
		return nil, &FileSystemError{Op: "mkdir", Path: root, Err: err}
	}
	defer os.RemoveAll(staging)

	files, err := unpack(ctx, zr, staging)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	backup, err := os.MkdirTemp(root, ".backup-*.partial")
	if err != nil {
		return nil, &FileSystemError{Op: "mkdir", Path: root, Err: err}
	}
	defer os.RemoveAll(backup)

	return commit(ctx, staging, target, backup, files)
}

// unpack writes every entry of zr below dir and returns the relative paths
// of the regular files it wrote, each once. A repeated entry name overwrites
// the earlier one.
func unpack(ctx context.Context, zr *zip.Reader, dir string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rel, err := entryPath(f.Name)
		if err != nil {
			return nil, &FileSystemError{Op: "extract", Path: f.Name, Err: err}
		}
		if rel == "" {
			continue
		}
		dest := filepath.Join(dir, rel)

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, platform.DirPermNormal); err != nil {
				return nil, &FileSystemError{Op: "mkdir", Path: dest, Err: err}
			}
			continue
		}
		if !f.Mode().IsRegular() {
			// Symlinks and devices are skipped.
			continue
		}

		if err := os.MkdirAll(filepath.Dir(dest), platform.DirPermNormal); err != nil {
			return nil, &FileSystemError{Op: "mkdir", Path: filepath.Dir(dest), Err: err}
		}
		if err := writeEntry(f, dest); err != nil {
			return nil, &FileSystemError{Op: "extract", Path: f.Name, Err: err}
		}
		if !seen[rel] {
			seen[rel] = true
			files = append(files, rel)
		}
	}
	return files, nil
}

func writeEntry(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening zip entry: %w", err)
	}
	defer rc.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, platform.FilePermNormal)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("extracting: %w", err)
	}
	return out.Close()
}

// entryPath validates a zip entry name and returns it as a relative
// OS path. Names escaping the extraction root are rejected.
func entryPath(name string) (string, error) {
	if strings.Contains(name, "\\") {
		name = strings.ReplaceAll(name, "\\", "/")
	}
	if strings.HasPrefix(name, "/") || filepath.IsAbs(name) {
		return "", fmt.Errorf("absolute path in archive")
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." {
		return "", nil
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes extraction root")
	}
	return clean, nil
}

// move records one file moved into target, and what it replaced.
type move struct {
	dest   string
	backup string // empty when dest did not exist before
}

// commit moves files from staging into target. On failure or cancellation
// every completed move is undone and directories it created are removed.
func commit(ctx context.Context, staging, target, backup string, files []string) ([]string, error) {
	var (
		moves   []move
		created []string
	)
	rollback := func() {
		for j := len(moves) - 1; j >= 0; j-- {
			m := moves[j]
			os.Remove(m.dest)
			if m.backup != "" {
				os.Rename(m.backup, m.dest)
			}
		}
		for j := len(created) - 1; j >= 0; j-- {
			os.Remove(created[j])
		}
	}

	mkdirs := func(dir string) error {
		var missing []string
		for d := dir; ; d = filepath.Dir(d) {
			if _, err := os.Stat(d); err == nil {
				break
			}
			missing = append(missing, d)
			if d == filepath.Dir(d) {
				break
			}
		}
		for j := len(missing) - 1; j >= 0; j-- {
			if err := os.Mkdir(missing[j], platform.DirPermNormal); err != nil && !os.IsExist(err) {
				return err
			}
			created = append(created, missing[j])
		}
		return nil
	}

	if err := mkdirs(target); err != nil {
		rollback()
		return nil, &FileSystemError{Op: "mkdir", Path: target, Err: err}
	}

	paths := make([]string, 0, len(files))
	for n, rel := range files {
		if err := ctx.Err(); err != nil {
			rollback()
			return nil, err
		}
		src := filepath.Join(staging, rel)
		dest := filepath.Join(target, rel)

		if err := mkdirs(filepath.Dir(dest)); err != nil {
			rollback()
			return nil, &FileSystemError{Op: "mkdir", Path: filepath.Dir(dest), Err: err}
		}

		m := move{dest: dest}
		if info, err := os.Lstat(dest); err == nil {
			if info.IsDir() {
				rollback()
				return nil, &FileSystemError{Op: "replace", Path: dest, Err: fmt.Errorf("a directory is in the way")}
			}
			m.backup = filepath.Join(backup, fmt.Sprintf("%d", n))
			if err := os.Rename(dest, m.backup); err != nil {
				rollback()
				return nil, &FileSystemError{Op: "backup", Path: dest, Err: err}
			}
		}
		if err := os.Rename(src, dest); err != nil {
			if m.backup != "" {
				os.Rename(m.backup, dest)
			}
			rollback()
			return nil, &FileSystemError{Op: "rename", Path: dest, Err: err}
		}
		moves = append(moves, m)
		paths = append(paths, dest)
	}
	return paths, nil
}
