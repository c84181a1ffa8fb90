package build

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/shlex"

	"github.com/cruciblehq/onebin/internal/paths"
	"github.com/cruciblehq/onebin/internal/runtime"
)

// Writes host files into tar streams with normalized metadata.
//
// Entries are owned by root, stamped with mtime, and carry either 0755 or
// 0644 permissions, so the same files always produce the same archive.
type archiver struct {
	root  string    // Host directory that relative paths resolve against.
	mtime time.Time // Modification time recorded on every entry.
}

// Copies recipe-relative files into dest, preserving their relative paths.
func copyFiles(ctx context.Context, ctr runtime.Container, a archiver, files []string, dest string) error {
	if err := ctr.MkdirAll(ctx, dest); err != nil {
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}

	slog.Debug("copy files", "count", len(files), "dest", dest)

	return streamTar(ctx, ctr, dest, func(tw *tar.Writer) error {
		return a.writeFiles(tw, files)
	})
}

// Executes a copy directive, transferring host files into the container.
//
// The directive has the form "src dest" and is split with shell quoting
// rules, so paths may contain quoted spaces. src is resolved against the
// recipe directory and may be a glob. A single match is copied to dest
// itself unless dest ends in "/"; several matches are copied into dest under
// their base names. A relative dest is joined with workdir.
func executeCopy(ctx context.Context, ctr runtime.Container, a archiver, copyStr, workdir string) error {
	src, dest, err := parseCopy(copyStr, workdir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}

	matches, err := doublestar.Glob(os.DirFS(a.root), path.Clean(filepath.ToSlash(src)))
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrCopy, src, err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("%w: %q matches nothing", ErrCopy, src)
	}
	slices.Sort(matches)

	intoDir := len(matches) > 1 || strings.HasSuffix(dest, "/")
	dest = path.Clean(dest)

	destDir, name := path.Dir(dest), path.Base(dest)
	if intoDir {
		destDir, name = dest, ""
	}

	if err := ctr.MkdirAll(ctx, destDir); err != nil {
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}

	slog.Debug("copy", "src", src, "matches", len(matches), "dest", dest)

	return streamTar(ctx, ctr, destDir, func(tw *tar.Writer) error {
		for _, m := range matches {
			archiveName := name
			if archiveName == "" {
				archiveName = path.Base(m)
			}
			if err := a.writePath(tw, m, archiveName); err != nil {
				return err
			}
		}
		return nil
	})
}

// Parses a copy string into source and destination paths.
//
// The string must contain exactly two tokens. If dest is not absolute, it
// is joined with workdir; a trailing slash on dest is kept.
func parseCopy(s, workdir string) (src, dest string, err error) {
	parts, err := shlex.Split(s)
	if err != nil {
		return "", "", fmt.Errorf("parsing %q: %w", s, err)
	}
	if len(parts) != 2 {
		return "", "", fmt.Errorf("expected source and destination, got %q", s)
	}

	src = parts[0]
	dest = parts[1]

	if !path.IsAbs(dest) {
		if workdir == "" {
			return "", "", fmt.Errorf("relative dest %q requires workdir", dest)
		}
		trailing := strings.HasSuffix(dest, "/")
		dest = path.Join(workdir, dest)
		if trailing {
			dest += "/"
		}
	}

	return src, dest, nil
}

// Pipes the archive produced by write into destDir of the container.
//
// An error from write takes precedence over the copy error it causes.
func streamTar(ctx context.Context, ctr runtime.Container, destDir string, write func(*tar.Writer) error) error {
	pr, pw := io.Pipe()

	errc := make(chan error, 1)
	go func() {
		tw := tar.NewWriter(pw)
		err := write(tw)
		if cerr := tw.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
		errc <- err
	}()

	copyErr := ctr.CopyTo(ctx, pr, destDir)
	pr.CloseWithError(io.ErrClosedPipe)

	if err := <-errc; err != nil && !errors.Is(err, io.ErrClosedPipe) {
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}
	if copyErr != nil {
		return fmt.Errorf("%w: %w", ErrCopy, copyErr)
	}
	return nil
}

// Writes relative files, preceded by entries for their parent directories.
func (a archiver) writeFiles(tw *tar.Writer, files []string) error {
	dirs := make(map[string]bool)
	for _, f := range files {
		for d := path.Dir(f); d != "." && d != "/" && !dirs[d]; d = path.Dir(d) {
			dirs[d] = true
		}
	}

	for _, d := range slices.Sorted(maps.Keys(dirs)) {
		if err := a.writeHeader(tw, d, tar.TypeDir, paths.DefaultDirMode, 0); err != nil {
			return err
		}
	}

	for _, f := range files {
		if err := a.writeFile(tw, a.hostPath(f), f); err != nil {
			return err
		}
	}
	return nil
}

// Writes a relative file or directory tree under the archive name.
func (a archiver) writePath(tw *tar.Writer, rel, name string) error {
	hostPath := a.hostPath(rel)
	info, err := os.Stat(hostPath)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return a.writeDir(tw, hostPath, name)
	}
	return a.writeFile(tw, hostPath, name)
}

// Writes a single regular file with the given archive name.
func (a archiver) writeFile(tw *tar.Writer, hostPath, name string) error {
	f, err := os.Open(hostPath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", hostPath)
	}

	if err := a.writeHeader(tw, name, tar.TypeReg, fileMode(info.Mode()), info.Size()); err != nil {
		return err
	}

	_, err = io.Copy(tw, f)
	return err
}

// Writes a directory tree rooted at the given archive prefix.
//
// Entries are visited in lexical order. Symbolic links are followed,
// including links to directories, and special files are skipped. A link
// back to a directory being written is an error.
func (a archiver) writeDir(tw *tar.Writer, hostDir, prefix string) error {
	return a.writeTree(tw, hostDir, prefix, make(map[string]bool))
}

// Walks one directory; active holds the resolved paths of the directories
// currently being written.
func (a archiver) writeTree(tw *tar.Writer, hostDir, prefix string, active map[string]bool) error {
	resolved, err := filepath.EvalSymlinks(hostDir)
	if err != nil {
		return err
	}
	if active[resolved] {
		return fmt.Errorf("%s: symbolic link cycle", hostDir)
	}
	active[resolved] = true
	defer delete(active, resolved)

	return filepath.WalkDir(resolved, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(resolved, p)
		if err != nil {
			return err
		}
		archivePath := path.Join(prefix, filepath.ToSlash(relPath))

		info, err := os.Stat(p)
		if err != nil {
			return err
		}

		switch {
		case info.IsDir() && d.Type()&fs.ModeSymlink != 0:
			return a.writeTree(tw, p, archivePath, active)
		case info.IsDir():
			return a.writeHeader(tw, archivePath, tar.TypeDir, paths.DefaultDirMode, 0)
		case info.Mode().IsRegular():
			return a.writeFile(tw, p, archivePath)
		default:
			return nil
		}
	})
}

func (a archiver) writeHeader(tw *tar.Writer, name string, typ byte, mode fs.FileMode, size int64) error {
	if typ == tar.TypeDir {
		name = strings.TrimSuffix(name, "/") + "/"
	}
	return tw.WriteHeader(&tar.Header{
		Typeflag: typ,
		Name:     name,
		Mode:     int64(mode.Perm()),
		Size:     size,
		ModTime:  a.mtime,
		Format:   tar.FormatPAX,
	})
}

// Resolves a recipe-relative, slash-separated path on the host.
func (a archiver) hostPath(rel string) string {
	return filepath.Join(a.root, filepath.FromSlash(rel))
}

// Normalizes file permissions to 0755 for executables and 0644 otherwise.
func fileMode(m fs.FileMode) fs.FileMode {
	if m.Perm()&0o111 != 0 {
		return paths.ExecutableMode
	}
	return paths.DefaultFileMode
}
