package build

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"

	"github.com/cruciblehq/onebin/internal/paths"
	"github.com/cruciblehq/onebin/internal/runtime"
)

// The extracted build output on the host.
type Artifact struct {
	Path   string        // Host destination path.
	Size   int64         // Size in bytes.
	Digest digest.Digest // SHA-256 of the contents.
}

// Copies a file out of the instance to dest on the host.
//
// The file is streamed as a tar archive, written to a temporary file next to
// dest, synced, made executable and renamed over dest, so dest either keeps
// its previous contents or holds the complete artifact. The file in the
// instance is only read. A missing source fails with [ErrArtifactMissing];
// every other failure, including an instance that no longer exists, wraps
// [ErrExtraction].
func Extract(ctx context.Context, ctr runtime.Container, src StaticBundle, dest string) (*Artifact, error) {
	state, err := ctr.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	if state == runtime.ContainerNotCreated {
		return nil, fmt.Errorf("%w: instance %s does not exist", ErrExtraction, ctr.ID())
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	pr, pw := io.Pipe()
	copied := make(chan struct{})
	go func() {
		defer close(copied)
		pw.CloseWithError(ctr.CopyFrom(ctx, pw, src.Path))
	}()

	art, err := writeArtifact(pr, dir, dest)

	// The copy must finish before teardown can remove the instance.
	pr.CloseWithError(io.ErrClosedPipe)
	<-copied

	if err != nil {
		if errors.Is(err, runtime.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s: %w", ErrArtifactMissing, src.Path, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	slog.Debug("extracted", "src", src.Path, "dest", art.Path, "digest", art.Digest)
	return art, nil
}

// Reads the first regular file from the tar stream into dest atomically.
func writeArtifact(r io.Reader, dir, dest string) (*Artifact, error) {
	tr := tar.NewReader(r)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, errors.New("archive holds no regular file")
		}
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		tmp, art, err := writeTemp(tr, dir, dest)
		if err != nil {
			return nil, err
		}

		// Drain the rest so a late producer error is not lost.
		if _, err := io.Copy(io.Discard, r); err != nil {
			os.Remove(tmp)
			return nil, err
		}
		if err := os.Rename(tmp, dest); err != nil {
			os.Remove(tmp)
			return nil, err
		}
		return art, nil
	}
}

// Writes r to a synced, executable temporary file in dir.
//
// Returns the temporary path and the artifact as it will appear at dest.
func writeTemp(r io.Reader, dir, dest string) (string, *Artifact, error) {
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return "", nil, err
	}

	fail := func(err error) (string, *Artifact, error) {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, err
	}

	digester := digest.Canonical.Digester()
	size, err := io.Copy(io.MultiWriter(tmp, digester.Hash()), r)
	if err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Chmod(paths.ExecutableMode); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", nil, err
	}

	return tmp.Name(), &Artifact{Path: dest, Size: size, Digest: digester.Digest()}, nil
}
