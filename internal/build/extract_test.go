package build

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startFake(t *testing.T) (*fakeRuntime, *fakeContainer) {
	t.Helper()
	rt := newFakeRuntime()
	c, err := rt.StartContainer(context.Background(), containerSpec(t, nil))
	require.NoError(t, err)
	return rt, c.(*fakeContainer)
}

func TestExtractOverwrites(t *testing.T) {
	_, c := startFake(t)
	c.files["/src/dist/app-static"] = []byte("new binary")

	dest := filepath.Join(t.TempDir(), "app")
	require.NoError(t, os.WriteFile(dest, []byte("old"), 0o644))

	art, err := Extract(context.Background(), c, StaticBundle{Path: "/src/dist/app-static"}, dest)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "new binary", string(data))
	assert.Equal(t, digest.FromString("new binary"), art.Digest)
	assert.Equal(t, int64(10), art.Size)

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	assert.Equal(t, "new binary", string(c.files["/src/dist/app-static"]))
}

func TestExtractMissingSource(t *testing.T) {
	_, c := startFake(t)
	dir := t.TempDir()
	dest := filepath.Join(dir, "app")

	_, err := Extract(context.Background(), c, StaticBundle{Path: "/src/dist/app-static"}, dest)
	require.ErrorIs(t, err, ErrArtifactMissing)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExtractDestroyedInstance(t *testing.T) {
	_, c := startFake(t)
	c.files["/src/dist/app-static"] = []byte("bin")
	require.NoError(t, c.Destroy(context.Background()))

	_, err := Extract(context.Background(), c, StaticBundle{Path: "/src/dist/app-static"}, filepath.Join(t.TempDir(), "app"))
	require.ErrorIs(t, err, ErrExtraction)
	assert.NotErrorIs(t, err, ErrArtifactMissing)
}

func TestExtractUnwritableDestination(t *testing.T) {
	_, c := startFake(t)
	c.files["/src/dist/app-static"] = []byte("bin")

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := Extract(context.Background(), c, StaticBundle{Path: "/src/dist/app-static"}, filepath.Join(blocker, "app"))
	require.ErrorIs(t, err, ErrExtraction)
	assert.Equal(t, ExitExtraction, ExitCode(err))
}

// A container whose copy keeps running after the stream is abandoned.
type slowCopyContainer struct {
	*fakeContainer
	finished atomic.Bool
}

func (c *slowCopyContainer) CopyFrom(ctx context.Context, w io.Writer, p string) error {
	defer c.finished.Store(true)
	w.Write(bytes.Repeat([]byte{0xff}, 512))
	time.Sleep(50 * time.Millisecond)
	return nil
}

func TestExtractWaitsForCopy(t *testing.T) {
	_, c := startFake(t)
	slow := &slowCopyContainer{fakeContainer: c}

	_, err := Extract(context.Background(), slow, StaticBundle{Path: "/src/dist/app-static"}, filepath.Join(t.TempDir(), "app"))
	require.ErrorIs(t, err, ErrExtraction)
	assert.True(t, slow.finished.Load())
}
