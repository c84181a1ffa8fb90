// Package source derives build inputs from the version control state of a
// project.
//
// The only input today is the source epoch: builds export it as
// SOURCE_DATE_EPOCH so tools that embed timestamps produce the same bytes
// for the same commit.
package source

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/go-git/go-git/v5"
)

// Epoch used when the project is not in a git repository: 1980-01-01, the
// earliest timestamp a zip archive can hold.
const DefaultEpoch int64 = 315532800

// Environment variable that overrides the derived epoch.
const EpochEnv = "SOURCE_DATE_EPOCH"

// The checked-out commit of a project.
type Revision struct {
	Commit string    // Full commit hash of HEAD.
	Time   time.Time // Committer time of HEAD.
	Dirty  bool      // Whether the worktree has uncommitted changes.
}

// Returns the revision of the git repository containing dir.
//
// The repository is found by walking up from dir. Returns nil without an
// error when dir is not inside a repository or HEAD has no commit yet.
func Inspect(dir string) (*Revision, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening repository: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		slog.Debug("repository has no HEAD", "dir", dir, "error", err)
		return nil, nil
	}

	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("reading HEAD commit: %w", err)
	}

	rev := &Revision{Commit: commit.Hash.String(), Time: commit.Committer.When}

	if wt, err := repo.Worktree(); err == nil {
		if status, err := wt.Status(); err == nil {
			rev.Dirty = !status.IsClean()
		}
	}

	return rev, nil
}

// Returns the source epoch for the project in dir.
//
// SOURCE_DATE_EPOCH in the environment wins. Otherwise the HEAD committer
// time is used, falling back to [DefaultEpoch] outside a repository.
func Epoch(dir string) (int64, error) {
	if v, ok := os.LookupEnv(EpochEnv); ok && v != "" {
		epoch, err := strconv.ParseInt(v, 10, 64)
		if err != nil || epoch < 0 {
			return 0, fmt.Errorf("%s=%q is not a non-negative integer", EpochEnv, v)
		}
		return epoch, nil
	}

	rev, err := Inspect(dir)
	if err != nil {
		return 0, err
	}
	if rev == nil {
		slog.Debug("not a git repository, using default source epoch", "dir", dir, "epoch", DefaultEpoch)
		return DefaultEpoch, nil
	}

	if rev.Dirty {
		slog.Warn("worktree has uncommitted changes; the build is not reproducible from the commit alone", "commit", rev.Commit[:12])
	}
	slog.Debug("source epoch from HEAD", "commit", rev.Commit, "time", rev.Time)

	return rev.Time.Unix(), nil
}
