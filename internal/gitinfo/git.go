// Package gitinfo looks up the version metadata attached to a file: the
// most recent commit touching it (id, author, ISO timestamp), the current
// branch, and the previous commit for the same path. It shells out to the
// git binary rather than binding a library: two one-line log formats are
// all the engine ever asks of git, and none of it sits on a hot path.
package gitinfo

import (
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/agentic-research/astgraph/api"
)

const unitSep = "\x1f"

// CommitInfo returns the most recent commit touching path, its author and
// ISO-8601 timestamp, and the current branch. ok is false when path is not
// inside a git repository (or git itself is unavailable); the caller is
// expected to fall back to api.LocalVersionInfo in that case.
func CommitInfo(ctx context.Context, path string) (info api.VersionInfo, ok bool, err error) {
	dir := filepath.Dir(path)
	rel := filepath.Base(path)

	out, runErr := runGit(ctx, dir, "log", "-1", "--format=%H"+unitSep+"%an"+unitSep+"%aI", "--", rel)
	if runErr != nil || strings.TrimSpace(out) == "" {
		return api.VersionInfo{}, false, nil
	}

	parts := strings.Split(strings.TrimSpace(out), unitSep)
	if len(parts) != 3 {
		return api.VersionInfo{}, false, nil
	}
	info.CommitID = parts[0]
	info.Author = parts[1]
	info.Timestamp = parts[2]

	branch, _ := runGit(ctx, dir, "branch", "--show-current")
	branch = strings.TrimSpace(branch)
	if branch == "" {
		branch = "detached"
	}
	info.Branch = branch

	return info, true, nil
}

// PrevCommit returns the commit immediately preceding commitID that
// touched path, if any. ok is false when there is no earlier commit (the
// file was created at commitID, or the repository/file cannot be resolved).
func PrevCommit(ctx context.Context, path, commitID string) (prev string, ok bool, err error) {
	dir := filepath.Dir(path)
	rel := filepath.Base(path)

	out, runErr := runGit(ctx, dir, "log", "-1", "--format=%H", commitID+"~1", "--", rel)
	if runErr != nil || strings.TrimSpace(out) == "" {
		return "", false, nil
	}
	return strings.TrimSpace(out), true, nil
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = nil
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return stdout.String(), nil
}
