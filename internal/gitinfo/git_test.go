package gitinfo

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func hasGit(t *testing.T) bool {
	t.Helper()
	_, err := exec.LookPath("git")
	return err == nil
}

func TestCommitInfo_NonRepoFallsBackToNotOk(t *testing.T) {
	if !hasGit(t) {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	file := filepath.Join(dir, "f.py")
	require.NoError(t, os.WriteFile(file, []byte("x = 1"), 0o644))

	_, ok, err := CommitInfo(context.Background(), file)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCommitInfo_TrackedFileReturnsRealMetadata(t *testing.T) {
	if !hasGit(t) {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init", "-q")
	run("config", "user.email", "t@example.com")
	run("config", "user.name", "Test")

	file := filepath.Join(dir, "f.py")
	require.NoError(t, os.WriteFile(file, []byte("x = 1"), 0o644))
	run("add", "f.py")
	run("commit", "-q", "-m", "initial")

	info, ok, err := CommitInfo(context.Background(), file)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, info.CommitID)
	require.Equal(t, "Test", info.Author)
	require.NotEqual(t, "local", info.CommitID)
}

func TestPrevCommit_NoneForFirstCommit(t *testing.T) {
	if !hasGit(t) {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init", "-q")
	run("config", "user.email", "t@example.com")
	run("config", "user.name", "Test")

	file := filepath.Join(dir, "f.py")
	require.NoError(t, os.WriteFile(file, []byte("x = 1"), 0o644))
	run("add", "f.py")
	run("commit", "-q", "-m", "initial")

	info, ok, err := CommitInfo(context.Background(), file)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = PrevCommit(context.Background(), file, info.CommitID)
	require.NoError(t, err)
	require.False(t, ok)
}
