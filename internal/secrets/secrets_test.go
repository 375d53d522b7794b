// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package secrets

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// tree lays out a secrets directory. Keys containing a slash land in the
// owner subdirectory before the slash.
func tree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	return root
}

func TestDir_Session(t *testing.T) {
	shared := map[string]string{
		"bing-key":       "  shared-bing \n",
		"jira-user":      "svc-search",
		"jira-password":  "svc-pass",
		"alice/bing-key": "alice-bing",
		"alice/.token":   "hidden",
		"bob/jira-user":  "\n\t",
		"bob/notes/todo": "nested",
	}

	tests := []struct {
		name  string
		owner string
		want  map[string]string
	}{
		{
			name:  "owner values override shared ones",
			owner: "alice",
			want:  map[string]string{"bing-key": "alice-bing", "jira-user": "svc-search", "jira-password": "svc-pass"},
		},
		{
			name:  "blank owner files do not mask shared values",
			owner: "bob",
			want:  map[string]string{"bing-key": "shared-bing", "jira-user": "svc-search", "jira-password": "svc-pass"},
		},
		{
			name:  "owner without a directory gets the shared values",
			owner: "carol",
			want:  map[string]string{"bing-key": "shared-bing", "jira-user": "svc-search", "jira-password": "svc-pass"},
		},
		{
			name:  "anonymous owner gets the shared values",
			owner: "",
			want:  map[string]string{"bing-key": "shared-bing", "jira-user": "svc-search", "jira-password": "svc-pass"},
		},
		{
			name:  "path traversal is not followed",
			owner: "../alice",
			want:  map[string]string{"bing-key": "shared-bing", "jira-user": "svc-search", "jira-password": "svc-pass"},
		},
		{
			name:  "hidden owner directories are ignored",
			owner: ".git",
			want:  map[string]string{"bing-key": "shared-bing", "jira-user": "svc-search", "jira-password": "svc-pass"},
		},
	}

	src := Dir{Path: tree(t, shared), Logger: quiet}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := src.Session(context.Background(), tt.owner)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDir_SessionMissingRoot(t *testing.T) {
	src := Dir{Path: filepath.Join(t.TempDir(), "absent")}
	got, err := src.Session(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDir_SessionIsFreshPerCall(t *testing.T) {
	root := tree(t, map[string]string{"bing-key": "v1"})
	src := Dir{Path: root, Logger: quiet}

	first, err := src.Session(context.Background(), "alice")
	require.NoError(t, err)
	first["bing-key"] = "mutated"

	require.NoError(t, os.WriteFile(filepath.Join(root, "bing-key"), []byte("v2"), 0o600))
	second, err := src.Session(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "v2", second["bing-key"], "edits on disk are picked up and callers cannot poison later sessions")
}

func TestLoad_RootIsFile(t *testing.T) {
	root := tree(t, map[string]string{"bing-key": "x"})
	_, err := Load(filepath.Join(root, "bing-key"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading secrets directory")
}

func TestLoad_SkipsUnreadable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read files without permission bits")
	}
	root := tree(t, map[string]string{"bing-key": "ok"})
	locked := filepath.Join(root, "jira-password")
	require.NoError(t, os.WriteFile(locked, []byte("secret"), 0o000))
	t.Cleanup(func() { os.Chmod(locked, 0o600) })

	got, err := load(root, quiet)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"bing-key": "ok"}, got)
}
