package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/lessongate-backend/pkg/migrate"
)

func TestCreateAndValidateWithoutDatabase(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer

	root := newRootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{"create", "add video tags", "--dir", dir})
	require.NoError(t, root.Execute())
	require.Contains(t, out.String(), "_add_video_tags.sql")

	out.Reset()
	root = newRootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{"validate", "--dir", dir})
	require.NoError(t, root.Execute())
	require.Equal(t, "ok\n", out.String())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.sql"), []byte("SELECT 1;"), 0o644))
	root = newRootCommand()
	root.SetArgs([]string{"validate", "--dir", dir})
	require.Error(t, root.Execute())
}

func TestToRejectsBadVersionBeforeConnecting(t *testing.T) {
	root := newRootCommand()
	root.SetArgs([]string{"to", "yesterday"})
	err := root.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid version")
}

func TestRenderStatus(t *testing.T) {
	out := renderStatus([]migrate.State{
		{Version: 20260105120000, Name: "20260105120000_create_users.sql", Applied: true, AppliedAt: time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)},
		{Version: 20260105120100, Name: "20260105120100_create_videos.sql"},
	})
	require.Contains(t, out, "create_users.sql")
	require.Contains(t, out, "2026-01-05T12:00:00Z")
	require.Contains(t, out, "pending")
}

func TestPrintApplied(t *testing.T) {
	var out bytes.Buffer
	printApplied(&out, nil)
	require.Equal(t, "nothing to do\n", out.String())

	out.Reset()
	printApplied(&out, []migrate.Applied{{Name: "20260105120000_create_users.sql", Direction: "up", Took: 12 * time.Millisecond}})
	require.True(t, strings.HasPrefix(out.String(), "up   20260105120000_create_users.sql"))
}
