package broadcast

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beachvar/stream-supervisor/internal/controlplane"
	"github.com/beachvar/stream-supervisor/internal/logging"
)

// fakeControlPlane stands up an always-succeeds control plane so
// supervisor methods that report status have somewhere safe to post to.
func fakeControlPlane(t *testing.T) *controlplane.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	t.Cleanup(srv.Close)
	return controlplane.New(srv.URL, "device-1", "token", 2*time.Second)
}

// fakeFFmpeg points FFMPEG_BIN at a tiny script so Start() spawns a real,
// short-lived process instead of the genuine ffmpeg binary.
func fakeFFmpeg(t *testing.T, body string) {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(dir, "ffmpeg")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n"+body), 0o755))
	t.Setenv("FFMPEG_BIN", script)
}

func TestStart_DeclinesWithoutPlaylist(t *testing.T) {
	fakeFFmpeg(t, "sleep 5\n")
	sup := NewSupervisor(logging.NewStore(), fakeControlPlane(t))

	err := sup.Start(context.Background(), "b1", "cam-1", filepath.Join(t.TempDir(), "missing.m3u8"), "rtmp://example.com/live/", "key")
	require.Error(t, err)
	assert.False(t, sup.Running("b1"))
}

func TestStart_RunnableAfterPlaylistExists(t *testing.T) {
	fakeFFmpeg(t, "sleep 5\n")
	dir := t.TempDir()
	playlist := filepath.Join(dir, "playlist.m3u8")
	require.NoError(t, os.WriteFile(playlist, []byte("#EXTM3U\n"), 0o644))

	sup := NewSupervisor(logging.NewStore(), fakeControlPlane(t))
	err := sup.Start(context.Background(), "b1", "cam-1", playlist, "rtmp://example.com/live/", "key")
	require.NoError(t, err)
	assert.True(t, sup.Running("b1"))
	assert.False(t, sup.Runnable("b1"), "an already-running broadcast is not runnable again")
}

func TestStop_MarksStoppingBeforeUndeclaredClear(t *testing.T) {
	fakeFFmpeg(t, "sleep 5\n")
	dir := t.TempDir()
	playlist := filepath.Join(dir, "playlist.m3u8")
	require.NoError(t, os.WriteFile(playlist, []byte("#EXTM3U\n"), 0o644))

	sup := NewSupervisor(logging.NewStore(), fakeControlPlane(t))
	require.NoError(t, sup.Start(context.Background(), "b1", "cam-1", playlist, "rtmp://example.com/live/", "key"))

	sup.Stop(context.Background(), "b1")
	assert.False(t, sup.Running("b1"))
	assert.False(t, sup.Runnable("b1"), "a stopping broadcast must not be startable until cleared")

	sup.ClearIfUndeclared(map[string]bool{})
	assert.True(t, sup.Runnable("b1"), "clearing an undeclared broadcast lifts the stopping guard")
}

func TestReapExited_MarksFailedAfterMaxRetries(t *testing.T) {
	fakeFFmpeg(t, "exit 1\n")
	dir := t.TempDir()
	playlist := filepath.Join(dir, "playlist.m3u8")
	require.NoError(t, os.WriteFile(playlist, []byte("#EXTM3U\n"), 0o644))

	sup := NewSupervisor(logging.NewStore(), fakeControlPlane(t))

	for i := 0; i < MaxRetries; i++ {
		require.NoError(t, sup.Start(context.Background(), "b1", "cam-1", playlist, "rtmp://example.com/live/", "key"))
		waitExited(t, sup, "b1")
		due := sup.ReapExited(context.Background())
		if i < MaxRetries-1 {
			require.Len(t, due, 1, "iteration %d should still be due for retry", i)
		} else {
			require.Len(t, due, 0, "the final retry should mark the broadcast failed instead of returning it")
		}
	}

	assert.False(t, sup.Runnable("b1"), "a permanently failed broadcast must not be runnable")
}

func waitExited(t *testing.T, sup *Supervisor, broadcastID string) {
	t.Helper()
	fo, ok := sup.Get(broadcastID)
	require.True(t, ok)
	select {
	case <-fo.Handle.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("fake ffmpeg did not exit in time")
	}
}
