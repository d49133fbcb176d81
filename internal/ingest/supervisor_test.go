package ingest

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

func fakeFFmpeg(t *testing.T, body string) {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(dir, "ffmpeg")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n"+body), 0o755))
	t.Setenv("FFMPEG_BIN", script)
}

func fakeControlPlane(t *testing.T) *controlplane.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	t.Cleanup(srv.Close)
	return controlplane.New(srv.URL, "device-1", "token", 2*time.Second)
}

func TestStart_SpawnsAndCreatesSegmentDir(t *testing.T) {
	fakeFFmpeg(t, "sleep 5\n")
	sup := NewSupervisor(t.TempDir(), 2, 120, logging.NewStore(), fakeControlPlane(t))

	cam := Camera{ID: "cam-1", SourceURL: "rtsp://admin:pw@10.0.0.5:554/live", HasStreamConfig: true}
	require.NoError(t, sup.Start(context.Background(), cam, true))
	assert.True(t, sup.Running("cam-1"))

	stream, ok := sup.Get("cam-1")
	require.True(t, ok)
	assert.DirExists(t, stream.SegmentDir)
}

func TestStart_RejectsDoubleStart(t *testing.T) {
	fakeFFmpeg(t, "sleep 5\n")
	sup := NewSupervisor(t.TempDir(), 2, 120, logging.NewStore(), fakeControlPlane(t))

	cam := Camera{ID: "cam-1", SourceURL: "rtsp://10.0.0.5:554/live", HasStreamConfig: true}
	require.NoError(t, sup.Start(context.Background(), cam, true))
	assert.Error(t, sup.Start(context.Background(), cam, true))
}

func TestStop_IsIdempotentOnAbsentCamera(t *testing.T) {
	sup := NewSupervisor(t.TempDir(), 2, 120, logging.NewStore(), fakeControlPlane(t))
	assert.NoError(t, sup.Stop(context.Background(), "never-started", 0))
}

func TestStop_RemovesSegmentDirectory(t *testing.T) {
	fakeFFmpeg(t, "sleep 5\n")
	sup := NewSupervisor(t.TempDir(), 2, 120, logging.NewStore(), fakeControlPlane(t))

	cam := Camera{ID: "cam-1", SourceURL: "rtsp://10.0.0.5:554/live", HasStreamConfig: true}
	require.NoError(t, sup.Start(context.Background(), cam, true))
	stream, _ := sup.Get("cam-1")
	segDir := stream.SegmentDir

	require.NoError(t, sup.Stop(context.Background(), "cam-1", 200*time.Millisecond))
	assert.NoDirExists(t, segDir)
	assert.False(t, sup.Running("cam-1"))
}

func TestReapExited_ReportsExitDiagnostics(t *testing.T) {
	fakeFFmpeg(t, "echo 'fatal error: source gone' >&2\nexit 1\n")
	sup := NewSupervisor(t.TempDir(), 2, 120, logging.NewStore(), fakeControlPlane(t))

	cam := Camera{ID: "cam-1", SourceURL: "rtsp://10.0.0.5:554/live", HasStreamConfig: true}
	require.NoError(t, sup.Start(context.Background(), cam, true))

	stream, _ := sup.Get("cam-1")
	select {
	case <-stream.Handle.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("fake ffmpeg did not exit in time")
	}

	reaped := sup.ReapExited(context.Background())
	require.Len(t, reaped, 1)
	assert.Equal(t, "cam-1", reaped[0].CameraID)
	assert.Contains(t, reaped[0].Tail, "fatal error")
	assert.False(t, sup.Running("cam-1"))
}
