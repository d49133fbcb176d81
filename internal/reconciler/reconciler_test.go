package reconciler

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beachvar/stream-supervisor/internal/broadcast"
	"github.com/beachvar/stream-supervisor/internal/controlplane"
	"github.com/beachvar/stream-supervisor/internal/ingest"
	"github.com/beachvar/stream-supervisor/internal/logging"
	"github.com/beachvar/stream-supervisor/internal/signing"
)

func fakeFFmpeg(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(dir, "ffmpeg")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nsleep 5\n"), 0o755))
	t.Setenv("FFMPEG_BIN", script)
}

// reachableSource returns an RTSP URL whose host/port accepts TCP
// connections, so ingest.Supervisor.Start's reachability pre-check passes.
func reachableSource(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	return "rtsp://" + ln.Addr().String() + "/live"
}

// controlPlaneStub serves a mutable declared-state snapshot and records
// every connection/status report it receives.
type controlPlaneStub struct {
	srv   *httptest.Server
	state controlplane.DeclaredState
}

func newControlPlaneStub(t *testing.T) *controlPlaneStub {
	s := &controlPlaneStub{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodGet {
			_ = json.NewEncoder(w).Encode(s.state)
			return
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *controlPlaneStub) client() *controlplane.Client {
	return controlplane.New(s.srv.URL, "device-1", "tok", 2*time.Second)
}

func TestSyncOnce_StartsDeclaredCameraAndStopsUndeclared(t *testing.T) {
	fakeFFmpeg(t)
	stub := newControlPlaneStub(t)
	cp := stub.client()

	hlsRoot := t.TempDir()
	ingestSup := ingest.NewSupervisor(hlsRoot, 2, 120, logging.NewStore(), cp)
	bcastSup := broadcast.NewSupervisor(logging.NewStore(), cp)
	retry := ingest.NewRetryState()
	signer := signing.NewSigner("secret", time.Hour)

	rec := New(cp, ingestSup, bcastSup, retry, signer, logging.NewStore(), "")

	stub.state = controlplane.DeclaredState{
		Cameras: []controlplane.DeclaredCamera{
			{ID: "cam-1", SourceURL: reachableSource(t), HasStreamConfig: true},
		},
	}
	rec.syncOnce(context.Background())
	assert.True(t, ingestSup.Running("cam-1"))

	stub.state = controlplane.DeclaredState{}
	rec.syncOnce(context.Background())
	assert.False(t, ingestSup.Running("cam-1"), "an undeclared camera's ingest must be stopped")
}

func TestSyncOnce_StartsBroadcastOnceItsPlaylistExists(t *testing.T) {
	fakeFFmpeg(t)
	stub := newControlPlaneStub(t)
	cp := stub.client()

	hlsRoot := t.TempDir()
	ingestSup := ingest.NewSupervisor(hlsRoot, 2, 120, logging.NewStore(), cp)
	bcastSup := broadcast.NewSupervisor(logging.NewStore(), cp)
	retry := ingest.NewRetryState()
	signer := signing.NewSigner("secret", time.Hour)

	rec := New(cp, ingestSup, bcastSup, retry, signer, logging.NewStore(), "")

	stub.state = controlplane.DeclaredState{
		Cameras: []controlplane.DeclaredCamera{
			{ID: "cam-1", SourceURL: reachableSource(t), HasStreamConfig: true},
		},
		Broadcasts: []controlplane.DeclaredBroadcast{
			{ID: "bcast-1", CameraID: "cam-1", RemoteURL: "rtmp://example.com/live/", StreamKey: "key"},
		},
	}

	// First sync: ingest starts but the playlist file doesn't exist yet
	// (ffmpeg hasn't written it), so the broadcast must stay declined.
	rec.syncOnce(context.Background())
	assert.False(t, bcastSup.Running("bcast-1"))

	stream, ok := ingestSup.Get("cam-1")
	require.True(t, ok)
	require.NoError(t, os.WriteFile(stream.PlaylistPath, []byte("#EXTM3U\n"), 0o644))

	rec.healthSweep(context.Background())
	assert.True(t, bcastSup.Running("bcast-1"))
}
